// Package core provides the scan record model, field resolution and the numeric
// derivations shared by every export format.
package core

import (
	"fmt"
	"math"
	"strings"
)

// Level is the MS order of a scan (1 = primary, 2 = fragment, n = MSn).
type Level int

const (
	LevelUnknown  Level = 0
	LevelPrimary  Level = 1
	LevelFragment Level = 2
)

// String returns the scan type token used in every text output, e.g. "MS2".
func (l Level) String() string {
	if l <= LevelUnknown {
		return "MS?"
	}
	return fmt.Sprintf("MS%d", int(l))
}

// Tandem reports whether the level carries precursor information.
func (l Level) Tandem() bool {
	return l >= LevelFragment
}

// Analyzer tags written to the InstrumentType column.
const (
	AnalyzerFTMS = "FTMS"
	AnalyzerITMS = "ITMS"
)

// Scan is one acquired scan with its statistics and centroided peak arrays.
type Scan struct {
	ID          int
	Level       Level
	Analyzer    string // FTMS, ITMS or empty
	ScanMode    string
	Description string

	TotalIonCurrent   float64
	BasePeakIntensity float64
	BasePeakMass      float64
	RetentionTime     float64 // seconds
	InjectionTime     float64 // milliseconds
	OvFtT             float64

	// Parallel peak arrays. Noise is either empty or as long as Mass.
	Mass      []float64
	Intensity []float64
	Noise     []float64

	// Tandem fields, meaningful when Level.Tandem() is true.
	PrecursorScan    int // 0 means no precursor known
	ActivationCenter float64
	IsolationWidth   float64
	IsolationOffset  float64
	PrecursorMZ      float64
	PrecursorCharge  int // negative for negative polarity

	// Byte offsets inside an indexed container, set by the container writer.
	IndexMZ        uint64
	IndexIntensity uint64
	IndexNoise     uint64
}

// ValidationError represents an error found during scan validation.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error in %s: %s", e.Field, e.Message)
}

// Peaks returns the number of centroid peaks.
func (s *Scan) Peaks() int {
	return len(s.Mass)
}

// Name returns a short label for log and error messages.
func (s *Scan) Name() string {
	return fmt.Sprintf("scan #%d (%s)", s.ID, s.Level)
}

// Validate checks the peak array invariants.
func (s *Scan) Validate() error {
	var errs []string

	if len(s.Mass) != len(s.Intensity) {
		errs = append(errs, fmt.Sprintf("mass/intensity length mismatch (%d != %d)", len(s.Mass), len(s.Intensity)))
	}
	if len(s.Noise) != 0 && len(s.Noise) != len(s.Mass) {
		errs = append(errs, fmt.Sprintf("noise length %d does not match peak count %d", len(s.Noise), len(s.Mass)))
	}
	for i, v := range s.Mass {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			errs = append(errs, fmt.Sprintf("peak %d has invalid mass", i))
		}
	}
	for i, v := range s.Intensity {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			errs = append(errs, fmt.Sprintf("peak %d has invalid intensity", i))
		}
	}

	if len(errs) > 0 {
		return &ValidationError{
			Field:   s.Name(),
			Message: strings.Join(errs, "; "),
		}
	}
	return nil
}

// ClearPeaks drops all peak arrays.
func (s *Scan) ClearPeaks() {
	s.Mass = []float64{}
	s.Intensity = []float64{}
	s.Noise = []float64{}
}
