package reader

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/ChrisMcGann/rawexport/internal/logger"
	"github.com/ChrisMcGann/rawexport/pkg/core"
)

// Adapter reads scan records out of a Source. The trailer field index is
// resolved once when the adapter is created.
type Adapter struct {
	src    Source
	fields core.FieldIndex
	log    logger.Logger
}

// NewAdapter creates an adapter. A nil label set uses core.DefaultLabelSet.
func NewAdapter(src Source, labels *core.LabelSet, log logger.Logger) *Adapter {
	if log == nil {
		log = logger.Default()
	}
	return &Adapter{
		src:    src,
		fields: core.ResolveFields(src.TrailerLabels(), labels),
		log:    log,
	}
}

// Fields returns the resolved trailer field index.
func (a *Adapter) Fields() core.FieldIndex {
	return a.fields
}

// HasMasterScan reports whether fragment scans carry an explicit master scan.
func (a *Adapter) HasMasterScan() bool {
	return a.fields.Has(core.FieldMasterScan)
}

// Read builds the scan record for id. Missing centroid data is logged and
// leaves the peak arrays empty.
func (a *Adapter) Read(id int) (*core.Scan, error) {
	s := &core.Scan{ID: id}

	event, err := a.src.ScanEvent(id)
	if err != nil {
		return nil, fmt.Errorf("failed to read scan event %d: %w", id, err)
	}
	s.Level = event.Level
	s.Analyzer = event.Analyzer

	stats, err := a.src.ScanStats(id)
	if err != nil {
		return nil, fmt.Errorf("failed to read scan stats %d: %w", id, err)
	}
	s.ScanMode = stats.ScanType
	s.TotalIonCurrent = stats.TotalIonCurrent
	s.BasePeakIntensity = stats.BasePeakIntensity
	s.BasePeakMass = stats.BasePeakMass
	s.RetentionTime = stats.StartTime * 60

	if v, ok := a.trailer(id, core.FieldDescription); ok {
		s.Description = v
	}
	a.trailerFloat(id, core.FieldInjectionTime, &s.InjectionTime)
	a.trailerFloat(id, core.FieldOvFtT, &s.OvFtT)

	if err := a.readPeaks(s); err != nil {
		return nil, err
	}

	if !s.Level.Tandem() {
		return s, nil
	}

	a.trailerInt(id, core.FieldMasterScan, &s.PrecursorScan)
	s.ActivationCenter = event.ActivationCenter
	a.trailerFloat(id, core.FieldIsolationWidth, &s.IsolationWidth)
	a.trailerFloat(id, core.FieldIsolationOffset, &s.IsolationOffset)
	a.trailerFloat(id, core.FieldMonoisotopicMZ, &s.PrecursorMZ)
	if s.PrecursorMZ <= 0 {
		s.PrecursorMZ = s.ActivationCenter
	}
	a.trailerInt(id, core.FieldChargeState, &s.PrecursorCharge)
	if event.Polarity == PolarityNegative {
		s.PrecursorCharge = -s.PrecursorCharge
	}

	return s, nil
}

func (a *Adapter) readPeaks(s *core.Scan) error {
	c, err := a.src.Centroids(s.ID)
	if err != nil {
		return fmt.Errorf("failed to read centroids %d: %w", s.ID, err)
	}
	if c == nil || c.Mass == nil || c.Intensity == nil {
		a.log.Warn("centroid data unavailable", "scan", s.ID)
		s.ClearPeaks()
		return nil
	}
	if len(c.Mass) != len(c.Intensity) {
		a.log.Warn("centroid arrays differ in length", "scan", s.ID,
			"mass", len(c.Mass), "intensity", len(c.Intensity))
		s.ClearPeaks()
		return nil
	}

	s.Mass = c.Mass
	s.Intensity = c.Intensity
	switch {
	case len(c.Noise) == len(c.Mass):
		s.Noise = c.Noise
	case len(c.Noise) == 0:
		s.Noise = []float64{}
	default:
		a.log.Warn("dropping noise array with mismatched length", "scan", s.ID,
			"noise", len(c.Noise), "peaks", len(c.Mass))
		s.Noise = []float64{}
	}
	return nil
}

// trailer returns the raw trailer value for f, or false when the field is
// absent from the catalog or the lookup fails.
func (a *Adapter) trailer(id int, f core.Field) (string, bool) {
	pos, ok := a.fields.Lookup(f)
	if !ok {
		return "", false
	}
	v, err := a.src.TrailerValue(id, pos)
	if err != nil {
		a.log.Debug("trailer lookup failed", "scan", id, "field", f.String(), "error", err)
		return "", false
	}
	return strings.TrimSpace(v), true
}

func (a *Adapter) trailerFloat(id int, f core.Field, dst *float64) {
	v, ok := a.trailer(id, f)
	if !ok {
		return
	}
	x, err := strconv.ParseFloat(v, 64)
	if err != nil {
		a.log.Debug("unparsable trailer value", "scan", id, "field", f.String(), "value", v)
		return
	}
	*dst = x
}

func (a *Adapter) trailerInt(id int, f core.Field, dst *int) {
	v, ok := a.trailer(id, f)
	if !ok {
		return
	}
	if n, err := strconv.Atoi(v); err == nil {
		*dst = n
		return
	}
	x, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(x) || math.IsInf(x, 0) {
		a.log.Debug("unparsable trailer value", "scan", id, "field", f.String(), "value", v)
		return
	}
	*dst = int(math.Round(x))
}
