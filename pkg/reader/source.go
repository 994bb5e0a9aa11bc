// Package reader defines the acquisition reader surface consumed by the
// exporter and the adapter that turns it into scan records.
package reader

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/ChrisMcGann/rawexport/pkg/core"
)

var (
	// ErrUnsupportedInput is returned by Open when no opener handles a file type.
	ErrUnsupportedInput = errors.New("unsupported input file type")
	// ErrNoScan is returned by a Source for ids inside its range that hold no scan.
	ErrNoScan = errors.New("no such scan")
)

// Polarity of a scan event.
type Polarity int

const (
	PolarityPositive Polarity = iota
	PolarityNegative
)

// Stats are the per-scan statistics reported by the acquisition reader.
type Stats struct {
	StartTime         float64 // minutes
	TotalIonCurrent   float64
	BasePeakIntensity float64
	BasePeakMass      float64
	ScanType          string
}

// Event is the scan event classification.
type Event struct {
	Level            core.Level
	Analyzer         string // core.AnalyzerFTMS, core.AnalyzerITMS or empty
	Polarity         Polarity
	ActivationCenter float64 // first reaction mass, 0 for primary scans
}

// Centroids holds centroided peak arrays. Noise may be nil.
type Centroids struct {
	Mass      []float64
	Intensity []float64
	Noise     []float64
}

// Source is an opened acquisition file with one MS device selected.
type Source interface {
	// ScanRange returns the first and last scan id, inclusive.
	ScanRange() (first, last int)
	ScanStats(id int) (Stats, error)
	ScanEvent(id int) (Event, error)
	// Centroids returns nil without error when no centroid data is available.
	Centroids(id int) (*Centroids, error)
	// TrailerLabels returns the ordered trailer field catalog.
	TrailerLabels() []string
	TrailerValue(id, index int) (string, error)
	InstrumentName() string
	// ExpectedRuntime returns the expected run duration in minutes.
	ExpectedRuntime() float64
	Close() error
}

// Vendor is implemented by sources that know the instrument vendor.
type Vendor interface {
	Vendor() string
}

// InstrumentLabel returns the instrument name as written in run summaries:
// prefixed with the vendor when src reports one.
func InstrumentLabel(src Source) string {
	if v, ok := src.(Vendor); ok && v.Vendor() != "" {
		return v.Vendor() + " " + src.InstrumentName()
	}
	return src.InstrumentName()
}

// Opener opens a file of one input type.
type Opener func(path string) (Source, error)

var (
	openersMu sync.RWMutex
	openers   = make(map[string]Opener)
)

// Register makes an opener available for a file extension (e.g. ".mzml").
// Extensions are matched case-insensitively.
func Register(ext string, fn Opener) {
	openersMu.Lock()
	defer openersMu.Unlock()

	if fn == nil {
		panic("reader: Register opener is nil")
	}
	openers[strings.ToLower(ext)] = fn
}

// Extensions returns the registered extensions in sorted order.
func Extensions() []string {
	openersMu.RLock()
	defer openersMu.RUnlock()

	exts := make([]string, 0, len(openers))
	for ext := range openers {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// Open opens path with the opener registered for its extension.
func Open(path string) (Source, error) {
	ext := strings.ToLower(filepath.Ext(path))

	openersMu.RLock()
	fn, ok := openers[ext]
	openersMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: '%s'", ErrUnsupportedInput, ext)
	}
	src, err := fn(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	return src, nil
}
