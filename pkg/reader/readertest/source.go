// Package readertest provides an in-memory reader.Source for tests.
package readertest

import (
	"fmt"

	"github.com/ChrisMcGann/rawexport/pkg/core"
	"github.com/ChrisMcGann/rawexport/pkg/reader"
)

// Scan is one scan served by a Source.
type Scan struct {
	Stats     reader.Stats
	Event     reader.Event
	Centroids *reader.Centroids
	Trailer   map[string]string // label -> value
	Missing   bool              // id holds no scan (reader.ErrNoScan)
}

// Source is an in-memory reader.Source. Scans are keyed by id and must cover
// the range [First, First+len(Scans)).
type Source struct {
	First      int
	Scans      []Scan
	Labels     []string
	Instrument string
	VendorName string
	Runtime    float64
	Closed     bool

	EventCalls int // ScanEvent calls served
}

var (
	_ reader.Source = (*Source)(nil)
	_ reader.Vendor = (*Source)(nil)
)

func (s *Source) get(id int) (*Scan, error) {
	i := id - s.First
	if i < 0 || i >= len(s.Scans) {
		return nil, fmt.Errorf("scan %d out of range", id)
	}
	if s.Scans[i].Missing {
		return nil, fmt.Errorf("scan %d: %w", id, reader.ErrNoScan)
	}
	return &s.Scans[i], nil
}

func (s *Source) ScanRange() (int, int) {
	return s.First, s.First + len(s.Scans) - 1
}

func (s *Source) ScanStats(id int) (reader.Stats, error) {
	sc, err := s.get(id)
	if err != nil {
		return reader.Stats{}, err
	}
	return sc.Stats, nil
}

func (s *Source) ScanEvent(id int) (reader.Event, error) {
	s.EventCalls++
	sc, err := s.get(id)
	if err != nil {
		return reader.Event{}, err
	}
	return sc.Event, nil
}

func (s *Source) Centroids(id int) (*reader.Centroids, error) {
	sc, err := s.get(id)
	if err != nil {
		return nil, err
	}
	return sc.Centroids, nil
}

func (s *Source) TrailerLabels() []string { return s.Labels }

func (s *Source) TrailerValue(id, index int) (string, error) {
	sc, err := s.get(id)
	if err != nil {
		return "", err
	}
	if index < 0 || index >= len(s.Labels) {
		return "", fmt.Errorf("trailer index %d out of range", index)
	}
	return sc.Trailer[s.Labels[index]], nil
}

func (s *Source) InstrumentName() string   { return s.Instrument }
func (s *Source) Vendor() string           { return s.VendorName }
func (s *Source) ExpectedRuntime() float64 { return s.Runtime }

func (s *Source) Close() error {
	s.Closed = true
	return nil
}

// Primary builds a primary scan with the given peaks.
func Primary(rtMinutes float64, mass, inten, noise []float64) Scan {
	return Scan{
		Stats: reader.Stats{
			StartTime:         rtMinutes,
			TotalIonCurrent:   sum(inten),
			BasePeakIntensity: maxOf(inten),
			BasePeakMass:      massAtMax(mass, inten),
			ScanType:          "FTMS + p NSI Full ms [350.0000-1800.0000]",
		},
		Event:     reader.Event{Level: core.LevelPrimary, Analyzer: core.AnalyzerFTMS},
		Centroids: &reader.Centroids{Mass: mass, Intensity: inten, Noise: noise},
		Trailer:   map[string]string{},
	}
}

// Gap is a placeholder for an id without a scan.
func Gap() Scan {
	return Scan{Missing: true}
}

// Fragment builds a fragment scan isolating center.
func Fragment(rtMinutes, center float64, mass, inten []float64, trailer map[string]string) Scan {
	if trailer == nil {
		trailer = map[string]string{}
	}
	return Scan{
		Stats: reader.Stats{
			StartTime:         rtMinutes,
			TotalIonCurrent:   sum(inten),
			BasePeakIntensity: maxOf(inten),
			BasePeakMass:      massAtMax(mass, inten),
			ScanType:          "ITMS + c NSI d Full ms2",
		},
		Event: reader.Event{
			Level:            core.LevelFragment,
			Analyzer:         core.AnalyzerITMS,
			ActivationCenter: center,
		},
		Centroids: &reader.Centroids{Mass: mass, Intensity: inten},
		Trailer:   trailer,
	}
}

func sum(xs []float64) float64 {
	var t float64
	for _, x := range xs {
		t += x
	}
	return t
}

func maxOf(xs []float64) float64 {
	var m float64
	for _, x := range xs {
		if x > m {
			m = x
		}
	}
	return m
}

func massAtMax(mass, inten []float64) float64 {
	var m, best float64
	for i, x := range inten {
		if x > best && i < len(mass) {
			best, m = x, mass[i]
		}
	}
	return m
}
