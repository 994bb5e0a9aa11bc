package reader_test

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/ChrisMcGann/rawexport/internal/logger"
	"github.com/ChrisMcGann/rawexport/pkg/core"
	"github.com/ChrisMcGann/rawexport/pkg/reader"
	"github.com/ChrisMcGann/rawexport/pkg/reader/readertest"
)

var thermoLabels = []string{
	"Charge State:",
	"Ion Injection Time (ms):",
	"Monoisotopic M/Z:",
	"MS2 Isolation Width:",
	"Scan Description:",
}

func TestAdapterReadPrimary(t *testing.T) {
	src := &readertest.Source{
		First:  1,
		Labels: thermoLabels,
		Scans: []readertest.Scan{
			readertest.Primary(0.5, []float64{100.1, 200.2}, []float64{10, 30}, []float64{1, 2}),
		},
	}
	src.Scans[0].Trailer["Ion Injection Time (ms):"] = " 12.5 "
	src.Scans[0].Trailer["Scan Description:"] = "full, survey"

	a := reader.NewAdapter(src, nil, logger.Discard())
	s, err := a.Read(1)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}

	want := &core.Scan{
		ID:                1,
		Level:             core.LevelPrimary,
		Analyzer:          core.AnalyzerFTMS,
		ScanMode:          src.Scans[0].Stats.ScanType,
		Description:       "full, survey",
		TotalIonCurrent:   40,
		BasePeakIntensity: 30,
		BasePeakMass:      200.2,
		RetentionTime:     30,
		InjectionTime:     12.5,
		Mass:              []float64{100.1, 200.2},
		Intensity:         []float64{10, 30},
		Noise:             []float64{1, 2},
	}
	if diff := cmp.Diff(want, s); diff != "" {
		t.Errorf("Read() mismatch (-want +got):\n%s", diff)
	}
}

func TestAdapterReadFragment(t *testing.T) {
	src := &readertest.Source{
		First:  5,
		Labels: thermoLabels,
		Scans: []readertest.Scan{
			readertest.Fragment(1.0, 445.12, []float64{150}, []float64{5}, map[string]string{
				"Charge State:":        "2",
				"Monoisotopic M/Z:":    "445.1234",
				"MS2 Isolation Width:": "1.6",
			}),
		},
	}

	a := reader.NewAdapter(src, nil, logger.Discard())
	s, err := a.Read(5)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if s.PrecursorCharge != 2 {
		t.Errorf("PrecursorCharge = %d, want 2", s.PrecursorCharge)
	}
	if s.PrecursorMZ != 445.1234 {
		t.Errorf("PrecursorMZ = %v, want 445.1234", s.PrecursorMZ)
	}
	if s.ActivationCenter != 445.12 {
		t.Errorf("ActivationCenter = %v, want 445.12", s.ActivationCenter)
	}
	if s.IsolationWidth != 1.6 {
		t.Errorf("IsolationWidth = %v, want 1.6", s.IsolationWidth)
	}
	if s.PrecursorScan != 0 {
		t.Errorf("PrecursorScan = %d without master scan field", s.PrecursorScan)
	}
	if a.HasMasterScan() {
		t.Error("HasMasterScan() = true")
	}
}

func TestAdapterPrecursorFallbackAndPolarity(t *testing.T) {
	frag := readertest.Fragment(1.0, 512.5, nil, nil, map[string]string{
		"Charge State:":     "3",
		"Monoisotopic M/Z:": "0.0",
	})
	frag.Centroids = &reader.Centroids{Mass: []float64{}, Intensity: []float64{}}
	frag.Event.Polarity = reader.PolarityNegative

	src := &readertest.Source{First: 1, Labels: thermoLabels, Scans: []readertest.Scan{frag}}
	s, err := reader.NewAdapter(src, nil, logger.Discard()).Read(1)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if s.PrecursorMZ != 512.5 {
		t.Errorf("PrecursorMZ = %v, want fallback to activation center 512.5", s.PrecursorMZ)
	}
	if s.PrecursorCharge != -3 {
		t.Errorf("PrecursorCharge = %d, want -3", s.PrecursorCharge)
	}
}

func TestAdapterExplicitMasterScan(t *testing.T) {
	labels := append([]string{"Master Scan Number:"}, thermoLabels...)
	src := &readertest.Source{
		First:  1,
		Labels: labels,
		Scans: []readertest.Scan{
			readertest.Fragment(1.0, 400, nil, nil, map[string]string{"Master Scan Number:": "17"}),
		},
	}
	a := reader.NewAdapter(src, nil, logger.Discard())
	if !a.HasMasterScan() {
		t.Fatal("HasMasterScan() = false")
	}
	s, err := a.Read(1)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if s.PrecursorScan != 17 {
		t.Errorf("PrecursorScan = %d, want 17", s.PrecursorScan)
	}
}

func TestAdapterMissingCentroids(t *testing.T) {
	sc := readertest.Primary(0.1, nil, nil, nil)
	sc.Centroids = nil
	src := &readertest.Source{First: 3, Scans: []readertest.Scan{sc}}

	var buf bytes.Buffer
	a := reader.NewAdapter(src, nil, logger.Text(&buf, slog.LevelWarn))
	s, err := a.Read(3)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if s.Peaks() != 0 || len(s.Intensity) != 0 || len(s.Noise) != 0 {
		t.Errorf("expected empty arrays, got %d peaks", s.Peaks())
	}
	if !strings.Contains(buf.String(), "scan=3") {
		t.Errorf("expected warning for scan 3, got: %s", buf.String())
	}
}

func TestAdapterMismatchedNoiseDropped(t *testing.T) {
	sc := readertest.Primary(0.1, []float64{1, 2}, []float64{3, 4}, []float64{5})
	src := &readertest.Source{First: 1, Scans: []readertest.Scan{sc}}
	s, err := reader.NewAdapter(src, nil, logger.Discard()).Read(1)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if err := s.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
	if len(s.Noise) != 0 {
		t.Errorf("noise kept with length %d", len(s.Noise))
	}
}

func TestAdapterUnparsableTrailerKeepsDefault(t *testing.T) {
	src := &readertest.Source{
		First:  1,
		Labels: thermoLabels,
		Scans: []readertest.Scan{
			readertest.Fragment(1.0, 400, nil, nil, map[string]string{"Charge State:": "n/a"}),
		},
	}
	s, err := reader.NewAdapter(src, nil, logger.Discard()).Read(1)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if s.PrecursorCharge != 0 {
		t.Errorf("PrecursorCharge = %d, want 0", s.PrecursorCharge)
	}
}

func TestAdapterReadOutOfRange(t *testing.T) {
	src := &readertest.Source{First: 1, Scans: []readertest.Scan{readertest.Primary(0, nil, nil, nil)}}
	if _, err := reader.NewAdapter(src, nil, logger.Discard()).Read(9); err == nil {
		t.Error("expected error for unknown scan")
	}
}

func TestOpenUnsupported(t *testing.T) {
	_, err := reader.Open("run.xyz")
	if !errors.Is(err, reader.ErrUnsupportedInput) {
		t.Errorf("Open() error = %v, want ErrUnsupportedInput", err)
	}
}

func TestRegisterOpen(t *testing.T) {
	fake := &readertest.Source{First: 1}
	reader.Register(".FAKE", func(path string) (reader.Source, error) { return fake, nil })

	src, err := reader.Open("/data/run.fake")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if src != fake {
		t.Error("Open() returned a different source")
	}

	found := false
	for _, ext := range reader.Extensions() {
		if ext == ".fake" {
			found = true
		}
	}
	if !found {
		t.Errorf("Extensions() = %v, missing .fake", reader.Extensions())
	}
}
