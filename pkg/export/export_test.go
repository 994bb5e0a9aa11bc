package export_test

import (
	"bytes"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/ChrisMcGann/rawexport/internal/logger"
	"github.com/ChrisMcGann/rawexport/pkg/core"
	"github.com/ChrisMcGann/rawexport/pkg/export"
	"github.com/ChrisMcGann/rawexport/pkg/filter"
	"github.com/ChrisMcGann/rawexport/pkg/reader/readertest"
	"github.com/ChrisMcGann/rawexport/pkg/writer/atomic"
	"github.com/ChrisMcGann/rawexport/pkg/writer/mes"
	"github.com/ChrisMcGann/rawexport/pkg/writer/scanlist"
	"github.com/ChrisMcGann/rawexport/pkg/writer/umz"
)

// testSource serves primary 10, fragments 11 and 12, a gap at 13, primary 14
// and fragment 15.
func testSource(labels []string) *readertest.Source {
	src := &readertest.Source{
		First:      10,
		Labels:     labels,
		Instrument: "Orbitrap Test",
		Runtime:    2.5,
		Scans: []readertest.Scan{
			readertest.Primary(0.5, []float64{100.5, 200.25}, []float64{10, 30}, []float64{1, 2}),
			readertest.Fragment(0.51, 500.25, []float64{150.5}, []float64{42},
				map[string]string{"Charge State:": "2", "Monoisotopic M/Z:": "500"}),
			readertest.Fragment(0.52, 600.5, nil, nil, nil),
			readertest.Gap(),
			readertest.Primary(0.6, []float64{300}, []float64{5}, nil),
			readertest.Fragment(0.61, 300.125, []float64{120}, []float64{7},
				map[string]string{"Charge State:": "1"}),
		},
	}
	src.Scans[2].Centroids = nil
	return src
}

var defaultLabels = []string{"Charge State:", "Monoisotopic M/Z:"}

func runExport(t *testing.T, src *readertest.Source, opts export.Options, format export.Format) *export.Summary {
	t.Helper()
	if opts.OutputDir == "" {
		opts.OutputDir = filepath.Join(t.TempDir(), "out")
	}
	sum, err := export.New(src, opts, logger.Discard()).Run("/data/sample.raw", format)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	for _, p := range sum.Outputs {
		if _, err := os.Stat(atomic.TempPath(p)); !errors.Is(err, os.ErrNotExist) {
			t.Errorf("temporary file left for %s", p)
		}
	}
	return sum
}

func TestRunUMZ(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "out")
	sum := runExport(t, testSource(defaultLabels), export.Options{OutputDir: dir}, export.FormatUMZ)

	wantOutputs := []string{
		filepath.Join(dir, "sample.umz"),
		filepath.Join(dir, "sample.txt"),
		filepath.Join(dir, "sample.csv"),
	}
	if diff := cmp.Diff(wantOutputs, sum.Outputs); diff != "" {
		t.Errorf("Outputs mismatch (-want +got):\n%s", diff)
	}
	if sum.Scans != 5 || sum.Skipped != 1 || sum.EmptyScans != 1 {
		t.Errorf("summary = %+v", sum)
	}
	if sum.Levels[core.LevelPrimary] != 2 || sum.Levels[core.LevelFragment] != 3 {
		t.Errorf("Levels = %v", sum.Levels)
	}
	if sum.ExportID == "" {
		t.Error("ExportID is empty")
	}

	head, err := os.ReadFile(wantOutputs[1])
	if err != nil {
		t.Fatal(err)
	}
	if string(head) != "Instrument: Orbitrap Test\nDuration: 150\n" {
		t.Errorf(".txt = %q", head)
	}

	f, err := umz.Open(wantOutputs[0])
	if err != nil {
		t.Fatalf("umz.Open() error = %v", err)
	}
	defer f.Close()

	if f.Head() != string(head) {
		t.Errorf("container head = %q", f.Head())
	}
	if err := f.Verify(); err != nil {
		t.Errorf("Verify() error = %v", err)
	}

	csvData, err := os.ReadFile(wantOutputs[2])
	if err != nil {
		t.Fatal(err)
	}
	entries, withOffsets, err := scanlist.Parse(bytes.NewReader(csvData))
	if err != nil {
		t.Fatal(err)
	}
	if !withOffsets {
		t.Error(".csv written without offset columns")
	}

	containerEntries, err := f.Entries()
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(entries, containerEntries); diff != "" {
		t.Errorf(".csv and container scan list differ (-csv +container):\n%s", diff)
	}

	precursors := map[int]int{}
	for _, e := range entries {
		precursors[e.Scan.ID] = e.Scan.PrecursorScan
	}
	wantPrecursors := map[int]int{10: 0, 11: 10, 12: 10, 14: 0, 15: 14}
	if diff := cmp.Diff(wantPrecursors, precursors); diff != "" {
		t.Errorf("precursor links mismatch (-want +got):\n%s", diff)
	}

	mass, _, _, err := f.Peaks(entries[1])
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]float64{150.5}, mass); diff != "" {
		t.Errorf("scan 11 mass mismatch (-want +got):\n%s", diff)
	}
	// Fragment 12 had no centroid data
	if entries[2].Peaks() != 0 {
		t.Errorf("scan 12 peaks = %d, want 0", entries[2].Peaks())
	}
}

func TestRunIsIdempotent(t *testing.T) {
	for _, format := range []export.Format{export.FormatUMZ, export.FormatMSX, export.FormatMES} {
		t.Run(format.String(), func(t *testing.T) {
			dir := t.TempDir()
			first := runExport(t, testSource(defaultLabels), export.Options{OutputDir: dir}, format)

			snapshot := map[string][]byte{}
			for _, p := range first.Outputs {
				data, err := os.ReadFile(p)
				if err != nil {
					t.Fatal(err)
				}
				snapshot[p] = data
			}

			second := runExport(t, testSource(defaultLabels), export.Options{OutputDir: dir}, format)
			for _, p := range second.Outputs {
				data, err := os.ReadFile(p)
				if err != nil {
					t.Fatal(err)
				}
				if !bytes.Equal(snapshot[p], data) {
					t.Errorf("%s differs between runs", filepath.Base(p))
				}
			}
		})
	}
}

func TestRunMSX(t *testing.T) {
	dir := t.TempDir()
	sum := runExport(t, testSource(defaultLabels), export.Options{OutputDir: dir}, export.FormatMSX)

	if len(sum.Outputs) != 4 {
		t.Fatalf("Outputs = %v", sum.Outputs)
	}
	ms1, err := os.ReadFile(filepath.Join(dir, "sample.ms1"))
	if err != nil {
		t.Fatal(err)
	}
	ms2, err := os.ReadFile(filepath.Join(dir, "sample.ms2"))
	if err != nil {
		t.Fatal(err)
	}

	if got := strings.Count(string(ms1), "S\t"); got != 2 {
		t.Errorf(".ms1 has %d scans, want 2", got)
	}
	if got := strings.Count(string(ms2), "\nS\t") + 1; got != 3 {
		t.Errorf(".ms2 has %d scans, want 3", got)
	}
	for _, want := range []string{
		"S\t11\t11\t500.25000000\n",
		"I\tPrecursorScan\t10\n",
		"Z\t2\t998.99272353\n",
		"S\t15\t15\t300.12500000\n",
		"I\tPrecursorScan\t14\n",
	} {
		if !strings.Contains(string(ms2), want) {
			t.Errorf(".ms2 missing %q", want)
		}
	}

	csvData, err := os.ReadFile(filepath.Join(dir, "sample.csv"))
	if err != nil {
		t.Fatal(err)
	}
	if _, withOffsets, err := scanlist.Parse(bytes.NewReader(csvData)); err != nil || withOffsets {
		t.Errorf("scan list withOffsets = %v, err = %v; want no offsets", withOffsets, err)
	}
}

func TestRunMES(t *testing.T) {
	dir := t.TempDir()
	runExport(t, testSource(defaultLabels), export.Options{OutputDir: dir}, export.FormatMES)

	f, err := os.Open(filepath.Join(dir, "sample.mes"))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	st, err := mes.Read(f)
	if err != nil {
		t.Fatalf("mes.Read() error = %v", err)
	}
	if len(st.Mass) != 5 || len(st.Intensity) != 5 {
		t.Fatalf("store holds %d/%d arrays, want 5", len(st.Mass), len(st.Intensity))
	}
	if diff := cmp.Diff([]float64{100.5, 200.25}, st.Mass[0]); diff != "" {
		t.Errorf("first mass array mismatch (-want +got):\n%s", diff)
	}

	csvData, err := os.ReadFile(filepath.Join(dir, "sample.csv"))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(csvData, st.List) {
		t.Error("embedded scan list differs from .csv")
	}
}

func TestRunDB(t *testing.T) {
	dir := t.TempDir()
	runExport(t, testSource(defaultLabels), export.Options{OutputDir: dir}, export.FormatDB)

	db, err := sql.Open("sqlite3", filepath.Join(dir, "sample.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM ScanTable`).Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 5 {
		t.Errorf("ScanTable rows = %d, want 5", n)
	}
	var precursor int
	if err := db.QueryRow(`SELECT PrecursorScan FROM ScanTable WHERE ScanId = 12`).Scan(&precursor); err != nil {
		t.Fatal(err)
	}
	if precursor != 10 {
		t.Errorf("scan 12 PrecursorScan = %d, want 10", precursor)
	}
}

func TestExplicitMasterScan(t *testing.T) {
	labels := append([]string{"Master Scan Number:"}, defaultLabels...)
	src := testSource(labels)
	src.Scans[1].Trailer["Master Scan Number:"] = "7"
	// Scan 12 carries no value and keeps the zero default

	dir := t.TempDir()
	runExport(t, src, export.Options{OutputDir: dir}, export.FormatMSX)

	ms2, err := os.ReadFile(filepath.Join(dir, "sample.ms2"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(ms2), "S\t11\t11\t500.25000000\n") ||
		!strings.Contains(string(ms2), "I\tPrecursorScan\t7\n") {
		t.Errorf("explicit master scan not used:\n%s", ms2)
	}
	if strings.Contains(string(ms2), "I\tPrecursorScan\t10\n") {
		t.Error("explicit master scan was overwritten by the fallback link")
	}
}

func TestFilteredRangeKeepsLinks(t *testing.T) {
	dir := t.TempDir()
	opts := export.Options{
		OutputDir: dir,
		Filter: filter.Config{
			MinScan: 11,
			MaxScan: 12,
			Levels:  []core.Level{core.LevelFragment},
		},
	}
	sum := runExport(t, testSource(defaultLabels), opts, export.FormatUMZ)

	if sum.Scans != 2 {
		t.Errorf("Scans = %d, want 2", sum.Scans)
	}

	f, err := umz.Open(filepath.Join(dir, "sample.umz"))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	entries, err := f.Entries()
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if e.Scan.PrecursorScan != 10 {
			t.Errorf("scan %d PrecursorScan = %d, want 10", e.Scan.ID, e.Scan.PrecursorScan)
		}
	}
	if err := f.Verify(); err != nil {
		t.Errorf("Verify() error = %v", err)
	}
}

func TestHeadVendorPrefix(t *testing.T) {
	tests := []struct {
		vendor string
		want   string
	}{
		{"", "Instrument: Orbitrap Test\nDuration: 150\n"},
		{"Thermo", "Instrument: Thermo Orbitrap Test\nDuration: 150\n"},
	}
	for _, tt := range tests {
		src := testSource(defaultLabels)
		src.VendorName = tt.vendor
		got := export.New(src, export.Options{}, logger.Discard()).Head()
		if got != tt.want {
			t.Errorf("Head() with vendor %q = %q, want %q", tt.vendor, got, tt.want)
		}
	}
}

func TestRangeBeyondFile(t *testing.T) {
	tests := []struct {
		name      string
		cfg       filter.Config
		wantScans int
		maxEvents int
	}{
		{"start past last id", filter.Config{MinScan: 20_000_000}, 0, 0},
		{"start past last id with end", filter.Config{MinScan: 20_000_000, MaxScan: 20_000_010}, 0, 0},
		{"start inside file", filter.Config{MinScan: 12}, 3, 6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := testSource(defaultLabels)
			sum := runExport(t, src, export.Options{Filter: tt.cfg}, export.FormatUMZ)
			if sum.Scans != tt.wantScans {
				t.Errorf("Scans = %d, want %d", sum.Scans, tt.wantScans)
			}
			if src.EventCalls > tt.maxEvents {
				t.Errorf("ScanEvent calls = %d, want at most %d", src.EventCalls, tt.maxEvents)
			}
		})
	}
}

func TestUnsupportedFormat(t *testing.T) {
	if _, err := export.ParseFormat("mzxml"); !errors.Is(err, export.ErrUnsupportedFormat) {
		t.Errorf("ParseFormat() error = %v, want ErrUnsupportedFormat", err)
	}

	dir := filepath.Join(t.TempDir(), "out")
	_, err := export.New(testSource(defaultLabels), export.Options{OutputDir: dir}, logger.Discard()).
		Run("sample.raw", export.Format(42))
	if !errors.Is(err, export.ErrUnsupportedFormat) {
		t.Errorf("Run() error = %v, want ErrUnsupportedFormat", err)
	}
	if _, err := os.Stat(dir); !errors.Is(err, os.ErrNotExist) {
		t.Error("output directory created for unsupported format")
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		token string
		want  export.Format
	}{
		{"umz", export.FormatUMZ},
		{"MSX", export.FormatMSX},
		{" mes ", export.FormatMES},
		{"db", export.FormatDB},
	}
	for _, tt := range tests {
		got, err := export.ParseFormat(tt.token)
		if err != nil {
			t.Errorf("ParseFormat(%q) error = %v", tt.token, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseFormat(%q) = %v, want %v", tt.token, got, tt.want)
		}
	}
}
