// Package scanlist writes and reads the per-scan metadata table (.csv).
package scanlist

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/ChrisMcGann/rawexport/pkg/core"
)

var baseColumns = []string{
	"ScanType", "ScanID", "ScanMode", "ScanDescription",
	"TotalIonCurrent", "BasePeakIntensity", "BasePeakMass",
	"RetentionTime", "IonInjectionTime", "InstrumentType",
	"PrecursorScan", "ActivationCenter", "IsolationWidth", "IsolationOffset",
	"PrecursorMZ", "PrecursorCharge", "RawOvFtT",
}

var offsetColumns = []string{
	"_MassPosition", "_MassLength",
	"_IntensityPosition", "_IntensityLength",
	"_NoisePosition", "_NoiseLength",
}

// Placeholders written in the tandem columns of primary scans.
var primaryTandem = []string{"0", "0.0", "0.0", "0.0", "0.0", "0"}

// Columns returns the header row. Offset columns are appended when the list is
// written alongside an indexed container.
func Columns(withOffsets bool) []string {
	cols := append([]string{}, baseColumns...)
	if withOffsets {
		cols = append(cols, offsetColumns...)
	}
	return cols
}

// Writer writes scan list rows.
type Writer struct {
	w           *csv.Writer
	withOffsets bool
}

// NewWriter creates a scan list writer.
func NewWriter(w io.Writer, withOffsets bool) *Writer {
	return &Writer{
		w:           csv.NewWriter(w),
		withOffsets: withOffsets,
	}
}

// WriteHeader writes the column names.
func (w *Writer) WriteHeader() error {
	return w.w.Write(Columns(w.withOffsets))
}

// WriteScan writes one row. Peak arrays are only used for their lengths.
func (w *Writer) WriteScan(s *core.Scan) error {
	row := make([]string, 0, len(baseColumns)+len(offsetColumns))
	row = append(row,
		s.Level.String(),
		strconv.Itoa(s.ID),
		s.ScanMode,
		s.Description,
		core.FormatF4(s.TotalIonCurrent),
		core.FormatF4(s.BasePeakIntensity),
		core.FormatF8(s.BasePeakMass),
		core.FormatF4(s.RetentionTime),
		core.FormatF4(s.InjectionTime),
		s.Analyzer,
	)

	if s.Level.Tandem() {
		row = append(row,
			strconv.Itoa(s.PrecursorScan),
			core.FormatF8(s.ActivationCenter),
			core.FormatF4(s.IsolationWidth),
			core.FormatF4(s.IsolationOffset),
			core.FormatF8(s.PrecursorMZ),
			strconv.Itoa(s.PrecursorCharge),
		)
	} else {
		row = append(row, primaryTandem...)
	}
	row = append(row, core.FormatF8(s.OvFtT))

	if w.withOffsets {
		row = append(row,
			strconv.FormatUint(s.IndexMZ, 10), byteLength(s.Mass),
			strconv.FormatUint(s.IndexIntensity, 10), byteLength(s.Intensity),
			strconv.FormatUint(s.IndexNoise, 10), byteLength(s.Noise),
		)
	}

	return w.w.Write(row)
}

func byteLength(values []float64) string {
	return strconv.Itoa(len(values) * 8)
}

// Flush writes buffered rows to the underlying writer.
func (w *Writer) Flush() error {
	w.w.Flush()
	return w.w.Error()
}

// Entry is one parsed scan list row. Scan holds every scalar column; its peak
// arrays are nil. The byte lengths are set only when the list has offsets.
type Entry struct {
	Scan            core.Scan
	MassLength      uint64
	IntensityLength uint64
	NoiseLength     uint64
}

// Peaks returns the number of peaks recorded for the entry.
func (e *Entry) Peaks() int {
	return int(e.MassLength / 8)
}

// HasNoise reports whether the entry carries a noise array.
func (e *Entry) HasNoise() bool {
	return e.NoiseLength > 0
}

// ErrMissingColumn is returned when a required column is absent from the header.
var ErrMissingColumn = errors.New("scanlist: missing column")

// Parse reads a scan list. The offset columns are optional; withOffsets
// reports whether they were present.
func Parse(r io.Reader) (entries []Entry, withOffsets bool, err error) {
	cr := csv.NewReader(r)
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err != nil {
		if err == io.EOF {
			return nil, false, fmt.Errorf("scanlist: empty input")
		}
		return nil, false, fmt.Errorf("scanlist: failed to read header: %w", err)
	}

	pos := make(map[string]int, len(header))
	for i, name := range header {
		pos[name] = i
	}
	for _, name := range baseColumns {
		if _, ok := pos[name]; !ok {
			return nil, false, fmt.Errorf("%w '%s'", ErrMissingColumn, name)
		}
	}
	withOffsets = true
	for _, name := range offsetColumns {
		if _, ok := pos[name]; !ok {
			withOffsets = false
		}
	}

	line := 1
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, false, fmt.Errorf("scanlist: line %d: %w", line, err)
		}

		p := rowParser{rec: rec, pos: pos}
		var e Entry
		s := &e.Scan
		s.Level = p.level("ScanType")
		s.ID = p.int("ScanID")
		s.ScanMode = p.str("ScanMode")
		s.Description = p.str("ScanDescription")
		s.TotalIonCurrent = p.float("TotalIonCurrent")
		s.BasePeakIntensity = p.float("BasePeakIntensity")
		s.BasePeakMass = p.float("BasePeakMass")
		s.RetentionTime = p.float("RetentionTime")
		s.InjectionTime = p.float("IonInjectionTime")
		s.Analyzer = p.str("InstrumentType")
		s.PrecursorScan = p.int("PrecursorScan")
		s.ActivationCenter = p.float("ActivationCenter")
		s.IsolationWidth = p.float("IsolationWidth")
		s.IsolationOffset = p.float("IsolationOffset")
		s.PrecursorMZ = p.float("PrecursorMZ")
		s.PrecursorCharge = p.int("PrecursorCharge")
		s.OvFtT = p.float("RawOvFtT")

		if withOffsets {
			s.IndexMZ = p.uint("_MassPosition")
			e.MassLength = p.uint("_MassLength")
			s.IndexIntensity = p.uint("_IntensityPosition")
			e.IntensityLength = p.uint("_IntensityLength")
			s.IndexNoise = p.uint("_NoisePosition")
			e.NoiseLength = p.uint("_NoiseLength")
		}

		if p.err != nil {
			return nil, false, fmt.Errorf("scanlist: line %d: %w", line, p.err)
		}
		entries = append(entries, e)
	}

	return entries, withOffsets, nil
}

// rowParser converts columns of one record, keeping the first error.
type rowParser struct {
	rec []string
	pos map[string]int
	err error
}

func (p *rowParser) str(col string) string {
	i := p.pos[col]
	if i >= len(p.rec) {
		if p.err == nil {
			p.err = fmt.Errorf("%w '%s'", ErrMissingColumn, col)
		}
		return ""
	}
	return p.rec[i]
}

func (p *rowParser) fail(col, v string, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("invalid %s '%s': %w", col, v, err)
	}
}

func (p *rowParser) int(col string) int {
	v := p.str(col)
	n, err := strconv.Atoi(v)
	if err != nil {
		p.fail(col, v, err)
	}
	return n
}

func (p *rowParser) uint(col string) uint64 {
	v := p.str(col)
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		p.fail(col, v, err)
	}
	return n
}

func (p *rowParser) float(col string) float64 {
	v := p.str(col)
	x, err := strconv.ParseFloat(v, 64)
	if err != nil {
		p.fail(col, v, err)
	}
	return x
}

func (p *rowParser) level(col string) core.Level {
	v := p.str(col)
	n, err := strconv.Atoi(strings.TrimPrefix(v, "MS"))
	if err != nil {
		if v == "MS?" {
			return core.LevelUnknown
		}
		p.fail(col, v, err)
	}
	return core.Level(n)
}
