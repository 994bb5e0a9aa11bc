package mzml

import (
	"bufio"
	"bytes"
	"compress/zlib"
	"encoding/base64"
	"encoding/binary"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"golang.org/x/net/html/charset"

	"github.com/ChrisMcGann/rawexport/pkg/core"
	"github.com/ChrisMcGann/rawexport/pkg/reader"
)

// Trailer labels synthesized from cvParams. They match core.DefaultLabelSet.
const (
	labelInjectionTime   = "Ion Injection Time (ms):"
	labelMonoisotopicMZ  = "Monoisotopic M/Z:"
	labelChargeState     = "Charge State:"
	labelIsolationWidth  = "MS2 Isolation Width:"
	labelIsolationOffset = "MS2 Isolation Offset:"
	labelMasterScan      = "Master Scan Number:"
)

var (
	// ErrNoMzML is returned when the document holds no mzML element.
	ErrNoMzML = errors.New("mzml: no mzML element found")
	// ErrUnsupportedCompression is returned for numpress encoded arrays.
	ErrUnsupportedCompression = errors.New("mzml: unsupported binary compression")
)

func init() {
	reader.Register(".mzml", func(path string) (reader.Source, error) {
		return Open(path)
	})
}

// entry is one spectrum with its trailer values already extracted.
type entry struct {
	spec    *spectrum
	trailer map[string]string
}

// Source serves scans from a decoded mzML document.
type Source struct {
	doc        document
	byScan     map[int]*entry
	first      int
	last       int
	labels     []string
	instrument string
	vendor     string
	runtime    float64
	analyzers  map[string]string // instrument configuration id -> analyzer tag
}

var (
	_ reader.Source = (*Source)(nil)
	_ reader.Vendor = (*Source)(nil)
)

// Open reads and indexes an mzML (or indexedmzML) file.
func Open(path string) (*Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return Read(bufio.NewReader(f))
}

// Read decodes an mzML document from r.
func Read(r io.Reader) (*Source, error) {
	d := xml.NewDecoder(r)
	d.CharsetReader = charset.NewReaderLabel

	var doc document
	found := false

	// Skip over indexedmzML and everything outside the mzML element
	for !found {
		t, err := d.Token()
		if err != nil {
			if err == io.EOF {
				return nil, ErrNoMzML
			}
			return nil, err
		}
		if se, ok := t.(xml.StartElement); ok && se.Name.Local == "mzML" {
			if err := d.DecodeElement(&doc, &se); err != nil {
				return nil, err
			}
			found = true
		}
	}

	s := &Source{doc: doc}
	if err := s.index(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Source) index() error {
	specs := s.doc.Run.SpectrumList.Spectrum
	s.byScan = make(map[int]*entry, len(specs))
	s.analyzers = s.analyzerTags()
	s.instrument = s.instrumentName()
	s.vendor = s.vendorName()

	seen := make(map[string]bool)
	addLabel := func(label string) {
		if !seen[label] {
			seen[label] = true
			s.labels = append(s.labels, label)
		}
	}

	for i := range specs {
		spec := &specs[i]
		num := scanNumber(spec.ID, i)
		if _, dup := s.byScan[num]; dup {
			return fmt.Errorf("mzml: duplicate scan number %d (spectrum %q)", num, spec.ID)
		}

		e := &entry{spec: spec, trailer: trailerValues(spec)}
		s.byScan[num] = e

		// Synthesized labels first in a fixed order, then userParams as seen
		for _, label := range []string{
			labelInjectionTime, labelMonoisotopicMZ, labelChargeState,
			labelIsolationWidth, labelIsolationOffset, labelMasterScan,
		} {
			if _, ok := e.trailer[label]; ok {
				addLabel(label)
			}
		}
		for _, up := range userParams(spec) {
			addLabel(trailerLabel(up.Name))
		}

		if i == 0 || num < s.first {
			s.first = num
		}
		if i == 0 || num > s.last {
			s.last = num
		}
		if rt, ok := startTime(spec); ok && rt > s.runtime {
			s.runtime = rt
		}
	}

	if len(specs) == 0 {
		s.first, s.last = 1, 0
	}
	return nil
}

// scanNumber extracts the native scan number from ids like
// "controllerType=0 controllerNumber=1 scan=42"; otherwise index+1.
func scanNumber(id string, index int) int {
	for _, field := range strings.Fields(id) {
		if v, ok := strings.CutPrefix(field, scanNumberIDPrefix); ok {
			if n, err := strconv.Atoi(v); err == nil {
				return n
			}
		}
	}
	return index + 1
}

func trailerLabel(name string) string {
	return strings.TrimPrefix(name, thermoTrailerPrefix)
}

func userParams(spec *spectrum) []userParam {
	params := append([]userParam{}, spec.UserPar...)
	for _, sc := range spec.ScanList.Scans {
		params = append(params, sc.UserPar...)
	}
	return params
}

// trailerValues collects the synthesized trailer values of a spectrum.
// userParams are applied last and win over synthesized values.
func trailerValues(spec *spectrum) map[string]string {
	values := make(map[string]string)

	for _, sc := range spec.ScanList.Scans {
		if p, ok := findCV(sc.CvPar, cvInjectionTime); ok {
			values[labelInjectionTime] = p.Value
		}
	}

	if len(spec.PrecursorList.Precursors) > 0 {
		pre := spec.PrecursorList.Precursors[0]
		if pre.SpectrumRef != "" {
			values[labelMasterScan] = strconv.Itoa(scanNumber(pre.SpectrumRef, -1))
		}
		for _, ion := range pre.SelectedIons {
			if p, ok := findCV(ion.CvPar, cvSelectedIonMZ); ok {
				values[labelMonoisotopicMZ] = p.Value
			}
			if p, ok := findCV(ion.CvPar, cvChargeState); ok {
				values[labelChargeState] = p.Value
			}
		}
		lower, okLower := cvFloat(pre.IsolationWindow.CvPar, cvIsolationLower)
		upper, okUpper := cvFloat(pre.IsolationWindow.CvPar, cvIsolationUpper)
		if okLower && okUpper {
			values[labelIsolationWidth] = core.FormatShortest(lower + upper)
			values[labelIsolationOffset] = core.FormatShortest((upper - lower) / 2)
		}
	}

	for _, up := range userParams(spec) {
		values[trailerLabel(up.Name)] = up.Value
	}
	return values
}

func cvFloat(params []cvParam, accession string) (float64, bool) {
	p, ok := findCV(params, accession)
	if !ok {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(p.Value), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// startTime returns the scan start time in minutes.
func startTime(spec *spectrum) (float64, bool) {
	for _, sc := range spec.ScanList.Scans {
		p, ok := findCV(sc.CvPar, cvScanStartTime)
		if !ok {
			continue
		}
		t, err := strconv.ParseFloat(p.Value, 64)
		if err != nil {
			return 0, false
		}
		if p.UnitAccession == unitSecond {
			t /= 60
		}
		return t, true
	}
	return 0, false
}

func (s *Source) analyzerTags() map[string]string {
	tags := make(map[string]string)
	for _, conf := range s.doc.InstrumentConfigurationList.Configs {
		for _, a := range conf.Analyzers {
			for _, p := range a.CvPar {
				switch {
				case ftmsAnalyzers[p.Accession]:
					tags[conf.ID] = core.AnalyzerFTMS
				case itmsAnalyzers[p.Accession]:
					tags[conf.ID] = core.AnalyzerITMS
				}
			}
		}
	}
	return tags
}

func (s *Source) instrumentName() string {
	groups := make(map[string][]cvParam)
	for _, g := range s.doc.ReferenceableParamGroupList.Groups {
		groups[g.ID] = g.CvPar
	}

	for _, conf := range s.doc.InstrumentConfigurationList.Configs {
		params := append([]cvParam{}, conf.CvPar...)
		for _, ref := range conf.GroupRefs {
			params = append(params, groups[ref.Ref]...)
		}
		for _, p := range params {
			if p.Accession != cvSerialNumber && p.Name != "" {
				return p.Name
			}
		}
	}
	return defaultInstrumentTag
}

// vendorName recognizes Thermo conversions by their source file format or
// native id format.
func (s *Source) vendorName() string {
	for _, f := range s.doc.FileDescription.SourceFiles {
		if hasCV(f.CvPar, cvThermoRawFormat) || hasCV(f.CvPar, cvThermoNativeID) {
			return thermoVendor
		}
	}
	return ""
}

func (s *Source) get(id int) (*entry, error) {
	if id < s.first || id > s.last {
		return nil, fmt.Errorf("mzml: scan %d outside range [%d, %d]", id, s.first, s.last)
	}
	e, ok := s.byScan[id]
	if !ok {
		return nil, fmt.Errorf("mzml: scan %d: %w", id, reader.ErrNoScan)
	}
	return e, nil
}

// ScanRange returns the lowest and highest scan number in the file.
func (s *Source) ScanRange() (int, int) {
	return s.first, s.last
}

// ScanStats returns the spectrum-level statistics of a scan.
func (s *Source) ScanStats(id int) (reader.Stats, error) {
	e, err := s.get(id)
	if err != nil {
		return reader.Stats{}, err
	}

	var st reader.Stats
	st.StartTime, _ = startTime(e.spec)
	st.TotalIonCurrent, _ = cvFloat(e.spec.CvPar, cvTotalIonCurrent)
	st.BasePeakIntensity, _ = cvFloat(e.spec.CvPar, cvBasePeakIntensity)
	st.BasePeakMass, _ = cvFloat(e.spec.CvPar, cvBasePeakMZ)
	for _, sc := range e.spec.ScanList.Scans {
		if p, ok := findCV(sc.CvPar, cvFilterString); ok {
			st.ScanType = p.Value
			break
		}
	}
	return st, nil
}

// ScanEvent classifies a scan.
func (s *Source) ScanEvent(id int) (reader.Event, error) {
	e, err := s.get(id)
	if err != nil {
		return reader.Event{}, err
	}

	ev := reader.Event{Level: core.LevelPrimary}
	if p, ok := findCV(e.spec.CvPar, cvMSLevel); ok {
		n, err := strconv.Atoi(p.Value)
		if err != nil {
			return reader.Event{}, fmt.Errorf("mzml: scan %d: invalid ms level '%s'", id, p.Value)
		}
		ev.Level = core.Level(n)
	}
	if hasCV(e.spec.CvPar, cvNegativeScan) {
		ev.Polarity = reader.PolarityNegative
	}

	confRef := s.doc.Run.DefaultInstrumentConfigurationRef
	if len(e.spec.ScanList.Scans) > 0 && e.spec.ScanList.Scans[0].InstrumentConfigurationRef != "" {
		confRef = e.spec.ScanList.Scans[0].InstrumentConfigurationRef
	}
	ev.Analyzer = s.analyzers[confRef]

	if len(e.spec.PrecursorList.Precursors) > 0 {
		pre := e.spec.PrecursorList.Precursors[0]
		if v, ok := cvFloat(pre.IsolationWindow.CvPar, cvIsolationTarget); ok {
			ev.ActivationCenter = v
		} else {
			for _, ion := range pre.SelectedIons {
				if v, ok := cvFloat(ion.CvPar, cvSelectedIonMZ); ok {
					ev.ActivationCenter = v
					break
				}
			}
		}
	}
	return ev, nil
}

// Centroids decodes the peak arrays of a centroid spectrum. Profile spectra
// and spectra lacking an m/z or intensity array yield nil.
func (s *Source) Centroids(id int) (*reader.Centroids, error) {
	e, err := s.get(id)
	if err != nil {
		return nil, err
	}
	if hasCV(e.spec.CvPar, cvProfileSpectrum) {
		return nil, nil
	}

	c := &reader.Centroids{}
	for i := range e.spec.BinaryDataArrayList.Arrays {
		arr := &e.spec.BinaryDataArrayList.Arrays[i]
		var dst *[]float64
		switch {
		case hasCV(arr.CvPar, cvMZArray):
			dst = &c.Mass
		case hasCV(arr.CvPar, cvIntensityArray):
			dst = &c.Intensity
		case isNoiseArray(arr):
			dst = &c.Noise
		default:
			continue
		}
		values, err := decodeArray(arr)
		if err != nil {
			return nil, fmt.Errorf("mzml: scan %d: %w", id, err)
		}
		*dst = values
	}

	if e.spec.DefaultArrayLength == 0 && len(e.spec.BinaryDataArrayList.Arrays) == 0 {
		return &reader.Centroids{Mass: []float64{}, Intensity: []float64{}}, nil
	}
	if c.Mass == nil || c.Intensity == nil {
		return nil, nil
	}
	return c, nil
}

func isNoiseArray(arr *binaryDataArray) bool {
	p, ok := findCV(arr.CvPar, cvNonStandardArray)
	return ok && strings.EqualFold(p.Value, noiseArrayName)
}

// decodeArray decodes a base64 binary array, optionally zlib compressed,
// holding 32 or 64 bit little-endian floats.
func decodeArray(arr *binaryDataArray) ([]float64, error) {
	bits64 := false
	compressed := false
	for _, p := range arr.CvPar {
		switch {
		case p.Accession == cv64BitFloat:
			bits64 = true
		case p.Accession == cv32BitFloat:
			bits64 = false
		case p.Accession == cvZlibCompression:
			compressed = true
		case numpressAccessions[p.Accession]:
			return nil, fmt.Errorf("%w (%s)", ErrUnsupportedCompression, p.Accession)
		}
	}

	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(arr.Binary))
	if err != nil {
		return nil, fmt.Errorf("invalid base64 data: %w", err)
	}
	if compressed && len(data) > 0 {
		z, err := zlib.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("invalid zlib data: %w", err)
		}
		defer z.Close()
		if data, err = io.ReadAll(z); err != nil {
			return nil, fmt.Errorf("invalid zlib data: %w", err)
		}
	}

	if bits64 {
		if len(data)%8 != 0 {
			return nil, fmt.Errorf("binary array length %d is not a multiple of 8", len(data))
		}
		out := make([]float64, len(data)/8)
		for i := range out {
			out[i] = math.Float64frombits(binary.LittleEndian.Uint64(data[i*8:]))
		}
		return out, nil
	}

	if len(data)%4 != 0 {
		return nil, fmt.Errorf("binary array length %d is not a multiple of 4", len(data))
	}
	out := make([]float64, len(data)/4)
	for i := range out {
		out[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:])))
	}
	return out, nil
}

// TrailerLabels returns the trailer catalog collected over all spectra.
func (s *Source) TrailerLabels() []string {
	return s.labels
}

// TrailerValue returns the value of the label at index for scan id, or an
// empty string when the scan does not carry it.
func (s *Source) TrailerValue(id, index int) (string, error) {
	e, err := s.get(id)
	if err != nil {
		return "", err
	}
	if index < 0 || index >= len(s.labels) {
		return "", fmt.Errorf("mzml: trailer index %d out of range", index)
	}
	v, ok := e.trailer[s.labels[index]]
	if !ok {
		return "", fmt.Errorf("mzml: scan %d has no value for '%s'", id, s.labels[index])
	}
	return v, nil
}

// InstrumentName returns the instrument model name.
func (s *Source) InstrumentName() string {
	return s.instrument
}

// Vendor returns the instrument vendor, or "" when the source file format
// does not name one.
func (s *Source) Vendor() string {
	return s.vendor
}

// ExpectedRuntime returns the latest scan start time in minutes.
func (s *Source) ExpectedRuntime() float64 {
	return s.runtime
}

// Close releases the decoded document.
func (s *Source) Close() error {
	s.byScan = nil
	s.doc = document{}
	return nil
}
