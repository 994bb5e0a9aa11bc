// Package core provides trailer field label resolution
package core

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Field identifies a semantic trailer value the exporter knows how to use.
type Field int

const (
	FieldDescription Field = iota
	FieldInjectionTime
	FieldOvFtT
	FieldMasterScan
	FieldIsolationWidth
	FieldIsolationOffset
	FieldMonoisotopicMZ
	FieldChargeState

	numFields
)

var fieldNames = [numFields]string{
	FieldDescription:     "description",
	FieldInjectionTime:   "injection_time",
	FieldOvFtT:           "ovftt",
	FieldMasterScan:      "master_scan",
	FieldIsolationWidth:  "isolation_width",
	FieldIsolationOffset: "isolation_offset",
	FieldMonoisotopicMZ:  "monoisotopic_mz",
	FieldChargeState:     "charge_state",
}

func (f Field) String() string {
	if f < 0 || f >= numFields {
		return "unknown"
	}
	return fieldNames[f]
}

// ParseField maps a field name as written in label CSV files to a Field.
func ParseField(name string) (Field, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for i, n := range fieldNames {
		if n == name {
			return Field(i), true
		}
	}
	return 0, false
}

// LabelSet stores which trailer labels bind to which semantic field.
type LabelSet struct {
	labels map[string]Field // label -> field
}

// NewLabelSet creates an empty label set
func NewLabelSet() *LabelSet {
	return &LabelSet{
		labels: make(map[string]Field),
	}
}

// DefaultLabelSet returns the labels written by Thermo instruments.
func DefaultLabelSet() *LabelSet {
	set := NewLabelSet()
	set.Add("Scan Description:", FieldDescription)
	set.Add("Ion Injection Time (ms):", FieldInjectionTime)
	set.Add("RawOvFtT:", FieldOvFtT)
	set.Add("Master Scan Number:", FieldMasterScan)
	set.Add("MS2 Isolation Width:", FieldIsolationWidth)
	set.Add("MS2 Isolation Offset:", FieldIsolationOffset)
	set.Add("Monoisotopic M/Z:", FieldMonoisotopicMZ)
	set.Add("Charge State:", FieldChargeState)
	return set
}

// Add binds a label to a field. Labels are matched exactly, including the
// trailing colon Thermo writes.
func (s *LabelSet) Add(label string, f Field) {
	s.labels[label] = f
}

// Field returns the field bound to a label.
func (s *LabelSet) Field(label string) (Field, bool) {
	f, ok := s.labels[label]
	return f, ok
}

// Len returns the number of bound labels.
func (s *LabelSet) Len() int {
	return len(s.labels)
}

// LoadFromCSV adds label aliases from a CSV file (format: field,label).
// Labels may contain commas; everything after the first comma is the label.
func (s *LabelSet) LoadFromCSV(r io.Reader) error {
	scanner := bufio.NewScanner(r)

	// Skip header line
	scanner.Scan()

	lineNum := 1
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		name, label, ok := strings.Cut(line, ",")
		if !ok {
			return fmt.Errorf("line %d: invalid format, expected 'field,label'", lineNum)
		}

		f, ok := ParseField(name)
		if !ok {
			return fmt.Errorf("line %d: unknown field '%s'", lineNum, strings.TrimSpace(name))
		}
		label = strings.TrimSpace(label)
		if label == "" {
			return fmt.Errorf("line %d: empty label", lineNum)
		}
		s.Add(label, f)
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading CSV: %w", err)
	}

	return nil
}

// FieldIndex maps each semantic field to its position in a reader's trailer
// catalog, or -1 when the catalog has no matching label.
type FieldIndex struct {
	pos [numFields]int
}

// ResolveFields scans a trailer label catalog once. Labels not in the set are
// ignored; when two labels resolve to the same field the later one wins.
func ResolveFields(labels []string, set *LabelSet) FieldIndex {
	if set == nil {
		set = DefaultLabelSet()
	}

	var idx FieldIndex
	for i := range idx.pos {
		idx.pos[i] = -1
	}
	for i, label := range labels {
		if f, ok := set.Field(label); ok {
			idx.pos[f] = i
		}
	}
	return idx
}

// Lookup returns the catalog position of f.
func (x FieldIndex) Lookup(f Field) (int, bool) {
	if f < 0 || f >= numFields {
		return -1, false
	}
	p := x.pos[f]
	return p, p >= 0
}

// Has reports whether f was found in the catalog.
func (x FieldIndex) Has(f Field) bool {
	_, ok := x.Lookup(f)
	return ok
}

// Missing lists the fields absent from the catalog.
func (x FieldIndex) Missing() []Field {
	var out []Field
	for f := Field(0); f < numFields; f++ {
		if !x.Has(f) {
			out = append(out, f)
		}
	}
	return out
}
