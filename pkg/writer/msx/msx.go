// Package msx writes the line-oriented .ms1/.ms2 interchange pair.
package msx

import (
	"bufio"
	"io"
	"strconv"

	"github.com/ChrisMcGann/rawexport/pkg/core"
)

// Writer writes primary scans to one stream and fragment scans to another.
// Scans of any other level are ignored.
type Writer struct {
	ms1 *bufio.Writer
	ms2 *bufio.Writer
}

// NewWriter creates a writer over the .ms1 and .ms2 streams.
func NewWriter(ms1, ms2 io.Writer) *Writer {
	return &Writer{
		ms1: bufio.NewWriter(ms1),
		ms2: bufio.NewWriter(ms2),
	}
}

// WriteScan appends one scan block to the stream matching its level.
func (w *Writer) WriteScan(s *core.Scan) error {
	switch s.Level {
	case core.LevelPrimary:
		return writeBlock(w.ms1, s)
	case core.LevelFragment:
		return writeBlock(w.ms2, s)
	}
	return nil
}

func writeBlock(w *bufio.Writer, s *core.Scan) error {
	id := strconv.Itoa(s.ID)
	fragment := s.Level == core.LevelFragment

	w.WriteString("S\t" + id + "\t" + id)
	if fragment {
		w.WriteString("\t" + core.FormatF8(s.ActivationCenter))
	}
	w.WriteString("\n")

	w.WriteString("I\tTotalIonCurrent\t" + core.FormatF4(s.TotalIonCurrent) + "\n")
	w.WriteString("I\tBasePeakIntensity\t" + core.FormatF4(s.BasePeakIntensity) + "\n")
	w.WriteString("I\tBasePeakMass\t" + core.FormatF8(s.BasePeakMass) + "\n")
	w.WriteString("I\tScanMode\t" + s.ScanMode + "\n")
	w.WriteString("I\tRetentionTime\t" + core.FormatF4(s.RetentionTime) + "\n")
	w.WriteString("I\tIonInjectionTime\t" + core.FormatF4(s.InjectionTime) + "\n")
	w.WriteString("I\tInstrumentType\t" + s.Analyzer + "\n")

	if fragment {
		w.WriteString("I\tPrecursorScan\t" + strconv.Itoa(s.PrecursorScan) + "\n")
		w.WriteString("I\tActivationCenter\t" + core.FormatF8(s.ActivationCenter) + "\n")
		w.WriteString("I\tIsolationWidth\t" + core.FormatF4(s.IsolationWidth) + "\n")

		z := s.PrecursorCharge
		if z < 0 {
			z = -z
		}
		w.WriteString("Z\t" + strconv.Itoa(z) + "\t" + core.FormatF8(core.ChargeMass(s.PrecursorMZ, s.PrecursorCharge)) + "\n")
	}

	for i := range s.Mass {
		w.WriteString(core.FormatF8(s.Mass[i]) + " " + core.FormatF4(s.Intensity[i]) + "\n")
	}

	// bufio keeps the first write error and reports it on every later call
	_, err := w.WriteString("")
	return err
}

// Flush writes any buffered data to both streams.
func (w *Writer) Flush() error {
	if err := w.ms1.Flush(); err != nil {
		return err
	}
	return w.ms2.Flush()
}
