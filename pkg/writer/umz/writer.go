package umz

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/ChrisMcGann/rawexport/pkg/core"
)

// Writer streams scans into a container. The region table is written as zero
// placeholders and patched by Finalize with a single seek back.
type Writer struct {
	ws      io.WriteSeeker
	bw      *bufio.Writer
	pos     uint64
	hdr     Header
	scratch []byte
	done    bool
}

// NewWriter writes the fixed header and the head text to ws, which must be
// positioned at offset 0.
func NewWriter(ws io.WriteSeeker, head string) (*Writer, error) {
	if ws == nil {
		return nil, errors.New("umz: nil writer")
	}

	w := &Writer{
		ws:      ws,
		bw:      bufio.NewWriterSize(ws, 1<<20),
		scratch: make([]byte, 0, 4096),
	}

	w.write(magic[:])
	w.write(binary.LittleEndian.AppendUint64(nil, Version))
	w.write(make([]byte, tableSize))

	w.hdr.Head.Offset = w.pos
	w.write([]byte(head))
	w.hdr.Head.Length = w.pos - w.hdr.Head.Offset
	w.hdr.Data.Offset = w.pos

	if err := w.err(); err != nil {
		return nil, fmt.Errorf("failed to write header: %w", err)
	}
	return w, nil
}

func (w *Writer) write(p []byte) {
	n, _ := w.bw.Write(p)
	w.pos += uint64(n)
}

func (w *Writer) err() error {
	_, err := w.bw.Write(nil)
	return err
}

func (w *Writer) writeFloats(values []float64) {
	for len(values) > 0 {
		n := min(len(values), cap(w.scratch)/8)
		buf := w.scratch[:0]
		for _, v := range values[:n] {
			buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(v))
		}
		w.write(buf)
		values = values[n:]
	}
}

// WriteScan appends the scan's peak arrays to the data block and records their
// positions in s.IndexMZ, s.IndexIntensity and s.IndexNoise.
func (w *Writer) WriteScan(s *core.Scan) error {
	if w.done {
		return errors.New("umz: write after finalize")
	}

	s.IndexMZ = w.pos
	w.writeFloats(s.Mass)
	s.IndexIntensity = w.pos
	w.writeFloats(s.Intensity)
	s.IndexNoise = w.pos
	w.writeFloats(s.Noise)

	if err := w.err(); err != nil {
		return fmt.Errorf("failed to write %s: %w", s.Name(), err)
	}
	return nil
}

// Finalize writes the metadata block and patches the region table.
func (w *Writer) Finalize(meta []byte) error {
	if w.done {
		return errors.New("umz: already finalized")
	}
	w.done = true

	w.hdr.Data.Length = w.pos - w.hdr.Data.Offset
	w.hdr.Meta.Offset = w.pos
	w.write(meta)
	w.hdr.Meta.Length = w.pos - w.hdr.Meta.Offset

	if err := w.bw.Flush(); err != nil {
		return fmt.Errorf("failed to write metadata: %w", err)
	}

	if _, err := w.ws.Seek(tableOffset, io.SeekStart); err != nil {
		return fmt.Errorf("failed to seek to region table: %w", err)
	}
	if _, err := w.ws.Write(encodeTable(w.hdr)); err != nil {
		return fmt.Errorf("failed to write region table: %w", err)
	}
	if _, err := w.ws.Seek(int64(w.pos), io.SeekStart); err != nil {
		return fmt.Errorf("failed to seek to end: %w", err)
	}
	return nil
}

// Header returns the regions written so far. It is complete after Finalize.
func (w *Writer) Header() Header {
	return w.hdr
}
