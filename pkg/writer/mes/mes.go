// Package mes writes the legacy two-block peak store (.mes).
//
// The store holds every mass array, then every intensity array, each prefixed
// by its element count, followed by a run of newlines and the scan list.
package mes

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/ChrisMcGann/rawexport/pkg/core"
)

const (
	// Version is the store version written after the magic.
	Version uint32 = 0
	// PadLength is the number of newline bytes between the peak blocks and the
	// scan list.
	PadLength = 8192

	maxPeaks = 1 << 28
)

var magic = []byte("MES\n")

var ErrInvalidMagic = errors.New("invalid MES magic")

// Write writes scans followed by the scan list text. The whole scan sequence
// is needed up front because all mass arrays precede all intensity arrays.
func Write(w io.Writer, scans []*core.Scan, list []byte) error {
	bw := bufio.NewWriterSize(w, 1<<20)

	bw.Write(magic)
	bw.Write(binary.LittleEndian.AppendUint32(nil, Version))
	bw.Write(binary.LittleEndian.AppendUint64(nil, uint64(len(scans))))

	buf := make([]byte, 0, 8)
	writeBlock := func(values []float64) {
		bw.Write(binary.LittleEndian.AppendUint64(buf[:0], uint64(len(values))))
		for _, v := range values {
			bw.Write(binary.LittleEndian.AppendUint64(buf[:0], math.Float64bits(v)))
		}
	}
	for _, s := range scans {
		writeBlock(s.Mass)
	}
	for _, s := range scans {
		writeBlock(s.Intensity)
	}

	bw.Write(bytes.Repeat([]byte{'\n'}, PadLength))
	bw.Write(list)

	if err := bw.Flush(); err != nil {
		return fmt.Errorf("failed to write peak store: %w", err)
	}
	return nil
}

// Store is a decoded peak store.
type Store struct {
	Version   uint32
	Mass      [][]float64
	Intensity [][]float64
	List      []byte
}

// Read decodes a peak store.
func Read(r io.Reader) (*Store, error) {
	br := bufio.NewReader(r)

	head := make([]byte, len(magic))
	if _, err := io.ReadFull(br, head); err != nil {
		return nil, fmt.Errorf("failed to read magic: %w", err)
	}
	if !bytes.Equal(head, magic) {
		return nil, ErrInvalidMagic
	}

	st := &Store{}
	var count uint64
	if err := binary.Read(br, binary.LittleEndian, &st.Version); err != nil {
		return nil, fmt.Errorf("failed to read version: %w", err)
	}
	if err := binary.Read(br, binary.LittleEndian, &count); err != nil {
		return nil, fmt.Errorf("failed to read scan count: %w", err)
	}

	readBlocks := func(name string) ([][]float64, error) {
		out := make([][]float64, 0, min(count, 1<<16))
		for i := uint64(0); i < count; i++ {
			var n uint64
			if err := binary.Read(br, binary.LittleEndian, &n); err != nil {
				return nil, fmt.Errorf("failed to read %s length %d: %w", name, i, err)
			}
			if n > maxPeaks {
				return nil, fmt.Errorf("%s array %d: implausible length %d", name, i, n)
			}
			values := make([]float64, n)
			if err := binary.Read(br, binary.LittleEndian, values); err != nil {
				return nil, fmt.Errorf("failed to read %s array %d: %w", name, i, err)
			}
			out = append(out, values)
		}
		return out, nil
	}

	var err error
	if st.Mass, err = readBlocks("mass"); err != nil {
		return nil, err
	}
	if st.Intensity, err = readBlocks("intensity"); err != nil {
		return nil, err
	}

	pad := make([]byte, PadLength)
	if _, err := io.ReadFull(br, pad); err != nil {
		return nil, fmt.Errorf("failed to read padding: %w", err)
	}
	if st.List, err = io.ReadAll(br); err != nil {
		return nil, fmt.Errorf("failed to read scan list: %w", err)
	}
	return st, nil
}
