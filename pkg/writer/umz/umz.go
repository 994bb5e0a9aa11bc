// Package umz writes and reads the indexed binary scan container (.umz).
//
// Layout (all integers little-endian uint64):
//
//	[0..8)    magic "UMZ\0\0\0\0\0"
//	[8..16)   version
//	[16..64)  head, meta and data region (offset, length) pairs
//	head      free text run summary
//	data      per scan: mass, intensity, noise float64 arrays back to back
//	meta      scan list with offset columns
package umz

import (
	"encoding/binary"
	"errors"
)

const (
	// Version is the only container version written and accepted.
	Version uint64 = 0

	headerSize  = 64
	tableOffset = 16
	tableSize   = headerSize - tableOffset
)

var magic = [8]byte{'U', 'M', 'Z', 0, 0, 0, 0, 0}

var (
	ErrInvalidMagic       = errors.New("invalid UMZ magic")
	ErrUnsupportedVersion = errors.New("unsupported UMZ version")
	ErrCorruptFile        = errors.New("corrupt UMZ file")
)

// Region is an (offset, length) pair from the region table.
type Region struct {
	Offset uint64
	Length uint64
}

// End returns the offset just past the region.
func (r Region) End() uint64 {
	return r.Offset + r.Length
}

// Header is the fixed 64 byte file header.
type Header struct {
	Version uint64
	Head    Region
	Meta    Region
	Data    Region
}

func encodeTable(h Header) []byte {
	buf := make([]byte, 0, tableSize)
	for _, r := range []Region{h.Head, h.Meta, h.Data} {
		buf = binary.LittleEndian.AppendUint64(buf, r.Offset)
		buf = binary.LittleEndian.AppendUint64(buf, r.Length)
	}
	return buf
}

func decodeHeader(b []byte) (Header, bool) {
	if len(b) < headerSize {
		return Header{}, false
	}
	u := func(off int) uint64 { return binary.LittleEndian.Uint64(b[off:]) }
	return Header{
		Version: u(8),
		Head:    Region{Offset: u(16), Length: u(24)},
		Meta:    Region{Offset: u(32), Length: u(40)},
		Data:    Region{Offset: u(48), Length: u(56)},
	}, true
}
