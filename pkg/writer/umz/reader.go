package umz

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"

	"golang.org/x/sys/unix"

	"github.com/ChrisMcGann/rawexport/pkg/writer/scanlist"
)

// File is an opened container.
type File struct {
	data    []byte
	hdr     Header
	mmapped bool
}

// Open opens a container and validates its header. The data is memory-mapped
// when the platform allows it and read into memory otherwise. Close releases
// the mapping.
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}
	size, err := containerSize(fi.Size())
	if err != nil {
		return nil, err
	}

	data, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return OpenReaderAt(f, fi.Size())
	}
	file, err := parseFileData(data, true)
	if err != nil {
		unix.Munmap(data)
		return nil, err
	}
	return file, nil
}

// OpenReaderAt reads a whole container of the given size from r.
func OpenReaderAt(r io.ReaderAt, size int64) (*File, error) {
	n, err := containerSize(size)
	if err != nil {
		return nil, err
	}
	data := make([]byte, n)
	if _, err := io.ReadFull(io.NewSectionReader(r, 0, size), data); err != nil {
		return nil, fmt.Errorf("failed to read container: %w", err)
	}
	return parseFileData(data, false)
}

// containerSize checks that a file of size bytes can hold a header and be
// addressed as one byte slice.
func containerSize(size int64) (int, error) {
	if size < headerSize {
		return 0, fmt.Errorf("%w: file shorter than header", ErrCorruptFile)
	}
	if uint64(size) > math.MaxInt {
		return 0, fmt.Errorf("%w: file too large (%d bytes)", ErrCorruptFile, size)
	}
	return int(size), nil
}

func parseFileData(data []byte, mmapped bool) (*File, error) {
	if len(data) < headerSize {
		return nil, fmt.Errorf("%w: file shorter than header", ErrCorruptFile)
	}
	if !bytes.Equal(data[:len(magic)], magic[:]) {
		return nil, ErrInvalidMagic
	}
	hdr, ok := decodeHeader(data)
	if !ok {
		return nil, ErrCorruptFile
	}
	if hdr.Version != Version {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, hdr.Version)
	}

	size := uint64(len(data))
	for _, r := range []struct {
		name string
		reg  Region
	}{{"head", hdr.Head}, {"meta", hdr.Meta}, {"data", hdr.Data}} {
		if r.reg.Offset < headerSize {
			return nil, fmt.Errorf("%w: %s region overlaps header", ErrCorruptFile, r.name)
		}
		if r.reg.End() < r.reg.Offset || r.reg.End() > size {
			return nil, fmt.Errorf("%w: %s region out of bounds", ErrCorruptFile, r.name)
		}
	}

	return &File{data: data, hdr: hdr, mmapped: mmapped}, nil
}

// Close releases the file data and any mmap backing.
func (f *File) Close() error {
	if f == nil || f.data == nil {
		return nil
	}
	var err error
	if f.mmapped {
		err = unix.Munmap(f.data)
	}
	f.data = nil
	f.mmapped = false
	return err
}

// Header returns the decoded file header.
func (f *File) Header() Header {
	return f.hdr
}

// Size returns the file size in bytes.
func (f *File) Size() int {
	return len(f.data)
}

func (f *File) region(r Region) []byte {
	return f.data[r.Offset:r.End()]
}

// Head returns the run summary text.
func (f *File) Head() string {
	return string(f.region(f.hdr.Head))
}

// Entries parses the embedded scan list.
func (f *File) Entries() ([]scanlist.Entry, error) {
	entries, withOffsets, err := scanlist.Parse(bytes.NewReader(f.region(f.hdr.Meta)))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptFile, err)
	}
	if !withOffsets {
		return nil, fmt.Errorf("%w: scan list has no offset columns", ErrCorruptFile)
	}
	return entries, nil
}

// Peaks decodes the arrays of one scan list entry from the data block. The
// intensity array always has the length of the mass array; noise is empty or
// of the same length.
func (f *File) Peaks(e scanlist.Entry) (mass, intensity, noise []float64, err error) {
	switch {
	case e.MassLength != e.IntensityLength:
		return nil, nil, nil, fmt.Errorf("%w: scan %d mass/intensity length mismatch", ErrCorruptFile, e.Scan.ID)
	case e.NoiseLength != 0 && e.NoiseLength != e.MassLength:
		return nil, nil, nil, fmt.Errorf("%w: scan %d noise length mismatch", ErrCorruptFile, e.Scan.ID)
	}
	if mass, err = f.floats(e.Scan.IndexMZ, e.MassLength); err != nil {
		return nil, nil, nil, fmt.Errorf("scan %d mass: %w", e.Scan.ID, err)
	}
	if intensity, err = f.floats(e.Scan.IndexIntensity, e.IntensityLength); err != nil {
		return nil, nil, nil, fmt.Errorf("scan %d intensity: %w", e.Scan.ID, err)
	}
	if noise, err = f.floats(e.Scan.IndexNoise, e.NoiseLength); err != nil {
		return nil, nil, nil, fmt.Errorf("scan %d noise: %w", e.Scan.ID, err)
	}
	return mass, intensity, noise, nil
}

func (f *File) floats(offset, length uint64) ([]float64, error) {
	r := Region{Offset: offset, Length: length}
	if length%8 != 0 {
		return nil, fmt.Errorf("%w: length %d is not a multiple of 8", ErrCorruptFile, length)
	}
	if r.Offset < f.hdr.Data.Offset || r.End() < r.Offset || r.End() > f.hdr.Data.End() {
		return nil, fmt.Errorf("%w: [%d, %d) outside data block", ErrCorruptFile, r.Offset, r.End())
	}

	b := f.region(r)
	out := make([]float64, length/8)
	for i := range out {
		out[i] = math.Float64frombits(binary.LittleEndian.Uint64(b[i*8:]))
	}
	return out, nil
}

// Verify checks the scan list against the data block: every array lies inside
// the block, arrays of one scan are contiguous in mass, intensity, noise order,
// scans follow each other without gaps, and the last scan ends the block.
func (f *File) Verify() error {
	entries, err := f.Entries()
	if err != nil {
		return err
	}

	next := f.hdr.Data.Offset
	for _, e := range entries {
		s := &e.Scan
		switch {
		case s.IndexMZ != next:
			return fmt.Errorf("%w: scan %d mass at %d, expected %d", ErrCorruptFile, s.ID, s.IndexMZ, next)
		case s.IndexIntensity != s.IndexMZ+e.MassLength:
			return fmt.Errorf("%w: scan %d intensity offset out of order", ErrCorruptFile, s.ID)
		case s.IndexNoise != s.IndexIntensity+e.IntensityLength:
			return fmt.Errorf("%w: scan %d noise offset out of order", ErrCorruptFile, s.ID)
		}
		if _, _, _, err := f.Peaks(e); err != nil {
			return err
		}
		next = s.IndexNoise + e.NoiseLength
	}

	if next != f.hdr.Data.End() {
		return fmt.Errorf("%w: data block ends at %d, scans end at %d", ErrCorruptFile, f.hdr.Data.End(), next)
	}
	return nil
}
