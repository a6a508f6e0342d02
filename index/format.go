package index

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"math"
	"unsafe"

	"github.com/hupe1980/logoann/distance"
)

const (
	// MagicNumber identifies frozen index blobs (ASCII: "LANN").
	MagicNumber = 0x4C414E4E
	// Version is the current blob format version.
	Version = 1

	headerSize = 64

	// IndexBlobName is the artifact holding the vectors.
	IndexBlobName = "index.bin"
	// KeysFileName is the artifact holding the ordered external identifiers.
	KeysFileName = "index.txt"
)

var (
	ErrInvalidMagic   = errors.New("invalid magic number")
	ErrInvalidVersion = errors.New("unsupported version")
	ErrChecksum       = errors.New("checksum mismatch")
)

// blobHeader is the 64-byte header at the start of every index blob.
//
// Layout (little endian):
//
//	[0:4)   magic
//	[4:8)   version
//	[8:16)  vector count
//	[16:20) dimension
//	[20]    metric
//	[24:32) data offset
//	[32:36) CRC32 (IEEE) of the data section
//	rest    reserved
type blobHeader struct {
	Count      uint64
	Dimension  uint32
	Metric     distance.Metric
	DataOffset uint64
	Checksum   uint32
}

func (h *blobHeader) marshal() []byte {
	buf := make([]byte, headerSize)
	binary.LittleEndian.PutUint32(buf[0:4], MagicNumber)
	binary.LittleEndian.PutUint32(buf[4:8], Version)
	binary.LittleEndian.PutUint64(buf[8:16], h.Count)
	binary.LittleEndian.PutUint32(buf[16:20], h.Dimension)
	buf[20] = byte(h.Metric)
	binary.LittleEndian.PutUint64(buf[24:32], h.DataOffset)
	binary.LittleEndian.PutUint32(buf[32:36], h.Checksum)
	return buf
}

func parseHeader(buf []byte) (*blobHeader, error) {
	if len(buf) < headerSize {
		return nil, fmt.Errorf("blob too small for header: %d bytes", len(buf))
	}
	if binary.LittleEndian.Uint32(buf[0:4]) != MagicNumber {
		return nil, ErrInvalidMagic
	}
	if v := binary.LittleEndian.Uint32(buf[4:8]); v != Version {
		return nil, fmt.Errorf("%w: %d", ErrInvalidVersion, v)
	}
	return &blobHeader{
		Count:      binary.LittleEndian.Uint64(buf[8:16]),
		Dimension:  binary.LittleEndian.Uint32(buf[16:20]),
		Metric:     distance.Metric(buf[20]),
		DataOffset: binary.LittleEndian.Uint64(buf[24:32]),
		Checksum:   binary.LittleEndian.Uint32(buf[32:36]),
	}, nil
}

// vectorsView reinterprets the data section as a float32 slice.
// The mmap base is page-aligned and the data offset is a multiple of 4, so
// the cast is safe; a misaligned section (foreign writer) falls back to a
// copy.
func vectorsView(data []byte, n int) []float32 {
	if n == 0 {
		return nil
	}
	if uintptr(unsafe.Pointer(&data[0]))%unsafe.Alignof(float32(0)) == 0 {
		return unsafe.Slice((*float32)(unsafe.Pointer(&data[0])), n)
	}
	out := make([]float32, n)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return out
}

// WriteBlob writes a frozen index blob for the given row-major vectors.
// It exists for the out-of-band index build and for tests; the serving path
// never writes blobs.
func WriteBlob(w io.Writer, vectors [][]float32, dim int, metric distance.Metric) error {
	data := make([]byte, 0, len(vectors)*dim*4)
	for i, v := range vectors {
		if len(v) != dim {
			return fmt.Errorf("vector %d has dimension %d, want %d", i, len(v), dim)
		}
		for _, f := range v {
			data = binary.LittleEndian.AppendUint32(data, math.Float32bits(f))
		}
	}

	h := &blobHeader{
		Count:      uint64(len(vectors)),
		Dimension:  uint32(dim),
		Metric:     metric,
		DataOffset: headerSize,
		Checksum:   crc32.ChecksumIEEE(data),
	}

	bw := bufio.NewWriter(w)
	if _, err := bw.Write(h.marshal()); err != nil {
		return err
	}
	if _, err := bw.Write(data); err != nil {
		return err
	}
	return bw.Flush()
}

// WriteKeys writes the ordered key list artifact, one decimal identifier per
// line.
func WriteKeys(w io.Writer, keys []int64) error {
	bw := bufio.NewWriter(w)
	for _, k := range keys {
		if _, err := fmt.Fprintf(bw, "%d\n", k); err != nil {
			return err
		}
	}
	return bw.Flush()
}
