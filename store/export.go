package store

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/klauspost/compress/zstd"

	"github.com/hupe1980/logoann/model"
)

// Export format: a zstd stream of
//
//	[0:4)  magic (shared with the store file)
//	[4:8)  dimension
//	[8:16) row count
//	rows   [int64 id][dim × float32], slot order
//
// Exports feed the out-of-band index build, which bakes stored vectors into
// the next frozen index generation.

// Export writes a compressed snapshot of all committed rows to w.
func (s *Store) Export(w io.Writer) error {
	s.mu.RLock()
	dim := s.dim
	count := s.count
	s.mu.RUnlock()

	zw, err := zstd.NewWriter(w)
	if err != nil {
		return err
	}

	var hdr [16]byte
	binary.LittleEndian.PutUint32(hdr[0:4], MagicNumber)
	binary.LittleEndian.PutUint32(hdr[4:8], uint32(dim))
	binary.LittleEndian.PutUint64(hdr[8:16], uint64(count))
	if _, err := zw.Write(hdr[:]); err != nil {
		zw.Close()
		return err
	}

	written := 0
	row := make([]byte, rowSize(dim))
	for id, vec := range s.All() {
		if written == count {
			// Rows committed after the snapshot was sized are dropped so the
			// export stays self-consistent.
			break
		}
		binary.LittleEndian.PutUint64(row[:8], uint64(id))
		for i, f := range vec {
			binary.LittleEndian.PutUint32(row[8+i*4:], math.Float32bits(f))
		}
		if _, err := zw.Write(row); err != nil {
			zw.Close()
			return err
		}
		written++
	}

	if written != count {
		zw.Close()
		return fmt.Errorf("store: export truncated: %d of %d rows", written, count)
	}
	return zw.Close()
}

// ReadExport decodes an export stream and returns its rows in slot order.
func ReadExport(r io.Reader) ([]model.LogoID, []model.Vector, error) {
	zr, err := zstd.NewReader(r)
	if err != nil {
		return nil, nil, err
	}
	defer zr.Close()

	var hdr [16]byte
	if _, err := io.ReadFull(zr, hdr[:]); err != nil {
		return nil, nil, fmt.Errorf("store: read export header: %w", err)
	}
	if binary.LittleEndian.Uint32(hdr[0:4]) != MagicNumber {
		return nil, nil, ErrInvalidMagic
	}
	dim := int(binary.LittleEndian.Uint32(hdr[4:8]))
	count := int(binary.LittleEndian.Uint64(hdr[8:16]))
	if dim <= 0 && count > 0 {
		return nil, nil, fmt.Errorf("store: invalid export dimension %d", dim)
	}

	ids := make([]model.LogoID, 0, count)
	vecs := make([]model.Vector, 0, count)
	row := make([]byte, rowSize(dim))
	for i := 0; i < count; i++ {
		if _, err := io.ReadFull(zr, row); err != nil {
			return nil, nil, fmt.Errorf("store: read export row %d: %w", i, err)
		}
		ids = append(ids, model.LogoID(binary.LittleEndian.Uint64(row[:8])))
		vec := make(model.Vector, dim)
		for j := range vec {
			vec[j] = math.Float32frombits(binary.LittleEndian.Uint32(row[8+j*4:]))
		}
		vecs = append(vecs, vec)
	}
	return ids, vecs, nil
}
