// Package store implements the append-only on-disk embedding store for logos
// that are not yet part of a frozen index.
//
// The file holds one fixed-width row per slot: an int64 external identifier
// followed by a float32 vector of the store's fixed width. The committed
// slot count lives in the header and is the only authority on which rows
// exist; a torn append past the committed count is invisible after reload.
package store

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"iter"
	"math"
	"os"
	"sync"

	"github.com/RoaringBitmap/roaring/v2/roaring64"

	"github.com/hupe1980/logoann/model"
)

const (
	// MagicNumber identifies store files (ASCII: "LSTR").
	MagicNumber = 0x4C535452
	// Version is the current store file format version.
	Version = 1

	headerSize = 64
)

// Store is the mutable, append-only embedding table. Slot assignment is
// monotonic: each newly stored identifier receives the next unused slot and
// existing slots are never rewritten. Re-adding an identifier is a no-op.
//
// Reads are safe concurrently with an in-flight append; a batch becomes
// visible only after its rows and the header are fully persisted.
type Store struct {
	path string

	// writeMu serializes the whole read-check-append sequence so two
	// concurrent batches never claim the same slot or double-count a
	// duplicate check.
	writeMu sync.Mutex

	// mu guards the fields below. It is held briefly: readers take it to
	// consult the mapping, the writer takes it only to publish a commit.
	mu     sync.RWMutex
	f      *os.File
	dim    int
	count  int
	slots  map[model.LogoID]int
	ids    *roaring64.Bitmap
	closed bool
}

// Options contains configuration options for the store.
type Options struct {
	// Dimension fixes the vector width up front. Zero means the width is
	// fixed by the first-ever append.
	Dimension int
}

// DefaultOptions contains the default configuration options for the store.
var DefaultOptions = Options{}

// Open opens the store at path, creating state lazily if the file does not
// exist yet. The identifier-to-slot mapping is rebuilt from the committed
// rows.
func Open(path string, optFns ...func(o *Options)) (*Store, error) {
	opts := DefaultOptions

	for _, fn := range optFns {
		fn(&opts)
	}

	s := &Store{
		path:  path,
		dim:   opts.Dimension,
		slots: make(map[model.LogoID]int),
		ids:   roaring64.New(),
	}

	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		if os.IsNotExist(err) {
			// Created on first append.
			return s, nil
		}
		return nil, err
	}

	if err := s.loadFrom(f); err != nil {
		f.Close()
		return nil, err
	}
	s.f = f
	return s, nil
}

func (s *Store) loadFrom(f *os.File) error {
	var hdr [headerSize]byte
	if _, err := f.ReadAt(hdr[:], 0); err != nil {
		return fmt.Errorf("read header: %w", err)
	}

	dim, count, err := parseHeader(hdr[:])
	if err != nil {
		return err
	}
	if s.dim > 0 && dim != s.dim {
		return &ErrDimensionMismatch{Expected: s.dim, Actual: dim}
	}

	rowSize := rowSize(dim)
	buf := make([]byte, rowSize)
	for slot := 0; slot < count; slot++ {
		if _, err := f.ReadAt(buf, headerSize+int64(slot)*int64(rowSize)); err != nil {
			return fmt.Errorf("read row %d: %w", slot, err)
		}
		id := model.LogoID(binary.LittleEndian.Uint64(buf[:8]))
		if _, dup := s.slots[id]; dup {
			return fmt.Errorf("store: duplicate identifier %d at slot %d", id, slot)
		}
		s.slots[id] = slot
		s.ids.Add(uint64(id))
	}

	s.dim = dim
	s.count = count
	return nil
}

func rowSize(dim int) int {
	return 8 + dim*4
}

// Header layout (little endian):
//
//	[0:4)   magic
//	[4:8)   version
//	[8:12)  dimension
//	[12:20) committed row count
//	[20:24) CRC32 (IEEE) of bytes [0:20)
//	rest    reserved
func marshalHeader(dim, count int) []byte {
	buf := make([]byte, headerSize)
	binary.LittleEndian.PutUint32(buf[0:4], MagicNumber)
	binary.LittleEndian.PutUint32(buf[4:8], Version)
	binary.LittleEndian.PutUint32(buf[8:12], uint32(dim))
	binary.LittleEndian.PutUint64(buf[12:20], uint64(count))
	binary.LittleEndian.PutUint32(buf[20:24], crc32.ChecksumIEEE(buf[0:20]))
	return buf
}

func parseHeader(buf []byte) (dim, count int, err error) {
	if binary.LittleEndian.Uint32(buf[0:4]) != MagicNumber {
		return 0, 0, ErrInvalidMagic
	}
	if v := binary.LittleEndian.Uint32(buf[4:8]); v != Version {
		return 0, 0, fmt.Errorf("%w: %d", ErrInvalidVersion, v)
	}
	if sum := crc32.ChecksumIEEE(buf[0:20]); sum != binary.LittleEndian.Uint32(buf[20:24]) {
		return 0, 0, fmt.Errorf("store: header checksum mismatch")
	}
	dim = int(binary.LittleEndian.Uint32(buf[8:12]))
	count = int(binary.LittleEndian.Uint64(buf[12:20]))
	if dim <= 0 {
		return 0, 0, fmt.Errorf("store: invalid dimension %d", dim)
	}
	return dim, count, nil
}

// Dimension returns the fixed vector width, or 0 before the first append.
func (s *Store) Dimension() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dim
}

// Len returns the number of stored identifiers.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.count
}

// Contains reports whether the identifier is present in the store.
func (s *Store) Contains(id model.LogoID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.slots[id]
	return ok
}

// StoredIDs returns all stored identifiers in ascending order.
func (s *Store) StoredIDs() []model.LogoID {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.LogoID, 0, s.ids.GetCardinality())
	it := s.ids.Iterator()
	for it.HasNext() {
		out = append(out, model.LogoID(it.Next()))
	}
	return out
}

// Get returns the stored vector for the identifier, or ok=false if absent.
func (s *Store) Get(id model.LogoID) (model.Vector, bool, error) {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil, false, ErrClosed
	}
	slot, ok := s.slots[id]
	dim := s.dim
	f := s.f
	s.mu.RUnlock()

	if !ok {
		return nil, false, nil
	}

	buf := make([]byte, dim*4)
	if _, err := f.ReadAt(buf, headerSize+int64(slot)*int64(rowSize(dim))+8); err != nil {
		return nil, false, fmt.Errorf("read vector of %d: %w", id, err)
	}

	vec := make(model.Vector, dim)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return vec, true, nil
}

// AppendBatch persists the given identifier/vector pairs at consecutive new
// slots and returns the number written. Identifiers already present are
// silently dropped before writing; an all-duplicate batch is a no-op
// returning 0. ids and vecs must be equal-length and ids pairwise unique
// within the call.
func (s *Store) AppendBatch(ids []model.LogoID, vecs []model.Vector) (int, error) {
	if len(ids) != len(vecs) {
		return 0, fmt.Errorf("store: %d identifiers but %d vectors", len(ids), len(vecs))
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return 0, ErrClosed
	}
	dim := s.dim
	count := s.count

	seen := make(map[model.LogoID]struct{}, len(ids))
	var keepIDs []model.LogoID
	var keepVecs []model.Vector
	for i, id := range ids {
		if _, dup := seen[id]; dup {
			s.mu.RUnlock()
			return 0, fmt.Errorf("store: duplicate identifier %d in batch", id)
		}
		seen[id] = struct{}{}
		if _, ok := s.slots[id]; ok {
			continue
		}
		keepIDs = append(keepIDs, id)
		keepVecs = append(keepVecs, vecs[i])
	}
	s.mu.RUnlock()

	if len(keepIDs) == 0 {
		return 0, nil
	}

	// The width is fixed by the first-ever write and must match thereafter.
	if dim == 0 {
		dim = len(keepVecs[0])
		if dim == 0 {
			return 0, &ErrDimensionMismatch{Expected: 1, Actual: 0}
		}
	}
	for _, v := range keepVecs {
		if len(v) != dim {
			return 0, &ErrDimensionMismatch{Expected: dim, Actual: len(v)}
		}
	}

	if err := s.persistBatch(dim, count, keepIDs, keepVecs); err != nil {
		return 0, err
	}

	// Publish: the commit becomes visible to readers in one step.
	s.mu.Lock()
	s.dim = dim
	for i, id := range keepIDs {
		s.slots[id] = count + i
		s.ids.Add(uint64(id))
	}
	s.count = count + len(keepIDs)
	s.mu.Unlock()

	return len(keepIDs), nil
}

// persistBatch writes the rows past the committed region, flushes them, then
// publishes the new committed count in the header. Only after both fsyncs
// does the caller update the in-memory mapping.
func (s *Store) persistBatch(dim, count int, ids []model.LogoID, vecs []model.Vector) error {
	if s.f == nil {
		f, err := os.OpenFile(s.path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
		if err != nil {
			return &ErrWrite{cause: err}
		}
		if _, err := f.WriteAt(marshalHeader(dim, 0), 0); err != nil {
			f.Close()
			return &ErrWrite{cause: err}
		}
		s.mu.Lock()
		s.f = f
		s.mu.Unlock()
	}

	rs := rowSize(dim)
	buf := make([]byte, len(ids)*rs)
	for i, id := range ids {
		row := buf[i*rs:]
		binary.LittleEndian.PutUint64(row[:8], uint64(id))
		for j, f := range vecs[i] {
			binary.LittleEndian.PutUint32(row[8+j*4:], math.Float32bits(f))
		}
	}

	off := headerSize + int64(count)*int64(rs)
	if _, err := s.f.WriteAt(buf, off); err != nil {
		return &ErrWrite{cause: err}
	}
	if err := s.f.Sync(); err != nil {
		return &ErrWrite{cause: err}
	}

	if _, err := s.f.WriteAt(marshalHeader(dim, count+len(ids)), 0); err != nil {
		return &ErrWrite{cause: err}
	}
	if err := s.f.Sync(); err != nil {
		return &ErrWrite{cause: err}
	}
	return nil
}

// All returns a lazy, restartable sequence of (identifier, vector) pairs in
// ascending slot order. The sequence reflects the commits visible when it is
// iterated, not when it is created.
func (s *Store) All() iter.Seq2[model.LogoID, model.Vector] {
	return func(yield func(model.LogoID, model.Vector) bool) {
		s.mu.RLock()
		count := s.count
		dim := s.dim
		f := s.f
		closed := s.closed
		s.mu.RUnlock()

		if closed || f == nil {
			return
		}

		rs := rowSize(dim)
		buf := make([]byte, rs)
		for slot := 0; slot < count; slot++ {
			if _, err := f.ReadAt(buf, headerSize+int64(slot)*int64(rs)); err != nil {
				return
			}
			id := model.LogoID(binary.LittleEndian.Uint64(buf[:8]))
			vec := make(model.Vector, dim)
			for i := range vec {
				vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[8+i*4:]))
			}
			if !yield(id, vec) {
				return
			}
		}
	}
}

// Close flushes and closes the underlying file. It is idempotent.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	if s.f == nil {
		return nil
	}
	if err := s.f.Sync(); err != nil {
		s.f.Close()
		return err
	}
	return s.f.Close()
}
