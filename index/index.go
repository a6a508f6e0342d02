// Package index provides the frozen approximate nearest-neighbor index: an
// immutable, pre-built vector blob plus its ordered external key list,
// loaded once per process and queried read-only.
package index

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"hash/crc32"
	"io"
	"math/rand"
	"path"
	"strconv"

	"github.com/hupe1980/logoann/blobstore"
	"github.com/hupe1980/logoann/distance"
	"github.com/hupe1980/logoann/internal/queue"
	"github.com/hupe1980/logoann/model"
)

// FrozenIndex is an immutable ANN index over N vectors, each addressable by
// an internal slot 0..N-1, with keys[slot] giving the external identifier.
// It is read-only after Load and safe for unsynchronized concurrent use.
type FrozenIndex struct {
	name    string
	dim     int
	metric  distance.Metric
	distFn  distance.Func
	vectors []float32 // row-major, len = count*dim, usually a view into blob
	count   int
	keys    []model.LogoID
	slotOf  map[model.LogoID]int
	blob    io.Closer // keeps the mapping alive; nil after Close
}

// LoadOptions configures Load.
type LoadOptions struct {
	// Dimension is the expected dimensionality of the index family.
	// It must match the blob header.
	Dimension int

	// Metric overrides the metric recorded in the blob header.
	// Leave at MetricL2 to trust the header.
	Metric distance.Metric

	// VerifyChecksum controls CRC verification of the data section at load.
	// Enabled by default; large deployments that trust their artifact
	// transport can disable it to speed up startup.
	VerifyChecksum bool
}

// DefaultLoadOptions contains the default configuration options for Load.
var DefaultLoadOptions = LoadOptions{
	Metric:         distance.MetricL2,
	VerifyChecksum: true,
}

// Load reads the frozen index artifacts for the named index family from bs:
// "<name>/index.bin" (vector blob) and "<name>/index.txt" (ordered key
// list). All failure modes surface as *ErrLoad.
func Load(ctx context.Context, bs blobstore.BlobStore, name string, optFns ...func(o *LoadOptions)) (*FrozenIndex, error) {
	opts := DefaultLoadOptions

	for _, fn := range optFns {
		fn(&opts)
	}

	idx, err := load(ctx, bs, name, opts)
	if err != nil {
		return nil, &ErrLoad{Index: name, cause: err}
	}
	return idx, nil
}

func load(ctx context.Context, bs blobstore.BlobStore, name string, opts LoadOptions) (*FrozenIndex, error) {
	blob, err := bs.Open(ctx, path.Join(name, IndexBlobName))
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", IndexBlobName, err)
	}

	var raw []byte
	if m, ok := blob.(blobstore.Mappable); ok {
		raw, err = m.Bytes()
	} else {
		raw, err = readFull(ctx, blob)
	}
	if err != nil {
		blob.Close()
		return nil, fmt.Errorf("read %s: %w", IndexBlobName, err)
	}

	h, err := parseHeader(raw)
	if err != nil {
		blob.Close()
		return nil, err
	}

	if opts.Dimension > 0 && int(h.Dimension) != opts.Dimension {
		blob.Close()
		return nil, fmt.Errorf("index dimension %d does not match expected %d", h.Dimension, opts.Dimension)
	}

	dataEnd := h.DataOffset + h.Count*uint64(h.Dimension)*4
	if h.DataOffset < headerSize || dataEnd > uint64(len(raw)) {
		blob.Close()
		return nil, fmt.Errorf("blob truncated: need %d bytes, have %d", dataEnd, len(raw))
	}
	data := raw[h.DataOffset:dataEnd]

	if opts.VerifyChecksum {
		if sum := crc32.ChecksumIEEE(data); sum != h.Checksum {
			blob.Close()
			return nil, fmt.Errorf("%w: header %08x, data %08x", ErrChecksum, h.Checksum, sum)
		}
	}

	keys, err := loadKeys(ctx, bs, name)
	if err != nil {
		blob.Close()
		return nil, err
	}
	if uint64(len(keys)) != h.Count {
		blob.Close()
		return nil, fmt.Errorf("key count %d does not match vector count %d", len(keys), h.Count)
	}

	slotOf := make(map[model.LogoID]int, len(keys))
	for slot, id := range keys {
		if _, dup := slotOf[id]; dup {
			blob.Close()
			return nil, fmt.Errorf("duplicate key %d in %s", id, KeysFileName)
		}
		slotOf[id] = slot
	}

	metric := h.Metric
	if opts.Metric != DefaultLoadOptions.Metric {
		metric = opts.Metric
	}
	distFn, err := distance.Provider(metric)
	if err != nil {
		blob.Close()
		return nil, err
	}

	return &FrozenIndex{
		name:    name,
		dim:     int(h.Dimension),
		metric:  metric,
		distFn:  distFn,
		vectors: vectorsView(data, int(h.Count)*int(h.Dimension)),
		count:   int(h.Count),
		keys:    keys,
		slotOf:  slotOf,
		blob:    blob,
	}, nil
}

func loadKeys(ctx context.Context, bs blobstore.BlobStore, name string) ([]model.LogoID, error) {
	raw, err := blobstore.ReadAll(ctx, bs, path.Join(name, KeysFileName))
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", KeysFileName, err)
	}

	var keys []model.LogoID
	sc := bufio.NewScanner(bytes.NewReader(raw))
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		id, err := strconv.ParseInt(string(line), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse key %q: %w", line, err)
		}
		keys = append(keys, model.LogoID(id))
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", KeysFileName, err)
	}
	return keys, nil
}

func readFull(ctx context.Context, blob blobstore.Blob) ([]byte, error) {
	if d, ok := blob.(blobstore.Downloader); ok {
		return d.Download(ctx)
	}
	out := make([]byte, blob.Size())
	if _, err := blob.ReadAt(out, 0); err != nil && err != io.EOF {
		return nil, err
	}
	return out, nil
}

// Name returns the index family name.
func (f *FrozenIndex) Name() string { return f.name }

// Dimension returns the fixed vector dimensionality.
func (f *FrozenIndex) Dimension() int { return f.dim }

// Metric returns the distance metric of the index family.
func (f *FrozenIndex) Metric() distance.Metric { return f.metric }

// Len returns the number of indexed vectors.
func (f *FrozenIndex) Len() int { return f.count }

// Keys returns the ordered external identifiers, keys[slot] = identifier.
// The returned slice must not be modified.
func (f *FrozenIndex) Keys() []model.LogoID { return f.keys }

// SlotOf returns the internal slot of the given external identifier.
func (f *FrozenIndex) SlotOf(id model.LogoID) (int, bool) {
	slot, ok := f.slotOf[id]
	return slot, ok
}

// RandomID returns a uniformly random indexed identifier.
func (f *FrozenIndex) RandomID(rng *rand.Rand) model.LogoID {
	return f.keys[rng.Intn(f.count)]
}

// vector returns the stored vector at slot. The slice is a read-only view.
func (f *FrozenIndex) vector(slot int) []float32 {
	return f.vectors[slot*f.dim : (slot+1)*f.dim]
}

// NeighborsBySlot returns up to k nearest neighbors of the vector at slot,
// ranked by ascending distance. The queried slot itself is excluded.
func (f *FrozenIndex) NeighborsBySlot(slot, k int) ([]model.Neighbor, error) {
	if slot < 0 || slot >= f.count {
		return nil, fmt.Errorf("slot %d out of range [0,%d)", slot, f.count)
	}
	return f.search(f.vector(slot), k, slot), nil
}

// NeighborsByVector returns up to k nearest neighbors of the given query
// vector, which need not exist in the index.
func (f *FrozenIndex) NeighborsByVector(vec model.Vector, k int) ([]model.Neighbor, error) {
	if len(vec) != f.dim {
		return nil, &ErrDimensionMismatch{Expected: f.dim, Actual: len(vec)}
	}
	return f.search(vec, k, -1), nil
}

// search scans all vectors, keeping the k closest to q. A non-negative
// skip slot is left out of the result.
func (f *FrozenIndex) search(q []float32, k, skip int) []model.Neighbor {
	if k <= 0 || f.count == 0 {
		return nil
	}
	if k > f.count {
		k = f.count
	}

	topk := queue.NewTopK(k)
	for slot := 0; slot < f.count; slot++ {
		if slot == skip {
			continue
		}
		topk.Push(slot, f.distFn(q, f.vector(slot)))
	}

	items := topk.Sorted()
	out := make([]model.Neighbor, len(items))
	for i, it := range items {
		out[i] = model.Neighbor{ID: f.keys[it.Slot], Distance: it.Distance}
	}
	return out
}

// Close releases the underlying blob mapping. The index must not be used
// afterwards.
func (f *FrozenIndex) Close() error {
	if f.blob == nil {
		return nil
	}
	blob := f.blob
	f.blob = nil
	f.vectors = nil
	return blob.Close()
}
