package logoann

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/logoann/blobstore"
	"github.com/hupe1980/logoann/distance"
	"github.com/hupe1980/logoann/index"
	"github.com/hupe1980/logoann/model"
	"github.com/hupe1980/logoann/pipeline"
	"github.com/hupe1980/logoann/store"
)

// IndexSpec describes one frozen index to load.
type IndexSpec struct {
	// Name is the artifact name within the blob store and the key under
	// which the index is addressed.
	Name string

	// Dimension is the expected vector width. Zero skips the check.
	Dimension int

	// Metric overrides the metric recorded in the artifact header.
	Metric distance.Metric
}

// Service resolves nearest neighbors for logo identifiers against one or
// more frozen indexes, falling back to the embedding store for
// identifiers added after an index was built.
type Service struct {
	indexes      map[string]*index.FrozenIndex
	defaultIndex string
	store        *store.Store
	pipeline     *pipeline.Pipeline
	logger       *Logger

	rngMu sync.Mutex
	rng   *rand.Rand
}

// New creates a Service over the given embedding store. The pipeline may
// be nil for read-only deployments, in which case AddLogos and
// AddLogosFromURL fail. Call LoadIndexes before resolving neighbors.
func New(st *store.Store, pipe *pipeline.Pipeline, optFns ...func(o *Options)) *Service {
	opts := DefaultOptions

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Logger == nil {
		opts.Logger = NewLogger(nil)
	}

	seed := opts.RandSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	return &Service{
		indexes:      make(map[string]*index.FrozenIndex),
		defaultIndex: opts.DefaultIndex,
		store:        st,
		pipeline:     pipe,
		logger:       opts.Logger,
		rng:          rand.New(rand.NewSource(seed)),
	}
}

// LoadIndexes loads the given frozen indexes from the blob store
// concurrently. A failed index does not prevent the others from loading;
// the returned error joins all individual failures, and callers may
// choose to continue with the indexes that did load.
func (s *Service) LoadIndexes(ctx context.Context, bs blobstore.BlobStore, specs []IndexSpec) error {
	loaded := make([]*index.FrozenIndex, len(specs))

	g, gctx := errgroup.WithContext(ctx)

	errs := make([]error, len(specs))
	for i, spec := range specs {
		g.Go(func() error {
			idx, err := index.Load(gctx, bs, spec.Name, func(o *index.LoadOptions) {
				o.Dimension = spec.Dimension
				if spec.Metric != 0 {
					o.Metric = spec.Metric
				}
			})
			if err != nil {
				s.logger.LogIndexLoad(gctx, spec.Name, 0, err)
				errs[i] = err

				return nil
			}

			s.logger.LogIndexLoad(gctx, spec.Name, idx.Len(), nil)
			loaded[i] = idx

			return nil
		})
	}

	_ = g.Wait()

	for i, idx := range loaded {
		if idx == nil {
			continue
		}

		s.indexes[specs[i].Name] = idx

		if s.defaultIndex == "" {
			s.defaultIndex = specs[i].Name
		}
	}

	return errors.Join(errs...)
}

// Index returns the index registered under name, or the default index for
// the empty string.
func (s *Service) Index(name string) (*index.FrozenIndex, error) {
	if name == "" {
		name = s.defaultIndex
	}

	idx, ok := s.indexes[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownIndex, name)
	}

	return idx, nil
}

// IndexNames returns the names of all loaded indexes.
func (s *Service) IndexNames() []string {
	names := make([]string, 0, len(s.indexes))
	for name := range s.indexes {
		names = append(names, name)
	}

	return names
}

// Neighbors resolves the k nearest neighbors of the given identifier in
// the named index. Identifiers baked into the index resolve by slot,
// excluding themselves from the result; identifiers known only to the
// embedding store resolve by their stored vector. Identifiers known to
// neither yield ErrUnknownID.
func (s *Service) Neighbors(ctx context.Context, indexName string, id model.LogoID, k int) ([]model.Neighbor, error) {
	neighbors, err := s.neighbors(indexName, id, k)
	s.logger.LogResolve(ctx, indexName, int64(id), len(neighbors), err)

	return neighbors, err
}

func (s *Service) neighbors(indexName string, id model.LogoID, k int) ([]model.Neighbor, error) {
	if k <= 0 {
		return nil, ErrInvalidK
	}

	idx, err := s.Index(indexName)
	if err != nil {
		return nil, err
	}

	if slot, ok := idx.SlotOf(id); ok {
		neighbors, err := idx.NeighborsBySlot(slot, k)
		if err != nil {
			return nil, translateError(err)
		}

		return neighbors, nil
	}

	vec, ok, err := s.store.Get(id)
	if err != nil {
		return nil, translateError(err)
	}

	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownID, id)
	}

	neighbors, err := idx.NeighborsByVector(vec, k)
	if err != nil {
		return nil, translateError(err)
	}

	return neighbors, nil
}

// NeighborsBatch resolves neighbors for multiple identifiers. Unknown
// identifiers are omitted from the result rather than failing the batch;
// any other error aborts it.
func (s *Service) NeighborsBatch(ctx context.Context, indexName string, ids []model.LogoID, k int) (map[model.LogoID][]model.Neighbor, error) {
	results := make(map[model.LogoID][]model.Neighbor, len(ids))

	for _, id := range ids {
		neighbors, err := s.Neighbors(ctx, indexName, id, k)
		if err != nil {
			if errors.Is(err, ErrUnknownID) {
				continue
			}

			return nil, err
		}

		results[id] = neighbors
	}

	return results, nil
}

// NeighborsByVector resolves the k nearest neighbors of an arbitrary
// query vector in the named index.
func (s *Service) NeighborsByVector(ctx context.Context, indexName string, vec model.Vector, k int) ([]model.Neighbor, error) {
	if k <= 0 {
		return nil, ErrInvalidK
	}

	idx, err := s.Index(indexName)
	if err != nil {
		return nil, err
	}

	neighbors, err := idx.NeighborsByVector(vec, k)
	if err != nil {
		return nil, translateError(err)
	}

	return neighbors, nil
}

// RandomID returns a uniformly random identifier baked into the named
// index.
func (s *Service) RandomID(indexName string) (model.LogoID, error) {
	idx, err := s.Index(indexName)
	if err != nil {
		return 0, err
	}

	if idx.Len() == 0 {
		return 0, fmt.Errorf("%w: index %q is empty", ErrUnknownID, idx.Name())
	}

	s.rngMu.Lock()
	defer s.rngMu.Unlock()

	return idx.RandomID(s.rng), nil
}

// IndexedCount returns the number of vectors baked into the named index.
func (s *Service) IndexedCount(indexName string) (int, error) {
	idx, err := s.Index(indexName)
	if err != nil {
		return 0, err
	}

	return idx.Len(), nil
}

// StoredCount returns the number of embeddings appended to the store.
func (s *Service) StoredCount() int {
	return s.store.Len()
}

// StoredIDs returns all identifiers in the embedding store in ascending
// order.
func (s *Service) StoredIDs() []model.LogoID {
	return s.store.StoredIDs()
}

// AddLogos embeds the given crops of img and appends them to the store.
// It returns the number of embeddings actually added; identifiers already
// stored are skipped without any image work.
func (s *Service) AddLogos(ctx context.Context, img image.Image, ids []model.LogoID, boxes []model.BoundingBox) (int, error) {
	if s.pipeline == nil {
		return 0, errors.New("service is read-only: no pipeline configured")
	}

	added, err := s.pipeline.AddLogos(ctx, img, ids, boxes)
	s.logger.LogAppend(ctx, len(ids), added, err)

	return added, translateError(err)
}

// AddLogosFromURL fetches the image at url and behaves like AddLogos.
// The fetch is skipped entirely when every identifier is already stored.
func (s *Service) AddLogosFromURL(ctx context.Context, url string, ids []model.LogoID, boxes []model.BoundingBox) (int, error) {
	if s.pipeline == nil {
		return 0, errors.New("service is read-only: no pipeline configured")
	}

	added, err := s.pipeline.AddLogosFromURL(ctx, url, ids, boxes)
	s.logger.LogAppend(ctx, len(ids), added, err)

	return added, translateError(err)
}

// Close releases all loaded indexes and the embedding store.
func (s *Service) Close() error {
	var errs []error

	for _, idx := range s.indexes {
		if err := idx.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	if err := s.store.Close(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}
