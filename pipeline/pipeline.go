package pipeline

import (
	"context"
	"fmt"
	"image"
	"runtime"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/hupe1980/logoann/model"
	"github.com/hupe1980/logoann/store"
)

// Options contains configuration options for the pipeline.
type Options struct {
	// Fetcher retrieves source images for AddLogosFromURL.
	// Defaults to an HTTPFetcher with the default client.
	Fetcher Fetcher

	// EmbedRate throttles calls to the embedding collaborator.
	// Defaults to no throttling.
	EmbedRate rate.Limit

	// EmbedBurst is the rate limiter burst size.
	EmbedBurst int

	// Parallelism bounds the concurrent crop/resize workers.
	// Defaults to GOMAXPROCS.
	Parallelism int
}

// DefaultOptions contains the default configuration options for the
// pipeline.
var DefaultOptions = Options{
	EmbedRate:  rate.Inf,
	EmbedBurst: 1,
}

// Pipeline computes embeddings for newly detected logos and appends them to
// the embedding store.
type Pipeline struct {
	store    *store.Store
	embedder Embedder
	fetcher  Fetcher
	limiter  *rate.Limiter
	workers  int
}

// New creates a Pipeline writing into st via embedder.
func New(st *store.Store, embedder Embedder, optFns ...func(o *Options)) *Pipeline {
	opts := DefaultOptions

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Fetcher == nil {
		opts.Fetcher = NewHTTPFetcher(nil)
	}
	if opts.Parallelism <= 0 {
		opts.Parallelism = runtime.GOMAXPROCS(0)
	}

	return &Pipeline{
		store:    st,
		embedder: embedder,
		fetcher:  opts.Fetcher,
		limiter:  rate.NewLimiter(opts.EmbedRate, opts.EmbedBurst),
		workers:  opts.Parallelism,
	}
}

// AddLogos computes embeddings for the logos cropped out of img and appends
// them to the store. Identifiers already present are skipped before any
// image work, so a fully-duplicate request performs no resizing and no
// model inference. Returns the number of logos actually added.
func (p *Pipeline) AddLogos(ctx context.Context, img image.Image, ids []model.LogoID, boxes []model.BoundingBox) (int, error) {
	if len(ids) != len(boxes) {
		return 0, fmt.Errorf("pipeline: %d identifiers but %d bounding boxes", len(ids), len(boxes))
	}

	// Duplicate check happens first. This is a pre-filter, not the
	// authority: the store's append dedupes again under its write lock.
	var keepIDs []model.LogoID
	var keepBoxes []model.BoundingBox
	for i, id := range ids {
		if p.store.Contains(id) {
			continue
		}
		keepIDs = append(keepIDs, id)
		keepBoxes = append(keepBoxes, boxes[i])
	}
	if len(keepIDs) == 0 {
		return 0, nil
	}

	for i, box := range keepBoxes {
		if err := box.Validate(); err != nil {
			return 0, fmt.Errorf("pipeline: logo %d: %w", keepIDs[i], err)
		}
	}

	crops := make([]image.Image, len(keepIDs))
	size := p.embedder.InputSize()

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for i, box := range keepBoxes {
		g.Go(func() error {
			crops[i] = prepare(img, box, size)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	if err := p.limiter.Wait(ctx); err != nil {
		return 0, err
	}
	vecs, err := p.embedder.EmbedBatch(ctx, crops)
	if err != nil {
		return 0, fmt.Errorf("pipeline: embed batch: %w", err)
	}
	if len(vecs) != len(keepIDs) {
		return 0, fmt.Errorf("pipeline: embedder returned %d vectors for %d logos", len(vecs), len(keepIDs))
	}

	return p.store.AppendBatch(keepIDs, vecs)
}

// AddLogosFromURL fetches the source image and delegates to AddLogos.
// If every identifier is already stored, the image is not even fetched.
func (p *Pipeline) AddLogosFromURL(ctx context.Context, url string, ids []model.LogoID, boxes []model.BoundingBox) (int, error) {
	if len(ids) != len(boxes) {
		return 0, fmt.Errorf("pipeline: %d identifiers but %d bounding boxes", len(ids), len(boxes))
	}

	anyNew := false
	for _, id := range ids {
		if !p.store.Contains(id) {
			anyNew = true
			break
		}
	}
	if !anyNew {
		return 0, nil
	}

	img, err := p.fetcher.Fetch(ctx, url)
	if err != nil {
		return 0, err
	}
	return p.AddLogos(ctx, img, ids, boxes)
}
