// Package pipeline turns raw images plus bounding boxes into embedding
// vectors and appends them to the store, deduplicating against existing
// entries before any image work happens.
package pipeline

import (
	"context"
	"errors"
	"image"

	"github.com/hupe1980/logoann/model"
)

// Embedder converts fixed-size image crops into dense float32 vectors.
// It is an external collaborator: the model is assumed deterministic per
// version and is treated as opaque.
type Embedder interface {
	// EmbedBatch returns one embedding vector per input image.
	// Inputs are square RGB images of side InputSize.
	EmbedBatch(ctx context.Context, images []image.Image) ([]model.Vector, error)

	// Dimension returns the dimensionality of the output vectors.
	Dimension() int

	// InputSize returns the required square input side in pixels.
	InputSize() int
}

// ErrEmptyBatch is returned by embedder implementations for empty input.
var ErrEmptyBatch = errors.New("pipeline: empty batch")
