package pipeline

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"io"
	"net/http"

	"github.com/hupe1980/logoann/model"
)

const (
	defaultInputSize = 224
)

// RemoteEmbedder calls an HTTP inference endpoint that wraps the embedding
// model. The wire protocol is a JSON batch: PNG-encoded crops in, one
// fixed-width vector per crop out.
type RemoteEmbedder struct {
	baseURL    string
	dim        int
	inputSize  int
	httpClient *http.Client
}

// RemoteOption configures a RemoteEmbedder.
type RemoteOption func(*RemoteEmbedder)

// WithDimension sets the expected output dimensionality.
func WithDimension(dim int) RemoteOption {
	return func(e *RemoteEmbedder) { e.dim = dim }
}

// WithInputSize sets the model's required square input side in pixels.
func WithInputSize(size int) RemoteOption {
	return func(e *RemoteEmbedder) { e.inputSize = size }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) RemoteOption {
	return func(e *RemoteEmbedder) { e.httpClient = client }
}

// NewRemoteEmbedder creates an Embedder backed by the inference endpoint at
// baseURL.
func NewRemoteEmbedder(baseURL string, opts ...RemoteOption) *RemoteEmbedder {
	e := &RemoteEmbedder{
		baseURL:    baseURL,
		inputSize:  defaultInputSize,
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type embedRequest struct {
	// Images are base64-encoded PNG crops.
	Images []string `json:"images"`
}

type embedResponse struct {
	Embeddings []model.Vector `json:"embeddings"`
}

// EmbedBatch sends the crops to the inference endpoint in one request.
func (e *RemoteEmbedder) EmbedBatch(ctx context.Context, images []image.Image) ([]model.Vector, error) {
	if len(images) == 0 {
		return nil, ErrEmptyBatch
	}

	reqBody := embedRequest{Images: make([]string, len(images))}
	for i, img := range images {
		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err != nil {
			return nil, fmt.Errorf("encode crop %d: %w", i, err)
		}
		reqBody.Images[i] = base64.StdEncoding.EncodeToString(buf.Bytes())
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/embed", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedder request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("embedder returned %s: %s", resp.Status, body)
	}

	var out embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode embedder response: %w", err)
	}
	if len(out.Embeddings) != len(images) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d images", len(out.Embeddings), len(images))
	}
	for i, v := range out.Embeddings {
		if e.dim > 0 && len(v) != e.dim {
			return nil, fmt.Errorf("embedder vector %d has dimension %d, want %d", i, len(v), e.dim)
		}
	}

	return out.Embeddings, nil
}

// Dimension returns the configured output dimensionality (0 if unknown).
func (e *RemoteEmbedder) Dimension() int { return e.dim }

// InputSize returns the model's required square input side.
func (e *RemoteEmbedder) InputSize() int { return e.inputSize }
