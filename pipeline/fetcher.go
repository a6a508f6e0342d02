package pipeline

import (
	"context"
	"fmt"
	"image"
	"net/http"

	// Register decoders for the formats the annotation pipeline produces.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
)

// ErrInvalidImage indicates that a source image could not be fetched or
// decoded. Collaborator failures are surfaced, not retried.
type ErrInvalidImage struct {
	URL   string
	cause error
}

func (e *ErrInvalidImage) Error() string {
	return fmt.Sprintf("invalid image %q: %v", e.URL, e.cause)
}

func (e *ErrInvalidImage) Unwrap() error { return e.cause }

// Fetcher retrieves and decodes a source image by URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (image.Image, error)
}

// HTTPFetcher fetches images over HTTP(S).
type HTTPFetcher struct {
	httpClient *http.Client
}

// NewHTTPFetcher creates an HTTPFetcher. A nil client uses
// http.DefaultClient.
func NewHTTPFetcher(client *http.Client) *HTTPFetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPFetcher{httpClient: client}
}

// Fetch downloads and decodes the image at url.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (image.Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &ErrInvalidImage{URL: url, cause: err}
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, &ErrInvalidImage{URL: url, cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &ErrInvalidImage{URL: url, cause: fmt.Errorf("status %s", resp.Status)}
	}

	img, _, err := image.Decode(resp.Body)
	if err != nil {
		return nil, &ErrInvalidImage{URL: url, cause: err}
	}
	return img, nil
}
