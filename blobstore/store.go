// Package blobstore abstracts access to the immutable artifacts of a frozen
// index (the index blob and its key list). Artifacts are produced by an
// out-of-band build and only ever read by this process.
package blobstore

import (
	"context"
	"io"
	"os"
)

// ErrNotFound is returned when a blob does not exist.
//
// Implementations should return an error that satisfies
// `errors.Is(err, ErrNotFound)`. The default maps to `os.ErrNotExist`.
var ErrNotFound = os.ErrNotExist

// BlobStore is an abstraction for accessing immutable data blobs.
type BlobStore interface {
	// Open opens a blob for reading.
	Open(ctx context.Context, name string) (Blob, error)
}

// Blob is a read-only handle to a data blob.
type Blob interface {
	io.ReaderAt
	io.Closer
	// Size returns the size of the blob in bytes.
	Size() int64
}

// Mappable is an optional interface for Blobs that expose their content as a
// byte slice without copying.
type Mappable interface {
	// Bytes returns the underlying byte slice.
	// The slice is valid until the Blob is closed.
	Bytes() ([]byte, error)
}

// Downloader is an optional interface for Blobs that can fetch their full
// content more efficiently than sequential ReadAt calls (e.g. parallel
// ranged requests against object storage).
type Downloader interface {
	Download(ctx context.Context) ([]byte, error)
}

// ReadAll reads the full content of a named blob.
func ReadAll(ctx context.Context, bs BlobStore, name string) ([]byte, error) {
	b, err := bs.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	defer b.Close()

	if d, ok := b.(Downloader); ok {
		return d.Download(ctx)
	}

	if m, ok := b.(Mappable); ok {
		raw, err := m.Bytes()
		if err != nil {
			return nil, err
		}
		// Copy: the mapping dies with the blob handle.
		out := make([]byte, len(raw))
		copy(out, raw)
		return out, nil
	}

	out := make([]byte, b.Size())
	if _, err := b.ReadAt(out, 0); err != nil && err != io.EOF {
		return nil, err
	}
	return out, nil
}
