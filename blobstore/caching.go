package blobstore

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pierrec/lz4/v4"
	"golang.org/x/sync/singleflight"
)

// CachingStore wraps a remote BlobStore and keeps an lz4-compressed copy of
// every fetched blob in a local directory. Blobs are immutable, so a cache
// entry never needs invalidation; a corrupt or truncated entry is refetched.
//
// Concurrent opens of the same uncached blob are collapsed into a single
// remote fetch.
type CachingStore struct {
	inner BlobStore
	dir   string
	group singleflight.Group
}

// NewCachingStore creates a CachingStore writing cache entries below dir.
func NewCachingStore(inner BlobStore, dir string) *CachingStore {
	return &CachingStore{inner: inner, dir: dir}
}

// Open returns the blob content, fetching and caching it if needed.
func (s *CachingStore) Open(ctx context.Context, name string) (Blob, error) {
	if data, err := s.readCache(name); err == nil {
		return &memoryBlob{data: data}, nil
	}

	v, err, _ := s.group.Do(name, func() (any, error) {
		// Re-check: another caller may have populated the entry while we
		// waited on the flight group.
		if data, err := s.readCache(name); err == nil {
			return data, nil
		}

		data, err := ReadAll(ctx, s.inner, name)
		if err != nil {
			return nil, err
		}
		if err := s.writeCache(name, data); err != nil {
			return nil, fmt.Errorf("write cache entry for %s: %w", name, err)
		}
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	return &memoryBlob{data: v.([]byte)}, nil
}

func (s *CachingStore) cachePath(name string) string {
	// name may contain slashes (e.g. "efficientnet/index.bin"); flatten so
	// the cache stays a single directory.
	flat := strings.ReplaceAll(name, "/", "__")
	return filepath.Join(s.dir, flat+".lz4")
}

func (s *CachingStore) readCache(name string) ([]byte, error) {
	f, err := os.Open(s.cachePath(name))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return io.ReadAll(lz4.NewReader(f))
}

func (s *CachingStore) writeCache(name string, data []byte) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return err
	}

	path := s.cachePath(name)
	tmp, err := os.CreateTemp(s.dir, ".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	zw := lz4.NewWriter(tmp)
	if _, err := zw.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := zw.Close(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	// Atomic publish: readers only ever see complete entries.
	return os.Rename(tmp.Name(), path)
}
