package blobstore

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingStore wraps a BlobStore and counts Open calls.
type countingStore struct {
	inner BlobStore
	opens atomic.Int64
}

func (c *countingStore) Open(ctx context.Context, name string) (Blob, error) {
	c.opens.Add(1)
	return c.inner.Open(ctx, name)
}

func TestCachingStoreCachesFetches(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryStore()
	mem.Put("idx/index.bin", []byte("frozen index payload"))

	counting := &countingStore{inner: mem}
	s := NewCachingStore(counting, t.TempDir())

	for i := 0; i < 3; i++ {
		data, err := ReadAll(ctx, s, "idx/index.bin")
		require.NoError(t, err)
		assert.Equal(t, []byte("frozen index payload"), data)
	}

	assert.Equal(t, int64(1), counting.opens.Load(), "remote fetched once")
}

func TestCachingStoreNotFound(t *testing.T) {
	s := NewCachingStore(NewMemoryStore(), t.TempDir())

	_, err := s.Open(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCachingStoreConcurrentOpens(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryStore()
	mem.Put("blob", []byte("payload"))

	counting := &countingStore{inner: mem}
	s := NewCachingStore(counting, t.TempDir())

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			data, err := ReadAll(ctx, s, "blob")
			assert.NoError(t, err)
			assert.Equal(t, []byte("payload"), data)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), counting.opens.Load(), "concurrent opens collapsed")
}
