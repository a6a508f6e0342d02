package store

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/logoann/model"
)

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "embeddings.bin")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, path
}

func vec(vals ...float32) model.Vector {
	return model.Vector(vals)
}

func TestAppendBatchAndGet(t *testing.T) {
	s, _ := newTestStore(t)

	n, err := s.AppendBatch(
		[]model.LogoID{1, 2, 3},
		[]model.Vector{vec(1, 0), vec(0, 1), vec(1, 1)},
	)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, 3, s.Len())
	assert.Equal(t, 2, s.Dimension())

	assert.True(t, s.Contains(2))
	assert.False(t, s.Contains(99))

	got, ok, err := s.Get(2)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, vec(0, 1), got)

	_, ok, err = s.Get(99)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAppendBatchIdempotent(t *testing.T) {
	s, _ := newTestStore(t)

	ids := []model.LogoID{1, 2, 3}
	vecs := make([]model.Vector, 3)
	for i := range vecs {
		v := make(model.Vector, 128)
		v[i] = 1
		vecs[i] = v
	}

	n, err := s.AppendBatch(ids, vecs)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, 3, s.Len())

	// Re-appending the identical batch adds nothing and returns 0.
	n, err = s.AppendBatch(ids, vecs)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 3, s.Len())
}

func TestAppendBatchPartialDuplicates(t *testing.T) {
	s, _ := newTestStore(t)

	_, err := s.AppendBatch([]model.LogoID{1, 2}, []model.Vector{vec(1), vec(2)})
	require.NoError(t, err)

	n, err := s.AppendBatch([]model.LogoID{2, 3}, []model.Vector{vec(9), vec(3)})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 3, s.Len())

	// The duplicate was dropped, never overwritten.
	got, ok, err := s.Get(2)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, vec(2), got)
}

func TestAppendBatchValidation(t *testing.T) {
	s, _ := newTestStore(t)

	_, err := s.AppendBatch([]model.LogoID{1}, nil)
	assert.Error(t, err)

	_, err = s.AppendBatch([]model.LogoID{1, 1}, []model.Vector{vec(1), vec(2)})
	assert.Error(t, err, "duplicate within batch")

	_, err = s.AppendBatch([]model.LogoID{1}, []model.Vector{vec(1, 2)})
	require.NoError(t, err)

	// Width is fixed by the first write.
	_, err = s.AppendBatch([]model.LogoID{2}, []model.Vector{vec(1, 2, 3)})
	var dm *ErrDimensionMismatch
	require.ErrorAs(t, err, &dm)
	assert.Equal(t, 2, dm.Expected)
	assert.Equal(t, 3, dm.Actual)
}

func TestAppendBatchEmpty(t *testing.T) {
	s, path := newTestStore(t)

	n, err := s.AppendBatch(nil, nil)
	require.NoError(t, err)
	assert.Zero(t, n)

	// No file is created by a no-op append.
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "embeddings.bin")

	s, err := Open(path)
	require.NoError(t, err)

	want := []model.Vector{vec(0.5, -1.25, 3), vec(1, 2, 3), vec(-0.001, 0, 9.75)}
	_, err = s.AppendBatch([]model.LogoID{10, 20, 30}, want)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	// Restart: mapping is rebuilt from the committed rows.
	s2, err := Open(path)
	require.NoError(t, err)
	defer s2.Close()

	assert.Equal(t, 3, s2.Len())
	assert.Equal(t, 3, s2.Dimension())
	for i, id := range []model.LogoID{10, 20, 30} {
		got, ok, err := s2.Get(id)
		require.NoError(t, err)
		require.True(t, ok, "id %d", id)
		assert.InDeltaSlice(t, want[i], got, 1e-6)
	}

	// Appends continue at the next slot.
	n, err := s2.AppendBatch([]model.LogoID{40}, []model.Vector{vec(7, 7, 7)})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 4, s2.Len())
}

func TestReloadIgnoresTornTail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "embeddings.bin")

	s, err := Open(path)
	require.NoError(t, err)
	_, err = s.AppendBatch([]model.LogoID{1, 2}, []model.Vector{vec(1, 1), vec(2, 2)})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	// Simulate a torn append: extra row bytes exist past the committed
	// count but the header was never updated.
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o644)
	require.NoError(t, err)
	_, err = f.Write(make([]byte, rowSize(2)))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	s2, err := Open(path)
	require.NoError(t, err)
	defer s2.Close()

	// The zero-identifier garbage row is not visible: the header count is
	// the only authority.
	assert.Equal(t, 2, s2.Len())
	assert.False(t, s2.Contains(0))
}

func TestStoredIDsAscending(t *testing.T) {
	s, _ := newTestStore(t)

	_, err := s.AppendBatch(
		[]model.LogoID{42, 7, 1000, 3},
		[]model.Vector{vec(1), vec(2), vec(3), vec(4)},
	)
	require.NoError(t, err)

	assert.Equal(t, []model.LogoID{3, 7, 42, 1000}, s.StoredIDs())
}

func TestAllSlotOrder(t *testing.T) {
	s, _ := newTestStore(t)

	_, err := s.AppendBatch(
		[]model.LogoID{42, 7},
		[]model.Vector{vec(1, 0), vec(0, 1)},
	)
	require.NoError(t, err)
	_, err = s.AppendBatch([]model.LogoID{5}, []model.Vector{vec(1, 1)})
	require.NoError(t, err)

	var gotIDs []model.LogoID
	for id, v := range s.All() {
		gotIDs = append(gotIDs, id)
		assert.Len(t, v, 2)
	}
	assert.Equal(t, []model.LogoID{42, 7, 5}, gotIDs, "ascending slot order")

	// Restartable: a second pass yields the same sequence.
	var again []model.LogoID
	for id := range s.All() {
		again = append(again, id)
	}
	assert.Equal(t, gotIDs, again)
}

func TestConcurrentReadsDuringAppend(t *testing.T) {
	s, _ := newTestStore(t)

	_, err := s.AppendBatch([]model.LogoID{1}, []model.Vector{vec(1, 2)})
	require.NoError(t, err)

	var wg sync.WaitGroup
	stop := make(chan struct{})

	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				got, ok, err := s.Get(1)
				assert.NoError(t, err)
				assert.True(t, ok)
				assert.Equal(t, vec(1, 2), got)
				_ = s.Len()
				_ = s.Contains(1)
			}
		}()
	}

	for i := 2; i <= 50; i++ {
		_, err := s.AppendBatch([]model.LogoID{model.LogoID(i)}, []model.Vector{vec(float32(i), 0)})
		require.NoError(t, err)
	}
	close(stop)
	wg.Wait()

	assert.Equal(t, 50, s.Len())
}

func TestOpenRejectsForeignFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "junk.bin")
	require.NoError(t, os.WriteFile(path, make([]byte, 128), 0o644))

	_, err := Open(path)
	assert.ErrorIs(t, err, ErrInvalidMagic)
}

func TestClosedStore(t *testing.T) {
	s, _ := newTestStore(t)
	_, err := s.AppendBatch([]model.LogoID{1}, []model.Vector{vec(1)})
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close(), "idempotent")

	_, _, err = s.Get(1)
	assert.ErrorIs(t, err, ErrClosed)

	_, err = s.AppendBatch([]model.LogoID{2}, []model.Vector{vec(2)})
	assert.ErrorIs(t, err, ErrClosed)
}
