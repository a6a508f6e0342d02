package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"net/http"
	"net/http/httptest"
	"path"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/logoann"
	"github.com/hupe1980/logoann/blobstore"
	"github.com/hupe1980/logoann/index"
	"github.com/hupe1980/logoann/model"
	"github.com/hupe1980/logoann/pipeline"
	"github.com/hupe1980/logoann/store"
)

type testEmbedder struct{ dim int }

func (e *testEmbedder) EmbedBatch(_ context.Context, images []image.Image) ([]model.Vector, error) {
	out := make([]model.Vector, len(images))
	for i := range images {
		v := make(model.Vector, e.dim)
		v[0] = 1
		out[i] = v
	}
	return out, nil
}

func (e *testEmbedder) Dimension() int { return e.dim }
func (e *testEmbedder) InputSize() int { return 16 }

type testFetcher struct{}

func (testFetcher) Fetch(context.Context, string) (image.Image, error) {
	return image.NewRGBA(image.Rect(0, 0, 32, 32)), nil
}

func newTestServer(t *testing.T) (*Server, *store.Store) {
	t.Helper()

	bs := blobstore.NewMemoryStore()

	var blob bytes.Buffer
	require.NoError(t, index.WriteBlob(&blob, [][]float32{
		{1, 0, 0, 0},
		{0, 1, 0, 0},
		{0, 0, 1, 0},
	}, 4, 0))
	bs.Put(path.Join("efficientnet", index.IndexBlobName), blob.Bytes())

	var keys bytes.Buffer
	require.NoError(t, index.WriteKeys(&keys, []int64{10, 20, 30}))
	bs.Put(path.Join("efficientnet", index.KeysFileName), keys.Bytes())

	st, err := store.Open(filepath.Join(t.TempDir(), "embeddings.bin"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	pipe := pipeline.New(st, &testEmbedder{dim: 4}, func(o *pipeline.Options) {
		o.Fetcher = testFetcher{}
	})

	svc := logoann.New(st, pipe, func(o *logoann.Options) {
		o.Logger = logoann.NoopLogger()
	})
	require.NoError(t, svc.LoadIndexes(context.Background(), bs, []logoann.IndexSpec{
		{Name: "efficientnet", Dimension: 4},
	}))
	t.Cleanup(func() { svc.Close() })

	return New(svc, func(o *Options) {
		o.DefaultCount = 2
		o.Logger = logoann.NoopLogger()
	}), st
}

func doRequest(t *testing.T, srv *Server, method, target string, body string) *httptest.ResponseRecorder {
	t.Helper()

	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, target, nil)
	} else {
		r = httptest.NewRequest(method, target, strings.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
	}

	w := httptest.NewRecorder()
	srv.ServeHTTP(w, r)

	return w
}

func TestHandleNeighbors(t *testing.T) {
	srv, _ := newTestServer(t)

	w := doRequest(t, srv, http.MethodGet, "/api/v1/ann/10", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp neighborsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, 2, resp.Count)
	for _, n := range resp.Results {
		assert.NotEqual(t, model.LogoID(10), n.ID)
	}
	assert.LessOrEqual(t, resp.Results[0].Distance, resp.Results[1].Distance)
}

func TestHandleNeighborsStoredID(t *testing.T) {
	srv, st := newTestServer(t)

	_, err := st.AppendBatch([]model.LogoID{40}, []model.Vector{{0.9, 0.1, 0, 0}})
	require.NoError(t, err)

	w := doRequest(t, srv, http.MethodGet, "/api/v1/ann/40?count=1", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp neighborsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.Count)
	assert.Equal(t, model.LogoID(10), resp.Results[0].ID)
}

func TestHandleNeighborsErrors(t *testing.T) {
	srv, _ := newTestServer(t)

	tests := []struct {
		name   string
		target string
		want   int
	}{
		{"unknown id", "/api/v1/ann/999", http.StatusNotFound},
		{"bad id", "/api/v1/ann/abc", http.StatusBadRequest},
		{"unknown index", "/api/v1/ann/10?index=clip", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(t, srv, http.MethodGet, tt.target, "")
			assert.Equal(t, tt.want, w.Code)

			var resp errorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.NotEmpty(t, resp.Error)
		})
	}
}

func TestHandleRandom(t *testing.T) {
	srv, _ := newTestServer(t)

	w := doRequest(t, srv, http.MethodGet, "/api/v1/ann?count=1", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp neighborsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.Count)
	assert.Contains(t, []model.LogoID{10, 20, 30}, resp.Results[0].ID)
}

func TestHandleBatch(t *testing.T) {
	srv, _ := newTestServer(t)

	// 999 is unknown and silently omitted.
	w := doRequest(t, srv, http.MethodGet, "/api/v1/ann/batch?logo_ids=10,20,999&count=1", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp batchResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Count)
	assert.Contains(t, resp.Results, model.LogoID(10))
	assert.Contains(t, resp.Results, model.LogoID(20))
	assert.NotContains(t, resp.Results, model.LogoID(999))

	w = doRequest(t, srv, http.MethodGet, "/api/v1/ann/batch", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(t, srv, http.MethodGet, "/api/v1/ann/batch?logo_ids=1,x", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleFromEmbedding(t *testing.T) {
	srv, _ := newTestServer(t)

	w := doRequest(t, srv, http.MethodPost, "/api/v1/ann/from_embedding",
		`{"embedding": [0, 0.9, 0, 0], "count": 2}`)
	require.Equal(t, http.StatusOK, w.Code)

	var resp neighborsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, 2, resp.Count)
	assert.Equal(t, model.LogoID(20), resp.Results[0].ID)

	// Count defaults to 1 when absent.
	w = doRequest(t, srv, http.MethodPost, "/api/v1/ann/from_embedding",
		`{"embedding": [1, 0, 0, 0]}`)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Count)

	// Wrong dimensionality is the client's fault.
	w = doRequest(t, srv, http.MethodPost, "/api/v1/ann/from_embedding",
		`{"embedding": [1, 0]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(t, srv, http.MethodPost, "/api/v1/ann/from_embedding", `not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleAdd(t *testing.T) {
	srv, st := newTestServer(t)

	body := `{
		"image_url": "https://example.org/image.jpg",
		"logos": [
			{"id": 100, "bounding_box": [0, 0, 0.5, 0.5]},
			{"id": 101, "bounding_box": {"y_min": 0.5, "x_min": 0.5, "y_max": 1, "x_max": 1}}
		]
	}`

	w := doRequest(t, srv, http.MethodPost, "/api/v1/ann/add", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp addResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Added)
	assert.Equal(t, 2, st.Len())

	// Repeating the request adds nothing.
	w = doRequest(t, srv, http.MethodPost, "/api/v1/ann/add", body)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Zero(t, resp.Added)
}

func TestHandleAddValidation(t *testing.T) {
	srv, _ := newTestServer(t)

	tests := []struct {
		name string
		body string
	}{
		{"missing image_url", `{"logos": [{"id": 1, "bounding_box": [0, 0, 1, 1]}]}`},
		{"empty logos", `{"image_url": "https://example.org/x.jpg", "logos": []}`},
		{"bad bounding box", `{"image_url": "https://example.org/x.jpg", "logos": [{"id": 1, "bounding_box": [0.9, 0, 0.1, 1]}]}`},
		{"not json", `{{`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(t, srv, http.MethodPost, "/api/v1/ann/add", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
		})
	}
}

func TestHandleCountAndStored(t *testing.T) {
	srv, st := newTestServer(t)

	w := doRequest(t, srv, http.MethodGet, "/api/v1/ann/count", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"count": 0}`, w.Body.String())

	w = doRequest(t, srv, http.MethodGet, "/api/v1/ann/stored", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"stored": []}`, w.Body.String())

	_, err := st.AppendBatch(
		[]model.LogoID{50, 40},
		[]model.Vector{{0, 0, 0, 1}, {1, 0, 0, 0}},
	)
	require.NoError(t, err)

	w = doRequest(t, srv, http.MethodGet, "/api/v1/ann/count", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"count": 2}`, w.Body.String())

	w = doRequest(t, srv, http.MethodGet, "/api/v1/ann/stored", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"stored": [40, 50]}`, w.Body.String())
}

func TestCountClamping(t *testing.T) {
	srv, _ := newTestServer(t)

	tests := []struct {
		query string
		want  int
	}{
		{"", 2},          // default
		{"?count=1", 1},  // explicit
		{"?count=0", 2},  // invalid falls back to default
		{"?count=-5", 2}, // invalid falls back to default
		{"?count=x", 2},  // invalid falls back to default
		{"?count=9999", 2}, // clamped, and the queried logo is excluded
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("count%s", tt.query), func(t *testing.T) {
			w := doRequest(t, srv, http.MethodGet, "/api/v1/ann/10"+tt.query, "")
			require.Equal(t, http.StatusOK, w.Code)

			var resp neighborsResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tt.want, resp.Count)
		})
	}
}
