// Package httpapi exposes the neighbor resolver over HTTP.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/hupe1980/logoann"
	"github.com/hupe1980/logoann/model"
	"github.com/hupe1980/logoann/pipeline"
)

// Options contains server configuration.
type Options struct {
	// DefaultCount is the result count used when a request names none.
	DefaultCount int

	// MaxCount caps the per-request result count.
	MaxCount int

	// Logger for request errors. Defaults to a text logger on stderr.
	Logger *logoann.Logger
}

// DefaultOptions is the default server configuration.
var DefaultOptions = Options{
	DefaultCount: 100,
	MaxCount:     500,
}

// Server serves the neighbor resolution API.
type Server struct {
	service *logoann.Service
	opts    Options
	mux     *http.ServeMux
}

// New creates a Server over the given service.
func New(service *logoann.Service, optFns ...func(o *Options)) *Server {
	opts := DefaultOptions

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Logger == nil {
		opts.Logger = logoann.NewLogger(nil)
	}

	s := &Server{
		service: service,
		opts:    opts,
		mux:     http.NewServeMux(),
	}
	s.routes()

	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /api/v1/ann", s.handleRandom)
	s.mux.HandleFunc("GET /api/v1/ann/{logo_id}", s.handleNeighbors)
	s.mux.HandleFunc("GET /api/v1/ann/batch", s.handleBatch)
	s.mux.HandleFunc("POST /api/v1/ann/from_embedding", s.handleFromEmbedding)
	s.mux.HandleFunc("POST /api/v1/ann/add", s.handleAdd)
	s.mux.HandleFunc("GET /api/v1/ann/count", s.handleCount)
	s.mux.HandleFunc("GET /api/v1/ann/stored", s.handleStored)
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

type neighborsResponse struct {
	Results []model.Neighbor `json:"results"`
	Count   int              `json:"count"`
}

type batchResponse struct {
	Results map[model.LogoID][]model.Neighbor `json:"results"`
	Count   int                               `json:"count"`
}

func (s *Server) handleNeighbors(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("logo_id"), 10, 64)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, errors.New("logo_id must be an integer"))
		return
	}

	neighbors, err := s.service.Neighbors(r.Context(), r.URL.Query().Get("index"), model.LogoID(id), s.count(r))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	s.writeJSON(w, neighborsResponse{Results: neighbors, Count: len(neighbors)})
}

func (s *Server) handleRandom(w http.ResponseWriter, r *http.Request) {
	indexName := r.URL.Query().Get("index")

	id, err := s.service.RandomID(indexName)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	neighbors, err := s.service.Neighbors(r.Context(), indexName, id, s.count(r))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	s.writeJSON(w, neighborsResponse{Results: neighbors, Count: len(neighbors)})
}

func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	ids, err := parseLogoIDs(r.URL.Query().Get("logo_ids"))
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}

	results, err := s.service.NeighborsBatch(r.Context(), r.URL.Query().Get("index"), ids, s.count(r))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	s.writeJSON(w, batchResponse{Results: results, Count: len(results)})
}

type fromEmbeddingRequest struct {
	Embedding model.Vector `json:"embedding"`
	Count     int          `json:"count"`
	Index     string       `json:"index"`
}

func (s *Server) handleFromEmbedding(w http.ResponseWriter, r *http.Request) {
	var req fromEmbeddingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}

	count := req.Count
	if count <= 0 {
		count = 1
	}
	if count > s.opts.MaxCount {
		count = s.opts.MaxCount
	}

	neighbors, err := s.service.NeighborsByVector(r.Context(), req.Index, req.Embedding, count)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	s.writeJSON(w, neighborsResponse{Results: neighbors, Count: len(neighbors)})
}

type addRequest struct {
	ImageURL string    `json:"image_url"`
	Logos    []addLogo `json:"logos"`
}

type addLogo struct {
	ID          model.LogoID      `json:"id"`
	BoundingBox model.BoundingBox `json:"bounding_box"`
}

type addResponse struct {
	Added int `json:"added"`
}

func (s *Server) handleAdd(w http.ResponseWriter, r *http.Request) {
	var req addRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}

	if req.ImageURL == "" {
		s.writeError(w, r, http.StatusBadRequest, errors.New("image_url is required"))
		return
	}
	if len(req.Logos) == 0 {
		s.writeError(w, r, http.StatusBadRequest, errors.New("logos must not be empty"))
		return
	}

	ids := make([]model.LogoID, len(req.Logos))
	boxes := make([]model.BoundingBox, len(req.Logos))
	for i, logo := range req.Logos {
		ids[i] = logo.ID
		boxes[i] = logo.BoundingBox
	}

	added, err := s.service.AddLogosFromURL(r.Context(), req.ImageURL, ids, boxes)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	s.writeJSON(w, addResponse{Added: added})
}

func (s *Server) handleCount(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, map[string]int{"count": s.service.StoredCount()})
}

func (s *Server) handleStored(w http.ResponseWriter, r *http.Request) {
	ids := s.service.StoredIDs()
	if ids == nil {
		ids = []model.LogoID{}
	}

	s.writeJSON(w, map[string][]model.LogoID{"stored": ids})
}

// count reads the "count" query parameter and clamps it to [1, MaxCount].
func (s *Server) count(r *http.Request) int {
	raw := r.URL.Query().Get("count")
	if raw == "" {
		return s.opts.DefaultCount
	}

	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return s.opts.DefaultCount
	}
	if n > s.opts.MaxCount {
		return s.opts.MaxCount
	}

	return n
}

func parseLogoIDs(raw string) ([]model.LogoID, error) {
	if raw == "" {
		return nil, errors.New("logo_ids is required")
	}

	parts := strings.Split(raw, ",")
	ids := make([]model.LogoID, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, errors.New("logo_ids must be a comma-separated list of integers")
		}

		ids = append(ids, model.LogoID(id))
	}

	return ids, nil
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	if status >= http.StatusInternalServerError {
		s.opts.Logger.ErrorContext(r.Context(), "request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorResponse{Error: err.Error()})
}

// writeServiceError maps service errors to HTTP status codes.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		dimErr *logoann.ErrDimensionMismatch
		imgErr *pipeline.ErrInvalidImage
	)

	switch {
	case errors.Is(err, logoann.ErrUnknownID):
		s.writeError(w, r, http.StatusNotFound, err)
	case errors.Is(err, logoann.ErrUnknownIndex),
		errors.Is(err, logoann.ErrInvalidK),
		errors.Is(err, model.ErrInvalidBoundingBox),
		errors.As(err, &dimErr),
		errors.As(err, &imgErr):
		s.writeError(w, r, http.StatusBadRequest, err)
	default:
		s.writeError(w, r, http.StatusInternalServerError, err)
	}
}
