package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/DanielTromp/atlas/internal/core/domain"
	"github.com/DanielTromp/atlas/internal/logger"
)

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleSearch runs a hybrid search.
// POST /search
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, fmt.Errorf("%w: query is required", domain.ErrInvalidInput))
		return
	}

	resp, err := s.ports.Search.Search(r.Context(), req.Query, req.options(s.ports.SearchDefaults))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSearchResponse(resp))
}

// handleSync starts a detached sync and returns at once.
// POST /sync
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	var req SyncRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	if err := s.ports.Sync.Start(req.Spaces, req.FullSync); err != nil {
		writeError(w, err)
		return
	}

	mode := domain.SyncModeIncremental
	if req.FullSync {
		mode = domain.SyncModeFull
	}
	writeJSON(w, http.StatusAccepted, SyncAccepted{
		Status: "started",
		Mode:   string(mode),
		Spaces: req.Spaces,
	})
}

// handleStats reports index counts and sync state.
// GET /stats
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	report, err := s.ports.Index.Stats(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toStats(report))
}

// handleSpaces lists indexed spaces.
// GET /spaces
func (s *Server) handleSpaces(w http.ResponseWriter, r *http.Request) {
	spaces, err := s.ports.Index.ListSpaces(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]SpaceStats{"spaces": toSpaces(spaces)})
}

// handlePage returns a page with its chunks.
// GET /page/{id}
func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	page, chunks, err := s.ports.Index.GetPage(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPageResponse(page, chunks))
}

// decodeBody reads a JSON body. An empty body leaves v untouched.
func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: invalid request body: %v", domain.ErrInvalidInput, err)
	}
	return nil
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrSyncInProgress):
		return http.StatusConflict
	case errors.Is(err, domain.ErrCorpus), errors.Is(err, domain.ErrEmbedding):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.Error("HTTP API: %v", err)
	}
	writeJSON(w, status, ErrorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("HTTP API: encode response: %v", err)
	}
}
