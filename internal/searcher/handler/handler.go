package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/Adithya-Monish-Kumar-K/proximity-index/internal/indexer/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/proximity-index/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/proximity-index/pkg/logger"
)

const (
	defaultTermLimit = 20
	maxTermLimit     = 1000
)

// Register mounts the query endpoints on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/search", h.HandleSearch)
	mux.HandleFunc("GET /api/v1/positions", h.HandlePositions)
	mux.HandleFunc("GET /api/v1/terms", h.HandleTerms)
	mux.HandleFunc("GET /api/v1/documents/{id}", h.HandleDocument)
	mux.HandleFunc("GET /api/v1/stats", h.HandleStats)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)
}

func (h *Handler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		h.writeError(w, r, apperrors.Malformed("query parameter 'q' is required"))
		return
	}
	resp, err := h.Search(r.Context(), query, r.URL.Query().Get("mode"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) HandlePositions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	doc, err := strconv.ParseUint(q.Get("doc"), 10, 32)
	if err != nil {
		h.writeError(w, r, apperrors.Malformed("doc must be a positive document id"))
		return
	}
	resp, err := h.Positions(q.Get("term"), uint32(doc))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) HandleTerms(w http.ResponseWriter, r *http.Request) {
	snap, err := h.snapshot()
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	limit := defaultTermLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 {
			h.writeError(w, r, apperrors.Malformed("limit must be a positive integer"))
			return
		}
		limit = min(parsed, maxTermLimit)
	}
	prefix := r.URL.Query().Get("prefix")
	h.writeJSON(w, http.StatusOK, map[string]any{
		"generation": snap.Index.Generation(),
		"prefix":     prefix,
		"terms":      snap.Index.Vocabulary(prefix, limit),
	})
}

func (h *Handler) HandleDocument(w http.ResponseWriter, r *http.Request) {
	snap, err := h.snapshot()
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 32)
	if err != nil {
		h.writeError(w, r, apperrors.Malformed("document id %q is not a number", r.PathValue("id")))
		return
	}
	doc, ok := snap.Catalog.Lookup(index.DocID(id))
	if !ok {
		h.writeError(w, r, apperrors.Newf(apperrors.ErrUnknownDocument, http.StatusNotFound, "document %d does not exist", id))
		return
	}
	h.writeJSON(w, http.StatusOK, doc)
}

func (h *Handler) HandleStats(w http.ResponseWriter, r *http.Request) {
	resp, err := h.Stats()
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}
	h.writeJSON(w, http.StatusOK, h.cache.Stats())
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "caching is disabled"})
		return
	}
	if err := h.cache.Invalidate(r.Context()); err != nil {
		logger.FromContext(r.Context()).Error("cache invalidation failed", "error", err)
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "cache invalidation failed"})
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

// writeError maps err to its status. Unclassified failures are logged and
// reported without detail.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperrors.HTTPStatusCode(err)
	message := apperrors.Message(err)
	if status == http.StatusInternalServerError {
		logger.FromContext(r.Context()).Error("request failed", "path", r.URL.Path, "error", err)
		message = "internal error"
	}
	h.writeJSON(w, status, map[string]string{"error": message})
}
