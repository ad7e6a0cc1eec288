package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/voxmate/backend/internal/middleware"
	"github.com/voxmate/backend/internal/models"
	"github.com/voxmate/backend/internal/repository"
)

// HistoryReader is the subset of the history repository the handler needs.
type HistoryReader interface {
	ListByUser(ctx context.Context, userID int64, limit, offset int) ([]*models.RequestHistory, error)
	GetByID(ctx context.Context, id int64) (*models.RequestHistory, error)
}

// RequestHandler serves /v1/requests endpoints.
type RequestHandler struct {
	History HistoryReader
	Logger  *slog.Logger
}

// List handles GET /v1/requests?limit=&offset=. Payload excerpts are omitted
// from the listing; fetch a single record for the full excerpts.
func (h *RequestHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromCtx(r.Context())
	if !ok {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	limit, offset := parseLimitOffset(r, 50)
	recs, err := h.History.ListByUser(r.Context(), userID, limit, offset)
	if err != nil {
		h.Logger.Error("list requests", "user_id", userID, "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"requests": recs})
}

// Get handles GET /v1/requests/{id}. Records belonging to other users are
// reported as not found rather than forbidden.
func (h *RequestHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromCtx(r.Context())
	if !ok {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	id, ok := extractRequestID(r)
	if !ok {
		http.Error(w, `{"error":"invalid request id"}`, http.StatusBadRequest)
		return
	}

	rec, err := h.History.GetByID(r.Context(), id)
	if errors.Is(err, repository.ErrRequestNotFound) {
		http.Error(w, `{"error":"request not found"}`, http.StatusNotFound)
		return
	}
	if err != nil {
		h.Logger.Error("get request", "id", id, "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	if rec.UserID != userID {
		http.Error(w, `{"error":"request not found"}`, http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

// extractRequestID parses the {id} segment matched by the route pattern.
func extractRequestID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
