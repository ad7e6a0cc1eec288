package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/voxmate/backend/internal/middleware"
	"github.com/voxmate/backend/internal/models"
)

// QuotaLister is the subset of the quota repository the handler needs.
type QuotaLister interface {
	ListByUser(ctx context.Context, userID int64) ([]*models.Quota, error)
}

// QuotaHandler serves /v1/quotas.
type QuotaHandler struct {
	Quotas QuotaLister
	Logger *slog.Logger
}

type quotaView struct {
	ResourceType string `json:"resource_type"`
	Limit        int64  `json:"limit"`
	CurrentUsage int64  `json:"current_usage"`
	Remaining    int64  `json:"remaining"`
	ResetAt      string `json:"reset_at"`
}

// List handles GET /v1/quotas.
func (h *QuotaHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromCtx(r.Context())
	if !ok {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	quotas, err := h.Quotas.ListByUser(r.Context(), userID)
	if err != nil {
		h.Logger.Error("list quotas", "user_id", userID, "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}

	views := make([]quotaView, 0, len(quotas))
	for _, q := range quotas {
		views = append(views, quotaView{
			ResourceType: q.ResourceType,
			Limit:        q.Limit,
			CurrentUsage: q.CurrentUsage,
			Remaining:    q.Remaining(),
			ResetAt:      q.ResetAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{"quotas": views})
}
