package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/voxmate/backend/internal/middleware"
	"github.com/voxmate/backend/internal/models"
)

// UsageStats is the subset of the credit repository the analytics handler needs.
type UsageStats interface {
	ScenarioUsageStats(ctx context.Context, userID int64, start, end time.Time) ([]models.ScenarioUsage, error)
	PeriodStats(ctx context.Context, userID int64, period string) ([]models.PeriodStat, error)
}

// AnalyticsHandler serves /v1/analytics endpoints.
type AnalyticsHandler struct {
	Stats  UsageStats
	Logger *slog.Logger
}

// ScenarioUsage handles GET /v1/analytics/scenario-usage?days=30.
func (h *AnalyticsHandler) ScenarioUsage(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromCtx(r.Context())
	if !ok {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	days := 30
	if v := r.URL.Query().Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 365 {
			http.Error(w, `{"error":"days must be between 1 and 365"}`, http.StatusBadRequest)
			return
		}
		days = n
	}

	end := time.Now()
	start := end.Add(-time.Duration(days) * 24 * time.Hour)
	usage, err := h.Stats.ScenarioUsageStats(r.Context(), userID, start, end)
	if err != nil {
		h.Logger.Error("scenario usage stats", "user_id", userID, "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"days":  days,
		"usage": usage,
	})
}

// PeriodStats handles GET /v1/analytics/period-stats?period=day|week|month|year.
func (h *AnalyticsHandler) PeriodStats(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromCtx(r.Context())
	if !ok {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	period := r.URL.Query().Get("period")
	if period == "" {
		period = "week"
	}
	switch period {
	case "day", "week", "month", "year":
	default:
		http.Error(w, `{"error":"period must be one of day, week, month, year"}`, http.StatusBadRequest)
		return
	}

	stats, err := h.Stats.PeriodStats(r.Context(), userID, period)
	if err != nil {
		h.Logger.Error("period stats", "user_id", userID, "period", period, "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"period": period,
		"stats":  stats,
	})
}
