// Package handlers serves the /v1 HTTP API.
package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/voxmate/backend/internal/middleware"
	"github.com/voxmate/backend/internal/models"
)

// CreditLedgerForHandler is the subset of the credit repository the handler needs.
type CreditLedgerForHandler interface {
	GetBalance(ctx context.Context, userID int64) (int64, error)
	Add(ctx context.Context, userID, amount int64, txType, description string) (int64, error)
	History(ctx context.Context, userID int64, limit, offset int) ([]*models.CreditTransaction, error)
}

// CreditHandler serves /v1/credits endpoints.
type CreditHandler struct {
	Ledger CreditLedgerForHandler
	Logger *slog.Logger
}

// GetBalance handles GET /v1/credits/balance.
func (h *CreditHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromCtx(r.Context())
	if !ok {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	balance, err := h.Ledger.GetBalance(r.Context(), userID)
	if err != nil {
		h.Logger.Error("get balance", "user_id", userID, "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]int64{"balance": balance})
}

// GetHistory handles GET /v1/credits/history?limit=&offset=.
func (h *CreditHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromCtx(r.Context())
	if !ok {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	limit, offset := parseLimitOffset(r, 50)
	txs, err := h.Ledger.History(r.Context(), userID, limit, offset)
	if err != nil {
		h.Logger.Error("credit history", "user_id", userID, "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"transactions": txs})
}

type addCreditsRequest struct {
	Amount      int64  `json:"amount"`
	Description string `json:"description"`
}

// AddCredits handles POST /v1/credits/add. The amount must be positive;
// deductions only ever happen through scenario settlement.
func (h *CreditHandler) AddCredits(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromCtx(r.Context())
	if !ok {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	var req addCreditsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	if req.Amount <= 0 {
		http.Error(w, `{"error":"amount must be > 0"}`, http.StatusBadRequest)
		return
	}
	if req.Description == "" {
		req.Description = "Manual credit top-up"
	}

	balance, err := h.Ledger.Add(r.Context(), userID, req.Amount, models.TxTypeManual, req.Description)
	if err != nil {
		h.Logger.Error("add credits", "user_id", userID, "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]int64{"balance": balance})
}

// --- helpers ---

func parseLimitOffset(r *http.Request, defaultLimit int) (int, int) {
	limit := defaultLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}
	offset := 0
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}
	return limit, offset
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
