package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/voxmate/backend/internal/auth"
	"github.com/voxmate/backend/internal/models"
)

// Provisioner is the subset of the resource manager the handler needs.
type Provisioner interface {
	ProvisionDefaults(ctx context.Context, userID int64) ([]*models.Quota, error)
}

// ProvisionLedger grants starter credits exactly once per user.
type ProvisionLedger interface {
	GrantInitial(ctx context.Context, userID, amount int64, description string) (int64, bool, error)
}

const initialGrant = 100

// UserHandler serves POST /v1/users/provision. The endpoint is called by the
// account service when a user signs up, not by end users, so it does not sit
// behind token auth.
type UserHandler struct {
	Manager Provisioner
	Ledger  ProvisionLedger
	Auth    auth.Service
	Logger  *slog.Logger
}

type provisionRequest struct {
	UserID int64 `json:"user_id"`
}

type provisionResponse struct {
	UserID  int64           `json:"user_id"`
	Balance int64           `json:"balance"`
	Quotas  []*models.Quota `json:"quotas"`
	Token   string          `json:"token"`
}

// Provision handles POST /v1/users/provision. Idempotent: default quotas are
// upserted and the initial grant is applied only to an empty ledger.
func (h *UserHandler) Provision(w http.ResponseWriter, r *http.Request) {
	var req provisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	if req.UserID <= 0 {
		http.Error(w, `{"error":"user_id must be > 0"}`, http.StatusBadRequest)
		return
	}

	quotas, err := h.Manager.ProvisionDefaults(r.Context(), req.UserID)
	if err != nil {
		h.Logger.Error("provision quotas", "user_id", req.UserID, "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}

	// An existing ledger, even a drained one, means the user was already
	// provisioned; the store applies the grant once, atomically.
	balance, granted, err := h.Ledger.GrantInitial(r.Context(), req.UserID, initialGrant, "Initial credit grant")
	if err != nil {
		h.Logger.Error("initial grant", "user_id", req.UserID, "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	if granted {
		h.Logger.Info("initial credits granted", "user_id", req.UserID, "amount", initialGrant)
	}

	token, err := h.Auth.IssueToken(r.Context(), req.UserID)
	if err != nil {
		h.Logger.Error("issue token", "user_id", req.UserID, "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, provisionResponse{
		UserID:  req.UserID,
		Balance: balance,
		Quotas:  quotas,
		Token:   token,
	})
}
