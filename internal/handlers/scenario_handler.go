package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"

	"github.com/voxmate/backend/internal/execution"
	"github.com/voxmate/backend/internal/middleware"
	"github.com/voxmate/backend/internal/scenarios"
)

// JobEnqueuer abstracts the job queue so tests don't need a database.
type JobEnqueuer interface {
	Insert(ctx context.Context, args river.JobArgs, opts *river.InsertOpts) (*rivertype.JobInsertResult, error)
}

// ScenarioHandler serves POST /v1/scenarios/run. The credit check middleware
// has already authorized the invocation and restored the body by the time
// this handler runs.
type ScenarioHandler struct {
	Queue     JobEnqueuer
	Validator *scenarios.Validator
	Logger    *slog.Logger
}

type runScenarioRequest struct {
	ResourceType string          `json:"resource_type"`
	Payload      json.RawMessage `json:"payload"`
}

type runScenarioResponse struct {
	InvocationID string `json:"invocation_id"`
	JobID        int64  `json:"job_id"`
	Status       string `json:"status"`
}

// Run handles POST /v1/scenarios/run.
// Auth -> CreditCheck (via middleware) -> Validate Payload -> Enqueue -> 202.
func (h *ScenarioHandler) Run(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromCtx(r.Context())
	if !ok {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	var req runScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	// Enqueue exactly what the credit check authorized.
	if rt := middleware.ScenarioFromCtx(r.Context()); rt != "" {
		req.ResourceType = rt
	}
	if req.ResourceType == "" {
		http.Error(w, `{"error":"resource_type is required"}`, http.StatusBadRequest)
		return
	}

	if err := h.Validator.ValidateInput(req.ResourceType, req.Payload); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
		return
	}

	invocationID := uuid.New()
	res, err := h.Queue.Insert(r.Context(), execution.RunScenarioJobArgs{
		InvocationID: invocationID,
		UserID:       userID,
		ResourceType: req.ResourceType,
		Payload:      req.Payload,
	}, nil)
	if err != nil {
		h.Logger.Error("enqueue scenario", "user_id", userID, "resource_type", req.ResourceType, "error", err)
		http.Error(w, `{"error":"failed to enqueue scenario"}`, http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusAccepted, runScenarioResponse{
		InvocationID: invocationID.String(),
		JobID:        res.Job.ID,
		Status:       "queued",
	})
}
