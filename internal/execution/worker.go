// Package execution runs queued scenario invocations and settles their
// billing outcome.
package execution

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/riverqueue/river"

	"github.com/voxmate/backend/internal/models"
	"github.com/voxmate/backend/internal/resources"
)

type RunScenarioJobArgs struct {
	InvocationID uuid.UUID       `json:"invocation_id"`
	UserID       int64           `json:"user_id"`
	ResourceType string          `json:"resource_type"`
	Payload      json.RawMessage `json:"payload"`
}

func (RunScenarioJobArgs) Kind() string { return "run_scenario" }

// Invoker performs the actual scenario work (browser command, LLM call).
type Invoker interface {
	Invoke(ctx context.Context, resourceType string, payload json.RawMessage) (json.RawMessage, error)
}

// Recorder defines the contract the worker needs to settle an invocation.
type Recorder interface {
	Record(ctx context.Context, p resources.RecordParams) (*models.RequestHistory, *models.Quota, error)
}

type RunScenarioWorker struct {
	river.WorkerDefaults[RunScenarioJobArgs]
	invoker  Invoker
	recorder Recorder
	logger   *slog.Logger
}

func NewRunScenarioWorker(invoker Invoker, recorder Recorder, logger *slog.Logger) *RunScenarioWorker {
	return &RunScenarioWorker{invoker: invoker, recorder: recorder, logger: logger}
}

func (w *RunScenarioWorker) Work(ctx context.Context, job *river.Job[RunScenarioJobArgs]) error {
	args := job.Args
	log := w.logger.With(
		"invocation_id", args.InvocationID,
		"user_id", args.UserID,
		"resource_type", args.ResourceType,
	)

	start := time.Now()
	output, invokeErr := w.invoker.Invoke(ctx, args.ResourceType, args.Payload)
	elapsed := time.Since(start).Milliseconds()

	params := resources.RecordParams{
		UserID:         args.UserID,
		ResourceType:   args.ResourceType,
		RequestData:    rawToPtr(args.Payload),
		ProcessingTime: &elapsed,
	}
	if invokeErr != nil {
		params.Status = models.RequestStatusError
		msg := invokeErr.Error()
		params.ErrorMessage = &msg
	} else {
		params.Status = models.RequestStatusSuccess
		params.ResponseData = rawToPtr(output)
	}

	rec, _, err := w.recorder.Record(ctx, params)
	switch {
	case errors.Is(err, resources.ErrInsufficientCredits):
		// The balance was drained between authorization and settlement.
		// The audit record exists; retrying would re-run the scenario.
		log.Warn("spend lost race to concurrent deduction", "duration_ms", elapsed)
		return nil
	case errors.Is(err, resources.ErrQuotaSettleFailed):
		// The charge committed; a retry would invoke and charge again.
		log.Warn("quota not incremented for charged invocation", "duration_ms", elapsed, "error", err)
		return nil
	case err != nil:
		// Nothing charged yet; returning the error lets the queue retry.
		return fmt.Errorf("settle invocation %s: %w", args.InvocationID, err)
	}

	if invokeErr != nil {
		log.Warn("scenario failed", "request_id", rec.ID, "duration_ms", elapsed, "error", invokeErr)
		return nil
	}
	log.Info("scenario completed", "request_id", rec.ID, "duration_ms", elapsed)
	return nil
}

func rawToPtr(raw json.RawMessage) *string {
	if len(raw) == 0 {
		return nil
	}
	s := string(raw)
	return &s
}
