package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/voxmate/backend/internal/models"
)

// ErrQuotaNotFound is returned when no quota row exists for a
// (user, resource type) pair. Callers treat absence as "unlimited"; the
// policy lives in the orchestrator, not here.
var ErrQuotaNotFound = errors.New("quota not found")

// QuotaRepo stores rolling usage counters, one row per
// (user_id, resource_type). The pair is unique so provisioning is idempotent.
type QuotaRepo struct {
	pool *pgxpool.Pool
}

func NewQuotaRepo(pool *pgxpool.Pool) *QuotaRepo {
	return &QuotaRepo{pool: pool}
}

const quotaColumns = `id, user_id, resource_type, usage_limit, current_usage, reset_at`

// Get returns the quota row or ErrQuotaNotFound.
func (r *QuotaRepo) Get(ctx context.Context, userID int64, resourceType string) (*models.Quota, error) {
	var q models.Quota
	err := r.pool.QueryRow(ctx, `
		SELECT `+quotaColumns+` FROM quotas WHERE user_id = $1 AND resource_type = $2
	`, userID, resourceType).Scan(&q.ID, &q.UserID, &q.ResourceType, &q.Limit, &q.CurrentUsage, &q.ResetAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrQuotaNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get quota: %w", err)
	}
	return &q, nil
}

// Increment adds `by` to the usage counter. An expired window is reset in the
// same statement: usage restarts at `by` and reset_at advances one full
// window from now. Reset and increment are one atomic UPDATE so concurrent
// increments racing an expiry cannot double-count or lose the reset.
func (r *QuotaRepo) Increment(ctx context.Context, userID int64, resourceType string, by int64) (*models.Quota, error) {
	var q models.Quota
	err := r.pool.QueryRow(ctx, `
		UPDATE quotas
		SET current_usage = CASE WHEN now() > reset_at THEN $3 ELSE current_usage + $3 END,
		    reset_at      = CASE WHEN now() > reset_at THEN now() + $4 ELSE reset_at END
		WHERE user_id = $1 AND resource_type = $2
		RETURNING `+quotaColumns+`
	`, userID, resourceType, by, models.QuotaWindow).Scan(&q.ID, &q.UserID, &q.ResourceType, &q.Limit, &q.CurrentUsage, &q.ResetAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrQuotaNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("increment quota: %w", err)
	}
	return &q, nil
}

// Create provisions a quota row with usage 0 and a fresh window. Upsert
// semantics: re-provisioning the same pair only updates the limit and never
// duplicates rows or clobbers accumulated usage.
func (r *QuotaRepo) Create(ctx context.Context, userID int64, resourceType string, limit int64) (*models.Quota, error) {
	var q models.Quota
	err := r.pool.QueryRow(ctx, `
		INSERT INTO quotas (user_id, resource_type, usage_limit, current_usage, reset_at)
		VALUES ($1, $2, $3, 0, now() + $4)
		ON CONFLICT (user_id, resource_type) DO UPDATE SET usage_limit = EXCLUDED.usage_limit
		RETURNING `+quotaColumns+`
	`, userID, resourceType, limit, models.QuotaWindow).Scan(&q.ID, &q.UserID, &q.ResourceType, &q.Limit, &q.CurrentUsage, &q.ResetAt)
	if err != nil {
		return nil, fmt.Errorf("create quota: %w", err)
	}
	return &q, nil
}

// Reset forces usage back to 0 with reset_at = now. Returns false when no
// row exists.
func (r *QuotaRepo) Reset(ctx context.Context, userID int64, resourceType string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE quotas SET current_usage = 0, reset_at = now()
		WHERE user_id = $1 AND resource_type = $2
	`, userID, resourceType)
	if err != nil {
		return false, fmt.Errorf("reset quota: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ListByUser returns all quota rows for the user.
func (r *QuotaRepo) ListByUser(ctx context.Context, userID int64) ([]*models.Quota, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+quotaColumns+` FROM quotas WHERE user_id = $1 ORDER BY resource_type
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list quotas: %w", err)
	}
	defer rows.Close()

	var list []*models.Quota
	for rows.Next() {
		var q models.Quota
		if err := rows.Scan(&q.ID, &q.UserID, &q.ResourceType, &q.Limit, &q.CurrentUsage, &q.ResetAt); err != nil {
			return nil, fmt.Errorf("list quotas: %w", err)
		}
		list = append(list, &q)
	}
	return list, rows.Err()
}
