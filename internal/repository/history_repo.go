package repository

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/voxmate/backend/internal/models"
)

// ErrRequestNotFound is returned when no audit record has the requested id.
var ErrRequestNotFound = errors.New("request not found")

// maxPayloadExcerpt bounds stored request/response excerpts. Anything longer
// is cut to 997 characters plus an ellipsis marker.
const maxPayloadExcerpt = 1000

// HistoryRepo is the append-only request audit log. Records are written for
// every resource invocation regardless of outcome, and never mutated.
type HistoryRepo struct {
	pool *pgxpool.Pool
}

func NewHistoryRepo(pool *pgxpool.Pool) *HistoryRepo {
	return &HistoryRepo{pool: pool}
}

// Save appends an audit record, truncating payload excerpts to the storage
// bound. The passed record's ID, CreatedAt, and truncated fields are set.
func (r *HistoryRepo) Save(ctx context.Context, rec *models.RequestHistory) (*models.RequestHistory, error) {
	rec.RequestData = truncateExcerpt(rec.RequestData)
	rec.ResponseData = truncateExcerpt(rec.ResponseData)

	err := r.pool.QueryRow(ctx, `
		INSERT INTO request_history (user_id, request_type, request_data, response_data, status, error_message, processing_time)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`, rec.UserID, rec.RequestType, rec.RequestData, rec.ResponseData, rec.Status, rec.ErrorMessage, rec.ProcessingTime).
		Scan(&rec.ID, &rec.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("save request: %w", err)
	}
	return rec, nil
}

// ListByUser returns the user's audit records, newest first. Payload excerpts
// are omitted from listings; GetByID returns them.
func (r *HistoryRepo) ListByUser(ctx context.Context, userID int64, limit, offset int) ([]*models.RequestHistory, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, request_type, status, processing_time, created_at
		FROM request_history
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	defer rows.Close()

	var list []*models.RequestHistory
	for rows.Next() {
		var h models.RequestHistory
		if err := rows.Scan(&h.ID, &h.UserID, &h.RequestType, &h.Status, &h.ProcessingTime, &h.CreatedAt); err != nil {
			return nil, fmt.Errorf("list requests: %w", err)
		}
		list = append(list, &h)
	}
	return list, rows.Err()
}

// GetByID returns the full audit record including payload excerpts.
func (r *HistoryRepo) GetByID(ctx context.Context, id int64) (*models.RequestHistory, error) {
	var h models.RequestHistory
	err := r.pool.QueryRow(ctx, `
		SELECT id, user_id, request_type, request_data, response_data, status, error_message, processing_time, created_at
		FROM request_history WHERE id = $1
	`, id).Scan(&h.ID, &h.UserID, &h.RequestType, &h.RequestData, &h.ResponseData, &h.Status, &h.ErrorMessage, &h.ProcessingTime, &h.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrRequestNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get request: %w", err)
	}
	return &h, nil
}

// truncateExcerpt enforces the payload storage bound: values longer than
// 1000 characters become the first 997 plus "...". The bound counts
// characters, not bytes, so a multibyte payload is never cut mid-rune.
func truncateExcerpt(s *string) *string {
	if s == nil || utf8.RuneCountInString(*s) <= maxPayloadExcerpt {
		return s
	}
	cut := string([]rune(*s)[:maxPayloadExcerpt-3]) + "..."
	return &cut
}
