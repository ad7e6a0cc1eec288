package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/voxmate/backend/internal/models"
)

// ErrInsufficientCredits is returned when a debit would drive the derived
// balance negative. No entry is appended in that case.
var ErrInsufficientCredits = errors.New("insufficient credits")

// Cache is the balance cache as seen by the ledger store. Implemented by
// cache.BalanceCache.
type Cache interface {
	Get(ctx context.Context, userID int64) (int64, bool, error)
	Set(ctx context.Context, userID int64, balance int64) error
	Invalidate(ctx context.Context, userID int64) error
}

// CreditRepo is the ledger store. credit_transactions is append-only and a
// user's balance is always SUM(amount) over their entries; no row stores a
// mutable balance that could drift from the log.
type CreditRepo struct {
	pool  *pgxpool.Pool
	cache Cache
}

func NewCreditRepo(pool *pgxpool.Pool, cache Cache) *CreditRepo {
	return &CreditRepo{pool: pool, cache: cache}
}

// GetBalance returns the user's balance, read-through: cache hit wins, a miss
// recomputes the sum (no entries means 0) and repopulates the cache. Cache
// failures degrade to a ledger read; they never fail the call.
func (r *CreditRepo) GetBalance(ctx context.Context, userID int64) (int64, error) {
	if balance, ok, err := r.cache.Get(ctx, userID); err == nil && ok {
		return balance, nil
	}

	var balance int64
	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount), 0) FROM credit_transactions WHERE user_id = $1
	`, userID).Scan(&balance)
	if err != nil {
		return 0, fmt.Errorf("get balance: %w", err)
	}

	// Best effort; TTL expiry covers a lost write.
	_ = r.cache.Set(ctx, userID, balance)
	return balance, nil
}

// Add appends a credit entry and returns the new balance. amount must be > 0.
func (r *CreditRepo) Add(ctx context.Context, userID, amount int64, txType, description string) (int64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("add credits: amount must be positive, got %d", amount)
	}
	_, balance, err := r.append(ctx, userID, amount, txType, nil, strPtr(description))
	return balance, err
}

// GrantInitial appends the starter grant only when the user's ledger is
// empty, under the same per-user lock as every other append, so concurrent
// provisioning cannot grant twice. Returns the resulting balance and whether
// the grant was applied.
func (r *CreditRepo) GrantInitial(ctx context.Context, userID, amount int64, description string) (int64, bool, error) {
	if amount <= 0 {
		return 0, false, fmt.Errorf("grant initial: amount must be positive, got %d", amount)
	}
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, false, fmt.Errorf("grant initial: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, userID); err != nil {
		return 0, false, fmt.Errorf("grant initial: lock user %d: %w", userID, err)
	}

	var entries, balance int64
	err = tx.QueryRow(ctx, `
		SELECT COUNT(*), COALESCE(SUM(amount), 0) FROM credit_transactions WHERE user_id = $1
	`, userID).Scan(&entries, &balance)
	if err != nil {
		return 0, false, fmt.Errorf("grant initial: %w", err)
	}
	if entries > 0 {
		return balance, false, nil
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO credit_transactions (user_id, amount, transaction_type, description)
		VALUES ($1, $2, $3, $4)
	`, userID, amount, models.TxTypeInitial, strPtr(description))
	if err != nil {
		return 0, false, fmt.Errorf("grant initial: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, false, fmt.Errorf("grant initial: %w", err)
	}

	_ = r.cache.Invalidate(ctx, userID)
	return amount, true, nil
}

// Spend appends a scenario_usage debit entry if the balance covers it.
// Returns ErrInsufficientCredits, with no entry appended, when it does not.
// amount must be > 0.
func (r *CreditRepo) Spend(ctx context.Context, userID, amount int64, scenarioType, description string) (int64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("spend credits: amount must be positive, got %d", amount)
	}
	_, balance, err := r.append(ctx, userID, -amount, models.TxTypeScenarioUsage, strPtr(scenarioType), strPtr(description))
	return balance, err
}

// CreateTransaction is the generic low-level append used by both credit and
// debit paths. A negative amount is rejected with ErrInsufficientCredits if
// the resulting balance would be negative.
func (r *CreditRepo) CreateTransaction(ctx context.Context, userID, amount int64, txType, description string) (*models.CreditTransaction, error) {
	entry, _, err := r.append(ctx, userID, amount, txType, nil, strPtr(description))
	return entry, err
}

// append serializes the read-check-write sequence per user with a
// transaction-scoped advisory lock. The balance is derived, so there is no
// account row to lock FOR UPDATE; the advisory lock on user_id is the
// equivalent critical section. A plain conditional insert is not enough
// under READ COMMITTED: two concurrent debits can both read the same
// committed sum.
func (r *CreditRepo) append(ctx context.Context, userID, amount int64, txType string, scenarioType, description *string) (*models.CreditTransaction, int64, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("append entry: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, userID); err != nil {
		return nil, 0, fmt.Errorf("append entry: lock user %d: %w", userID, err)
	}

	var balance int64
	err = tx.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount), 0) FROM credit_transactions WHERE user_id = $1
	`, userID).Scan(&balance)
	if err != nil {
		return nil, 0, fmt.Errorf("append entry: %w", err)
	}

	if amount < 0 && balance+amount < 0 {
		return nil, 0, ErrInsufficientCredits
	}

	entry := &models.CreditTransaction{
		UserID:          userID,
		Amount:          amount,
		TransactionType: txType,
		ScenarioType:    scenarioType,
		Description:     description,
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO credit_transactions (user_id, amount, transaction_type, scenario_type, description)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`, userID, amount, txType, scenarioType, description).Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		return nil, 0, fmt.Errorf("append entry: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, 0, fmt.Errorf("append entry: %w", err)
	}

	// Invalidate strictly after the write is durable, so a reader can never
	// treat a pre-write cached value as current past the TTL.
	_ = r.cache.Invalidate(ctx, userID)

	return entry, balance + amount, nil
}

// History returns the user's ledger entries, newest first.
func (r *CreditRepo) History(ctx context.Context, userID int64, limit, offset int) ([]*models.CreditTransaction, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, amount, transaction_type, scenario_type, description, created_at
		FROM credit_transactions
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("history: %w", err)
	}
	defer rows.Close()

	var list []*models.CreditTransaction
	for rows.Next() {
		var t models.CreditTransaction
		if err := rows.Scan(&t.ID, &t.UserID, &t.Amount, &t.TransactionType, &t.ScenarioType, &t.Description, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("history: %w", err)
		}
		list = append(list, &t)
	}
	return list, rows.Err()
}

// ScenarioUsageStats aggregates scenario_usage debits in [start, end] by
// scenario type: total credits debited (absolute) and entry count.
func (r *CreditRepo) ScenarioUsageStats(ctx context.Context, userID int64, start, end time.Time) ([]models.ScenarioUsage, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT COALESCE(scenario_type, transaction_type), SUM(-amount), COUNT(*)
		FROM credit_transactions
		WHERE user_id = $1
		  AND transaction_type = $2
		  AND amount < 0
		  AND created_at >= $3 AND created_at <= $4
		GROUP BY COALESCE(scenario_type, transaction_type)
		ORDER BY 1
	`, userID, models.TxTypeScenarioUsage, start, end)
	if err != nil {
		return nil, fmt.Errorf("scenario usage stats: %w", err)
	}
	defer rows.Close()

	var stats []models.ScenarioUsage
	for rows.Next() {
		var s models.ScenarioUsage
		if err := rows.Scan(&s.ScenarioType, &s.TotalUsage, &s.UsageCount); err != nil {
			return nil, fmt.Errorf("scenario usage stats: %w", err)
		}
		s.CreditCost = s.TotalUsage
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

// PeriodStats reports spend in fixed-width buckets walking backward from now:
// 24 hourly buckets for "day", 7 or 30 daily buckets for "week"/"month", and
// 12 thirty-day buckets for "year". Buckets are independent aggregates over
// created_at membership in [start, end).
func (r *CreditRepo) PeriodStats(ctx context.Context, userID int64, period string) ([]models.PeriodStat, error) {
	intervals, layout, err := periodIntervals(time.Now().UTC(), period)
	if err != nil {
		return nil, err
	}

	stats := make([]models.PeriodStat, 0, len(intervals))
	for _, iv := range intervals {
		breakdown, total, err := r.bucketStats(ctx, userID, iv.start, iv.end)
		if err != nil {
			return nil, err
		}
		stats = append(stats, models.PeriodStat{
			Period:            iv.start.Format(layout),
			TotalSpent:        total,
			ScenarioBreakdown: breakdown,
		})
	}
	return stats, nil
}

func (r *CreditRepo) bucketStats(ctx context.Context, userID int64, start, end time.Time) ([]models.ScenarioUsage, int64, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT COALESCE(scenario_type, ''), SUM(-amount), COUNT(*)
		FROM credit_transactions
		WHERE user_id = $1
		  AND transaction_type = $2
		  AND created_at >= $3 AND created_at < $4
		GROUP BY COALESCE(scenario_type, '')
		ORDER BY 1
	`, userID, models.TxTypeScenarioUsage, start, end)
	if err != nil {
		return nil, 0, fmt.Errorf("period stats: %w", err)
	}
	defer rows.Close()

	var breakdown []models.ScenarioUsage
	var total int64
	for rows.Next() {
		var s models.ScenarioUsage
		if err := rows.Scan(&s.ScenarioType, &s.TotalUsage, &s.UsageCount); err != nil {
			return nil, 0, fmt.Errorf("period stats: %w", err)
		}
		s.CreditCost = s.TotalUsage
		total += s.TotalUsage
		breakdown = append(breakdown, s)
	}
	return breakdown, total, rows.Err()
}

type interval struct {
	start, end time.Time
}

// periodIntervals builds the bucket boundaries for PeriodStats, oldest bucket
// first, plus the time layout used to label each bucket.
func periodIntervals(now time.Time, period string) ([]interval, string, error) {
	var (
		count  int
		width  time.Duration
		layout string
	)
	switch period {
	case "day":
		count, width, layout = 24, time.Hour, "15:04"
	case "week":
		count, width, layout = 7, 24*time.Hour, "2006-01-02"
	case "month":
		count, width, layout = 30, 24*time.Hour, "2006-01-02"
	case "year":
		count, width, layout = 12, 30*24*time.Hour, "2006-01"
	default:
		return nil, "", fmt.Errorf("period stats: unknown period %q", period)
	}

	intervals := make([]interval, 0, count)
	for i := count; i >= 1; i-- {
		intervals = append(intervals, interval{
			start: now.Add(-time.Duration(i) * width),
			end:   now.Add(-time.Duration(i-1) * width),
		})
	}
	return intervals, layout, nil
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
