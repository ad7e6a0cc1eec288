// Package store owns the PostgreSQL schema for the metering engine.
package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// EnsureSchema creates the ledger, quota, and audit tables if they don't
// exist. credit_transactions and request_history are append-only; quotas is
// the only table mutated in place, and (user_id, resource_type) is unique so
// provisioning can be idempotent.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	const q = `
		CREATE TABLE IF NOT EXISTS credit_transactions (
			id BIGSERIAL PRIMARY KEY,
			user_id BIGINT NOT NULL,
			amount BIGINT NOT NULL,
			transaction_type TEXT NOT NULL,
			scenario_type TEXT,
			description TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE INDEX IF NOT EXISTS idx_credit_transactions_user_created
			ON credit_transactions (user_id, created_at DESC);

		CREATE TABLE IF NOT EXISTS quotas (
			id BIGSERIAL PRIMARY KEY,
			user_id BIGINT NOT NULL,
			resource_type TEXT NOT NULL,
			usage_limit BIGINT NOT NULL,
			current_usage BIGINT NOT NULL DEFAULT 0,
			reset_at TIMESTAMPTZ NOT NULL,
			UNIQUE (user_id, resource_type)
		);

		CREATE TABLE IF NOT EXISTS request_history (
			id BIGSERIAL PRIMARY KEY,
			user_id BIGINT NOT NULL,
			request_type TEXT NOT NULL,
			request_data TEXT,
			response_data TEXT,
			status TEXT NOT NULL,
			error_message TEXT,
			processing_time BIGINT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE INDEX IF NOT EXISTS idx_request_history_user_created
			ON request_history (user_id, created_at DESC);
	`
	if _, err := pool.Exec(ctx, q); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
