package models

import "time"

// Credit transaction_type tags. Balance is always derived from the sum of
// entries; these tags only classify why an entry exists.
const (
	TxTypeInitial       = "initial"
	TxTypeManual        = "manual"
	TxTypeDeduct        = "deduct"
	TxTypeScenarioUsage = "scenario_usage"
)

// CreditTransaction is one immutable signed-amount ledger entry.
// Positive amounts credit the user, negative amounts debit.
type CreditTransaction struct {
	ID              int64     `json:"id"`
	UserID          int64     `json:"user_id"`
	Amount          int64     `json:"amount"`
	TransactionType string    `json:"transaction_type"`
	ScenarioType    *string   `json:"scenario_type,omitempty"`
	Description     *string   `json:"description,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// ScenarioUsage aggregates debited credits per scenario type over a period.
type ScenarioUsage struct {
	ScenarioType string `json:"scenario_type"`
	TotalUsage   int64  `json:"total_usage"`
	CreditCost   int64  `json:"credit_cost"`
	UsageCount   int64  `json:"usage_count"`
}

// PeriodStat is one fixed-width time bucket of spend.
type PeriodStat struct {
	Period            string          `json:"period"`
	TotalSpent        int64           `json:"total_spent"`
	ScenarioBreakdown []ScenarioUsage `json:"scenario_breakdown"`
}
