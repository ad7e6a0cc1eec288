package models

import "time"

// Rationed resource types and their credit costs / default quota limits.
const (
	ResourceScenarioBasic = "scenario_basic"
	ResourceScenarioLLM   = "scenario_llm"
)

// QuotaWindow is how far reset_at advances when a quota window rolls over.
// The window is measured from the moment of reset, not a calendar boundary.
const QuotaWindow = 30 * 24 * time.Hour

// Quota is a rolling usage counter for one (user, resource type) pair.
type Quota struct {
	ID           int64     `json:"id"`
	UserID       int64     `json:"user_id"`
	ResourceType string    `json:"resource_type"`
	Limit        int64     `json:"limit"`
	CurrentUsage int64     `json:"current_usage"`
	ResetAt      time.Time `json:"reset_at"`
}

// Remaining returns how many uses are left in the current window.
func (q *Quota) Remaining() int64 {
	if r := q.Limit - q.CurrentUsage; r > 0 {
		return r
	}
	return 0
}

// Expired reports whether the window has rolled over as of now.
func (q *Quota) Expired(now time.Time) bool {
	return now.After(q.ResetAt)
}
