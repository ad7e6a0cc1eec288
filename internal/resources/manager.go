// Package resources orchestrates the credit ledger, quota store, and request
// audit log into the two operations every use case calls: Authorize before
// performing external work, and Record after.
package resources

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/voxmate/backend/internal/models"
	"github.com/voxmate/backend/internal/repository"
)

// nowFn is the clock used for quota window checks.
// Tests can replace this to control time.
var nowFn = time.Now

// ErrInsufficientCredits rejects an invocation whose cost exceeds the balance.
var ErrInsufficientCredits = repository.ErrInsufficientCredits

// ErrQuotaExceeded rejects an invocation whose quota window is used up.
var ErrQuotaExceeded = errors.New("quota exceeded")

// ErrQuotaSettleFailed marks a quota increment that failed after the charge
// already committed. Retrying the whole settlement would charge again, so
// callers must treat this as final. The window drifts by at most one use.
var ErrQuotaSettleFailed = errors.New("quota increment failed after charge")

// creditCosts is the static cost table per resource type.
var creditCosts = map[string]int64{
	models.ResourceScenarioBasic: 1,
	models.ResourceScenarioLLM:   2,
}

// defaultQuotas are provisioned for every new account.
var defaultQuotas = []struct {
	ResourceType string
	Limit        int64
}{
	{models.ResourceScenarioBasic, 1000},
	{models.ResourceScenarioLLM, 500},
}

// CreditLedger is the ledger store as seen by the orchestrator.
type CreditLedger interface {
	GetBalance(ctx context.Context, userID int64) (int64, error)
	Spend(ctx context.Context, userID, amount int64, scenarioType, description string) (int64, error)
}

// QuotaStore is the quota store as seen by the orchestrator. Get and
// Increment return repository.ErrQuotaNotFound for absent rows; the
// orchestrator treats absence as unlimited.
type QuotaStore interface {
	Get(ctx context.Context, userID int64, resourceType string) (*models.Quota, error)
	Increment(ctx context.Context, userID int64, resourceType string, by int64) (*models.Quota, error)
	Create(ctx context.Context, userID int64, resourceType string, limit int64) (*models.Quota, error)
}

// AuditLog is the request history store as seen by the orchestrator.
type AuditLog interface {
	Save(ctx context.Context, rec *models.RequestHistory) (*models.RequestHistory, error)
}

// Manager combines balance and quota checks into a single "may this call
// proceed" decision, and records what happened afterwards. Construct one per
// process and pass it to every use case.
type Manager struct {
	ledger CreditLedger
	quotas QuotaStore
	audit  AuditLog
}

func NewManager(ledger CreditLedger, quotas QuotaStore, audit AuditLog) *Manager {
	return &Manager{ledger: ledger, quotas: quotas, audit: audit}
}

// CostFor returns the credit cost of one invocation of resourceType.
// Unknown types cost 1.
func CostFor(resourceType string) int64 {
	if c, ok := creditCosts[resourceType]; ok {
		return c
	}
	return 1
}

// Authorize decides whether an invocation may proceed. It never mutates
// billing state: balance first (ErrInsufficientCredits), then quota (absent
// means unlimited; an expired window is rolled over; at-limit means
// ErrQuotaExceeded). Infrastructure errors propagate so callers fail closed.
func (m *Manager) Authorize(ctx context.Context, userID int64, resourceType string) error {
	balance, err := m.ledger.GetBalance(ctx, userID)
	if err != nil {
		return fmt.Errorf("authorize: %w", err)
	}
	if balance < CostFor(resourceType) {
		return ErrInsufficientCredits
	}

	quota, err := m.quotas.Get(ctx, userID, resourceType)
	if errors.Is(err, repository.ErrQuotaNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("authorize: %w", err)
	}

	if quota.Expired(nowFn()) {
		// Roll the window over via a zero increment; the store makes
		// reset-plus-increment a single atomic operation.
		if _, err := m.quotas.Increment(ctx, userID, resourceType, 0); err != nil {
			return fmt.Errorf("authorize: roll quota window: %w", err)
		}
		return nil
	}

	if quota.CurrentUsage >= quota.Limit {
		return ErrQuotaExceeded
	}
	return nil
}

// RecordParams describes one finished invocation.
type RecordParams struct {
	UserID         int64
	ResourceType   string
	RequestData    *string
	ResponseData   *string
	Status         string // models.RequestStatusSuccess or models.RequestStatusError
	ErrorMessage   *string
	ProcessingTime *int64 // milliseconds
}

// Record logs the invocation outcome and, on success, charges for it. The
// audit record is always written first, so observability survives billing
// failures. Credits are spent only for successful invocations, re-validated
// at spend time (the Authorize check may be stale by now), and the quota is
// incremented only if the spend committed. A lost spend race returns the
// audit record alongside the error; the quota is left untouched. An
// increment failure after the spend committed is wrapped in
// ErrQuotaSettleFailed so callers do not retry a settlement that already
// charged.
func (m *Manager) Record(ctx context.Context, p RecordParams) (*models.RequestHistory, *models.Quota, error) {
	rec, err := m.audit.Save(ctx, &models.RequestHistory{
		UserID:         p.UserID,
		RequestType:    p.ResourceType,
		RequestData:    p.RequestData,
		ResponseData:   p.ResponseData,
		Status:         p.Status,
		ErrorMessage:   p.ErrorMessage,
		ProcessingTime: p.ProcessingTime,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("record: %w", err)
	}

	if p.Status != models.RequestStatusSuccess {
		return rec, nil, nil
	}

	cost := CostFor(p.ResourceType)
	if _, err := m.ledger.Spend(ctx, p.UserID, cost, p.ResourceType, "Used "+p.ResourceType+" scenario"); err != nil {
		return rec, nil, fmt.Errorf("record: %w", err)
	}

	quota, err := m.quotas.Increment(ctx, p.UserID, p.ResourceType, 1)
	if errors.Is(err, repository.ErrQuotaNotFound) {
		return rec, nil, nil
	}
	if err != nil {
		// The spend is already durable. Wrap in the settle sentinel so the
		// caller knows a retry would double-charge.
		return rec, nil, fmt.Errorf("record: %w: %v", ErrQuotaSettleFailed, err)
	}
	return rec, quota, nil
}

// ProvisionDefaults creates the default quota rows for a new account.
// Idempotent: re-provisioning updates limits without duplicating rows.
func (m *Manager) ProvisionDefaults(ctx context.Context, userID int64) ([]*models.Quota, error) {
	created := make([]*models.Quota, 0, len(defaultQuotas))
	for _, d := range defaultQuotas {
		q, err := m.quotas.Create(ctx, userID, d.ResourceType, d.Limit)
		if err != nil {
			return created, fmt.Errorf("provision %s quota: %w", d.ResourceType, err)
		}
		created = append(created, q)
	}
	return created, nil
}
