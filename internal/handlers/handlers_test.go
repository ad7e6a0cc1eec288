package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"

	"github.com/voxmate/backend/internal/execution"
	"github.com/voxmate/backend/internal/middleware"
	"github.com/voxmate/backend/internal/models"
	"github.com/voxmate/backend/internal/repository"
	"github.com/voxmate/backend/internal/scenarios"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func authedRequest(method, target, body string, userID int64) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	return req.WithContext(middleware.WithUserID(req.Context(), userID))
}

// --- credits ---

type mockLedger struct {
	balance int64
	history []*models.CreditTransaction
	err     error

	addedAmount int64
	addedType   string
}

func (m *mockLedger) GetBalance(_ context.Context, _ int64) (int64, error) {
	return m.balance, m.err
}

func (m *mockLedger) Add(_ context.Context, _ int64, amount int64, txType, _ string) (int64, error) {
	if m.err != nil {
		return 0, m.err
	}
	m.addedAmount = amount
	m.addedType = txType
	m.balance += amount
	return m.balance, nil
}

func (m *mockLedger) History(_ context.Context, _ int64, _, _ int) ([]*models.CreditTransaction, error) {
	return m.history, m.err
}

func (m *mockLedger) GrantInitial(_ context.Context, _ int64, amount int64, _ string) (int64, bool, error) {
	if m.err != nil {
		return 0, false, m.err
	}
	if len(m.history) > 0 {
		return m.balance, false, nil
	}
	m.addedAmount = amount
	m.addedType = models.TxTypeInitial
	m.balance += amount
	return m.balance, true, nil
}

func TestGetBalance(t *testing.T) {
	h := &CreditHandler{Ledger: &mockLedger{balance: 73}, Logger: testLogger()}

	rec := httptest.NewRecorder()
	h.GetBalance(rec, authedRequest(http.MethodGet, "/v1/credits/balance", "", 7))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]int64
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["balance"] != 73 {
		t.Errorf("balance = %d, want 73", body["balance"])
	}
}

func TestGetBalanceUnauthenticated(t *testing.T) {
	h := &CreditHandler{Ledger: &mockLedger{}, Logger: testLogger()}

	rec := httptest.NewRecorder()
	h.GetBalance(rec, httptest.NewRequest(http.MethodGet, "/v1/credits/balance", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestAddCredits(t *testing.T) {
	ledger := &mockLedger{balance: 10}
	h := &CreditHandler{Ledger: ledger, Logger: testLogger()}

	rec := httptest.NewRecorder()
	h.AddCredits(rec, authedRequest(http.MethodPost, "/v1/credits/add", `{"amount":50}`, 7))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if ledger.addedAmount != 50 || ledger.addedType != models.TxTypeManual {
		t.Errorf("added (%d, %q)", ledger.addedAmount, ledger.addedType)
	}
}

func TestAddCreditsRejectsNonPositive(t *testing.T) {
	h := &CreditHandler{Ledger: &mockLedger{}, Logger: testLogger()}

	for _, body := range []string{`{"amount":0}`, `{"amount":-5}`, `{}`} {
		rec := httptest.NewRecorder()
		h.AddCredits(rec, authedRequest(http.MethodPost, "/v1/credits/add", body, 7))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("body %s: expected 400, got %d", body, rec.Code)
		}
	}
}

// --- analytics ---

type mockStats struct {
	usage  []models.ScenarioUsage
	stats  []models.PeriodStat
	err    error
	period string
}

func (m *mockStats) ScenarioUsageStats(_ context.Context, _ int64, _, _ time.Time) ([]models.ScenarioUsage, error) {
	return m.usage, m.err
}

func (m *mockStats) PeriodStats(_ context.Context, _ int64, period string) ([]models.PeriodStat, error) {
	m.period = period
	return m.stats, m.err
}

func TestScenarioUsageDefaultsTo30Days(t *testing.T) {
	h := &AnalyticsHandler{Stats: &mockStats{usage: []models.ScenarioUsage{}}, Logger: testLogger()}

	rec := httptest.NewRecorder()
	h.ScenarioUsage(rec, authedRequest(http.MethodGet, "/v1/analytics/scenario-usage", "", 7))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"days":30`) {
		t.Errorf("expected default of 30 days, got: %s", rec.Body.String())
	}
}

func TestScenarioUsageRejectsBadDays(t *testing.T) {
	h := &AnalyticsHandler{Stats: &mockStats{}, Logger: testLogger()}

	for _, q := range []string{"days=0", "days=-3", "days=999", "days=abc"} {
		rec := httptest.NewRecorder()
		h.ScenarioUsage(rec, authedRequest(http.MethodGet, "/v1/analytics/scenario-usage?"+q, "", 7))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", q, rec.Code)
		}
	}
}

func TestPeriodStatsValidatesPeriod(t *testing.T) {
	stats := &mockStats{stats: []models.PeriodStat{}}
	h := &AnalyticsHandler{Stats: stats, Logger: testLogger()}

	rec := httptest.NewRecorder()
	h.PeriodStats(rec, authedRequest(http.MethodGet, "/v1/analytics/period-stats?period=month", "", 7))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if stats.period != "month" {
		t.Errorf("queried period %q", stats.period)
	}

	rec = httptest.NewRecorder()
	h.PeriodStats(rec, authedRequest(http.MethodGet, "/v1/analytics/period-stats?period=decade", "", 7))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown period, got %d", rec.Code)
	}
}

// --- quotas ---

type mockQuotaLister struct {
	quotas []*models.Quota
	err    error
}

func (m *mockQuotaLister) ListByUser(_ context.Context, _ int64) ([]*models.Quota, error) {
	return m.quotas, m.err
}

func TestListQuotasComputesRemaining(t *testing.T) {
	h := &QuotaHandler{
		Quotas: &mockQuotaLister{quotas: []*models.Quota{
			{ResourceType: models.ResourceScenarioLLM, Limit: 500, CurrentUsage: 120, ResetAt: time.Now().Add(time.Hour)},
		}},
		Logger: testLogger(),
	}

	rec := httptest.NewRecorder()
	h.List(rec, authedRequest(http.MethodGet, "/v1/quotas", "", 7))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"remaining":380`) {
		t.Errorf("expected remaining 380, got: %s", rec.Body.String())
	}
}

// --- requests ---

type mockHistory struct {
	recs []*models.RequestHistory
	rec  *models.RequestHistory
	err  error
}

func (m *mockHistory) ListByUser(_ context.Context, _ int64, _, _ int) ([]*models.RequestHistory, error) {
	return m.recs, m.err
}

func (m *mockHistory) GetByID(_ context.Context, _ int64) (*models.RequestHistory, error) {
	if m.rec == nil {
		return nil, repository.ErrRequestNotFound
	}
	return m.rec, m.err
}

// getRequest builds an authenticated request with the {id} path value the
// mux pattern would have matched.
func getRequest(id string, userID int64) *http.Request {
	req := authedRequest(http.MethodGet, "/v1/requests/"+id, "", userID)
	req.SetPathValue("id", id)
	return req
}

func TestGetRequestHidesForeignRecords(t *testing.T) {
	h := &RequestHandler{
		History: &mockHistory{rec: &models.RequestHistory{ID: 5, UserID: 99}},
		Logger:  testLogger(),
	}

	rec := httptest.NewRecorder()
	h.Get(rec, getRequest("5", 7))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("foreign record should 404, got %d", rec.Code)
	}
}

func TestGetRequestOwnRecord(t *testing.T) {
	h := &RequestHandler{
		History: &mockHistory{rec: &models.RequestHistory{ID: 5, UserID: 7, Status: models.RequestStatusSuccess}},
		Logger:  testLogger(),
	}

	rec := httptest.NewRecorder()
	h.Get(rec, getRequest("5", 7))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestGetRequestBadID(t *testing.T) {
	h := &RequestHandler{History: &mockHistory{}, Logger: testLogger()}

	rec := httptest.NewRecorder()
	h.Get(rec, getRequest("abc", 7))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

// --- scenarios ---

type mockQueue struct {
	err  error
	args river.JobArgs
}

func (m *mockQueue) Insert(_ context.Context, args river.JobArgs, _ *river.InsertOpts) (*rivertype.JobInsertResult, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.args = args
	return &rivertype.JobInsertResult{Job: &rivertype.JobRow{ID: 42}}, nil
}

func newScenarioHandler(t *testing.T, queue JobEnqueuer) *ScenarioHandler {
	t.Helper()
	v, err := scenarios.NewValidator()
	if err != nil {
		t.Fatalf("NewValidator: %v", err)
	}
	return &ScenarioHandler{Queue: queue, Validator: v, Logger: testLogger()}
}

func TestRunScenarioEnqueues(t *testing.T) {
	queue := &mockQueue{}
	h := newScenarioHandler(t, queue)

	body := `{"resource_type":"scenario_llm","payload":{"prompt":"hello"}}`
	rec := httptest.NewRecorder()
	h.Run(rec, authedRequest(http.MethodPost, "/v1/scenarios/run", body, 7))

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	args, ok := queue.args.(execution.RunScenarioJobArgs)
	if !ok {
		t.Fatalf("enqueued args have type %T", queue.args)
	}
	if args.UserID != 7 || args.ResourceType != models.ResourceScenarioLLM {
		t.Errorf("enqueued (%d, %q)", args.UserID, args.ResourceType)
	}
	if !strings.Contains(rec.Body.String(), `"job_id":42`) {
		t.Errorf("expected job id in response, got: %s", rec.Body.String())
	}
}

func TestRunScenarioRejectsInvalidPayload(t *testing.T) {
	h := newScenarioHandler(t, &mockQueue{})

	body := `{"resource_type":"scenario_llm","payload":{"max_tokens":10}}`
	rec := httptest.NewRecorder()
	h.Run(rec, authedRequest(http.MethodPost, "/v1/scenarios/run", body, 7))

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
}

func TestRunScenarioEnqueueFailure(t *testing.T) {
	h := newScenarioHandler(t, &mockQueue{err: errors.New("queue down")})

	body := `{"resource_type":"scenario_basic","payload":{"text":"hi"}}`
	rec := httptest.NewRecorder()
	h.Run(rec, authedRequest(http.MethodPost, "/v1/scenarios/run", body, 7))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}

// --- provision ---

type mockProvisioner struct {
	quotas []*models.Quota
	err    error
	calls  int
}

func (m *mockProvisioner) ProvisionDefaults(_ context.Context, userID int64) ([]*models.Quota, error) {
	m.calls++
	return m.quotas, m.err
}

type fakeAuth struct{}

func (fakeAuth) IssueToken(_ context.Context, userID int64) (string, error) {
	return "token-for-user", nil
}

func (fakeAuth) ValidateToken(_ context.Context, _ string) (int64, error) {
	return 0, errors.New("not implemented")
}

func TestProvisionGrantsOnce(t *testing.T) {
	ledger := &mockLedger{}
	h := &UserHandler{
		Manager: &mockProvisioner{quotas: []*models.Quota{{ResourceType: models.ResourceScenarioBasic, Limit: 1000}}},
		Ledger:  ledger,
		Auth:    fakeAuth{},
		Logger:  testLogger(),
	}

	rec := httptest.NewRecorder()
	h.Provision(rec, httptest.NewRequest(http.MethodPost, "/v1/users/provision", strings.NewReader(`{"user_id":7}`)))

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if ledger.addedAmount != 100 || ledger.addedType != models.TxTypeInitial {
		t.Errorf("initial grant (%d, %q)", ledger.addedAmount, ledger.addedType)
	}

	// Re-provision: ledger has history now, no second grant.
	ledger.history = []*models.CreditTransaction{{ID: 1}}
	ledger.addedAmount = 0
	rec = httptest.NewRecorder()
	h.Provision(rec, httptest.NewRequest(http.MethodPost, "/v1/users/provision", strings.NewReader(`{"user_id":7}`)))

	if rec.Code != http.StatusCreated {
		t.Fatalf("re-provision: expected 201, got %d", rec.Code)
	}
	if ledger.addedAmount != 0 {
		t.Errorf("re-provision granted %d credits", ledger.addedAmount)
	}
}

func TestProvisionRejectsBadUserID(t *testing.T) {
	h := &UserHandler{Manager: &mockProvisioner{}, Ledger: &mockLedger{}, Auth: fakeAuth{}, Logger: testLogger()}

	rec := httptest.NewRecorder()
	h.Provision(rec, httptest.NewRequest(http.MethodPost, "/v1/users/provision", strings.NewReader(`{"user_id":0}`)))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}
