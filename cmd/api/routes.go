package main

import (
	"log/slog"
	"net/http"

	"github.com/voxmate/backend/internal/auth"
	"github.com/voxmate/backend/internal/handlers"
	"github.com/voxmate/backend/internal/middleware"
	"github.com/voxmate/backend/internal/repository"
	"github.com/voxmate/backend/internal/resources"
	"github.com/voxmate/backend/internal/scenarios"
)

// RouteDeps carries everything the /v1 routes need.
type RouteDeps struct {
	Ledger    *repository.CreditRepo
	Quotas    *repository.QuotaRepo
	History   *repository.HistoryRepo
	Manager   *resources.Manager
	Queue     handlers.JobEnqueuer
	Validator *scenarios.Validator
	Auth      auth.Service
	Logger    *slog.Logger
}

// RegisterV1Routes adds the /v1 API endpoints to the given mux.
// Middleware chain: TokenAuth -> (CreditCheck on POST /v1/scenarios/run only) -> handler.
func RegisterV1Routes(mux *http.ServeMux, d RouteDeps) {
	creditHandler := &handlers.CreditHandler{Ledger: d.Ledger, Logger: d.Logger}
	analyticsHandler := &handlers.AnalyticsHandler{Stats: d.Ledger, Logger: d.Logger}
	quotaHandler := &handlers.QuotaHandler{Quotas: d.Quotas, Logger: d.Logger}
	requestHandler := &handlers.RequestHandler{History: d.History, Logger: d.Logger}
	scenarioHandler := &handlers.ScenarioHandler{Queue: d.Queue, Validator: d.Validator, Logger: d.Logger}
	userHandler := &handlers.UserHandler{Manager: d.Manager, Ledger: d.Ledger, Auth: d.Auth, Logger: d.Logger}

	tokenAuth := middleware.TokenAuth(d.Auth)
	creditCheck := middleware.CreditCheck(d.Manager)

	// POST /v1/scenarios/run — Auth -> CreditCheck -> Run
	mux.Handle("POST /v1/scenarios/run", tokenAuth(creditCheck(http.HandlerFunc(scenarioHandler.Run))))

	mux.Handle("GET /v1/credits/balance", tokenAuth(http.HandlerFunc(creditHandler.GetBalance)))
	mux.Handle("GET /v1/credits/history", tokenAuth(http.HandlerFunc(creditHandler.GetHistory)))
	mux.Handle("POST /v1/credits/add", tokenAuth(http.HandlerFunc(creditHandler.AddCredits)))

	mux.Handle("GET /v1/analytics/scenario-usage", tokenAuth(http.HandlerFunc(analyticsHandler.ScenarioUsage)))
	mux.Handle("GET /v1/analytics/period-stats", tokenAuth(http.HandlerFunc(analyticsHandler.PeriodStats)))

	mux.Handle("GET /v1/quotas", tokenAuth(http.HandlerFunc(quotaHandler.List)))

	mux.Handle("GET /v1/requests", tokenAuth(http.HandlerFunc(requestHandler.List)))
	mux.Handle("GET /v1/requests/{id}", tokenAuth(http.HandlerFunc(requestHandler.Get)))

	// Called by the account service, not end users.
	mux.Handle("POST /v1/users/provision", http.HandlerFunc(userHandler.Provision))
}
