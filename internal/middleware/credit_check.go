package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/voxmate/backend/internal/resources"
)

const ctxScenarioKey contextKey = "parsed_scenario"

// Authorizer is the slice of the resource manager the middleware needs.
type Authorizer interface {
	Authorize(ctx context.Context, userID int64, resourceType string) error
}

// parsedScenario is stored in context so the handler can read the resource
// type without re-parsing the body.
type parsedScenario struct {
	ResourceType string `json:"resource_type"`
}

// ScenarioFromCtx returns the resource type parsed by CreditCheck, or "".
func ScenarioFromCtx(ctx context.Context) string {
	if p, ok := ctx.Value(ctxScenarioKey).(*parsedScenario); ok {
		return p.ResourceType
	}
	return ""
}

// CreditCheck authorizes the invocation against balance and quota before the
// handler runs. Reads the body to extract "resource_type", then replaces
// r.Body so downstream handlers can re-read it. Rejections distinguish the
// credit cause (402) from the quota cause (429); store failures fail closed
// with 503 and never expose store internals.
func CreditCheck(authz Authorizer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := UserIDFromCtx(r.Context())
			if !ok {
				http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
				return
			}

			bodyBytes, err := io.ReadAll(r.Body)
			r.Body.Close()
			if err != nil {
				http.Error(w, `{"error":"failed to read body"}`, http.StatusBadRequest)
				return
			}
			// Restore body for the handler.
			r.Body = io.NopCloser(bytes.NewReader(bodyBytes))

			var peek parsedScenario
			if err := json.Unmarshal(bodyBytes, &peek); err != nil {
				http.Error(w, `{"error":"invalid JSON body"}`, http.StatusBadRequest)
				return
			}
			if peek.ResourceType == "" {
				http.Error(w, `{"error":"resource_type is required"}`, http.StatusBadRequest)
				return
			}

			switch err := authz.Authorize(r.Context(), userID, peek.ResourceType); {
			case err == nil:
			case errors.Is(err, resources.ErrInsufficientCredits):
				http.Error(w, `{"error":"insufficient credits"}`, http.StatusPaymentRequired)
				return
			case errors.Is(err, resources.ErrQuotaExceeded):
				http.Error(w, `{"error":"quota exceeded"}`, http.StatusTooManyRequests)
				return
			default:
				// Fail closed on infrastructure errors.
				http.Error(w, `{"error":"internal error"}`, http.StatusServiceUnavailable)
				return
			}

			ctx := context.WithValue(r.Context(), ctxScenarioKey, &peek)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
