package execution

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// HTTPInvoker forwards scenario payloads to the execution engine over HTTP.
// The engine exposes one endpoint per resource type.
type HTTPInvoker struct {
	baseURL    string
	httpClient *http.Client
}

func NewHTTPInvoker(baseURL string) *HTTPInvoker {
	return &HTTPInvoker{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

func (i *HTTPInvoker) Invoke(ctx context.Context, resourceType string, payload json.RawMessage) (json.RawMessage, error) {
	url := i.baseURL + "/run/" + resourceType
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := i.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("network error calling execution engine: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("execution engine returned status %d", resp.StatusCode)
	}

	var output json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&output); err != nil {
		return nil, fmt.Errorf("execution engine returned invalid JSON: %w", err)
	}
	return output, nil
}
