// Package tools dispatches tool invocations requested by the voice-AI
// session to the tenant's tool webhook. Failures come back as error results;
// they never propagate into the call's control flow.
package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"
)

const executeTimeout = 30 * time.Second

// Executor runs one tool on behalf of a tenant
type Executor interface {
	Execute(ctx context.Context, tenantID, name string, params map[string]any) (json.RawMessage, error)
}

// WebhookExecutor executes tools by POSTing to the tenant's tool endpoint
type WebhookExecutor struct {
	baseURL string
	client  *http.Client
	logger  zerolog.Logger
}

// NewWebhookExecutor creates a WebhookExecutor. baseURL is the tool API root;
// requests go to {baseURL}/{tenantID}/{toolName}.
func NewWebhookExecutor(baseURL string, logger zerolog.Logger) *WebhookExecutor {
	return &WebhookExecutor{
		baseURL: baseURL,
		client:  &http.Client{Timeout: executeTimeout},
		logger:  logger.With().Str("component", "tool_executor").Logger(),
	}
}

func (e *WebhookExecutor) Execute(ctx context.Context, tenantID, name string, params map[string]any) (json.RawMessage, error) {
	body, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal tool params: %w", err)
	}

	endpoint := fmt.Sprintf("%s/%s/%s", e.baseURL, url.PathEscape(tenantID), url.PathEscape(name))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build tool request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tool %s failed: %w", name, err)
	}
	defer resp.Body.Close()

	result, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read tool response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		e.logger.Warn().
			Str("tenant_id", tenantID).
			Str("tool", name).
			Int("status", resp.StatusCode).
			Msg("tool webhook returned non-2xx")
		return nil, fmt.Errorf("tool %s returned status %d", name, resp.StatusCode)
	}

	return json.RawMessage(result), nil
}
