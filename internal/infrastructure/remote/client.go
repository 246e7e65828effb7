// Package remote is the HTTP client for the document-processing service:
// status probes for the poller and summary generation for the orchestrator.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/docsync/internal/core/domain"
	"github.com/kirillkom/docsync/internal/infrastructure/resilience"
)

type Client struct {
	baseURL    string
	token      func() string
	httpClient *http.Client
	executor   *resilience.Executor
}

type Options struct {
	// Token supplies the bearer credential attached to every request;
	// nil or empty means unauthenticated.
	Token func() string
	// HTTPTimeout caps a single request; generation can be slow.
	HTTPTimeout time.Duration
	// Executor guards Generate with a circuit breaker. Probe retries belong
	// to the poller, so GetStatus never goes through it.
	Executor *resilience.Executor
}

func New(baseURL string, options Options) *Client {
	timeout := options.HTTPTimeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	executor := options.Executor
	if executor == nil {
		executor = resilience.NewExecutor(resilience.BreakerOnlyConfig())
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      options.Token,
		httpClient: &http.Client{Timeout: timeout},
		executor:   executor,
	}
}

type statusResponse struct {
	State      string `json:"state"`
	ChunkCount int    `json:"chunk_count"`
}

// GetStatus performs one probe. Failures are classified for the poller:
// network errors and retryable HTTP statuses become domain.ErrTransient,
// everything else domain.ErrFatal. No internal retry.
func (c *Client) GetStatus(ctx context.Context, subjectID string) (domain.SubjectStatus, error) {
	var out statusResponse
	err := c.getJSON(ctx, "/v1/documents/"+subjectID+"/status", &out, "status")
	if err != nil {
		return domain.SubjectStatus{}, classifyProbeError("status probe", err)
	}

	status := domain.SubjectStatus{GenerationCounter: out.ChunkCount}
	switch out.State {
	case string(domain.StateReady):
		status.State = domain.StateReady
	case string(domain.StateFailed):
		status.State = domain.StateFailed
	default:
		status.State = domain.StatePending
	}
	return status, nil
}

type generateRequest struct {
	Scope string `json:"scope"`
}

type generateResponse struct {
	Summary string `json:"summary"`
}

// Generate asks the remote service for a derived artifact. The call runs
// under a circuit breaker but is never retried here; the error reaches the
// orchestrator's caller as-is.
func (c *Client) Generate(ctx context.Context, subjectID, scope string) (string, error) {
	var out generateResponse
	call := func(callCtx context.Context) error {
		return c.postJSON(callCtx, "/v1/documents/"+subjectID+"/summaries", generateRequest{Scope: scope}, &out, "generate")
	}

	if err := c.executor.Execute(ctx, "remote.generate", call, classifyRemoteError); err != nil {
		return "", fmt.Errorf("remote generate: %w", err)
	}
	if out.Summary == "" {
		return "", domain.WrapError(domain.ErrInvalidInput, "remote generate", fmt.Errorf("empty summary for %s/%s", subjectID, scope))
	}
	return out.Summary, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any, operation string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create %s request: %w", operation, err)
	}
	return c.do(req, out, operation)
}

func (c *Client) postJSON(ctx context.Context, path string, payload any, out any, operation string) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", operation, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create %s request: %w", operation, err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out, operation)
}

func (c *Client) do(req *http.Request, out any, operation string) error {
	if c.token != nil {
		if token := c.token(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s request: %w", operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return newHTTPStatusError(operation, resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", operation, err)
	}
	return nil
}

func newHTTPStatusError(operation string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	return &HTTPStatusError{
		Operation:  operation,
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Body:       strings.TrimSpace(string(body)),
	}
}
