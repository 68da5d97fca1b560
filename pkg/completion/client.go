// Package completion calls the external completion service that runs a job's
// prompt.
package completion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"promptcron/pkg/config"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/fx"
)

//go:generate mockgen -destination=mock/mock_client.go -package=mock promptcron/pkg/completion Client

var Module = fx.Module("completion",
	fx.Provide(NewFromConfig),
)

// maxErrorBody bounds how much of a failed response is kept for diagnostics.
const maxErrorBody = 2048

type Client interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}

type Request struct {
	Prompt       string
	SystemPrompt string
	MaxTurns     int
}

type requestBody struct {
	Prompt       string         `json:"prompt"`
	SystemPrompt string         `json:"systemPrompt,omitempty"`
	Options      requestOptions `json:"options"`
}

type requestOptions struct {
	MaxTurns int `json:"maxTurns,omitempty"`
}

// Response is the opaque payload returned by the service.
type Response struct {
	Raw       json.RawMessage
	ToolsUsed int
}

// CallError reports a non-2xx answer from the completion service.
type CallError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *CallError) Error() string {
	return fmt.Sprintf("completion service returned %d: %s", e.StatusCode, e.Status)
}

type HTTPClient struct {
	endpoint string
	http     *http.Client
}

func NewHTTPClient(endpoint string, hc *http.Client) *HTTPClient {
	if hc == nil {
		hc = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}
	return &HTTPClient{endpoint: endpoint, http: hc}
}

// NewFromConfig leaves the deadline to the caller's context.
func NewFromConfig(cfg *config.Config) Client {
	return NewHTTPClient(cfg.Completion.Endpoint, nil)
}

func (c *HTTPClient) Complete(ctx context.Context, req Request) (*Response, error) {
	payload, err := json.Marshal(requestBody{
		Prompt:       req.Prompt,
		SystemPrompt: req.SystemPrompt,
		Options:      requestOptions{MaxTurns: req.MaxTurns},
	})
	if err != nil {
		return nil, fmt.Errorf("encode completion request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build completion request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("call completion service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &CallError{
			StatusCode: resp.StatusCode,
			Status:     statusText(resp),
			Body:       strings.TrimSpace(string(body)),
		}
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read completion response: %w", err)
	}
	if !json.Valid(raw) {
		return nil, fmt.Errorf("completion service returned a non-JSON body")
	}

	return &Response{Raw: raw, ToolsUsed: countTools(raw)}, nil
}

func statusText(resp *http.Response) string {
	if text := http.StatusText(resp.StatusCode); text != "" {
		return text
	}
	return strings.TrimSpace(strings.TrimPrefix(resp.Status, fmt.Sprint(resp.StatusCode)))
}

func countTools(raw json.RawMessage) int {
	var body struct {
		ToolsUsed []json.RawMessage `json:"toolsUsed"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return 0
	}
	return len(body.ToolsUsed)
}
