// Package gemini implements the "gemini" tool adapter over the Google
// Gemini generateContent API.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	core "github.com/switchboard-ai/switchboard/internal"
	"github.com/switchboard-ai/switchboard/internal/provider"
)

const (
	defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	defaultModel   = "gemini-2.0-flash"
	toolName       = "gemini"
)

var _ core.Adapter = (*Client)(nil)

// Client is the Gemini tool adapter.
type Client struct {
	apiKey  string
	model   string
	baseURL string
	hc      provider.Clients
}

// New creates a Gemini Client. Empty model and baseURL fall back to the
// defaults; hc must carry the shared client bundle.
func New(apiKey, model, baseURL string, hc provider.Clients) *Client {
	if model == "" {
		model = defaultModel
	}
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		apiKey:  apiKey,
		model:   model,
		baseURL: strings.TrimRight(baseURL, "/"),
		hc:      hc,
	}
}

// Name returns the tool identifier.
func (c *Client) Name() string { return toolName }

// Capabilities returns the static capability descriptor.
func (c *Client) Capabilities() core.Capabilities {
	return core.Capabilities{
		Supported: []core.Capability{
			core.CapChat, core.CapStreaming, core.CapFunctionCalling,
		},
		MaxContextTokens:  1_000_000,
		SupportsStreaming: true,
	}
}

// IsAvailable reports whether the adapter has a key and the models
// endpoint answers a short probe.
func (c *Client) IsAvailable(ctx context.Context) bool {
	if c.apiKey == "" {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, provider.ProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/models", nil)
	if err != nil {
		return false
	}
	req.Header.Set("x-goog-api-key", c.apiKey)
	resp, err := c.hc.Probe.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode < http.StatusInternalServerError
}

// Chat sends a non-streaming generateContent request.
func (c *Client) Chat(ctx context.Context, messages []core.Message, convo *core.Conversation) (*core.Response, error) {
	if c.apiKey == "" {
		return nil, core.ErrNotConfigured
	}
	body, err := json.Marshal(buildRequest(messages, convo))
	if err != nil {
		return nil, fmt.Errorf("gemini: marshal request: %w", err)
	}

	u := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, c.model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("gemini: create request: %w", err)
	}
	c.setHeaders(httpReq)

	resp, err := c.hc.Unary.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("gemini: do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, provider.ParseAPIError(toolName, resp)
	}

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20)) // 1MB limit
	if err != nil {
		return nil, fmt.Errorf("gemini: read response: %w", err)
	}
	return parseResponse(respBody, c.model), nil
}

// StreamChat sends a streaming generateContent request using the SSE
// variant of the endpoint.
func (c *Client) StreamChat(ctx context.Context, messages []core.Message, convo *core.Conversation) (<-chan core.StreamChunk, error) {
	if c.apiKey == "" {
		return nil, core.ErrNotConfigured
	}
	body, err := json.Marshal(buildRequest(messages, convo))
	if err != nil {
		return nil, fmt.Errorf("gemini: marshal request: %w", err)
	}

	u := fmt.Sprintf("%s/models/%s:streamGenerateContent?alt=sse", c.baseURL, c.model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("gemini: create request: %w", err)
	}
	c.setHeaders(httpReq)

	resp, err := c.hc.Stream.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("gemini: do request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, provider.ParseAPIError(toolName, resp)
	}

	ch := make(chan core.StreamChunk, 8)
	go readStream(ctx, resp.Body, ch)
	return ch, nil
}

func (c *Client) setHeaders(r *http.Request) {
	r.Header.Set("Content-Type", "application/json")
	r.Header.Set("x-goog-api-key", c.apiKey)
}
