// Package anthropic implements the "claude" tool adapter over the
// Anthropic Messages API.
package anthropic

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
	defaultBaseURL   = "https://api.anthropic.com/v1"
	defaultModel     = "claude-sonnet-4-6"
	toolName         = "claude"
	anthropicVersion = "2023-06-01"
)

var _ core.Adapter = (*Client)(nil)

// Client is the Anthropic tool adapter.
type Client struct {
	apiKey  string
	model   string
	baseURL string
	hc      provider.Clients
}

// New creates an Anthropic Client. Empty model and baseURL fall back to
// the defaults; hc must carry the shared client bundle.
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
			core.CapChat, core.CapStreaming, core.CapCodeContext, core.CapFunctionCalling,
		},
		MaxContextTokens:    200_000,
		SupportsStreaming:   true,
		SupportsCodeContext: true,
	}
}

// IsAvailable reports whether the adapter has a key and the API answers a
// short probe. Anthropic has no public models endpoint, so a HEAD to the
// messages endpoint serves; any HTTP answer below 500 counts as reachable.
func (c *Client) IsAvailable(ctx context.Context) bool {
	if c.apiKey == "" {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, provider.ProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.baseURL+"/messages", nil)
	if err != nil {
		return false
	}
	c.setHeaders(req)
	resp, err := c.hc.Probe.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode < http.StatusInternalServerError
}

// Chat sends a non-streaming request to the Messages API.
func (c *Client) Chat(ctx context.Context, messages []core.Message, convo *core.Conversation) (*core.Response, error) {
	if c.apiKey == "" {
		return nil, core.ErrNotConfigured
	}
	body, err := json.Marshal(buildRequest(c.model, messages, convo, false))
	if err != nil {
		return nil, fmt.Errorf("anthropic: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("anthropic: create request: %w", err)
	}
	c.setHeaders(httpReq)

	resp, err := c.hc.Unary.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("anthropic: do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, provider.ParseAPIError(toolName, resp)
	}

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20)) // 1MB limit
	if err != nil {
		return nil, fmt.Errorf("anthropic: read response: %w", err)
	}
	return parseResponse(respBody), nil
}

// StreamChat sends a streaming request to the Messages API.
func (c *Client) StreamChat(ctx context.Context, messages []core.Message, convo *core.Conversation) (<-chan core.StreamChunk, error) {
	if c.apiKey == "" {
		return nil, core.ErrNotConfigured
	}
	body, err := json.Marshal(buildRequest(c.model, messages, convo, true))
	if err != nil {
		return nil, fmt.Errorf("anthropic: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("anthropic: create request: %w", err)
	}
	c.setHeaders(httpReq)

	resp, err := c.hc.Stream.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("anthropic: do request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, provider.ParseAPIError(toolName, resp)
	}

	ch := make(chan core.StreamChunk, 8)
	go readStream(ctx, resp.Body, ch)
	return ch, nil
}

// setHeaders applies Anthropic-specific headers to an outbound request.
func (c *Client) setHeaders(r *http.Request) {
	r.Header.Set("x-api-key", c.apiKey)
	r.Header.Set("anthropic-version", anthropicVersion)
	r.Header.Set("content-type", "application/json")
}
