// Package openai implements the "gpt" tool adapter over the OpenAI
// chat completions API.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"

	core "github.com/switchboard-ai/switchboard/internal"
	"github.com/switchboard-ai/switchboard/internal/provider"
	"github.com/switchboard-ai/switchboard/internal/provider/sseutil"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	defaultModel   = "gpt-4o"
	toolName       = "gpt"
)

var _ core.Adapter = (*Client)(nil)

// Client is the OpenAI tool adapter.
type Client struct {
	apiKey  string
	model   string
	baseURL string
	hc      provider.Clients
}

// New creates an OpenAI Client. Empty model and baseURL fall back to the
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
			core.CapChat, core.CapStreaming, core.CapCodeContext, core.CapFunctionCalling,
		},
		MaxContextTokens:    128_000,
		SupportsStreaming:   true,
		SupportsCodeContext: true,
	}
}

// IsAvailable reports whether the adapter has a key and the API answers a
// short probe. Upstream 4xx still counts as reachable.
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
	c.setHeaders(req)
	resp, err := c.hc.Probe.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode < http.StatusInternalServerError
}

type chatRequest struct {
	Model         string         `json:"model"`
	Messages      []wireMessage  `json:"messages"`
	Stream        bool           `json:"stream,omitempty"`
	StreamOptions *streamOptions `json:"stream_options,omitempty"`
}

type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type streamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

func (c *Client) buildRequest(messages []core.Message, convo *core.Conversation, stream bool) *chatRequest {
	msgs := provider.BuildMessages(messages, convo, true)
	req := &chatRequest{Model: c.model, Stream: stream}
	for _, m := range msgs {
		req.Messages = append(req.Messages, wireMessage{Role: m.Role, Content: m.Content})
	}
	if stream {
		req.StreamOptions = &streamOptions{IncludeUsage: true}
	}
	return req
}

// Chat sends a non-streaming chat completion request.
func (c *Client) Chat(ctx context.Context, messages []core.Message, convo *core.Conversation) (*core.Response, error) {
	if c.apiKey == "" {
		return nil, core.ErrNotConfigured
	}
	body, err := json.Marshal(c.buildRequest(messages, convo, false))
	if err != nil {
		return nil, fmt.Errorf("openai: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("openai: create request: %w", err)
	}
	c.setHeaders(httpReq)

	resp, err := c.hc.Unary.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("openai: do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, provider.ParseAPIError(toolName, resp)
	}

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20)) // 1MB limit
	if err != nil {
		return nil, fmt.Errorf("openai: read response: %w", err)
	}
	return parseResponse(respBody), nil
}

// StreamChat sends a streaming chat completion request.
func (c *Client) StreamChat(ctx context.Context, messages []core.Message, convo *core.Conversation) (<-chan core.StreamChunk, error) {
	if c.apiKey == "" {
		return nil, core.ErrNotConfigured
	}
	body, err := json.Marshal(c.buildRequest(messages, convo, true))
	if err != nil {
		return nil, fmt.Errorf("openai: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("openai: create request: %w", err)
	}
	c.setHeaders(httpReq)

	resp, err := c.hc.Stream.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("openai: do request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, provider.ParseAPIError(toolName, resp)
	}

	ch := make(chan core.StreamChunk, 8)
	go sseutil.ReadSSEStream(ctx, toolName, resp, ch)
	return ch, nil
}

func parseResponse(data []byte) *core.Response {
	r := gjson.ParseBytes(data)
	out := &core.Response{
		Content: r.Get("choices.0.message.content").String(),
		Tool:    toolName,
		Metadata: core.ResponseMetadata{
			Model: r.Get("model").String(),
		},
	}
	if u := r.Get("usage"); u.Exists() {
		outTokens := int(u.Get("completion_tokens").Int())
		out.Metadata.Usage = &core.Usage{
			InputTokens:  int(u.Get("prompt_tokens").Int()),
			OutputTokens: &outTokens,
		}
	}
	return out
}

func (c *Client) setHeaders(r *http.Request) {
	r.Header.Set("Authorization", "Bearer "+c.apiKey)
	r.Header.Set("Content-Type", "application/json")
}
