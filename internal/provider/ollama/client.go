// Package ollama implements the "local" tool adapter for Ollama
// instances via their OpenAI-compatible endpoint.
package ollama

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
	defaultBaseURL = "http://localhost:11434"
	defaultModel   = "llama3.1"
	toolName       = "local"
)

var _ core.Adapter = (*Client)(nil)

// Client is the local Ollama tool adapter. Unlike the hosted adapters it
// needs no API key; availability depends on the instance being up.
type Client struct {
	apiKey  string
	model   string
	baseURL string
	hc      provider.Clients
}

// New creates an Ollama Client. Empty model and baseURL fall back to the
// defaults; apiKey is optional and only sent when set.
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
			core.CapChat, core.CapStreaming, core.CapCodeContext,
		},
		MaxContextTokens:    32_768,
		SupportsStreaming:   true,
		SupportsCodeContext: true,
	}
}

// IsAvailable probes the instance's tags endpoint. No key is required.
func (c *Client) IsAvailable(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, provider.ProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := c.hc.Probe.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
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

// Chat sends a non-streaming chat completion request via the
// OpenAI-compatible endpoint.
func (c *Client) Chat(ctx context.Context, messages []core.Message, convo *core.Conversation) (*core.Response, error) {
	body, err := json.Marshal(c.buildRequest(messages, convo, false))
	if err != nil {
		return nil, fmt.Errorf("ollama: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("ollama: create request: %w", err)
	}
	c.setHeaders(httpReq)

	resp, err := c.hc.Unary.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("ollama: do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, provider.ParseAPIError(toolName, resp)
	}

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20)) // 1MB limit
	if err != nil {
		return nil, fmt.Errorf("ollama: read response: %w", err)
	}
	return parseResponse(respBody), nil
}

// StreamChat sends a streaming chat completion request via the
// OpenAI-compatible endpoint.
func (c *Client) StreamChat(ctx context.Context, messages []core.Message, convo *core.Conversation) (<-chan core.StreamChunk, error) {
	body, err := json.Marshal(c.buildRequest(messages, convo, true))
	if err != nil {
		return nil, fmt.Errorf("ollama: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("ollama: create request: %w", err)
	}
	c.setHeaders(httpReq)

	resp, err := c.hc.Stream.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("ollama: do request: %w", err)
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
	if c.apiKey != "" {
		r.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	r.Header.Set("Content-Type", "application/json")
}
