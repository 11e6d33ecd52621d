package openaicompat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"conclave"
)

// Gateway implements conclave.Gateway for any OpenAI-compatible API. One
// gateway serves every participant; the model is named per call.
type Gateway struct {
	apiKey  string
	baseURL string
	client  *http.Client
	name    string
	opts    []Option
}

// GatewayOption configures a Gateway.
type GatewayOption func(*Gateway)

// WithHTTPClient replaces the default HTTP client. The client must be safe
// for concurrent use: batch rounds issue requests from many goroutines.
func WithHTTPClient(c *http.Client) GatewayOption {
	return func(g *Gateway) { g.client = c }
}

// WithName overrides the gateway name reported in errors and traces.
func WithName(name string) GatewayOption {
	return func(g *Gateway) { g.name = name }
}

// WithRequestOptions applies body options (temperature, max tokens, ...) to
// every outgoing request.
func WithRequestOptions(opts ...Option) GatewayOption {
	return func(g *Gateway) { g.opts = append(g.opts, opts...) }
}

// New creates an OpenAI-compatible gateway.
//
// baseURL is the API base (e.g. "https://api.openai.com/v1",
// "https://openrouter.ai/api/v1", "http://localhost:11434/v1"); the
// /chat/completions path is appended automatically.
func New(baseURL, apiKey string, opts ...GatewayOption) *Gateway {
	g := &Gateway{
		apiKey:  apiKey,
		baseURL: baseURL,
		client:  &http.Client{},
		name:    "openai",
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Name returns the gateway name (default "openai", configurable via WithName).
func (g *Gateway) Name() string { return g.name }

// Chat sends a non-streaming chat request and returns the complete response.
func (g *Gateway) Chat(ctx context.Context, model string, req conclave.ChatRequest) (conclave.ChatResponse, error) {
	body := BuildBody(model, req, g.opts...)

	resp, err := g.sendHTTP(ctx, body)
	if err != nil {
		return conclave.ChatResponse{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return conclave.ChatResponse{}, g.httpErr(resp)
	}

	var chatResp ChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return conclave.ChatResponse{}, &conclave.ErrLLM{Gateway: g.name, Message: fmt.Sprintf("decode response: %v", err)}
	}

	return ParseResponse(chatResp), nil
}

// ChatStream streams text-delta events into ch, then returns the final
// accumulated response. The channel is closed when streaming completes (via
// StreamSSE) or on error.
func (g *Gateway) ChatStream(ctx context.Context, model string, req conclave.ChatRequest, ch chan<- conclave.StreamEvent) (conclave.ChatResponse, error) {
	body := BuildBody(model, req, g.opts...)
	body.Stream = true
	body.StreamOptions = &StreamOptions{IncludeUsage: true}

	resp, err := g.sendHTTP(ctx, body)
	if err != nil {
		close(ch)
		return conclave.ChatResponse{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		close(ch)
		return conclave.ChatResponse{}, g.httpErr(resp)
	}

	// StreamSSE closes ch when done.
	return StreamSSE(ctx, resp.Body, ch)
}

// sendHTTP marshals the request body and posts it to the chat completions
// endpoint.
func (g *Gateway) sendHTTP(ctx context.Context, body ChatRequest) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, &conclave.ErrLLM{Gateway: g.name, Message: fmt.Sprintf("marshal request: %v", err)}
	}

	url := g.baseURL + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, &conclave.ErrLLM{Gateway: g.name, Message: fmt.Sprintf("create request: %v", err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if g.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	return g.client.Do(httpReq)
}

// httpErr reads the response body and returns an ErrHTTP for the retry
// wrapper, parsing the Retry-After header when present (429/503 responses).
func (g *Gateway) httpErr(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	return &conclave.ErrHTTP{
		Status:     resp.StatusCode,
		Body:       string(body),
		RetryAfter: conclave.ParseRetryAfter(resp.Header.Get("Retry-After")),
	}
}

// Compile-time interface check.
var _ conclave.Gateway = (*Gateway)(nil)
