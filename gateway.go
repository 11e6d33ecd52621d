package conclave

import "context"

// Gateway abstracts the chat-completions backend shared by all participants.
// Unlike a single-model provider, every call names the model explicitly —
// one gateway serves the whole panel.
type Gateway interface {
	// Chat sends a request and returns the complete response.
	// When req.Tools is non-empty, the response may contain ToolCalls.
	Chat(ctx context.Context, model string, req ChatRequest) (ChatResponse, error)
	// ChatStream streams text-delta events into ch, then returns the final
	// accumulated response (content + merged tool calls + usage).
	// The channel is closed exactly once, on completion or error.
	ChatStream(ctx context.Context, model string, req ChatRequest, ch chan<- StreamEvent) (ChatResponse, error)
	// Name returns the gateway name (e.g. "openai").
	Name() string
}
