package openaicompat

import (
	"conclave"
)

// Option mutates an outgoing ChatRequest body.
type Option func(*ChatRequest)

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option {
	return func(r *ChatRequest) { r.Temperature = &t }
}

// WithTopP sets nucleus sampling.
func WithTopP(p float64) Option {
	return func(r *ChatRequest) { r.TopP = &p }
}

// WithMaxTokens caps the completion length.
func WithMaxTokens(n int) Option {
	return func(r *ChatRequest) { r.MaxTokens = n }
}

// WithStop sets stop sequences.
func WithStop(stop ...string) Option {
	return func(r *ChatRequest) { r.Stop = stop }
}

// WithSeed requests deterministic sampling where the backend supports it.
func WithSeed(seed int) Option {
	return func(r *ChatRequest) { r.Seed = seed2ptr(seed) }
}

func seed2ptr(s int) *int { return &s }

// BuildBody converts a gateway-level request into the OpenAI wire body.
func BuildBody(model string, req conclave.ChatRequest, opts ...Option) ChatRequest {
	body := ChatRequest{
		Model:     model,
		Messages:  convertMessages(req.Messages),
		Tools:     convertTools(req.Tools),
		MaxTokens: req.MaxTokens,
	}
	for _, opt := range opts {
		opt(&body)
	}
	return body
}

// convertMessages maps conclave messages to the OpenAI wire format.
func convertMessages(msgs []conclave.ChatMessage) []Message {
	out := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		wire := Message{
			Role:       m.Role,
			Content:    m.Content,
			Name:       m.Name,
			ToolCallID: m.ToolCallID,
		}
		for i, tc := range m.ToolCalls {
			wire.ToolCalls = append(wire.ToolCalls, ToolCallRequest{
				Index: i,
				ID:    tc.ID,
				Type:  "function",
				Function: FunctionCall{
					Name:      tc.Name,
					Arguments: string(tc.Args),
				},
			})
		}
		out = append(out, wire)
	}
	return out
}

// convertTools maps tool definitions to the OpenAI wire format.
func convertTools(defs []conclave.ToolDefinition) []Tool {
	if len(defs) == 0 {
		return nil
	}
	out := make([]Tool, 0, len(defs))
	for _, d := range defs {
		out = append(out, Tool{
			Type: "function",
			Function: Function{
				Name:        d.Name,
				Description: d.Description,
				Parameters:  d.Parameters,
			},
		})
	}
	return out
}
