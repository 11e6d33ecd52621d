package openaicompat

import (
	"encoding/json"

	"conclave"
)

// ParseResponse converts an OpenAI-format ChatResponse to a gateway-level
// ChatResponse, extracting content, tool calls, and usage from choices[0].
// An empty choice list parses to an empty response, not an error.
func ParseResponse(resp ChatResponse) conclave.ChatResponse {
	var out conclave.ChatResponse

	if len(resp.Choices) > 0 {
		choice := resp.Choices[0]
		if choice.Message != nil {
			out.Content = choice.Message.Content
			out.ToolCalls = ParseToolCalls(choice.Message.ToolCalls)
		}
	}

	if resp.Usage != nil {
		out.Usage = conclave.Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		}
	}

	return out
}

// ParseToolCalls converts OpenAI tool call requests to conclave ToolCalls.
// OpenAI returns function.arguments as a JSON string; invalid JSON collapses
// to an empty object so the tool layer can still produce a decode-error
// result for the model.
func ParseToolCalls(tcs []ToolCallRequest) []conclave.ToolCall {
	if len(tcs) == 0 {
		return nil
	}

	out := make([]conclave.ToolCall, 0, len(tcs))
	for _, tc := range tcs {
		args := json.RawMessage(tc.Function.Arguments)
		if !json.Valid(args) {
			args = json.RawMessage(`{}`)
		}
		out = append(out, conclave.ToolCall{
			ID:   tc.ID,
			Name: tc.Function.Name,
			Args: args,
		})
	}
	return out
}
