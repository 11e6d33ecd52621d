package conclave

import (
	"context"
	"strings"
)

// Native tool-calling loops. Both forms share the same contract: the model
// responds at least once, every requested tool call produces exactly one tool
// result message, and the loop runs at most maxToolCalls tool iterations.
// With maxToolCalls = 0 the first assistant reply is returned verbatim, even
// if it contains tool calls.

// QueryWithTools runs the non-streaming tool loop: send, execute requested
// tools, append results, repeat. Returns the final response and every tool
// call the model made along the way.
func QueryWithTools(ctx context.Context, gw Gateway, model string, messages []ChatMessage, reg *ToolRegistry, maxToolCalls int) (ChatResponse, []ToolCall, error) {
	defs := reg.Definitions()
	var made []ToolCall
	var usage Usage

	resp, err := gw.Chat(ctx, model, ChatRequest{Messages: messages, Tools: defs})
	if err != nil {
		return ChatResponse{}, nil, err
	}
	usage.Add(resp.Usage)

	for i := 0; i < maxToolCalls && len(resp.ToolCalls) > 0; i++ {
		messages = appendToolExchange(ctx, messages, resp, reg, nil)
		made = append(made, resp.ToolCalls...)

		resp, err = gw.Chat(ctx, model, ChatRequest{Messages: messages, Tools: defs})
		if err != nil {
			return ChatResponse{}, made, err
		}
		usage.Add(resp.Usage)
	}

	resp.Usage = usage
	return resp, made, nil
}

// StreamWithTools runs the streaming tool loop. Text deltas and tool events
// flow into ch as they happen; ch is closed exactly once before returning.
// When the tool-call cap is hit mid-loop, the returned response still carries
// whatever text the model produced across iterations.
func StreamWithTools(ctx context.Context, gw Gateway, model string, messages []ChatMessage, reg *ToolRegistry, maxToolCalls int, ch chan<- StreamEvent) (ChatResponse, []ToolCall, error) {
	defer close(ch)

	defs := reg.Definitions()
	var made []ToolCall
	var usage Usage
	var allText strings.Builder

	resp, err := streamOnce(ctx, gw, model, ChatRequest{Messages: messages, Tools: defs}, ch, &allText)
	if err != nil {
		return ChatResponse{}, nil, err
	}
	usage.Add(resp.Usage)

	for i := 0; i < maxToolCalls && len(resp.ToolCalls) > 0; i++ {
		messages = appendToolExchange(ctx, messages, resp, reg, ch)
		made = append(made, resp.ToolCalls...)

		resp, err = streamOnce(ctx, gw, model, ChatRequest{Messages: messages, Tools: defs}, ch, &allText)
		if err != nil {
			return ChatResponse{}, made, err
		}
		usage.Add(resp.Usage)
	}

	if resp.Content == "" || len(resp.ToolCalls) > 0 {
		// Cap hit with pending tool calls, or an empty final turn: the run
		// still ends with whatever was streamed.
		resp.Content = allText.String()
	}
	resp.Usage = usage
	return resp, made, nil
}

// streamOnce issues one streaming gateway call, forwarding events from the
// per-call inner channel (which the gateway closes) to the caller's channel
// and collecting all text into acc.
func streamOnce(ctx context.Context, gw Gateway, model string, req ChatRequest, ch chan<- StreamEvent, acc *strings.Builder) (ChatResponse, error) {
	inner := make(chan StreamEvent, 64)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range inner {
			if ev.Type == StreamTextDelta {
				acc.WriteString(ev.Content)
			}
			select {
			case ch <- ev:
			case <-ctx.Done():
				// Keep draining so the producer can finish.
			}
		}
	}()
	resp, err := gw.ChatStream(ctx, model, req, inner)
	<-done
	return resp, err
}

// appendToolExchange appends the assistant message verbatim, executes each
// tool call in submission order, and appends each result as a tool message
// bound to its call id. When ch is non-nil, tool start/result events are
// emitted around each execution.
func appendToolExchange(ctx context.Context, messages []ChatMessage, resp ChatResponse, reg *ToolRegistry, ch chan<- StreamEvent) []ChatMessage {
	messages = append(messages, ChatMessage{
		Role:      "assistant",
		Content:   resp.Content,
		ToolCalls: resp.ToolCalls,
	})
	for _, tc := range resp.ToolCalls {
		if ch != nil {
			ch <- StreamEvent{Type: StreamToolCallStart, ID: tc.ID, Name: tc.Name, Args: tc.Args}
		}
		result := reg.Execute(ctx, tc.Name, tc.Args).resultContent()
		if ch != nil {
			ch <- StreamEvent{Type: StreamToolCallResult, ID: tc.ID, Name: tc.Name, Content: result}
		}
		messages = append(messages, ToolResultMessage(tc.ID, tc.Name, result))
	}
	return messages
}
