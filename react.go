package conclave

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// maxReactIterations caps the number of Thought/Action turns before the loop
// forces a final answer.
const maxReactIterations = 3

// reactLoop drives one participant through the Thought/Action/Observation
// protocol, surfacing its reasoning on the event stream. prompt is the
// phase prompt before ReAct wrapping. When streamTokens is set, raw text
// deltas are emitted as token events (sequential mode); the batch executor
// leaves it off and consumers see only thought/action/tool-call/tool-result/
// observation events.
func reactLoop(ctx context.Context, gw Gateway, model, prompt string, reg *ToolRegistry, streamTokens bool, emit EmitFunc) (Response, error) {
	messages := []ChatMessage{UserMessage(WrapReactPrompt(prompt, maxReactIterations))}
	var made []ToolCall

	for i := 0; i < maxReactIterations; i++ {
		resp, err := reactTurn(ctx, gw, model, messages, streamTokens, emit)
		if err != nil {
			return Response{}, err
		}
		step := ParseReact(resp.Content)
		if step.Thought != "" {
			if !emit(Event{Type: EventThought, Model: model, Content: step.Thought}) {
				return Response{}, ctx.Err()
			}
		}
		if step.Action != "" {
			if !emit(Event{Type: EventAction, Model: model, Name: step.Action, Content: step.Arg}) {
				return Response{}, ctx.Err()
			}
		}

		if step.Terminal() {
			return Response{
				Model:         model,
				Content:       reactFinalAnswer(resp.Content),
				Reasoned:      true,
				ToolCallsMade: made,
			}, nil
		}

		// search_web: execute, feed the observation back, continue.
		args, _ := json.Marshal(map[string]string{"query": step.Arg})
		tc := ToolCall{ID: NewID(), Name: actionSearchWeb, Args: args}
		made = append(made, tc)
		if !emit(Event{Type: EventToolCall, Model: model, Name: tc.Name, Args: tc.Args}) {
			return Response{}, ctx.Err()
		}
		result := reg.Execute(ctx, tc.Name, tc.Args).resultContent()
		if !emit(Event{Type: EventToolResult, Model: model, Name: tc.Name, Content: result}) {
			return Response{}, ctx.Err()
		}
		if !emit(Event{Type: EventObservation, Model: model, Content: result}) {
			return Response{}, ctx.Err()
		}

		messages = append(messages,
			AssistantMessage(resp.Content),
			UserMessage("Observation: "+result))
	}

	// Iteration cap without a terminal action: force one respond pass.
	messages = append(messages, UserMessage(
		"You have used all available search actions. Write your final answer now, with no further Thought or Action lines."))
	resp, err := reactTurn(ctx, gw, model, messages, streamTokens, emit)
	if err != nil {
		return Response{}, err
	}
	return Response{
		Model:         model,
		Content:       strings.TrimSpace(resp.Content),
		Reasoned:      true,
		ToolCallsMade: made,
	}, nil
}

// reactTurn issues one streaming call with no native tools, optionally
// forwarding text deltas to the event stream.
func reactTurn(ctx context.Context, gw Gateway, model string, messages []ChatMessage, streamTokens bool, emit EmitFunc) (ChatResponse, error) {
	inner := make(chan StreamEvent, 64)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range inner {
			if streamTokens && ev.Type == StreamTextDelta {
				emit(Event{Type: EventToken, Model: model, Content: ev.Content})
			}
		}
	}()
	resp, err := gw.ChatStream(ctx, model, ChatRequest{Messages: messages}, inner)
	<-done
	if err != nil {
		return ChatResponse{}, err
	}
	if resp.Content == "" {
		return ChatResponse{}, fmt.Errorf("%s: empty react turn", model)
	}
	return resp, nil
}

// reactFinalAnswer strips the protocol preamble from a terminal turn: the
// answer is whatever follows the Action line, or the whole content when the
// model skipped the protocol and just answered.
func reactFinalAnswer(content string) string {
	if loc := actionRe.FindStringIndex(content); loc != nil {
		if tail := strings.TrimSpace(content[loc[1]:]); tail != "" {
			return tail
		}
	}
	return strings.TrimSpace(content)
}
