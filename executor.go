package conclave

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// RoundExecutor is the strategy interface for executing one round. The
// orchestrators are written against this single operation so new execution
// modes slot in without touching them.
//
// ExecuteRound emits the round's events (model-start/complete/error and, per
// strategy, token/tool/reasoning events), finishes with one round-complete
// event, and returns the responses in arrival order. Participant failures are
// absorbed into model-error events; the error return is reserved for run
// cancellation.
type RoundExecutor interface {
	ExecuteRound(ctx context.Context, cfg RoundConfig, participants []string, emit EmitFunc) ([]Response, error)
}

// DefaultTimeout is the per-participant wall-clock budget when none is
// configured.
const DefaultTimeout = 120 * time.Second

// participantReason maps a request error to a model-error reason.
func participantReason(err error, timeout time.Duration) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Sprintf("timeout after %ds", int(timeout.Seconds()))
	}
	return err.Error()
}

// runParticipant executes one participant's work for a round under its own
// deadline. The react and tool-use flags come from the RoundConfig; the tool
// registry comes from the executor.
func runParticipant(ctx context.Context, gw Gateway, reg *ToolRegistry, cfg RoundConfig, model, prompt string, maxToolCalls int, streamTokens bool, emit EmitFunc) (Response, error) {
	switch {
	case cfg.UsesReact && cfg.UsesTools:
		return reactLoop(ctx, gw, model, prompt, reg, streamTokens, emit)

	case cfg.UsesTools && !streamTokens:
		resp, made, err := QueryWithTools(ctx, gw, model, []ChatMessage{UserMessage(prompt)}, reg, maxToolCalls)
		if err != nil {
			return Response{}, err
		}
		return Response{Model: model, Content: resp.Content, ToolCallsMade: made}, nil

	case streamTokens:
		// Sequential mode streams every participant, tools or not.
		ch := make(chan StreamEvent, 64)
		done := make(chan struct{})
		go func() {
			defer close(done)
			for ev := range ch {
				forwardStreamEvent(model, ev, emit)
			}
		}()
		var (
			resp ChatResponse
			made []ToolCall
			err  error
		)
		if cfg.UsesTools {
			resp, made, err = StreamWithTools(ctx, gw, model, []ChatMessage{UserMessage(prompt)}, reg, maxToolCalls, ch)
		} else {
			resp, err = gw.ChatStream(ctx, model, ChatRequest{Messages: []ChatMessage{UserMessage(prompt)}}, ch)
		}
		<-done
		if err != nil {
			return Response{}, err
		}
		return Response{Model: model, Content: resp.Content, ToolCallsMade: made}, nil

	default:
		resp, err := gw.Chat(ctx, model, ChatRequest{Messages: []ChatMessage{UserMessage(prompt)}})
		if err != nil {
			return Response{}, err
		}
		return Response{Model: model, Content: resp.Content}, nil
	}
}

// forwardStreamEvent lifts a gateway-level stream event into the round event
// stream, stamped with the participant.
func forwardStreamEvent(model string, ev StreamEvent, emit EmitFunc) {
	switch ev.Type {
	case StreamTextDelta:
		emit(Event{Type: EventToken, Model: model, Content: ev.Content})
	case StreamToolCallStart:
		emit(Event{Type: EventToolCall, Model: model, Name: ev.Name, Args: ev.Args})
	case StreamToolCallResult:
		emit(Event{Type: EventToolResult, Model: model, Name: ev.Name, Content: ev.Content})
	}
}

// finishRound applies per-round post-processing and emits round-complete.
// No round-complete is emitted once the run is cancelled.
func finishRound(ctx context.Context, cfg RoundConfig, responses []Response, emit EmitFunc) ([]Response, error) {
	if ctx.Err() != nil {
		return responses, ctx.Err()
	}
	if cfg.HasRevisedAnswer {
		for i := range responses {
			responses[i].RevisedAnswer = ParseRevisedAnswer(responses[i].Content)
		}
	}
	record := &RoundRecord{Number: cfg.Number, Type: cfg.Type, Responses: responses}
	emit(Event{Type: EventRoundComplete, RoundNumber: cfg.Number, RoundType: cfg.Type, Record: record})
	return responses, nil
}

// --- Batch-parallel executor ---

// BatchExecutor runs every participant concurrently, each under its own
// deadline, and reports per-participant completion events as they arrive.
// Responses come back in completion order.
type BatchExecutor struct {
	Gateway      Gateway
	Tools        *ToolRegistry
	Timeout      time.Duration
	MaxToolCalls int
	Logger       *slog.Logger
}

type participantOutcome struct {
	model    string
	response Response
	err      error
}

func (e *BatchExecutor) ExecuteRound(ctx context.Context, cfg RoundConfig, participants []string, emit EmitFunc) ([]Response, error) {
	timeout := e.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	logger := e.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	// Participants with no prompt this round (a defense with nothing to
	// defend) are skipped without events and stay eligible later.
	active := make([]string, 0, len(participants))
	for _, p := range participants {
		if _, ok := cfg.PromptFor(p); ok {
			active = append(active, p)
		}
	}

	for _, p := range active {
		if !emit(Event{Type: EventModelStart, Model: p}) {
			return nil, ctx.Err()
		}
	}

	outcomes := make(chan participantOutcome, len(active))
	for _, p := range active {
		prompt, _ := cfg.PromptFor(p)
		go func(model, prompt string) {
			pctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			resp, err := runParticipant(pctx, e.Gateway, e.Tools, cfg, model, prompt, e.MaxToolCalls, false, emit)
			// Exactly one outcome per participant: a worker that errors
			// never also reports a completion.
			outcomes <- participantOutcome{model: model, response: resp, err: err}
		}(p, prompt)
	}

	responses := make([]Response, 0, len(active))
	for range active {
		select {
		case out := <-outcomes:
			if out.err != nil {
				reason := participantReason(out.err, timeout)
				logger.Warn("participant failed", "model", out.model, "round", cfg.Number, "reason", reason)
				if !emit(Event{Type: EventModelError, Model: out.model, Content: reason}) {
					return responses, ctx.Err()
				}
				continue
			}
			if !emit(Event{Type: EventModelComplete, Model: out.model, Response: &out.response}) {
				return responses, ctx.Err()
			}
			responses = append(responses, out.response)
		case <-ctx.Done():
			return responses, ctx.Err()
		}
	}

	return finishRound(ctx, cfg, responses, emit)
}

// --- Sequential-streaming executor ---

// SequentialExecutor runs participants one at a time in submission order,
// streaming every token. Events from different participants never interleave:
// participant K+1 produces nothing until K's model-complete or model-error.
type SequentialExecutor struct {
	Gateway      Gateway
	Tools        *ToolRegistry
	Timeout      time.Duration
	MaxToolCalls int
	Logger       *slog.Logger
}

func (e *SequentialExecutor) ExecuteRound(ctx context.Context, cfg RoundConfig, participants []string, emit EmitFunc) ([]Response, error) {
	timeout := e.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	logger := e.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	var responses []Response
	for _, p := range participants {
		prompt, ok := cfg.PromptFor(p)
		if !ok {
			continue
		}
		if ctx.Err() != nil {
			return responses, ctx.Err()
		}
		if !emit(Event{Type: EventModelStart, Model: p}) {
			return responses, ctx.Err()
		}

		pctx, cancel := context.WithTimeout(ctx, timeout)
		resp, err := runParticipant(pctx, e.Gateway, e.Tools, cfg, p, prompt, e.MaxToolCalls, true, emit)
		cancel()

		if err != nil {
			reason := participantReason(err, timeout)
			logger.Warn("participant failed", "model", p, "round", cfg.Number, "reason", reason)
			if !emit(Event{Type: EventModelError, Model: p, Content: reason}) {
				return responses, ctx.Err()
			}
			continue
		}
		if !emit(Event{Type: EventModelComplete, Model: p, Response: &resp}) {
			return responses, ctx.Err()
		}
		responses = append(responses, resp)
	}

	return finishRound(ctx, cfg, responses, emit)
}

// compile-time checks
var (
	_ RoundExecutor = (*BatchExecutor)(nil)
	_ RoundExecutor = (*SequentialExecutor)(nil)
)
