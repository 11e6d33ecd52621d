package conclave

import (
	"context"
	"time"
)

// Synthesize runs the reflection synthesizer: one streaming call to the
// chairman with the full transcript embedded in prompt and no tools offered.
// Tokens stream as they arrive; once the stream completes, the content is
// split at the "## Synthesis" boundary into a reflection event (possibly
// empty) followed by a synthesis event. Returns the synthesis response.
func Synthesize(ctx context.Context, gw Gateway, chairman, prompt string, timeout time.Duration, emit EmitFunc) (Response, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	sctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ch := make(chan StreamEvent, 64)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range ch {
			if ev.Type == StreamTextDelta {
				emit(Event{Type: EventToken, Content: ev.Content})
			}
		}
	}()
	resp, err := gw.ChatStream(sctx, chairman, ChatRequest{Messages: []ChatMessage{UserMessage(prompt)}}, ch)
	<-done
	if err != nil {
		return Response{}, err
	}

	reflection, synthesis := SplitReflection(resp.Content)
	if !emit(Event{Type: EventReflection, Content: reflection}) {
		return Response{}, ctx.Err()
	}
	out := Response{Model: chairman, Content: synthesis}
	if !emit(Event{Type: EventSynthesis, Model: chairman, Content: synthesis, Response: &out}) {
		return Response{}, ctx.Err()
	}
	return out, nil
}
