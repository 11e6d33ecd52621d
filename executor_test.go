package conclave

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"
)

func initialConfig(t *testing.T, participants []string) RoundConfig {
	t.Helper()
	cfg, err := NewRoundConfig(RoundInitial, 1, "q", participants, RoundContext{}, false, "2026-08-02")
	if err != nil {
		t.Fatal(err)
	}
	return cfg
}

func TestBatchExecutor_CompletionOrderAndEvents(t *testing.T) {
	gw := newFakeGateway()
	gw.on("fast", reply("F"))
	gw.on("slow", fakeStep{response: ChatResponse{Content: "S"}, delay: 80 * time.Millisecond})
	exec := &BatchExecutor{Gateway: gw, Tools: NewToolRegistry(), Timeout: time.Second, MaxToolCalls: 1}

	participants := []string{"slow", "fast"}
	var log eventLog
	responses, err := exec.ExecuteRound(context.Background(), initialConfig(t, participants), participants, log.emit)
	if err != nil {
		t.Fatal(err)
	}

	if len(responses) != 2 {
		t.Fatalf("responses = %d", len(responses))
	}
	// Completion order, not submission order.
	if responses[0].Model != "fast" || responses[1].Model != "slow" {
		t.Fatalf("completion order = %s, %s", responses[0].Model, responses[1].Model)
	}

	if got := len(log.ofType(EventModelStart)); got != 2 {
		t.Fatalf("model-start events = %d, want 2", got)
	}
	completes := log.ofType(EventRoundComplete)
	if len(completes) != 1 {
		t.Fatalf("round-complete events = %d, want 1", len(completes))
	}
	record := completes[0].Record
	if record == nil || record.Number != 1 || record.Type != RoundInitial || len(record.Responses) != 2 {
		t.Fatalf("round record = %+v", record)
	}
}

// A timeout surfaces as a model-error with the documented reason and never a
// model-complete for the same participant; the others are unaffected.
func TestBatchExecutor_Timeout(t *testing.T) {
	gw := newFakeGateway()
	gw.on("p1", reply("X"))
	gw.on("p2", fakeStep{response: ChatResponse{Content: "late"}, delay: 500 * time.Millisecond})
	gw.on("p3", reply("Z"))
	exec := &BatchExecutor{Gateway: gw, Tools: NewToolRegistry(), Timeout: 50 * time.Millisecond, MaxToolCalls: 1}

	participants := []string{"p1", "p2", "p3"}
	var log eventLog
	responses, err := exec.ExecuteRound(context.Background(), initialConfig(t, participants), participants, log.emit)
	if err != nil {
		t.Fatal(err)
	}

	if len(responses) != 2 {
		t.Fatalf("responses = %d, want 2 survivors", len(responses))
	}
	for _, r := range responses {
		if r.Model == "p2" {
			t.Fatal("timed-out participant must be absent from responses")
		}
	}

	errs := log.ofType(EventModelError)
	if len(errs) != 1 || errs[0].Model != "p2" {
		t.Fatalf("model-error events = %+v", errs)
	}
	if !strings.HasPrefix(errs[0].Content, "timeout after ") {
		t.Fatalf("timeout reason = %q", errs[0].Content)
	}
	for _, ev := range log.ofType(EventModelComplete) {
		if ev.Model == "p2" {
			t.Fatal("no model-complete may follow a model-error for the same participant")
		}
	}
}

func TestBatchExecutor_TimeoutReasonFormat(t *testing.T) {
	if got := participantReason(context.DeadlineExceeded, 120*time.Second); got != "timeout after 120s" {
		t.Fatalf("participantReason = %q", got)
	}
	if got := participantReason(errors.New("boom"), time.Second); got != "boom" {
		t.Fatalf("participantReason = %q", got)
	}
}

func TestSequentialExecutor_NeverInterleaves(t *testing.T) {
	gw := newFakeGateway()
	gw.on("p1", fakeStep{response: ChatResponse{Content: "one"}, tokens: []string{"o", "n", "e"}})
	gw.on("p2", fakeStep{response: ChatResponse{Content: "two"}, tokens: []string{"t", "w", "o"}})
	exec := &SequentialExecutor{Gateway: gw, Tools: NewToolRegistry(), Timeout: time.Second, MaxToolCalls: 1}

	participants := []string{"p1", "p2"}
	var log eventLog
	responses, err := exec.ExecuteRound(context.Background(), initialConfig(t, participants), participants, log.emit)
	if err != nil {
		t.Fatal(err)
	}
	if len(responses) != 2 || responses[0].Model != "p1" || responses[1].Model != "p2" {
		t.Fatalf("submission order violated: %+v", responses)
	}

	// No p2 event may precede p1's terminal event.
	sawP1Terminal := false
	for _, ev := range log.all() {
		switch {
		case ev.Model == "p1" && (ev.Type == EventModelComplete || ev.Type == EventModelError):
			sawP1Terminal = true
		case ev.Model == "p2" && !sawP1Terminal:
			t.Fatalf("p2 event %s before p1 completed", ev.Type)
		}
	}

	if got := len(log.ofType(EventToken)); got != 6 {
		t.Fatalf("token events = %d, want 6", got)
	}
}

func TestSequentialExecutor_ErrorIsolated(t *testing.T) {
	gw := newFakeGateway()
	gw.on("p1", fakeStep{err: errors.New("connection reset")})
	gw.on("p2", reply("fine"))
	exec := &SequentialExecutor{Gateway: gw, Tools: NewToolRegistry(), Timeout: time.Second, MaxToolCalls: 1}

	participants := []string{"p1", "p2"}
	var log eventLog
	responses, err := exec.ExecuteRound(context.Background(), initialConfig(t, participants), participants, log.emit)
	if err != nil {
		t.Fatal(err)
	}
	if len(responses) != 1 || responses[0].Model != "p2" {
		t.Fatalf("responses = %+v", responses)
	}
	errs := log.ofType(EventModelError)
	if len(errs) != 1 || errs[0].Model != "p1" || errs[0].Content != "connection reset" {
		t.Fatalf("model-error = %+v", errs)
	}
}

// Defense rounds parse revised answers and skip participants with nothing to
// defend.
func TestExecutors_DefensePostProcessing(t *testing.T) {
	initial := []Response{
		{Model: "p1", Content: "I1"},
		{Model: "p2", Content: "I2"},
	}
	critiques := []Response{
		{Model: "p1", Content: "## Critique of p2\nWeak."},
		{Model: "p2", Content: "## Critique of p1\nVague."},
	}
	cfg, err := NewRoundConfig(RoundDefense, 3, "q", []string{"p1", "p2", "p3"}, RoundContext{
		InitialResponses:  initial,
		CritiqueResponses: critiques,
	}, false, "2026-08-02")
	if err != nil {
		t.Fatal(err)
	}

	gw := newFakeGateway()
	gw.on("p1", reply("## Addressing Critiques\nOk.\n\n## Revised Response\nR1"))
	gw.on("p2", reply("## Addressing Critiques\nOk.\n\n## Revised Response\nR2"))
	exec := &BatchExecutor{Gateway: gw, Tools: NewToolRegistry(), Timeout: time.Second, MaxToolCalls: 1}

	var log eventLog
	responses, err := exec.ExecuteRound(context.Background(), cfg, []string{"p1", "p2", "p3"}, log.emit)
	if err != nil {
		t.Fatal(err)
	}

	// p3 had no initial response: skipped without an error event.
	if len(responses) != 2 {
		t.Fatalf("responses = %d, want 2", len(responses))
	}
	for _, r := range responses {
		if r.RevisedAnswer == "" {
			t.Fatalf("defense response %s has empty revised answer", r.Model)
		}
	}
	if n := gw.callCount("p3"); n != 0 {
		t.Fatalf("p3 was called %d times, want 0", n)
	}
	if got := len(log.ofType(EventModelStart)); got != 2 {
		t.Fatalf("model-start events = %d, want 2", got)
	}
}

// Cancellation suppresses round-complete.
func TestBatchExecutor_NoRoundCompleteAfterCancel(t *testing.T) {
	gw := newFakeGateway()
	gw.on("p1", fakeStep{response: ChatResponse{Content: "X"}, delay: 300 * time.Millisecond})
	gw.on("p2", fakeStep{response: ChatResponse{Content: "Y"}, delay: 300 * time.Millisecond})
	exec := &BatchExecutor{Gateway: gw, Tools: NewToolRegistry(), Timeout: time.Second, MaxToolCalls: 1}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	participants := []string{"p1", "p2"}
	var log eventLog
	_, err := exec.ExecuteRound(ctx, initialConfig(t, participants), participants, log.emit)
	if err == nil {
		t.Fatal("expected cancellation error")
	}
	if got := len(log.ofType(EventRoundComplete)); got != 0 {
		t.Fatalf("round-complete events after cancel = %d, want 0", got)
	}
}

// Sequential + ReAct: tokens, reasoning events, tool traffic, and completion
// arrive in protocol order for a single participant.
func TestSequentialExecutor_ReactWithSearch(t *testing.T) {
	gw := newFakeGateway()
	gw.on("p1",
		fakeStep{
			response: ChatResponse{Content: "Thought: need latest rate.\nAction: search_web(\"usd to eur today\")"},
			tokens:   []string{"Thought: need latest rate.\n", "Action: search_web(\"usd to eur today\")"},
		},
		fakeStep{
			response: ChatResponse{Content: "Thought: done.\nAction: respond()\nAbout 0.92."},
			tokens:   []string{"Thought: done.\n", "Action: respond()\n", "About 0.92."},
		},
	)
	reg := NewToolRegistry()
	reg.Add(newEchoTool("search_web", "[1] ECB\nhttps://ecb.example\n0.92"))
	exec := &SequentialExecutor{Gateway: gw, Tools: reg, Timeout: time.Second, MaxToolCalls: 3}

	cfg, err := NewRoundConfig(RoundInitial, 1, "rate?", []string{"p1"}, RoundContext{}, true, "2026-08-02")
	if err != nil {
		t.Fatal(err)
	}

	var log eventLog
	responses, err := exec.ExecuteRound(context.Background(), cfg, []string{"p1"}, log.emit)
	if err != nil {
		t.Fatal(err)
	}
	if len(responses) != 1 {
		t.Fatalf("responses = %d", len(responses))
	}
	resp := responses[0]
	if !resp.Reasoned || resp.Content != "About 0.92." || len(resp.ToolCallsMade) != 1 {
		t.Fatalf("response = %+v", resp)
	}

	// Strip token events; the structural order must match the protocol.
	var structural []EventType
	tokens := 0
	for _, ev := range log.all() {
		if ev.Type == EventToken {
			tokens++
			continue
		}
		structural = append(structural, ev.Type)
	}
	want := []EventType{
		EventModelStart,
		EventThought, EventAction,
		EventToolCall, EventToolResult, EventObservation,
		EventThought, EventAction,
		EventModelComplete, EventRoundComplete,
	}
	if !reflect.DeepEqual(structural, want) {
		t.Fatalf("structural events = %v, want %v", structural, want)
	}
	if tokens != 5 {
		t.Fatalf("token events = %d, want 5", tokens)
	}

	// The thought event precedes the tool call, and the observation carries
	// the formatted result.
	obs := log.ofType(EventObservation)[0]
	if !strings.Contains(obs.Content, "ECB") {
		t.Fatalf("observation = %q", obs.Content)
	}
}
