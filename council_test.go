package conclave

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func testConfig(participants []string, chairman string) Config {
	return Config{
		Participants: participants,
		Chairman:     chairman,
		Cycles:       1,
		Timeout:      time.Second,
		MaxToolCalls: 1,
	}
}

func fixedClock() time.Time {
	return time.Date(2026, 8, 2, 12, 0, 0, 0, time.UTC)
}

func TestNew_RejectsBadConfig(t *testing.T) {
	gw := newFakeGateway()
	if _, err := New(gw, testConfig([]string{"only-one"}, "chair")); err == nil {
		t.Fatal("one participant must be rejected")
	}
	cfg := testConfig([]string{"a", "b"}, "chair")
	cfg.Cycles = 0
	if _, err := New(gw, cfg); err == nil {
		t.Fatal("zero cycles must be rejected")
	}
}

func TestCouncilDebate_EndToEnd(t *testing.T) {
	participants := []string{"p1", "p2", "p3"}
	gw := debateGateway(participants...)
	gw.on("chair", reply("Panel analysis here.\n\n## Synthesis\nThe one true answer."))

	council, err := New(gw, testConfig(participants, "chair"), WithClock(fixedClock))
	if err != nil {
		t.Fatal(err)
	}

	events := make(chan Event, 256)
	collected := make(chan []Event, 1)
	go func() { collected <- drain(events) }()

	result, err := council.Debate(context.Background(), "the question", events)
	if err != nil {
		t.Fatal(err)
	}
	all := <-collected

	if len(result.Rounds) != 3 {
		t.Fatalf("rounds = %d", len(result.Rounds))
	}
	if result.Synthesis.Content != "The one true answer." {
		t.Fatalf("synthesis = %q", result.Synthesis.Content)
	}

	// The terminal event of a successful debate run is the synthesis.
	if last := all[len(all)-1]; last.Type != EventSynthesis {
		t.Fatalf("last event = %s, want synthesis", last.Type)
	}

	// Persistence document shape.
	doc, err := result.Document()
	if err != nil {
		t.Fatal(err)
	}
	var parsed struct {
		Mode   string        `json:"mode"`
		Rounds []RoundRecord `json:"rounds"`
	}
	if err := json.Unmarshal(doc, &parsed); err != nil {
		t.Fatal(err)
	}
	if parsed.Mode != "debate" || len(parsed.Rounds) != 3 {
		t.Fatalf("document = %s", doc)
	}
}

func TestCouncilDebate_QuorumLossEmitsError(t *testing.T) {
	participants := []string{"p1", "p2"}
	gw := newFakeGateway()
	gw.on("p1", fakeStep{err: errors.New("down")})
	gw.on("p2", fakeStep{err: errors.New("down")})

	council, err := New(gw, testConfig(participants, "chair"), WithClock(fixedClock))
	if err != nil {
		t.Fatal(err)
	}

	events := make(chan Event, 256)
	collected := make(chan []Event, 1)
	go func() { collected <- drain(events) }()

	_, runErr := council.Debate(context.Background(), "q", events)
	all := <-collected

	if !errors.Is(runErr, ErrQuorum) {
		t.Fatalf("err = %v, want ErrQuorum", runErr)
	}
	last := all[len(all)-1]
	if last.Type != EventError || last.Content != "quorum lost" {
		t.Fatalf("last event = %+v, want quorum error", last)
	}
	for _, ev := range all {
		if ev.Type == EventSynthesis {
			t.Fatal("no synthesis after quorum loss")
		}
	}
}

func TestCouncilDebate_SynthesizerFailureKeepsTranscript(t *testing.T) {
	participants := []string{"p1", "p2"}
	gw := debateGateway(participants...)
	gw.on("chair", fakeStep{err: errors.New("chairman offline")})

	council, err := New(gw, testConfig(participants, "chair"), WithClock(fixedClock))
	if err != nil {
		t.Fatal(err)
	}

	events := make(chan Event, 256)
	collected := make(chan []Event, 1)
	go func() { collected <- drain(events) }()

	result, runErr := council.Debate(context.Background(), "q", events)
	all := <-collected

	if runErr == nil {
		t.Fatal("expected synthesizer error")
	}
	if len(result.Rounds) != 3 {
		t.Fatalf("transcript lost: rounds = %d", len(result.Rounds))
	}
	if last := all[len(all)-1]; last.Type != EventError {
		t.Fatalf("last event = %s, want error", last.Type)
	}
}

func TestCouncilRanking_EndToEnd(t *testing.T) {
	// Stage-1 answers, then scripted stage-2 rankings matching the labels
	// A→p1, B→p2, C→p3 (submission order of the sequential executor).
	gw := newFakeGateway()
	gw.on("p1", reply("A1"), reply("FINAL RANKING:\n1. Response B\n2. Response A\n3. Response C"))
	gw.on("p2", reply("A2"), reply("FINAL RANKING:\n1. Response B\n2. Response C\n3. Response A"))
	gw.on("p3", reply("A3"), reply("FINAL RANKING:\n1. Response A\n2. Response B\n3. Response C"))
	gw.on("chair", reply("Stage analysis.\n\n## Synthesis\nBlended answer."))

	cfg := testConfig([]string{"p1", "p2", "p3"}, "chair")
	cfg.Sequential = true // deterministic submission order for labels
	council, err := New(gw, cfg, WithClock(fixedClock))
	if err != nil {
		t.Fatal(err)
	}

	events := make(chan Event, 256)
	collected := make(chan []Event, 1)
	go func() { collected <- drain(events) }()

	result, err := council.Ranking(context.Background(), "q", events)
	if err != nil {
		t.Fatal(err)
	}
	all := <-collected

	wantLabels := map[string]string{"A": "p1", "B": "p2", "C": "p3"}
	for label, model := range wantLabels {
		if result.LabelToModel[label] != model {
			t.Fatalf("label map = %v", result.LabelToModel)
		}
	}
	if len(result.LabelToModel) != len(result.Stage1) {
		t.Fatalf("label map size %d != stage1 size %d", len(result.LabelToModel), len(result.Stage1))
	}

	if len(result.Aggregate) != 3 {
		t.Fatalf("aggregate = %+v", result.Aggregate)
	}
	if result.Aggregate[0].Model != "p2" || result.Aggregate[1].Model != "p1" || result.Aggregate[2].Model != "p3" {
		t.Fatalf("aggregate order = %+v", result.Aggregate)
	}

	if result.Synthesis.Content != "Blended answer." {
		t.Fatalf("synthesis = %q", result.Synthesis.Content)
	}
	if last := all[len(all)-1]; last.Type != EventSynthesis {
		t.Fatalf("last event = %s", last.Type)
	}

	doc, err := result.Document()
	if err != nil {
		t.Fatal(err)
	}
	var parsed struct {
		Mode     string `json:"mode"`
		Metadata struct {
			LabelToModel map[string]string `json:"label_to_model"`
		} `json:"metadata"`
	}
	if err := json.Unmarshal(doc, &parsed); err != nil {
		t.Fatal(err)
	}
	if parsed.Mode != "ranking" || parsed.Metadata.LabelToModel["B"] != "p2" {
		t.Fatalf("document = %s", doc)
	}
}

// A stage-2 failure drops the ranking but the pipeline continues.
func TestCouncilRanking_Stage2FailureTolerated(t *testing.T) {
	gw := newFakeGateway()
	gw.on("p1", reply("A1"), reply("FINAL RANKING:\n1. Response A\n2. Response B"))
	gw.on("p2", reply("A2"), fakeStep{err: errors.New("down")})
	gw.on("chair", reply("## Synthesis\nStill works."))

	cfg := testConfig([]string{"p1", "p2"}, "chair")
	cfg.Sequential = true
	council, err := New(gw, cfg, WithClock(fixedClock))
	if err != nil {
		t.Fatal(err)
	}

	events := make(chan Event, 256)
	go func() {
		for range events {
		}
	}()

	result, err := council.Ranking(context.Background(), "q", events)
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Stage2) != 1 || result.Stage2[0].Model != "p1" {
		t.Fatalf("stage2 = %+v", result.Stage2)
	}
	if len(result.Aggregate) != 2 {
		t.Fatalf("aggregate = %+v", result.Aggregate)
	}
}

// The initial prompt embeds the clock's date.
func TestCouncil_PromptsCarryDate(t *testing.T) {
	participants := []string{"p1", "p2"}
	gw := debateGateway(participants...)
	gw.on("chair", reply("## Synthesis\nx"))

	council, err := New(gw, testConfig(participants, "chair"), WithClock(fixedClock))
	if err != nil {
		t.Fatal(err)
	}
	events := make(chan Event, 256)
	go func() {
		for range events {
		}
	}()
	if _, err := council.Debate(context.Background(), "q", events); err != nil {
		t.Fatal(err)
	}

	// First request to p1 was the initial round.
	gw.mu.Lock()
	defer gw.mu.Unlock()
	for _, c := range gw.calls {
		if c.model == "p1" {
			if got := c.req.Messages[0].Content; !strings.Contains(got, "2026-08-02") {
				t.Fatalf("initial prompt missing date: %q", got)
			}
			return
		}
	}
	t.Fatal("p1 never called")
}
