package terminal

import (
	"strings"
	"testing"

	"conclave"
)

// The presenter must be total over the event vocabulary and survive unknown
// variants.
func TestPresenter_TotalOverEvents(t *testing.T) {
	events := []conclave.Event{
		{Type: conclave.EventRoundStart, RoundNumber: 1, RoundType: conclave.RoundInitial},
		{Type: conclave.EventModelStart, Model: "p1"},
		{Type: conclave.EventToken, Model: "p1", Content: "tok"},
		{Type: conclave.EventThought, Model: "p1", Content: "thinking"},
		{Type: conclave.EventAction, Model: "p1", Name: "search_web", Content: "q"},
		{Type: conclave.EventToolCall, Model: "p1", Name: "search_web"},
		{Type: conclave.EventToolResult, Model: "p1", Name: "search_web", Content: "r"},
		{Type: conclave.EventObservation, Model: "p1", Content: "r"},
		{Type: conclave.EventModelComplete, Model: "p1", Response: &conclave.Response{Model: "p1", Content: "done"}},
		{Type: conclave.EventModelError, Model: "p2", Content: "timeout after 120s"},
		{Type: conclave.EventRoundComplete, RoundNumber: 1, Record: &conclave.RoundRecord{Number: 1}},
		{Type: conclave.EventReflection, Content: "analysis"},
		{Type: conclave.EventSynthesis, Model: "chair", Content: "# Final\nanswer"},
		{Type: conclave.EventDebateComplete},
		{Type: conclave.EventError, Content: "quorum lost"},
		{Type: conclave.EventType("future-variant"), Content: "ignored"},
	}

	var buf strings.Builder
	p := NewPresenter(&buf)
	ch := make(chan conclave.Event, len(events))
	for _, ev := range events {
		ch <- ev
	}
	close(ch)
	p.Run(ch)

	out := buf.String()
	for _, want := range []string{"Round 1", "p1", "timeout after 120s", "Synthesis", "quorum lost"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q", want)
		}
	}
	if strings.Contains(out, "ignored") {
		t.Error("unknown event types must be ignored")
	}
}

func TestPresenter_BreaksTokenLineBeforeStructure(t *testing.T) {
	var buf strings.Builder
	p := NewPresenter(&buf)
	p.handle(conclave.Event{Type: conclave.EventToken, Content: "partial"})
	p.handle(conclave.Event{Type: conclave.EventModelComplete, Model: "p1", Response: &conclave.Response{}})

	if !strings.Contains(buf.String(), "partial\n") {
		t.Fatalf("token line not terminated:\n%q", buf.String())
	}
}

func TestMarkdownToANSI(t *testing.T) {
	out := MarkdownToANSI("# Title\n\nSome **bold** and *italic* text with `code`.\n\n- one\n- two")

	if !strings.Contains(out, ansiBold+"Title") {
		t.Errorf("heading not bold:\n%q", out)
	}
	if !strings.Contains(out, ansiBold+"bold") {
		t.Errorf("strong not bold:\n%q", out)
	}
	if !strings.Contains(out, ansiItalic+"italic") {
		t.Errorf("emphasis not italic:\n%q", out)
	}
	if !strings.Contains(out, "• one") || !strings.Contains(out, "• two") {
		t.Errorf("list bullets missing:\n%q", out)
	}
	if strings.Contains(out, "**") || strings.Contains(out, "# Title") {
		t.Errorf("raw markdown leaked:\n%q", out)
	}
}

func TestMarkdownToANSI_OrderedList(t *testing.T) {
	out := MarkdownToANSI("1. first\n2. second")
	if !strings.Contains(out, "1. first") || !strings.Contains(out, "2. second") {
		t.Fatalf("ordered list:\n%q", out)
	}
}

func TestMarkdownToANSI_PlainTextPassesThrough(t *testing.T) {
	out := MarkdownToANSI("just a sentence")
	if !strings.Contains(out, "just a sentence") {
		t.Fatalf("got %q", out)
	}
}
