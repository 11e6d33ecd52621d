package conclave

import (
	"context"
	"errors"
	"testing"
	"time"
)

func debateGateway(models ...string) *fakeGateway {
	gw := newFakeGateway()
	for _, m := range models {
		gw.on(m,
			reply("initial from "+m),
			reply("## Critique of everyone\nFrom "+m),
			reply("## Addressing Critiques\nOk.\n\n## Revised Response\nrevised "+m),
		)
	}
	return gw
}

func batchExec(gw Gateway) *BatchExecutor {
	return &BatchExecutor{Gateway: gw, Tools: NewToolRegistry(), Timeout: time.Second, MaxToolCalls: 1}
}

func TestRunDebate_OneCycle(t *testing.T) {
	participants := []string{"p1", "p2", "p3"}
	gw := debateGateway(participants...)

	var log eventLog
	rounds, err := RunDebate(context.Background(), "q", participants, batchExec(gw), 1, false, "2026-08-02", log.emit)
	if err != nil {
		t.Fatal(err)
	}

	if len(rounds) != 3 {
		t.Fatalf("rounds = %d, want 3", len(rounds))
	}
	wantTypes := []RoundType{RoundInitial, RoundCritique, RoundDefense}
	for i, round := range rounds {
		if round.Type != wantTypes[i] {
			t.Errorf("round %d type = %s, want %s", i, round.Type, wantTypes[i])
		}
		if round.Number != i+1 {
			t.Errorf("round %d number = %d", i, round.Number)
		}
		if len(round.Responses) != 3 {
			t.Errorf("round %d responses = %d", i, len(round.Responses))
		}
	}

	// Defense responses carry revised answers.
	for _, r := range rounds[2].Responses {
		if r.RevisedAnswer != "revised "+r.Model {
			t.Errorf("revised answer = %q for %s", r.RevisedAnswer, r.Model)
		}
	}

	starts := log.ofType(EventRoundStart)
	completes := log.ofType(EventRoundComplete)
	if len(starts) != 3 || len(completes) != 3 {
		t.Fatalf("round-start = %d, round-complete = %d, want 3 each", len(starts), len(completes))
	}

	done := log.ofType(EventDebateComplete)
	if len(done) != 1 || len(done[0].Rounds) != 3 {
		t.Fatalf("debate-complete = %+v", done)
	}
	// debate-complete is the last event of the orchestration.
	all := log.all()
	if all[len(all)-1].Type != EventDebateComplete {
		t.Fatalf("last event = %s", all[len(all)-1].Type)
	}
}

// 2·cycles+1 rounds: first initial, even critique, odd (≥3) defense.
func TestRunDebate_ThreeCycles(t *testing.T) {
	participants := []string{"p1", "p2"}
	gw := newFakeGateway()
	// No script: the default step answers every call in all seven rounds, and
	// its "## Revised Response" header gives each defense a parsed answer.
	gw.defaultStep = reply("## Revised Response\nstill standing")

	var log eventLog
	rounds, err := RunDebate(context.Background(), "q", participants, batchExec(gw), 3, false, "2026-08-02", log.emit)
	if err != nil {
		t.Fatal(err)
	}
	if len(rounds) != 7 {
		t.Fatalf("rounds = %d, want 7", len(rounds))
	}
	if rounds[0].Type != RoundInitial {
		t.Fatalf("first round = %s", rounds[0].Type)
	}
	for i := 1; i < 7; i += 2 {
		if rounds[i].Type != RoundCritique {
			t.Errorf("round index %d = %s, want critique", i, rounds[i].Type)
		}
	}
	for i := 2; i < 7; i += 2 {
		if rounds[i].Type != RoundDefense {
			t.Errorf("round index %d = %s, want defense", i, rounds[i].Type)
		}
	}
	if rounds[6].Type != RoundDefense {
		t.Fatal("a debate must end on a defense round")
	}
}

func TestRunDebate_RejectsZeroCycles(t *testing.T) {
	var log eventLog
	_, err := RunDebate(context.Background(), "q", []string{"p1", "p2"}, batchExec(newFakeGateway()), 0, false, "2026-08-02", log.emit)
	if err == nil {
		t.Fatal("cycles = 0 must be rejected")
	}
}

func TestRunDebate_QuorumLostInInitial(t *testing.T) {
	participants := []string{"p1", "p2", "p3"}
	gw := newFakeGateway()
	gw.on("p1", reply("only survivor"))
	gw.on("p2", fakeStep{err: errors.New("down")})
	gw.on("p3", fakeStep{err: errors.New("down")})

	var log eventLog
	rounds, err := RunDebate(context.Background(), "q", participants, batchExec(gw), 1, false, "2026-08-02", log.emit)
	if !errors.Is(err, ErrQuorum) {
		t.Fatalf("err = %v, want ErrQuorum", err)
	}
	if len(rounds) != 1 {
		t.Fatalf("rounds = %d, want just the initial", len(rounds))
	}
	if got := len(log.ofType(EventDebateComplete)); got != 0 {
		t.Fatal("no debate-complete after quorum loss")
	}
}

// A participant that failed the initial round is still asked to critique, but
// has nothing to defend; it stays eligible throughout.
func TestRunDebate_FailedParticipantStaysEligible(t *testing.T) {
	participants := []string{"p1", "p2", "p3"}
	gw := newFakeGateway()
	gw.on("p1",
		reply("I1"),
		reply("## Critique of p2\nc"),
		reply("## Revised Response\nR1"))
	gw.on("p2",
		reply("I2"),
		reply("## Critique of p1\nc"),
		reply("## Revised Response\nR2"))
	gw.on("p3",
		fakeStep{err: errors.New("down")}, // fails initial
		reply("## Critique of p1\nlate critique"))

	var log eventLog
	rounds, err := RunDebate(context.Background(), "q", participants, batchExec(gw), 1, false, "2026-08-02", log.emit)
	if err != nil {
		t.Fatal(err)
	}

	if len(rounds[0].Responses) != 2 {
		t.Fatalf("initial responses = %d", len(rounds[0].Responses))
	}
	// p3 participates in the critique round...
	if len(rounds[1].Responses) != 3 {
		t.Fatalf("critique responses = %d, want 3", len(rounds[1].Responses))
	}
	// ...but is skipped in defense (nothing to defend).
	if len(rounds[2].Responses) != 2 {
		t.Fatalf("defense responses = %d, want 2", len(rounds[2].Responses))
	}
}

// P1: responses never contain duplicates or strangers.
func TestRunDebate_ResponseSetInvariant(t *testing.T) {
	participants := []string{"p1", "p2", "p3"}
	gw := debateGateway(participants...)
	panel := make(map[string]bool)
	for _, p := range participants {
		panel[p] = true
	}

	var log eventLog
	rounds, err := RunDebate(context.Background(), "q", participants, batchExec(gw), 1, false, "2026-08-02", log.emit)
	if err != nil {
		t.Fatal(err)
	}
	for _, round := range rounds {
		seen := make(map[string]bool)
		for _, r := range round.Responses {
			if !panel[r.Model] {
				t.Fatalf("round %d has stranger %q", round.Number, r.Model)
			}
			if seen[r.Model] {
				t.Fatalf("round %d has duplicate %q", round.Number, r.Model)
			}
			seen[r.Model] = true
		}
	}
}
