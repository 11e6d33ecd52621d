package conclave

import (
	"context"
	"fmt"
)

// quorum is the minimum number of successful responses an initial or defense
// round needs for the run to continue.
const quorum = 2

// RunDebate sequences a debate: one initial round followed by cycles
// critique/defense pairs, delegating round execution to exec. It emits
// round-start events (executors own the matching round-complete), finishes
// with debate-complete, and returns all round records.
//
// A debate always ends on a defense round; cycles < 1 is rejected. Quorum is
// checked after the initial round and after every defense: fewer than two
// surviving responses abort the run with ErrQuorum.
func RunDebate(ctx context.Context, query string, participants []string, exec RoundExecutor, cycles int, reactEnabled bool, date string, emit EmitFunc) ([]RoundRecord, error) {
	if cycles < 1 {
		return nil, fmt.Errorf("cycles must be >= 1, got %d", cycles)
	}

	rounds := make([]RoundRecord, 0, 2*cycles+1)

	runRound := func(rt RoundType, number int, rc RoundContext) ([]Response, error) {
		cfg, err := NewRoundConfig(rt, number, query, participants, rc, reactEnabled, date)
		if err != nil {
			return nil, err
		}
		if !emit(Event{Type: EventRoundStart, RoundNumber: number, RoundType: rt}) {
			return nil, ctx.Err()
		}
		responses, err := exec.ExecuteRound(ctx, cfg, participants, emit)
		if err != nil {
			return nil, err
		}
		rounds = append(rounds, RoundRecord{Number: number, Type: rt, Responses: responses})
		return responses, nil
	}

	initial, err := runRound(RoundInitial, 1, RoundContext{})
	if err != nil {
		return rounds, err
	}
	if len(initial) < quorum {
		return rounds, ErrQuorum
	}

	for k := 1; k <= cycles; k++ {
		critiques, err := runRound(RoundCritique, 2*k, RoundContext{InitialResponses: initial})
		if err != nil {
			return rounds, err
		}

		defenses, err := runRound(RoundDefense, 2*k+1, RoundContext{
			InitialResponses:  initial,
			CritiqueResponses: critiques,
		})
		if err != nil {
			return rounds, err
		}
		if len(defenses) < quorum {
			return rounds, ErrQuorum
		}

		// Later cycles critique the panel's current positions: the revised
		// answers stand in for the initial responses.
		if k < cycles {
			initial = revisedAsInitial(defenses)
		}
	}

	if ctx.Err() != nil {
		return rounds, ctx.Err()
	}
	allRounds := make([]RoundRecord, len(rounds))
	copy(allRounds, rounds)
	if !emit(Event{Type: EventDebateComplete, Rounds: allRounds}) {
		return rounds, ctx.Err()
	}
	return rounds, nil
}

// revisedAsInitial lifts defense responses into the next cycle's initial
// context, substituting each revised answer for the content.
func revisedAsInitial(defenses []Response) []Response {
	out := make([]Response, len(defenses))
	for i, r := range defenses {
		out[i] = Response{Model: r.Model, Content: r.RevisedAnswer}
		if out[i].Content == "" {
			out[i].Content = r.Content
		}
	}
	return out
}
