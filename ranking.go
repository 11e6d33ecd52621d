package conclave

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// The ranking pipeline: independent answers, anonymized peer review,
// mean-position aggregation, synthesis.

// RankingRecord is one participant's stage-2 evaluation of the anonymized
// answers.
type RankingRecord struct {
	Model          string   `json:"model"`
	EvaluationText string   `json:"evaluation_text"`
	ParsedOrder    []string `json:"parsed_order"`
}

// AggregateEntry is one model's aggregate standing across all peer rankings.
type AggregateEntry struct {
	Model        string  `json:"model"`
	MeanPosition float64 `json:"mean_position"`
	VoteCount    int     `json:"vote_count"`
}

// AssignLabels anonymizes stage-1 responses: labels are a prefix of the
// alphabet in submission order. The panel is validated elsewhere to at most
// 26 participants, so labels never run out.
func AssignLabels(stage1 []Response) (labels []string, labelToModel map[string]string) {
	labels = make([]string, len(stage1))
	labelToModel = make(map[string]string, len(stage1))
	for i, r := range stage1 {
		label := string(rune('A' + i))
		labels[i] = label
		labelToModel[label] = r.Model
	}
	return labels, labelToModel
}

// Aggregate computes mean 1-based positions per label across all parsed
// orders. Only labels in labelToModel count; an evaluation whose parsed
// order holds no recognized label contributes nothing. Entries sort by mean
// ascending, then vote count descending, then model ascending.
func Aggregate(records []RankingRecord, labelToModel map[string]string) []AggregateEntry {
	positions := make(map[string][]int)
	for _, rec := range records {
		for i, label := range rec.ParsedOrder {
			if _, ok := labelToModel[label]; ok {
				positions[label] = append(positions[label], i+1)
			}
		}
	}

	entries := make([]AggregateEntry, 0, len(positions))
	for label, pos := range positions {
		sum := 0
		for _, p := range pos {
			sum += p
		}
		entries = append(entries, AggregateEntry{
			Model:        labelToModel[label],
			MeanPosition: float64(sum) / float64(len(pos)),
			VoteCount:    len(pos),
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].MeanPosition != entries[j].MeanPosition {
			return entries[i].MeanPosition < entries[j].MeanPosition
		}
		if entries[i].VoteCount != entries[j].VoteCount {
			return entries[i].VoteCount > entries[j].VoteCount
		}
		return entries[i].Model < entries[j].Model
	})
	return entries
}

// runPeerRankings runs stage-2: every participant concurrently ranks the
// anonymized answers with a plain completion call (no tools). Failures are
// reported as model-error events and simply drop out of aggregation; models
// may rank themselves since they cannot see the label map.
func runPeerRankings(ctx context.Context, gw Gateway, participants []string, prompt string, timeout time.Duration, emit EmitFunc) ([]RankingRecord, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	for _, p := range participants {
		if !emit(Event{Type: EventModelStart, Model: p}) {
			return nil, ctx.Err()
		}
	}

	type outcome struct {
		model string
		text  string
		err   error
	}
	outcomes := make(chan outcome, len(participants))
	for _, p := range participants {
		go func(model string) {
			pctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			resp, err := gw.Chat(pctx, model, ChatRequest{Messages: []ChatMessage{UserMessage(prompt)}})
			outcomes <- outcome{model: model, text: resp.Content, err: err}
		}(p)
	}

	var records []RankingRecord
	for range participants {
		select {
		case out := <-outcomes:
			if out.err != nil {
				if !emit(Event{Type: EventModelError, Model: out.model, Content: participantReason(out.err, timeout)}) {
					return records, ctx.Err()
				}
				continue
			}
			rec := RankingRecord{
				Model:          out.model,
				EvaluationText: out.text,
				ParsedOrder:    ParseRanking(out.text),
			}
			records = append(records, rec)
			resp := Response{Model: out.model, Content: out.text}
			if !emit(Event{Type: EventModelComplete, Model: out.model, Response: &resp}) {
				return records, ctx.Err()
			}
		case <-ctx.Done():
			return records, ctx.Err()
		}
	}
	return records, nil
}

// maxPanelSize bounds the panel so anonymization labels stay within A..Z.
const maxPanelSize = 26

// validatePanel checks the per-run panel configuration.
func validatePanel(participants []string, chairman string, cycles int) error {
	if len(participants) < 2 {
		return fmt.Errorf("panel needs at least 2 participants, got %d", len(participants))
	}
	if len(participants) > maxPanelSize {
		return fmt.Errorf("panel exceeds %d participants", maxPanelSize)
	}
	seen := make(map[string]bool, len(participants))
	for _, p := range participants {
		if p == "" {
			return fmt.Errorf("empty participant id")
		}
		if seen[p] {
			return fmt.Errorf("duplicate participant %q", p)
		}
		seen[p] = true
	}
	if chairman == "" {
		return fmt.Errorf("chairman is required")
	}
	if cycles < 1 {
		return fmt.Errorf("cycles must be >= 1, got %d", cycles)
	}
	return nil
}
