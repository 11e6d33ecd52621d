package conclave

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Parsers are total: every input produces a usable value through a documented
// fallback, and no parser returns an error. Model output is NFC-normalized
// before header matching so visually identical headers compare equal.

var (
	finalRankingRe = regexp.MustCompile(`(?im)^\s*final ranking:\s*$`)
	rankedLineRe   = regexp.MustCompile(`(?i)^\s*(\d+)[.)]\s*response\s+([A-Z])\b`)
	responseRefRe  = regexp.MustCompile(`(?i)\bresponse\s+([A-Z])\b`)
	critiqueHdrRe  = regexp.MustCompile(`(?im)^##\s*critique\s+of\s+(.+?)\s*$`)
	h2Re           = regexp.MustCompile(`(?m)^##\s`)
	revisedHdrRe   = regexp.MustCompile(`(?im)^##\s*revised\s+response\s*:?\s*$`)
	synthesisHdrRe = regexp.MustCompile(`(?im)^##\s*synthesis\s*:?\s*$`)
	thoughtRe      = regexp.MustCompile(`(?s)Thought:\s*(.*?)\s*(?:\nAction:|\z)`)
	actionRe       = regexp.MustCompile(`Action:\s*([a-zA-Z_][a-zA-Z0-9_]*)\s*\(\s*(?:"([^"]*)"|'([^']*)')?\s*\)`)
)

// ParseRanking extracts an ordered list of response labels from a peer
// evaluation. Primary path: a FINAL RANKING: line followed by numbered
// "N. Response X" lines, returned in N order. Fallback: every "Response X"
// mention in the whole text, deduplicated preserving first occurrence.
func ParseRanking(text string) []string {
	text = norm.NFC.String(text)

	if loc := finalRankingRe.FindStringIndex(text); loc != nil {
		type entry struct {
			pos   int
			label string
		}
		var entries []entry
		for _, line := range strings.Split(text[loc[1]:], "\n") {
			m := rankedLineRe.FindStringSubmatch(line)
			if m == nil {
				if strings.TrimSpace(line) == "" {
					continue
				}
				break // ranking block ended
			}
			var pos int
			fmt.Sscanf(m[1], "%d", &pos)
			entries = append(entries, entry{pos: pos, label: strings.ToUpper(m[2])})
		}
		if len(entries) > 0 {
			sort.SliceStable(entries, func(i, j int) bool { return entries[i].pos < entries[j].pos })
			labels := make([]string, 0, len(entries))
			seen := make(map[string]bool, len(entries))
			for _, e := range entries {
				if !seen[e.label] {
					seen[e.label] = true
					labels = append(labels, e.label)
				}
			}
			return labels
		}
	}

	// Fallback: order of first mention across the whole text.
	var labels []string
	seen := make(map[string]bool)
	for _, m := range responseRefRe.FindAllStringSubmatch(text, -1) {
		label := strings.ToUpper(m[1])
		if !seen[label] {
			seen[label] = true
			labels = append(labels, label)
		}
	}
	return labels
}

// ParseRevisedAnswer extracts the text after the "## Revised Response"
// header of a defense. Fallback: the full content, so defense responses
// always carry a non-empty revised answer when the content is non-empty.
func ParseRevisedAnswer(content string) string {
	content = norm.NFC.String(content)
	if loc := revisedHdrRe.FindStringIndex(content); loc != nil {
		if tail := strings.TrimSpace(content[loc[1]:]); tail != "" {
			return tail
		}
	}
	return strings.TrimSpace(content)
}

// ExtractCritiquesFor collects every "## Critique of <target>" section aimed
// at target across the given critique responses, concatenated with
// source-attribution headers. Header identifiers match with whitespace and
// punctuation tolerance. Missing sections contribute nothing.
func ExtractCritiquesFor(target string, critiques []Response) string {
	want := foldIdentifier(target)
	var b strings.Builder
	for _, resp := range critiques {
		if resp.Model == target {
			continue
		}
		content := norm.NFC.String(resp.Content)
		for _, idx := range critiqueHdrRe.FindAllStringSubmatchIndex(content, -1) {
			ident := content[idx[2]:idx[3]]
			if foldIdentifier(ident) != want {
				continue
			}
			body := content[idx[1]:]
			if next := h2Re.FindStringIndex(body); next != nil {
				body = body[:next[0]]
			}
			body = strings.TrimSpace(body)
			if body == "" {
				continue
			}
			fmt.Fprintf(&b, "### Critique from %s\n%s\n\n", resp.Model, body)
		}
	}
	return strings.TrimSpace(b.String())
}

// foldIdentifier lowercases an identifier and strips everything but letters
// and digits, tolerating punctuation and spacing drift in model output
// ("gpt-4o", "GPT 4o", "gpt_4o." all fold equal).
func foldIdentifier(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ReactStep is one parsed Thought/Action pair from a ReAct turn. Any field
// may be empty when the model omitted it.
type ReactStep struct {
	Thought string
	Action  string
	Arg     string
}

// react action names recognized by the loop.
const (
	actionSearchWeb  = "search_web"
	actionRespond    = "respond"
	actionSynthesize = "synthesize"
)

// Terminal reports whether the step's action ends the loop. A step with no
// recognized action is terminal too: a model that just wrote prose is done.
func (s ReactStep) Terminal() bool {
	switch s.Action {
	case actionRespond, actionSynthesize:
		return true
	case actionSearchWeb:
		return false
	default:
		return true
	}
}

// ParseReact extracts the first Thought: and first Action: block from a ReAct
// turn. search_web accepts single- or double-quoted arguments.
func ParseReact(content string) ReactStep {
	content = norm.NFC.String(content)
	var step ReactStep
	if m := thoughtRe.FindStringSubmatch(content); m != nil {
		step.Thought = strings.TrimSpace(m[1])
	}
	if m := actionRe.FindStringSubmatch(content); m != nil {
		step.Action = m[1]
		if m[2] != "" {
			step.Arg = m[2]
		} else {
			step.Arg = m[3]
		}
	}
	return step
}

// SplitReflection splits synthesizer output at the "## Synthesis" boundary.
// When the boundary is present, everything before it is the reflection and
// everything after is the synthesis. When absent, the whole content is the
// synthesis and the reflection is empty.
func SplitReflection(content string) (reflection, synthesis string) {
	content = norm.NFC.String(content)
	if loc := synthesisHdrRe.FindStringIndex(content); loc != nil {
		return strings.TrimSpace(content[:loc[0]]), strings.TrimSpace(content[loc[1]:])
	}
	return "", strings.TrimSpace(content)
}
