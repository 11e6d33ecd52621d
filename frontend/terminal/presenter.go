// Package terminal renders the deliberation event stream for an interactive
// terminal. It is the only component that writes to stdout; the engine never
// does.
package terminal

import (
	"fmt"
	"io"
	"strings"

	"conclave"
)

// Presenter consumes the event stream and writes a live transcript.
// It is total over the event vocabulary: unknown event types are ignored so
// additive protocol growth never breaks an older presenter.
type Presenter struct {
	w io.Writer
	// streaming tracks whether the last thing written was a raw token, so
	// structural output can restore its own line.
	streaming bool
}

// NewPresenter creates a Presenter writing to w.
func NewPresenter(w io.Writer) *Presenter {
	return &Presenter{w: w}
}

// Run drains events until the channel closes. It blocks; callers usually run
// it in the goroutine that owns the terminal.
func (p *Presenter) Run(events <-chan conclave.Event) {
	for ev := range events {
		p.handle(ev)
	}
}

func (p *Presenter) handle(ev conclave.Event) {
	switch ev.Type {
	case conclave.EventRoundStart:
		p.breakLine()
		fmt.Fprintf(p.w, "\n%s━━ Round %d — %s ━━%s\n", ansiBold, ev.RoundNumber, ev.RoundType, ansiReset)

	case conclave.EventModelStart:
		p.breakLine()
		fmt.Fprintf(p.w, "%s▸ %s thinking...%s\n", ansiDim, ev.Model, ansiReset)

	case conclave.EventToken:
		fmt.Fprint(p.w, ev.Content)
		p.streaming = true

	case conclave.EventThought:
		p.breakLine()
		fmt.Fprintf(p.w, "%s  %s thought: %s%s\n", ansiItalic, ev.Model, ev.Content, ansiReset)

	case conclave.EventAction:
		p.breakLine()
		fmt.Fprintf(p.w, "%s  %s action: %s(%s)%s\n", ansiDim, ev.Model, ev.Name, ev.Content, ansiReset)

	case conclave.EventToolCall:
		p.breakLine()
		fmt.Fprintf(p.w, "%s  %s → %s %s%s\n", ansiCyan, ev.Model, ev.Name, compact(string(ev.Args), 80), ansiReset)

	case conclave.EventToolResult:
		p.breakLine()
		fmt.Fprintf(p.w, "%s  %s ← %s (%d bytes)%s\n", ansiDim, ev.Model, ev.Name, len(ev.Content), ansiReset)

	case conclave.EventObservation:
		// Already summarized by the tool-result line.

	case conclave.EventModelComplete:
		p.breakLine()
		fmt.Fprintf(p.w, "%s✓ %s responded%s\n", ansiBold, ev.Model, ansiReset)
		if ev.Response != nil && !p.streaming {
			fmt.Fprintf(p.w, "%s\n", indent(compact(ev.Response.Content, 600), "  "))
		}

	case conclave.EventModelError:
		p.breakLine()
		fmt.Fprintf(p.w, "%s✗ %s failed: %s%s\n", ansiDim, ev.Model, ev.Content, ansiReset)

	case conclave.EventRoundComplete:
		p.breakLine()
		if ev.Record != nil {
			fmt.Fprintf(p.w, "%s── round %d complete (%d responses)%s\n", ansiDim, ev.RoundNumber, len(ev.Record.Responses), ansiReset)
		}

	case conclave.EventReflection:
		p.breakLine()
		if ev.Content != "" {
			fmt.Fprintf(p.w, "\n%s━━ Chairman's analysis ━━%s\n%s\n", ansiBold, ansiReset, ev.Content)
		}

	case conclave.EventSynthesis:
		p.breakLine()
		fmt.Fprintf(p.w, "\n%s━━ Synthesis (%s) ━━%s\n%s\n", ansiBold, ev.Model, ansiReset, MarkdownToANSI(ev.Content))

	case conclave.EventDebateComplete:
		p.breakLine()
		fmt.Fprintf(p.w, "\n%s━━ Debate complete: %d rounds ━━%s\n", ansiBold, len(ev.Rounds), ansiReset)

	case conclave.EventError:
		p.breakLine()
		fmt.Fprintf(p.w, "\n%serror: %s%s\n", ansiBold, ev.Content, ansiReset)
	}
}

// breakLine terminates an in-flight token stream before structural output.
func (p *Presenter) breakLine() {
	if p.streaming {
		fmt.Fprintln(p.w)
		p.streaming = false
	}
}

// compact collapses whitespace and truncates to n runes.
func compact(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) > n {
		return string(r[:n]) + "…"
	}
	return s
}

// indent prefixes every line of s.
func indent(s, prefix string) string {
	lines := strings.Split(s, "\n")
	for i := range lines {
		lines[i] = prefix + lines[i]
	}
	return strings.Join(lines, "\n")
}
