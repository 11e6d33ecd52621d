package conclave

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"time"
)

// Config is the read-only, per-run panel configuration.
type Config struct {
	// Participants are the chat model ids on the gateway, at least two.
	Participants []string
	// Chairman produces the synthesis. It need not be in the panel.
	Chairman string
	// Cycles is the number of critique/defense pairs after the initial
	// round. Must be at least 1; a debate always ends on a defense.
	Cycles int
	// UseReact routes tool-enabled rounds through the ReAct loop instead of
	// native tool calling.
	UseReact bool
	// Sequential selects the sequential-streaming executor (one participant
	// at a time, per-token events) over the default batch-parallel one.
	Sequential bool
	// Timeout is the wall-clock budget per participant request.
	Timeout time.Duration
	// MaxToolCalls caps tool iterations in the non-streaming loop.
	MaxToolCalls int
	// MaxStreamToolCalls caps tool iterations in the streaming loop.
	MaxStreamToolCalls int
}

// Council orchestrates one panel of models over a shared gateway. A Council
// is stateless across runs; each run owns its event channel and its results.
type Council struct {
	gw     Gateway
	cfg    Config
	tools  *ToolRegistry
	exec   RoundExecutor
	tracer Tracer
	logger *slog.Logger
	now    func() time.Time
}

// Option customizes a Council.
type Option func(*Council)

// WithTools sets the tool registry offered to tool-enabled rounds.
func WithTools(reg *ToolRegistry) Option {
	return func(c *Council) { c.tools = reg }
}

// WithExecutor injects a round-execution strategy, overriding the
// batch/sequential choice in Config.
func WithExecutor(exec RoundExecutor) Option {
	return func(c *Council) { c.exec = exec }
}

// WithTracer enables one span around each debate or ranking run. Rounds get
// no span of their own.
func WithTracer(t Tracer) Option {
	return func(c *Council) { c.tracer = t }
}

// WithLogger sets the structured logger. Defaults to a discard logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Council) { c.logger = l }
}

// WithClock overrides the time source used for prompt dates. Tests use it to
// keep prompts deterministic.
func WithClock(now func() time.Time) Option {
	return func(c *Council) { c.now = now }
}

// New validates cfg and builds a Council over gw.
func New(gw Gateway, cfg Config, opts ...Option) (*Council, error) {
	if err := validatePanel(cfg.Participants, cfg.Chairman, cfg.Cycles); err != nil {
		return nil, err
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxToolCalls < 1 {
		cfg.MaxToolCalls = 1
	}
	if cfg.MaxStreamToolCalls < 1 {
		cfg.MaxStreamToolCalls = 1
	}

	c := &Council{
		gw:  gw,
		cfg: cfg,
		now: time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.tools == nil {
		c.tools = NewToolRegistry()
	}
	if c.logger == nil {
		c.logger = slog.New(slog.DiscardHandler)
	}
	if c.exec == nil {
		if cfg.Sequential {
			c.exec = &SequentialExecutor{
				Gateway:      gw,
				Tools:        c.tools,
				Timeout:      cfg.Timeout,
				MaxToolCalls: cfg.MaxStreamToolCalls,
				Logger:       c.logger,
			}
		} else {
			c.exec = &BatchExecutor{
				Gateway:      gw,
				Tools:        c.tools,
				Timeout:      cfg.Timeout,
				MaxToolCalls: cfg.MaxToolCalls,
				Logger:       c.logger,
			}
		}
	}
	return c, nil
}

// DebateResult is the terminal value of a debate run.
type DebateResult struct {
	Rounds    []RoundRecord `json:"rounds"`
	Synthesis Response      `json:"synthesis"`
}

// Document renders the persistence form consumed by conversation stores.
func (r *DebateResult) Document() ([]byte, error) {
	return json.Marshal(struct {
		Mode      string        `json:"mode"`
		Rounds    []RoundRecord `json:"rounds"`
		Synthesis Response      `json:"synthesis"`
	}{Mode: "debate", Rounds: r.Rounds, Synthesis: r.Synthesis})
}

// RankingResult is the terminal value of a ranking run.
type RankingResult struct {
	Stage1       []Response        `json:"stage1"`
	Stage2       []RankingRecord   `json:"stage2"`
	Synthesis    Response          `json:"synthesis"`
	LabelToModel map[string]string `json:"label_to_model"`
	Aggregate    []AggregateEntry  `json:"aggregate"`
}

// Document renders the persistence form consumed by conversation stores.
func (r *RankingResult) Document() ([]byte, error) {
	type metadata struct {
		LabelToModel map[string]string `json:"label_to_model"`
		Aggregate    []AggregateEntry  `json:"aggregate"`
	}
	return json.Marshal(struct {
		Mode      string          `json:"mode"`
		Stage1    []Response      `json:"stage1"`
		Stage2    []RankingRecord `json:"stage2"`
		Synthesis Response        `json:"synthesis"`
		Metadata  metadata        `json:"metadata"`
	}{
		Mode:      "ranking",
		Stage1:    r.Stage1,
		Stage2:    r.Stage2,
		Synthesis: r.Synthesis,
		Metadata:  metadata{LabelToModel: r.LabelToModel, Aggregate: r.Aggregate},
	})
}

// emitter builds the EmitFunc for one run: events go to ch until ctx is
// cancelled, after which producers see false and wind down.
func emitter(ctx context.Context, ch chan<- Event) EmitFunc {
	return func(ev Event) bool {
		if ctx.Err() != nil {
			return false
		}
		select {
		case ch <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}
}

// Debate runs the full debate protocol and synthesis, streaming events into
// ch. The channel is closed exactly once, when the run finishes; exactly one
// of debate-complete+synthesis or a fatal error event terminates the stream.
// On quorum loss or synthesizer failure the transcript collected so far is
// still returned alongside the error.
func (c *Council) Debate(ctx context.Context, question string, ch chan<- Event) (*DebateResult, error) {
	defer close(ch)
	emit := emitter(ctx, ch)

	ctx, span := c.startSpan(ctx, "council.debate",
		StringAttr("chairman", c.cfg.Chairman),
		IntAttr("participants", len(c.cfg.Participants)),
		IntAttr("cycles", c.cfg.Cycles))
	defer c.endSpan(span)

	date := c.now().Format("2006-01-02")
	rounds, err := RunDebate(ctx, question, c.cfg.Participants, c.exec, c.cfg.Cycles, c.cfg.UseReact, date, emit)
	result := &DebateResult{Rounds: rounds}
	if err != nil {
		return result, c.fail(span, err, emit)
	}

	synthesis, err := Synthesize(ctx, c.gw, c.cfg.Chairman, BuildDebateReflectionPrompt(question, rounds), c.cfg.Timeout, emit)
	if err != nil {
		return result, c.fail(span, err, emit)
	}
	result.Synthesis = synthesis
	return result, nil
}

// Ranking runs the anonymous-ranking pipeline and synthesis, streaming
// events into ch. Same channel and terminal-event contract as Debate.
func (c *Council) Ranking(ctx context.Context, question string, ch chan<- Event) (*RankingResult, error) {
	defer close(ch)
	emit := emitter(ctx, ch)

	ctx, span := c.startSpan(ctx, "council.ranking",
		StringAttr("chairman", c.cfg.Chairman),
		IntAttr("participants", len(c.cfg.Participants)))
	defer c.endSpan(span)

	date := c.now().Format("2006-01-02")
	result := &RankingResult{}

	// Stage 1: independent answers via the initial-round executor.
	cfg, err := NewRoundConfig(RoundInitial, 1, question, c.cfg.Participants, RoundContext{}, c.cfg.UseReact, date)
	if err != nil {
		return result, c.fail(span, err, emit)
	}
	if !emit(Event{Type: EventRoundStart, RoundNumber: 1, RoundType: RoundInitial}) {
		return result, ctx.Err()
	}
	stage1, err := c.exec.ExecuteRound(ctx, cfg, c.cfg.Participants, emit)
	if err != nil {
		return result, c.fail(span, err, emit)
	}
	// Labels follow submission order whichever executor ran stage 1, so the
	// responses are put back in panel order before anonymization.
	stage1 = append([]Response(nil), stage1...)
	order := make(map[string]int, len(c.cfg.Participants))
	for i, p := range c.cfg.Participants {
		order[p] = i
	}
	sort.SliceStable(stage1, func(i, j int) bool { return order[stage1[i].Model] < order[stage1[j].Model] })
	result.Stage1 = stage1
	if len(stage1) < quorum {
		return result, c.fail(span, ErrQuorum, emit)
	}

	// Stage 2: anonymized peer review.
	labels, labelToModel := AssignLabels(stage1)
	result.LabelToModel = labelToModel
	prompt := BuildPeerRankPrompt(question, labels, stage1)
	stage2, err := runPeerRankings(ctx, c.gw, c.cfg.Participants, prompt, c.cfg.Timeout, emit)
	if err != nil {
		return result, c.fail(span, err, emit)
	}
	result.Stage2 = stage2
	result.Aggregate = Aggregate(stage2, labelToModel)

	synthesis, err := Synthesize(ctx, c.gw, c.cfg.Chairman, BuildRankingReflectionPrompt(question, stage1, stage2), c.cfg.Timeout, emit)
	if err != nil {
		return result, c.fail(span, err, emit)
	}
	result.Synthesis = synthesis
	return result, nil
}

// fail records the error on the span, surfaces it as a fatal event (unless
// the run was cancelled, in which case no further events may flow), and
// passes it through.
func (c *Council) fail(span Span, err error, emit EmitFunc) error {
	if span != nil {
		span.Error(err)
	}
	c.logger.Error("run failed", "error", err)
	emit(Event{Type: EventError, Content: err.Error()})
	return err
}

func (c *Council) startSpan(ctx context.Context, name string, attrs ...SpanAttr) (context.Context, Span) {
	if c.tracer == nil {
		return ctx, nil
	}
	return c.tracer.Start(ctx, name, attrs...)
}

func (c *Council) endSpan(span Span) {
	if span != nil {
		span.End()
	}
}
