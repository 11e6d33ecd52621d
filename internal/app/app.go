// Package app wires configuration into a running deliberation: gateway,
// tools, council, presenter, and conversation store.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"conclave"
	"conclave/frontend/terminal"
	"conclave/internal/config"
	"conclave/observer"
	"conclave/provider/openaicompat"
	"conclave/store/jsonfile"
	"conclave/store/postgres"
	"conclave/store/sqlite"
	"conclave/tools/search"
)

// App holds everything one CLI invocation needs.
type App struct {
	cfg    config.Config
	logger *slog.Logger
	save   bool
}

// New creates an App from loaded configuration.
func New(cfg config.Config, logger *slog.Logger, save bool) *App {
	return &App{cfg: cfg, logger: logger, save: save}
}

// Run executes one deliberation in the given mode ("debate" or "ranking"),
// rendering events to stdout and archiving the result.
func (a *App) Run(ctx context.Context, mode, question string) error {
	if a.cfg.Gateway.APIKey == "" {
		return fmt.Errorf("gateway api key is required (set CONCLAVE_GATEWAY_API_KEY or [gateway].api_key)")
	}

	// Observability is opt-in; when enabled, the gateway and tools are
	// wrapped and council spans flow to the OTel exporter.
	var inst *observer.Instruments
	var tracer conclave.Tracer
	if a.cfg.Observer.Enabled {
		pricing := make(map[string]observer.ModelPricing, len(a.cfg.Observer.Pricing))
		for model, p := range a.cfg.Observer.Pricing {
			pricing[model] = observer.ModelPricing{InputPerMillion: p.Input, OutputPerMillion: p.Output}
		}
		var shutdown func(context.Context) error
		var err error
		inst, shutdown, err = observer.Init(ctx, pricing)
		if err != nil {
			return fmt.Errorf("init observer: %w", err)
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdown(sctx)
		}()
		tracer = observer.NewTracer()
	}

	gw := a.buildGateway(inst)
	tools := a.buildTools(inst)

	council, err := conclave.New(gw, conclave.Config{
		Participants:       a.cfg.Panel.Participants,
		Chairman:           a.cfg.Panel.Chairman,
		Cycles:             a.cfg.Panel.Cycles,
		UseReact:           a.cfg.Panel.UseReact,
		Sequential:         a.cfg.Panel.Sequential,
		Timeout:            time.Duration(a.cfg.Panel.TimeoutSeconds) * time.Second,
		MaxToolCalls:       a.cfg.Panel.MaxToolCalls,
		MaxStreamToolCalls: a.cfg.Panel.MaxStreamToolCalls,
	},
		conclave.WithTools(tools),
		conclave.WithLogger(a.logger),
		conclave.WithTracer(tracer),
	)
	if err != nil {
		return err
	}

	events := make(chan conclave.Event, 64)
	presenter := terminal.NewPresenter(os.Stdout)
	presented := make(chan struct{})
	go func() {
		defer close(presented)
		presenter.Run(events)
	}()

	var document []byte
	var runErr error
	switch mode {
	case "debate":
		result, err := council.Debate(ctx, question, events)
		runErr = err
		if err == nil {
			document, runErr = result.Document()
		}
	case "ranking":
		result, err := council.Ranking(ctx, question, events)
		runErr = err
		if err == nil {
			document, runErr = result.Document()
		}
	default:
		close(events)
		<-presented
		return fmt.Errorf("unknown mode %q (want debate or ranking)", mode)
	}
	<-presented

	if runErr != nil {
		return runErr
	}
	if !a.save {
		return nil
	}
	return a.archive(ctx, mode, question, document)
}

// buildGateway stacks the configured wrappers around the HTTP gateway.
func (a *App) buildGateway(inst *observer.Instruments) conclave.Gateway {
	var gw conclave.Gateway = openaicompat.New(
		a.cfg.Gateway.BaseURL,
		a.cfg.Gateway.APIKey,
		openaicompat.WithName(a.cfg.Gateway.Name),
	)
	if a.cfg.Retry.MaxAttempts > 1 {
		gw = conclave.WithRetry(gw,
			conclave.RetryMaxAttempts(a.cfg.Retry.MaxAttempts),
			conclave.RetryLogger(a.logger))
	}
	if a.cfg.RateLimit.RPM > 0 || a.cfg.RateLimit.TPM > 0 {
		gw = conclave.WithRateLimit(gw,
			conclave.RPM(a.cfg.RateLimit.RPM),
			conclave.TPM(a.cfg.RateLimit.TPM))
	}
	if inst != nil {
		gw = observer.WrapGateway(gw, inst)
	}
	return gw
}

// buildTools assembles the tool registry offered to the panel.
func (a *App) buildTools(inst *observer.Instruments) *conclave.ToolRegistry {
	var tool conclave.Tool = search.New(a.cfg.Search.APIKey,
		search.WithMaxResults(a.cfg.Search.MaxResults),
		search.WithDepth(a.cfg.Search.Depth),
		search.WithPageFetch(a.cfg.Search.FetchPages),
		search.WithLogger(a.logger),
	)
	if inst != nil {
		tool = observer.WrapTool(tool, inst)
	}
	reg := conclave.NewToolRegistry()
	reg.Add(tool)
	return reg
}

// archive persists the finished run to the configured store backend.
func (a *App) archive(ctx context.Context, mode, question string, document []byte) error {
	store, cleanup, err := a.openStore(ctx)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer cleanup()

	conv := conclave.Conversation{
		ID:        conclave.NewID(),
		Mode:      mode,
		Question:  question,
		CreatedAt: conclave.NowUnix(),
		Result:    document,
	}
	if err := store.SaveConversation(ctx, conv); err != nil {
		return err
	}
	a.logger.Info("conversation archived", "id", conv.ID, "backend", a.cfg.Store.Backend)
	return nil
}

// openStore constructs the configured store backend, initialized.
func (a *App) openStore(ctx context.Context) (conclave.Store, func(), error) {
	var store conclave.Store
	cleanup := func() {}

	switch a.cfg.Store.Backend {
	case "", "jsonfile":
		store = jsonfile.New(a.cfg.Store.Path)
	case "sqlite":
		store = sqlite.New(a.cfg.Store.Path, sqlite.WithLogger(a.logger))
	case "postgres":
		pool, err := pgxpool.New(ctx, a.cfg.Store.DSN)
		if err != nil {
			return nil, nil, err
		}
		cleanup = pool.Close
		store = postgres.New(pool)
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", a.cfg.Store.Backend)
	}

	if err := store.Init(ctx); err != nil {
		cleanup()
		return nil, nil, err
	}
	prev := cleanup
	return store, func() { _ = store.Close(); prev() }, nil
}
