package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"conclave/internal/app"
	"conclave/internal/config"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to conclave.toml (default ./conclave.toml)")
		mode       = flag.String("mode", "debate", "deliberation mode: debate or ranking")
		sequential = flag.Bool("sequential", false, "stream participants one at a time instead of running them in parallel")
		react      = flag.Bool("react", false, "surface model reasoning via the ReAct loop in tool-enabled rounds")
		cycles     = flag.Int("cycles", 0, "critique/defense cycles after the initial round (0 = use config)")
		noSave     = flag.Bool("no-save", false, "skip archiving the finished run")
		verbose    = flag.Bool("v", false, "verbose logging")
	)
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: conclave [flags] \"question\"\n\n")
		fmt.Fprintf(os.Stderr, "Runs a panel of LLMs through a deliberation protocol and prints the synthesis.\n\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	question := strings.TrimSpace(strings.Join(flag.Args(), " "))
	if question == "" {
		flag.Usage()
		os.Exit(2)
	}

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	cfg := config.Load(*configPath)
	if *sequential {
		cfg.Panel.Sequential = true
	}
	if *react {
		cfg.Panel.UseReact = true
	}
	if *cycles > 0 {
		cfg.Panel.Cycles = *cycles
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := app.New(cfg, logger, !*noSave).Run(ctx, *mode, question); err != nil {
		fmt.Fprintf(os.Stderr, "conclave: %v\n", err)
		os.Exit(1)
	}
}
