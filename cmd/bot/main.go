// perpmaker — an automated market-making agent for a single perpetual-swap
// instrument on a DEX, cross-referencing a CEX reference feed for spread and
// volatility guards.
//
// Architecture:
//
//	main.go           — entry point: loads config, starts engine, waits for SIGINT/SIGTERM
//	internal/engine   — orchestrator: wires feeds, state, risk, planner, executor into one bot
//	internal/window   — rolling time-window statistics (volatility, amplitude, volume, imbalance)
//	internal/state    — the State Store: single shared snapshot the Decision Loop plans against
//	internal/risk     — the Risk Evaluator: pure regime classification from a snapshot
//	internal/planner  — the Order Planner: regime + snapshot -> cancels/new orders
//	internal/executor — the Order Executor: rounds, mints cl-ord-ids, submits, reconciles
//	internal/venue    — venue client contract + resty-based REST implementation
//	internal/feed     — market/CEX/user WebSocket streams with auto-reconnect
//	internal/intake   — thin adapters from feed events to State Store mutations
//	internal/loop     — the Decision Loop: the sole consumer of Store changes
//	internal/notify   — optional Telegram notifications for CRITICAL events
//	internal/metrics  — Prometheus counters/gauges
//
// How it makes money:
//
//	The bot posts a bid below the DEX mid price and an ask above it, skewed
//	by inventory and widened under volatility/spread-divergence regimes.
//	When both sides fill, it earns the spread; stop-loss and CEX-crossover
//	checks bound its downside.
package main

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"perpmaker/internal/config"
	"perpmaker/internal/engine"
)

func main() {
	cfgPath := "configs/config.yaml"
	if p := os.Getenv("PMM_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err, "path", cfgPath)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Logging.Level)}
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)

	eng, err := engine.New(*cfg, logger)
	if err != nil {
		logger.Error("failed to create engine", "error", err)
		os.Exit(1)
	}

	if err := eng.Start(); err != nil {
		logger.Error("failed to start engine", "error", err)
		os.Exit(1)
	}

	if cfg.DryRun {
		logger.Warn("DRY-RUN MODE — no real orders will be placed")
	}

	logger.Info("perpmaker started",
		"symbol", cfg.Instrument.Symbol,
		"order_size", cfg.Instrument.OrderSize,
		"max_position", cfg.Instrument.MaxPosition,
		"dry_run", cfg.DryRun,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("received shutdown signal", "signal", sig.String())

	eng.Stop()
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
