// Package engine wires config, venue, feeds, state, risk, planner, executor,
// intake, and notify together into one running bot for a single
// perpetual-swap instrument.
//
// There is exactly one pre-configured instrument here, so everything
// collapses into one fixed wiring: one Store, one Evaluator, one Planner,
// one Executor, one Loop — no market scanner or per-market slot map. The
// lifecycle shape — New() wires everything, Start() launches one goroutine
// per feed plus the Decision Loop, Stop() cancels a context, waits on a
// WaitGroup, then sends a batch-cancel safety net — follows the bot's
// existing Engine.Start/Stop pattern.
package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"perpmaker/internal/config"
	"perpmaker/internal/executor"
	"perpmaker/internal/feed"
	"perpmaker/internal/intake"
	"perpmaker/internal/loop"
	"perpmaker/internal/notify"
	"perpmaker/internal/planner"
	"perpmaker/internal/risk"
	"perpmaker/internal/state"
	"perpmaker/internal/venue"
	"perpmaker/pkg/types"
)

// windowRetention sizes the Store's rolling windows to the widest
// configured window the Evaluator or Planner may read from each, plus 30s
// of headroom.
func windowRetention(cfg config.Config) state.WindowRetention {
	widest := func(secs ...int) time.Duration {
		max := 0
		for _, s := range secs {
			if s > max {
				max = s
			}
		}
		return time.Duration(max+30) * time.Second
	}
	return state.WindowRetention{
		DEXPrice:       widest(cfg.Risk.VolatilityWindowSec, cfg.Risk.AmplitudeWindowSec, cfg.Risk.VelocityCheckWindowSec),
		CEXPrice:       widest(cfg.Risk.VolatilityWindowSec, cfg.Risk.AmplitudeWindowSec, cfg.StopLoss.RecoveryWindowSec),
		CEXVolume:      widest(cfg.Risk.VolumeWindowSec),
		DepthImbalance: widest(cfg.Imbalance.WindowSec),
	}
}

// Engine owns the single-instrument wiring and its goroutines.
type Engine struct {
	cfg    config.Config
	logger *slog.Logger

	client  venue.Client
	mktFeed *feed.WSMarketFeed
	cexFeed *feed.WSCEXFeed
	usrFeed *feed.WSUserFeed

	store     *state.Store
	evaluator *risk.Evaluator
	planner   *planner.Planner
	executor  *executor.Executor
	intake    *intake.Intake
	loop      *loop.Loop
	notifier  notify.Notifier

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds every collaborator and wires them together, but starts nothing.
func New(cfg config.Config, logger *slog.Logger) (*Engine, error) {
	instrument := types.Instrument{
		Symbol:        cfg.Instrument.Symbol,
		TickSize:      cfg.Instrument.TickSize,
		PriceDecimals: cfg.Instrument.PriceDecimals,
		LotSize:       cfg.Instrument.LotSize,
		SizeDecimals:  cfg.Instrument.SizeDecimals,
		MinOrderSize:  cfg.Instrument.MinOrderSize,
	}

	restClient := venue.NewRESTClient(cfg, logger)

	wake := make(chan struct{}, 1)
	store := state.New(windowRetention(cfg), wake)
	evaluator := risk.NewEvaluator()
	plan := planner.New()
	exec := executor.New(restClient, instrument, store, logger)
	notifier := notify.NewTelegramNotifier(cfg.Notify, logger)

	mktFeed := feed.NewWSMarketFeed(cfg.Venue.WSMarketURL, cfg.Instrument.Symbol, logger)
	cexFeed := feed.NewWSCEXFeed(cfg.Venue.CEXWSURL, cfg.Instrument.Symbol, cfg.Imbalance.DepthLevels, logger)
	usrFeed := feed.NewWSUserFeed(cfg.Venue.WSUserURL, cfg.Venue.BearerToken, logger)

	in := intake.New(store, evaluator, exec, restClient, cfg.Instrument.Symbol, cfg.Imbalance.DepthLevels, logger)
	dloop := loop.New(store, evaluator, plan, exec, cfg, notifier, wake, logger)

	ctx, cancel := context.WithCancel(context.Background())

	return &Engine{
		cfg:       cfg,
		logger:    logger,
		client:    restClient,
		mktFeed:   mktFeed,
		cexFeed:   cexFeed,
		usrFeed:   usrFeed,
		store:     store,
		evaluator: evaluator,
		planner:   plan,
		executor:  exec,
		intake:    in,
		loop:      dloop,
		notifier:  notifier,
		ctx:       ctx,
		cancel:    cancel,
	}, nil
}

// Start launches one goroutine per feed, one per intake adapter, and the
// Decision Loop itself.
func (e *Engine) Start() error {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		if err := e.mktFeed.Run(e.ctx); err != nil && e.ctx.Err() == nil {
			e.logger.Error("market feed error", "error", err)
		}
	}()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		if err := e.cexFeed.Run(e.ctx); err != nil && e.ctx.Err() == nil {
			e.logger.Error("cex feed error", "error", err)
		}
	}()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		if err := e.usrFeed.Run(e.ctx); err != nil && e.ctx.Err() == nil {
			e.logger.Error("user feed error", "error", err)
		}
	}()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.intake.RunMarket(e.ctx, e.mktFeed)
	}()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.intake.RunCEX(e.ctx, e.cexFeed)
	}()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.intake.RunUser(e.ctx, e.usrFeed)
	}()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.loop.Run(e.ctx)
	}()

	e.logger.Info("engine started", "symbol", e.cfg.Instrument.Symbol, "dry_run", e.cfg.DryRun)
	return nil
}

// Stop cancels every goroutine's context and waits for them to exit — the
// Decision Loop's own shutdown already cancels tracked orders — then sends
// a final batch-cancel safety net in case any order was placed outside the
// loop's bookkeeping.
func (e *Engine) Stop() {
	e.logger.Info("shutting down...")

	e.cancel()
	e.wg.Wait()

	cancelCtx, cancelCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelCancel()
	open, err := e.client.QueryOpenOrders(cancelCtx, e.cfg.Instrument.Symbol)
	if err != nil {
		e.logger.Error("failed to query open orders on shutdown", "error", err)
	} else if len(open) > 0 {
		ids := make([]string, len(open))
		for i, o := range open {
			ids[i] = o.ClOrdID
		}
		if err := e.client.CancelOrders(cancelCtx, ids); err != nil {
			e.logger.Error("failed to cancel all orders on shutdown", "error", err)
		}
	}

	e.logger.Info("shutdown complete")
}

// Snapshot returns the Decision Loop's one-line status string.
func (e *Engine) Snapshot() string {
	return e.loop.Snapshot()
}

// Symbol reports the quoted instrument, used for logging at startup.
func (e *Engine) Symbol() string {
	return e.cfg.Instrument.Symbol
}
