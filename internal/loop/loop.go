// Package loop implements the single-task cooperative Decision Loop: the
// sole consumer of State Store changes, woken by the coalescing wake
// channel or a 5-second heartbeat, running the snapshot → evaluate regime →
// plan → execute sequence to completion before observing the next wake.
package loop

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"perpmaker/internal/config"
	"perpmaker/internal/executor"
	"perpmaker/internal/metrics"
	"perpmaker/internal/notify"
	"perpmaker/internal/planner"
	"perpmaker/internal/risk"
	"perpmaker/internal/state"
	"perpmaker/pkg/types"
)

const heartbeat = 5 * time.Second

// Loop is the Decision Loop.
type Loop struct {
	store     *state.Store
	evaluator *risk.Evaluator
	planner   *planner.Planner
	executor  *executor.Executor
	cfg       config.Config
	notifier  notify.Notifier
	logger    *slog.Logger
	wake      <-chan struct{}

	lastRegime types.RegimeKind
}

// New creates a Decision Loop wired to its collaborators.
func New(store *state.Store, evaluator *risk.Evaluator, plan *planner.Planner, exec *executor.Executor, cfg config.Config, notifier notify.Notifier, wake <-chan struct{}, logger *slog.Logger) *Loop {
	return &Loop{
		store:      store,
		evaluator:  evaluator,
		planner:    plan,
		executor:   exec,
		cfg:        cfg,
		notifier:   notifier,
		logger:     logger.With("component", "decision_loop"),
		wake:       wake,
		lastRegime: types.RegimeNormal,
	}
}

// Run blocks until ctx is cancelled, ticking on wake or heartbeat. The only
// suspension point is this select — once a tick starts, it runs to
// completion before the next wake is observed.
func (l *Loop) Run(ctx context.Context) {
	ticker := time.NewTicker(heartbeat)
	defer ticker.Stop()

	l.logger.Info("decision loop started", "symbol", l.cfg.Instrument.Symbol, "dry_run", l.cfg.DryRun)

	for {
		select {
		case <-ctx.Done():
			l.shutdown(context.Background())
			l.logger.Info("decision loop stopped")
			return
		case <-l.wake:
			l.tick(ctx)
		case <-ticker.C:
			l.tick(ctx)
		}
	}
}

// tick runs one synchronous snapshot → plan → execute pass, start to finish,
// with no suspension in between.
func (l *Loop) tick(ctx context.Context) {
	now := time.Now()
	snap := l.store.Take()

	regime := l.evaluator.Evaluate(snap, l.cfg, now)
	l.logRegimeTransition(regime)

	plan := l.planner.Plan(snap, regime, l.cfg, l.evaluator, now)
	l.recordPlanMetrics(plan)
	l.executor.Execute(ctx, plan)

	metrics.PositionQty.Set(snap.PositionQty)
	metrics.UnrealizedPnLUSD.Set(snap.UnrealPnL)
}

func (l *Loop) logRegimeTransition(regime types.Regime) {
	if regime.Kind == l.lastRegime {
		return
	}
	l.lastRegime = regime.Kind
	metrics.RegimeTransitions.WithLabelValues(string(regime.Kind)).Inc()

	switch regime.Kind {
	case types.RegimeGuard:
		l.logger.Warn("regime -> guard", "reason", regime.GuardReason)
	case types.RegimeStale:
		l.logger.Warn("regime -> stale", "which", regime.StaleWhich)
	case types.RegimeRecovery:
		l.logger.Error("regime -> recovery")
		l.notifier.Notify("CRITICAL", "entered Recovery regime")
	case types.RegimeCaution:
		l.logger.Info("regime -> caution", "near_side", regime.NearSide)
	default:
		l.logger.Info("regime -> normal")
	}
}

func (l *Loop) recordPlanMetrics(plan types.PlanResult) {
	for range plan.Cancels {
		metrics.OrdersCancelled.WithLabelValues("planner").Inc()
	}
	for _, o := range plan.Orders {
		metrics.OrdersPlaced.WithLabelValues(string(o.Side), string(o.Role)).Inc()
		if o.Role == types.RoleStopLoss {
			l.notifier.Notify("CRITICAL", fmt.Sprintf("stop-loss flatten submitted: %s %v", o.Side, o.Quantity))
		}
	}
}

// shutdown cancels every tracked order, one cancel call per order, bounded
// by a grace period so exit isn't held up by an unresponsive venue.
func (l *Loop) shutdown(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	snap := l.store.Take()
	var ids []string
	if snap.OrderBuy != nil {
		ids = append(ids, snap.OrderBuy.ClOrdID)
	}
	if snap.OrderSell != nil {
		ids = append(ids, snap.OrderSell.ClOrdID)
	}
	l.executor.Execute(ctx, types.PlanResult{Cancels: ids})
}

// Snapshot renders a one-line human-readable status string, grounded on
// core/reporting.py's status block — no HTTP surface, just a string method
// callers can log or print on demand.
func (l *Loop) Snapshot() string {
	snap := l.store.Take()
	return fmt.Sprintf(
		"regime=%s dex=%.2f cex=%.2f position=%.4f entry=%.2f upnl=%.2f buy_order=%v sell_order=%v",
		l.lastRegime, snap.DEXPrice, snap.CEXPrice, snap.PositionQty, snap.EntryPrice, snap.UnrealPnL,
		snap.OrderBuy != nil, snap.OrderSell != nil,
	)
}
