// Package planner turns a state snapshot and a risk regime into an ordered
// set of order actions for one decision-loop tick.
//
// The shape — diff desired quotes against tracked orders, cancel what no
// longer fits, defer new placements to the next tick when a cancel went out
// — is the same reconcileOrders/quoteUpdate structure strategy.Maker used
// for a single binary market (internal/strategy/maker.go), generalized from
// Avellaneda-Stoikov quoting on a [0,1] price to dynamic bps-distance
// quoting on a perpetual mark price, with stop-loss/profit-take/
// inventory-override layered on top.
package planner

import (
	"math"
	"time"

	"perpmaker/internal/config"
	"perpmaker/internal/risk"
	"perpmaker/internal/state"
	"perpmaker/pkg/types"
)

// cexDangerThresholdBps is the fixed "CEX has crossed through the order"
// cancel trigger.
const cexDangerThresholdBps = 2.0

// Planner holds the minimal cross-tick state: the pending_close flag that
// suppresses duplicate stop-loss attempts until the position is observed
// flat.
type Planner struct {
	pendingClose bool
}

// New creates a Planner with no pending stop-loss.
func New() *Planner {
	return &Planner{}
}

// Plan computes this tick's actions. evaluator is used only to signal a
// stop-loss trip (EnterRecovery); Plan never reads regime state directly
// from it, honoring the Risk Evaluator's "no side effects" contract for
// everything except that one explicit transition.
func (p *Planner) Plan(snap state.Snapshot, regime types.Regime, cfg config.Config, evaluator *risk.Evaluator, now time.Time) types.PlanResult {
	if plan, tripped := p.checkStopLoss(snap, cfg, evaluator, now); tripped {
		return plan
	}
	if p.pendingClose {
		if snap.PositionQty == 0 {
			p.pendingClose = false
		} else {
			return types.PlanResult{}
		}
	}

	switch regime.Kind {
	case types.RegimeGuard, types.RegimeStale, types.RegimeRecovery:
		return types.PlanResult{Cancels: cancelAll(snap)}
	}

	if snap.PositionQty != 0 && snap.UnrealPnL > cfg.Fills.MinProfitUSD {
		return p.aggressiveProfitTake(snap)
	}

	volCutoff := now.Add(-time.Duration(cfg.Risk.VolatilityWindowSec) * time.Second)
	volBps := snap.Windows.DEXPrice.VolatilityBps(volCutoff)
	tight, far, cancelBps := risk.Distances(volBps, cfg.Distances, cfg.Risk)

	targets := computeTargets(snap, regime, cfg, tight, far)
	cancels := cancelCandidates(snap, cfg, targets, tight, cancelBps)
	if len(cancels) > 0 {
		// Observe the cancel's terminal state before placing anything new;
		// new orders are deferred to the next tick.
		return types.PlanResult{Cancels: cancels}
	}

	if now.Sub(snap.LastFillTs) < time.Duration(cfg.Fills.FillCooldownSec)*time.Second && snap.PositionQty == 0 {
		return types.PlanResult{}
	}

	return types.PlanResult{Orders: desiredOrders(snap, targets, cfg)}
}

// checkStopLoss is the highest-priority check, evaluated every tick
// regardless of regime. PnL is checked two ways — the venue's own
// UnrealPnL and a mark-price-derived recomputation — and either one
// breaching the threshold trips the stop-loss, so a stale or delayed PnL
// field on one stream can't mask a loss the other stream already shows.
func (p *Planner) checkStopLoss(snap state.Snapshot, cfg config.Config, evaluator *risk.Evaluator, now time.Time) (types.PlanResult, bool) {
	if p.pendingClose || cfg.StopLoss.StopLossUSD <= 0 || snap.PositionQty == 0 {
		return types.PlanResult{}, false
	}

	markPnL := (snap.MarkPrice - snap.EntryPrice) * snap.PositionQty
	venueTripped := snap.UnrealPnL < -cfg.StopLoss.StopLossUSD
	markTripped := snap.MarkPrice > 0 && markPnL < -cfg.StopLoss.StopLossUSD
	if !venueTripped && !markTripped {
		return types.PlanResult{}, false
	}

	p.pendingClose = true
	evaluator.EnterRecovery(now, cfg.StopLoss)

	side := exitSide(snap.PositionQty)
	return types.PlanResult{
		Cancels: cancelAll(snap),
		Orders: []types.OrderIntent{{
			Side:       side,
			Quantity:   math.Abs(snap.PositionQty),
			ReduceOnly: true,
			OrderType:  types.OrderTypeIOC,
			Role:       types.RoleStopLoss,
		}},
		ZeroPositionOnSuccess: true,
	}, true
}

// aggressiveProfitTake pre-empts all limit-quote planning for the tick once
// venue-reported unrealized PnL clears the configured threshold.
func (p *Planner) aggressiveProfitTake(snap state.Snapshot) types.PlanResult {
	return types.PlanResult{
		Cancels: cancelAll(snap),
		Orders: []types.OrderIntent{{
			Side:       exitSide(snap.PositionQty),
			Quantity:   math.Abs(snap.PositionQty),
			ReduceOnly: true,
			OrderType:  types.OrderTypeIOC,
			Role:       types.RoleReduce,
		}},
		ZeroPositionOnSuccess: true,
	}
}

func exitSide(positionQty float64) types.Side {
	if positionQty > 0 {
		return types.SELL
	}
	return types.BUY
}

func cancelAll(snap state.Snapshot) []string {
	var ids []string
	if snap.OrderBuy != nil {
		ids = append(ids, snap.OrderBuy.ClOrdID)
	}
	if snap.OrderSell != nil {
		ids = append(ids, snap.OrderSell.ClOrdID)
	}
	return ids
}

// sideTarget is the planned distance (bps) and pricing details for one side.
type sideTarget struct {
	allowed    bool
	distBps    float64
	reduceOnly bool
	exit       bool // true when this side is the forced break-even exit
	qty        float64
}

// computeTargets derives the per-side target distance and allowance,
// applying inventory skew, Caution's risky-side widening, the max-position
// override, and the break-even exit-side override.
func computeTargets(snap state.Snapshot, regime types.Regime, cfg config.Config, tight, far float64) map[types.Side]sideTarget {
	skew := 0.0
	if cfg.Instrument.MaxPosition > 0 {
		skew = (snap.PositionQty / cfg.Instrument.MaxPosition) * cfg.Skew.MaxSkewBps
	}
	skew = clamp(skew, -cfg.Skew.MaxSkewBps, cfg.Skew.MaxSkewBps)

	buyDist := math.Max(tight+skew, 0)
	sellDist := math.Max(tight-skew, 0)

	targets := map[types.Side]sideTarget{
		types.BUY:  {allowed: true, distBps: buyDist, qty: cfg.Instrument.OrderSize},
		types.SELL: {allowed: true, distBps: sellDist, qty: cfg.Instrument.OrderSize},
	}

	if regime.Kind == types.RegimeCaution {
		riskySide := regime.NearSide.Opposite()
		t := targets[riskySide]
		t.distBps = far
		if !cfg.Risk.CautionOtherSideEnabled {
			t.allowed = false
		}
		targets[riskySide] = t
	}

	if cfg.Instrument.MaxPosition > 0 && math.Abs(snap.PositionQty) >= cfg.Instrument.MaxPosition {
		entrySide := exitSide(snap.PositionQty).Opposite()
		t := targets[entrySide]
		t.allowed = false
		targets[entrySide] = t
	}

	if snap.PositionQty != 0 {
		exit := exitSide(snap.PositionQty)
		t := targets[exit]
		t.reduceOnly = true
		t.exit = true
		t.qty = math.Abs(snap.PositionQty)
		targets[exit] = t
	}

	return targets
}

// desiredOrders turns per-side targets into concrete OrderIntents, clamping
// the exit side's price to break-even.
func desiredOrders(snap state.Snapshot, targets map[types.Side]sideTarget, cfg config.Config) []types.OrderIntent {
	var out []types.OrderIntent
	for _, side := range []types.Side{types.BUY, types.SELL} {
		t := targets[side]
		if !t.allowed || snap.DEXPrice == 0 {
			continue
		}
		if t.qty < cfg.Instrument.MinOrderSize {
			continue
		}

		price := targetPrice(snap.DEXPrice, side, t.distBps)
		if t.exit {
			price = exitBreakEvenPrice(price, side, snap.EntryPrice, cfg.Fills)
		}

		out = append(out, types.OrderIntent{
			Side:       side,
			Price:      price,
			Quantity:   t.qty,
			ReduceOnly: t.reduceOnly,
			OrderType:  types.OrderTypeGTC,
			Role:       types.RoleMaker,
		})
	}
	return out
}

func targetPrice(dexPrice float64, side types.Side, distBps float64) float64 {
	offset := dexPrice * distBps / 1e4
	if side == types.BUY {
		return dexPrice - offset
	}
	return dexPrice + offset
}

// exitBreakEvenPrice overrides the skew-derived target if it would sit on
// the wrong side of break-even.
func exitBreakEvenPrice(target float64, side types.Side, entry float64, fills config.FillsConfig) float64 {
	margin := fills.TakerFeeRate + fills.MinProfitBps/1e4
	if side == types.SELL {
		breakeven := entry * (1 + margin)
		return math.Max(target, breakeven)
	}
	breakeven := entry * (1 - margin)
	return math.Min(target, breakeven)
}

// cancelCandidates scans the two tracked orders against their cancel bands
// and the CEX-danger crossover. tight/cancelBps are this tick's
// volatility-adjusted distances, shared with computeTargets so the band and
// the target it's measured against never disagree.
func cancelCandidates(snap state.Snapshot, cfg config.Config, targets map[types.Side]sideTarget, tight, cancelBps float64) []string {
	var ids []string
	orders := map[types.Side]*types.OpenOrder{types.BUY: snap.OrderBuy, types.SELL: snap.OrderSell}
	for side, order := range orders {
		if order == nil {
			continue
		}
		t, ok := targets[side]
		if !ok || !t.allowed {
			ids = append(ids, order.ClOrdID)
			continue
		}
		if outsideCancelBand(snap.DEXPrice, order.Price, t.distBps, tight, cancelBps, cfg.Distances.RebalanceBps) {
			ids = append(ids, order.ClOrdID)
			continue
		}
		if snap.HasCEX && cexDangerCrossed(snap.CEXPrice, order.Price, side) {
			ids = append(ids, order.ClOrdID)
		}
	}
	return ids
}

func outsideCancelBand(dexPrice, orderPrice, targetDistBps, tight, cancelBps, rebalanceBps float64) bool {
	if dexPrice == 0 {
		return false
	}
	low := targetDistBps - (tight - cancelBps)
	high := targetDistBps + (rebalanceBps - tight)

	dist := math.Abs(orderPrice-dexPrice) / dexPrice * 1e4
	return dist < low || dist > high
}

func cexDangerCrossed(cexPrice, orderPrice float64, side types.Side) bool {
	bps := (cexPrice - orderPrice) / orderPrice * 1e4
	if side == types.BUY {
		return bps <= cexDangerThresholdBps
	}
	return bps >= -cexDangerThresholdBps
}

func clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
