// Package risk evaluates the maker's risk regime from a state snapshot.
//
// risk.Manager (internal/risk/manager.go) holds portfolio-wide
// cooldown/kill-switch state behind a mutex and exposes it via
// IsKillSwitchActive/clearExpiredKillSwitch. Evaluator reuses that exact
// cooldown-plus-stable-duration hysteresis shape, but is called
// synchronously from the Decision Loop on every tick as a pure function
// with no side effects, instead of running as its own goroutine — the only
// state it carries across calls is the small amount of hysteresis
// bookkeeping the regime transition rules require.
package risk

import (
	"math"
	"sync"
	"time"

	"perpmaker/internal/config"
	"perpmaker/internal/state"
	"perpmaker/pkg/types"
)

// Evaluator derives a Regime from a Store snapshot plus config, tracking the
// minimal hysteresis state the transition rules require: a guard cooldown
// timer, a stable-start timestamp (cleared on any instability), and a
// Recovery flag set externally when the Planner triggers a stop-loss.
type Evaluator struct {
	mu sync.Mutex

	staleActive      bool
	staleWhich       types.StaleFeed
	staleStableStart time.Time

	guardActive      bool
	guardReason      string
	guardCooldownUntil time.Time
	guardStableStart time.Time

	// consecutiveGuardTrips / lastTripAt back ConsecutiveGuardBackoff: widen
	// the cooldown geometrically after repeated trips within a short span.
	// Off unless configured.
	consecutiveGuardTrips int
	lastTripAt            time.Time

	recoveryActive    bool
	recoveryNextCheck time.Time
}

// NewEvaluator creates an Evaluator with no hysteresis state — the first
// tick always observes Normal unless a condition is already tripped.
func NewEvaluator() *Evaluator {
	return &Evaluator{}
}

// EnterRecovery is called by the Planner (never by the Evaluator itself)
// the tick a stop-loss fires, transitioning the regime to Recovery.
func (e *Evaluator) EnterRecovery(now time.Time, cfg config.StopLossConfig) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.recoveryActive = true
	e.recoveryNextCheck = now.Add(time.Duration(cfg.StopLossCooldownSec) * time.Second)
}

// Distances linearly interpolates tight/far/cancel distances (bps) between
// their configured min/max by vol_ratio = clamp(volatility_bps /
// volatility_threshold_bps, 0, 1). Shared by the Evaluator's own
// amplitude-guard threshold and by the Planner, so the two never derive
// different numbers for the same tick.
func Distances(volatilityBps float64, dist config.DistanceConfig, riskCfg config.RiskConfig) (tight, far, cancel float64) {
	volRatio := 0.0
	if riskCfg.VolatilityThresholdBps > 0 {
		volRatio = volatilityBps / riskCfg.VolatilityThresholdBps
	}
	volRatio = clamp(volRatio, 0, 1)

	lerp := func(min, max float64) float64 { return min + (max-min)*volRatio }

	tight = lerp(dist.TightMinBps, dist.TightMaxBps)
	far = lerp(dist.FarMinBps, dist.FarMaxBps)
	cancel = lerp(dist.CancelMinBps, dist.CancelMaxBps)

	// Enforce cancel < tight strictly, by at least 0.1 bps.
	if cancel >= tight-0.1 {
		cancel = tight - 0.1
	}
	if cancel < 0 {
		cancel = 0
	}
	return tight, far, cancel
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

// Evaluate derives the Regime for this tick from snap and cfg.
func (e *Evaluator) Evaluate(snap state.Snapshot, cfg config.Config, now time.Time) types.Regime {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.recoveryActive {
		if now.Before(e.recoveryNextCheck) {
			return types.Regime{Kind: types.RegimeRecovery, NextCheckAt: e.recoveryNextCheck}
		}
		cutoff := now.Add(-time.Duration(cfg.StopLoss.RecoveryWindowSec) * time.Second)
		vol := snap.Windows.CEXPrice.VolatilityBps(cutoff)
		if vol <= cfg.StopLoss.RecoveryVolatilityBps {
			e.recoveryActive = false
		} else {
			e.recoveryNextCheck = now.Add(time.Duration(cfg.StopLoss.RecoveryCheckIntervalSec) * time.Second)
			return types.Regime{Kind: types.RegimeRecovery, NextCheckAt: e.recoveryNextCheck}
		}
	}

	dexStale := now.Sub(snap.DEXTs) > time.Duration(cfg.Staleness.DEXStalenessSec)*time.Second
	cexStale := snap.HasCEX && now.Sub(snap.CEXTs) > time.Duration(cfg.Staleness.CEXStalenessSec)*time.Second
	if dexStale || cexStale {
		which := types.StaleDEX
		if cexStale && !dexStale {
			which = types.StaleCEX
		}
		e.staleActive = true
		e.staleWhich = which
		e.staleStableStart = time.Time{}
		return types.Regime{Kind: types.RegimeStale, StaleWhich: which}
	}
	if e.staleActive {
		if e.staleStableStart.IsZero() {
			e.staleStableStart = now
		}
		if now.Sub(e.staleStableStart) < time.Duration(cfg.Risk.RecoveryStableSec)*time.Second {
			return types.Regime{Kind: types.RegimeStale, StaleWhich: e.staleWhich}
		}
		e.staleActive = false
		e.staleStableStart = time.Time{}
	}

	m := computeMetrics(snap, cfg, now)

	if m.guardTripped() {
		if !e.guardActive {
			e.tripGuard(now, cfg.Risk)
		}
		e.guardReason = m.guardReason()
		e.guardStableStart = time.Time{}
		return types.Regime{Kind: types.RegimeGuard, GuardReason: e.guardReason, CooldownUntil: e.guardCooldownUntil}
	}

	if e.guardActive {
		if now.Before(e.guardCooldownUntil) {
			e.guardStableStart = time.Time{}
			return types.Regime{Kind: types.RegimeGuard, GuardReason: e.guardReason, CooldownUntil: e.guardCooldownUntil}
		}
		if m.warnTripped() {
			e.guardStableStart = time.Time{}
			return types.Regime{Kind: types.RegimeGuard, GuardReason: e.guardReason, CooldownUntil: e.guardCooldownUntil}
		}
		if e.guardStableStart.IsZero() {
			e.guardStableStart = now
		}
		if now.Sub(e.guardStableStart) < time.Duration(cfg.Risk.RecoveryStableSec)*time.Second {
			return types.Regime{Kind: types.RegimeGuard, GuardReason: e.guardReason, CooldownUntil: e.guardCooldownUntil}
		}
		e.guardActive = false
		e.guardStableStart = time.Time{}
	}

	if m.warnTripped() {
		return types.Regime{Kind: types.RegimeCaution, NearSide: m.nearSide()}
	}

	return types.Regime{Kind: types.RegimeNormal}
}

// tripGuard starts (or widens, under ConsecutiveGuardBackoff) the guard
// cooldown window.
func (e *Evaluator) tripGuard(now time.Time, riskCfg config.RiskConfig) {
	e.guardActive = true

	cooldownSec := float64(riskCfg.GuardCooldownSec)
	if riskCfg.ConsecutiveGuardBackoffEnabled {
		backoffWindow := time.Duration(riskCfg.GuardCooldownSec*2) * time.Second
		if !e.lastTripAt.IsZero() && now.Sub(e.lastTripAt) < backoffWindow {
			e.consecutiveGuardTrips++
		} else {
			e.consecutiveGuardTrips = 1
		}
		e.lastTripAt = now

		widened := cooldownSec * math.Pow(riskCfg.ConsecutiveGuardBackoffFactor, float64(e.consecutiveGuardTrips-1))
		if maxSec := float64(riskCfg.ConsecutiveGuardBackoffMaxSec); maxSec > 0 && widened > maxSec {
			widened = maxSec
		}
		cooldownSec = widened
	}

	e.guardCooldownUntil = now.Add(time.Duration(cooldownSec * float64(time.Second)))
}
