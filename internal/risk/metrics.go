package risk

import (
	"fmt"
	"math"
	"time"

	"perpmaker/internal/config"
	"perpmaker/internal/state"
	"perpmaker/pkg/types"
)

// metrics bundles every threshold comparison the Guard/Caution checks need
// for one tick, computed once from the snapshot.
type metrics struct {
	spreadBps float64
	hasCEX    bool

	amplitudeBps     float64
	tightBps         float64
	velocityCount    int
	volumeRatio      float64
	hasVolumeRatio   bool
	imbalance        float64
	hasImbalance     bool

	cfg config.Config
}

func computeMetrics(snap state.Snapshot, cfg config.Config, now time.Time) metrics {
	m := metrics{cfg: cfg, hasCEX: snap.HasCEX}

	if snap.HasCEX && snap.DEXPrice != 0 {
		m.spreadBps = math.Abs(snap.CEXPrice-snap.DEXPrice) / snap.DEXPrice * 1e4
	}

	volCutoff := now.Add(-time.Duration(cfg.Risk.VolatilityWindowSec) * time.Second)
	volBps := snap.Windows.DEXPrice.VolatilityBps(volCutoff)
	tight, _, _ := Distances(volBps, cfg.Distances, cfg.Risk)
	m.tightBps = tight

	ampCutoff := now.Add(-time.Duration(cfg.Risk.AmplitudeWindowSec) * time.Second)
	m.amplitudeBps = snap.Windows.DEXPrice.AmplitudeBps(ampCutoff)

	velCutoff := now.Add(-time.Duration(cfg.Risk.VelocityCheckWindowSec) * time.Second)
	m.velocityCount = snap.Windows.DEXPrice.ConsecutiveDirectionCount(velCutoff)

	volumeCutoff := now.Add(-time.Duration(cfg.Risk.VolumeWindowSec) * time.Second)
	ratio, _, _, _, ok := snap.Windows.CEXVolume.VolumeRatio(volumeCutoff, cfg.Risk.VolumeMinSamples)
	m.volumeRatio, m.hasVolumeRatio = ratio, ok

	if cfg.Imbalance.GuardEnabled {
		imbCutoff := now.Add(-time.Duration(cfg.Imbalance.WindowSec) * time.Second)
		if last, ok := snap.Windows.DepthImbalance.Last(); ok && !last.T.Before(imbCutoff) {
			m.imbalance, m.hasImbalance = last.V, true
		}
	}

	return m
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func (m metrics) guardTripped() bool {
	if m.hasCEX && m.spreadBps > m.cfg.Spread.ThresholdBps {
		return true
	}
	if m.amplitudeBps > m.cfg.Risk.AmplitudeRatioThreshold*m.tightBps {
		return true
	}
	if absInt(m.velocityCount) >= m.cfg.Risk.VelocityTickThreshold {
		return true
	}
	if m.hasVolumeRatio && m.volumeRatio > m.cfg.Risk.VolumeGuardRatio {
		return true
	}
	return false
}

func (m metrics) guardReason() string {
	switch {
	case m.hasCEX && m.spreadBps > m.cfg.Spread.ThresholdBps:
		return fmt.Sprintf("spread %.1fbps > threshold %.1fbps", m.spreadBps, m.cfg.Spread.ThresholdBps)
	case m.amplitudeBps > m.cfg.Risk.AmplitudeRatioThreshold*m.tightBps:
		return fmt.Sprintf("amplitude %.1fbps > %.1fx tight", m.amplitudeBps, m.cfg.Risk.AmplitudeRatioThreshold)
	case absInt(m.velocityCount) >= m.cfg.Risk.VelocityTickThreshold:
		return fmt.Sprintf("velocity count %d >= threshold %d", m.velocityCount, m.cfg.Risk.VelocityTickThreshold)
	case m.hasVolumeRatio && m.volumeRatio > m.cfg.Risk.VolumeGuardRatio:
		return fmt.Sprintf("volume ratio %.2f > threshold %.2f", m.volumeRatio, m.cfg.Risk.VolumeGuardRatio)
	default:
		return "guard"
	}
}

func (m metrics) warnTripped() bool {
	if m.hasCEX && m.spreadBps > m.cfg.Spread.WarnBps {
		return true
	}
	if m.amplitudeBps > m.cfg.Risk.AmplitudeWarnRatioThreshold*m.tightBps {
		return true
	}
	if absInt(m.velocityCount) >= m.cfg.Risk.VelocityWarnTickThreshold {
		return true
	}
	if m.hasVolumeRatio && m.volumeRatio > m.cfg.Risk.VolumeWarnRatio {
		return true
	}
	if m.hasImbalance && math.Abs(m.imbalance) > m.cfg.Imbalance.WarnThreshold {
		return true
	}
	return false
}

// nearSide picks the "safe" side relative to the detected pressure
// direction: buy pressure -> near buy, sell pressure -> near sell. Depth
// imbalance is the most direct pressure signal when configured; otherwise
// the DEX velocity trend sign is used.
func (m metrics) nearSide() types.Side {
	if m.hasImbalance && m.imbalance != 0 {
		if m.imbalance > 0 {
			return types.BUY
		}
		return types.SELL
	}
	if m.velocityCount > 0 {
		return types.BUY
	}
	if m.velocityCount < 0 {
		return types.SELL
	}
	return types.BUY
}
