/**
 * @description
 * Market lifecycle state machine: sandbox -> graduating -> main, with the
 * terminal resolved phase reachable from anywhere via settlement.
 *
 * @notes
 * - There is no scheduler. Tick is called at the start of every engine
 *   operation and read path; pending transitions are applied lazily and the
 *   caller persists the updated entity.
 * - Trading is paused during graduation, reads stay available.
 */

package engine

import (
	"time"
)

// LifecycleConfig holds the graduation tunables.
type LifecycleConfig struct {
	// VolumeThreshold is the cumulative volume at which a sandbox market
	// begins graduating.
	VolumeThreshold float64
	// Dwell is how long a market stays in graduating before opening on the
	// main book.
	Dwell time.Duration
}

// Tick applies any pending lifecycle transition to the market and reports
// whether the state changed. Resolved markets never transition.
func Tick(m *Market, now time.Time, cfg LifecycleConfig) bool {
	switch m.Phase {
	case PhaseSandbox:
		if m.Volume >= cfg.VolumeThreshold {
			started := now
			m.Phase = PhaseGraduating
			m.GraduationStartedAt = &started
			// A long-dormant market can clear the dwell in the same tick.
			Tick(m, now, cfg)
			return true
		}
	case PhaseGraduating:
		if m.GraduationStartedAt != nil && now.Sub(*m.GraduationStartedAt) >= cfg.Dwell {
			m.Phase = PhaseMain
			return true
		}
	case PhaseMain, PhaseResolved:
	}
	return false
}

// TradingOpen reports whether the market accepts buys, sells, and order
// placement in its current phase.
func TradingOpen(m *Market) bool {
	return m.Phase == PhaseSandbox || m.Phase == PhaseMain
}

// GraduationProgress describes how far along a graduating market is.
type GraduationProgress struct {
	Remaining time.Duration `json:"remaining"`
	Percent   float64       `json:"percent"`
}

// Progress returns the graduation countdown for a graduating market, nil
// for every other phase.
func Progress(m *Market, now time.Time, cfg LifecycleConfig) *GraduationProgress {
	if m.Phase != PhaseGraduating || m.GraduationStartedAt == nil || cfg.Dwell <= 0 {
		return nil
	}
	elapsed := now.Sub(*m.GraduationStartedAt)
	remaining := cfg.Dwell - elapsed
	if remaining < 0 {
		remaining = 0
	}
	percent := float64(elapsed) / float64(cfg.Dwell) * 100
	if percent > 100 {
		percent = 100
	}
	if percent < 0 {
		percent = 0
	}
	return &GraduationProgress{Remaining: remaining, Percent: percent}
}

// GuardTradable rejects mutations on markets whose phase forbids trading.
func GuardTradable(m *Market) error {
	switch m.Phase {
	case PhaseResolved:
		return Conflictf("market %s is resolved; trading is closed", m.ID)
	case PhaseGraduating:
		return Conflictf("market %s is graduating; trading is paused", m.ID)
	}
	return nil
}
