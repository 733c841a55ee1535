package signal

import (
	"math"
	"time"
)

// ═══════════════════════════════════════════════════════════════════════════════
// SIGNAL - A scored observation from one source
// ═══════════════════════════════════════════════════════════════════════════════
//
// Every source adapter emits the same shape: a direction in [-1,1], a
// strength in [0,1] and a per-source reliability weight. The aggregator
// owns the signal from ingestion until it decays out.
//
// ═══════════════════════════════════════════════════════════════════════════════

// Signal is a single scored observation about one asset. Immutable once
// created; a newer signal from the same source for the same asset
// supersedes the old one.
type Signal struct {
	SourceID    string
	Asset       string
	Direction   float64 // -1 (bearish) .. +1 (bullish)
	Strength    float64 // 0 (noise) .. 1 (maximum conviction)
	Reliability float64 // (0,1] per-source weight, tagged by the adapter
	Timestamp   time.Time
	HalfLife    time.Duration
}

// expiryFactor is how many half-lives a signal survives before it is
// purged outright instead of merely decayed.
const expiryFactor = 5

// EffectiveWeight is the signal's contribution at time now:
// reliability * strength * exp(-ln2 * age / half_life).
// Expired signals contribute exactly zero.
func (s Signal) EffectiveWeight(now time.Time) float64 {
	if s.Expired(now) {
		return 0
	}
	age := now.Sub(s.Timestamp)
	if age < 0 {
		age = 0
	}
	decay := math.Exp(-math.Ln2 * age.Seconds() / s.HalfLife.Seconds())
	return s.Reliability * s.Strength * decay
}

// Expired reports whether the signal is past 5 half-lives.
func (s Signal) Expired(now time.Time) bool {
	if s.HalfLife <= 0 {
		return true
	}
	return now.Sub(s.Timestamp) > expiryFactor*s.HalfLife
}

// Composite is direction weighted by strength, used to pick the
// dominant signal for an asset.
func (s Signal) Composite() float64 {
	return s.Direction * s.Strength
}
