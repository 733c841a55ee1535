package signal

import (
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// ═══════════════════════════════════════════════════════════════════════════════
// AGGREGATOR - Combines signals per asset into one net score
// ═══════════════════════════════════════════════════════════════════════════════
//
// Source adapters write concurrently at any time; the engine reads a
// consistent snapshot once per cycle. Opposing signals cancel in
// net direction but still count toward confidence - a contested,
// high-attention asset reads as "confident about nothing".
//
// ═══════════════════════════════════════════════════════════════════════════════

// AggregatedScore is the per-asset composite, recomputed each cycle.
type AggregatedScore struct {
	Asset          string  `json:"asset"`
	NetDirection   float64 `json:"net_direction"` // [-1,1]
	Confidence     float64 `json:"confidence"`    // [0,1]
	SignalCount    int     `json:"signal_count"`
	DominantSource string  `json:"dominant_source"`
}

// defaultSaturation is the sum of effective weights at which confidence
// reaches 1.0. Two fresh full-strength signals from reliable sources
// saturate it.
const defaultSaturation = 2.0

// Aggregator holds live signals keyed by (asset, source).
type Aggregator struct {
	mu         sync.RWMutex
	signals    map[string]map[string]Signal // asset -> source -> latest signal
	saturation float64
}

// NewAggregator creates an empty aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{
		signals:    make(map[string]map[string]Signal),
		saturation: defaultSaturation,
	}
}

// SetSaturation overrides the confidence saturation constant.
func (a *Aggregator) SetSaturation(s float64) {
	if s <= 0 {
		return
	}
	a.mu.Lock()
	a.saturation = s
	a.mu.Unlock()
}

// Ingest stores a signal, superseding any earlier signal from the same
// source for the same asset. Safe for concurrent adapter use.
func (a *Aggregator) Ingest(s Signal) {
	if s.Asset == "" || s.SourceID == "" || s.HalfLife <= 0 {
		return
	}
	if s.Timestamp.IsZero() {
		s.Timestamp = time.Now().UTC()
	}
	a.mu.Lock()
	bySource, ok := a.signals[s.Asset]
	if !ok {
		bySource = make(map[string]Signal)
		a.signals[s.Asset] = bySource
	}
	bySource[s.SourceID] = s
	a.mu.Unlock()

	log.Debug().
		Str("source", s.SourceID).
		Str("asset", s.Asset).
		Float64("direction", s.Direction).
		Float64("strength", s.Strength).
		Msg("Signal ingested")
}

// Aggregate computes the composite score for one asset at time now.
// No live signals yields a zero score, not an error.
func (a *Aggregator) Aggregate(asset string, now time.Time) AggregatedScore {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.aggregateLocked(asset, now)
}

func (a *Aggregator) aggregateLocked(asset string, now time.Time) AggregatedScore {
	score := AggregatedScore{Asset: asset}

	var weightedSum, totalWeight, dominant float64
	for _, s := range a.signals[asset] {
		w := s.EffectiveWeight(now)
		if w <= 0 {
			continue
		}
		weightedSum += s.Direction * w
		totalWeight += w
		score.SignalCount++
		if c := math.Abs(s.Composite()); c >= dominant {
			dominant = c
			score.DominantSource = s.SourceID
		}
	}
	if totalWeight == 0 {
		return AggregatedScore{Asset: asset}
	}

	score.NetDirection = clamp(weightedSum/totalWeight, -1, 1)
	score.Confidence = clamp(totalWeight/a.saturation, 0, 1)
	return score
}

// Snapshot returns a consistent view of every asset with live signals.
// The map is freshly allocated; the caller owns it for the cycle.
func (a *Aggregator) Snapshot(now time.Time) map[string]AggregatedScore {
	a.mu.RLock()
	defer a.mu.RUnlock()

	out := make(map[string]AggregatedScore, len(a.signals))
	for asset := range a.signals {
		s := a.aggregateLocked(asset, now)
		if s.SignalCount > 0 {
			out[asset] = s
		}
	}
	return out
}

// PurgeExpired drops signals past 5 half-lives. Purging is idempotent:
// expired signals already contribute nothing to aggregation.
func (a *Aggregator) PurgeExpired(now time.Time) int {
	a.mu.Lock()
	defer a.mu.Unlock()

	purged := 0
	for asset, bySource := range a.signals {
		for src, s := range bySource {
			if s.Expired(now) {
				delete(bySource, src)
				purged++
			}
		}
		if len(bySource) == 0 {
			delete(a.signals, asset)
		}
	}
	if purged > 0 {
		log.Debug().Int("purged", purged).Msg("Expired signals purged")
	}
	return purged
}

// LiveCount returns the number of unexpired signals for an asset.
func (a *Aggregator) LiveCount(asset string, now time.Time) int {
	a.mu.RLock()
	defer a.mu.RUnlock()

	n := 0
	for _, s := range a.signals[asset] {
		if !s.Expired(now) {
			n++
		}
	}
	return n
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
