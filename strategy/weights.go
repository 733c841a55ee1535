package strategy

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/quantarch/medusa/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// STRATEGY WEIGHTS - Meta layer that reallocates toward what works
// ═══════════════════════════════════════════════════════════════════════════════
//
// Weight = clamp(2 × trailing win rate, 0.3, 2.0). The floor keeps a
// cold strategy alive so it can prove itself again; the ceiling stops a
// hot streak from dominating the book.
//
// ═══════════════════════════════════════════════════════════════════════════════

const (
	// WeightFloor never fully disables a strategy.
	WeightFloor = 0.3
	// WeightCeiling caps how much a winning streak can amplify.
	WeightCeiling = 2.0
	// minTradesForWeight is how many closed trades a strategy needs
	// before its win rate moves its weight off neutral.
	minTradesForWeight = 5
)

type strategyRecord struct {
	trades int
	wins   int
	weight float64
}

// WeightTracker accumulates realized outcomes and recomputes weights
// on demand (the engine calls Recompute every N cycles).
type WeightTracker struct {
	mu      sync.RWMutex
	records map[string]*strategyRecord
}

// NewWeightTracker starts every strategy at neutral weight 1.0.
func NewWeightTracker(strategyIDs []string) *WeightTracker {
	records := make(map[string]*strategyRecord, len(strategyIDs))
	for _, id := range strategyIDs {
		records[id] = &strategyRecord{weight: 1.0}
	}
	return &WeightTracker{records: records}
}

// RecordOutcome feeds one realized result into the tracker.
func (t *WeightTracker) RecordOutcome(o types.Outcome) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.records[o.StrategyID]
	if !ok {
		rec = &strategyRecord{weight: 1.0}
		t.records[o.StrategyID] = rec
	}
	rec.trades++
	if o.Win {
		rec.wins++
	}
}

// Recompute updates every strategy's weight from its trailing win rate.
func (t *WeightTracker) Recompute() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for id, rec := range t.records {
		if rec.trades < minTradesForWeight {
			continue
		}
		winRate := float64(rec.wins) / float64(rec.trades)
		w := winRate * 2
		if w < WeightFloor {
			w = WeightFloor
		}
		if w > WeightCeiling {
			w = WeightCeiling
		}
		if w != rec.weight {
			log.Info().
				Str("strategy", id).
				Float64("win_rate", winRate).
				Float64("weight", w).
				Msg("Strategy weight updated")
		}
		rec.weight = w
	}
}

// Weights returns a copy of the current weight map for the ranker.
func (t *WeightTracker) Weights() map[string]float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make(map[string]float64, len(t.records))
	for id, rec := range t.records {
		out[id] = rec.weight
	}
	return out
}

// WinRate returns the trailing win rate for one strategy.
func (t *WeightTracker) WinRate(strategyID string) float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()

	rec, ok := t.records[strategyID]
	if !ok || rec.trades == 0 {
		return 0
	}
	return float64(rec.wins) / float64(rec.trades)
}
