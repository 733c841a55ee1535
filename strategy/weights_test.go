package strategy

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/quantarch/medusa/types"
)

func outcome(strategyID string, win bool) types.Outcome {
	pnl := decimal.NewFromInt(100)
	if !win {
		pnl = pnl.Neg()
	}
	return types.Outcome{StrategyID: strategyID, Asset: "BTC", PnL: pnl, Win: win}
}

func TestWeightsStartNeutral(t *testing.T) {
	w := NewWeightTracker([]string{"a", "b"})
	got := w.Weights()
	if got["a"] != 1.0 || got["b"] != 1.0 {
		t.Errorf("initial weights = %v, want all 1.0", got)
	}
}

func TestWeightNeutralBelowMinTrades(t *testing.T) {
	w := NewWeightTracker([]string{"a"})
	// Four straight losses are not yet enough history to move the weight.
	for i := 0; i < minTradesForWeight-1; i++ {
		w.RecordOutcome(outcome("a", false))
	}
	w.Recompute()
	if got := w.Weights()["a"]; got != 1.0 {
		t.Errorf("weight after %d trades = %v, want neutral 1.0", minTradesForWeight-1, got)
	}
}

func TestWeightTracksWinRate(t *testing.T) {
	w := NewWeightTracker([]string{"a"})
	// 3 wins of 5: weight = 2 * 0.6 = 1.2.
	for i := 0; i < 3; i++ {
		w.RecordOutcome(outcome("a", true))
	}
	for i := 0; i < 2; i++ {
		w.RecordOutcome(outcome("a", false))
	}
	w.Recompute()
	if got := w.Weights()["a"]; got != 1.2 {
		t.Errorf("weight = %v, want 1.2 for 60%% win rate", got)
	}
	if wr := w.WinRate("a"); wr != 0.6 {
		t.Errorf("win rate = %v, want 0.6", wr)
	}
}

func TestWeightFloor(t *testing.T) {
	w := NewWeightTracker([]string{"a"})
	for i := 0; i < 10; i++ {
		w.RecordOutcome(outcome("a", false))
	}
	w.Recompute()
	if got := w.Weights()["a"]; got != WeightFloor {
		t.Errorf("all-loss weight = %v, want floor %v", got, WeightFloor)
	}
}

func TestWeightCeiling(t *testing.T) {
	w := NewWeightTracker([]string{"a"})
	for i := 0; i < 10; i++ {
		w.RecordOutcome(outcome("a", true))
	}
	w.Recompute()
	if got := w.Weights()["a"]; got != WeightCeiling {
		t.Errorf("all-win weight = %v, want ceiling %v", got, WeightCeiling)
	}
}

func TestRecordOutcomeUnknownStrategy(t *testing.T) {
	w := NewWeightTracker(nil)
	for i := 0; i < minTradesForWeight; i++ {
		w.RecordOutcome(outcome("late", true))
	}
	w.Recompute()
	if got := w.Weights()["late"]; got != WeightCeiling {
		t.Errorf("lazily-registered strategy weight = %v, want %v", got, WeightCeiling)
	}
}

func TestWeightsReturnsCopy(t *testing.T) {
	w := NewWeightTracker([]string{"a"})
	got := w.Weights()
	got["a"] = 99
	if w.Weights()["a"] != 1.0 {
		t.Error("mutating the returned map leaked into the tracker")
	}
}
