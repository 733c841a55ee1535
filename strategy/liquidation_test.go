package strategy

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/quantarch/medusa/regime"
	"github.com/quantarch/medusa/signal"
	"github.com/quantarch/medusa/types"
)

func liqSnapshot(net, conf float64, count int) Snapshot {
	return Snapshot{
		Scores: map[string]signal.AggregatedScore{
			"BTC": {NetDirection: net, Confidence: conf, SignalCount: count, DominantSource: "binance_funding"},
		},
		Prices: map[string]decimal.Decimal{
			"BTC": decimal.NewFromInt(50000),
		},
		Regime: regime.State{Regime: regime.HighVolExpansion},
	}
}

func TestLiquidationFlowLong(t *testing.T) {
	s := NewLiquidationFlow(decimal.NewFromInt(3000))
	out := s.Propose(liqSnapshot(0.8, 0.9, 3))
	if len(out) != 1 {
		t.Fatalf("proposals = %d, want 1", len(out))
	}
	p := out[0]
	if p.Direction != types.Long {
		t.Errorf("direction = %v, want LONG", p.Direction)
	}
	if !p.Valid() {
		t.Errorf("proposal invalid: entry=%s stop=%s target=%s", p.Entry, p.Stop, p.Target)
	}
	if !p.Stop.Equal(decimal.NewFromInt(50000).Mul(decimal.NewFromFloat(0.985))) {
		t.Errorf("stop = %s, want 1.5%% below entry", p.Stop)
	}
	// RR for 1.5% stop, 4% target.
	if p.RewardToRisk < 2.6 || p.RewardToRisk > 2.7 {
		t.Errorf("reward:risk = %v, want ~2.67", p.RewardToRisk)
	}
	want := decimal.NewFromInt(3000).Mul(decimal.NewFromFloat(0.9))
	if !p.RequestedNotional.Equal(want) {
		t.Errorf("requested = %s, want %s", p.RequestedNotional, want)
	}
}

func TestLiquidationFlowShort(t *testing.T) {
	s := NewLiquidationFlow(decimal.NewFromInt(3000))
	out := s.Propose(liqSnapshot(-0.8, 0.9, 3))
	if len(out) != 1 {
		t.Fatalf("proposals = %d, want 1", len(out))
	}
	p := out[0]
	if p.Direction != types.Short {
		t.Errorf("direction = %v, want SHORT", p.Direction)
	}
	if !p.Valid() {
		t.Errorf("short proposal invalid: stop %s should sit above entry %s", p.Stop, p.Entry)
	}
}

func TestLiquidationFlowGates(t *testing.T) {
	s := NewLiquidationFlow(decimal.NewFromInt(3000))

	cases := []struct {
		name string
		snap Snapshot
	}{
		{"low confidence", liqSnapshot(0.8, 0.4, 3)},
		{"single source", liqSnapshot(0.8, 0.9, 1)},
		{"contested direction", liqSnapshot(0.1, 0.9, 3)},
	}
	for _, tc := range cases {
		if out := s.Propose(tc.snap); len(out) != 0 {
			t.Errorf("%s: proposals = %d, want 0", tc.name, len(out))
		}
	}

	unpriced := liqSnapshot(0.8, 0.9, 3)
	unpriced.Prices = nil
	if out := s.Propose(unpriced); len(out) != 0 {
		t.Errorf("unpriced asset: proposals = %d, want 0", len(out))
	}
}

func TestLiquidationFlowRegimes(t *testing.T) {
	s := NewLiquidationFlow(decimal.NewFromInt(3000))
	if EligibleIn(s, regime.MeanReverting) {
		t.Error("liquidation flow should not run in MEAN_REVERTING")
	}
	if !EligibleIn(s, regime.Crash) {
		t.Error("liquidation flow should run in CRASH")
	}
}
