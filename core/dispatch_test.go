package core

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/quantarch/medusa/regime"
	"github.com/quantarch/medusa/strategy"
	"github.com/quantarch/medusa/types"
)

// stubStrategy emits a fixed proposal batch when eligible.
type stubStrategy struct {
	name     string
	regimes  []regime.Regime
	batch    []strategy.Proposal
	panicked bool
}

func (s *stubStrategy) Name() string             { return s.name }
func (s *stubStrategy) Regimes() []regime.Regime { return s.regimes }
func (s *stubStrategy) Propose(strategy.Snapshot) []strategy.Proposal {
	if s.panicked {
		panic("boom")
	}
	return s.batch
}

func validProposal(strategyID string) strategy.Proposal {
	return strategy.NewProposal(
		strategyID, "BTC", types.Long,
		decimal.NewFromInt(100), decimal.NewFromInt(98), decimal.NewFromInt(104),
		0.8, decimal.Zero, "",
	)
}

func unknownSnap() strategy.Snapshot {
	return strategy.Snapshot{Regime: regime.State{Regime: regime.Unknown}}
}

func TestCollectKeepsDispatchOrder(t *testing.T) {
	d := NewDispatcher([]strategy.Strategy{
		&stubStrategy{name: "first", regimes: []regime.Regime{regime.Unknown}, batch: []strategy.Proposal{validProposal("first")}},
		&stubStrategy{name: "second", regimes: []regime.Regime{regime.Unknown}, batch: []strategy.Proposal{validProposal("second")}},
	})

	for i := 0; i < 20; i++ {
		got := d.Collect(unknownSnap())
		if len(got) != 2 || got[0].StrategyID != "first" || got[1].StrategyID != "second" {
			t.Fatalf("collect order = %v", got)
		}
	}
}

func TestCollectSkipsIneligibleRegime(t *testing.T) {
	d := NewDispatcher([]strategy.Strategy{
		&stubStrategy{name: "crash_only", regimes: []regime.Regime{regime.Crash}, batch: []strategy.Proposal{validProposal("crash_only")}},
	})

	if got := d.Collect(unknownSnap()); len(got) != 0 {
		t.Errorf("ineligible strategy produced %d proposals", len(got))
	}
}

func TestCollectSurvivesPanic(t *testing.T) {
	d := NewDispatcher([]strategy.Strategy{
		&stubStrategy{name: "broken", regimes: []regime.Regime{regime.Unknown}, panicked: true},
		&stubStrategy{name: "healthy", regimes: []regime.Regime{regime.Unknown}, batch: []strategy.Proposal{validProposal("healthy")}},
	})

	got := d.Collect(unknownSnap())
	if len(got) != 1 || got[0].StrategyID != "healthy" {
		t.Errorf("collect after panic = %v, want only healthy's proposal", got)
	}
}

func TestCollectDropsInvalidProposals(t *testing.T) {
	// Stop on the wrong side of entry.
	bad := validProposal("bad")
	bad.Stop = decimal.NewFromInt(101)

	d := NewDispatcher([]strategy.Strategy{
		&stubStrategy{name: "bad", regimes: []regime.Regime{regime.Unknown}, batch: []strategy.Proposal{bad}},
	})

	if got := d.Collect(unknownSnap()); len(got) != 0 {
		t.Errorf("invalid proposal passed through: %v", got)
	}
}

func TestNames(t *testing.T) {
	d := NewDispatcher([]strategy.Strategy{
		&stubStrategy{name: "a"},
		&stubStrategy{name: "b"},
	})
	names := d.Names()
	if len(names) != 2 || names[0] != "a" || names[1] != "b" {
		t.Errorf("names = %v, want [a b]", names)
	}
}
