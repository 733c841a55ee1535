package strategy

import (
	"github.com/shopspring/decimal"

	"github.com/quantarch/medusa/regime"
	"github.com/quantarch/medusa/signal"
	"github.com/quantarch/medusa/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// STRATEGY INTERFACE - Plug-in pattern for strategies
// ═══════════════════════════════════════════════════════════════════════════════
//
// All strategies implement the same contract:
//   Propose(Snapshot) []Proposal
//
// A strategy is a pure function over the cycle snapshot. Zero proposals
// is the normal case, not an error. Strategies never execute, never
// size and never touch risk state - they only propose.
//
// ═══════════════════════════════════════════════════════════════════════════════

// Snapshot is the immutable per-cycle input shared by all strategies.
type Snapshot struct {
	Scores map[string]signal.AggregatedScore
	Regime regime.State
	Prices map[string]decimal.Decimal
}

// Score is a nil-safe lookup.
func (s Snapshot) Score(asset string) signal.AggregatedScore {
	return s.Scores[asset]
}

// Price returns the entry price for an asset, or zero if unpriced.
func (s Snapshot) Price(asset string) decimal.Decimal {
	return s.Prices[asset]
}

// Strategy is the interface all trading strategies implement.
type Strategy interface {
	// Name returns the strategy identifier.
	Name() string

	// Regimes returns the regimes in which the strategy may propose.
	Regimes() []regime.Regime

	// Propose emits zero or more trade proposals for the cycle.
	Propose(snap Snapshot) []Proposal
}

// EligibleIn reports whether a strategy declared the given regime.
func EligibleIn(s Strategy, r regime.Regime) bool {
	for _, eligible := range s.Regimes() {
		if eligible == r {
			return true
		}
	}
	return false
}

// Proposal is a strategy's candidate trade before risk sizing.
type Proposal struct {
	StrategyID        string
	Asset             string
	Direction         types.Direction
	Entry             decimal.Decimal
	Stop              decimal.Decimal
	Target            decimal.Decimal
	Confidence        float64
	RewardToRisk      float64
	RequestedNotional decimal.Decimal
	Rationale         string
}

// NewProposal fills in the reward-to-risk ratio from the price levels.
func NewProposal(strategyID, asset string, dir types.Direction, entry, stop, target decimal.Decimal, confidence float64, requested decimal.Decimal, rationale string) Proposal {
	return Proposal{
		StrategyID:        strategyID,
		Asset:             asset,
		Direction:         dir,
		Entry:             entry,
		Stop:              stop,
		Target:            target,
		Confidence:        confidence,
		RewardToRisk:      rewardToRisk(entry, stop, target),
		RequestedNotional: requested,
		Rationale:         rationale,
	}
}

// Valid checks the proposal is structurally tradeable: stop on the
// losing side of entry, target on the winning side.
func (p Proposal) Valid() bool {
	if p.Asset == "" || p.Entry.IsZero() || p.Stop.IsZero() || p.Target.IsZero() {
		return false
	}
	if p.Direction == types.Long {
		return p.Stop.LessThan(p.Entry) && p.Target.GreaterThan(p.Entry)
	}
	return p.Stop.GreaterThan(p.Entry) && p.Target.LessThan(p.Entry)
}

func rewardToRisk(entry, stop, target decimal.Decimal) float64 {
	risk := entry.Sub(stop).Abs()
	if risk.IsZero() {
		return 0
	}
	reward := target.Sub(entry).Abs()
	rr, _ := reward.Div(risk).Float64()
	return rr
}

// pctOff returns price * (1 + pct) as a decimal, pct given in float.
func pctOff(price decimal.Decimal, pct float64) decimal.Decimal {
	return price.Mul(decimal.NewFromFloat(1 + pct))
}
