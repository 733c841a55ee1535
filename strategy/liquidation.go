package strategy

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/quantarch/medusa/regime"
	"github.com/quantarch/medusa/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// LIQUIDATION FLOW - Rides forced-liquidation cascades in crypto
// ═══════════════════════════════════════════════════════════════════════════════
//
// When leveraged positions cluster at predictable levels, forced
// liquidations create mechanical cascades. The funding-rate and
// open-interest adapters feed the aggregator; this strategy positions
// WITH the cascade once enough sources corroborate.
//
// ═══════════════════════════════════════════════════════════════════════════════

const LiquidationFlowName = "liquidation_flow"

// LiquidationFlow trades BTC and ETH off liquidation mechanics.
type LiquidationFlow struct {
	assets        []string
	minConfidence float64
	minSignals    int
	baseNotional  decimal.Decimal
}

// NewLiquidationFlow uses crypto-scale stops: 1.5% stop, 4% target.
func NewLiquidationFlow(baseNotional decimal.Decimal) *LiquidationFlow {
	return &LiquidationFlow{
		assets:        []string{"BTC", "ETH"},
		minConfidence: 0.5,
		minSignals:    2,
		baseNotional:  baseNotional,
	}
}

func (s *LiquidationFlow) Name() string { return LiquidationFlowName }

func (s *LiquidationFlow) Regimes() []regime.Regime {
	return []regime.Regime{
		regime.HighVolExpansion, regime.Crash,
		regime.TrendingDown, regime.TrendingUp,
	}
}

func (s *LiquidationFlow) Propose(snap Snapshot) []Proposal {
	var out []Proposal
	for _, asset := range s.assets {
		score := snap.Score(asset)
		if score.Confidence < s.minConfidence || score.SignalCount < s.minSignals {
			continue
		}
		price := snap.Price(asset)
		if price.IsZero() {
			continue
		}

		rationale := fmt.Sprintf("liquidation cascade: %s net=%+.2f signals=%d",
			score.DominantSource, score.NetDirection, score.SignalCount)
		requested := s.baseNotional.Mul(decimal.NewFromFloat(score.Confidence))

		switch {
		case score.NetDirection > 0.2:
			out = append(out, NewProposal(
				s.Name(), asset, types.Long,
				price, pctOff(price, -0.015), pctOff(price, 0.04),
				score.Confidence, requested, rationale,
			))
		case score.NetDirection < -0.2:
			out = append(out, NewProposal(
				s.Name(), asset, types.Short,
				price, pctOff(price, 0.015), pctOff(price, -0.04),
				score.Confidence, requested, rationale,
			))
		}
	}
	return out
}
