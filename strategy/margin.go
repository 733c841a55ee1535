package strategy

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/quantarch/medusa/regime"
	"github.com/quantarch/medusa/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// MARGIN FLOW - Metals margin hikes and physical-premium dislocations
// ═══════════════════════════════════════════════════════════════════════════════
//
// Exchange margin hikes force mechanical liquidation in metals; the
// gold/silver ratio mean-reverts; physical premium signals demand
// shifts. The metals adapter computes the ratio z-score and premium
// signals upstream - here we only read the aggregated view.
//
// ═══════════════════════════════════════════════════════════════════════════════

const MarginFlowName = "margin_flow"

// marginLevels holds per-asset stop/target distances. Silver runs about
// twice gold's volatility, so it gets the wider bracket.
type marginLevels struct {
	stopPct   float64
	targetPct float64
}

// MarginFlow trades GLD and SLV off margin and flow signals.
type MarginFlow struct {
	assets        []string
	levels        map[string]marginLevels
	minConfidence float64
	minDirection  float64
	baseNotional  decimal.Decimal
}

func NewMarginFlow(baseNotional decimal.Decimal) *MarginFlow {
	return &MarginFlow{
		assets: []string{"GLD", "SLV"},
		levels: map[string]marginLevels{
			"GLD": {stopPct: 0.03, targetPct: 0.06},
			"SLV": {stopPct: 0.05, targetPct: 0.10},
		},
		minConfidence: 0.55,
		minDirection:  0.25,
		baseNotional:  baseNotional,
	}
}

func (s *MarginFlow) Name() string { return MarginFlowName }

func (s *MarginFlow) Regimes() []regime.Regime {
	return []regime.Regime{
		regime.HighVolExpansion, regime.Crash,
		regime.Recovery, regime.MeanReverting,
	}
}

func (s *MarginFlow) Propose(snap Snapshot) []Proposal {
	var out []Proposal
	for _, asset := range s.assets {
		lv := s.levels[asset]
		score := snap.Score(asset)
		if score.Confidence < s.minConfidence {
			continue
		}
		price := snap.Price(asset)
		if price.IsZero() {
			continue
		}

		rationale := fmt.Sprintf("metals flow: %s net=%+.2f", score.DominantSource, score.NetDirection)
		requested := s.baseNotional.Mul(decimal.NewFromFloat(score.Confidence))

		switch {
		case score.NetDirection > s.minDirection:
			out = append(out, NewProposal(
				s.Name(), asset, types.Long,
				price, pctOff(price, -lv.stopPct), pctOff(price, lv.targetPct),
				score.Confidence, requested, rationale,
			))
		case score.NetDirection < -s.minDirection:
			out = append(out, NewProposal(
				s.Name(), asset, types.Short,
				price, pctOff(price, lv.stopPct), pctOff(price, -lv.targetPct),
				score.Confidence, requested, rationale,
			))
		}
	}
	return out
}
