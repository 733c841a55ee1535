package strategy

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/quantarch/medusa/regime"
	"github.com/quantarch/medusa/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// CROSS-ASSET GRAPH - Assets signal each other's moves in advance
// ═══════════════════════════════════════════════════════════════════════════════
//
// Credit spreads lead risk appetite, bonds lead equities, vol structure
// leads everything. Most cycles this module proposes nothing - its
// adapters mostly enrich the aggregator for other strategies. The one
// direct trade is the risk-off bond rally.
//
// ═══════════════════════════════════════════════════════════════════════════════

const CrossAssetName = "cross_asset_graph"

// CrossAsset takes the duration trade when the graph turns risk-off.
type CrossAsset struct {
	bondProxy     string
	minConfidence float64
	minDirection  float64
	baseNotional  decimal.Decimal
}

func NewCrossAsset(baseNotional decimal.Decimal) *CrossAsset {
	return &CrossAsset{
		bondProxy:     "TLT",
		minConfidence: 0.5,
		minDirection:  0.3,
		baseNotional:  baseNotional,
	}
}

func (s *CrossAsset) Name() string { return CrossAssetName }

func (s *CrossAsset) Regimes() []regime.Regime {
	return []regime.Regime{
		regime.TrendingDown, regime.Crash, regime.HighVolExpansion,
	}
}

func (s *CrossAsset) Propose(snap Snapshot) []Proposal {
	score := snap.Score(s.bondProxy)
	if score.Confidence < s.minConfidence || score.NetDirection < s.minDirection {
		return nil
	}
	price := snap.Price(s.bondProxy)
	if price.IsZero() {
		return nil
	}

	return []Proposal{NewProposal(
		s.Name(), s.bondProxy, types.Long,
		price, pctOff(price, -0.03), pctOff(price, 0.05),
		score.Confidence,
		s.baseNotional.Mul(decimal.NewFromFloat(score.Confidence)),
		fmt.Sprintf("risk-off graph: bonds bid, net=%+.2f", score.NetDirection),
	)}
}
