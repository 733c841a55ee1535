package strategy

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/quantarch/medusa/regime"
	"github.com/quantarch/medusa/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// EVENT VOLATILITY - Trades the move after scheduled macro releases
// ═══════════════════════════════════════════════════════════════════════════════
//
// Scheduled releases (NFP, CPI, FOMC) have unknown direction but
// predictable magnitude. The macro-calendar adapter emits a directional
// signal once the post-release move resolves; this strategy takes that
// direction with a 2:1 target. Events override regime, so it is
// eligible everywhere, including Unknown.
//
// ═══════════════════════════════════════════════════════════════════════════════

const EventVolName = "event_volatility"

// EventVol trades rate-sensitive macro assets around releases.
type EventVol struct {
	assets        []string
	minConfidence float64
	minDirection  float64
	baseNotional  decimal.Decimal
}

func NewEventVol(baseNotional decimal.Decimal) *EventVol {
	return &EventVol{
		assets:        []string{"SPY", "TLT", "GLD"},
		minConfidence: 0.6,
		minDirection:  0.3,
		baseNotional:  baseNotional,
	}
}

func (s *EventVol) Name() string { return EventVolName }

// Regimes: all of them. A macro print trumps whatever state the tape
// was in beforehand.
func (s *EventVol) Regimes() []regime.Regime {
	return []regime.Regime{
		regime.Unknown, regime.TrendingUp, regime.TrendingDown,
		regime.MeanReverting, regime.HighVolExpansion,
		regime.Crash, regime.Recovery,
	}
}

func (s *EventVol) Propose(snap Snapshot) []Proposal {
	var out []Proposal
	for _, asset := range s.assets {
		score := snap.Score(asset)
		if score.Confidence < s.minConfidence {
			continue
		}
		price := snap.Price(asset)
		if price.IsZero() {
			continue
		}

		rationale := fmt.Sprintf("post-event move: %s net=%+.2f", score.DominantSource, score.NetDirection)
		requested := s.baseNotional.Mul(decimal.NewFromFloat(score.Confidence))

		// Tight 1% stop, 2% target: event moves either follow through
		// fast or fail fast.
		switch {
		case score.NetDirection > s.minDirection:
			out = append(out, NewProposal(
				s.Name(), asset, types.Long,
				price, pctOff(price, -0.01), pctOff(price, 0.02),
				score.Confidence, requested, rationale,
			))
		case score.NetDirection < -s.minDirection:
			out = append(out, NewProposal(
				s.Name(), asset, types.Short,
				price, pctOff(price, 0.01), pctOff(price, -0.02),
				score.Confidence, requested, rationale,
			))
		}
	}
	return out
}
