package strategy

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/quantarch/medusa/regime"
	"github.com/quantarch/medusa/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// NARRATIVE SHOCK - Panic-and-correction cycles around disruption news
// ═══════════════════════════════════════════════════════════════════════════════
//
// A disruption narrative (an AI launch gutting a software vertical)
// plays out in two phases: indiscriminate panic selling of the sector,
// then an overreaction correction in quality names. Phase one shorts
// the sector proxy; phase two buys the punished-but-sound names at a
// discount.
//
// ═══════════════════════════════════════════════════════════════════════════════

const NarrativeShockName = "narrative_shock"

// NarrativeShock trades the software sector proxy and quality names.
type NarrativeShock struct {
	sectorProxy  string
	qualityNames []string
	baseNotional decimal.Decimal
}

func NewNarrativeShock(baseNotional decimal.Decimal) *NarrativeShock {
	return &NarrativeShock{
		sectorProxy:  "IGV",
		qualityNames: []string{"MSFT", "CRM", "ADBE", "SHOP"},
		baseNotional: baseNotional,
	}
}

func (s *NarrativeShock) Name() string { return NarrativeShockName }

func (s *NarrativeShock) Regimes() []regime.Regime {
	return []regime.Regime{
		regime.TrendingDown, regime.HighVolExpansion, regime.Recovery,
	}
}

func (s *NarrativeShock) Propose(snap Snapshot) []Proposal {
	sector := snap.Score(s.sectorProxy)
	sectorPrice := snap.Price(s.sectorProxy)
	if sectorPrice.IsZero() {
		return nil
	}

	var out []Proposal

	// Phase 1: active sector selloff. Short the proxy.
	if sector.NetDirection < -0.3 && sector.Confidence > 0.5 {
		out = append(out, NewProposal(
			s.Name(), s.sectorProxy, types.Short,
			sectorPrice, pctOff(sectorPrice, 0.05), pctOff(sectorPrice, -0.15),
			sector.Confidence,
			s.baseNotional.Mul(decimal.NewFromFloat(sector.Confidence)),
			fmt.Sprintf("sector panic: net=%+.2f signals=%d", sector.NetDirection, sector.SignalCount),
		))
	}

	// Phase 2: narrative turning. Buy the quality names that got sold
	// with the sector, at a discounted bid with haircut confidence.
	if sector.NetDirection > 0.1 && sector.Confidence > 0.4 {
		for _, asset := range s.qualityNames {
			price := snap.Price(asset)
			if price.IsZero() {
				continue
			}
			conf := sector.Confidence * 0.8
			entry := pctOff(price, -0.01)
			out = append(out, NewProposal(
				s.Name(), asset, types.Long,
				entry, pctOff(price, -0.07), pctOff(price, 0.12),
				conf,
				s.baseNotional.Mul(decimal.NewFromFloat(conf)),
				"quality name oversold on sector narrative, panic reversing",
			))
		}
	}

	return out
}
