package core

import (
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/quantarch/medusa/metrics"
	"github.com/quantarch/medusa/regime"
	"github.com/quantarch/medusa/risk"
	"github.com/quantarch/medusa/signal"
	"github.com/quantarch/medusa/types"
)

// Snapshot is the read-only engine state exported to the dashboard and
// the Telegram bot. Built once per cycle; consumers get copies.
type Snapshot struct {
	At         time.Time                         `json:"at"`
	Cycle      int                               `json:"cycle"`
	Regime     regime.State                      `json:"regime"`
	Scores     map[string]signal.AggregatedScore `json:"scores"`
	Positions  []types.Position                  `json:"positions"`
	Risk       risk.State                        `json:"risk"`
	Weights    map[string]float64                `json:"weights"`
	KillSwitch bool                              `json:"kill_switch"`
	Halted     bool                              `json:"halted"`
}

func (e *Engine) publishSnapshot(now time.Time, cycle int, scores map[string]signal.AggregatedScore, state regime.State) {
	riskState := e.riskMgr.Snapshot()
	tripped := e.riskMgr.KillSwitchTripped()

	snap := Snapshot{
		At:         now,
		Cycle:      cycle,
		Regime:     state,
		Scores:     scores,
		Positions:  e.book.Positions(),
		Risk:       riskState,
		Weights:    e.weights.Weights(),
		KillSwitch: tripped,
		Halted:     e.riskMgr.Halted(),
	}

	e.mu.Lock()
	e.lastSnapshot = snap
	if !tripped {
		// Daily reset cleared the switch; arm the alert again.
		e.killNotified = false
	}
	e.mu.Unlock()

	live := 0
	for _, score := range scores {
		live += score.SignalCount
	}
	metrics.SignalsLive.Set(float64(live))

	exposure, _ := riskState.OpenExposureTotal.Float64()
	pnl, _ := riskState.DailyRealizedPnL.Float64()
	metrics.OpenPositions.Set(float64(len(snap.Positions)))
	metrics.OpenExposure.Set(exposure)
	metrics.DailyPnL.Set(pnl)
	if tripped {
		metrics.KillSwitch.Set(1)
	} else {
		metrics.KillSwitch.Set(0)
	}

	if e.journal != nil {
		if err := e.journal.SaveRiskState(riskState); err != nil {
			log.Error().Err(err).Msg("Risk state persist failed")
		}
	}
}

// Snapshot returns the last published cycle state.
func (e *Engine) Snapshot() Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastSnapshot
}

// RiskState exposes the live risk ledger for display surfaces.
func (e *Engine) RiskState() risk.State { return e.riskMgr.Snapshot() }

// OpenPositions lists the open book for display surfaces.
func (e *Engine) OpenPositions() []types.PositionRecord {
	positions := e.book.Positions()
	out := make([]types.PositionRecord, 0, len(positions))
	for _, pos := range positions {
		out = append(out, types.PositionRecord{
			Asset:      pos.Asset,
			Direction:  pos.Direction.String(),
			EntryPrice: pos.EntryPrice,
			Notional:   pos.Notional,
			Stop:       pos.Stop,
			Target:     pos.Target,
			OpenedAt:   pos.OpenedAt,
		})
	}
	return out
}

// Capital returns current capital from the risk ledger.
func (e *Engine) Capital() decimal.Decimal { return e.riskMgr.Snapshot().Capital }
