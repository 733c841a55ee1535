package core

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/quantarch/medusa/metrics"
	"github.com/quantarch/medusa/strategy"
)

// ═══════════════════════════════════════════════════════════════════════════════
// DISPATCHER - Fans the cycle snapshot out to all strategies
// ═══════════════════════════════════════════════════════════════════════════════
//
// Strategies run concurrently over the same immutable snapshot. A panic
// in one strategy costs that strategy's proposals for the cycle, never
// the cycle itself. Collected proposals are returned in a fixed
// strategy order so downstream ranking stays deterministic.
//
// ═══════════════════════════════════════════════════════════════════════════════

type Dispatcher struct {
	strategies []strategy.Strategy
}

// NewDispatcher keeps the given strategy order for deterministic output.
func NewDispatcher(strategies []strategy.Strategy) *Dispatcher {
	return &Dispatcher{strategies: strategies}
}

// Strategies returns the registered strategies in dispatch order.
func (d *Dispatcher) Strategies() []strategy.Strategy { return d.strategies }

// Names returns the strategy identifiers in dispatch order.
func (d *Dispatcher) Names() []string {
	names := make([]string, len(d.strategies))
	for i, s := range d.strategies {
		names[i] = s.Name()
	}
	return names
}

// Collect runs every eligible strategy against the snapshot and gathers
// the proposals. Blocks until all strategies return.
func (d *Dispatcher) Collect(snap strategy.Snapshot) []strategy.Proposal {
	results := make([][]strategy.Proposal, len(d.strategies))

	var wg sync.WaitGroup
	for i, strat := range d.strategies {
		if !strategy.EligibleIn(strat, snap.Regime.Regime) {
			continue
		}
		wg.Add(1)
		go func(i int, strat strategy.Strategy) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					log.Error().
						Str("strategy", strat.Name()).
						Interface("panic", r).
						Msg("Strategy panicked, proposals dropped for cycle")
				}
			}()
			results[i] = strat.Propose(snap)
		}(i, strat)
	}
	wg.Wait()

	var proposals []strategy.Proposal
	for i, batch := range results {
		for _, p := range batch {
			if !p.Valid() {
				log.Warn().
					Str("strategy", d.strategies[i].Name()).
					Str("asset", p.Asset).
					Msg("Invalid proposal dropped")
				continue
			}
			proposals = append(proposals, p)
		}
		if len(batch) > 0 {
			metrics.ProposalsTotal.WithLabelValues(d.strategies[i].Name()).Add(float64(len(batch)))
		}
	}
	return proposals
}
