package strategy

import "sort"

// ═══════════════════════════════════════════════════════════════════════════════
// RANKER - Orders proposals by expected value
// ═══════════════════════════════════════════════════════════════════════════════

// Ranker sorts proposals by confidence × reward:risk × strategy weight.
// Ties break on a fixed strategy priority order so the ranking is
// deterministic and testable.
type Ranker struct {
	priority map[string]int
	topK     int
}

// NewRanker takes the configured strategy priority order (highest
// priority first) and the per-cycle forwarding cap.
func NewRanker(priorityOrder []string, topK int) *Ranker {
	prio := make(map[string]int, len(priorityOrder))
	for i, name := range priorityOrder {
		prio[name] = i
	}
	return &Ranker{priority: prio, topK: topK}
}

// Score is the ranking key for one proposal under the given weights.
func (r *Ranker) Score(p Proposal, weights map[string]float64) float64 {
	w, ok := weights[p.StrategyID]
	if !ok {
		w = 1.0
	}
	return p.Confidence * p.RewardToRisk * w
}

// Rank returns the top-K proposals in descending expected value.
// Stable: equal scores keep priority order, and repeated calls on the
// same inputs return the same order.
func (r *Ranker) Rank(proposals []Proposal, weights map[string]float64) []Proposal {
	ranked := make([]Proposal, len(proposals))
	copy(ranked, proposals)

	sort.SliceStable(ranked, func(i, j int) bool {
		si, sj := r.Score(ranked[i], weights), r.Score(ranked[j], weights)
		if si != sj {
			return si > sj
		}
		return r.prio(ranked[i].StrategyID) < r.prio(ranked[j].StrategyID)
	})

	if r.topK > 0 && len(ranked) > r.topK {
		ranked = ranked[:r.topK]
	}
	return ranked
}

func (r *Ranker) prio(strategyID string) int {
	if p, ok := r.priority[strategyID]; ok {
		return p
	}
	return len(r.priority)
}
