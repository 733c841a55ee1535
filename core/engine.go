package core

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/quantarch/medusa/metrics"
	"github.com/quantarch/medusa/position"
	"github.com/quantarch/medusa/regime"
	"github.com/quantarch/medusa/risk"
	"github.com/quantarch/medusa/signal"
	"github.com/quantarch/medusa/strategy"
	"github.com/quantarch/medusa/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// ENGINE - Central orchestrator
// ═══════════════════════════════════════════════════════════════════════════════
//
// Flow, once per cycle:
//   Purge/Snapshot signals → Regime update → Strategies (concurrent) →
//   Rank → Risk (sequential) → Broker → Position lifecycle → Weights
//
// The position lifecycle runs every cycle regardless of whether any
// proposal survived. An overrunning cycle drops the missed tick; cycles
// are never queued.
//
// ═══════════════════════════════════════════════════════════════════════════════

// PriceSource supplies entry prices and the history the regime features
// are computed from. Implemented by the feeds package.
type PriceSource interface {
	Price(asset string) (decimal.Decimal, bool)
	History(asset string, n int) []float64
}

// Executor submits approved orders. Implemented by the broker package.
type Executor interface {
	Submit(order types.Order) (types.Fill, error)
}

// Notifier receives pipeline events (Telegram). All methods must be
// non-blocking; the engine never waits on a notification.
type Notifier interface {
	NotifyApproved(p strategy.Proposal, sized decimal.Decimal)
	NotifyRejected(p strategy.Proposal, reason, detail string)
	NotifyKillSwitch(dailyPnL decimal.Decimal)
	NotifyClosed(o types.Outcome, pos types.Position)
	NotifyUnpriceable(pos types.Position)
}

// Journal persists fills, closes and risk state. Implemented by the
// storage package.
type Journal interface {
	RecordOpen(pos types.Position) error
	RecordClose(o types.Outcome, pos types.Position) error
	SaveRiskState(st risk.State) error
}

// Config holds the engine cadence knobs.
type Config struct {
	CycleInterval  time.Duration // decision cadence
	RecomputeEvery int           // weight recompute period, in cycles
	RegimeAsset    string        // reference asset for regime features
	HistoryBars    int           // bars of history pulled per cycle
}

// DefaultConfig runs a 60s cycle keyed off SPY.
func DefaultConfig() Config {
	return Config{
		CycleInterval:  60 * time.Second,
		RecomputeEvery: 10,
		RegimeAsset:    "SPY",
		HistoryBars:    90,
	}
}

type Engine struct {
	cfg        Config
	agg        *signal.Aggregator
	detector   *regime.Detector
	feed       PriceSource
	dispatcher *Dispatcher
	ranker     *strategy.Ranker
	weights    *strategy.WeightTracker
	riskMgr    *risk.Manager
	book       *position.Manager
	executor   Executor
	universe   *Universe

	notifier Notifier
	journal  Journal

	mu           sync.RWMutex
	running      bool
	cycleCount   int
	lastSnapshot Snapshot
	killNotified bool
}

// NewEngine wires the pipeline together and hooks the position
// lifecycle callbacks into risk, weights, storage and notifications.
func NewEngine(
	cfg Config,
	agg *signal.Aggregator,
	detector *regime.Detector,
	feed PriceSource,
	dispatcher *Dispatcher,
	ranker *strategy.Ranker,
	weights *strategy.WeightTracker,
	riskMgr *risk.Manager,
	book *position.Manager,
	executor Executor,
	universe *Universe,
) *Engine {
	e := &Engine{
		cfg:        cfg,
		agg:        agg,
		detector:   detector,
		feed:       feed,
		dispatcher: dispatcher,
		ranker:     ranker,
		weights:    weights,
		riskMgr:    riskMgr,
		book:       book,
		executor:   executor,
		universe:   universe,
	}
	book.OnClose(e.onPositionClosed)
	book.OnUnpriceable(e.onUnpriceable)
	return e
}

// SetNotifier attaches the event notifier. Optional.
func (e *Engine) SetNotifier(n Notifier) { e.notifier = n }

// SetJournal attaches the persistence journal. Optional.
func (e *Engine) SetJournal(j Journal) { e.journal = j }

// Run drives the decision loop until the context is cancelled. The
// first cycle fires immediately rather than one interval in.
func (e *Engine) Run(ctx context.Context) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return errors.New("engine already running")
	}
	e.running = true
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
	}()

	log.Info().
		Dur("interval", e.cfg.CycleInterval).
		Str("regime_asset", e.cfg.RegimeAsset).
		Int("strategies", len(e.dispatcher.Strategies())).
		Msg("⚡ Engine started")

	e.runCycle()

	ticker := time.NewTicker(e.cfg.CycleInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Engine stopped")
			return ctx.Err()
		case <-ticker.C:
			// Ticker drops missed ticks while a slow cycle holds the
			// loop, so overruns skip rather than queue.
			e.runCycle()
		}
	}
}

func (e *Engine) runCycle() {
	start := time.Now()
	now := start.UTC()

	e.agg.PurgeExpired(now)
	scores := e.agg.Snapshot(now)
	prices := e.collectPrices()
	state := e.updateRegime(now)

	snap := strategy.Snapshot{Scores: scores, Regime: state, Prices: prices}
	proposals := e.dispatcher.Collect(snap)
	ranked := e.ranker.Rank(proposals, e.weights.Weights())

	for _, p := range ranked {
		if !e.universe.Tradable(p.Asset) {
			continue
		}
		if halted := e.evaluateAndExecute(p); halted {
			break
		}
	}

	// Lifecycle runs even when nothing was proposed or approved.
	e.book.Tick(feedPricer{e.feed})

	e.mu.Lock()
	e.cycleCount++
	cycle := e.cycleCount
	e.mu.Unlock()

	if e.cfg.RecomputeEvery > 0 && cycle%e.cfg.RecomputeEvery == 0 {
		e.weights.Recompute()
	}

	e.publishSnapshot(now, cycle, scores, state)

	elapsed := time.Since(start)
	metrics.CyclesTotal.Inc()
	metrics.CycleDuration.Observe(elapsed.Seconds())
	if elapsed > e.cfg.CycleInterval {
		log.Warn().
			Dur("elapsed", elapsed).
			Dur("interval", e.cfg.CycleInterval).
			Msg("Cycle overran interval, next tick will be skipped")
	}

	log.Debug().
		Int("cycle", cycle).
		Str("regime", state.Regime.String()).
		Int("scored_assets", len(scores)).
		Int("proposals", len(proposals)).
		Int("open_positions", e.book.Count()).
		Dur("elapsed", elapsed).
		Msg("Cycle complete")
}

// evaluateAndExecute runs one ranked proposal through risk and, if
// approved, out to the broker. Returns true when risk accounting has
// halted and the remaining proposals should be abandoned.
func (e *Engine) evaluateAndExecute(p strategy.Proposal) bool {
	vol := regime.DailyVol(e.feed.History(p.Asset, 30))

	decision, err := e.riskMgr.Evaluate(p, vol)
	if err != nil {
		log.Error().Err(err).Str("strategy", p.StrategyID).Msg("🛑 Risk evaluation failed")
		return errors.Is(err, risk.ErrHalted)
	}

	if !decision.Approved {
		metrics.TradesRejected.WithLabelValues(string(decision.Reason)).Inc()
		log.Info().
			Str("strategy", p.StrategyID).
			Str("asset", p.Asset).
			Str("reason", string(decision.Reason)).
			Str("detail", decision.Detail).
			Msg("Proposal rejected")
		if e.notifier != nil {
			e.notifier.NotifyRejected(p, string(decision.Reason), decision.Detail)
		}
		if decision.Reason == risk.ReasonKillSwitch {
			e.notifyKillSwitch()
		}
		return false
	}

	order := types.Order{
		ID:        uuid.NewString(),
		Asset:     p.Asset,
		Direction: p.Direction,
		Price:     p.Entry,
		Notional:  decision.SizedNotional,
		Strategy:  p.StrategyID,
	}
	fill, err := e.executor.Submit(order)
	if err != nil {
		// Reserved exposure goes back; the trade never happened.
		metrics.OrdersSubmitted.WithLabelValues("failed").Inc()
		log.Error().Err(err).Str("asset", p.Asset).Msg("Order failed, releasing exposure")
		if relErr := e.riskMgr.ReleaseExposure(p.Asset, decision.SizedNotional); relErr != nil {
			log.Error().Err(relErr).Msg("🛑 Exposure release failed")
		}
		return false
	}
	metrics.OrdersSubmitted.WithLabelValues("filled").Inc()
	metrics.TradesApproved.WithLabelValues(p.StrategyID, p.Asset).Inc()

	entry := fill.Price
	if entry.IsZero() {
		entry = p.Entry
	}
	notional := decision.SizedNotional
	if fill.Notional.IsPositive() && fill.Notional.LessThan(notional) {
		// Partial fill: give back what the broker did not take.
		unfilled := notional.Sub(fill.Notional)
		if relErr := e.riskMgr.ReleaseExposure(p.Asset, unfilled); relErr != nil {
			log.Error().Err(relErr).Msg("🛑 Exposure release failed")
		}
		notional = fill.Notional
	}

	pos := e.book.Open(p.Asset, p.Direction, entry, p.Stop, p.Target, notional, p.StrategyID, true)

	if e.journal != nil {
		if err := e.journal.RecordOpen(pos); err != nil {
			log.Error().Err(err).Msg("Journal write failed")
		}
	}
	if e.notifier != nil {
		e.notifier.NotifyApproved(p, notional)
	}
	return false
}

// onPositionClosed is the lifecycle callback: exposure back to the
// ledger, outcome into risk and strategy weights, then persistence and
// notification.
func (e *Engine) onPositionClosed(o types.Outcome, pos types.Position) {
	if err := e.riskMgr.ReleaseExposure(pos.Asset, pos.Notional); err != nil {
		log.Error().Err(err).Str("asset", pos.Asset).Msg("🛑 Exposure release failed")
	}
	e.riskMgr.RecordOutcome(o)
	e.weights.RecordOutcome(o)

	if e.journal != nil {
		if err := e.journal.RecordClose(o, pos); err != nil {
			log.Error().Err(err).Msg("Journal write failed")
		}
	}
	if e.notifier != nil {
		e.notifier.NotifyClosed(o, pos)
	}
	if e.riskMgr.KillSwitchTripped() {
		e.notifyKillSwitch()
	}
}

func (e *Engine) onUnpriceable(pos types.Position) {
	if e.notifier != nil {
		e.notifier.NotifyUnpriceable(pos)
	}
}

// notifyKillSwitch fires the alert once per trip, not once per
// rejected proposal.
func (e *Engine) notifyKillSwitch() {
	e.mu.Lock()
	already := e.killNotified
	e.killNotified = true
	e.mu.Unlock()
	if already {
		return
	}
	st := e.riskMgr.Snapshot()
	log.Error().
		Str("daily_pnl", st.DailyRealizedPnL.StringFixed(2)).
		Msg("🚨 KILL SWITCH - no new trades until next trading day")
	if e.notifier != nil {
		e.notifier.NotifyKillSwitch(st.DailyRealizedPnL)
	}
}

func (e *Engine) collectPrices() map[string]decimal.Decimal {
	prices := make(map[string]decimal.Decimal)
	for _, symbol := range e.universe.Symbols() {
		if px, ok := e.feed.Price(symbol); ok && px.IsPositive() {
			prices[symbol] = px
		}
	}
	return prices
}

// updateRegime recomputes features from the reference asset. A history
// gap keeps the current state rather than resetting the one-step
// memory to Unknown.
func (e *Engine) updateRegime(now time.Time) regime.State {
	hist := e.feed.History(e.cfg.RegimeAsset, e.cfg.HistoryBars)
	feats, ok := regime.ComputeFeatures(hist)
	if !ok {
		return e.detector.Current()
	}
	state := e.detector.Update(feats, now)
	metrics.RegimeCode.Set(float64(state.Regime))
	return state
}

// feedPricer adapts the engine's PriceSource to the position manager.
type feedPricer struct {
	feed PriceSource
}

func (f feedPricer) Price(asset string) (decimal.Decimal, bool) {
	return f.feed.Price(asset)
}
