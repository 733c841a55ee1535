package core

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/quantarch/medusa/position"
	"github.com/quantarch/medusa/regime"
	"github.com/quantarch/medusa/risk"
	"github.com/quantarch/medusa/signal"
	"github.com/quantarch/medusa/strategy"
	"github.com/quantarch/medusa/types"
)

// stubFeed serves fixed prices and history.
type stubFeed struct {
	prices map[string]decimal.Decimal
	hist   map[string][]float64
}

func (f *stubFeed) Price(asset string) (decimal.Decimal, bool) {
	v, ok := f.prices[asset]
	return v, ok
}

func (f *stubFeed) History(asset string, n int) []float64 {
	h := f.hist[asset]
	if len(h) > n {
		h = h[len(h)-n:]
	}
	return h
}

// stubExecutor fills at the order price, or fails on demand.
type stubExecutor struct {
	orders  []types.Order
	fail    bool
	partial decimal.Decimal // nonzero = fill only this much notional
}

func (x *stubExecutor) Submit(order types.Order) (types.Fill, error) {
	if x.fail {
		return types.Fill{}, errors.New("broker unavailable")
	}
	x.orders = append(x.orders, order)
	notional := order.Notional
	if x.partial.IsPositive() {
		notional = x.partial
	}
	return types.Fill{OrderID: order.ID, Price: order.Price, Notional: notional}, nil
}

// fireOnce proposes on the first cycle only, so later cycles exercise
// the lifecycle path without stacking new entries.
type fireOnce struct {
	proposal strategy.Proposal
	fired    bool
}

func (s *fireOnce) Name() string             { return s.proposal.StrategyID }
func (s *fireOnce) Regimes() []regime.Regime { return []regime.Regime{regime.Unknown} }
func (s *fireOnce) Propose(strategy.Snapshot) []strategy.Proposal {
	if s.fired {
		return nil
	}
	s.fired = true
	return []strategy.Proposal{s.proposal}
}

type recordingNotifier struct {
	approved    int
	rejected    int
	killSwitch  int
	closed      int
	unpriceable int
}

func (n *recordingNotifier) NotifyApproved(strategy.Proposal, decimal.Decimal)  { n.approved++ }
func (n *recordingNotifier) NotifyRejected(strategy.Proposal, string, string)   { n.rejected++ }
func (n *recordingNotifier) NotifyKillSwitch(decimal.Decimal)                   { n.killSwitch++ }
func (n *recordingNotifier) NotifyClosed(types.Outcome, types.Position)         { n.closed++ }
func (n *recordingNotifier) NotifyUnpriceable(types.Position)                   { n.unpriceable++ }

func btcProposal() strategy.Proposal {
	return strategy.NewProposal(
		"stub", "BTC", types.Long,
		decimal.NewFromInt(50000), decimal.NewFromFloat(49250), decimal.NewFromInt(52000),
		1.0, decimal.Zero, "",
	)
}

// flatHistory classifies as UNKNOWN, which the stub strategies declare.
func flatHistory() []float64 {
	h := make([]float64, 60)
	for i := range h {
		h[i] = 400
	}
	return h
}

type harness struct {
	engine   *Engine
	feed     *stubFeed
	executor *stubExecutor
	riskMgr  *risk.Manager
	book     *position.Manager
	weights  *strategy.WeightTracker
	notifier *recordingNotifier
}

func newHarness(strat strategy.Strategy, executor *stubExecutor) *harness {
	feed := &stubFeed{
		prices: map[string]decimal.Decimal{
			"BTC": decimal.NewFromInt(50000),
			"SPY": decimal.NewFromInt(400),
		},
		hist: map[string][]float64{"SPY": flatHistory()},
	}
	riskMgr := risk.NewManager(decimal.NewFromInt(100000), risk.DefaultLimits())
	dispatcher := NewDispatcher([]strategy.Strategy{strat})
	weights := strategy.NewWeightTracker(dispatcher.Names())
	book := position.NewManager()
	universe := NewUniverse()
	universe.Add(Asset{Symbol: "BTC", Tradable: true})
	universe.Add(Asset{Symbol: "SPY", Tradable: true})
	notifier := &recordingNotifier{}

	engine := NewEngine(DefaultConfig(),
		signal.NewAggregator(),
		regime.NewDetector(regime.DefaultThresholds()),
		feed, dispatcher,
		strategy.NewRanker(dispatcher.Names(), 0),
		weights, riskMgr, book, executor, universe)
	engine.SetNotifier(notifier)

	return &harness{engine: engine, feed: feed, executor: executor, riskMgr: riskMgr, book: book, weights: weights, notifier: notifier}
}

func TestCycleOpensApprovedPosition(t *testing.T) {
	h := newHarness(&fireOnce{proposal: btcProposal()}, &stubExecutor{})
	h.engine.runCycle()

	if len(h.executor.orders) != 1 {
		t.Fatalf("orders = %d, want 1", len(h.executor.orders))
	}
	// Kelly wants more; the 3% per-position cap sizes it to 3000.
	if !h.executor.orders[0].Notional.Equal(decimal.NewFromInt(3000)) {
		t.Errorf("order notional = %s, want 3000", h.executor.orders[0].Notional)
	}
	if h.book.Count() != 1 {
		t.Fatalf("open positions = %d, want 1", h.book.Count())
	}

	st := h.riskMgr.Snapshot()
	if !st.OpenExposureTotal.Equal(decimal.NewFromInt(3000)) {
		t.Errorf("exposure = %s, want 3000", st.OpenExposureTotal)
	}
	if h.notifier.approved != 1 {
		t.Errorf("approved notifications = %d, want 1", h.notifier.approved)
	}

	snap := h.engine.Snapshot()
	if snap.Cycle != 1 || len(snap.Positions) != 1 {
		t.Errorf("snapshot cycle=%d positions=%d, want 1 and 1", snap.Cycle, len(snap.Positions))
	}
}

func TestCycleClosesAtTargetAndBooksOutcome(t *testing.T) {
	h := newHarness(&fireOnce{proposal: btcProposal()}, &stubExecutor{})
	h.engine.runCycle()

	// Next cycle the tape gaps through the target.
	h.feed.prices["BTC"] = decimal.NewFromInt(52000)
	h.engine.runCycle()

	if h.book.Count() != 0 {
		t.Fatalf("open positions = %d, want 0 after target", h.book.Count())
	}
	st := h.riskMgr.Snapshot()
	if !st.OpenExposureTotal.IsZero() {
		t.Errorf("exposure = %s, want 0 after close", st.OpenExposureTotal)
	}
	// 4% move on 3000 notional.
	if !st.Capital.Equal(decimal.NewFromInt(100120)) {
		t.Errorf("capital = %s, want 100120", st.Capital)
	}
	if h.notifier.closed != 1 {
		t.Errorf("close notifications = %d, want 1", h.notifier.closed)
	}
	if wr := h.weights.WinRate("stub"); wr != 1 {
		t.Errorf("win rate = %v, want 1", wr)
	}
}

func TestCycleReleasesExposureOnBrokerFailure(t *testing.T) {
	h := newHarness(&fireOnce{proposal: btcProposal()}, &stubExecutor{fail: true})
	h.engine.runCycle()

	if h.book.Count() != 0 {
		t.Error("position opened despite broker failure")
	}
	if st := h.riskMgr.Snapshot(); !st.OpenExposureTotal.IsZero() {
		t.Errorf("exposure = %s, want 0 after failed order", st.OpenExposureTotal)
	}
}

func TestCyclePartialFillKeepsOnlyFilledExposure(t *testing.T) {
	h := newHarness(&fireOnce{proposal: btcProposal()}, &stubExecutor{partial: decimal.NewFromInt(1000)})
	h.engine.runCycle()

	if h.book.Count() != 1 {
		t.Fatalf("open positions = %d, want 1", h.book.Count())
	}
	if got := h.book.Positions()[0].Notional; !got.Equal(decimal.NewFromInt(1000)) {
		t.Errorf("position notional = %s, want filled 1000", got)
	}
	if st := h.riskMgr.Snapshot(); !st.OpenExposureTotal.Equal(decimal.NewFromInt(1000)) {
		t.Errorf("exposure = %s, want 1000", st.OpenExposureTotal)
	}
}

func TestCycleSkipsNonTradableAsset(t *testing.T) {
	p := btcProposal()
	p.Asset = "GLD" // signal-only, not in the tradable set
	h := newHarness(&fireOnce{proposal: p}, &stubExecutor{})
	h.feed.prices["GLD"] = decimal.NewFromInt(180)

	h.engine.runCycle()
	if len(h.executor.orders) != 0 {
		t.Errorf("orders = %d, want 0 for non-tradable asset", len(h.executor.orders))
	}
}

func TestKillSwitchNotifiedOncePerTrip(t *testing.T) {
	// Propose every cycle so rejections repeat.
	strat := &stubStrategy{name: "stub", regimes: []regime.Regime{regime.Unknown}, batch: []strategy.Proposal{btcProposal()}}
	h := newHarness(strat, &stubExecutor{})

	// 6% daily loss trips the 5% switch before the first cycle.
	h.riskMgr.RecordOutcome(types.Outcome{StrategyID: "stub", Asset: "BTC", PnL: decimal.NewFromInt(-6000)})

	h.engine.runCycle()
	h.engine.runCycle()
	h.engine.runCycle()

	if h.notifier.rejected != 3 {
		t.Errorf("rejections = %d, want 3", h.notifier.rejected)
	}
	if h.notifier.killSwitch != 1 {
		t.Errorf("kill switch notifications = %d, want exactly 1", h.notifier.killSwitch)
	}
	if !h.engine.Snapshot().KillSwitch {
		t.Error("snapshot does not report the tripped switch")
	}
}

func TestCycleFlagsUnpriceablePosition(t *testing.T) {
	h := newHarness(&fireOnce{proposal: btcProposal()}, &stubExecutor{})
	h.engine.runCycle()

	// Feed drops BTC: position must survive, flagged, alert fired once.
	delete(h.feed.prices, "BTC")
	h.engine.runCycle()
	h.engine.runCycle()

	if h.book.Count() != 1 {
		t.Fatal("position closed during data gap")
	}
	if !h.book.Positions()[0].Unpriceable {
		t.Error("position not flagged unpriceable")
	}
	if h.notifier.unpriceable != 1 {
		t.Errorf("unpriceable notifications = %d, want 1", h.notifier.unpriceable)
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	h := newHarness(&fireOnce{proposal: btcProposal()}, &stubExecutor{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := h.engine.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Run returned %v, want context.Canceled", err)
	}
	// The first cycle fires before the loop observes cancellation.
	if h.engine.Snapshot().Cycle != 1 {
		t.Errorf("cycles = %d, want 1", h.engine.Snapshot().Cycle)
	}
}
