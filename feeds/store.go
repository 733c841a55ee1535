package feeds

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// ═══════════════════════════════════════════════════════════════════════════════
// PRICE STORE - Latest prices plus rolling bar history per asset
// ═══════════════════════════════════════════════════════════════════════════════
//
// All feed adapters write here; the engine reads from here. History is
// a fixed-cadence close series in a ring buffer: within a bar the live
// price overwrites the latest close, on bar roll a new slot opens.
// Feeds seed long history with Backfill so regime features have enough
// bars from the first cycle.
//
// ═══════════════════════════════════════════════════════════════════════════════

const (
	defaultHistoryCap  = 500
	defaultBarInterval = 24 * time.Hour
)

// staleAfter marks a price as unusable once the feed stops updating it.
const staleAfter = 10 * time.Minute

type series struct {
	last      decimal.Decimal
	lastAt    time.Time
	bars      []float64
	barCount  int
	barOpened time.Time
}

// PriceStore is the shared price cache. Safe for concurrent use.
type PriceStore struct {
	mu          sync.RWMutex
	series      map[string]*series
	historyCap  int
	barInterval time.Duration
	now         func() time.Time
}

// NewPriceStore creates a store with daily bars and the default depth.
func NewPriceStore() *PriceStore {
	return &PriceStore{
		series:      make(map[string]*series),
		historyCap:  defaultHistoryCap,
		barInterval: defaultBarInterval,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// SetBarInterval changes the bar cadence. The classification thresholds
// downstream were tuned for daily bars; shorter cadences are for tests.
func (ps *PriceStore) SetBarInterval(d time.Duration) {
	if d <= 0 {
		return
	}
	ps.mu.Lock()
	ps.barInterval = d
	ps.mu.Unlock()
}

// SetClock replaces the time source. Test hook.
func (ps *PriceStore) SetClock(now func() time.Time) {
	ps.mu.Lock()
	ps.now = now
	ps.mu.Unlock()
}

// Backfill seeds the bar history with historical closes, oldest first.
// Replaces any existing bars for the asset.
func (ps *PriceStore) Backfill(asset string, closes []float64) {
	if asset == "" || len(closes) == 0 {
		return
	}
	ps.mu.Lock()
	defer ps.mu.Unlock()

	s := ps.ensureLocked(asset)
	if len(closes) > ps.historyCap {
		closes = closes[len(closes)-ps.historyCap:]
	}
	s.bars = append(s.bars[:0], closes...)
	s.barCount = len(s.bars)
	s.barOpened = ps.now()
}

// Update records the live price. The latest bar tracks the live price
// within the bar interval; a new bar opens when the interval rolls.
func (ps *PriceStore) Update(asset string, price decimal.Decimal) {
	if asset == "" || !price.IsPositive() {
		return
	}
	ps.mu.Lock()
	defer ps.mu.Unlock()

	now := ps.now()
	s := ps.ensureLocked(asset)
	s.last = price
	s.lastAt = now

	f, _ := price.Float64()
	if s.barCount == 0 || now.Sub(s.barOpened) >= ps.barInterval {
		s.bars = append(s.bars, f)
		s.barCount++
		s.barOpened = now
		if len(s.bars) > ps.historyCap {
			s.bars = s.bars[len(s.bars)-ps.historyCap:]
			s.barCount = len(s.bars)
		}
		return
	}
	s.bars[len(s.bars)-1] = f
}

// Price returns the latest price. ok=false when the asset has never
// been priced or the last update has gone stale.
func (ps *PriceStore) Price(asset string) (decimal.Decimal, bool) {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	s, ok := ps.series[asset]
	if !ok || s.last.IsZero() {
		return decimal.Zero, false
	}
	if ps.now().Sub(s.lastAt) > staleAfter {
		return decimal.Zero, false
	}
	return s.last, true
}

// History returns up to n most recent bar closes, oldest first.
func (ps *PriceStore) History(asset string, n int) []float64 {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	s, ok := ps.series[asset]
	if !ok || n <= 0 || len(s.bars) == 0 {
		return nil
	}
	bars := s.bars
	if len(bars) > n {
		bars = bars[len(bars)-n:]
	}
	out := make([]float64, len(bars))
	copy(out, bars)
	return out
}

// Len returns the number of stored bars for an asset.
func (ps *PriceStore) Len(asset string) int {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	s, ok := ps.series[asset]
	if !ok {
		return 0
	}
	return len(s.bars)
}

// Assets lists every asset the store has seen.
func (ps *PriceStore) Assets() []string {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	out := make([]string, 0, len(ps.series))
	for asset := range ps.series {
		out = append(out, asset)
	}
	return out
}

func (ps *PriceStore) ensureLocked(asset string) *series {
	s, ok := ps.series[asset]
	if !ok {
		s = &series{}
		ps.series[asset] = s
	}
	return s
}
