package position

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/quantarch/medusa/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// POSITION LIFECYCLE - Stops, targets, trailing exits
// ═══════════════════════════════════════════════════════════════════════════════
//
// Runs every cycle against all open positions, independent of new
// proposals. Exits here are the only path by which reserved exposure
// returns to the risk ledger.
//
// ═══════════════════════════════════════════════════════════════════════════════

// Close reasons recorded on the outcome.
const (
	ReasonTarget = "TARGET"
	ReasonStop   = "STOP"
	ReasonManual = "MANUAL"
)

// Pricer supplies the current price for an asset. ok=false means the
// feed could not price it this cycle (data gap, timeout).
type Pricer interface {
	Price(asset string) (decimal.Decimal, bool)
}

// trailingFraction of the favorable excursion is given back before a
// trailing stop fires. The stop only ever tightens.
const trailingFraction = 0.5

// Manager tracks open positions and applies exit rules.
type Manager struct {
	mu        sync.RWMutex
	positions map[string]*types.Position

	onClose       func(types.Outcome, types.Position)
	onUnpriceable func(types.Position)
}

// NewManager creates an empty book.
func NewManager() *Manager {
	return &Manager{positions: make(map[string]*types.Position)}
}

// OnClose registers the callback fired with each realized outcome
// (risk ledger release, strategy weights, notifications).
func (m *Manager) OnClose(fn func(types.Outcome, types.Position)) { m.onClose = fn }

// OnUnpriceable registers the callback fired when a position cannot be
// priced. The position stays open; alerting is the callback's problem.
func (m *Manager) OnUnpriceable(fn func(types.Position)) { m.onUnpriceable = fn }

// Open registers a filled position and returns it.
func (m *Manager) Open(asset string, dir types.Direction, entry, stop, target, notional decimal.Decimal, strategyID string, trailing bool) types.Position {
	pos := types.Position{
		ID:         uuid.NewString(),
		Asset:      asset,
		Direction:  dir,
		EntryPrice: entry,
		Stop:       stop,
		Target:     target,
		Notional:   notional,
		OpenedAt:   time.Now().UTC(),
		StrategyID: strategyID,
		Trailing:   trailing,
		BestPrice:  entry,
	}
	pos.InitialStop = stop

	m.mu.Lock()
	m.positions[pos.ID] = &pos
	m.mu.Unlock()

	log.Info().
		Str("id", pos.ID).
		Str("asset", asset).
		Str("direction", dir.String()).
		Str("entry", entry.StringFixed(2)).
		Str("stop", stop.StringFixed(2)).
		Str("target", target.StringFixed(2)).
		Str("notional", notional.StringFixed(2)).
		Str("strategy", strategyID).
		Msg("📈 Position opened")
	return pos
}

// Tick runs one lifecycle pass over every open position.
func (m *Manager) Tick(pricer Pricer) {
	for _, pos := range m.openSnapshot() {
		m.tickOne(pos.ID, pricer)
	}
}

func (m *Manager) tickOne(id string, pricer Pricer) {
	m.mu.Lock()
	pos, ok := m.positions[id]
	if !ok {
		m.mu.Unlock()
		return
	}

	price, priced := pricer.Price(pos.Asset)
	if !priced || price.IsZero() {
		// Data gap: leave the position open, flag it, never force-close.
		first := !pos.Unpriceable
		pos.Unpriceable = true
		snapshot := *pos
		m.mu.Unlock()
		if first {
			log.Warn().Str("asset", snapshot.Asset).Str("id", snapshot.ID).Msg("⚠️ Position unpriceable, left open")
			if m.onUnpriceable != nil {
				m.onUnpriceable(snapshot)
			}
		}
		return
	}
	pos.Unpriceable = false

	m.ratchetLocked(pos, price)

	if hitStop(pos, price) {
		m.closeLocked(pos, price, ReasonStop)
		m.mu.Unlock()
		return
	}
	if hitTarget(pos, price) {
		m.closeLocked(pos, price, ReasonTarget)
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()
}

// ratchetLocked tightens a trailing stop in the favorable direction
// only. The trail arms once price has covered half the distance to
// target; from there the stop keeps half the excursion beyond entry.
// A stop is never loosened.
func (m *Manager) ratchetLocked(pos *types.Position, price decimal.Decimal) {
	if !pos.Trailing {
		return
	}
	giveback := decimal.NewFromFloat(trailingFraction)

	if pos.Direction == types.Long {
		if price.GreaterThan(pos.BestPrice) {
			pos.BestPrice = price
		}
		excursion := pos.BestPrice.Sub(pos.EntryPrice)
		armAt := pos.Target.Sub(pos.EntryPrice).Mul(giveback)
		if excursion.LessThan(armAt) {
			return
		}
		candidate := pos.EntryPrice.Add(excursion.Mul(giveback))
		if candidate.GreaterThan(pos.Stop) {
			pos.Stop = candidate
		}
		return
	}

	if price.LessThan(pos.BestPrice) {
		pos.BestPrice = price
	}
	excursion := pos.EntryPrice.Sub(pos.BestPrice)
	armAt := pos.EntryPrice.Sub(pos.Target).Mul(giveback)
	if excursion.LessThan(armAt) {
		return
	}
	candidate := pos.EntryPrice.Sub(excursion.Mul(giveback))
	if candidate.LessThan(pos.Stop) {
		pos.Stop = candidate
	}
}

// CloseManual closes a position at the given price, e.g. operator exit
// or shutdown flatten.
func (m *Manager) CloseManual(id string, price decimal.Decimal) bool {
	m.mu.Lock()
	pos, ok := m.positions[id]
	if !ok {
		m.mu.Unlock()
		return false
	}
	m.closeLocked(pos, price, ReasonManual)
	m.mu.Unlock()
	return true
}

// closeLocked finalizes a position and emits the realized outcome.
func (m *Manager) closeLocked(pos *types.Position, exit decimal.Decimal, reason string) {
	pnl := pnlFor(pos, exit)
	outcome := types.Outcome{
		StrategyID: pos.StrategyID,
		Asset:      pos.Asset,
		PnL:        pnl,
		RMultiple:  rMultiple(pos, exit),
		Win:        pnl.GreaterThanOrEqual(decimal.Zero),
		ClosedAt:   time.Now().UTC(),
		Reason:     reason,
	}
	closed := *pos
	delete(m.positions, pos.ID)

	log.Info().
		Str("asset", closed.Asset).
		Str("entry", closed.EntryPrice.StringFixed(2)).
		Str("exit", exit.StringFixed(2)).
		Str("pnl", pnl.StringFixed(2)).
		Float64("r_multiple", outcome.RMultiple).
		Str("reason", reason).
		Msg("📊 Position closed")

	if m.onClose != nil {
		m.onClose(outcome, closed)
	}
}

// Open positions, copied.
func (m *Manager) openSnapshot() []types.Position {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]types.Position, 0, len(m.positions))
	for _, pos := range m.positions {
		out = append(out, *pos)
	}
	return out
}

// Positions returns a copy of the open book.
func (m *Manager) Positions() []types.Position { return m.openSnapshot() }

// Count returns the number of open positions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.positions)
}

func hitStop(pos *types.Position, price decimal.Decimal) bool {
	if pos.Direction == types.Long {
		return price.LessThanOrEqual(pos.Stop)
	}
	return price.GreaterThanOrEqual(pos.Stop)
}

func hitTarget(pos *types.Position, price decimal.Decimal) bool {
	if pos.Direction == types.Long {
		return price.GreaterThanOrEqual(pos.Target)
	}
	return price.LessThanOrEqual(pos.Target)
}

// pnlFor converts the price move into dollars on the notional.
func pnlFor(pos *types.Position, exit decimal.Decimal) decimal.Decimal {
	if pos.EntryPrice.IsZero() {
		return decimal.Zero
	}
	move := exit.Sub(pos.EntryPrice).Div(pos.EntryPrice)
	if pos.Direction == types.Short {
		move = move.Neg()
	}
	return pos.Notional.Mul(move).Round(2)
}

// rMultiple expresses the exit in units of initial risk.
func rMultiple(pos *types.Position, exit decimal.Decimal) float64 {
	risk := pos.EntryPrice.Sub(pos.InitialStop).Abs()
	if risk.IsZero() {
		return 0
	}
	move := exit.Sub(pos.EntryPrice)
	if pos.Direction == types.Short {
		move = move.Neg()
	}
	r, _ := move.Div(risk).Float64()
	return r
}
