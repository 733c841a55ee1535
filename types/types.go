package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// ═══════════════════════════════════════════════════════════════════════════════
// SHARED TYPES - Avoid import cycles
// ═══════════════════════════════════════════════════════════════════════════════

// Direction of a position or proposal.
type Direction int

const (
	Long  Direction = 1
	Short Direction = -1
)

func (d Direction) String() string {
	if d == Short {
		return "SHORT"
	}
	return "LONG"
}

// Position represents an open trade owned by the lifecycle manager.
type Position struct {
	ID         string
	Asset      string
	Direction  Direction
	EntryPrice decimal.Decimal
	Stop       decimal.Decimal
	Target     decimal.Decimal
	Notional   decimal.Decimal
	OpenedAt   time.Time
	StrategyID string

	// Trailing stop state. BestPrice is the most favorable price seen
	// since entry; the stop only ever ratchets toward it. InitialStop
	// keeps the original risk for R-multiple accounting.
	Trailing    bool
	BestPrice   decimal.Decimal
	InitialStop decimal.Decimal

	// Set when the price feed could not price the asset last cycle.
	// The position stays open; alerting is external.
	Unpriceable bool
}

// Outcome is the realized result of a closed position, consumed by
// strategy weighting.
type Outcome struct {
	StrategyID string
	Asset      string
	PnL        decimal.Decimal
	RMultiple  float64
	Win        bool
	ClosedAt   time.Time
	Reason     string // TARGET, STOP, MANUAL
}

// Order is what the engine hands to the broker for an approved proposal.
type Order struct {
	ID        string
	Asset     string
	Direction Direction
	Price     decimal.Decimal
	Notional  decimal.Decimal
	Strategy  string
}

// Fill is the broker's response to a submitted order.
type Fill struct {
	OrderID  string
	Price    decimal.Decimal
	Notional decimal.Decimal
	FilledAt time.Time
}

// PositionRecord for display (Telegram bot)
type PositionRecord struct {
	Asset      string
	Direction  string
	EntryPrice decimal.Decimal
	Notional   decimal.Decimal
	Stop       decimal.Decimal
	Target     decimal.Decimal
	OpenedAt   time.Time
}
