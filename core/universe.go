package core

import (
	"sync"
)

// ═══════════════════════════════════════════════════════════════════════════════
// UNIVERSE - Tradable asset metadata
// ═══════════════════════════════════════════════════════════════════════════════

// Asset is one tradable instrument and where its data comes from.
type Asset struct {
	Symbol        string // canonical symbol strategies use (BTC, SPY, GLD)
	BinanceSymbol string // exchange symbol for the Binance adapter, "" if not listed there
	ChainlinkFeed string // on-chain aggregator address, "" if none
	Tradable      bool   // proposals allowed; false = signal/regime input only
}

// Universe manages the asset set the engine runs over.
type Universe struct {
	mu     sync.RWMutex
	assets map[string]*Asset
	order  []string // insertion order, keeps cycles deterministic
}

// NewUniverse creates an empty universe.
func NewUniverse() *Universe {
	return &Universe{assets: make(map[string]*Asset)}
}

// DefaultUniverse covers every asset the built-in strategies reference.
func DefaultUniverse() *Universe {
	u := NewUniverse()
	for _, a := range []Asset{
		{Symbol: "BTC", BinanceSymbol: "BTCUSDT", Tradable: true},
		{Symbol: "ETH", BinanceSymbol: "ETHUSDT", Tradable: true},
		{Symbol: "SPY", Tradable: true},
		{Symbol: "TLT", Tradable: true},
		{Symbol: "GLD", Tradable: true},
		{Symbol: "SLV", Tradable: true},
		{Symbol: "IGV", Tradable: true},
		{Symbol: "MSFT", Tradable: true},
		{Symbol: "CRM", Tradable: true},
		{Symbol: "ADBE", Tradable: true},
		{Symbol: "SHOP", Tradable: true},
	} {
		u.Add(a)
	}
	return u
}

// Add registers or updates an asset.
func (u *Universe) Add(a Asset) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if _, exists := u.assets[a.Symbol]; !exists {
		u.order = append(u.order, a.Symbol)
	}
	u.assets[a.Symbol] = &a
}

// Get retrieves an asset by symbol.
func (u *Universe) Get(symbol string) (Asset, bool) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	a, ok := u.assets[symbol]
	if !ok {
		return Asset{}, false
	}
	return *a, true
}

// Symbols returns all symbols in registration order.
func (u *Universe) Symbols() []string {
	u.mu.RLock()
	defer u.mu.RUnlock()
	out := make([]string, len(u.order))
	copy(out, u.order)
	return out
}

// Tradable reports whether proposals are allowed on the symbol.
func (u *Universe) Tradable(symbol string) bool {
	u.mu.RLock()
	defer u.mu.RUnlock()
	a, ok := u.assets[symbol]
	return ok && a.Tradable
}

// Count returns the number of registered assets.
func (u *Universe) Count() int {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return len(u.assets)
}
