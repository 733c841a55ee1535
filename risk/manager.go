package risk

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/quantarch/medusa/strategy"
	"github.com/quantarch/medusa/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// RISK MANAGER - Gatekeeper for all trades
// ═══════════════════════════════════════════════════════════════════════════════
//
// Every proposal passes through Evaluate in ranked order. Each call
// holds the state lock for its whole evaluate-and-mutate step, so a
// concurrent position close can never double-count the same capital -
// but the lock is released between proposals so lifecycle updates are
// never starved.
//
// Limit rejections are expected and frequent; they come back as typed
// reasons. An accounting invariant breaking is a different animal: the
// manager halts all new approvals until an operator resets it.
//
// ═══════════════════════════════════════════════════════════════════════════════

// Reason is a typed rejection cause.
type Reason string

const (
	ReasonKillSwitch    Reason = "KILL_SWITCH"
	ReasonExposureLimit Reason = "EXPOSURE_LIMIT"
	ReasonCooldown      Reason = "COOLDOWN"
	ReasonDailyTradeCap Reason = "DAILY_TRADE_CAP"
)

// ErrHalted is returned once the accounting has been found
// untrustworthy. No approvals until Reset.
var ErrHalted = errors.New("risk accounting halted, operator intervention required")

// Limits are the hard caps. They cannot be overridden by any strategy.
type Limits struct {
	MaxPerPositionFraction decimal.Decimal // of capital, per position
	MaxPerAssetFraction    decimal.Decimal // of capital, per asset
	MaxTotalFraction       decimal.Decimal // of capital, whole book
	MaxDailyLossFraction   decimal.Decimal // kill switch threshold
	MaxTradesPerDay        int
	MaxConsecutiveLosses   int
	CooldownDuration       time.Duration
}

// DefaultLimits: 3% per position, 5% per asset, 25% total, 5% daily
// loss kill switch, 30 trades/day, 3 losses -> 4h cooldown.
func DefaultLimits() Limits {
	return Limits{
		MaxPerPositionFraction: decimal.NewFromFloat(0.03),
		MaxPerAssetFraction:    decimal.NewFromFloat(0.05),
		MaxTotalFraction:       decimal.NewFromFloat(0.25),
		MaxDailyLossFraction:   decimal.NewFromFloat(0.05),
		MaxTradesPerDay:        30,
		MaxConsecutiveLosses:   3,
		CooldownDuration:       4 * time.Hour,
	}
}

// State is the process-wide risk ledger. Injectable, no singleton;
// mutation happens only under the Manager's lock.
type State struct {
	Capital             decimal.Decimal            `json:"capital"`
	EquityHighWaterMark decimal.Decimal            `json:"equity_high_water_mark"`
	DailyRealizedPnL    decimal.Decimal            `json:"daily_realized_pnl"`
	OpenExposureByAsset map[string]decimal.Decimal `json:"open_exposure_by_asset"`
	OpenExposureTotal   decimal.Decimal            `json:"open_exposure_total"`
	ConsecutiveLosses   int                        `json:"consecutive_losses"`
	CooldownUntil       time.Time                  `json:"cooldown_until"`
	TradesToday         int                        `json:"trades_today"`
}

// Decision is the outcome of evaluating one proposal.
type Decision struct {
	Approved      bool
	SizedNotional decimal.Decimal
	Reason        Reason
	Detail        string

	// Sizing diagnostics for logging/audit.
	WinProb      float64
	KellyFrac    float64
	VolScalar    float64
	Clamped      bool
}

// Manager guards the risk state.
type Manager struct {
	mu     sync.Mutex
	limits Limits
	state  State

	killTripped  bool
	halted       bool
	lastResetDay string // UTC date of last daily reset

	now func() time.Time
}

// NewManager starts the ledger at the given capital.
func NewManager(capital decimal.Decimal, limits Limits) *Manager {
	m := &Manager{
		limits: limits,
		state: State{
			Capital:             capital,
			EquityHighWaterMark: capital,
			OpenExposureByAsset: make(map[string]decimal.Decimal),
		},
		now: func() time.Time { return time.Now().UTC() },
	}
	log.Info().
		Str("capital", capital.StringFixed(2)).
		Str("max_position", limits.MaxPerPositionFraction.Mul(decimal.NewFromInt(100)).String()+"%").
		Str("max_asset", limits.MaxPerAssetFraction.Mul(decimal.NewFromInt(100)).String()+"%").
		Str("max_total", limits.MaxTotalFraction.Mul(decimal.NewFromInt(100)).String()+"%").
		Msg("🛡️ Risk manager initialized")
	return m
}

// SetClock replaces the time source. Test hook.
func (m *Manager) SetClock(now func() time.Time) {
	m.mu.Lock()
	m.now = now
	m.mu.Unlock()
}

// Evaluate sizes and gates one proposal. assetVol is the asset's recent
// realized daily volatility as a fraction. On approval the ledger is
// mutated before the call returns. ErrHalted means the accounting is
// untrustworthy and nothing will be approved until Reset.
func (m *Manager) Evaluate(p strategy.Proposal, assetVol float64) (Decision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.halted {
		return Decision{}, ErrHalted
	}

	now := m.now()
	m.resetDailyLocked(now)

	// Kill switch first. Once tripped it is sticky for the trading day
	// even if later wins pull the daily PnL back above the line.
	lossLimit := m.state.Capital.Mul(m.limits.MaxDailyLossFraction).Neg()
	if m.killTripped || m.state.DailyRealizedPnL.LessThanOrEqual(lossLimit) {
		if !m.killTripped {
			m.killTripped = true
			log.Error().
				Str("daily_pnl", m.state.DailyRealizedPnL.StringFixed(2)).
				Msg("🚨 KILL SWITCH TRIPPED - no approvals until next trading day")
		}
		return reject(ReasonKillSwitch, "daily loss limit breached"), nil
	}

	if now.Before(m.state.CooldownUntil) {
		remaining := m.state.CooldownUntil.Sub(now).Round(time.Minute)
		return reject(ReasonCooldown, fmt.Sprintf("%s remaining after %d consecutive losses",
			remaining, m.state.ConsecutiveLosses)), nil
	}

	if m.state.TradesToday >= m.limits.MaxTradesPerDay {
		return reject(ReasonDailyTradeCap, fmt.Sprintf("%d trades today", m.state.TradesToday)), nil
	}

	// Half-Kelly base size, volatility-scaled.
	winProb := WinProbability(p.Confidence)
	kelly := HalfKelly(winProb, p.RewardToRisk)
	scalar := VolScalar(assetVol)
	sized := BaseNotional(m.state.Capital, m.limits.MaxPerPositionFraction, kelly, scalar, p.Entry, p.Stop)

	if sized.LessThanOrEqual(decimal.Zero) {
		return reject(ReasonExposureLimit, "kelly size is zero"), nil
	}
	if p.RequestedNotional.GreaterThan(decimal.Zero) && sized.GreaterThan(p.RequestedNotional) {
		sized = p.RequestedNotional
	}

	clamped := false

	// Per-position cap: clamp, never reject.
	perPosition := m.state.Capital.Mul(m.limits.MaxPerPositionFraction)
	if sized.GreaterThan(perPosition) {
		sized = perPosition
		clamped = true
	}

	// Per-asset cap: clamp, reject if nothing is left.
	assetCap := m.state.Capital.Mul(m.limits.MaxPerAssetFraction)
	assetRoom := assetCap.Sub(m.state.OpenExposureByAsset[p.Asset])
	if sized.GreaterThan(assetRoom) {
		if assetRoom.LessThanOrEqual(decimal.Zero) {
			return reject(ReasonExposureLimit, fmt.Sprintf("asset %s at exposure cap", p.Asset)), nil
		}
		sized = assetRoom
		clamped = true
	}

	// Total book cap: clamp, reject if nothing is left.
	totalCap := m.state.Capital.Mul(m.limits.MaxTotalFraction)
	totalRoom := totalCap.Sub(m.state.OpenExposureTotal)
	if sized.GreaterThan(totalRoom) {
		if totalRoom.LessThanOrEqual(decimal.Zero) {
			return reject(ReasonExposureLimit, "book at total exposure cap"), nil
		}
		sized = totalRoom
		clamped = true
	}

	// Commit. Exposure and trade count move atomically under the lock,
	// so a concurrent Evaluate cannot spend the same room twice.
	m.state.OpenExposureByAsset[p.Asset] = m.state.OpenExposureByAsset[p.Asset].Add(sized)
	m.state.OpenExposureTotal = m.state.OpenExposureTotal.Add(sized)
	m.state.TradesToday++

	if err := m.checkInvariantsLocked(); err != nil {
		m.halted = true
		log.Error().Err(err).Msg("💥 RISK INVARIANT VIOLATION - halting approvals")
		return Decision{}, err
	}

	log.Info().
		Str("strategy", p.StrategyID).
		Str("asset", p.Asset).
		Str("sized", sized.StringFixed(2)).
		Float64("win_prob", winProb).
		Float64("kelly", kelly).
		Float64("vol_scalar", scalar).
		Bool("clamped", clamped).
		Msg("✅ Proposal approved")

	return Decision{
		Approved:      true,
		SizedNotional: sized,
		WinProb:       winProb,
		KellyFrac:     kelly,
		VolScalar:     scalar,
		Clamped:       clamped,
	}, nil
}

// ReleaseExposure hands reserved exposure back, e.g. when a position
// closes or a broker rejects the fill.
func (m *Manager) ReleaseExposure(asset string, notional decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	byAsset := m.state.OpenExposureByAsset[asset].Sub(notional)
	total := m.state.OpenExposureTotal.Sub(notional)
	if byAsset.IsNegative() || total.IsNegative() {
		m.halted = true
		err := fmt.Errorf("exposure release for %s drove ledger negative (asset=%s total=%s)",
			asset, byAsset.StringFixed(2), total.StringFixed(2))
		log.Error().Err(err).Msg("💥 RISK INVARIANT VIOLATION - halting approvals")
		return err
	}
	m.state.OpenExposureByAsset[asset] = byAsset
	m.state.OpenExposureTotal = total
	return nil
}

// RecordOutcome books a realized PnL: capital, daily PnL, high-water
// mark, consecutive-loss counter and cooldown.
func (m *Manager) RecordOutcome(o types.Outcome) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.resetDailyLocked(now)

	m.state.DailyRealizedPnL = m.state.DailyRealizedPnL.Add(o.PnL)
	m.state.Capital = m.state.Capital.Add(o.PnL)
	if m.state.Capital.GreaterThan(m.state.EquityHighWaterMark) {
		m.state.EquityHighWaterMark = m.state.Capital
	}

	if o.PnL.IsNegative() {
		m.state.ConsecutiveLosses++
		if m.state.ConsecutiveLosses >= m.limits.MaxConsecutiveLosses {
			m.state.CooldownUntil = now.Add(m.limits.CooldownDuration)
			log.Warn().
				Int("consecutive_losses", m.state.ConsecutiveLosses).
				Time("until", m.state.CooldownUntil).
				Msg("⏸️ Cooldown activated")
		}
	} else {
		m.state.ConsecutiveLosses = 0
	}

	log.Info().
		Str("asset", o.Asset).
		Str("pnl", o.PnL.StringFixed(2)).
		Str("capital", m.state.Capital.StringFixed(2)).
		Str("daily_pnl", m.state.DailyRealizedPnL.StringFixed(2)).
		Int("consecutive_losses", m.state.ConsecutiveLosses).
		Msg("📊 Outcome recorded")
}

// Snapshot returns a copy of the current ledger for read-only export.
func (m *Manager) Snapshot() State {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.state
	s.OpenExposureByAsset = make(map[string]decimal.Decimal, len(m.state.OpenExposureByAsset))
	for k, v := range m.state.OpenExposureByAsset {
		s.OpenExposureByAsset[k] = v
	}
	return s
}

// KillSwitchTripped reports the sticky daily kill switch.
func (m *Manager) KillSwitchTripped() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.killTripped
}

// Halted reports whether approvals are frozen on an invariant breach.
func (m *Manager) Halted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.halted
}

// Reset clears a halt after operator intervention. The ledger itself is
// not rebuilt here; the operator fixes the books first.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.halted = false
	log.Warn().Msg("Risk manager halt cleared by operator")
}

// resetDailyLocked rolls the daily counters on a UTC date change.
func (m *Manager) resetDailyLocked(now time.Time) {
	today := now.Format("2006-01-02")
	if m.lastResetDay == today {
		return
	}
	m.lastResetDay = today
	m.state.DailyRealizedPnL = decimal.Zero
	m.state.TradesToday = 0
	m.killTripped = false
	log.Info().Str("capital", m.state.Capital.StringFixed(2)).Msg("📅 Daily risk reset")
}

// checkInvariantsLocked verifies the ledger after a mutation. A failure
// here is a programming error, not a market condition.
func (m *Manager) checkInvariantsLocked() error {
	totalCap := m.state.Capital.Mul(m.limits.MaxTotalFraction)
	if m.state.OpenExposureTotal.GreaterThan(totalCap) {
		return fmt.Errorf("total exposure %s exceeds cap %s",
			m.state.OpenExposureTotal.StringFixed(2), totalCap.StringFixed(2))
	}
	assetCap := m.state.Capital.Mul(m.limits.MaxPerAssetFraction)
	for asset, exp := range m.state.OpenExposureByAsset {
		if exp.GreaterThan(assetCap) {
			return fmt.Errorf("asset %s exposure %s exceeds cap %s",
				asset, exp.StringFixed(2), assetCap.StringFixed(2))
		}
		if exp.IsNegative() {
			return fmt.Errorf("asset %s exposure negative: %s", asset, exp.StringFixed(2))
		}
	}
	if m.state.OpenExposureTotal.IsNegative() {
		return fmt.Errorf("total exposure negative: %s", m.state.OpenExposureTotal.StringFixed(2))
	}
	return nil
}

func reject(reason Reason, detail string) Decision {
	log.Debug().Str("reason", string(reason)).Str("detail", detail).Msg("🚫 Proposal rejected")
	return Decision{Approved: false, Reason: reason, Detail: detail}
}
