package risk

import (
	"github.com/shopspring/decimal"
)

// ═══════════════════════════════════════════════════════════════════════════════
// POSITION SIZING - Half-Kelly with volatility scaling
// ═══════════════════════════════════════════════════════════════════════════════
//
// Kelly: f* = (b·p - q) / b  where b = reward:risk, p = win probability.
// We take HALF of f* - trading some growth for reduced drawdown - then
// scale inversely to the asset's recent realized volatility, so equal
// dollar risk buys a smaller position when the tape is wild.
//
// Win probability comes from signal confidence via a linear clamp:
// confidence 0 → 50%, confidence 1 → 62%. Conservative on purpose; a
// model that claims better than ~62% from one composite score is lying.
//
// ═══════════════════════════════════════════════════════════════════════════════

const (
	winProbBase  = 0.50
	winProbSlope = 0.12

	volScalarFloor = 0.3
)

// WinProbability maps confidence in [0,1] to an estimated win
// probability in [0.50, 0.62]. Monotonic and bounded.
func WinProbability(confidence float64) float64 {
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}
	return winProbBase + winProbSlope*confidence
}

// HalfKelly returns half the full-Kelly fraction, floored at zero.
// rewardToRisk must be positive; a non-positive ratio sizes to zero.
func HalfKelly(winProb, rewardToRisk float64) float64 {
	if rewardToRisk <= 0 {
		return 0
	}
	lossProb := 1 - winProb
	kelly := (rewardToRisk*winProb - lossProb) / rewardToRisk
	if kelly <= 0 {
		return 0
	}
	return kelly * 0.5
}

// VolScalar shrinks size as recent realized volatility (daily fraction,
// e.g. 0.02 = 2%) rises. Clamped to [0.3, 1.0] so high vol reduces but
// never eliminates a position the limits would otherwise allow.
func VolScalar(dailyVol float64) float64 {
	s := 1.0 - 2.0*dailyVol
	if s < volScalarFloor {
		return volScalarFloor
	}
	if s > 1.0 {
		return 1.0
	}
	return s
}

// BaseNotional converts the Kelly risk budget into a notional:
//
//	riskDollars = capital × riskFraction × halfKelly × volScalar
//	notional    = riskDollars / stopDistanceFraction
//
// A wider stop therefore buys a smaller position for the same dollar
// risk.
func BaseNotional(capital decimal.Decimal, riskFraction decimal.Decimal, halfKelly, volScalar float64, entry, stop decimal.Decimal) decimal.Decimal {
	if entry.IsZero() {
		return decimal.Zero
	}
	stopDistance := entry.Sub(stop).Abs().Div(entry)
	if stopDistance.IsZero() {
		return decimal.Zero
	}

	riskDollars := capital.
		Mul(riskFraction).
		Mul(decimal.NewFromFloat(halfKelly)).
		Mul(decimal.NewFromFloat(volScalar))

	return riskDollars.Div(stopDistance).Truncate(2)
}
