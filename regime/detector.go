package regime

import (
	"time"

	"github.com/rs/zerolog/log"
)

// ═══════════════════════════════════════════════════════════════════════════════
// REGIME DETECTOR - Classifies the prevailing market state
// ═══════════════════════════════════════════════════════════════════════════════
//
// Six live states plus Unknown. Classification is a pure function of
// the feature vector and the previous regime; the single bit of memory
// exists for the Crash -> Recovery transition.
//
// ═══════════════════════════════════════════════════════════════════════════════

// Regime is the classified market state.
type Regime int

const (
	Unknown Regime = iota
	TrendingUp
	TrendingDown
	MeanReverting
	HighVolExpansion
	Crash
	Recovery
)

var regimeNames = map[Regime]string{
	Unknown:          "UNKNOWN",
	TrendingUp:       "TRENDING_UP",
	TrendingDown:     "TRENDING_DOWN",
	MeanReverting:    "MEAN_REVERTING",
	HighVolExpansion: "HIGH_VOL_EXPANSION",
	Crash:            "CRASH",
	Recovery:         "RECOVERY",
}

func (r Regime) String() string { return regimeNames[r] }

// State is the detector output for one cycle.
type State struct {
	Regime     Regime    `json:"regime"`
	Confidence float64   `json:"confidence"`
	Features   Features  `json:"features"`
	DetectedAt time.Time `json:"detected_at"`
}

// Thresholds are the classification cut-offs.
type Thresholds struct {
	CrashVol      float64 // vol above this + strongly negative trend = Crash
	ModerateVol   float64 // vol above this + negative term slope = HighVolExpansion
	ElevatedVol   float64 // vol still above this qualifies for Recovery
	CrashTrend    float64 // trend below this counts as strongly negative
	TrendMin      float64 // |trend| above this for Trending states
	MRCeiling     float64 // mean reversion below this for Trending states
	MRFloor       float64 // mean reversion above this for MeanReverting
	RecoveryTrend float64 // trend above this for Recovery
}

// DefaultThresholds mirrors VIX-scale levels: 30 = panic, 22 = stressed,
// 18 = elevated.
func DefaultThresholds() Thresholds {
	return Thresholds{
		CrashVol:      30,
		ModerateVol:   22,
		ElevatedVol:   18,
		CrashTrend:    -0.5,
		TrendMin:      0.3,
		MRCeiling:     0.4,
		MRFloor:       0.55,
		RecoveryTrend: 0.1,
	}
}

// Detector holds the one-step regime memory.
type Detector struct {
	thresholds Thresholds
	current    State
	previous   Regime
}

// NewDetector starts in Unknown.
func NewDetector(th Thresholds) *Detector {
	return &Detector{
		thresholds: th,
		current:    State{Regime: Unknown},
		previous:   Unknown,
	}
}

// Update classifies the features and advances the one-step memory.
func (d *Detector) Update(f Features, now time.Time) State {
	prev := d.current.Regime
	r, conf := Classify(f, prev, d.thresholds)

	d.previous = prev
	d.current = State{Regime: r, Confidence: conf, Features: f, DetectedAt: now}

	if r != prev {
		log.Info().
			Str("from", prev.String()).
			Str("to", r.String()).
			Float64("confidence", conf).
			Float64("vol", f.Volatility).
			Float64("trend", f.TrendStrength).
			Msg("Regime transition")
	}
	return d.current
}

// Current returns the latest state.
func (d *Detector) Current() State { return d.current }

// Previous returns the regime before the latest update.
func (d *Detector) Previous() Regime { return d.previous }

// Classify maps a feature vector plus the previous regime to a regime
// and confidence. Deterministic: identical inputs always yield the
// identical output. Rules are checked most-severe first.
func Classify(f Features, previous Regime, th Thresholds) (Regime, float64) {
	// Crash: extreme vol with a strongly negative trend, regardless of
	// term structure.
	if f.Volatility > th.CrashVol && f.TrendStrength < th.CrashTrend {
		return Crash, clampF(volScore(f.Volatility)+0.2, 0, 1)
	}

	// High-vol expansion: backwardated vol, trend sign irrelevant.
	if f.Volatility > th.ModerateVol && f.TermSlope < 0 {
		return HighVolExpansion, clampF(0.6+volScore(f.Volatility)*0.3, 0, 1)
	}

	// Recovery needs history: only reachable straight out of Crash.
	if previous == Crash && f.TrendStrength > th.RecoveryTrend && f.Volatility > th.ElevatedVol {
		return Recovery, 0.6
	}

	if f.TrendStrength > th.TrendMin && f.MeanReversion < th.MRCeiling {
		return TrendingUp, clampF(f.TrendStrength, 0, 1)
	}
	if f.TrendStrength < -th.TrendMin && f.MeanReversion < th.MRCeiling {
		return TrendingDown, clampF(-f.TrendStrength, 0, 1)
	}

	if f.MeanReversion > th.MRFloor && f.Volatility < th.ModerateVol {
		return MeanReverting, clampF(f.MeanReversion, 0, 1)
	}

	// Conflicting or insufficient features. A valid resting state.
	return Unknown, 0.3
}

// volScore maps a volatility level to 0..1 fear.
func volScore(vol float64) float64 {
	switch {
	case vol < 12:
		return 0.0
	case vol < 16:
		return 0.2
	case vol < 20:
		return 0.4
	case vol < 25:
		return 0.6
	case vol < 35:
		return 0.8
	default:
		return 1.0
	}
}
