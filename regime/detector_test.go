package regime

import (
	"math"
	"testing"
	"time"
)

func TestClassifyCrash(t *testing.T) {
	f := Features{Volatility: 35, TermSlope: -5, TrendStrength: -0.6, MeanReversion: 0.3}
	r, conf := Classify(f, Unknown, DefaultThresholds())
	if r != Crash {
		t.Fatalf("regime = %v, want CRASH", r)
	}
	if conf <= 0.5 {
		t.Errorf("crash confidence = %v, want > 0.5", conf)
	}
}

func TestClassifyHighVolExpansion(t *testing.T) {
	// Stressed vol with inverted term structure but no collapse trend.
	f := Features{Volatility: 25, TermSlope: -3, TrendStrength: -0.2, MeanReversion: 0.5}
	r, _ := Classify(f, Unknown, DefaultThresholds())
	if r != HighVolExpansion {
		t.Errorf("regime = %v, want HIGH_VOL_EXPANSION", r)
	}
}

func TestRecoveryOnlyFromCrash(t *testing.T) {
	f := Features{Volatility: 20, TermSlope: 1, TrendStrength: 0.2, MeanReversion: 0.5}
	th := DefaultThresholds()

	if r, _ := Classify(f, Crash, th); r != Recovery {
		t.Errorf("from CRASH: regime = %v, want RECOVERY", r)
	}
	// The same features without the crash memory are not a recovery.
	if r, _ := Classify(f, HighVolExpansion, th); r == Recovery {
		t.Error("RECOVERY reached from HIGH_VOL_EXPANSION")
	}
	if r, _ := Classify(f, Unknown, th); r == Recovery {
		t.Error("RECOVERY reached from UNKNOWN")
	}
}

func TestClassifyTrending(t *testing.T) {
	th := DefaultThresholds()

	up := Features{Volatility: 14, TermSlope: 1, TrendStrength: 0.5, MeanReversion: 0.2}
	if r, conf := Classify(up, Unknown, th); r != TrendingUp || conf != 0.5 {
		t.Errorf("up: regime = %v conf = %v, want TRENDING_UP 0.5", r, conf)
	}

	down := Features{Volatility: 14, TermSlope: 1, TrendStrength: -0.5, MeanReversion: 0.2}
	if r, _ := Classify(down, Unknown, th); r != TrendingDown {
		t.Errorf("down: regime = %v, want TRENDING_DOWN", r)
	}

	// Strong trend but high mean reversion blocks the trending states.
	chop := Features{Volatility: 14, TermSlope: 1, TrendStrength: 0.5, MeanReversion: 0.6}
	if r, _ := Classify(chop, Unknown, th); r == TrendingUp {
		t.Error("mean-reverting tape classified as TRENDING_UP")
	}
}

func TestClassifyMeanReverting(t *testing.T) {
	f := Features{Volatility: 15, TermSlope: 1, TrendStrength: 0.1, MeanReversion: 0.7}
	if r, _ := Classify(f, Unknown, DefaultThresholds()); r != MeanReverting {
		t.Errorf("regime = %v, want MEAN_REVERTING", r)
	}
}

func TestClassifyUnknownIsValid(t *testing.T) {
	f := Features{Volatility: 15, TermSlope: 1, TrendStrength: 0.1, MeanReversion: 0.5}
	r, conf := Classify(f, Unknown, DefaultThresholds())
	if r != Unknown {
		t.Fatalf("regime = %v, want UNKNOWN", r)
	}
	if conf != 0.3 {
		t.Errorf("unknown confidence = %v, want 0.3", conf)
	}
}

func TestClassifyDeterministic(t *testing.T) {
	f := Features{Volatility: 26, TermSlope: -2, TrendStrength: -0.4, MeanReversion: 0.45}
	th := DefaultThresholds()
	r1, c1 := Classify(f, TrendingDown, th)
	for i := 0; i < 100; i++ {
		r2, c2 := Classify(f, TrendingDown, th)
		if r1 != r2 || c1 != c2 {
			t.Fatalf("classification not deterministic: (%v,%v) vs (%v,%v)", r1, c1, r2, c2)
		}
	}
}

func TestDetectorOneStepMemory(t *testing.T) {
	d := NewDetector(DefaultThresholds())
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	crash := Features{Volatility: 35, TermSlope: -5, TrendStrength: -0.6, MeanReversion: 0.3}
	if st := d.Update(crash, now); st.Regime != Crash {
		t.Fatalf("first update = %v, want CRASH", st.Regime)
	}

	rebound := Features{Volatility: 20, TermSlope: 1, TrendStrength: 0.2, MeanReversion: 0.5}
	if st := d.Update(rebound, now.Add(time.Minute)); st.Regime != Recovery {
		t.Fatalf("second update = %v, want RECOVERY", st.Regime)
	}
	if d.Previous() != Crash {
		t.Errorf("previous = %v, want CRASH", d.Previous())
	}

	// Recovery does not chain: the crash memory is one step deep.
	if st := d.Update(rebound, now.Add(2*time.Minute)); st.Regime == Recovery {
		t.Error("RECOVERY persisted without a preceding CRASH")
	}
}

func TestComputeFeaturesShortHistory(t *testing.T) {
	prices := []float64{100, 101, 102}
	if _, ok := ComputeFeatures(prices); ok {
		t.Error("features computed from insufficient history")
	}
}

func TestComputeFeaturesTrendSign(t *testing.T) {
	up := make([]float64, 60)
	down := make([]float64, 60)
	for i := range up {
		up[i] = 100 * math.Pow(1.01, float64(i))
		down[i] = 100 * math.Pow(0.99, float64(i))
	}

	fu, ok := ComputeFeatures(up)
	if !ok {
		t.Fatal("features unavailable for uptrend")
	}
	if fu.TrendStrength <= 0 {
		t.Errorf("uptrend strength = %v, want > 0", fu.TrendStrength)
	}

	fd, _ := ComputeFeatures(down)
	if fd.TrendStrength >= 0 {
		t.Errorf("downtrend strength = %v, want < 0", fd.TrendStrength)
	}
}

func TestComputeFeaturesVolScale(t *testing.T) {
	// A steady ±2% daily alternation is a high-vol tape on the
	// annualized scale the thresholds use.
	prices := make([]float64, 60)
	prices[0] = 100
	for i := 1; i < len(prices); i++ {
		if i%2 == 0 {
			prices[i] = prices[i-1] * 1.02
		} else {
			prices[i] = prices[i-1] * 0.98
		}
	}
	f, ok := ComputeFeatures(prices)
	if !ok {
		t.Fatal("features unavailable")
	}
	if f.Volatility < 22 {
		t.Errorf("volatility = %v, want > 22 for a 2%% daily tape", f.Volatility)
	}
	if f.MeanReversion <= 0.5 {
		t.Errorf("mean reversion = %v, want > 0.5 for alternating returns", f.MeanReversion)
	}
}

func TestDailyVol(t *testing.T) {
	flat := []float64{100, 100, 100, 100, 100}
	if v := DailyVol(flat); v != 0 {
		t.Errorf("flat series vol = %v, want 0", v)
	}

	prices := make([]float64, 30)
	prices[0] = 100
	for i := 1; i < len(prices); i++ {
		if i%2 == 0 {
			prices[i] = prices[i-1] * 1.02
		} else {
			prices[i] = prices[i-1] * 0.98
		}
	}
	v := DailyVol(prices)
	if v < 0.01 || v > 0.05 {
		t.Errorf("daily vol = %v, want around 0.02", v)
	}
}
