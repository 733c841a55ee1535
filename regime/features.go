package regime

import "math"

// Features is the snapshot the classifier runs on. Volatility is an
// annualized percentage level (VIX-like scale), TermSlope is long-window
// minus short-window volatility (negative = short-term vol spiking),
// TrendStrength is -1..+1 and MeanReversion is 0..1.
type Features struct {
	Volatility    float64 `json:"volatility"`
	TermSlope     float64 `json:"term_slope"`
	TrendStrength float64 `json:"trend_strength"`
	MeanReversion float64 `json:"mean_reversion"`
}

// minBars is the history needed before any classification is attempted.
const minBars = 20

// ComputeFeatures derives the feature vector from a price series
// (oldest first). Short histories yield the zero value and the caller
// classifies Unknown.
func ComputeFeatures(prices []float64) (Features, bool) {
	if len(prices) < minBars {
		return Features{}, false
	}
	rets := returns(prices)
	shortVol := realizedVol(tail(rets, 10))
	longVol := realizedVol(tail(rets, 60))
	return Features{
		Volatility:    shortVol,
		TermSlope:     longVol - shortVol,
		TrendStrength: trendStrength(prices),
		MeanReversion: meanReversionScore(rets),
	}, true
}

// trendStrength blends momentum over three horizons, short-term
// weighted most heavily, clamped to -1..+1.
func trendStrength(prices []float64) float64 {
	n := len(prices)
	if n < 50 {
		// Fall back to the horizons we have.
		if n < 20 {
			return clampF(momentum(prices, 5)*100/5.0, -1, 1)
		}
		raw := (momentum(prices, 5)*0.6 + momentum(prices, 20)*0.4) * 100
		return clampF(raw/5.0, -1, 1)
	}
	raw := (momentum(prices, 5)*0.5 + momentum(prices, 20)*0.3 + momentum(prices, 50)*0.2) * 100
	return clampF(raw/5.0, -1, 1)
}

// momentum is the fractional change over the last n bars.
func momentum(prices []float64, n int) float64 {
	last := prices[len(prices)-1]
	base := prices[len(prices)-n]
	if base == 0 {
		return 0
	}
	return (last - base) / base
}

// meanReversionScore maps the lag-1 autocorrelation of recent returns
// to 0..1, where 1 = strongly mean-reverting (negative autocorrelation).
func meanReversionScore(rets []float64) float64 {
	rets = tail(rets, 30)
	if len(rets) < 10 {
		return 0.5
	}
	mean := 0.0
	for _, r := range rets {
		mean += r
	}
	mean /= float64(len(rets))

	variance := 0.0
	for _, r := range rets {
		variance += (r - mean) * (r - mean)
	}
	if variance == 0 {
		return 0.5
	}
	cov := 0.0
	for i := 1; i < len(rets); i++ {
		cov += (rets[i] - mean) * (rets[i-1] - mean)
	}
	autocorr := cov / variance
	return clampF(0.5-autocorr, 0, 1)
}

// DailyVol is the plain standard deviation of recent returns as a
// fraction (0.02 = 2% daily moves). Risk sizing consumes this directly.
func DailyVol(prices []float64) float64 {
	rets := returns(prices)
	if len(rets) < 2 {
		return 0
	}
	return realizedVol(tail(rets, 20)) / (math.Sqrt(252) * 100)
}

// realizedVol annualizes the standard deviation of returns onto a
// VIX-like percentage scale, assuming daily bars.
func realizedVol(rets []float64) float64 {
	if len(rets) < 2 {
		return 0
	}
	mean := 0.0
	for _, r := range rets {
		mean += r
	}
	mean /= float64(len(rets))

	variance := 0.0
	for _, r := range rets {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(rets) - 1)
	return math.Sqrt(variance) * math.Sqrt(252) * 100
}

func returns(prices []float64) []float64 {
	if len(prices) < 2 {
		return nil
	}
	rets := make([]float64, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		if prices[i-1] == 0 {
			continue
		}
		rets = append(rets, (prices[i]-prices[i-1])/prices[i-1])
	}
	return rets
}

func tail(xs []float64, n int) []float64 {
	if len(xs) <= n {
		return xs
	}
	return xs[len(xs)-n:]
}

func clampF(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
