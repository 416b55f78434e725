// Package indicators provides the technical indicator math shared by the
// regime detector, the base model, and the barrier calculator. All functions
// operate on the most recent bars of a candle slice and return zero values
// when there is not enough history.
package indicators

import (
	"math"

	"edge-engine/internal/market"
)

// ============================================================================
// MOVING AVERAGES
// ============================================================================

// SMA calculates the Simple Moving Average of closes.
func SMA(candles []market.Candle, period int) float64 {
	if period <= 0 || len(candles) < period {
		return 0
	}

	sum := 0.0
	for i := len(candles) - period; i < len(candles); i++ {
		sum += candles[i].Close
	}
	return sum / float64(period)
}

// EMA calculates the Exponential Moving Average of closes.
func EMA(candles []market.Candle, period int) float64 {
	if period <= 0 || len(candles) < period {
		return 0
	}

	ema := SMA(candles[:period], period)
	multiplier := 2.0 / float64(period+1)

	for i := period; i < len(candles); i++ {
		ema = (candles[i].Close * multiplier) + (ema * (1 - multiplier))
	}
	return ema
}

// ============================================================================
// RSI (Relative Strength Index)
// ============================================================================

// RSI calculates the Relative Strength Index. Returns the neutral value 50
// when there is not enough history.
func RSI(candles []market.Candle, period int) float64 {
	if period <= 0 || len(candles) < period+1 {
		return 50.0
	}

	gains := 0.0
	losses := 0.0
	for i := len(candles) - period; i < len(candles); i++ {
		change := candles[i].Close - candles[i-1].Close
		if change > 0 {
			gains += change
		} else {
			losses += -change
		}
	}

	avgGain := gains / float64(period)
	avgLoss := losses / float64(period)
	if avgLoss == 0 {
		return 100.0
	}

	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs))
}

// ============================================================================
// MACD (Moving Average Convergence Divergence)
// ============================================================================

// MACDResult holds the MACD line, signal line and histogram.
type MACDResult struct {
	MACD      float64
	Signal    float64
	Histogram float64
}

// MACD calculates MACD with the standard 12/26/9 parameterization.
func MACD(candles []market.Candle) MACDResult {
	if len(candles) < 35 {
		return MACDResult{}
	}

	macdLine := EMA(candles, 12) - EMA(candles, 26)

	// Approximate the signal line by recomputing the MACD line over a
	// trailing window and smoothing it.
	signal := 0.0
	count := 0
	for offset := 8; offset >= 0; offset-- {
		end := len(candles) - offset
		if end < 35 {
			continue
		}
		window := candles[:end]
		signal += EMA(window, 12) - EMA(window, 26)
		count++
	}
	if count > 0 {
		signal /= float64(count)
	}

	return MACDResult{
		MACD:      macdLine,
		Signal:    signal,
		Histogram: macdLine - signal,
	}
}

// ============================================================================
// BOLLINGER BANDS
// ============================================================================

// BollingerBands holds the upper, middle and lower band values.
type BollingerBands struct {
	Upper  float64
	Middle float64
	Lower  float64
}

// Bollinger calculates Bollinger Bands (SMA ± stdDevs standard deviations).
func Bollinger(candles []market.Candle, period int, stdDevs float64) BollingerBands {
	if period <= 0 || len(candles) < period {
		return BollingerBands{}
	}

	middle := SMA(candles, period)
	variance := 0.0
	for i := len(candles) - period; i < len(candles); i++ {
		diff := candles[i].Close - middle
		variance += diff * diff
	}
	sd := math.Sqrt(variance / float64(period))

	return BollingerBands{
		Upper:  middle + stdDevs*sd,
		Middle: middle,
		Lower:  middle - stdDevs*sd,
	}
}

// ============================================================================
// ATR (Average True Range)
// ============================================================================

// ATR calculates the Average True Range over the given period.
func ATR(candles []market.Candle, period int) float64 {
	if period <= 0 || len(candles) < period+1 {
		return 0
	}

	sum := 0.0
	for i := len(candles) - period; i < len(candles); i++ {
		sum += trueRange(candles[i], candles[i-1])
	}
	return sum / float64(period)
}

func trueRange(current, previous market.Candle) float64 {
	tr := current.High - current.Low
	if hc := math.Abs(current.High - previous.Close); hc > tr {
		tr = hc
	}
	if lc := math.Abs(current.Low - previous.Close); lc > tr {
		tr = lc
	}
	return tr
}

// ============================================================================
// MOMENTUM
// ============================================================================

// ROC calculates the Rate of Change over the given lookback, as a fraction.
func ROC(candles []market.Candle, lookback int) float64 {
	if lookback <= 0 || len(candles) < lookback+1 {
		return 0
	}

	past := candles[len(candles)-1-lookback].Close
	if past == 0 {
		return 0
	}
	return (candles[len(candles)-1].Close - past) / past
}

// ============================================================================
// VOLUME
// ============================================================================

// OBV calculates On-Balance Volume over the full candle slice.
func OBV(candles []market.Candle) float64 {
	obv := 0.0
	for i := 1; i < len(candles); i++ {
		switch {
		case candles[i].Close > candles[i-1].Close:
			obv += candles[i].Volume
		case candles[i].Close < candles[i-1].Close:
			obv -= candles[i].Volume
		}
	}
	return obv
}

// OBVTrend compares OBV over the recent window against the prior window and
// returns the fractional change (positive = accumulation).
func OBVTrend(candles []market.Candle, window int) float64 {
	if window <= 0 || len(candles) < window*2 {
		return 0
	}

	recent := OBV(candles[len(candles)-window:])
	prior := OBV(candles[len(candles)-window*2 : len(candles)-window])
	denom := math.Abs(prior)
	if denom < 1e-9 {
		if recent > 0 {
			return 1
		}
		if recent < 0 {
			return -1
		}
		return 0
	}
	return (recent - prior) / denom
}

// AverageVolume returns the mean volume of the last period bars.
func AverageVolume(candles []market.Candle, period int) float64 {
	if period <= 0 || len(candles) < period {
		return 0
	}

	sum := 0.0
	for i := len(candles) - period; i < len(candles); i++ {
		sum += candles[i].Volume
	}
	return sum / float64(period)
}

// ============================================================================
// DISPERSION
// ============================================================================

// ReturnStdDev calculates the standard deviation of bar-over-bar returns for
// the last period bars.
func ReturnStdDev(candles []market.Candle, period int) float64 {
	if period <= 1 || len(candles) < period+1 {
		return 0
	}

	returns := make([]float64, 0, period)
	for i := len(candles) - period; i < len(candles); i++ {
		if candles[i-1].Close == 0 {
			continue
		}
		returns = append(returns, (candles[i].Close-candles[i-1].Close)/candles[i-1].Close)
	}
	if len(returns) < 2 {
		return 0
	}

	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	variance := 0.0
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	return math.Sqrt(variance / float64(len(returns)))
}

// StdDev calculates the standard deviation of an arbitrary series.
func StdDev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}

	mean := 0.0
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))

	variance := 0.0
	for _, v := range values {
		variance += (v - mean) * (v - mean)
	}
	return math.Sqrt(variance / float64(len(values)))
}
