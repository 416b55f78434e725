package adaptive

import (
	"math"
	"time"

	"edge-engine/internal/regime"
)

// Threshold bounds and learning parameters. Thresholds never leave
// [MinThreshold, MaxThreshold] regardless of update sequence.
const (
	MinThreshold = 0.001
	MaxThreshold = 0.2

	thresholdMomentum     = 0.9
	thresholdLearningRate = 0.1

	// Self-tuning requires at least this many recorded trades and this much
	// time since the previous update.
	minTradesForUpdate = 10
	updateThrottle     = 6 * time.Hour

	winRateTarget = 0.55
)

// defaultThresholds seeds each regime's acceptance threshold.
var defaultThresholds = map[regime.Type]float64{
	regime.TrendingBullish: 0.015,
	regime.TrendingBearish: 0.015,
	regime.RangingTight:    0.008,
	regime.RangingVolatile: 0.012,
	regime.ShockUp:         0.025,
	regime.ShockDown:       0.025,
	regime.LiquidityCrisis: 0.030,
	regime.NewsDriven:      0.020,
	regime.Breakout:        0.018,
	regime.Consolidation:   0.010,
	regime.Neutral:         0.015,
}

// newThreshold seeds the threshold state for a regime.
func newThreshold(rt regime.Type, now time.Time) *AdaptiveThreshold {
	seed, ok := defaultThresholds[rt]
	if !ok {
		seed = 0.015
	}
	return &AdaptiveThreshold{
		Regime:     rt,
		Threshold:  seed,
		Confidence: 0.5,
		LastUpdate: now,
	}
}

// recordTrade folds one realized R multiple into the performance stats.
func (t *AdaptiveThreshold) recordTrade(realizedR float64, win bool) {
	t.Performance.Trades++
	if win {
		t.Performance.Wins++
	}
	t.Performance.Accuracy = float64(t.Performance.Wins) / float64(t.Performance.Trades)

	t.returns = append(t.returns, realizedR)
	if len(t.returns) > 200 {
		t.returns = t.returns[1:]
	}

	mean, sd := meanStd(t.returns)
	t.Performance.Profitability = mean
	if sd > 0 {
		t.Performance.Sharpe = mean / sd
	}
	t.Performance.Drawdown = maxDrawdown(t.returns)
}

// maybeUpdate runs one gradient step if the regime has enough trades and the
// throttle window has elapsed. Returns true when the threshold moved.
func (t *AdaptiveThreshold) maybeUpdate(now time.Time) bool {
	if t.Performance.Trades < minTradesForUpdate {
		return false
	}
	if now.Sub(t.LastUpdate) < updateThrottle {
		return false
	}

	// Positive gradient raises the bar (cut losses), negative lowers it
	// (the regime earns more room). Weighted combination of Sharpe,
	// win-rate deviation from target, and drawdown.
	gradient := -0.5*t.Performance.Sharpe +
		0.3*(winRateTarget-t.Performance.Accuracy) +
		0.2*t.Performance.Drawdown

	t.velocity = thresholdMomentum*t.velocity + thresholdLearningRate*gradient*t.Threshold
	t.Threshold = clampRange(t.Threshold+t.velocity, MinThreshold, MaxThreshold)
	t.Confidence = clampRange(0.4+float64(t.Performance.Trades)/100, 0.4, 0.95)
	t.LastUpdate = now
	return true
}

// relax applies the rejection-pattern auto-relaxation: a flat 5% reduction,
// still bounded below.
func (t *AdaptiveThreshold) relax() {
	t.Threshold = clampRange(t.Threshold*0.95, MinThreshold, MaxThreshold)
}

func meanStd(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}
	mean := 0.0
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))

	if len(values) < 2 {
		return mean, 0
	}
	variance := 0.0
	for _, v := range values {
		variance += (v - mean) * (v - mean)
	}
	return mean, math.Sqrt(variance / float64(len(values)))
}

// maxDrawdown returns the worst peak-to-trough drop of the cumulative sum.
func maxDrawdown(values []float64) float64 {
	peak := 0.0
	cum := 0.0
	worst := 0.0
	for _, v := range values {
		cum += v
		if cum > peak {
			peak = cum
		}
		if dd := peak - cum; dd > worst {
			worst = dd
		}
	}
	return worst
}
