package adaptive

import (
	"time"

	"edge-engine/internal/regime"
)

// Feature-weight bounds and recalibration cadence.
const (
	minFeatureWeight = 0.1
	maxFeatureWeight = 2.0

	calibrationTradeInterval = 20
	calibrationTimeInterval  = 7 * 24 * time.Hour

	// Exponential decay toward the calibrated value.
	weightDecayOld = 0.95
	weightDecayNew = 0.05
)

// newLearningState seeds the per-regime learning state with unit weights.
func newLearningState(rt regime.Type, now time.Time) *OnlineLearningState {
	return &OnlineLearningState{
		Regime:          rt,
		LastCalibration: now,
		FeatureWeights: map[string]float64{
			regime.CategoryTechnical: 1.0,
			regime.CategoryPattern:   1.0,
			regime.CategoryVolume:    1.0,
			regime.CategoryMomentum:  1.0,
		},
	}
}

// recordTrade folds one realized outcome into the incremental statistics.
func (s *OnlineLearningState) recordTrade(realizedR float64, win bool) {
	s.TotalTrades++
	s.tradesSinceCalibration++

	// Incremental win rate.
	if win {
		s.WinRate += (1 - s.WinRate) / float64(s.TotalTrades)
	} else {
		s.WinRate -= s.WinRate / float64(s.TotalTrades)
	}

	s.returns = append(s.returns, realizedR)
	if len(s.returns) > 200 {
		s.returns = s.returns[1:]
	}
	mean, sd := meanStd(s.returns)
	s.AvgReturn = mean
	s.Volatility = sd
	s.Performance.HitRate = s.WinRate
}

// maybeRecalibrate nudges the feature weights every 20 trades or 7 days,
// whichever comes first. The calibrated target is the current weight nudged
// 2% in the direction performance suggests, bounded, and the stored weight
// decays toward it (0.95 old / 0.05 new). Returns true when weights moved.
func (s *OnlineLearningState) maybeRecalibrate(now time.Time) bool {
	if s.tradesSinceCalibration < calibrationTradeInterval &&
		now.Sub(s.LastCalibration) < calibrationTimeInterval {
		return false
	}
	if s.TotalTrades == 0 {
		s.LastCalibration = now
		return false
	}

	nudge := 1.02
	if s.WinRate < 0.5 || s.AvgReturn < 0 {
		nudge = 1.0 / 1.02
	}

	for category, w := range s.FeatureWeights {
		target := clampRange(w*nudge, minFeatureWeight, maxFeatureWeight)
		s.FeatureWeights[category] = clampRange(
			weightDecayOld*w+weightDecayNew*target,
			minFeatureWeight, maxFeatureWeight)
	}

	s.tradesSinceCalibration = 0
	s.LastCalibration = now
	s.Performance.Calibrations++
	return true
}
