package prediction

import (
	"math"

	"edge-engine/internal/indicators"
	"edge-engine/internal/market"
)

// analyzeMomentum converts short and medium rate-of-change into directional
// factors when both horizons agree.
func analyzeMomentum(candles []market.Candle) []TechnicalFactor {
	var factors []TechnicalFactor
	if len(candles) < 11 {
		return factors
	}

	roc5 := indicators.ROC(candles, 5)
	roc10 := indicators.ROC(candles, 10)

	// Both horizons agreeing is the strong signal; a lone short-horizon
	// burst still counts, with less weight.
	switch {
	case roc5 > 0.004 && roc10 > 0.006:
		factors = append(factors, TechnicalFactor{
			Category:   CategoryMomentum,
			Name:       "momentum_aligned_up",
			Direction:  market.DirectionBuy,
			Strength:   math.Min(4+roc10*300, 9),
			Confidence: 0.65,
		})
	case roc5 < -0.004 && roc10 < -0.006:
		factors = append(factors, TechnicalFactor{
			Category:   CategoryMomentum,
			Name:       "momentum_aligned_down",
			Direction:  market.DirectionSell,
			Strength:   math.Min(4+math.Abs(roc10)*300, 9),
			Confidence: 0.65,
		})
	case math.Abs(roc5) > 0.008:
		dir := market.DirectionBuy
		if roc5 < 0 {
			dir = market.DirectionSell
		}
		factors = append(factors, TechnicalFactor{
			Category:   CategoryMomentum,
			Name:       "momentum_burst",
			Direction:  dir,
			Strength:   math.Min(3+math.Abs(roc5)*200, 7),
			Confidence: 0.5,
		})
	}

	return factors
}
