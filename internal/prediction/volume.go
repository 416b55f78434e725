package prediction

import (
	"math"

	"edge-engine/internal/indicators"
	"edge-engine/internal/market"
)

// analyzeVolume looks for volume spikes confirming the latest bar's
// direction and for on-balance-volume divergence against price.
func analyzeVolume(candles []market.Candle) []TechnicalFactor {
	var factors []TechnicalFactor
	if len(candles) < 21 {
		return factors
	}

	last := candles[len(candles)-1]
	avgVol := indicators.AverageVolume(candles[:len(candles)-1], 20)
	if avgVol > 0 {
		ratio := last.Volume / avgVol
		if ratio >= 2.0 {
			dir := market.DirectionSell
			if last.IsBullish() {
				dir = market.DirectionBuy
			}
			factors = append(factors, TechnicalFactor{
				Category:   CategoryVolume,
				Name:       "volume_spike",
				Direction:  dir,
				Strength:   math.Min(3+ratio, 9),
				Confidence: math.Min(0.5+ratio*0.1, 0.85),
			})
		}
	}

	// OBV trend: accumulation supports buys, distribution supports sells.
	obvTrend := indicators.OBVTrend(candles, 10)
	if math.Abs(obvTrend) > 0.15 {
		dir := market.DirectionBuy
		if obvTrend < 0 {
			dir = market.DirectionSell
		}
		factors = append(factors, TechnicalFactor{
			Category:   CategoryVolume,
			Name:       "obv_trend",
			Direction:  dir,
			Strength:   math.Min(3+math.Abs(obvTrend)*5, 8),
			Confidence: 0.55,
		})
	}

	return factors
}
