package prediction

import (
	"math"

	"edge-engine/internal/indicators"
	"edge-engine/internal/market"
)

// analyzeTechnical scans oscillators, moving-average crosses and bands.
func analyzeTechnical(candles []market.Candle) []TechnicalFactor {
	var factors []TechnicalFactor
	if len(candles) < 20 {
		return factors
	}

	price := candles[len(candles)-1].Close

	// RSI extremes
	rsi := indicators.RSI(candles, 14)
	if rsi <= 30 {
		factors = append(factors, TechnicalFactor{
			Category:   CategoryTechnical,
			Name:       "rsi_oversold",
			Direction:  market.DirectionBuy,
			Strength:   (30 - rsi) / 30 * 10,
			Confidence: 0.6 + (30-rsi)/100,
		})
	} else if rsi >= 70 {
		factors = append(factors, TechnicalFactor{
			Category:   CategoryTechnical,
			Name:       "rsi_overbought",
			Direction:  market.DirectionSell,
			Strength:   (rsi - 70) / 30 * 10,
			Confidence: 0.6 + (rsi-70)/100,
		})
	}

	// EMA cross (20 over 50)
	if len(candles) >= 51 {
		ema20 := indicators.EMA(candles, 20)
		ema50 := indicators.EMA(candles, 50)
		prevEMA20 := indicators.EMA(candles[:len(candles)-1], 20)
		prevEMA50 := indicators.EMA(candles[:len(candles)-1], 50)

		if ema20 > ema50 && prevEMA20 <= prevEMA50 {
			factors = append(factors, TechnicalFactor{
				Category:   CategoryTechnical,
				Name:       "ema_golden_cross",
				Direction:  market.DirectionBuy,
				Strength:   7,
				Confidence: 0.7,
			})
		} else if ema20 < ema50 && prevEMA20 >= prevEMA50 {
			factors = append(factors, TechnicalFactor{
				Category:   CategoryTechnical,
				Name:       "ema_death_cross",
				Direction:  market.DirectionSell,
				Strength:   7,
				Confidence: 0.7,
			})
		} else if ema50 > 0 {
			// Sustained separation reads as trend continuation evidence.
			spread := (ema20 - ema50) / ema50
			if math.Abs(spread) > 0.01 {
				dir := market.DirectionBuy
				if spread < 0 {
					dir = market.DirectionSell
				}
				factors = append(factors, TechnicalFactor{
					Category:   CategoryTechnical,
					Name:       "ema_trend_separation",
					Direction:  dir,
					Strength:   math.Min(math.Abs(spread)*300, 8),
					Confidence: 0.55,
				})
			}
		}
	}

	// Bollinger band touches
	bb := indicators.Bollinger(candles, 20, 2.0)
	if bb.Middle > 0 {
		if price <= bb.Lower {
			factors = append(factors, TechnicalFactor{
				Category:   CategoryTechnical,
				Name:       "bollinger_lower_touch",
				Direction:  market.DirectionBuy,
				Strength:   5 + math.Min((bb.Lower-price)/bb.Lower*500, 3),
				Confidence: 0.6,
			})
		} else if price >= bb.Upper {
			factors = append(factors, TechnicalFactor{
				Category:   CategoryTechnical,
				Name:       "bollinger_upper_touch",
				Direction:  market.DirectionSell,
				Strength:   5 + math.Min((price-bb.Upper)/bb.Upper*500, 3),
				Confidence: 0.6,
			})
		}
	}

	// MACD histogram flip
	macd := indicators.MACD(candles)
	if macd.Histogram > 0 && macd.MACD < 0 {
		factors = append(factors, TechnicalFactor{
			Category:   CategoryTechnical,
			Name:       "macd_bullish_turn",
			Direction:  market.DirectionBuy,
			Strength:   5,
			Confidence: 0.55,
		})
	} else if macd.Histogram < 0 && macd.MACD > 0 {
		factors = append(factors, TechnicalFactor{
			Category:   CategoryTechnical,
			Name:       "macd_bearish_turn",
			Direction:  market.DirectionSell,
			Strength:   5,
			Confidence: 0.55,
		})
	}

	return factors
}
