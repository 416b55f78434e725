package prediction

import (
	"edge-engine/internal/market"
)

// analyzeCandlesticks scans the most recent bars for reversal patterns.
// Only patterns on the last two closed bars generate factors; older
// formations have already played out.
func analyzeCandlesticks(candles []market.Candle) []TechnicalFactor {
	var factors []TechnicalFactor
	if len(candles) < 3 {
		return factors
	}

	last := candles[len(candles)-1]
	prev := candles[len(candles)-2]

	if isBullishEngulfing(prev, last) {
		factors = append(factors, TechnicalFactor{
			Category:   CategoryPattern,
			Name:       "bullish_engulfing",
			Direction:  market.DirectionBuy,
			Strength:   6,
			Confidence: 0.65,
		})
	}
	if isBearishEngulfing(prev, last) {
		factors = append(factors, TechnicalFactor{
			Category:   CategoryPattern,
			Name:       "bearish_engulfing",
			Direction:  market.DirectionSell,
			Strength:   6,
			Confidence: 0.65,
		})
	}
	if isHammer(last) && downMove(candles, 5) {
		factors = append(factors, TechnicalFactor{
			Category:   CategoryPattern,
			Name:       "hammer",
			Direction:  market.DirectionBuy,
			Strength:   5,
			Confidence: 0.6,
		})
	}
	if isShootingStar(last) && upMove(candles, 5) {
		factors = append(factors, TechnicalFactor{
			Category:   CategoryPattern,
			Name:       "shooting_star",
			Direction:  market.DirectionSell,
			Strength:   5,
			Confidence: 0.6,
		})
	}
	if isDoji(last) {
		// Doji is indecision: a weak factor against the prior move.
		dir := market.DirectionSell
		if downMove(candles, 5) {
			dir = market.DirectionBuy
		}
		factors = append(factors, TechnicalFactor{
			Category:   CategoryPattern,
			Name:       "doji_indecision",
			Direction:  dir,
			Strength:   3,
			Confidence: 0.45,
		})
	}

	return factors
}

func isBullishEngulfing(prev, cur market.Candle) bool {
	return !prev.IsBullish() && cur.IsBullish() &&
		cur.Open <= prev.Close && cur.Close >= prev.Open &&
		cur.Body() > prev.Body()
}

func isBearishEngulfing(prev, cur market.Candle) bool {
	return prev.IsBullish() && !cur.IsBullish() &&
		cur.Open >= prev.Close && cur.Close <= prev.Open &&
		cur.Body() > prev.Body()
}

func isHammer(c market.Candle) bool {
	if c.Range() == 0 {
		return false
	}
	body := c.Body()
	lowerWick := bodyLow(c) - c.Low
	upperWick := c.High - bodyHigh(c)
	return lowerWick >= 2*body && upperWick <= body && body/c.Range() < 0.35
}

func isShootingStar(c market.Candle) bool {
	if c.Range() == 0 {
		return false
	}
	body := c.Body()
	upperWick := c.High - bodyHigh(c)
	lowerWick := bodyLow(c) - c.Low
	return upperWick >= 2*body && lowerWick <= body && body/c.Range() < 0.35
}

func isDoji(c market.Candle) bool {
	if c.Range() == 0 {
		return false
	}
	return c.Body()/c.Range() < 0.1
}

func bodyHigh(c market.Candle) float64 {
	if c.Open > c.Close {
		return c.Open
	}
	return c.Close
}

func bodyLow(c market.Candle) float64 {
	if c.Open < c.Close {
		return c.Open
	}
	return c.Close
}

// downMove reports whether the close fell over the trailing window,
// giving reversal patterns context.
func downMove(candles []market.Candle, window int) bool {
	if len(candles) < window+1 {
		return false
	}
	return candles[len(candles)-1].Close < candles[len(candles)-1-window].Close
}

func upMove(candles []market.Candle, window int) bool {
	if len(candles) < window+1 {
		return false
	}
	return candles[len(candles)-1].Close > candles[len(candles)-1-window].Close
}
