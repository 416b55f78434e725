// Package barriers derives stop-loss and take-profit levels from entry
// price, direction and regime volatility. Pure functions, no state.
package barriers

import (
	"edge-engine/internal/indicators"
	"edge-engine/internal/market"
	"edge-engine/internal/regime"
)

// Levels holds the exit barriers for a candidate trade.
type Levels struct {
	StopLoss   float64 `json:"stop_loss"`
	TakeProfit float64 `json:"take_profit"`
}

// RiskReward returns |tp-entry| / |entry-sl|, or 0 when the stop distance is
// degenerate.
func (l Levels) RiskReward(entry float64, direction market.Direction) float64 {
	risk := entry - l.StopLoss
	reward := l.TakeProfit - entry
	if direction == market.DirectionSell {
		risk = l.StopLoss - entry
		reward = entry - l.TakeProfit
	}
	if risk <= 0 {
		return 0
	}
	return reward / risk
}

// Calculator derives barrier levels. ATR is the volatility proxy; regime
// volatility widens the stop and the shock/crisis regimes widen it further
// through the risk multiplier.
type Calculator struct {
	atrPeriod     int
	stopATRMult   float64
	targetATRMult float64
}

// NewCalculator creates a calculator with the default 14-bar ATR, 1.5x ATR
// stop and 3x ATR target.
func NewCalculator() *Calculator {
	return &Calculator{
		atrPeriod:     14,
		stopATRMult:   1.5,
		targetATRMult: 3.0,
	}
}

// Calculate returns stop-loss and take-profit for the given entry. With too
// little history for an ATR it falls back to a 1% stop distance.
func (c *Calculator) Calculate(entry float64, direction market.Direction, reg regime.MarketRegime, candles []market.Candle) Levels {
	atr := indicators.ATR(candles, c.atrPeriod)
	if atr == 0 {
		atr = entry * 0.01
	}

	// Higher regime volatility widens both barriers; a low risk multiplier
	// (shock, crisis) pulls the target in so the trade pays for its risk
	// sooner.
	volScale := 1.0 + reg.Volatility*0.8
	stopDist := atr * c.stopATRMult * volScale
	targetDist := atr * c.targetATRMult * volScale * (0.6 + 0.4*reg.RiskMultiplier)

	if direction == market.DirectionSell {
		return Levels{
			StopLoss:   entry + stopDist,
			TakeProfit: entry - targetDist,
		}
	}
	return Levels{
		StopLoss:   entry - stopDist,
		TakeProfit: entry + targetDist,
	}
}
