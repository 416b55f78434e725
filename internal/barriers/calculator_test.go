package barriers

import (
	"math"
	"testing"
	"time"

	"edge-engine/internal/market"
	"edge-engine/internal/regime"
)

func flatCandles(n int, price float64) []market.Candle {
	candles := make([]market.Candle, n)
	ts := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	for i := range candles {
		candles[i] = market.Candle{
			Open:      price,
			High:      price + 1,
			Low:       price - 1,
			Close:     price,
			Volume:    1000,
			Timestamp: ts.Add(time.Duration(i) * time.Minute),
		}
	}
	return candles
}

func TestCalculateBuyOrdering(t *testing.T) {
	calc := NewCalculator()
	reg := regime.MarketRegime{Type: regime.TrendingBullish, Volatility: 0.5, RiskMultiplier: 1.0}
	entry := 100.0

	levels := calc.Calculate(entry, market.DirectionBuy, reg, flatCandles(60, entry))

	if !(levels.StopLoss < entry && entry < levels.TakeProfit) {
		t.Fatalf("buy barriers not ordered: sl=%.4f entry=%.4f tp=%.4f",
			levels.StopLoss, entry, levels.TakeProfit)
	}

	// ATR on flat +-1 candles is 2.0; volScale 1.4 gives a 4.2 stop
	// distance and an 8.4 target distance.
	if math.Abs(levels.StopLoss-95.8) > 1e-9 {
		t.Errorf("stop loss = %.6f, want 95.8", levels.StopLoss)
	}
	if math.Abs(levels.TakeProfit-108.4) > 1e-9 {
		t.Errorf("take profit = %.6f, want 108.4", levels.TakeProfit)
	}
	if rr := levels.RiskReward(entry, market.DirectionBuy); math.Abs(rr-2.0) > 1e-9 {
		t.Errorf("risk reward = %.6f, want 2.0", rr)
	}
}

func TestCalculateSellMirrorsBuy(t *testing.T) {
	calc := NewCalculator()
	reg := regime.MarketRegime{Type: regime.TrendingBearish, Volatility: 0.5, RiskMultiplier: 1.0}
	entry := 100.0
	candles := flatCandles(60, entry)

	buy := calc.Calculate(entry, market.DirectionBuy, reg, candles)
	sell := calc.Calculate(entry, market.DirectionSell, reg, candles)

	if math.Abs((entry-buy.StopLoss)-(sell.StopLoss-entry)) > 1e-9 {
		t.Errorf("stop distances differ: buy=%.6f sell=%.6f",
			entry-buy.StopLoss, sell.StopLoss-entry)
	}
	if !(sell.TakeProfit < entry && entry < sell.StopLoss) {
		t.Fatalf("sell barriers not ordered: tp=%.4f entry=%.4f sl=%.4f",
			sell.TakeProfit, entry, sell.StopLoss)
	}
	if rr := sell.RiskReward(entry, market.DirectionSell); math.Abs(rr-2.0) > 1e-9 {
		t.Errorf("sell risk reward = %.6f, want 2.0", rr)
	}
}

func TestCalculateFallbackWithoutATR(t *testing.T) {
	calc := NewCalculator()
	reg := regime.MarketRegime{Type: regime.Neutral, Volatility: 0, RiskMultiplier: 1.0}
	entry := 200.0

	// 5 candles is below the ATR window, so the 1% fallback applies.
	levels := calc.Calculate(entry, market.DirectionBuy, reg, flatCandles(5, entry))

	if math.Abs(levels.StopLoss-197.0) > 1e-9 {
		t.Errorf("stop loss = %.6f, want 197.0", levels.StopLoss)
	}
	if math.Abs(levels.TakeProfit-206.0) > 1e-9 {
		t.Errorf("take profit = %.6f, want 206.0", levels.TakeProfit)
	}
}

func TestLowRiskMultiplierPullsTargetIn(t *testing.T) {
	calc := NewCalculator()
	entry := 100.0
	candles := flatCandles(60, entry)

	normal := regime.MarketRegime{Type: regime.TrendingBullish, Volatility: 0.5, RiskMultiplier: 1.0}
	shock := regime.MarketRegime{Type: regime.ShockDown, Volatility: 0.5, RiskMultiplier: 0.3}

	wide := calc.Calculate(entry, market.DirectionBuy, normal, candles)
	tight := calc.Calculate(entry, market.DirectionBuy, shock, candles)

	if tight.TakeProfit >= wide.TakeProfit {
		t.Errorf("shock target %.4f should sit inside normal target %.4f",
			tight.TakeProfit, wide.TakeProfit)
	}
	if tight.StopLoss != wide.StopLoss {
		t.Errorf("risk multiplier must not move the stop: %.4f vs %.4f",
			tight.StopLoss, wide.StopLoss)
	}
}

func TestRiskRewardDegenerateStop(t *testing.T) {
	levels := Levels{StopLoss: 101, TakeProfit: 110}
	if rr := levels.RiskReward(100, market.DirectionBuy); rr != 0 {
		t.Errorf("inverted buy stop should yield 0, got %.4f", rr)
	}
}
