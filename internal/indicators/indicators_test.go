package indicators

import (
	"math"
	"testing"

	"edge-engine/internal/market"
)

func flatCandles(n int, price float64) []market.Candle {
	candles := make([]market.Candle, n)
	for i := range candles {
		candles[i] = market.Candle{Open: price, High: price + 1, Low: price - 1, Close: price, Volume: 1000}
	}
	return candles
}

func risingCandles(n int, start, step float64) []market.Candle {
	candles := make([]market.Candle, n)
	price := start
	for i := range candles {
		candles[i] = market.Candle{Open: price, High: price + step, Low: price - step, Close: price + step, Volume: 1000}
		price += step
	}
	return candles
}

func TestSMA(t *testing.T) {
	candles := []market.Candle{
		{Close: 10}, {Close: 20}, {Close: 30}, {Close: 40},
	}
	if got := SMA(candles, 4); got != 25 {
		t.Errorf("SMA = %v, want 25", got)
	}
	// Only the trailing window counts.
	if got := SMA(candles, 2); got != 35 {
		t.Errorf("SMA(2) = %v, want 35", got)
	}
	if got := SMA(candles, 10); got != 0 {
		t.Errorf("SMA with insufficient data = %v, want 0", got)
	}
}

func TestEMAConvergesToConstant(t *testing.T) {
	candles := flatCandles(60, 100)
	if got := EMA(candles, 20); math.Abs(got-100) > 1e-9 {
		t.Errorf("EMA of constant series = %v, want 100", got)
	}
}

func TestRSI(t *testing.T) {
	// Insufficient data degrades to the neutral midpoint.
	if got := RSI(flatCandles(5, 100), 14); got != 50 {
		t.Errorf("RSI with insufficient data = %v, want 50", got)
	}
	// Monotonic gains read fully overbought.
	if got := RSI(risingCandles(30, 100, 1), 14); got != 100 {
		t.Errorf("RSI of monotonic rise = %v, want 100", got)
	}
}

func TestBollingerOrdering(t *testing.T) {
	bb := Bollinger(risingCandles(30, 100, 0.5), 20, 2.0)
	if !(bb.Lower < bb.Middle && bb.Middle < bb.Upper) {
		t.Errorf("band ordering violated: %+v", bb)
	}
}

func TestATRFlatRange(t *testing.T) {
	candles := flatCandles(30, 100)
	// Every bar spans exactly 2 points.
	if got := ATR(candles, 14); math.Abs(got-2) > 1e-9 {
		t.Errorf("ATR = %v, want 2", got)
	}
}

func TestROC(t *testing.T) {
	candles := risingCandles(20, 100, 1)
	got := ROC(candles, 10)
	last := candles[len(candles)-1].Close
	ref := candles[len(candles)-11].Close
	want := (last - ref) / ref
	if math.Abs(got-want) > 1e-12 {
		t.Errorf("ROC = %v, want %v", got, want)
	}
}

func TestOBVTrendDirection(t *testing.T) {
	up := risingCandles(40, 100, 1)
	// Heavier recent volume accelerates accumulation.
	for i := 30; i < 40; i++ {
		up[i].Volume = 3000
	}
	if got := OBVTrend(up, 10); got <= 0 {
		t.Errorf("OBVTrend of accelerating accumulation = %v, want > 0", got)
	}
}

func TestReturnStdDevUniform(t *testing.T) {
	// Multiplicative growth has identical fractional returns.
	candles := make([]market.Candle, 30)
	price := 100.0
	for i := range candles {
		candles[i] = market.Candle{Close: price}
		price *= 1.002
	}
	if got := ReturnStdDev(candles, 20); got > 1e-12 {
		t.Errorf("ReturnStdDev of uniform returns = %v, want 0", got)
	}
}

func TestStdDev(t *testing.T) {
	if got := StdDev([]float64{2, 2, 2}); got != 0 {
		t.Errorf("StdDev of constants = %v, want 0", got)
	}
	got := StdDev([]float64{1, 5})
	if math.Abs(got-2) > 1e-9 {
		t.Errorf("StdDev = %v, want 2", got)
	}
}
