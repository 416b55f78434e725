package prediction

import (
	"testing"
	"time"

	"edge-engine/internal/logging"
	"edge-engine/internal/market"
	"edge-engine/internal/regime"
)

// trendSnapshot builds a 60-bar uptrend ending in a one-bar pullback and a
// high-volume bullish engulfing recovery. Technical, pattern, volume and
// momentum analyzers all fire buy-side on it.
func trendSnapshot() *market.Snapshot {
	ts := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)
	candles := make([]market.Candle, 60)

	price := 100.0
	for i := 0; i < 58; i++ {
		open := price
		price *= 1.0025
		candles[i] = market.Candle{
			Open:      open,
			High:      price * 1.008,
			Low:       open * 0.992,
			Close:     price,
			Volume:    1000,
			Timestamp: ts.Add(time.Duration(i-59) * time.Minute),
		}
	}

	top := candles[57].Close

	// Pullback bar.
	candles[58] = market.Candle{
		Open:      top,
		High:      top * 1.008,
		Low:       top * 0.99 * 0.992,
		Close:     top * 0.997,
		Volume:    1000,
		Timestamp: ts.Add(-1 * time.Minute),
	}

	// Engulfing recovery on heavy volume.
	candles[59] = market.Candle{
		Open:      top * 0.9968,
		High:      top * 1.0001 * 1.008,
		Low:       top * 0.9968 * 0.992,
		Close:     top * 1.0001,
		Volume:    2500,
		Timestamp: ts,
	}

	return &market.Snapshot{
		Pair:         "BTCUSDT",
		Timestamp:    ts,
		CurrentPrice: candles[59].Close,
		Candles:      candles,
	}
}

func trendingRegime() regime.MarketRegime {
	return regime.MarketRegime{
		Type:           regime.TrendingBullish,
		Confidence:     0.7,
		Volatility:     0.5,
		RiskMultiplier: 1.0,
	}
}

func TestGenerateCandidatesConfluence(t *testing.T) {
	bm := NewBaseModel(logging.Discard())
	snap := trendSnapshot()

	candidates := bm.GenerateCandidates(snap, trendingRegime(), nil)

	var buy *CandidateSignal
	for i := range candidates {
		if candidates[i].Direction == market.DirectionBuy {
			buy = &candidates[i]
		}
	}
	if buy == nil {
		t.Fatalf("expected a buy candidate, got %d candidates", len(candidates))
	}

	if len(buy.Factors) < 3 {
		t.Errorf("buy candidate has %d factors, want >= 3", len(buy.Factors))
	}
	if buy.Confidence < 0.3 || buy.Confidence > 1 {
		t.Errorf("candidate confidence %.3f out of range", buy.Confidence)
	}
	if buy.RawStrength <= 0 {
		t.Errorf("raw strength %.3f, want > 0", buy.RawStrength)
	}
	if buy.EntryPrice != snap.CurrentPrice {
		t.Errorf("entry price %.4f, want snapshot price %.4f", buy.EntryPrice, snap.CurrentPrice)
	}
	for _, f := range buy.Factors {
		if f.Direction != market.DirectionBuy {
			t.Errorf("factor %s has direction %s inside a buy candidate", f.Name, f.Direction)
		}
	}
}

func TestGenerateCandidatesDeterministicIDs(t *testing.T) {
	bm := NewBaseModel(logging.Discard())
	snap := trendSnapshot()
	reg := trendingRegime()

	first := bm.GenerateCandidates(snap, reg, nil)
	second := bm.GenerateCandidates(snap, reg, nil)

	if len(first) != len(second) {
		t.Fatalf("candidate count changed between runs: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].ID != second[i].ID {
			t.Errorf("candidate %d ID changed: %s vs %s", i, first[i].ID, second[i].ID)
		}
	}
}

func TestFeatureWeightsSuppressFactors(t *testing.T) {
	bm := NewBaseModel(logging.Discard())
	snap := trendSnapshot()

	zero := map[string]float64{
		CategoryTechnical: 0,
		CategoryPattern:   0,
		CategoryVolume:    0,
		CategoryMomentum:  0,
	}
	if candidates := bm.GenerateCandidates(snap, trendingRegime(), zero); len(candidates) != 0 {
		t.Errorf("zeroed feature weights still produced %d candidates", len(candidates))
	}
}

func TestRegimeAdjustmentSuppressesFactors(t *testing.T) {
	bm := NewBaseModel(logging.Discard())
	snap := trendSnapshot()

	reg := trendingRegime()
	reg.AdjustmentFactors = map[string]float64{
		CategoryTechnical: 0,
		CategoryPattern:   0,
		CategoryVolume:    0,
		CategoryMomentum:  0,
	}
	if candidates := bm.GenerateCandidates(snap, reg, nil); len(candidates) != 0 {
		t.Errorf("zeroed regime adjustments still produced %d candidates", len(candidates))
	}
}

func TestGenerateCandidatesInsufficientData(t *testing.T) {
	bm := NewBaseModel(logging.Discard())
	ts := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)

	candles := make([]market.Candle, 10)
	for i := range candles {
		candles[i] = market.Candle{
			Open: 100, High: 100.6, Low: 99.9, Close: 100.5,
			Volume:    1000,
			Timestamp: ts.Add(time.Duration(i-9) * time.Minute),
		}
	}
	snap := &market.Snapshot{Pair: "BTCUSDT", Timestamp: ts, CurrentPrice: 100.5, Candles: candles}

	if candidates := bm.GenerateCandidates(snap, trendingRegime(), nil); len(candidates) != 0 {
		t.Errorf("10 candles produced %d candidates, want 0", len(candidates))
	}
}
