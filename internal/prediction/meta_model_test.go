package prediction

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"edge-engine/internal/barriers"
	"edge-engine/internal/logging"
	"edge-engine/internal/market"
	"edge-engine/internal/regime"
)

func fixedSamplerFactory(string) Sampler {
	return FixedSampler{Value: 0.5}
}

func flatSnapshot(hour int) *market.Snapshot {
	ts := time.Date(2026, 3, 10, hour, 0, 0, 0, time.UTC)
	candles := make([]market.Candle, 60)
	for i := range candles {
		candles[i] = market.Candle{
			Open: 100, High: 101, Low: 99, Close: 100,
			Volume:    1000,
			Timestamp: ts.Add(time.Duration(i-59) * time.Minute),
		}
	}
	return &market.Snapshot{Pair: "BTCUSDT", Timestamp: ts, CurrentPrice: 100, Candles: candles}
}

func buyCandidate(id string, factorCount int, rawStrength float64) CandidateSignal {
	factors := make([]TechnicalFactor, factorCount)
	for i := range factors {
		factors[i] = TechnicalFactor{
			Category:   CategoryTechnical,
			Name:       "test_factor",
			Direction:  market.DirectionBuy,
			Strength:   rawStrength / float64(factorCount),
			Confidence: 0.6,
		}
	}
	return CandidateSignal{
		ID:          id,
		Timestamp:   time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC),
		Pair:        "BTCUSDT",
		Direction:   market.DirectionBuy,
		EntryPrice:  100,
		Confidence:  0.6,
		Factors:     factors,
		RawStrength: rawStrength,
	}
}

func TestPredictProbabilityCeiling(t *testing.T) {
	mm := NewMetaModel(DefaultMetaConfig(), NewSignalHistory(), fixedSamplerFactory, logging.Discard())

	// Implausibly strong confluence pushes the raw probability above 1;
	// the ceiling must hold.
	pred := mm.Predict(buyCandidate("sig-hi", 5, 100),
		barriers.Levels{StopLoss: 99, TakeProfit: 102},
		trendingRegime(), flatSnapshot(14))

	assert.Equal(t, 0.95, pred.ProbabilityTPFirst)
}

func TestPredictProbabilityFloor(t *testing.T) {
	mm := NewMetaModel(DefaultMetaConfig(), NewSignalHistory(), fixedSamplerFactory, logging.Discard())

	// Zero-strength factors against a 20R target drive the raw
	// probability negative; the floor must hold.
	pred := mm.Predict(buyCandidate("sig-lo", 3, 0),
		barriers.Levels{StopLoss: 99, TakeProfit: 120},
		trendingRegime(), flatSnapshot(14))

	assert.Equal(t, 0.05, pred.ProbabilityTPFirst)
}

func TestPredictRiskComponentsBounded(t *testing.T) {
	mm := NewMetaModel(DefaultMetaConfig(), NewSignalHistory(), fixedSamplerFactory, logging.Discard())

	pred := mm.Predict(buyCandidate("sig-risk", 4, 24),
		barriers.Levels{StopLoss: 98, TakeProfit: 104},
		trendingRegime(), flatSnapshot(14))

	for name, v := range map[string]float64{
		"volatility": pred.VolatilityRisk,
		"liquidity":  pred.LiquidityRisk,
		"event":      pred.EventRisk,
		"combined":   pred.CombinedRisk,
	} {
		assert.GreaterOrEqual(t, v, 0.0, "%s risk below 0", name)
		assert.LessOrEqual(t, v, 1.0, "%s risk above 1", name)
	}
	assert.InDelta(t, 0.4*pred.VolatilityRisk+0.3*pred.LiquidityRisk+0.3*pred.EventRisk,
		pred.CombinedRisk, 1e-9)
}

func TestPredictExpectedReturnFormula(t *testing.T) {
	mm := NewMetaModel(DefaultMetaConfig(), NewSignalHistory(), fixedSamplerFactory, logging.Discard())

	levels := barriers.Levels{StopLoss: 99, TakeProfit: 102}
	pred := mm.Predict(buyCandidate("sig-er", 4, 24), levels, trendingRegime(), flatSnapshot(14))

	rr := levels.RiskReward(100, market.DirectionBuy)
	p := pred.ProbabilityTPFirst
	assert.InDelta(t, p*rr-(1-p), pred.ExpectedOutcome.ExpectedReturn, 1e-9)
	assert.Equal(t, rr, pred.MarketConditions.RiskReward)
}

func TestPredictConfidenceIntervalContainsP(t *testing.T) {
	mm := NewMetaModel(DefaultMetaConfig(), NewSignalHistory(), fixedSamplerFactory, logging.Discard())

	pred := mm.Predict(buyCandidate("sig-ci", 4, 24),
		barriers.Levels{StopLoss: 99, TakeProfit: 102},
		trendingRegime(), flatSnapshot(14))

	// A fixed sampler collapses the jitter, so both intervals degenerate
	// to their point estimates.
	require.Equal(t, pred.ProbabilityTPFirst, pred.ConfidenceInterval[0])
	require.Equal(t, pred.ProbabilityTPFirst, pred.ConfidenceInterval[1])
	assert.InDelta(t, pred.ExpectedOutcome.ExpectedReturn, pred.ReturnInterval[0], 1e-9)
	assert.InDelta(t, pred.ExpectedOutcome.ExpectedReturn, pred.ReturnInterval[1], 1e-9)
}

func TestPredictSeededSamplerDeterministic(t *testing.T) {
	mm := NewMetaModel(DefaultMetaConfig(), NewSignalHistory(), SeededSamplerFactory, logging.Discard())

	candidate := buyCandidate("sig-seed", 4, 24)
	levels := barriers.Levels{StopLoss: 99, TakeProfit: 102}
	snap := flatSnapshot(14)
	reg := trendingRegime()

	first := mm.Predict(candidate, levels, reg, snap)
	second := mm.Predict(candidate, levels, reg, snap)

	require.Equal(t, first.ConfidenceInterval, second.ConfidenceInterval)
	require.Equal(t, first.ReturnInterval, second.ReturnInterval)
	assert.LessOrEqual(t, first.ConfidenceInterval[0], first.ProbabilityTPFirst)
	assert.GreaterOrEqual(t, first.ConfidenceInterval[1], first.ProbabilityTPFirst)
	assert.LessOrEqual(t, first.ReturnInterval[0], first.ExpectedOutcome.ExpectedReturn)
	assert.GreaterOrEqual(t, first.ReturnInterval[1], first.ExpectedOutcome.ExpectedReturn)
}

func TestPredictPendingHighImpactNews(t *testing.T) {
	mm := NewMetaModel(DefaultMetaConfig(), NewSignalHistory(), fixedSamplerFactory, logging.Discard())

	snap := flatSnapshot(14)
	snap.News = []market.NewsEvent{
		{Currency: "USD", Impact: market.ImpactHigh, Time: snap.Timestamp.Add(3 * time.Hour)},
	}

	pred := mm.Predict(buyCandidate("sig-news", 4, 24),
		barriers.Levels{StopLoss: 99, TakeProfit: 102},
		trendingRegime(), snap)

	assert.Equal(t, 1, pred.MarketConditions.PendingHighNews)
	assert.InDelta(t, 0.2, pred.EventRisk, 1e-9)
}

func TestPredictHoldingTimeByRegime(t *testing.T) {
	mm := NewMetaModel(DefaultMetaConfig(), NewSignalHistory(), fixedSamplerFactory, logging.Discard())

	// Volatility 0.5 leaves the regime base unscaled.
	pred := mm.Predict(buyCandidate("sig-hold", 4, 24),
		barriers.Levels{StopLoss: 99, TakeProfit: 102},
		trendingRegime(), flatSnapshot(14))
	assert.Equal(t, 4*time.Hour, pred.ExpectedOutcome.ExpectedHoldingTime)

	shock := regime.MarketRegime{Type: regime.ShockDown, Confidence: 0.8, Volatility: 0.5, RiskMultiplier: 0.3}
	pred = mm.Predict(buyCandidate("sig-hold-2", 4, 24),
		barriers.Levels{StopLoss: 99, TakeProfit: 102}, shock, flatSnapshot(14))
	assert.Equal(t, 30*time.Minute, pred.ExpectedOutcome.ExpectedHoldingTime)
}

func TestEnhanceScoringAndProfile(t *testing.T) {
	candidate := buyCandidate("sig-enh", 4, 24)
	candidate.Confidence = 0.5

	meta := MetaPrediction{
		SignalID:           candidate.ID,
		ProbabilityTPFirst: 0.9,
		CombinedRisk:       0.2,
		ExpectedOutcome:    ExpectedOutcome{RiskAdjustedReturn: 1.5},
		Regime:             trendingRegime(),
	}

	enhanced := Enhance(candidate, meta, barriers.Levels{StopLoss: 99, TakeProfit: 102})

	assert.InDelta(t, 0.74, enhanced.FinalScore, 1e-9)
	assert.Equal(t, Buy, enhanced.Recommendation)
	assert.Equal(t, ProfileAggressive, enhanced.RiskProfile)
}
