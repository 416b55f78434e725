package prediction

import (
	"math"
	"sort"
	"time"

	"edge-engine/internal/barriers"
	"edge-engine/internal/indicators"
	"edge-engine/internal/logging"
	"edge-engine/internal/market"
	"edge-engine/internal/regime"
)

// MetaConfig carries the calibration parameters of the meta model. The
// defaults are illustrative and flagged for domain-expert calibration.
type MetaConfig struct {
	MonteCarloTrials int     `json:"monte_carlo_trials"` // default 1000
	ProbabilityFloor float64 `json:"probability_floor"`  // default 0.05
	ProbabilityCeil  float64 `json:"probability_ceil"`   // default 0.95
}

// DefaultMetaConfig returns the standard meta model parameters.
func DefaultMetaConfig() MetaConfig {
	return MetaConfig{
		MonteCarloTrials: 1000,
		ProbabilityFloor: 0.05,
		ProbabilityCeil:  0.95,
	}
}

// regimeBaseHoldingTimes is the expected holding period per regime before
// volatility scaling.
var regimeBaseHoldingTimes = map[regime.Type]time.Duration{
	regime.TrendingBullish: 4 * time.Hour,
	regime.TrendingBearish: 4 * time.Hour,
	regime.RangingTight:    2 * time.Hour,
	regime.RangingVolatile: 90 * time.Minute,
	regime.ShockUp:         30 * time.Minute,
	regime.ShockDown:       30 * time.Minute,
	regime.LiquidityCrisis: time.Hour,
	regime.NewsDriven:      time.Hour,
	regime.Breakout:        3 * time.Hour,
	regime.Consolidation:   2 * time.Hour,
	regime.Neutral:         2 * time.Hour,
}

// MetaModel is layer 2: given a candidate plus barrier levels it estimates
// the probability take-profit is hit before stop-loss, decomposes risk into
// volatility, liquidity and event components, and computes the expected
// outcome with a Monte-Carlo confidence interval.
type MetaModel struct {
	cfg        MetaConfig
	history    *SignalHistory
	newSampler SamplerFactory
	logger     *logging.Logger
}

// NewMetaModel creates a meta model. The sampler factory defaults to the
// signal-seeded deterministic source when nil.
func NewMetaModel(cfg MetaConfig, history *SignalHistory, samplerFactory SamplerFactory, logger *logging.Logger) *MetaModel {
	if cfg.MonteCarloTrials <= 0 {
		cfg.MonteCarloTrials = 1000
	}
	if cfg.ProbabilityFloor <= 0 {
		cfg.ProbabilityFloor = 0.05
	}
	if cfg.ProbabilityCeil <= 0 || cfg.ProbabilityCeil >= 1 {
		cfg.ProbabilityCeil = 0.95
	}
	if samplerFactory == nil {
		samplerFactory = SeededSamplerFactory
	}
	return &MetaModel{
		cfg:        cfg,
		history:    history,
		newSampler: samplerFactory,
		logger:     logger.WithComponent("meta_model"),
	}
}

// Predict computes the meta prediction for one candidate.
func (mm *MetaModel) Predict(candidate CandidateSignal, levels barriers.Levels, reg regime.MarketRegime, snap *market.Snapshot) MetaPrediction {
	rr := levels.RiskReward(candidate.EntryPrice, candidate.Direction)

	volRisk := mm.volatilityRisk(snap.Candles, reg)
	liqRisk := mm.liquidityRisk(snap, reg)
	evtRisk, pendingHigh := mm.eventRisk(snap.News, snap.Timestamp)
	combined := 0.4*volRisk + 0.3*liqRisk + 0.3*evtRisk

	p := mm.baseProbability(candidate, rr, reg)

	// Risk adjustment: high combined risk drags the hit probability down,
	// benign conditions lift it slightly. Bounded [0.5, 1.3].
	riskAdj := clampRange(1.15-0.6*combined, 0.5, 1.3)
	p = clampRange(p*riskAdj, mm.cfg.ProbabilityFloor, mm.cfg.ProbabilityCeil)

	expectedReturn := p*rr + (1-p)*(-1.0)
	holding := mm.expectedHoldingTime(reg)
	outcome := ExpectedOutcome{
		ExpectedReturn:      expectedReturn,
		ExpectedHoldingTime: holding,
		RiskAdjustedReturn:  expectedReturn * (1 - 0.5*combined),
		MaxDrawdownRisk:     clampRange(combined*1.2, 0, 1),
	}

	ci, retCI := mm.confidenceInterval(candidate.ID, p, rr)

	avgVol := indicators.AverageVolume(snap.Candles, 20)
	volumeRatio := 0.0
	if avgVol > 0 && len(snap.Candles) > 0 {
		volumeRatio = snap.Candles[len(snap.Candles)-1].Volume / avgVol
	}

	return MetaPrediction{
		SignalID:           candidate.ID,
		ProbabilityTPFirst: p,
		VolatilityRisk:     volRisk,
		LiquidityRisk:      liqRisk,
		EventRisk:          evtRisk,
		CombinedRisk:       combined,
		ExpectedOutcome:    outcome,
		ConfidenceInterval: ci,
		ReturnInterval:     retCI,
		Regime:             reg,
		MarketConditions: MarketConditions{
			ATRRatio:        atrRatio(snap.Candles),
			VolumeRatio:     volumeRatio,
			SessionHour:     snap.Timestamp.UTC().Hour(),
			PendingHighNews: pendingHigh,
			RiskReward:      rr,
		},
	}
}

// baseProbability builds the pre-adjustment hit probability from factor
// strength, confluence count, risk-reward, regime suitability, and the
// historical-performance adjustment.
func (mm *MetaModel) baseProbability(candidate CandidateSignal, rr float64, reg regime.MarketRegime) float64 {
	p := 0.5

	// Stronger average factor strength raises the probability.
	if n := len(candidate.Factors); n > 0 {
		avgStrength := candidate.RawStrength / float64(n)
		p += (avgStrength - 5.0) * 0.03
		// Confluence beyond the minimum three adds a smaller bonus.
		p += float64(n-3) * 0.02
	}

	// Wider targets are hit less often.
	p -= (rr - 2.0) * 0.05

	// Directional alignment with the regime.
	switch reg.TrendDirection() {
	case candidate.Direction:
		p += 0.07 * reg.Confidence
	case candidate.Direction.Opposite():
		p -= 0.07 * reg.Confidence
	}

	if mm.history != nil {
		p += mm.history.HistoricalAdjustment(reg.Type, string(candidate.Direction))
	}

	return p
}

func (mm *MetaModel) volatilityRisk(candles []market.Candle, reg regime.MarketRegime) float64 {
	ratio := atrRatio(candles)
	dispersion := indicators.ReturnStdDev(candles, 20)

	// ATR expansion above 1.0, regime volatility, and return dispersion
	// each contribute.
	risk := 0.4*clampRange((ratio-0.8)/1.2, 0, 1) +
		0.4*reg.Volatility +
		0.2*clampRange(dispersion/0.02, 0, 1)
	return clampRange(risk, 0, 1)
}

func (mm *MetaModel) liquidityRisk(snap *market.Snapshot, reg regime.MarketRegime) float64 {
	risk := 0.2
	switch reg.Type {
	case regime.LiquidityCrisis:
		risk = 0.9
	case regime.ShockUp, regime.ShockDown:
		risk = 0.7
	case regime.NewsDriven, regime.RangingVolatile:
		risk = 0.45
	case regime.RangingTight, regime.Consolidation:
		risk = 0.25
	}

	// Session effect: the 00:00-05:00 UTC dead zone is thin, the
	// London/New York overlap is deep.
	hour := snap.Timestamp.UTC().Hour()
	if hour < 5 {
		risk += 0.15
	} else if hour >= 12 && hour < 16 {
		risk -= 0.1
	}

	// Recent volume versus its average.
	avgVol := indicators.AverageVolume(snap.Candles, 20)
	recentVol := indicators.AverageVolume(snap.Candles, 5)
	if avgVol > 0 {
		ratio := recentVol / avgVol
		if ratio < 0.5 {
			risk += 0.2
		} else if ratio > 1.5 {
			risk -= 0.1
		}
	}

	return clampRange(risk, 0, 1)
}

// eventRisk scans news with proximity weighting: upcoming high-impact
// events inside 24h matter, inside 6h they dominate; events that just
// happened keep risk elevated for 6h. Returns the risk and the count of
// pending high-impact events.
func (mm *MetaModel) eventRisk(news []market.NewsEvent, now time.Time) (float64, int) {
	risk := 0.0
	pendingHigh := 0

	for _, ev := range news {
		if ev.Impact != market.ImpactHigh {
			if ev.Impact == market.ImpactMedium {
				delta := ev.Time.Sub(now)
				if delta > 0 && delta < 6*time.Hour {
					risk += 0.1
				}
			}
			continue
		}

		delta := ev.Time.Sub(now)
		switch {
		case delta > 0 && delta < 6*time.Hour:
			pendingHigh++
			risk += 0.4 * (1 - delta.Hours()/6)
		case delta >= 6*time.Hour && delta < 24*time.Hour:
			pendingHigh++
			risk += 0.15 * (1 - (delta.Hours()-6)/18)
		case delta <= 0 && delta > -6*time.Hour:
			risk += 0.25 * (1 + delta.Hours()/6)
		}
	}

	return clampRange(risk, 0, 1), pendingHigh
}

func (mm *MetaModel) expectedHoldingTime(reg regime.MarketRegime) time.Duration {
	base, ok := regimeBaseHoldingTimes[reg.Type]
	if !ok {
		base = 2 * time.Hour
	}
	scale := 1 + (reg.Volatility - 0.5)
	if scale < 0.25 {
		scale = 0.25
	}
	return time.Duration(float64(base) * scale)
}

// confidenceInterval resamples the probability (±10%) and the R multiple
// (±0.5) over the configured trial count and reports the 5th/95th
// percentiles of both the probability and the expected-return samples.
func (mm *MetaModel) confidenceInterval(signalID string, p, rr float64) (pCI, retCI [2]float64) {
	sampler := mm.newSampler(signalID)
	n := mm.cfg.MonteCarloTrials

	pSamples := make([]float64, n)
	retSamples := make([]float64, n)
	for i := 0; i < n; i++ {
		pJitter := (sampler.Float64()*2 - 1) * 0.1
		rJitter := (sampler.Float64()*2 - 1) * 0.5
		pi := clampRange(p*(1+pJitter), mm.cfg.ProbabilityFloor, mm.cfg.ProbabilityCeil)
		ri := math.Max(rr+rJitter, 0)
		pSamples[i] = pi
		retSamples[i] = pi*ri + (1-pi)*(-1.0)
	}
	sort.Float64s(pSamples)
	sort.Float64s(retSamples)

	lo := int(float64(n) * 0.05)
	hi := int(math.Min(float64(n)*0.95, float64(n-1)))

	pCI = [2]float64{pSamples[lo], pSamples[hi]}
	if pCI[0] > p {
		pCI[0] = p
	}
	if pCI[1] < p {
		pCI[1] = p
	}

	er := p*rr + (1-p)*(-1.0)
	retCI = [2]float64{retSamples[lo], retSamples[hi]}
	if retCI[0] > er {
		retCI[0] = er
	}
	if retCI[1] < er {
		retCI[1] = er
	}
	return pCI, retCI
}

// atrRatio compares the short ATR against the long ATR; >1 means expanding
// volatility.
func atrRatio(candles []market.Candle) float64 {
	short := indicators.ATR(candles, 14)
	long := indicators.ATR(candles, 50)
	if long == 0 {
		if short == 0 {
			return 1
		}
		return 1.5
	}
	return short / long
}

func clampRange(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
