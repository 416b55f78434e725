// Package regime classifies current market behavior into a discrete regime
// that conditions every downstream stage: factor scaling in the base model,
// risk decomposition in the meta model, barrier widths, adaptive thresholds
// and transaction-cost estimates.
package regime

import (
	"math"
	"time"

	"edge-engine/internal/indicators"
	"edge-engine/internal/market"
)

// Type is the discrete regime classification.
type Type string

const (
	TrendingBullish Type = "trending_bullish"
	TrendingBearish Type = "trending_bearish"
	RangingTight    Type = "ranging_tight"
	RangingVolatile Type = "ranging_volatile"
	ShockUp         Type = "shock_up"
	ShockDown       Type = "shock_down"
	LiquidityCrisis Type = "liquidity_crisis"
	NewsDriven      Type = "news_driven"
	Breakout        Type = "breakout"
	Consolidation   Type = "consolidation"
	Neutral         Type = "neutral"
)

// AllTypes lists every regime the engine tracks state for.
var AllTypes = []Type{
	TrendingBullish, TrendingBearish, RangingTight, RangingVolatile,
	ShockUp, ShockDown, LiquidityCrisis, NewsDriven, Breakout,
	Consolidation, Neutral,
}

// Factor category keys used in AdjustmentFactors. The prediction package
// emits factors under the same keys.
const (
	CategoryTechnical = "technical"
	CategoryPattern   = "pattern"
	CategoryVolume    = "volume"
	CategoryMomentum  = "momentum"
)

// Microstructure carries the coarse depth estimate attached to a regime.
type Microstructure struct {
	MarketDepth float64 `json:"market_depth"` // 0 (empty book) .. 1 (deep)
}

// MarketRegime is the classification result. It is recomputed on every
// pipeline invocation and passed by value; nothing downstream mutates it.
type MarketRegime struct {
	Type              Type               `json:"type"`
	Volatility        float64            `json:"volatility"` // 0..1
	Confidence        float64            `json:"confidence"` // 0..1
	RiskMultiplier    float64            `json:"risk_multiplier"`
	Microstructure    Microstructure     `json:"microstructure"`
	AdjustmentFactors map[string]float64 `json:"adjustment_factors"`
}

// IsTrending reports whether the regime is directional.
func (r MarketRegime) IsTrending() bool {
	return r.Type == TrendingBullish || r.Type == TrendingBearish
}

// IsShock reports whether the regime is a shock move.
func (r MarketRegime) IsShock() bool {
	return r.Type == ShockUp || r.Type == ShockDown
}

// TrendDirection returns the directional bias of the regime, or
// DirectionNone for non-directional regimes.
func (r MarketRegime) TrendDirection() market.Direction {
	switch r.Type {
	case TrendingBullish, ShockUp:
		return market.DirectionBuy
	case TrendingBearish, ShockDown:
		return market.DirectionSell
	default:
		return market.DirectionNone
	}
}

// riskMultipliers scales position risk per regime.
var riskMultipliers = map[Type]float64{
	TrendingBullish: 1.0,
	TrendingBearish: 1.0,
	RangingTight:    0.8,
	RangingVolatile: 0.6,
	ShockUp:         0.4,
	ShockDown:       0.4,
	LiquidityCrisis: 0.25,
	NewsDriven:      0.5,
	Breakout:        0.9,
	Consolidation:   0.7,
	Neutral:         0.5,
}

// adjustmentTables scales factor strength per category per regime. Trend
// regimes reward momentum, ranges reward oscillators, shocks distrust
// everything except volume.
var adjustmentTables = map[Type]map[string]float64{
	TrendingBullish: {CategoryTechnical: 1.0, CategoryPattern: 1.1, CategoryVolume: 1.1, CategoryMomentum: 1.3},
	TrendingBearish: {CategoryTechnical: 1.0, CategoryPattern: 1.1, CategoryVolume: 1.1, CategoryMomentum: 1.3},
	RangingTight:    {CategoryTechnical: 1.3, CategoryPattern: 1.1, CategoryVolume: 0.9, CategoryMomentum: 0.6},
	RangingVolatile: {CategoryTechnical: 1.1, CategoryPattern: 0.9, CategoryVolume: 1.0, CategoryMomentum: 0.7},
	ShockUp:         {CategoryTechnical: 0.6, CategoryPattern: 0.5, CategoryVolume: 1.3, CategoryMomentum: 1.1},
	ShockDown:       {CategoryTechnical: 0.6, CategoryPattern: 0.5, CategoryVolume: 1.3, CategoryMomentum: 1.1},
	LiquidityCrisis: {CategoryTechnical: 0.5, CategoryPattern: 0.4, CategoryVolume: 1.2, CategoryMomentum: 0.6},
	NewsDriven:      {CategoryTechnical: 0.7, CategoryPattern: 0.6, CategoryVolume: 1.2, CategoryMomentum: 1.0},
	Breakout:        {CategoryTechnical: 0.9, CategoryPattern: 1.2, CategoryVolume: 1.3, CategoryMomentum: 1.2},
	Consolidation:   {CategoryTechnical: 1.2, CategoryPattern: 1.0, CategoryVolume: 0.8, CategoryMomentum: 0.6},
	Neutral:         {CategoryTechnical: 1.0, CategoryPattern: 1.0, CategoryVolume: 1.0, CategoryMomentum: 1.0},
}

// Detector classifies market regimes. It holds no mutable state; identical
// inputs always produce identical output.
type Detector struct {
	minCandles int
}

// NewDetector creates a regime detector. A minimum of 20 candles is required
// for a full classification; below that the detector degrades to Neutral.
func NewDetector() *Detector {
	return &Detector{minCandles: 20}
}

// Detect classifies the current regime from candles, volumes and optional
// news. Synchronous, no I/O.
func (d *Detector) Detect(candles []market.Candle, volumes []float64, news []market.NewsEvent, now time.Time) MarketRegime {
	if len(candles) < d.minCandles {
		return buildRegime(Neutral, 0.3, 0.2, 0.5)
	}

	price := candles[len(candles)-1].Close
	atr := indicators.ATR(candles, 14)
	volRatio := 0.0
	if price > 0 {
		volRatio = atr / price
	}
	// Map ATR-to-price into [0,1]: 0.5% ATR is calm, 5% is extreme.
	volatility := clamp01((volRatio - 0.005) / 0.045)

	depth := marketDepthProxy(candles, volumes)

	// 1. Shock: last bar return far outside recent dispersion.
	lastReturn := barReturn(candles, 1)
	dispersion := indicators.ReturnStdDev(candles, 20)
	if dispersion > 0 && math.Abs(lastReturn) > 3*dispersion {
		shockType := ShockUp
		if lastReturn < 0 {
			shockType = ShockDown
		}
		conf := clamp01(math.Abs(lastReturn) / (5 * dispersion))
		return buildRegime(shockType, math.Max(volatility, 0.7), conf, depth)
	}

	// 2. Liquidity crisis: volume collapse alongside elevated volatility.
	recentVol := indicators.AverageVolume(candles, 5)
	baseVol := indicators.AverageVolume(candles, 20)
	if baseVol > 0 && recentVol/baseVol < 0.3 && volatility > 0.5 {
		return buildRegime(LiquidityCrisis, volatility, 0.7, math.Min(depth, 0.2))
	}

	// 3. News driven: high-impact event within the active window.
	if conf, hit := newsPressure(news, now); hit {
		return buildRegime(NewsDriven, math.Max(volatility, 0.5), conf, depth)
	}

	// 4. Breakout: close beyond the prior 20-bar extreme on a volume spike.
	if dir, ok := breakoutDirection(candles); ok && baseVol > 0 && candles[len(candles)-1].Volume > 1.8*baseVol {
		_ = dir
		return buildRegime(Breakout, math.Max(volatility, 0.4), 0.65, depth)
	}

	// 5. Trend: fast EMA vs slow EMA with momentum agreement.
	ema20 := indicators.EMA(candles, 20)
	ema50 := 0.0
	if len(candles) >= 50 {
		ema50 = indicators.EMA(candles, 50)
	}
	roc := indicators.ROC(candles, 10)
	if ema50 > 0 {
		spread := (ema20 - ema50) / ema50
		if spread > 0.004 && roc > 0 {
			return buildRegime(TrendingBullish, volatility, clamp01(0.5+spread*40), depth)
		}
		if spread < -0.004 && roc < 0 {
			return buildRegime(TrendingBearish, volatility, clamp01(0.5-spread*40), depth)
		}
	}

	// 6. Consolidation: very narrow 20-bar range.
	if rangeWidth(candles, 20) < 0.015 && volatility < 0.3 {
		return buildRegime(Consolidation, volatility, 0.6, depth)
	}

	// 7. Range, tight or volatile by volatility.
	if volatility < 0.35 {
		return buildRegime(RangingTight, volatility, 0.55, depth)
	}
	return buildRegime(RangingVolatile, volatility, 0.55, depth)
}

func buildRegime(t Type, volatility, confidence, depth float64) MarketRegime {
	factors := make(map[string]float64, 4)
	for k, v := range adjustmentTables[t] {
		factors[k] = v
	}
	return MarketRegime{
		Type:              t,
		Volatility:        clamp01(volatility),
		Confidence:        clamp01(confidence),
		RiskMultiplier:    riskMultipliers[t],
		Microstructure:    Microstructure{MarketDepth: clamp01(depth)},
		AdjustmentFactors: factors,
	}
}

// barReturn returns the fractional return of the bar `back` bars from the end.
func barReturn(candles []market.Candle, back int) float64 {
	n := len(candles)
	if n < back+1 {
		return 0
	}
	prev := candles[n-back-1].Close
	if prev == 0 {
		return 0
	}
	return (candles[n-back].Close - prev) / prev
}

// rangeWidth returns (high-low)/low over the last period bars.
func rangeWidth(candles []market.Candle, period int) float64 {
	if len(candles) < period {
		return 0
	}
	hi := candles[len(candles)-period].High
	lo := candles[len(candles)-period].Low
	for i := len(candles) - period; i < len(candles); i++ {
		if candles[i].High > hi {
			hi = candles[i].High
		}
		if candles[i].Low < lo {
			lo = candles[i].Low
		}
	}
	if lo == 0 {
		return 0
	}
	return (hi - lo) / lo
}

// breakoutDirection reports whether the latest close breaks the prior 20-bar
// extreme.
func breakoutDirection(candles []market.Candle) (market.Direction, bool) {
	if len(candles) < 21 {
		return market.DirectionNone, false
	}
	window := candles[len(candles)-21 : len(candles)-1]
	hi, lo := window[0].High, window[0].Low
	for _, c := range window {
		if c.High > hi {
			hi = c.High
		}
		if c.Low < lo {
			lo = c.Low
		}
	}
	last := candles[len(candles)-1].Close
	if last > hi {
		return market.DirectionBuy, true
	}
	if last < lo {
		return market.DirectionSell, true
	}
	return market.DirectionNone, false
}

// newsPressure returns a confidence and whether a high-impact event sits
// within the active window (1h before to 30m after now).
func newsPressure(news []market.NewsEvent, now time.Time) (float64, bool) {
	for _, ev := range news {
		if ev.Impact != market.ImpactHigh {
			continue
		}
		delta := ev.Time.Sub(now)
		if delta > -30*time.Minute && delta < time.Hour {
			// Closer events classify with more confidence.
			hours := math.Abs(delta.Hours())
			return clamp01(0.9 - hours*0.3), true
		}
	}
	return 0, false
}

// marketDepthProxy estimates depth from recent volume relative to its
// longer-run average when no order book is present.
func marketDepthProxy(candles []market.Candle, volumes []float64) float64 {
	series := volumes
	if len(series) == 0 {
		series = make([]float64, len(candles))
		for i, c := range candles {
			series[i] = c.Volume
		}
	}
	if len(series) < 20 {
		return 0.5
	}

	recent := 0.0
	for _, v := range series[len(series)-5:] {
		recent += v
	}
	recent /= 5

	base := 0.0
	for _, v := range series[len(series)-20:] {
		base += v
	}
	base /= 20
	if base == 0 {
		return 0.5
	}
	return clamp01(recent / base / 2)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
