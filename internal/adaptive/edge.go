package adaptive

import (
	"math"
	"time"

	"edge-engine/internal/microstructure"
	"edge-engine/internal/prediction"
	"edge-engine/internal/regime"
)

// EdgeConfig carries the transaction-cost calibration parameters. The base
// costs and the impact exponent are illustrative defaults awaiting
// calibration against real execution data.
type EdgeConfig struct {
	BaseSpreadCost   float64 `json:"base_spread_cost"`   // fraction, default 0.0005
	BaseSlippageCost float64 `json:"base_slippage_cost"` // fraction, default 0.0003
	ImpactLambda     float64 `json:"impact_lambda"`      // default 0.002
	ImpactExponent   float64 `json:"impact_exponent"`    // power-law, default 0.6
}

// DefaultEdgeConfig returns the standard cost model parameters.
func DefaultEdgeConfig() EdgeConfig {
	return EdgeConfig{
		BaseSpreadCost:   0.0005,
		BaseSlippageCost: 0.0003,
		ImpactLambda:     0.002,
		ImpactExponent:   0.6,
	}
}

// regimeSpreadMultipliers widens expected spread in hostile regimes.
var regimeSpreadMultipliers = map[regime.Type]float64{
	regime.TrendingBullish: 1.0,
	regime.TrendingBearish: 1.0,
	regime.RangingTight:    0.8,
	regime.RangingVolatile: 1.4,
	regime.ShockUp:         2.0,
	regime.ShockDown:       2.0,
	regime.LiquidityCrisis: 3.0,
	regime.NewsDriven:      1.8,
	regime.Breakout:        1.3,
	regime.Consolidation:   0.9,
	regime.Neutral:         1.0,
}

// ComputeEdge turns an enhanced signal into a net, cost-adjusted edge in
// fractional-return terms. positionFraction is the share of total capital
// the trade would commit.
func ComputeEdge(cfg EdgeConfig, sig prediction.EnhancedSignal, reg regime.MarketRegime, micro *microstructure.State, positionFraction float64, now time.Time) EdgeMetrics {
	p := sig.Meta.ProbabilityTPFirst
	entry := sig.Candidate.EntryPrice

	// Barrier distances as fractions of entry: the Kelly-style gross edge
	// p*R - (1-p)*L in return space.
	tpFrac := math.Abs(sig.Barriers.TakeProfit-entry) / entry
	slFrac := math.Abs(entry-sig.Barriers.StopLoss) / entry
	gross := p*tpFrac - (1-p)*slFrac

	hour := now.UTC().Hour()
	sessionMult := 1.0
	if hour < 5 {
		sessionMult = 1.5
	} else if hour >= 12 && hour < 16 {
		sessionMult = 0.8
	}

	spread := cfg.BaseSpreadCost * regimeSpreadMultipliers[reg.Type] * sessionMult

	// Slippage scales with regime hostility and inversely with depth.
	depth := reg.Microstructure.MarketDepth
	if micro != nil && micro.Liquidity.TotalDepth() > 0 {
		depth = math.Max(depth, 0.1)
	}
	liqScale := 1.5 - depth
	if liqScale < 0.5 {
		liqScale = 0.5
	}
	slippage := cfg.BaseSlippageCost * regimeSpreadMultipliers[reg.Type] * liqScale

	// Market impact: power law in committed size over market depth.
	impact := 0.0
	if positionFraction > 0 {
		denom := math.Max(depth, 0.05)
		impact = cfg.ImpactLambda * math.Pow(positionFraction/denom, cfg.ImpactExponent)
	}

	eqf := executionQualityFactor(reg, micro, hour)
	ocf := opportunityCostFactor(reg, sig.Meta.ExpectedOutcome.ExpectedHoldingTime, positionFraction)

	net := (gross-spread-slippage-impact)*eqf - ocf

	// Edge interval follows the probability interval.
	lo := sig.Meta.ConfidenceInterval[0]*tpFrac - (1-sig.Meta.ConfidenceInterval[0])*slFrac
	hi := sig.Meta.ConfidenceInterval[1]*tpFrac - (1-sig.Meta.ConfidenceInterval[1])*slFrac

	return EdgeMetrics{
		ExpectedEdge:           gross,
		SpreadCost:             spread,
		SlippageCost:           slippage,
		MarketImpactCost:       impact,
		ExecutionQualityFactor: eqf,
		OpportunityCostFactor:  ocf,
		NetEdge:                net,
		ConfidenceInterval:     [2]float64{(lo-spread-slippage-impact)*eqf - ocf, (hi-spread-slippage-impact)*eqf - ocf},
	}
}

// executionQualityFactor composes regime, volatility, liquidity and session
// into a multiplier clamped to [0.3, 1.5].
func executionQualityFactor(reg regime.MarketRegime, micro *microstructure.State, hour int) float64 {
	eqf := 1.0

	switch reg.Type {
	case regime.TrendingBullish, regime.TrendingBearish, regime.Breakout:
		eqf += 0.2
	case regime.ShockUp, regime.ShockDown:
		eqf -= 0.3
	case regime.LiquidityCrisis:
		eqf -= 0.5
	case regime.NewsDriven:
		eqf -= 0.2
	}

	// Mid volatility executes best; both extremes hurt.
	eqf -= math.Abs(reg.Volatility-0.4) * 0.4

	eqf += (reg.Microstructure.MarketDepth - 0.5) * 0.4

	if micro != nil {
		eqf += (micro.Execution.Score - 50) / 200
	}

	if hour < 5 {
		eqf -= 0.15
	} else if hour >= 12 && hour < 16 {
		eqf += 0.1
	}

	return clampRange(eqf, 0.3, 1.5)
}

// opportunityCostFactor charges for capital tied up and for holding through
// hostile regimes. Clamped to [0, 0.01].
func opportunityCostFactor(reg regime.MarketRegime, holding time.Duration, positionFraction float64) float64 {
	ocf := positionFraction * 0.005

	if reg.Type == regime.LiquidityCrisis || reg.IsShock() {
		ocf += 0.003
	}

	ocf += holding.Hours() * 0.0003

	return clampRange(ocf, 0, 0.01)
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
