package microstructure

import (
	"math"

	"edge-engine/internal/indicators"
	"edge-engine/internal/market"
)

// ExecutionConfig carries the calibration parameters of the execution-quality
// model. The impact lambda in particular is an illustrative default awaiting
// calibration against real fills.
type ExecutionConfig struct {
	ReferenceOrderSize float64 `json:"reference_order_size"` // units walked through the book
	ImpactLambda       float64 `json:"impact_lambda"`        // Kyle-lambda style linear coefficient
}

// DefaultExecutionConfig returns the standard execution model parameters.
func DefaultExecutionConfig() ExecutionConfig {
	return ExecutionConfig{
		ReferenceOrderSize: 1000,
		ImpactLambda:       0.0001,
	}
}

// computeExecutionQuality walks the book to estimate slippage for the
// reference order, adds a linear impact term, 20-bar timing risk and sweep
// risk, and folds everything into a 0-100 score.
func computeExecutionQuality(cfg ExecutionConfig, book *market.OrderBook, candles []market.Candle, flow OrderFlowMetrics, liq LiquidityMetrics) ExecutionQuality {
	var eq ExecutionQuality

	mid := book.MidPrice()
	eq.ExpectedSlippage = walkBook(book.Asks, cfg.ReferenceOrderSize, mid)
	if slipBid := walkBook(book.Bids, cfg.ReferenceOrderSize, mid); slipBid > eq.ExpectedSlippage {
		eq.ExpectedSlippage = slipBid
	}

	// Kyle-lambda style: impact linear in order size over near-mid depth.
	depth := liq.DepthNearMid
	if depth < 1 {
		depth = 1
	}
	eq.MarketImpact = cfg.ImpactLambda * cfg.ReferenceOrderSize / depth

	eq.TimingRisk = clamp01(indicators.ReturnStdDev(candles, 20) / 0.015)
	eq.SweepRisk = sweepRisk(book, flow)

	// A book should comfortably absorb 2% of its near-mid depth.
	eq.RecommendedOrderSize = depth * 0.02

	eq.Score = executionScore(eq, liq)
	return eq
}

// walkBook simulates filling size against one side and returns the average
// fill distance from mid as a fraction. An unfillable order returns a
// punitive 10%.
func walkBook(levels []market.BookLevel, size, mid float64) float64 {
	if mid <= 0 || len(levels) == 0 {
		return 0.10
	}

	remaining := size
	cost := 0.0
	for _, lvl := range levels {
		take := math.Min(remaining, lvl.Size)
		cost += take * math.Abs(lvl.Price-mid)
		remaining -= take
		if remaining <= 0 {
			break
		}
	}
	if remaining > 0 {
		return 0.10
	}
	return cost / size / mid
}

// sweepRisk combines book imbalance, thin top-of-book and aggressive prints.
func sweepRisk(book *market.OrderBook, flow OrderFlowMetrics) float64 {
	risk := 0.0

	total := book.TotalBidSize() + book.TotalAskSize()
	if total > 0 {
		imbalance := math.Abs(book.TotalBidSize()-book.TotalAskSize()) / total
		risk += imbalance * 0.4
	}

	// Thin top of book relative to the rest.
	if len(book.Bids) > 0 && len(book.Asks) > 0 && total > 0 {
		top := book.Bids[0].Size + book.Asks[0].Size
		avgLevel := total / float64(len(book.Bids)+len(book.Asks))
		if avgLevel > 0 && top < avgLevel*0.5 {
			risk += 0.3
		}
	}

	risk += flow.AggressiveRatio * 0.3

	return clamp01(risk)
}

// executionScore folds the quality components into 0-100 using fixed
// penalties and a resilience bonus. The cut points here match the regime
// classifier and the rejection thresholds; change them together.
func executionScore(eq ExecutionQuality, liq LiquidityMetrics) float64 {
	score := 100.0

	score -= math.Min(eq.ExpectedSlippage*10000*2, 50) // 2 points per bps, capped
	score -= math.Min(eq.MarketImpact*10000, 20)
	score -= eq.TimingRisk * 15
	score -= eq.SweepRisk * 20
	score -= liq.ToxicityScore * 15
	score += liq.Resilience * 10

	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
