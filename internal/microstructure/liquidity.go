package microstructure

import (
	"math"

	"edge-engine/internal/market"
)

// computeLiquidity derives book metrics from a snapshot. prevDepths is the
// trailing window of total-depth readings used for the resilience trend.
func computeLiquidity(book *market.OrderBook, prevDepths []float64) LiquidityMetrics {
	var liq LiquidityMetrics
	if book == nil {
		return liq
	}

	liq.BidDepth = book.TotalBidSize()
	liq.AskDepth = book.TotalAskSize()

	total := liq.TotalDepth()
	if total > 0 {
		liq.DepthImbalance = (liq.BidDepth - liq.AskDepth) / total
	}

	levels := len(book.Bids) + len(book.Asks)
	if levels > 0 {
		liq.AvgOrderSize = total / float64(levels)
	}

	mid := book.MidPrice()
	if mid > 0 {
		liq.SpreadBps = book.Spread / mid * 10000
		band := mid * 0.001
		for _, lvl := range book.Bids {
			if mid-lvl.Price <= band {
				liq.DepthNearMid += lvl.Size
			}
		}
		for _, lvl := range book.Asks {
			if lvl.Price-mid <= band {
				liq.DepthNearMid += lvl.Size
			}
		}
	}

	liq.Resilience = resilience(prevDepths, total)
	liq.ToxicityScore = toxicity(book, liq)

	return liq
}

// resilience grades the liquidity-change trend over the last ten readings:
// steadily replenishing books score high, draining books score low.
func resilience(prevDepths []float64, current float64) float64 {
	window := prevDepths
	if len(window) > 10 {
		window = window[len(window)-10:]
	}
	if len(window) < 2 {
		return 0.5
	}

	improving := 0
	for i := 1; i < len(window); i++ {
		if window[i] >= window[i-1] {
			improving++
		}
	}
	trendScore := float64(improving) / float64(len(window)-1)

	// Heavy current drawdown against the window mean drags the score.
	mean := 0.0
	for _, d := range window {
		mean += d
	}
	mean /= float64(len(window))
	if mean > 0 && current < mean*0.5 {
		trendScore *= 0.5
	}

	return clamp01(trendScore)
}

// toxicity scores adverse-selection risk: round-number clustering of large
// orders, rapid spread widening, and thin books all raise it.
func toxicity(book *market.OrderBook, liq LiquidityMetrics) float64 {
	score := 0.0

	// Large orders clustered on round numbers are often bait.
	clustered := 0
	large := 0
	for _, side := range [][]market.BookLevel{book.Bids, book.Asks} {
		for _, lvl := range side {
			if liq.AvgOrderSize > 0 && lvl.Size > liq.AvgOrderSize*4 {
				large++
				if isRoundNumber(lvl.Price) {
					clustered++
				}
			}
		}
	}
	if large > 0 {
		score += 0.4 * float64(clustered) / float64(large)
	}

	// Wide spread relative to a 10bps norm.
	if liq.SpreadBps > 10 {
		score += math.Min((liq.SpreadBps-10)/40, 0.3)
	}

	// Thin book near the mid.
	if liq.TotalDepth() > 0 && liq.DepthNearMid/liq.TotalDepth() < 0.05 {
		score += 0.3
	}

	return clamp01(score)
}

// isRoundNumber reports whether the price sits on a psychologically round
// level for its magnitude.
func isRoundNumber(price float64) bool {
	if price <= 0 {
		return false
	}
	magnitude := math.Pow(10, math.Floor(math.Log10(price))-1)
	remainder := math.Mod(price, magnitude*5)
	return remainder < magnitude*0.05 || remainder > magnitude*4.95
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
