package microstructure

import (
	"math"

	"edge-engine/internal/market"
)

// detectSweepLevels scans candles for support/resistance levels touched at
// least minTouches times and estimates the probability each gets swept from
// current flow imbalance and aggressiveness.
func detectSweepLevels(candles []market.Candle, flow OrderFlowMetrics, minTouches int) []SweepLevel {
	if len(candles) < 10 {
		return nil
	}

	window := candles
	if len(window) > 100 {
		window = window[len(window)-100:]
	}

	price := window[len(window)-1].Close
	if price <= 0 {
		return nil
	}
	tolerance := price * 0.002

	var levels []SweepLevel
	levels = append(levels, clusterTouches(window, tolerance, true, minTouches, flow)...)
	levels = append(levels, clusterTouches(window, tolerance, false, minTouches, flow)...)
	return levels
}

// clusterTouches groups candle extremes into levels within tolerance.
func clusterTouches(candles []market.Candle, tolerance float64, highs bool, minTouches int, flow OrderFlowMetrics) []SweepLevel {
	type cluster struct {
		price   float64
		touches int
	}
	var clusters []cluster

	for _, c := range candles {
		extreme := c.Low
		if highs {
			extreme = c.High
		}
		matched := false
		for i := range clusters {
			if math.Abs(clusters[i].price-extreme) <= tolerance {
				// Running mean keeps the level centered on its touches.
				clusters[i].price = (clusters[i].price*float64(clusters[i].touches) + extreme) / float64(clusters[i].touches+1)
				clusters[i].touches++
				matched = true
				break
			}
		}
		if !matched {
			clusters = append(clusters, cluster{price: extreme, touches: 1})
		}
	}

	var levels []SweepLevel
	for _, cl := range clusters {
		if cl.touches < minTouches {
			continue
		}

		// Resistance gets swept by aggressive buying, support by selling.
		side := market.DirectionSell
		directionalPressure := -flow.Imbalance
		if highs {
			side = market.DirectionBuy
			directionalPressure = flow.Imbalance
		}

		prob := 0.3 + 0.1*float64(cl.touches-3)
		prob += math.Max(directionalPressure, 0) * 0.3
		prob += flow.AggressiveRatio * 0.2

		levels = append(levels, SweepLevel{
			Price:            cl.price,
			Touches:          cl.touches,
			Side:             side,
			SweepProbability: clamp01(prob),
		})
	}
	return levels
}
