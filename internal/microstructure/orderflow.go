package microstructure

import (
	"edge-engine/internal/market"
)

// computeOrderFlow derives flow metrics from recent trade prints. A print is
// aggressive when it is at least 3x the average print size.
func computeOrderFlow(trades []market.Trade) OrderFlowMetrics {
	var flow OrderFlowMetrics
	if len(trades) == 0 {
		return flow
	}

	totalSize := 0.0
	notional := 0.0
	for _, t := range trades {
		totalSize += t.Size
		notional += t.Price * t.Size
		if t.Side == market.DirectionBuy {
			flow.BuyVolume += t.Size
		} else {
			flow.SellVolume += t.Size
		}
	}

	flow.NetFlow = flow.BuyVolume - flow.SellVolume
	if totalSize > 0 {
		flow.VWAP = notional / totalSize
		flow.Imbalance = flow.NetFlow / totalSize
	}

	avgSize := totalSize / float64(len(trades))
	aggressive := 0
	for _, t := range trades {
		if t.Size >= avgSize*3 {
			aggressive++
		}
	}
	flow.AggressiveRatio = float64(aggressive) / float64(len(trades))

	return flow
}
