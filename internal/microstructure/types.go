// Package microstructure computes order-flow, liquidity and execution-quality
// metrics from order-book snapshots and trade prints, classifies the
// microstructure regime, detects liquidity-sweep risk, and provides the
// trade-rejection and entry-timing contracts consumed by the orchestrator.
package microstructure

import (
	"time"

	"edge-engine/internal/market"
)

// Regime is the microstructure classification, distinct from the macro
// market regime.
type Regime string

const (
	RegimeNormal    Regime = "normal"
	RegimeStressed  Regime = "stressed"
	RegimeIlliquid  Regime = "illiquid"
	RegimeToxic     Regime = "toxic"
	RegimeSweepZone Regime = "sweep_zone"
)

// OrderFlowMetrics summarizes recent trade prints.
type OrderFlowMetrics struct {
	BuyVolume       float64 `json:"buy_volume"`
	SellVolume      float64 `json:"sell_volume"`
	NetFlow         float64 `json:"net_flow"`
	VWAP            float64 `json:"vwap"`
	Imbalance       float64 `json:"imbalance"`        // -1..1
	AggressiveRatio float64 `json:"aggressive_ratio"` // share of large prints
}

// LiquidityMetrics summarizes the resting book.
type LiquidityMetrics struct {
	BidDepth       float64 `json:"bid_depth"`
	AskDepth       float64 `json:"ask_depth"`
	DepthImbalance float64 `json:"depth_imbalance"` // -1..1
	AvgOrderSize   float64 `json:"avg_order_size"`
	DepthNearMid   float64 `json:"depth_near_mid"` // within 0.1% of mid
	Resilience     float64 `json:"resilience"`     // 0..1, from snapshot trend
	ToxicityScore  float64 `json:"toxicity_score"` // 0..1
	SpreadBps      float64 `json:"spread_bps"`
}

// TotalDepth returns bid plus ask resting size.
func (l LiquidityMetrics) TotalDepth() float64 {
	return l.BidDepth + l.AskDepth
}

// ExecutionQuality grades how well a reference order would execute right
// now.
type ExecutionQuality struct {
	ExpectedSlippage     float64 `json:"expected_slippage"` // fraction of mid
	MarketImpact         float64 `json:"market_impact"`     // fraction of mid
	TimingRisk           float64 `json:"timing_risk"`       // 0..1
	SweepRisk            float64 `json:"sweep_risk"`        // 0..1
	Score                float64 `json:"score"`             // 0..100
	RecommendedOrderSize float64 `json:"recommended_order_size"`
}

// State is the full microstructure snapshot published per analysis.
type State struct {
	OrderFlow  OrderFlowMetrics `json:"order_flow"`
	Liquidity  LiquidityMetrics `json:"liquidity"`
	Execution  ExecutionQuality `json:"execution"`
	Regime     Regime           `json:"regime"`
	Confidence float64          `json:"confidence"`
	Timestamp  time.Time        `json:"timestamp"`
}

// SweepLevel is a detected support/resistance level at sweep risk.
type SweepLevel struct {
	Price            float64          `json:"price"`
	Touches          int              `json:"touches"`
	Side             market.Direction `json:"side"` // side that gets swept
	SweepProbability float64          `json:"sweep_probability"`
}

// RejectVerdict is the structured output of ShouldRejectTrade.
type RejectVerdict struct {
	Reject       bool          `json:"reject"`
	Reason       string        `json:"reason,omitempty"`
	RequiredWait time.Duration `json:"required_wait,omitempty"`
}

// TimingMode is the entry-timing recommendation.
type TimingMode string

const (
	TimingImmediate TimingMode = "immediate"
	TimingWait      TimingMode = "wait"
	TimingPostSweep TimingMode = "post_sweep"
)

// EntryTiming is the output of OptimalEntryTiming.
type EntryTiming struct {
	Mode      TimingMode    `json:"mode"`
	Wait      time.Duration `json:"wait,omitempty"`
	Reasoning string        `json:"reasoning"`
}
