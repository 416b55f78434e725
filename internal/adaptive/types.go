// Package adaptive implements the regime-adaptive engine: cost-adjusted
// edge calculation, per-regime self-tuning acceptance thresholds,
// portfolio-level vetoes, a capped rejection log with pattern-driven
// auto-relaxation, and online recalibration of per-regime feature weights.
package adaptive

import (
	"time"

	"edge-engine/internal/prediction"
	"edge-engine/internal/regime"
)

// EdgeMetrics is the cost decomposition of one candidate's expected edge.
// Derived per decision, never persisted.
type EdgeMetrics struct {
	ExpectedEdge           float64    `json:"expected_edge"` // gross, fractional return
	SpreadCost             float64    `json:"spread_cost"`
	SlippageCost           float64    `json:"slippage_cost"`
	MarketImpactCost       float64    `json:"market_impact_cost"`
	ExecutionQualityFactor float64    `json:"execution_quality_factor"` // clamped [0.3,1.5]
	OpportunityCostFactor  float64    `json:"opportunity_cost_factor"`  // clamped [0,0.01]
	NetEdge                float64    `json:"net_edge"`
	ConfidenceInterval     [2]float64 `json:"confidence_interval"`
}

// ThresholdPerformance tracks realized results per regime for the threshold
// gradient.
type ThresholdPerformance struct {
	Trades        int     `json:"trades"`
	Wins          int     `json:"wins"`
	Accuracy      float64 `json:"accuracy"`
	Profitability float64 `json:"profitability"` // mean realized R
	Sharpe        float64 `json:"sharpe"`
	Drawdown      float64 `json:"drawdown"` // worst peak-to-trough of cumulative R
}

// AdaptiveThreshold is the minimum net edge required to accept a trade in a
// regime. Long-lived mutable state, always within [MinThreshold,
// MaxThreshold], update-throttled.
type AdaptiveThreshold struct {
	Regime      regime.Type          `json:"regime"`
	Threshold   float64              `json:"threshold"`
	Confidence  float64              `json:"confidence"`
	LastUpdate  time.Time            `json:"last_update"`
	Performance ThresholdPerformance `json:"performance"`

	velocity float64 // momentum term of the gradient update
	returns  []float64
}

// ModelPerformance summarizes learning-state quality per regime.
type ModelPerformance struct {
	Calibrations int     `json:"calibrations"`
	HitRate      float64 `json:"hit_rate"`
	AvgEdgeError float64 `json:"avg_edge_error"`
}

// OnlineLearningState holds the per-regime incremental statistics and the
// per-factor-category weight multipliers, each bounded [0.1, 2.0].
type OnlineLearningState struct {
	Regime          regime.Type        `json:"regime"`
	TotalTrades     int                `json:"total_trades"`
	WinRate         float64            `json:"win_rate"`
	AvgReturn       float64            `json:"avg_return"`
	Volatility      float64            `json:"volatility"`
	LastCalibration time.Time          `json:"last_calibration"`
	FeatureWeights  map[string]float64 `json:"feature_weights"`
	Performance     ModelPerformance   `json:"performance"`

	tradesSinceCalibration int
	returns                []float64
}

// RejectionRecord is one entry of the capped rejection log.
type RejectionRecord struct {
	Timestamp time.Time                 `json:"timestamp"`
	Reason    string                    `json:"reason"`
	Regime    regime.Type               `json:"regime"`
	Signal    prediction.EnhancedSignal `json:"signal"`
}

// GateReasonKind names the gate leg a rejection reason came from.
type GateReasonKind string

const (
	GateReasonThreshold GateReasonKind = "threshold"
	GateReasonPortfolio GateReasonKind = "portfolio"
)

// GateReason pairs a rejection message with the leg that produced it, so
// consumers never have to re-derive which check failed.
type GateReason struct {
	Kind    GateReasonKind `json:"kind"`
	Message string         `json:"message"`
}

// GateResult is the adaptive engine's verdict for one enhanced signal.
type GateResult struct {
	Accept        bool         `json:"accept"`
	Edge          EdgeMetrics  `json:"edge"`
	Threshold     float64      `json:"threshold"`
	PortfolioPass bool         `json:"portfolio_pass"`
	Reasons       []GateReason `json:"reasons,omitempty"`
}
