// Package orchestrator sequences the full decision pipeline per incoming
// market snapshot and synthesizes the final recommendation with
// explainability, alternative scenarios, risk warnings, optimization
// suggestions and rolling system KPIs.
package orchestrator

import (
	"time"

	"edge-engine/internal/adaptive"
	"edge-engine/internal/barriers"
	"edge-engine/internal/microstructure"
	"edge-engine/internal/prediction"
	"edge-engine/internal/regime"
)

// Action is the terminal state of a decision cycle.
type Action string

const (
	ActionAccept Action = "accept"
	ActionReject Action = "reject"
	ActionWait   Action = "wait"
)

// ReasonCode tags each explainability reason so consumers can assert on
// categories instead of wording.
type ReasonCode string

const (
	ReasonNoCandidates     ReasonCode = "no_candidates"
	ReasonInsufficientData ReasonCode = "insufficient_data"
	ReasonBelowThreshold   ReasonCode = "below_threshold"
	ReasonPortfolioVeto    ReasonCode = "portfolio_veto"
	ReasonMicrostructure   ReasonCode = "microstructure_reject"
	ReasonTimingWait       ReasonCode = "timing_wait"
	ReasonEdgeAccepted     ReasonCode = "edge_accepted"
)

// Reason is one tagged, human-readable explanation attached to a decision.
type Reason struct {
	Code    ReasonCode `json:"code"`
	Message string     `json:"message"`
}

// ExecutionPlan carries the microstructure timing attached to an accepted
// or deferred decision.
type ExecutionPlan struct {
	Timing    microstructure.EntryTiming `json:"timing"`
	OrderSize float64                    `json:"order_size"`
}

// SystemDecision is the canonical audit record of one decision cycle,
// appended to the bounded rolling history.
type SystemDecision struct {
	ID               string                     `json:"id"`
	Timestamp        time.Time                  `json:"timestamp"`
	Pair             string                     `json:"pair"`
	Action           Action                     `json:"action"`
	Confidence       float64                    `json:"confidence"`
	ExpectedEdge     float64                    `json:"expected_edge"`
	RiskAdjustedEdge float64                    `json:"risk_adjusted_edge"`
	Signal           *prediction.EnhancedSignal `json:"signal,omitempty"`
	Barriers         *barriers.Levels           `json:"barriers,omitempty"`
	Execution        *ExecutionPlan             `json:"execution,omitempty"`
	Edge             *adaptive.EdgeMetrics      `json:"edge,omitempty"`
	Reasons          []Reason                   `json:"reasons"`
	Regime           regime.MarketRegime        `json:"regime"`
	Microstructure   *microstructure.State      `json:"microstructure,omitempty"`
}

// ReasonStrings flattens the reasons for display.
func (d *SystemDecision) ReasonStrings() []string {
	out := make([]string, len(d.Reasons))
	for i, r := range d.Reasons {
		out[i] = r.Message
	}
	return out
}

// HasReason reports whether any reason carries the given code.
func (d *SystemDecision) HasReason(code ReasonCode) bool {
	for _, r := range d.Reasons {
		if r.Code == code {
			return true
		}
	}
	return false
}

// AlternativeScenario is one what-if branch attached to a recommendation.
type AlternativeScenario struct {
	Name              string  `json:"name"`
	Probability       float64 `json:"probability"`
	OutcomeMultiplier float64 `json:"outcome_multiplier"`
	Description       string  `json:"description"`
}

// RiskWarning is a rule-based caution derived from regime, signal or
// microstructure thresholds.
type RiskWarning struct {
	Category string `json:"category"`
	Severity string `json:"severity"` // "info", "elevated", "critical"
	Message  string `json:"message"`
}

// OptimizationSuggestion proposes a concrete adjustment: sizing, timing or
// barrier placement.
type OptimizationSuggestion struct {
	Category string  `json:"category"`
	Message  string  `json:"message"`
	Value    float64 `json:"value,omitempty"`
}

// SystemKPIs are the rolling self-monitoring statistics recomputed after
// each cycle.
type SystemKPIs struct {
	TotalDecisions         int                     `json:"total_decisions"`
	AcceptRate             float64                 `json:"accept_rate"`
	EdgeDecay              float64                 `json:"edge_decay"`
	SignalHalfLife         time.Duration           `json:"signal_half_life"`
	CostAbsorptionRatio    float64                 `json:"cost_absorption_ratio"`
	RegimePerformanceDelta float64                 `json:"regime_performance_delta"`
	HitRateByRegime        map[regime.Type]float64 `json:"hit_rate_by_regime"`
	RejectionSuccessRate   float64                 `json:"rejection_success_rate"`
	GeneratedAt            time.Time               `json:"generated_at"`
}

// TradingRecommendation is the full output of one decision cycle.
type TradingRecommendation struct {
	Decision                SystemDecision           `json:"decision"`
	AlternativeScenarios    []AlternativeScenario    `json:"alternative_scenarios"`
	RiskWarnings            []RiskWarning            `json:"risk_warnings"`
	OptimizationSuggestions []OptimizationSuggestion `json:"optimization_suggestions"`
	KPIs                    SystemKPIs               `json:"kpis"`
}
