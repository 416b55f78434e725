// Package prediction implements the two-layer prediction system: the base
// model scans technical, pattern, volume and momentum factors for confluence
// and emits candidate signals; the meta model estimates the probability of
// take-profit before stop-loss, decomposes risk, and enhances candidates
// into scored, tiered signals.
package prediction

import (
	"time"

	"edge-engine/internal/barriers"
	"edge-engine/internal/market"
	"edge-engine/internal/regime"
)

// Factor category keys, matching the regime adjustment tables.
const (
	CategoryTechnical = regime.CategoryTechnical
	CategoryPattern   = regime.CategoryPattern
	CategoryVolume    = regime.CategoryVolume
	CategoryMomentum  = regime.CategoryMomentum
)

// TechnicalFactor is one atomic unit of evidence. Never mutated after
// creation.
type TechnicalFactor struct {
	Category   string           `json:"category"`
	Name       string           `json:"name"`
	Direction  market.Direction `json:"direction"`
	Strength   float64          `json:"strength"`   // practically 0-10
	Confidence float64          `json:"confidence"` // 0-1
}

// CandidateSignal is a provisional trade direction emitted by factor
// confluence, before any risk filtering. Immutable once produced.
type CandidateSignal struct {
	ID          string            `json:"id"`
	Timestamp   time.Time         `json:"timestamp"`
	Pair        string            `json:"pair"`
	Direction   market.Direction  `json:"direction"`
	EntryPrice  float64           `json:"entry_price"`
	Confidence  float64           `json:"confidence"` // 0-1, mean factor confidence
	Factors     []TechnicalFactor `json:"factors"`
	RawStrength float64           `json:"raw_strength"` // summed scaled factor strength
}

// ExpectedOutcome aggregates the return-side expectations of a prediction.
type ExpectedOutcome struct {
	ExpectedReturn      float64       `json:"expected_return"` // R multiple
	ExpectedHoldingTime time.Duration `json:"expected_holding_time"`
	RiskAdjustedReturn  float64       `json:"risk_adjusted_return"`
	MaxDrawdownRisk     float64       `json:"max_drawdown_risk"`
}

// MetaPrediction is the meta model's risk/probability estimate for a single
// candidate. One-to-one with a CandidateSignal.
type MetaPrediction struct {
	SignalID           string              `json:"signal_id"`
	ProbabilityTPFirst float64             `json:"probability_tp_first"` // clamped [0.05,0.95]
	VolatilityRisk     float64             `json:"volatility_risk"`
	LiquidityRisk      float64             `json:"liquidity_risk"`
	EventRisk          float64             `json:"event_risk"`
	CombinedRisk       float64             `json:"combined_risk"`
	ExpectedOutcome    ExpectedOutcome     `json:"expected_outcome"`
	ConfidenceInterval [2]float64          `json:"confidence_interval"` // 5th/95th pct of p
	ReturnInterval     [2]float64          `json:"return_interval"`     // 5th/95th pct of expected R
	Regime             regime.MarketRegime `json:"regime"`
	MarketConditions   MarketConditions    `json:"market_conditions"`
}

// MarketConditions snapshots the inputs the meta model saw, for audit.
type MarketConditions struct {
	ATRRatio        float64 `json:"atr_ratio"`
	VolumeRatio     float64 `json:"volume_ratio"`
	SessionHour     int     `json:"session_hour"`
	PendingHighNews int     `json:"pending_high_news"`
	RiskReward      float64 `json:"risk_reward"`
}

// Recommendation is the 7-point tier assigned to an enhanced signal.
type Recommendation string

const (
	StrongSell Recommendation = "strong_sell"
	Sell       Recommendation = "sell"
	WeakSell   Recommendation = "weak_sell"
	Hold       Recommendation = "hold"
	WeakBuy    Recommendation = "weak_buy"
	Buy        Recommendation = "buy"
	StrongBuy  Recommendation = "strong_buy"
)

// RiskProfile labels the enhanced signal for position-sizing policy.
type RiskProfile string

const (
	ProfileConservative RiskProfile = "conservative"
	ProfileModerate     RiskProfile = "moderate"
	ProfileAggressive   RiskProfile = "aggressive"
)

// EnhancedSignal couples a candidate with its meta prediction, final score
// and recommendation tier.
type EnhancedSignal struct {
	Candidate      CandidateSignal `json:"candidate"`
	Meta           MetaPrediction  `json:"meta"`
	Barriers       barriers.Levels `json:"barriers"`
	FinalScore     float64         `json:"final_score"` // 0-1
	Recommendation Recommendation  `json:"recommendation"`
	RiskProfile    RiskProfile     `json:"risk_profile"`
}

// Outcome is the realized result of a signal, fed back by the consuming
// layer for historical-performance adjustment and counterfactual learning.
type Outcome struct {
	SignalID string    `json:"signal_id"`
	HitTP    bool      `json:"hit_tp"`
	Return   float64   `json:"return"` // realized R multiple
	ClosedAt time.Time `json:"closed_at"`
}
