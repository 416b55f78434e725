package adaptive

import (
	"fmt"
	"sync"
	"time"

	"edge-engine/internal/logging"
	"edge-engine/internal/market"
	"edge-engine/internal/microstructure"
	"edge-engine/internal/prediction"
	"edge-engine/internal/regime"
)

// Rejection log parameters: the log is capped, and every 50th append
// triggers exactly one pattern-analysis pass over the most recent 100
// entries. A regime with more than 20 rejections in that window gets its
// threshold relaxed by 5%.
const (
	maxRejectionLog       = 1000
	patternAnalysisEvery  = 50
	patternAnalysisWindow = 100
	patternRejectionLimit = 20
)

// Engine owns all per-regime adaptive state: thresholds, learning states
// and the rejection log. All access is mutex-guarded; one decision cycle
// completes its read-modify-write before another may interleave.
type Engine struct {
	cfg    EdgeConfig
	logger *logging.Logger

	mu               sync.Mutex
	thresholds       map[regime.Type]*AdaptiveThreshold
	learning         map[regime.Type]*OnlineLearningState
	rejections       []RejectionRecord
	rejectionAppends int
	patternRuns      int

	// signalRegimes attributes realized outcomes back to the regime the
	// signal was evaluated under. Bounded alongside the rejection log.
	signalRegimes map[string]regime.Type
	signalOrder   []string
}

// NewEngine creates an adaptive engine with seeded thresholds and unit
// feature weights for every regime.
func NewEngine(cfg EdgeConfig, logger *logging.Logger) *Engine {
	if cfg.BaseSpreadCost == 0 && cfg.ImpactLambda == 0 {
		cfg = DefaultEdgeConfig()
	}
	now := time.Now()
	e := &Engine{
		cfg:           cfg,
		logger:        logger.WithComponent("adaptive_engine"),
		thresholds:    make(map[regime.Type]*AdaptiveThreshold, len(regime.AllTypes)),
		learning:      make(map[regime.Type]*OnlineLearningState, len(regime.AllTypes)),
		signalRegimes: make(map[string]regime.Type),
	}
	for _, rt := range regime.AllTypes {
		e.thresholds[rt] = newThreshold(rt, now)
		e.learning[rt] = newLearningState(rt, now)
	}
	return e
}

// Evaluate gates one enhanced signal: accept iff net edge clears the
// regime's current threshold and the portfolio gate passes. Rejections are
// logged and feed the pattern-analysis loop.
func (e *Engine) Evaluate(sig prediction.EnhancedSignal, reg regime.MarketRegime, micro *microstructure.State, portfolio *market.PortfolioSnapshot, positionFraction float64, now time.Time) GateResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	edge := ComputeEdge(e.cfg, sig, reg, micro, positionFraction, now)

	th := e.threshold(reg.Type, now)
	result := GateResult{
		Edge:      edge,
		Threshold: th.Threshold,
	}

	candidateRisk := 0.0
	if portfolio != nil && sig.Candidate.EntryPrice > 0 {
		slFrac := (sig.Candidate.EntryPrice - sig.Barriers.StopLoss) / sig.Candidate.EntryPrice
		if slFrac < 0 {
			slFrac = -slFrac
		}
		candidateRisk = portfolio.TotalCapital * positionFraction * slFrac
	}

	portfolioPass, portfolioReasons := portfolioGate(sig, portfolio, candidateRisk)
	result.PortfolioPass = portfolioPass

	if edge.NetEdge < th.Threshold {
		result.Reasons = append(result.Reasons, GateReason{
			Kind:    GateReasonThreshold,
			Message: fmt.Sprintf("net edge %.4f below %s threshold %.4f", edge.NetEdge, reg.Type, th.Threshold),
		})
	}
	result.Reasons = append(result.Reasons, portfolioReasons...)

	result.Accept = edge.NetEdge >= th.Threshold && portfolioPass
	if !result.Accept {
		reason := "net edge below threshold"
		if len(result.Reasons) > 0 {
			reason = result.Reasons[0].Message
		}
		e.appendRejection(RejectionRecord{
			Timestamp: now,
			Reason:    reason,
			Regime:    reg.Type,
			Signal:    sig,
		})
	} else {
		e.trackSignal(sig.Candidate.ID, reg.Type)
	}

	return result
}

// FeatureWeights returns a copy of the learned per-category weights for the
// regime, for the base model's factor scaling.
func (e *Engine) FeatureWeights(rt regime.Type) map[string]float64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	state, ok := e.learning[rt]
	if !ok {
		return nil
	}
	out := make(map[string]float64, len(state.FeatureWeights))
	for k, v := range state.FeatureWeights {
		out[k] = v
	}
	return out
}

// RecordOutcome feeds a realized result back into the engine: threshold
// performance (and its throttled gradient update) plus the online learning
// state (and its periodic recalibration).
func (e *Engine) RecordOutcome(signalID string, realizedR float64, win bool, now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()

	rt, ok := e.signalRegimes[signalID]
	if !ok {
		rt = regime.Neutral
	}

	th := e.threshold(rt, now)
	th.recordTrade(realizedR, win)
	if th.maybeUpdate(now) {
		e.logger.Info("adaptive threshold updated",
			"regime", string(rt),
			"threshold", th.Threshold,
			"accuracy", th.Performance.Accuracy,
			"sharpe", th.Performance.Sharpe)
	}

	state := e.learningState(rt, now)
	state.recordTrade(realizedR, win)
	if state.maybeRecalibrate(now) {
		e.logger.Info("feature weights recalibrated",
			"regime", string(rt),
			"win_rate", state.WinRate,
			"weights", state.FeatureWeights)
	}
}

// Threshold returns the current threshold value for a regime.
func (e *Engine) Threshold(rt regime.Type) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.threshold(rt, time.Now()).Threshold
}

// Thresholds returns a copy of all threshold states, for the API and the
// state store.
func (e *Engine) Thresholds() map[regime.Type]AdaptiveThreshold {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make(map[regime.Type]AdaptiveThreshold, len(e.thresholds))
	for rt, th := range e.thresholds {
		out[rt] = *th
	}
	return out
}

// RestoreThresholds replaces threshold values from a persisted snapshot,
// re-clamping to bounds. Performance history is not restored; it rebuilds
// from live outcomes.
func (e *Engine) RestoreThresholds(saved map[regime.Type]AdaptiveThreshold) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for rt, snap := range saved {
		th, ok := e.thresholds[rt]
		if !ok {
			continue
		}
		th.Threshold = clampRange(snap.Threshold, MinThreshold, MaxThreshold)
		th.Confidence = snap.Confidence
		th.LastUpdate = snap.LastUpdate
	}
}

// LearningStates returns a copy of all learning states.
func (e *Engine) LearningStates() map[regime.Type]OnlineLearningState {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make(map[regime.Type]OnlineLearningState, len(e.learning))
	for rt, state := range e.learning {
		cp := *state
		cp.FeatureWeights = make(map[string]float64, len(state.FeatureWeights))
		for k, v := range state.FeatureWeights {
			cp.FeatureWeights[k] = v
		}
		out[rt] = cp
	}
	return out
}

// RestoreLearning replaces feature weights and counters from a persisted
// snapshot, re-clamping weights to bounds.
func (e *Engine) RestoreLearning(saved map[regime.Type]OnlineLearningState) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for rt, snap := range saved {
		state, ok := e.learning[rt]
		if !ok {
			continue
		}
		state.TotalTrades = snap.TotalTrades
		state.WinRate = snap.WinRate
		state.AvgReturn = snap.AvgReturn
		state.Volatility = snap.Volatility
		state.LastCalibration = snap.LastCalibration
		for k, v := range snap.FeatureWeights {
			state.FeatureWeights[k] = clampRange(v, minFeatureWeight, maxFeatureWeight)
		}
	}
}

// RejectionCount returns the current rejection log length.
func (e *Engine) RejectionCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.rejections)
}

// PatternAnalysisRuns returns how many pattern-analysis passes have run.
func (e *Engine) PatternAnalysisRuns() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.patternRuns
}

// RecentRejections returns a copy of the most recent n rejection records.
func (e *Engine) RecentRejections(n int) []RejectionRecord {
	e.mu.Lock()
	defer e.mu.Unlock()

	if n > len(e.rejections) {
		n = len(e.rejections)
	}
	out := make([]RejectionRecord, n)
	copy(out, e.rejections[len(e.rejections)-n:])
	return out
}

// threshold returns the state for rt, creating it for unknown regimes.
// Callers hold e.mu.
func (e *Engine) threshold(rt regime.Type, now time.Time) *AdaptiveThreshold {
	th, ok := e.thresholds[rt]
	if !ok {
		th = newThreshold(rt, now)
		e.thresholds[rt] = th
	}
	return th
}

func (e *Engine) learningState(rt regime.Type, now time.Time) *OnlineLearningState {
	state, ok := e.learning[rt]
	if !ok {
		state = newLearningState(rt, now)
		e.learning[rt] = state
	}
	return state
}

func (e *Engine) trackSignal(id string, rt regime.Type) {
	if _, exists := e.signalRegimes[id]; exists {
		return
	}
	e.signalRegimes[id] = rt
	e.signalOrder = append(e.signalOrder, id)
	if len(e.signalOrder) > maxRejectionLog {
		oldest := e.signalOrder[0]
		e.signalOrder = e.signalOrder[1:]
		delete(e.signalRegimes, oldest)
	}
}

// appendRejection adds one record to the capped log and runs pattern
// analysis on every 50th append. Callers hold e.mu.
func (e *Engine) appendRejection(rec RejectionRecord) {
	if len(e.rejections) >= maxRejectionLog {
		e.rejections = e.rejections[1:]
	}
	e.rejections = append(e.rejections, rec)
	e.rejectionAppends++

	if e.rejectionAppends%patternAnalysisEvery == 0 {
		e.analyzeRejectionPatterns()
	}
}

// analyzeRejectionPatterns scans the last 100 rejections; any regime with
// more than 20 entries there has been over-rejecting and gets its threshold
// relaxed by 5%. Callers hold e.mu.
func (e *Engine) analyzeRejectionPatterns() {
	e.patternRuns++

	window := e.rejections
	if len(window) > patternAnalysisWindow {
		window = window[len(window)-patternAnalysisWindow:]
	}

	counts := make(map[regime.Type]int)
	for _, rec := range window {
		counts[rec.Regime]++
	}

	for rt, count := range counts {
		if count <= patternRejectionLimit {
			continue
		}
		th := e.threshold(rt, time.Now())
		before := th.Threshold
		th.relax()
		e.logger.Info("rejection pattern detected, relaxing threshold",
			"regime", string(rt),
			"rejections_in_window", count,
			"threshold_before", before,
			"threshold_after", th.Threshold)
	}
}
