package orchestrator

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"edge-engine/internal/adaptive"
	"edge-engine/internal/barriers"
	"edge-engine/internal/events"
	"edge-engine/internal/logging"
	"edge-engine/internal/market"
	"edge-engine/internal/microstructure"
	"edge-engine/internal/prediction"
	"edge-engine/internal/regime"
)

// History caps. Oldest entries are evicted first.
const (
	maxDecisionHistory = 1000
	maxKPISnapshots    = 100
)

// kellyCap bounds the suggested position fraction regardless of how strong
// the edge looks.
const kellyCap = 0.25

// decisionNamespace derives decision IDs deterministically from the cycle
// inputs.
var decisionNamespace = uuid.MustParse("9d2e41c7-3f6a-4b8d-a1c5-7e9f0b2d4a68")

// Orchestrator wires the pipeline stages and owns the decision and KPI
// histories. All engine state lives in the injected components; tests can
// construct fully isolated instances.
type Orchestrator struct {
	detector   *regime.Detector
	micro      *microstructure.Analyzer
	baseModel  *prediction.BaseModel
	metaModel  *prediction.MetaModel
	calculator *barriers.Calculator
	engine     *adaptive.Engine
	signals    *prediction.SignalHistory
	bus        *events.Bus
	logger     *logging.Logger

	mu            sync.Mutex
	decisions     []SystemDecision
	kpiSnapshots  []SystemKPIs
	outcomes      map[string]outcomeRecord // by signal ID
	outcomeOrder  []string
	rejectedByID  map[string]bool
	rejectedOrder []string
	sumCostRatio  float64
	costSamples   int
}

type outcomeRecord struct {
	hitTP   bool
	ret     float64
	holding time.Duration
	regime  regime.Type
}

// New creates an orchestrator around the given components.
func New(
	detector *regime.Detector,
	micro *microstructure.Analyzer,
	baseModel *prediction.BaseModel,
	metaModel *prediction.MetaModel,
	calculator *barriers.Calculator,
	engine *adaptive.Engine,
	signals *prediction.SignalHistory,
	bus *events.Bus,
	logger *logging.Logger,
) *Orchestrator {
	return &Orchestrator{
		detector:     detector,
		micro:        micro,
		baseModel:    baseModel,
		metaModel:    metaModel,
		calculator:   calculator,
		engine:       engine,
		signals:      signals,
		bus:          bus,
		logger:       logger.WithComponent("orchestrator"),
		outcomes:     make(map[string]outcomeRecord),
		rejectedByID: make(map[string]bool),
	}
}

// candidateVerdict is the per-candidate pipeline result before selection.
type candidateVerdict struct {
	signal  prediction.EnhancedSignal
	gate    adaptive.GateResult
	action  Action
	reasons []Reason
	plan    *ExecutionPlan
	score   float64 // riskAdjustedEdge x confidence, selection key
}

// Evaluate runs one full decision cycle over the snapshot. The history only
// receives a record once the cycle resolves to a terminal decision; a
// cancelled context leaves no side effects beyond the rejection log.
func (o *Orchestrator) Evaluate(ctx context.Context, snap *market.Snapshot) (*TradingRecommendation, error) {
	if snap == nil {
		return nil, fmt.Errorf("evaluate: nil snapshot")
	}
	if snap.Portfolio != nil {
		if err := snap.Portfolio.Validate(); err != nil {
			return nil, fmt.Errorf("evaluate %s: %w", snap.Pair, err)
		}
	}
	now := snap.Timestamp
	if now.IsZero() {
		now = time.Now().UTC()
	}

	// DETECT_REGIME
	reg := o.detector.Detect(snap.Candles, snap.VolumeSeries(), snap.News, now)

	// ANALYZE_MICROSTRUCTURE, only when book or prints were supplied.
	var microState *microstructure.State
	if snap.OrderBook != nil || len(snap.Trades) > 0 {
		state := o.micro.Analyze(snap.OrderBook, snap.Trades, snap.Candles, now)
		microState = &state
	}

	// GENERATE_CANDIDATES
	weights := o.engine.FeatureWeights(reg.Type)
	candidates := o.baseModel.GenerateCandidates(snap, reg, weights)
	if len(candidates) == 0 {
		return o.finalize(noCandidateDecision(snap, reg, microState, now), reg, microState, snap), nil
	}

	verdicts := make([]candidateVerdict, 0, len(candidates))
	for _, candidate := range candidates {
		// A cycle may be abandoned between candidate evaluations; nothing
		// has been committed to the decision history yet.
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		verdicts = append(verdicts, o.evaluateCandidate(candidate, reg, microState, snap, now))
	}

	decision := o.selectBest(verdicts, snap, reg, microState, now)
	return o.finalize(decision, reg, microState, snap), nil
}

// evaluateCandidate runs CALC_BARRIERS → META_PREDICT → ENHANCE →
// REGIME_ADAPTIVE_GATE → MICROSTRUCTURE_GATE for one candidate.
func (o *Orchestrator) evaluateCandidate(candidate prediction.CandidateSignal, reg regime.MarketRegime, microState *microstructure.State, snap *market.Snapshot, now time.Time) candidateVerdict {
	levels := o.calculator.Calculate(candidate.EntryPrice, candidate.Direction, reg, snap.Candles)
	meta := o.metaModel.Predict(candidate, levels, reg, snap)
	enhanced := prediction.Enhance(candidate, meta, levels)
	o.signals.Record(enhanced)

	o.bus.Publish(events.EventSignalGenerated, map[string]interface{}{
		"signal_id":   candidate.ID,
		"pair":        candidate.Pair,
		"direction":   string(candidate.Direction),
		"final_score": enhanced.FinalScore,
	})

	fraction := positionFraction(meta.ProbabilityTPFirst, meta.MarketConditions.RiskReward)
	gate := o.engine.Evaluate(enhanced, reg, microState, snap.Portfolio, fraction, now)

	verdict := candidateVerdict{
		signal: enhanced,
		gate:   gate,
	}
	riskAdjEdge := gate.Edge.NetEdge * (1 - 0.5*meta.CombinedRisk)
	verdict.score = riskAdjEdge * enhanced.FinalScore

	if !gate.Accept {
		verdict.action = ActionReject
		for _, r := range gate.Reasons {
			verdict.reasons = append(verdict.reasons, Reason{Code: gateReasonCode(r.Kind), Message: r.Message})
		}
		o.markRejected(candidate.ID)
		return verdict
	}

	// MICROSTRUCTURE_GATE / TIMING
	if microState != nil {
		orderSize := microState.Execution.RecommendedOrderSize
		if orderSize <= 0 {
			orderSize = 1
		}
		horizon := meta.ExpectedOutcome.ExpectedHoldingTime
		if rej := o.micro.ShouldRejectTrade(*microState, orderSize, horizon); rej.Reject {
			verdict.action = ActionReject
			verdict.reasons = append(verdict.reasons, Reason{Code: ReasonMicrostructure, Message: rej.Reason})
			o.markRejected(candidate.ID)
			return verdict
		}

		timing := o.micro.OptimalEntryTiming(*microState, candidate.Direction)
		verdict.plan = &ExecutionPlan{Timing: timing, OrderSize: orderSize}
		if timing.Mode != microstructure.TimingImmediate {
			verdict.action = ActionWait
			verdict.reasons = append(verdict.reasons, Reason{Code: ReasonTimingWait, Message: timing.Reasoning})
			return verdict
		}
	}

	verdict.action = ActionAccept
	verdict.reasons = append(verdict.reasons, Reason{
		Code: ReasonEdgeAccepted,
		Message: fmt.Sprintf("net edge %.4f clears %s threshold %.4f with p=%.2f",
			gate.Edge.NetEdge, reg.Type, gate.Threshold, meta.ProbabilityTPFirst),
	})
	return verdict
}

// selectBest resolves multiple candidate verdicts to one decision: the
// accepted candidate maximizing riskAdjustedEdge x confidence, else the
// highest-confidence wait, else the highest-confidence rejection.
func (o *Orchestrator) selectBest(verdicts []candidateVerdict, snap *market.Snapshot, reg regime.MarketRegime, microState *microstructure.State, now time.Time) SystemDecision {
	var best *candidateVerdict
	for i := range verdicts {
		v := &verdicts[i]
		if v.action != ActionAccept {
			continue
		}
		if best == nil || v.score > best.score {
			best = v
		}
	}
	action := ActionAccept

	if best == nil {
		action = ActionWait
		for i := range verdicts {
			v := &verdicts[i]
			if v.action != ActionWait {
				continue
			}
			if best == nil || v.signal.FinalScore > best.signal.FinalScore {
				best = v
			}
		}
	}
	if best == nil {
		action = ActionReject
		for i := range verdicts {
			v := &verdicts[i]
			if best == nil || v.signal.FinalScore > best.signal.FinalScore {
				best = v
			}
		}
	}

	sig := best.signal
	lv := sig.Barriers
	decision := SystemDecision{
		ID:               uuid.NewSHA1(decisionNamespace, []byte(sig.Candidate.ID)).String(),
		Timestamp:        now,
		Pair:             snap.Pair,
		Action:           action,
		Confidence:       sig.FinalScore,
		ExpectedEdge:     best.gate.Edge.ExpectedEdge,
		RiskAdjustedEdge: best.gate.Edge.NetEdge * (1 - 0.5*sig.Meta.CombinedRisk),
		Signal:           &sig,
		Barriers:         &lv,
		Execution:        best.plan,
		Edge:             &best.gate.Edge,
		Reasons:          best.reasons,
		Regime:           reg,
		Microstructure:   microState,
	}
	return decision
}

// noCandidateDecision is the terminal reject for a cycle with no confluence.
func noCandidateDecision(snap *market.Snapshot, reg regime.MarketRegime, microState *microstructure.State, now time.Time) SystemDecision {
	reasons := []Reason{{
		Code:    ReasonNoCandidates,
		Message: "No candidate signals detected",
	}}
	if len(snap.Candles) < 20 {
		reasons = append(reasons, Reason{
			Code:    ReasonInsufficientData,
			Message: fmt.Sprintf("only %d candles supplied; regime degraded to %s", len(snap.Candles), reg.Type),
		})
	}
	return SystemDecision{
		ID:             uuid.NewSHA1(decisionNamespace, []byte(snap.Pair+now.Format(time.RFC3339Nano))).String(),
		Timestamp:      now,
		Pair:           snap.Pair,
		Action:         ActionReject,
		Confidence:     reg.Confidence,
		Reasons:        reasons,
		Regime:         reg,
		Microstructure: microState,
	}
}

// finalize appends the decision to the bounded history, recomputes KPIs,
// attaches scenarios/warnings/suggestions and publishes the result.
func (o *Orchestrator) finalize(decision SystemDecision, reg regime.MarketRegime, microState *microstructure.State, snap *market.Snapshot) *TradingRecommendation {
	o.mu.Lock()
	if len(o.decisions) >= maxDecisionHistory {
		o.decisions = o.decisions[1:]
	}
	o.decisions = append(o.decisions, decision)

	if decision.Edge != nil && decision.Edge.ExpectedEdge > 0 {
		costs := decision.Edge.SpreadCost + decision.Edge.SlippageCost + decision.Edge.MarketImpactCost
		o.sumCostRatio += costs / decision.Edge.ExpectedEdge
		o.costSamples++
	}

	kpis := o.computeKPIsLocked()
	if len(o.kpiSnapshots) >= maxKPISnapshots {
		o.kpiSnapshots = o.kpiSnapshots[1:]
	}
	o.kpiSnapshots = append(o.kpiSnapshots, kpis)
	o.mu.Unlock()

	rec := &TradingRecommendation{
		Decision:                decision,
		AlternativeScenarios:    buildScenarios(decision, reg),
		RiskWarnings:            buildRiskWarnings(decision, reg, microState, snap),
		OptimizationSuggestions: buildOptimizations(decision, reg),
		KPIs:                    kpis,
	}

	o.logger.Info("decision cycle complete",
		"pair", decision.Pair,
		"action", string(decision.Action),
		"regime", string(reg.Type),
		"confidence", decision.Confidence,
		"risk_adjusted_edge", decision.RiskAdjustedEdge)

	o.bus.Publish(events.EventDecisionMade, map[string]interface{}{
		"decision_id": decision.ID,
		"pair":        decision.Pair,
		"action":      string(decision.Action),
		"confidence":  decision.Confidence,
		"regime":      string(reg.Type),
		"reasons":     decision.ReasonStrings(),
	})
	o.bus.Publish(events.EventKPIUpdate, map[string]interface{}{
		"total_decisions": kpis.TotalDecisions,
		"accept_rate":     kpis.AcceptRate,
		"edge_decay":      kpis.EdgeDecay,
	})

	return rec
}

// UpdateOutcome feeds a realized result back for counterfactual learning:
// the adaptive engine's threshold/learning loops, the meta model's
// historical adjustment, and the rejection-success KPI.
func (o *Orchestrator) UpdateOutcome(signalID string, outcome prediction.Outcome) {
	win := outcome.HitTP
	o.signals.RecordOutcome(outcome)
	o.engine.RecordOutcome(signalID, outcome.Return, win, outcome.ClosedAt)

	o.mu.Lock()
	var rt regime.Type = regime.Neutral
	var holding time.Duration
	for i := len(o.decisions) - 1; i >= 0; i-- {
		if o.decisions[i].Signal != nil && o.decisions[i].Signal.Candidate.ID == signalID {
			rt = o.decisions[i].Regime.Type
			holding = outcome.ClosedAt.Sub(o.decisions[i].Timestamp)
			break
		}
	}
	if _, exists := o.outcomes[signalID]; !exists {
		o.outcomeOrder = append(o.outcomeOrder, signalID)
		if len(o.outcomeOrder) > maxDecisionHistory {
			delete(o.outcomes, o.outcomeOrder[0])
			o.outcomeOrder = o.outcomeOrder[1:]
		}
	}
	o.outcomes[signalID] = outcomeRecord{
		hitTP:   win,
		ret:     outcome.Return,
		holding: holding,
		regime:  rt,
	}
	o.mu.Unlock()

	o.bus.Publish(events.EventOutcomeRecorded, map[string]interface{}{
		"signal_id": signalID,
		"hit_tp":    win,
		"return":    outcome.Return,
	})
}

// KPIs returns the latest KPI snapshot.
func (o *Orchestrator) KPIs() SystemKPIs {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.kpiSnapshots) == 0 {
		return o.computeKPIsLocked()
	}
	return o.kpiSnapshots[len(o.kpiSnapshots)-1]
}

// DecisionHistory returns a copy of the rolling decision history.
func (o *Orchestrator) DecisionHistory() []SystemDecision {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]SystemDecision, len(o.decisions))
	copy(out, o.decisions)
	return out
}

// gateReasonCode maps an adaptive gate reason to its decision reason code.
func gateReasonCode(kind adaptive.GateReasonKind) ReasonCode {
	if kind == adaptive.GateReasonPortfolio {
		return ReasonPortfolioVeto
	}
	return ReasonBelowThreshold
}

// positionFraction is the Kelly fraction for (p, R) capped at kellyCap and
// floored at zero.
func positionFraction(p, rr float64) float64 {
	if rr <= 0 {
		return 0.01
	}
	kelly := p - (1-p)/rr
	return math.Max(0.005, math.Min(kelly, kellyCap))
}

// markRejected records a vetoed candidate for the rejection-success KPI.
// Both the outcome and rejection maps evict in insertion order at the same
// cap as the decision history, so a long-running engine holds a fixed
// working set.
func (o *Orchestrator) markRejected(id string) {
	o.mu.Lock()
	if !o.rejectedByID[id] {
		o.rejectedByID[id] = true
		o.rejectedOrder = append(o.rejectedOrder, id)
		if len(o.rejectedOrder) > maxDecisionHistory {
			delete(o.rejectedByID, o.rejectedOrder[0])
			o.rejectedOrder = o.rejectedOrder[1:]
		}
	}
	o.mu.Unlock()
}
