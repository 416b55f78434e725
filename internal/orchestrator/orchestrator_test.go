package orchestrator

import (
	"context"
	"fmt"
	"math"
	"testing"
	"time"

	"edge-engine/internal/adaptive"
	"edge-engine/internal/barriers"
	"edge-engine/internal/events"
	"edge-engine/internal/logging"
	"edge-engine/internal/market"
	"edge-engine/internal/microstructure"
	"edge-engine/internal/prediction"
	"edge-engine/internal/regime"
)

func newTestOrchestrator() *Orchestrator {
	logger := logging.Discard()
	history := prediction.NewSignalHistory()
	return New(
		regime.NewDetector(),
		microstructure.NewAnalyzer(microstructure.DefaultExecutionConfig(), logger),
		prediction.NewBaseModel(logger),
		prediction.NewMetaModel(prediction.DefaultMetaConfig(), history, prediction.SeededSamplerFactory, logger),
		barriers.NewCalculator(),
		adaptive.NewEngine(adaptive.DefaultEdgeConfig(), logger),
		history,
		events.NewBus(),
		logger,
	)
}

// trendSnapshot builds a 60-bar uptrend ending in a one-bar pullback and a
// high-volume bullish engulfing recovery: trending-bullish regime, multiple
// agreeing buy factors, comfortable net edge.
func trendSnapshot() *market.Snapshot {
	ts := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)
	candles := make([]market.Candle, 60)

	price := 100.0
	for i := 0; i < 58; i++ {
		open := price
		price *= 1.0025
		candles[i] = market.Candle{
			Open:      open,
			High:      price * 1.008,
			Low:       open * 0.992,
			Close:     price,
			Volume:    1000,
			Timestamp: ts.Add(time.Duration(i-59) * time.Minute),
		}
	}

	top := candles[57].Close

	candles[58] = market.Candle{
		Open:      top,
		High:      top * 1.008,
		Low:       top * 0.99 * 0.992,
		Close:     top * 0.997,
		Volume:    1000,
		Timestamp: ts.Add(-1 * time.Minute),
	}
	candles[59] = market.Candle{
		Open:      top * 0.9968,
		High:      top * 1.0001 * 1.008,
		Low:       top * 0.9968 * 0.992,
		Close:     top * 1.0001,
		Volume:    2500,
		Timestamp: ts,
	}

	return &market.Snapshot{
		Pair:         "BTCUSDT",
		Timestamp:    ts,
		CurrentPrice: candles[59].Close,
		Candles:      candles,
	}
}

func shortSnapshot() *market.Snapshot {
	ts := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)
	candles := make([]market.Candle, 10)
	for i := range candles {
		candles[i] = market.Candle{
			Open: 100, High: 100.6, Low: 99.9, Close: 100.5,
			Volume:    1000,
			Timestamp: ts.Add(time.Duration(i-9) * time.Minute),
		}
	}
	return &market.Snapshot{Pair: "BTCUSDT", Timestamp: ts, CurrentPrice: 100.5, Candles: candles}
}

func thinBook(ts time.Time) *market.OrderBook {
	return &market.OrderBook{
		Bids: []market.BookLevel{
			{Price: 115.2, Size: 50}, {Price: 115.1, Size: 50}, {Price: 115.0, Size: 50},
		},
		Asks: []market.BookLevel{
			{Price: 115.4, Size: 50}, {Price: 115.5, Size: 50}, {Price: 115.6, Size: 50},
		},
		Spread:    0.2,
		Timestamp: ts,
	}
}

// stressedBook is deep on both sides but carries a spread wide enough to
// trip the stressed classification without looking illiquid or toxic.
func stressedBook(ts time.Time) *market.OrderBook {
	book := &market.OrderBook{Spread: 0.2, Timestamp: ts}
	for i := 0; i < 10; i++ {
		book.Bids = append(book.Bids, market.BookLevel{Price: 115.2 - float64(i)*0.1, Size: 2000})
		book.Asks = append(book.Asks, market.BookLevel{Price: 115.4 + float64(i)*0.1, Size: 2000})
	}
	return book
}

func toxicBook(ts time.Time) *market.OrderBook {
	return &market.OrderBook{
		Bids: []market.BookLevel{
			{Price: 115.2, Size: 30}, {Price: 115.1, Size: 30},
			{Price: 115.0, Size: 30}, {Price: 114.9, Size: 30},
			{Price: 100.0, Size: 6000},
		},
		Asks: []market.BookLevel{
			{Price: 115.4, Size: 30}, {Price: 115.5, Size: 30},
			{Price: 115.6, Size: 30}, {Price: 115.7, Size: 30},
			{Price: 150.0, Size: 6000},
		},
		Spread:    0.2,
		Timestamp: ts,
	}
}

func TestEvaluateAcceptsTrendingConfluence(t *testing.T) {
	orch := newTestOrchestrator()

	rec, err := orch.Evaluate(context.Background(), trendSnapshot())
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}

	d := rec.Decision
	if d.Action != ActionAccept {
		t.Fatalf("action = %s, want accept (reasons: %v)", d.Action, d.ReasonStrings())
	}
	if !d.HasReason(ReasonEdgeAccepted) {
		t.Errorf("accepted decision missing %s reason", ReasonEdgeAccepted)
	}
	if d.Signal == nil {
		t.Fatal("accepted decision carries no signal")
	}
	if d.Regime.Type != regime.TrendingBullish {
		t.Errorf("regime = %s, want %s", d.Regime.Type, regime.TrendingBullish)
	}
	if p := d.Signal.Meta.ProbabilityTPFirst; p <= 0.55 {
		t.Errorf("probability = %.3f, want > 0.55 for strong confluence", p)
	}
	if d.RiskAdjustedEdge <= 0 {
		t.Errorf("risk-adjusted edge = %.4f, want > 0", d.RiskAdjustedEdge)
	}

	entry := d.Signal.Candidate.EntryPrice
	if d.Barriers == nil || !(d.Barriers.StopLoss < entry && entry < d.Barriers.TakeProfit) {
		t.Errorf("buy barriers not ordered around entry %.4f: %+v", entry, d.Barriers)
	}

	if len(rec.AlternativeScenarios) != 4 {
		t.Errorf("alternative scenarios = %d, want 4", len(rec.AlternativeScenarios))
	}
	if rec.KPIs.TotalDecisions != 1 {
		t.Errorf("total decisions = %d, want 1", rec.KPIs.TotalDecisions)
	}
	if rec.KPIs.AcceptRate != 1.0 {
		t.Errorf("accept rate = %.2f, want 1.0", rec.KPIs.AcceptRate)
	}
}

func TestEvaluateDeterministic(t *testing.T) {
	snap := trendSnapshot()

	first, err := newTestOrchestrator().Evaluate(context.Background(), snap)
	if err != nil {
		t.Fatalf("first evaluate: %v", err)
	}
	second, err := newTestOrchestrator().Evaluate(context.Background(), snap)
	if err != nil {
		t.Fatalf("second evaluate: %v", err)
	}

	if first.Decision.ID != second.Decision.ID {
		t.Errorf("decision IDs differ: %s vs %s", first.Decision.ID, second.Decision.ID)
	}
	if first.Decision.Signal.Candidate.ID != second.Decision.Signal.Candidate.ID {
		t.Errorf("signal IDs differ: %s vs %s",
			first.Decision.Signal.Candidate.ID, second.Decision.Signal.Candidate.ID)
	}
	if first.Decision.RiskAdjustedEdge != second.Decision.RiskAdjustedEdge {
		t.Errorf("risk-adjusted edge differs: %.6f vs %.6f",
			first.Decision.RiskAdjustedEdge, second.Decision.RiskAdjustedEdge)
	}
}

func TestEvaluateNoCandidates(t *testing.T) {
	orch := newTestOrchestrator()

	rec, err := orch.Evaluate(context.Background(), shortSnapshot())
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}

	d := rec.Decision
	if d.Action != ActionReject {
		t.Fatalf("action = %s, want reject", d.Action)
	}
	if !d.HasReason(ReasonNoCandidates) {
		t.Error("missing no-candidates reason")
	}
	if !d.HasReason(ReasonInsufficientData) {
		t.Error("missing insufficient-data reason for a 10-candle snapshot")
	}
	if d.Reasons[0].Message != "No candidate signals detected" {
		t.Errorf("message = %q", d.Reasons[0].Message)
	}
	if d.Regime.Type != regime.Neutral {
		t.Errorf("regime = %s, want %s with insufficient data", d.Regime.Type, regime.Neutral)
	}
}

func TestEvaluateWaitsOnStressedBook(t *testing.T) {
	orch := newTestOrchestrator()
	snap := trendSnapshot()
	snap.OrderBook = stressedBook(snap.Timestamp)

	rec, err := orch.Evaluate(context.Background(), snap)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}

	d := rec.Decision
	if d.Action != ActionWait {
		t.Fatalf("action = %s, want wait (reasons: %v)", d.Action, d.ReasonStrings())
	}
	if !d.HasReason(ReasonTimingWait) {
		t.Error("missing timing-wait reason")
	}
	if d.Execution == nil {
		t.Fatal("wait decision carries no execution plan")
	}
	if d.Execution.Timing.Mode != microstructure.TimingWait {
		t.Errorf("timing mode = %s, want wait", d.Execution.Timing.Mode)
	}
	if d.Microstructure == nil || d.Microstructure.Regime != microstructure.RegimeStressed {
		t.Errorf("microstructure state = %+v, want stressed regime", d.Microstructure)
	}
}

func TestEvaluateRejectsThinBook(t *testing.T) {
	orch := newTestOrchestrator()
	snap := trendSnapshot()
	snap.OrderBook = thinBook(snap.Timestamp)

	rec, err := orch.Evaluate(context.Background(), snap)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}

	d := rec.Decision
	if d.Action != ActionReject {
		t.Fatalf("action = %s, want reject (reasons: %v)", d.Action, d.ReasonStrings())
	}
	if !d.HasReason(ReasonMicrostructure) {
		t.Errorf("missing microstructure reason, got %v", d.ReasonStrings())
	}
	if d.Microstructure == nil || d.Microstructure.Regime != microstructure.RegimeIlliquid {
		t.Errorf("microstructure state = %+v, want illiquid regime", d.Microstructure)
	}
}

func TestEvaluateRejectsToxicMicrostructure(t *testing.T) {
	orch := newTestOrchestrator()
	snap := trendSnapshot()
	snap.OrderBook = toxicBook(snap.Timestamp)

	rec, err := orch.Evaluate(context.Background(), snap)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}

	d := rec.Decision
	if d.Action != ActionReject {
		t.Fatalf("action = %s, want reject (reasons: %v)", d.Action, d.ReasonStrings())
	}
	if !d.HasReason(ReasonMicrostructure) {
		t.Errorf("missing microstructure reason, got %v", d.ReasonStrings())
	}
}

func TestEvaluatePortfolioValidation(t *testing.T) {
	orch := newTestOrchestrator()
	snap := trendSnapshot()
	snap.Portfolio = &market.PortfolioSnapshot{TotalCapital: 0}

	if _, err := orch.Evaluate(context.Background(), snap); err == nil {
		t.Error("invalid portfolio snapshot not rejected")
	}

	if _, err := orch.Evaluate(context.Background(), nil); err == nil {
		t.Error("nil snapshot not rejected")
	}
}

func TestEvaluateCancelledContext(t *testing.T) {
	orch := newTestOrchestrator()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := orch.Evaluate(ctx, trendSnapshot()); err == nil {
		t.Fatal("cancelled context did not abort the cycle")
	}
	if got := len(orch.DecisionHistory()); got != 0 {
		t.Errorf("aborted cycle left %d decisions in history", got)
	}
}

func TestUpdateOutcomeFeedsKPIs(t *testing.T) {
	orch := newTestOrchestrator()
	snap := trendSnapshot()

	rec, err := orch.Evaluate(context.Background(), snap)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if rec.Decision.Action != ActionAccept {
		t.Fatalf("setup decision = %s, want accept", rec.Decision.Action)
	}
	signalID := rec.Decision.Signal.Candidate.ID

	orch.UpdateOutcome(signalID, prediction.Outcome{
		SignalID: signalID,
		HitTP:    true,
		Return:   2.0,
		ClosedAt: snap.Timestamp.Add(2 * time.Hour),
	})

	// KPIs recompute on the next cycle.
	rec, err = orch.Evaluate(context.Background(), shortSnapshot())
	if err != nil {
		t.Fatalf("second evaluate: %v", err)
	}

	if rate := rec.KPIs.HitRateByRegime[regime.TrendingBullish]; rate != 1.0 {
		t.Errorf("trending hit rate = %.2f, want 1.0", rate)
	}
	if rec.KPIs.SignalHalfLife != 2*time.Hour {
		t.Errorf("signal half-life = %s, want 2h", rec.KPIs.SignalHalfLife)
	}
}

func TestRejectionSuccessRate(t *testing.T) {
	orch := newTestOrchestrator()
	snap := trendSnapshot()
	snap.OrderBook = toxicBook(snap.Timestamp)

	rec, err := orch.Evaluate(context.Background(), snap)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if rec.Decision.Action != ActionReject {
		t.Fatalf("setup decision = %s, want reject", rec.Decision.Action)
	}
	signalID := rec.Decision.Signal.Candidate.ID

	// The rejected trade would have lost: the rejection was correct.
	orch.UpdateOutcome(signalID, prediction.Outcome{
		SignalID: signalID,
		HitTP:    false,
		Return:   -1.0,
		ClosedAt: snap.Timestamp.Add(time.Hour),
	})

	rec, err = orch.Evaluate(context.Background(), shortSnapshot())
	if err != nil {
		t.Fatalf("second evaluate: %v", err)
	}
	if rec.KPIs.RejectionSuccessRate != 1.0 {
		t.Errorf("rejection success rate = %.2f, want 1.0", rec.KPIs.RejectionSuccessRate)
	}
}

func TestDecisionHistoryBounded(t *testing.T) {
	orch := newTestOrchestrator()
	snap := shortSnapshot()

	for i := 0; i < maxDecisionHistory+10; i++ {
		snap.Timestamp = snap.Timestamp.Add(time.Minute)
		if _, err := orch.Evaluate(context.Background(), snap); err != nil {
			t.Fatalf("evaluate %d: %v", i, err)
		}
	}

	if got := len(orch.DecisionHistory()); got != maxDecisionHistory {
		t.Errorf("history length = %d, want %d", got, maxDecisionHistory)
	}
	if got := orch.KPIs().TotalDecisions; got != maxDecisionHistory {
		t.Errorf("KPI total decisions = %d, want %d", got, maxDecisionHistory)
	}
}

func TestOutcomeAndRejectionMapsBounded(t *testing.T) {
	orch := newTestOrchestrator()
	closed := time.Date(2026, 3, 10, 18, 0, 0, 0, time.UTC)

	for i := 0; i < maxDecisionHistory+50; i++ {
		id := fmt.Sprintf("sig-%d", i)
		orch.markRejected(id)
		orch.UpdateOutcome(id, prediction.Outcome{SignalID: id, Return: -1, ClosedAt: closed})
	}

	orch.mu.Lock()
	defer orch.mu.Unlock()
	if got := len(orch.outcomes); got != maxDecisionHistory {
		t.Errorf("outcome map size = %d, want %d", got, maxDecisionHistory)
	}
	if got := len(orch.rejectedByID); got != maxDecisionHistory {
		t.Errorf("rejection map size = %d, want %d", got, maxDecisionHistory)
	}
	if _, ok := orch.outcomes["sig-0"]; ok {
		t.Error("oldest outcome not evicted")
	}
	if orch.rejectedByID["sig-0"] {
		t.Error("oldest rejection not evicted")
	}
	last := fmt.Sprintf("sig-%d", maxDecisionHistory+49)
	if _, ok := orch.outcomes[last]; !ok {
		t.Errorf("%s missing from outcome map", last)
	}
	if !orch.rejectedByID[last] {
		t.Errorf("%s missing from rejection map", last)
	}
}

func TestPositionFraction(t *testing.T) {
	cases := []struct {
		name string
		p    float64
		rr   float64
		want float64
	}{
		{"capped at kelly cap", 0.9, 3, kellyCap},
		{"floored for weak edge", 0.3, 2, 0.005},
		{"degenerate risk reward", 0.7, 0, 0.01},
		{"interior kelly", 0.4, 2, 0.1},
	}
	for _, tc := range cases {
		if got := positionFraction(tc.p, tc.rr); math.Abs(got-tc.want) > 1e-12 {
			t.Errorf("%s: positionFraction(%.2f, %.1f) = %.4f, want %.4f",
				tc.name, tc.p, tc.rr, got, tc.want)
		}
	}
}

func TestGateReasonCode(t *testing.T) {
	if got := gateReasonCode(adaptive.GateReasonThreshold); got != ReasonBelowThreshold {
		t.Errorf("threshold kind mapped to %s", got)
	}
	if got := gateReasonCode(adaptive.GateReasonPortfolio); got != ReasonPortfolioVeto {
		t.Errorf("portfolio kind mapped to %s", got)
	}
}

func TestSelectBestPrefersHighestScore(t *testing.T) {
	o := newTestOrchestrator()
	snap := trendSnapshot()
	reg := regime.MarketRegime{Type: regime.TrendingBullish, Confidence: 0.8, Volatility: 0.3, RiskMultiplier: 1}

	mk := func(id string, action Action, score, finalScore float64) candidateVerdict {
		return candidateVerdict{
			signal: prediction.EnhancedSignal{
				Candidate:  prediction.CandidateSignal{ID: id, Pair: "BTCUSDT"},
				FinalScore: finalScore,
			},
			action: action,
			score:  score,
		}
	}

	now := snap.Timestamp
	decision := o.selectBest([]candidateVerdict{
		mk("v-0", ActionAccept, 0.02, 0.6),
		mk("v-1", ActionAccept, 0.05, 0.5),
		mk("v-2", ActionWait, 0.09, 0.9),
	}, snap, reg, nil, now)

	if decision.Action != ActionAccept {
		t.Fatalf("action = %s, want accept", decision.Action)
	}
	if decision.Signal.Candidate.ID != "v-1" {
		t.Errorf("selected %s, want the higher-scoring accept v-1", decision.Signal.Candidate.ID)
	}

	// Without accepts the best wait wins over any reject.
	decision = o.selectBest([]candidateVerdict{
		mk("v-3", ActionReject, 0.01, 0.95),
		mk("v-4", ActionWait, 0.0, 0.4),
	}, snap, reg, nil, now)
	if decision.Action != ActionWait {
		t.Fatalf("action = %s, want wait", decision.Action)
	}
	if decision.Signal.Candidate.ID != "v-4" {
		t.Errorf("selected %s, want v-4", decision.Signal.Candidate.ID)
	}
}
