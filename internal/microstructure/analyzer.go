package microstructure

import (
	"fmt"
	"math"
	"sync"
	"time"

	"edge-engine/internal/logging"
	"edge-engine/internal/market"
)

// maxStateHistory caps the retained analysis history; oldest entries are
// evicted first.
const maxStateHistory = 1000

// Classification cut points. The regime rules are evaluated in severity
// order: illiquid, toxic, sweep_zone, stressed, normal.
const (
	illiquidTotalDepth   = 10000.0
	illiquidNearMidFloor = 50.0
	toxicScoreCut        = 0.6
	toxicImbalanceCut    = 0.6
	toxicAggressiveCut   = 0.5
	sweepZoneRiskCut     = 0.7
	stressedSpreadBps    = 15.0
	stressedTimingRisk   = 0.6
	stressedResilience   = 0.3

	rejectScoreFloor   = 30.0
	rejectSweepRisk    = 0.8
	rejectSizeMultiple = 2.0
)

// Analyzer computes microstructure state from order-book and trade data. It
// owns its rolling histories; nothing else mutates them.
type Analyzer struct {
	cfg    ExecutionConfig
	logger *logging.Logger

	mu          sync.RWMutex
	depths      []float64
	states      []State
	sweepLevels []SweepLevel
}

// NewAnalyzer creates an analyzer with the given execution model config.
func NewAnalyzer(cfg ExecutionConfig, logger *logging.Logger) *Analyzer {
	if cfg.ReferenceOrderSize <= 0 {
		cfg = DefaultExecutionConfig()
	}
	return &Analyzer{
		cfg:    cfg,
		logger: logger.WithComponent("microstructure"),
	}
}

// Analyze computes the full microstructure state for one snapshot and
// appends it to the bounded history.
func (a *Analyzer) Analyze(book *market.OrderBook, trades []market.Trade, candles []market.Candle, now time.Time) State {
	a.mu.Lock()
	defer a.mu.Unlock()

	flow := computeOrderFlow(trades)
	liq := computeLiquidity(book, a.depths)

	var eq ExecutionQuality
	if book != nil {
		eq = computeExecutionQuality(a.cfg, book, candles, flow, liq)
	}

	a.sweepLevels = detectSweepLevels(candles, flow, 3)
	for _, lvl := range a.sweepLevels {
		if lvl.SweepProbability > eq.SweepRisk {
			eq.SweepRisk = lvl.SweepProbability
		}
	}

	reg, confidence := classify(flow, liq, eq)

	state := State{
		OrderFlow:  flow,
		Liquidity:  liq,
		Execution:  eq,
		Regime:     reg,
		Confidence: confidence,
		Timestamp:  now,
	}

	a.depths = append(a.depths, liq.TotalDepth())
	if len(a.depths) > maxStateHistory {
		a.depths = a.depths[1:]
	}
	a.states = append(a.states, state)
	if len(a.states) > maxStateHistory {
		a.states = a.states[1:]
	}

	a.logger.Debug("microstructure analyzed",
		"regime", string(reg),
		"exec_score", eq.Score,
		"total_depth", liq.TotalDepth(),
		"sweep_risk", eq.SweepRisk)

	return state
}

// classify applies the ordered rule list with the fixed cut points above.
func classify(flow OrderFlowMetrics, liq LiquidityMetrics, eq ExecutionQuality) (Regime, float64) {
	switch {
	case liq.TotalDepth() > 0 && (liq.TotalDepth() < illiquidTotalDepth || liq.DepthNearMid < illiquidNearMidFloor):
		return RegimeIlliquid, 0.85
	case liq.ToxicityScore > toxicScoreCut ||
		(math.Abs(flow.Imbalance) > toxicImbalanceCut && flow.AggressiveRatio > toxicAggressiveCut):
		return RegimeToxic, 0.8
	case eq.SweepRisk > sweepZoneRiskCut:
		return RegimeSweepZone, 0.75
	case liq.SpreadBps > stressedSpreadBps || eq.TimingRisk > stressedTimingRisk ||
		(liq.TotalDepth() > 0 && liq.Resilience < stressedResilience):
		return RegimeStressed, 0.7
	default:
		return RegimeNormal, 0.6
	}
}

// History returns a copy of the retained state history.
func (a *Analyzer) History() []State {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]State, len(a.states))
	copy(out, a.states)
	return out
}

// SweepLevels returns the levels found by the most recent analysis.
func (a *Analyzer) SweepLevels() []SweepLevel {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]SweepLevel, len(a.sweepLevels))
	copy(out, a.sweepLevels)
	return out
}

// ShouldRejectTrade applies the microstructure rejection rules: toxic
// regime, an illiquid book below the total-depth floor, execution score
// below 30, sweep risk above 0.8, order size beyond twice the recommended
// size, or a required wait longer than the trade's time horizon.
func (a *Analyzer) ShouldRejectTrade(state State, orderSize float64, timeHorizon time.Duration) RejectVerdict {
	if state.Regime == RegimeToxic {
		return RejectVerdict{Reject: true, Reason: "toxic microstructure regime"}
	}
	if state.Regime == RegimeIlliquid && state.Liquidity.TotalDepth() < illiquidTotalDepth {
		return RejectVerdict{Reject: true, Reason: fmt.Sprintf("total depth %.0f below %.0f liquidity floor", state.Liquidity.TotalDepth(), illiquidTotalDepth)}
	}
	if state.Execution.Score < rejectScoreFloor {
		return RejectVerdict{Reject: true, Reason: fmt.Sprintf("execution score %.0f below %.0f", state.Execution.Score, rejectScoreFloor)}
	}
	if state.Execution.SweepRisk > rejectSweepRisk {
		return RejectVerdict{Reject: true, Reason: fmt.Sprintf("sweep risk %.2f above %.2f", state.Execution.SweepRisk, rejectSweepRisk)}
	}
	if rec := state.Execution.RecommendedOrderSize; rec > 0 && orderSize > rec*rejectSizeMultiple {
		return RejectVerdict{Reject: true, Reason: fmt.Sprintf("order size %.0f exceeds %.1fx recommended %.0f", orderSize, rejectSizeMultiple, rec)}
	}
	if wait := requiredWait(state.Regime); wait > 0 && wait > timeHorizon {
		return RejectVerdict{
			Reject:       true,
			Reason:       fmt.Sprintf("required wait %s exceeds horizon %s", wait, timeHorizon),
			RequiredWait: wait,
		}
	}
	return RejectVerdict{}
}

// requiredWait returns how long the current regime demands waiting before
// entry.
func requiredWait(reg Regime) time.Duration {
	switch reg {
	case RegimeSweepZone:
		return 15 * time.Minute
	case RegimeIlliquid:
		return 10 * time.Minute
	case RegimeStressed:
		return 5 * time.Minute
	default:
		return 0
	}
}

// OptimalEntryTiming recommends immediate entry, a plain wait, or waiting
// for a sweep to complete before entering.
func (a *Analyzer) OptimalEntryTiming(state State, direction market.Direction) EntryTiming {
	a.mu.RLock()
	levels := a.sweepLevels
	a.mu.RUnlock()

	// Entering into a probable sweep of our own side: wait for it to clear
	// and enter into the flushed liquidity.
	for _, lvl := range levels {
		if lvl.Side == direction.Opposite() && lvl.SweepProbability > 0.6 {
			return EntryTiming{
				Mode:      TimingPostSweep,
				Wait:      requiredWait(RegimeSweepZone),
				Reasoning: fmt.Sprintf("probable sweep of level %.4f (%d touches, p=%.2f); enter after it clears", lvl.Price, lvl.Touches, lvl.SweepProbability),
			}
		}
	}

	if wait := requiredWait(state.Regime); wait > 0 {
		return EntryTiming{
			Mode:      TimingWait,
			Wait:      wait,
			Reasoning: fmt.Sprintf("%s microstructure regime; defer entry", state.Regime),
		}
	}

	// Strong flow against the intended direction: let it exhaust.
	if (direction == market.DirectionBuy && state.OrderFlow.Imbalance < -0.5) ||
		(direction == market.DirectionSell && state.OrderFlow.Imbalance > 0.5) {
		return EntryTiming{
			Mode:      TimingWait,
			Wait:      5 * time.Minute,
			Reasoning: fmt.Sprintf("order flow imbalance %.2f runs against entry", state.OrderFlow.Imbalance),
		}
	}

	return EntryTiming{Mode: TimingImmediate, Reasoning: "no adverse microstructure conditions"}
}
