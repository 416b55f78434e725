package orchestrator

import (
	"fmt"

	"edge-engine/internal/market"
	"edge-engine/internal/microstructure"
	"edge-engine/internal/regime"
)

// buildScenarios attaches what-if branches to the decision: the base case,
// the adverse case, a regime shift and deteriorating liquidity. Scenario
// probabilities are coarse priors shaped by the current regime, not model
// outputs.
func buildScenarios(decision SystemDecision, reg regime.MarketRegime) []AlternativeScenario {
	p := 0.5
	rr := 1.0
	if decision.Signal != nil {
		p = decision.Signal.Meta.ProbabilityTPFirst
		rr = decision.Signal.Meta.MarketConditions.RiskReward
	}

	shiftProb := 0.10
	if reg.IsShock() || reg.Type == regime.LiquidityCrisis {
		shiftProb = 0.35
	} else if reg.Confidence < 0.5 {
		shiftProb = 0.20
	}

	scenarios := []AlternativeScenario{
		{
			Name:              "base_case",
			Probability:       p * (1 - shiftProb),
			OutcomeMultiplier: rr,
			Description:       fmt.Sprintf("Target reached first under persistent %s regime", reg.Type),
		},
		{
			Name:              "adverse_case",
			Probability:       (1 - p) * (1 - shiftProb),
			OutcomeMultiplier: -1.0,
			Description:       "Stop hit before target; full single-R loss realized",
		},
		{
			Name:              "regime_shift",
			Probability:       shiftProb * 0.7,
			OutcomeMultiplier: -0.4,
			Description:       fmt.Sprintf("Regime transitions away from %s mid-trade; partial exit at degraded price", reg.Type),
		},
		{
			Name:              "liquidity_deterioration",
			Probability:       shiftProb * 0.3,
			OutcomeMultiplier: -0.6,
			Description:       "Book thins out before exit; realized slippage exceeds the modeled cost",
		},
	}
	return scenarios
}

// buildRiskWarnings emits rule-based cautions. Thresholds mirror the gating
// cut points so a warning fires before the corresponding hard rejection.
func buildRiskWarnings(decision SystemDecision, reg regime.MarketRegime, micro *microstructure.State, snap *market.Snapshot) []RiskWarning {
	var warnings []RiskWarning

	if reg.IsShock() {
		warnings = append(warnings, RiskWarning{
			Category: "regime",
			Severity: "critical",
			Message:  "Volatility shock regime active; realized moves exceed 3x recent dispersion",
		})
	}
	if reg.Type == regime.LiquidityCrisis {
		warnings = append(warnings, RiskWarning{
			Category: "regime",
			Severity: "critical",
			Message:  "Liquidity crisis regime; volume has collapsed below 30% of baseline",
		})
	}
	if reg.Confidence < 0.4 {
		warnings = append(warnings, RiskWarning{
			Category: "regime",
			Severity: "elevated",
			Message:  fmt.Sprintf("Regime classification confidence is low (%.2f); adjacent regimes plausible", reg.Confidence),
		})
	}

	if decision.Signal != nil {
		meta := decision.Signal.Meta
		if meta.EventRisk > 0.5 {
			warnings = append(warnings, RiskWarning{
				Category: "event",
				Severity: "elevated",
				Message:  fmt.Sprintf("Scheduled news raises event risk to %.2f within the expected holding window", meta.EventRisk),
			})
		}
		if meta.ConfidenceInterval[1]-meta.ConfidenceInterval[0] > 0.3 {
			warnings = append(warnings, RiskWarning{
				Category: "model",
				Severity: "info",
				Message:  "Wide probability interval; the estimate is sensitive to recent sample noise",
			})
		}
	}

	if micro != nil {
		if micro.Execution.SweepRisk > 0.6 {
			warnings = append(warnings, RiskWarning{
				Category: "microstructure",
				Severity: "elevated",
				Message:  fmt.Sprintf("Sweep risk %.2f approaching the rejection cut; stops near clustered levels may be hunted", micro.Execution.SweepRisk),
			})
		}
		if micro.Liquidity.ToxicityScore > 0.5 {
			warnings = append(warnings, RiskWarning{
				Category: "microstructure",
				Severity: "elevated",
				Message:  "Order flow shows toxicity markers; spoofing or adverse selection likely",
			})
		}
		if micro.Liquidity.SpreadBps > 12 {
			warnings = append(warnings, RiskWarning{
				Category: "microstructure",
				Severity: "info",
				Message:  fmt.Sprintf("Spread at %.1f bps is wide for this pair; entry cost drag is elevated", micro.Liquidity.SpreadBps),
			})
		}
	}

	if snap.Portfolio != nil && snap.Portfolio.Equity > 0 {
		util := snap.Portfolio.TotalRisk / snap.Portfolio.Equity
		if util > 0.15 {
			warnings = append(warnings, RiskWarning{
				Category: "portfolio",
				Severity: "elevated",
				Message:  fmt.Sprintf("Open risk is %.0f%% of equity; marginal positions compound drawdown exposure", util*100),
			})
		}
	}
	return warnings
}

// buildOptimizations proposes sizing, timing and barrier adjustments for an
// accepted or waiting decision. Rejections get no suggestions; the reasons
// already say what failed.
func buildOptimizations(decision SystemDecision, reg regime.MarketRegime) []OptimizationSuggestion {
	if decision.Action == ActionReject {
		return nil
	}
	var out []OptimizationSuggestion

	if decision.Signal != nil {
		meta := decision.Signal.Meta
		if meta.CombinedRisk > 0.5 {
			out = append(out, OptimizationSuggestion{
				Category: "sizing",
				Message:  "Halve position size; combined risk is in the upper band for this regime",
				Value:    0.5,
			})
		}
		if meta.ProbabilityTPFirst > 0.65 && meta.CombinedRisk < 0.35 {
			out = append(out, OptimizationSuggestion{
				Category: "sizing",
				Message:  "Conditions support sizing toward the Kelly cap",
				Value:    kellyCap,
			})
		}
	}

	if decision.Execution != nil && decision.Execution.Timing.Mode != microstructure.TimingImmediate {
		out = append(out, OptimizationSuggestion{
			Category: "timing",
			Message:  fmt.Sprintf("Delay entry: %s", decision.Execution.Timing.Reasoning),
			Value:    decision.Execution.Timing.Wait.Minutes(),
		})
	}

	if reg.Volatility > 0.6 && decision.Barriers != nil {
		out = append(out, OptimizationSuggestion{
			Category: "barriers",
			Message:  "Widen the stop a further 20% to survive volatility-driven wicks",
			Value:    1.2,
		})
	}
	if reg.IsTrending() && decision.Barriers != nil {
		out = append(out, OptimizationSuggestion{
			Category: "barriers",
			Message:  "Trail the stop behind EMA20 once the first target band is reached",
		})
	}
	return out
}
