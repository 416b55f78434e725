package adaptive

import (
	"fmt"

	"edge-engine/internal/market"
	"edge-engine/internal/prediction"
)

// Portfolio gate cut points.
const (
	maxPairCorrelation = 0.7
	maxSharpeImpact    = -0.05
	maxRiskRatio       = 0.3
)

// portfolioGate vetoes candidates that concentrate risk: same-pair exposure
// in either direction, a negative simulated Sharpe impact, or too large a
// share of total portfolio risk. A nil portfolio passes (feature absent).
func portfolioGate(sig prediction.EnhancedSignal, portfolio *market.PortfolioSnapshot, candidateRisk float64) (bool, []GateReason) {
	if portfolio == nil {
		return true, nil
	}

	var reasons []GateReason

	// Same-pair positions correlate near-perfectly: +1 with the same
	// direction, -1 opposed. Both exceed the correlation cap.
	for _, pos := range portfolio.OpenPositions {
		if pos.Pair != sig.Candidate.Pair {
			continue
		}
		corr := 0.9
		if pos.Direction != sig.Candidate.Direction {
			corr = -0.9
		}
		if corr > maxPairCorrelation || corr < -maxPairCorrelation {
			reasons = append(reasons, GateReason{
				Kind: GateReasonPortfolio,
				Message: fmt.Sprintf("correlation %.2f with open %s position in %s exceeds %.2f",
					corr, pos.Direction, pos.Pair, maxPairCorrelation),
			})
			break
		}
	}

	if impact := simulatedSharpeImpact(sig, portfolio); impact < maxSharpeImpact {
		reasons = append(reasons, GateReason{
			Kind:    GateReasonPortfolio,
			Message: fmt.Sprintf("simulated sharpe impact %.3f below %.2f", impact, maxSharpeImpact),
		})
	}

	totalRisk := portfolio.TotalRisk + candidateRisk
	if totalRisk > 0 {
		ratio := candidateRisk / totalRisk
		if ratio > maxRiskRatio {
			reasons = append(reasons, GateReason{
				Kind:    GateReasonPortfolio,
				Message: fmt.Sprintf("candidate risk ratio %.2f exceeds %.2f of portfolio risk", ratio, maxRiskRatio),
			})
		}
	}

	return len(reasons) == 0, reasons
}

// simulatedSharpeImpact estimates how adding the candidate shifts the
// portfolio Sharpe: a crude blend of the candidate's risk-adjusted return
// against the current ratio, weighted by its capital share.
func simulatedSharpeImpact(sig prediction.EnhancedSignal, portfolio *market.PortfolioSnapshot) float64 {
	if portfolio.TotalCapital <= 0 {
		return 0
	}

	// The candidate's standalone Sharpe proxy.
	candidateSharpe := sig.Meta.ExpectedOutcome.RiskAdjustedReturn
	if candidateSharpe > 2 {
		candidateSharpe = 2
	}
	if candidateSharpe < -2 {
		candidateSharpe = -2
	}

	weight := 0.1 // marginal allocation share for simulation
	blended := portfolio.SharpeRatio*(1-weight) + candidateSharpe*weight
	return blended - portfolio.SharpeRatio
}
