package prediction

import (
	"edge-engine/internal/barriers"
)

// Enhance combines a candidate with its meta prediction into the scored,
// tiered enhanced signal consumed by the adaptive engine.
func Enhance(candidate CandidateSignal, meta MetaPrediction, levels barriers.Levels) EnhancedSignal {
	finalScore := 0.4*candidate.Confidence + 0.6*meta.ProbabilityTPFirst

	riskAdjustedScore := finalScore * (1 - 0.5*meta.CombinedRisk)
	ret := meta.ExpectedOutcome.RiskAdjustedReturn

	return EnhancedSignal{
		Candidate:      candidate,
		Meta:           meta,
		Barriers:       levels,
		FinalScore:     clampRange(finalScore, 0, 1),
		Recommendation: recommendationTier(riskAdjustedScore, ret, candidate),
		RiskProfile:    riskProfile(meta.CombinedRisk, meta.ProbabilityTPFirst),
	}
}

// recommendationTier maps (risk-adjusted score, risk-adjusted return) onto
// the seven-point scale. Sell-side candidates mirror the buy-side cut
// points.
func recommendationTier(score, ret float64, candidate CandidateSignal) Recommendation {
	buySide := candidate.Direction == "buy"

	var tier Recommendation
	switch {
	case score >= 0.8 && ret > 2:
		tier = StrongBuy
	case score >= 0.65 && ret > 1:
		tier = Buy
	case score >= 0.5 && ret > 0.3:
		tier = WeakBuy
	case score <= 0.2 && ret < -2:
		tier = StrongSell
	case score <= 0.35 && ret < -1:
		tier = Sell
	case score <= 0.5 && ret < -0.3:
		tier = WeakSell
	default:
		return Hold
	}

	if !buySide {
		switch tier {
		case StrongBuy:
			return StrongSell
		case Buy:
			return Sell
		case WeakBuy:
			return WeakSell
		case StrongSell:
			return StrongBuy
		case Sell:
			return Buy
		case WeakSell:
			return WeakBuy
		}
	}
	return tier
}

func riskProfile(combinedRisk, probability float64) RiskProfile {
	switch {
	case combinedRisk < 0.3 && probability > 0.65:
		return ProfileAggressive
	case combinedRisk < 0.55 && probability > 0.5:
		return ProfileModerate
	default:
		return ProfileConservative
	}
}
