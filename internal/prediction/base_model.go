package prediction

import (
	"fmt"

	"github.com/google/uuid"

	"edge-engine/internal/logging"
	"edge-engine/internal/market"
	"edge-engine/internal/regime"
)

// signalNamespace makes candidate IDs a pure function of their content, so
// re-running the pipeline on identical inputs reproduces the same IDs.
var signalNamespace = uuid.MustParse("5b7f5a3e-8c1d-4a2b-9e6f-2d4c8a1b3e5f")

// BaseModel is layer 1: it runs the four factor analyzers, filters factors
// through the regime's per-category adjustment, and promotes directional
// confluence into candidate signals. It intentionally over-generates; all
// risk filtering happens downstream.
type BaseModel struct {
	minFactors    int
	minConfidence float64
	minStrength   float64
	logger        *logging.Logger
}

// NewBaseModel creates a base model with the confluence gate (3 agreeing
// factors, candidate confidence >= 0.3, post-scaling strength > 2).
func NewBaseModel(logger *logging.Logger) *BaseModel {
	return &BaseModel{
		minFactors:    3,
		minConfidence: 0.3,
		minStrength:   2.0,
		logger:        logger.WithComponent("base_model"),
	}
}

// GenerateCandidates runs every analyzer against the snapshot and returns
// zero or more candidates. featureWeights are the adaptive engine's learned
// per-category multipliers for the current regime; nil means unweighted.
func (bm *BaseModel) GenerateCandidates(snap *market.Snapshot, reg regime.MarketRegime, featureWeights map[string]float64) []CandidateSignal {
	raw := bm.collectFactors(snap.Candles)
	if len(raw) == 0 {
		return nil
	}

	// Regime filter: scale strength by the regime's per-category adjustment
	// (and the learned feature weight), then drop weak factors.
	filtered := make([]TechnicalFactor, 0, len(raw))
	for _, f := range raw {
		scaled := f
		if adj, ok := reg.AdjustmentFactors[f.Category]; ok {
			scaled.Strength *= adj
		}
		if featureWeights != nil {
			if w, ok := featureWeights[f.Category]; ok {
				scaled.Strength *= w
			}
		}
		if scaled.Strength <= bm.minStrength {
			continue
		}
		filtered = append(filtered, scaled)
	}

	var candidates []CandidateSignal
	for _, dir := range []market.Direction{market.DirectionBuy, market.DirectionSell} {
		if c, ok := bm.buildCandidate(snap, dir, filtered); ok {
			candidates = append(candidates, c)
		}
	}

	bm.logger.Debug("candidate generation complete",
		"pair", snap.Pair,
		"regime", string(reg.Type),
		"raw_factors", len(raw),
		"filtered_factors", len(filtered),
		"candidates", len(candidates))

	return candidates
}

func (bm *BaseModel) collectFactors(candles []market.Candle) []TechnicalFactor {
	var factors []TechnicalFactor
	factors = append(factors, analyzeTechnical(candles)...)
	factors = append(factors, analyzeCandlesticks(candles)...)
	factors = append(factors, analyzeVolume(candles)...)
	factors = append(factors, analyzeMomentum(candles)...)
	return factors
}

func (bm *BaseModel) buildCandidate(snap *market.Snapshot, dir market.Direction, factors []TechnicalFactor) (CandidateSignal, bool) {
	agreeing := make([]TechnicalFactor, 0, len(factors))
	totalStrength := 0.0
	totalConfidence := 0.0
	for _, f := range factors {
		if f.Direction != dir {
			continue
		}
		agreeing = append(agreeing, f)
		totalStrength += f.Strength
		totalConfidence += f.Confidence
	}

	if len(agreeing) < bm.minFactors {
		return CandidateSignal{}, false
	}

	confidence := totalConfidence / float64(len(agreeing))
	if confidence < bm.minConfidence {
		return CandidateSignal{}, false
	}

	id := uuid.NewSHA1(signalNamespace, []byte(fmt.Sprintf("%s|%s|%.8f|%d",
		snap.Pair, dir, snap.CurrentPrice, snap.Timestamp.UnixNano()))).String()

	return CandidateSignal{
		ID:          id,
		Timestamp:   snap.Timestamp,
		Pair:        snap.Pair,
		Direction:   dir,
		EntryPrice:  snap.CurrentPrice,
		Confidence:  confidence,
		Factors:     agreeing,
		RawStrength: totalStrength,
	}, true
}
