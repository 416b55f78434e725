package orchestrator

import (
	"math"
	"time"

	"edge-engine/internal/regime"
)

// computeKPIsLocked recomputes the rolling KPI set from the decision history
// and recorded outcomes. Caller holds o.mu.
func (o *Orchestrator) computeKPIsLocked() SystemKPIs {
	kpis := SystemKPIs{
		TotalDecisions:  len(o.decisions),
		HitRateByRegime: make(map[regime.Type]float64),
		GeneratedAt:     time.Now().UTC(),
	}
	if len(o.decisions) == 0 {
		return kpis
	}

	accepted := 0
	for _, d := range o.decisions {
		if d.Action == ActionAccept {
			accepted++
		}
	}
	kpis.AcceptRate = float64(accepted) / float64(len(o.decisions))

	kpis.EdgeDecay = o.edgeDecayLocked()
	kpis.SignalHalfLife = o.signalHalfLifeLocked()

	if o.costSamples > 0 {
		kpis.CostAbsorptionRatio = o.sumCostRatio / float64(o.costSamples)
	}

	kpis.HitRateByRegime = o.hitRatesLocked()
	kpis.RegimePerformanceDelta = regimeDelta(kpis.HitRateByRegime)
	kpis.RejectionSuccessRate = o.rejectionSuccessLocked()
	return kpis
}

// edgeDecayLocked compares the mean risk-adjusted edge of the older half of
// accepted decisions against the newer half. Positive values mean the edge
// is eroding.
func (o *Orchestrator) edgeDecayLocked() float64 {
	var edges []float64
	for _, d := range o.decisions {
		if d.Action == ActionAccept {
			edges = append(edges, d.RiskAdjustedEdge)
		}
	}
	if len(edges) < 4 {
		return 0
	}
	mid := len(edges) / 2
	early := mean(edges[:mid])
	late := mean(edges[mid:])
	if math.Abs(early) < 1e-12 {
		return 0
	}
	return (early - late) / math.Abs(early)
}

// signalHalfLifeLocked estimates how long a winning signal stays effective:
// the median holding time of resolved winners.
func (o *Orchestrator) signalHalfLifeLocked() time.Duration {
	var holds []time.Duration
	for _, rec := range o.outcomes {
		if rec.hitTP && rec.holding > 0 {
			holds = append(holds, rec.holding)
		}
	}
	if len(holds) == 0 {
		return 0
	}
	// insertion sort, the outcome map is small
	for i := 1; i < len(holds); i++ {
		for j := i; j > 0 && holds[j] < holds[j-1]; j-- {
			holds[j], holds[j-1] = holds[j-1], holds[j]
		}
	}
	return holds[len(holds)/2]
}

func (o *Orchestrator) hitRatesLocked() map[regime.Type]float64 {
	wins := make(map[regime.Type]int)
	totals := make(map[regime.Type]int)
	for _, rec := range o.outcomes {
		totals[rec.regime]++
		if rec.hitTP {
			wins[rec.regime]++
		}
	}
	rates := make(map[regime.Type]float64, len(totals))
	for rt, n := range totals {
		rates[rt] = float64(wins[rt]) / float64(n)
	}
	return rates
}

// rejectionSuccessLocked is the share of rejected signals whose recorded
// outcome confirms the rejection (the trade would have lost).
func (o *Orchestrator) rejectionSuccessLocked() float64 {
	confirmed, resolved := 0, 0
	for id, rec := range o.outcomes {
		if !o.rejectedByID[id] {
			continue
		}
		resolved++
		if !rec.hitTP {
			confirmed++
		}
	}
	if resolved == 0 {
		return 0
	}
	return float64(confirmed) / float64(resolved)
}

// regimeDelta is the spread between the best- and worst-performing regimes
// with resolved outcomes.
func regimeDelta(rates map[regime.Type]float64) float64 {
	if len(rates) < 2 {
		return 0
	}
	best, worst := math.Inf(-1), math.Inf(1)
	for _, r := range rates {
		if r > best {
			best = r
		}
		if r < worst {
			worst = r
		}
	}
	return best - worst
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}
