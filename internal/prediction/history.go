package prediction

import (
	"sync"

	"edge-engine/internal/regime"
)

// maxHistoryEntries caps the signal history; the oldest entry is evicted
// first.
const maxHistoryEntries = 1000

// signalRecord pairs an enhanced signal with its realized outcome, once
// known.
type signalRecord struct {
	signal  EnhancedSignal
	outcome *Outcome
}

// SignalHistory is the bounded record of enhanced signals the meta model
// draws its historical-performance adjustment from. Owned by the prediction
// system; the orchestrator feeds realized outcomes back through
// RecordOutcome.
type SignalHistory struct {
	mu      sync.RWMutex
	records []signalRecord
	byID    map[string]int
}

// NewSignalHistory creates an empty history.
func NewSignalHistory() *SignalHistory {
	return &SignalHistory{
		records: make([]signalRecord, 0, maxHistoryEntries),
		byID:    make(map[string]int),
	}
}

// Record appends an enhanced signal, evicting the oldest when full.
func (h *SignalHistory) Record(sig EnhancedSignal) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.records) >= maxHistoryEntries {
		delete(h.byID, h.records[0].signal.Candidate.ID)
		h.records = h.records[1:]
		for id, idx := range h.byID {
			h.byID[id] = idx - 1
		}
	}
	h.byID[sig.Candidate.ID] = len(h.records)
	h.records = append(h.records, signalRecord{signal: sig})
}

// RecordOutcome attaches a realized outcome to a previously recorded signal.
// Unknown IDs are ignored; the signal may have been evicted.
func (h *SignalHistory) RecordOutcome(out Outcome) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	idx, ok := h.byID[out.SignalID]
	if !ok {
		return false
	}
	o := out
	h.records[idx].outcome = &o
	return true
}

// Len returns the number of recorded signals.
func (h *SignalHistory) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.records)
}

// minComparableSignals is the floor of resolved prior signals before the
// historical adjustment contributes anything.
const minComparableSignals = 5

// HistoricalAdjustment returns a probability adjustment drawn from resolved
// prior signals in the same regime and direction. With fewer than
// minComparableSignals resolved comparables the adjustment is zero.
func (h *SignalHistory) HistoricalAdjustment(regimeType regime.Type, direction string) float64 {
	h.mu.RLock()
	defer h.mu.RUnlock()

	wins := 0
	total := 0
	for _, rec := range h.records {
		if rec.outcome == nil {
			continue
		}
		if rec.signal.Meta.Regime.Type != regimeType {
			continue
		}
		if string(rec.signal.Candidate.Direction) != direction {
			continue
		}
		total++
		if rec.outcome.HitTP {
			wins++
		}
	}

	if total < minComparableSignals {
		return 0
	}

	// Deviation from a coin flip, damped and capped at ±0.1.
	adj := (float64(wins)/float64(total) - 0.5) * 0.4
	if adj > 0.1 {
		adj = 0.1
	}
	if adj < -0.1 {
		adj = -0.1
	}
	return adj
}
