package store

import (
	"context"
	"testing"

	"edge-engine/internal/adaptive"
	"edge-engine/internal/regime"
)

func TestMemoryStateStoreRoundtrip(t *testing.T) {
	s := NewMemoryStateStore()
	ctx := context.Background()

	state := &EngineState{
		Pair: "global",
		Thresholds: map[regime.Type]adaptive.AdaptiveThreshold{
			regime.TrendingBullish: {Regime: regime.TrendingBullish, Threshold: 0.017},
		},
		Learning: map[regime.Type]adaptive.OnlineLearningState{
			regime.TrendingBullish: {Regime: regime.TrendingBullish, TotalTrades: 12, WinRate: 0.58},
		},
	}

	if err := s.SaveState(ctx, state); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := s.LoadState(ctx, "global")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded == nil {
		t.Fatal("load returned nil for a saved pair")
	}
	if loaded.SavedAt.IsZero() {
		t.Error("SavedAt not stamped on save")
	}
	if th := loaded.Thresholds[regime.TrendingBullish]; th.Threshold != 0.017 {
		t.Errorf("threshold = %.4f, want 0.017", th.Threshold)
	}
	if ls := loaded.Learning[regime.TrendingBullish]; ls.TotalTrades != 12 {
		t.Errorf("total trades = %d, want 12", ls.TotalTrades)
	}
}

func TestMemoryStateStoreMissingPair(t *testing.T) {
	s := NewMemoryStateStore()

	loaded, err := s.LoadState(context.Background(), "missing")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded != nil {
		t.Errorf("loaded = %+v, want nil for unknown pair", loaded)
	}
	if !s.Healthy(context.Background()) {
		t.Error("memory store should always be healthy")
	}
}

func TestMemoryStateStoreNilState(t *testing.T) {
	s := NewMemoryStateStore()
	if err := s.SaveState(context.Background(), nil); err == nil {
		t.Error("saving nil state should error")
	}
}
