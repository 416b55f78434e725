package adaptive

import (
	"testing"
	"time"

	"edge-engine/internal/regime"
)

// TestThresholdStaysBounded drives the gradient update with extreme inputs
// and verifies the threshold never escapes its bounds.
func TestThresholdStaysBounded(t *testing.T) {
	now := time.Now()

	cases := []struct {
		name string
		ret  float64
		win  bool
	}{
		{"all large wins", 5.0, true},
		{"all large losses", -5.0, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			th := newThreshold(regime.TrendingBullish, now)
			clock := now
			for i := 0; i < 500; i++ {
				th.recordTrade(tc.ret, tc.win)
				clock = clock.Add(7 * time.Hour)
				th.maybeUpdate(clock)

				if th.Threshold < MinThreshold || th.Threshold > MaxThreshold {
					t.Fatalf("threshold %.6f escaped [%.3f, %.3f] after %d trades",
						th.Threshold, MinThreshold, MaxThreshold, i+1)
				}
			}
		})
	}
}

// TestThresholdUpdateRequiresMinTrades verifies no gradient step before 10
// recorded trades.
func TestThresholdUpdateRequiresMinTrades(t *testing.T) {
	now := time.Now()
	th := newThreshold(regime.RangingTight, now)
	seed := th.Threshold

	for i := 0; i < 9; i++ {
		th.recordTrade(-1.0, false)
	}
	if th.maybeUpdate(now.Add(24 * time.Hour)) {
		t.Error("threshold updated with fewer than 10 trades")
	}
	if th.Threshold != seed {
		t.Errorf("threshold moved from %.4f to %.4f without enough trades", seed, th.Threshold)
	}
}

// TestThresholdUpdateThrottle verifies the 6 hour throttle between updates.
func TestThresholdUpdateThrottle(t *testing.T) {
	now := time.Now()
	th := newThreshold(regime.ShockUp, now)
	for i := 0; i < 20; i++ {
		th.recordTrade(-1.0, false)
	}

	if th.maybeUpdate(now.Add(3 * time.Hour)) {
		t.Error("threshold updated before the 6 hour throttle elapsed")
	}
	if !th.maybeUpdate(now.Add(7 * time.Hour)) {
		t.Error("threshold should update once trades and throttle are satisfied")
	}
	if th.maybeUpdate(now.Add(8 * time.Hour)) {
		t.Error("second update within 6 hours of the first should be throttled")
	}
}

// TestRelaxFloor verifies repeated pattern relaxation never pushes the
// threshold below its floor.
func TestRelaxFloor(t *testing.T) {
	th := newThreshold(regime.LiquidityCrisis, time.Now())
	for i := 0; i < 200; i++ {
		th.relax()
	}
	if th.Threshold < MinThreshold {
		t.Errorf("relaxed threshold %.6f fell below floor %.3f", th.Threshold, MinThreshold)
	}
}

// TestLosingRegimeRaisesThreshold checks the gradient direction: a regime
// losing consistently should demand more edge, not less.
func TestLosingRegimeRaisesThreshold(t *testing.T) {
	now := time.Now()
	th := newThreshold(regime.TrendingBullish, now)
	seed := th.Threshold

	for i := 0; i < 30; i++ {
		th.recordTrade(-1.0, false)
	}
	th.maybeUpdate(now.Add(7 * time.Hour))

	if th.Threshold <= seed {
		t.Errorf("threshold %.4f did not rise from %.4f after consistent losses", th.Threshold, seed)
	}
}

// TestFeatureWeightsBounded drives recalibration hard in both directions and
// verifies the weights stay within [0.1, 2.0].
func TestFeatureWeightsBounded(t *testing.T) {
	now := time.Now()

	for _, winning := range []bool{true, false} {
		state := newLearningState(regime.Breakout, now)
		ret := 1.5
		if !winning {
			ret = -1.5
		}
		clock := now
		for i := 0; i < 2000; i++ {
			state.recordTrade(ret, winning)
			clock = clock.Add(time.Hour)
			state.maybeRecalibrate(clock)
		}
		for category, w := range state.FeatureWeights {
			if w < minFeatureWeight || w > maxFeatureWeight {
				t.Errorf("weight %s=%.4f escaped [%.1f, %.1f] (winning=%v)",
					category, w, minFeatureWeight, maxFeatureWeight, winning)
			}
		}
	}
}

// TestRecalibrationCadence verifies weights only move every 20 trades.
func TestRecalibrationCadence(t *testing.T) {
	now := time.Now()
	state := newLearningState(regime.Neutral, now)

	for i := 0; i < 19; i++ {
		state.recordTrade(1.0, true)
		if state.maybeRecalibrate(now.Add(time.Minute)) {
			t.Fatalf("recalibrated after only %d trades", i+1)
		}
	}
	state.recordTrade(1.0, true)
	if !state.maybeRecalibrate(now.Add(time.Minute)) {
		t.Error("expected recalibration at the 20th trade")
	}
	if state.Performance.Calibrations != 1 {
		t.Errorf("calibrations = %d, want 1", state.Performance.Calibrations)
	}
}
