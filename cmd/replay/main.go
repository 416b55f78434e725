// Replay runs recorded market snapshots through the decision engine and
// prints each resulting decision. Useful for calibration work and for
// inspecting how threshold adaptation evolves over a session.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"edge-engine/internal/adaptive"
	"edge-engine/internal/barriers"
	"edge-engine/internal/events"
	"edge-engine/internal/logging"
	"edge-engine/internal/market"
	"edge-engine/internal/microstructure"
	"edge-engine/internal/orchestrator"
	"edge-engine/internal/prediction"
	"edge-engine/internal/regime"
)

func main() {
	var (
		file    = flag.String("file", "snapshots.json", "path to a JSON array of market snapshots")
		verbose = flag.Bool("v", false, "print full reasons for every decision")
	)
	flag.Parse()

	data, err := os.ReadFile(*file)
	if err != nil {
		fmt.Printf("❌ cannot read %s: %v\n", *file, err)
		os.Exit(1)
	}
	var snapshots []market.Snapshot
	if err := json.Unmarshal(data, &snapshots); err != nil {
		fmt.Printf("❌ cannot parse %s: %v\n", *file, err)
		os.Exit(1)
	}

	logger := logging.Discard()
	history := prediction.NewSignalHistory()
	engine := adaptive.NewEngine(adaptive.DefaultEdgeConfig(), logger)
	orch := orchestrator.New(
		regime.NewDetector(),
		microstructure.NewAnalyzer(microstructure.DefaultExecutionConfig(), logger),
		prediction.NewBaseModel(logger),
		prediction.NewMetaModel(prediction.DefaultMetaConfig(), history, prediction.SeededSamplerFactory, logger),
		barriers.NewCalculator(),
		engine,
		history,
		events.NewBus(),
		logger,
	)

	fmt.Printf("📼 REPLAYING %d SNAPSHOTS FROM %s\n\n", len(snapshots), *file)

	ctx := context.Background()
	counts := map[orchestrator.Action]int{}
	for i := range snapshots {
		snap := &snapshots[i]
		rec, err := orch.Evaluate(ctx, snap)
		if err != nil {
			fmt.Printf("%4d  %-12s ⚠️  %v\n", i, snap.Pair, err)
			continue
		}
		d := rec.Decision
		counts[d.Action]++

		marker := "⏸"
		switch d.Action {
		case orchestrator.ActionAccept:
			marker = "✅"
		case orchestrator.ActionReject:
			marker = "❌"
		}
		fmt.Printf("%4d  %-12s %s %-7s regime=%-18s conf=%.2f edge=%.4f\n",
			i, snap.Pair, marker, d.Action, d.Regime.Type, d.Confidence, d.RiskAdjustedEdge)
		if *verbose {
			for _, r := range d.ReasonStrings() {
				fmt.Printf("        • %s\n", r)
			}
		}
	}

	kpis := orch.KPIs()
	fmt.Println()
	fmt.Println("📊 SESSION SUMMARY")
	fmt.Printf("   decisions: %d  accept: %d  wait: %d  reject: %d\n",
		kpis.TotalDecisions, counts[orchestrator.ActionAccept],
		counts[orchestrator.ActionWait], counts[orchestrator.ActionReject])
	fmt.Printf("   accept rate: %.1f%%  edge decay: %.3f  cost absorption: %.2f\n",
		kpis.AcceptRate*100, kpis.EdgeDecay, kpis.CostAbsorptionRatio)
	for rt, thr := range engine.Thresholds() {
		fmt.Printf("   threshold %-18s %.4f (trades=%d)\n", rt, thr.Threshold, thr.Performance.Trades)
	}
}
