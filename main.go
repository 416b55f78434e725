package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"edge-engine/config"
	"edge-engine/internal/adaptive"
	"edge-engine/internal/api"
	"edge-engine/internal/barriers"
	"edge-engine/internal/events"
	"edge-engine/internal/logging"
	"edge-engine/internal/microstructure"
	"edge-engine/internal/orchestrator"
	"edge-engine/internal/prediction"
	"edge-engine/internal/regime"
	"edge-engine/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger := logging.New(&logging.Config{
		Level:      cfg.Logging.Level,
		Output:     cfg.Logging.Output,
		JSONFormat: cfg.Logging.JSONFormat,
	})
	logger.Info("starting edge engine",
		"log_level", cfg.Logging.Level,
		"port", cfg.Server.Port)

	zlog := zerolog.New(os.Stdout).With().Timestamp().Logger()

	// Stores are optional collaborators; the engine runs in-memory
	// without them.
	var states store.StateStore = store.NewMemoryStateStore()
	if cfg.Redis.Enabled {
		states = store.NewRedisStateStore(cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB, zlog)
	}

	var decisions store.DecisionStore = store.NopDecisionStore{}
	if cfg.Postgres.Database != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		pg, err := store.NewPostgresDecisionStore(ctx, cfg.Postgres, zlog)
		cancel()
		if err != nil {
			logger.Warn("decision archive unavailable, running without it", "error", err)
		} else {
			decisions = pg
			defer pg.Close()
		}
	}

	bus := events.NewBus()
	history := prediction.NewSignalHistory()
	engine := adaptive.NewEngine(cfg.Edge, logger)

	orch := orchestrator.New(
		regime.NewDetector(),
		microstructure.NewAnalyzer(cfg.Execution, logger),
		prediction.NewBaseModel(logger),
		prediction.NewMetaModel(cfg.Meta, history, prediction.SeededSamplerFactory, logger),
		barriers.NewCalculator(),
		engine,
		history,
		bus,
		logger,
	)

	restoreEngineState(states, engine, logger)
	startSnapshotLoop(bus, states, engine, cfg.SnapshotEvery, logger)

	server := api.NewServer(cfg.Server, orch, engine, decisions, states, bus, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-errCh:
		if err != nil {
			logger.Error("server failed", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", "error", err)
	}
	saveEngineState(shutdownCtx, states, engine, logger)
	logger.Info("shutdown complete")
}

// restoreEngineState rehydrates thresholds and learning weights from the
// last snapshot, if any.
func restoreEngineState(states store.StateStore, engine *adaptive.Engine, logger *logging.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	saved, err := states.LoadState(ctx, "global")
	if err != nil {
		logger.Warn("engine state load failed", "error", err)
		return
	}
	if saved == nil {
		return
	}
	engine.RestoreThresholds(saved.Thresholds)
	engine.RestoreLearning(saved.Learning)
	logger.Info("engine state restored", "saved_at", saved.SavedAt.Format(time.RFC3339))
}

// startSnapshotLoop saves engine state every N decisions.
func startSnapshotLoop(bus *events.Bus, states store.StateStore, engine *adaptive.Engine, every int, logger *logging.Logger) {
	ch := make(chan struct{}, 64)
	bus.Subscribe(events.EventDecisionMade, func(events.Event) {
		select {
		case ch <- struct{}{}:
		default:
		}
	})
	go func() {
		count := 0
		for range ch {
			count++
			if count%every != 0 {
				continue
			}
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			saveEngineState(ctx, states, engine, logger)
			cancel()
		}
	}()
}

func saveEngineState(ctx context.Context, states store.StateStore, engine *adaptive.Engine, logger *logging.Logger) {
	state := &store.EngineState{
		Pair:       "global",
		Thresholds: engine.Thresholds(),
		Learning:   engine.LearningStates(),
	}
	if err := states.SaveState(ctx, state); err != nil {
		logger.Warn("engine state save failed", "error", err)
	}
}
