package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"edge-engine/internal/orchestrator"
	"edge-engine/internal/prediction"
)

// DecisionStore archives resolved decisions and their eventual outcomes.
type DecisionStore interface {
	SaveDecision(ctx context.Context, decision *orchestrator.SystemDecision) error
	SaveOutcome(ctx context.Context, outcome prediction.Outcome) error
	RecentDecisions(ctx context.Context, pair string, limit int) ([]orchestrator.SystemDecision, error)
	HealthCheck(ctx context.Context) error
}

// PGConfig holds the PostgreSQL connection settings.
type PGConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	SSLMode  string `json:"ssl_mode"`
}

// PostgresDecisionStore archives decisions via a pgx pool. The full
// decision payload is stored as JSONB alongside indexed summary columns.
type PostgresDecisionStore struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// NewPostgresDecisionStore connects, pings and migrates the schema.
func NewPostgresDecisionStore(ctx context.Context, cfg PGConfig, logger zerolog.Logger) (*PostgresDecisionStore, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}
	poolConfig.MaxConns = 10
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.HealthCheckPeriod = time.Minute

	connCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	pool, err := pgxpool.NewWithConfig(connCtx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(connCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &PostgresDecisionStore{
		pool:   pool,
		logger: logger.With().Str("component", "decision_store").Logger(),
	}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	s.logger.Info().Str("database", cfg.Database).Msg("decision archive ready")
	return s, nil
}

func (s *PostgresDecisionStore) migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS decisions (
			id UUID PRIMARY KEY,
			pair VARCHAR(20) NOT NULL,
			action VARCHAR(10) NOT NULL,
			regime VARCHAR(30) NOT NULL,
			confidence DOUBLE PRECISION NOT NULL,
			risk_adjusted_edge DOUBLE PRECISION NOT NULL,
			signal_id VARCHAR(64),
			payload JSONB NOT NULL,
			decided_at TIMESTAMPTZ NOT NULL,
			created_at TIMESTAMPTZ DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_decisions_pair ON decisions(pair)`,
		`CREATE INDEX IF NOT EXISTS idx_decisions_decided_at ON decisions(decided_at)`,
		`CREATE INDEX IF NOT EXISTS idx_decisions_signal_id ON decisions(signal_id)`,

		`CREATE TABLE IF NOT EXISTS outcomes (
			signal_id VARCHAR(64) PRIMARY KEY,
			hit_tp BOOLEAN NOT NULL,
			realized_return DOUBLE PRECISION NOT NULL,
			closed_at TIMESTAMPTZ NOT NULL,
			created_at TIMESTAMPTZ DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_outcomes_closed_at ON outcomes(closed_at)`,
	}
	for _, m := range migrations {
		if _, err := s.pool.Exec(ctx, m); err != nil {
			return fmt.Errorf("run migration: %w", err)
		}
	}
	return nil
}

// SaveDecision archives one resolved decision.
func (s *PostgresDecisionStore) SaveDecision(ctx context.Context, decision *orchestrator.SystemDecision) error {
	if decision == nil {
		return fmt.Errorf("save decision: nil decision")
	}
	payload, err := json.Marshal(decision)
	if err != nil {
		return fmt.Errorf("marshal decision %s: %w", decision.ID, err)
	}
	var signalID *string
	if decision.Signal != nil {
		signalID = &decision.Signal.Candidate.ID
	}
	query := `
		INSERT INTO decisions (id, pair, action, regime, confidence, risk_adjusted_edge, signal_id, payload, decided_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING
	`
	_, err = s.pool.Exec(ctx, query,
		decision.ID, decision.Pair, string(decision.Action), string(decision.Regime.Type),
		decision.Confidence, decision.RiskAdjustedEdge, signalID, payload, decision.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert decision %s: %w", decision.ID, err)
	}
	return nil
}

// SaveOutcome archives a realized outcome, upserting on replays.
func (s *PostgresDecisionStore) SaveOutcome(ctx context.Context, outcome prediction.Outcome) error {
	query := `
		INSERT INTO outcomes (signal_id, hit_tp, realized_return, closed_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (signal_id) DO UPDATE
		SET hit_tp = EXCLUDED.hit_tp, realized_return = EXCLUDED.realized_return, closed_at = EXCLUDED.closed_at
	`
	if _, err := s.pool.Exec(ctx, query, outcome.SignalID, outcome.HitTP, outcome.Return, outcome.ClosedAt); err != nil {
		return fmt.Errorf("insert outcome %s: %w", outcome.SignalID, err)
	}
	return nil
}

// RecentDecisions returns the newest archived decisions for a pair.
func (s *PostgresDecisionStore) RecentDecisions(ctx context.Context, pair string, limit int) ([]orchestrator.SystemDecision, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT payload FROM decisions
		WHERE pair = $1
		ORDER BY decided_at DESC
		LIMIT $2
	`
	rows, err := s.pool.Query(ctx, query, pair, limit)
	if err != nil {
		return nil, fmt.Errorf("query decisions for %s: %w", pair, err)
	}
	defer rows.Close()

	var out []orchestrator.SystemDecision
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan decision row: %w", err)
		}
		var d orchestrator.SystemDecision
		if err := json.Unmarshal(payload, &d); err != nil {
			return nil, fmt.Errorf("unmarshal decision payload: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// HealthCheck pings the pool.
func (s *PostgresDecisionStore) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the pool.
func (s *PostgresDecisionStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// NopDecisionStore discards everything. Used when no archive is configured.
type NopDecisionStore struct{}

func (NopDecisionStore) SaveDecision(context.Context, *orchestrator.SystemDecision) error {
	return nil
}
func (NopDecisionStore) SaveOutcome(context.Context, prediction.Outcome) error { return nil }
func (NopDecisionStore) RecentDecisions(context.Context, string, int) ([]orchestrator.SystemDecision, error) {
	return nil, nil
}
func (NopDecisionStore) HealthCheck(context.Context) error { return nil }
