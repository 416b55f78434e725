// Package store persists the long-lived engine state: threshold and
// learning snapshots in Redis (with an in-memory fallback when Redis is
// unreachable) and the decision archive in PostgreSQL. Both stores are
// optional collaborators; the engine runs fully in-memory without them.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"edge-engine/internal/adaptive"
	"edge-engine/internal/regime"
)

const (
	// stateKeyPrefix namespaces engine-state keys.
	// Format: edge:state:{pair}
	stateKeyPrefix = "edge:state"

	// stateTTL keeps snapshots around well past any restart window.
	stateTTL = 7 * 24 * time.Hour
)

// EngineState is the serializable snapshot of the adaptive engine. The
// unexported gradient internals are rebuilt from scratch after a restore;
// only the bounded public surface round-trips.
type EngineState struct {
	Pair       string                                       `json:"pair"`
	Thresholds map[regime.Type]adaptive.AdaptiveThreshold   `json:"thresholds"`
	Learning   map[regime.Type]adaptive.OnlineLearningState `json:"learning"`
	SavedAt    time.Time                                    `json:"saved_at"`
}

// StateStore persists and recovers engine state across restarts.
type StateStore interface {
	SaveState(ctx context.Context, state *EngineState) error
	LoadState(ctx context.Context, pair string) (*EngineState, error)
	Healthy(ctx context.Context) bool
}

// RedisStateStore stores engine state in Redis, falling back to an
// in-memory map when Redis is unavailable so decision cycles never block
// on the store.
type RedisStateStore struct {
	client    *redis.Client
	logger    zerolog.Logger
	mu        sync.RWMutex
	fallback  map[string]*EngineState
	available atomic.Bool
}

// NewRedisStateStore connects to Redis. A failed ping is not fatal: the
// store starts in fallback mode and re-probes on each save.
func NewRedisStateStore(addr, password string, db int, logger zerolog.Logger) *RedisStateStore {
	s := &RedisStateStore{
		client: redis.NewClient(&redis.Options{
			Addr:         addr,
			Password:     password,
			DB:           db,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		}),
		logger:   logger.With().Str("component", "state_store").Logger(),
		fallback: make(map[string]*EngineState),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.client.Ping(ctx).Err(); err != nil {
		s.logger.Warn().Err(err).Str("addr", addr).Msg("redis unavailable, using in-memory fallback")
		s.available.Store(false)
	} else {
		s.logger.Info().Str("addr", addr).Msg("connected to redis")
		s.available.Store(true)
	}
	return s
}

func stateKey(pair string) string {
	return fmt.Sprintf("%s:%s", stateKeyPrefix, pair)
}

// SaveState writes the snapshot to Redis and always mirrors it to the
// in-memory fallback.
func (s *RedisStateStore) SaveState(ctx context.Context, state *EngineState) error {
	if state == nil {
		return fmt.Errorf("save state: nil state")
	}
	state.SavedAt = time.Now().UTC()

	s.mu.Lock()
	s.fallback[state.Pair] = state
	s.mu.Unlock()

	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal engine state for %s: %w", state.Pair, err)
	}
	if err := s.client.Set(ctx, stateKey(state.Pair), data, stateTTL).Err(); err != nil {
		if s.available.Swap(false) {
			s.logger.Warn().Err(err).Msg("redis write failed, snapshots degraded to memory only")
		}
		return nil
	}
	if !s.available.Swap(true) {
		s.logger.Info().Msg("redis recovered")
	}
	return nil
}

// LoadState reads the snapshot for a pair, preferring Redis and falling
// back to the in-memory copy. A missing snapshot returns (nil, nil).
func (s *RedisStateStore) LoadState(ctx context.Context, pair string) (*EngineState, error) {
	data, err := s.client.Get(ctx, stateKey(pair)).Bytes()
	if err == nil {
		var state EngineState
		if uerr := json.Unmarshal(data, &state); uerr != nil {
			return nil, fmt.Errorf("unmarshal engine state for %s: %w", pair, uerr)
		}
		s.available.Store(true)
		return &state, nil
	}
	if err != redis.Nil {
		s.available.Store(false)
	}

	s.mu.RLock()
	state := s.fallback[pair]
	s.mu.RUnlock()
	return state, nil
}

// Healthy reports whether Redis is reachable.
func (s *RedisStateStore) Healthy(ctx context.Context) bool {
	if err := s.client.Ping(ctx).Err(); err != nil {
		s.available.Store(false)
		return false
	}
	s.available.Store(true)
	return true
}

// Close releases the Redis connection.
func (s *RedisStateStore) Close() error {
	return s.client.Close()
}

// MemoryStateStore is a pure in-memory StateStore for tests and the replay
// tool.
type MemoryStateStore struct {
	mu     sync.RWMutex
	states map[string]*EngineState
}

func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{states: make(map[string]*EngineState)}
}

func (m *MemoryStateStore) SaveState(_ context.Context, state *EngineState) error {
	if state == nil {
		return fmt.Errorf("save state: nil state")
	}
	state.SavedAt = time.Now().UTC()
	m.mu.Lock()
	m.states[state.Pair] = state
	m.mu.Unlock()
	return nil
}

func (m *MemoryStateStore) LoadState(_ context.Context, pair string) (*EngineState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.states[pair], nil
}

func (m *MemoryStateStore) Healthy(context.Context) bool { return true }
