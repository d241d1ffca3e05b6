package grid

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

type State struct {
	AnchorPrice  decimal.Decimal `json:"anchor_price"`
	LastLevel    int             `json:"last_level"`
	Positions    []Position      `json:"positions"`
	PendingBuys  []Position      `json:"pending_buys,omitempty"`
	PendingSells []Position      `json:"pending_sells,omitempty"`
}

type Position struct {
	Level  int             `json:"level"`
	Size   decimal.Decimal `json:"size"`
	UniqID string          `json:"uniq_id,omitempty"`
}

type StateStore interface {
	Load(ctx context.Context, key string) (State, bool, error)
	Save(ctx context.Context, key string, state State) error
}

type RedisStateStore struct {
	client redis.UniversalClient
}

func NewRedisStateStore(client redis.UniversalClient) *RedisStateStore {
	return &RedisStateStore{client: client}
}

func (s *RedisStateStore) Load(ctx context.Context, key string) (State, bool, error) {
	raw, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return State{}, false, nil
		}
		return State{}, false, err
	}

	var state State
	if err := json.Unmarshal(raw, &state); err != nil {
		return State{}, false, fmt.Errorf("decode grid state %s: %w", key, err)
	}

	return state, true, nil
}

func (s *RedisStateStore) Save(ctx context.Context, key string, state State) error {
	payload, err := json.Marshal(state)
	if err != nil {
		return err
	}

	return s.client.Set(ctx, key, payload, 0).Err()
}

// MemoryStateStore keeps state for the life of the process.
type MemoryStateStore struct {
	mu     sync.Mutex
	states map[string][]byte
}

func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{states: make(map[string][]byte)}
}

func (s *MemoryStateStore) Load(_ context.Context, key string) (State, bool, error) {
	s.mu.Lock()
	raw, ok := s.states[key]
	s.mu.Unlock()
	if !ok {
		return State{}, false, nil
	}

	var state State
	if err := json.Unmarshal(raw, &state); err != nil {
		return State{}, false, err
	}

	return state, true, nil
}

func (s *MemoryStateStore) Save(_ context.Context, key string, state State) error {
	payload, err := json.Marshal(state)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.states[key] = payload
	return nil
}
