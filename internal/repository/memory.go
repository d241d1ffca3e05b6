package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/krobus00/bot-service/internal/entity"
)

// MemoryOrderStore keeps order results in process. Used when no database
// is configured and in tests.
type MemoryOrderStore struct {
	mu      sync.RWMutex
	results map[string]entity.OrderResult
}

func NewMemoryOrderStore() *MemoryOrderStore {
	return &MemoryOrderStore{results: make(map[string]entity.OrderResult)}
}

func (s *MemoryOrderStore) Save(_ context.Context, result entity.OrderResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	if existing, ok := s.results[result.UniqID]; ok {
		result.CreatedAt = existing.CreatedAt
	} else if result.CreatedAt.IsZero() {
		result.CreatedAt = now
	}
	result.UpdatedAt = now

	s.results[result.UniqID] = result
	return nil
}

func (s *MemoryOrderStore) Query(_ context.Context, uniqID string) (*entity.OrderResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result, ok := s.results[uniqID]
	if !ok {
		return nil, entity.ErrOrderResultNotFound
	}

	return &result, nil
}

type MemoryBotStore struct {
	mu      sync.RWMutex
	records map[string]entity.BotRecord
}

func NewMemoryBotStore() *MemoryBotStore {
	return &MemoryBotStore{records: make(map[string]entity.BotRecord)}
}

func (s *MemoryBotStore) UpsertStatus(_ context.Context, botID, strategyName string, status entity.BotStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[botID] = entity.BotRecord{
		BotID:        botID,
		StrategyName: strategyName,
		Status:       status,
		UpdatedAt:    time.Now().UTC(),
	}
	return nil
}

func (s *MemoryBotStore) List(_ context.Context) ([]entity.BotRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]entity.BotRecord, 0, len(s.records))
	for _, record := range s.records {
		records = append(records, record)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].BotID < records[j].BotID })

	return records, nil
}
