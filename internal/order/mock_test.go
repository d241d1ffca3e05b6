package order

import (
	"context"
	"sync"

	"github.com/krobus00/bot-service/internal/entity"
	"github.com/stretchr/testify/mock"
)

type GatewayMock struct {
	mock.Mock
}

func (m *GatewayMock) Submit(ctx context.Context, params entity.OrderParams) (*entity.GatewayResponse, error) {
	args := m.Called(ctx, params)
	resp, _ := args.Get(0).(*entity.GatewayResponse)
	return resp, args.Error(1)
}

func (m *GatewayMock) Confirm(ctx context.Context, instrumentID, clientOrderID string) (*entity.GatewayResponse, error) {
	args := m.Called(ctx, instrumentID, clientOrderID)
	resp, _ := args.Get(0).(*entity.GatewayResponse)
	return resp, args.Error(1)
}

type memoryStore struct {
	mu      sync.Mutex
	results map[string]entity.OrderResult
	saves   int
	failFor int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{results: make(map[string]entity.OrderResult)}
}

func (s *memoryStore) Save(_ context.Context, result entity.OrderResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.saves++
	if s.failFor > 0 {
		s.failFor--
		return context.DeadlineExceeded
	}
	s.results[result.UniqID] = result
	return nil
}

func (s *memoryStore) Query(_ context.Context, uniqID string) (*entity.OrderResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, ok := s.results[uniqID]
	if !ok {
		return nil, entity.ErrOrderResultNotFound
	}
	return &result, nil
}

func (s *memoryStore) get(uniqID string) (entity.OrderResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, ok := s.results[uniqID]
	return result, ok
}

func (s *memoryStore) saveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.saves
}
