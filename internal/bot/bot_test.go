package bot

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/krobus00/bot-service/internal/entity"
	"github.com/krobus00/bot-service/internal/hub"
	"github.com/krobus00/bot-service/internal/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type tradeSub struct {
	inst string
}

func (s tradeSub) Exchange() entity.ExchangeName { return entity.ExchangeOKX }
func (s tradeSub) Channel() string               { return "trades" }
func (s tradeSub) InstrumentID() string          { return s.inst }

type tradeResp struct {
	inst string
}

func (r tradeResp) Exchange() entity.ExchangeName { return entity.ExchangeOKX }

func (r tradeResp) ResponseFor(sub entity.Subscription) bool {
	s, ok := sub.(tradeSub)
	return ok && s.inst == r.inst
}

type fakeStrategy struct {
	botID    string
	ticks    atomic.Int32
	received atomic.Int32
	reg      *registry.Registry
}

func newFakeStrategy(t *testing.T, botID string, interval time.Duration, panicOnTick bool) *fakeStrategy {
	t.Helper()

	s := &fakeStrategy{botID: botID}
	reg, err := registry.NewBuilder().
		Subscribe(tradeSub{inst: "BTC-USDT"}, "on_trade", func(ctx context.Context, resp entity.ResponseOfSub) error {
			s.received.Add(1)
			return nil
		}).
		Every(interval, "on_tick", func(ctx context.Context) error {
			s.ticks.Add(1)
			if panicOnTick {
				panic("tick exploded")
			}
			return nil
		}).
		Build()
	require.NoError(t, err)

	s.reg = reg
	return s
}

func (s *fakeStrategy) Name() string                 { return "fake" }
func (s *fakeStrategy) BotID() string                { return s.botID }
func (s *fakeStrategy) Registry() *registry.Registry { return s.reg }

func TestBot_SpawnRunsTimersAndSubscriptions(t *testing.T) {
	h := hub.New(16)
	strategy := newFakeStrategy(t, "bot-1", 10*time.Millisecond, false)
	b := New(strategy, h)
	assert.Equal(t, entity.BotStatusCreated, b.Status())

	group, err := b.Spawn(context.Background())
	require.NoError(t, err)
	assert.Equal(t, entity.BotStatusRunning, b.Status())

	assert.Eventually(t, func() bool { return strategy.ticks.Load() >= 1 }, time.Second, time.Millisecond)
	assert.Eventually(t, func() bool { return strategy.ticks.Load() >= 3 }, time.Second, 5*time.Millisecond)

	assert.Equal(t, 1, h.Publish(tradeResp{inst: "BTC-USDT"}))
	assert.Eventually(t, func() bool { return strategy.received.Load() == 1 }, time.Second, 5*time.Millisecond)

	group.Cancel()
	select {
	case <-group.Done():
	case <-time.After(time.Second):
		t.Fatal("task group did not finish")
	}

	assert.Equal(t, entity.BotStatusStopped, b.Status())
	assert.Equal(t, 0, h.Size())
	assert.Equal(t, 0, group.Running())
}

func TestBot_TaskPanicDoesNotStopSiblings(t *testing.T) {
	h := hub.New(16)
	strategy := newFakeStrategy(t, "bot-1", time.Hour, true)
	b := New(strategy, h)

	group, err := b.Spawn(context.Background())
	require.NoError(t, err)
	defer group.Cancel()

	assert.Eventually(t, func() bool { return group.Running() == 1 }, time.Second, 5*time.Millisecond)
	assert.False(t, group.Finished())

	h.Publish(tradeResp{inst: "BTC-USDT"})
	assert.Eventually(t, func() bool { return strategy.received.Load() == 1 }, time.Second, 5*time.Millisecond)
}

func TestBot_SpawnReturnsLiveGroup(t *testing.T) {
	b := New(newFakeStrategy(t, "bot-1", time.Hour, false), hub.New(16))

	first, err := b.Spawn(context.Background())
	require.NoError(t, err)
	defer first.Cancel()

	second, err := b.Spawn(context.Background())
	require.NoError(t, err)
	assert.Same(t, first, second)
}

func TestBot_RestartAfterStop(t *testing.T) {
	h := hub.New(16)
	strategy := newFakeStrategy(t, "bot-1", time.Hour, false)
	b := New(strategy, h)

	first, err := b.Spawn(context.Background())
	require.NoError(t, err)
	first.Cancel()

	second, err := b.Spawn(context.Background())
	require.NoError(t, err)
	defer second.Cancel()

	assert.NotSame(t, first, second)
	assert.True(t, first.Finished())
	assert.Equal(t, entity.BotStatusRunning, b.Status())
	assert.Equal(t, 1, h.Size())

	h.Publish(tradeResp{inst: "BTC-USDT"})
	assert.Eventually(t, func() bool { return strategy.received.Load() == 1 }, time.Second, 5*time.Millisecond)
}

func TestRegistry(t *testing.T) {
	h := hub.New(16)
	a := New(newFakeStrategy(t, "a", time.Hour, false), h)
	b := New(newFakeStrategy(t, "b", time.Hour, false), h)

	reg, err := NewRegistry(a, b)
	require.NoError(t, err)
	assert.Equal(t, 2, reg.Len())
	assert.True(t, reg.Exists("a"))
	assert.False(t, reg.Exists("c"))

	all := reg.All()
	require.Len(t, all, 2)
	assert.Equal(t, "a", all[0].ID())

	_, err = NewRegistry(a, New(newFakeStrategy(t, "a", time.Hour, false), h))
	assert.ErrorIs(t, err, ErrDuplicateBotID)
}

type recordingStore struct {
	mu      sync.Mutex
	records map[string][]entity.BotStatus
}

func newRecordingStore() *recordingStore {
	return &recordingStore{records: make(map[string][]entity.BotStatus)}
}

func (s *recordingStore) UpsertStatus(_ context.Context, botID, _ string, status entity.BotStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[botID] = append(s.records[botID], status)
	return nil
}

func (s *recordingStore) List(_ context.Context) ([]entity.BotRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := make([]entity.BotRecord, 0, len(s.records))
	for botID, history := range s.records {
		records = append(records, entity.BotRecord{BotID: botID, Status: history[len(history)-1]})
	}
	return records, nil
}

func (s *recordingStore) history(botID string) []entity.BotStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]entity.BotStatus, len(s.records[botID]))
	copy(out, s.records[botID])
	return out
}

func (s *recordingStore) last(botID string) (entity.BotStatus, bool) {
	history := s.history(botID)
	if len(history) == 0 {
		return 0, false
	}

	return history[len(history)-1], true
}
