package hub

import (
	"context"
	"testing"
	"time"

	"github.com/krobus00/bot-service/internal/entity"
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
	seq  int
}

func (r tradeResp) Exchange() entity.ExchangeName { return entity.ExchangeOKX }

func (r tradeResp) ResponseFor(sub entity.Subscription) bool {
	s, ok := sub.(tradeSub)
	return ok && s.inst == r.inst
}

func TestHub_PublishFIFO(t *testing.T) {
	h := New(8)
	queue := h.Subscribe(tradeSub{inst: "BTC-USDT"})

	for i := 0; i < 3; i++ {
		assert.Equal(t, 1, h.Publish(tradeResp{inst: "BTC-USDT", seq: i}))
	}

	for i := 0; i < 3; i++ {
		resp, err := queue.Receive(context.Background())
		require.NoError(t, err)
		assert.Equal(t, i, resp.(tradeResp).seq)
	}
}

func TestHub_PublishNoMatch(t *testing.T) {
	h := New(8)
	queue := h.Subscribe(tradeSub{inst: "BTC-USDT"})

	assert.Equal(t, 0, h.Publish(tradeResp{inst: "ETH-USDT"}))
	assert.Equal(t, 0, queue.Len())
	assert.Equal(t, 0, New(1).Publish(tradeResp{inst: "BTC-USDT"}))
}

func TestHub_FullQueueDropsNewest(t *testing.T) {
	h := New(2)
	queue := h.Subscribe(tradeSub{inst: "BTC-USDT"})

	done := make(chan struct{})
	go func() {
		for i := 0; i < 5; i++ {
			h.Publish(tradeResp{inst: "BTC-USDT", seq: i})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full queue")
	}

	assert.Equal(t, 2, queue.Len())
	assert.Equal(t, uint64(3), queue.Dropped())

	first, _ := queue.Receive(context.Background())
	second, _ := queue.Receive(context.Background())
	assert.Equal(t, 0, first.(tradeResp).seq)
	assert.Equal(t, 1, second.(tradeResp).seq)
}

func TestHub_SubscribeIsIdempotent(t *testing.T) {
	h := New(8)
	first := h.Subscribe(tradeSub{inst: "BTC-USDT"})
	second := h.Subscribe(tradeSub{inst: "BTC-USDT"})

	assert.Same(t, first, second)
	assert.Equal(t, 1, h.Size())
}

func TestHub_ScopedQueuesAreIsolated(t *testing.T) {
	h := New(8)
	sub := tradeSub{inst: "BTC-USDT"}
	a := h.Subscribe(Scope("bot-a", sub))
	b := h.Subscribe(Scope("bot-b", sub))
	require.NotSame(t, a, b)

	assert.Equal(t, 2, h.Publish(tradeResp{inst: "BTC-USDT"}))
	assert.Equal(t, 1, a.Len())
	assert.Equal(t, 1, b.Len())

	h.Unsubscribe(Scope("bot-a", sub))
	assert.Equal(t, 1, h.Publish(tradeResp{inst: "BTC-USDT"}))
	assert.Equal(t, 2, b.Len())
}

func TestHub_UnsubscribeClosesQueue(t *testing.T) {
	h := New(8)
	sub := tradeSub{inst: "BTC-USDT"}
	queue := h.Subscribe(sub)

	h.Unsubscribe(sub)
	h.Unsubscribe(sub)

	_, err := queue.Receive(context.Background())
	assert.ErrorIs(t, err, ErrQueueClosed)
	assert.Equal(t, 0, h.Publish(tradeResp{inst: "BTC-USDT"}))
}

func TestUnwrap(t *testing.T) {
	sub := tradeSub{inst: "BTC-USDT"}
	assert.Equal(t, sub, Unwrap(Scope("outer", Scope("inner", sub))))
	assert.Equal(t, sub, Unwrap(sub))
	assert.Equal(t, "BTC-USDT", Scope("bot", sub).InstrumentID())
}
