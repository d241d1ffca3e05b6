package hub

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/krobus00/bot-service/internal/entity"
	"github.com/krobus00/bot-service/internal/registry"
	"github.com/sirupsen/logrus"
)

const defaultQueueSize = 1024

var ErrQueueClosed = errors.New("subscription queue closed")

// Scoped gives one owner a private queue for a subscription that other
// owners may also hold. Matching always uses the inner subscription.
type Scoped struct {
	Owner string
	entity.Subscription
}

func Scope(owner string, sub entity.Subscription) entity.Subscription {
	return Scoped{Owner: owner, Subscription: sub}
}

func Unwrap(sub entity.Subscription) entity.Subscription {
	for {
		scoped, ok := sub.(Scoped)
		if !ok {
			return sub
		}
		sub = scoped.Subscription
	}
}

type Queue struct {
	sub     entity.Subscription
	ch      chan entity.ResponseOfSub
	dropped atomic.Uint64
}

func (q *Queue) C() <-chan entity.ResponseOfSub {
	return q.ch
}

func (q *Queue) Receive(ctx context.Context) (entity.ResponseOfSub, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case resp, ok := <-q.ch:
		if !ok {
			return nil, ErrQueueClosed
		}
		return resp, nil
	}
}

func (q *Queue) Len() int {
	return len(q.ch)
}

func (q *Queue) Dropped() uint64 {
	return q.dropped.Load()
}

// Hub fans parsed responses out to the queues whose subscription they
// satisfy. Delivery never blocks: a full queue drops the newest item.
type Hub struct {
	mu            sync.RWMutex
	queueSize     int
	subscriptions map[entity.Subscription]*Queue
}

func New(queueSize int) *Hub {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}

	return &Hub{
		queueSize:     queueSize,
		subscriptions: make(map[entity.Subscription]*Queue),
	}
}

// Subscribe returns the queue bound to sub, creating it on first use.
func (h *Hub) Subscribe(sub entity.Subscription) *Queue {
	h.mu.Lock()
	defer h.mu.Unlock()

	if queue, ok := h.subscriptions[sub]; ok {
		return queue
	}

	queue := &Queue{sub: sub, ch: make(chan entity.ResponseOfSub, h.queueSize)}
	h.subscriptions[sub] = queue

	logrus.WithField("subscription", registry.Describe(sub)).Debug("hub queue created")
	return queue
}

// Unsubscribe removes the queue and closes it so its consumer can exit.
func (h *Hub) Unsubscribe(sub entity.Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	queue, ok := h.subscriptions[sub]
	if !ok {
		return
	}

	delete(h.subscriptions, sub)
	close(queue.ch)
}

// Publish delivers resp to every matching queue and returns the number of
// queues that accepted it.
func (h *Hub) Publish(resp entity.ResponseOfSub) int {
	if resp == nil {
		return 0
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for sub, queue := range h.subscriptions {
		if !resp.ResponseFor(Unwrap(sub)) {
			continue
		}

		select {
		case queue.ch <- resp:
			delivered++
		default:
			dropped := queue.dropped.Add(1)
			logrus.WithFields(logrus.Fields{
				"subscription": registry.Describe(sub),
				"dropped":      dropped,
			}).Warn("hub queue full, response dropped")
		}
	}

	return delivered
}

func (h *Hub) Size() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.subscriptions)
}
