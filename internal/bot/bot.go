package bot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/krobus00/bot-service/internal/entity"
	"github.com/krobus00/bot-service/internal/hub"
	"github.com/krobus00/bot-service/internal/registry"
	"github.com/sirupsen/logrus"
)

const defaultDrainTimeout = 10 * time.Second

var ErrBotStopping = errors.New("bot is still stopping")

// Strategy is the user code a bot drives.
type Strategy interface {
	Name() string
	BotID() string
	Registry() *registry.Registry
}

type SubscriptionHub interface {
	Subscribe(sub entity.Subscription) *hub.Queue
	Unsubscribe(sub entity.Subscription)
}

type Bot struct {
	strategy     Strategy
	hub          SubscriptionHub
	drainTimeout time.Duration

	mu     sync.Mutex
	group  *TaskGroup
	status atomic.Int32
}

func New(strategy Strategy, h SubscriptionHub) *Bot {
	return &Bot{
		strategy:     strategy,
		hub:          h,
		drainTimeout: defaultDrainTimeout,
	}
}

func (b *Bot) ID() string {
	return b.strategy.BotID()
}

func (b *Bot) StrategyName() string {
	return b.strategy.Name()
}

func (b *Bot) Strategy() Strategy {
	return b.strategy
}

func (b *Bot) Status() entity.BotStatus {
	return entity.BotStatus(b.status.Load())
}

// Subscriptions lists the market-data streams the strategy consumes.
func (b *Bot) Subscriptions() []entity.Subscription {
	entries := b.strategy.Registry().Subscriptions()
	subs := make([]entity.Subscription, 0, len(entries))
	for _, entry := range entries {
		subs = append(subs, entry.Subscription)
	}

	return subs
}

// Spawn starts one consumer task per subscription and one task per timer.
// A live group is returned as is. A group that is still stopping is waited
// for, so the new run never shares hub queues with the old one.
func (b *Bot) Spawn(ctx context.Context) (*TaskGroup, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if prev := b.group; prev != nil && !prev.Finished() {
		if !prev.Cancelled() {
			return prev, nil
		}

		select {
		case <-prev.Done():
		case <-time.After(b.drainTimeout):
			return nil, fmt.Errorf("%w: %s", ErrBotStopping, b.ID())
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	group := newTaskGroup(ctx, b.ID())
	reg := b.strategy.Registry()
	scoped := make([]entity.Subscription, 0)

	for _, entry := range reg.Subscriptions() {
		sub := hub.Scope(b.ID(), entry.Subscription)
		queue := b.hub.Subscribe(sub)
		scoped = append(scoped, sub)

		entry := entry
		group.Go("subscription:"+entry.Name, func(ctx context.Context) error {
			return consume(ctx, queue, entry)
		})
	}

	for _, entry := range reg.Timers() {
		entry := entry
		group.Go("timer:"+entry.Name, func(ctx context.Context) error {
			return tick(ctx, entry)
		})
	}

	b.group = group
	b.status.Store(int32(entity.BotStatusRunning))
	group.start(func() {
		b.close(scoped)
	})

	logrus.WithFields(logrus.Fields{
		"bot_id":        b.ID(),
		"strategy":      b.StrategyName(),
		"subscriptions": len(scoped),
		"timers":        len(reg.Timers()),
	}).Info("bot spawned")

	return group, nil
}

func (b *Bot) close(subs []entity.Subscription) {
	for _, sub := range subs {
		b.hub.Unsubscribe(sub)
	}

	b.status.Store(int32(entity.BotStatusStopped))

	logrus.WithField("bot_id", b.ID()).Info("bot closed")
}

func consume(ctx context.Context, queue *hub.Queue, entry registry.SubscriptionEntry) error {
	for {
		resp, err := queue.Receive(ctx)
		if err != nil {
			if errors.Is(err, hub.ErrQueueClosed) {
				return nil
			}
			return err
		}

		if err := entry.Handle(ctx, resp); err != nil {
			logrus.WithFields(logrus.Fields{
				"handler":      entry.Name,
				"subscription": registry.Describe(entry.Subscription),
			}).WithError(err).Error("subscription handler failed")
		}
	}
}

// tick fires the handler right away and then on every interval.
func tick(ctx context.Context, entry registry.TimerEntry) error {
	ticker := time.NewTicker(entry.Interval)
	defer ticker.Stop()

	for {
		if err := entry.Fire(ctx); err != nil && ctx.Err() == nil {
			logrus.WithFields(logrus.Fields{
				"handler":  entry.Name,
				"interval": entry.Interval.String(),
			}).WithError(err).Error("timer handler failed")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
