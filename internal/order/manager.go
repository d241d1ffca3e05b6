package order

import (
	"context"
	"errors"
	"time"

	"github.com/krobus00/bot-service/internal/entity"
	"github.com/sirupsen/logrus"
)

const defaultQueryInterval = 10 * time.Millisecond

type EventPublisher interface {
	Publish(ctx context.Context, event entity.OrderCreationEvent) error
}

// Manager is the strategy-facing side: it enqueues order events and reads
// results back from the store.
type Manager struct {
	publisher     EventPublisher
	store         entity.OrderStore
	queryInterval time.Duration
}

func NewManager(publisher EventPublisher, store entity.OrderStore, queryInterval time.Duration) *Manager {
	if queryInterval <= 0 {
		queryInterval = defaultQueryInterval
	}

	return &Manager{
		publisher:     publisher,
		store:         store,
		queryInterval: queryInterval,
	}
}

// CreateOrder returns as soon as the event is enqueued.
func (m *Manager) CreateOrder(ctx context.Context, event entity.OrderCreationEvent) error {
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	logrus.WithFields(logrus.Fields{
		"uniq_id":  event.UniqID,
		"bot_id":   event.BotID,
		"exchange": event.Exchange,
		"inst_id":  event.Params.InstrumentID,
		"side":     event.Params.Side,
	}).Info("order event published")

	return m.publisher.Publish(ctx, event)
}

func (m *Manager) QueryOrder(ctx context.Context, uniqID string) (*entity.OrderResult, error) {
	return m.store.Query(ctx, uniqID)
}

// QueryOrderAsync polls the store until the result appears or timeout
// elapses, in which case ErrOrderResultNotFound is returned.
func (m *Manager) QueryOrderAsync(ctx context.Context, uniqID string, timeout time.Duration) (*entity.OrderResult, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(m.queryInterval)
	defer ticker.Stop()

	for {
		result, err := m.store.Query(ctx, uniqID)
		switch {
		case err == nil && result != nil:
			return result, nil
		case err != nil && !errors.Is(err, entity.ErrOrderResultNotFound) && ctx.Err() == nil:
			logrus.WithField("uniq_id", uniqID).WithError(err).Warn("order result query failed")
		}

		select {
		case <-ctx.Done():
			return nil, entity.ErrOrderResultNotFound
		case <-ticker.C:
		}
	}
}
