package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/krobus00/bot-service/internal/entity"
	"github.com/krobus00/bot-service/internal/eventbus"
	"github.com/krobus00/bot-service/internal/util"
	"github.com/sirupsen/logrus"
)

const (
	saveTimeout     = 5 * time.Second
	saveMaxAttempts = 3
)

var ErrHandlerNotFound = errors.New("no order handler for exchange")

type EventSource interface {
	Receive(ctx context.Context) (entity.OrderCreationEvent, error)
}

type handlerKey struct {
	exchange   entity.ExchangeName
	credential string
}

// Executor consumes order events one at a time and persists exactly one
// result for every event that passes the filters.
type Executor struct {
	source    EventSource
	store     entity.OrderStore
	filters   []Filter
	factories map[entity.ExchangeName]HandlerFactory
	handlers  map[handlerKey]Handler
}

func NewExecutor(source EventSource, store entity.OrderStore, filters ...Filter) *Executor {
	return &Executor{
		source:    source,
		store:     store,
		filters:   filters,
		factories: make(map[entity.ExchangeName]HandlerFactory),
		handlers:  make(map[handlerKey]Handler),
	}
}

// RegisterHandlerFactory must be called before Run.
func (e *Executor) RegisterHandlerFactory(exchange entity.ExchangeName, factory HandlerFactory) {
	e.factories[exchange] = factory
}

func (e *Executor) Run(ctx context.Context) error {
	logrus.Info("order executor started")
	defer logrus.Info("order executor stopped")

	for {
		event, err := e.source.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, eventbus.ErrQueueClosed) {
				return nil
			}
			return fmt.Errorf("receive order event: %w", err)
		}

		e.Process(ctx, event)
	}
}

// Process runs filters, executes the order and persists the result. It
// never panics; a panicking handler is recorded as a failed order.
func (e *Executor) Process(ctx context.Context, event entity.OrderCreationEvent) {
	logger := logrus.WithFields(logrus.Fields{
		"uniq_id":  event.UniqID,
		"bot_id":   event.BotID,
		"exchange": event.Exchange,
	})

	var result *entity.OrderResult
	defer func() {
		if recovered := recover(); recovered != nil {
			logger.WithField("panic", recovered).Error("order execution panicked")
			failed := failedResult(event, fmt.Sprintf("internal error: %v", recovered))
			result = &failed
		}
		if result != nil {
			e.save(ctx, logger, *result)
		}
	}()

	for _, filter := range e.filters {
		if ok, reason := filter.Allow(ctx, event); !ok {
			logger.WithField("reason", reason).Warn("order denied by filter")
			return
		}
	}

	handler, err := e.handler(event)
	if err != nil {
		logger.WithError(err).Error("failed to resolve order handler")
		failed := failedResult(event, err.Error())
		result = &failed
		return
	}

	created := handler.CreateOrder(ctx, event)
	result = &created
}

func (e *Executor) handler(event entity.OrderCreationEvent) (Handler, error) {
	key := handlerKey{exchange: event.Exchange, credential: event.Credential.Name}
	if handler, ok := e.handlers[key]; ok {
		return handler, nil
	}

	factory, ok := e.factories[event.Exchange]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrHandlerNotFound, event.Exchange)
	}

	handler, err := factory(event.Credential)
	if err != nil {
		return nil, fmt.Errorf("build %s handler: %w", event.Exchange, err)
	}

	e.handlers[key] = handler
	return handler, nil
}

func (e *Executor) save(ctx context.Context, logger *logrus.Entry, result entity.OrderResult) {
	// results must land even while the process is shutting down
	ctx = context.WithoutCancel(ctx)
	rng := util.NewRand()

	var err error
	for attempt := 0; attempt < saveMaxAttempts; attempt++ {
		saveCtx, cancel := context.WithTimeout(ctx, saveTimeout)
		err = e.store.Save(saveCtx, result)
		cancel()
		if err == nil {
			logger.WithField("status", result.Status.String()).Info("order result saved")
			return
		}
		if attempt == saveMaxAttempts-1 {
			break
		}

		wait := util.BackoffWithJitter(attempt, 2, 50*time.Millisecond, time.Second, rng)
		logger.WithError(err).WithField("retry_in", wait.String()).Warn("failed to save order result")
		time.Sleep(wait)
	}

	logger.WithError(err).Error("giving up on saving order result")
}

func failedResult(event entity.OrderCreationEvent, message string) entity.OrderResult {
	result := entity.NewOrderResult(event)
	result.Status = entity.OrderStatusFailed
	result.Message = message
	return result
}
