package bootstrap

import (
	"context"

	"github.com/krobus00/bot-service/internal/config"
	"github.com/krobus00/bot-service/internal/entity"
	"github.com/krobus00/bot-service/internal/eventbus"
	okxgateway "github.com/krobus00/bot-service/internal/gateway/okx"
	"github.com/krobus00/bot-service/internal/gateway/paper"
	"github.com/krobus00/bot-service/internal/order"
	"github.com/sirupsen/logrus"
)

const orderQueueName = "order"

// newOrderHandlerFactory builds gateway handlers for one exchange. Events
// only carry the credential name, so secrets are resolved from local config.
func newOrderHandlerFactory(cfg *config.EnvConfig, exchange entity.ExchangeName) order.HandlerFactory {
	return func(credential entity.Credential) (order.Handler, error) {
		if cfg.Order.PaperTrading {
			return order.NewGatewayHandler(paper.New(), cfg.Order.SubmitTimeout, cfg.Order.ConfirmTimeout), nil
		}

		if credential.IsZero() {
			resolved, err := resolveCredential(cfg, credential.Name)
			if err != nil {
				return nil, err
			}
			credential = resolved
		}

		exchangeCfg := cfg.Exchanges[string(exchange)]
		gateway := okxgateway.New(okxgateway.Config{
			BaseURL:    exchangeCfg.RestURL,
			Simulated:  exchangeCfg.Simulated,
			RateLimit:  exchangeCfg.RateLimit,
			RateBurst:  exchangeCfg.RateBurst,
			Timeout:    exchangeCfg.RequestTimeout,
			RetryCount: exchangeCfg.RetryCount,
		}, credential)

		return order.NewGatewayHandler(gateway, cfg.Order.SubmitTimeout, cfg.Order.ConfirmTimeout), nil
	}
}

func orderFilters(cfg *config.EnvConfig) []order.Filter {
	filters := []order.Filter{
		order.RequiredFieldsFilter(),
		order.ExchangeFilter(entity.ExchangeOKX),
	}
	if cfg.Order.MaxNotional.IsPositive() {
		filters = append(filters, order.NotionalLimitFilter(cfg.Order.MaxNotional))
	}

	return filters
}

func newOrderExecutor(cfg *config.EnvConfig, source order.EventSource, store entity.OrderStore) *order.Executor {
	executor := order.NewExecutor(source, store, orderFilters(cfg)...)
	executor.RegisterHandlerFactory(entity.ExchangeOKX, newOrderHandlerFactory(cfg, entity.ExchangeOKX))

	return executor
}

// orderTransport is what the manager publishes to and what the executor
// consumes from.
type orderTransport interface {
	order.EventPublisher
	order.EventSource
	Close()
}

func newOrderTransport(ctx context.Context, cfg *config.EnvConfig, res *resources, subscribe bool) (orderTransport, error) {
	if cfg.Order.Transport != config.TransportJetstream {
		return eventbus.NewQueue[entity.OrderCreationEvent](cfg.Order.QueueSize), nil
	}

	queue := eventbus.NewJetstreamOrderQueue(
		res.js,
		cfg.Order.QueueSize,
		cfg.NatsJetstream.TimeoutHandler[orderQueueName],
		cfg.NatsJetstream.MaxRetries,
	)
	if err := startStream(ctx, queue, subscribe); err != nil {
		return nil, err
	}

	logrus.WithField("subscribe", subscribe).Info("order events flow through jetstream")
	return queue, nil
}

type stream interface {
	entity.Publisher
	entity.Subscriber
}

// startStream declares the stream and, when subscribe is set, also starts
// consuming it.
func startStream(ctx context.Context, s stream, subscribe bool) error {
	if subscribe {
		return s.JetstreamEventSubscribe(ctx)
	}

	return s.JetstreamEventInit(ctx)
}
