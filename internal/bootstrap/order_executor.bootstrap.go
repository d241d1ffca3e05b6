package bootstrap

import (
	"context"
	"errors"

	"github.com/krobus00/bot-service/internal/config"
	"github.com/krobus00/bot-service/internal/util"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// StartOrderExecutor consumes order events from jetstream and executes
// them. Runtimes publishing to it set order.remote_executor.
func StartOrderExecutor(cfg *config.EnvConfig) {
	if cfg.Order.Transport != config.TransportJetstream {
		util.ContinueOrFatal(errors.New("order-executor requires order.transport: jetstream"))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	res, err := openResources(ctx, cfg, true)
	util.ContinueOrFatal(err)

	orders, err := newOrderTransport(ctx, cfg, res, true)
	util.ContinueOrFatal(err)

	executor := newOrderExecutor(cfg, orders, res.orderStore)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return executor.Run(gctx)
	})
	g.Go(func() error {
		return res.healthCheck(gctx, cfg)
	})

	logrus.WithField("paper_trading", cfg.Order.PaperTrading).Info("order executor worker started")

	steps := []shutdownStep{
		{name: "order executor", op: func(_ context.Context) error {
			cancel()
			return g.Wait()
		}},
		closeStep("order queue", func() error {
			orders.Close()
			return nil
		}),
	}
	wait := gracefulShutdown(gctx, cfg.GracefulShutdownTimeout, append(steps, res.shutdownSteps()...))
	<-wait
}
