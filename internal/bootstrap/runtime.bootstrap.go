package bootstrap

import (
	"context"
	"net/http"

	"github.com/krobus00/bot-service/internal/bot"
	"github.com/krobus00/bot-service/internal/config"
	"github.com/krobus00/bot-service/internal/entity"
	"github.com/krobus00/bot-service/internal/eventbus"
	controlhttp "github.com/krobus00/bot-service/internal/handler/botcontrol/http"
	controltcp "github.com/krobus00/bot-service/internal/handler/botcontrol/tcp"
	"github.com/krobus00/bot-service/internal/hub"
	"github.com/krobus00/bot-service/internal/infrastructure"
	"github.com/krobus00/bot-service/internal/order"
	"github.com/krobus00/bot-service/internal/service/strategy/grid"
	"github.com/krobus00/bot-service/internal/util"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const controlQueueName = "control"

// controlQueue carries bot control events from the listeners to the
// command handler.
type controlQueue interface {
	Publish(ctx context.Context, event entity.BotControlEvent) error
	Receive(ctx context.Context) (entity.BotControlEvent, error)
	Close()
}

func newControlQueue(ctx context.Context, cfg *config.EnvConfig, res *resources) (controlQueue, error) {
	if cfg.Bot.ControlTransport != config.TransportJetstream {
		return eventbus.NewQueue[entity.BotControlEvent](cfg.Bot.ControlQueueSize), nil
	}

	queue := eventbus.NewJetstreamControlQueue(
		res.js,
		cfg.Bot.ControlQueueSize,
		cfg.NatsJetstream.TimeoutHandler[controlQueueName],
		cfg.NatsJetstream.MaxRetries,
	)
	if err := startStream(ctx, queue, true); err != nil {
		return nil, err
	}

	return queue, nil
}

func usesJetstream(cfg *config.EnvConfig) bool {
	return cfg.Order.Transport == config.TransportJetstream || cfg.Bot.ControlTransport == config.TransportJetstream
}

// StartRuntime runs the bots of this process together with the data
// sources, the order pipeline and the control listeners. When botID is set
// only that bot is started; otherwise bot.start_all decides.
func StartRuntime(cfg *config.EnvConfig, botID string) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	res, err := openResources(ctx, cfg, usesJetstream(cfg))
	util.ContinueOrFatal(err)

	localExecutor := !(cfg.Order.Transport == config.TransportJetstream && cfg.Order.RemoteExecutor)
	if cfg.Order.RemoteExecutor && !localExecutor {
		logrus.Info("orders are executed by a remote order-executor")
	}

	orders, err := newOrderTransport(ctx, cfg, res, localExecutor)
	util.ContinueOrFatal(err)

	manager := order.NewManager(orders, res.orderStore, cfg.Order.QueryInterval)

	var gridStore grid.StateStore = grid.NewMemoryStateStore()
	if res.redis != nil {
		gridStore = grid.NewRedisStateStore(res.redis)
	}

	strategies, err := buildStrategies(ctx, cfg, strategyDeps{orders: manager, gridStore: gridStore})
	util.ContinueOrFatal(err)

	dataHub := hub.New(cfg.Hub.QueueSize)
	bots := make([]*bot.Bot, 0, len(strategies))
	for _, s := range strategies {
		bots = append(bots, bot.New(s, dataHub))
	}

	registry, err := bot.NewRegistry(bots...)
	util.ContinueOrFatal(err)

	connectors, err := newConnectors(cfg, dataHub, collectSubscriptions(bots))
	util.ContinueOrFatal(err)

	control, err := newControlQueue(ctx, cfg, res)
	util.ContinueOrFatal(err)

	commandHandler := bot.NewCommandHandler(registry, res.botStore, control, bot.CommandHandlerConfig{
		LivenessTimeout: cfg.Bot.LivenessTimeout,
		PollInterval:    cfg.Bot.LivenessPollInterval,
		StopTimeout:     cfg.Bot.StopTimeout,
	})

	mux := http.NewServeMux()
	controlhttp.NewBotControlHTTPHandler(control, commandHandler, res.botStore, manager, cfg.APIKeys).Register(mux)
	httpServer := infrastructure.NewHTTPServer(infrastructure.HTTPServerConfig{
		Addr: cfg.PortOf("http", infrastructure.DefaultHTTPAddr),
	}, mux)

	tcpServer := controltcp.NewServer(cfg.PortOf("bot_control", controltcp.DefaultAddr), control)
	util.ContinueOrFatal(tcpServer.Listen())

	g, gctx := errgroup.WithContext(ctx)
	for _, run := range connectors {
		g.Go(func() error {
			return run.run(gctx)
		})
	}
	if localExecutor {
		executor := newOrderExecutor(cfg, orders, res.orderStore)
		g.Go(func() error {
			return executor.Run(gctx)
		})
	}
	g.Go(func() error {
		return commandHandler.Run(gctx)
	})
	g.Go(func() error {
		return httpServer.Run(gctx)
	})
	g.Go(func() error {
		return tcpServer.Run(gctx)
	})
	g.Go(func() error {
		return res.healthCheck(gctx, cfg)
	})

	initial := entity.BotControlEvent{Command: entity.CommandStartAll}
	if botID != "" {
		initial = entity.BotControlEvent{Command: entity.CommandStartBot, BotID: &botID}
	}
	if botID != "" || cfg.Bot.StartAll {
		if err := control.Publish(ctx, initial); err != nil {
			logrus.WithError(err).Error("failed to queue initial bot command")
		}
	}

	logrus.WithFields(logrus.Fields{
		"bots":       registry.Len(),
		"connectors": len(connectors),
		"executor":   localExecutor,
	}).Info("bot runtime started")

	steps := []shutdownStep{
		{name: "runtime", op: func(_ context.Context) error {
			cancel()
			return g.Wait()
		}},
		closeStep("queues", func() error {
			control.Close()
			orders.Close()
			return nil
		}),
	}
	wait := gracefulShutdown(gctx, cfg.GracefulShutdownTimeout, append(steps, res.shutdownSteps()...))
	<-wait
}
