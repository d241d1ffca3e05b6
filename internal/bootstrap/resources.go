package bootstrap

import (
	"context"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/krobus00/bot-service/internal/config"
	"github.com/krobus00/bot-service/internal/entity"
	"github.com/krobus00/bot-service/internal/infrastructure"
	"github.com/krobus00/bot-service/internal/repository"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const (
	botDatabaseName = "bot"
	cacheRedisName  = "cache"
)

// resources holds the external connections of one process. Every field is
// optional; stores fall back to memory when postgres is not configured.
type resources struct {
	db    *sqlx.DB
	redis *redis.Client
	nc    *nats.Conn
	js    nats.JetStreamContext

	orderStore entity.OrderStore
	botStore   entity.BotStore
}

func openResources(ctx context.Context, cfg *config.EnvConfig, withJetstream bool) (*resources, error) {
	res := &resources{}

	if dbCfg, ok := cfg.Database[botDatabaseName]; ok && strings.TrimSpace(dbCfg.DSN) != "" {
		db, err := infrastructure.NewPostgresConnection(ctx, dbCfg)
		if err != nil {
			return nil, err
		}
		res.db = db
		res.orderStore = repository.NewOrderResultRepository(db)
		res.botStore = repository.NewBotRepository(db)
	} else {
		logrus.Warn("postgres is not configured, using in-memory stores")
		res.orderStore = repository.NewMemoryOrderStore()
		res.botStore = repository.NewMemoryBotStore()
	}

	if redisCfg, ok := cfg.Redis[cacheRedisName]; ok && strings.TrimSpace(redisCfg.CacheDSN) != "" {
		client, err := infrastructure.NewRedisClient(ctx, redisCfg)
		if err != nil {
			res.close()
			return nil, err
		}
		res.redis = client
		res.orderStore = repository.NewCachedOrderStore(res.orderStore, client, redisCfg.TTL)
	}

	if withJetstream {
		nc, js, err := infrastructure.NewJetstream(cfg.NatsJetstream)
		if err != nil {
			res.close()
			return nil, err
		}
		res.nc = nc
		res.js = js
	}

	return res, nil
}

// healthCheck blocks until ctx ends.
func (r *resources) healthCheck(ctx context.Context, cfg *config.EnvConfig) error {
	if r.db == nil {
		<-ctx.Done()
		return nil
	}

	infrastructure.RunPostgresHealthCheck(ctx, r.db, cfg.Database[botDatabaseName].PingInterval)
	<-ctx.Done()
	return nil
}

func (r *resources) shutdownSteps() []shutdownStep {
	var steps []shutdownStep
	if r.nc != nil {
		steps = append(steps, closeStep("nats", func() error {
			return infrastructure.CloseJetstream(r.nc)
		}))
	}
	if r.redis != nil {
		steps = append(steps, closeStep("redis", r.redis.Close))
	}
	if r.db != nil {
		steps = append(steps, closeStep("postgres", r.db.Close))
	}

	return steps
}

func (r *resources) close() {
	for _, step := range r.shutdownSteps() {
		if err := step.op(context.Background()); err != nil {
			logrus.WithField("step", step.name).WithError(err).Warn("close failed")
		}
	}
}
