package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/krobus00/bot-service/internal/bot"
	"github.com/krobus00/bot-service/internal/config"
	"github.com/krobus00/bot-service/internal/entity"
	"github.com/krobus00/bot-service/internal/service/strategy"
	"github.com/krobus00/bot-service/internal/service/strategy/grid"
)

var (
	ErrUnknownStrategy    = errors.New("unknown strategy")
	ErrCredentialNotFound = errors.New("credential not found")
)

type strategyDeps struct {
	orders    strategy.OrderService
	gridStore grid.StateStore
}

type strategyFactory func(ctx context.Context, deps strategyDeps, sc config.StrategyConfig, base *strategy.Base) (bot.Strategy, error)

var strategyFactories = map[string]strategyFactory{
	strategy.NameHeartbeat: func(_ context.Context, _ strategyDeps, _ config.StrategyConfig, base *strategy.Base) (bot.Strategy, error) {
		return base, nil
	},
	grid.Name: func(ctx context.Context, deps strategyDeps, sc config.StrategyConfig, base *strategy.Base) (bot.Strategy, error) {
		var gridCfg grid.Config
		if err := config.DecodeParams(sc.Params, &gridCfg); err != nil {
			return nil, fmt.Errorf("decode %s params: %w", grid.Name, err)
		}

		return grid.New(ctx, base, gridCfg, deps.gridStore)
	},
}

func strategyNames() []string {
	names := make([]string, 0, len(strategyFactories))
	for name := range strategyFactories {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

func resolveCredential(cfg *config.EnvConfig, name string) (entity.Credential, error) {
	if name == "" {
		return entity.Credential{}, nil
	}

	credential, ok := cfg.Credential(name)
	if !ok {
		return entity.Credential{}, fmt.Errorf("%w: %s", ErrCredentialNotFound, name)
	}

	return credential, nil
}

// buildStrategies instantiates every configured strategy in config order.
func buildStrategies(ctx context.Context, cfg *config.EnvConfig, deps strategyDeps) ([]bot.Strategy, error) {
	strategies := make([]bot.Strategy, 0, len(cfg.Strategies))
	for _, sc := range cfg.Strategies {
		factory, ok := strategyFactories[sc.Name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownStrategy, sc.Name)
		}

		credential, err := resolveCredential(cfg, sc.Credential)
		if err != nil {
			return nil, fmt.Errorf("bot %s: %w", sc.BotID, err)
		}

		base, err := strategy.NewBase(strategy.BaseConfig{
			Name:       sc.Name,
			BotID:      sc.BotID,
			Exchange:   entity.ExchangeName(sc.Exchange),
			Credential: credential,
			Heartbeat:  sc.Heartbeat,
		}, deps.orders)
		if err != nil {
			return nil, fmt.Errorf("bot %s: %w", sc.BotID, err)
		}

		s, err := factory(ctx, deps, sc, base)
		if err != nil {
			return nil, fmt.Errorf("bot %s: %w", sc.BotID, err)
		}

		strategies = append(strategies, s)
	}

	return strategies, nil
}

// collectSubscriptions dedupes the subscriptions of all bots per exchange.
func collectSubscriptions(bots []*bot.Bot) map[entity.ExchangeName][]entity.Subscription {
	seen := make(map[entity.Subscription]struct{})
	out := make(map[entity.ExchangeName][]entity.Subscription)
	for _, b := range bots {
		for _, sub := range b.Subscriptions() {
			if _, ok := seen[sub]; ok {
				continue
			}
			seen[sub] = struct{}{}
			out[sub.Exchange()] = append(out[sub.Exchange()], sub)
		}
	}

	return out
}
