package bootstrap

import (
	"context"
	"testing"

	"github.com/krobus00/bot-service/internal/bot"
	"github.com/krobus00/bot-service/internal/config"
	"github.com/krobus00/bot-service/internal/datasource/okx"
	"github.com/krobus00/bot-service/internal/entity"
	"github.com/krobus00/bot-service/internal/eventbus"
	"github.com/krobus00/bot-service/internal/hub"
	"github.com/krobus00/bot-service/internal/order"
	"github.com/krobus00/bot-service/internal/repository"
	"github.com/krobus00/bot-service/internal/service/strategy"
	"github.com/krobus00/bot-service/internal/service/strategy/grid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDeps() strategyDeps {
	manager := order.NewManager(eventbus.NewQueue[entity.OrderCreationEvent](8), repository.NewMemoryOrderStore(), 0)
	return strategyDeps{orders: manager, gridStore: grid.NewMemoryStateStore()}
}

func testConfig() *config.EnvConfig {
	return &config.EnvConfig{
		Credentials: map[string]entity.Credential{
			"main": {Name: "main", APIKey: "key", SecretKey: "secret", Passphrase: "pass"},
		},
		Strategies: []config.StrategyConfig{
			{Name: strategy.NameHeartbeat, BotID: "beat-1", Exchange: "okx"},
			{
				Name:       grid.Name,
				BotID:      "grid-btc",
				Exchange:   "okx",
				Credential: "main",
				Params: map[string]any{
					"inst_id":      "BTC-USDT",
					"grid_percent": 0.01,
				},
			},
		},
	}
}

func TestBuildStrategies(t *testing.T) {
	strategies, err := buildStrategies(context.Background(), testConfig(), testDeps())
	require.NoError(t, err)
	require.Len(t, strategies, 2)

	assert.Equal(t, "beat-1", strategies[0].BotID())
	assert.Equal(t, strategy.NameHeartbeat, strategies[0].Name())
	assert.Equal(t, "grid-btc", strategies[1].BotID())
	assert.Equal(t, grid.Name, strategies[1].Name())

	_, ok := strategies[1].Registry().Lookup(okx.Trades{InstID: "BTC-USDT"})
	assert.True(t, ok)
}

func TestBuildStrategies_Errors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(cfg *config.EnvConfig)
		wantErr error
	}{
		{
			name: "unknown strategy",
			mutate: func(cfg *config.EnvConfig) {
				cfg.Strategies[0].Name = "martingale"
			},
			wantErr: ErrUnknownStrategy,
		},
		{
			name: "missing credential",
			mutate: func(cfg *config.EnvConfig) {
				cfg.Strategies[1].Credential = "absent"
			},
			wantErr: ErrCredentialNotFound,
		},
		{
			name: "missing bot id",
			mutate: func(cfg *config.EnvConfig) {
				cfg.Strategies[0].BotID = ""
			},
			wantErr: strategy.ErrMissingBotID,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(cfg)

			_, err := buildStrategies(context.Background(), cfg, testDeps())
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestBuildStrategies_UnknownGridParam(t *testing.T) {
	cfg := testConfig()
	cfg.Strategies[1].Params["levels"] = 10

	_, err := buildStrategies(context.Background(), cfg, testDeps())
	assert.Error(t, err)
}

func TestCollectSubscriptions_Dedupes(t *testing.T) {
	cfg := testConfig()
	second := cfg.Strategies[1]
	second.BotID = "grid-btc-2"
	second.Params = map[string]any{"inst_id": "BTC-USDT"}
	cfg.Strategies = append(cfg.Strategies, second)

	strategies, err := buildStrategies(context.Background(), cfg, testDeps())
	require.NoError(t, err)

	h := hub.New(8)
	bots := make([]*bot.Bot, 0, len(strategies))
	for _, s := range strategies {
		bots = append(bots, bot.New(s, h))
	}

	subs := collectSubscriptions(bots)
	require.Len(t, subs[entity.ExchangeOKX], 1)
	assert.Equal(t, okx.Trades{InstID: "BTC-USDT"}, subs[entity.ExchangeOKX][0])
}

func TestOrderFilters(t *testing.T) {
	cfg := &config.EnvConfig{Order: config.OrderConfig{MaxNotional: decimal.NewFromInt(100)}}
	filters := orderFilters(cfg)
	require.Len(t, filters, 3)

	event := entity.OrderCreationEvent{
		UniqID:   "u-1",
		Exchange: entity.ExchangeOKX,
		Params: entity.OrderParams{
			InstrumentID: "BTC-USDT",
			Size:         decimal.NewFromInt(2),
			Price:        decimal.NewFromInt(60),
		},
	}

	denied := false
	for _, filter := range filters {
		if ok, reason := filter.Allow(context.Background(), event); !ok {
			denied = true
			assert.Equal(t, "risk limit exceeded", reason)
		}
	}
	assert.True(t, denied)

	assert.Len(t, orderFilters(&config.EnvConfig{}), 2)
}

func TestOrderHandlerFactory_Paper(t *testing.T) {
	cfg := &config.EnvConfig{Order: config.OrderConfig{PaperTrading: true}}
	handler, err := newOrderHandlerFactory(cfg, entity.ExchangeOKX)(entity.Credential{Name: "main"})
	require.NoError(t, err)

	result := handler.CreateOrder(context.Background(), entity.OrderCreationEvent{
		UniqID:   "u-1",
		Exchange: entity.ExchangeOKX,
		Params: entity.OrderParams{
			InstrumentID:  "BTC-USDT",
			ClientOrderID: "c1",
			Side:          entity.OrderSideBuy,
			Type:          entity.OrderTypeLimit,
			Size:          decimal.NewFromInt(1),
			Price:         decimal.NewFromInt(100),
		},
	})
	assert.Equal(t, entity.OrderStatusSuccess, result.Status)
	assert.Equal(t, "paper-c1", result.OrderID)
}

func TestOrderHandlerFactory_ResolvesCredential(t *testing.T) {
	cfg := testConfig()
	factory := newOrderHandlerFactory(cfg, entity.ExchangeOKX)

	handler, err := factory(entity.Credential{Name: "main"})
	require.NoError(t, err)
	assert.NotNil(t, handler)

	_, err = factory(entity.Credential{Name: "absent"})
	assert.ErrorIs(t, err, ErrCredentialNotFound)
}

func TestRenderStrategies(t *testing.T) {
	strategies, err := buildStrategies(context.Background(), testConfig(), testDeps())
	require.NoError(t, err)

	out := renderStrategies(strategyNames(), strategies)
	assert.Contains(t, out, "grid-btc")
	assert.Contains(t, out, "okx:trades:BTC-USDT")
	assert.Contains(t, out, "heartbeat")
}

func TestStrategyNames(t *testing.T) {
	assert.Equal(t, []string{grid.Name, strategy.NameHeartbeat}, strategyNames())
}
