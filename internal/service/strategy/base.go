package strategy

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/krobus00/bot-service/internal/entity"
	"github.com/krobus00/bot-service/internal/registry"
	"github.com/sirupsen/logrus"
)

const (
	NameHeartbeat = "heartbeat"

	defaultHeartbeat = 30 * time.Second
)

var ErrMissingBotID = errors.New("strategy bot id is required")

// OrderService is the order manager as seen by strategies.
type OrderService interface {
	CreateOrder(ctx context.Context, event entity.OrderCreationEvent) error
	QueryOrder(ctx context.Context, uniqID string) (*entity.OrderResult, error)
}

type BaseConfig struct {
	Name       string
	BotID      string
	Exchange   entity.ExchangeName
	Credential entity.Credential
	Heartbeat  time.Duration
}

// Base carries identity, order plumbing and a heartbeat timer. Strategies
// embed it and inherit its registry.
type Base struct {
	cfg      BaseConfig
	orders   OrderService
	registry *registry.Registry
	beats    atomic.Int64
}

func NewBase(cfg BaseConfig, orders OrderService) (*Base, error) {
	if strings.TrimSpace(cfg.BotID) == "" {
		return nil, ErrMissingBotID
	}
	if cfg.Name == "" {
		cfg.Name = NameHeartbeat
	}
	if cfg.Heartbeat <= 0 {
		cfg.Heartbeat = defaultHeartbeat
	}

	b := &Base{cfg: cfg, orders: orders}

	reg, err := registry.NewBuilder().
		Every(cfg.Heartbeat, "heartbeat", b.onHeartbeat).
		Build()
	if err != nil {
		return nil, err
	}
	b.registry = reg

	return b, nil
}

func (b *Base) Name() string {
	return b.cfg.Name
}

func (b *Base) BotID() string {
	return b.cfg.BotID
}

func (b *Base) Exchange() entity.ExchangeName {
	return b.cfg.Exchange
}

func (b *Base) Registry() *registry.Registry {
	return b.registry
}

func (b *Base) Beats() int64 {
	return b.beats.Load()
}

func (b *Base) Logger() *logrus.Entry {
	return logrus.WithFields(logrus.Fields{
		"strategy": b.cfg.Name,
		"bot_id":   b.cfg.BotID,
	})
}

// CreateOrder hands params to the order manager and returns the uniq id the
// result will be stored under.
func (b *Base) CreateOrder(ctx context.Context, params entity.OrderParams) (string, error) {
	if params.ClientOrderID == "" {
		params.ClientOrderID = NewClientOrderID()
	}

	event := entity.OrderCreationEvent{
		UniqID:       uuid.NewString(),
		StrategyName: b.cfg.Name,
		BotID:        b.cfg.BotID,
		Exchange:     b.cfg.Exchange,
		Params:       params,
		Credential:   b.cfg.Credential,
	}
	if err := b.orders.CreateOrder(ctx, event); err != nil {
		return "", err
	}

	return event.UniqID, nil
}

func (b *Base) QueryOrder(ctx context.Context, uniqID string) (*entity.OrderResult, error) {
	return b.orders.QueryOrder(ctx, uniqID)
}

func (b *Base) onHeartbeat(_ context.Context) error {
	beats := b.beats.Add(1)
	b.Logger().WithField("beats", beats).Debug("strategy heartbeat")
	return nil
}

// NewClientOrderID returns a 32 char alphanumeric id, the longest clOrdId
// OKX accepts.
func NewClientOrderID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
