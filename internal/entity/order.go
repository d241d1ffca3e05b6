package entity

import (
	"context"
	"errors"
	"time"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"
)

var ErrOrderResultNotFound = errors.New("order result not found")

type OrderStatus int

const (
	OrderStatusCreated OrderStatus = 0
	OrderStatusSuccess OrderStatus = 1
	OrderStatusFailed  OrderStatus = 2
)

func (s OrderStatus) String() string {
	switch s {
	case OrderStatusCreated:
		return "created"
	case OrderStatusSuccess:
		return "success"
	case OrderStatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

type OrderSide string
type OrderType string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"

	OrderTypeLimit  OrderType = "limit"
	OrderTypeMarket OrderType = "market"
)

// OrderParams is the exchange-specific order body.
type OrderParams struct {
	InstrumentID  string          `json:"inst_id"`
	TradeMode     string          `json:"td_mode"`
	ClientOrderID string          `json:"cl_ord_id"`
	Side          OrderSide       `json:"side"`
	Type          OrderType       `json:"ord_type"`
	Size          decimal.Decimal `json:"sz"`
	Price         decimal.Decimal `json:"px"`
}

func (p OrderParams) Notional() decimal.Decimal {
	return p.Size.Mul(p.Price)
}

type OrderCreationEvent struct {
	UniqID       string       `json:"uniq_id"`
	StrategyName string       `json:"strategy_name"`
	BotID        string       `json:"bot_id"`
	Exchange     ExchangeName `json:"exchange"`
	Params       OrderParams  `json:"params"`
	Credential   Credential   `json:"credential"`
	CreatedAt    time.Time    `json:"created_at"`
}

type OrderResult struct {
	UniqID        string          `json:"uniq_id"`
	StrategyName  string          `json:"strategy_name"`
	BotID         string          `json:"bot_id"`
	Exchange      ExchangeName    `json:"exchange"`
	ClientOrderID string          `json:"client_order_id"`
	OrderID       string          `json:"order_id"`
	Params        OrderParams     `json:"params"`
	Status        OrderStatus     `json:"status"`
	Message       string          `json:"message"`
	RawResponse   json.RawMessage `json:"raw_response,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// NewOrderResult seeds a result from the event that produced it.
func NewOrderResult(event OrderCreationEvent) OrderResult {
	return OrderResult{
		UniqID:        event.UniqID,
		StrategyName:  event.StrategyName,
		BotID:         event.BotID,
		Exchange:      event.Exchange,
		ClientOrderID: event.Params.ClientOrderID,
		Params:        event.Params,
		Status:        OrderStatusCreated,
	}
}

// OrderStore persists order results keyed by UniqID. Query returns
// ErrOrderResultNotFound when nothing is stored yet.
type OrderStore interface {
	Save(ctx context.Context, result OrderResult) error
	Query(ctx context.Context, uniqID string) (*OrderResult, error)
}
