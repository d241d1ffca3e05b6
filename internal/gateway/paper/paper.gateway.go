package paper

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/krobus00/bot-service/internal/entity"
	"github.com/shopspring/decimal"
)

const (
	codeOK       = "0"
	codeRejected = "1"
	codeNotFound = "404"
)

type fill struct {
	OrderID       string           `json:"order_id"`
	ClientOrderID string           `json:"client_order_id"`
	InstrumentID  string           `json:"inst_id"`
	Side          entity.OrderSide `json:"side"`
	Type          entity.OrderType `json:"ord_type"`
	Size          decimal.Decimal  `json:"sz"`
	Price         decimal.Decimal  `json:"px"`
	Status        string           `json:"status"`
	FilledAt      time.Time        `json:"filled_at"`
}

// Gateway fills every well formed order immediately without touching
// a venue.
type Gateway struct {
	mu    sync.RWMutex
	fills map[string]fill
	now   func() time.Time
}

func New() *Gateway {
	return &Gateway{
		fills: make(map[string]fill),
		now:   time.Now,
	}
}

func (g *Gateway) Submit(ctx context.Context, params entity.OrderParams) (*entity.GatewayResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	clientOrderID := strings.TrimSpace(params.ClientOrderID)
	if clientOrderID == "" || params.InstrumentID == "" || !params.Size.IsPositive() {
		return &entity.GatewayResponse{Code: codeRejected, Message: "invalid paper order"}, nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.fills[key(params.InstrumentID, clientOrderID)]; ok {
		return &entity.GatewayResponse{Code: codeRejected, Message: "duplicated client order id"}, nil
	}

	f := fill{
		OrderID:       fmt.Sprintf("paper-%s", clientOrderID),
		ClientOrderID: clientOrderID,
		InstrumentID:  params.InstrumentID,
		Side:          params.Side,
		Type:          params.Type,
		Size:          params.Size,
		Price:         params.Price,
		Status:        "FILLED",
		FilledAt:      g.now().UTC(),
	}
	g.fills[key(params.InstrumentID, clientOrderID)] = f

	return respond(f)
}

func (g *Gateway) Confirm(ctx context.Context, instrumentID, clientOrderID string) (*entity.GatewayResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	g.mu.RLock()
	f, ok := g.fills[key(instrumentID, clientOrderID)]
	g.mu.RUnlock()

	if !ok {
		return &entity.GatewayResponse{Code: codeNotFound, Message: "order does not exist"}, nil
	}

	return respond(f)
}

func respond(f fill) (*entity.GatewayResponse, error) {
	raw, err := json.Marshal(f)
	if err != nil {
		return nil, err
	}

	return &entity.GatewayResponse{
		Success: true,
		Code:    codeOK,
		OrderID: f.OrderID,
		Raw:     raw,
	}, nil
}

func key(instrumentID, clientOrderID string) string {
	return instrumentID + "/" + clientOrderID
}
