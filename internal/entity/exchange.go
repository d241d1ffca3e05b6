package entity

import (
	"context"

	"github.com/goccy/go-json"
)

type ExchangeName string

const (
	ExchangeOKX     ExchangeName = "okx"
	ExchangeBinance ExchangeName = "binance"
)

// GatewayResponse is the normalized answer of an exchange REST call.
type GatewayResponse struct {
	Success bool            `json:"success"`
	Code    string          `json:"code"`
	Message string          `json:"message"`
	OrderID string          `json:"order_id"`
	Raw     json.RawMessage `json:"raw,omitempty"`
}

// ExchangeGateway submits orders to a venue and confirms them afterwards.
// Implementations must honor the context deadline.
type ExchangeGateway interface {
	Submit(ctx context.Context, params OrderParams) (*GatewayResponse, error)
	Confirm(ctx context.Context, instrumentID, clientOrderID string) (*GatewayResponse, error)
}
