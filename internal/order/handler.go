package order

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/krobus00/bot-service/internal/entity"
	"github.com/sirupsen/logrus"
)

const (
	defaultSubmitTimeout  = 5 * time.Second
	defaultConfirmTimeout = 5 * time.Second
)

// Handler turns one order event into a final result against an exchange.
type Handler interface {
	CreateOrder(ctx context.Context, event entity.OrderCreationEvent) entity.OrderResult
}

// HandlerFactory builds a handler bound to a credential.
type HandlerFactory func(credential entity.Credential) (Handler, error)

// GatewayHandler submits an order and always confirms it afterwards. The
// result is Success only when both calls succeeded.
type GatewayHandler struct {
	gateway        entity.ExchangeGateway
	submitTimeout  time.Duration
	confirmTimeout time.Duration
}

func NewGatewayHandler(gateway entity.ExchangeGateway, submitTimeout, confirmTimeout time.Duration) *GatewayHandler {
	if submitTimeout <= 0 {
		submitTimeout = defaultSubmitTimeout
	}
	if confirmTimeout <= 0 {
		confirmTimeout = defaultConfirmTimeout
	}

	return &GatewayHandler{
		gateway:        gateway,
		submitTimeout:  submitTimeout,
		confirmTimeout: confirmTimeout,
	}
}

func (h *GatewayHandler) CreateOrder(ctx context.Context, event entity.OrderCreationEvent) entity.OrderResult {
	logger := logrus.WithFields(logrus.Fields{
		"uniq_id":         event.UniqID,
		"exchange":        event.Exchange,
		"client_order_id": event.Params.ClientOrderID,
	})

	result := entity.NewOrderResult(event)
	failures := make([]string, 0, 2)

	submitCtx, cancel := context.WithTimeout(ctx, h.submitTimeout)
	submitted, err := h.gateway.Submit(submitCtx, event.Params)
	cancel()

	submitOK := false
	switch {
	case err != nil:
		failures = append(failures, fmt.Sprintf("submit failed: %v", err))
	case submitted == nil || !submitted.Success:
		failures = append(failures, "submit rejected: "+responseMessage(submitted))
	default:
		submitOK = true
		result.OrderID = submitted.OrderID
		result.RawResponse = submitted.Raw
	}
	logger.WithField("submitted", submitOK).Debug("order submitted")

	confirmCtx, cancel := context.WithTimeout(ctx, h.confirmTimeout)
	confirmed, err := h.gateway.Confirm(confirmCtx, event.Params.InstrumentID, event.Params.ClientOrderID)
	cancel()

	confirmOK := false
	switch {
	case err != nil:
		failures = append(failures, fmt.Sprintf("confirm failed: %v", err))
	case confirmed == nil || !confirmed.Success:
		failures = append(failures, "confirm rejected: "+responseMessage(confirmed))
	default:
		confirmOK = true
		if confirmed.OrderID != "" {
			result.OrderID = confirmed.OrderID
		}
		if len(result.RawResponse) == 0 {
			result.RawResponse = confirmed.Raw
		}
	}

	if submitOK && confirmOK {
		result.Status = entity.OrderStatusSuccess
		logger.WithField("order_id", result.OrderID).Info("order placed")
		return result
	}

	result.Status = entity.OrderStatusFailed
	result.Message = strings.Join(failures, "; ")
	logger.WithField("reason", result.Message).Warn("order failed")
	return result
}

func responseMessage(resp *entity.GatewayResponse) string {
	if resp == nil {
		return "empty response"
	}
	if resp.Code == "" {
		return resp.Message
	}

	return fmt.Sprintf("code=%s msg=%s", resp.Code, resp.Message)
}
