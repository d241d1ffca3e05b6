package order

import (
	"context"
	"strings"

	"github.com/krobus00/bot-service/internal/entity"
	"github.com/shopspring/decimal"
)

// Filter is a pre-execution check. A denial carries a human readable
// reason and stops the event before any exchange call.
type Filter interface {
	Allow(ctx context.Context, event entity.OrderCreationEvent) (bool, string)
}

type FilterFunc func(ctx context.Context, event entity.OrderCreationEvent) (bool, string)

func (f FilterFunc) Allow(ctx context.Context, event entity.OrderCreationEvent) (bool, string) {
	return f(ctx, event)
}

// RequiredFieldsFilter rejects events the gateway could not route.
func RequiredFieldsFilter() Filter {
	return FilterFunc(func(_ context.Context, event entity.OrderCreationEvent) (bool, string) {
		switch {
		case strings.TrimSpace(event.UniqID) == "":
			return false, "uniq id is required"
		case strings.TrimSpace(event.Params.InstrumentID) == "":
			return false, "instrument id is required"
		case !event.Params.Size.IsPositive():
			return false, "size must be positive"
		default:
			return true, ""
		}
	})
}

// NotionalLimitFilter caps size*price per order. A zero limit disables it.
// Market orders without a price are not checked.
func NotionalLimitFilter(limit decimal.Decimal) Filter {
	return FilterFunc(func(_ context.Context, event entity.OrderCreationEvent) (bool, string) {
		if !limit.IsPositive() || event.Params.Price.IsZero() {
			return true, ""
		}
		if event.Params.Notional().GreaterThan(limit) {
			return false, "risk limit exceeded"
		}

		return true, ""
	})
}

// ExchangeFilter only lets events for the given exchanges through.
func ExchangeFilter(allowed ...entity.ExchangeName) Filter {
	set := make(map[entity.ExchangeName]struct{}, len(allowed))
	for _, exchange := range allowed {
		set[exchange] = struct{}{}
	}

	return FilterFunc(func(_ context.Context, event entity.OrderCreationEvent) (bool, string) {
		if _, ok := set[event.Exchange]; !ok {
			return false, "exchange not supported: " + string(event.Exchange)
		}

		return true, ""
	})
}
