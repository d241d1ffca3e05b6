package paper

import (
	"context"
	"testing"

	"github.com/krobus00/bot-service/internal/entity"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGateway_SubmitAndConfirm(t *testing.T) {
	g := New()
	ctx := context.Background()
	params := entity.OrderParams{
		InstrumentID:  "BTC-USDT",
		ClientOrderID: "grid1",
		Side:          entity.OrderSideBuy,
		Type:          entity.OrderTypeLimit,
		Size:          decimal.NewFromInt(1),
		Price:         decimal.NewFromInt(100),
	}

	resp, err := g.Submit(ctx, params)
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, "paper-grid1", resp.OrderID)

	confirmed, err := g.Confirm(ctx, "BTC-USDT", "grid1")
	require.NoError(t, err)
	assert.True(t, confirmed.Success)
	assert.JSONEq(t, string(resp.Raw), string(confirmed.Raw))

	dup, err := g.Submit(ctx, params)
	require.NoError(t, err)
	assert.False(t, dup.Success)
}

func TestGateway_Rejects(t *testing.T) {
	g := New()
	ctx := context.Background()

	resp, err := g.Submit(ctx, entity.OrderParams{InstrumentID: "BTC-USDT", ClientOrderID: "x"})
	require.NoError(t, err)
	assert.False(t, resp.Success)

	missing, err := g.Confirm(ctx, "BTC-USDT", "x")
	require.NoError(t, err)
	assert.False(t, missing.Success)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = g.Submit(cancelled, entity.OrderParams{})
	assert.ErrorIs(t, err, context.Canceled)
}
