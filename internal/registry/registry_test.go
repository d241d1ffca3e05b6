package registry

import (
	"context"
	"testing"
	"time"

	"github.com/krobus00/bot-service/internal/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type tradeSub struct {
	inst string
}

func (s tradeSub) Exchange() entity.ExchangeName { return entity.ExchangeOKX }
func (s tradeSub) Channel() string               { return "trades" }
func (s tradeSub) InstrumentID() string          { return s.inst }

type sliceSub struct {
	insts []string
}

func (s sliceSub) Exchange() entity.ExchangeName { return entity.ExchangeOKX }
func (s sliceSub) Channel() string               { return "trades" }
func (s sliceSub) InstrumentID() string          { return "" }

func noopSub(context.Context, entity.ResponseOfSub) error { return nil }
func noopTimer(context.Context) error                     { return nil }

func TestBuilder_Build(t *testing.T) {
	reg, err := NewBuilder().
		Subscribe(tradeSub{inst: "BTC-USDT"}, "on_btc", noopSub).
		Subscribe(tradeSub{inst: "ETH-USDT"}, "on_eth", noopSub).
		Every(time.Minute, "minutely", noopTimer).
		Every(time.Second, "secondly", noopTimer).
		Build()
	require.NoError(t, err)

	assert.Len(t, reg.Subscriptions(), 2)
	timers := reg.Timers()
	require.Len(t, timers, 2)
	assert.Equal(t, time.Second, timers[0].Interval)

	entry, ok := reg.Lookup(tradeSub{inst: "ETH-USDT"})
	require.True(t, ok)
	assert.Equal(t, "on_eth", entry.Name)

	_, ok = reg.Lookup(tradeSub{inst: "SOL-USDT"})
	assert.False(t, ok)
}

func TestBuilder_DuplicateSubscription(t *testing.T) {
	_, err := NewBuilder().
		Subscribe(tradeSub{inst: "BTC-USDT"}, "first", noopSub).
		Subscribe(tradeSub{inst: "BTC-USDT"}, "second", noopSub).
		Build()
	assert.ErrorIs(t, err, ErrDuplicateSubscription)
}

func TestBuilder_DuplicateTimer(t *testing.T) {
	_, err := NewBuilder().
		Every(time.Second, "first", noopTimer).
		Every(time.Second, "second", noopTimer).
		Build()
	assert.ErrorIs(t, err, ErrDuplicateTimer)
}

func TestBuilder_InvalidDeclarations(t *testing.T) {
	tests := []struct {
		name    string
		builder *Builder
		wantErr error
	}{
		{
			name:    "zero interval",
			builder: NewBuilder().Every(0, "zero", noopTimer),
			wantErr: ErrInvalidInterval,
		},
		{
			name:    "nil timer handler",
			builder: NewBuilder().Every(time.Second, "nil", nil),
			wantErr: ErrNilHandler,
		},
		{
			name:    "nil subscription handler",
			builder: NewBuilder().Subscribe(tradeSub{inst: "BTC-USDT"}, "nil", nil),
			wantErr: ErrNilHandler,
		},
		{
			name:    "incomparable subscription",
			builder: NewBuilder().Subscribe(sliceSub{insts: []string{"BTC-USDT"}}, "slice", noopSub),
			wantErr: ErrIncomparableSubscription,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.builder.Build()
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestBuilder_Inherit(t *testing.T) {
	base := NewBuilder().
		Subscribe(tradeSub{inst: "BTC-USDT"}, "base_btc", noopSub).
		Every(time.Minute, "heartbeat", noopTimer).
		MustBuild()

	derived, err := NewBuilder().
		Inherit(base).
		Subscribe(tradeSub{inst: "ETH-USDT"}, "derived_eth", noopSub).
		Build()
	require.NoError(t, err)
	assert.Len(t, derived.Subscriptions(), 2)
	assert.Len(t, derived.Timers(), 1)

	_, err = NewBuilder().
		Inherit(base).
		Every(time.Minute, "override", noopTimer).
		Build()
	assert.ErrorIs(t, err, ErrDuplicateTimer)

	_, err = NewBuilder().
		Inherit(base).
		Subscribe(tradeSub{inst: "BTC-USDT"}, "override", noopSub).
		Build()
	assert.ErrorIs(t, err, ErrDuplicateSubscription)

	assert.Len(t, base.Subscriptions(), 1, "parent must stay untouched")
}

func TestRegistry_Frozen(t *testing.T) {
	builder := NewBuilder().Subscribe(tradeSub{inst: "BTC-USDT"}, "btc", noopSub)
	reg := builder.MustBuild()

	builder.Subscribe(tradeSub{inst: "ETH-USDT"}, "eth", noopSub)
	assert.Len(t, reg.Subscriptions(), 1)

	subs := reg.Subscriptions()
	subs[0].Name = "mutated"
	entry, _ := reg.Lookup(tradeSub{inst: "BTC-USDT"})
	assert.Equal(t, "btc", entry.Name)
}
