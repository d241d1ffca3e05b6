package order

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/krobus00/bot-service/internal/entity"
	"github.com/krobus00/bot-service/internal/eventbus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestManager_CreateOrderEnqueues(t *testing.T) {
	queue := eventbus.NewQueue[entity.OrderCreationEvent](1)
	manager := NewManager(queue, newMemoryStore(), 0)

	require.NoError(t, manager.CreateOrder(context.Background(), testEvent("u-1")))
	assert.ErrorIs(t, manager.CreateOrder(context.Background(), testEvent("u-2")), eventbus.ErrQueueFull)

	event, err := queue.Receive(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "u-1", event.UniqID)
	assert.False(t, event.CreatedAt.IsZero())
}

func TestManager_QueryOrder(t *testing.T) {
	store := newMemoryStore()
	manager := NewManager(eventbus.NewQueue[entity.OrderCreationEvent](1), store, 0)

	_, err := manager.QueryOrder(context.Background(), "u-1")
	assert.ErrorIs(t, err, entity.ErrOrderResultNotFound)

	require.NoError(t, store.Save(context.Background(), entity.OrderResult{UniqID: "u-1", Status: entity.OrderStatusSuccess}))
	result, err := manager.QueryOrder(context.Background(), "u-1")
	require.NoError(t, err)
	assert.Equal(t, entity.OrderStatusSuccess, result.Status)
}

func TestManager_QueryOrderAsync(t *testing.T) {
	store := newMemoryStore()
	manager := NewManager(eventbus.NewQueue[entity.OrderCreationEvent](1), store, 5*time.Millisecond)

	go func() {
		time.Sleep(30 * time.Millisecond)
		_ = store.Save(context.Background(), entity.OrderResult{UniqID: "u-1", Status: entity.OrderStatusFailed})
	}()

	result, err := manager.QueryOrderAsync(context.Background(), "u-1", time.Second)
	require.NoError(t, err)
	assert.Equal(t, entity.OrderStatusFailed, result.Status)
}

func TestManager_QueryOrderAsyncTimeout(t *testing.T) {
	manager := NewManager(eventbus.NewQueue[entity.OrderCreationEvent](1), newMemoryStore(), 5*time.Millisecond)

	started := time.Now()
	_, err := manager.QueryOrderAsync(context.Background(), "ghost", 50*time.Millisecond)
	assert.ErrorIs(t, err, entity.ErrOrderResultNotFound)
	assert.Less(t, time.Since(started), time.Second)
}

func TestManager_OrderRoundTrip(t *testing.T) {
	blockUntilDeadline := func(args mock.Arguments) {
		<-args.Get(0).(context.Context).Done()
	}

	tests := []struct {
		name       string
		mockFn     func(gateway *GatewayMock)
		wantStatus entity.OrderStatus
		wantOrder  string
	}{
		{
			name: "exchange accepts the order",
			mockFn: func(gateway *GatewayMock) {
				gateway.On("Submit", mock.Anything, mock.Anything).
					Return(&entity.GatewayResponse{Success: true, Code: "0", OrderID: "OKX-1"}, nil).Once()
				gateway.On("Confirm", mock.Anything, "BTC-USDT", "clu-1").
					Return(&entity.GatewayResponse{Success: true, Code: "0", OrderID: "OKX-1"}, nil).Once()
			},
			wantStatus: entity.OrderStatusSuccess,
			wantOrder:  "OKX-1",
		},
		{
			name: "submit returns an error",
			mockFn: func(gateway *GatewayMock) {
				gateway.On("Submit", mock.Anything, mock.Anything).
					Return(nil, errors.New("connection refused")).Once()
				gateway.On("Confirm", mock.Anything, "BTC-USDT", "clu-1").
					Return(&entity.GatewayResponse{Code: "404", Message: "order not found"}, nil).Once()
			},
			wantStatus: entity.OrderStatusFailed,
		},
		{
			name: "submit blocks past its timeout",
			mockFn: func(gateway *GatewayMock) {
				gateway.On("Submit", mock.Anything, mock.Anything).
					Run(blockUntilDeadline).
					Return(nil, context.DeadlineExceeded).Once()
				gateway.On("Confirm", mock.Anything, "BTC-USDT", "clu-1").
					Return(&entity.GatewayResponse{Code: "404", Message: "order not found"}, nil).Once()
			},
			wantStatus: entity.OrderStatusFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gateway := new(GatewayMock)
			tt.mockFn(gateway)

			queue := eventbus.NewQueue[entity.OrderCreationEvent](8)
			store := newMemoryStore()
			executor := NewExecutor(queue, store)
			executor.RegisterHandlerFactory(entity.ExchangeOKX, func(entity.Credential) (Handler, error) {
				return NewGatewayHandler(gateway, 50*time.Millisecond, 50*time.Millisecond), nil
			})

			ctx, cancel := context.WithCancel(context.Background())
			done := make(chan error, 1)
			go func() {
				done <- executor.Run(ctx)
			}()

			manager := NewManager(queue, store, 5*time.Millisecond)
			require.NoError(t, manager.CreateOrder(ctx, testEvent("u-1")))

			result, err := manager.QueryOrderAsync(ctx, "u-1", time.Second)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, result.Status)
			assert.Equal(t, tt.wantOrder, result.OrderID)
			assert.Equal(t, 1, store.saveCount())

			cancel()
			assert.NoError(t, <-done)
			gateway.AssertExpectations(t)
		})
	}
}
