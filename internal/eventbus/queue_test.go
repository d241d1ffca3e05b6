package eventbus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueue_PublishReceive(t *testing.T) {
	q := NewQueue[int](2)
	ctx := context.Background()

	require.NoError(t, q.Publish(ctx, 1))
	require.NoError(t, q.Publish(ctx, 2))
	assert.ErrorIs(t, q.Publish(ctx, 3), ErrQueueFull)

	v, err := q.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	v, err = q.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, v)
}

func TestQueue_ReceiveHonorsContext(t *testing.T) {
	q := NewQueue[string](1)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := q.Receive(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestQueue_Close(t *testing.T) {
	q := NewQueue[string](1)
	ctx := context.Background()
	require.NoError(t, q.Publish(ctx, "pending"))

	q.Close()
	q.Close()

	v, err := q.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, "pending", v)

	_, err = q.Receive(ctx)
	assert.ErrorIs(t, err, ErrQueueClosed)
	assert.ErrorIs(t, q.Publish(ctx, "late"), ErrQueueClosed)
	assert.ErrorIs(t, q.PublishWait(ctx, "late"), ErrQueueClosed)
}

func TestQueue_PublishWaitBlocksUntilRoom(t *testing.T) {
	q := NewQueue[int](1)
	ctx := context.Background()
	require.NoError(t, q.Publish(ctx, 1))

	published := make(chan error, 1)
	go func() {
		published <- q.PublishWait(ctx, 2)
	}()

	select {
	case <-published:
		t.Fatal("publish should block while the queue is full")
	case <-time.After(20 * time.Millisecond):
	}

	_, err := q.Receive(ctx)
	require.NoError(t, err)
	require.NoError(t, <-published)
	assert.Equal(t, 1, q.Len())
}
