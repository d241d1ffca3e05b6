package eventbus

import (
	"context"
	"errors"
	"sync"
)

const defaultQueueSize = 256

var (
	ErrQueueFull   = errors.New("event queue is full")
	ErrQueueClosed = errors.New("event queue is closed")
)

// Queue is a bounded in-process FIFO with a single consumer in mind.
type Queue[T any] struct {
	ch        chan T
	done      chan struct{}
	closeOnce sync.Once
}

func NewQueue[T any](size int) *Queue[T] {
	if size <= 0 {
		size = defaultQueueSize
	}

	return &Queue[T]{
		ch:   make(chan T, size),
		done: make(chan struct{}),
	}
}

// Publish enqueues without blocking.
func (q *Queue[T]) Publish(_ context.Context, v T) error {
	select {
	case <-q.done:
		return ErrQueueClosed
	default:
	}

	select {
	case q.ch <- v:
		return nil
	default:
		return ErrQueueFull
	}
}

// PublishWait blocks until there is room, the queue closes or ctx ends.
func (q *Queue[T]) PublishWait(ctx context.Context, v T) error {
	select {
	case <-q.done:
		return ErrQueueClosed
	default:
	}

	select {
	case <-q.done:
		return ErrQueueClosed
	case <-ctx.Done():
		return ctx.Err()
	case q.ch <- v:
		return nil
	}
}

func (q *Queue[T]) Receive(ctx context.Context) (T, error) {
	var zero T

	// drain what is already buffered before honoring close
	select {
	case v := <-q.ch:
		return v, nil
	default:
	}

	select {
	case v := <-q.ch:
		return v, nil
	case <-q.done:
		return zero, ErrQueueClosed
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

func (q *Queue[T]) Len() int {
	return len(q.ch)
}

func (q *Queue[T]) Close() {
	q.closeOnce.Do(func() {
		close(q.done)
	})
}
