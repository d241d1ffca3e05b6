package eventbus

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/krobus00/bot-service/internal/constant"
	"github.com/krobus00/bot-service/internal/entity"
	"github.com/krobus00/bot-service/internal/util"
	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

const (
	defaultHandlerTimeout = 5 * time.Second
	defaultStreamMaxAge   = 24 * time.Hour
)

var ErrNotSubscribed = errors.New("jetstream queue is not subscribed")

// StreamSpec names the stream, subject and durable queue group one
// JetstreamQueue works on.
type StreamSpec struct {
	Stream     string
	Subjects   []string
	Subject    string
	QueueName  string
	QueueGroup string
	Kind       string
}

var (
	OrderStream = StreamSpec{
		Stream:     constant.OrderStreamName,
		Subjects:   []string{constant.OrderStreamSubjectAll},
		Subject:    constant.OrderStreamSubjectCreate,
		QueueName:  constant.OrderQueueName,
		QueueGroup: constant.OrderQueueGroup,
		Kind:       constant.EventKindOrderCreation,
	}
	ControlStream = StreamSpec{
		Stream:     constant.ControlStreamName,
		Subjects:   []string{constant.ControlStreamSubjectAll},
		Subject:    constant.ControlStreamSubjectCommand,
		QueueName:  constant.ControlQueueName,
		QueueGroup: constant.ControlQueueGroup,
		Kind:       constant.EventKindBotControl,
	}
)

// JetstreamQueue carries T between processes through a work-queue stream.
// Publish writes to the stream; once subscribed, messages are decoded into
// a local Queue and acknowledged when accepted there.
type JetstreamQueue[T any] struct {
	js             nats.JetStreamContext
	spec           StreamSpec
	handlerTimeout time.Duration
	maxRetries     int
	local          *Queue[T]
	subscribed     atomic.Bool
}

func NewJetstreamQueue[T any](js nats.JetStreamContext, spec StreamSpec, size int, handlerTimeout time.Duration, maxRetries int) *JetstreamQueue[T] {
	if handlerTimeout <= 0 {
		handlerTimeout = defaultHandlerTimeout
	}

	return &JetstreamQueue[T]{
		js:             js,
		spec:           spec,
		handlerTimeout: handlerTimeout,
		maxRetries:     maxRetries,
		local:          NewQueue[T](size),
	}
}

func NewJetstreamOrderQueue(js nats.JetStreamContext, size int, handlerTimeout time.Duration, maxRetries int) *JetstreamQueue[entity.OrderCreationEvent] {
	return NewJetstreamQueue[entity.OrderCreationEvent](js, OrderStream, size, handlerTimeout, maxRetries)
}

func NewJetstreamControlQueue(js nats.JetStreamContext, size int, handlerTimeout time.Duration, maxRetries int) *JetstreamQueue[entity.BotControlEvent] {
	return NewJetstreamQueue[entity.BotControlEvent](js, ControlStream, size, handlerTimeout, maxRetries)
}

func (q *JetstreamQueue[T]) JetstreamEventInit(ctx context.Context) error {
	streamConfig := &nats.StreamConfig{
		Name:      q.spec.Stream,
		Subjects:  q.spec.Subjects,
		Retention: nats.WorkQueuePolicy,
		Storage:   nats.FileStorage,
		MaxAge:    defaultStreamMaxAge,
	}

	stream, err := q.js.StreamInfo(q.spec.Stream, nats.Context(ctx))
	if err != nil && !errors.Is(err, nats.ErrStreamNotFound) {
		logrus.Error(err)
		return err
	}

	if stream == nil {
		logrus.Infof("creating stream: %s", q.spec.Stream)
		_, err = q.js.AddStream(streamConfig, nats.Context(ctx))
		return err
	}

	logrus.Infof("updating stream: %s", q.spec.Stream)
	_, err = q.js.UpdateStream(streamConfig, nats.Context(ctx))
	if err != nil {
		logrus.Error(err)
		return err
	}

	return nil
}

func (q *JetstreamQueue[T]) JetstreamEventSubscribe(ctx context.Context) error {
	err := q.JetstreamEventInit(ctx)
	if err != nil {
		logrus.Error(err)
		return err
	}

	_, err = q.js.QueueSubscribe(
		q.spec.Subject,
		q.spec.QueueName,
		func(msg *nats.Msg) {
			err := util.ProcessWithTimeout(ctx, q.handlerTimeout, msg, q.handleEvent)
			switch {
			case errors.Is(err, errMalformedEvent):
				logrus.Errorf("dropping malformed message: %v", err)
				if termErr := msg.Term(); termErr != nil {
					logrus.Errorf("failed to terminate message: %v", termErr)
				}
				return
			case err != nil:
				logrus.Errorf("error processing message: %v", err)
				if nakErr := msg.Nak(); nakErr != nil {
					logrus.Errorf("failed to nak message: %v", nakErr)
				}
				return
			}

			if err := msg.Ack(); err != nil {
				logrus.Errorf("failed to acknowledge message: %v", err)
			}
		},
		nats.ManualAck(),
		nats.Durable(q.spec.QueueGroup),
		nats.MaxDeliver(q.maxDeliver()),
	)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", q.spec.Subject, err)
	}

	q.subscribed.Store(true)
	return nil
}

var errMalformedEvent = errors.New("malformed event")

func (q *JetstreamQueue[T]) handleEvent(ctx context.Context, msg *nats.Msg) error {
	event, err := decodeEvent(msg.Data)
	if err != nil {
		return fmt.Errorf("%w: %v", errMalformedEvent, err)
	}
	if event.Kind != q.spec.Kind {
		return fmt.Errorf("%w: unexpected kind %q", errMalformedEvent, event.Kind)
	}

	var v T
	if err := event.Decode(&v); err != nil {
		return fmt.Errorf("%w: %v", errMalformedEvent, err)
	}

	return q.local.PublishWait(ctx, v)
}

func (q *JetstreamQueue[T]) maxDeliver() int {
	if q.maxRetries <= 0 {
		return -1
	}
	return q.maxRetries + 1
}

func (q *JetstreamQueue[T]) Publish(ctx context.Context, v T) error {
	event, err := entity.NewEvent(uuid.NewString(), q.spec.Kind, v)
	if err != nil {
		return err
	}

	return util.PublishEvent(ctx, q.js, q.spec.Subject, event)
}

func (q *JetstreamQueue[T]) Receive(ctx context.Context) (T, error) {
	if !q.subscribed.Load() {
		var zero T
		return zero, ErrNotSubscribed
	}

	return q.local.Receive(ctx)
}

// Close stops local delivery. Unacked messages are redelivered to another
// member of the queue group.
func (q *JetstreamQueue[T]) Close() {
	q.local.Close()
}

func decodeEvent(data []byte) (entity.Event, error) {
	var event entity.Event
	if err := json.Unmarshal(data, &event); err != nil {
		return entity.Event{}, err
	}

	return event, nil
}
