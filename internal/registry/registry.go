package registry

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"time"

	"github.com/krobus00/bot-service/internal/entity"
)

var (
	ErrDuplicateSubscription    = errors.New("subscription already registered")
	ErrDuplicateTimer           = errors.New("timer interval already registered")
	ErrIncomparableSubscription = errors.New("subscription must be a comparable value")
	ErrInvalidInterval          = errors.New("timer interval must be positive")
	ErrNilHandler               = errors.New("handler is nil")
)

type SubscriptionHandler func(ctx context.Context, resp entity.ResponseOfSub) error

type TimerHandler func(ctx context.Context) error

type SubscriptionEntry struct {
	Subscription entity.Subscription
	Name         string
	Handle       SubscriptionHandler
}

type TimerEntry struct {
	Interval time.Duration
	Name     string
	Fire     TimerHandler
}

// Builder collects handler declarations. The first invalid declaration is
// kept and reported by Build.
type Builder struct {
	subscriptions []SubscriptionEntry
	timers        []TimerEntry
	err           error
}

func NewBuilder() *Builder {
	return &Builder{}
}

// Inherit copies every declaration of parent into the builder. Declarations
// added afterwards that collide with inherited ones fail the build.
func (b *Builder) Inherit(parent *Registry) *Builder {
	if parent == nil {
		return b
	}

	for _, entry := range parent.subscriptions {
		b.Subscribe(entry.Subscription, entry.Name, entry.Handle)
	}
	for _, entry := range parent.timers {
		b.Every(entry.Interval, entry.Name, entry.Fire)
	}

	return b
}

func (b *Builder) Subscribe(sub entity.Subscription, name string, handle SubscriptionHandler) *Builder {
	if b.err != nil {
		return b
	}

	switch {
	case sub == nil || !reflect.TypeOf(sub).Comparable():
		b.err = fmt.Errorf("%w: %s", ErrIncomparableSubscription, name)
		return b
	case handle == nil:
		b.err = fmt.Errorf("%w: %s", ErrNilHandler, name)
		return b
	}

	for _, entry := range b.subscriptions {
		if entry.Subscription == sub {
			b.err = fmt.Errorf("%w: %s used by %s and %s", ErrDuplicateSubscription, Describe(sub), entry.Name, name)
			return b
		}
	}

	b.subscriptions = append(b.subscriptions, SubscriptionEntry{Subscription: sub, Name: name, Handle: handle})
	return b
}

func (b *Builder) Every(interval time.Duration, name string, fire TimerHandler) *Builder {
	if b.err != nil {
		return b
	}

	switch {
	case interval <= 0:
		b.err = fmt.Errorf("%w: %s", ErrInvalidInterval, name)
		return b
	case fire == nil:
		b.err = fmt.Errorf("%w: %s", ErrNilHandler, name)
		return b
	}

	for _, entry := range b.timers {
		if entry.Interval == interval {
			b.err = fmt.Errorf("%w: %s used by %s and %s", ErrDuplicateTimer, interval, entry.Name, name)
			return b
		}
	}

	b.timers = append(b.timers, TimerEntry{Interval: interval, Name: name, Fire: fire})
	return b
}

func (b *Builder) Build() (*Registry, error) {
	if b.err != nil {
		return nil, b.err
	}

	reg := &Registry{
		subscriptions: make([]SubscriptionEntry, len(b.subscriptions)),
		timers:        make([]TimerEntry, len(b.timers)),
	}
	copy(reg.subscriptions, b.subscriptions)
	copy(reg.timers, b.timers)
	sort.SliceStable(reg.timers, func(i, j int) bool {
		return reg.timers[i].Interval < reg.timers[j].Interval
	})

	return reg, nil
}

func (b *Builder) MustBuild() *Registry {
	reg, err := b.Build()
	if err != nil {
		panic(err)
	}

	return reg
}

// Registry is the frozen set of handlers of one strategy.
type Registry struct {
	subscriptions []SubscriptionEntry
	timers        []TimerEntry
}

func (r *Registry) Subscriptions() []SubscriptionEntry {
	if r == nil {
		return nil
	}

	out := make([]SubscriptionEntry, len(r.subscriptions))
	copy(out, r.subscriptions)
	return out
}

func (r *Registry) Timers() []TimerEntry {
	if r == nil {
		return nil
	}

	out := make([]TimerEntry, len(r.timers))
	copy(out, r.timers)
	return out
}

func (r *Registry) Lookup(sub entity.Subscription) (SubscriptionEntry, bool) {
	if r == nil {
		return SubscriptionEntry{}, false
	}

	for _, entry := range r.subscriptions {
		if entry.Subscription == sub {
			return entry, true
		}
	}

	return SubscriptionEntry{}, false
}

func Describe(sub entity.Subscription) string {
	if sub == nil {
		return "<nil>"
	}

	return fmt.Sprintf("%s:%s:%s", sub.Exchange(), sub.Channel(), sub.InstrumentID())
}
