package bot

import (
	"errors"
	"fmt"
)

var (
	ErrDuplicateBotID = errors.New("duplicate bot id")
	ErrBotNotFound    = errors.New("bot not found")
)

// Registry indexes bots by id. It is immutable after construction.
type Registry struct {
	bots  map[string]*Bot
	order []string
}

func NewRegistry(bots ...*Bot) (*Registry, error) {
	reg := &Registry{bots: make(map[string]*Bot, len(bots))}
	for _, b := range bots {
		if b.ID() == "" {
			return nil, fmt.Errorf("strategy %s has an empty bot id", b.StrategyName())
		}
		if _, ok := reg.bots[b.ID()]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateBotID, b.ID())
		}

		reg.bots[b.ID()] = b
		reg.order = append(reg.order, b.ID())
	}

	return reg, nil
}

func (r *Registry) Get(botID string) (*Bot, bool) {
	b, ok := r.bots[botID]
	return b, ok
}

func (r *Registry) Exists(botID string) bool {
	_, ok := r.bots[botID]
	return ok
}

// All returns bots in registration order.
func (r *Registry) All() []*Bot {
	out := make([]*Bot, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.bots[id])
	}

	return out
}

func (r *Registry) Len() int {
	return len(r.order)
}
