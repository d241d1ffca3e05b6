package entity

import (
	"context"

	"github.com/goccy/go-json"
)

type Publisher interface {
	JetstreamEventInit(ctx context.Context) error
}

type Subscriber interface {
	JetstreamEventSubscribe(ctx context.Context) error
}

// Event is the envelope used when a payload leaves the process.
type Event struct {
	ID         string          `json:"id"`
	Kind       string          `json:"kind"`
	RetryCount int             `json:"retry"`
	Data       json.RawMessage `json:"data"`
}

func NewEvent(id, kind string, data any) (Event, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return Event{}, err
	}

	return Event{ID: id, Kind: kind, Data: payload}, nil
}

func (e Event) Decode(v any) error {
	return json.Unmarshal(e.Data, v)
}
