package datasource

import (
	"errors"
	"time"

	"github.com/krobus00/bot-service/internal/entity"
)

var (
	ErrCollection        = errors.New("collection error")
	ErrLoginRejected     = errors.New("login rejected")
	ErrSubscribeRejected = errors.New("subscribe rejected")
	ErrUnknownFrame      = errors.New("unknown frame")
)

type FrameKind int

const (
	FramePong FrameKind = iota
	FrameEvent
	FrameData
)

// Frame is one decoded websocket message.
type Frame struct {
	Kind    FrameKind
	Event   string
	Code    string
	Message string
	Channel string
	Raw     []byte
}

// Protocol adapts the connector to one exchange's websocket dialect.
type Protocol interface {
	Exchange() entity.ExchangeName
	LoginRequest(credential entity.Credential, now time.Time) ([]byte, error)
	SubscribeRequest(subs []entity.Subscription) ([]byte, error)
	PingMessage() []byte
	Decode(raw []byte) (Frame, error)
	CheckLogin(frame Frame) error
	CheckSubscribe(frame Frame) error
}
