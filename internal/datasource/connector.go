package datasource

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/krobus00/bot-service/internal/entity"
	"github.com/krobus00/bot-service/internal/util"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const (
	defaultPingInterval      = 20 * time.Second
	defaultPongTimeout       = 20 * time.Second
	defaultHandshakeTimeout  = 10 * time.Second
	defaultReconnectFactor   = 2.0
	defaultReconnectMinDelay = 500 * time.Millisecond
	defaultReconnectMaxDelay = 30 * time.Second
)

type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateLoggedIn
	StateSubscribed
	StateStreaming
	StateReconnecting
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateLoggedIn:
		return "logged_in"
	case StateSubscribed:
		return "subscribed"
	case StateStreaming:
		return "streaming"
	case StateReconnecting:
		return "reconnecting"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

type Publisher interface {
	Publish(resp entity.ResponseOfSub) int
}

type Config struct {
	URL               string
	PingInterval      time.Duration
	PongTimeout       time.Duration
	HandshakeTimeout  time.Duration
	ReconnectFactor   float64
	ReconnectMinDelay time.Duration
	ReconnectMaxDelay time.Duration
}

func (c Config) withDefaults() Config {
	if c.PingInterval <= 0 {
		c.PingInterval = defaultPingInterval
	}
	if c.PongTimeout <= 0 {
		c.PongTimeout = defaultPongTimeout
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = defaultHandshakeTimeout
	}
	if c.ReconnectFactor < 1 {
		c.ReconnectFactor = defaultReconnectFactor
	}
	if c.ReconnectMinDelay <= 0 {
		c.ReconnectMinDelay = defaultReconnectMinDelay
	}
	if c.ReconnectMaxDelay < c.ReconnectMinDelay {
		c.ReconnectMaxDelay = defaultReconnectMaxDelay
	}
	if c.ReconnectMaxDelay < c.ReconnectMinDelay {
		c.ReconnectMaxDelay = c.ReconnectMinDelay
	}

	return c
}

// Connector keeps one websocket session with an exchange alive, re-logging
// in and re-subscribing after every reconnect, and publishes parsed
// responses to the hub.
type Connector struct {
	cfg        Config
	protocol   Protocol
	parsers    *ParserFactory
	publisher  Publisher
	credential *entity.Credential
	dialer     *websocket.Dialer
	state      atomic.Int32
	sessions   atomic.Int64
}

func NewConnector(cfg Config, protocol Protocol, parsers *ParserFactory, publisher Publisher, credential *entity.Credential) *Connector {
	cfg = cfg.withDefaults()

	return &Connector{
		cfg:        cfg,
		protocol:   protocol,
		parsers:    parsers,
		publisher:  publisher,
		credential: credential,
		dialer: &websocket.Dialer{
			Proxy:            websocket.DefaultDialer.Proxy,
			HandshakeTimeout: cfg.HandshakeTimeout,
		},
	}
}

func (c *Connector) State() State {
	return State(c.state.Load())
}

// Sessions counts established websocket connections.
func (c *Connector) Sessions() int64 {
	return c.sessions.Load()
}

func (c *Connector) setState(state State) {
	c.state.Store(int32(state))
}

func (c *Connector) logger() *logrus.Entry {
	return logrus.WithFields(logrus.Fields{
		"exchange": c.protocol.Exchange(),
		"url":      c.cfg.URL,
	})
}

// Run loops until ctx is cancelled. Any session failure leads to a jittered
// reconnect; it never returns an error for transport problems.
func (c *Connector) Run(ctx context.Context, subs []entity.Subscription) error {
	defer c.setState(StateStopped)

	if len(subs) == 0 {
		c.logger().Warn("no subscriptions, data source idle")
		<-ctx.Done()
		return nil
	}

	rng := util.NewRand()
	attempt := 0

	for {
		if ctx.Err() != nil {
			return nil
		}

		streamed, err := c.session(ctx, subs)
		if ctx.Err() != nil {
			return nil
		}
		if streamed {
			attempt = 0
		}

		wait := util.BackoffWithJitter(attempt, c.cfg.ReconnectFactor, c.cfg.ReconnectMinDelay, c.cfg.ReconnectMaxDelay, rng)
		attempt++
		c.setState(StateReconnecting)
		c.logger().WithFields(logrus.Fields{
			"retry_in": wait.String(),
			"attempt":  attempt,
		}).WithError(err).Warn("data source session ended, reconnecting")

		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return nil
		}
	}
}

// session runs connect, login, subscribe and stream once. streamed reports
// whether the session reached the streaming state.
func (c *Connector) session(ctx context.Context, subs []entity.Subscription) (streamed bool, err error) {
	c.setState(StateConnecting)
	c.logger().Info("connecting data source")

	dialCtx, cancel := context.WithTimeout(ctx, c.cfg.HandshakeTimeout)
	conn, _, err := c.dialer.DialContext(dialCtx, c.cfg.URL, nil)
	cancel()
	if err != nil {
		return false, fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()
	c.sessions.Add(1)

	if c.credential != nil && !c.credential.IsZero() {
		request, err := c.protocol.LoginRequest(*c.credential, time.Now())
		if err != nil {
			return false, fmt.Errorf("build login request: %w", err)
		}

		frame, err := c.handshake(conn, request)
		if err != nil {
			return false, fmt.Errorf("login: %w", err)
		}
		if err := c.protocol.CheckLogin(frame); err != nil {
			c.logger().WithFields(logrus.Fields{
				"code": frame.Code,
				"msg":  frame.Message,
			}).Error("data source login failed")
			return false, err
		}

		c.setState(StateLoggedIn)
		c.logger().Info("data source logged in")
	}

	request, err := c.protocol.SubscribeRequest(subs)
	if err != nil {
		return false, fmt.Errorf("build subscribe request: %w", err)
	}

	frame, err := c.handshake(conn, request)
	if err != nil {
		return false, fmt.Errorf("subscribe: %w", err)
	}
	if err := c.protocol.CheckSubscribe(frame); err != nil {
		c.logger().WithFields(logrus.Fields{
			"event": frame.Event,
			"code":  frame.Code,
			"msg":   frame.Message,
		}).Error("data source subscribe failed")
		return false, err
	}

	c.setState(StateSubscribed)
	c.logger().WithField("subscriptions", len(subs)).Info("data source subscribed")

	if err := conn.SetReadDeadline(time.Time{}); err != nil {
		return false, err
	}

	c.setState(StateStreaming)
	return true, c.stream(ctx, conn)
}

// handshake writes request and decodes the first reply.
func (c *Connector) handshake(conn *websocket.Conn, request []byte) (Frame, error) {
	if err := conn.WriteMessage(websocket.TextMessage, request); err != nil {
		return Frame{}, err
	}

	if err := conn.SetReadDeadline(time.Now().Add(c.cfg.HandshakeTimeout)); err != nil {
		return Frame{}, err
	}

	_, raw, err := conn.ReadMessage()
	if err != nil {
		return Frame{}, err
	}

	return c.protocol.Decode(raw)
}

func (c *Connector) stream(ctx context.Context, conn *websocket.Conn) error {
	group, groupCtx := errgroup.WithContext(ctx)

	var (
		pongReceived atomic.Bool
		writeMu      sync.Mutex
	)

	group.Go(func() error {
		<-groupCtx.Done()

		writeMu.Lock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		writeMu.Unlock()

		_ = conn.Close()
		return nil
	})

	group.Go(func() error {
		return c.keepalive(groupCtx, conn, &writeMu, &pongReceived)
	})

	group.Go(func() error {
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				if groupCtx.Err() != nil {
					return nil
				}
				return fmt.Errorf("read: %w", err)
			}

			c.dispatch(raw, &pongReceived)
		}
	})

	return group.Wait()
}

// keepalive sends the text ping every interval and fails the session when
// no pong arrived within the pong timeout.
func (c *Connector) keepalive(ctx context.Context, conn *websocket.Conn, writeMu *sync.Mutex, pongReceived *atomic.Bool) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(c.cfg.PingInterval):
		}

		pongReceived.Store(false)

		writeMu.Lock()
		err := conn.WriteMessage(websocket.TextMessage, c.protocol.PingMessage())
		writeMu.Unlock()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("ping: %w", err)
		}
		c.logger().Debug("ping sent")

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(c.cfg.PongTimeout):
		}

		if !pongReceived.Load() {
			return fmt.Errorf("%w: no pong within %s", ErrCollection, c.cfg.PongTimeout)
		}
	}
}

func (c *Connector) dispatch(raw []byte, pongReceived *atomic.Bool) {
	frame, err := c.protocol.Decode(raw)
	if err != nil {
		c.logger().WithError(err).WithField("frame", string(raw)).Warn("failed to decode frame")
		return
	}

	switch frame.Kind {
	case FramePong:
		pongReceived.Store(true)
		c.logger().Debug("pong received")
	case FrameEvent:
		logger := c.logger().WithFields(logrus.Fields{
			"event": frame.Event,
			"code":  frame.Code,
			"msg":   frame.Message,
		})
		if frame.Event == "error" {
			logger.Error("data source error event")
			return
		}
		logger.Info("data source event")
	case FrameData:
		parser, err := c.parsers.Get(frame.Channel)
		if err != nil {
			c.logger().WithError(err).Warn("dropping frame without parser")
			return
		}

		responses, err := parser.Parse(frame.Raw)
		if err != nil {
			c.logger().WithError(err).WithField("channel", frame.Channel).Warn("failed to parse frame")
			return
		}

		for _, resp := range responses {
			c.publisher.Publish(resp)
		}
	}
}
