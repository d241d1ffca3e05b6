package tcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/krobus00/bot-service/internal/entity"
	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc"
)

const (
	DefaultAddr = ":9001"

	defaultIdleTimeout = 60 * time.Second
	defaultDialTimeout = 5 * time.Second

	StatusAccepted = "accepted"
	StatusRejected = "rejected"
)

type ControlPublisher interface {
	Publish(ctx context.Context, event entity.BotControlEvent) error
}

// Reply is written back for every decoded command, one JSON object per line.
type Reply struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Server accepts newline separated BotControlEvent JSON objects and feeds
// them to the control queue.
type Server struct {
	addr        string
	publisher   ControlPublisher
	idleTimeout time.Duration

	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
	closed   bool
}

func NewServer(addr string, publisher ControlPublisher) *Server {
	if addr == "" {
		addr = DefaultAddr
	}

	return &Server{
		addr:        addr,
		publisher:   publisher,
		idleTimeout: defaultIdleTimeout,
		conns:       make(map[net.Conn]struct{}),
	}
}

func (s *Server) Listen() error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen bot control %s: %w", s.addr, err)
	}

	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	logrus.WithField("addr", listener.Addr().String()).Info("bot control listener started")
	return nil
}

// Addr is only valid after Listen.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Run listens if needed and serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	if s.Addr() == nil {
		if err := s.Listen(); err != nil {
			return err
		}
	}

	wg := conc.NewWaitGroup()
	defer wg.Wait()

	stop := context.AfterFunc(ctx, s.close)
	defer stop()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("accept bot control connection: %w", err)
		}

		s.track(conn, true)
		wg.Go(func() {
			defer s.track(conn, false)
			s.serve(ctx, conn)
		})
	}
}

func (s *Server) serve(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	logger := logrus.WithField("remote_addr", conn.RemoteAddr().String())
	decoder := json.NewDecoder(conn)
	encoder := json.NewEncoder(conn)

	for {
		_ = conn.SetReadDeadline(time.Now().Add(s.idleTimeout))

		var event entity.BotControlEvent
		if err := decoder.Decode(&event); err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				logger.Debug("bot control connection idle, closing")
				return
			}
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				logger.WithError(err).Warn("closing bot control connection")
				_ = encoder.Encode(Reply{Status: StatusRejected, Error: "invalid json"})
			}
			return
		}

		reply := s.handle(ctx, event)
		logger.WithFields(logrus.Fields{
			"command": event.Command.String(),
			"bot_id":  event.TargetBotID(),
			"status":  reply.Status,
		}).Info("bot control command received")

		if err := encoder.Encode(reply); err != nil {
			logger.WithError(err).Warn("failed to reply to bot control client")
			return
		}
	}
}

func (s *Server) handle(ctx context.Context, event entity.BotControlEvent) Reply {
	if err := event.Validate(); err != nil {
		return Reply{Status: StatusRejected, Error: err.Error()}
	}

	if err := s.publisher.Publish(ctx, event); err != nil {
		return Reply{Status: StatusRejected, Error: err.Error()}
	}

	return Reply{Status: StatusAccepted}
}

func (s *Server) track(conn net.Conn, add bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if add {
		if s.closed {
			_ = conn.Close()
			return
		}
		s.conns[conn] = struct{}{}
		return
	}
	delete(s.conns, conn)
}

func (s *Server) close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	if s.listener != nil {
		_ = s.listener.Close()
	}
	for conn := range s.conns {
		_ = conn.Close()
	}
}

// SendCommand delivers one event to a bot control listener and waits for
// its reply.
func SendCommand(ctx context.Context, addr string, event entity.BotControlEvent) (*Reply, error) {
	dialer := net.Dialer{Timeout: defaultDialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial bot control %s: %w", addr, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	if err := json.NewEncoder(conn).Encode(event); err != nil {
		return nil, fmt.Errorf("send bot control command: %w", err)
	}

	var reply Reply
	if err := json.NewDecoder(conn).Decode(&reply); err != nil {
		return nil, fmt.Errorf("read bot control reply: %w", err)
	}

	return &reply, nil
}
