package datasource_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/krobus00/bot-service/internal/datasource"
	"github.com/krobus00/bot-service/internal/datasource/okx"
	"github.com/krobus00/bot-service/internal/entity"
	"github.com/krobus00/bot-service/internal/hub"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	logrustest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tradeFrame = `{"arg":{"channel":"trades","instId":"BTC-USDT"},"data":[{"instId":"BTC-USDT","tradeId":"1","px":"42000.5","sz":"0.1","side":"sell","ts":"1630048897897"}]}`

type fakeOKX struct {
	rejectLogin bool
	answerPing  bool
	preamble    []string

	connections atomic.Int32
	subscribes  atomic.Int32
	mu          sync.Mutex
	conns       []*websocket.Conn
}

func (f *fakeOKX) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	f.connections.Add(1)
	f.mu.Lock()
	f.conns = append(f.conns, conn)
	f.mu.Unlock()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}

		msg := string(raw)
		switch {
		case msg == "ping":
			if f.answerPing {
				_ = conn.WriteMessage(websocket.TextMessage, []byte("pong"))
			}
		case strings.Contains(msg, `"op":"login"`):
			if f.rejectLogin {
				_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"error","code":"60009","msg":"Login failed."}`))
				continue
			}
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"login","code":"0","msg":""}`))
		case strings.Contains(msg, `"op":"subscribe"`):
			f.subscribes.Add(1)
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"subscribe","arg":{"channel":"trades","instId":"BTC-USDT"}}`))
			for _, frame := range f.preamble {
				_ = conn.WriteMessage(websocket.TextMessage, []byte(frame))
			}
			_ = conn.WriteMessage(websocket.TextMessage, []byte(tradeFrame))
		}
	}
}

func (f *fakeOKX) closeAll() {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, conn := range f.conns {
		_ = conn.Close()
	}
}

func startServer(t *testing.T, f *fakeOKX) string {
	t.Helper()

	server := httptest.NewServer(f)
	t.Cleanup(func() {
		f.closeAll()
		server.Close()
	})

	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func testConfig(url string) datasource.Config {
	return datasource.Config{
		URL:               url,
		PingInterval:      time.Hour,
		PongTimeout:       time.Hour,
		HandshakeTimeout:  time.Second,
		ReconnectFactor:   1,
		ReconnectMinDelay: 10 * time.Millisecond,
		ReconnectMaxDelay: 20 * time.Millisecond,
	}
}

func runConnector(t *testing.T, connector *datasource.Connector, subs []entity.Subscription) (context.CancelFunc, <-chan error) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- connector.Run(ctx, subs)
	}()

	t.Cleanup(cancel)
	return cancel, done
}

func TestConnector_StreamsParsedResponses(t *testing.T) {
	f := &fakeOKX{answerPing: true}
	url := startServer(t, f)

	h := hub.New(16)
	sub := okx.Trades{InstID: "BTC-USDT"}
	queue := h.Subscribe(sub)

	connector := datasource.NewConnector(testConfig(url), okx.NewProtocol(), okx.NewParserFactory(), h, nil)
	cancel, done := runConnector(t, connector, []entity.Subscription{sub})

	ctx, stop := context.WithTimeout(context.Background(), 2*time.Second)
	defer stop()
	resp, err := queue.Receive(ctx)
	require.NoError(t, err)

	trade, ok := resp.(okx.TradesResponse)
	require.True(t, ok)
	assert.True(t, decimal.RequireFromString("42000.5").Equal(trade.Price))
	assert.Equal(t, datasource.StateStreaming, connector.State())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("connector did not stop")
	}
	assert.Equal(t, datasource.StateStopped, connector.State())
}

func TestConnector_MalformedFrameKeepsSession(t *testing.T) {
	f := &fakeOKX{answerPing: true, preamble: []string{"garbage{", `{"event":"error","code":"1","msg":"boom"}`}}
	url := startServer(t, f)

	h := hub.New(16)
	sub := okx.Trades{InstID: "BTC-USDT"}
	queue := h.Subscribe(sub)

	connector := datasource.NewConnector(testConfig(url), okx.NewProtocol(), okx.NewParserFactory(), h, nil)
	runConnector(t, connector, []entity.Subscription{sub})

	ctx, stop := context.WithTimeout(context.Background(), 2*time.Second)
	defer stop()
	_, err := queue.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(1), f.connections.Load())
}

func TestConnector_ReconnectsWhenPongMissing(t *testing.T) {
	f := &fakeOKX{answerPing: false}
	url := startServer(t, f)

	cfg := testConfig(url)
	cfg.PingInterval = 20 * time.Millisecond
	cfg.PongTimeout = 20 * time.Millisecond

	connector := datasource.NewConnector(cfg, okx.NewProtocol(), okx.NewParserFactory(), hub.New(16), nil)
	runConnector(t, connector, []entity.Subscription{okx.Trades{InstID: "BTC-USDT"}})

	assert.Eventually(t, func() bool {
		return f.connections.Load() >= 2 && f.subscribes.Load() >= 2
	}, 3*time.Second, 10*time.Millisecond)
}

func TestConnector_PongKeepsSessionAlive(t *testing.T) {
	f := &fakeOKX{answerPing: true}
	url := startServer(t, f)

	cfg := testConfig(url)
	cfg.PingInterval = 10 * time.Millisecond
	cfg.PongTimeout = 30 * time.Millisecond

	connector := datasource.NewConnector(cfg, okx.NewProtocol(), okx.NewParserFactory(), hub.New(16), nil)
	runConnector(t, connector, []entity.Subscription{okx.Trades{InstID: "BTC-USDT"}})

	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, int32(1), f.connections.Load())
}

func TestConnector_LoginRejected(t *testing.T) {
	hook := logrustest.NewGlobal()
	defer hook.Reset()

	f := &fakeOKX{rejectLogin: true}
	url := startServer(t, f)

	credential := &entity.Credential{Name: "main", APIKey: "key", SecretKey: "secret", Passphrase: "pass"}
	connector := datasource.NewConnector(testConfig(url), okx.NewProtocol(), okx.NewParserFactory(), hub.New(16), credential)
	runConnector(t, connector, []entity.Subscription{okx.Trades{InstID: "BTC-USDT"}})

	assert.Eventually(t, func() bool { return f.connections.Load() >= 2 }, 3*time.Second, 10*time.Millisecond)
	assert.Equal(t, int32(0), f.subscribes.Load())

	found := false
	for _, entry := range hook.AllEntries() {
		if entry.Level == logrus.ErrorLevel && entry.Message == "data source login failed" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestConnector_ReconnectsAfterServerDrop(t *testing.T) {
	f := &fakeOKX{answerPing: true}
	url := startServer(t, f)

	h := hub.New(16)
	sub := okx.Trades{InstID: "BTC-USDT"}
	queue := h.Subscribe(sub)

	connector := datasource.NewConnector(testConfig(url), okx.NewProtocol(), okx.NewParserFactory(), h, nil)
	runConnector(t, connector, []entity.Subscription{sub})

	ctx, stop := context.WithTimeout(context.Background(), 3*time.Second)
	defer stop()

	_, err := queue.Receive(ctx)
	require.NoError(t, err)

	f.closeAll()

	_, err = queue.Receive(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, f.subscribes.Load(), int32(2))
}
