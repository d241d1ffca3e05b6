package okx

import (
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/krobus00/bot-service/internal/datasource"
	"github.com/krobus00/bot-service/internal/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProtocol_LoginRequest(t *testing.T) {
	p := NewProtocol()
	now := time.Unix(1700000000, 0)

	raw, err := p.LoginRequest(entity.Credential{APIKey: "key", SecretKey: "secret", Passphrase: "pass"}, now)
	require.NoError(t, err)

	var req struct {
		Op   string     `json:"op"`
		Args []loginArg `json:"args"`
	}
	require.NoError(t, json.Unmarshal(raw, &req))
	assert.Equal(t, "login", req.Op)
	require.Len(t, req.Args, 1)
	assert.Equal(t, "key", req.Args[0].APIKey)
	assert.Equal(t, "pass", req.Args[0].Passphrase)
	assert.Equal(t, "1700000000", req.Args[0].Timestamp)
	assert.Equal(t, Sign("secret", "1700000000GET/users/self/verify"), req.Args[0].Sign)
}

func TestProtocol_SubscribeRequest(t *testing.T) {
	p := NewProtocol()

	raw, err := p.SubscribeRequest([]entity.Subscription{
		Trades{InstID: "BTC-USDT"},
		Candle{Bar: "1m", InstID: "ETH-USDT"},
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"op":"subscribe","args":[{"channel":"trades","instId":"BTC-USDT"},{"channel":"candle1m","instId":"ETH-USDT"}]}`, string(raw))
}

func TestProtocol_Decode(t *testing.T) {
	p := NewProtocol()

	tests := []struct {
		name    string
		raw     string
		kind    datasource.FrameKind
		event   string
		channel string
		wantErr bool
	}{
		{name: "pong", raw: "pong", kind: datasource.FramePong},
		{name: "subscribe ack", raw: `{"event":"subscribe","arg":{"channel":"trades","instId":"BTC-USDT"}}`, kind: datasource.FrameEvent, event: "subscribe", channel: "trades"},
		{name: "error event", raw: `{"event":"error","code":"60012","msg":"Invalid request"}`, kind: datasource.FrameEvent, event: "error"},
		{name: "data", raw: `{"arg":{"channel":"trades","instId":"BTC-USDT"},"data":[{"px":"1"}]}`, kind: datasource.FrameData, channel: "trades"},
		{name: "garbage", raw: `not-json`, wantErr: true},
		{name: "empty object", raw: `{}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame, err := p.Decode([]byte(tt.raw))
			if tt.wantErr {
				assert.ErrorIs(t, err, datasource.ErrUnknownFrame)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.kind, frame.Kind)
			assert.Equal(t, tt.event, frame.Event)
			assert.Equal(t, tt.channel, frame.Channel)
		})
	}
}

func TestProtocol_CheckLoginAndSubscribe(t *testing.T) {
	p := NewProtocol()

	ok, _ := p.Decode([]byte(`{"event":"login","code":"0","msg":""}`))
	assert.NoError(t, p.CheckLogin(ok))

	rejected, _ := p.Decode([]byte(`{"event":"error","code":"60009","msg":"Login failed."}`))
	assert.ErrorIs(t, p.CheckLogin(rejected), datasource.ErrLoginRejected)

	ack, _ := p.Decode([]byte(`{"event":"subscribe","arg":{"channel":"trades"}}`))
	assert.NoError(t, p.CheckSubscribe(ack))
	assert.ErrorIs(t, p.CheckSubscribe(rejected), datasource.ErrSubscribeRejected)
}
