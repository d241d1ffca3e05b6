package okx

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/krobus00/bot-service/internal/datasource"
	"github.com/krobus00/bot-service/internal/entity"
)

const (
	PublicURL  = "wss://ws.okx.com:8443/ws/v5/public"
	PrivateURL = "wss://ws.okx.com:8443/ws/v5/private"

	loginPath = "/users/self/verify"
)

var pingMessage = []byte("ping")

type request struct {
	Op   string `json:"op"`
	Args []any  `json:"args"`
}

type loginArg struct {
	APIKey     string `json:"apiKey"`
	Passphrase string `json:"passphrase"`
	Timestamp  string `json:"timestamp"`
	Sign       string `json:"sign"`
}

type channelArg struct {
	Channel string `json:"channel"`
	InstID  string `json:"instId,omitempty"`
}

type message struct {
	Event string          `json:"event"`
	Code  string          `json:"code"`
	Msg   string          `json:"msg"`
	Arg   channelArg      `json:"arg"`
	Data  json.RawMessage `json:"data"`
}

type Protocol struct{}

func NewProtocol() *Protocol {
	return &Protocol{}
}

func (p *Protocol) Exchange() entity.ExchangeName {
	return entity.ExchangeOKX
}

func (p *Protocol) LoginRequest(credential entity.Credential, now time.Time) ([]byte, error) {
	timestamp := strconv.FormatInt(now.Unix(), 10)

	return json.Marshal(request{
		Op: "login",
		Args: []any{loginArg{
			APIKey:     credential.APIKey,
			Passphrase: credential.Passphrase,
			Timestamp:  timestamp,
			Sign:       Sign(credential.SecretKey, timestamp+"GET"+loginPath),
		}},
	})
}

func (p *Protocol) SubscribeRequest(subs []entity.Subscription) ([]byte, error) {
	args := make([]any, 0, len(subs))
	for _, sub := range subs {
		if sub.Exchange() != entity.ExchangeOKX {
			return nil, fmt.Errorf("subscription for %s sent to okx", sub.Exchange())
		}
		args = append(args, channelArg{Channel: sub.Channel(), InstID: sub.InstrumentID()})
	}

	return json.Marshal(request{Op: "subscribe", Args: args})
}

func (p *Protocol) PingMessage() []byte {
	return pingMessage
}

func (p *Protocol) Decode(raw []byte) (datasource.Frame, error) {
	if bytes.Equal(bytes.TrimSpace(raw), []byte("pong")) {
		return datasource.Frame{Kind: datasource.FramePong, Raw: raw}, nil
	}

	var msg message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return datasource.Frame{}, fmt.Errorf("%w: %v", datasource.ErrUnknownFrame, err)
	}

	switch {
	case msg.Event != "":
		return datasource.Frame{
			Kind:    datasource.FrameEvent,
			Event:   msg.Event,
			Code:    msg.Code,
			Message: msg.Msg,
			Channel: msg.Arg.Channel,
			Raw:     raw,
		}, nil
	case msg.Arg.Channel != "" && len(msg.Data) > 0:
		return datasource.Frame{
			Kind:    datasource.FrameData,
			Channel: msg.Arg.Channel,
			Raw:     raw,
		}, nil
	default:
		return datasource.Frame{}, fmt.Errorf("%w: %s", datasource.ErrUnknownFrame, string(raw))
	}
}

func (p *Protocol) CheckLogin(frame datasource.Frame) error {
	if frame.Kind == datasource.FrameEvent && frame.Event == "login" && frame.Code == "0" {
		return nil
	}

	return fmt.Errorf("%w: code=%s msg=%s", datasource.ErrLoginRejected, frame.Code, frame.Message)
}

func (p *Protocol) CheckSubscribe(frame datasource.Frame) error {
	if frame.Kind == datasource.FrameEvent && frame.Event == "subscribe" {
		return nil
	}

	return fmt.Errorf("%w: event=%s code=%s msg=%s", datasource.ErrSubscribeRejected, frame.Event, frame.Code, frame.Message)
}

// Sign is the OKX HMAC-SHA256 signature, base64 encoded.
func Sign(secret, payload string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
