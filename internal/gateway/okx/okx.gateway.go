package okx

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/goccy/go-json"
	"github.com/krobus00/bot-service/internal/datasource/okx"
	"github.com/krobus00/bot-service/internal/entity"
	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL = "https://www.okx.com"

	orderPath = "/api/v5/trade/order"

	defaultRateLimit  = 30
	defaultRateBurst  = 1
	defaultTimeout    = 10 * time.Second
	defaultRetryCount = 2
	successCode       = "0"
)

type Config struct {
	BaseURL    string
	Simulated  bool
	RateLimit  float64
	RateBurst  int
	Timeout    time.Duration
	RetryCount int
}

type placeOrderRequest struct {
	InstID  string `json:"instId"`
	TdMode  string `json:"tdMode"`
	ClOrdID string `json:"clOrdId,omitempty"`
	Side    string `json:"side"`
	OrdType string `json:"ordType"`
	Sz      string `json:"sz"`
	Px      string `json:"px,omitempty"`
}

type apiResponse struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
	Data []struct {
		OrdID   string `json:"ordId"`
		ClOrdID string `json:"clOrdId"`
		SCode   string `json:"sCode"`
		SMsg    string `json:"sMsg"`
		State   string `json:"state"`
	} `json:"data"`
}

// Gateway talks to the OKX v5 REST API with one credential.
type Gateway struct {
	client     *resty.Client
	limiter    *rate.Limiter
	credential entity.Credential
	now        func() time.Time
}

func New(cfg Config, credential entity.Credential) *Gateway {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = defaultRateLimit
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = defaultRateBurst
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.RetryCount < 0 {
		cfg.RetryCount = defaultRetryCount
	}

	client := resty.New().
		SetBaseURL(strings.TrimSuffix(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(200 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		// only reads are retried; a resubmitted order could double fill
		AddRetryCondition(func(resp *resty.Response, err error) bool {
			if resp == nil || resp.Request == nil || resp.Request.Method != http.MethodGet {
				return false
			}
			return err != nil || resp.StatusCode() == http.StatusTooManyRequests || resp.StatusCode() >= http.StatusInternalServerError
		})
	if cfg.Simulated {
		client.SetHeader("x-simulated-trading", "1")
	}

	return &Gateway{
		client:     client,
		limiter:    rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst),
		credential: credential,
		now:        time.Now,
	}
}

func (g *Gateway) Submit(ctx context.Context, params entity.OrderParams) (*entity.GatewayResponse, error) {
	body := placeOrderRequest{
		InstID:  params.InstrumentID,
		TdMode:  params.TradeMode,
		ClOrdID: params.ClientOrderID,
		Side:    string(params.Side),
		OrdType: string(params.Type),
		Sz:      params.Size.String(),
	}
	if params.Type != entity.OrderTypeMarket && !params.Price.IsZero() {
		body.Px = params.Price.String()
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	return g.do(ctx, http.MethodPost, orderPath, nil, payload)
}

func (g *Gateway) Confirm(ctx context.Context, instrumentID, clientOrderID string) (*entity.GatewayResponse, error) {
	query := url.Values{}
	query.Set("instId", instrumentID)
	query.Set("clOrdId", clientOrderID)

	return g.do(ctx, http.MethodGet, orderPath, query, nil)
}

func (g *Gateway) do(ctx context.Context, method, path string, query url.Values, payload []byte) (*entity.GatewayResponse, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	requestPath := path
	if len(query) > 0 {
		requestPath += "?" + query.Encode()
	}

	timestamp := g.now().UTC().Format("2006-01-02T15:04:05.000Z")
	req := g.client.R().
		SetContext(ctx).
		SetHeader("OK-ACCESS-KEY", g.credential.APIKey).
		SetHeader("OK-ACCESS-PASSPHRASE", g.credential.Passphrase).
		SetHeader("OK-ACCESS-TIMESTAMP", timestamp).
		SetHeader("OK-ACCESS-SIGN", okx.Sign(g.credential.SecretKey, timestamp+method+requestPath+string(payload)))
	if len(query) > 0 {
		req.SetQueryParamsFromValues(query)
	}
	if payload != nil {
		req.SetBody(payload)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return nil, fmt.Errorf("okx %s %s: %w", method, path, err)
	}

	return parseResponse(resp.StatusCode(), resp.Body())
}

func parseResponse(status int, body []byte) (*entity.GatewayResponse, error) {
	var decoded apiResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("okx response status %d: %w", status, err)
	}

	out := &entity.GatewayResponse{
		Code:    decoded.Code,
		Message: decoded.Msg,
		Raw:     json.RawMessage(body),
	}
	if len(decoded.Data) > 0 {
		item := decoded.Data[0]
		out.OrderID = item.OrdID
		if item.SCode != "" && item.SCode != successCode {
			out.Code = item.SCode
			out.Message = item.SMsg
		}
	}

	out.Success = status < http.StatusBadRequest && out.Code == successCode && len(decoded.Data) > 0
	return out, nil
}
