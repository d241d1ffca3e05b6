package okx

import (
	"time"

	"github.com/krobus00/bot-service/internal/entity"
	"github.com/shopspring/decimal"
)

const (
	ChannelTrades       = "trades"
	ChannelCandlePrefix = "candle"
)

// Trades subscribes to the public trades channel of one instrument.
type Trades struct {
	InstID string
}

func (s Trades) Exchange() entity.ExchangeName { return entity.ExchangeOKX }
func (s Trades) Channel() string               { return ChannelTrades }
func (s Trades) InstrumentID() string          { return s.InstID }

// Candle subscribes to candlesticks of one instrument. Bar is the OKX bar
// size such as 1m, 5m or 1H.
type Candle struct {
	Bar    string
	InstID string
}

func (s Candle) Exchange() entity.ExchangeName { return entity.ExchangeOKX }
func (s Candle) Channel() string               { return ChannelCandlePrefix + s.Bar }
func (s Candle) InstrumentID() string          { return s.InstID }

type TradesResponse struct {
	InstID    string
	TradeID   string
	Price     decimal.Decimal
	Size      decimal.Decimal
	Side      entity.OrderSide
	Timestamp time.Time
}

func (r TradesResponse) Exchange() entity.ExchangeName { return entity.ExchangeOKX }

func (r TradesResponse) ResponseFor(sub entity.Subscription) bool {
	trades, ok := sub.(Trades)
	return ok && trades.InstID == r.InstID
}

type CandleResponse struct {
	Channel   string
	InstID    string
	Timestamp time.Time
	Open      decimal.Decimal
	High      decimal.Decimal
	Low       decimal.Decimal
	Close     decimal.Decimal
	Volume    decimal.Decimal
	VolumeCcy decimal.Decimal
	Confirmed bool
}

func (r CandleResponse) Exchange() entity.ExchangeName { return entity.ExchangeOKX }

func (r CandleResponse) ResponseFor(sub entity.Subscription) bool {
	candle, ok := sub.(Candle)
	return ok && candle.Channel() == r.Channel && candle.InstID == r.InstID
}
