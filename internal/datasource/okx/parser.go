package okx

import (
	"fmt"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/krobus00/bot-service/internal/datasource"
	"github.com/krobus00/bot-service/internal/entity"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

type pushEnvelope[T any] struct {
	Arg  channelArg `json:"arg"`
	Data []T        `json:"data"`
}

type tradeData struct {
	InstID  string `json:"instId"`
	TradeID string `json:"tradeId"`
	Px      string `json:"px"`
	Sz      string `json:"sz"`
	Side    string `json:"side"`
	Ts      string `json:"ts"`
}

// NewParserFactory registers the trades and candle parsers.
func NewParserFactory() *datasource.ParserFactory {
	return datasource.NewParserFactory().
		Register(ChannelTrades, datasource.ParserFunc(ParseTrades)).
		Register(ChannelCandlePrefix, datasource.ParserFunc(ParseCandles))
}

func ParseTrades(raw []byte) ([]entity.ResponseOfSub, error) {
	var envelope pushEnvelope[tradeData]
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, err
	}

	out := make([]entity.ResponseOfSub, 0, len(envelope.Data))
	for _, item := range envelope.Data {
		trade, err := parseTrade(item)
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"inst_id":  item.InstID,
				"trade_id": item.TradeID,
			}).WithError(err).Warn("skipping malformed trade")
			continue
		}
		out = append(out, trade)
	}

	return out, nil
}

func parseTrade(item tradeData) (TradesResponse, error) {
	price, err := decimal.NewFromString(item.Px)
	if err != nil {
		return TradesResponse{}, fmt.Errorf("trade px: %w", err)
	}
	size, err := decimal.NewFromString(item.Sz)
	if err != nil {
		return TradesResponse{}, fmt.Errorf("trade sz: %w", err)
	}
	ts, err := parseMillis(item.Ts)
	if err != nil {
		return TradesResponse{}, fmt.Errorf("trade ts: %w", err)
	}

	return TradesResponse{
		InstID:    item.InstID,
		TradeID:   item.TradeID,
		Price:     price,
		Size:      size,
		Side:      entity.OrderSide(item.Side),
		Timestamp: ts,
	}, nil
}

// ParseCandles reads [ts, o, h, l, c, vol, volCcy, volCcyQuote, confirm]
// arrays; only the first seven fields are required.
func ParseCandles(raw []byte) ([]entity.ResponseOfSub, error) {
	var envelope pushEnvelope[[]string]
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, err
	}

	out := make([]entity.ResponseOfSub, 0, len(envelope.Data))
	for _, item := range envelope.Data {
		if len(item) < 7 {
			return nil, fmt.Errorf("candle has %d fields, want at least 7", len(item))
		}

		ts, err := parseMillis(item[0])
		if err != nil {
			return nil, fmt.Errorf("candle ts: %w", err)
		}

		values := make([]decimal.Decimal, 6)
		for i := range values {
			values[i], err = decimal.NewFromString(item[i+1])
			if err != nil {
				return nil, fmt.Errorf("candle field %d: %w", i+1, err)
			}
		}

		out = append(out, CandleResponse{
			Channel:   envelope.Arg.Channel,
			InstID:    envelope.Arg.InstID,
			Timestamp: ts,
			Open:      values[0],
			High:      values[1],
			Low:       values[2],
			Close:     values[3],
			Volume:    values[4],
			VolumeCcy: values[5],
			Confirmed: len(item) > 8 && item[8] == "1",
		})
	}

	return out, nil
}

func parseMillis(raw string) (time.Time, error) {
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, err
	}

	return time.UnixMilli(ms).UTC(), nil
}
