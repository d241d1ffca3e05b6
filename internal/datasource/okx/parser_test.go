package okx

import (
	"testing"
	"time"

	"github.com/krobus00/bot-service/internal/entity"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTrades(t *testing.T) {
	raw := []byte(`{"arg":{"channel":"trades","instId":"BTC-USDT"},"data":[{"instId":"BTC-USDT","tradeId":"130639474","px":"42219.9","sz":"0.12060306","side":"buy","ts":"1630048897897"}]}`)

	responses, err := ParseTrades(raw)
	require.NoError(t, err)
	require.Len(t, responses, 1)

	trade, ok := responses[0].(TradesResponse)
	require.True(t, ok)
	assert.Equal(t, "BTC-USDT", trade.InstID)
	assert.Equal(t, "130639474", trade.TradeID)
	assert.True(t, decimal.RequireFromString("42219.9").Equal(trade.Price))
	assert.True(t, decimal.RequireFromString("0.12060306").Equal(trade.Size))
	assert.Equal(t, entity.OrderSideBuy, trade.Side)
	assert.Equal(t, time.UnixMilli(1630048897897).UTC(), trade.Timestamp)

	assert.True(t, trade.ResponseFor(Trades{InstID: "BTC-USDT"}))
	assert.False(t, trade.ResponseFor(Trades{InstID: "ETH-USDT"}))
	assert.False(t, trade.ResponseFor(Candle{Bar: "1m", InstID: "BTC-USDT"}))
}

func TestParseTrades_InvalidPrice(t *testing.T) {
	responses, err := ParseTrades([]byte(`{"arg":{"channel":"trades"},"data":[{"px":"abc","sz":"1","ts":"1"}]}`))
	require.NoError(t, err)
	assert.Empty(t, responses)
}

func TestParseTrades_SkipsMalformedItem(t *testing.T) {
	raw := []byte(`{"arg":{"channel":"trades","instId":"BTC-USDT"},"data":[` +
		`{"instId":"BTC-USDT","tradeId":"1","px":"abc","sz":"0.5","side":"sell","ts":"1630048897897"},` +
		`{"instId":"BTC-USDT","tradeId":"2","px":"42219.9","sz":"0.12","side":"buy","ts":"1630048897898"}]}`)

	responses, err := ParseTrades(raw)
	require.NoError(t, err)
	require.Len(t, responses, 1)

	trade, ok := responses[0].(TradesResponse)
	require.True(t, ok)
	assert.Equal(t, "2", trade.TradeID)
	assert.True(t, decimal.RequireFromString("42219.9").Equal(trade.Price))
}

func TestParseTrades_InvalidEnvelope(t *testing.T) {
	_, err := ParseTrades([]byte(`{"data":`))
	assert.Error(t, err)
}

func TestParseCandles(t *testing.T) {
	raw := []byte(`{"arg":{"channel":"candle1m","instId":"BTC-USDT"},"data":[["1597026383085","8533.02","8553.74","8527.17","8548.26","45247","529.5858061","529.58","1"]]}`)

	responses, err := ParseCandles(raw)
	require.NoError(t, err)
	require.Len(t, responses, 1)

	candle, ok := responses[0].(CandleResponse)
	require.True(t, ok)
	assert.Equal(t, "candle1m", candle.Channel)
	assert.True(t, decimal.RequireFromString("8548.26").Equal(candle.Close))
	assert.True(t, decimal.RequireFromString("529.5858061").Equal(candle.VolumeCcy))
	assert.True(t, candle.Confirmed)

	assert.True(t, candle.ResponseFor(Candle{Bar: "1m", InstID: "BTC-USDT"}))
	assert.False(t, candle.ResponseFor(Candle{Bar: "5m", InstID: "BTC-USDT"}))
}

func TestParseCandles_ShortArray(t *testing.T) {
	_, err := ParseCandles([]byte(`{"arg":{"channel":"candle1m"},"data":[["1","2"]]}`))
	assert.Error(t, err)
}

func TestNewParserFactory(t *testing.T) {
	factory := NewParserFactory()

	_, err := factory.Get("candle15m")
	assert.NoError(t, err)
	_, err = factory.Get("trades")
	assert.NoError(t, err)
	_, err = factory.Get("tickers")
	assert.Error(t, err)
}
