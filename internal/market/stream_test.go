package market

import (
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func closedKlineEvent(symbol string, openTime int64, close string, closed bool) []byte {
	return []byte(fmt.Sprintf(`{"stream":"%s@kline_1m","data":{"e":"kline","s":"%s",
		"k":{"t":%d,"T":%d,"o":"100","h":"110","l":"90","c":"%s","v":"1000","q":"100000","n":50,"x":%t}}}`,
		symbol, symbol, openTime, openTime+59_999, close, closed))
}

func TestStreamDeliversClosedCandlesOnly(t *testing.T) {
	conn := newStreamConn("", Timeframe1m, nil, zerolog.Nop())
	ch, cancel := conn.addSubscriber("BTCUSDT")
	defer cancel()

	conn.handleMessage(closedKlineEvent("BTCUSDT", 60_000, "101.5", false))
	conn.handleMessage(closedKlineEvent("BTCUSDT", 60_000, "101.5", true))

	require.Len(t, ch, 1)
	k := <-ch
	assert.Equal(t, 101.5, k.Close)
	assert.Equal(t, int64(60_000), k.OpenTime)
}

func TestStreamDropsReplayedCandles(t *testing.T) {
	conn := newStreamConn("", Timeframe1m, nil, zerolog.Nop())
	ch, cancel := conn.addSubscriber("BTCUSDT")
	defer cancel()

	conn.handleMessage(closedKlineEvent("BTCUSDT", 60_000, "101", true))
	conn.handleMessage(closedKlineEvent("BTCUSDT", 60_000, "101", true))
	conn.handleMessage(closedKlineEvent("BTCUSDT", 120_000, "102", true))

	assert.Len(t, ch, 2)
}

func TestStreamRoutesPerSymbol(t *testing.T) {
	conn := newStreamConn("", Timeframe1m, nil, zerolog.Nop())
	btc, cancelBTC := conn.addSubscriber("BTCUSDT")
	defer cancelBTC()
	eth, cancelETH := conn.addSubscriber("ETHUSDT")
	defer cancelETH()

	conn.handleMessage(closedKlineEvent("ETHUSDT", 60_000, "2500", true))

	assert.Empty(t, btc)
	require.Len(t, eth, 1)
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	conn := newStreamConn("", Timeframe1m, nil, zerolog.Nop())
	ch, cancel := conn.addSubscriber("BTCUSDT")
	cancel()

	_, open := <-ch
	assert.False(t, open)
	assert.Equal(t, 0, conn.symbolCount())
}

func TestManagerStatusAndClose(t *testing.T) {
	m := NewStreamManager("ws://unreachable.invalid", nil, zerolog.Nop())
	ch, cancel, err := m.SubscribeClosedCandles("btcusdt", Timeframe1m)
	require.NoError(t, err)
	defer cancel()

	assert.Equal(t, map[string]int{"1m": 1}, m.Status())

	m.Close()
	_, open := <-ch
	assert.False(t, open)

	_, _, err = m.SubscribeClosedCandles("ETHUSDT", Timeframe1m)
	assert.Error(t, err)
}
