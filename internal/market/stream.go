package market

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// GapFiller backfills candles missed during a websocket outage
type GapFiller interface {
	GetKlinesRange(ctx context.Context, symbol string, tf Timeframe, startTime, endTime int64) ([]Kline, error)
}

// StreamManager multiplexes closed-candle subscriptions over one websocket
// connection per timeframe. Subscriptions are reference-counted per symbol;
// a dropped connection reconnects with exponential backoff, re-subscribes to
// the union of live symbols and replays the gap through the REST client so
// no closed candle is ever missed.
type StreamManager struct {
	mu      sync.Mutex
	wsBase  string
	gapFill GapFiller
	conns   map[Timeframe]*streamConn
	closed  bool
	log     zerolog.Logger
}

// NewStreamManager creates the stream manager. gapFill may be nil in tests.
func NewStreamManager(wsBaseURL string, gapFill GapFiller, logger zerolog.Logger) *StreamManager {
	return &StreamManager{
		wsBase:  wsBaseURL,
		gapFill: gapFill,
		conns:   make(map[Timeframe]*streamConn),
		log:     logger.With().Str("component", "stream").Logger(),
	}
}

// SubscribeClosedCandles subscribes to closed candles for (symbol, timeframe).
// Exactly one event is produced per closed candle, in ascending open-time
// order per symbol. The returned cancel func releases the subscription; the
// upstream stream is unsubscribed as soon as no subscriber remains.
func (m *StreamManager) SubscribeClosedCandles(symbol string, tf Timeframe) (<-chan Kline, func(), error) {
	if !tf.Valid() {
		return nil, nil, dataErr(ErrTransient, "unsupported timeframe %q", tf)
	}
	symbol = strings.ToUpper(symbol)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, nil, dataErr(ErrTransient, "stream manager closed")
	}

	conn, ok := m.conns[tf]
	if !ok {
		conn = newStreamConn(m.wsBase, tf, m.gapFill, m.log)
		m.conns[tf] = conn
		go conn.run()
	}

	ch, cancel := conn.addSubscriber(symbol)
	return ch, cancel, nil
}

// Status reports per-timeframe subscription counts for the status surface
func (m *StreamManager) Status() map[string]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	status := make(map[string]int, len(m.conns))
	for tf, conn := range m.conns {
		status[string(tf)] = conn.symbolCount()
	}
	return status
}

// Close terminates every connection. Blocking subscribers are released by
// their channels closing.
func (m *StreamManager) Close() {
	m.mu.Lock()
	m.closed = true
	conns := make([]*streamConn, 0, len(m.conns))
	for _, c := range m.conns {
		conns = append(conns, c)
	}
	m.conns = make(map[Timeframe]*streamConn)
	m.mu.Unlock()

	for _, c := range conns {
		c.close()
	}
}

// ==================== PER-TIMEFRAME CONNECTION ====================

type subscriber struct {
	id int
	ch chan Kline
}

type streamConn struct {
	mu       sync.Mutex
	wsBase   string
	tf       Timeframe
	gapFill  GapFiller
	ws       *websocket.Conn
	subs     map[string][]*subscriber // symbol -> subscribers
	lastOpen map[string]int64         // symbol -> last delivered open time
	nextID   int
	msgID    int
	stopped  bool
	stopCh   chan struct{}
	log      zerolog.Logger
}

func newStreamConn(wsBase string, tf Timeframe, gapFill GapFiller, logger zerolog.Logger) *streamConn {
	return &streamConn{
		wsBase:   wsBase,
		tf:       tf,
		gapFill:  gapFill,
		subs:     make(map[string][]*subscriber),
		lastOpen: make(map[string]int64),
		stopCh:   make(chan struct{}),
		log:      logger.With().Str("timeframe", string(tf)).Logger(),
	}
}

func (c *streamConn) addSubscriber(symbol string) (<-chan Kline, func()) {
	c.mu.Lock()
	c.nextID++
	sub := &subscriber{id: c.nextID, ch: make(chan Kline, 64)}
	first := len(c.subs[symbol]) == 0
	c.subs[symbol] = append(c.subs[symbol], sub)
	ws := c.ws
	c.mu.Unlock()

	if first && ws != nil {
		c.sendSubscribe(ws, []string{symbol})
	}

	cancel := func() { c.removeSubscriber(symbol, sub.id) }
	return sub.ch, cancel
}

func (c *streamConn) removeSubscriber(symbol string, id int) {
	c.mu.Lock()
	subs := c.subs[symbol]
	for i, s := range subs {
		if s.id == id {
			close(s.ch)
			c.subs[symbol] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	last := len(c.subs[symbol]) == 0
	if last {
		delete(c.subs, symbol)
		delete(c.lastOpen, symbol)
	}
	ws := c.ws
	c.mu.Unlock()

	if last && ws != nil {
		c.sendUnsubscribe(ws, []string{symbol})
	}
}

func (c *streamConn) symbolCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subs)
}

func (c *streamConn) close() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.stopped = true
	close(c.stopCh)
	ws := c.ws
	for symbol, subs := range c.subs {
		for _, s := range subs {
			close(s.ch)
		}
		delete(c.subs, symbol)
	}
	c.mu.Unlock()

	if ws != nil {
		ws.Close()
	}
}

// run owns the connection lifecycle: dial, resubscribe, gap-fill, read.
// Backoff doubles from 1s to a 16s cap across consecutive failures.
func (c *streamConn) run() {
	backoff := time.Second
	for {
		select {
		case <-c.stopCh:
			return
		default:
		}

		disconnectedAt := time.Now()
		ws, err := c.dial()
		if err != nil {
			c.log.Warn().Err(err).Dur("backoff", backoff).Msg("websocket dial failed")
			select {
			case <-c.stopCh:
				return
			case <-time.After(backoff):
			}
			if backoff < 16*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		c.mu.Lock()
		c.ws = ws
		symbols := make([]string, 0, len(c.subs))
		for symbol := range c.subs {
			symbols = append(symbols, symbol)
		}
		c.mu.Unlock()

		if len(symbols) > 0 {
			c.sendSubscribe(ws, symbols)
			c.fillGaps(symbols, disconnectedAt)
		}

		c.readLoop(ws)

		c.mu.Lock()
		c.ws = nil
		c.mu.Unlock()
		ws.Close()
	}
}

func (c *streamConn) dial() (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	ws, _, err := dialer.Dial(c.wsBase+"/stream", nil)
	return ws, err
}

func (c *streamConn) readLoop(ws *websocket.Conn) {
	for {
		_, msg, err := ws.ReadMessage()
		if err != nil {
			select {
			case <-c.stopCh:
			default:
				c.log.Warn().Err(err).Msg("websocket read failed, reconnecting")
			}
			return
		}
		c.handleMessage(msg)
	}
}

// combinedEvent is the combined-streams envelope
type combinedEvent struct {
	Stream string `json:"stream"`
	Data   struct {
		EventType string `json:"e"`
		Symbol    string `json:"s"`
		Kline     struct {
			OpenTime  int64  `json:"t"`
			CloseTime int64  `json:"T"`
			Open      string `json:"o"`
			High      string `json:"h"`
			Low       string `json:"l"`
			Close     string `json:"c"`
			Volume    string `json:"v"`
			Quote     string `json:"q"`
			Trades    int    `json:"n"`
			Closed    bool   `json:"x"`
		} `json:"k"`
	} `json:"data"`
}

func (c *streamConn) handleMessage(msg []byte) {
	var event combinedEvent
	if err := json.Unmarshal(msg, &event); err != nil {
		return
	}
	if event.Data.EventType != "kline" || !event.Data.Kline.Closed {
		return
	}

	k := event.Data.Kline
	kline := Kline{
		OpenTime:    k.OpenTime,
		Open:        parsePrice(k.Open),
		High:        parsePrice(k.High),
		Low:         parsePrice(k.Low),
		Close:       parsePrice(k.Close),
		Volume:      parsePrice(k.Volume),
		CloseTime:   k.CloseTime,
		QuoteVolume: parsePrice(k.Quote),
		Trades:      k.Trades,
	}
	c.deliver(strings.ToUpper(event.Data.Symbol), kline)
}

// deliver forwards one closed candle to every subscriber of the symbol.
// Candles at or before the last delivered open-time are dropped so a
// gap-fill replay never duplicates the live stream.
func (c *streamConn) deliver(symbol string, kline Kline) {
	c.mu.Lock()
	if kline.OpenTime <= c.lastOpen[symbol] {
		c.mu.Unlock()
		return
	}
	c.lastOpen[symbol] = kline.OpenTime
	subs := append([]*subscriber(nil), c.subs[symbol]...)
	c.mu.Unlock()

	for _, s := range subs {
		select {
		case s.ch <- kline:
		case <-c.stopCh:
			return
		}
	}
}

// fillGaps replays candles that closed while the connection was down
func (c *streamConn) fillGaps(symbols []string, disconnectedAt time.Time) {
	if c.gapFill == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, symbol := range symbols {
		c.mu.Lock()
		since := c.lastOpen[symbol]
		c.mu.Unlock()
		if since == 0 {
			continue
		}

		klines, err := c.gapFill.GetKlinesRange(ctx, symbol, c.tf, since+1, time.Now().UnixMilli())
		if err != nil {
			c.log.Warn().Err(err).Str("symbol", symbol).
				Time("disconnected_at", disconnectedAt).Msg("gap fill failed")
			continue
		}
		for _, k := range klines {
			c.deliver(symbol, k)
		}
	}
}

func (c *streamConn) sendSubscribe(ws *websocket.Conn, symbols []string) {
	c.sendControl(ws, "SUBSCRIBE", symbols)
}

func (c *streamConn) sendUnsubscribe(ws *websocket.Conn, symbols []string) {
	c.sendControl(ws, "UNSUBSCRIBE", symbols)
}

func (c *streamConn) sendControl(ws *websocket.Conn, method string, symbols []string) {
	streams := make([]string, len(symbols))
	for i, s := range symbols {
		streams[i] = fmt.Sprintf("%s@kline_%s", strings.ToLower(s), c.tf)
	}

	c.mu.Lock()
	c.msgID++
	id := c.msgID
	c.mu.Unlock()

	req := map[string]interface{}{"method": method, "params": streams, "id": id}
	if err := ws.WriteJSON(req); err != nil {
		c.log.Warn().Err(err).Str("method", method).Msg("stream control write failed")
	}
}

func parsePrice(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}
