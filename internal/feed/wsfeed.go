package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"perpmaker/pkg/types"
)

const (
	readTimeout      = 90 * time.Second
	maxReconnectWait = 30 * time.Second
	writeTimeout     = 10 * time.Second
	eventBufferSize  = 256
)

// WSMarketFeed is the DEX last-price feed implementation, grounded on
// exchange.WSFeed's reconnect/backoff loop (internal/exchange/ws.go),
// generalized from Polymarket's book/price channel to a single perpetual
// instrument's trade-price push.
type WSMarketFeed struct {
	url    string
	symbol string
	connMu sync.Mutex
	conn   *websocket.Conn

	priceCh chan types.DEXPriceEvent
	logger  *slog.Logger
}

// NewWSMarketFeed creates a DEX price feed for one instrument symbol.
func NewWSMarketFeed(url, symbol string, logger *slog.Logger) *WSMarketFeed {
	return &WSMarketFeed{
		url:     url,
		symbol:  symbol,
		priceCh: make(chan types.DEXPriceEvent, eventBufferSize),
		logger:  logger.With("component", "ws_dex_market"),
	}
}

func (f *WSMarketFeed) DEXPriceEvents() <-chan types.DEXPriceEvent { return f.priceCh }

// Run connects and maintains the connection with exponential backoff.
func (f *WSMarketFeed) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		err := f.connectAndRead(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		f.logger.Warn("dex feed disconnected, reconnecting", "error", err, "backoff", backoff)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxReconnectWait {
			backoff = maxReconnectWait
		}
	}
}

func (f *WSMarketFeed) connectAndRead(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()
	defer context.AfterFunc(ctx, func() { conn.Close() })()

	f.connMu.Lock()
	f.conn = conn
	f.connMu.Unlock()

	sub := map[string]any{"op": "subscribe", "channel": "trade", "symbol": f.symbol}
	if err := f.writeJSON(sub); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	for {
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		var msg struct {
			Price     float64 `json:"price"`
			Timestamp int64   `json:"ts"`
		}
		if err := conn.ReadJSON(&msg); err != nil {
			return err
		}
		ts := time.Now()
		if msg.Timestamp > 0 {
			ts = time.UnixMilli(msg.Timestamp)
		}
		select {
		case f.priceCh <- types.DEXPriceEvent{LastPrice: msg.Price, Timestamp: ts}:
		case <-ctx.Done():
			return ctx.Err()
		default:
			// consumer can't keep up; drop this tick rather than block the reader.
		}
	}
}

func (f *WSMarketFeed) writeJSON(v any) error {
	f.connMu.Lock()
	defer f.connMu.Unlock()
	if f.conn == nil {
		return fmt.Errorf("not connected")
	}
	f.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return f.conn.WriteJSON(v)
}

// WSCEXFeed is the CEX reference-feed implementation: book-ticker, 1s-kline,
// and (optionally) depth, over one connection.
type WSCEXFeed struct {
	url         string
	symbol      string
	depthLevels int
	connMu      sync.Mutex
	conn        *websocket.Conn

	tickerCh chan types.CEXBookTickerEvent
	klineCh  chan types.CEXKlineEvent
	depthCh  chan types.CEXDepthEvent
	logger   *slog.Logger
}

// NewWSCEXFeed creates a CEX feed. depthLevels == 0 disables the depth
// subscription.
func NewWSCEXFeed(url, symbol string, depthLevels int, logger *slog.Logger) *WSCEXFeed {
	return &WSCEXFeed{
		url:         url,
		symbol:      symbol,
		depthLevels: depthLevels,
		tickerCh:    make(chan types.CEXBookTickerEvent, eventBufferSize),
		klineCh:     make(chan types.CEXKlineEvent, eventBufferSize),
		depthCh:     make(chan types.CEXDepthEvent, eventBufferSize),
		logger:      logger.With("component", "ws_cex"),
	}
}

func (f *WSCEXFeed) BookTickerEvents() <-chan types.CEXBookTickerEvent { return f.tickerCh }
func (f *WSCEXFeed) KlineEvents() <-chan types.CEXKlineEvent           { return f.klineCh }
func (f *WSCEXFeed) DepthEvents() <-chan types.CEXDepthEvent           { return f.depthCh }

func (f *WSCEXFeed) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		err := f.connectAndRead(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		f.logger.Warn("cex feed disconnected, reconnecting", "error", err, "backoff", backoff)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxReconnectWait {
			backoff = maxReconnectWait
		}
	}
}

func (f *WSCEXFeed) connectAndRead(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()
	defer context.AfterFunc(ctx, func() { conn.Close() })()

	f.connMu.Lock()
	f.conn = conn
	f.connMu.Unlock()

	channels := []string{"bookTicker", "kline_1s"}
	if f.depthLevels > 0 {
		channels = append(channels, "depth")
	}
	for _, ch := range channels {
		if err := f.writeJSON(map[string]any{"method": "SUBSCRIBE", "params": []string{f.symbol + "@" + ch}}); err != nil {
			return fmt.Errorf("subscribe %s: %w", ch, err)
		}
	}

	for {
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		f.dispatch(ctx, raw)
	}
}

func (f *WSCEXFeed) dispatch(ctx context.Context, raw []byte) {
	var envelope struct {
		Channel string          `json:"e"`
		Data    json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		f.logger.Debug("unparseable cex message", "error", err)
		return
	}

	switch envelope.Channel {
	case "bookTicker":
		var t struct {
			Bid float64 `json:"b"`
			Ask float64 `json:"a"`
		}
		if json.Unmarshal(raw, &t) == nil {
			sendNonBlocking(ctx, f.tickerCh, types.CEXBookTickerEvent{Bid: t.Bid, Ask: t.Ask, Timestamp: time.Now()})
		}
	case "kline_1s":
		var k struct {
			Closed      bool    `json:"x"`
			QuoteVolume float64 `json:"q"`
		}
		if json.Unmarshal(raw, &k) == nil && k.Closed {
			sendNonBlocking(ctx, f.klineCh, types.CEXKlineEvent{Closed: true, QuoteVolume: k.QuoteVolume, Timestamp: time.Now()})
		}
	case "depth":
		var d struct {
			Bids [][2]string `json:"b"`
			Asks [][2]string `json:"a"`
		}
		if json.Unmarshal(raw, &d) == nil {
			sendNonBlocking(ctx, f.depthCh, types.CEXDepthEvent{
				BidSizes:  parseDepthSizes(d.Bids, f.depthLevels),
				AskSizes:  parseDepthSizes(d.Asks, f.depthLevels),
				Timestamp: time.Now(),
			})
		}
	}
}

// sendNonBlocking delivers evt to ch unless the consumer is backed up or ctx
// is done, in which case the sample is dropped (the next tick's sample
// supersedes it anyway).
func sendNonBlocking[T any](ctx context.Context, ch chan T, evt T) {
	select {
	case ch <- evt:
	case <-ctx.Done():
	default:
	}
}

func parseDepthSizes(levels [][2]string, n int) []float64 {
	if n > len(levels) {
		n = len(levels)
	}
	out := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		var v float64
		_ = json.Unmarshal([]byte(levels[i][1]), &v)
		out = append(out, v)
	}
	return out
}

func (f *WSCEXFeed) writeJSON(v any) error {
	f.connMu.Lock()
	defer f.connMu.Unlock()
	if f.conn == nil {
		return fmt.Errorf("not connected")
	}
	f.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return f.conn.WriteJSON(v)
}

// WSUserFeed is the authenticated order/position feed. Each reconnect must
// be followed by a positions+open-orders resync; Reconnects signals that to
// the caller.
type WSUserFeed struct {
	url         string
	bearerToken string
	connMu      sync.Mutex
	conn        *websocket.Conn

	orderCh      chan types.UserOrderEvent
	positionCh   chan types.UserPositionEvent
	reconnectCh  chan struct{}
	logger       *slog.Logger
}

// NewWSUserFeed creates the authenticated user-stream feed.
func NewWSUserFeed(url, bearerToken string, logger *slog.Logger) *WSUserFeed {
	return &WSUserFeed{
		url:         url,
		bearerToken: bearerToken,
		orderCh:     make(chan types.UserOrderEvent, eventBufferSize),
		positionCh:  make(chan types.UserPositionEvent, eventBufferSize),
		reconnectCh: make(chan struct{}, 1),
		logger:      logger.With("component", "ws_user"),
	}
}

func (f *WSUserFeed) OrderEvents() <-chan types.UserOrderEvent       { return f.orderCh }
func (f *WSUserFeed) PositionEvents() <-chan types.UserPositionEvent { return f.positionCh }
func (f *WSUserFeed) Reconnects() <-chan struct{}                    { return f.reconnectCh }

func (f *WSUserFeed) Run(ctx context.Context) error {
	backoff := time.Second
	first := true
	for {
		err := f.connectAndRead(ctx, first)
		first = false
		if ctx.Err() != nil {
			return ctx.Err()
		}
		f.logger.Warn("user feed disconnected, reconnecting", "error", err, "backoff", backoff)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxReconnectWait {
			backoff = maxReconnectWait
		}
	}
}

func (f *WSUserFeed) connectAndRead(ctx context.Context, first bool) error {
	header := map[string][]string{"Authorization": {"Bearer " + f.bearerToken}}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.url, header)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()
	defer context.AfterFunc(ctx, func() { conn.Close() })()

	f.connMu.Lock()
	f.conn = conn
	f.connMu.Unlock()

	if !first {
		select {
		case f.reconnectCh <- struct{}{}:
		default:
		}
	}

	for {
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		var envelope struct {
			Type string          `json:"type"`
			Data json.RawMessage `json:"data"`
		}
		if err := conn.ReadJSON(&envelope); err != nil {
			return err
		}

		switch envelope.Type {
		case "order":
			var o types.UserOrderEvent
			var raw struct {
				ClOrdID   string  `json:"cl_ord_id"`
				Side      string  `json:"side"`
				Status    string  `json:"status"`
				Price     float64 `json:"price"`
				Qty       float64 `json:"qty"`
				LeavesQty float64 `json:"leaves_qty"`
				FillQty   float64 `json:"fill_qty"`
				FillPrice float64 `json:"fill_avg_price"`
				PnL       float64 `json:"pnl"`
				Fee       float64 `json:"fee"`
			}
			if json.Unmarshal(envelope.Data, &raw) != nil {
				continue
			}
			o = types.UserOrderEvent{
				ClOrdID:   raw.ClOrdID,
				Side:      types.Side(raw.Side),
				Status:    types.OrderStatus(raw.Status),
				Price:     raw.Price,
				Quantity:  raw.Qty,
				LeavesQty: raw.LeavesQty,
				FillQty:   raw.FillQty,
				FillPrice: raw.FillPrice,
				PnL:       raw.PnL,
				Fee:       raw.Fee,
				Timestamp: time.Now(),
			}
			select {
			case f.orderCh <- o:
			case <-ctx.Done():
				return ctx.Err()
			}
		case "position":
			var raw struct {
				Qty        float64 `json:"qty"`
				EntryPrice float64 `json:"entry_price"`
				MarkPrice  float64 `json:"mark_price"`
				MarkPnL    float64 `json:"mark_pnl"`
			}
			if json.Unmarshal(envelope.Data, &raw) != nil {
				continue
			}
			select {
			case f.positionCh <- types.UserPositionEvent{Quantity: raw.Qty, EntryPrice: raw.EntryPrice, MarkPrice: raw.MarkPrice, MarkPnL: raw.MarkPnL, Timestamp: time.Now()}:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}
