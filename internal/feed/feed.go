// Package feed defines the market-stream and user-stream contracts plus a
// gorilla/websocket implementation grounded on exchange.WSFeed
// (internal/exchange/ws.go): auto-reconnect with exponential backoff, a
// read deadline, and one typed channel per event kind.
package feed

import (
	"context"

	"perpmaker/pkg/types"
)

// MarketFeed streams DEX last-price ticks.
type MarketFeed interface {
	DEXPriceEvents() <-chan types.DEXPriceEvent
	Run(ctx context.Context) error
}

// CEXFeed streams the CEX reference book-ticker, 1s-kline, and depth pushes.
type CEXFeed interface {
	BookTickerEvents() <-chan types.CEXBookTickerEvent
	KlineEvents() <-chan types.CEXKlineEvent
	DepthEvents() <-chan types.CEXDepthEvent
}

// UserFeed streams the venue's authenticated order/position lifecycle
// pushes. Reconnection must be followed by a positions + open-orders
// resync — the Decision Loop's intake wiring does that, not the feed.
type UserFeed interface {
	OrderEvents() <-chan types.UserOrderEvent
	PositionEvents() <-chan types.UserPositionEvent
	Reconnects() <-chan struct{}
}
