// Package types defines shared data structures used across all packages.
//
// This package is the common vocabulary for the bot — order, position, and
// regime types, plus the event payloads the Event Intake adapters translate
// into State Store updates. It has no dependencies on internal packages, so
// it can be imported by any layer.
package types

import "time"

// ————————————————————————————————————————————————————————————————————————
// Core enums
// ————————————————————————————————————————————————————————————————————————

// Side represents the direction of an order: BUY or SELL.
type Side string

const (
	BUY  Side = "BUY"
	SELL Side = "SELL"
)

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == BUY {
		return SELL
	}
	return BUY
}

// OrderType enumerates the supported order lifecycles on the venue.
type OrderType string

const (
	OrderTypeGTC OrderType = "GTC" // Good-Til-Cancelled: stays on book until filled or cancelled
	OrderTypeIOC OrderType = "IOC" // Immediate-Or-Cancel: used for the aggressive stop-loss exit
)

// OrderStatus is the lifecycle state reported by the venue's user stream.
type OrderStatus string

const (
	StatusOpen             OrderStatus = "open"
	StatusPartiallyFilled  OrderStatus = "partially_filled"
	StatusFilled           OrderStatus = "filled"
	StatusCancelled        OrderStatus = "cancelled"
	StatusRejected         OrderStatus = "rejected"
)

// IsTerminal reports whether the status ends the order's tracked lifecycle.
// partially_filled is deliberately non-terminal: the order stays tracked,
// with LeavesQty shrinking, until it is filled or cancelled.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case StatusFilled, StatusCancelled, StatusRejected:
		return true
	default:
		return false
	}
}

// ClientOrderRole identifies why an order was submitted and forms the first
// segment of its client-order-id.
type ClientOrderRole string

const (
	RoleMaker    ClientOrderRole = "mm"
	RoleReduce   ClientOrderRole = "reduce"
	RoleStopLoss ClientOrderRole = "stoploss"
)

// StaleFeed names which feed tripped a Stale regime.
type StaleFeed string

const (
	StaleDEX StaleFeed = "DEX"
	StaleCEX StaleFeed = "CEX"
)

// ————————————————————————————————————————————————————————————————————————
// Instrument
// ————————————————————————————————————————————————————————————————————————

// Instrument describes the single perpetual-swap instrument this agent
// quotes, including the tick/lot precision the Executor must round to.
type Instrument struct {
	Symbol        string
	TickSize      float64 // smallest price increment
	PriceDecimals int     // decimal places implied by TickSize
	LotSize       float64 // smallest quantity increment
	SizeDecimals  int     // decimal places implied by LotSize
	MinOrderSize  float64
}

// ————————————————————————————————————————————————————————————————————————
// Orders & positions
// ————————————————————————————————————————————————————————————————————————

// OpenOrder is a resting order this agent believes is live on the venue.
// At most one OpenOrder is tracked per side.
type OpenOrder struct {
	ClOrdID    string
	Side       Side
	Price      float64
	Quantity   float64
	LeavesQty  float64 // remaining unfilled quantity; equals Quantity until a partial fill
	ReduceOnly bool
	Role       ClientOrderRole
	Status     OrderStatus
	PlacedAt   time.Time
}

// Position is this agent's signed inventory in the instrument. Quantity > 0
// is long, < 0 is short. EntryPrice is always 0 while flat.
type Position struct {
	Quantity      float64
	EntryPrice    float64
	UnrealizedPnL float64 // last value reported by the venue
}

// IsFlat reports whether the position carries no inventory.
func (p Position) IsFlat() bool { return p.Quantity == 0 }

// Fill records a single execution. No package constructs it: last-fill
// bookkeeping and the realized-PnL counters are updated from UserOrderEvent.
type Fill struct {
	ClOrdID   string
	Side      Side
	Price     float64
	Quantity  float64
	Timestamp time.Time
	PnL       float64
	Fee       float64
}

// ————————————————————————————————————————————————————————————————————————
// Regime (Risk Evaluator output)
// ————————————————————————————————————————————————————————————————————————

// RegimeKind tags the Risk Evaluator's decision. Priority when more than one
// condition holds: Recovery > Stale > Guard > Caution > Normal.
type RegimeKind string

const (
	RegimeNormal   RegimeKind = "normal"
	RegimeCaution  RegimeKind = "caution"
	RegimeGuard    RegimeKind = "guard"
	RegimeStale    RegimeKind = "stale"
	RegimeRecovery RegimeKind = "recovery"
)

// Regime is the tagged decision the Risk Evaluator hands to the Planner each
// tick. Only the fields relevant to Kind are populated.
type Regime struct {
	Kind RegimeKind

	StaleWhich StaleFeed // Stale

	NextCheckAt time.Time // Recovery: don't re-evaluate an exit before this

	GuardReason   string    // Guard
	CooldownUntil time.Time // Guard: hysteresis floor

	NearSide Side // Caution: the side whose distance is compressed
}

// ————————————————————————————————————————————————————————————————————————
// Event Intake payloads (market-stream & user-stream)
// ————————————————————————————————————————————————————————————————————————

// DEXPriceEvent is the DEX "price" push: a last-trade-price sample.
type DEXPriceEvent struct {
	LastPrice float64
	Timestamp time.Time
}

// CEXBookTickerEvent is the CEX "bookTicker" push: best bid/ask.
type CEXBookTickerEvent struct {
	Bid       float64
	Ask       float64
	Timestamp time.Time
}

// CEXKlineEvent is the CEX "kline_1s" push: one 1-second candle close.
type CEXKlineEvent struct {
	Closed      bool
	QuoteVolume float64
	Timestamp   time.Time
}

// CEXDepthEvent is the CEX "depth" push: top-N bid/ask sizes, used for the
// imbalance ratio statistic.
type CEXDepthEvent struct {
	BidSizes  []float64
	AskSizes  []float64
	Timestamp time.Time
}

// UserOrderEvent is the venue user-stream "order" push.
type UserOrderEvent struct {
	ClOrdID      string
	Side         Side
	Status       OrderStatus
	Price        float64
	Quantity     float64
	LeavesQty    float64
	FillQty      float64 // incremental quantity filled by this event, 0 if none
	FillPrice    float64
	PnL          float64
	Fee          float64
	Timestamp    time.Time
}

// UserPositionEvent is the venue user-stream "position" push. MarkPrice is
// carried alongside MarkPnL so the stop-loss check can recompute PnL from the
// mark rather than trust the venue's own PnL field alone.
type UserPositionEvent struct {
	Quantity   float64
	EntryPrice float64
	MarkPrice  float64
	MarkPnL    float64
	Timestamp  time.Time
}

// ————————————————————————————————————————————————————————————————————————
// Planner / Executor intent
// ————————————————————————————————————————————————————————————————————————

// OrderIntent is a new order the Planner wants the Executor to submit.
type OrderIntent struct {
	Side       Side
	Price      float64
	Quantity   float64
	ReduceOnly bool
	OrderType  OrderType
	Role       ClientOrderRole
}

// PlanResult is the Order Planner's output for one decision-loop tick:
// cancels are always issued before new orders.
type PlanResult struct {
	Cancels []string // client-order-ids to cancel
	Orders  []OrderIntent

	// ZeroPositionOnSuccess tells the Executor to call
	// Store.ZeroPositionOptimistically once every order in Orders has been
	// accepted by the venue (used by the aggressive profit-take / stop-loss
	// flatten).
	ZeroPositionOnSuccess bool
}

// ————————————————————————————————————————————————————————————————————————
// Venue contract results
// ————————————————————————————————————————————————————————————————————————

// PlaceOrderResult mirrors the venue's place_order response.
type PlaceOrderResult struct {
	Accepted bool
	ClOrdID  string
	Message  string
}

// VenuePosition mirrors one element of query_positions.
type VenuePosition struct {
	Quantity      float64
	EntryPrice    float64
	UnrealizedPnL float64
}

// VenueOpenOrder mirrors one element of query_open_orders.
type VenueOpenOrder struct {
	ClOrdID   string
	Side      Side
	Price     float64
	Quantity  float64
	LeavesQty float64
	Status    OrderStatus
}
