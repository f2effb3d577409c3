// Package state holds the single shared mutable object the Decision Loop and
// every Event Intake adapter touch: current DEX/CEX prices, position,
// resting orders by side, and the rolling windows the Risk Evaluator reads.
//
// Each field is guarded by one mutex the way strategy.Inventory guards its
// Position, and Take copies the scalar fields and tracked orders out the way
// Inventory.Snapshot and market.Book.Snapshot do, so the Decision Loop plans
// against a coherent point-in-time view of them while intake tasks keep
// writing concurrently. The rolling windows are not copied: a snapshot holds
// the Store's live windows, so samples appended after Take are visible to
// statistics computed from it.
package state

import (
	"math"
	"sync"
	"time"

	"perpmaker/internal/window"
	"perpmaker/pkg/types"
)

// Windows bundles the four rolling windows the State Store maintains.
type Windows struct {
	DEXPrice        *window.Window
	CEXPrice        *window.Window
	CEXVolume       *window.Window
	DepthImbalance  *window.Window
}

// WindowRetention configures how far back each window retains samples. The
// caller chooses every duration; there are no defaults.
type WindowRetention struct {
	DEXPrice       time.Duration
	CEXPrice       time.Duration
	CEXVolume      time.Duration
	DepthImbalance time.Duration
}

// Snapshot is a view of the store taken at Decision Loop entry. Scalars and
// orders are copied out atomically; Windows refers to the Store's live
// windows.
type Snapshot struct {
	DEXPrice float64
	DEXTs    time.Time
	CEXPrice float64
	CEXTs    time.Time
	HasCEX   bool

	PositionQty float64
	EntryPrice  float64
	MarkPrice   float64 // last mark price reported on the user position stream
	UnrealPnL   float64

	OrderBuy  *types.OpenOrder
	OrderSell *types.OpenOrder

	LastFillTs time.Time

	Windows Windows
}

// Store is the State Store: a single logical object owning all mutable
// fields. Wake is signalled (non-blocking, coalescing) on every price,
// volume, imbalance, user-order and user-position update, so the Decision
// Loop observes at most one extra tick per burst of updates. SetOrder,
// ClearOrder and ZeroPositionOptimistically do not signal it.
type Store struct {
	mu sync.Mutex

	dexPrice float64
	dexTs    time.Time
	cexPrice float64
	cexTs    time.Time
	hasCEX   bool

	positionQty float64
	entryPrice  float64
	markPrice   float64
	unrealPnL   float64

	orderBuy  *types.OpenOrder
	orderSell *types.OpenOrder

	lastFillTs time.Time

	windows Windows
	wake    chan struct{}
}

// New creates a Store with windows sized per retention.
func New(retention WindowRetention, wake chan struct{}) *Store {
	return &Store{
		windows: Windows{
			DEXPrice:       window.New(retention.DEXPrice),
			CEXPrice:       window.New(retention.CEXPrice),
			CEXVolume:      window.New(retention.CEXVolume),
			DepthImbalance: window.New(retention.DepthImbalance),
		},
		wake: wake,
	}
}

// epsilon is the position-delta threshold below which a change is
// considered noise rather than an implicit fill.
const epsilon = 1e-9

func (s *Store) signalWake() {
	select {
	case s.wake <- struct{}{}:
	default:
		// a wake is already pending; coalesce.
	}
}

// SetDEXPrice updates the last DEX trade price and appends it to the DEX
// window.
func (s *Store) SetDEXPrice(price float64, ts time.Time) {
	s.mu.Lock()
	s.dexPrice = price
	s.dexTs = ts
	s.mu.Unlock()

	s.windows.DEXPrice.Append(ts, price)
	s.signalWake()
}

// SetCEXQuote updates the CEX mid price from a book-ticker push.
func (s *Store) SetCEXQuote(bid, ask float64, ts time.Time) {
	mid := (bid + ask) / 2

	s.mu.Lock()
	s.cexPrice = mid
	s.cexTs = ts
	s.hasCEX = true
	s.mu.Unlock()

	s.windows.CEXPrice.Append(ts, mid)
	s.signalWake()
}

// AppendVolume records a closed 1-second candle's notional volume.
// Non-closed candles are ignored by the caller before this is invoked.
func (s *Store) AppendVolume(quoteVolume float64, ts time.Time) {
	s.windows.CEXVolume.Append(ts, quoteVolume)
	s.signalWake()
}

// AppendImbalance records a depth-derived imbalance sample:
// imbalance = (bidSum - askSum) / (bidSum + askSum).
func (s *Store) AppendImbalance(bidSizes, askSizes []float64, ts time.Time) {
	var bidSum, askSum float64
	for _, v := range bidSizes {
		bidSum += v
	}
	for _, v := range askSizes {
		askSum += v
	}
	total := bidSum + askSum
	if total == 0 {
		return
	}
	s.windows.DepthImbalance.Append(ts, (bidSum-askSum)/total)
	s.signalWake()
}

// SetOrder installs or replaces the tracked order for a side (Executor
// bookkeeping on successful submission).
func (s *Store) SetOrder(side types.Side, order *types.OpenOrder) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if side == types.BUY {
		s.orderBuy = order
	} else {
		s.orderSell = order
	}
}

// ClearOrder removes the tracked order for a side on terminal status or
// orphan sweep.
func (s *Store) ClearOrder(side types.Side) {
	s.SetOrder(side, nil)
}

// ApplyUserOrderEvent updates order bookkeeping and records fills on a
// terminal or partial-fill user-stream event.
func (s *Store) ApplyUserOrderEvent(evt types.UserOrderEvent) {
	s.mu.Lock()
	var slot **types.OpenOrder
	if evt.Side == types.BUY {
		slot = &s.orderBuy
	} else {
		slot = &s.orderSell
	}

	if evt.Status.IsTerminal() {
		*slot = nil
	} else if *slot != nil && (*slot).ClOrdID == evt.ClOrdID {
		(*slot).LeavesQty = evt.LeavesQty
		(*slot).Status = evt.Status
	}

	if evt.FillQty > 0 {
		s.lastFillTs = evt.Timestamp
	}
	s.mu.Unlock()

	s.signalWake()
}

// ApplyUserPositionEvent updates position_qty/entry_price/mark_price and
// detects implicit fills: any position delta beyond epsilon with no recent
// explicit fill recorded is treated as an implicit fill using the event's
// timestamp.
func (s *Store) ApplyUserPositionEvent(evt types.UserPositionEvent, explicitFillJustRecorded bool) {
	s.mu.Lock()
	delta := evt.Quantity - s.positionQty
	s.positionQty = evt.Quantity
	s.entryPrice = evt.EntryPrice
	if evt.Quantity == 0 {
		s.entryPrice = 0
	}
	s.markPrice = evt.MarkPrice
	s.unrealPnL = evt.MarkPnL

	if math.Abs(delta) > epsilon && !explicitFillJustRecorded {
		s.lastFillTs = evt.Timestamp
	}
	s.mu.Unlock()

	s.signalWake()
}

// ZeroPositionOptimistically clears the locally tracked position after an
// aggressive profit-take or stop-loss submission, before the venue's
// position event confirms it.
func (s *Store) ZeroPositionOptimistically() {
	s.mu.Lock()
	s.positionQty = 0
	s.entryPrice = 0
	s.mu.Unlock()
}

// Take copies the scalar fields and tracked orders out under the lock. The
// returned Windows are the Store's own live windows, not copies.
func (s *Store) Take() Snapshot {
	s.mu.Lock()
	snap := Snapshot{
		DEXPrice:    s.dexPrice,
		DEXTs:       s.dexTs,
		CEXPrice:    s.cexPrice,
		CEXTs:       s.cexTs,
		HasCEX:      s.hasCEX,
		PositionQty: s.positionQty,
		EntryPrice:  s.entryPrice,
		MarkPrice:   s.markPrice,
		UnrealPnL:   s.unrealPnL,
		LastFillTs:  s.lastFillTs,
	}
	if s.orderBuy != nil {
		o := *s.orderBuy
		snap.OrderBuy = &o
	}
	if s.orderSell != nil {
		o := *s.orderSell
		snap.OrderSell = &o
	}
	s.mu.Unlock()

	snap.Windows = s.windows
	return snap
}

// Windows exposes the rolling windows directly for intake adapters that
// need to append without taking a full snapshot.
func (s *Store) Windows() Windows {
	return s.windows
}
