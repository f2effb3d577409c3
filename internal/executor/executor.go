// Package executor submits Planner decisions to the venue one action at a
// time, rounds prices/quantities to instrument precision with
// shopspring/decimal, mints client-order-ids from crypto/rand (google/uuid
// only as a fallback), and
// reconciles its own bookkeeping against authoritative venue events.
//
// The one-action-at-a-time submission and the pending-cancel bookkeeping
// mirror strategy.Maker.reconcileOrders (internal/strategy/maker.go),
// generalized from a batch POST/DELETE pair to a single-order venue
// contract.
package executor

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"perpmaker/internal/state"
	"perpmaker/internal/venue"
	"perpmaker/pkg/types"
)

// Executor submits plan actions and reconciles them against venue events.
type Executor struct {
	client     venue.Client
	instrument types.Instrument
	store      *state.Store
	logger     *slog.Logger

	mu            sync.Mutex
	pendingCancel map[string]bool // cl-ord-ids with an in-flight cancel
}

// New creates an Executor bound to one instrument and venue client.
func New(client venue.Client, instrument types.Instrument, store *state.Store, logger *slog.Logger) *Executor {
	return &Executor{
		client:        client,
		instrument:    instrument,
		store:         store,
		logger:        logger.With("component", "executor"),
		pendingCancel: make(map[string]bool),
	}
}

// Execute submits one PlanResult's cancels then orders, one call at a time.
func (e *Executor) Execute(ctx context.Context, plan types.PlanResult) {
	for _, id := range plan.Cancels {
		e.cancel(ctx, id)
	}
	allPlaced := true
	for _, intent := range plan.Orders {
		if !e.place(ctx, intent) {
			allPlaced = false
		}
	}
	if plan.ZeroPositionOnSuccess && len(plan.Orders) > 0 && allPlaced {
		e.store.ZeroPositionOptimistically()
	}
}

func (e *Executor) cancel(ctx context.Context, clOrdID string) {
	e.mu.Lock()
	e.pendingCancel[clOrdID] = true
	e.mu.Unlock()

	if err := e.client.CancelOrder(ctx, clOrdID); err != nil {
		// Not retried within this tick; the next tick re-evaluates and
		// re-issues the cancel if it's still needed.
		e.logger.Error("cancel failed", "cl_ord_id", clOrdID, "error", err)
		return
	}
	e.logger.Debug("cancel submitted", "cl_ord_id", clOrdID)
}

func (e *Executor) place(ctx context.Context, intent types.OrderIntent) bool {
	price := roundPrice(intent.Price, e.instrument, intent.Side)
	qty := roundQty(intent.Quantity, e.instrument)
	clOrdID := newClOrdID(intent.Role, intent.Side)

	timeInForce := "GTC"
	if intent.OrderType == types.OrderTypeIOC {
		timeInForce = "IOC"
	}

	resp, err := e.client.PlaceOrder(ctx, venue.PlaceOrderRequest{
		Symbol:      e.instrument.Symbol,
		Side:        string(intent.Side),
		QtyStr:      qty.StringFixed(int32(e.instrument.SizeDecimals)),
		PriceStr:    price.StringFixed(int32(e.instrument.PriceDecimals)),
		ClOrdID:     clOrdID,
		OrderType:   string(intent.OrderType),
		TimeInForce: timeInForce,
		ReduceOnly:  intent.ReduceOnly,
	})
	if err != nil {
		e.logger.Error("place order failed", "side", intent.Side, "error", err)
		return false
	}
	if resp.Code != 0 {
		e.logger.Error("place order rejected", "side", intent.Side, "message", resp.Message)
		return false
	}

	priceF, _ := price.Float64()
	qtyF, _ := qty.Float64()
	e.store.SetOrder(intent.Side, &types.OpenOrder{
		ClOrdID:    clOrdID,
		Side:       intent.Side,
		Price:      priceF,
		Quantity:   qtyF,
		LeavesQty:  qtyF,
		ReduceOnly: intent.ReduceOnly,
		Role:       intent.Role,
		Status:     types.StatusOpen,
	})
	e.logger.Info("order placed", "side", intent.Side, "price", priceF, "qty", qtyF, "cl_ord_id", clOrdID, "role", intent.Role)
	return true
}

// roundPrice rounds to the instrument's tick size, floor for buys and ceil
// for sells.
func roundPrice(price float64, instrument types.Instrument, side types.Side) decimal.Decimal {
	tick := decimal.NewFromFloat(instrument.TickSize)
	d := decimal.NewFromFloat(price)
	if tick.IsZero() {
		return d.Round(int32(instrument.PriceDecimals))
	}
	ticks := d.Div(tick)
	if side == types.BUY {
		ticks = ticks.Floor()
	} else {
		ticks = ticks.Ceil()
	}
	return ticks.Mul(tick).Round(int32(instrument.PriceDecimals))
}

// roundQty rounds down to the instrument's lot size; quantities are always
// formatted to the instrument's size precision before submission.
func roundQty(qty float64, instrument types.Instrument) decimal.Decimal {
	lot := decimal.NewFromFloat(instrument.LotSize)
	d := decimal.NewFromFloat(qty)
	if lot.IsZero() {
		return d.Round(int32(instrument.SizeDecimals))
	}
	return d.Div(lot).Floor().Mul(lot).Round(int32(instrument.SizeDecimals))
}

// newClOrdID mints a client-order-id following {role}-{side?}-{random-8hex}.
// Reduce/stop-loss roles omit the side segment since they carry a fixed
// exit direction already implied by the role.
func newClOrdID(role types.ClientOrderRole, side types.Side) string {
	suffix := randomHex8()
	if role == types.RoleMaker {
		return fmt.Sprintf("%s-%s-%s", role, sideTag(side), suffix)
	}
	return fmt.Sprintf("%s-%s", role, suffix)
}

func sideTag(side types.Side) string {
	if side == types.BUY {
		return "buy"
	}
	return "sell"
}

func randomHex8() string {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return uuid.NewString()[:8]
	}
	return hex.EncodeToString(b[:])
}

// Reconcile clears pending-cancel bookkeeping on terminal order events. It
// does not check the event for orphan orders; untracked open orders are
// cancelled only by SweepOrphans after a user-feed resync.
func (e *Executor) Reconcile(ctx context.Context, evt types.UserOrderEvent) {
	if evt.Status.IsTerminal() {
		e.mu.Lock()
		delete(e.pendingCancel, evt.ClOrdID)
		e.mu.Unlock()
	}
}

// SweepOrphans cancels any venue-reported open order this executor has no
// local record of. Called after a user-feed reconnect resync.
func (e *Executor) SweepOrphans(ctx context.Context, venueOpen []venue.OpenOrder) {
	snap := e.store.Take()
	tracked := map[string]bool{}
	if snap.OrderBuy != nil {
		tracked[snap.OrderBuy.ClOrdID] = true
	}
	if snap.OrderSell != nil {
		tracked[snap.OrderSell.ClOrdID] = true
	}

	for _, o := range venueOpen {
		if o.Status != "open" {
			continue
		}
		if tracked[o.ClOrdID] {
			continue
		}
		e.logger.Warn("orphan order found, cancelling", "cl_ord_id", o.ClOrdID)
		e.cancel(ctx, o.ClOrdID)
	}
}
