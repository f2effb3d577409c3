package executor

import (
	"context"
	"io"
	"log/slog"
	"regexp"
	"testing"
	"time"

	"perpmaker/internal/state"
	"perpmaker/internal/venue"
	"perpmaker/pkg/types"
)

type fakeClient struct {
	placed    []venue.PlaceOrderRequest
	cancelled []string
	calls     []string // "cancel" / "place", in submission order
	placeResp venue.PlaceOrderResponse
	placeErr  error
}

func (f *fakeClient) PlaceOrder(ctx context.Context, req venue.PlaceOrderRequest) (venue.PlaceOrderResponse, error) {
	f.placed = append(f.placed, req)
	f.calls = append(f.calls, "place")
	if f.placeErr != nil {
		return venue.PlaceOrderResponse{}, f.placeErr
	}
	return f.placeResp, nil
}

func (f *fakeClient) CancelOrder(ctx context.Context, clOrdID string) error {
	f.cancelled = append(f.cancelled, clOrdID)
	f.calls = append(f.calls, "cancel")
	return nil
}

func (f *fakeClient) CancelOrders(ctx context.Context, clOrdIDs []string) error {
	f.cancelled = append(f.cancelled, clOrdIDs...)
	return nil
}

func (f *fakeClient) QueryPositions(ctx context.Context, symbol string) ([]venue.Position, error) {
	return nil, nil
}

func (f *fakeClient) QueryOpenOrders(ctx context.Context, symbol string) ([]venue.OpenOrder, error) {
	return nil, nil
}

func newTestStore() *state.Store {
	return state.New(state.WindowRetention{
		DEXPrice:       time.Hour,
		CEXPrice:       time.Hour,
		CEXVolume:      time.Hour,
		DepthImbalance: time.Hour,
	}, make(chan struct{}, 1))
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testInstrument() types.Instrument {
	return types.Instrument{
		Symbol:        "BTC-PERP",
		TickSize:      0.5,
		PriceDecimals: 1,
		LotSize:       0.001,
		SizeDecimals:  3,
		MinOrderSize:  0.001,
	}
}

// Buy prices round down to the tick, sell prices round up.
func TestRoundPriceFloorsBuyCeilsSell(t *testing.T) {
	inst := testInstrument()
	buy := roundPrice(60000.37, inst, types.BUY)
	if buy.StringFixed(int32(inst.PriceDecimals)) != "60000.0" {
		t.Fatalf("expected buy rounded down to 60000.0, got %s", buy.StringFixed(int32(inst.PriceDecimals)))
	}
	sell := roundPrice(60000.37, inst, types.SELL)
	if sell.String() != "60000.5" {
		t.Fatalf("expected sell rounded up to 60000.5, got %s", sell.String())
	}
}

// Quantities always round down to the lot size, regardless of side.
func TestRoundQtyFloors(t *testing.T) {
	inst := testInstrument()
	qty := roundQty(0.0128, inst)
	if qty.String() != "0.012" {
		t.Fatalf("expected qty floored to lot size, got %s", qty.String())
	}
}

var clOrdIDPattern = regexp.MustCompile(`^[a-z]+-(buy|sell)?-?[0-9a-f]{8}$`)

func TestNewClOrdIDFormat(t *testing.T) {
	id := newClOrdID(types.RoleMaker, types.BUY)
	if !clOrdIDPattern.MatchString(id) {
		t.Fatalf("cl-ord-id %q does not match expected {role}-{side}-{8hex} pattern", id)
	}
	stopID := newClOrdID(types.RoleStopLoss, types.SELL)
	if !regexp.MustCompile(`^stoploss-[0-9a-f]{8}$`).MatchString(stopID) {
		t.Fatalf("stop-loss cl-ord-id %q should omit the side segment, got pattern mismatch", stopID)
	}
}

func TestExecutePlacesOrderAndTracksInStore(t *testing.T) {
	client := &fakeClient{placeResp: venue.PlaceOrderResponse{Code: 0}}
	store := newTestStore()
	exec := New(client, testInstrument(), store, testLogger())

	plan := types.PlanResult{
		Orders: []types.OrderIntent{{
			Side:      types.BUY,
			Price:     60000.3,
			Quantity:  0.01,
			OrderType: types.OrderTypeGTC,
			Role:      types.RoleMaker,
		}},
	}
	exec.Execute(context.Background(), plan)

	if len(client.placed) != 1 {
		t.Fatalf("expected one order placed, got %d", len(client.placed))
	}
	snap := store.Take()
	if snap.OrderBuy == nil {
		t.Fatalf("expected buy order tracked in store after placement")
	}
	if snap.OrderBuy.Status != types.StatusOpen {
		t.Fatalf("expected tracked order status open, got %s", snap.OrderBuy.Status)
	}
}

func TestExecuteCancelsBeforeOrders(t *testing.T) {
	client := &fakeClient{placeResp: venue.PlaceOrderResponse{Code: 0}}
	store := newTestStore()
	exec := New(client, testInstrument(), store, testLogger())

	plan := types.PlanResult{
		Cancels: []string{"mm-buy-deadbeef"},
		Orders: []types.OrderIntent{{
			Side:      types.SELL,
			Price:     60010,
			Quantity:  0.01,
			OrderType: types.OrderTypeGTC,
			Role:      types.RoleMaker,
		}},
	}
	exec.Execute(context.Background(), plan)

	if len(client.cancelled) != 1 || client.cancelled[0] != "mm-buy-deadbeef" {
		t.Fatalf("expected cancel submitted, got %v", client.cancelled)
	}
	if len(client.placed) != 1 {
		t.Fatalf("expected new order still submitted same tick, got %d", len(client.placed))
	}
	if len(client.calls) != 2 || client.calls[0] != "cancel" || client.calls[1] != "place" {
		t.Fatalf("expected the cancel submitted before the new order, got call order %v", client.calls)
	}
}

// SweepOrphans cancels venue-reported open orders the Executor has no local
// record of.
func TestSweepOrphansCancelsUntrackedOpenOrders(t *testing.T) {
	client := &fakeClient{}
	store := newTestStore()
	exec := New(client, testInstrument(), store, testLogger())

	venueOpen := []venue.OpenOrder{
		{ClOrdID: "mm-buy-orphan01", Side: "BUY", Status: "open"},
		{ClOrdID: "mm-sell-orphan02", Side: "SELL", Status: "filled"},
	}
	exec.SweepOrphans(context.Background(), venueOpen)

	if len(client.cancelled) != 1 || client.cancelled[0] != "mm-buy-orphan01" {
		t.Fatalf("expected only the untracked open order cancelled, got %v", client.cancelled)
	}
}

func TestReconcileClearsPendingCancelOnTerminalStatus(t *testing.T) {
	client := &fakeClient{}
	store := newTestStore()
	exec := New(client, testInstrument(), store, testLogger())

	exec.cancel(context.Background(), "mm-buy-abc12345")
	exec.mu.Lock()
	pending := exec.pendingCancel["mm-buy-abc12345"]
	exec.mu.Unlock()
	if !pending {
		t.Fatalf("expected cancel to mark pending before reconciliation")
	}

	exec.Reconcile(context.Background(), types.UserOrderEvent{ClOrdID: "mm-buy-abc12345", Status: types.StatusCancelled})

	exec.mu.Lock()
	_, stillPending := exec.pendingCancel["mm-buy-abc12345"]
	exec.mu.Unlock()
	if stillPending {
		t.Fatalf("expected pending-cancel cleared on terminal status")
	}
}
