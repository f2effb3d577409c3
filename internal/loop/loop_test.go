package loop

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"perpmaker/internal/config"
	"perpmaker/internal/executor"
	"perpmaker/internal/notify"
	"perpmaker/internal/planner"
	"perpmaker/internal/risk"
	"perpmaker/internal/state"
	"perpmaker/internal/venue"
	"perpmaker/pkg/types"
)

type fakeClient struct {
	cancelled []string
}

func (f *fakeClient) PlaceOrder(ctx context.Context, req venue.PlaceOrderRequest) (venue.PlaceOrderResponse, error) {
	return venue.PlaceOrderResponse{Code: 0}, nil
}
func (f *fakeClient) CancelOrder(ctx context.Context, clOrdID string) error {
	f.cancelled = append(f.cancelled, clOrdID)
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

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testInstrument() types.Instrument {
	return types.Instrument{Symbol: "BTC-PERP", TickSize: 0.5, PriceDecimals: 1, LotSize: 0.001, SizeDecimals: 3}
}

// Run's shutdown path cancels every order the store currently tracks.
func TestRunShutdownCancelsTrackedOrders(t *testing.T) {
	wake := make(chan struct{}, 1)
	store := state.New(state.WindowRetention{DEXPrice: time.Hour, CEXPrice: time.Hour, CEXVolume: time.Hour, DepthImbalance: time.Hour}, wake)
	store.SetOrder(types.BUY, &types.OpenOrder{ClOrdID: "mm-buy-11112222", Side: types.BUY})
	store.SetOrder(types.SELL, &types.OpenOrder{ClOrdID: "mm-sell-33334444", Side: types.SELL})

	client := &fakeClient{}
	exec := executor.New(client, testInstrument(), store, testLogger())
	evaluator := risk.NewEvaluator()
	plan := planner.New()
	l := New(store, evaluator, plan, exec, config.Config{}, notify.NoopNotifier{}, wake, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	l.Run(ctx)

	if len(client.cancelled) != 2 {
		t.Fatalf("expected both tracked orders cancelled on shutdown, got %v", client.cancelled)
	}
}

func TestSnapshotReportsLastRegime(t *testing.T) {
	wake := make(chan struct{}, 1)
	store := state.New(state.WindowRetention{DEXPrice: time.Hour, CEXPrice: time.Hour, CEXVolume: time.Hour, DepthImbalance: time.Hour}, wake)
	client := &fakeClient{}
	exec := executor.New(client, testInstrument(), store, testLogger())
	evaluator := risk.NewEvaluator()
	plan := planner.New()
	l := New(store, evaluator, plan, exec, config.Config{}, notify.NoopNotifier{}, wake, testLogger())

	snap := l.Snapshot()
	if snap == "" {
		t.Fatalf("expected a non-empty status string")
	}
}
