package state

import (
	"testing"
	"time"

	"perpmaker/pkg/types"
)

func newTestStore() (*Store, chan struct{}) {
	wake := make(chan struct{}, 1)
	retention := WindowRetention{
		DEXPrice:       time.Hour,
		CEXPrice:       time.Hour,
		CEXVolume:      time.Minute,
		DepthImbalance: time.Minute,
	}
	return New(retention, wake), wake
}

func TestStore_SetDEXPriceWakesAndAppends(t *testing.T) {
	t.Parallel()
	s, wake := newTestStore()

	now := time.Now()
	s.SetDEXPrice(60000, now)

	snap := s.Take()
	if snap.DEXPrice != 60000 {
		t.Errorf("DEXPrice = %v, want 60000", snap.DEXPrice)
	}
	if snap.Windows.DEXPrice.Len() != 1 {
		t.Errorf("expected 1 sample in DEX window, got %d", snap.Windows.DEXPrice.Len())
	}

	select {
	case <-wake:
	default:
		t.Error("expected a wake signal after SetDEXPrice")
	}
}

func TestStore_SetCEXQuoteComputesMid(t *testing.T) {
	t.Parallel()
	s, _ := newTestStore()

	s.SetCEXQuote(99, 101, time.Now())
	snap := s.Take()
	if snap.CEXPrice != 100 {
		t.Errorf("CEXPrice = %v, want 100 (mid)", snap.CEXPrice)
	}
	if !snap.HasCEX {
		t.Error("expected HasCEX true after first CEX quote")
	}
}

func TestStore_WakeCoalesces(t *testing.T) {
	t.Parallel()
	s, wake := newTestStore()

	now := time.Now()
	s.SetDEXPrice(1, now)
	s.SetDEXPrice(2, now.Add(time.Millisecond))
	s.SetDEXPrice(3, now.Add(2*time.Millisecond))

	count := 0
	for {
		select {
		case <-wake:
			count++
		default:
			if count != 1 {
				t.Errorf("expected wakes to coalesce to 1, got %d", count)
			}
			return
		}
	}
}

func TestStore_SetOrderAndClearOrder(t *testing.T) {
	t.Parallel()
	s, _ := newTestStore()

	s.SetOrder(types.BUY, &types.OpenOrder{ClOrdID: "mm-buy-aaaaaaaa", Side: types.BUY, Price: 100, Quantity: 1})
	snap := s.Take()
	if snap.OrderBuy == nil || snap.OrderBuy.ClOrdID != "mm-buy-aaaaaaaa" {
		t.Fatalf("expected OrderBuy tracked, got %+v", snap.OrderBuy)
	}

	s.ClearOrder(types.BUY)
	snap = s.Take()
	if snap.OrderBuy != nil {
		t.Errorf("expected OrderBuy cleared, got %+v", snap.OrderBuy)
	}
}

func TestStore_ApplyUserOrderEventTerminalClearsOrder(t *testing.T) {
	t.Parallel()
	s, _ := newTestStore()

	s.SetOrder(types.SELL, &types.OpenOrder{ClOrdID: "mm-sell-bbbbbbbb", Side: types.SELL, Price: 200, Quantity: 1})
	s.ApplyUserOrderEvent(types.UserOrderEvent{
		ClOrdID:  "mm-sell-bbbbbbbb",
		Side:     types.SELL,
		Status:   types.StatusFilled,
		FillQty:  1,
		Timestamp: time.Now(),
	})

	snap := s.Take()
	if snap.OrderSell != nil {
		t.Errorf("expected OrderSell cleared on terminal fill, got %+v", snap.OrderSell)
	}
	if snap.LastFillTs.IsZero() {
		t.Error("expected LastFillTs set after a fill event")
	}
}

func TestStore_ApplyUserOrderEventPartialFillNonTerminal(t *testing.T) {
	t.Parallel()
	s, _ := newTestStore()

	s.SetOrder(types.BUY, &types.OpenOrder{ClOrdID: "mm-buy-cccccccc", Side: types.BUY, Price: 100, Quantity: 2, LeavesQty: 2})
	s.ApplyUserOrderEvent(types.UserOrderEvent{
		ClOrdID:   "mm-buy-cccccccc",
		Side:      types.BUY,
		Status:    types.StatusPartiallyFilled,
		LeavesQty: 1,
		FillQty:   1,
		Timestamp: time.Now(),
	})

	snap := s.Take()
	if snap.OrderBuy == nil {
		t.Fatal("expected partially filled order to remain tracked")
	}
	if snap.OrderBuy.LeavesQty != 1 {
		t.Errorf("LeavesQty = %v, want 1", snap.OrderBuy.LeavesQty)
	}
}

func TestStore_ApplyUserPositionEventZeroesEntryWhenFlat(t *testing.T) {
	t.Parallel()
	s, _ := newTestStore()

	s.ApplyUserPositionEvent(types.UserPositionEvent{Quantity: 0.01, EntryPrice: 60000, Timestamp: time.Now()}, false)
	snap := s.Take()
	if snap.PositionQty != 0.01 || snap.EntryPrice != 60000 {
		t.Fatalf("unexpected position after open: %+v", snap)
	}

	s.ApplyUserPositionEvent(types.UserPositionEvent{Quantity: 0, EntryPrice: 60000, Timestamp: time.Now()}, false)
	snap = s.Take()
	if snap.EntryPrice != 0 {
		t.Errorf("expected EntryPrice 0 when flat, got %v", snap.EntryPrice)
	}
}

func TestStore_ApplyUserPositionEventImplicitFill(t *testing.T) {
	t.Parallel()
	s, _ := newTestStore()

	before := s.Take().LastFillTs
	s.ApplyUserPositionEvent(types.UserPositionEvent{Quantity: 0.01, EntryPrice: 60000, Timestamp: time.Now()}, false)
	after := s.Take().LastFillTs

	if !after.After(before) {
		t.Error("expected an implicit fill to advance LastFillTs when no explicit fill was just recorded")
	}
}

func TestStore_ZeroPositionOptimistically(t *testing.T) {
	t.Parallel()
	s, _ := newTestStore()

	s.ApplyUserPositionEvent(types.UserPositionEvent{Quantity: 0.01, EntryPrice: 60000, Timestamp: time.Now()}, false)
	s.ZeroPositionOptimistically()

	snap := s.Take()
	if snap.PositionQty != 0 || snap.EntryPrice != 0 {
		t.Errorf("expected position zeroed, got %+v", snap)
	}
}

func TestStore_AppendImbalance(t *testing.T) {
	t.Parallel()
	s, _ := newTestStore()

	s.AppendImbalance([]float64{10, 5}, []float64{5, 5}, time.Now())
	snap := s.Take()
	if snap.Windows.DepthImbalance.Len() != 1 {
		t.Fatalf("expected 1 imbalance sample, got %d", snap.Windows.DepthImbalance.Len())
	}
	last, _ := snap.Windows.DepthImbalance.Last()
	// bidSum=15 askSum=10 total=25 -> (15-10)/25 = 0.2
	if last.V < 0.19 || last.V > 0.21 {
		t.Errorf("imbalance = %v, want ~0.2", last.V)
	}
}
