// Package intake adapts the six event sources into State Store updates: one
// goroutine per feed (RunMarket, RunCEX, RunUser), each a thin translation
// layer with no business logic of its own.
package intake

import (
	"context"
	"log/slog"

	"perpmaker/internal/executor"
	"perpmaker/internal/feed"
	"perpmaker/internal/metrics"
	"perpmaker/internal/risk"
	"perpmaker/internal/state"
	"perpmaker/internal/venue"
	"perpmaker/pkg/types"
)

// Intake wires feed channels into Store mutators.
type Intake struct {
	store        *state.Store
	evaluator    *risk.Evaluator
	executor     *executor.Executor
	client       venue.Client
	symbol       string
	depthLevels  int
	logger       *slog.Logger
}

// New creates an Intake bound to the store it updates.
func New(store *state.Store, evaluator *risk.Evaluator, exec *executor.Executor, client venue.Client, symbol string, depthLevels int, logger *slog.Logger) *Intake {
	return &Intake{
		store:       store,
		evaluator:   evaluator,
		executor:    exec,
		client:      client,
		symbol:      symbol,
		depthLevels: depthLevels,
		logger:      logger.With("component", "intake"),
	}
}

// RunMarket drains the DEX price feed (Event Intake source 1).
func (in *Intake) RunMarket(ctx context.Context, mf feed.MarketFeed) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-mf.DEXPriceEvents():
			if !ok {
				return
			}
			in.store.SetDEXPrice(evt.LastPrice, evt.Timestamp)
		}
	}
}

// RunCEX drains the CEX book-ticker, kline, and depth feeds (sources 2-4).
func (in *Intake) RunCEX(ctx context.Context, cf feed.CEXFeed) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-cf.BookTickerEvents():
			if !ok {
				return
			}
			in.store.SetCEXQuote(evt.Bid, evt.Ask, evt.Timestamp)
		case evt, ok := <-cf.KlineEvents():
			if !ok {
				return
			}
			if evt.Closed {
				in.store.AppendVolume(evt.QuoteVolume, evt.Timestamp)
			}
		case evt, ok := <-cf.DepthEvents():
			if !ok {
				return
			}
			if in.depthLevels > 0 {
				in.store.AppendImbalance(evt.BidSizes, evt.AskSizes, evt.Timestamp)
			}
		}
	}
}

// RunUser drains the authenticated order/position feed and the reconnect
// signal. Reconnection must be followed by a positions + open-orders
// resync, handled by resync below.
func (in *Intake) RunUser(ctx context.Context, uf feed.UserFeed) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-uf.OrderEvents():
			if !ok {
				return
			}
			in.store.ApplyUserOrderEvent(evt)
			in.executor.Reconcile(ctx, evt)
			in.recordFill(evt)
		case evt, ok := <-uf.PositionEvents():
			if !ok {
				return
			}
			snapBefore := in.store.Take()
			explicitFillJustRecorded := !snapBefore.LastFillTs.IsZero() && !evt.Timestamp.Before(snapBefore.LastFillTs)
			in.store.ApplyUserPositionEvent(evt, explicitFillJustRecorded)
		case <-uf.Reconnects():
			in.resync(ctx)
		}
	}
}

// recordFill updates the fill/PnL/fee counters from an incremental fill
// carried on a user-stream order event. Events with no fill this push
// (FillQty == 0) leave the counters untouched.
func (in *Intake) recordFill(evt types.UserOrderEvent) {
	if evt.FillQty <= 0 {
		return
	}
	metrics.Fills.WithLabelValues(string(evt.Side)).Inc()
	metrics.RealizedPnLUSD.Add(evt.PnL)
	metrics.FeesPaidUSD.Add(evt.Fee)
}

// resync re-fetches positions and open orders after a user-feed reconnect
// and sweeps orphans the local bookkeeping never learned about.
func (in *Intake) resync(ctx context.Context) {
	positions, err := in.client.QueryPositions(ctx, in.symbol)
	if err != nil {
		in.logger.Error("resync query_positions failed", "error", err)
	} else if len(positions) > 0 {
		p := positions[0]
		in.store.ApplyUserPositionEvent(types.UserPositionEvent{
			Quantity:   p.Quantity,
			EntryPrice: p.EntryPrice,
			MarkPnL:    p.UnrealizedPnL,
		}, true)
	}

	openOrders, err := in.client.QueryOpenOrders(ctx, in.symbol)
	if err != nil {
		in.logger.Error("resync query_open_orders failed", "error", err)
		return
	}
	in.executor.SweepOrphans(ctx, openOrders)
}
