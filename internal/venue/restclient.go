package venue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"perpmaker/internal/config"
)

// RESTClient is the production Client, grounded on exchange.Client
// (internal/exchange/client.go): a resty client with a base URL and a
// bounded timeout, minus the L1/L2 wallet-signature auth — authentication
// here is a single static bearer token injected per request.
//
// It carries no retry configuration: a single REST call either succeeds or
// fails within one decision-loop tick, and the next tick decides whether to
// try again.
type RESTClient struct {
	http   *resty.Client
	dryRun bool
	logger *slog.Logger
}

// NewRESTClient creates a venue REST client from config.
func NewRESTClient(cfg config.Config, logger *slog.Logger) *RESTClient {
	http := resty.New().
		SetBaseURL(cfg.Venue.RESTBaseURL).
		SetTimeout(10 * time.Second).
		SetHeader("Content-Type", "application/json").
		SetAuthToken(cfg.Venue.BearerToken)
	if cfg.Venue.APIKey != "" {
		http.SetHeader("X-API-Key", cfg.Venue.APIKey)
	}

	return &RESTClient{http: http, dryRun: cfg.DryRun, logger: logger.With("component", "venue_rest")}
}

func (c *RESTClient) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (PlaceOrderResponse, error) {
	if c.dryRun {
		c.logger.Info("dry-run place_order", "side", req.Side, "price", req.PriceStr, "qty", req.QtyStr, "cl_ord_id", req.ClOrdID)
		return PlaceOrderResponse{Code: 0, Message: "dry-run"}, nil
	}

	var result struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]any{
			"symbol":        req.Symbol,
			"side":          req.Side,
			"quantity":      req.QtyStr,
			"price":         req.PriceStr,
			"client_order_id": req.ClOrdID,
			"order_type":    req.OrderType,
			"time_in_force": req.TimeInForce,
			"reduce_only":   req.ReduceOnly,
		}).
		SetResult(&result).
		Post("/orders")
	if err != nil {
		return PlaceOrderResponse{}, fmt.Errorf("place order: %w", err)
	}
	if resp.StatusCode() != http.StatusOK && resp.StatusCode() != 201 {
		return PlaceOrderResponse{}, fmt.Errorf("place order: status %d: %s", resp.StatusCode(), resp.String())
	}
	return PlaceOrderResponse{Code: result.Code, Message: result.Message}, nil
}

func (c *RESTClient) CancelOrder(ctx context.Context, clOrdID string) error {
	return c.CancelOrders(ctx, []string{clOrdID})
}

func (c *RESTClient) CancelOrders(ctx context.Context, clOrdIDs []string) error {
	if len(clOrdIDs) == 0 {
		return nil
	}
	if c.dryRun {
		c.logger.Info("dry-run cancel_orders", "cl_ord_ids", clOrdIDs)
		return nil
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]any{"client_order_ids": clOrdIDs}).
		Delete("/orders")
	if err != nil {
		return fmt.Errorf("cancel orders: %w", err)
	}
	// Cancel of an already-terminal order is silently idempotent.
	if resp.StatusCode() >= 400 && resp.StatusCode() != http.StatusNotFound {
		return fmt.Errorf("cancel orders: status %d: %s", resp.StatusCode(), resp.String())
	}
	return nil
}

func (c *RESTClient) QueryPositions(ctx context.Context, symbol string) ([]Position, error) {
	var raw []struct {
		Qty        float64 `json:"qty"`
		EntryPrice float64 `json:"entry_price"`
		UPnL       float64 `json:"upnl"`
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("symbol", symbol).
		SetResult(&raw).
		Get("/positions")
	if err != nil {
		return nil, fmt.Errorf("query positions: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("query positions: status %d: %s", resp.StatusCode(), resp.String())
	}

	out := make([]Position, 0, len(raw))
	for _, p := range raw {
		out = append(out, Position{Quantity: p.Qty, EntryPrice: p.EntryPrice, UnrealizedPnL: p.UPnL})
	}
	return out, nil
}

func (c *RESTClient) QueryOpenOrders(ctx context.Context, symbol string) ([]OpenOrder, error) {
	var raw []struct {
		ClOrdID string `json:"cl_ord_id"`
		Side    string `json:"side"`
		Price   string `json:"price"`
		Qty     string `json:"qty"`
		Status  string `json:"status"`
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("symbol", symbol).
		SetResult(&raw).
		Get("/orders/open")
	if err != nil {
		return nil, fmt.Errorf("query open orders: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("query open orders: status %d: %s", resp.StatusCode(), resp.String())
	}

	out := make([]OpenOrder, 0, len(raw))
	for _, o := range raw {
		var price, qty float64
		_ = json.Unmarshal([]byte(o.Price), &price)
		_ = json.Unmarshal([]byte(o.Qty), &qty)
		out = append(out, OpenOrder{ClOrdID: o.ClOrdID, Side: o.Side, Price: price, Qty: qty, Status: o.Status})
	}
	return out, nil
}
