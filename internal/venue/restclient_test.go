package venue

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"perpmaker/internal/config"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Dry-run mode never issues a network call and always reports success.
func TestRESTClientDryRunPlaceOrderSucceedsWithoutNetwork(t *testing.T) {
	cfg := config.Config{DryRun: true, Venue: config.VenueConfig{RESTBaseURL: "http://127.0.0.1:0", BearerToken: "test-token"}}
	client := NewRESTClient(cfg, testLogger())

	resp, err := client.PlaceOrder(context.Background(), PlaceOrderRequest{
		Symbol:   "BTC-PERP",
		Side:     "BUY",
		QtyStr:   "0.01",
		PriceStr: "60000",
		ClOrdID:  "mm-buy-deadbeef",
	})
	if err != nil {
		t.Fatalf("dry-run place order should never error, got %v", err)
	}
	if resp.Code != 0 {
		t.Fatalf("dry-run place order should report success code, got %d", resp.Code)
	}
}

func TestRESTClientDryRunCancelOrdersSucceedsWithoutNetwork(t *testing.T) {
	cfg := config.Config{DryRun: true, Venue: config.VenueConfig{RESTBaseURL: "http://127.0.0.1:0", BearerToken: "test-token"}}
	client := NewRESTClient(cfg, testLogger())

	if err := client.CancelOrders(context.Background(), []string{"mm-buy-deadbeef"}); err != nil {
		t.Fatalf("dry-run cancel should never error, got %v", err)
	}
}

// An empty cancel batch is a no-op, independent of dry-run.
func TestRESTClientCancelOrdersEmptyBatchIsNoop(t *testing.T) {
	cfg := config.Config{Venue: config.VenueConfig{RESTBaseURL: "http://127.0.0.1:0", BearerToken: "test-token"}}
	client := NewRESTClient(cfg, testLogger())

	if err := client.CancelOrders(context.Background(), nil); err != nil {
		t.Fatalf("empty cancel batch should be a no-op, got %v", err)
	}
}
