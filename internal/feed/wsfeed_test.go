package feed

import (
	"context"
	"io"
	"log/slog"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestParseDepthSizesTruncatesToRequestedLevels(t *testing.T) {
	levels := [][2]string{{"60000", "1.5"}, {"59999", "2.0"}, {"59998", "3.0"}}
	sizes := parseDepthSizes(levels, 2)
	if len(sizes) != 2 {
		t.Fatalf("expected 2 sizes, got %d", len(sizes))
	}
	if sizes[0] != 1.5 || sizes[1] != 2.0 {
		t.Fatalf("unexpected parsed sizes: %v", sizes)
	}
}

func TestParseDepthSizesClampsToAvailableLevels(t *testing.T) {
	levels := [][2]string{{"60000", "1.5"}}
	sizes := parseDepthSizes(levels, 5)
	if len(sizes) != 1 {
		t.Fatalf("expected clamp to 1 available level, got %d", len(sizes))
	}
}

func TestDispatchRoutesBookTickerEnvelope(t *testing.T) {
	f := NewWSCEXFeed("wss://example.invalid", "BTCUSDT", 0, testLogger())
	raw := []byte(`{"e":"bookTicker","b":60000.1,"a":60000.5}`)
	f.dispatch(context.Background(), raw)

	select {
	case evt := <-f.tickerCh:
		if evt.Bid != 60000.1 || evt.Ask != 60000.5 {
			t.Fatalf("unexpected ticker event: %+v", evt)
		}
	default:
		t.Fatalf("expected a book-ticker event on the channel")
	}
}

func TestDispatchOnlyForwardsClosedKlines(t *testing.T) {
	f := NewWSCEXFeed("wss://example.invalid", "BTCUSDT", 0, testLogger())
	f.dispatch(context.Background(), []byte(`{"e":"kline_1s","x":false,"q":123.4}`))
	select {
	case evt := <-f.klineCh:
		t.Fatalf("unexpected kline event for an unclosed candle: %+v", evt)
	default:
	}

	f.dispatch(context.Background(), []byte(`{"e":"kline_1s","x":true,"q":123.4}`))
	select {
	case evt := <-f.klineCh:
		if evt.QuoteVolume != 123.4 {
			t.Fatalf("unexpected kline volume: %+v", evt)
		}
	default:
		t.Fatalf("expected a kline event for a closed candle")
	}
}

func TestDispatchIgnoresUnparseableMessages(t *testing.T) {
	f := NewWSCEXFeed("wss://example.invalid", "BTCUSDT", 0, testLogger())
	f.dispatch(context.Background(), []byte(`not json`))
	select {
	case <-f.tickerCh:
		t.Fatalf("expected no event from an unparseable message")
	default:
	}
}
