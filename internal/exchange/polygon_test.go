package exchange

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestPolygon(t *testing.T, handler http.HandlerFunc) *Polygon {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewPolygon("test-key", zerolog.Nop(), WithBaseURL(server.URL), WithHTTPClient(server.Client()))
}

func TestPrevClose(t *testing.T) {
	client := newTestPolygon(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/aggs/ticker/AAPL/prev" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("apiKey") != "test-key" {
			t.Errorf("missing api key")
		}
		_, _ = w.Write([]byte(`{"ticker":"AAPL","status":"OK","resultsCount":1,"results":[{"c":150.25,"o":149,"h":151,"l":148,"v":1000,"t":1704067200000}]}`))
	})

	price, err := client.PrevClose(context.Background(), "aapl")
	if err != nil {
		t.Fatalf("PrevClose returned error: %v", err)
	}
	if price != 150.25 {
		t.Fatalf("expected 150.25, got %.2f", price)
	}
}

func TestDailyBarsSortedAndEmpty(t *testing.T) {
	client := newTestPolygon(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.Contains(r.URL.Path, "/EMPTY/"):
			_, _ = w.Write([]byte(`{"ticker":"EMPTY","status":"OK","resultsCount":0}`))
		case strings.HasPrefix(r.URL.Path, "/v2/aggs/ticker/MSFT/range/1/day/2024-01-01/2024-01-31"):
			_, _ = w.Write([]byte(`{"results":[{"c":2,"t":1704153600000},{"c":1,"t":1704067200000}]}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	})

	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)
	bars, err := client.DailyBars(context.Background(), "MSFT", from, to)
	if err != nil {
		t.Fatalf("DailyBars returned error: %v", err)
	}
	if len(bars) != 2 || bars[0].Close != 1 || bars[1].Close != 2 {
		t.Fatalf("expected ascending bars, got %+v", bars)
	}

	_, err = client.DailyBars(context.Background(), "EMPTY", from, to)
	if !errors.Is(err, ErrNoHistoricalData) {
		t.Fatalf("expected ErrNoHistoricalData, got %v", err)
	}
}

func TestPolygonErrorStatus(t *testing.T) {
	client := newTestPolygon(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"status":"NOT_AUTHORIZED"}`))
	})
	_, err := client.PrevClose(context.Background(), "AAPL")
	if err == nil || !strings.Contains(err.Error(), "403") {
		t.Fatalf("expected 403 error, got %v", err)
	}
}

func TestOptionChainsGroupsNearestExpiration(t *testing.T) {
	const body = `{"status":"OK","results":[
		{"ticker":"O:AAPL250117C00145000","underlying_ticker":"AAPL","contract_type":"call","expiration_date":"2025-01-17","strike_price":145},
		{"ticker":"O:AAPL250117P00145000","underlying_ticker":"AAPL","contract_type":"put","expiration_date":"2025-01-17","strike_price":145},
		{"ticker":"O:AAPL250117C00150000","underlying_ticker":"AAPL","contract_type":"call","expiration_date":"2025-01-17","strike_price":150},
		{"ticker":"O:AAPL250124C00152500","underlying_ticker":"AAPL","contract_type":"call","expiration_date":"2025-01-24","strike_price":152.5}
	]}`
	client := newTestPolygon(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v3/reference/options/contracts" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("underlying_ticker") != "AAPL" {
			t.Errorf("missing underlying filter")
		}
		_, _ = w.Write([]byte(body))
	})

	chains, err := client.OptionChains(context.Background(), "aapl")
	if err != nil {
		t.Fatalf("OptionChains returned error: %v", err)
	}
	if len(chains) != 1 {
		t.Fatalf("expected one chain, got %d", len(chains))
	}
	chain := chains[0]
	if len(chain.Expirations) != 2 || chain.Expirations[0] != "20250117" {
		t.Fatalf("unexpected expirations %v", chain.Expirations)
	}
	if len(chain.Strikes) != 2 || chain.Strikes[0] != 145 || chain.Strikes[1] != 150 {
		t.Fatalf("unexpected strikes %v", chain.Strikes)
	}
}

func TestOptionChainsEmpty(t *testing.T) {
	client := newTestPolygon(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"OK","results":[]}`))
	})
	chains, err := client.OptionChains(context.Background(), "ZZZZ")
	if err != nil {
		t.Fatalf("empty chain must not be an error: %v", err)
	}
	if len(chains) != 0 {
		t.Fatalf("expected no chains, got %d", len(chains))
	}
}
