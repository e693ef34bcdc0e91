package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"leprechaun-go/internal/exchange"
	"leprechaun-go/internal/execution"
	"leprechaun-go/internal/gateway"
	"leprechaun-go/internal/options"
	"leprechaun-go/internal/signal"
	"leprechaun-go/internal/storage"
	"leprechaun-go/internal/strategy"
	"leprechaun-go/internal/trader"
)

type fakeTrader struct {
	screened   []string
	runTickers []string
	runBalance float64
	runErr     error
}

func (f *fakeTrader) Screen(_ context.Context, tickers []string) (strategy.ScreenResult, error) {
	f.screened = tickers
	return strategy.ScreenResult{
		Candidates: []signal.Candidate{{Ticker: "AAPL", CurrentPrice: 150, PriceDiffPercentage: 8, EWMAVolatility5d: 0.3, EWMAVolatility1mo: 1.2}},
		Skipped:    []strategy.Skip{{Ticker: "MSFT", Reason: "outside band"}},
	}, nil
}

func (f *fakeTrader) RunScreenAndTrade(_ context.Context, tickers []string, balance float64) (trader.Report, error) {
	f.runTickers = tickers
	f.runBalance = balance
	r := trader.Report{RunID: "run-1", Tickers: tickers, Balance: balance, BalanceAfter: balance}
	if f.runErr != nil {
		r.Err = f.runErr.Error()
	}
	return r, f.runErr
}

type fakeGateway struct{ err error }

func (f fakeGateway) AccountSummary(context.Context) (gateway.AccountSummary, error) {
	return gateway.AccountSummary{AccountID: "PAPER", Currency: "USD", Cash: 1000}, f.err
}

func (f fakeGateway) Connection() gateway.Connection {
	return gateway.Connection{Host: "127.0.0.1", Port: 5000, ClientID: "PAPER", Alive: true}
}

type fakeStore struct{ limit int }

func (f *fakeStore) RecentOutcomes(_ context.Context, limit int) ([]storage.OutcomeRecord, error) {
	f.limit = limit
	return []storage.OutcomeRecord{{ID: 1, RunID: "run-1", Outcome: execution.Outcome{State: execution.StateFilled}}}, nil
}

func newTestServer(tr *fakeTrader, gw fakeGateway, store OutcomeStore) *Server {
	return NewServer(tr, gw, store, Options{DefaultBalance: 10000}, zerolog.Nop())
}

func TestFindBestStocks(t *testing.T) {
	tr := &fakeTrader{}
	srv := newTestServer(tr, fakeGateway{}, nil)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/find-best-stocks?tickers=aapl,%20msft,,", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(tr.screened) != 2 || tr.screened[1] != "MSFT" {
		t.Fatalf("unexpected tickers %v", tr.screened)
	}
	var body BestStocksResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.BestStocks) != 1 || body.BestStocks[0].Ticker != "AAPL" || len(body.Skipped) != 1 {
		t.Fatalf("unexpected body %+v", body)
	}
	if !strings.Contains(rec.Body.String(), `"best_stocks"`) {
		t.Fatalf("expected best_stocks key: %s", rec.Body.String())
	}
}

func TestFindBestStocksMissingTickers(t *testing.T) {
	srv := newTestServer(&fakeTrader{}, fakeGateway{}, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/find-best-stocks", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	var body ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil || body.Error == "" || body.Message == "" {
		t.Fatalf("expected error body, got %s", rec.Body.String())
	}
}

func TestRunUsesDefaultBalance(t *testing.T) {
	tr := &fakeTrader{}
	srv := newTestServer(tr, fakeGateway{}, nil)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/runs", bytes.NewBufferString(`{"tickers":["aapl","msft"]}`))
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if tr.runBalance != 10000 || len(tr.runTickers) != 2 {
		t.Fatalf("unexpected run args %v %.2f", tr.runTickers, tr.runBalance)
	}

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/api/v1/runs", bytes.NewBufferString(`{"tickers":["aapl"],"balance":0}`))
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || tr.runBalance != 0 {
		t.Fatalf("expected explicit zero balance to be honoured, got %d %.2f", rec.Code, tr.runBalance)
	}
}

func TestRunGatewayFailureReturnsReport(t *testing.T) {
	tr := &fakeTrader{runErr: errors.Join(errors.New("gateway"), gateway.ErrConnectionExhausted)}
	srv := newTestServer(tr, fakeGateway{}, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/runs", bytes.NewBufferString(`{"tickers":["AAPL"]}`)))
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rec.Code)
	}
	var report trader.Report
	if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if report.RunID != "run-1" || report.Err == "" {
		t.Fatalf("expected partial report, got %+v", report)
	}
}

func TestRunRejectsBadBodies(t *testing.T) {
	srv := newTestServer(&fakeTrader{}, fakeGateway{}, nil)
	for _, body := range []string{`not json`, `{"tickers":[]}`, `{"tickers":["AAPL"],"balance":-5}`} {
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/runs", bytes.NewBufferString(body)))
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("body %q: expected 400, got %d", body, rec.Code)
		}
	}
}

func TestOutcomesEndpoint(t *testing.T) {
	store := &fakeStore{}
	srv := newTestServer(&fakeTrader{}, fakeGateway{}, store)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/runs/outcomes?limit=5", nil))
	if rec.Code != http.StatusOK || store.limit != 5 {
		t.Fatalf("expected 200 with limit 5, got %d limit=%d", rec.Code, store.limit)
	}

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/runs/outcomes?limit=abc", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad limit, got %d", rec.Code)
	}

	noStore := newTestServer(&fakeTrader{}, fakeGateway{}, nil)
	rec = httptest.NewRecorder()
	noStore.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/runs/outcomes", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without store, got %d", rec.Code)
	}
}

func TestAccountAndGateway(t *testing.T) {
	srv := newTestServer(&fakeTrader{}, fakeGateway{}, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/account", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"account_id":"PAPER"`) {
		t.Fatalf("unexpected account response %d %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/gateway", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"alive":true`) {
		t.Fatalf("unexpected gateway response %d %s", rec.Code, rec.Body.String())
	}

	failing := newTestServer(&fakeTrader{}, fakeGateway{err: gateway.ErrNotConnected}, nil)
	rec = httptest.NewRecorder()
	failing.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/account", nil))
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rec.Code)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	srv := newTestServer(&fakeTrader{}, fakeGateway{}, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected healthz 200, got %d", rec.Code)
	}
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "gateway_up") {
		t.Fatalf("expected metrics exposition, got %d", rec.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	srv := newTestServer(&fakeTrader{}, fakeGateway{}, nil)
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/runs", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Header().Get("Access-Control-Allow-Origin") != "http://localhost:3000" {
		t.Fatalf("expected CORS allow header, got %v", rec.Header())
	}
}

func TestWebSocketStreamsOutcomes(t *testing.T) {
	srv := newTestServer(&fakeTrader{}, fakeGateway{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.Hub().Run(ctx)

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(WSSubscribeRequest{Op: "subscribe", Channels: []string{ChannelOutcomes}}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for srv.Hub().Subscribers(ChannelOutcomes) == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("subscription never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	srv.Hub().PublishRun(trader.Report{RunID: "ignored"})
	srv.Hub().Record(execution.Outcome{
		Contract: options.Contract{Symbol: "AAPL", Expiration: "20250117", Strike: 150, Right: options.Call},
		State:    execution.StateFilled,
	})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg struct {
		Type string            `json:"type"`
		Data execution.Outcome `json:"data"`
	}
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	if msg.Type != "outcome" || msg.Data.Contract.Symbol != "AAPL" {
		t.Fatalf("unexpected message %+v", msg)
	}
}

type fakeQuotes map[string]float64

func (f fakeQuotes) PrevClose(_ context.Context, ticker string) (float64, error) {
	if ticker == "DOWN" {
		return 0, errors.New("polygon unavailable")
	}
	p, ok := f[ticker]
	if !ok {
		return 0, exchange.ErrNoHistoricalData
	}
	return p, nil
}

func TestQuoteEndpoint(t *testing.T) {
	srv := newTestServer(&fakeTrader{}, fakeGateway{}, nil).WithQuotes(fakeQuotes{"AAPL": 187.5})
	cases := []struct {
		path string
		code int
	}{
		{"/api/v1/quote/aapl", http.StatusOK},
		{"/api/v1/quote/ZZZZ", http.StatusNotFound},
		{"/api/v1/quote/DOWN", http.StatusBadGateway},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tc.path, nil))
		if rec.Code != tc.code {
			t.Fatalf("%s: expected %d, got %d: %s", tc.path, tc.code, rec.Code, rec.Body.String())
		}
	}

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/quote/aapl", nil))
	var quote QuoteResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &quote); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if quote.Ticker != "AAPL" || quote.PrevClose != 187.5 {
		t.Fatalf("unexpected quote %+v", quote)
	}

	disabled := newTestServer(&fakeTrader{}, fakeGateway{}, nil)
	rec = httptest.NewRecorder()
	disabled.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/quote/AAPL", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without a quote source, got %d", rec.Code)
	}
}

type fakeDesk struct {
	symbol string
	right  options.Right
	strike float64
	side   execution.Side
	qty    int
	err    error
}

func (f *fakeDesk) PlaceStrike(_ context.Context, symbol string, right options.Right, strike float64, side execution.Side, qty int) (execution.Outcome, error) {
	f.symbol, f.right, f.strike, f.side, f.qty = symbol, right, strike, side, qty
	out := execution.Outcome{
		Contract: options.Contract{Symbol: symbol, Expiration: "20250117", Strike: strike, Right: right, Exchange: "SMART"},
		Side:     side,
		Quantity: qty,
		Attempts: 1,
		State:    execution.StateFilled,
	}
	if f.err != nil {
		out.State = execution.StateExhausted
		out.Err = f.err.Error()
	}
	return out, f.err
}

func postOrder(srv *Server, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/orders", bytes.NewBufferString(body)))
	return rec
}

func TestOrderEndpointPlacesContract(t *testing.T) {
	desk := &fakeDesk{}
	srv := newTestServer(&fakeTrader{}, fakeGateway{}, nil).WithOrderDesk(desk)

	rec := postOrder(srv, `{"ticker":"aapl","right":"put","strike":150,"quantity":2,"action":"sell"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if desk.symbol != "AAPL" || desk.right != options.Put || desk.strike != 150 || desk.side != execution.Sell || desk.qty != 2 {
		t.Fatalf("unexpected desk call %+v", desk)
	}
	var out execution.Outcome
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !out.Filled() || out.Contract.Key() != "AAPL 20250117 150 P" {
		t.Fatalf("unexpected outcome %+v", out)
	}

	postOrder(srv, `{"ticker":"MSFT","right":"C","strike":400,"quantity":1}`)
	if desk.side != execution.Buy || desk.right != options.Call {
		t.Fatalf("expected BUY call by default, got %+v", desk)
	}
}

func TestOrderEndpointRejectsMissingFields(t *testing.T) {
	desk := &fakeDesk{}
	srv := newTestServer(&fakeTrader{}, fakeGateway{}, nil).WithOrderDesk(desk)
	for _, body := range []string{
		`not json`,
		`{"right":"C","strike":150,"quantity":1}`,
		`{"ticker":"AAPL","strike":150,"quantity":1}`,
		`{"ticker":"AAPL","right":"C","quantity":1}`,
		`{"ticker":"AAPL","right":"C","strike":150}`,
		`{"ticker":"AAPL","right":"X","strike":150,"quantity":1}`,
		`{"ticker":"AAPL","right":"C","strike":150,"quantity":1,"action":"HOLD"}`,
		`{"ticker":"AAPL","right":"C","strike":-5,"quantity":1}`,
		`{"ticker":"AAPL","right":"C","strike":150,"quantity":-1}`,
	} {
		if rec := postOrder(srv, body); rec.Code != http.StatusBadRequest {
			t.Fatalf("body %q: expected 400, got %d", body, rec.Code)
		}
	}
	if desk.symbol != "" {
		t.Fatalf("invalid requests must not reach the desk")
	}
}

func TestOrderEndpointErrorStatuses(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code int
	}{
		{"gateway fatal", gateway.ErrAuthentication, http.StatusBadGateway},
		{"not filled", execution.ErrOrderNotFilled, http.StatusUnprocessableEntity},
		{"unlisted strike", execution.ErrStrikeNotListed, http.StatusNotFound},
		{"empty chain", options.ErrEmptyChain, http.StatusNotFound},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := newTestServer(&fakeTrader{}, fakeGateway{}, nil).WithOrderDesk(&fakeDesk{err: tc.err})
			rec := postOrder(srv, `{"ticker":"AAPL","right":"C","strike":150,"quantity":1}`)
			if rec.Code != tc.code {
				t.Fatalf("expected %d, got %d: %s", tc.code, rec.Code, rec.Body.String())
			}
		})
	}

	srv := newTestServer(&fakeTrader{}, fakeGateway{}, nil).WithOrderDesk(&fakeDesk{err: execution.ErrOrderNotFilled})
	rec := postOrder(srv, `{"ticker":"AAPL","right":"C","strike":150,"quantity":1}`)
	var out execution.Outcome
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.State != execution.StateExhausted || out.Err == "" {
		t.Fatalf("expected the unfilled outcome in the body, got %+v", out)
	}
}
