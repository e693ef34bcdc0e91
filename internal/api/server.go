// Package api exposes screening, runs and account state over HTTP and a websocket stream.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/rs/zerolog"

	"leprechaun-go/internal/exchange"
	"leprechaun-go/internal/execution"
	"leprechaun-go/internal/gateway"
	"leprechaun-go/internal/metrics"
	"leprechaun-go/internal/options"
	"leprechaun-go/internal/storage"
	"leprechaun-go/internal/strategy"
	"leprechaun-go/internal/trader"
)

// Trader is the run entry point the API drives.
type Trader interface {
	Screen(ctx context.Context, tickers []string) (strategy.ScreenResult, error)
	RunScreenAndTrade(ctx context.Context, tickers []string, balance float64) (trader.Report, error)
}

// Gateway exposes account and connection state.
type Gateway interface {
	AccountSummary(ctx context.Context) (gateway.AccountSummary, error)
	Connection() gateway.Connection
}

// OutcomeStore lists persisted outcomes.
type OutcomeStore interface {
	RecentOutcomes(ctx context.Context, limit int) ([]storage.OutcomeRecord, error)
}

// QuoteSource supplies the previous session close for a ticker.
type QuoteSource interface {
	PrevClose(ctx context.Context, ticker string) (float64, error)
}

// OrderDesk places a single option order at an exact strike.
type OrderDesk interface {
	PlaceStrike(ctx context.Context, symbol string, right options.Right, strike float64, side execution.Side, qty int) (execution.Outcome, error)
}

// Options tune the server.
type Options struct {
	DefaultBalance float64
	AllowedOrigins []string
	RunTimeout     time.Duration
}

// Server handles REST API and WebSocket connections
type Server struct {
	trader Trader
	gw     Gateway
	store  OutcomeStore
	quotes QuoteSource
	desk   OrderDesk
	opts   Options
	router *mux.Router
	hub    *Hub
	log    zerolog.Logger
}

// NewServer creates a new API server. store may be nil.
func NewServer(tr Trader, gw Gateway, store OutcomeStore, opts Options, log zerolog.Logger) *Server {
	if opts.RunTimeout <= 0 {
		opts.RunTimeout = 10 * time.Minute
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"http://localhost:3000"}
	}
	log = log.With().Str("component", "api").Logger()
	s := &Server{
		trader: tr,
		gw:     gw,
		store:  store,
		opts:   opts,
		router: mux.NewRouter(),
		hub:    NewHub(log),
		log:    log,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/find-best-stocks", s.handleFindBestStocks).Methods("GET")

	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/runs", s.handleRun).Methods("POST")
	api.HandleFunc("/runs/outcomes", s.handleOutcomes).Methods("GET")
	api.HandleFunc("/account", s.handleAccount).Methods("GET")
	api.HandleFunc("/gateway", s.handleGateway).Methods("GET")
	api.HandleFunc("/quote/{ticker}", s.handleQuote).Methods("GET")
	api.HandleFunc("/orders", s.handleOrder).Methods("POST")

	s.router.HandleFunc("/ws", s.handleWebSocket)
	s.router.Handle("/metrics", metrics.Handler()).Methods("GET")
	s.router.HandleFunc("/healthz", s.handleHealth).Methods("GET")
}

// WithQuotes enables the quote endpoint.
func (s *Server) WithQuotes(q QuoteSource) *Server {
	s.quotes = q
	return s
}

// WithOrderDesk enables manual single-contract orders.
func (s *Server) WithOrderDesk(d OrderDesk) *Server {
	s.desk = d
	return s
}

// Hub returns the websocket hub so it can be registered as an outcome and run sink.
func (s *Server) Hub() *Hub { return s.hub }

// Handler returns the router wrapped with CORS.
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins: s.opts.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	})
	return c.Handler(s.router)
}

// Start serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context, addr string) error {
	go s.hub.Run(ctx)

	srv := &http.Server{Addr: addr, Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", addr).Msg("api server starting")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleFindBestStocks(w http.ResponseWriter, r *http.Request) {
	tickers := splitTickers(r.URL.Query().Get("tickers"))
	if len(tickers) == 0 {
		respondError(w, http.StatusBadRequest, "missing tickers", "pass a comma separated tickers query parameter")
		return
	}
	res, err := s.trader.Screen(r.Context(), tickers)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "screen failed", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, BestStocksResponse{BestStocks: res.Candidates, Skipped: res.Skipped})
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	var req RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request", err.Error())
		return
	}
	tickers := splitTickers(strings.Join(req.Tickers, ","))
	if len(tickers) == 0 {
		respondError(w, http.StatusBadRequest, "missing tickers", "tickers must list at least one symbol")
		return
	}
	balance := s.opts.DefaultBalance
	if req.Balance != nil {
		balance = *req.Balance
	}
	if balance < 0 {
		respondError(w, http.StatusBadRequest, "invalid balance", "balance must not be negative")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.opts.RunTimeout)
	defer cancel()
	report, err := s.trader.RunScreenAndTrade(ctx, tickers, balance)
	switch {
	case err == nil:
		respondJSON(w, http.StatusOK, report)
	case gateway.Fatal(err):
		respondJSON(w, http.StatusBadGateway, report)
	case errors.Is(err, context.DeadlineExceeded):
		respondJSON(w, http.StatusGatewayTimeout, report)
	default:
		respondJSON(w, http.StatusInternalServerError, report)
	}
}

func (s *Server) handleOutcomes(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		respondError(w, http.StatusServiceUnavailable, "store disabled", "no outcome store configured")
		return
	}
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 1000 {
			respondError(w, http.StatusBadRequest, "invalid limit", "limit must be between 1 and 1000")
			return
		}
		limit = n
	}
	recs, err := s.store.RecentOutcomes(r.Context(), limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "store error", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, recs)
}

func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()
	summary, err := s.gw.AccountSummary(ctx)
	if err != nil {
		respondError(w, http.StatusBadGateway, "gateway error", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, summary)
}

func (s *Server) handleGateway(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.gw.Connection())
}

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	if s.quotes == nil {
		respondError(w, http.StatusServiceUnavailable, "quotes disabled", "no quote source configured")
		return
	}
	ticker := strings.ToUpper(strings.TrimSpace(mux.Vars(r)["ticker"]))
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()
	price, err := s.quotes.PrevClose(ctx, ticker)
	switch {
	case err == nil:
		respondJSON(w, http.StatusOK, QuoteResponse{Ticker: ticker, PrevClose: price})
	case errors.Is(err, exchange.ErrNoHistoricalData):
		respondError(w, http.StatusNotFound, "no data", err.Error())
	default:
		respondError(w, http.StatusBadGateway, "quote failed", err.Error())
	}
}

func (s *Server) handleOrder(w http.ResponseWriter, r *http.Request) {
	if s.desk == nil {
		respondError(w, http.StatusServiceUnavailable, "orders disabled", "no order desk configured")
		return
	}
	var req OrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request", err.Error())
		return
	}
	ticker := strings.ToUpper(strings.TrimSpace(req.Ticker))
	right, okRight := parseRight(req.Right)
	side, okSide := parseSide(req.Action)
	switch {
	case ticker == "" || req.Strike == nil || req.Quantity == 0 || req.Right == "":
		respondError(w, http.StatusBadRequest, "missing fields", "ticker, right, strike and quantity are required")
		return
	case !okRight:
		respondError(w, http.StatusBadRequest, "invalid right", "right must be C, P, call or put")
		return
	case !okSide:
		respondError(w, http.StatusBadRequest, "invalid action", "action must be BUY or SELL")
		return
	case *req.Strike <= 0 || req.Quantity < 0:
		respondError(w, http.StatusBadRequest, "invalid order", "strike and quantity must be positive")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.opts.RunTimeout)
	defer cancel()
	out, err := s.desk.PlaceStrike(ctx, ticker, right, *req.Strike, side, req.Quantity)
	switch {
	case err == nil:
		respondJSON(w, http.StatusOK, out)
	case gateway.Fatal(err):
		respondJSON(w, http.StatusBadGateway, out)
	case errors.Is(err, execution.ErrOrderNotFilled):
		respondJSON(w, http.StatusUnprocessableEntity, out)
	case errors.Is(err, execution.ErrStrikeNotListed), errors.Is(err, options.ErrEmptyChain):
		respondError(w, http.StatusNotFound, "contract not found", err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		respondJSON(w, http.StatusGatewayTimeout, out)
	default:
		respondError(w, http.StatusInternalServerError, "order failed", err.Error())
	}
}

func parseRight(raw string) (options.Right, bool) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "C", "CALL":
		return options.Call, true
	case "P", "PUT":
		return options.Put, true
	}
	return "", false
}

func parseSide(raw string) (execution.Side, bool) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "", "BUY":
		return execution.Buy, true
	case "SELL":
		return execution.Sell, true
	}
	return "", false
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func splitTickers(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if tk := strings.ToUpper(strings.TrimSpace(part)); tk != "" {
			out = append(out, tk)
		}
	}
	return out
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, err string, message string) {
	respondJSON(w, status, ErrorResponse{Error: err, Message: message})
}
