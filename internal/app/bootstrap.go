// Package app assembles the trading components for the configured broker mode.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"leprechaun-go/internal/config"
	"leprechaun-go/internal/exchange"
	"leprechaun-go/internal/execution"
	"leprechaun-go/internal/gateway"
	"leprechaun-go/internal/ibkr"
	"leprechaun-go/internal/options"
	"leprechaun-go/internal/paper"
	"leprechaun-go/internal/retry"
	"leprechaun-go/internal/risk"
	"leprechaun-go/internal/storage"
	"leprechaun-go/internal/strategy"
	"leprechaun-go/internal/trader"
)

// Options adjust bootstrap for the calling binary.
type Options struct {
	// Monitor selects the long-lived connect retry delay instead of the trading one.
	Monitor bool
	// NoStore skips opening the SQLite store.
	NoStore bool
}

// App holds the wired components. Close releases everything it opened.
type App struct {
	Config   *config.Config
	Log      zerolog.Logger
	Polygon  *exchange.Polygon
	Session  *gateway.Session
	Executor *execution.Executor
	Trader   *trader.Trader
	Store    *storage.Store
	Paper    *paper.Broker
	Ledger   *paper.Ledger

	closers []func() error
}

// Bootstrap builds the component graph described by cfg.
func Bootstrap(cfg *config.Config, log zerolog.Logger, opts Options) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	a := &App{Config: cfg, Log: log}

	if cfg.Polygon.APIKey == "" {
		log.Warn().Msg("polygon api key is empty, screening and paper marks will fail")
	}
	a.Polygon = exchange.NewPolygon(cfg.Polygon.APIKey, log,
		exchange.WithBaseURL(cfg.Polygon.BaseURL),
		exchange.WithTimeout(cfg.Polygon.Timeout()),
	)

	var (
		client gateway.Client
		chains execution.ChainSource
	)
	switch cfg.Broker.Mode {
	case config.ModeIBKR:
		ib := ibkr.New(ibkr.Config{
			BasePath:    cfg.Broker.BasePath,
			InsecureTLS: cfg.Broker.InsecureTLS,
			Exchange:    cfg.Orders.Exchange,
		}, log)
		client, chains = ib, ib
	default:
		accountID := cfg.Broker.ClientID
		if accountID == "" {
			accountID = "PAPER"
		}
		a.Paper = paper.NewBroker(paper.BrokerConfig{
			AccountID:       accountID,
			FillAfterPolls:  cfg.Paper.FillAfterPolls,
			PremiumPct:      cfg.Paper.PremiumPct,
			StrikeStep:      cfg.Paper.StrikeStep,
			StrikeCount:     cfg.Paper.StrikeCount,
			ExpirationCount: cfg.Paper.ExpirationCount,
			Exchange:        cfg.Orders.Exchange,
			Multiplier:      float64(cfg.Orders.Multiplier),
			MarkTTL:         cfg.Paper.MarkTTL(),
		}, a.Polygon, paper.NewAccount(cfg.Paper.StartingCash, 0), log)
		client, chains = a.Paper, a.Paper
	}

	a.Session = gateway.NewSession(client,
		gateway.Endpoint{Host: cfg.Broker.Host, Port: cfg.Broker.Port, ClientID: cfg.Broker.ClientID},
		Policy(cfg.Broker, opts.Monitor), log)

	if cfg.Broker.ChainSource == config.ChainSourcePolygon {
		chains = routed{src: a.Polygon, exchange: cfg.Orders.Exchange}
	} else {
		chains = guarded{session: a.Session, src: chains}
	}

	a.Executor = execution.NewExecutor(a.Session, chains, execution.Config{
		MaxRetries:    cfg.Orders.MaxRetries,
		RetryDelay:    cfg.Orders.RetryDelay(),
		FillPollDelay: cfg.Orders.FillPollDelay(),
		Quantity:      cfg.Orders.Quantity,
		OrderType:     cfg.Orders.OrderType,
		TIF:           cfg.Orders.TimeInForce,
	}, log)

	if a.Paper != nil {
		a.Ledger = paper.NewLedger(64)
		a.Executor.AddRecorder(a.Ledger)
	}
	if cfg.Paper.FillsPath != "" {
		rec, err := paper.NewOutcomeLog(cfg.Paper.FillsPath, log)
		if err != nil {
			return nil, fmt.Errorf("open outcome log: %w", err)
		}
		a.Executor.AddRecorder(rec)
		a.closers = append(a.closers, rec.Close)
	}

	var store trader.Store
	if !opts.NoStore && cfg.Store.Path != "" {
		st, err := storage.Open(cfg.Store.Path)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.Store = st
		store = st
		a.closers = append(a.closers, st.Close)
	}

	params := ScreenerParams(cfg.Screener)
	screener := strategy.NewScreener(a.Polygon, strategy.Build(cfg.Screener.Mode, params), params, cfg.Screener.LookbackDays, log)
	a.Trader = trader.New(a.Session, screener, a.Executor, trader.Config{
		Multiplier: float64(cfg.Orders.Multiplier),
		Limits:     risk.Limits{MaxNotionalPerTrade: cfg.Risk.MaxNotionalPerTrade},
	}, store, log)

	log.Info().
		Str("mode", cfg.Broker.Mode).
		Str("chain_source", cfg.Broker.ChainSource).
		Str("screener", cfg.Screener.Mode).
		Str("endpoint", fmt.Sprintf("%s:%d", cfg.Broker.Host, cfg.Broker.Port)).
		Msg("components wired")
	return a, nil
}

// Close disconnects the gateway and closes every opened resource.
func (a *App) Close() error {
	var errs []error
	if a.Session != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		errs = append(errs, a.Session.Disconnect(ctx))
		cancel()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}

// Policy returns the connect retry policy for the trading flow or the monitor.
func Policy(b config.Broker, monitor bool) retry.Policy {
	delay := b.RetryDelay()
	if monitor {
		delay = b.MonitorRetryDelay()
	}
	return retry.Policy{MaxAttempts: b.MaxRetries, Delay: delay}
}

// ScreenerParams maps screener config onto strategy params.
func ScreenerParams(s config.Screener) strategy.Params {
	return strategy.Params{
		SMAWindow:       s.SMAWindow,
		ShortWindow:     s.ShortWindow,
		LongWindow:      s.LongWindow,
		Lambda:          s.Lambda,
		MinPriceDiffPct: s.MinPriceDiffPct,
		MaxPriceDiffPct: s.MaxPriceDiffPct,
		MinVolatility:   s.MinVolatility,
		MaxVolatility:   s.MaxVolatility,
		BandPct:         s.BandPct,
	}
}

// guarded heals the gateway session before asking the brokerage for chains.
type guarded struct {
	session *gateway.Session
	src     execution.ChainSource
}

func (g guarded) OptionChains(ctx context.Context, symbol string) ([]options.Chain, error) {
	if err := g.session.EnsureConnected(ctx); err != nil {
		return nil, err
	}
	return g.src.OptionChains(ctx, symbol)
}

// routed stamps the configured routing destination onto chains from a data vendor.
type routed struct {
	src      execution.ChainSource
	exchange string
}

func (r routed) OptionChains(ctx context.Context, symbol string) ([]options.Chain, error) {
	chains, err := r.src.OptionChains(ctx, symbol)
	if err != nil {
		return nil, err
	}
	out := make([]options.Chain, len(chains))
	for i, c := range chains {
		c.Exchange = r.exchange
		out[i] = c
	}
	return out, nil
}
