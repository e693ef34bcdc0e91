// Binary server exposes screening and screen-and-trade runs over HTTP with a websocket stream.
package main

import (
	"context"
	"errors"
	"flag"
	"os"
	ossignal "os/signal"
	"strings"
	"syscall"

	"leprechaun-go/internal/api"
	"leprechaun-go/internal/app"
	"leprechaun-go/internal/config"
	"leprechaun-go/internal/gateway"
	"leprechaun-go/internal/metrics"
	"leprechaun-go/internal/util"
)

func main() {
	configPath := flag.String("config", "internal/config/config.yaml", "path to the YAML config")
	envPath := flag.String("env", ".env", "optional dotenv file")
	origins := flag.String("origins", "", "comma separated CORS origins")
	flag.Parse()

	cfg, err := config.LoadWithEnv(*configPath, *envPath)
	if err != nil {
		bootLog := util.NewLogger("info")
		bootLog.Fatal().Err(err).Msg("load config")
	}
	log := util.NewLogger(cfg.App.LogLevel).With().Str("app", cfg.App.Name).Logger()

	if cfg.App.MetricsAddr != "" {
		_ = metrics.Serve(cfg.App.MetricsAddr)
		log.Info().Str("addr", cfg.App.MetricsAddr).Msg("metrics up")
	}

	a, err := app.Bootstrap(cfg, log, app.Options{})
	if err != nil {
		log.Fatal().Err(err).Msg("bootstrap")
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Warn().Err(err).Msg("close")
		}
	}()

	ctx, cancel := ossignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := a.Session.Connect(ctx); err != nil {
		if gateway.Fatal(err) {
			log.Fatal().Err(err).Msg("gateway connect")
		}
		log.Warn().Err(err).Msg("gateway not reachable yet, runs will retry")
	}
	go func() {
		if err := a.Session.Monitor(ctx, cfg.Broker.MonitorInterval()); err != nil {
			log.Error().Err(err).Msg("gateway monitor stopped")
		}
	}()

	var store api.OutcomeStore
	if a.Store != nil {
		store = a.Store
	}
	opts := api.Options{DefaultBalance: cfg.Risk.DefaultBalance}
	if *origins != "" {
		opts.AllowedOrigins = strings.Split(*origins, ",")
	}
	srv := api.NewServer(a.Trader, a.Session, store, opts, log).
		WithQuotes(a.Polygon).
		WithOrderDesk(a.Executor)
	a.Executor.AddRecorder(srv.Hub())
	a.Trader.AddPublisher(srv.Hub())

	if err := srv.Start(ctx, cfg.App.HTTPAddr); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("api server stopped")
	}
	log.Info().Msg("shutting down")
}
