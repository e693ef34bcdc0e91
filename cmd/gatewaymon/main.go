// Binary gatewaymon keeps the brokerage gateway session alive, reconnecting on loss until interrupted.
package main

import (
	"context"
	"flag"
	"os"
	ossignal "os/signal"
	"syscall"

	"leprechaun-go/internal/app"
	"leprechaun-go/internal/config"
	"leprechaun-go/internal/metrics"
	"leprechaun-go/internal/util"
)

func main() {
	configPath := flag.String("config", "internal/config/config.yaml", "path to the YAML config")
	envPath := flag.String("env", ".env", "optional dotenv file")
	flag.Parse()

	cfg, err := config.LoadWithEnv(*configPath, *envPath)
	if err != nil {
		bootLog := util.NewLogger("info")
		bootLog.Fatal().Err(err).Msg("load config")
	}
	log := util.NewLogger(cfg.App.LogLevel).With().Str("app", "gatewaymon").Logger()

	if cfg.App.MetricsAddr != "" {
		_ = metrics.Serve(cfg.App.MetricsAddr)
	}

	a, err := app.Bootstrap(cfg, log, app.Options{Monitor: true, NoStore: true})
	if err != nil {
		log.Fatal().Err(err).Msg("bootstrap")
	}
	defer a.Close()

	ctx, cancel := ossignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := a.Session.Connect(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		log.Fatal().Err(err).Msg("gateway connect")
	}
	conn := a.Session.Connection()
	log.Info().Str("host", conn.Host).Int("port", conn.Port).Msg("monitoring gateway")

	if err := a.Session.Monitor(ctx, cfg.Broker.MonitorInterval()); err != nil {
		log.Error().Err(err).Msg("gateway lost")
		a.Close()
		os.Exit(1)
	}
	log.Info().Msg("monitor stopped")
}
