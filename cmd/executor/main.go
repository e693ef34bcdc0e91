// Binary executor runs a single screen-and-trade pass and prints the report as JSON.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	ossignal "os/signal"
	"strings"
	"syscall"

	"leprechaun-go/internal/app"
	"leprechaun-go/internal/config"
	"leprechaun-go/internal/util"
)

func main() {
	configPath := flag.String("config", "internal/config/config.yaml", "path to the YAML config")
	envPath := flag.String("env", ".env", "optional dotenv file")
	tickers := flag.String("tickers", "", "comma separated tickers to screen")
	balance := flag.Float64("balance", 0, "budget for this run (defaults to risk.default_balance)")
	screenOnly := flag.Bool("screen-only", false, "print candidates without placing orders")
	flag.Parse()

	if strings.TrimSpace(*tickers) == "" {
		fmt.Fprintln(os.Stderr, "usage: executor -tickers AAPL,MSFT [-balance 5000] [-screen-only]")
		os.Exit(2)
	}

	cfg, err := config.LoadWithEnv(*configPath, *envPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	log := util.NewConsoleLogger(cfg.App.LogLevel)

	a, err := app.Bootstrap(cfg, log, app.Options{})
	if err != nil {
		log.Fatal().Err(err).Msg("bootstrap")
	}
	defer a.Close()

	ctx, cancel := ossignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	list := strings.Split(*tickers, ",")
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	if *screenOnly {
		res, err := a.Trader.Screen(ctx, list)
		if err != nil {
			log.Error().Err(err).Msg("screen")
			a.Close()
			os.Exit(1)
		}
		_ = enc.Encode(res)
		return
	}

	budget := *balance
	if budget <= 0 {
		budget = cfg.Risk.DefaultBalance
	}
	report, err := a.Trader.RunScreenAndTrade(ctx, list, budget)
	_ = enc.Encode(report)
	if err != nil {
		log.Error().Err(err).Msg("run aborted")
		a.Close()
		os.Exit(1)
	}
	log.Info().Int("filled", report.Filled()).Int("failed", report.Failed()).Msg("run complete")
}
