// Binary tui is a terminal menu for tuning the YAML config and launching the API server.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"leprechaun-go/internal/config"
)

type console struct {
	in   *bufio.Reader
	out  io.Writer
	path string
	cfg  *config.Config
}

type action struct {
	key   string
	label string
	run   func(*console) error
}

var actions = []action{
	{"1", "Show configuration summary", (*console).summary},
	{"2", "Edit balance and risk knobs", (*console).editRisk},
	{"3", "Edit screener thresholds", (*console).editScreener},
	{"4", "Edit broker connection", (*console).editBroker},
	{"5", "Save config", (*console).save},
	{"6", "Launch API server", (*console).launch},
	{"7", "Reload config from disk", (*console).reload},
}

func main() {
	path := flag.String("config", "internal/config/config.yaml", "path to the YAML config")
	flag.Parse()

	c := &console{in: bufio.NewReader(os.Stdin), out: os.Stdout, path: *path}
	if err := c.reload(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	for {
		fmt.Fprintln(c.out, "\n=== Leprechaun Control ===")
		for _, a := range actions {
			fmt.Fprintf(c.out, "%s) %s\n", a.key, a.label)
		}
		fmt.Fprintln(c.out, "0) Exit")
		choice := c.ask("Select option")
		if choice == "0" {
			return
		}
		found := false
		for _, a := range actions {
			if a.key != choice {
				continue
			}
			found = true
			if err := a.run(c); err != nil {
				fmt.Fprintf(os.Stderr, "%s: %v\n", strings.ToLower(a.label), err)
			}
		}
		if !found {
			fmt.Fprintln(c.out, "unknown option")
		}
	}
}

func (c *console) summary() error {
	cfg := c.cfg
	fmt.Fprintln(c.out, "\n--- Configuration Summary ---")
	fmt.Fprintf(c.out, "Broker: %s at %s:%d (account %q, chains from %s)\n",
		cfg.Broker.Mode, cfg.Broker.Host, cfg.Broker.Port, cfg.Broker.ClientID, cfg.Broker.ChainSource)
	fmt.Fprintf(c.out, "Connect retries: %d every %s (monitor %s)\n",
		cfg.Broker.MaxRetries, cfg.Broker.RetryDelay(), cfg.Broker.MonitorRetryDelay())
	fmt.Fprintf(c.out, "Order retries: %d every %s, qty %d %s/%s\n",
		cfg.Orders.MaxRetries, cfg.Orders.RetryDelay(), cfg.Orders.Quantity, cfg.Orders.OrderType, cfg.Orders.TimeInForce)
	fmt.Fprintf(c.out, "Default balance: $%.2f | per-trade cap: $%.2f | paper cash: $%.2f\n",
		cfg.Risk.DefaultBalance, cfg.Risk.MaxNotionalPerTrade, cfg.Paper.StartingCash)
	fmt.Fprintf(c.out, "Screener: %s over %d days, diff %.2f%%..%.2f%%, 5d vol %.2f..%.2f, band %.2f%%\n",
		cfg.Screener.Mode, cfg.Screener.LookbackDays,
		cfg.Screener.MinPriceDiffPct, cfg.Screener.MaxPriceDiffPct,
		cfg.Screener.MinVolatility, cfg.Screener.MaxVolatility, cfg.Screener.BandPct)
	return nil
}

func (c *console) editRisk() error {
	fmt.Fprintln(c.out, "\n--- Edit Balance / Risk ---")
	c.number("Default run balance", &c.cfg.Risk.DefaultBalance)
	c.number("Max notional per trade (0 disables)", &c.cfg.Risk.MaxNotionalPerTrade)
	c.number("Paper starting cash", &c.cfg.Paper.StartingCash)
	c.integer("Contracts per order", &c.cfg.Orders.Quantity)
	return nil
}

func (c *console) editScreener() error {
	fmt.Fprintln(c.out, "\n--- Edit Screener ---")
	c.text("Mode (thresholds|mean_band)", &c.cfg.Screener.Mode)
	c.number("Min price diff (%)", &c.cfg.Screener.MinPriceDiffPct)
	c.number("Max price diff (%)", &c.cfg.Screener.MaxPriceDiffPct)
	c.number("Min 5d EWMA volatility", &c.cfg.Screener.MinVolatility)
	c.number("Max 5d EWMA volatility", &c.cfg.Screener.MaxVolatility)
	c.number("Mean band (%)", &c.cfg.Screener.BandPct)
	return nil
}

func (c *console) editBroker() error {
	fmt.Fprintln(c.out, "\n--- Edit Broker ---")
	c.text("Mode (paper|ibkr)", &c.cfg.Broker.Mode)
	c.text("Gateway host", &c.cfg.Broker.Host)
	c.integer("Gateway port", &c.cfg.Broker.Port)
	c.text("Account id", &c.cfg.Broker.ClientID)
	c.text("Chain source (broker|polygon)", &c.cfg.Broker.ChainSource)
	return nil
}

func (c *console) save() error {
	if err := c.cfg.Validate(); err != nil {
		return fmt.Errorf("not saved: %w", err)
	}
	if err := config.Save(c.path, c.cfg); err != nil {
		return err
	}
	fmt.Fprintln(c.out, "config saved")
	return nil
}

func (c *console) reload() error {
	cfg, err := config.Load(c.path)
	if err != nil {
		return err
	}
	c.cfg = cfg
	fmt.Fprintf(c.out, "loaded %s\n", c.path)
	return nil
}

// launch runs the server as a child process until ENTER is pressed.
func (c *console) launch() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cmd := exec.CommandContext(ctx, "go", "run", "./cmd/server", "-config", c.path)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start server: %w", err)
	}
	exited := make(chan struct{})
	go func() {
		_ = cmd.Wait()
		close(exited)
	}()

	c.ask("Server running, press ENTER to stop")
	cancel()
	select {
	case <-exited:
	case <-time.After(2 * time.Second):
	}
	return nil
}

func (c *console) ask(label string) string {
	fmt.Fprintf(c.out, "%s: ", label)
	line, _ := c.in.ReadString('\n')
	return strings.TrimSpace(line)
}

func (c *console) text(label string, field *string) {
	if v := c.ask(fmt.Sprintf("%s [%s]", label, *field)); v != "" {
		*field = v
	}
}

func (c *console) number(label string, field *float64) {
	v := c.ask(fmt.Sprintf("%s [%.2f]", label, *field))
	if v == "" {
		return
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		fmt.Fprintf(c.out, "invalid number, keeping %.2f\n", *field)
		return
	}
	*field = f
}

func (c *console) integer(label string, field *int) {
	v := c.ask(fmt.Sprintf("%s [%d]", label, *field))
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		fmt.Fprintf(c.out, "invalid integer, keeping %d\n", *field)
		return
	}
	*field = n
}
