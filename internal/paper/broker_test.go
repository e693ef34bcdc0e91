package paper

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"leprechaun-go/internal/gateway"
	"leprechaun-go/internal/options"
)

func newTestBroker(cfg BrokerConfig) *Broker {
	b := NewBroker(cfg, StaticPrices{"AAPL": 151}, NewAccount(10000, 0), zerolog.Nop())
	b.now = func() time.Time { return time.Date(2025, 1, 13, 15, 0, 0, 0, time.UTC) } // a Monday
	return b
}

func TestBrokerOptionChains(t *testing.T) {
	b := newTestBroker(BrokerConfig{StrikeStep: 5, StrikeCount: 4, ExpirationCount: 2})
	chains, err := b.OptionChains(context.Background(), "aapl")
	if err != nil {
		t.Fatalf("OptionChains returned error: %v", err)
	}
	if len(chains) != 1 {
		t.Fatalf("expected one chain, got %d", len(chains))
	}
	c := chains[0]
	want := []float64{140, 145, 150, 155, 160}
	if len(c.Strikes) != len(want) {
		t.Fatalf("expected strikes %v, got %v", want, c.Strikes)
	}
	for i := range want {
		if c.Strikes[i] != want[i] {
			t.Fatalf("expected strikes %v, got %v", want, c.Strikes)
		}
	}
	if c.Expirations[0] != "20250117" || c.Expirations[1] != "20250124" {
		t.Fatalf("unexpected expirations %v", c.Expirations)
	}
	if c.Exchange != options.DefaultExchange {
		t.Fatalf("expected SMART routing, got %s", c.Exchange)
	}
}

func TestBrokerOptionChainsUnknownSymbol(t *testing.T) {
	b := newTestBroker(BrokerConfig{})
	if _, err := b.OptionChains(context.Background(), "NOPE"); err == nil {
		t.Fatalf("expected error for unknown symbol")
	}
}

func TestBrokerConnectFailures(t *testing.T) {
	b := newTestBroker(BrokerConfig{})
	ctx := context.Background()
	b.FailNextConnects(1)
	if err := b.Connect(ctx, gateway.Endpoint{}); err == nil {
		t.Fatalf("expected transient failure")
	}
	if err := b.Connect(ctx, gateway.Endpoint{}); err != nil {
		t.Fatalf("expected second connect to succeed: %v", err)
	}
	b.RejectAuth(true)
	if err := b.Connect(ctx, gateway.Endpoint{}); !errors.Is(err, gateway.ErrAuthentication) {
		t.Fatalf("expected ErrAuthentication, got %v", err)
	}
	b.Drop()
	if b.IsConnected(ctx) {
		t.Fatalf("expected dropped broker to report disconnected")
	}
	if _, err := b.PlaceOrder(ctx, options.Contract{}, gateway.Order{Quantity: 1}); !errors.Is(err, gateway.ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}

func TestBrokerFillsAfterPolls(t *testing.T) {
	b := newTestBroker(BrokerConfig{FillAfterPolls: 2})
	ctx := context.Background()
	if err := b.Connect(ctx, gateway.Endpoint{}); err != nil {
		t.Fatalf("connect: %v", err)
	}
	contract := options.Contract{Symbol: "AAPL", Expiration: "20250117", Strike: 150, Right: options.Call, Exchange: "SMART"}

	first, err := b.PlaceOrder(ctx, contract, gateway.Order{Action: "BUY", Quantity: 1, Ref: "a"})
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	state, err := b.OrderStatus(ctx, first.OrderID)
	if err != nil || state.Status != gateway.StatusSubmitted {
		t.Fatalf("expected first poll unfilled, got %+v %v", state, err)
	}

	second, _ := b.PlaceOrder(ctx, contract, gateway.Order{Action: "BUY", Quantity: 1, Ref: "b"})
	state, err = b.OrderStatus(ctx, second.OrderID)
	if err != nil || state.Status != gateway.StatusFilled {
		t.Fatalf("expected fill on second poll, got %+v %v", state, err)
	}
	// intrinsic 1 + 2% of 151 = 4.02 per share
	if state.AvgPrice != 4.02 {
		t.Fatalf("expected premium 4.02, got %.4f", state.AvgPrice)
	}
	summary, err := b.AccountSummary(ctx)
	if err != nil {
		t.Fatalf("AccountSummary: %v", err)
	}
	if summary.Cash != 10000-402 {
		t.Fatalf("expected cash debited by 402, got %.2f", summary.Cash)
	}
	if summary.NetLiquidation != 10000 {
		t.Fatalf("expected equity unchanged at cost, got %.2f", summary.NetLiquidation)
	}

	again, _ := b.OrderStatus(ctx, second.OrderID)
	if again.Status != gateway.StatusFilled {
		t.Fatalf("filled order must stay filled")
	}
	if b.Account().AvailableCash() != 10000-402 {
		t.Fatalf("repeat poll must not debit twice")
	}
}

func TestBrokerRejectsFillWithoutCash(t *testing.T) {
	b := NewBroker(BrokerConfig{}, StaticPrices{"AAPL": 151}, NewAccount(10, 0), zerolog.Nop())
	ctx := context.Background()
	_ = b.Connect(ctx, gateway.Endpoint{})
	trade, err := b.PlaceOrder(ctx, options.Contract{Symbol: "AAPL", Strike: 150, Right: options.Put}, gateway.Order{Action: "BUY", Quantity: 1})
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	state, err := b.OrderStatus(ctx, trade.OrderID)
	if err != nil {
		t.Fatalf("OrderStatus: %v", err)
	}
	if state.Status != gateway.StatusInactive {
		t.Fatalf("expected Inactive when cash is short, got %s", state.Status)
	}
}

func TestBrokerSellClosesPositionAndRealizesPnL(t *testing.T) {
	prices := StaticPrices{"AAPL": 151}
	clock := time.Date(2025, 1, 13, 15, 0, 0, 0, time.UTC)
	b := NewBroker(BrokerConfig{MarkTTL: time.Minute}, prices, NewAccount(10000, 0), zerolog.Nop())
	b.now = func() time.Time { return clock }
	ctx := context.Background()
	if err := b.Connect(ctx, gateway.Endpoint{}); err != nil {
		t.Fatalf("connect: %v", err)
	}
	contract := options.Contract{Symbol: "AAPL", Expiration: "20250117", Strike: 150, Right: options.Call, Exchange: "SMART"}

	buy, _ := b.PlaceOrder(ctx, contract, gateway.Order{Action: "BUY", Quantity: 1, Ref: "open"})
	if state, err := b.OrderStatus(ctx, buy.OrderID); err != nil || state.AvgPrice != 4.02 {
		t.Fatalf("expected buy at 4.02, got %+v %v", state, err)
	}

	// The underlying rallies and the cached mark expires.
	prices["AAPL"] = 156
	clock = clock.Add(2 * time.Minute)

	sell, _ := b.PlaceOrder(ctx, contract, gateway.Order{Action: "SELL", Quantity: 1, Ref: "close"})
	state, err := b.OrderStatus(ctx, sell.OrderID)
	if err != nil || state.Status != gateway.StatusFilled {
		t.Fatalf("expected sell filled, got %+v %v", state, err)
	}
	// intrinsic 6 + 2% of 156 = 9.12 per share
	if state.AvgPrice != 9.12 {
		t.Fatalf("expected sell premium 9.12, got %.4f", state.AvgPrice)
	}
	if pos := b.Account().Position(contract.Key()); pos != 0 {
		t.Fatalf("expected position closed, got %.2f", pos)
	}

	summary, err := b.AccountSummary(ctx)
	if err != nil {
		t.Fatalf("AccountSummary: %v", err)
	}
	if summary.RealizedPnL != 510 {
		t.Fatalf("expected realized pnl 510, got %.4f", summary.RealizedPnL)
	}
	if summary.Cash != 10000-402+912 {
		t.Fatalf("expected cash 10510, got %.2f", summary.Cash)
	}

	naked, _ := b.PlaceOrder(ctx, contract, gateway.Order{Action: "SELL", Quantity: 1, Ref: "naked"})
	if state, _ := b.OrderStatus(ctx, naked.OrderID); state.Status != gateway.StatusInactive {
		t.Fatalf("expected a sell without a position to be rejected, got %s", state.Status)
	}
}
