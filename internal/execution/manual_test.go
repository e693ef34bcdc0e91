package execution

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"leprechaun-go/internal/options"
)

func TestPlaceStrikeResolvesNearestExpiration(t *testing.T) {
	gw := newFakeGateway()
	put155 := options.Contract{Symbol: "AAPL", Expiration: "20250117", Strike: 155, Right: options.Put, Exchange: "SMART"}
	gw.fillOn[put155.Key()] = 1
	exec := NewExecutor(gw, fakeChains{chains: chainAround()}, testConfig(), zerolog.Nop())

	out, err := exec.PlaceStrike(context.Background(), " aapl", options.Put, 155, Sell, 2)
	if err != nil {
		t.Fatalf("PlaceStrike returned error: %v", err)
	}
	if out.Contract != put155 || out.Side != Sell || out.Quantity != 2 || !out.Filled() {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if gw.orders[0].Action != "SELL" || gw.orders[0].Quantity != 2 {
		t.Fatalf("unexpected submitted order %+v", gw.orders[0])
	}
}

func TestPlaceStrikeRejectsUnlistedStrike(t *testing.T) {
	gw := newFakeGateway()
	exec := NewExecutor(gw, fakeChains{chains: chainAround()}, testConfig(), zerolog.Nop())

	if _, err := exec.PlaceStrike(context.Background(), "AAPL", options.Call, 150, Buy, 1); !errors.Is(err, ErrStrikeNotListed) {
		t.Fatalf("expected ErrStrikeNotListed, got %v", err)
	}
	if len(gw.orders) != 0 {
		t.Fatalf("no order may be sent for an unlisted strike")
	}

	empty := NewExecutor(gw, fakeChains{}, testConfig(), zerolog.Nop())
	if _, err := empty.PlaceStrike(context.Background(), "AAPL", options.Call, 150, Buy, 1); !errors.Is(err, options.ErrEmptyChain) {
		t.Fatalf("expected ErrEmptyChain, got %v", err)
	}
}
