package execution

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"leprechaun-go/internal/options"
)

// ErrStrikeNotListed means the requested strike is absent from the nearest expiration.
var ErrStrikeNotListed = errors.New("strike not listed")

// PlaceStrike places a single order for symbol at an exact strike of the nearest expiration.
// The contract is resolved from the chain source so the order carries a listed expiration and
// the chain's routing exchange.
func (e *Executor) PlaceStrike(ctx context.Context, symbol string, right options.Right, strike float64, side Side, qty int) (Outcome, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	chains, err := e.chains.OptionChains(ctx, symbol)
	if err != nil {
		return Outcome{}, fmt.Errorf("option chains %s: %w", symbol, err)
	}
	for _, chain := range chains {
		if len(chain.Expirations) == 0 {
			continue
		}
		for _, k := range chain.Strikes {
			if k != strike {
				continue
			}
			exchange := chain.Exchange
			if exchange == "" {
				exchange = options.DefaultExchange
			}
			contract := options.Contract{
				Symbol:     chain.Symbol,
				Expiration: chain.Expirations[0],
				Strike:     k,
				Right:      right,
				Exchange:   exchange,
			}
			e.log.Info().Str("contract", contract.Key()).Str("side", string(side)).Int("qty", qty).Msg("manual order")
			return e.Place(ctx, contract, side, qty)
		}
	}
	if len(chains) == 0 {
		return Outcome{}, fmt.Errorf("%s: %w", symbol, options.ErrEmptyChain)
	}
	return Outcome{}, fmt.Errorf("%s %v: %w", symbol, strike, ErrStrikeNotListed)
}
