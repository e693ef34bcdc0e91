package execution

import (
	"context"
	"errors"
	"fmt"

	"leprechaun-go/internal/options"
	"leprechaun-go/internal/signal"
)

// PlaceBracket buys every nearest-strike call and put for the candidate, one at a time.
// An unfilled contract is recorded and the batch continues. A fatal gateway error or a
// cancelled ctx stops the batch and is returned with the outcomes gathered so far.
func (e *Executor) PlaceBracket(ctx context.Context, cand signal.Candidate) ([]Outcome, error) {
	chains, err := e.chains.OptionChains(ctx, cand.Ticker)
	if err != nil {
		return nil, fmt.Errorf("option chains %s: %w", cand.Ticker, err)
	}
	calls, puts := options.SelectNearest(chains, cand.CurrentPrice)
	if len(calls) == 0 && len(puts) == 0 {
		return nil, fmt.Errorf("%s: %w", cand.Ticker, options.ErrEmptyChain)
	}
	e.log.Info().
		Str("ticker", cand.Ticker).
		Float64("price", cand.CurrentPrice).
		Int("calls", len(calls)).
		Int("puts", len(puts)).
		Msg("selected nearest strikes")

	contracts := make([]options.Contract, 0, len(calls)+len(puts))
	contracts = append(contracts, calls...)
	contracts = append(contracts, puts...)

	outcomes := make([]Outcome, 0, len(contracts))
	for _, c := range contracts {
		out, err := e.Place(ctx, c, Buy, e.cfg.Quantity)
		outcomes = append(outcomes, out)
		if err == nil || errors.Is(err, ErrOrderNotFilled) {
			continue
		}
		return outcomes, err
	}
	return outcomes, nil
}
