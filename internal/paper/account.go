// Package paper simulates a brokerage so the whole pipeline can run without a live gateway.
package paper

import (
	"errors"
	"sync"

	"github.com/shopspring/decimal"

	"leprechaun-go/internal/execution"
)

type positionState struct {
	Qty     decimal.Decimal
	AvgCost decimal.Decimal
}

// Account tracks virtual cash, realized PnL, and per-contract positions while trading in paper mode.
type Account struct {
	mu                   sync.Mutex
	startingCash         decimal.Decimal
	cash                 decimal.Decimal
	realizedPnL          decimal.Decimal
	maxPositionPerSymbol decimal.Decimal
	positions            map[string]positionState
}

// PositionSnapshot exposes a read-only view of a single position.
type PositionSnapshot struct {
	Qty         float64 `json:"qty"`
	AvgCost     float64 `json:"avg_cost"`
	MarketValue float64 `json:"market_value"`
	Unrealized  float64 `json:"unrealized"`
}

// Snapshot represents a thread-safe view of the account state, optionally marked to market using provided prices.
type Snapshot struct {
	Cash        float64                     `json:"cash"`
	RealizedPnL float64                     `json:"realized_pnl"`
	Equity      float64                     `json:"equity"`
	Positions   map[string]PositionSnapshot `json:"positions"`
}

// NewAccount constructs an account populated with starting cash and optional position cap.
func NewAccount(startingCash, maxPositionPerSymbol float64) *Account {
	return &Account{
		startingCash:         decimal.NewFromFloat(startingCash),
		cash:                 decimal.NewFromFloat(startingCash),
		maxPositionPerSymbol: decimal.NewFromFloat(maxPositionPerSymbol),
		positions:            make(map[string]positionState),
	}
}

// StartingCash returns the initial bankroll.
func (a *Account) StartingCash() float64 { return toFloat(a.startingCash) }

// MarketFill executes an order at price, mutating balances if successful.
func (a *Account) MarketFill(symbol string, side execution.Side, qty, price float64) error {
	if qty <= 0 {
		return errors.New("quantity must be positive")
	}
	if price <= 0 {
		return errors.New("price must be positive")
	}
	q := decimal.NewFromFloat(qty)
	px := decimal.NewFromFloat(price)
	notional := q.Mul(px)

	a.mu.Lock()
	defer a.mu.Unlock()

	state := a.positions[symbol]
	switch side {
	case execution.Buy:
		if notional.GreaterThan(a.cash) {
			return errors.New("insufficient cash for buy")
		}
		newQty := state.Qty.Add(q)
		if a.maxPositionPerSymbol.IsPositive() && newQty.GreaterThan(a.maxPositionPerSymbol) {
			return errors.New("position limit exceeded")
		}
		newAvg := state.AvgCost.Mul(state.Qty).Add(notional).Div(newQty)
		a.cash = a.cash.Sub(notional)
		a.positions[symbol] = positionState{Qty: newQty, AvgCost: newAvg}

	case execution.Sell:
		if !state.Qty.IsPositive() || state.Qty.LessThan(q) {
			return errors.New("insufficient position to sell")
		}
		a.realizedPnL = a.realizedPnL.Add(px.Sub(state.AvgCost).Mul(q))
		a.cash = a.cash.Add(notional)
		newQty := state.Qty.Sub(q)
		if newQty.IsZero() {
			delete(a.positions, symbol)
		} else {
			a.positions[symbol] = positionState{Qty: newQty, AvgCost: state.AvgCost}
		}

	default:
		return errors.New("unknown order side")
	}
	return nil
}

// Snapshot returns a copy of balances. Positions without a price are carried at cost.
func (a *Account) Snapshot(prices map[string]float64) Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	positions := make(map[string]PositionSnapshot, len(a.positions))
	equity := a.cash
	for sym, pos := range a.positions {
		mark := pos.AvgCost
		if p, ok := prices[sym]; ok && p > 0 {
			mark = decimal.NewFromFloat(p)
		}
		marketValue := pos.Qty.Mul(mark)
		positions[sym] = PositionSnapshot{
			Qty:         toFloat(pos.Qty),
			AvgCost:     toFloat(pos.AvgCost),
			MarketValue: toFloat(marketValue),
			Unrealized:  toFloat(mark.Sub(pos.AvgCost).Mul(pos.Qty)),
		}
		equity = equity.Add(marketValue)
	}

	return Snapshot{
		Cash:        toFloat(a.cash),
		RealizedPnL: toFloat(a.realizedPnL),
		Equity:      toFloat(equity),
		Positions:   positions,
	}
}

// AvailableCash reports free cash that can be deployed into new longs.
func (a *Account) AvailableCash() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return toFloat(a.cash)
}

// Position returns the current position size for the supplied symbol.
func (a *Account) Position(symbol string) float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return toFloat(a.positions[symbol].Qty)
}

// RealizedPnL returns total closed-trade profit and loss.
func (a *Account) RealizedPnL() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return toFloat(a.realizedPnL)
}

func toFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}
