package risk

import (
	"errors"
	"sync"

	"github.com/shopspring/decimal"
)

// ErrInsufficientBudget is returned when a debit exceeds the remaining balance.
var ErrInsufficientBudget = errors.New("insufficient budget")

// Budget tracks the balance available to a run in exact decimal arithmetic.
type Budget struct {
	mu      sync.Mutex
	initial decimal.Decimal
	balance decimal.Decimal
}

// NewBudget starts a budget at balance.
func NewBudget(balance float64) *Budget {
	d := decimal.NewFromFloat(balance)
	return &Budget{initial: d, balance: d}
}

// CanSpend reports whether amount fits in what is left.
func (b *Budget) CanSpend(amount float64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return decimal.NewFromFloat(amount).LessThanOrEqual(b.balance)
}

// Spend debits amount. Negative amounts are rejected.
func (b *Budget) Spend(amount float64) error {
	d := decimal.NewFromFloat(amount)
	if d.IsNegative() {
		return errors.New("spend amount must not be negative")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if d.GreaterThan(b.balance) {
		return ErrInsufficientBudget
	}
	b.balance = b.balance.Sub(d)
	return nil
}

// Apply adds each profit (negative for losses) to the balance and returns the result.
func (b *Budget) Apply(profits ...float64) float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, p := range profits {
		b.balance = b.balance.Add(decimal.NewFromFloat(p))
	}
	f, _ := b.balance.Float64()
	return f
}

// Remaining returns the current balance.
func (b *Budget) Remaining() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	f, _ := b.balance.Float64()
	return f
}

// Spent returns how much the balance has moved down from the start.
func (b *Budget) Spent() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	f, _ := b.initial.Sub(b.balance).Float64()
	return f
}
