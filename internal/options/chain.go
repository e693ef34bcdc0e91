// Package options models option chains and contract selection.
package options

import (
	"errors"
	"fmt"
	"strconv"
)

// ErrEmptyChain is returned when no contract could be selected for an underlying.
var ErrEmptyChain = errors.New("option chain is empty")

// DefaultExchange is the routing destination used when a chain does not name one.
const DefaultExchange = "SMART"

// Right distinguishes calls from puts.
type Right string

const (
	// Call is the right to buy the underlying at the strike.
	Call Right = "C"
	// Put is the right to sell the underlying at the strike.
	Put Right = "P"
)

// Chain is the option definition for one underlying as returned by a chain lookup.
// Expirations are ordered nearest first.
type Chain struct {
	Symbol      string
	Exchange    string
	Expirations []string
	Strikes     []float64
}

// Contract identifies a single option to trade.
type Contract struct {
	Symbol     string  `json:"symbol"`
	Expiration string  `json:"expiration"`
	Strike     float64 `json:"strike"`
	Right      Right   `json:"right"`
	Exchange   string  `json:"exchange"`
}

// Key renders the contract as "AAPL 20250117 150 C".
func (c Contract) Key() string {
	return fmt.Sprintf("%s %s %s %s", c.Symbol, c.Expiration, strconv.FormatFloat(c.Strike, 'f', -1, 64), c.Right)
}
