// Package risk holds per-trade limits and the running trading budget.
package risk

// Limits caps exposure per trade. A zero cap disables the check.
type Limits struct {
	MaxNotionalPerTrade float64
}

// Allow reports whether a trade of the given notional fits the cap.
func (l Limits) Allow(notional float64) bool {
	if l.MaxNotionalPerTrade <= 0 {
		return true
	}
	return notional <= l.MaxNotionalPerTrade
}
