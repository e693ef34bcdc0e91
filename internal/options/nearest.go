package options

import "math"

// SelectNearest returns every call and put whose strike sits at the minimum absolute distance
// from target. Only the first (nearest-term) expiration of each chain is considered, and ties are
// all kept. Inputs are not modified; empty input yields two empty slices.
func SelectNearest(chains []Chain, target float64) (calls, puts []Contract) {
	calls = []Contract{}
	puts = []Contract{}
	minDiff := math.Inf(1)

	for _, chain := range chains {
		if len(chain.Expirations) == 0 {
			continue
		}
		expiration := chain.Expirations[0]
		exchange := chain.Exchange
		if exchange == "" {
			exchange = DefaultExchange
		}
		for _, strike := range chain.Strikes {
			if math.IsNaN(strike) {
				continue
			}
			diff := math.Abs(target - strike)
			switch {
			case diff < minDiff:
				minDiff = diff
				calls = calls[:0]
				puts = puts[:0]
				fallthrough
			case diff == minDiff:
				calls = append(calls, Contract{Symbol: chain.Symbol, Expiration: expiration, Strike: strike, Right: Call, Exchange: exchange})
				puts = append(puts, Contract{Symbol: chain.Symbol, Expiration: expiration, Strike: strike, Right: Put, Exchange: exchange})
			}
		}
	}
	return calls, puts
}
