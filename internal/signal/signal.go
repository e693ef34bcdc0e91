// Package signal standardizes payloads shared between market data ingestion, screening and execution.
package signal

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// Bar models one daily OHLCV aggregate returned by the market data provider.
type Bar struct {
	Time   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// Candidate is a ticker that survived screening. Values are copied, never shared.
type Candidate struct {
	Ticker              string  `json:"ticker"`
	CurrentPrice        float64 `json:"current_price"`
	PriceDiffPercentage float64 `json:"price_diff_percentage"`
	EWMAVolatility5d    float64 `json:"ewma_volatility_5d"`
	EWMAVolatility1mo   float64 `json:"ewma_volatility_1mo"`
}

// Validate checks that all five fields are populated with usable numbers.
func (c Candidate) Validate() error {
	if strings.TrimSpace(c.Ticker) == "" {
		return errors.New("candidate ticker is empty")
	}
	if !finite(c.CurrentPrice) || c.CurrentPrice <= 0 {
		return fmt.Errorf("candidate %s: current price must be positive", c.Ticker)
	}
	for name, v := range map[string]float64{
		"price diff percentage": c.PriceDiffPercentage,
		"ewma volatility 5d":    c.EWMAVolatility5d,
		"ewma volatility 1mo":   c.EWMAVolatility1mo,
	} {
		if !finite(v) || v < 0 {
			return fmt.Errorf("candidate %s: %s must be a non-negative number", c.Ticker, name)
		}
	}
	return nil
}

// Closes extracts closing prices in bar order.
func Closes(bars []Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }
