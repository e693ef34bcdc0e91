package strategy

import (
	"fmt"
	"strings"

	"leprechaun-go/internal/signal"
)

const (
	ModeThresholds = "thresholds"
	ModeMeanBand   = "mean_band"
)

// Params expresses tunable knobs required by candidate building and filtering.
type Params struct {
	SMAWindow       int
	ShortWindow     int
	LongWindow      int
	Lambda          float64
	MinPriceDiffPct float64
	MaxPriceDiffPct float64
	MinVolatility   float64
	MaxVolatility   float64
	BandPct         float64
}

// DefaultParams mirrors the table limits the bot has always traded with.
func DefaultParams() Params {
	return Params{
		SMAWindow:       20,
		ShortWindow:     5,
		LongWindow:      21,
		Lambda:          0.94,
		MinPriceDiffPct: 1,
		MaxPriceDiffPct: 15,
		MinVolatility:   0.05,
		MaxVolatility:   5,
		BandPct:         4,
	}
}

// Filter decides whether a built candidate is worth trading.
type Filter interface {
	Keep(c signal.Candidate, mean float64) (bool, string)
	Name() string
}

// Thresholds keeps candidates whose price deviation and short-term volatility fall in range.
type Thresholds struct {
	MinPriceDiffPct, MaxPriceDiffPct float64
	MinVolatility, MaxVolatility     float64
}

// Name returns the configured identifier for logging.
func (Thresholds) Name() string { return ModeThresholds }

// Keep applies the inclusive diff and volatility bounds.
func (t Thresholds) Keep(c signal.Candidate, _ float64) (bool, string) {
	if c.PriceDiffPercentage < t.MinPriceDiffPct || c.PriceDiffPercentage > t.MaxPriceDiffPct {
		return false, fmt.Sprintf("price diff %.2f%% outside [%.2f, %.2f]", c.PriceDiffPercentage, t.MinPriceDiffPct, t.MaxPriceDiffPct)
	}
	if c.EWMAVolatility5d < t.MinVolatility || c.EWMAVolatility5d > t.MaxVolatility {
		return false, fmt.Sprintf("5d volatility %.4f outside [%.4f, %.4f]", c.EWMAVolatility5d, t.MinVolatility, t.MaxVolatility)
	}
	return true, ""
}

// MeanBand keeps candidates trading within BandPct percent of their mean close.
type MeanBand struct {
	BandPct float64
}

// Name returns the configured identifier for logging.
func (MeanBand) Name() string { return ModeMeanBand }

// Keep checks (1-band)*mean <= price <= (1+band)*mean.
func (m MeanBand) Keep(c signal.Candidate, mean float64) (bool, string) {
	band := m.BandPct / 100
	lo, hi := (1-band)*mean, (1+band)*mean
	if c.CurrentPrice < lo || c.CurrentPrice > hi {
		return false, fmt.Sprintf("price %.2f outside band [%.2f, %.2f]", c.CurrentPrice, lo, hi)
	}
	return true, ""
}

// Build returns a filter implementation matching the configured mode.
func Build(mode string, params Params) Filter {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case ModeMeanBand, "band", "stock_selection":
		return MeanBand{BandPct: params.BandPct}
	default:
		return Thresholds{
			MinPriceDiffPct: params.MinPriceDiffPct,
			MaxPriceDiffPct: params.MaxPriceDiffPct,
			MinVolatility:   params.MinVolatility,
			MaxVolatility:   params.MaxVolatility,
		}
	}
}
