package strategy

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"leprechaun-go/internal/metrics"
	"leprechaun-go/internal/signal"
)

// BarSource provides daily bars for a ticker.
type BarSource interface {
	DailyBars(ctx context.Context, ticker string, from, to time.Time) ([]signal.Bar, error)
}

// Skip records why a ticker was not selected.
type Skip struct {
	Ticker string `json:"ticker"`
	Reason string `json:"reason"`
}

// ScreenResult lists selected candidates and skipped tickers in input order.
type ScreenResult struct {
	Candidates []signal.Candidate `json:"candidates"`
	Skipped    []Skip             `json:"skipped"`
}

// BuildCandidate derives the screening statistics from ascending daily bars.
// It also returns the mean close across all bars.
func BuildCandidate(ticker string, bars []signal.Bar, params Params) (signal.Candidate, float64, error) {
	closes := signal.Closes(bars)
	if len(closes) < 2 {
		return signal.Candidate{}, 0, fmt.Errorf("%s: need at least 2 bars, got %d", ticker, len(closes))
	}
	price := closes[len(closes)-1]
	window := params.SMAWindow
	if window > len(closes) {
		window = len(closes)
	}
	sma := SMA(closes, window)
	if sma <= 0 || math.IsNaN(sma) {
		return signal.Candidate{}, 0, fmt.Errorf("%s: moving average unavailable", ticker)
	}
	cand := signal.Candidate{
		Ticker:              ticker,
		CurrentPrice:        price,
		PriceDiffPercentage: math.Abs(price-sma) / sma * 100,
		EWMAVolatility5d:    EWMAVolatility(closes, params.ShortWindow, params.Lambda),
		EWMAVolatility1mo:   EWMAVolatility(closes, params.LongWindow, params.Lambda),
	}
	if err := cand.Validate(); err != nil {
		return signal.Candidate{}, 0, err
	}
	return cand, Mean(closes), nil
}

// Screener fetches bars for each ticker, builds candidates and filters them.
type Screener struct {
	bars     BarSource
	filter   Filter
	params   Params
	lookback time.Duration
	now      func() time.Time
	log      zerolog.Logger
}

// NewScreener constructs a screener reading lookbackDays calendar days of bars.
func NewScreener(bars BarSource, filter Filter, params Params, lookbackDays int, log zerolog.Logger) *Screener {
	if lookbackDays <= 0 {
		lookbackDays = 60
	}
	return &Screener{
		bars:     bars,
		filter:   filter,
		params:   params,
		lookback: time.Duration(lookbackDays) * 24 * time.Hour,
		now:      time.Now,
		log:      log.With().Str("component", "screener").Str("filter", filter.Name()).Logger(),
	}
}

// Screen evaluates tickers sequentially. Per-ticker failures become skips; only a
// cancelled ctx stops the batch.
func (s *Screener) Screen(ctx context.Context, tickers []string) (ScreenResult, error) {
	res := ScreenResult{Candidates: []signal.Candidate{}, Skipped: []Skip{}}
	to := s.now().UTC()
	from := to.Add(-s.lookback)
	for _, raw := range tickers {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		ticker := strings.ToUpper(strings.TrimSpace(raw))
		if ticker == "" {
			continue
		}
		cand, ok, reason := s.evaluate(ctx, ticker, from, to)
		if !ok {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			metrics.CandidatesTotal.WithLabelValues("skipped").Inc()
			res.Skipped = append(res.Skipped, Skip{Ticker: ticker, Reason: reason})
			s.log.Info().Str("ticker", ticker).Str("reason", reason).Msg("ticker skipped")
			continue
		}
		metrics.CandidatesTotal.WithLabelValues("selected").Inc()
		res.Candidates = append(res.Candidates, cand)
		s.log.Info().
			Str("ticker", cand.Ticker).
			Float64("price", cand.CurrentPrice).
			Float64("price_diff_pct", cand.PriceDiffPercentage).
			Float64("ewma_5d", cand.EWMAVolatility5d).
			Float64("ewma_1mo", cand.EWMAVolatility1mo).
			Msg("selected stock")
	}
	return res, nil
}

func (s *Screener) evaluate(ctx context.Context, ticker string, from, to time.Time) (signal.Candidate, bool, string) {
	bars, err := s.bars.DailyBars(ctx, ticker, from, to)
	if err != nil {
		s.log.Warn().Err(err).Str("ticker", ticker).Msg("bar fetch failed")
		return signal.Candidate{}, false, err.Error()
	}
	cand, mean, err := BuildCandidate(ticker, bars, s.params)
	if err != nil {
		return signal.Candidate{}, false, err.Error()
	}
	if ok, reason := s.filter.Keep(cand, mean); !ok {
		return signal.Candidate{}, false, reason
	}
	return cand, true, ""
}
