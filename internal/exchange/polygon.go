// Package exchange hosts connectors for market data venues.
package exchange

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"leprechaun-go/internal/options"
	"leprechaun-go/internal/signal"
)

// ErrNoHistoricalData is returned when the provider has no bars for a ticker.
var ErrNoHistoricalData = errors.New("no historical data")

const (
	defaultPolygonBaseURL = "https://api.polygon.io"
	defaultTimeout        = 10 * time.Second
	contractsPageLimit    = 1000
)

// Polygon is a small REST client for aggregates and option reference data.
type Polygon struct {
	baseURL string
	apiKey  string
	client  *http.Client
	log     zerolog.Logger
}

// Option configures Polygon construction parameters.
type Option func(*Polygon)

// WithBaseURL points the client at another host (tests, proxies).
func WithBaseURL(baseURL string) Option {
	return func(p *Polygon) {
		if baseURL != "" {
			p.baseURL = strings.TrimSuffix(baseURL, "/")
		}
	}
}

// WithHTTPClient swaps the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Polygon) {
		if c != nil {
			p.client = c
		}
	}
}

// WithTimeout overrides the default request timeout.
func WithTimeout(d time.Duration) Option {
	return func(p *Polygon) {
		if d > 0 {
			p.client = &http.Client{Timeout: d}
		}
	}
}

// NewPolygon constructs a client authenticated with apiKey.
func NewPolygon(apiKey string, log zerolog.Logger, opts ...Option) *Polygon {
	p := &Polygon{
		baseURL: defaultPolygonBaseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: defaultTimeout},
		log:     log.With().Str("component", "polygon").Logger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

type aggsResponse struct {
	Ticker       string   `json:"ticker"`
	Status       string   `json:"status"`
	ResultsCount int      `json:"resultsCount"`
	Results      []aggBar `json:"results"`
}

type aggBar struct {
	Open      float64 `json:"o"`
	High      float64 `json:"h"`
	Low       float64 `json:"l"`
	Close     float64 `json:"c"`
	Volume    float64 `json:"v"`
	Timestamp int64   `json:"t"`
}

func (b aggBar) toBar() signal.Bar {
	return signal.Bar{
		Time:   time.UnixMilli(b.Timestamp).UTC(),
		Open:   b.Open,
		High:   b.High,
		Low:    b.Low,
		Close:  b.Close,
		Volume: b.Volume,
	}
}

// PrevClose returns the previous session's close for ticker.
func (p *Polygon) PrevClose(ctx context.Context, ticker string) (float64, error) {
	var resp aggsResponse
	path := fmt.Sprintf("/v2/aggs/ticker/%s/prev", url.PathEscape(strings.ToUpper(ticker)))
	if err := p.get(ctx, path, url.Values{"adjusted": {"true"}}, &resp); err != nil {
		return 0, err
	}
	if len(resp.Results) == 0 {
		return 0, fmt.Errorf("%s: %w", ticker, ErrNoHistoricalData)
	}
	return resp.Results[0].Close, nil
}

// DailyBars returns daily bars in ascending time order for the inclusive date range.
func (p *Polygon) DailyBars(ctx context.Context, ticker string, from, to time.Time) ([]signal.Bar, error) {
	var resp aggsResponse
	path := fmt.Sprintf("/v2/aggs/ticker/%s/range/1/day/%s/%s",
		url.PathEscape(strings.ToUpper(ticker)), from.Format("2006-01-02"), to.Format("2006-01-02"))
	query := url.Values{"adjusted": {"true"}, "sort": {"asc"}, "limit": {"5000"}}
	if err := p.get(ctx, path, query, &resp); err != nil {
		return nil, err
	}
	if len(resp.Results) == 0 {
		return nil, fmt.Errorf("%s: %w", ticker, ErrNoHistoricalData)
	}
	bars := make([]signal.Bar, len(resp.Results))
	for i, r := range resp.Results {
		bars[i] = r.toBar()
	}
	sort.SliceStable(bars, func(i, j int) bool { return bars[i].Time.Before(bars[j].Time) })
	return bars, nil
}

type contractsResponse struct {
	Status  string             `json:"status"`
	Results []optionsReference `json:"results"`
	NextURL string             `json:"next_url"`
}

type optionsReference struct {
	Ticker           string  `json:"ticker"`
	UnderlyingTicker string  `json:"underlying_ticker"`
	ContractType     string  `json:"contract_type"`
	ExpirationDate   string  `json:"expiration_date"`
	StrikePrice      float64 `json:"strike_price"`
}

// OptionChains groups active contracts for symbol into a single chain whose expirations are
// ordered nearest first and whose strikes belong to the nearest expiration. The first page
// (sorted by expiration) is enough for that.
func (p *Polygon) OptionChains(ctx context.Context, symbol string) ([]options.Chain, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	query := url.Values{
		"underlying_ticker": {symbol},
		"expired":           {"false"},
		"sort":              {"expiration_date"},
		"order":             {"asc"},
		"limit":             {fmt.Sprint(contractsPageLimit)},
	}
	var resp contractsResponse
	if err := p.get(ctx, "/v3/reference/options/contracts", query, &resp); err != nil {
		return nil, err
	}
	if len(resp.Results) == 0 {
		return []options.Chain{}, nil
	}

	seenExp := make(map[string]struct{})
	var expirations []string
	for _, r := range resp.Results {
		exp := strings.ReplaceAll(r.ExpirationDate, "-", "")
		if exp == "" {
			continue
		}
		if _, ok := seenExp[exp]; !ok {
			seenExp[exp] = struct{}{}
			expirations = append(expirations, exp)
		}
	}
	sort.Strings(expirations)
	if len(expirations) == 0 {
		return []options.Chain{}, nil
	}

	nearest := expirations[0]
	seenStrike := make(map[float64]struct{})
	var strikes []float64
	for _, r := range resp.Results {
		if strings.ReplaceAll(r.ExpirationDate, "-", "") != nearest {
			continue
		}
		if _, ok := seenStrike[r.StrikePrice]; ok {
			continue
		}
		seenStrike[r.StrikePrice] = struct{}{}
		strikes = append(strikes, r.StrikePrice)
	}
	sort.Float64s(strikes)

	return []options.Chain{{
		Symbol:      symbol,
		Exchange:    options.DefaultExchange,
		Expirations: expirations,
		Strikes:     strikes,
	}}, nil
}

func (p *Polygon) get(ctx context.Context, path string, query url.Values, out any) error {
	if query == nil {
		query = url.Values{}
	}
	query.Set("apiKey", p.apiKey)
	endpoint := p.baseURL + path + "?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("polygon request %s: %w", path, err)
	}
	req.Header.Set("Accept", "application/json")

	res, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("polygon %s: %w", path, err)
	}
	defer res.Body.Close()

	if res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("polygon %s: status %d: %s", path, res.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("polygon %s: decode: %w", path, err)
	}
	p.log.Debug().Str("path", path).Msg("polygon request ok")
	return nil
}
