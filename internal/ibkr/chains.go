package ibkr

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"leprechaun-go/internal/options"
)

type searchResult struct {
	Conid    flexID `json:"conid"`
	Symbol   string `json:"symbol"`
	Sections []struct {
		SecType  string `json:"secType"`
		Months   string `json:"months"`
		Exchange string `json:"exchange"`
	} `json:"sections"`
}

type strikesResponse struct {
	Call []float64 `json:"call"`
	Put  []float64 `json:"put"`
}

type contractInfo struct {
	Conid        flexID    `json:"conid"`
	Symbol       string    `json:"symbol"`
	Right        string    `json:"right"`
	Strike       flexFloat `json:"strike"`
	MaturityDate string    `json:"maturityDate"`
}

// OptionChains returns one chain for symbol covering the nearest contract month.
// Expirations are that month's maturities in date order; strikes are the union of calls and puts.
func (c *Client) OptionChains(ctx context.Context, symbol string) ([]options.Chain, error) {
	base, _, err := c.session()
	if err != nil {
		return nil, err
	}
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	conid, months, err := c.underlying(ctx, base, symbol)
	if err != nil {
		return nil, err
	}
	if len(months) == 0 {
		return []options.Chain{}, nil
	}
	month := months[0]

	q := url.Values{
		"conid":    {strconv.FormatInt(conid, 10)},
		"sectype":  {"OPT"},
		"month":    {month},
		"exchange": {c.cfg.Exchange},
	}
	var sr strikesResponse
	if err := c.do(ctx, base, http.MethodGet, "/iserver/secdef/strikes?"+q.Encode(), nil, &sr); err != nil {
		return nil, err
	}
	strikes := mergeStrikes(sr.Call, sr.Put)
	if len(strikes) == 0 {
		return []options.Chain{}, nil
	}

	infos, err := c.info(ctx, base, conid, month, strikes[len(strikes)/2], options.Call)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	var expirations []string
	for _, in := range infos {
		if in.MaturityDate == "" {
			continue
		}
		if _, ok := seen[in.MaturityDate]; ok {
			continue
		}
		seen[in.MaturityDate] = struct{}{}
		expirations = append(expirations, in.MaturityDate)
	}
	sort.Strings(expirations)

	return []options.Chain{{
		Symbol:      symbol,
		Exchange:    c.cfg.Exchange,
		Expirations: expirations,
		Strikes:     strikes,
	}}, nil
}

// underlying resolves the stock conid and its option months ordered nearest first.
func (c *Client) underlying(ctx context.Context, base, symbol string) (int64, []string, error) {
	q := url.Values{"symbol": {symbol}, "secType": {"STK"}}
	var results []searchResult
	if err := c.do(ctx, base, http.MethodGet, "/iserver/secdef/search?"+q.Encode(), nil, &results); err != nil {
		return 0, nil, err
	}
	for _, r := range results {
		if !strings.EqualFold(r.Symbol, symbol) {
			continue
		}
		conid, err := strconv.ParseInt(string(r.Conid), 10, 64)
		if err != nil {
			return 0, nil, fmt.Errorf("ibkr conid for %s: %w", symbol, err)
		}
		c.mu.Lock()
		c.conids[symbol] = conid
		c.mu.Unlock()
		var months []string
		for _, s := range r.Sections {
			if s.SecType == "OPT" {
				months = sortMonths(strings.Split(s.Months, ";"))
				break
			}
		}
		return conid, months, nil
	}
	return 0, nil, fmt.Errorf("ibkr: no stock contract for %s", symbol)
}

func (c *Client) info(ctx context.Context, base string, conid int64, month string, strike float64, right options.Right) ([]contractInfo, error) {
	q := url.Values{
		"conid":    {strconv.FormatInt(conid, 10)},
		"sectype":  {"OPT"},
		"month":    {month},
		"strike":   {strconv.FormatFloat(strike, 'f', -1, 64)},
		"right":    {string(right)},
		"exchange": {c.cfg.Exchange},
	}
	var infos []contractInfo
	if err := c.do(ctx, base, http.MethodGet, "/iserver/secdef/info?"+q.Encode(), nil, &infos); err != nil {
		return nil, err
	}
	return infos, nil
}

// optionConid finds the conid of an option contract, caching by contract key.
func (c *Client) optionConid(ctx context.Context, base string, contract options.Contract) (int64, error) {
	key := contract.Key()
	c.mu.Lock()
	if id, ok := c.optConid[key]; ok {
		c.mu.Unlock()
		return id, nil
	}
	under, ok := c.conids[contract.Symbol]
	c.mu.Unlock()
	if !ok {
		var err error
		under, _, err = c.underlying(ctx, base, contract.Symbol)
		if err != nil {
			return 0, err
		}
	}

	month, err := monthCode(contract.Expiration)
	if err != nil {
		return 0, err
	}
	infos, err := c.info(ctx, base, under, month, contract.Strike, contract.Right)
	if err != nil {
		return 0, err
	}
	for _, in := range infos {
		if in.MaturityDate != contract.Expiration {
			continue
		}
		id, err := strconv.ParseInt(string(in.Conid), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("ibkr conid for %s: %w", key, err)
		}
		c.mu.Lock()
		c.optConid[key] = id
		c.mu.Unlock()
		return id, nil
	}
	return 0, fmt.Errorf("ibkr: no listed contract for %s", key)
}

// monthCode turns 20250117 into JAN25.
func monthCode(expiration string) (string, error) {
	t, err := time.Parse("20060102", expiration)
	if err != nil {
		return "", fmt.Errorf("bad expiration %q: %w", expiration, err)
	}
	return strings.ToUpper(t.Format("Jan06")), nil
}

func sortMonths(raw []string) []string {
	type month struct {
		code string
		at   time.Time
	}
	var ms []month
	for _, r := range raw {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		t, err := time.Parse("Jan06", strings.ToUpper(r[:1])+strings.ToLower(r[1:]))
		if err != nil {
			continue
		}
		ms = append(ms, month{code: strings.ToUpper(r), at: t})
	}
	sort.SliceStable(ms, func(i, j int) bool { return ms[i].at.Before(ms[j].at) })
	out := make([]string, len(ms))
	for i, m := range ms {
		out[i] = m.code
	}
	return out
}

func mergeStrikes(lists ...[]float64) []float64 {
	seen := make(map[float64]struct{})
	var out []float64
	for _, l := range lists {
		for _, k := range l {
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			out = append(out, k)
		}
	}
	sort.Float64s(out)
	return out
}
