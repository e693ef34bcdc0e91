// Package ibkr talks to a locally running Interactive Brokers Client Portal gateway.
package ibkr

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"leprechaun-go/internal/gateway"
)

const (
	defaultBasePath = "/v1/api"
	defaultTimeout  = 15 * time.Second
	maxReplies      = 5
)

// Config describes how to reach the gateway.
type Config struct {
	BasePath    string
	InsecureTLS bool
	Timeout     time.Duration
	Exchange    string
}

// Option configures Client construction parameters.
type Option func(*Client)

// WithHTTPClient swaps the HTTP client. The caller owns its TLS and cookie settings.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		if c != nil {
			cl.http = c
		}
	}
}

// WithScheme overrides the https default (tests run against plain http).
func WithScheme(scheme string) Option {
	return func(cl *Client) {
		if scheme != "" {
			cl.scheme = scheme
		}
	}
}

// Client implements gateway.Client and execution.ChainSource over the Client Portal REST API.
type Client struct {
	mu       sync.Mutex
	cfg      Config
	scheme   string
	http     *http.Client
	log      zerolog.Logger
	baseURL  string
	account  string
	conids   map[string]int64
	optConid map[string]int64
}

// New constructs a client. Connect must succeed before any other call.
func New(cfg Config, log zerolog.Logger, opts ...Option) *Client {
	if cfg.BasePath == "" {
		cfg.BasePath = defaultBasePath
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Exchange == "" {
		cfg.Exchange = "SMART"
	}
	jar, _ := cookiejar.New(nil)
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.InsecureTLS {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	c := &Client{
		cfg:      cfg,
		scheme:   "https",
		http:     &http.Client{Timeout: cfg.Timeout, Transport: transport, Jar: jar},
		log:      log.With().Str("component", "ibkr").Logger(),
		conids:   make(map[string]int64),
		optConid: make(map[string]int64),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Account returns the account id selected at connect time.
func (c *Client) Account() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.account
}

type authStatus struct {
	Authenticated bool   `json:"authenticated"`
	Competing     bool   `json:"competing"`
	Connected     bool   `json:"connected"`
	Message       string `json:"message"`
}

type accountsResponse struct {
	Accounts        []string `json:"accounts"`
	SelectedAccount string   `json:"selectedAccount"`
}

// Connect verifies the gateway session is authenticated and the account is visible.
// Transport failures are retryable; a rejected or logged-out session is gateway.ErrAuthentication.
func (c *Client) Connect(ctx context.Context, ep gateway.Endpoint) error {
	base := fmt.Sprintf("%s://%s:%d%s", c.scheme, ep.Host, ep.Port, strings.TrimSuffix(c.cfg.BasePath, "/"))

	var status authStatus
	if err := c.do(ctx, base, http.MethodGet, "/iserver/auth/status", nil, &status); err != nil {
		return err
	}
	if !status.Authenticated {
		return fmt.Errorf("session not authenticated (%s): %w", status.Message, gateway.ErrAuthentication)
	}
	if status.Competing {
		return errors.New("competing brokerage session")
	}
	if !status.Connected {
		return errors.New("gateway not connected to brokerage")
	}

	var accounts accountsResponse
	if err := c.do(ctx, base, http.MethodGet, "/iserver/accounts", nil, &accounts); err != nil {
		return err
	}
	account := ep.ClientID
	if account == "" {
		account = accounts.SelectedAccount
	}
	found := false
	for _, a := range accounts.Accounts {
		if a == account {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("account %q not available: %w", account, gateway.ErrAuthentication)
	}

	c.mu.Lock()
	c.baseURL = base
	c.account = account
	c.mu.Unlock()
	c.log.Info().Str("account", account).Msg("client portal session ready")
	return nil
}

type tickleResponse struct {
	Session string `json:"session"`
	IServer struct {
		AuthStatus authStatus `json:"authStatus"`
	} `json:"iserver"`
}

// IsConnected pings the session keepalive and reports whether it is still usable.
func (c *Client) IsConnected(ctx context.Context) bool {
	base := c.base()
	if base == "" {
		return false
	}
	var resp tickleResponse
	if err := c.do(ctx, base, http.MethodPost, "/tickle", nil, &resp); err != nil {
		c.log.Debug().Err(err).Msg("tickle failed")
		return false
	}
	return resp.IServer.AuthStatus.Authenticated && resp.IServer.AuthStatus.Connected
}

// Disconnect ends the brokerage session and forgets the base URL.
func (c *Client) Disconnect(ctx context.Context) error {
	base := c.base()
	if base == "" {
		return nil
	}
	c.mu.Lock()
	c.baseURL = ""
	c.mu.Unlock()
	return c.do(ctx, base, http.MethodPost, "/logout", nil, nil)
}

func (c *Client) base() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.baseURL
}

func (c *Client) session() (string, string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.baseURL == "" {
		return "", "", gateway.ErrNotConnected
	}
	return c.baseURL, c.account, nil
}

type summaryValue struct {
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
}

type portfolioSummary struct {
	NetLiquidation summaryValue `json:"netliquidation"`
	AvailableFunds summaryValue `json:"availablefunds"`
	TotalCash      summaryValue `json:"totalcashvalue"`
}

// AccountSummary reads the portfolio summary for the connected account.
func (c *Client) AccountSummary(ctx context.Context) (gateway.AccountSummary, error) {
	base, account, err := c.session()
	if err != nil {
		return gateway.AccountSummary{}, err
	}
	var s portfolioSummary
	if err := c.do(ctx, base, http.MethodGet, "/portfolio/"+url.PathEscape(account)+"/summary", nil, &s); err != nil {
		return gateway.AccountSummary{}, err
	}
	currency := s.NetLiquidation.Currency
	if currency == "" {
		currency = "USD"
	}
	return gateway.AccountSummary{
		AccountID:      account,
		Currency:       currency,
		NetLiquidation: s.NetLiquidation.Amount,
		AvailableFunds: s.AvailableFunds.Amount,
		Cash:           s.TotalCash.Amount,
	}, nil
}

// do issues a request relative to base and decodes the JSON response into out when non-nil.
func (c *Client) do(ctx context.Context, base, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("ibkr encode %s: %w", path, err)
		}
		reader = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, base+path, reader)
	if err != nil {
		return fmt.Errorf("ibkr request %s: %w", path, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("ibkr %s %s: %w", method, path, err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusUnauthorized || res.StatusCode == http.StatusForbidden {
		return fmt.Errorf("ibkr %s: status %d: %w", path, res.StatusCode, gateway.ErrAuthentication)
	}
	if res.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("ibkr %s %s: status %d: %s", method, path, res.StatusCode, strings.TrimSpace(string(msg)))
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, res.Body)
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("ibkr %s: decode: %w", path, err)
	}
	return nil
}

// flexFloat accepts numbers the gateway sometimes sends as strings.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	*f = flexFloat(v)
	return nil
}

// flexID accepts ids sent either as strings or numbers.
type flexID string

func (f *flexID) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "null" {
		s = ""
	}
	*f = flexID(s)
	return nil
}
