package paper

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"leprechaun-go/internal/execution"
	"leprechaun-go/internal/gateway"
	"leprechaun-go/internal/options"
)

// PriceSource supplies the underlying mark used to build chains and price premiums.
type PriceSource interface {
	PrevClose(ctx context.Context, ticker string) (float64, error)
}

// StaticPrices is a fixed price table, handy for offline runs and tests.
type StaticPrices map[string]float64

// PrevClose returns the configured price for ticker.
func (s StaticPrices) PrevClose(_ context.Context, ticker string) (float64, error) {
	p, ok := s[strings.ToUpper(ticker)]
	if !ok {
		return 0, fmt.Errorf("no price for %s", ticker)
	}
	return p, nil
}

// BrokerConfig tunes the simulated brokerage.
type BrokerConfig struct {
	AccountID string
	// FillAfterPolls is how many status polls a contract needs, across submissions, before it fills.
	FillAfterPolls  int
	PremiumPct      float64
	StrikeStep      float64
	StrikeCount     int
	ExpirationCount int
	Exchange        string
	Multiplier      float64
	// MarkTTL is how long an underlying mark is reused before it is fetched again.
	MarkTTL time.Duration
}

func (c BrokerConfig) withDefaults() BrokerConfig {
	if c.AccountID == "" {
		c.AccountID = "PAPER"
	}
	if c.FillAfterPolls <= 0 {
		c.FillAfterPolls = 1
	}
	if c.PremiumPct <= 0 {
		c.PremiumPct = 0.02
	}
	if c.StrikeStep <= 0 {
		c.StrikeStep = 5
	}
	if c.StrikeCount <= 0 {
		c.StrikeCount = 10
	}
	if c.ExpirationCount <= 0 {
		c.ExpirationCount = 3
	}
	if c.Exchange == "" {
		c.Exchange = options.DefaultExchange
	}
	if c.Multiplier <= 0 {
		c.Multiplier = 100
	}
	if c.MarkTTL <= 0 {
		c.MarkTTL = time.Minute
	}
	return c
}

type cachedMark struct {
	price float64
	at    time.Time
}

type paperOrder struct {
	contract options.Contract
	order    gateway.Order
	state    gateway.OrderState
}

// Broker is an in-memory brokerage. It satisfies gateway.Client and execution.ChainSource.
type Broker struct {
	mu           sync.Mutex
	cfg          BrokerConfig
	prices       PriceSource
	account      *Account
	log          zerolog.Logger
	now          func() time.Time
	connected    bool
	failConnects int
	rejectAuth   bool
	marks        map[string]cachedMark
	orders       map[string]*paperOrder
	polls        map[string]int
}

// NewBroker constructs a paper brokerage debiting premiums from account.
func NewBroker(cfg BrokerConfig, prices PriceSource, account *Account, log zerolog.Logger) *Broker {
	return &Broker{
		cfg:     cfg.withDefaults(),
		prices:  prices,
		account: account,
		log:     log.With().Str("component", "paper-broker").Logger(),
		now:     time.Now,
		marks:   make(map[string]cachedMark),
		orders:  make(map[string]*paperOrder),
		polls:   make(map[string]int),
	}
}

// FailNextConnects makes the next n Connect calls fail with a transient error.
func (b *Broker) FailNextConnects(n int) {
	b.mu.Lock()
	b.failConnects = n
	b.mu.Unlock()
}

// RejectAuth makes Connect fail with gateway.ErrAuthentication.
func (b *Broker) RejectAuth(reject bool) {
	b.mu.Lock()
	b.rejectAuth = reject
	b.mu.Unlock()
}

// Drop simulates the gateway going away without a disconnect.
func (b *Broker) Drop() {
	b.mu.Lock()
	b.connected = false
	b.mu.Unlock()
}

// Account exposes the backing paper account.
func (b *Broker) Account() *Account { return b.account }

func (b *Broker) Connect(_ context.Context, ep gateway.Endpoint) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.rejectAuth {
		return fmt.Errorf("paper account %s: %w", ep.ClientID, gateway.ErrAuthentication)
	}
	if b.failConnects > 0 {
		b.failConnects--
		return errors.New("paper gateway unavailable")
	}
	b.connected = true
	return nil
}

func (b *Broker) IsConnected(context.Context) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connected
}

func (b *Broker) Disconnect(context.Context) error {
	b.mu.Lock()
	b.connected = false
	b.mu.Unlock()
	return nil
}

// OptionChains synthesizes one chain centred on the underlying's mark with weekly Friday expirations.
func (b *Broker) OptionChains(ctx context.Context, symbol string) ([]options.Chain, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	mark, err := b.mark(ctx, symbol)
	if err != nil {
		return nil, err
	}
	step := b.cfg.StrikeStep
	center := math.Round(mark/step) * step
	half := b.cfg.StrikeCount / 2
	strikes := make([]float64, 0, b.cfg.StrikeCount+1)
	for i := -half; i <= half; i++ {
		if k := center + float64(i)*step; k > 0 {
			strikes = append(strikes, k)
		}
	}
	return []options.Chain{{
		Symbol:      symbol,
		Exchange:    b.cfg.Exchange,
		Expirations: fridays(b.now(), b.cfg.ExpirationCount),
		Strikes:     strikes,
	}}, nil
}

func (b *Broker) mark(ctx context.Context, symbol string) (float64, error) {
	b.mu.Lock()
	m, ok := b.marks[symbol]
	fresh := ok && b.now().Sub(m.at) < b.cfg.MarkTTL
	b.mu.Unlock()
	if fresh {
		return m.price, nil
	}

	price, err := b.prices.PrevClose(ctx, symbol)
	if err != nil {
		return 0, fmt.Errorf("paper mark %s: %w", symbol, err)
	}
	if price <= 0 {
		return 0, fmt.Errorf("paper mark %s: non-positive price %.4f", symbol, price)
	}
	b.mu.Lock()
	b.marks[symbol] = cachedMark{price: price, at: b.now()}
	b.mu.Unlock()
	return price, nil
}

func (b *Broker) PlaceOrder(ctx context.Context, contract options.Contract, order gateway.Order) (*gateway.Trade, error) {
	if !b.IsConnected(ctx) {
		return nil, gateway.ErrNotConnected
	}
	if order.Quantity <= 0 {
		return nil, errors.New("order quantity must be positive")
	}
	id := uuid.NewString()
	b.mu.Lock()
	b.orders[id] = &paperOrder{
		contract: contract,
		order:    order,
		state:    gateway.OrderState{Status: gateway.StatusPreSubmitted},
	}
	b.mu.Unlock()
	b.log.Debug().Str("order_id", id).Str("contract", contract.Key()).Str("ref", order.Ref).Msg("paper order accepted")
	return &gateway.Trade{OrderID: id, Ref: order.Ref, Status: gateway.StatusPreSubmitted}, nil
}

func (b *Broker) OrderStatus(ctx context.Context, orderID string) (gateway.OrderState, error) {
	if !b.IsConnected(ctx) {
		return gateway.OrderState{}, gateway.ErrNotConnected
	}
	b.mu.Lock()
	po, ok := b.orders[orderID]
	if !ok {
		b.mu.Unlock()
		return gateway.OrderState{}, fmt.Errorf("paper order %s not found", orderID)
	}
	if po.state.Status != gateway.StatusPreSubmitted {
		state := po.state
		b.mu.Unlock()
		return state, nil
	}
	key := po.contract.Key()
	b.polls[key]++
	ready := b.polls[key] >= b.cfg.FillAfterPolls
	b.mu.Unlock()

	if !ready {
		return gateway.OrderState{Status: gateway.StatusSubmitted}, nil
	}

	underlying, err := b.mark(ctx, po.contract.Symbol)
	if err != nil {
		return gateway.OrderState{}, err
	}
	premium := b.premium(po.contract, underlying)
	side := execution.Side(strings.ToUpper(po.order.Action))
	qty := float64(po.order.Quantity)

	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.account.MarketFill(key, side, qty*b.cfg.Multiplier, premium); err != nil {
		b.log.Warn().Err(err).Str("order_id", orderID).Msg("paper fill rejected")
		po.state = gateway.OrderState{Status: gateway.StatusInactive}
		return po.state, nil
	}
	po.state = gateway.OrderState{Status: gateway.StatusFilled, FilledQty: qty, AvgPrice: premium}
	b.log.Info().Str("order_id", orderID).Str("contract", key).Float64("premium", premium).Msg("paper order filled")
	return po.state, nil
}

// premium is intrinsic value plus a flat time value, rounded to cents.
func (b *Broker) premium(c options.Contract, underlying float64) float64 {
	intrinsic := 0.0
	switch c.Right {
	case options.Call:
		intrinsic = math.Max(0, underlying-c.Strike)
	case options.Put:
		intrinsic = math.Max(0, c.Strike-underlying)
	}
	p := intrinsic + b.cfg.PremiumPct*underlying
	return math.Max(0.01, math.Round(p*100)/100)
}

func (b *Broker) AccountSummary(ctx context.Context) (gateway.AccountSummary, error) {
	if !b.IsConnected(ctx) {
		return gateway.AccountSummary{}, gateway.ErrNotConnected
	}
	snap := b.account.Snapshot(nil)
	return gateway.AccountSummary{
		AccountID:      b.cfg.AccountID,
		Currency:       "USD",
		NetLiquidation: snap.Equity,
		AvailableFunds: snap.Cash,
		Cash:           snap.Cash,
		RealizedPnL:    b.account.RealizedPnL(),
	}, nil
}

// fridays lists the next n Friday expirations after now in YYYYMMDD form.
func fridays(now time.Time, n int) []string {
	d := now.UTC().AddDate(0, 0, 1)
	for d.Weekday() != time.Friday {
		d = d.AddDate(0, 0, 1)
	}
	out := make([]string, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, d.AddDate(0, 0, 7*i).Format("20060102"))
	}
	return out
}
