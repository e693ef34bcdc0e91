// Package execution handles order lifecycle and interaction with venues.
package execution

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"leprechaun-go/internal/gateway"
	"leprechaun-go/internal/metrics"
	"leprechaun-go/internal/options"
	"leprechaun-go/internal/retry"
)

// ErrOrderNotFilled means every submission of an order came back without a fill.
var ErrOrderNotFilled = errors.New("order not filled")

// Side enumerates order directions used by the executor.
type Side string

const (
	// Buy indicates a long order.
	Buy Side = "BUY"
	// Sell indicates a short order.
	Sell Side = "SELL"
)

// State is the terminal state of an order placement.
type State string

const (
	StateFilled    State = "filled"
	StateExhausted State = "failed-exhausted"
	StateAborted   State = "aborted"
)

// Gateway is the subset of the session the executor submits through.
type Gateway interface {
	PlaceOrder(ctx context.Context, contract options.Contract, order gateway.Order) (*gateway.Trade, error)
	OrderStatus(ctx context.Context, orderID string) (gateway.OrderState, error)
}

// ChainSource looks up option chains for an underlying.
type ChainSource interface {
	OptionChains(ctx context.Context, symbol string) ([]options.Chain, error)
}

// Recorder receives every terminal outcome.
type Recorder interface {
	Record(Outcome)
}

// Attempt is one submission of an order.
type Attempt struct {
	Number  int            `json:"number"`
	OrderID string         `json:"order_id,omitempty"`
	Ref     string         `json:"ref"`
	Status  gateway.Status `json:"status,omitempty"`
	Err     string         `json:"error,omitempty"`
	At      time.Time      `json:"at"`
}

// Outcome summarizes a placement. DuplicateRisk is set whenever more than one submission
// went out, since an unfilled earlier order may still be live at the broker.
type Outcome struct {
	Contract      options.Contract `json:"contract"`
	Side          Side             `json:"side"`
	Quantity      int              `json:"quantity"`
	Attempts      int              `json:"attempts"`
	LastStatus    gateway.Status   `json:"last_status,omitempty"`
	State         State            `json:"state"`
	OrderIDs      []string         `json:"order_ids"`
	FilledQty     float64          `json:"filled_qty"`
	AvgPrice      float64          `json:"avg_price"`
	DuplicateRisk bool             `json:"duplicate_risk"`
	History       []Attempt        `json:"history"`
	Err           string           `json:"error,omitempty"`
	FinishedAt    time.Time        `json:"finished_at"`
}

// Filled reports whether the placement ended with a fill.
func (o Outcome) Filled() bool { return o.State == StateFilled }

// Premium is the cash paid for a filled option order.
func (o Outcome) Premium(multiplier float64) float64 {
	if !o.Filled() {
		return 0
	}
	return o.AvgPrice * o.FilledQty * multiplier
}

// Config tunes placement. Empty counts and names fall back to defaults; zero delays mean no wait.
type Config struct {
	MaxRetries    int
	RetryDelay    time.Duration
	FillPollDelay time.Duration
	Quantity      int
	OrderType     string
	TIF           string
}

func (c Config) withDefaults() Config {
	if c.MaxRetries <= 0 {
		c.MaxRetries = 5
	}
	if c.RetryDelay < 0 {
		c.RetryDelay = 3 * time.Second
	}
	if c.FillPollDelay < 0 {
		c.FillPollDelay = time.Second
	}
	if c.Quantity <= 0 {
		c.Quantity = 1
	}
	if c.OrderType == "" {
		c.OrderType = "MKT"
	}
	if c.TIF == "" {
		c.TIF = "DAY"
	}
	return c
}

// Executor places option orders and confirms fills with bounded retries.
type Executor struct {
	gw        Gateway
	chains    ChainSource
	cfg       Config
	log       zerolog.Logger
	recorders []Recorder
}

// NewExecutor wires the executor to a gateway session and chain source.
func NewExecutor(gw Gateway, chains ChainSource, cfg Config, log zerolog.Logger) *Executor {
	return &Executor{
		gw:     gw,
		chains: chains,
		cfg:    cfg.withDefaults(),
		log:    log.With().Str("component", "executor").Logger(),
	}
}

// AddRecorder registers a sink for terminal outcomes.
func (e *Executor) AddRecorder(r Recorder) {
	if r != nil {
		e.recorders = append(e.recorders, r)
	}
}

// Quantity is the default contract count per order.
func (e *Executor) Quantity() int { return e.cfg.Quantity }

// Place submits a market order for contract and waits for a fill, resubmitting up to
// MaxRetries times. Exhaustion returns an error wrapping ErrOrderNotFilled; gateway
// connection and authentication failures abort at once.
func (e *Executor) Place(ctx context.Context, contract options.Contract, side Side, qty int) (Outcome, error) {
	if qty <= 0 {
		qty = e.cfg.Quantity
	}
	out := Outcome{Contract: contract, Side: side, Quantity: qty, OrderIDs: []string{}}
	log := e.log.With().Str("contract", contract.Key()).Str("side", string(side)).Logger()
	policy := retry.Policy{MaxAttempts: e.cfg.MaxRetries, Delay: e.cfg.RetryDelay}

	err := retry.Do(ctx, policy, func(attempt int) error {
		out.Attempts = attempt
		order := gateway.Order{
			Action:    string(side),
			Quantity:  qty,
			OrderType: e.cfg.OrderType,
			TIF:       e.cfg.TIF,
			Ref:       uuid.NewString(),
		}
		rec := Attempt{Number: attempt, Ref: order.Ref, At: time.Now().UTC()}
		err := e.attempt(ctx, contract, order, &rec, &out)
		if err != nil {
			rec.Err = err.Error()
		}
		out.History = append(out.History, rec)
		if err == nil {
			return nil
		}
		if gateway.Fatal(err) || ctx.Err() != nil {
			return retry.Permanent(err)
		}
		log.Warn().Err(err).Int("attempt", attempt).Int("max", e.cfg.MaxRetries).Msg("order not filled, retrying")
		return err
	})

	out.DuplicateRisk = out.Attempts > 1
	out.FinishedAt = time.Now().UTC()
	switch {
	case err == nil:
		out.State = StateFilled
		log.Info().Int("attempts", out.Attempts).Float64("avg_price", out.AvgPrice).Msg("order filled")
	case errors.Is(err, retry.ErrExhausted):
		out.State = StateExhausted
		err = fmt.Errorf("%w: %s after %d attempts: %w", ErrOrderNotFilled, contract.Key(), out.Attempts, errors.Unwrap(err))
		log.Error().Err(err).Msg("max retries reached, order not filled")
	default:
		out.State = StateAborted
		log.Error().Err(err).Msg("order placement aborted")
	}
	if err != nil {
		out.Err = err.Error()
	}
	if out.DuplicateRisk {
		metrics.DuplicateRiskTotal.Inc()
		log.Warn().Int("submissions", out.Attempts).Strs("order_ids", out.OrderIDs).Msg("multiple submissions sent, check broker for duplicate live orders")
	}
	metrics.OrderOutcomesTotal.WithLabelValues(string(out.State)).Inc()
	for _, r := range e.recorders {
		r.Record(out)
	}
	return out, err
}

func (e *Executor) attempt(ctx context.Context, contract options.Contract, order gateway.Order, rec *Attempt, out *Outcome) error {
	metrics.OrdersTotal.WithLabelValues(contract.Symbol, order.Action).Inc()
	metrics.OrderAttemptsTotal.WithLabelValues(string(contract.Right)).Inc()

	trade, err := e.gw.PlaceOrder(ctx, contract, order)
	if err != nil {
		return fmt.Errorf("submit %s: %w", contract.Key(), err)
	}
	if trade == nil {
		return fmt.Errorf("submit %s: empty trade handle", contract.Key())
	}
	rec.OrderID = trade.OrderID
	out.OrderIDs = append(out.OrderIDs, trade.OrderID)
	e.log.Info().Str("contract", contract.Key()).Str("order_id", trade.OrderID).Str("ref", order.Ref).Msg("order submitted")

	if err := retry.Wait(ctx, e.cfg.FillPollDelay); err != nil {
		return err
	}
	state, err := e.gw.OrderStatus(ctx, trade.OrderID)
	if err != nil {
		return fmt.Errorf("status %s: %w", trade.OrderID, err)
	}
	rec.Status = state.Status
	out.LastStatus = state.Status
	if state.Status != gateway.StatusFilled {
		return fmt.Errorf("order %s status %s", trade.OrderID, state.Status)
	}
	out.FilledQty = state.FilledQty
	out.AvgPrice = state.AvgPrice
	return nil
}
