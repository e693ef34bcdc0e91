// Package trader runs one screen-and-trade pass end to end.
package trader

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"leprechaun-go/internal/execution"
	"leprechaun-go/internal/gateway"
	"leprechaun-go/internal/risk"
	"leprechaun-go/internal/signal"
	"leprechaun-go/internal/storage"
	"leprechaun-go/internal/strategy"
)

// Skip stages.
const (
	StageScreen = "screen"
	StageRisk   = "risk"
	StageBudget = "budget"
	StageChain  = "chain"
)

// Session is the part of the gateway session a run needs up front.
type Session interface {
	EnsureConnected(ctx context.Context) error
}

// Screener turns tickers into candidates.
type Screener interface {
	Screen(ctx context.Context, tickers []string) (strategy.ScreenResult, error)
}

// Bracketer places the nearest-strike orders for a candidate.
type Bracketer interface {
	PlaceBracket(ctx context.Context, cand signal.Candidate) ([]execution.Outcome, error)
	Quantity() int
}

// Store persists runs and outcomes.
type Store interface {
	SaveRun(ctx context.Context, r storage.RunRecord) error
	SaveOutcome(ctx context.Context, runID string, o execution.Outcome) error
}

// Publisher is told about each finished run.
type Publisher interface {
	PublishRun(Report)
}

// Skip names a ticker that did not trade and why.
type Skip struct {
	Ticker string `json:"ticker"`
	Stage  string `json:"stage"`
	Reason string `json:"reason"`
}

// Report is the result of one run. Succeeded, skipped and failed work is always listed.
type Report struct {
	RunID        string              `json:"run_id"`
	StartedAt    time.Time           `json:"started_at"`
	FinishedAt   time.Time           `json:"finished_at"`
	Tickers      []string            `json:"tickers"`
	Candidates   []signal.Candidate  `json:"candidates"`
	Outcomes     []execution.Outcome `json:"outcomes"`
	Skipped      []Skip              `json:"skipped"`
	Balance      float64             `json:"balance"`
	BalanceAfter float64             `json:"balance_after"`
	Err          string              `json:"error,omitempty"`
}

// Filled counts outcomes that ended with a fill.
func (r Report) Filled() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Filled() {
			n++
		}
	}
	return n
}

// Failed counts outcomes that did not fill.
func (r Report) Failed() int { return len(r.Outcomes) - r.Filled() }

// Config holds sizing for risk checks and premium accounting.
type Config struct {
	Multiplier float64
	Limits     risk.Limits
}

// Trader wires screening, execution and bookkeeping. Runs are serialized.
type Trader struct {
	runMu      sync.Mutex
	session    Session
	screener   Screener
	exec       Bracketer
	cfg        Config
	store      Store
	publishers []Publisher
	log        zerolog.Logger
}

// New constructs a trader. store may be nil.
func New(session Session, screener Screener, exec Bracketer, cfg Config, store Store, log zerolog.Logger) *Trader {
	if cfg.Multiplier <= 0 {
		cfg.Multiplier = 100
	}
	return &Trader{
		session:  session,
		screener: screener,
		exec:     exec,
		cfg:      cfg,
		store:    store,
		log:      log.With().Str("component", "trader").Logger(),
	}
}

// AddPublisher registers a listener for finished runs.
func (t *Trader) AddPublisher(p Publisher) {
	if p != nil {
		t.publishers = append(t.publishers, p)
	}
}

// Screen runs the screener only.
func (t *Trader) Screen(ctx context.Context, tickers []string) (strategy.ScreenResult, error) {
	return t.screener.Screen(ctx, normalize(tickers))
}

// RunScreenAndTrade screens tickers and buys the nearest-strike calls and puts of every
// candidate, one candidate at a time. A gateway connection or authentication failure ends
// the run and is returned together with the partial report.
func (t *Trader) RunScreenAndTrade(ctx context.Context, tickers []string, balance float64) (report Report, err error) {
	t.runMu.Lock()
	defer t.runMu.Unlock()

	tickers = normalize(tickers)
	budget := risk.NewBudget(balance)
	report = Report{
		RunID:      uuid.NewString(),
		StartedAt:  time.Now().UTC(),
		Tickers:    tickers,
		Candidates: []signal.Candidate{},
		Outcomes:   []execution.Outcome{},
		Skipped:    []Skip{},
		Balance:    balance,
	}
	log := t.log.With().Str("run_id", report.RunID).Logger()
	log.Info().Strs("tickers", tickers).Float64("balance", balance).Msg("run started")

	defer func() {
		report.FinishedAt = time.Now().UTC()
		report.BalanceAfter = budget.Remaining()
		if err != nil {
			report.Err = err.Error()
			log.Error().Err(err).Msg("run aborted")
		}
		t.finish(report, log)
	}()

	if err := t.session.EnsureConnected(ctx); err != nil {
		return report, fmt.Errorf("gateway: %w", err)
	}

	screened, err := t.screener.Screen(ctx, tickers)
	for _, s := range screened.Skipped {
		report.Skipped = append(report.Skipped, Skip{Ticker: s.Ticker, Stage: StageScreen, Reason: s.Reason})
	}
	if err != nil {
		return report, fmt.Errorf("screen: %w", err)
	}
	report.Candidates = append(report.Candidates, screened.Candidates...)

	qty := float64(t.exec.Quantity())
	for _, cand := range screened.Candidates {
		notional := cand.CurrentPrice * t.cfg.Multiplier * qty
		if !t.cfg.Limits.Allow(notional) {
			report.Skipped = append(report.Skipped, Skip{
				Ticker: cand.Ticker,
				Stage:  StageRisk,
				Reason: fmt.Sprintf("notional %.2f above limit %.2f", notional, t.cfg.Limits.MaxNotionalPerTrade),
			})
			continue
		}
		if budget.Remaining() <= 0 {
			report.Skipped = append(report.Skipped, Skip{Ticker: cand.Ticker, Stage: StageBudget, Reason: "budget exhausted"})
			continue
		}

		outcomes, err := t.exec.PlaceBracket(ctx, cand)
		for _, o := range outcomes {
			report.Outcomes = append(report.Outcomes, o)
			t.saveOutcome(report.RunID, o, log)
			if p := o.Premium(t.cfg.Multiplier); p > 0 {
				if err := budget.Spend(p); err != nil {
					log.Warn().Err(err).Str("contract", o.Contract.Key()).Float64("premium", p).Msg("fill overdraws budget")
					budget.Apply(-p)
				}
			}
		}
		if err == nil {
			continue
		}
		if gateway.Fatal(err) || ctx.Err() != nil {
			return report, err
		}
		report.Skipped = append(report.Skipped, Skip{Ticker: cand.Ticker, Stage: StageChain, Reason: err.Error()})
		log.Warn().Err(err).Str("ticker", cand.Ticker).Msg("candidate skipped")
	}

	log.Info().
		Int("candidates", len(report.Candidates)).
		Int("filled", report.Filled()).
		Int("failed", report.Failed()).
		Int("skipped", len(report.Skipped)).
		Float64("balance_after", budget.Remaining()).
		Msg("run finished")
	return report, nil
}

func (t *Trader) saveOutcome(runID string, o execution.Outcome, log zerolog.Logger) {
	if t.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := t.store.SaveOutcome(ctx, runID, o); err != nil {
		log.Error().Err(err).Msg("save outcome failed")
	}
}

func (t *Trader) finish(r Report, log zerolog.Logger) {
	if t.store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		rec := storage.RunRecord{
			ID:           r.RunID,
			StartedAt:    r.StartedAt,
			FinishedAt:   r.FinishedAt,
			Tickers:      r.Tickers,
			Balance:      r.Balance,
			BalanceAfter: r.BalanceAfter,
			Err:          r.Err,
		}
		if err := t.store.SaveRun(ctx, rec); err != nil {
			log.Error().Err(err).Msg("save run failed")
		}
	}
	for _, p := range t.publishers {
		p.PublishRun(r)
	}
}

func normalize(tickers []string) []string {
	out := make([]string, 0, len(tickers))
	seen := make(map[string]struct{}, len(tickers))
	for _, raw := range tickers {
		for _, part := range strings.Split(raw, ",") {
			tk := strings.ToUpper(strings.TrimSpace(part))
			if tk == "" {
				continue
			}
			if _, ok := seen[tk]; ok {
				continue
			}
			seen[tk] = struct{}{}
			out = append(out, tk)
		}
	}
	return out
}
