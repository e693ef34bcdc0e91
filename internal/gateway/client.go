// Package gateway owns the single stateful connection to a brokerage endpoint.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"leprechaun-go/internal/options"
)

var (
	// ErrConnectionExhausted means every connect attempt failed. Callers must abort.
	ErrConnectionExhausted = errors.New("gateway connection retries exhausted")
	// ErrAuthentication means the gateway rejected the session credentials. Never retried.
	ErrAuthentication = errors.New("gateway authentication failed")
	// ErrNotConnected is returned by clients asked to work without a live session.
	ErrNotConnected = errors.New("gateway not connected")
)

// Fatal reports whether err must abort a whole trading run.
func Fatal(err error) bool {
	return errors.Is(err, ErrConnectionExhausted) || errors.Is(err, ErrAuthentication)
}

// Endpoint addresses a brokerage gateway. ClientID identifies the session (the account id for IBKR).
type Endpoint struct {
	Host     string
	Port     int
	ClientID string
}

func (e Endpoint) String() string { return fmt.Sprintf("%s:%d", e.Host, e.Port) }

// Connection is the session's view of its link to the gateway.
type Connection struct {
	Host        string    `json:"host"`
	Port        int       `json:"port"`
	ClientID    string    `json:"client_id"`
	Alive       bool      `json:"alive"`
	ConnectedAt time.Time `json:"connected_at,omitempty"`
}

// Status is the brokerage-reported order state.
type Status string

const (
	StatusPendingSubmit Status = "PendingSubmit"
	StatusPreSubmitted  Status = "PreSubmitted"
	StatusSubmitted     Status = "Submitted"
	StatusFilled        Status = "Filled"
	StatusCancelled     Status = "Cancelled"
	StatusInactive      Status = "Inactive"
	StatusUnknown       Status = "Unknown"
)

// Order is a plain order request. Ref is a client-side reference unique per submission.
type Order struct {
	Action    string `json:"action"`
	Quantity  int    `json:"quantity"`
	OrderType string `json:"order_type"`
	TIF       string `json:"tif"`
	Ref       string `json:"ref"`
}

// Trade is the handle returned by a submission.
type Trade struct {
	OrderID string `json:"order_id"`
	Ref     string `json:"ref"`
	Status  Status `json:"status"`
}

// OrderState is the result of polling a submitted order.
type OrderState struct {
	Status    Status  `json:"status"`
	FilledQty float64 `json:"filled_qty"`
	AvgPrice  float64 `json:"avg_price"`
}

// AccountSummary is the subset of account values the bot reports.
type AccountSummary struct {
	AccountID      string  `json:"account_id"`
	Currency       string  `json:"currency"`
	NetLiquidation float64 `json:"net_liquidation"`
	AvailableFunds float64 `json:"available_funds"`
	Cash           float64 `json:"cash"`
	RealizedPnL    float64 `json:"realized_pnl"`
}

// Client is the brokerage capability the session drives. Implementations need not be safe
// for concurrent use; Session serializes every call.
type Client interface {
	Connect(ctx context.Context, ep Endpoint) error
	IsConnected(ctx context.Context) bool
	Disconnect(ctx context.Context) error
	PlaceOrder(ctx context.Context, contract options.Contract, order Order) (*Trade, error)
	OrderStatus(ctx context.Context, orderID string) (OrderState, error)
	AccountSummary(ctx context.Context) (AccountSummary, error)
}
