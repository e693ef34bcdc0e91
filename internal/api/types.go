package api

import (
	"leprechaun-go/internal/signal"
	"leprechaun-go/internal/strategy"
)

// ErrorResponse is returned for all errors
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// BestStocksResponse answers the screening endpoint.
type BestStocksResponse struct {
	BestStocks []signal.Candidate `json:"best_stocks"`
	Skipped    []strategy.Skip    `json:"skipped"`
}

// RunRequest starts a screen-and-trade run.
type RunRequest struct {
	Tickers []string `json:"tickers"`
	Balance *float64 `json:"balance,omitempty"`
}

// QuoteResponse answers the quote endpoint.
type QuoteResponse struct {
	Ticker    string  `json:"ticker"`
	PrevClose float64 `json:"prev_close"`
}

// OrderRequest places one option order. Right accepts C, P, call or put; Action defaults to BUY.
type OrderRequest struct {
	Ticker   string   `json:"ticker"`
	Right    string   `json:"right"`
	Strike   *float64 `json:"strike"`
	Quantity int      `json:"quantity"`
	Action   string   `json:"action,omitempty"`
}

// WSMessage is the envelope for every pushed message.
type WSMessage struct {
	Type string `json:"type"` // "outcome" or "run"
	Data any    `json:"data"`
}

// WSSubscribeRequest is sent by the client to (un)subscribe.
type WSSubscribeRequest struct {
	Op       string   `json:"op"`       // "subscribe" or "unsubscribe"
	Channels []string `json:"channels"` // "outcomes", "runs"
}
