package ibkr

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"leprechaun-go/internal/gateway"
	"leprechaun-go/internal/options"
)

type orderTicket struct {
	Conid           int64  `json:"conid"`
	SecType         string `json:"secType"`
	COID            string `json:"cOID"`
	OrderType       string `json:"orderType"`
	ListingExchange string `json:"listingExchange"`
	Side            string `json:"side"`
	Quantity        int    `json:"quantity"`
	TIF             string `json:"tif"`
}

type orderRequest struct {
	Orders []orderTicket `json:"orders"`
}

type orderReply struct {
	ID          string   `json:"id"`
	Message     []string `json:"message"`
	OrderID     flexID   `json:"order_id"`
	OrderStatus string   `json:"order_status"`
	Error       string   `json:"error"`
}

// PlaceOrder submits a single order, confirming any precautionary prompts the gateway raises.
func (c *Client) PlaceOrder(ctx context.Context, contract options.Contract, order gateway.Order) (*gateway.Trade, error) {
	base, account, err := c.session()
	if err != nil {
		return nil, err
	}
	conid, err := c.optionConid(ctx, base, contract)
	if err != nil {
		return nil, err
	}
	exchange := contract.Exchange
	if exchange == "" {
		exchange = c.cfg.Exchange
	}
	req := orderRequest{Orders: []orderTicket{{
		Conid:           conid,
		SecType:         fmt.Sprintf("%d:OPT", conid),
		COID:            order.Ref,
		OrderType:       order.OrderType,
		ListingExchange: exchange,
		Side:            order.Action,
		Quantity:        order.Quantity,
		TIF:             order.TIF,
	}}}

	replies, err := c.postOrder(ctx, base, "/iserver/account/"+url.PathEscape(account)+"/orders", req)
	if err != nil {
		return nil, err
	}
	for i := 0; i < maxReplies; i++ {
		if len(replies) == 0 {
			return nil, errors.New("ibkr: empty order response")
		}
		r := replies[0]
		switch {
		case r.Error != "":
			return nil, fmt.Errorf("ibkr order rejected: %s", r.Error)
		case r.OrderID != "":
			return &gateway.Trade{OrderID: string(r.OrderID), Ref: order.Ref, Status: status(r.OrderStatus)}, nil
		case r.ID != "":
			c.log.Warn().Str("reply_id", r.ID).Strs("message", r.Message).Msg("confirming order prompt")
			replies, err = c.postOrder(ctx, base, "/iserver/reply/"+url.PathEscape(r.ID), map[string]bool{"confirmed": true})
			if err != nil {
				return nil, err
			}
		default:
			return nil, errors.New("ibkr: unrecognised order response")
		}
	}
	return nil, fmt.Errorf("ibkr: order still awaiting confirmation after %d replies", maxReplies)
}

// postOrder accepts either an array of replies or a single reply object.
func (c *Client) postOrder(ctx context.Context, base, path string, body any) ([]orderReply, error) {
	var raw json.RawMessage
	if err := c.do(ctx, base, http.MethodPost, path, body, &raw); err != nil {
		return nil, err
	}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var one orderReply
		if err := json.Unmarshal(trimmed, &one); err != nil {
			return nil, fmt.Errorf("ibkr %s: decode: %w", path, err)
		}
		return []orderReply{one}, nil
	}
	var many []orderReply
	if err := json.Unmarshal(trimmed, &many); err != nil {
		return nil, fmt.Errorf("ibkr %s: decode: %w", path, err)
	}
	return many, nil
}

type statusResponse struct {
	OrderID      flexID    `json:"order_id"`
	OrderStatus  string    `json:"order_status"`
	CumFill      flexFloat `json:"cum_fill"`
	AveragePrice flexFloat `json:"average_price"`
}

// OrderStatus polls a single order.
func (c *Client) OrderStatus(ctx context.Context, orderID string) (gateway.OrderState, error) {
	base, _, err := c.session()
	if err != nil {
		return gateway.OrderState{}, err
	}
	var s statusResponse
	if err := c.do(ctx, base, http.MethodGet, "/iserver/account/order/status/"+url.PathEscape(orderID), nil, &s); err != nil {
		return gateway.OrderState{}, err
	}
	return gateway.OrderState{
		Status:    status(s.OrderStatus),
		FilledQty: float64(s.CumFill),
		AvgPrice:  float64(s.AveragePrice),
	}, nil
}

func status(raw string) gateway.Status {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "pendingsubmit":
		return gateway.StatusPendingSubmit
	case "presubmitted":
		return gateway.StatusPreSubmitted
	case "submitted":
		return gateway.StatusSubmitted
	case "filled":
		return gateway.StatusFilled
	case "cancelled":
		return gateway.StatusCancelled
	case "inactive":
		return gateway.StatusInactive
	default:
		return gateway.StatusUnknown
	}
}
