package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"leprechaun-go/internal/metrics"
	"leprechaun-go/internal/options"
	"leprechaun-go/internal/retry"
)

// Session manages at most one live connection to a gateway and heals it on demand.
// The mutex is held across reconnects, so liveness is never observed mid-reconnect.
type Session struct {
	mu       sync.Mutex
	client   Client
	endpoint Endpoint
	policy   retry.Policy
	log      zerolog.Logger
	conn     *Connection
}

// NewSession wires a client to an endpoint with the given connect retry policy.
func NewSession(client Client, ep Endpoint, policy retry.Policy, log zerolog.Logger) *Session {
	return &Session{
		client:   client,
		endpoint: ep,
		policy:   policy,
		log:      log.With().Str("component", "gateway").Str("endpoint", ep.String()).Logger(),
	}
}

// Connect (re)establishes the connection, retrying per policy.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connectLocked(ctx)
}

func (s *Session) connectLocked(ctx context.Context) error {
	if s.conn != nil {
		_ = s.client.Disconnect(ctx)
		s.conn = nil
	}
	max := s.policy.Attempts()
	err := retry.Do(ctx, s.policy, func(attempt int) error {
		s.log.Info().Str("client_id", s.endpoint.ClientID).Int("attempt", attempt).Int("max", max).Msg("connecting to gateway")
		if err := s.client.Connect(ctx, s.endpoint); err != nil {
			metrics.GatewayConnectAttempts.WithLabelValues("failure").Inc()
			if errors.Is(err, ErrAuthentication) {
				s.log.Error().Err(err).Msg("gateway rejected credentials")
				return retry.Permanent(err)
			}
			s.log.Error().Err(err).Int("attempt", attempt).Int("max", max).Msg("gateway connect failed")
			return err
		}
		metrics.GatewayConnectAttempts.WithLabelValues("success").Inc()
		return nil
	})
	if err != nil {
		metrics.GatewayUp.Set(0)
		if errors.Is(err, retry.ErrExhausted) {
			s.log.Error().Err(err).Msg("max retries reached, could not connect to gateway")
			return fmt.Errorf("%w: %s: %w", ErrConnectionExhausted, s.endpoint, err)
		}
		if errors.Is(err, ErrAuthentication) {
			return fmt.Errorf("connect %s: %w", s.endpoint, err)
		}
		return err
	}
	s.conn = &Connection{
		Host:        s.endpoint.Host,
		Port:        s.endpoint.Port,
		ClientID:    s.endpoint.ClientID,
		Alive:       true,
		ConnectedAt: time.Now().UTC(),
	}
	metrics.GatewayUp.Set(1)
	s.log.Info().Msg("connected to gateway")
	return nil
}

// IsAlive reports liveness without changing session state.
func (s *Session) IsAlive(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.aliveLocked(ctx)
}

func (s *Session) aliveLocked(ctx context.Context) bool {
	return s.conn != nil && s.client.IsConnected(ctx)
}

// EnsureConnected connects only when the session is not alive.
func (s *Session) EnsureConnected(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ensureLocked(ctx)
}

func (s *Session) ensureLocked(ctx context.Context) error {
	if s.aliveLocked(ctx) {
		return nil
	}
	if s.conn != nil {
		s.log.Warn().Msg("lost connection to gateway, reconnecting")
	}
	return s.connectLocked(ctx)
}

// Disconnect closes the connection. Calling it while disconnected is a no-op.
func (s *Session) Disconnect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	err := s.client.Disconnect(ctx)
	s.conn = nil
	metrics.GatewayUp.Set(0)
	if err != nil {
		return fmt.Errorf("disconnect %s: %w", s.endpoint, err)
	}
	s.log.Info().Msg("disconnected from gateway")
	return nil
}

// Connection returns a snapshot of the current connection.
func (s *Session) Connection() Connection {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return Connection{Host: s.endpoint.Host, Port: s.endpoint.Port, ClientID: s.endpoint.ClientID}
	}
	return *s.conn
}

// PlaceOrder heals the connection if needed, then submits the order once.
func (s *Session) PlaceOrder(ctx context.Context, contract options.Contract, order Order) (*Trade, error) {
	var trade *Trade
	err := s.with(ctx, func(c Client) error {
		var err error
		trade, err = c.PlaceOrder(ctx, contract, order)
		return err
	})
	return trade, err
}

// OrderStatus heals the connection if needed, then polls the order.
func (s *Session) OrderStatus(ctx context.Context, orderID string) (OrderState, error) {
	var state OrderState
	err := s.with(ctx, func(c Client) error {
		var err error
		state, err = c.OrderStatus(ctx, orderID)
		return err
	})
	return state, err
}

// AccountSummary heals the connection if needed, then fetches account values.
func (s *Session) AccountSummary(ctx context.Context) (AccountSummary, error) {
	var summary AccountSummary
	err := s.with(ctx, func(c Client) error {
		var err error
		summary, err = c.AccountSummary(ctx)
		return err
	})
	return summary, err
}

func (s *Session) with(ctx context.Context, fn func(Client) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLocked(ctx); err != nil {
		return err
	}
	return fn(s.client)
}
