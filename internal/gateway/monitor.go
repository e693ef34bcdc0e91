package gateway

import (
	"context"
	"time"
)

const defaultMonitorInterval = 10 * time.Second

// Monitor polls liveness every interval and reconnects on loss until ctx is cancelled.
// On cancellation it disconnects and returns nil; a fatal reconnect error is returned as-is.
func (s *Session) Monitor(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = defaultMonitorInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.shutdown()
			return nil
		case <-ticker.C:
			if s.IsAlive(ctx) {
				continue
			}
			s.log.Warn().Msg("gateway liveness check failed")
			if err := s.EnsureConnected(ctx); err != nil {
				if ctx.Err() != nil {
					s.shutdown()
					return nil
				}
				s.shutdown()
				return err
			}
		}
	}
}

func (s *Session) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Disconnect(ctx); err != nil {
		s.log.Warn().Err(err).Msg("disconnect on shutdown failed")
	}
}
