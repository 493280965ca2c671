package pipeline

import (
	"context"
	"log/slog"
	"time"
)

// DefaultSweepInterval is how often StartSweeper checks for idle sessions.
const DefaultSweepInterval = time.Minute

// StartSweeper runs a background goroutine that periodically closes
// sessions idle for longer than ttl.
func StartSweeper(ctx context.Context, reg *Registry, ttl, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		slog.Info("Session sweeper started", "interval", interval, "ttl", ttl)

		for {
			select {
			case now := <-ticker.C:
				sweep(reg, ttl, now)
			case <-ctx.Done():
				slog.Info("Session sweeper shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

func sweep(reg *Registry, ttl time.Duration, now time.Time) int {
	idle := reg.Idle(ttl, now)
	if len(idle) == 0 {
		return 0
	}

	slog.Info("Sweeper found idle sessions", "count", len(idle))
	for _, s := range idle {
		slog.Info("Closing idle session", "client_id", s.ClientID, "last_seen", s.LastSeen())
		reg.Unregister(s)
		s.Close("idle timeout")
	}
	return len(idle)
}
