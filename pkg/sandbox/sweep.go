package sandbox

import (
	"context"
	"log/slog"
	"time"
)

// RunIdleSweep periodically destroys environments that have been idle
// past IdleTTL (spec §4.4 "An idle sandbox past its configured idle TTL
// is cleaned up on the next sweep"). Blocks until ctx is cancelled;
// intended to run in its own goroutine.
func (m *Manager) RunIdleSweep(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.SweepInterval.Dur())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sweepIdle(ctx)
		}
	}
}

func (m *Manager) sweepIdle(ctx context.Context) {
	cutoff := time.Now().Add(-m.cfg.IdleTTL.Dur())

	m.mu.Lock()
	var idle []string
	for runID, h := range m.handles {
		if h.idleSince().Before(cutoff) {
			idle = append(idle, runID)
		}
	}
	m.mu.Unlock()

	for _, runID := range idle {
		if err := m.Cleanup(ctx, runID); err != nil {
			slog.Error("idle sandbox cleanup failed", "run_id", runID, "error", err)
			continue
		}
		slog.Info("idle sandbox swept", "run_id", runID)
	}
}
