package server

import (
	"context"
	"time"
)

// Shutdown stops accepting new WebSocket upgrades, signals every active
// connection to drain, waits up to drain for them to close on their own,
// then force-closes whatever is left and releases storage. Safe to call
// once; a second call is a harmless no-op since the listener is already
// closed.
func (s *Server) Shutdown(ctx context.Context, drain time.Duration) error {
	if s.shuttingDown.Swap(true) {
		return nil
	}
	s.log.Infow("shutdown initiated, draining connections", "drain_budget", drain)

	// Signal every active connection to stop before (not after) waiting on
	// httpSrv.Shutdown, which itself blocks until every in-flight /ws
	// handler returns — otherwise the two waits stack instead of overlapping.
	s.activeConns.Range(func(_, v interface{}) bool {
		close(v.(chan struct{}))
		return true
	})

	shutdownCtx, cancel := context.WithTimeout(ctx, drain)
	defer cancel()
	if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
		s.log.Warnw("http server did not shut down cleanly", "error", err)
	}

	deadline := time.Now().Add(drain)
	for time.Now().Before(deadline) {
		if s.registry.GlobalCount() == 0 {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}

	if remaining := s.registry.GlobalCount(); remaining > 0 {
		s.log.Warnw("forcing shutdown with connections still open", "remaining", remaining)
	}

	s.storage.CloseAll()
	s.log.Infow("shutdown complete")
	return nil
}
