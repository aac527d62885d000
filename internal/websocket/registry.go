package websocket

import (
	"context"
	"log/slog"
	"sync"

	ws "nhooyr.io/websocket"
)

// Registry tracks active forwarding sessions for graceful shutdown.
// Hijacked connections are invisible to http.Server.Shutdown, so the
// server closes them through here.
type Registry struct {
	mu       sync.Mutex
	sessions map[*Session]struct{}
	log      *slog.Logger
}

// NewRegistry creates a new Registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		sessions: make(map[*Session]struct{}),
		log:      logger,
	}
}

// Register adds a session to the registry.
func (r *Registry) Register(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s] = struct{}{}
}

// Unregister removes a session from the registry.
func (r *Registry) Unregister(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, s)
}

// Count returns the number of active sessions.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// CloseAll sends a going-away close frame to both sides of every session.
// It waits for each close to complete or for the context to expire.
func (r *Registry) CloseAll(ctx context.Context) {
	r.mu.Lock()
	snapshot := make([]*Session, 0, len(r.sessions))
	for s := range r.sessions {
		snapshot = append(snapshot, s)
	}
	r.mu.Unlock()

	if len(snapshot) == 0 {
		return
	}

	r.log.Info("closing all WebSocket sessions", slog.Int("count", len(snapshot)))

	var wg sync.WaitGroup
	for _, s := range snapshot {
		wg.Go(func() {
			s.shutdown(ctx, ws.StatusGoingAway, "server shutting down")
		})
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.log.Info("all WebSocket sessions closed")
	case <-ctx.Done():
		r.log.Warn("shutdown timeout reached, some WebSocket sessions may not have closed cleanly")
	}
}
