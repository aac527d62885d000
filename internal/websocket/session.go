package websocket

import (
	"context"
	"log/slog"
	"net/url"
	"sync/atomic"

	ws "nhooyr.io/websocket"
)

// State is the lifecycle state of a forwarding session.
type State int32

const (
	Connecting State = iota
	Forwarding
	Closing
	Closed
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Forwarding:
		return "forwarding"
	case Closing:
		return "closing"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

var sessionIDs atomic.Uint64

// Session is one client connection paired with its upstream connection.
type Session struct {
	ID     uint64
	Target *url.URL
	state  atomic.Int32
	log    *slog.Logger

	client   *Conn
	upstream *Conn
}

func newSession(target *url.URL, logger *slog.Logger) *Session {
	id := sessionIDs.Add(1)
	return &Session{
		ID:     id,
		Target: target,
		log:    logger.With(slog.Uint64("session", id), slog.String("target", target.String())),
	}
}

// State returns the current state.
func (s *Session) State() State {
	return State(s.state.Load())
}

// transition moves from one state to another and reports whether this call
// made the change.
func (s *Session) transition(from, to State) bool {
	if !s.state.CompareAndSwap(int32(from), int32(to)) {
		return false
	}
	s.log.Debug("websocket session state", slog.String("from", from.String()), slog.String("to", to.String()))
	return true
}

func (s *Session) close() {
	from := State(s.state.Swap(int32(Closed)))
	if from != Closed {
		s.log.Debug("websocket session state", slog.String("from", from.String()), slog.String("to", Closed.String()))
	}
}

// shutdown closes both sides with the same status. It does nothing unless
// the session is still forwarding.
func (s *Session) shutdown(ctx context.Context, code ws.StatusCode, reason string) {
	if !s.transition(Forwarding, Closing) {
		return
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.upstream.CloseWithContext(ctx, code, reason)
	}()
	_ = s.client.CloseWithContext(ctx, code, reason)
	<-done
}
