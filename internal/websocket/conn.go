package websocket

import (
	"context"
	"log/slog"
	"sync"
	"time"

	ws "nhooyr.io/websocket"
)

// Conn wraps one side of a forwarded connection with ping/pong keepalive.
// A peer that stops answering pings is closed, which ends the forwarding
// session it belongs to.
type Conn struct {
	inner  *ws.Conn
	side   string
	opts   Options
	cancel context.CancelFunc
	done   chan struct{}
	mu     sync.Mutex
	closed bool
}

// WrapConn wraps c and starts its keepalive loop. side labels the
// connection in logs ("client" or "upstream").
//
// The caller must keep a Read loop running on c so pong replies are
// processed (nhooyr.io/websocket v1.x requirement).
func WrapConn(ctx context.Context, c *ws.Conn, side string, options ...Option) *Conn {
	return wrapConn(ctx, c, side, applyOptions(options))
}

func wrapConn(ctx context.Context, c *ws.Conn, side string, opts Options) *Conn {
	ctx, cancel := context.WithCancel(ctx)
	conn := &Conn{
		inner:  c,
		side:   side,
		opts:   opts,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go conn.pingLoop(ctx)
	return conn
}

// Inner returns the underlying connection for direct read/write.
func (c *Conn) Inner() *ws.Conn {
	return c.inner
}

// CloseWithContext sends a close frame, waiting for the keepalive loop to
// stop for at most ctx's deadline. Closing twice is a no-op.
func (c *Conn) CloseWithContext(ctx context.Context, code ws.StatusCode, reason string) error {
	if !c.markClosed() {
		return nil
	}
	c.cancel()
	select {
	case <-c.done:
	case <-ctx.Done():
	}
	return c.inner.Close(code, reason)
}

// ForceClose stops the keepalive loop and drops the connection without a
// close handshake.
func (c *Conn) ForceClose() {
	if !c.markClosed() {
		return
	}
	c.cancel()
	<-c.done
	c.inner.CloseNow()
}

func (c *Conn) markClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.closed = true
	return true
}

func (c *Conn) pingLoop(ctx context.Context) {
	defer close(c.done)

	ticker := time.NewTicker(c.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pingCtx, pingCancel := context.WithTimeout(ctx, c.opts.PongTimeout)
			err := c.inner.Ping(pingCtx)
			pingCancel()
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				c.opts.Logger.Warn("pong timeout, closing connection",
					slog.String("side", c.side),
					slog.String("error", err.Error()))
				c.inner.CloseNow()
				return
			}
		}
	}
}
