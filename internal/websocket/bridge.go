package websocket

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/sync/errgroup"
	ws "nhooyr.io/websocket"
)

const closeTimeout = 5 * time.Second

// Bridge forwards upgraded client connections to upstream WebSocket servers.
type Bridge struct {
	registry *Registry
	opts     Options
}

// NewBridge creates a Bridge. Sessions are tracked in registry when it is
// non-nil.
func NewBridge(registry *Registry, opts ...Option) *Bridge {
	return &Bridge{registry: registry, opts: applyOptions(opts)}
}

// Forward dials target, upgrades the client and relays frames both ways
// until either side closes. It blocks for the lifetime of the session.
//
// The upstream is dialed before the client is upgraded, so a failed dial
// still gets an HTTP answer: 502 with an *UpstreamConnectError returned.
// Close codes are propagated from the side that closed first.
func (b *Bridge) Forward(w http.ResponseWriter, r *http.Request, target *url.URL, rewriteOrigin bool) (*Session, error) {
	sess := newSession(target, b.opts.Logger)

	dialCtx, cancel := context.WithTimeout(r.Context(), b.opts.DialTimeout)
	upstream, resp, err := ws.Dial(dialCtx, target.String(), &ws.DialOptions{
		HTTPClient:   handshakeClient(b.opts.HTTPClient, r, rewriteOrigin),
		HTTPHeader:   dialHeader(r, target, rewriteOrigin),
		Subprotocols: subprotocols(r),
	})
	cancel()
	if err != nil {
		cerr := &UpstreamConnectError{Target: target.String(), Err: err}
		if resp != nil {
			cerr.Status = resp.StatusCode
		}
		sess.close()
		sess.log.Warn("websocket upstream unavailable", slog.String("error", cerr.Error()))
		WriteError(w, http.StatusBadGateway, cerr.Error())
		return sess, cerr
	}

	acceptOpts := &ws.AcceptOptions{
		// Dev servers are reached from arbitrary origins.
		InsecureSkipVerify: true,
	}
	if p := upstream.Subprotocol(); p != "" {
		acceptOpts.Subprotocols = []string{p}
	}
	client, err := ws.Accept(w, r, acceptOpts)
	if err != nil {
		upstream.Close(ws.StatusGoingAway, "client upgrade failed")
		sess.close()
		return sess, err
	}
	client.SetReadLimit(b.opts.ReadLimit)
	upstream.SetReadLimit(b.opts.ReadLimit)

	ctx, stop := context.WithCancel(r.Context())
	defer stop()

	sess.client = wrapConn(ctx, client, "client", b.opts)
	sess.upstream = wrapConn(ctx, upstream, "upstream", b.opts)
	sess.transition(Connecting, Forwarding)

	if b.registry != nil {
		b.registry.Register(sess)
		defer b.registry.Unregister(sess)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return relay(gctx, sess, sess.client, sess.upstream) })
	g.Go(func() error { return relay(gctx, sess, sess.upstream, sess.client) })
	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		sess.log.Debug("websocket relay stopped", slog.String("error", err.Error()))
	}

	sess.transition(Forwarding, Closing)
	sess.client.ForceClose()
	sess.upstream.ForceClose()
	sess.close()
	return sess, nil
}

// relay copies messages from src to dst. When src stops, the first side to
// stop wins the move to Closing and closes dst with the same status.
func relay(ctx context.Context, sess *Session, src, dst *Conn) error {
	for {
		typ, data, err := src.Inner().Read(ctx)
		if err != nil {
			if sess.transition(Forwarding, Closing) {
				code, reason := closeStatus(err)
				sess.log.Debug("websocket peer closed",
					slog.String("side", src.side),
					slog.Int("code", int(code)))
				closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), closeTimeout)
				_ = dst.CloseWithContext(closeCtx, code, reason)
				cancel()
			}
			return nil
		}
		if err := dst.Inner().Write(ctx, typ, data); err != nil {
			return err
		}
	}
}

// closeStatus maps a read error to the close frame sent to the other side.
// Codes that must not appear on the wire become going-away.
func closeStatus(err error) (ws.StatusCode, string) {
	var ce ws.CloseError
	if !errors.As(err, &ce) {
		return ws.StatusGoingAway, "peer went away"
	}
	switch ce.Code {
	case ws.StatusNoStatusRcvd:
		return ws.StatusNormalClosure, ""
	case ws.StatusAbnormalClosure, ws.StatusTLSHandshake:
		return ws.StatusGoingAway, "peer went away"
	}
	return ce.Code, ce.Reason
}
