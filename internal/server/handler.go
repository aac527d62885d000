package server

import (
	"bufio"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/http/httputil"

	"github.com/kongwutw/devfront/internal/config"
	"github.com/kongwutw/devfront/internal/router"
	"github.com/kongwutw/devfront/internal/websocket"
)

// Handler is the dev front end: every request is routed and then proxied,
// bridged as a WebSocket, or served from the asset pipeline.
type Handler struct {
	router *router.Router
	assets Assets
	proxy  *httputil.ReverseProxy
	bridge *websocket.Bridge
	logger *slog.Logger
	root   http.Handler

	transport http.RoundTripper
}

// Option configures a Handler.
type Option func(*Handler)

// WithLogger sets the logger for routing decisions and failures.
func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) { h.logger = l }
}

// WithBridge sets the WebSocket bridge used for upgrades.
func WithBridge(b *websocket.Bridge) Option {
	return func(h *Handler) { h.bridge = b }
}

// WithTransport sets the transport for proxied HTTP requests.
func WithTransport(rt http.RoundTripper) Option {
	return func(h *Handler) { h.transport = rt }
}

// New creates the front-end handler for cfg. Paths are evaluated relative
// to the configured base path.
func New(cfg *config.Resolved, assets Assets, opts ...Option) *Handler {
	h := &Handler{
		router: router.New(cfg),
		assets: assets,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.bridge == nil {
		h.bridge = websocket.NewBridge(nil, websocket.WithLogger(h.logger))
	}
	h.proxy = newReverseProxy(h.transport, h.logger)
	h.root = NewBasePathHandler(cfg.Server.BasePath, http.HandlerFunc(h.dispatch))
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.root.ServeHTTP(w, r)
}

func (h *Handler) dispatch(w http.ResponseWriter, r *http.Request) {
	sw := &statusWriter{ResponseWriter: w}
	d, err := h.router.Route(router.RequestFromHTTP(r))
	if err != nil {
		var rerr *router.RouteError
		if errors.As(err, &rerr) {
			websocket.WriteError(sw, http.StatusBadRequest, rerr.Error())
		} else {
			websocket.WriteError(sw, http.StatusInternalServerError, err.Error())
		}
		h.logger.Debug("request rejected",
			slog.String("path", r.URL.Path),
			slog.Int("status", sw.status),
			slog.String("error", err.Error()))
		return
	}

	switch d.Kind {
	case router.ForwardProxy:
		h.proxy.ServeHTTP(sw, r.WithContext(withDecision(r.Context(), d)))
	case router.PassThroughUpgrade:
		if router.IsWebSocket(r) {
			sess, err := h.bridge.Forward(sw, r, d.Target, d.Rule.RewriteOrigin)
			if err == nil {
				h.logger.Debug("websocket session ended",
					slog.Uint64("session", sess.ID),
					slog.String("state", sess.State().String()))
			}
		} else {
			h.proxy.ServeHTTP(sw, r.WithContext(withDecision(r.Context(), d)))
		}
	default:
		h.serveLocal(sw, r, d)
	}

	attrs := []any{
		slog.String("decision", d.Kind.String()),
		slog.String("path", r.URL.Path),
		slog.Int("status", sw.status),
	}
	if d.Target != nil {
		attrs = append(attrs, slog.String("target", d.Target.String()))
	}
	if d.AliasApplied {
		attrs = append(attrs, slog.String("resolved", d.Path))
	}
	h.logger.Debug("request", attrs...)
}

// statusWriter records the response status for logging. It passes hijacking
// and flushing through so upgrades and streamed responses keep working.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.ResponseWriter.Write(b)
}

func (w *statusWriter) Flush() {
	_ = http.NewResponseController(w.ResponseWriter).Flush()
}

func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if w.status == 0 {
		w.status = http.StatusSwitchingProtocols
	}
	return http.NewResponseController(w.ResponseWriter).Hijack()
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
