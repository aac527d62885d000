package server

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"

	"github.com/kongwutw/devfront/internal/router"
	"github.com/kongwutw/devfront/internal/websocket"
)

type decisionKey struct{}

func withDecision(ctx context.Context, d router.Decision) context.Context {
	return context.WithValue(ctx, decisionKey{}, d)
}

func decisionFrom(ctx context.Context) (router.Decision, bool) {
	d, ok := ctx.Value(decisionKey{}).(router.Decision)
	return d, ok
}

// newReverseProxy builds the proxy shared by every forwarding rule. The
// upstream for each request is taken from the routing decision stored in the
// request context.
func newReverseProxy(transport http.RoundTripper, logger *slog.Logger) *httputil.ReverseProxy {
	return &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			d, ok := decisionFrom(pr.In.Context())
			if !ok {
				return
			}
			target := httpURL(d.Target)
			pr.Out.URL = target
			pr.SetXForwarded()
			if d.Rule.RewriteOrigin {
				pr.Out.Host = target.Host
				if pr.In.Header.Get("Origin") != "" {
					pr.Out.Header.Set("Origin", target.Scheme+"://"+target.Host)
				}
			} else {
				pr.Out.Host = pr.In.Host
			}
		},
		Transport: transport,
		ErrorLog:  slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			target := ""
			if d, ok := decisionFrom(r.Context()); ok {
				target = d.Target.String()
			}
			logger.Warn("upstream request failed",
				slog.String("path", r.URL.Path),
				slog.String("target", target),
				slog.String("error", err.Error()))
			websocket.WriteError(w, http.StatusBadGateway, "upstream unavailable: "+err.Error())
		},
	}
}

// httpURL maps ws and wss targets onto the HTTP schemes the transport speaks.
func httpURL(u *url.URL) *url.URL {
	out := *u
	switch out.Scheme {
	case "ws":
		out.Scheme = "http"
	case "wss":
		out.Scheme = "https"
	}
	return &out
}
