package router

import (
	"net/http"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/kongwutw/devfront/internal/config"
)

// Kind is the outcome of routing a request.
type Kind int

const (
	ServeLocal Kind = iota + 1
	ForwardProxy
	PassThroughUpgrade
)

func (k Kind) String() string {
	switch k {
	case ServeLocal:
		return "serve_local"
	case ForwardProxy:
		return "forward_proxy"
	case PassThroughUpgrade:
		return "pass_through_upgrade"
	default:
		return "unknown"
	}
}

// Request is the part of an inbound request the router looks at.
type Request struct {
	Path     string
	RawQuery string
	Upgrade  bool
}

// RequestFromHTTP extracts a routing Request from r.
func RequestFromHTTP(r *http.Request) Request {
	return Request{
		Path:     r.URL.Path,
		RawQuery: r.URL.RawQuery,
		Upgrade:  IsUpgrade(r),
	}
}

// IsUpgrade reports whether r asks for a protocol upgrade.
func IsUpgrade(r *http.Request) bool {
	return headerHasToken(r.Header, "Connection", "upgrade") && r.Header.Get("Upgrade") != ""
}

// IsWebSocket reports whether r is a WebSocket upgrade.
func IsWebSocket(r *http.Request) bool {
	return IsUpgrade(r) && strings.EqualFold(r.Header.Get("Upgrade"), "websocket")
}

func headerHasToken(h http.Header, name, token string) bool {
	for _, v := range h.Values(name) {
		for _, t := range strings.Split(v, ",") {
			if strings.EqualFold(strings.TrimSpace(t), token) {
				return true
			}
		}
	}
	return false
}

// Decision tells the server how to handle a request.
//
// For ServeLocal, Path is the request path, or the aliased filesystem path
// (slash separated) when AliasApplied is set. For ForwardProxy and
// PassThroughUpgrade, Rule is the matched rule and Target the upstream URL.
type Decision struct {
	Kind         Kind
	Path         string
	AliasApplied bool
	Rule         *config.ProxyRule
	Target       *url.URL
}

// Router maps request paths to decisions. It holds only the resolved
// configuration and is safe for concurrent use.
type Router struct {
	rules   []config.ProxyRule
	aliases []config.PathAlias
}

// New creates a Router over cfg's proxy rules and aliases.
func New(cfg *config.Resolved) *Router {
	return &Router{
		rules:   cfg.Proxy,
		aliases: cfg.Aliases,
	}
}

// Route decides how req is handled. Proxy rules are tried in declaration
// order and the first whose prefix matches wins. Unmatched paths go to local
// serving, after at most one alias substitution.
func (rt *Router) Route(req Request) (Decision, error) {
	for i := range rt.rules {
		rule := &rt.rules[i]
		if !strings.HasPrefix(req.Path, rule.MatchPrefix) {
			continue
		}
		if req.Upgrade {
			if !rule.AllowWebSocketUpgrade {
				return Decision{}, &RouteError{Kind: UpgradeNotAllowed, Path: req.Path, Prefix: rule.MatchPrefix}
			}
			return Decision{Kind: PassThroughUpgrade, Path: req.Path, Rule: rule, Target: upstreamURL(rule, req)}, nil
		}
		return Decision{Kind: ForwardProxy, Path: req.Path, Rule: rule, Target: upstreamURL(rule, req)}, nil
	}

	if p, ok := rt.applyAlias(req.Path); ok {
		return Decision{Kind: ServeLocal, Path: p, AliasApplied: true}, nil
	}
	return Decision{Kind: ServeLocal, Path: req.Path}, nil
}

// applyAlias substitutes the leading path segment once. The result is never
// routed again, so an alias that maps onto itself cannot loop.
func (rt *Router) applyAlias(p string) (string, bool) {
	trimmed := strings.TrimPrefix(p, "/")
	segment, rest, nested := strings.Cut(trimmed, "/")
	for _, a := range rt.aliases {
		if segment != a.Token {
			continue
		}
		resolved := filepath.ToSlash(a.Path)
		if !nested {
			return resolved, true
		}
		return strings.TrimSuffix(resolved, "/") + "/" + rest, true
	}
	return "", false
}

func upstreamURL(rule *config.ProxyRule, req Request) *url.URL {
	p := req.Path
	if rule.StripPrefix {
		p = strings.TrimPrefix(p, rule.MatchPrefix)
		if !strings.HasPrefix(p, "/") {
			p = "/" + p
		}
	}

	u := *rule.Upstream
	u.Path = joinPath(rule.Upstream.Path, p)
	u.RawPath = ""
	switch {
	case rule.Upstream.RawQuery == "":
		u.RawQuery = req.RawQuery
	case req.RawQuery != "":
		u.RawQuery = rule.Upstream.RawQuery + "&" + req.RawQuery
	}
	return &u
}

func joinPath(a, b string) string {
	aslash := strings.HasSuffix(a, "/")
	bslash := strings.HasPrefix(b, "/")
	switch {
	case aslash && bslash:
		return a + b[1:]
	case !aslash && !bslash:
		return a + "/" + b
	}
	return a + b
}
