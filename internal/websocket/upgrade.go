package websocket

import (
	"encoding/json"
	"net"
	"net/http"
	"net/url"
	"strings"
)

// UpgradeError is a JSON error response body for failed upgrade attempts.
type UpgradeError struct {
	Error string `json:"error"`
}

// WriteError writes a JSON error body with the given status.
func WriteError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(UpgradeError{Error: msg})
}

// forwardedHeaders are copied from the client handshake to the upstream one.
// The handshake headers themselves are generated by the dialer.
var forwardedHeaders = []string{
	"Accept-Language",
	"Authorization",
	"Cookie",
	"User-Agent",
}

// dialHeader builds the headers for the upstream handshake.
func dialHeader(r *http.Request, target *url.URL, rewriteOrigin bool) http.Header {
	h := make(http.Header)
	for _, k := range forwardedHeaders {
		for _, v := range r.Header.Values(k) {
			h.Add(k, v)
		}
	}

	if rewriteOrigin {
		h.Set("Origin", originOf(target))
	} else if origin := r.Header.Get("Origin"); origin != "" {
		h.Set("Origin", origin)
	}

	if ip, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		if prior := r.Header.Get("X-Forwarded-For"); prior != "" {
			ip = prior + ", " + ip
		}
		h.Set("X-Forwarded-For", ip)
	}
	h.Set("X-Forwarded-Host", r.Host)
	if r.TLS != nil {
		h.Set("X-Forwarded-Proto", "https")
	} else {
		h.Set("X-Forwarded-Proto", "http")
	}
	return h
}

// originOf returns the HTTP origin of target, mapping ws schemes to their
// HTTP equivalents.
func originOf(target *url.URL) string {
	scheme := target.Scheme
	switch scheme {
	case "ws":
		scheme = "http"
	case "wss":
		scheme = "https"
	}
	return scheme + "://" + target.Host
}

// subprotocols lists the protocols the client offered, in order.
func subprotocols(r *http.Request) []string {
	var out []string
	for _, v := range r.Header.Values("Sec-WebSocket-Protocol") {
		for p := range strings.SplitSeq(v, ",") {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

// hostTransport sends the upstream handshake with a fixed Host header.
type hostTransport struct {
	host string
	base http.RoundTripper
}

func (t hostTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Host = t.host
	return t.base.RoundTrip(req)
}

// handshakeClient returns the client used to dial the upstream. Unless the
// origin is rewritten, the upstream sees the Host the browser used.
func handshakeClient(base *http.Client, r *http.Request, rewriteOrigin bool) *http.Client {
	if rewriteOrigin {
		return base
	}
	rt := base.Transport
	if rt == nil {
		rt = http.DefaultTransport
	}
	c := *base
	c.Transport = hostTransport{host: r.Host, base: rt}
	return &c
}
