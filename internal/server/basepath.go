package server

import (
	"net/http"
	"strings"

	"github.com/kongwutw/devfront/internal/config"
	"github.com/kongwutw/devfront/internal/router"
)

// BasePathHandler wraps an http.Handler and strips the base path prefix
// from incoming requests. A request for "/" is redirected to the base path.
// Other requests outside the base are forwarded unchanged so proxy rules
// declared at the site root keep matching.
type BasePathHandler struct {
	basePath string
	inner    http.Handler
}

// NewBasePathHandler creates a handler that strips basePath from request URLs
// before forwarding to the inner handler. If basePath is "/", it returns
// the inner handler directly (no-op wrapper).
func NewBasePathHandler(basePath string, inner http.Handler) http.Handler {
	bp := config.NormalizeBasePath(basePath)
	if bp == "/" {
		return inner
	}
	return &BasePathHandler{
		basePath: bp,
		inner:    inner,
	}
}

func (h *BasePathHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case strings.HasPrefix(r.URL.Path, h.basePath):
		h.inner.ServeHTTP(w, h.strip(r, "/"+strings.TrimPrefix(r.URL.Path, h.basePath)))
	case r.URL.Path+"/" == h.basePath:
		h.inner.ServeHTTP(w, h.strip(r, "/"))
	case r.URL.Path == "/" && !router.IsUpgrade(r):
		target := h.basePath
		if r.URL.RawQuery != "" {
			target += "?" + r.URL.RawQuery
		}
		http.Redirect(w, r, target, http.StatusFound)
	default:
		h.inner.ServeHTTP(w, r)
	}
}

func (h *BasePathHandler) strip(r *http.Request, p string) *http.Request {
	r2 := r.Clone(r.Context())
	r2.URL.Path = p
	r2.URL.RawPath = ""
	return r2
}
