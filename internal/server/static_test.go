package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kongwutw/devfront/internal/config"
	"github.com/kongwutw/devfront/internal/pipeline"
)

// mapAssets serves fixed content by name.
type mapAssets map[string]string

func (m mapAssets) Serve(_ context.Context, name string) (*pipeline.Asset, error) {
	content, ok := m[name]
	if !ok {
		return nil, pipeline.ErrNotFound
	}
	if content == "!transform" {
		return nil, &pipeline.TransformError{Plugin: "vue", Path: name, Err: errors.New("unexpected token")}
	}
	return &pipeline.Asset{Path: name, File: "/p" + name, Content: []byte(content)}, nil
}

func newLocalHandler(assets Assets) *Handler {
	return New(&config.Resolved{Server: config.ServerConfig{BasePath: "/"}}, assets)
}

func TestRootServesIndexHTML(t *testing.T) {
	handler := newLocalHandler(mapAssets{"/index.html": "<html><body>SPA</body></html>"})
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "SPA") {
		t.Errorf("expected body to contain 'SPA', got %q", rec.Body.String())
	}
	if cc := rec.Header().Get("Cache-Control"); cc != "no-cache" {
		t.Errorf("Cache-Control = %q", cc)
	}
}

func TestStaticFileServedDirectly(t *testing.T) {
	handler := newLocalHandler(mapAssets{"/favicon.ico": "icon", "/index.html": "SPA"})
	req := httptest.NewRequest(http.MethodGet, "/favicon.ico", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK || rec.Body.String() != "icon" {
		t.Errorf("got %d %q, want 200 icon", rec.Code, rec.Body.String())
	}
}

func TestContentTypeFromAsset(t *testing.T) {
	assets := assetsFunc(func(name string) (*pipeline.Asset, error) {
		return &pipeline.Asset{Path: name, File: "/p/main.ts", ContentType: "text/javascript; charset=utf-8", Content: []byte("x")}, nil
	})
	rec := httptest.NewRecorder()
	newLocalHandler(assets).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/src/main.ts", nil))

	if ct := rec.Header().Get("Content-Type"); ct != "text/javascript; charset=utf-8" {
		t.Errorf("Content-Type = %q", ct)
	}
}

func TestSPAFallbackForExtensionlessPaths(t *testing.T) {
	handler := newLocalHandler(mapAssets{"/index.html": "SPA"})

	for _, p := range []string{"/dashboard", "/settings/profile", "/docs/"} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, p, nil))
		if rec.Code != http.StatusOK || rec.Body.String() != "SPA" {
			t.Errorf("%s: got %d %q, want index.html", p, rec.Code, rec.Body.String())
		}
	}
}

func TestMissingFileWithExtensionIs404(t *testing.T) {
	handler := newLocalHandler(mapAssets{"/index.html": "SPA"})
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/missing.css", nil))

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestTransformErrorIs500(t *testing.T) {
	handler := newLocalHandler(mapAssets{"/src/App.vue": "!transform"})
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/src/App.vue", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `vue`) {
		t.Errorf("body should name the plugin: %s", rec.Body.String())
	}
}

func TestLocalRejectsWrites(t *testing.T) {
	handler := newLocalHandler(mapAssets{"/index.html": "SPA"})
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/index.html", nil))

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", rec.Code)
	}
	if allow := rec.Header().Get("Allow"); allow != "GET, HEAD" {
		t.Errorf("Allow = %q", allow)
	}
}

type assetsFunc func(name string) (*pipeline.Asset, error)

func (f assetsFunc) Serve(_ context.Context, name string) (*pipeline.Asset, error) {
	return f(name)
}
