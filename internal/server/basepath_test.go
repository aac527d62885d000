package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func echoPath() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(r.URL.Path))
	})
}

func TestBasePathHandler(t *testing.T) {
	handler := NewBasePathHandler("/app", echoPath())

	tests := []struct {
		name   string
		target string
		want   string
	}{
		{"nested path is stripped", "/app/src/main.ts", "/src/main.ts"},
		{"base root", "/app/", "/"},
		{"base without trailing slash", "/app", "/"},
		{"index file", "/app/index.html", "/index.html"},
		{"client route", "/app/settings/profile", "/settings/profile"},
		{"outside base passes through", "/api/users", "/api/users"},
		{"lookalike prefix passes through", "/apple/x", "/apple/x"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tc.target, nil)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Body.String() != tc.want {
				t.Errorf("%s: expected path %q, got %q", tc.target, tc.want, rec.Body.String())
			}
		})
	}
}

func TestBasePathHandlerRedirectsSiteRoot(t *testing.T) {
	handler := NewBasePathHandler("/app/", echoPath())

	req := httptest.NewRequest(http.MethodGet, "/?lang=en", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusFound {
		t.Fatalf("expected 302, got %d", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "/app/?lang=en" {
		t.Errorf("Location = %q, want /app/?lang=en", loc)
	}
}

func TestBasePathHandlerDefaultIsNoOp(t *testing.T) {
	inner := echoPath()
	handler := NewBasePathHandler("", inner)

	req := httptest.NewRequest(http.MethodGet, "/api/events", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Body.String() != "/api/events" {
		t.Errorf("no-op handler: expected path /api/events, got %q", rec.Body.String())
	}
	if _, wrapped := handler.(*BasePathHandler); wrapped {
		t.Error("expected inner handler to be returned for base /")
	}
}
