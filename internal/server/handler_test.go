package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	ws "nhooyr.io/websocket"

	"github.com/kongwutw/devfront/internal/config"
	"github.com/kongwutw/devfront/internal/pipeline"
)

type upstreamSeen struct {
	path, query, host, origin, xfh string
}

// newUpstream starts an API server that echoes what it received and a
// WebSocket echo endpoint under /api/socket.
func newUpstream(t *testing.T) (*url.URL, <-chan upstreamSeen) {
	t.Helper()
	seen := make(chan upstreamSeen, 8)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/socket" {
			c, err := ws.Accept(w, r, &ws.AcceptOptions{InsecureSkipVerify: true})
			if err != nil {
				return
			}
			defer c.CloseNow()
			for {
				typ, data, err := c.Read(context.Background())
				if err != nil {
					return
				}
				_ = c.Write(context.Background(), typ, data)
			}
		}
		seen <- upstreamSeen{r.URL.Path, r.URL.RawQuery, r.Host, r.Header.Get("Origin"), r.Header.Get("X-Forwarded-Host")}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true}`))
	}))
	t.Cleanup(srv.Close)
	u, _ := url.Parse(srv.URL)
	return u, seen
}

func newFrontEnd(t *testing.T, upstream *url.URL, allowWS, rewriteOrigin bool) (*httptest.Server, string) {
	t.Helper()
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "index.html"), "<div id=app></div>")
	writeFile(t, filepath.Join(root, "src", "main.ts"), "console.log(__APP__)")
	shared := filepath.Join(t.TempDir(), "shared")
	writeFile(t, filepath.Join(shared, "util.ts"), "export const x = 1")

	cfg := &config.Resolved{
		Root:   root,
		Server: config.ServerConfig{BasePath: "/", ListenPort: 5173},
		Proxy: []config.ProxyRule{
			{MatchPrefix: "/api", Upstream: upstream, AllowWebSocketUpgrade: allowWS, RewriteOrigin: rewriteOrigin},
		},
		Aliases: []config.PathAlias{{Token: "@", Path: shared}},
		Plugins: []config.PluginSpec{{Name: "define", Options: map[string]any{"values": map[string]any{"__APP__": `"demo"`}}}},
	}
	p, err := pipeline.New(pipeline.NewDirSource(root, "", shared), cfg.Plugins, pipeline.WithCacheSize(16))
	if err != nil {
		t.Fatalf("pipeline.New: %v", err)
	}
	srv := httptest.NewServer(New(cfg, p))
	t.Cleanup(srv.Close)
	return srv, root
}

func writeFile(t *testing.T, p, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func get(t *testing.T, rawURL string, header http.Header) (int, string) {
	t.Helper()
	req, _ := http.NewRequest(http.MethodGet, rawURL, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET %s: %v", rawURL, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(body)
}

func TestHandler_ForwardProxy(t *testing.T) {
	upstream, seen := newUpstream(t)
	front, _ := newFrontEnd(t, upstream, false, true)

	status, body := get(t, front.URL+"/api/users?page=2", http.Header{"Origin": {front.URL}})
	if status != http.StatusOK || body != `{"ok":true}` {
		t.Fatalf("got %d %q", status, body)
	}

	s := <-seen
	if s.path != "/api/users" || s.query != "page=2" {
		t.Errorf("upstream saw %s?%s", s.path, s.query)
	}
	if s.host != upstream.Host {
		t.Errorf("Host = %q, want upstream %q", s.host, upstream.Host)
	}
	if s.origin != "http://"+upstream.Host {
		t.Errorf("Origin = %q, want rewritten", s.origin)
	}
	frontURL, _ := url.Parse(front.URL)
	if s.xfh != frontURL.Host {
		t.Errorf("X-Forwarded-Host = %q, want %q", s.xfh, frontURL.Host)
	}
}

func TestHandler_ForwardProxyKeepsHostWithoutRewrite(t *testing.T) {
	upstream, seen := newUpstream(t)
	front, _ := newFrontEnd(t, upstream, false, false)

	get(t, front.URL+"/api/users", http.Header{"Origin": {"http://localhost:5173"}})

	s := <-seen
	frontURL, _ := url.Parse(front.URL)
	if s.host != frontURL.Host {
		t.Errorf("Host = %q, want client host %q", s.host, frontURL.Host)
	}
	if s.origin != "http://localhost:5173" {
		t.Errorf("Origin = %q, want unchanged", s.origin)
	}
}

func TestHandler_UpstreamDownIs502(t *testing.T) {
	dead := httptest.NewServer(http.NotFoundHandler())
	upstream, _ := url.Parse(dead.URL)
	dead.Close()
	front, _ := newFrontEnd(t, upstream, true, true)

	status, body := get(t, front.URL+"/api/users", nil)
	if status != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", status)
	}
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal([]byte(body), &payload); err != nil || payload.Error == "" {
		t.Errorf("expected JSON error body, got %q", body)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, resp, err := ws.Dial(ctx, "ws"+front.URL[4:]+"/api/socket", nil)
	if err == nil || resp == nil || resp.StatusCode != http.StatusBadGateway {
		t.Errorf("websocket dial = (%v, %v), want 502", resp, err)
	}
}

func TestHandler_WebSocketPassThrough(t *testing.T) {
	upstream, _ := newUpstream(t)
	front, _ := newFrontEnd(t, upstream, true, true)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, _, err := ws.Dial(ctx, "ws"+front.URL[4:]+"/api/socket", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.CloseNow()

	if err := c.Write(ctx, ws.MessageText, []byte("hmr")); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, data, err := c.Read(ctx)
	if err != nil || string(data) != "hmr" {
		t.Errorf("echo = %q, %v", data, err)
	}
	c.Close(ws.StatusNormalClosure, "")
}

func TestHandler_UpgradeNotAllowedIs400(t *testing.T) {
	upstream, _ := newUpstream(t)
	front, _ := newFrontEnd(t, upstream, false, true)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, resp, err := ws.Dial(ctx, "ws"+front.URL[4:]+"/api/socket", nil)
	if err == nil {
		t.Fatal("expected dial to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("response = %+v, want 400", resp)
	}
}

func TestHandler_ServeLocalThroughPipeline(t *testing.T) {
	upstream, _ := newUpstream(t)
	front, root := newFrontEnd(t, upstream, false, true)

	status, body := get(t, front.URL+"/src/main.ts", nil)
	if status != http.StatusOK || body != `console.log("demo")` {
		t.Errorf("main.ts = %d %q", status, body)
	}

	status, body = get(t, front.URL+"/favicon.ico", nil)
	if status != http.StatusNotFound {
		t.Errorf("favicon.ico = %d %q, want 404", status, body)
	}

	writeFile(t, filepath.Join(root, "favicon.ico"), "ico")
	status, body = get(t, front.URL+"/favicon.ico", nil)
	if status != http.StatusOK || body != "ico" {
		t.Errorf("favicon.ico = %d %q", status, body)
	}

	status, body = get(t, front.URL+"/about", nil)
	if status != http.StatusOK || !strings.Contains(body, "id=app") {
		t.Errorf("SPA fallback = %d %q", status, body)
	}
}

func TestHandler_AliasResolvesOutsideRoot(t *testing.T) {
	upstream, _ := newUpstream(t)
	front, _ := newFrontEnd(t, upstream, false, true)

	status, body := get(t, front.URL+"/@/util.ts", nil)
	if status != http.StatusOK || body != "export const x = 1" {
		t.Errorf("alias = %d %q", status, body)
	}

	status, _ = get(t, front.URL+"/@/missing", nil)
	if status != http.StatusNotFound {
		t.Errorf("missing aliased file = %d, want 404 without SPA fallback", status)
	}
}

func TestHandler_SecretsNeverServed(t *testing.T) {
	upstream, _ := newUpstream(t)
	front, root := newFrontEnd(t, upstream, false, true)
	writeFile(t, filepath.Join(root, ".env"), "API_TOKEN=secret")
	writeFile(t, filepath.Join(root, ".git", "config"), "secret")
	writeFile(t, filepath.Join(root, "certs", "key.pem"), "secret")

	for _, p := range []string{"/.env", "/.git/config", "/certs/key.pem"} {
		status, body := get(t, front.URL+p, nil)
		if strings.Contains(body, "secret") {
			t.Errorf("GET %s = %d, leaked %q", p, status, body)
		}
	}
	if status, _ := get(t, front.URL+"/.env", nil); status != http.StatusNotFound {
		t.Errorf("GET /.env = %d, want 404", status)
	}
}
