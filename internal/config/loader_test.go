package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "devfront.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_ValidFullConfig(t *testing.T) {
	yaml := `
root: .
base: /app
server:
  host: 0.0.0.0
  port: 9001
  open: true
  proxy:
    - prefix: /api
      target: http://localhost:9000
      ws: true
      changeOrigin: true
resolve:
  alias:
    - token: "@"
      path: ./src
plugins:
  - name: vue
    options:
      script:
        refTransform: true
cache:
  size: 64
`
	path := writeTempConfig(t, yaml)
	raw, err := Load(path)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if raw.Base != "/app" {
		t.Errorf("base = %q, want %q", raw.Base, "/app")
	}
	if raw.Server.Port != 9001 {
		t.Errorf("server.port = %d, want 9001", raw.Server.Port)
	}
	if !raw.Server.Open {
		t.Error("server.open = false, want true")
	}
	if len(raw.Server.Proxy) != 1 {
		t.Fatalf("expected 1 proxy rule, got %d", len(raw.Server.Proxy))
	}
	p := raw.Server.Proxy[0]
	if p.Prefix != "/api" || p.Target != "http://localhost:9000" || !p.WS || !p.ChangeOrigin {
		t.Errorf("unexpected proxy rule: %+v", p)
	}
	if len(raw.Resolve.Alias) != 1 || raw.Resolve.Alias[0].Token != "@" {
		t.Errorf("unexpected aliases: %+v", raw.Resolve.Alias)
	}
	if len(raw.Plugins) != 1 || raw.Plugins[0].Name != "vue" {
		t.Fatalf("unexpected plugins: %+v", raw.Plugins)
	}
	script, ok := raw.Plugins[0].Options["script"].(map[string]any)
	if !ok || script["refTransform"] != true {
		t.Errorf("plugin options not decoded: %+v", raw.Plugins[0].Options)
	}
	if raw.Cache.Size != 64 {
		t.Errorf("cache.size = %d, want 64", raw.Cache.Size)
	}
	if raw.dir != filepath.Dir(path) {
		t.Errorf("dir = %q, want %q", raw.dir, filepath.Dir(path))
	}
}

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	raw, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if raw.Server.Port != 5173 {
		t.Errorf("default port = %d, want 5173", raw.Server.Port)
	}
	if raw.Base != "/" {
		t.Errorf("default base = %q, want /", raw.Base)
	}
	if raw.Server.Host != "localhost" {
		t.Errorf("default host = %q, want localhost", raw.Server.Host)
	}
	if raw.Cache.Size != 256 {
		t.Errorf("default cache size = %d, want 256", raw.Cache.Size)
	}
}

func TestLoad_EmptyFileReturnsDefaults(t *testing.T) {
	raw, err := Load(writeTempConfig(t, "   \n"))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if raw.Server.Port != 5173 {
		t.Errorf("default port = %d, want 5173", raw.Server.Port)
	}
}

func TestLoad_MalformedYAML(t *testing.T) {
	raw, err := Load(writeTempConfig(t, "server:\n  port: [invalid\n"))
	if err == nil {
		t.Fatal("expected parse error, got nil")
	}
	if raw != nil {
		t.Errorf("expected nil config on parse error, got %+v", raw)
	}
}

func TestParse_ExplicitZeroPortOverridesDefault(t *testing.T) {
	raw, err := Parse([]byte("server:\n  port: 0\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if raw.Server.Port != 0 {
		t.Errorf("port = %d, want explicit 0", raw.Server.Port)
	}
}

func TestParse_ProxyOrderPreserved(t *testing.T) {
	raw, err := Parse([]byte(`
server:
  proxy:
    - prefix: /z
      target: http://z.local
    - prefix: /a
      target: http://a.local
    - prefix: /m
      target: http://m.local
`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"/z", "/a", "/m"}
	for i, p := range raw.Server.Proxy {
		if p.Prefix != want[i] {
			t.Errorf("proxy[%d].prefix = %q, want %q", i, p.Prefix, want[i])
		}
	}
}
