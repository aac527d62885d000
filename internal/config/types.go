package config

import (
	"fmt"
	"net/url"

	"gopkg.in/yaml.v3"
)

// Raw is the configuration as declared in the YAML file, before validation.
type Raw struct {
	Root      string      `yaml:"root"      json:"root"`
	Base      string      `yaml:"base"      json:"base"      default:"/"`
	PublicDir string      `yaml:"publicDir" json:"publicDir" default:"public"`
	Server    RawServer   `yaml:"server"    json:"server"`
	Resolve   RawResolve  `yaml:"resolve"   json:"resolve"`
	Plugins   []RawPlugin `yaml:"plugins"   json:"plugins"`
	Cache     CacheConfig `yaml:"cache"     json:"cache"`

	// dir is the directory relative roots are resolved against. Load sets it
	// to the config file's directory; Parse leaves it empty (working directory).
	dir string
	// file is the absolute path Load read, empty for Parse.
	file string
}

// RawServer holds the listener and proxy declarations.
type RawServer struct {
	Host  string     `yaml:"host"  json:"host"  default:"localhost"`
	Port  Port       `yaml:"port"  json:"port"  default:"5173" validate:"min=1,max=65535"`
	Open  bool       `yaml:"open"  json:"open"`
	HTTPS RawHTTPS   `yaml:"https" json:"https"`
	Proxy []RawProxy `yaml:"proxy" json:"proxy"`
}

// Port is a listen port as written in YAML. Only integer scalars decode;
// strings, floats and collections fail with an InvalidPort ConfigError.
type Port int

func (p *Port) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode || node.ShortTag() != "!!int" {
		return &ConfigError{
			Kind:  InvalidPort,
			Field: "server.port",
			Err:   fmt.Errorf("invalid port %q: must be an integer", node.Value),
		}
	}
	var n int
	if err := node.Decode(&n); err != nil {
		return &ConfigError{Kind: InvalidPort, Field: "server.port", Err: err}
	}
	*p = Port(n)
	return nil
}

// RawHTTPS enables TLS on the listener. With no cert/key a self-signed
// certificate is generated at startup.
type RawHTTPS struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Cert    string `yaml:"cert"    json:"cert"`
	Key     string `yaml:"key"     json:"key"`
}

// RawProxy is one proxy rule. Rules are a YAML sequence so declaration order
// is explicit.
type RawProxy struct {
	Prefix       string `yaml:"prefix"       json:"prefix"`
	Target       string `yaml:"target"       json:"target"`
	WS           bool   `yaml:"ws"           json:"ws"`
	ChangeOrigin bool   `yaml:"changeOrigin" json:"changeOrigin"`
	StripPrefix  bool   `yaml:"stripPrefix"  json:"stripPrefix"`
}

// RawResolve holds module resolution settings.
type RawResolve struct {
	Alias []RawAlias `yaml:"alias" json:"alias"`
}

// RawAlias maps a path token to a directory relative to the project root.
type RawAlias struct {
	Token string `yaml:"token" json:"token"`
	Path  string `yaml:"path"  json:"path"`
}

// RawPlugin names a transform plugin and its options.
type RawPlugin struct {
	Name    string         `yaml:"name"    json:"name"    validate:"required"`
	Options map[string]any `yaml:"options" json:"options"`
}

// CacheConfig sizes the transformed-asset cache. Size 0 disables caching
// and the file watcher that keeps it coherent.
type CacheConfig struct {
	Size int `yaml:"size" json:"size" default:"256"`
}

// Resolved is the validated, normalized configuration. It is built once by
// Resolve and never mutated afterwards.
type Resolved struct {
	// ConfigFile is the file the configuration was loaded from, if any.
	ConfigFile string
	Root       string
	PublicDir  string
	Server     ServerConfig
	Proxy      []ProxyRule
	Aliases    []PathAlias
	Plugins    []PluginSpec
	CacheSize  int
}

// ServerConfig describes the listener.
type ServerConfig struct {
	Host               string
	ListenPort         int
	BasePath           string
	OpenBrowserOnStart bool
	TLS                *TLSConfig
}

// TLSConfig holds absolute certificate paths. Both are empty when a
// self-signed certificate should be generated.
type TLSConfig struct {
	CertFile string
	KeyFile  string
}

// ProxyRule forwards requests whose path starts with MatchPrefix to Upstream.
type ProxyRule struct {
	MatchPrefix           string
	Upstream              *url.URL
	AllowWebSocketUpgrade bool
	RewriteOrigin         bool
	StripPrefix           bool
}

// PathAlias maps a leading path segment to an absolute directory.
type PathAlias struct {
	Token string
	Path  string
}

// PluginSpec is one stage of the transform pipeline.
type PluginSpec struct {
	Name    string
	Options map[string]any
}
