package config

import (
	"errors"
	"fmt"
	"maps"
	"net"
	"net/url"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// validationKinds maps a failing struct field to the error kind reported for it.
var validationKinds = map[string]ErrorKind{
	"Port": InvalidPort,
	"Name": InvalidPlugin,
}

// NormalizeBasePath ensures the base path starts and ends with '/'.
func NormalizeBasePath(basePath string) string {
	basePath = strings.TrimSpace(basePath)
	if basePath == "" {
		return "/"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	if !strings.HasSuffix(basePath, "/") {
		basePath = basePath + "/"
	}
	return basePath
}

// Resolve validates raw and produces the immutable configuration used by the
// router and server. It fails with a *ConfigError naming the first offending
// field, checking fields in the order they are declared in the file: root,
// server (port, https, proxy), resolve.alias, then plugins. raw is not
// modified, and resolving equal input yields equal output.
func Resolve(raw *Raw) (*Resolved, error) {
	if raw == nil {
		raw = New()
	}

	root, err := resolveRoot(raw)
	if err != nil {
		return nil, err
	}
	if err := validate.Struct(raw.Server); err != nil {
		return nil, fromValidation(raw.Server, "server", err)
	}

	out := &Resolved{
		ConfigFile: raw.file,
		Root:       root,
		Server: ServerConfig{
			Host:               strings.TrimSpace(raw.Server.Host),
			ListenPort:         int(raw.Server.Port),
			BasePath:           NormalizeBasePath(raw.Base),
			OpenBrowserOnStart: raw.Server.Open,
		},
		CacheSize: max(raw.Cache.Size, 0),
	}
	if raw.PublicDir != "" {
		out.PublicDir = underRoot(root, raw.PublicDir)
	}

	if out.Server.TLS, err = resolveTLS(root, raw.Server.HTTPS); err != nil {
		return nil, err
	}
	if out.Proxy, err = resolveProxy(raw.Server.Proxy); err != nil {
		return nil, err
	}
	if out.Aliases, err = resolveAliases(root, raw.Resolve.Alias); err != nil {
		return nil, err
	}

	out.Plugins = make([]PluginSpec, 0, len(raw.Plugins))
	for i, p := range raw.Plugins {
		if err := validate.Struct(p); err != nil {
			return nil, fromValidation(p, fmt.Sprintf("plugins[%d]", i), err)
		}
		out.Plugins = append(out.Plugins, PluginSpec{
			Name:    strings.TrimSpace(p.Name),
			Options: maps.Clone(p.Options),
		})
	}
	return out, nil
}

func resolveRoot(raw *Raw) (string, error) {
	root := raw.Root
	if !filepath.IsAbs(root) {
		root = filepath.Join(raw.dir, root)
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", &ConfigError{Kind: UnresolvablePath, Field: "root", Err: err}
	}
	return abs, nil
}

func underRoot(root, p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(root, p)
}

func resolveAliases(root string, raw []RawAlias) ([]PathAlias, error) {
	aliases := make([]PathAlias, 0, len(raw))
	for i, a := range raw {
		field := fmt.Sprintf("resolve.alias[%d].token", i)
		token := strings.Trim(strings.TrimSpace(a.Token), "/")
		if token == "" {
			return nil, configErr(UnresolvablePath, field, "required field missing")
		}
		if strings.Contains(token, "/") {
			return nil, configErr(UnresolvablePath, field, "token %q must be a single path segment", a.Token)
		}
		aliases = append(aliases, PathAlias{
			Token: token,
			Path:  underRoot(root, strings.TrimSpace(a.Path)),
		})
	}
	return aliases, nil
}

func resolveProxy(raw []RawProxy) ([]ProxyRule, error) {
	rules := make([]ProxyRule, 0, len(raw))
	for i, p := range raw {
		prefix := strings.TrimSpace(p.Prefix)
		if prefix == "" {
			return nil, configErr(InvalidUpstream, fmt.Sprintf("server.proxy[%d].prefix", i), "required field missing")
		}
		if !strings.HasPrefix(prefix, "/") {
			prefix = "/" + prefix
		}

		field := fmt.Sprintf("server.proxy[%d].target", i)
		u, err := url.Parse(strings.TrimSpace(p.Target))
		if err != nil {
			return nil, &ConfigError{Kind: InvalidUpstream, Field: field, Err: err}
		}
		if u.Scheme == "" || u.Host == "" {
			return nil, configErr(InvalidUpstream, field, "invalid upstream %q: missing scheme or host", p.Target)
		}
		switch u.Scheme {
		case "http", "https", "ws", "wss":
		default:
			return nil, configErr(InvalidUpstream, field, "invalid upstream %q: unsupported scheme %q", p.Target, u.Scheme)
		}

		rules = append(rules, ProxyRule{
			MatchPrefix:           prefix,
			Upstream:              u,
			AllowWebSocketUpgrade: p.WS,
			RewriteOrigin:         p.ChangeOrigin,
			StripPrefix:           p.StripPrefix,
		})
	}
	return rules, nil
}

func resolveTLS(root string, raw RawHTTPS) (*TLSConfig, error) {
	if !raw.Enabled {
		return nil, nil
	}
	cert, key := strings.TrimSpace(raw.Cert), strings.TrimSpace(raw.Key)
	switch {
	case cert == "" && key == "":
		return &TLSConfig{}, nil
	case cert == "":
		return nil, configErr(UnresolvablePath, "server.https.cert", "required when key is set")
	case key == "":
		return nil, configErr(UnresolvablePath, "server.https.key", "required when cert is set")
	}
	return &TLSConfig{CertFile: underRoot(root, cert), KeyFile: underRoot(root, key)}, nil
}

// fromValidation converts the first validator failure on v into a ConfigError
// whose Field is the YAML path of the offending value below prefix.
func fromValidation(v any, prefix string, err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}
	fe := verrs[0]
	kind, ok := validationKinds[fe.StructField()]
	if !ok {
		kind = InvalidPlugin
	}

	var msg string
	switch fe.Tag() {
	case "required":
		msg = "required field missing"
	case "min", "max":
		msg = fmt.Sprintf("value %v out of range", fe.Value())
		if kind == InvalidPort {
			msg = fmt.Sprintf("invalid port %v: must be between 1 and 65535", fe.Value())
		}
	default:
		msg = fe.Error()
	}
	field := yamlPath(reflect.TypeOf(v), fe.StructNamespace())
	if field == "" {
		field = prefix
	} else {
		field = prefix + "." + field
	}
	return configErr(kind, field, "%s", msg)
}

// yamlPath maps a validator namespace such as "RawServer.Port" to the YAML
// path "port" using the struct's yaml tags.
func yamlPath(t reflect.Type, namespace string) string {
	parts := strings.Split(namespace, ".")
	out := make([]string, 0, len(parts))
	for _, part := range parts[1:] {
		for t.Kind() == reflect.Ptr || t.Kind() == reflect.Slice {
			t = t.Elem()
		}
		name, index := part, ""
		if i := strings.IndexByte(part, '['); i >= 0 {
			name, index = part[:i], part[i:]
		}
		f, ok := t.FieldByName(name)
		if !ok {
			out = append(out, part)
			continue
		}
		tag := strings.Split(f.Tag.Get("yaml"), ",")[0]
		if tag == "" {
			tag = strings.ToLower(name)
		}
		out = append(out, tag+index)
		t = f.Type
	}
	return strings.Join(out, ".")
}

// Addr returns the host:port the listener binds to.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.ListenPort))
}
