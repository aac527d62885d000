package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/kongwutw/devfront/internal/config"
)

// moduleTypes covers source extensions the platform mime table gets wrong
// or lacks; a dev server always delivers them as JavaScript modules.
var moduleTypes = map[string]string{
	".js":  "text/javascript; charset=utf-8",
	".mjs": "text/javascript; charset=utf-8",
	".jsx": "text/javascript; charset=utf-8",
	".ts":  "text/javascript; charset=utf-8",
	".tsx": "text/javascript; charset=utf-8",
}

// Pipeline reads assets from a Source and runs them through the configured
// plugins in declaration order.
type Pipeline struct {
	source  Source
	plugins []Plugin
	cache   *lru.Cache[string, *Asset]
	logger  *slog.Logger

	// gen counts invalidations. Output read before an invalidation is not
	// cached, so a change landing mid-transform cannot leave stale output.
	mu  sync.Mutex
	gen uint64
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithCacheSize memoizes up to size transformed assets. Zero disables the cache.
func WithCacheSize(size int) Option {
	return func(p *Pipeline) error {
		if size <= 0 {
			p.cache = nil
			return nil
		}
		cache, err := lru.New[string, *Asset](size)
		if err != nil {
			return err
		}
		p.cache = cache
		return nil
	}
}

// WithLogger sets the logger for the pipeline.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) error {
		p.logger = l
		return nil
	}
}

// New builds a pipeline from plugin specs. Every spec must name a registered
// plugin; options are handed to the plugin's factory unchanged.
func New(source Source, specs []config.PluginSpec, opts ...Option) (*Pipeline, error) {
	p := &Pipeline{
		source: source,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, err
		}
	}

	p.plugins = make([]Plugin, 0, len(specs))
	for _, spec := range specs {
		factory, ok := lookup(spec.Name)
		if !ok {
			return nil, &UnknownPluginError{Name: spec.Name}
		}
		plugin, err := factory(spec.Options)
		if err != nil {
			return nil, fmt.Errorf("plugin %q: %w", spec.Name, err)
		}
		p.plugins = append(p.plugins, plugin)
	}
	return p, nil
}

// Plugins returns the plugin names in pipeline order.
func (p *Pipeline) Plugins() []string {
	names := make([]string, 0, len(p.plugins))
	for _, pl := range p.plugins {
		names = append(names, pl.Name())
	}
	return names
}

// Serve returns the transformed asset for name. It fails with ErrNotFound
// when no file backs name and with *TransformError when a plugin fails.
// The returned asset may be shared with the cache and must not be modified.
func (p *Pipeline) Serve(ctx context.Context, name string) (*Asset, error) {
	file, err := p.source.Locate(name)
	if err != nil {
		return nil, err
	}
	if p.cache != nil {
		if asset, ok := p.cache.Get(file); ok {
			return asset, nil
		}
	}

	gen := p.generation()
	content, err := p.source.ReadFile(ctx, file)
	if err != nil {
		return nil, err
	}
	asset := &Asset{
		Path:        name,
		File:        file,
		ContentType: contentType(file, content),
		Content:     content,
	}
	for _, pl := range p.plugins {
		if err := pl.Transform(ctx, asset); err != nil {
			return nil, &TransformError{Plugin: pl.Name(), Path: name, Err: err}
		}
	}

	if p.cache != nil {
		p.mu.Lock()
		if p.gen == gen {
			p.cache.Add(file, asset)
		}
		p.mu.Unlock()
	}
	return asset, nil
}

func (p *Pipeline) generation() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.gen
}

// Invalidate drops cached output for file and, when file is a directory,
// everything beneath it.
func (p *Pipeline) Invalidate(file string) {
	if p.cache == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.gen++
	if p.cache.Remove(file) {
		p.logger.Debug("asset cache evicted", "file", file)
	}
	prefix := strings.TrimSuffix(file, string(filepath.Separator)) + string(filepath.Separator)
	for _, key := range p.cache.Keys() {
		if strings.HasPrefix(key, prefix) {
			p.cache.Remove(key)
		}
	}
}

func contentType(file string, content []byte) string {
	ext := strings.ToLower(filepath.Ext(file))
	if ct, ok := moduleTypes[ext]; ok {
		return ct
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return http.DetectContentType(content)
}
