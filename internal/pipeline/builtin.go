package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"slices"
	"sort"
	"strings"
)

func init() {
	Register("define", newDefinePlugin)
	Register("banner", newBannerPlugin)
}

var scriptExtensions = []string{".js", ".mjs", ".jsx", ".ts", ".tsx", ".vue", ".html"}

type defineOptions struct {
	Values     map[string]string `json:"values"`
	Extensions []string          `json:"extensions"`
}

// definePlugin replaces global constant tokens with literal values.
type definePlugin struct {
	replacer   *strings.Replacer
	extensions []string
}

func newDefinePlugin(options map[string]any) (Plugin, error) {
	var opts defineOptions
	if err := DecodeOptions(options, &opts); err != nil {
		return nil, err
	}
	if len(opts.Values) == 0 {
		return nil, errors.New("define: values is required")
	}
	if len(opts.Extensions) == 0 {
		opts.Extensions = scriptExtensions
	}

	// Longest tokens first so a token is never shadowed by its own prefix.
	keys := make([]string, 0, len(opts.Values))
	for k := range opts.Values {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})
	pairs := make([]string, 0, 2*len(keys))
	for _, k := range keys {
		pairs = append(pairs, k, opts.Values[k])
	}

	return &definePlugin{
		replacer:   strings.NewReplacer(pairs...),
		extensions: opts.Extensions,
	}, nil
}

func (p *definePlugin) Name() string { return "define" }

func (p *definePlugin) Transform(_ context.Context, asset *Asset) error {
	if !hasExtension(asset.File, p.extensions) {
		return nil
	}
	asset.Content = []byte(p.replacer.Replace(string(asset.Content)))
	return nil
}

type bannerOptions struct {
	Text       string   `json:"text"`
	Extensions []string `json:"extensions"`
}

// bannerPlugin prepends a fixed banner to matching assets.
type bannerPlugin struct {
	banner     []byte
	extensions []string
}

func newBannerPlugin(options map[string]any) (Plugin, error) {
	var opts bannerOptions
	if err := DecodeOptions(options, &opts); err != nil {
		return nil, err
	}
	if strings.TrimSpace(opts.Text) == "" {
		return nil, errors.New("banner: text is required")
	}
	if len(opts.Extensions) == 0 {
		opts.Extensions = []string{".js", ".mjs", ".css"}
	}
	return &bannerPlugin{
		banner:     []byte(strings.TrimRight(opts.Text, "\n") + "\n"),
		extensions: opts.Extensions,
	}, nil
}

func (p *bannerPlugin) Name() string { return "banner" }

func (p *bannerPlugin) Transform(_ context.Context, asset *Asset) error {
	if !hasExtension(asset.File, p.extensions) {
		return nil
	}
	asset.Content = append(slices.Clip(p.banner), asset.Content...)
	return nil
}

func hasExtension(file string, exts []string) bool {
	ext := strings.ToLower(filepath.Ext(file))
	return ext != "" && slices.Contains(exts, ext)
}
