package pipeline

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/mitchellh/mapstructure"
)

// Asset is a file on its way to the client. Plugins transform it in place.
type Asset struct {
	// Path is the name the asset was requested by.
	Path string
	// File is the absolute file the content was read from.
	File        string
	ContentType string
	Content     []byte
}

// Plugin is one stage of the transform pipeline. Each Transform call gets
// its own Asset; plugins must not keep state between calls.
type Plugin interface {
	Name() string
	Transform(ctx context.Context, asset *Asset) error
}

// Factory builds a plugin from the options declared in config.
type Factory func(options map[string]any) (Plugin, error)

var mux sync.RWMutex
var registry = map[string]Factory{}

// Register makes a plugin available to New under name. It panics if name is
// already registered.
func Register(name string, factory Factory) {
	mux.Lock()
	defer mux.Unlock()
	if _, ok := registry[name]; ok {
		panic(fmt.Sprintf("plugin '%s' already registered", name))
	}
	registry[name] = factory
}

func lookup(name string) (Factory, bool) {
	mux.RLock()
	defer mux.RUnlock()
	f, ok := registry[name]
	return f, ok
}

// Registered returns the names of all registered plugins, sorted.
func Registered() []string {
	mux.RLock()
	defer mux.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DecodeOptions decodes plugin options into out, a pointer to a struct
// tagged with `json` names. Unknown keys are an error.
func DecodeOptions(options map[string]any, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		ErrorUnused:      true,
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(options)
}
