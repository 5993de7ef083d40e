package registry

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Shape is a model's canonical input shape, numpy style: (height, width) or
// (height, width, channels).
type Shape []int

// Args are the decoded request arguments. nil means none were supplied, which
// is different from an empty object.
type Args map[string]any

// Model is the capability every plugin implements.
//
// Items are *tensor.Array for image requests and string for text requests.
// Results must be JSON-serializable.
type Model interface {
	// InputShape returns nil when the model has no canonical reshape policy.
	InputShape() Shape
	Run(ctx context.Context, item any, args Args) (any, error)
}

// BatchModel is implemented by plugins with a native batch path. Models that
// do not implement it get RunEach.
type BatchModel interface {
	Model
	RunBatch(ctx context.Context, items []any, args Args) ([]any, error)
}

// RunEach runs items through m one by one, stopping at the first error.
func RunEach(ctx context.Context, m Model, items []any, args Args) ([]any, error) {
	out := make([]any, 0, len(items))
	for i, it := range items {
		res, err := m.Run(ctx, it, args)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		out = append(out, res)
	}
	return out, nil
}

// PluginConfig is handed to a Factory when a model is (re)loaded.
type PluginConfig struct {
	// Lowercase model name, the plugin directory name.
	Name string
	// Absolute plugin directory.
	Dir string
	// Contents of the optional model.{yaml,yml,toml,json} in Dir.
	Settings map[string]any
}

// String returns a string setting or def.
func (c PluginConfig) String(key, def string) string {
	if v, ok := c.Settings[key].(string); ok && v != "" {
		return v
	}
	return def
}

// Int returns an integer setting or def. Numbers decoded from JSON/YAML/TOML
// arrive as different Go types.
func (c PluginConfig) Int(key string, def int) int {
	switch v := c.Settings[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return def
}

// Factory constructs a fresh model instance.
type Factory func(cfg PluginConfig) (Model, error)

var (
	factoriesMu sync.RWMutex
	factories   = map[string]Factory{}
)

// Register makes a plugin available under name (case-insensitive). It panics
// on duplicates, like database/sql drivers.
func Register(name string, f Factory) {
	name = strings.ToLower(name)
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	if f == nil {
		panic("registry: Register factory is nil")
	}
	if _, dup := factories[name]; dup {
		panic("registry: Register called twice for plugin " + name)
	}
	factories[name] = f
}

// Registered returns the sorted names of all registered plugins.
func Registered() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	out := make([]string, 0, len(factories))
	for n := range factories {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func lookupFactory(name string) (Factory, bool) {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	f, ok := factories[name]
	return f, ok
}
