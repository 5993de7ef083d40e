package models

import (
	"context"
	"fmt"

	"tinyserve/internal/registry"
)

// ExampleTextName is the plugin directory name of the text example.
const ExampleTextName = "example_text"

func init() {
	registry.Register(ExampleTextName, func(cfg registry.PluginConfig) (registry.Model, error) {
		return &ExampleText{suffix: cfg.String("suffix", "_processed")}, nil
	})
}

// ExampleText appends a suffix to its input. Batches run item by item.
type ExampleText struct {
	suffix string
}

func (*ExampleText) InputShape() registry.Shape { return nil }

func (m *ExampleText) Run(_ context.Context, item any, _ registry.Args) (any, error) {
	s, ok := item.(string)
	if !ok {
		return nil, fmt.Errorf("expected text, got %T", item)
	}
	return s + m.suffix, nil
}
