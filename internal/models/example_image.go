package models

import (
	"context"
	"fmt"

	"tinyserve/internal/registry"
	"tinyserve/internal/tensor"
)

// ExampleImageName is the plugin directory name of the image example.
const ExampleImageName = "example_image"

func init() {
	registry.Register(ExampleImageName, func(registry.PluginConfig) (registry.Model, error) {
		return &ExampleImage{}, nil
	})
}

// ExampleImage is a stand-in detector that always reports the same two objects.
type ExampleImage struct{}

func (*ExampleImage) InputShape() registry.Shape { return registry.Shape{1080, 1920, 3} }

func (*ExampleImage) Run(_ context.Context, item any, _ registry.Args) (any, error) {
	if _, ok := item.(*tensor.Array); !ok {
		return nil, fmt.Errorf("expected an image, got %T", item)
	}
	return [][]any{{"object1", 0.3}, {"object2", 0.5}}, nil
}
