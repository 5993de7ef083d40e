//go:build !llama

package models

import (
	"errors"

	"tinyserve/internal/registry"
)

// LlamaName is the plugin directory name of the llama.cpp text model.
const LlamaName = "llama"

// Without the 'llama' build tag the plugin is still registered so a llama
// directory fails to load with a clear reason instead of "no plugin".
func init() {
	registry.Register(LlamaName, func(registry.PluginConfig) (registry.Model, error) {
		return nil, errors.New("llama support not built (missing 'llama' build tag)")
	})
}
