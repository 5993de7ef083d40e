//go:build llama

package models

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	llama "github.com/go-skynet/go-llama.cpp"

	"tinyserve/internal/registry"
)

// LlamaName is the plugin directory name of the llama.cpp text model.
const LlamaName = "llama"

func init() {
	registry.Register(LlamaName, newLlama)
}

// Llama runs text completion through go-llama.cpp. Settings come from the
// plugin's model file: model_path (relative to the plugin dir), context,
// threads, tokens, temperature, top_k, top_p, seed.
type Llama struct {
	mu      sync.Mutex
	model   *llama.LLama
	threads int
	tokens  int
}

func newLlama(cfg registry.PluginConfig) (registry.Model, error) {
	path := cfg.String("model_path", "")
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("model_path is empty")
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(cfg.Dir, path)
	}
	m, err := llama.New(path, llama.SetContext(cfg.Int("context", 512)))
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return &Llama{model: m, threads: max(1, cfg.Int("threads", 4)), tokens: max(1, cfg.Int("tokens", 128))}, nil
}

func (*Llama) InputShape() registry.Shape { return nil }

func (l *Llama) Run(ctx context.Context, item any, args registry.Args) (any, error) {
	prompt, ok := item.(string)
	if !ok {
		return nil, fmt.Errorf("expected text, got %T", item)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.model == nil {
		return nil, errors.New("llama model not initialized")
	}
	// Stop generation once the caller gives up.
	l.model.SetTokenCallback(func(string) bool { return ctx.Err() == nil })
	text, err := l.model.Predict(prompt, l.predictOptions(args)...)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	return text, nil
}

func (l *Llama) predictOptions(args registry.Args) []llama.PredictOption {
	cfg := registry.PluginConfig{Settings: args}
	po := []llama.PredictOption{
		llama.SetTokens(max(1, cfg.Int("max_tokens", l.tokens))),
		llama.SetThreads(l.threads),
		llama.SetTopK(cfg.Int("top_k", llama.DefaultOptions.TopK)),
	}
	if v, ok := args["temperature"].(float64); ok && v > 0 {
		po = append(po, llama.SetTemperature(float32(v)))
	}
	if v, ok := args["top_p"].(float64); ok && v > 0 {
		po = append(po, llama.SetTopP(float32(v)))
	}
	if seed := cfg.Int("seed", 0); seed != 0 {
		po = append(po, llama.SetSeed(seed))
	}
	return po
}

func (l *Llama) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.model != nil {
		l.model.Free()
		l.model = nil
	}
	return nil
}
