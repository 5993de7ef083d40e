package registry

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"tinyserve/internal/common/fsutil"
)

// Config configures a Registry.
type Config struct {
	// Directory whose subdirectories are the available models.
	Root string
	// Factories overrides the global plugin table when non-nil.
	Factories map[string]Factory
	Logger    zerolog.Logger
	Publisher EventPublisher
}

type entry struct {
	model    Model
	slot     slot
	loadedAt time.Time
}

// Registry holds the models loaded by one worker process. Calls to the same
// model are serialized; calls to different models run concurrently.
type Registry struct {
	root      string
	factories map[string]Factory
	log       zerolog.Logger
	pub       EventPublisher

	mu      sync.RWMutex
	entries map[string]*entry
}

// New creates an empty registry. Nothing is loaded until Load or LoadAll.
func New(cfg Config) *Registry {
	pub := cfg.Publisher
	if pub == nil {
		pub = noopPublisher{}
	}
	root := cfg.Root
	if abs, err := filepath.Abs(root); err == nil {
		root = abs
	}
	return &Registry{
		root:      root,
		factories: cfg.Factories,
		log:       cfg.Logger,
		pub:       pub,
		entries:   map[string]*entry{},
	}
}

// Root returns the absolute plugin directory.
func (r *Registry) Root() string { return r.root }

// ListModels returns the lowercase names of the subdirectories of the plugin
// root, sorted. It reads the directory on every call.
func (r *Registry) ListModels() ([]string, error) {
	dirs, err := fsutil.SubDirs(r.root)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(dirs))
	for _, d := range dirs {
		out = append(out, strings.ToLower(d))
	}
	sort.Strings(out)
	return slices.Compact(out), nil
}

// Loaded returns the sorted names of the loaded models.
func (r *Registry) Loaded() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.entries))
	for n := range r.entries {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Has reports whether name is loaded.
func (r *Registry) Has(name string) bool {
	_, err := r.lookup(name)
	return err == nil
}

// LoadAll loads every listed model and returns the names that loaded.
func (r *Registry) LoadAll() []string {
	names, err := r.ListModels()
	if err != nil {
		r.log.Error().Err(err).Str("root", r.root).Msg("list models failed")
		return nil
	}
	var ok []string
	for _, n := range names {
		if r.Load(n) {
			ok = append(ok, n)
		}
	}
	return ok
}

// Load (re)constructs the named model. A model that is already loaded is
// replaced in place once its in-flight call finishes; on failure the previous
// instance stays. It reports whether the model is now freshly loaded.
func (r *Registry) Load(name string) bool {
	name = strings.ToLower(name)
	start := time.Now()
	err := r.load(name)
	if err != nil {
		r.log.Error().Err(err).Str("model", name).Msg("model load failed")
		r.pub.Publish(Event{Name: EventLoadFailed, Model: name, Fields: map[string]any{"error": err.Error()}})
		return false
	}
	r.log.Info().Str("model", name).Dur("took", time.Since(start)).Msg("model loaded")
	return true
}

func (r *Registry) load(name string) error {
	names, err := r.ListModels()
	if err != nil {
		return err
	}
	if !slices.Contains(names, name) {
		return fmt.Errorf("no plugin directory for %q under %s", name, r.root)
	}
	factory, ok := r.factory(name)
	if !ok {
		return fmt.Errorf("no plugin registered for %q", name)
	}
	dir := r.dirFor(name)
	settings, err := loadSettings(dir)
	if err != nil {
		return &PluginConstructionError{Model: name, Err: err}
	}
	m, err := construct(factory, PluginConfig{Name: name, Dir: dir, Settings: settings})
	if err != nil {
		return &PluginConstructionError{Model: name, Err: err}
	}

	r.mu.Lock()
	e, exists := r.entries[name]
	if !exists {
		r.entries[name] = &entry{model: m, slot: newSlot(), loadedAt: time.Now()}
		r.mu.Unlock()
		r.pub.Publish(Event{Name: EventLoaded, Model: name})
		return nil
	}
	r.mu.Unlock()

	// Swap only between calls so no Run ever sees a closed instance.
	release, _ := e.slot.acquire(context.Background())
	r.mu.Lock()
	old := e.model
	e.model = m
	e.loadedAt = time.Now()
	r.mu.Unlock()
	release()
	if c, ok := old.(io.Closer); ok {
		if err := c.Close(); err != nil {
			r.log.Warn().Err(err).Str("model", name).Msg("close replaced model")
		}
	}
	r.pub.Publish(Event{Name: EventReloaded, Model: name})
	return nil
}

// dirFor maps a lowercase name back to its directory, which may differ in case.
func (r *Registry) dirFor(name string) string {
	dirs, _ := fsutil.SubDirs(r.root)
	for _, d := range dirs {
		if strings.ToLower(d) == name {
			return filepath.Join(r.root, d)
		}
	}
	return filepath.Join(r.root, name)
}

func (r *Registry) factory(name string) (Factory, bool) {
	if r.factories != nil {
		f, ok := r.factories[name]
		return f, ok
	}
	return lookupFactory(name)
}

func construct(f Factory, cfg PluginConfig) (m Model, err error) {
	defer func() {
		if v := recover(); v != nil {
			m, err = nil, panicError{v: v}
		}
	}()
	m, err = f(cfg)
	if err == nil && m == nil {
		err = fmt.Errorf("factory returned no model")
	}
	return m, err
}

func (r *Registry) lookup(name string) (*entry, error) {
	name = strings.ToLower(name)
	r.mu.RLock()
	defer r.mu.RUnlock()
	e := r.entries[name]
	if e == nil {
		return nil, ErrUninitializedModel(name)
	}
	return e, nil
}

func (r *Registry) current(e *entry) Model {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return e.model
}

// InputShape returns the canonical input shape of a loaded model, nil if it has none.
func (r *Registry) InputShape(name string) (shape Shape, err error) {
	e, err := r.lookup(name)
	if err != nil {
		return nil, err
	}
	defer recoverPlugin(name, "input_shape", &err)
	return r.current(e).InputShape(), nil
}

// Run invokes the model's single-item path under its lock.
func (r *Registry) Run(ctx context.Context, name string, item any, args Args) (result any, err error) {
	e, err := r.lookup(name)
	if err != nil {
		return nil, err
	}
	release, err := e.slot.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()
	defer recoverPlugin(name, "run", &err)
	res, err := r.current(e).Run(ctx, item, args)
	if err != nil {
		return nil, &PluginRuntimeError{Model: name, Op: "run", Err: err}
	}
	return res, nil
}

// RunBatch invokes the model's batch path under its lock. Models without a
// native batch path run each item in turn.
func (r *Registry) RunBatch(ctx context.Context, name string, items []any, args Args) (results []any, err error) {
	e, err := r.lookup(name)
	if err != nil {
		return nil, err
	}
	release, err := e.slot.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()
	defer recoverPlugin(name, "run_batch", &err)
	m := r.current(e)
	if bm, ok := m.(BatchModel); ok {
		results, err = bm.RunBatch(ctx, items, args)
	} else {
		results, err = RunEach(ctx, m, items, args)
	}
	if err != nil {
		return nil, &PluginRuntimeError{Model: name, Op: "run_batch", Err: err}
	}
	return results, nil
}

// Close closes every loaded model that implements io.Closer.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var first error
	for name, e := range r.entries {
		if c, ok := e.model.(io.Closer); ok {
			if err := c.Close(); err != nil && first == nil {
				first = fmt.Errorf("close %s: %w", name, err)
			}
		}
	}
	r.entries = map[string]*entry{}
	return first
}

func recoverPlugin(name, op string, err *error) {
	if v := recover(); v != nil {
		*err = &PluginRuntimeError{Model: name, Op: op, Err: panicError{v: v}}
	}
}
