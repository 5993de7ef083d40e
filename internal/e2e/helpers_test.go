//go:build linux || darwin || freebsd || netbsd || openbsd || dragonfly

package e2e

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"tinyserve/internal/client"
	"tinyserve/internal/config"
	"tinyserve/internal/pool"
	"tinyserve/internal/registry"
)

// createPluginsDir creates one empty plugin directory per name.
func createPluginsDir(t *testing.T, names ...string) string {
	t.Helper()
	dir := t.TempDir()
	for _, n := range names {
		require.NoError(t, os.MkdirAll(filepath.Join(dir, n), 0o755))
	}
	return dir
}

type poolOptions struct {
	workers            int
	maxConcurrentCalls int
	factories          map[string]registry.Factory
}

func startPool(t *testing.T, pluginsDir string, opts poolOptions) (*pool.LocalPool, string) {
	t.Helper()
	cfg := config.Default()
	cfg.Host = "127.0.0.1"
	cfg.Port = 0
	cfg.Workers = opts.workers
	cfg.PluginsDir = pluginsDir
	cfg.MaxConcurrentCalls = opts.maxConcurrentCalls
	p, err := pool.StartLocal(context.Background(), cfg, pool.LocalOptions{
		Factories: opts.factories,
		Logger:    zerolog.Nop(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p, net.JoinHostPort("127.0.0.1", strconv.Itoa(p.Port()))
}

func dialPool(t *testing.T, model, target string) *client.Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	c, err := client.Dial(ctx, model, target, client.Config{
		Timeout:       10 * time.Second,
		RetryInterval: 50 * time.Millisecond,
		Logger:        zerolog.Nop(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}
