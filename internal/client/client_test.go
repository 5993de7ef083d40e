//go:build linux || darwin || freebsd || netbsd || openbsd || dragonfly

package client

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"tinyserve/internal/config"
	"tinyserve/internal/pool"
	"tinyserve/internal/registry"
	"tinyserve/internal/tensor"
)

// shapeEcho reports the shape of every image it receives.
type shapeEcho struct{}

func (shapeEcho) InputShape() registry.Shape { return registry.Shape{100, 120, 3} }
func (shapeEcho) Run(_ context.Context, item any, _ registry.Args) (any, error) {
	return item.(*tensor.Array).Shape, nil
}

type shouter struct{}

func (shouter) InputShape() registry.Shape { return nil }
func (shouter) Run(_ context.Context, item any, args registry.Args) (any, error) {
	s := item.(string)
	if s == "" {
		return nil, errors.New("nothing to shout")
	}
	if suffix, ok := args["suffix"].(string); ok {
		s += suffix
	}
	return s + "!", nil
}

func startPool(t *testing.T, workers int) (*pool.LocalPool, string) {
	t.Helper()
	root := t.TempDir()
	for _, name := range []string{"shapeecho", "shouter", "unbacked"} {
		require.NoError(t, os.MkdirAll(filepath.Join(root, name), 0o755))
	}
	cfg := config.Default()
	cfg.Host = "127.0.0.1"
	cfg.Port = 0
	cfg.Workers = workers
	cfg.PluginsDir = root
	p, err := pool.StartLocal(context.Background(), cfg, pool.LocalOptions{
		Factories: map[string]registry.Factory{
			"shapeecho": func(registry.PluginConfig) (registry.Model, error) { return shapeEcho{}, nil },
			"shouter":   func(registry.PluginConfig) (registry.Model, error) { return shouter{}, nil },
		},
		BasePID: 9100,
		Logger:  zerolog.Nop(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p, net.JoinHostPort("127.0.0.1", strconv.Itoa(p.Port()))
}

func dial(t *testing.T, model, target string) *Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	c, err := Dial(ctx, model, target, Config{Timeout: 10 * time.Second, RetryInterval: 50 * time.Millisecond, Logger: zerolog.Nop()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestClient_DiscoversEveryWorker(t *testing.T) {
	_, target := startPool(t, 3)
	c := dial(t, "shouter", target)
	assert.ElementsMatch(t, []int{9100, 9101, 9102}, c.PIDs())

	n, err := c.NumWorkers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	h := c.Health(context.Background())
	assert.Equal(t, []int{9100, 9101, 9102}, h.Serving)
	assert.Empty(t, h.StoppedServing)
}

func TestClient_Text(t *testing.T) {
	_, target := startPool(t, 2)
	c := dial(t, "shouter", target)
	ctx := context.Background()

	res, err := c.RunText(ctx, "hey", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `"hey!"`, res.String())

	res, err = c.RunText(ctx, "hey", map[string]any{"suffix": "?"})
	require.NoError(t, err)
	assert.JSONEq(t, `"hey?!"`, res.String())

	res, err = c.RunBatchText(ctx, []string{"a", "b"}, nil)
	require.NoError(t, err)
	assert.JSONEq(t, `["a!","b!"]`, res.String())

	res, err = c.RunBatchText(ctx, nil, nil)
	require.NoError(t, err)
	assert.True(t, res.IsEmpty())

	// Plugin failures come back in-band.
	res, err = c.RunText(ctx, "", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"error":"nothing to shout"}`, res.String())
	assert.Error(t, res.Err())

	shape, err := c.InputShape(ctx)
	require.NoError(t, err)
	assert.Nil(t, shape)
}

func TestClient_Images(t *testing.T) {
	_, target := startPool(t, 2)
	c := dial(t, "shapeecho", target)
	ctx := context.Background()

	shape, err := c.InputShape(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int{100, 120, 3}, shape)

	res, err := c.RunImage(ctx, tensor.Zeros(tensor.Uint8, 150, 200, 3), nil)
	require.NoError(t, err)
	assert.JSONEq(t, `[150,200,3]`, res.String(), "single images are sent as-is")

	for _, tiny := range []*tensor.Array{nil, tensor.Zeros(tensor.Uint8, 2, 50, 3), tensor.Zeros(tensor.Uint8, 50, 1, 3)} {
		res, err = c.RunImage(ctx, tiny, nil)
		require.NoError(t, err)
		assert.True(t, res.IsEmpty())
	}

	res, err = c.RunBatchImage(ctx, []*tensor.Array{
		tensor.Zeros(tensor.Uint8, 200, 100, 3),
		tensor.Zeros(tensor.Uint8, 0, 0, 3),
		tensor.Zeros(tensor.Uint8, 50, 60, 3),
	}, nil)
	require.NoError(t, err)
	assert.JSONEq(t, `[[100,50,3],[100,120,3],[50,60,3]]`, res.String())

	res, err = c.RunBatchImage(ctx, nil, nil)
	require.NoError(t, err)
	assert.True(t, res.IsEmpty())
}

func TestClient_UninitializedModel(t *testing.T) {
	_, target := startPool(t, 1)
	c := dial(t, "unbacked", target)
	ctx := context.Background()

	res, err := c.RunText(ctx, "x", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"error":"Uninitialized model"}`, res.String())

	_, err = c.InputShape(ctx)
	var re *RemoteError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "Uninitialized model", re.Message)

	names, err := c.ListModels(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"shapeecho", "shouter", "unbacked"}, names)
}

func TestClient_ReloadAll(t *testing.T) {
	_, target := startPool(t, 2)
	c := dial(t, "shouter", target)

	got, err := c.ReloadAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[int]bool{9100: true, 9101: true}, got)

	ok, err := c.ReloadModel(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestClient_StopServerDrainsPool(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	p, target := startPool(t, 3)
	c := dial(t, "shouter", target)
	require.NoError(t, c.StopServer(context.Background()))

	done := make(chan error, 1)
	go func() { done <- p.Wait() }()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(20 * time.Second):
		t.Fatal("pool did not drain")
	}
	assert.Equal(t, 0, p.Queue().Pending())

	h := c.Health(context.Background())
	assert.Empty(t, h.Serving)
	assert.Len(t, h.StoppedServing, 3)

	require.NoError(t, c.Close())
	require.NoError(t, p.Close())
	_, err := c.RunText(context.Background(), "late", nil)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestDial_ConnectionTimeout(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	target := l.Addr().String()
	require.NoError(t, l.Close())

	start := time.Now()
	_, err = Dial(context.Background(), "shouter", target, Config{Timeout: 300 * time.Millisecond, RetryInterval: 50 * time.Millisecond, Logger: zerolog.Nop()})
	require.Error(t, err)
	assert.True(t, IsConnectionTimeout(err), "got %v", err)
	assert.Less(t, time.Since(start), 10*time.Second)

	var cte *ConnectionTimeoutError
	require.ErrorAs(t, err, &cte)
	assert.Equal(t, "127.0.0.1", cte.Host)
}

func TestDial_BadTarget(t *testing.T) {
	_, err := Dial(context.Background(), "m", "no-port", Config{})
	require.Error(t, err)
	assert.False(t, IsConnectionTimeout(err))
}
