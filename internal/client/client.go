// Package client talks to a worker pool: it discovers every worker behind the
// shared port, keeps one channel per worker and spreads calls round-robin.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"

	"tinyserve/internal/grpcapi"
	"tinyserve/internal/tensor"
	"tinyserve/pkg/types"
)

// Defaults applied by Dial.
const (
	DefaultTimeout       = 300 * time.Second
	DefaultRetryInterval = time.Second
)

// Config tunes a Client. Zero values take the defaults.
type Config struct {
	// Bound on each connect handshake.
	Timeout time.Duration
	// Pause between failed handshake attempts.
	RetryInterval   time.Duration
	MaxMessageBytes int
	Logger          zerolog.Logger
	// Extra options for every channel.
	DialOptions []grpc.DialOption
}

// Client is bound to one model. It is safe for concurrent use.
type Client struct {
	model  string
	target string
	host   string
	port   string
	cfg    Config
	log    zerolog.Logger
	dial   []grpc.DialOption
	chans  *channels
	shapeM sync.Mutex
	shape  []int
}

// Dial connects to the pool at target (host:port) and returns once a channel
// to every worker is open. Each handshake retries GetPID until it succeeds or
// cfg.Timeout elapses, in which case the error is a ConnectionTimeoutError.
// Discovery itself has no overall deadline beyond ctx.
func Dial(ctx context.Context, model, target string, cfg Config) (*Client, error) {
	host, port, err := net.SplitHostPort(target)
	if err != nil {
		return nil, fmt.Errorf("target %q: %w", target, err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = DefaultRetryInterval
	}
	c := &Client{
		model:  model,
		target: target,
		host:   host,
		port:   port,
		cfg:    cfg,
		log:    cfg.Logger,
		dial:   append(grpcapi.DialOptions(cfg.MaxMessageBytes), cfg.DialOptions...),
		chans:  newChannels(),
	}
	if err := c.discover(ctx); err != nil {
		_ = c.chans.closeAll()
		return nil, err
	}
	c.refreshShape(ctx)
	return c, nil
}

func (c *Client) discover(ctx context.Context) error {
	if err := c.handshake(ctx); err != nil {
		return err
	}
	want, err := c.NumWorkers(ctx)
	if err != nil {
		return err
	}
	c.log.Debug().Int("workers", want).Str("target", c.target).Msg("discovering workers")
	for c.chans.len() < want {
		if err := c.handshake(ctx); err != nil {
			return err
		}
	}
	c.log.Info().Ints("pids", c.chans.pids()).Str("target", c.target).Msg("connected to every worker")
	return nil
}

// handshake opens a fresh channel and asks whichever worker answers for its
// pid, keeping the channel if the pid is new.
func (c *Client) handshake(ctx context.Context) error {
	hctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	var (
		kept    *channel
		lastErr error
		fatal   error
	)
	op := func() error {
		conn, err := grpc.NewClient(c.target, c.dial...)
		if err != nil {
			// Malformed target; retrying cannot help.
			fatal = err
			return nil
		}
		stub := grpcapi.NewModelClient(conn)
		resp, err := stub.GetPID(hctx, &types.StringArg{Data: c.model})
		if err != nil {
			_ = conn.Close()
			lastErr = err
			return err
		}
		var p types.PIDPayload
		if err := json.Unmarshal(resp.Data, &p); err != nil {
			_ = conn.Close()
			fatal = fmt.Errorf("GetPID answer %s: %w", resp.Data, err)
			return nil
		}
		kept = &channel{pid: p.PID, conn: conn, stub: stub}
		return nil
	}
	b := backoff.WithContext(backoff.NewConstantBackOff(c.cfg.RetryInterval), hctx)
	_ = backoff.Retry(op, b)

	switch {
	case fatal != nil:
		return fatal
	case kept != nil:
		if c.chans.add(kept) {
			c.log.Debug().Int("pid", kept.pid).Msg("new worker channel")
		}
		return nil
	case ctx.Err() != nil:
		return ctx.Err()
	}
	return &ConnectionTimeoutError{Host: c.host, Port: c.port, Timeout: c.cfg.Timeout, Err: lastErr}
}

func encodeArgs(args map[string]any) (string, error) {
	if args == nil {
		return "", nil
	}
	b, err := json.Marshal(args)
	if err != nil {
		return "", fmt.Errorf("encode args: %w", err)
	}
	return string(b), nil
}

// call runs fn on the next channel in round-robin order.
func (c *Client) call(fn func(stub *grpcapi.ModelClient) (*types.Response, error)) (Result, error) {
	ch, err := c.chans.next()
	if err != nil {
		return nil, err
	}
	resp, err := fn(ch.stub)
	if err != nil {
		return nil, err
	}
	return Result(resp.Data), nil
}

// RunImage runs one image. A nil image, or one with fewer than three rows or
// columns, yields an empty result without contacting the pool.
func (c *Client) RunImage(ctx context.Context, img *tensor.Array, args map[string]any) (Result, error) {
	if img == nil || img.Height() <= 2 || img.Width() <= 2 {
		return emptyResult, nil
	}
	wire, err := tensor.Encode(img)
	if err != nil {
		return nil, err
	}
	rawArgs, err := encodeArgs(args)
	if err != nil {
		return nil, err
	}
	return c.call(func(stub *grpcapi.ModelClient) (*types.Response, error) {
		return stub.RunImage(ctx, &types.ImageArgs{Image: wire, Model: c.model, Args: rawArgs})
	})
}

// RunBatchImage preprocesses the batch against the model's canonical shape
// (see Preprocess) and runs it. An empty batch yields an empty result.
func (c *Client) RunBatchImage(ctx context.Context, imgs []*tensor.Array, args map[string]any) (Result, error) {
	if len(imgs) == 0 {
		return emptyResult, nil
	}
	batch, err := Preprocess(imgs, c.canonicalShape())
	if err != nil {
		return nil, err
	}
	wire, err := tensor.EncodeBatch(batch)
	if err != nil {
		return nil, err
	}
	rawArgs, err := encodeArgs(args)
	if err != nil {
		return nil, err
	}
	return c.call(func(stub *grpcapi.ModelClient) (*types.Response, error) {
		return stub.RunBatchImage(ctx, &types.BatchImageArgs{Images: wire, Model: c.model, Args: rawArgs})
	})
}

func (c *Client) RunText(ctx context.Context, text string, args map[string]any) (Result, error) {
	rawArgs, err := encodeArgs(args)
	if err != nil {
		return nil, err
	}
	return c.call(func(stub *grpcapi.ModelClient) (*types.Response, error) {
		return stub.RunText(ctx, &types.TextArgs{Text: text, Model: c.model, Args: rawArgs})
	})
}

// RunBatchText runs a batch of texts. An empty batch yields an empty result.
func (c *Client) RunBatchText(ctx context.Context, texts []string, args map[string]any) (Result, error) {
	if len(texts) == 0 {
		return emptyResult, nil
	}
	rawArgs, err := encodeArgs(args)
	if err != nil {
		return nil, err
	}
	return c.call(func(stub *grpcapi.ModelClient) (*types.Response, error) {
		return stub.RunBatchText(ctx, &types.BatchTextArgs{Texts: texts, Model: c.model, Args: rawArgs})
	})
}

// InputShape asks a worker for the model's canonical shape; nil means none.
func (c *Client) InputShape(ctx context.Context) ([]int, error) {
	res, err := c.call(func(stub *grpcapi.ModelClient) (*types.Response, error) {
		return stub.GetInputShape(ctx, &types.StringArg{Data: c.model})
	})
	if err != nil {
		return nil, err
	}
	if err := res.Err(); err != nil {
		return nil, err
	}
	var shape []int
	if err := res.Decode(&shape); err != nil {
		return nil, err
	}
	return shape, nil
}

func (c *Client) refreshShape(ctx context.Context) {
	shape, err := c.InputShape(ctx)
	if err != nil {
		c.log.Warn().Err(err).Str("model", c.model).Msg("input shape unavailable")
	}
	c.shapeM.Lock()
	c.shape = shape
	c.shapeM.Unlock()
}

func (c *Client) canonicalShape() []int {
	c.shapeM.Lock()
	defer c.shapeM.Unlock()
	return c.shape
}

// ListModels returns the models available to the pool.
func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	res, err := c.call(func(stub *grpcapi.ModelClient) (*types.Response, error) {
		return stub.ListModels(ctx, &types.EmptyArgs{})
	})
	if err != nil {
		return nil, err
	}
	if err := res.Err(); err != nil {
		return nil, err
	}
	var names []string
	return names, res.Decode(&names)
}

// NumWorkers returns the pool size reported by a worker.
func (c *Client) NumWorkers(ctx context.Context) (int, error) {
	res, err := c.call(func(stub *grpcapi.ModelClient) (*types.Response, error) {
		return stub.GetNumParallelWorkers(ctx, &types.StringArg{Data: c.model})
	})
	if err != nil {
		return 0, err
	}
	if err := res.Err(); err != nil {
		return 0, err
	}
	var p types.NumWorkersPayload
	if err := res.Decode(&p); err != nil {
		return 0, err
	}
	if p.NumWorkers <= 0 {
		return 0, fmt.Errorf("pool reported %d workers", p.NumWorkers)
	}
	return p.NumWorkers, nil
}

// ReloadModel reloads the model in the one worker the call lands on.
func (c *Client) ReloadModel(ctx context.Context) (bool, error) {
	ok, err := c.reload(ctx, nil)
	if err == nil {
		c.refreshShape(ctx)
	}
	return ok, err
}

// ReloadAll reloads the model in every discovered worker and returns the
// outcome per pid.
func (c *Client) ReloadAll(ctx context.Context) (map[int]bool, error) {
	out := map[int]bool{}
	var errs []error
	for _, ch := range c.chans.all() {
		ok, err := c.reload(ctx, ch)
		if err != nil {
			errs = append(errs, fmt.Errorf("pid %d: %w", ch.pid, err))
			continue
		}
		out[ch.pid] = ok
	}
	c.refreshShape(ctx)
	return out, errors.Join(errs...)
}

func (c *Client) reload(ctx context.Context, ch *channel) (bool, error) {
	fn := func(stub *grpcapi.ModelClient) (*types.Response, error) {
		return stub.ReloadModel(ctx, &types.StringArg{Data: c.model})
	}
	var (
		res Result
		err error
	)
	if ch == nil {
		res, err = c.call(fn)
	} else {
		var resp *types.Response
		if resp, err = fn(ch.stub); err == nil {
			res = Result(resp.Data)
		}
	}
	if err != nil {
		return false, err
	}
	var p types.ReloadPayload
	if err := res.Decode(&p); err != nil {
		return false, err
	}
	return p.OK, nil
}

// StopServer asks the pool to stop. One call drains every worker.
func (c *Client) StopServer(ctx context.Context) error {
	res, err := c.call(func(stub *grpcapi.ModelClient) (*types.Response, error) {
		return stub.StopServer(ctx, &types.StringArg{Data: c.model})
	})
	if err != nil {
		return err
	}
	return res.Err()
}

// Model returns the model this client is bound to.
func (c *Client) Model() string { return c.model }

// PIDs returns the discovered worker pids in round-robin order.
func (c *Client) PIDs() []int { return c.chans.pids() }

// Close closes every channel.
func (c *Client) Close() error { return c.chans.closeAll() }
