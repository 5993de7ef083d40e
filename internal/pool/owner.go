package pool

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"tinyserve/internal/config"
	"tinyserve/internal/grpcapi"
	"tinyserve/pkg/types"
)

// OwnerConfig configures the pool owner.
type OwnerConfig struct {
	Config config.Config
	// Binary started for each worker; defaults to os.Executable.
	Executable string
	Logger     zerolog.Logger
	// Worker stdio; default to the owner's.
	Stdout, Stderr io.Writer
}

// Owner reserves the shared port, starts the worker processes and waits for
// them.
type Owner struct {
	cfg    config.Config
	exe    string
	log    zerolog.Logger
	stdout io.Writer
	stderr io.Writer

	procs    *procManager
	stopping atomic.Bool
	started  time.Time

	mu    sync.Mutex
	port  int
	queue *PipeQueue
}

func NewOwner(cfg OwnerConfig) *Owner {
	o := &Owner{
		cfg:    cfg.Config,
		exe:    cfg.Executable,
		log:    cfg.Logger,
		stdout: cfg.Stdout,
		stderr: cfg.Stderr,
		procs:  newProcManager(),
	}
	if o.stdout == nil {
		o.stdout = os.Stdout
	}
	if o.stderr == nil {
		o.stderr = os.Stderr
	}
	return o
}

// WorkerArgs is the command line of worker index, understood by the hidden
// "worker" subcommand.
func WorkerArgs(cfg config.Config, index, port int) []string {
	return []string{
		"worker",
		"--index", strconv.Itoa(index),
		"--host", cfg.Host,
		"--port", strconv.Itoa(port),
		"--workers", strconv.Itoa(cfg.Workers),
		"--plugins-dir", cfg.PluginsDir,
		"--log-level", cfg.LogLevel,
		"--metrics-port", strconv.Itoa(cfg.MetricsPort),
		"--max-concurrent-calls", strconv.Itoa(cfg.MaxConcurrentCalls),
		"--max-message-bytes", strconv.Itoa(cfg.MaxMessageBytes),
	}
}

// Run starts the pool and blocks until every worker has exited. When ctx is
// done it enqueues the shutdown signals, waits up to the shutdown grace and
// kills whatever is left.
func (o *Owner) Run(ctx context.Context) error {
	exe := o.exe
	if exe == "" {
		var err error
		if exe, err = os.Executable(); err != nil {
			return fmt.Errorf("locate executable: %w", err)
		}
	}
	cfg := o.cfg
	if abs, err := filepath.Abs(cfg.PluginsDir); err == nil {
		cfg.PluginsDir = abs
	}

	res, err := ReservePort(cfg.Host, cfg.Port)
	if err != nil {
		return err
	}
	defer res.Close()
	queue, err := NewPipeQueue()
	if err != nil {
		return err
	}
	defer queue.Close()

	o.mu.Lock()
	o.port = res.Port
	o.queue = queue
	o.started = time.Now()
	o.mu.Unlock()
	o.log.Info().Int("port", res.Port).Int("workers", cfg.Workers).Msg("starting pool")

	for i := 0; i < cfg.Workers; i++ {
		cmd := exec.Command(exe, WorkerArgs(cfg, i, res.Port)...)
		cmd.Stdout = o.stdout
		cmd.Stderr = o.stderr
		cmd.ExtraFiles = queue.ExtraFiles()
		if err := cmd.Start(); err != nil {
			o.log.Error().Err(err).Int("index", i).Msg("start worker")
			_ = o.Stop()
			o.procs.KillAll()
			_ = o.procs.Wait()
			return fmt.Errorf("start worker %d: %w", i, err)
		}
		o.procs.addCmd(i, cmd)
		o.log.Info().Int("index", i).Int("worker_pid", cmd.Process.Pid).Msg("worker started")
	}

	done := make(chan error, 1)
	go func() { done <- o.procs.Wait() }()
	select {
	case err := <-done:
		o.log.Info().Msg("all workers exited")
		return err
	case <-ctx.Done():
	}

	if err := o.Stop(); err != nil {
		o.log.Warn().Err(err).Msg("enqueue shutdown signals")
	}
	grace := time.Duration(cfg.ShutdownGraceSeconds) * time.Second
	select {
	case err := <-done:
		return err
	case <-time.After(grace):
	}
	n := o.procs.KillAll()
	o.log.Warn().Int("killed", n).Dur("grace", grace).Msg("workers did not stop in time")
	<-done
	return nil
}

// Stop enqueues one shutdown signal per worker. Repeated calls do nothing.
func (o *Owner) Stop() error {
	o.mu.Lock()
	q := o.queue
	o.mu.Unlock()
	if q == nil {
		return errors.New("pool not started")
	}
	if !o.stopping.CompareAndSwap(false, true) {
		return nil
	}
	o.log.Info().Int("signals", o.cfg.Workers).Msg("stopping pool")
	return q.Put(o.cfg.Workers)
}

// Port returns the shared port, 0 before Run reserved it.
func (o *Owner) Port() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.port
}

// Status reports the pool for the admin API.
func (o *Owner) Status() types.PoolStatus {
	o.mu.Lock()
	port, started := o.port, o.started
	o.mu.Unlock()
	st := types.PoolStatus{
		Port:     port,
		Size:     o.cfg.Workers,
		Stopping: o.stopping.Load(),
		Workers:  o.procs.Status(),
	}
	if !started.IsZero() {
		st.UptimeSeconds = int64(time.Since(started).Seconds())
	}
	return st
}

// Ready reports whether every worker is running and the shared port answers
// health checks with SERVING.
func (o *Owner) Ready(ctx context.Context) bool {
	port := o.Port()
	if port == 0 || o.stopping.Load() || o.procs.Running() != o.cfg.Workers {
		return false
	}
	return probeHealth(ctx, net.JoinHostPort(DialHost(o.cfg.Host), strconv.Itoa(port)))
}

func probeHealth(ctx context.Context, target string) bool {
	cc, err := grpc.NewClient(target, grpcapi.DialOptions(grpcapi.DefaultMaxMessageBytes)...)
	if err != nil {
		return false
	}
	defer cc.Close()
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	resp, err := healthpb.NewHealthClient(cc).Check(ctx, &healthpb.HealthCheckRequest{Service: grpcapi.ServiceName})
	return err == nil && resp.GetStatus() == healthpb.HealthCheckResponse_SERVING
}
