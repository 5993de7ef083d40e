package pool

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"tinyserve/internal/config"
	"tinyserve/internal/registry"
	"tinyserve/pkg/types"
)

// LocalOptions configures StartLocal.
type LocalOptions struct {
	// Overrides the global plugin table.
	Factories map[string]registry.Factory
	// Worker i reports BasePID+i from GetPID. Defaults to os.Getpid()*100.
	BasePID int
	Logger  zerolog.Logger
}

// LocalPool runs the workers as goroutines of the calling process. They
// still bind the shared port independently, so the kernel balances
// connections exactly as it does for a process pool.
type LocalPool struct {
	port    int
	size    int
	pids    []int
	started time.Time
	queue   *MemQueue
	procs   *procManager
	res     *Reservation
}

// StartLocal starts cfg.Workers in-process workers and returns once all of
// them report SERVING.
func StartLocal(ctx context.Context, cfg config.Config, opts LocalOptions) (*LocalPool, error) {
	res, err := ReservePort(cfg.Host, cfg.Port)
	if err != nil {
		return nil, err
	}
	base := opts.BasePID
	if base == 0 {
		base = os.Getpid() * 100
	}
	p := &LocalPool{
		port:    res.Port,
		size:    cfg.Workers,
		started: time.Now(),
		queue:   NewMemQueue(),
		procs:   newProcManager(),
		res:     res,
	}
	ready := make(chan struct{}, cfg.Workers)
	exited := make(chan error, cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		wctx, cancel := context.WithCancel(context.Background())
		wc := WorkerConfig{
			Index:              i,
			PID:                base + i,
			Host:               cfg.Host,
			Port:               res.Port,
			NumWorkers:         cfg.Workers,
			PluginsDir:         cfg.PluginsDir,
			MaxMessageBytes:    cfg.MaxMessageBytes,
			MaxConcurrentCalls: cfg.MaxConcurrentCalls,
			Queue:              p.queue,
			Factories:          opts.Factories,
			Logger:             opts.Logger,
			OnReady:            func() { ready <- struct{}{} },
		}
		p.pids = append(p.pids, wc.PID)
		p.procs.addFunc(i, wc.PID, cancel, func() error {
			defer cancel()
			err := RunWorker(wctx, wc)
			exited <- err
			return err
		})
	}

	for n := 0; n < cfg.Workers; n++ {
		select {
		case <-ready:
		case err := <-exited:
			_ = p.Close()
			return nil, fmt.Errorf("worker exited during startup: %w", err)
		case <-ctx.Done():
			_ = p.Close()
			return nil, ctx.Err()
		case <-time.After(30 * time.Second):
			_ = p.Close()
			return nil, errors.New("workers did not become ready")
		}
	}
	return p, nil
}

// Port returns the shared port.
func (p *LocalPool) Port() int { return p.port }

// PIDs returns the worker identities.
func (p *LocalPool) PIDs() []int { return append([]int(nil), p.pids...) }

// Queue exposes the shutdown queue.
func (p *LocalPool) Queue() *MemQueue { return p.queue }

// Stop enqueues one shutdown signal per worker.
func (p *LocalPool) Stop() error { return p.queue.Put(p.size) }

// Wait blocks until every worker has exited.
func (p *LocalPool) Wait() error { return p.procs.Wait() }

// Status mirrors Owner.Status.
func (p *LocalPool) Status() types.PoolStatus {
	return types.PoolStatus{
		Port:          p.port,
		Size:          p.size,
		Stopping:      p.queue.Pending() > 0 || p.procs.Running() < p.size,
		Workers:       p.procs.Status(),
		UptimeSeconds: int64(time.Since(p.started).Seconds()),
	}
}

// Close cancels any worker still running, waits for all of them and
// releases the port.
func (p *LocalPool) Close() error {
	p.procs.KillAll()
	err := p.procs.Wait()
	if cerr := p.res.Close(); err == nil {
		err = cerr
	}
	return err
}
