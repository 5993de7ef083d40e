package pool

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"tinyserve/internal/adminapi"
	"tinyserve/internal/grpcapi"
	"tinyserve/internal/registry"
)

// gracefulStopTimeout bounds how long a stopping worker waits for in-flight calls.
const gracefulStopTimeout = 10 * time.Second

// WorkerConfig configures one pool member.
type WorkerConfig struct {
	Index int
	// Identity reported by GetPID; 0 means the OS process id.
	PID                int
	Host               string
	Port               int
	NumWorkers         int
	PluginsDir         string
	MaxMessageBytes    int
	MaxConcurrentCalls int
	// Metrics are served on MetricsPort+Index when MetricsPort > 0.
	MetricsPort int
	Queue       SignalQueue
	// Overrides the global plugin table (tests).
	Factories map[string]registry.Factory
	Logger    zerolog.Logger
	// OnReady is called once the worker reports SERVING.
	OnReady func()
}

// eventLogger publishes registry events to the worker log.
type eventLogger struct{ log zerolog.Logger }

func (p eventLogger) Publish(e registry.Event) {
	p.log.Info().Str("event", e.Name).Str("model", e.Model).Fields(e.Fields).Msg("registry event")
}

// RunWorker loads every plugin, serves the model service on the shared port
// and returns after consuming one shutdown signal (or when ctx is done).
func RunWorker(ctx context.Context, cfg WorkerConfig) error {
	if cfg.Queue == nil {
		return errors.New("worker needs a shutdown queue")
	}
	pid := cfg.PID
	if pid == 0 {
		pid = os.Getpid()
	}
	log := cfg.Logger.With().Int("worker", cfg.Index).Int("worker_pid", pid).Logger()

	reg := registry.New(registry.Config{
		Root:      cfg.PluginsDir,
		Factories: cfg.Factories,
		Logger:    log,
		Publisher: eventLogger{log: log},
	})
	defer func() {
		if err := reg.Close(); err != nil {
			log.Warn().Err(err).Msg("close models")
		}
	}()
	loaded := reg.LoadAll()
	log.Info().Strs("models", loaded).Str("root", reg.Root()).Msg("models loaded")

	svc := grpcapi.NewServer(grpcapi.Config{
		Registry:   reg,
		PID:        pid,
		NumWorkers: cfg.NumWorkers,
		Shutdown:   cfg.Queue,
		Logger:     log,
	})
	gs, hs := grpcapi.NewGRPCServer(svc, grpcapi.Options{
		MaxMessageBytes:    cfg.MaxMessageBytes,
		MaxConcurrentCalls: cfg.MaxConcurrentCalls,
	})
	lis, err := Listen(ctx, cfg.Host, cfg.Port)
	if err != nil {
		return fmt.Errorf("listen on shared port %d: %w", cfg.Port, err)
	}
	serveErr := make(chan error, 1)
	go func() { serveErr <- gs.Serve(lis) }()
	grpcapi.SetServing(hs, true)
	log.Info().Int("port", cfg.Port).Msg("worker serving")

	var metricsSrv *http.Server
	if cfg.MetricsPort > 0 {
		metricsSrv = &http.Server{
			Addr:              net.JoinHostPort("", strconv.Itoa(cfg.MetricsPort+cfg.Index)),
			Handler:           adminapi.NewMetricsRouter(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Warn().Err(err).Str("addr", metricsSrv.Addr).Msg("metrics server")
			}
		}()
	}
	if cfg.OnReady != nil {
		cfg.OnReady()
	}

	getCtx, cancelGet := context.WithCancel(ctx)
	defer cancelGet()
	sig := make(chan error, 1)
	go func() { sig <- cfg.Queue.Get(getCtx) }()

	var runErr error
	select {
	case err := <-sig:
		if err == nil {
			log.Info().Msg("shutdown signal received")
		}
	case err := <-serveErr:
		runErr = fmt.Errorf("serve: %w", err)
		cancelGet()
		if <-sig == nil {
			// Consumed after serving failed; leave it for a sibling.
			_ = cfg.Queue.Put(1)
		}
	}

	hs.Shutdown()
	stopped := make(chan struct{})
	go func() {
		gs.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(gracefulStopTimeout):
		log.Warn().Msg("graceful stop timed out")
		gs.Stop()
		<-stopped
	}
	if metricsSrv != nil {
		sctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = metricsSrv.Shutdown(sctx)
		cancel()
	}
	log.Info().Msg("worker exited")
	return runErr
}
