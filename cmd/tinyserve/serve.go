package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"tinyserve/internal/adminapi"
	"tinyserve/internal/config"
	"tinyserve/internal/grpcapi"
	"tinyserve/internal/logging"
	"tinyserve/internal/pool"
)

type serveFlags struct {
	host               string
	port               int
	workers            int
	pluginsDir         string
	adminAddr          string
	metricsPort        int
	maxConcurrentCalls int
	maxMessageBytes    int
	shutdownGrace      time.Duration
	corsEnabled        bool
	corsOrigins        string
}

func newServeCmd(root *rootOptions) *cobra.Command {
	f := &serveFlags{}
	cmd := &cobra.Command{
		Use:     "serve",
		Short:   "Start the worker pool",
		Example: "tinyserve serve --workers 4 --plugins-dir ./models --admin-addr 127.0.0.1:8080",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, root, f.setters())
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg)
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&f.host, "host", config.DefaultHost, "bind host")
	fl.IntVar(&f.port, "port", config.DefaultPort, "shared port (0 picks a free one)")
	fl.IntVar(&f.workers, "workers", config.DefaultWorkers(), "number of worker processes")
	fl.StringVar(&f.pluginsDir, "plugins-dir", config.DefaultPluginsDir, "plugin root directory")
	fl.StringVar(&f.adminAddr, "admin-addr", "", "admin HTTP address, empty disables")
	fl.IntVar(&f.metricsPort, "metrics-port", 0, "worker i serves /metrics on this port + i, 0 disables")
	fl.IntVar(&f.maxConcurrentCalls, "max-concurrent-calls", 0, "calls one worker handles at once, 0 is unlimited")
	fl.IntVar(&f.maxMessageBytes, "max-message-bytes", config.DefaultMaxMessageBytes, "per-message size limit")
	fl.DurationVar(&f.shutdownGrace, "shutdown-grace", config.DefaultShutdownGraceSeconds*time.Second, "wait for workers before killing them")
	fl.BoolVar(&f.corsEnabled, "cors-enabled", false, "enable CORS on the admin API")
	fl.StringVar(&f.corsOrigins, "cors-origins", "", "comma-separated allowed CORS origins")
	return cmd
}

func (f *serveFlags) setters() map[string]func(*config.Config) {
	return map[string]func(*config.Config){
		"host":                 func(c *config.Config) { c.Host = f.host },
		"port":                 func(c *config.Config) { c.Port = f.port },
		"workers":              func(c *config.Config) { c.Workers = f.workers },
		"plugins-dir":          func(c *config.Config) { c.PluginsDir = f.pluginsDir },
		"admin-addr":           func(c *config.Config) { c.AdminAddr = f.adminAddr },
		"metrics-port":         func(c *config.Config) { c.MetricsPort = f.metricsPort },
		"max-concurrent-calls": func(c *config.Config) { c.MaxConcurrentCalls = f.maxConcurrentCalls },
		"max-message-bytes":    func(c *config.Config) { c.MaxMessageBytes = f.maxMessageBytes },
		"shutdown-grace":       func(c *config.Config) { c.ShutdownGraceSeconds = int(f.shutdownGrace.Seconds()) },
		"cors-enabled":         func(c *config.Config) { c.CORSEnabled = f.corsEnabled },
		"cors-origins":         func(c *config.Config) { c.CORSOrigins = splitCSV(f.corsOrigins) },
	}
}

func runServe(ctx context.Context, cfg config.Config) error {
	log := logging.New(cfg.LogLevel, os.Stderr)
	grpcapi.SetLogger(log)
	adminapi.SetLogger(log)

	owner := pool.NewOwner(pool.OwnerConfig{Config: cfg, Logger: log})

	var admin *http.Server
	if cfg.AdminAddr != "" {
		adminapi.SetCORSOptions(cfg.CORSEnabled, cfg.CORSOrigins, nil, nil)
		if err := prometheus.Register(adminapi.NewPoolCollector(owner)); err != nil {
			log.Warn().Err(err).Msg("register pool collector")
		}
		admin = &http.Server{
			Addr:              cfg.AdminAddr,
			Handler:           adminapi.NewMux(owner),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			log.Info().Str("addr", cfg.AdminAddr).Msg("admin API listening")
			if err := admin.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("admin API")
			}
		}()
	}

	err := owner.Run(ctx)
	if admin != nil {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if serr := admin.Shutdown(sctx); serr != nil {
			log.Warn().Err(serr).Msg("admin API shutdown")
		}
	}
	if err != nil {
		log.Error().Err(err).Msg("pool exited with error")
		return err
	}
	log.Info().Msg("pool stopped")
	return nil
}
