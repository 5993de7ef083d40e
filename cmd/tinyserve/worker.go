package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"tinyserve/internal/grpcapi"
	"tinyserve/internal/logging"
	"tinyserve/internal/pool"
)

// newWorkerCmd is the pool member entry point. The owner starts it with
// pool.WorkerArgs and the shutdown pipe on fds 3 and 4.
func newWorkerCmd(root *rootOptions) *cobra.Command {
	var wc pool.WorkerConfig
	cmd := &cobra.Command{
		Use:    "worker",
		Short:  "Run one pool member (started by serve)",
		Hidden: true,
		Args:   cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			q, err := pool.InheritedPipeQueue()
			if err != nil {
				return err
			}
			defer q.Close()
			log := logging.New(root.logLevel, os.Stderr)
			grpcapi.SetLogger(log)
			wc.Queue = q
			wc.Logger = log
			// Interrupts reach the whole process group; the owner turns them
			// into shutdown signals.
			signal.Ignore(os.Interrupt)
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM)
			defer stop()
			return pool.RunWorker(ctx, wc)
		},
	}
	bindWorkerFlags(cmd, &wc)
	return cmd
}

func bindWorkerFlags(cmd *cobra.Command, wc *pool.WorkerConfig) {
	fl := cmd.Flags()
	fl.IntVar(&wc.Index, "index", 0, "worker index")
	fl.StringVar(&wc.Host, "host", "", "bind host")
	fl.IntVar(&wc.Port, "port", 0, "shared port")
	fl.IntVar(&wc.NumWorkers, "workers", 1, "pool size")
	fl.StringVar(&wc.PluginsDir, "plugins-dir", "", "plugin root directory")
	fl.IntVar(&wc.MetricsPort, "metrics-port", 0, "metrics base port")
	fl.IntVar(&wc.MaxConcurrentCalls, "max-concurrent-calls", 0, "concurrent calls")
	fl.IntVar(&wc.MaxMessageBytes, "max-message-bytes", 0, "per-message size limit")
}
