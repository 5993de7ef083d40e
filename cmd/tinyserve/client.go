package main

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"tinyserve/internal/client"
	"tinyserve/internal/config"
	"tinyserve/internal/logging"
	"tinyserve/internal/tensor"
)

type clientFlags struct {
	target         string
	model          string
	connectTimeout time.Duration
	args           string
}

func newClientCmd(root *rootOptions) *cobra.Command {
	f := &clientFlags{}
	cmd := &cobra.Command{
		Use:   "client",
		Short: "Talk to a running pool",
	}
	pf := cmd.PersistentFlags()
	pf.StringVar(&f.target, "target", config.DefaultTarget, "pool address host:port")
	pf.StringVar(&f.model, "model", "", "model name")
	pf.DurationVar(&f.connectTimeout, "connect-timeout", config.DefaultConnectTimeoutSeconds*time.Second, "per-handshake connect timeout")
	pf.StringVar(&f.args, "args", "", "JSON object passed to the model")

	// with dials the pool, runs fn and prints what it returns as JSON.
	with := func(fn func(ctx context.Context, c *client.Client, args []string) (any, error)) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, root, map[string]func(*config.Config){
				"target":          func(c *config.Config) { c.Target = f.target },
				"connect-timeout": func(c *config.Config) { c.ConnectTimeoutSeconds = int(f.connectTimeout.Seconds()) },
			})
			if err != nil {
				return err
			}
			if err := cfg.ValidateClient(); err != nil {
				return err
			}
			ctx := cmd.Context()
			c, err := client.Dial(ctx, f.model, cfg.Target, client.Config{
				Timeout:         time.Duration(cfg.ConnectTimeoutSeconds) * time.Second,
				MaxMessageBytes: cfg.MaxMessageBytes,
				Logger:          logging.NewConsole(cfg.LogLevel, cmd.ErrOrStderr()),
			})
			if err != nil {
				return err
			}
			defer c.Close()
			out, err := fn(ctx, c, args)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), out)
		}
	}
	modelArgs := func() (map[string]any, error) {
		if f.args == "" {
			return nil, nil
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(f.args), &m); err != nil {
			return nil, fmt.Errorf("--args: %w", err)
		}
		return m, nil
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "models",
		Short: "List the models under the plugin root",
		Args:  cobra.NoArgs,
		RunE: with(func(ctx context.Context, c *client.Client, _ []string) (any, error) {
			return c.ListModels(ctx)
		}),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "shape",
		Short: "Print the canonical input shape of --model",
		Args:  cobra.NoArgs,
		RunE: with(func(ctx context.Context, c *client.Client, _ []string) (any, error) {
			return c.InputShape(ctx)
		}),
	})
	cmd.AddCommand(&cobra.Command{
		Use:     "text TEXT...",
		Short:   "Run --model on one text, or on a batch when several are given",
		Example: `tinyserve client --model example_text text "hello" "world"`,
		Args:    cobra.MinimumNArgs(1),
		RunE: with(func(ctx context.Context, c *client.Client, texts []string) (any, error) {
			margs, err := modelArgs()
			if err != nil {
				return nil, err
			}
			if len(texts) == 1 {
				return c.RunText(ctx, texts[0], margs)
			}
			return c.RunBatchText(ctx, texts, margs)
		}),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "image FILE...",
		Short: "Run --model on one PNG/JPEG image, or on a batch when several are given",
		Args:  cobra.MinimumNArgs(1),
		RunE: with(func(ctx context.Context, c *client.Client, files []string) (any, error) {
			margs, err := modelArgs()
			if err != nil {
				return nil, err
			}
			imgs := make([]*tensor.Array, 0, len(files))
			for _, path := range files {
				a, err := readImage(path)
				if err != nil {
					return nil, err
				}
				imgs = append(imgs, a)
			}
			if len(imgs) == 1 {
				return c.RunImage(ctx, imgs[0], margs)
			}
			return c.RunBatchImage(ctx, imgs, margs)
		}),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "health",
		Short: "Report which workers are serving",
		Args:  cobra.NoArgs,
		RunE: with(func(ctx context.Context, c *client.Client, _ []string) (any, error) {
			return c.Health(ctx), nil
		}),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "stop",
		Short: "Stop every worker of the pool",
		Args:  cobra.NoArgs,
		RunE: with(func(ctx context.Context, c *client.Client, _ []string) (any, error) {
			if err := c.StopServer(ctx); err != nil {
				return nil, err
			}
			return map[string]bool{"stopping": true}, nil
		}),
	})
	var all bool
	reload := &cobra.Command{
		Use:   "reload",
		Short: "Reload --model in one worker, or in all of them with --all",
		Args:  cobra.NoArgs,
		RunE: with(func(ctx context.Context, c *client.Client, _ []string) (any, error) {
			if all {
				return c.ReloadAll(ctx)
			}
			ok, err := c.ReloadModel(ctx)
			return map[string]bool{"ok": ok}, err
		}),
	}
	reload.Flags().BoolVar(&all, "all", false, "reload in every discovered worker")
	cmd.AddCommand(reload)
	return cmd
}

func readImage(path string) (*tensor.Array, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fh.Close()
	img, _, err := image.Decode(fh)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return tensor.FromImage(img, 3)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
