package cli

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/matzehuels/chartcn/pkg/config"
	"github.com/matzehuels/chartcn/pkg/observability"
	"github.com/matzehuels/chartcn/pkg/server"
)

// serveOptions holds flags for the serve command.
type serveOptions struct {
	host string
	port int
}

// serveCommand creates the serve command.
func (c *CLI) serveCommand() *cobra.Command {
	opts := serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP render service",
		Long: `Run the HTTP render service.

The service keeps a pool of browser pages warm and answers:

  POST /chart               render the JSON request in the body
  GET  /chart?data=...      render from query parameters
  POST /chart/save          save a request, returns its id
  GET  /chart/render/{id}   render a saved request
  GET  /health              pool, cache and store state

SIGINT or SIGTERM stops accepting connections, waits for in-flight renders
and pending store writes, then closes the browser.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("host") {
				cfg.Server.Host = opts.host
			}
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = opts.port
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return c.serve(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVar(&opts.host, "host", "", "listen host (overrides config)")
	cmd.Flags().IntVarP(&opts.port, "port", "p", 0, "listen port (overrides config)")

	return cmd
}

func (c *CLI) serve(ctx context.Context, cfg *config.Config) error {
	if c.verbose {
		observability.NewLogHooks(c.Logger).Install()
		defer observability.Reset()
	}

	prog := newProgress(c.Logger)
	rt, err := c.newRuntime(ctx, cfg, runtimeOptions{})
	if err != nil {
		return err
	}
	prog.done("render core ready")
	c.Logger.Info("starting", "storage", cfg.Storage.Driver, "pool_max", cfg.Pool.Max, "cache_entries", cfg.Cache.MaxEntries)

	srv, err := server.New(server.Options{
		Runner:  rt.runner,
		BaseURL: cfg.Server.BaseURL,
		Logger:  c.Logger,
	})
	if err != nil {
		_ = rt.Close(context.Background())
		return err
	}

	serveErr := srv.ListenAndServe(ctx, cfg.Addr(), cfg.Server.ShutdownTimeout)

	closeCtx, cancel := context.WithTimeout(context.Background(), rt.closeTimeout())
	defer cancel()
	closeErr := rt.Close(closeCtx)
	if closeErr == nil {
		c.Logger.Info("stopped")
	}
	return errors.Join(serveErr, closeErr)
}
