package cli

import (
	"context"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/matzehuels/chartcn/pkg/chart"
)

// saveCommand creates the save command.
func (c *CLI) saveCommand() *cobra.Command {
	var noStore bool

	cmd := &cobra.Command{
		Use:   "save <file.json>",
		Short: "Save a chart request and print its id",
		Long: `Save a chart request (or "-" for stdin) to the configured store and print
the id under which it can be rendered with "chartcn render --id" or
GET /chart/render/{id}.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := readRequest(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}
			if err := req.ValidateAndSetDefaults(); err != nil {
				return err
			}
			return c.runSave(cmd.Context(), cmd.OutOrStdout(), req, noStore)
		},
	}

	cmd.Flags().BoolVar(&noStore, "no-store", false, "keep the configuration in memory only")

	return cmd
}

func (c *CLI) runSave(ctx context.Context, w io.Writer, req *chart.Request, noStore bool) error {
	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}
	rt, err := c.newRuntime(ctx, cfg, runtimeOptions{oneShot: true, noStore: noStore})
	if err != nil {
		return err
	}

	saved, err := rt.runner.Save(ctx, req)

	// Close waits for the durable write.
	closeCtx, cancel := context.WithTimeout(context.Background(), rt.closeTimeout())
	defer cancel()
	closeErr := rt.Close(closeCtx)
	if err != nil {
		return err
	}
	if closeErr != nil {
		return closeErr
	}

	out := newReport(w)
	out.ok("Saved %s chart", req.Type)
	out.field("id", styleAccent.Render(saved.ID))
	if !rt.runner.Configs.Persistent() {
		out.field("expires", saved.ExpiresAt(rt.runner.Configs.TTL()).Format(time.RFC3339))
		out.warn("No durable store: the id is only valid in this process")
	}
	out.nextStep("Render it", appName+" render --id "+saved.ID)
	return nil
}
