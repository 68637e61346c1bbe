package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/matzehuels/chartcn/pkg/chart"
	"github.com/matzehuels/chartcn/pkg/errors"
	"github.com/matzehuels/chartcn/pkg/pipeline"
)

// stdio is the file argument naming standard input or output.
const stdio = "-"

// renderOptions holds flags for the render command.
type renderOptions struct {
	id      string
	output  string
	format  string
	width   int
	height  int
	noStore bool
}

// renderCommand creates the render command.
func (c *CLI) renderCommand() *cobra.Command {
	opts := renderOptions{}

	cmd := &cobra.Command{
		Use:   "render [file.json]",
		Short: "Render a chart request to PNG, SVG or PDF",
		Long: `Render a chart request file (or "-" for stdin), or a saved configuration
with --id.

Artifacts are cached by request fingerprint in the configured store (the
local file store by default), so rendering the same request again does not
start a browser.`,
		Example: `  # Render a request file
  chartcn render bar.json -o bar.png

  # Render a saved configuration as SVG at a new size
  chartcn render --id 3kTMd92hQ0aZx1 -f svg --width 1200 --height 600`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := renderInput(cmd, args, opts.id)
			if err != nil {
				return err
			}
			overrides, err := overridesFromFlags(cmd, opts)
			if err != nil {
				return err
			}
			return c.runRender(cmd.Context(), cmd, in, overrides, opts)
		},
	}

	cmd.Flags().StringVar(&opts.id, "id", "", "render the saved configuration with this id")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", `output file, "-" for stdout (default chart.<format>)`)
	cmd.Flags().StringVarP(&opts.format, "format", "f", "", "output format: png, svg or pdf")
	cmd.Flags().IntVar(&opts.width, "width", 0, "width in pixels")
	cmd.Flags().IntVar(&opts.height, "height", 0, "height in pixels")
	cmd.Flags().BoolVar(&opts.noStore, "no-store", false, "do not read or write the durable store")

	return cmd
}

func (c *CLI) runRender(ctx context.Context, cmd *cobra.Command, in pipeline.Input, o chart.Overrides, opts renderOptions) error {
	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}
	rt, err := c.newRuntime(ctx, cfg, runtimeOptions{oneShot: true, noStore: opts.noStore})
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), rt.closeTimeout())
		defer cancel()
		if err := rt.Close(closeCtx); err != nil {
			c.Logger.Warn("shutdown incomplete", "err", err)
		}
	}()

	req, err := rt.runner.Resolve(ctx, in, o)
	if err != nil {
		return err
	}

	spinner := newSpinnerWithContext(ctx, fmt.Sprintf("Rendering %s %dx%d...", req.Format, req.Width, req.Height))
	spinner.Start()
	res, err := rt.runner.Render(ctx, req)
	if err != nil {
		spinner.StopWithError("Render failed")
		return err
	}
	spinner.Stop()

	output := opts.output
	if output == "" {
		output = "chart." + req.Format.Extension()
	}
	if output == stdio {
		_, err := cmd.OutOrStdout().Write(res.Artifact.Data)
		return err
	}
	if err := os.WriteFile(output, res.Artifact.Data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", output, err)
	}

	out := newReport(cmd.OutOrStdout())
	out.ok("Rendered %s chart", req.Type)
	out.artifact(output, res)
	return nil
}

// renderInput builds the pipeline input from either a file argument or --id.
func renderInput(cmd *cobra.Command, args []string, id string) (pipeline.Input, error) {
	switch {
	case id != "" && len(args) > 0:
		return pipeline.Input{}, errors.New(errors.ErrCodeValidation, "give either a request file or --id, not both")
	case id != "":
		return pipeline.Input{ID: id}, nil
	case len(args) == 0:
		return pipeline.Input{}, errors.New(errors.ErrCodeValidation, "a request file or --id is required")
	}
	req, err := readRequest(cmd.InOrStdin(), args[0])
	if err != nil {
		return pipeline.Input{}, err
	}
	return pipeline.Input{Request: req}, nil
}

// readRequest decodes a request from path, or from stdin when path is "-".
func readRequest(stdin io.Reader, path string) (*chart.Request, error) {
	if path == stdio {
		return chart.Decode(stdin)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open request: %w", err)
	}
	defer f.Close()
	return chart.Decode(f)
}

// overridesFromFlags collects the format and size flags the user set.
func overridesFromFlags(cmd *cobra.Command, opts renderOptions) (chart.Overrides, error) {
	var o chart.Overrides
	flags := cmd.Flags()
	if flags.Changed("format") {
		f := chart.Format(opts.format)
		o.Format = &f
	}
	if flags.Changed("width") {
		o.Width = &opts.width
	}
	if flags.Changed("height") {
		o.Height = &opts.height
	}
	return o, o.Validate()
}
