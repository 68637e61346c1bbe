// Package cli implements the chartcn command-line interface.
package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/matzehuels/chartcn/pkg/buildinfo"
	"github.com/matzehuels/chartcn/pkg/config"
)

// =============================================================================
// Constants
// =============================================================================

const (
	// appName is the application name used for directories and display.
	appName = "chartcn"

	// envConfig names a configuration file when --config is not given.
	envConfig = "CHARTCN_CONFIG"
)

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// Log output formats accepted by --log-format.
const (
	formatText   = "text"
	formatJSON   = "json"
	formatLogfmt = "logfmt"
)

// =============================================================================
// CLI - Central CLI State
// =============================================================================

// CLI holds shared state for all commands.
type CLI struct {
	Logger *log.Logger

	configPath string
	logFormat  string
	verbose    bool
}

// New creates a new CLI instance with a default logger.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{
		Logger:    newLogger(w, level),
		logFormat: formatText,
	}
}

// SetLogLevel updates the logger's level. A debug level set here wins over
// the level from the configuration.
func (c *CLI) SetLogLevel(level log.Level) {
	c.verbose = level <= log.DebugLevel
	c.Logger.SetLevel(level)
}

// SetLogFormat switches the logger between text, json and logfmt output.
func (c *CLI) SetLogFormat(format string) error {
	switch format {
	case formatText, "":
		c.Logger.SetFormatter(log.TextFormatter)
	case formatJSON:
		c.Logger.SetFormatter(log.JSONFormatter)
	case formatLogfmt:
		c.Logger.SetFormatter(log.LogfmtFormatter)
	default:
		return fmt.Errorf("invalid log format: %q (must be one of: text, json, logfmt)", format)
	}
	return nil
}

// RootCommand creates the root cobra command with all subcommands registered.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          appName,
		Short:        "chartcn renders declarative charts to PNG, SVG and PDF",
		Long:         `chartcn renders declarative chart requests with a pool of headless browser pages, caches every artifact by request fingerprint and stores named chart configurations for later rendering.`,
		Version:      buildinfo.Version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.SetLogFormat(c.logFormat)
		},
	}

	root.SetVersionTemplate(buildinfo.Template())

	root.PersistentFlags().StringVar(&c.configPath, "config", "", "path to a TOML configuration file (env "+envConfig+")")
	root.PersistentFlags().StringVar(&c.logFormat, "log-format", formatText, "log output format: text, json or logfmt")

	root.AddCommand(c.serveCommand())
	root.AddCommand(c.renderCommand())
	root.AddCommand(c.saveCommand())
	root.AddCommand(c.storeCommand())
	root.AddCommand(c.versionCommand())

	return root
}

// versionCommand prints build information.
func (c *CLI) versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), buildinfo.String())
		},
	}
}

// =============================================================================
// Configuration
// =============================================================================

// loadConfig reads the configuration and applies its log level unless
// --verbose was given.
func (c *CLI) loadConfig() (*config.Config, error) {
	path := c.configPath
	if path == "" {
		path = os.Getenv(envConfig)
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if !c.verbose {
		c.Logger.SetLevel(cfg.Level())
	}
	c.Logger.Debug("loaded config", "path", path, "config", cfg.String())
	return cfg, nil
}
