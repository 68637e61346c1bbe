// Package cli implements the chartcn command-line interface.
//
// The CLI assembles the same render core as the HTTP service (storage,
// caches, writeback queue, page pool and runner) from the configuration
// file and environment, and exposes it as cobra commands.
//
// # Commands
//
// The main commands are:
//   - serve: Run the HTTP render service
//   - render: Render a request file or a saved configuration to a file
//   - save: Save a request and print its id
//   - store: Manage the local file store
//
// # Logging
//
// All commands support --verbose (-v) for debug-level logging, which also
// installs logging observability hooks in serve. --log-format selects text,
// json or logfmt output.
//
// # Example
//
//	c := cli.New(os.Stderr, cli.LogInfo)
//	if err := c.RootCommand().ExecuteContext(ctx); err != nil {
//	    os.Exit(1)
//	}
package cli

import (
	"io"
	"time"

	"github.com/charmbracelet/log"
)

// newLogger creates a new logger with timestamp formatting.
// The logger writes to w and filters messages at the specified level.
// Timestamps are formatted as "HH:MM:SS.ms" (e.g., "14:32:01.45").
func newLogger(w io.Writer, level log.Level) *log.Logger {
	return log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      "15:04:05.00",
		Level:           level,
	})
}

// progress tracks the start time of an operation and logs completion with elapsed duration.
type progress struct {
	logger *log.Logger
	start  time.Time
}

func newProgress(l *log.Logger) *progress {
	return &progress{logger: l, start: time.Now()}
}

// done logs msg along with the elapsed time, e.g. "render core ready (1.234s)".
func (p *progress) done(msg string) {
	p.logger.Infof("%s (%s)", msg, time.Since(p.start).Round(time.Millisecond))
}
