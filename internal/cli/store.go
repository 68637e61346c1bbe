package cli

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matzehuels/chartcn/pkg/storage/file"
)

// storeCommand creates the file store management command.
func (c *CLI) storeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "store",
		Short: "Manage the local file store",
	}

	cmd.AddCommand(c.storeClearCommand())
	cmd.AddCommand(c.storePathCommand())

	return cmd
}

// storeClearCommand creates the "store clear" subcommand.
func (c *CLI) storeClearCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove all saved configurations and cached artifacts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := c.storeDir()
			if err != nil {
				return err
			}

			if _, err := os.Stat(dir); os.IsNotExist(err) {
				newReport(cmd.OutOrStdout()).info("Store is empty")
				return nil
			}

			count, err := countObjects(dir)
			if err != nil {
				return err
			}
			s, err := file.New(dir)
			if err != nil {
				return err
			}
			if err := s.Clear(); err != nil {
				return err
			}

			out := newReport(cmd.OutOrStdout())
			out.ok("Cleared %d stored objects", count)
			out.detail("Directory: %s", dir)
			return nil
		},
	}
}

// storePathCommand creates the "store path" subcommand.
func (c *CLI) storePathCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the file store directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := c.storeDir()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), dir)
			return nil
		},
	}
}

// storeDir returns the configured file store directory or the default one.
func (c *CLI) storeDir() (string, error) {
	cfg, err := c.loadConfig()
	if err != nil {
		return "", err
	}
	if cfg.Storage.Dir != "" {
		return cfg.Storage.Dir, nil
	}
	dir, err := file.DefaultDir()
	if err != nil {
		return "", fmt.Errorf("get store dir: %w", err)
	}
	return dir, nil
}

// countObjects counts stored objects below dir, ignoring sidecar files.
func countObjects(dir string) (int, error) {
	count := 0
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // Skip unreadable entries
		}
		if !d.IsDir() && !strings.HasSuffix(path, ".meta") && !strings.HasPrefix(d.Name(), ".") {
			count++
		}
		return nil
	})
	return count, err
}
