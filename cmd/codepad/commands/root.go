// Package commands implements the codepad CLI.
package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/livetemplate/codepad/internal/config"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// cli holds state shared by every subcommand.
type cli struct {
	version    string
	verbose    bool
	configPath string
	logger     *zap.Logger

	// surface overrides the headless Chrome surface used by check.
	surface surfaceFactory
}

// NewRootCommand builds the codepad command tree.
func NewRootCommand(version string) *cobra.Command {
	return newRootCommand(&cli{version: version})
}

func newRootCommand(c *cli) *cobra.Command {
	c.logger = zap.NewNop()

	root := &cobra.Command{
		Use:   "codepad",
		Short: "codepad - live HTML/CSS/JS sandbox",
		Long: `codepad serves a three-pane editor (HTML, CSS, JS) with an isolated
live preview and a console panel that shows what the preview logs.

Every edit rebuilds the preview from scratch and clears the console.
Buffers are persisted, so a restarted server picks up where you left off.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			config.SetVerbose(c.verbose)

			cfg := zap.NewProductionConfig()
			if c.verbose {
				cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
			}
			logger, err := cfg.Build()
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			c.logger = logger
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = c.logger.Sync()
		},
	}

	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "enable debug logging")
	root.PersistentFlags().StringVarP(&c.configPath, "config", "c", "", "config file (default: <dir>/codepad.yaml)")

	root.AddCommand(
		newServeCommand(c),
		newComposeCommand(c),
		newCheckCommand(c),
		newVersionCommand(c),
	)
	return root
}

// loadConfig resolves the working directory from args and loads its
// configuration, or the file given with --config.
func (c *cli) loadConfig(args []string) (*config.Config, string, error) {
	dir := "."
	if len(args) > 0 {
		dir = args[0]
	}

	info, err := os.Stat(dir)
	if err != nil {
		return nil, "", fmt.Errorf("directory does not exist: %s", dir)
	}
	if !info.IsDir() {
		return nil, "", fmt.Errorf("not a directory: %s", dir)
	}

	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, "", fmt.Errorf("failed to get absolute path: %w", err)
	}

	var cfg *config.Config
	if c.configPath != "" {
		cfg, err = config.Load(c.configPath)
	} else {
		cfg, err = config.LoadFromDir(absDir)
	}
	if err != nil {
		return nil, "", fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, absDir, nil
}

func newVersionCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "codepad version %s\n", c.version)
		},
	}
}
