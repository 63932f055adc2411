package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/livetemplate/codepad"
	"github.com/livetemplate/codepad/internal/config"
	"github.com/livetemplate/codepad/internal/preview"
	"github.com/livetemplate/codepad/internal/relay"
	"github.com/livetemplate/codepad/internal/server"
	"github.com/livetemplate/codepad/internal/store"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// surfaceFactory opens the surface check renders into.
type surfaceFactory func(ctx context.Context, cfg *config.Config, r *relay.Relay, logger *zap.Logger) (preview.Surface, func(), error)

func headlessSurface(ctx context.Context, cfg *config.Config, r *relay.Relay, logger *zap.Logger) (preview.Surface, func(), error) {
	h, err := preview.NewHeadless(ctx, preview.HeadlessOptions{
		ChromeURL: cfg.Preview.ChromeURL,
		Timeout:   cfg.Preview.GetTimeout(),
	}, r, logger)
	if err != nil {
		return nil, nil, err
	}
	return h, h.Close, nil
}

// errConsoleErrors is returned by check --fail-on-error.
type errConsoleErrors struct {
	count int
}

func (e errConsoleErrors) Error() string {
	return fmt.Sprintf("preview reported %d error(s)", e.count)
}

func newCheckCommand(c *cli) *cobra.Command {
	var (
		files       bufferFiles
		wait        time.Duration
		failOnError bool
		chromeURL   string
	)

	cmd := &cobra.Command{
		Use:   "check [directory]",
		Short: "Render the buffers in headless Chrome and print the console",
		Long: `Renders the persisted buffers (or the files given with --html, --css and
--js) once in headless Chrome and prints every console message the preview
emits within the wait window. Nothing is written back to the store.`,
		Example: `  codepad check
  codepad check --js app.js --fail-on-error
  codepad check --chrome-url http://localhost:9222`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := c.loadConfig(args)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("chrome-url") {
				cfg.Preview.ChromeURL = chromeURL
			}
			return c.check(cmd, cfg, files, wait, failOnError)
		},
	}

	files.register(cmd)
	cmd.Flags().DurationVar(&wait, "wait", 500*time.Millisecond, "how long to collect diagnostics after rendering")
	cmd.Flags().BoolVar(&failOnError, "fail-on-error", false, "exit non-zero when the preview reports an error")
	cmd.Flags().StringVar(&chromeURL, "chrome-url", "", "remote Chrome debugging URL (default: launch local Chrome)")
	return cmd
}

func (c *cli) check(cmd *cobra.Command, cfg *config.Config, files bufferFiles, wait time.Duration, failOnError bool) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	// Read the persisted buffers, then work on a throwaway copy.
	persisted, err := server.NewPipeline(ctx, cfg, c.logger)
	if err != nil {
		return err
	}
	snapshot := persisted.Workspace.Snapshot()
	if err := persisted.Close(); err != nil {
		c.logger.Warn("failed to close store", zap.Error(err))
	}

	p := server.NewPipelineWithStore(ctx, cfg, store.NewMemoryStore(), c.logger)
	defer p.Close()
	for _, kind := range codepad.Kinds {
		p.Workspace.Buffer(kind).SetValue(snapshot.Get(kind))
	}
	if err := files.apply(p.Workspace); err != nil {
		return err
	}

	open := c.surface
	if open == nil {
		open = headlessSurface
	}
	surface, closeSurface, err := open(ctx, cfg, p.Relay, c.logger.Named("headless"))
	if err != nil {
		return err
	}
	defer closeSurface()
	detach := p.Host.Attach("headless", surface)
	defer detach()

	rev := p.Start(ctx)

	select {
	case <-time.After(wait):
	case <-ctx.Done():
		return ctx.Err()
	}

	out := cmd.OutOrStdout()
	entries := p.Relay.Panel().Entries()
	errorCount := 0
	for _, msg := range entries {
		if msg.Severity == relay.SeverityError {
			errorCount++
		}
		fmt.Fprintf(out, "[%s] %s\n", msg.Severity, msg.Text)
	}

	icon := "✅"
	if errorCount > 0 {
		icon = "❌"
	}
	fmt.Fprintf(out, "%s revision %d: %d message(s), %d error(s)\n", icon, rev.ID, len(entries), errorCount)

	if failOnError && errorCount > 0 {
		return errConsoleErrors{count: errorCount}
	}
	return nil
}
