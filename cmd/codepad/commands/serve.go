package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/livetemplate/codepad/internal/config"
	"github.com/livetemplate/codepad/internal/preview"
	"github.com/livetemplate/codepad/internal/server"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// serveFlags are command-line overrides for codepad.yaml.
type serveFlags struct {
	port      int
	host      string
	store     string
	watch     bool
	debounce  string
	headless  bool
	chromeURL string
	keepStale bool
}

func newServeCommand(c *cli) *cobra.Command {
	var f serveFlags

	cmd := &cobra.Command{
		Use:   "serve [directory]",
		Short: "Start the codepad server",
		Long: `Starts the editor, preview and console at http://localhost:8080.

With --watch the buffers are mirrored to index.html, style.css and script.js
in the directory, and edits made to those files in another editor show up
in the browser.`,
		Example: `  codepad serve                  # Serve current directory
  codepad serve ./scratch -w     # Mirror buffers to ./scratch and watch it
  codepad serve --store redis    # Persist buffers in Redis (store.url in codepad.yaml)
  codepad serve --headless       # Capture diagnostics in headless Chrome`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, dir, err := c.loadConfig(args)
			if err != nil {
				return err
			}
			if err := f.apply(cmd, cfg, dir); err != nil {
				return err
			}
			return c.serve(cmd, cfg, dir)
		},
	}

	flags := cmd.Flags()
	flags.IntVarP(&f.port, "port", "p", 0, "port to listen on (default: 8080)")
	flags.StringVar(&f.host, "host", "", "host to bind (default: localhost)")
	flags.StringVar(&f.store, "store", "", "buffer store: memory, sqlite, redis, postgres or dir")
	flags.BoolVarP(&f.watch, "watch", "w", false, "mirror buffers to files in the directory and watch them")
	flags.StringVar(&f.debounce, "debounce", "", "coalesce edits arriving within this window (e.g. 150ms)")
	flags.BoolVar(&f.headless, "headless", false, "render in headless Chrome and take diagnostics from there")
	flags.StringVar(&f.chromeURL, "chrome-url", "", "remote Chrome debugging URL for --headless")
	flags.BoolVar(&f.keepStale, "keep-stale", false, "keep diagnostics from discarded revisions")
	return cmd
}

// apply overrides cfg with the flags that were set explicitly.
func (f serveFlags) apply(cmd *cobra.Command, cfg *config.Config, dir string) error {
	changed := cmd.Flags().Changed

	if changed("port") {
		cfg.Server.Port = f.port
	}
	if changed("host") {
		cfg.Server.Host = f.host
	}
	if changed("store") {
		cfg.Store.Driver = f.store
	}
	if f.watch {
		cfg.Workspace.Watch = true
		if cfg.Workspace.Dir == "" {
			cfg.Workspace.Dir = dir
		}
		cfg.Store.Driver = "dir"
		cfg.Store.Path = cfg.Workspace.Dir
	}
	if changed("debounce") {
		cfg.Rebuild.Debounce = f.debounce
	}
	if f.headless {
		cfg.Preview.Mode = "headless"
	}
	if changed("chrome-url") {
		cfg.Preview.ChromeURL = f.chromeURL
	}
	if f.keepStale {
		cfg.Console.KeepStale = true
	}
	return cfg.Validate()
}

func (c *cli) serve(cmd *cobra.Command, cfg *config.Config, dir string) error {
	out := cmd.OutOrStdout()
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p, err := server.NewPipeline(ctx, cfg, c.logger)
	if err != nil {
		return err
	}
	defer p.Close()

	if cfg.Preview.IsHeadless() {
		h, err := preview.NewHeadless(ctx, preview.HeadlessOptions{
			ChromeURL: cfg.Preview.ChromeURL,
			Timeout:   cfg.Preview.GetTimeout(),
		}, p.Relay, c.logger.Named("headless"))
		if err != nil {
			return err
		}
		defer h.Close()
		detach := p.Host.Attach("headless", h)
		defer detach()
	}

	srv := server.New(cfg, p, c.logger)
	defer srv.Close()

	p.Start(ctx)

	if cfg.Workspace.Watch && cfg.Workspace.IsEnabled() {
		if err := srv.EnableWatch(cfg.Workspace.Dir); err != nil {
			return fmt.Errorf("failed to enable watch mode: %w", err)
		}
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(ctx),
		ReadHeaderTimeout: 10 * time.Second,
	}

	fmt.Fprintf(out, "📝 codepad %s\n\n", c.version)
	fmt.Fprintf(out, "Serving: %s\n", dir)
	fmt.Fprintf(out, "Store:   %s\n", cfg.Store.Driver)
	if cfg.Workspace.Watch {
		fmt.Fprintf(out, "👀 Watching %s for edits to index.html, style.css and script.js\n", cfg.Workspace.Dir)
	}
	if cfg.Preview.IsHeadless() {
		fmt.Fprintf(out, "🧪 Diagnostics captured in headless Chrome\n")
	}
	fmt.Fprintf(out, "\n🌐 Server running at http://%s\n", addr)
	fmt.Fprintf(out, "🔌 REST API at /api/buffers/{kind}, /api/console, /api/rebuild\n")
	fmt.Fprintf(out, "Press Ctrl+C to stop\n\n")

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	c.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		c.logger.Warn("shutdown incomplete", zap.Error(err))
	}
	return nil
}
