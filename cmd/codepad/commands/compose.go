package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/livetemplate/codepad"
	"github.com/livetemplate/codepad/internal/compose"
	"github.com/livetemplate/codepad/internal/server"
	"github.com/spf13/cobra"
)

// bufferFiles are per-kind file overrides shared by compose and check.
type bufferFiles struct {
	html, css, js string
}

func (b *bufferFiles) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&b.html, "html", "", "read the HTML buffer from this file")
	cmd.Flags().StringVar(&b.css, "css", "", "read the CSS buffer from this file")
	cmd.Flags().StringVar(&b.js, "js", "", "read the JS buffer from this file")
}

// apply loads each given file into its buffer.
func (b *bufferFiles) apply(ws *codepad.Workspace) error {
	for kind, path := range map[codepad.Kind]string{
		codepad.Structure: b.html,
		codepad.Style:     b.css,
		codepad.Behavior:  b.js,
	} {
		if path == "" {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s buffer: %w", kind, err)
		}
		ws.Buffer(kind).SetValue(string(data))
	}
	return nil
}

func newComposeCommand(c *cli) *cobra.Command {
	var files bufferFiles

	cmd := &cobra.Command{
		Use:   "compose [directory]",
		Short: "Print the composed preview document",
		Long: `Prints the document the preview would render for the persisted buffers,
with any buffer replaced by the file given for it.`,
		Example: `  codepad compose                         # Persisted buffers
  codepad compose --html page.html --js app.js > out.html`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := c.loadConfig(args)
			if err != nil {
				return err
			}

			p, err := server.NewPipeline(cmd.Context(), cfg, c.logger)
			if err != nil {
				return err
			}
			defer p.Close()

			if err := files.apply(p.Workspace); err != nil {
				return err
			}

			doc := compose.Sources(p.Workspace.Snapshot())
			_, err = io.WriteString(cmd.OutOrStdout(), doc.String())
			return err
		},
	}
	files.register(cmd)
	return cmd
}
