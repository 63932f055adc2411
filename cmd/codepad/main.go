// Command codepad serves a live-coding sandbox: HTML, CSS and JS editors
// with an isolated preview and a console panel.
package main

import (
	"fmt"
	"os"

	"github.com/livetemplate/codepad/cmd/codepad/commands"
)

const version = "0.1.0-dev"

func main() {
	if err := commands.NewRootCommand(version).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
