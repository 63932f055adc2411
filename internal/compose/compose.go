// Package compose merges the three source buffers into one self-contained
// HTML document that can be written into an isolated preview frame.
package compose

import (
	"regexp"
	"strings"

	"github.com/livetemplate/codepad"
)

// Document is a composed, renderable HTML document.
type Document string

// String returns the document markup.
func (d Document) String() string {
	return string(d)
}

// editorStylesheet matches a link to the editor's own index.css. The match is
// textual: multi-line tags and reordered attributes are left untouched.
var editorStylesheet = regexp.MustCompile(`(?i)<link\s+rel=["']stylesheet["']\s+href=["']index\.css["']\s*/?>(?:\s*</link>)?`)

// StripEditorStylesheet removes every link element that re-imports index.css.
// Removal repeats until nothing matches, so a tag assembled from the pieces
// around a removed one is stripped too and the result is idempotent.
func StripEditorStylesheet(structure string) string {
	for {
		stripped := editorStylesheet.ReplaceAllString(structure, "")
		if stripped == structure {
			return stripped
		}
		structure = stripped
	}
}

// Compose builds the preview document. It never fails: fragments that do not
// parse are passed through verbatim and surface later as runtime diagnostics.
//
// The bridge script is the first script in the head so it is installed before
// any user code runs. The behavior script follows the body markup so element
// lookups resolve against already-parsed nodes.
func Compose(structure, style, behavior string) Document {
	structure = StripEditorStylesheet(structure)

	var b strings.Builder
	b.Grow(len(documentHead) + len(BridgeScript) + len(structure) + len(style) + len(behavior) + 256)

	b.WriteString(documentHead)
	b.WriteString("<script>")
	b.WriteString(BridgeScript)
	b.WriteString("</script>\n")
	b.WriteString("<style>")
	b.WriteString(style)
	b.WriteString("</style>\n")
	b.WriteString("</head>\n<body>\n")
	b.WriteString(structure)
	b.WriteString("\n<script>")
	b.WriteString(behavior)
	b.WriteString("</script>\n")
	b.WriteString("</body>\n</html>\n")

	return Document(b.String())
}

// Sources composes a buffer snapshot.
func Sources(src codepad.Sources) Document {
	return Compose(src.Structure, src.Style, src.Behavior)
}

const documentHead = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
`
