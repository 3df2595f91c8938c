package cmd

import (
	"strings"

	"github.com/charmbracelet/glamour"
)

// renderMarkdown converts Markdown to styled terminal output. Falls
// back to the raw text when the renderer cannot be built, e.g. when
// stdout is not a terminal worth styling.
func renderMarkdown(markdown string) string {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return markdown
	}

	rendered, err := r.Render(markdown)
	if err != nil {
		return markdown
	}
	return strings.TrimSuffix(rendered, "\n")
}
