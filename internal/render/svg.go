package render

import (
	"fmt"
	"html"
)

const (
	charWidth = 18
	height    = 48
	fontSize  = 28
	padding   = 16
)

// SVGRenderer renders a question statement as a standalone SVG document
// so clients display an image rather than selectable text.
type SVGRenderer struct{}

// NewSVGRenderer creates a renderer.
func NewSVGRenderer() *SVGRenderer {
	return &SVGRenderer{}
}

// Render wraps the statement in an SVG with a centered text node. The
// statement is escaped before embedding.
func (r *SVGRenderer) Render(statement string) string {
	width := len(statement)*charWidth + 2*padding
	return fmt.Sprintf(
		`<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">`+
			`<text x="50%%" y="50%%" dominant-baseline="central" text-anchor="middle" `+
			`font-family="monospace" font-size="%d">%s</text></svg>`,
		width, height, width, height, fontSize, html.EscapeString(statement),
	)
}
