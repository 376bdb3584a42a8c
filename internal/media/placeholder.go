package media

import (
	"fmt"
	"strings"
)

var svgEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
)

// Placeholder renders a small SVG carrying a short diagnostic. It is
// served with status 200 so clients render it like any other image.
func Placeholder(message string) []byte {
	if len(message) > 64 {
		message = message[:64]
	}
	svg := fmt.Sprintf(`<svg xmlns="http://www.w3.org/2000/svg" width="400" height="400" viewBox="0 0 400 400">`+
		`<rect width="400" height="400" fill="#1a1a2e"/>`+
		`<text x="200" y="190" text-anchor="middle" fill="#8888aa" font-family="sans-serif" font-size="40">NFT</text>`+
		`<text x="200" y="240" text-anchor="middle" fill="#8888aa" font-family="sans-serif" font-size="16">%s</text>`+
		`</svg>`, svgEscaper.Replace(message))
	return []byte(svg)
}
