package ingest

import (
	"html"
	"regexp"
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"
)

var (
	// Block-level boundaries become line breaks before tags are stripped.
	htmlBlockRE = regexp.MustCompile(`(?i)<\s*(br|/p|/div|/li|/tr|/h[1-6]|/section|/article|/blockquote|/pre|/table)\b[^>]*>`)
	htmlCellRE  = regexp.MustCompile(`(?i)<\s*/t[dh]\s*>`)
	spaceRunRE  = regexp.MustCompile(`[ \t\f\v]+`)
	blankRunRE  = regexp.MustCompile(`\n\s*\n+`)

	stripPolicy     *bluemonday.Policy
	stripPolicyOnce sync.Once
)

// HTMLImporter handles .html and .htm files.
type HTMLImporter struct{}

// CanHandle returns true for HTML file extensions.
func (h *HTMLImporter) CanHandle(name string) bool {
	return hasExt(name, ".html", ".htm", ".xhtml")
}

// Text strips all markup, dropping script and style content, and keeps block
// boundaries as line breaks.
func (h *HTMLImporter) Text(data []byte) (string, error) {
	return htmlToText(decodeText(data)), nil
}

func htmlToText(src string) string {
	stripPolicyOnce.Do(func() { stripPolicy = bluemonday.StrictPolicy() })

	src = htmlBlockRE.ReplaceAllString(src, "\n$0")
	src = htmlCellRE.ReplaceAllString(src, " $0")
	text := html.UnescapeString(stripPolicy.Sanitize(src))

	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(spaceRunRE.ReplaceAllString(l, " "))
	}
	text = strings.Join(lines, "\n")
	return strings.TrimSpace(blankRunRE.ReplaceAllString(text, "\n\n"))
}
