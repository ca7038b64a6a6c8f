package history

import (
	"html"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var (
	lineBreaks = regexp.MustCompile(`(?i)<br[^>]*>`)
	spaceRuns  = regexp.MustCompile(` {2,}`)

	stripTags = bluemonday.StrictPolicy().AddSpaceWhenStrippingTag(true)
)

// SlimDown reduces a markup property value to plain text lines: line break
// tags become newlines, all other tags are removed and runs of spaces are
// collapsed.
func SlimDown(content string) string {
	content = lineBreaks.ReplaceAllString(content, "\n")
	content = stripTags.Sanitize(content)
	content = html.UnescapeString(content)
	content = strings.ReplaceAll(content, "&nbsp;", " ")
	content = strings.ReplaceAll(content, "\u00a0", " ")
	content = spaceRuns.ReplaceAllString(content, " ")
	return strings.TrimSpace(content)
}
