// Package markup holds the few text operations the backend performs on board
// markup. Rendering happens in the browser.
package markup

import (
	"regexp"
	"strings"
)

// A tag runs from "<" to the next ">", or to the end of the text when unterminated.
var tagPattern = regexp.MustCompile(`<[^>]*>?`)

// Strip removes anything that looks like a tag. Narration and subtitles both
// operate on the stripped text so their character offsets agree.
func Strip(s string) string {
	if !strings.Contains(s, "<") {
		return s
	}
	return tagPattern.ReplaceAllString(s, "")
}

// IsImageReference reports whether content points at an image rather than
// holding board markup.
func IsImageReference(content string) bool {
	c := strings.TrimSpace(content)
	lc := strings.ToLower(c)
	switch {
	case strings.HasPrefix(lc, "data:image/"):
		return true
	case strings.HasPrefix(lc, "https://"), strings.HasPrefix(lc, "http://"):
		return !strings.ContainsAny(c, "<> \n")
	default:
		return false
	}
}
