package extract

import (
	"context"
	"regexp"
	"strings"
)

func extractPlain(_ context.Context, data []byte) (string, error) {
	return string(data), nil
}

var (
	mdFence      = regexp.MustCompile("(?m)^\\s*(```|~~~).*$")
	mdImage      = regexp.MustCompile(`!\[([^\]]*)\]\([^)]*\)`)
	mdLink       = regexp.MustCompile(`\[([^\]]+)\]\([^)]*\)`)
	mdRefLink    = regexp.MustCompile(`(?m)^\s*\[[^\]]+\]:\s+\S+.*$`)
	mdHeading    = regexp.MustCompile(`(?m)^\s{0,3}#{1,6}\s+`)
	mdBlockquote = regexp.MustCompile(`(?m)^\s{0,3}>\s?`)
	mdListMarker = regexp.MustCompile(`(?m)^(\s*)([-*+]|\d+[.)])\s+`)
	mdRule       = regexp.MustCompile(`(?m)^\s{0,3}([-*_]\s*){3,}$`)
	mdEmphasis   = regexp.MustCompile(`(\*\*|__|\*|_|~~)(\S(?:.*?\S)?)(\*\*|__|\*|_|~~)`)
	mdInlineCode = regexp.MustCompile("`([^`]+)`")
	mdHTMLTag    = regexp.MustCompile(`</?[a-zA-Z][^>]*>`)
	mdTableRule  = regexp.MustCompile(`(?m)^\s*\|?\s*:?-{3,}:?\s*(\|\s*:?-{3,}:?\s*)*\|?\s*$`)
)

// extractMarkdown renders markdown as the text a reader would see: markup
// is removed while code block contents, link text and image alt text stay.
func extractMarkdown(_ context.Context, data []byte) (string, error) {
	s := string(data)
	s = mdFence.ReplaceAllString(s, "")
	s = mdRefLink.ReplaceAllString(s, "")
	s = mdImage.ReplaceAllString(s, "$1")
	s = mdLink.ReplaceAllString(s, "$1")
	s = mdTableRule.ReplaceAllString(s, "")
	s = mdRule.ReplaceAllString(s, "")
	s = mdHeading.ReplaceAllString(s, "")
	s = mdBlockquote.ReplaceAllString(s, "")
	s = mdListMarker.ReplaceAllString(s, "$1")
	s = mdInlineCode.ReplaceAllString(s, "$1")
	s = mdEmphasis.ReplaceAllString(s, "$2")
	s = mdHTMLTag.ReplaceAllString(s, "")

	lines := strings.Split(s, "\n")
	for i, l := range lines {
		if strings.HasPrefix(strings.TrimSpace(l), "|") {
			cells := strings.Split(strings.Trim(strings.TrimSpace(l), "|"), "|")
			for j := range cells {
				cells[j] = strings.TrimSpace(cells[j])
			}
			lines[i] = strings.Join(cells, " | ")
		}
	}
	return strings.Join(lines, "\n"), nil
}
