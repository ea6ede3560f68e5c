package extract

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var blankRuns = regexp.MustCompile(`\n{3,}`)

// Normalize makes extracted text safe to chunk and store: invalid UTF-8 and
// control characters other than newline and tab are dropped, line endings
// become \n, trailing spaces are trimmed from each line, runs of blank
// lines collapse to one, and the result is trimmed.
func Normalize(s string) string {
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "")
	}
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")

	s = strings.Map(func(r rune) rune {
		switch {
		case r == '\n' || r == '\t':
			return r
		case r == '\u00a0':
			return ' '
		case unicode.IsControl(r), r == '\uFEFF':
			return -1
		}
		return r
	}, s)

	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRightFunc(l, unicode.IsSpace)
	}
	s = strings.Join(lines, "\n")
	s = blankRuns.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
