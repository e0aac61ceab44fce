// Package sanitize cleans free text submitted through public forms.
// This is part of the platform layer and contains no business logic.
package sanitize

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	htmlTagRegex    = regexp.MustCompile(`<[^>]*>`)
	spaceRunRegex   = regexp.MustCompile(`[ \t]+`)
	blankLinesRegex = regexp.MustCompile(`\n{3,}`)
)

var entityReplacer = strings.NewReplacer(
	"&lt;", "<",
	"&gt;", ">",
	"&amp;", "&",
	"&quot;", "\"",
	"&#39;", "'",
	"&nbsp;", " ",
)

// StripHTML removes tags, decodes common entities and strips again so
// encoded tags do not survive.
func StripHTML(s string) string {
	result := htmlTagRegex.ReplaceAllString(s, "")
	result = entityReplacer.Replace(result)
	return htmlTagRegex.ReplaceAllString(result, "")
}

// Text cleans multi-line input such as lead notes. Line breaks are kept,
// runs of spaces collapse and at most one blank line separates paragraphs.
// The result is cut to maxRunes when maxRunes > 0.
func Text(s string, maxRunes int) string {
	result := strings.ReplaceAll(StripHTML(s), "\r\n", "\n")
	result = spaceRunRegex.ReplaceAllString(result, " ")
	result = blankLinesRegex.ReplaceAllString(result, "\n\n")
	return truncate(strings.TrimSpace(result), maxRunes)
}

// Line cleans single-line input such as names and address parts.
func Line(s string, maxRunes int) string {
	result := strings.Join(strings.Fields(StripHTML(s)), " ")
	return truncate(result, maxRunes)
}

func truncate(s string, maxRunes int) string {
	if maxRunes <= 0 || utf8.RuneCountInString(s) <= maxRunes {
		return s
	}
	return strings.TrimSpace(string([]rune(s)[:maxRunes]))
}
