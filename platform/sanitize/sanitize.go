// Package sanitize cleans free text arriving from intake channels before it
// is stored on a contact.
package sanitize

import (
	"html"
	"regexp"
	"strings"
	"unicode"
)

var htmlTagRegex = regexp.MustCompile(`<[^>]*>`)

// stripMarkup removes tags, decodes entities, then strips again so encoded
// tags cannot survive the decode.
func stripMarkup(s string) string {
	s = htmlTagRegex.ReplaceAllString(s, "")
	s = html.UnescapeString(s)
	return htmlTagRegex.ReplaceAllString(s, "")
}

// Text cleans a single-line field such as a name or company: markup and
// control characters are removed and whitespace runs collapse to one space.
func Text(s string) string {
	s = stripMarkup(s)
	return strings.Join(strings.FieldsFunc(s, func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsControl(r)
	}), " ")
}

// Multiline cleans a message body. Each line is cleaned like Text and blank
// lines are kept only singly.
func Multiline(s string) string {
	lines := strings.Split(strings.ReplaceAll(stripMarkup(s), "\r\n", "\n"), "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = Text(line)
		if line == "" && (len(out) == 0 || out[len(out)-1] == "") {
			continue
		}
		out = append(out, line)
	}
	return strings.TrimRight(strings.Join(out, "\n"), "\n")
}
