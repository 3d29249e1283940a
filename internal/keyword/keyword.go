// Package keyword compiles taxonomy and urgency keywords into whole-word
// matchers.
package keyword

import (
	"regexp"
	"strings"
)

// Pattern returns a case-sensitive regexp that matches kw as a whole word.
// A word boundary is asserted only on an edge where kw begins or ends with a
// word character, so keywords such as "c++", "c#" and ".net" still match.
// kw is expected to be lower-cased and trimmed already.
func Pattern(kw string) *regexp.Regexp {
	var b strings.Builder
	if isWordByte(kw[0]) {
		b.WriteString(`\b`)
	}
	b.WriteString(regexp.QuoteMeta(kw))
	if isWordByte(kw[len(kw)-1]) {
		b.WriteString(`\b`)
	}
	return regexp.MustCompile(b.String())
}

// Normalize lower-cases and trims kw. It reports false for an empty keyword.
func Normalize(kw string) (string, bool) {
	kw = strings.ToLower(strings.TrimSpace(kw))
	return kw, kw != ""
}

// isWordByte mirrors the ASCII word class used by \b.
func isWordByte(c byte) bool {
	return c == '_' || ('0' <= c && c <= '9') || ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z')
}
