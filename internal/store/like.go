package store

import (
	"regexp"
	"strings"
)

// Like reports whether s matches a SQL LIKE pattern with SQLite semantics:
// % matches any run, _ matches one character, ASCII letters fold case.
func Like(pattern, s string) bool {
	return likeRegexp(pattern).MatchString(asciiLower(s))
}

func likeRegexp(pattern string) *regexp.Regexp {
	var b strings.Builder
	b.WriteString(`(?s)^`)
	for _, r := range asciiLower(pattern) {
		switch r {
		case '%':
			b.WriteString(`.*`)
		case '_':
			b.WriteString(`.`)
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString(`$`)
	return regexp.MustCompile(b.String())
}

func asciiLower(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= 'A' && r <= 'Z' {
			return r + ('a' - 'A')
		}
		return r
	}, s)
}
