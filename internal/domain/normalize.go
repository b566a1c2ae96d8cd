package domain

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// Placeholder tokens substituted during normalization.
const (
	placeholderCodeBlock  = "[CODE_BLOCK]"
	placeholderInlineCode = "[INLINE_CODE]"
	placeholderURL        = "[URL]"
	placeholderPath       = "[PATH]"
	placeholderLine       = "[LINE]"
	placeholderNumber     = "[NUM]"
)

var (
	fencedCodeRe = regexp.MustCompile("(?s)```.*?```")
	inlineCodeRe = regexp.MustCompile("`[^`]*`")
	urlRe        = regexp.MustCompile(`https?://[^\s]+`)
	pathRe       = regexp.MustCompile(`(?:/[a-z0-9_][a-z0-9_.-]*)+`)
	lineRefRe    = regexp.MustCompile(`\bline \d+\b`)
	numberRe     = regexp.MustCompile(`\b\d+\b`)

	// Unicode-aware lowercasing; NFKC folds full-width digits and latin
	// (common in Japanese review comments) to their ASCII forms first.
	lowerCaser = cases.Lower(language.Und)
)

// NormalizeContent reduces a raw comment body to a canonical form suitable
// for hashing and keyword extraction. Substitution order matters: code,
// URL, path and line references are replaced before the generic number
// substitution so their digits are not double-mangled.
func NormalizeContent(body string) string {
	s := norm.NFKC.String(body)
	s = lowerCaser.String(s)
	s = strings.Join(strings.Fields(s), " ")

	s = fencedCodeRe.ReplaceAllString(s, placeholderCodeBlock)
	s = inlineCodeRe.ReplaceAllString(s, placeholderInlineCode)
	s = urlRe.ReplaceAllString(s, placeholderURL)
	s = pathRe.ReplaceAllString(s, placeholderPath)
	s = lineRefRe.ReplaceAllString(s, placeholderLine)
	s = replaceNumbers(s)

	return s
}

// replaceNumbers substitutes bare numbers with [NUM], preserving two
// domain-significant numeric patterns: the literal "n+1" token and numbers
// immediately followed by the word "query"/"queries".
func replaceNumbers(s string) string {
	matches := numberRe.FindAllStringIndex(s, -1)
	if len(matches) == 0 {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))
	prev := 0
	for _, m := range matches {
		start, end := m[0], m[1]
		b.WriteString(s[prev:start])
		if partOfNPlusOne(s, start) || followedByQuery(s, end) {
			b.WriteString(s[start:end])
		} else {
			b.WriteString(placeholderNumber)
		}
		prev = end
	}
	b.WriteString(s[prev:])
	return b.String()
}

func partOfNPlusOne(s string, start int) bool {
	return start >= 2 && s[start-2:start] == "n+"
}

func followedByQuery(s string, end int) bool {
	rest := strings.TrimLeft(s[end:], " ")
	for _, word := range []string{"queries", "query"} {
		if strings.HasPrefix(rest, word) {
			tail := rest[len(word):]
			// Whole word only: "querying" does not count.
			if tail == "" {
				return true
			}
			r, _ := utf8.DecodeRuneInString(tail)
			if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
				return true
			}
		}
	}
	return false
}
