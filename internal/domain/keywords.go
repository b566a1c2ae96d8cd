package domain

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// maxKeywords caps the number of keywords extracted from a single comment.
const maxKeywords = 20

// categoryKeywords maps each issue category to the dictionary terms that
// indicate it. Entries containing a non-letter character (spaces, "+") are
// also scanned as verbatim phrases during keyword extraction.
var categoryKeywords = map[string][]string{
	"security": {
		"security", "vulnerability", "injection", "sql injection", "xss",
		"csrf", "sanitize", "escape", "authentication", "authorization",
		"password", "secret", "token", "credential", "encrypt", "exploit",
		"unsafe", "traversal",
	},
	"performance": {
		"performance", "slow", "latency", "n+1", "query", "queries",
		"memory leak", "leak", "cache", "optimize", "inefficient",
		"allocation", "blocking", "throughput", "bottleneck",
	},
	"style": {
		"style", "naming", "convention", "format", "formatting", "indent",
		"whitespace", "lint", "readability", "idiomatic", "consistent",
	},
	"bug": {
		"bug", "error", "crash", "panic", "nil", "null", "undefined",
		"race condition", "race", "deadlock", "off-by-one", "overflow",
		"incorrect", "wrong", "broken", "fails", "exception",
	},
	"documentation": {
		"documentation", "docs", "comment", "docstring", "readme",
		"changelog", "typo", "outdated", "missing doc",
	},
	"testing": {
		"test", "testing", "coverage", "assertion", "mock", "fixture",
		"flaky", "regression", "untested",
	},
	"architecture": {
		"architecture", "coupling", "cohesion", "dependency", "layering",
		"circular dependency", "interface", "abstraction", "module",
		"boundary", "design",
	},
	"maintainability": {
		"maintainability", "duplicate", "duplication", "complexity",
		"refactor", "dead code", "unused", "magic number", "hardcoded",
		"readable", "technical debt",
	},
}

// patternKeywords maps category -> pattern type -> indicator terms.
// Pattern detection only scores patterns belonging to the detected category.
var patternKeywords = map[string]map[string][]string{
	"security": {
		"sql_injection":    {"sql injection", "sql", "injection", "parameterized", "prepared statement"},
		"xss":              {"xss", "cross-site", "scripting", "escape", "sanitize"},
		"csrf":             {"csrf", "cross-site request", "forgery"},
		"hardcoded_secret": {"hardcoded", "secret", "password", "api key", "credential"},
		"path_traversal":   {"traversal", "directory", "path manipulation"},
		"auth_bypass":      {"authentication", "authorization", "bypass", "privilege"},
	},
	"performance": {
		"n_plus_one":       {"n+1", "query", "queries", "eager", "lazy load"},
		"memory_leak":      {"memory leak", "leak", "retain", "release", "dispose"},
		"inefficient_loop": {"loop", "nested", "quadratic", "iteration"},
		"blocking_io":      {"blocking", "synchronous", "async", "await"},
		"unbounded_cache":  {"cache", "unbounded", "eviction", "grow"},
	},
	"style": {
		"naming_convention": {"naming", "convention", "camelcase", "snake_case", "rename"},
		"formatting":        {"format", "formatting", "indent", "whitespace"},
		"unused_code":       {"unused", "unreferenced", "remove"},
		"magic_number":      {"magic number", "constant", "literal"},
	},
	"bug": {
		"null_reference":  {"nil", "null", "undefined", "nullpointer", "dereference"},
		"off_by_one":      {"off-by-one", "boundary", "index", "fence"},
		"race_condition":  {"race condition", "race", "concurrent", "mutex", "atomic"},
		"error_handling":  {"error", "unhandled", "ignored", "swallow", "propagate"},
		"type_mismatch":   {"type", "cast", "conversion", "mismatch"},
	},
	"documentation": {
		"missing_docs":  {"missing", "undocumented", "docstring", "comment"},
		"outdated_docs": {"outdated", "stale", "obsolete"},
		"typo":          {"typo", "spelling", "misspelled"},
	},
	"testing": {
		"missing_test":   {"missing", "untested", "coverage", "add test"},
		"flaky_test":     {"flaky", "intermittent", "timing"},
		"weak_assertion": {"assertion", "assert", "weak", "tautological"},
	},
	"architecture": {
		"tight_coupling":      {"coupling", "coupled", "depend"},
		"circular_dependency": {"circular dependency", "circular", "cycle", "import cycle"},
		"layering_violation":  {"layer", "layering", "boundary", "violation"},
		"god_object":          {"god object", "too many", "responsibility"},
	},
	"maintainability": {
		"duplication":   {"duplicate", "duplication", "copy-paste", "repeated"},
		"complexity":    {"complexity", "complex", "cyclomatic", "simplify"},
		"long_function": {"long function", "too long", "split", "extract"},
		"dead_code":     {"dead code", "unreachable", "unused"},
	},
}

// stopWords are discarded during keyword extraction. Covers English and
// Japanese function words plus the lowercased normalization placeholders,
// which would otherwise survive as underscore "identifiers".
var stopWords = map[string]bool{
	// English
	"the": true, "and": true, "for": true, "are": true, "was": true,
	"were": true, "this": true, "that": true, "with": true, "from": true,
	"have": true, "has": true, "had": true, "not": true, "but": true,
	"can": true, "could": true, "should": true, "would": true, "will": true,
	"may": true, "might": true, "must": true, "been": true, "being": true,
	"when": true, "where": true, "which": true, "what": true, "who": true,
	"how": true, "why": true, "all": true, "any": true, "some": true,
	"there": true, "here": true, "then": true, "than": true, "into": true,
	"also": true, "its": true, "it's": true, "you": true, "your": true,
	"please": true, "consider": true, "instead": true, "because": true,
	"about": true, "only": true, "very": true, "more": true, "most": true,
	"such": true, "each": true, "other": true, "does": true, "doing": true,
	// Japanese
	"これ": true, "それ": true, "あれ": true, "この": true, "その": true,
	"あの": true, "ここ": true, "する": true, "します": true, "ます": true,
	"です": true, "ある": true, "いる": true, "こと": true, "もの": true,
	"ため": true, "よう": true, "という": true, "ください": true,
	"してください": true, "について": true, "により": true, "ので": true,
	"など": true, "また": true, "および": true,
	// Normalization placeholders after tokenization
	"code_block": true, "inline_code": true, "url": true, "path": true,
	"line": true, "num": true,
}

// Derived lookup tables, built once at init. The pre-union of all category
// and pattern keywords avoids re-walking the nested maps on every call.
var (
	categoryNames  []string
	patternNames   map[string][]string
	allKeywords    []string
	phraseKeywords []string
)

func init() {
	seen := make(map[string]bool)
	addKeyword := func(kw string) {
		if seen[kw] {
			return
		}
		seen[kw] = true
		allKeywords = append(allKeywords, kw)
		if isPhrase(kw) {
			phraseKeywords = append(phraseKeywords, kw)
		}
	}

	for cat, kws := range categoryKeywords {
		categoryNames = append(categoryNames, cat)
		for _, kw := range kws {
			addKeyword(kw)
		}
	}
	sort.Strings(categoryNames)

	patternNames = make(map[string][]string, len(patternKeywords))
	for cat, patterns := range patternKeywords {
		for pat, kws := range patterns {
			patternNames[cat] = append(patternNames[cat], pat)
			for _, kw := range kws {
				addKeyword(kw)
			}
		}
		sort.Strings(patternNames[cat])
	}
	sort.Strings(allKeywords)
	sort.Strings(phraseKeywords)
}

// isPhrase reports whether a dictionary entry must be matched as a verbatim
// substring rather than as a single token ("sql injection", "n+1").
func isPhrase(kw string) bool {
	for _, r := range kw {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

// ExtractKeywords tokenizes normalized comment text and retains tokens that
// look like identifiers or fuzzy-match the domain dictionary, plus any
// multi-word dictionary phrase present verbatim. The result preserves
// first-seen order, contains no duplicates, and holds at most maxKeywords
// entries.
func ExtractKeywords(normalized string) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(kw string) {
		if len(out) >= maxKeywords || seen[kw] {
			return
		}
		seen[kw] = true
		out = append(out, kw)
	}

	for _, tok := range tokenize(normalized) {
		if utf8.RuneCountInString(tok) <= 2 {
			continue
		}
		// Placeholders are inserted uppercase ([URL], [CODE_BLOCK]) after
		// lowercasing, so the stop-word check must fold case.
		if stopWords[strings.ToLower(tok)] {
			continue
		}
		if isIdentifierLike(tok) || fuzzyMatchesDictionary(tok) {
			add(tok)
		}
	}

	for _, phrase := range phraseKeywords {
		if strings.Contains(normalized, phrase) {
			add(phrase)
		}
	}

	return out
}

// DetectCategory scores every known category against the normalized text and
// extracted keywords. A caller-supplied category always wins. Categories are
// scored in alphabetical order so ties resolve deterministically; a best
// score of zero falls back to "general".
func DetectCategory(normalized string, keywords []string, provided string) string {
	if provided != "" {
		return provided
	}

	best := "general"
	bestScore := 0
	for _, cat := range categoryNames {
		score := scoreTerms(normalized, keywords, categoryKeywords[cat])
		if score > bestScore {
			best = cat
			bestScore = score
		}
	}
	return best
}

// DetectPatternType runs the same scoring as DetectCategory against the
// pattern dictionary for the given category. A caller-supplied pattern type
// always wins; a best score of zero falls back to "<category>_general".
func DetectPatternType(normalized string, keywords []string, category, provided string) string {
	if provided != "" {
		return provided
	}

	fallback := category + "_general"
	patterns, ok := patternKeywords[category]
	if !ok {
		return fallback
	}

	best := fallback
	bestScore := 0
	for _, pat := range patternNames[category] {
		score := scoreTerms(normalized, keywords, patterns[pat])
		if score > bestScore {
			best = pat
			bestScore = score
		}
	}
	return best
}

// scoreTerms implements the shared weighting: +2 for a dictionary term
// longer than five runes found in the text, +1 for a shorter term found,
// +1 for each extracted keyword that fuzzy-matches a dictionary term.
func scoreTerms(normalized string, keywords, dict []string) int {
	score := 0
	for _, kw := range dict {
		if strings.Contains(normalized, kw) {
			if utf8.RuneCountInString(kw) > 5 {
				score += 2
			} else {
				score++
			}
		}
	}
	for _, extracted := range keywords {
		for _, kw := range dict {
			if fuzzyMatch(extracted, kw) {
				score++
				break
			}
		}
	}
	return score
}

// tokenize splits normalized text on whitespace and punctuation, keeping
// underscores so identifier tokens survive intact.
func tokenize(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})
}

// isIdentifierLike reports whether a token resembles a code identifier:
// it contains an underscore or an uppercase letter after the first rune.
func isIdentifierLike(tok string) bool {
	if strings.Contains(tok, "_") {
		return true
	}
	first := true
	for _, r := range tok {
		if !first && unicode.IsUpper(r) {
			return true
		}
		first = false
	}
	return false
}

func fuzzyMatch(a, b string) bool {
	return strings.Contains(a, b) || strings.Contains(b, a)
}

func fuzzyMatchesDictionary(tok string) bool {
	for _, kw := range allKeywords {
		if fuzzyMatch(tok, kw) {
			return true
		}
	}
	return false
}
