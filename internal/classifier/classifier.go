// Package classifier turns a natural-language question into an intent, a
// normalized term list, and optional language/file filters. Classification
// is rule-based, deterministic, and side-effect free; ambiguous questions
// fall back to semantic search.
package classifier

import (
	"regexp"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/scooter-lacroix/leindex/internal/semantic"
)

// Intent is the recognized question class.
type Intent int

const (
	IntentSemantic Intent = iota
	IntentHowWorks
	IntentWhereHandled
	IntentBottlenecks
	IntentText
)

func (i Intent) String() string {
	switch i {
	case IntentHowWorks:
		return "how_works"
	case IntentWhereHandled:
		return "where_handled"
	case IntentBottlenecks:
		return "bottlenecks"
	case IntentText:
		return "text"
	default:
		return "semantic"
	}
}

// Filters narrow a classified query.
type Filters struct {
	Language string
	FileGlob string
}

// Classification is the full result for one question.
type Classification struct {
	Intent  Intent
	Terms   []string
	Filters Filters
	// Quoted holds the literal substring when the question contained one.
	Quoted string
}

// Classifier applies the rule table. Construct once, use from any goroutine.
type Classifier struct {
	stopWords map[string]bool
}

// New builds a classifier with the given stop-word list.
func New(stopWords []string) *Classifier {
	stops := make(map[string]bool, len(stopWords))
	for _, w := range stopWords {
		stops[strings.ToLower(w)] = true
	}
	return &Classifier{stopWords: stops}
}

var (
	howWorksRe     = regexp.MustCompile(`(?i)\b(how\s+(does|do|is|are)?\s*.*\bworks?\b|explain|walk\s+me\s+through|show\s+me\s+how)`)
	whereHandledRe = regexp.MustCompile(`(?i)\b(where\s+is\b|where\s+are\b|\bhandled\b|\bused\b|who\s+calls\b|callers?\s+of\b|what\s+calls\b)`)
	bottlenecksRe  = regexp.MustCompile(`(?i)\b(bottlenecks?|hot\s*spots?|slowest|most\s+complex|complexity\s+hot)`)
	quotedRe       = regexp.MustCompile(`"([^"]+)"|'([^']+)'` + "|`([^`]+)`")
	globRe         = regexp.MustCompile(`(?:^|\s)((?:[\w./-]*[*?\[][\w./*?\[\]-]*)|(?:[\w-]+/[\w./*-]+))(?:\s|$)`)
	languageRe     = regexp.MustCompile(`(?i)\bin\s+(python|go|golang|javascript|typescript|java|rust|ruby|php|lua|scala|bash|c\+\+|c#|csharp|c)\b`)
)

var languageAliases = map[string]string{
	"golang": "go",
	"c++":    "cpp",
	"c#":     "csharp",
}

// Classify applies the rules in priority order: explicit literals beat
// structural phrasing beats complexity phrasing; anything left is semantic.
func (c *Classifier) Classify(question string) Classification {
	out := Classification{Intent: IntentSemantic}
	q := strings.TrimSpace(question)
	if q == "" {
		return out
	}

	if m := quotedRe.FindStringSubmatch(q); m != nil {
		for _, g := range m[1:] {
			if g != "" {
				out.Quoted = g
				break
			}
		}
		out.Intent = IntentText
	}
	if m := globRe.FindStringSubmatch(q); m != nil && strings.ContainsAny(m[1], "*?[") {
		out.Filters.FileGlob = m[1]
		if out.Intent == IntentSemantic {
			out.Intent = IntentText
		}
	}
	if m := languageRe.FindStringSubmatch(q); m != nil {
		lang := strings.ToLower(m[1])
		if alias, ok := languageAliases[lang]; ok {
			lang = alias
		}
		out.Filters.Language = lang
	}

	if out.Intent == IntentSemantic {
		switch {
		case bottlenecksRe.MatchString(q):
			out.Intent = IntentBottlenecks
		case whereHandledRe.MatchString(q):
			out.Intent = IntentWhereHandled
		case howWorksRe.MatchString(q):
			out.Intent = IntentHowWorks
		}
	}

	out.Terms = c.terms(q)
	return out
}

// terms normalizes, drops stop words, and de-duplicates preserving first
// occurrence order.
func (c *Classifier) terms(q string) []string {
	seen := make(map[string]bool)
	var terms []string
	for _, field := range strings.Fields(q) {
		tok := semantic.NormalizeToken(field)
		if tok == "" || c.stopWords[tok] || seen[tok] {
			continue
		}
		seen[tok] = true
		terms = append(terms, tok)
	}
	return terms
}

// ValidGlob reports whether pattern is a well-formed doublestar glob;
// classify never emits an invalid one as a filter.
func ValidGlob(pattern string) bool {
	return doublestar.ValidatePattern(pattern)
}
