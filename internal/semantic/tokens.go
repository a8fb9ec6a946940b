// Package semantic normalizes identifiers and query words into comparable
// token sets: name splitting across casing conventions, Unicode NFC
// normalization, stemming, and a small abbreviation table. The search
// engine's text score is built on these primitives.
package semantic

import (
	"strings"
	"unicode"

	"github.com/surgebase/porter2"
	"golang.org/x/text/unicode/norm"
)

// SplitName decomposes an identifier into lower-cased words, handling
// camelCase, PascalCase, snake_case, kebab-case, dotted paths and digit
// boundaries. "parseHTTPRequest" -> ["parse", "http", "request"].
func SplitName(name string) []string {
	if name == "" {
		return nil
	}
	runes := []rune(name)
	var words []string
	var cur []rune

	flush := func() {
		if len(cur) > 0 {
			words = append(words, strings.ToLower(string(cur)))
			cur = cur[:0]
		}
	}

	for i := 0; i < len(runes); i++ {
		ch := runes[i]
		switch {
		case ch == '_' || ch == '-' || ch == '.' || ch == '/' || ch == ' ':
			flush()
		case unicode.IsDigit(ch):
			if len(cur) > 0 && !unicode.IsDigit(cur[len(cur)-1]) {
				flush()
			}
			cur = append(cur, ch)
		case unicode.IsUpper(ch):
			prevLower := i > 0 && unicode.IsLower(runes[i-1])
			prevDigit := len(cur) > 0 && unicode.IsDigit(cur[len(cur)-1])
			// An acronym run ends where the next rune is lower:
			// "HTTPServer" splits before the final 'S'.
			acronymEnd := i > 0 && unicode.IsUpper(runes[i-1]) &&
				i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if prevLower || prevDigit || acronymEnd {
				flush()
			}
			cur = append(cur, ch)
		default:
			if len(cur) > 0 && unicode.IsDigit(cur[len(cur)-1]) {
				flush()
			}
			cur = append(cur, ch)
		}
	}
	flush()
	return words
}

// punctuation kept inside tokens; everything else non-alphanumeric is
// stripped by NormalizeToken.
func keepRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// NormalizeToken lower-cases, NFC-normalizes and strips punctuation from a
// single token. Returns "" when nothing survives.
func NormalizeToken(tok string) string {
	tok = norm.NFC.String(tok)
	var b strings.Builder
	for _, r := range tok {
		if keepRune(r) {
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}

// Stem reduces a word to its porter2 stem. Short words pass through; the
// stemmer mangles them more than it helps.
const stemMinLength = 3

func Stem(word string) string {
	if len(word) < stemMinLength {
		return word
	}
	return porter2.Stem(word)
}

// abbreviations maps common code shorthand to the word a query is likely to
// use. Both directions are applied during expansion.
var abbreviations = map[string]string{
	"cfg":   "config",
	"conf":  "config",
	"ctx":   "context",
	"impl":  "implementation",
	"init":  "initialize",
	"auth":  "authenticate",
	"db":    "database",
	"msg":   "message",
	"req":   "request",
	"resp":  "response",
	"res":   "result",
	"err":   "error",
	"fn":    "function",
	"func":  "function",
	"idx":   "index",
	"num":   "number",
	"ptr":   "pointer",
	"str":   "string",
	"val":   "value",
	"var":   "variable",
	"dir":   "directory",
	"env":   "environment",
	"param": "parameter",
	"args":  "arguments",
	"mgr":   "manager",
	"svc":   "service",
	"repo":  "repository",
	"util":  "utility",
	"calc":  "calculate",
	"del":   "delete",
	"rm":    "remove",
	"recv":  "receive",
	"addr":  "address",
	"buf":   "buffer",
	"len":   "length",
	"max":   "maximum",
	"min":   "minimum",
	"tmp":   "temporary",
	"pos":   "position",
	"prev":  "previous",
	"cur":   "current",
	"src":   "source",
	"dst":   "destination",
	"dest":  "destination",
}

var expansions = func() map[string][]string {
	rev := make(map[string][]string, len(abbreviations))
	for short, long := range abbreviations {
		rev[long] = append(rev[long], short)
	}
	return rev
}()

// ExpandToken returns tok plus its abbreviation expansions/contractions.
func ExpandToken(tok string) []string {
	out := []string{tok}
	if long, ok := abbreviations[tok]; ok {
		out = append(out, long)
	}
	if shorts, ok := expansions[tok]; ok {
		out = append(out, shorts...)
	}
	return out
}

// TokenSet builds the comparable token set for an identifier or free text:
// split, normalize, drop empties, expand abbreviations, and add stems.
func TokenSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, field := range strings.FieldsFunc(text, func(r rune) bool {
		return !keepRune(r) && r != '_' && r != '-' && r != '.' && r != '/'
	}) {
		for _, word := range SplitName(field) {
			tok := NormalizeToken(word)
			if tok == "" {
				continue
			}
			for _, t := range ExpandToken(tok) {
				set[t] = struct{}{}
				if s := Stem(t); s != t {
					set[s] = struct{}{}
				}
			}
		}
	}
	return set
}

// Jaccard computes |a∩b| / |a∪b| over two token sets; 0 when either is
// empty.
func Jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	small, large := a, b
	if len(b) < len(a) {
		small, large = b, a
	}
	inter := 0
	for tok := range small {
		if _, ok := large[tok]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}
