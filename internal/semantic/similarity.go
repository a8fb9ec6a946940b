package semantic

import (
	"github.com/hbollon/go-edlib"
)

// Similarity returns Jaro-Winkler similarity in [0,1]. Identifier names are
// short, which is the regime Jaro-Winkler handles better than normalized
// Levenshtein.
func Similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	if a == "" || b == "" {
		return 0
	}
	score, err := edlib.StringsSimilarity(a, b, edlib.JaroWinkler)
	if err != nil {
		return 0
	}
	return float64(score)
}
