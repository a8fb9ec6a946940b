package classifier

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/scooter-lacroix/leindex/internal/config"
)

func newTestClassifier() *Classifier {
	return New(config.DefaultStopWords())
}

func TestClassifyIntents(t *testing.T) {
	c := newTestClassifier()
	cases := []struct {
		question string
		want     Intent
	}{
		{"show me how login works", IntentHowWorks},
		{"explain the retry logic", IntentHowWorks},
		{"where is authentication handled", IntentWhereHandled},
		{"who calls parse_config", IntentWhereHandled},
		{"what are the bottlenecks", IntentBottlenecks},
		{"slowest functions in the indexer", IntentBottlenecks},
		{`find "exact literal" in the tree`, IntentText},
		{"match src/**/*.py files", IntentText},
		{"payment processing flow", IntentSemantic},
		{"", IntentSemantic},
	}
	for _, tc := range cases {
		got := c.Classify(tc.question)
		assert.Equal(t, tc.want, got.Intent, "question %q", tc.question)
	}
}

func TestClassifyExtractsQuotedLiteral(t *testing.T) {
	c := newTestClassifier()
	got := c.Classify(`where does "connection refused" come from`)
	assert.Equal(t, IntentText, got.Intent)
	assert.Equal(t, "connection refused", got.Quoted)
}

func TestClassifyExtractsFilters(t *testing.T) {
	c := newTestClassifier()

	got := c.Classify("serialization helpers in python")
	assert.Equal(t, "python", got.Filters.Language)

	got = c.Classify("handlers in golang")
	assert.Equal(t, "go", got.Filters.Language)

	got = c.Classify("search cmd/**/*.go for flag parsing")
	assert.Equal(t, "cmd/**/*.go", got.Filters.FileGlob)
	assert.True(t, ValidGlob(got.Filters.FileGlob))
}

func TestTermsDropStopWordsAndDuplicates(t *testing.T) {
	c := newTestClassifier()
	got := c.Classify("show me how the login login works")
	assert.NotContains(t, got.Terms, "the")
	assert.NotContains(t, got.Terms, "me")
	count := 0
	for _, term := range got.Terms {
		if term == "login" {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestClassifyIsDeterministic(t *testing.T) {
	c := newTestClassifier()
	first := c.Classify("where is the session token validated in go")
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, c.Classify("where is the session token validated in go"))
	}
}
