package errors

import (
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorCodesAreStable(t *testing.T) {
	cases := []struct {
		err  error
		code string
	}{
		{NewInvalidQueryError("empty"), "invalid_query"},
		{NewUnsupportedLanguageError("cobol"), "unsupported_language"},
		{NewDimensionMismatchError(128, 64), "dimension_mismatch"},
		{NewDuplicateSymbolError("pkg.Foo", "proj"), "duplicate_symbol"},
		{NewUnknownEndpointError(7), "unknown_endpoint"},
		{NewSchemaMismatchError(2, 1), "schema_mismatch"},
		{NewBusyError("commit"), "busy"},
		{NewIndexingAbortedError(0.6), "indexing_aborted"},
	}
	for _, c := range cases {
		type coder interface{ Code() string }
		cd, ok := c.err.(coder)
		if !ok {
			t.Fatalf("%T does not implement Code()", c.err)
		}
		assert.Equal(t, c.code, cd.Code())
	}
}

func TestMultiErrorFiltersNil(t *testing.T) {
	me := NewMultiError([]error{nil, stderrors.New("a"), nil, stderrors.New("b")})
	assert.Len(t, me.Errors, 2)
	assert.Equal(t, "2 errors: [a b]", me.Error())
}

func TestMultiErrorSingle(t *testing.T) {
	me := NewMultiError([]error{stderrors.New("only")})
	assert.Equal(t, "only", me.Error())
}

func TestSentinelsMatchErrorsIs(t *testing.T) {
	wrapped := fmtWrap(ErrCancelled)
	assert.ErrorIs(t, wrapped, ErrCancelled)
}

func fmtWrap(err error) error {
	return stderrors.Join(err)
}
