package main

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	lcierr "github.com/scooter-lacroix/leindex/internal/errors"
)

func TestExitCodeMapping(t *testing.T) {
	assert.Equal(t, exitCancel, exitCodeFor(lcierr.ErrCancelled))
	assert.Equal(t, exitCancel, exitCodeFor(lcierr.ErrTimeout))
	assert.Equal(t, exitUsage, exitCodeFor(&usageError{msg: "missing argument"}))
	assert.Equal(t, exitRuntime, exitCodeFor(errors.New("boom")))
}
