package errors_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/StinkyLord/depscan/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAttachesStackOnce(t *testing.T) {
	t.Parallel()

	err := errors.New("boom")
	require.Error(t, err)
	assert.True(t, errors.ContainsStackTrace(err))
	assert.Same(t, err, errors.New(err))
	assert.NotEmpty(t, errors.ErrorStack(err))
	assert.NoError(t, errors.New(nil))
}

func TestRecoverConvertsPanic(t *testing.T) {
	t.Parallel()

	run := func() (err error) {
		defer errors.Recover(func(cause error) { err = cause })

		panic("detector exploded")
	}

	err := run()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "detector exploded")
}

func TestMultiErrorAppend(t *testing.T) {
	t.Parallel()

	var errs *errors.MultiError
	assert.NoError(t, errs.ErrorOrNil())

	errs = errs.Append(nil)
	assert.NoError(t, errs.ErrorOrNil())

	first := fmt.Errorf("first")
	errs = errs.Append(first, fmt.Errorf("second"))
	require.Error(t, errs.ErrorOrNil())
	assert.Equal(t, 2, errs.Len())
	assert.Contains(t, errs.Error(), "2 errors occurred")
	assert.ErrorIs(t, errs, first)
}

func TestIsContextCanceled(t *testing.T) {
	t.Parallel()

	assert.True(t, errors.IsContextCanceled(fmt.Errorf("wrapped: %w", context.Canceled)))
	assert.False(t, errors.IsContextCanceled(fmt.Errorf("other")))
}
