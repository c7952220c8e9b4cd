package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIs(t *testing.T) {
	marked := WithError(fmt.Errorf("dial tcp: refused")).
		WithMessage("listing active obligations").
		Mark(ErrStoreUnavailable)

	assert.True(t, Is(marked, ErrStoreUnavailable))
	assert.False(t, Is(marked, ErrNotFound))

	wrapped := fmt.Errorf("scan aborted: %w", marked)
	assert.True(t, Is(wrapped, ErrStoreUnavailable))

	joined := stderrors.Join(NewError("smtp down").Mark(ErrDispatchFailed), marked)
	assert.True(t, Is(joined, ErrDispatchFailed))
	assert.True(t, Is(joined, ErrStoreUnavailable))
	assert.False(t, Is(joined, ErrInvalidTransition))

	assert.False(t, Is(nil, ErrNotFound))
}

func TestGetHint(t *testing.T) {
	err := NewError("bad date").WithHint("Use YYYY-MM-DD").Mark(ErrValidation)
	assert.Equal(t, "Use YYYY-MM-DD", GetHint(err))
	assert.Equal(t, "", GetHint(NewError("plain").Mark(ErrValidation)))
}
