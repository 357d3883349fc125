package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindOfSurvivesWrapping(t *testing.T) {
	err := Validationf("mafia count %d too high", 9)
	wrapped := fmt.Errorf("start session: %w", err)

	assert.Equal(t, KindValidation, KindOf(wrapped))
	assert.True(t, errors.Is(wrapped, ErrValidation))
	assert.False(t, errors.Is(wrapped, ErrForbidden))
}

func TestStorefKeepsCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := Storef(cause, "append event")

	require.ErrorIs(t, err, cause)
	assert.Equal(t, KindStore, KindOf(err))
	assert.Contains(t, err.Error(), "append event")
	assert.Contains(t, err.Error(), "connection reset")
}

func TestKindOfPlainError(t *testing.T) {
	assert.Equal(t, Kind(""), KindOf(errors.New("plain")))
	assert.Equal(t, Kind(""), KindOf(nil))
}
