package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCloneStillMatchesBase(t *testing.T) {
	err := Clone(ErrExpired, "custom")
	assert.Equal(t, "custom", err.Message)
	assert.Equal(t, "This QR code has expired. Please ask your lecturer to generate a new one.", ErrExpired.Message)
	assert.ErrorIs(t, fmt.Errorf("scan: %w", err), ErrExpired)
	assert.NotErrorIs(t, err, ErrWrongCourse)
}

func TestWrapAs(t *testing.T) {
	cause := errors.New("connection reset")
	err := WrapAs(cause, ErrStore, "")

	assert.Equal(t, ErrStore.Message, err.Message)
	assert.Equal(t, http.StatusServiceUnavailable, err.Status)
	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, ErrStore)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestFromError(t *testing.T) {
	assert.Nil(t, FromError(nil))

	typed := FromError(fmt.Errorf("wrapped: %w", ErrNotEnrolled))
	require.NotNil(t, typed)
	assert.Equal(t, "NOT_ENROLLED", typed.Code)

	plain := FromError(errors.New("boom"))
	assert.Equal(t, ErrInternal.Code, plain.Code)
	assert.Equal(t, http.StatusInternalServerError, plain.Status)
}
