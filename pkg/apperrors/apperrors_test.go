package apperrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsMatchesByCode(t *testing.T) {
	err := NotFound("book not found")
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.False(t, errors.Is(err, ErrUnavailable))

	wrapped := fmt.Errorf("borrow: %w", err)
	assert.True(t, errors.Is(wrapped, ErrNotFound))
}

func TestStatusOf(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{name: "not found", err: ErrNotFound, expected: http.StatusNotFound},
		{name: "unavailable", err: ErrUnavailable, expected: http.StatusBadRequest},
		{name: "already returned", err: ErrAlreadyReturned, expected: http.StatusBadRequest},
		{name: "invalid rating", err: ErrInvalidRating, expected: http.StatusBadRequest},
		{name: "forbidden", err: Forbidden("nope"), expected: http.StatusForbidden},
		{name: "credentials", err: ErrInvalidCredentials, expected: http.StatusUnauthorized},
		{name: "inconsistent", err: Inconsistent("over-return"), expected: http.StatusInternalServerError},
		{name: "plain error", err: errors.New("boom"), expected: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, StatusOf(tt.err))
		})
	}
}

func TestWithCauseUnwraps(t *testing.T) {
	cause := errors.New("disk on fire")
	err := Internal("failed to save", cause)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "failed to save: disk on fire", err.Error())
}
