package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorError(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		expected string
	}{
		{
			name:     "without internal error",
			err:      New(http.StatusServiceUnavailable, "connection_error", "Store unavailable"),
			expected: "connection_error: Store unavailable",
		},
		{
			name:     "with internal error",
			err:      ErrConnection.WithInternal(errors.New("dial tcp: refused")),
			expected: "connection_error: Store unavailable (dial tcp: refused)",
		},
		{
			name:     "empty message",
			err:      ErrValidation.WithMessage(""),
			expected: "validation_error: ",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("bolt handshake failed")
	err := ErrConnection.WithInternal(cause)

	assert.Same(t, cause, err.Unwrap())
	assert.True(t, errors.Is(err, cause))
	assert.Nil(t, ErrConnection.Unwrap())
}

func TestErrorCopiesDoNotMutateSentinel(t *testing.T) {
	_ = ErrValidation.WithMessage("limit must be positive").WithDetails(map[string]any{"field": "limit"})

	assert.Equal(t, "Validation failed", ErrValidation.Message)
	assert.Nil(t, ErrValidation.Details)
}

func TestErrorWithDetails(t *testing.T) {
	err := ErrPartialBatchFailure.WithDetails(map[string]any{"failed": 2})

	assert.Equal(t, "partial_batch_failure", err.Code)
	assert.Equal(t, 2, err.Details["failed"])
}

func TestIs(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		target *Error
		want   bool
	}{
		{"same sentinel", ErrDegradedRouting, ErrDegradedRouting, true},
		{"derived copy", ErrValidation.WithMessage("threshold out of range"), ErrValidation, true},
		{"wrapped", fmt.Errorf("traverse: %w", ErrConnection.WithInternal(errors.New("timeout"))), ErrConnection, true},
		{"different code", ErrConnection, ErrValidation, false},
		{"plain error", errors.New("boom"), ErrInternal, false},
		{"nil", nil, ErrInternal, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Is(tt.err, tt.target))
		})
	}
}

func TestToHTTPError(t *testing.T) {
	status, body := ToHTTPError(ErrUnsupportedOperation.WithDetails(map[string]any{"algorithm": "louvain"}))
	assert.Equal(t, http.StatusBadRequest, status)

	errBody, ok := body["error"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "unsupported_operation", errBody["code"])
	assert.Equal(t, map[string]any{"algorithm": "louvain"}, errBody["details"])

	status, body = ToHTTPError(errors.New("opaque"))
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "internal_error", body["error"].(map[string]any)["code"])
}

func TestToEchoError(t *testing.T) {
	he := NewNotFound("entity", "e-42").ToEchoError()

	assert.Equal(t, http.StatusNotFound, he.Code)
	msg, ok := he.Message.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "entity 'e-42' not found", msg["error"].(map[string]any)["message"])
}

func TestConstructors(t *testing.T) {
	assert.Equal(t, "bad_request", NewBadRequest("x").Code)
	assert.Equal(t, http.StatusUnprocessableEntity, NewValidation("x").HTTPStatus)

	internal := NewInternal("sync failed", errors.New("disk full"))
	assert.Equal(t, "internal_error", internal.Code)
	assert.EqualError(t, internal.Unwrap(), "disk full")
}
