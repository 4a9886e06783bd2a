package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStorageErrors(t *testing.T) {
	cause := errors.New("disk full")

	write := NewStorageWriteError("currentGraph", cause)
	assert.True(t, IsStorageWrite(write))
	assert.False(t, IsStorageRead(write))
	assert.ErrorIs(t, write, cause)
	assert.Contains(t, write.Error(), "currentGraph")

	read := NewStorageReadError("currentGraph", cause)
	assert.True(t, IsStorageRead(fmt.Errorf("load: %w", read)))
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{"validation", NewValidationError("bad"), http.StatusBadRequest},
		{"not found", NewNotFoundError("graph"), http.StatusNotFound},
		{"unavailable", NewUnavailableError("neo4j"), http.StatusServiceUnavailable},
		{"wrapped", fmt.Errorf("ctx: %w", NewConflictError("dup")), http.StatusConflict},
		{"foreign", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, HTTPStatus(tt.err))
		})
	}
}

func TestWrap(t *testing.T) {
	assert.Nil(t, Wrap(nil, "noop"))

	wrapped := Wrap(errors.New("boom"), "sync failed")
	appErr := GetAppError(wrapped)
	require.NotNil(t, appErr)
	assert.Equal(t, ErrorTypeInternal, appErr.Type)

	typed := Wrapf(NewNotFoundError("graph"), "load %s", "domain")
	assert.True(t, IsNotFound(typed))
	assert.Equal(t, "load domain: graph not found", GetAppError(typed).Message)
}
