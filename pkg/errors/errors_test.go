package errors

import (
	"database/sql"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not found", NotFound("lab test", sql.ErrNoRows), http.StatusNotFound},
		{"bad request", BadRequest("invalid priority", nil), http.StatusBadRequest},
		{"capacity", Capacity("technician has reached maximum workload"), http.StatusBadRequest},
		{"unauthorized", Unauthorized(nil), http.StatusUnauthorized},
		{"forbidden", Forbidden("insufficient role"), http.StatusForbidden},
		{"internal", Internal(fmt.Errorf("boom")), http.StatusInternalServerError},
		{"wrapped", fmt.Errorf("failed to get request: %w", NotFound("lab test request", nil)), http.StatusNotFound},
		{"plain", fmt.Errorf("connection refused"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(tt.err))
		})
	}
}

func TestAppError_Error(t *testing.T) {
	err := NotFound("lab technician", sql.ErrNoRows)
	assert.Equal(t, "lab technician not found: sql: no rows in result set", err.Error())
	assert.ErrorIs(t, err, sql.ErrNoRows)

	assert.Equal(t, "lab technician not found", NotFound("lab technician", nil).Error())
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, IsNotFound(fmt.Errorf("wrap: %w", NotFound("x", nil))))
	assert.False(t, IsNotFound(BadRequest("x", nil)))
	assert.False(t, IsNotFound(fmt.Errorf("x")))
}
