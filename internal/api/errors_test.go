package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docshelf/backend/internal/storage"
)

func TestStorageError(t *testing.T) {
	tests := []struct {
		err        error
		wantStatus int
		wantCode   string
	}{
		{storage.ErrNotFound, http.StatusNotFound, "NOT_FOUND"},
		{fmt.Errorf("parent x: %w", storage.ErrNotFound), http.StatusNotFound, "NOT_FOUND"},
		{storage.ErrNotFolder, http.StatusBadRequest, "BAD_REQUEST"},
		{fmt.Errorf("%w: %q", storage.ErrUnsupportedType, ".txt"), http.StatusBadRequest, "BAD_REQUEST"},
		{storage.ErrInvalidMove, http.StatusBadRequest, "BAD_REQUEST"},
		{fmt.Errorf("s3 put: %w", context.DeadlineExceeded), http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE"},
		{errors.New("io failure"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			apiErr := storageError("op", "id", tt.err)
			assert.Equal(t, tt.wantStatus, apiErr.StatusCode())
			assert.Equal(t, tt.wantCode, apiErr.Code)
		})
	}
}

func TestErrorHandler(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"api error", NewConflictError("taken"), http.StatusConflict, "CONFLICT"},
		{"wrapped api error", fmt.Errorf("handler: %w", NewValidationError("name")), http.StatusBadRequest, "VALIDATION_ERROR"},
		{"echo unauthorized", echo.NewHTTPError(http.StatusUnauthorized, "no token"), http.StatusUnauthorized, "UNAUTHORIZED"},
		{"echo generic", echo.NewHTTPError(http.StatusTeapot, "tea"), http.StatusTeapot, "HTTP_ERROR"},
		{"plain error", errors.New("boom"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	e := echo.New()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)

			ErrorHandler(tt.err, c)

			assert.Equal(t, tt.wantStatus, rec.Code)
			var body APIError
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.wantCode, body.Code)
		})
	}
}

func TestErrorHandler_HidesDetailsByDefault(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	ErrorHandler(errors.New("secret path /var/data"), e.NewContext(req, rec))
	assert.NotContains(t, rec.Body.String(), "/var/data")
}
