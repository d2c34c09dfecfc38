package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestAppError_Error(t *testing.T) {
	plain := NewInvalidInputError("room name is required")
	if plain.Error() != "INVALID_INPUT: room name is required" {
		t.Errorf("unexpected error string: %s", plain.Error())
	}

	cause := errors.New("dial tcp: refused")
	wrapped := WrapError(cause, ErrCodeServiceUnavailable, "storage unreachable", http.StatusServiceUnavailable)
	if wrapped.Unwrap() != cause {
		t.Error("Unwrap should return the cause")
	}
	want := "SERVICE_UNAVAILABLE: storage unreachable (caused by: dial tcp: refused)"
	if wrapped.Error() != want {
		t.Errorf("got %q, want %q", wrapped.Error(), want)
	}
}

func TestGetAppError(t *testing.T) {
	appErr := NewNotFoundError("recording")

	tests := []struct {
		name string
		err  error
		want *AppError
	}{
		{"nil", nil, nil},
		{"direct", appErr, appErr},
		{"wrapped", fmt.Errorf("handler: %w", appErr), appErr},
		{"plain", errors.New("boom"), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetAppError(tt.err); got != tt.want {
				t.Errorf("GetAppError() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestConstructorStatuses(t *testing.T) {
	tests := []struct {
		err    *AppError
		status int
		code   ErrorCode
	}{
		{NewInvalidInputError("x"), http.StatusBadRequest, ErrCodeInvalidInput},
		{NewNotFoundError("x"), http.StatusNotFound, ErrCodeNotFound},
		{NewUnauthorizedError("x"), http.StatusUnauthorized, ErrCodeUnauthorized},
		{NewRateLimitError(), http.StatusTooManyRequests, ErrCodeRateLimit},
		{NewInternalError("x"), http.StatusInternalServerError, ErrCodeInternal},
		{NewServiceUnavailableError("x"), http.StatusServiceUnavailable, ErrCodeServiceUnavailable},
	}

	for _, tt := range tests {
		if tt.err.HTTPStatus != tt.status {
			t.Errorf("%s: status = %d, want %d", tt.err.Code, tt.err.HTTPStatus, tt.status)
		}
		if tt.err.Code != tt.code {
			t.Errorf("code = %s, want %s", tt.err.Code, tt.code)
		}
	}
}
