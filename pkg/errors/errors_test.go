package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"campusconnect/internal/core/domain"
)

func TestAppError_Error(t *testing.T) {
	err := NewAppError(ErrCodeInvalidInput, "test error", 400)
	expected := "INVALID_INPUT: test error"
	if err.Error() != expected {
		t.Errorf("Error() = %v, want %v", err.Error(), expected)
	}
}

func TestAppError_WithCause(t *testing.T) {
	originalErr := errors.New("original error")
	err := WrapError(originalErr, ErrCodeInternal, "wrapped error", 500)

	if err.Cause != originalErr {
		t.Errorf("Cause = %v, want %v", err.Cause, originalErr)
	}
	if !strings.Contains(err.Error(), "original error") {
		t.Errorf("Error() should contain cause, got: %v", err.Error())
	}
	if !errors.Is(err, originalErr) {
		t.Error("errors.Is should see the cause through Unwrap")
	}
}

func TestAppError_WithContext(t *testing.T) {
	err := NewAppError(ErrCodeInvalidInput, "test error", 400)
	err.WithContext("field", "value").WithContext("count", 42)

	if err.Context["field"] != "value" {
		t.Errorf("Context[field] = %v, want 'value'", err.Context["field"])
	}
	if err.Context["count"] != 42 {
		t.Errorf("Context[count] = %v, want 42", err.Context["count"])
	}
}

func TestNewNotFoundError(t *testing.T) {
	err := NewNotFoundError("conversation")
	if err.Code != ErrCodeNotFound {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeNotFound)
	}
	if err.HTTPStatus != 404 {
		t.Errorf("HTTPStatus = %v, want 404", err.HTTPStatus)
	}
}

func TestGetAppError_Unwraps(t *testing.T) {
	appErr := NewAppError(ErrCodeInvalidInput, "test", 400)
	wrapped := fmt.Errorf("outer: %w", appErr)

	if GetAppError(wrapped) != appErr {
		t.Error("GetAppError() should find AppError in chain")
	}
	if GetAppError(errors.New("plain")) != nil {
		t.Error("GetAppError() should return nil for plain errors")
	}
}

func TestFromDomain(t *testing.T) {
	cases := []struct {
		err    error
		code   ErrorCode
		status int
	}{
		{fmt.Errorf("load: %w", domain.ErrConversationNotFound), ErrCodeNotFound, http.StatusNotFound},
		{domain.ErrNoActiveCall, ErrCodeNotFound, http.StatusNotFound},
		{domain.ErrNotConnected, ErrCodeNotConnected, http.StatusServiceUnavailable},
		{domain.ErrCallInProgress, ErrCodeConflict, http.StatusConflict},
		{domain.ErrInvalidTransition, ErrCodeConflict, http.StatusConflict},
		{domain.ErrEmptyContent, ErrCodeInvalidInput, http.StatusBadRequest},
		{errors.New("boom"), ErrCodeInternal, http.StatusInternalServerError},
	}

	for _, tc := range cases {
		appErr := FromDomain(tc.err)
		if appErr.Code != tc.code {
			t.Errorf("FromDomain(%v).Code = %v, want %v", tc.err, appErr.Code, tc.code)
		}
		if appErr.HTTPStatus != tc.status {
			t.Errorf("FromDomain(%v).HTTPStatus = %v, want %v", tc.err, appErr.HTTPStatus, tc.status)
		}
	}

	if FromDomain(nil) != nil {
		t.Error("FromDomain(nil) should be nil")
	}
}
