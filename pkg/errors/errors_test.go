package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestNew(t *testing.T) {
	err := New(ErrCodeValidation, "test message: %s", "value")

	if err.Code != ErrCodeValidation {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeValidation)
	}

	if err.Message != "test message: value" {
		t.Errorf("Message = %v, want %v", err.Message, "test message: value")
	}

	expected := "VALIDATION: test message: value"
	if err.Error() != expected {
		t.Errorf("Error() = %v, want %v", err.Error(), expected)
	}
}

func TestWrap(t *testing.T) {
	cause := errors.New("underlying error")
	err := Wrap(ErrCodeEngineCrash, cause, "tab died")

	if err.Code != ErrCodeEngineCrash {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeEngineCrash)
	}

	if err.Cause != cause {
		t.Errorf("Cause = %v, want %v", err.Cause, cause)
	}

	// Test Unwrap
	unwrapped := errors.Unwrap(err)
	if unwrapped != cause {
		t.Errorf("Unwrap() = %v, want %v", unwrapped, cause)
	}

	// Test errors.Is with wrapped error
	if !errors.Is(err, cause) {
		t.Error("errors.Is(err, cause) = false, want true")
	}
}

func TestIs(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		code     Code
		expected bool
	}{
		{
			name:     "matching code",
			err:      New(ErrCodeNotFound, "test"),
			code:     ErrCodeNotFound,
			expected: true,
		},
		{
			name:     "non-matching code",
			err:      New(ErrCodeNotFound, "test"),
			code:     ErrCodePoolTimeout,
			expected: false,
		},
		{
			name:     "wrapped error",
			err:      Wrap(ErrCodePoolTimeout, New(ErrCodeValidation, "inner"), "outer"),
			code:     ErrCodePoolTimeout,
			expected: true,
		},
		{
			name:     "fmt wrapped",
			err:      fmt.Errorf("render: %w", New(ErrCodeEngineTimeout, "slow")),
			code:     ErrCodeEngineTimeout,
			expected: true,
		},
		{
			name:     "non-Error type",
			err:      errors.New("plain error"),
			code:     ErrCodeValidation,
			expected: false,
		},
		{
			name:     "nil error",
			err:      nil,
			code:     ErrCodeValidation,
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Is(tt.err, tt.code); got != tt.expected {
				t.Errorf("Is() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestGetCode(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected Code
	}{
		{
			name:     "Error type",
			err:      New(ErrCodeStore, "test"),
			expected: ErrCodeStore,
		},
		{
			name:     "plain error",
			err:      errors.New("plain"),
			expected: "",
		},
		{
			name:     "nil",
			err:      nil,
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetCode(tt.err); got != tt.expected {
				t.Errorf("GetCode() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestUserMessage(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{
			name:     "Error type",
			err:      New(ErrCodeValidation, "friendly message"),
			expected: "friendly message",
		},
		{
			name:     "plain error",
			err:      errors.New("plain error"),
			expected: "plain error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := UserMessage(tt.err); got != tt.expected {
				t.Errorf("UserMessage() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestIsEngineAndRetryable(t *testing.T) {
	tests := []struct {
		code      Code
		engine    bool
		retryable bool
	}{
		{ErrCodeEngineTimeout, true, true},
		{ErrCodeEngineCrash, true, true},
		{ErrCodeUnsupportedFormat, true, false},
		{ErrCodePoolTimeout, false, true},
		{ErrCodePoolClosed, false, false},
		{ErrCodeValidation, false, false},
		{ErrCodeNotFound, false, false},
		{ErrCodeStore, false, false},
	}

	for _, tt := range tests {
		err := New(tt.code, "x")
		if got := IsEngine(err); got != tt.engine {
			t.Errorf("IsEngine(%s) = %v, want %v", tt.code, got, tt.engine)
		}
		if got := Retryable(err); got != tt.retryable {
			t.Errorf("Retryable(%s) = %v, want %v", tt.code, got, tt.retryable)
		}
	}

	if IsEngine(errors.New("plain")) || Retryable(nil) {
		t.Error("plain and nil errors should be neither engine nor retryable")
	}
}
