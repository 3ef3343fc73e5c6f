package apperrors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestErrorMessages(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "validation with field",
			err:  NewValidationError("start_date", "date is required"),
			want: `validation failed on "start_date": date is required`,
		},
		{
			name: "validation without field",
			err:  NewValidationError("", "missing query parameters"),
			want: "validation failed: missing query parameters",
		},
		{
			name: "security violation",
			err:  NewSecurityViolation("salary", "field is not on the allowed list"),
			want: `security violation on "salary": field is not on the allowed list`,
		},
		{
			name: "sanitization",
			err:  NewSanitizationError("region", "string contains disallowed characters"),
			want: `value rejected on "region": string contains disallowed characters`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExecutionError(t *testing.T) {
	inner := errors.New("connection refused")
	err := NewExecutionError(inner, true)

	if !err.IsRetryable() {
		t.Error("transient execution error must be retryable")
	}
	if !errors.Is(err, inner) {
		t.Error("ExecutionError must unwrap to the cause")
	}
	if !strings.Contains(err.Error(), "transient") {
		t.Errorf("message = %q", err.Error())
	}

	fatal := NewExecutionError(errors.New("syntax error"), false)
	if fatal.IsRetryable() {
		t.Error("fatal execution error must not be retryable")
	}
}

func TestIsRequestError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "validation", err: NewValidationError("f", "r"), want: true},
		{name: "security", err: NewSecurityViolation("f", "r"), want: true},
		{name: "sanitization", err: NewSanitizationError("f", "r"), want: true},
		{name: "wrapped validation", err: fmt.Errorf("query: %w", NewValidationError("f", "r")), want: true},
		{name: "execution", err: NewExecutionError(errors.New("boom"), false), want: false},
		{name: "not found", err: ErrNotFound, want: false},
		{name: "nil", err: nil, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRequestError(tt.err); got != tt.want {
				t.Errorf("IsRequestError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
