package sql

import (
	"errors"
	"math"
	"testing"

	"github.com/pulsedash/analytics-engine/pkg/apperrors"
	"github.com/pulsedash/analytics-engine/pkg/models"
)

func TestIsValidDate(t *testing.T) {
	tests := []struct {
		input string
		valid bool
	}{
		{"2025-01-31", true},
		{"2024-02-29", true}, // leap year
		{"2025-02-29", false},
		{"2025-13-01", false},
		{"2025-00-10", false},
		{"2025-1-1", false},
		{"20250101", false},
		{"2025-01-01T00:00:00Z", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := IsValidDate(tt.input); got != tt.valid {
			t.Errorf("IsValidDate(%q) = %v, want %v", tt.input, got, tt.valid)
		}
	}
}

func TestSanitizeValue_Scalars(t *testing.T) {
	tests := []struct {
		name  string
		value any
		op    models.Operator
		want  any
	}{
		{name: "clean string", value: "east coast", op: models.OpEq, want: "east coast"},
		{name: "string with allowed punctuation", value: "A&B (north), v2.1", op: models.OpEq, want: "A&B (north), v2.1"},
		{name: "int widens to int64", value: 42, op: models.OpEq, want: int64(42)},
		{name: "int32 widens to int64", value: int32(7), op: models.OpGt, want: int64(7)},
		{name: "int64 passes through", value: int64(9), op: models.OpLte, want: int64(9)},
		{name: "float passes through", value: 3.5, op: models.OpGte, want: 3.5},
		{name: "bool passes through", value: true, op: models.OpEq, want: true},
		{name: "date string", value: "2025-06-15", op: models.OpGte, want: "2025-06-15"},
		{name: "like keeps wildcards", value: "north%", op: models.OpLike, want: "north%"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SanitizeValue("region", tt.value, tt.op)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestSanitizeValue_Rejections(t *testing.T) {
	longString := make([]byte, 300)
	for i := range longString {
		longString[i] = 'a'
	}

	tests := []struct {
		name  string
		value any
		op    models.Operator
	}{
		{name: "null value", value: nil, op: models.OpEq},
		{name: "single quote", value: "O'Brien", op: models.OpEq},
		{name: "semicolon", value: "x; SELECT 1", op: models.OpEq},
		{name: "backslash", value: `value\`, op: models.OpEq},
		{name: "wildcard outside like", value: "north%", op: models.OpEq},
		{name: "overlong string", value: string(longString), op: models.OpEq},
		{name: "date-shaped but impossible", value: "2025-02-31", op: models.OpEq},
		{name: "NaN", value: math.NaN(), op: models.OpEq},
		{name: "positive infinity", value: math.Inf(1), op: models.OpGt},
		{name: "unsupported type", value: map[string]any{"a": 1}, op: models.OpEq},
		{name: "scalar where array required", value: "east", op: models.OpIn},
		{name: "empty in array", value: []any{}, op: models.OpIn},
		{name: "between with one bound", value: []any{1}, op: models.OpBetween},
		{name: "between with three values", value: []any{1, 2, 3}, op: models.OpBetween},
		{name: "dirty element in array", value: []any{"east", "x'; --"}, op: models.OpIn},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := SanitizeValue("region", tt.value, tt.op)
			var se *apperrors.SanitizationError
			if !errors.As(err, &se) {
				t.Errorf("expected SanitizationError, got %v", err)
			}
			if se != nil && se.Field != "region" {
				t.Errorf("error field = %q, want %q", se.Field, "region")
			}
		})
	}
}

func TestSanitizeValue_Arrays(t *testing.T) {
	got, err := SanitizeValue("region", []string{"east", "west"}, models.OpIn)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	arr, ok := got.([]any)
	if !ok || len(arr) != 2 || arr[0] != "east" || arr[1] != "west" {
		t.Errorf("got %#v, want [east west]", got)
	}

	got, err = SanitizeValue("measure_value", []any{10, 20}, models.OpBetween)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	pair, ok := got.([]any)
	if !ok || len(pair) != 2 || pair[0] != int64(10) || pair[1] != int64(20) {
		t.Errorf("got %#v, want [10 20] as int64", got)
	}
}

func TestSanitizeFilters_CopiesInput(t *testing.T) {
	in := []models.Filter{
		{Field: "region", Operator: models.OpEq, Value: "east"},
		{Field: "measure_value", Operator: models.OpGte, Value: 5},
	}

	out, err := SanitizeFilters(in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("got %d filters, want 2", len(out))
	}
	if out[1].Value != int64(5) {
		t.Errorf("sanitized value = %#v, want int64(5)", out[1].Value)
	}
	// The caller's slice is untouched.
	if in[1].Value != 5 {
		t.Errorf("input mutated: %#v", in[1].Value)
	}
}

func TestSanitizeFilters_RejectsWholeRequest(t *testing.T) {
	in := []models.Filter{
		{Field: "region", Operator: models.OpEq, Value: "east"},
		{Field: "region", Operator: models.OpEq, Value: "x'; DELETE FROM t"},
	}

	out, err := SanitizeFilters(in)
	if err == nil {
		t.Fatal("expected rejection")
	}
	if out != nil {
		t.Errorf("partial output returned on rejection: %#v", out)
	}
}
