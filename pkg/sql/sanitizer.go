package sql

import (
	"fmt"
	"math"
	"regexp"
	"time"

	libinjection "github.com/corazawaf/libinjection-go"

	"github.com/pulsedash/analytics-engine/pkg/apperrors"
	"github.com/pulsedash/analytics-engine/pkg/models"
)

// maxStringValueLength bounds string filter values. Analytics dimension
// values are short codes and names; anything longer is not a legitimate
// filter.
const maxStringValueLength = 256

var (
	// safeStringPattern is the conservative character set for string filter
	// values: alphanumerics, space, and limited punctuation. Quotes,
	// semicolons, and comment markers are rejected outright rather than
	// escaped; parameter binding is the primary injection defense, this
	// screen rejects obviously malicious input early.
	safeStringPattern = regexp.MustCompile(`^[a-zA-Z0-9 _\-.,()/&+:@#]*$`)

	// likeStringPattern additionally permits the LIKE wildcards.
	likeStringPattern = regexp.MustCompile(`^[a-zA-Z0-9 _\-.,()/&+:@#%]*$`)

	datePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
)

// IsValidDate reports whether s is a strict YYYY-MM-DD string naming a real
// calendar date.
func IsValidDate(s string) bool {
	if !datePattern.MatchString(s) {
		return false
	}
	_, err := time.Parse("2006-01-02", s)
	return err == nil
}

// SanitizeValue cleanses one filter value for the given operator. Array
// operators sanitize every element independently; between requires a
// two-element [low, high]; everything else takes a scalar. A value that
// fails any check rejects the request whole - nothing is partially escaped.
// Sanitized values are only ever bound as query parameters afterwards.
func SanitizeValue(field string, value any, op models.Operator) (any, error) {
	switch op {
	case models.OpIn, models.OpNotIn:
		items, err := toSlice(field, value)
		if err != nil {
			return nil, err
		}
		if len(items) == 0 {
			return nil, apperrors.NewSanitizationError(field, "array value must not be empty")
		}
		out := make([]any, len(items))
		for i, item := range items {
			clean, err := sanitizeScalar(field, item, false)
			if err != nil {
				return nil, err
			}
			out[i] = clean
		}
		return out, nil

	case models.OpBetween:
		items, err := toSlice(field, value)
		if err != nil {
			return nil, err
		}
		if len(items) != 2 {
			return nil, apperrors.NewSanitizationError(field, "between requires exactly [low, high]")
		}
		low, err := sanitizeScalar(field, items[0], false)
		if err != nil {
			return nil, err
		}
		high, err := sanitizeScalar(field, items[1], false)
		if err != nil {
			return nil, err
		}
		return []any{low, high}, nil

	case models.OpLike:
		return sanitizeScalar(field, value, true)

	default:
		return sanitizeScalar(field, value, false)
	}
}

// SanitizeFilters returns a copy of filters with every value sanitized.
// The inputs are left untouched.
func SanitizeFilters(filters []models.Filter) ([]models.Filter, error) {
	out := make([]models.Filter, len(filters))
	for i, f := range filters {
		clean, err := SanitizeValue(f.Field, f.Value, f.Operator)
		if err != nil {
			return nil, err
		}
		out[i] = models.Filter{Field: f.Field, Operator: f.Operator, Value: clean}
	}
	return out, nil
}

func toSlice(field string, value any) ([]any, error) {
	switch v := value.(type) {
	case []any:
		return v, nil
	case []string:
		out := make([]any, len(v))
		for i, s := range v {
			out[i] = s
		}
		return out, nil
	case []int64:
		out := make([]any, len(v))
		for i, n := range v {
			out[i] = n
		}
		return out, nil
	case []float64:
		out := make([]any, len(v))
		for i, n := range v {
			out[i] = n
		}
		return out, nil
	default:
		return nil, apperrors.NewSanitizationError(field, "operator requires an array value")
	}
}

func sanitizeScalar(field string, value any, likeWildcards bool) (any, error) {
	switch v := value.(type) {
	case nil:
		return nil, apperrors.NewSanitizationError(field, "value must not be null")

	case string:
		return sanitizeString(field, v, likeWildcards)

	case bool:
		return v, nil

	case int:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int64:
		return v, nil

	case float32:
		return sanitizeFloat(field, float64(v))
	case float64:
		return sanitizeFloat(field, v)

	default:
		return nil, apperrors.NewSanitizationError(field, fmt.Sprintf("unsupported value type %T", value))
	}
}

func sanitizeFloat(field string, v float64) (any, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil, apperrors.NewSanitizationError(field, "number must be finite")
	}
	return v, nil
}

func sanitizeString(field, v string, likeWildcards bool) (any, error) {
	if len(v) > maxStringValueLength {
		return nil, apperrors.NewSanitizationError(field, "string value is too long")
	}

	// Date-shaped strings get the stricter calendar check.
	if datePattern.MatchString(v) {
		if !IsValidDate(v) {
			return nil, apperrors.NewSanitizationError(field, "date must be a real calendar date in YYYY-MM-DD form")
		}
		return v, nil
	}

	pattern := safeStringPattern
	if likeWildcards {
		pattern = likeStringPattern
	}
	if !pattern.MatchString(v) {
		return nil, apperrors.NewSanitizationError(field, "string contains disallowed characters")
	}

	// Defense in depth on top of the character screen: libinjection catches
	// structured injection attempts that happen to use allowed characters.
	if isSQLi, _ := libinjection.IsSQLi(v); isSQLi {
		return nil, apperrors.NewSanitizationError(field, "string matches a SQL injection pattern")
	}

	return v, nil
}
