package logging

import (
	"fmt"
	"regexp"
)

const (
	// MaxQueryLogLength is the maximum length of a query to log
	MaxQueryLogLength = 100
	// RedactedText is the replacement text for sensitive data
	RedactedText = "[REDACTED]"
)

var (
	// Pattern to match potential passwords in connection strings
	// Matches: password=xxx, pwd=xxx, pass=xxx (until next delimiter)
	passwordPattern = regexp.MustCompile(`(?i)(password|pwd|pass)=[^;&\s]+`)

	// Pattern to match connection string credentials (user:pass@host format)
	connStringPattern = regexp.MustCompile(`://[^:]+:[^@]+@[^/\s]+`)

	// Pattern to match SQL string literals, so rejected filter values quoted
	// inside error text never reach the logs verbatim
	sqlLiteralPattern = regexp.MustCompile(`'(?:[^']|'')*'`)
)

// SanitizeError sanitizes error messages that might contain sensitive data
// or attacker-supplied payloads. Use this before logging any error from
// validation, sanitization, or database operations.
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}

	errStr := err.Error()

	sanitized := passwordPattern.ReplaceAllString(errStr, "${1}="+RedactedText)
	sanitized = connStringPattern.ReplaceAllString(sanitized, "://"+RedactedText+"@"+RedactedText)
	sanitized = sqlLiteralPattern.ReplaceAllString(sanitized, RedactedText)

	return TruncateString(sanitized, MaxQueryLogLength*4)
}

// DescribeFilterValue renders a filter value for logging as type and size
// only. Rejected values can carry injection payloads, so the value itself is
// never logged.
func DescribeFilterValue(value any) string {
	switch v := value.(type) {
	case nil:
		return "nil"
	case string:
		return fmt.Sprintf("string(len=%d)", len(v))
	case []any:
		return fmt.Sprintf("array(len=%d)", len(v))
	case []string:
		return fmt.Sprintf("array(len=%d)", len(v))
	default:
		return fmt.Sprintf("%T", v)
	}
}

// SanitizeQuery truncates a SQL query for logging and redacts embedded
// credential-like patterns. Queries built by this engine contain only $n
// placeholders, but defense applies to anything that transits the logs.
func SanitizeQuery(query string) string {
	if query == "" {
		return ""
	}

	sanitized := query
	if len(sanitized) > MaxQueryLogLength {
		sanitized = sanitized[:MaxQueryLogLength] + "..."
	}

	return passwordPattern.ReplaceAllString(sanitized, "${1}="+RedactedText)
}

// TruncateString truncates a string to maxLen and adds ellipsis if needed
func TruncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
