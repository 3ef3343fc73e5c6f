// Package sql builds and validates the parameterized SQL the engine emits.
// Everything here is pure: no I/O beyond the data-source descriptor handed
// in, so each piece is unit-testable with a stub config.
package sql

import (
	"regexp"

	"github.com/pulsedash/analytics-engine/pkg/apperrors"
	"github.com/pulsedash/analytics-engine/pkg/models"
)

// identifierPattern is the shape every schema, table, and column name must
// have before it is rendered into SQL text. Identifiers come from the
// metadata store, not from callers, but the builder refuses anything else
// regardless of source.
var identifierPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ValidIdentifier reports whether s is a plain SQL identifier.
func ValidIdentifier(s string) bool {
	return s != "" && len(s) <= 63 && identifierPattern.MatchString(s)
}

// ValidateTable checks the (schema, table) pair against the data-source
// descriptor. A mismatch fails closed with a SecurityViolation.
func ValidateTable(schema, table string, cfg *models.DataSourceConfig) error {
	if cfg == nil {
		return apperrors.NewSecurityViolation("table", "no data source configuration resolved")
	}
	if !ValidIdentifier(schema) || !ValidIdentifier(table) {
		return apperrors.NewSecurityViolation("table", "identifier is not a plain SQL name")
	}
	if schema != cfg.SchemaName || table != cfg.TableName {
		return apperrors.NewSecurityViolation("table", "table is not registered for this data source")
	}
	return nil
}

// ValidateField checks that the column exists in the descriptor's
// whitelist. Unknown fields fail closed; the filter is never dropped.
func ValidateField(field string, cfg *models.DataSourceConfig) error {
	if !ValidIdentifier(field) {
		return apperrors.NewSecurityViolation(field, "identifier is not a plain SQL name")
	}
	if cfg == nil || !cfg.AllowsField(field) {
		return apperrors.NewSecurityViolation(field, "field is not on the allowed list")
	}
	return nil
}

// ValidateOperator checks the operator against the fixed global whitelist.
func ValidateOperator(op models.Operator) error {
	if !models.AllowedOperators[op] {
		return apperrors.NewSecurityViolation(string(op), "operator is not allowed")
	}
	return nil
}

// ValidateFieldOperator applies the optional per-field operator narrowing
// on top of the global whitelist.
func ValidateFieldOperator(field string, op models.Operator, cfg *models.DataSourceConfig) error {
	if err := ValidateOperator(op); err != nil {
		return err
	}
	allowed, ok := cfg.AllowedOperatorsPerField[field]
	if !ok {
		return nil
	}
	for _, a := range allowed {
		if a == op {
			return nil
		}
	}
	return apperrors.NewSecurityViolation(field, "operator is not allowed for this field")
}

// ValidationResult collects everything wrong with a request so the caller
// can fix it in one round trip.
type ValidationResult struct {
	IsValid bool
	Errors  []error
}

func (r *ValidationResult) add(err error) {
	r.IsValid = false
	r.Errors = append(r.Errors, err)
}

// First returns the first error, or nil when the request is valid.
func (r *ValidationResult) First() error {
	if len(r.Errors) == 0 {
		return nil
	}
	return r.Errors[0]
}

// ValidateParams checks the whole request against the descriptor: table,
// every filter's field and operator, date shapes, and the multi-series and
// period-comparison sub-structures.
func ValidateParams(params *models.QueryParams, cfg *models.DataSourceConfig) ValidationResult {
	result := ValidationResult{IsValid: true}

	if params == nil {
		result.add(apperrors.NewValidationError("", "missing query parameters"))
		return result
	}
	if cfg == nil {
		result.add(apperrors.NewSecurityViolation("data_source_id", "no data source configuration resolved"))
		return result
	}

	if err := ValidateTable(cfg.SchemaName, cfg.TableName, cfg); err != nil {
		result.add(err)
	}

	validateDate := func(field, value string, required bool) {
		if value == "" {
			if required {
				result.add(apperrors.NewValidationError(field, "date is required"))
			}
			return
		}
		if !IsValidDate(value) {
			result.add(apperrors.NewValidationError(field, "date must be a real calendar date in YYYY-MM-DD form"))
		}
	}

	validateDate("start_date", params.StartDate, false)
	validateDate("end_date", params.EndDate, false)
	if params.StartDate != "" && params.EndDate != "" && params.StartDate > params.EndDate {
		result.add(apperrors.NewValidationError("start_date", "start date is after end date"))
	}

	for _, f := range params.Filters {
		if err := ValidateField(f.Field, cfg); err != nil {
			result.add(err)
			continue
		}
		if err := ValidateFieldOperator(f.Field, f.Operator, cfg); err != nil {
			result.add(err)
		}
	}

	for _, s := range params.MultipleSeries {
		if s.Name == "" {
			result.add(apperrors.NewValidationError("multiple_series", "series name is required"))
		}
		if s.Measure == "" {
			result.add(apperrors.NewValidationError("multiple_series", "series measure is required"))
		}
		// Series consolidation issues a single IN-clause query, which only
		// works when every series shares one frequency.
		if s.Frequency != "" && s.Frequency != params.Frequency {
			result.add(apperrors.NewValidationError("multiple_series",
				"per-series frequency must match the request frequency"))
		}
	}

	if pc := params.PeriodComparison; pc != nil && pc.Enabled {
		validateDate("period_comparison.current_range.start_date", pc.CurrentRange.StartDate, true)
		validateDate("period_comparison.current_range.end_date", pc.CurrentRange.EndDate, true)
		validateDate("period_comparison.comparison_range.start_date", pc.ComparisonRange.StartDate, true)
		validateDate("period_comparison.comparison_range.end_date", pc.ComparisonRange.EndDate, true)
	}

	if params.Limit < 0 {
		result.add(apperrors.NewValidationError("limit", "limit must not be negative"))
	}

	return result
}
