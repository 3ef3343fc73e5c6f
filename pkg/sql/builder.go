package sql

import (
	"fmt"
	"strings"

	"github.com/pulsedash/analytics-engine/pkg/apperrors"
	"github.com/pulsedash/analytics-engine/pkg/models"
)

// impossibleTenantID is bound when a security context grants no tenants.
// The predicate stays structurally present and guaranteed false: omitting
// it would mean "see everything", the opposite of fail-closed.
const impossibleTenantID = int64(-1)

// WhereClause is a rendered WHERE body with its ordered bind parameters.
// NextIndex is the next free $n placeholder, so callers can keep appending
// fragments against the same running index.
type WhereClause struct {
	Clause    string
	Params    []any
	NextIndex int
}

// BuildWhereClause renders the security predicate followed by the
// sanitized user filters, all sharing one strictly incrementing placeholder
// index. Filters must have passed validation and sanitization already; the
// builder still refuses any field that is not a plain identifier.
func BuildWhereClause(filters []models.Filter, sec *models.SecurityContext, m *models.ColumnMappings) (*WhereClause, error) {
	var (
		conds  []string
		params []any
	)
	idx := 1

	next := func(v any) string {
		params = append(params, v)
		p := fmt.Sprintf("$%d", idx)
		idx++
		return p
	}

	// Security predicate first. Always present.
	if sec == nil || !sec.HasTenantAccess() {
		conds = append(conds, fmt.Sprintf("%s = %s", m.TenantIDColumn, next(impossibleTenantID)))
	} else {
		conds = append(conds, fmt.Sprintf("%s = ANY(%s)", m.TenantIDColumn, next(sec.AccessibleTenantIDs)))
	}

	if sec != nil && sec.Scope == models.ScopeOwn {
		if len(sec.AccessibleSubEntityIDs) == 0 {
			conds = append(conds, fmt.Sprintf("%s = %s", m.SubEntityIDColumn, next(impossibleTenantID)))
		} else {
			conds = append(conds, fmt.Sprintf("%s = ANY(%s)", m.SubEntityIDColumn, next(sec.AccessibleSubEntityIDs)))
		}
	}

	for _, f := range filters {
		if !ValidIdentifier(f.Field) {
			return nil, apperrors.NewSecurityViolation(f.Field, "identifier is not a plain SQL name")
		}
		switch f.Operator {
		case models.OpEq:
			conds = append(conds, fmt.Sprintf("%s = %s", f.Field, next(f.Value)))
		case models.OpNeq:
			conds = append(conds, fmt.Sprintf("%s <> %s", f.Field, next(f.Value)))
		case models.OpGt:
			conds = append(conds, fmt.Sprintf("%s > %s", f.Field, next(f.Value)))
		case models.OpGte:
			conds = append(conds, fmt.Sprintf("%s >= %s", f.Field, next(f.Value)))
		case models.OpLt:
			conds = append(conds, fmt.Sprintf("%s < %s", f.Field, next(f.Value)))
		case models.OpLte:
			conds = append(conds, fmt.Sprintf("%s <= %s", f.Field, next(f.Value)))
		case models.OpLike:
			conds = append(conds, fmt.Sprintf("%s LIKE %s", f.Field, next(f.Value)))
		case models.OpIn:
			conds = append(conds, fmt.Sprintf("%s = ANY(%s)", f.Field, next(f.Value)))
		case models.OpNotIn:
			conds = append(conds, fmt.Sprintf("%s <> ALL(%s)", f.Field, next(f.Value)))
		case models.OpBetween:
			pair, ok := f.Value.([]any)
			if !ok || len(pair) != 2 {
				return nil, apperrors.NewValidationError(f.Field, "between requires exactly [low, high]")
			}
			low := next(pair[0])
			high := next(pair[1])
			conds = append(conds, fmt.Sprintf("%s BETWEEN %s AND %s", f.Field, low, high))
		default:
			return nil, apperrors.NewSecurityViolation(string(f.Operator), "operator is not allowed")
		}
	}

	return &WhereClause{
		Clause:    strings.Join(conds, " AND "),
		Params:    params,
		NextIndex: idx,
	}, nil
}

// BuildSelectColumns renders the projection list from the resolved column
// whitelist. An empty whitelist falls back to the mapped core columns so a
// misconfigured source still cannot select arbitrary columns.
func BuildSelectColumns(m *models.ColumnMappings) string {
	if len(m.AllColumns) > 0 {
		return strings.Join(m.AllColumns, ", ")
	}
	return strings.Join([]string{
		m.TenantIDColumn, m.DateColumn, m.TimePeriodColumn,
		m.MeasureTypeColumn, m.MeasureValueColumn,
	}, ", ")
}

// BuildOrderBy orders results by date then time bucket, ascending, which is
// the presentation order every chart consumes.
func BuildOrderBy(m *models.ColumnMappings) string {
	return fmt.Sprintf("ORDER BY %s ASC, %s ASC", m.DateColumn, m.TimePeriodColumn)
}

// BuildQuery assembles the full SELECT for one data source. The limit is
// bound as a parameter like everything else.
func BuildQuery(filters []models.Filter, sec *models.SecurityContext, m *models.ColumnMappings, schema, table string, limit int) (string, []any, error) {
	if !ValidIdentifier(schema) || !ValidIdentifier(table) {
		return "", nil, apperrors.NewSecurityViolation("table", "identifier is not a plain SQL name")
	}

	where, err := BuildWhereClause(filters, sec, m)
	if err != nil {
		return "", nil, err
	}

	sqlText := fmt.Sprintf(
		"SELECT %s FROM %s.%s WHERE %s %s LIMIT $%d",
		BuildSelectColumns(m), schema, table, where.Clause, BuildOrderBy(m), where.NextIndex,
	)
	params := append(where.Params, limit)

	return sqlText, params, nil
}

// BuildAggregationQuery assembles the scalar-totals companion query over
// the same predicate set.
func BuildAggregationQuery(filters []models.Filter, sec *models.SecurityContext, m *models.ColumnMappings, schema, table string) (string, []any, error) {
	if !ValidIdentifier(schema) || !ValidIdentifier(table) {
		return "", nil, apperrors.NewSecurityViolation("table", "identifier is not a plain SQL name")
	}

	where, err := BuildWhereClause(filters, sec, m)
	if err != nil {
		return "", nil, err
	}

	sqlText := fmt.Sprintf(
		"SELECT COALESCE(SUM(%[1]s), 0) AS total_sum, COALESCE(AVG(%[1]s), 0) AS average, COUNT(*) AS row_count FROM %[2]s.%[3]s WHERE %[4]s",
		m.MeasureValueColumn, schema, table, where.Clause,
	)

	return sqlText, where.Params, nil
}
