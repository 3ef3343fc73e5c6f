package services

import (
	"context"
	"fmt"

	"github.com/pulsedash/analytics-engine/pkg/database"
)

// AnalyticsDB is the engine's SQL execution boundary: it takes SQL text
// with $n placeholders and an ordered parameter list, and returns rows as
// column-name keyed maps. The engine never hands it a literal SQL string
// with interpolated values.
type AnalyticsDB interface {
	QueryRows(ctx context.Context, sqlText string, params []any) ([]map[string]any, error)
}

// pgxAnalyticsDB runs queries against the warehouse pool. pgx binds
// parameters natively, which is the primary injection defense.
type pgxAnalyticsDB struct {
	db *database.DB
}

// NewAnalyticsDB wraps the warehouse pool as an AnalyticsDB.
func NewAnalyticsDB(db *database.DB) AnalyticsDB {
	return &pgxAnalyticsDB{db: db}
}

var _ AnalyticsDB = (*pgxAnalyticsDB)(nil)

func (d *pgxAnalyticsDB) QueryRows(ctx context.Context, sqlText string, params []any) ([]map[string]any, error) {
	rows, err := d.db.Query(ctx, sqlText, params...)
	if err != nil {
		return nil, fmt.Errorf("execute query: %w", err)
	}
	defer rows.Close()

	fieldDescs := rows.FieldDescriptions()
	columns := make([]string, len(fieldDescs))
	for i, fd := range fieldDescs {
		columns[i] = string(fd.Name)
	}

	result := make([]map[string]any, 0)
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("read row values: %w", err)
		}
		rowMap := make(map[string]any, len(columns))
		for i, col := range columns {
			rowMap[col] = values[i]
		}
		result = append(result, rowMap)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return result, nil
}
