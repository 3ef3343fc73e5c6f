// Package repositories provides data access to the engine metadata store.
package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"

	"github.com/pulsedash/analytics-engine/pkg/apperrors"
	"github.com/pulsedash/analytics-engine/pkg/database"
	"github.com/pulsedash/analytics-engine/pkg/models"
)

// DataSourceConfigRepository loads data-source descriptors from the
// engine_data_sources metadata table. The engine treats the descriptors as
// read-only and authoritative for validation; writes happen through
// external provisioning, never here.
type DataSourceConfigRepository interface {
	// GetByID returns the descriptor, or apperrors.ErrNotFound.
	GetByID(ctx context.Context, dataSourceID int64) (*models.DataSourceConfig, error)
}

type dataSourceConfigRepository struct {
	db *database.DB
}

// NewDataSourceConfigRepository creates the metadata repository.
func NewDataSourceConfigRepository(db *database.DB) DataSourceConfigRepository {
	return &dataSourceConfigRepository{db: db}
}

var _ DataSourceConfigRepository = (*dataSourceConfigRepository)(nil)

func (r *dataSourceConfigRepository) GetByID(ctx context.Context, dataSourceID int64) (*models.DataSourceConfig, error) {
	const query = `
		SELECT id, name, schema_name, table_name,
		       allowed_fields, allowed_operators_per_field,
		       tenant_id_column, sub_entity_id_column,
		       date_column, time_period_column,
		       measure_value_column, measure_type_column,
		       result_ttl_seconds, created_at, updated_at
		FROM engine_data_sources
		WHERE id = $1`

	var (
		cfg           models.DataSourceConfig
		fieldsJSON    []byte
		operatorsJSON []byte
	)

	err := r.db.QueryRow(ctx, query, dataSourceID).Scan(
		&cfg.ID, &cfg.Name, &cfg.SchemaName, &cfg.TableName,
		&fieldsJSON, &operatorsJSON,
		&cfg.TenantIDColumn, &cfg.SubEntityIDColumn,
		&cfg.DateColumn, &cfg.TimePeriodColumn,
		&cfg.MeasureValueColumn, &cfg.MeasureTypeColumn,
		&cfg.ResultTTLSeconds, &cfg.CreatedAt, &cfg.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("data source %d: %w", dataSourceID, apperrors.ErrNotFound)
		}
		return nil, fmt.Errorf("query data source config: %w", err)
	}

	if err := json.Unmarshal(fieldsJSON, &cfg.AllowedFields); err != nil {
		return nil, fmt.Errorf("decode allowed fields for data source %d: %w", dataSourceID, err)
	}
	if len(operatorsJSON) > 0 {
		if err := json.Unmarshal(operatorsJSON, &cfg.AllowedOperatorsPerField); err != nil {
			return nil, fmt.Errorf("decode allowed operators for data source %d: %w", dataSourceID, err)
		}
	}

	return &cfg, nil
}
