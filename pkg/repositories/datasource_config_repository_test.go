package repositories

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulsedash/analytics-engine/pkg/apperrors"
	"github.com/pulsedash/analytics-engine/pkg/models"
	"github.com/pulsedash/analytics-engine/pkg/testhelpers"
)

const createDataSourcesTable = `
CREATE TABLE IF NOT EXISTS engine_data_sources (
    id BIGINT PRIMARY KEY,
    name TEXT NOT NULL,
    schema_name TEXT NOT NULL,
    table_name TEXT NOT NULL,
    allowed_fields JSONB NOT NULL DEFAULT '[]'::jsonb,
    allowed_operators_per_field JSONB,
    tenant_id_column TEXT NOT NULL DEFAULT '',
    sub_entity_id_column TEXT NOT NULL DEFAULT '',
    date_column TEXT NOT NULL DEFAULT '',
    time_period_column TEXT NOT NULL DEFAULT '',
    measure_value_column TEXT NOT NULL DEFAULT '',
    measure_type_column TEXT NOT NULL DEFAULT '',
    result_ttl_seconds INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

func setupRepository(t *testing.T) DataSourceConfigRepository {
	t.Helper()
	testDB := testhelpers.GetTestDB(t)
	ctx := context.Background()

	_, err := testDB.DB.Exec(ctx, createDataSourcesTable)
	require.NoError(t, err)
	_, err = testDB.DB.Exec(ctx, "TRUNCATE engine_data_sources")
	require.NoError(t, err)

	_, err = testDB.DB.Exec(ctx, `
		INSERT INTO engine_data_sources
			(id, name, schema_name, table_name, allowed_fields,
			 allowed_operators_per_field, tenant_id_column, result_ttl_seconds)
		VALUES
			(1, 'revenue', 'analytics', 'revenue_daily',
			 '["tenant_id", "period_date", "measure", "measure_value", "region"]',
			 '{"region": ["eq", "in"]}',
			 'practice_id', 120),
			(2, 'visits', 'analytics', 'visits_daily',
			 '["tenant_id", "period_date", "measure", "measure_value"]',
			 NULL, '', 0)`)
	require.NoError(t, err)

	return NewDataSourceConfigRepository(testDB.DB)
}

func TestGetByID(t *testing.T) {
	repo := setupRepository(t)
	ctx := context.Background()

	cfg, err := repo.GetByID(ctx, 1)
	require.NoError(t, err)

	assert.Equal(t, int64(1), cfg.ID)
	assert.Equal(t, "revenue", cfg.Name)
	assert.Equal(t, "analytics", cfg.SchemaName)
	assert.Equal(t, "revenue_daily", cfg.TableName)
	assert.Equal(t, []string{"tenant_id", "period_date", "measure", "measure_value", "region"}, cfg.AllowedFields)
	assert.Equal(t, []models.Operator{models.OpEq, models.OpIn}, cfg.AllowedOperatorsPerField["region"])
	assert.Equal(t, "practice_id", cfg.TenantIDColumn)
	assert.Equal(t, 120, cfg.ResultTTLSeconds)
	assert.False(t, cfg.CreatedAt.IsZero())
}

func TestGetByID_NullOperatorNarrowing(t *testing.T) {
	repo := setupRepository(t)

	cfg, err := repo.GetByID(context.Background(), 2)
	require.NoError(t, err)
	assert.Nil(t, cfg.AllowedOperatorsPerField)
	assert.Empty(t, cfg.TenantIDColumn, "unset alias resolves to default later")
}

func TestGetByID_NotFound(t *testing.T) {
	repo := setupRepository(t)

	_, err := repo.GetByID(context.Background(), 404)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}
