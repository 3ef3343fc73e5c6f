package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulsedash/analytics-engine/pkg/apperrors"
	"github.com/pulsedash/analytics-engine/pkg/models"
)

func TestConfigResolver_Resolve_CacheMissHitsRepository(t *testing.T) {
	repo := &mockConfigRepository{cfg: testDataSourceConfig()}
	qc := newMockQueryCache()
	resolver := NewConfigResolver(repo, qc)

	cfg, err := resolver.Resolve(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "revenue_daily", cfg.TableName)
	assert.Equal(t, 1, repo.calls)

	// The descriptor is now cached for the next resolve.
	_, ok := qc.GetDataSourceConfig(context.Background(), 1)
	assert.True(t, ok)

	_, err = resolver.Resolve(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 1, repo.calls, "second resolve must come from the cache")
}

func TestConfigResolver_Resolve_NotFound(t *testing.T) {
	repo := &mockConfigRepository{err: apperrors.ErrNotFound}
	resolver := NewConfigResolver(repo, newMockQueryCache())

	_, err := resolver.Resolve(context.Background(), 404)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestConfigResolver_Mappings_DerivedAndCached(t *testing.T) {
	qc := newMockQueryCache()
	resolver := NewConfigResolver(&mockConfigRepository{}, qc)

	cfg := testDataSourceConfig()
	m := resolver.Mappings(context.Background(), cfg)

	assert.Equal(t, "tenant_id", m.TenantIDColumn)
	assert.Equal(t, "period_date", m.DateColumn)
	assert.Equal(t, cfg.AllowedFields, m.AllColumns)

	cached, ok := qc.GetColumnMappings(context.Background(), "analytics", "revenue_daily")
	require.True(t, ok)
	assert.Equal(t, m, cached)
}

func TestConfigResolver_Mappings_AppliesOverrides(t *testing.T) {
	cfg := testDataSourceConfig()
	cfg.TenantIDColumn = "practice_id"
	cfg.MeasureValueColumn = "amount"
	resolver := NewConfigResolver(&mockConfigRepository{}, newMockQueryCache())

	m := resolver.Mappings(context.Background(), cfg)
	assert.Equal(t, "practice_id", m.TenantIDColumn)
	assert.Equal(t, "amount", m.MeasureValueColumn)
	// Untouched aliases keep the engine defaults.
	assert.Equal(t, models.DefaultDateColumn, m.DateColumn)
}

func TestConfigResolver_Mappings_PrefersCachedEntry(t *testing.T) {
	qc := newMockQueryCache()
	cachedMappings := &models.ColumnMappings{TenantIDColumn: "cached_tenant"}
	qc.SetColumnMappings(context.Background(), "analytics", "revenue_daily", cachedMappings)

	resolver := NewConfigResolver(&mockConfigRepository{}, qc)
	m := resolver.Mappings(context.Background(), testDataSourceConfig())
	assert.Equal(t, "cached_tenant", m.TenantIDColumn)
}
