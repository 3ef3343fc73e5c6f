package services

import (
	"context"
	"fmt"

	"github.com/pulsedash/analytics-engine/pkg/cache"
	"github.com/pulsedash/analytics-engine/pkg/models"
	"github.com/pulsedash/analytics-engine/pkg/repositories"
)

// ConfigResolver provides cached access to data-source descriptors and the
// column mappings derived from them. Both are slow-changing metadata with
// long TTLs; a cache outage just means every resolve hits the metadata
// store.
type ConfigResolver interface {
	Resolve(ctx context.Context, dataSourceID int64) (*models.DataSourceConfig, error)
	Mappings(ctx context.Context, cfg *models.DataSourceConfig) *models.ColumnMappings
}

type configResolver struct {
	repo  repositories.DataSourceConfigRepository
	cache cache.QueryCache
}

// NewConfigResolver creates a resolver over the metadata repository and the
// shared cache.
func NewConfigResolver(repo repositories.DataSourceConfigRepository, qc cache.QueryCache) ConfigResolver {
	return &configResolver{repo: repo, cache: qc}
}

var _ ConfigResolver = (*configResolver)(nil)

func (r *configResolver) Resolve(ctx context.Context, dataSourceID int64) (*models.DataSourceConfig, error) {
	if cfg, ok := r.cache.GetDataSourceConfig(ctx, dataSourceID); ok {
		return cfg, nil
	}

	cfg, err := r.repo.GetByID(ctx, dataSourceID)
	if err != nil {
		return nil, fmt.Errorf("resolve data source config: %w", err)
	}

	r.cache.SetDataSourceConfig(ctx, cfg)
	return cfg, nil
}

func (r *configResolver) Mappings(ctx context.Context, cfg *models.DataSourceConfig) *models.ColumnMappings {
	if m, ok := r.cache.GetColumnMappings(ctx, cfg.SchemaName, cfg.TableName); ok {
		return m
	}

	m := models.ResolveColumnMappings(cfg)
	r.cache.SetColumnMappings(ctx, cfg.SchemaName, cfg.TableName, m)
	return m
}
