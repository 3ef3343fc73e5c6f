package cache

import (
	"context"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/pulsedash/analytics-engine/pkg/models"
)

// QueryCache fronts the Store with the engine's two cached resources. Every
// failure of the backing store degrades gracefully: a read failure is a
// miss, a write failure is logged and swallowed. Only the explicit
// invalidation operations surface store errors, because their callers need
// to know invalidation did not happen.
type QueryCache interface {
	GetQueryResult(ctx context.Context, params *models.QueryParams, sec *models.SecurityContext) (*models.QueryResult, bool)
	SetQueryResult(ctx context.Context, params *models.QueryParams, sec *models.SecurityContext, result *models.QueryResult, ttl time.Duration)

	GetColumnMappings(ctx context.Context, schema, table string) (*models.ColumnMappings, bool)
	SetColumnMappings(ctx context.Context, schema, table string, m *models.ColumnMappings)

	GetDataSourceConfig(ctx context.Context, dataSourceID int64) (*models.DataSourceConfig, bool)
	SetDataSourceConfig(ctx context.Context, cfg *models.DataSourceConfig)

	// InvalidateDataSource pattern-deletes every cached result for the
	// source and drops its cached config. Returns the number of result
	// entries removed.
	InvalidateDataSource(ctx context.Context, dataSourceID int64) (int, error)
	InvalidateColumnMappings(ctx context.Context, schema, table string) error
}

type queryCache struct {
	store      Store
	mappingTTL time.Duration
	configTTL  time.Duration
	logger     *zap.Logger
}

// New creates a QueryCache over the given store. mappingTTL covers both
// column mappings and data-source configs (slow-changing metadata).
func New(store Store, mappingTTL, configTTL time.Duration, logger *zap.Logger) QueryCache {
	return &queryCache{
		store:      store,
		mappingTTL: mappingTTL,
		configTTL:  configTTL,
		logger:     logger.Named("query-cache"),
	}
}

var _ QueryCache = (*queryCache)(nil)

func (c *queryCache) GetQueryResult(ctx context.Context, params *models.QueryParams, sec *models.SecurityContext) (*models.QueryResult, bool) {
	key := ResultKey(params, sec)
	var result models.QueryResult
	if !c.getJSON(ctx, key, &result) {
		return nil, false
	}
	result.CacheHit = true
	return &result, true
}

func (c *queryCache) SetQueryResult(ctx context.Context, params *models.QueryParams, sec *models.SecurityContext, result *models.QueryResult, ttl time.Duration) {
	// Never persist the hit marker; it describes the serving request only.
	stored := *result
	stored.CacheHit = false
	c.setJSON(ctx, ResultKey(params, sec), &stored, ttl)
}

func (c *queryCache) GetColumnMappings(ctx context.Context, schema, table string) (*models.ColumnMappings, bool) {
	var m models.ColumnMappings
	if !c.getJSON(ctx, MappingKey(schema, table), &m) {
		return nil, false
	}
	return &m, true
}

func (c *queryCache) SetColumnMappings(ctx context.Context, schema, table string, m *models.ColumnMappings) {
	c.setJSON(ctx, MappingKey(schema, table), m, c.mappingTTL)
}

func (c *queryCache) GetDataSourceConfig(ctx context.Context, dataSourceID int64) (*models.DataSourceConfig, bool) {
	var cfg models.DataSourceConfig
	if !c.getJSON(ctx, ConfigKey(dataSourceID), &cfg) {
		return nil, false
	}
	return &cfg, true
}

func (c *queryCache) SetDataSourceConfig(ctx context.Context, cfg *models.DataSourceConfig) {
	c.setJSON(ctx, ConfigKey(cfg.ID), cfg, c.configTTL)
}

func (c *queryCache) InvalidateDataSource(ctx context.Context, dataSourceID int64) (int, error) {
	if err := c.store.Delete(ctx, ConfigKey(dataSourceID)); err != nil {
		return 0, err
	}
	deleted, err := c.store.DeleteMatching(ctx, ResultPrefix(dataSourceID))
	if err != nil {
		return deleted, err
	}
	c.logger.Info("Invalidated data source cache",
		zap.Int64("data_source_id", dataSourceID),
		zap.Int("results_deleted", deleted))
	return deleted, nil
}

func (c *queryCache) InvalidateColumnMappings(ctx context.Context, schema, table string) error {
	return c.store.Delete(ctx, MappingKey(schema, table))
}

// getJSON reads and decodes one entry. Any store or decode failure is a
// miss; the request proceeds against the database.
func (c *queryCache) getJSON(ctx context.Context, key string, out any) bool {
	raw, ok, err := c.store.Get(ctx, key)
	if err != nil {
		c.logger.Warn("Cache read failed, treating as miss", zap.String("key", key), zap.Error(err))
		return false
	}
	if !ok {
		return false
	}
	if err := json.Unmarshal(raw, out); err != nil {
		c.logger.Warn("Cache entry undecodable, treating as miss", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

// setJSON encodes and writes one entry. Failures are logged and ignored so
// a cache outage can never fail a request.
func (c *queryCache) setJSON(ctx context.Context, key string, value any, ttl time.Duration) {
	raw, err := json.Marshal(value)
	if err != nil {
		c.logger.Warn("Cache encode failed, skipping write", zap.String("key", key), zap.Error(err))
		return
	}
	if err := c.store.Set(ctx, key, raw, ttl); err != nil {
		c.logger.Warn("Cache write failed, skipping", zap.String("key", key), zap.Error(err))
	}
}
