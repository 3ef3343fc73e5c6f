package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pulsedash/analytics-engine/pkg/apperrors"
	"github.com/pulsedash/analytics-engine/pkg/cache"
	"github.com/pulsedash/analytics-engine/pkg/config"
	"github.com/pulsedash/analytics-engine/pkg/logging"
	"github.com/pulsedash/analytics-engine/pkg/models"
	"github.com/pulsedash/analytics-engine/pkg/repositories"
	enginesql "github.com/pulsedash/analytics-engine/pkg/sql"
)

// QueryService is the engine's public entry point. Query walks
// Validate -> ResolveConfig -> BuildFilterList -> Sanitize -> Route; the
// three routed strategies all bottom out in the executor's core routine and
// never call back into Query, so routing cannot recurse.
type QueryService interface {
	Query(ctx context.Context, params *models.QueryParams, sec *models.SecurityContext) (*models.QueryResult, error)

	// InvalidateDataSource drops every cached result for the source by
	// prefix and its column-mapping and config entries by exact key. Must
	// be called by any mutation path that changes the underlying table.
	InvalidateDataSource(ctx context.Context, dataSourceID int64) (int, error)
}

type queryService struct {
	executor    QueryExecutor
	resolver    ConfigResolver
	repo        repositories.DataSourceConfigRepository
	cache       cache.QueryCache
	defaultRows int
	maxRows     int
	logger      *zap.Logger
}

// NewQueryService creates the orchestrator.
func NewQueryService(executor QueryExecutor, resolver ConfigResolver, repo repositories.DataSourceConfigRepository, qc cache.QueryCache, queryCfg *config.QueryConfig, logger *zap.Logger) QueryService {
	return &queryService{
		executor:    executor,
		resolver:    resolver,
		repo:        repo,
		cache:       qc,
		defaultRows: queryCfg.DefaultRows,
		maxRows:     queryCfg.MaxRows,
		logger:      logger.Named("query-service"),
	}
}

var _ QueryService = (*queryService)(nil)

func (s *queryService) Query(ctx context.Context, params *models.QueryParams, sec *models.SecurityContext) (*models.QueryResult, error) {
	queryID := uuid.New()
	log := s.logger.With(
		zap.String("query_id", queryID.String()),
		zap.Int64("data_source_id", params.DataSourceID))

	if sec == nil {
		return nil, apperrors.NewSecurityViolation("", "no security context resolved")
	}
	if !sec.Scope.Valid() {
		return nil, apperrors.NewSecurityViolation("permission_scope", "unknown permission scope")
	}

	// ResolveConfig. The descriptor is the validation authority, so it
	// resolves before validation runs.
	cfg, err := s.resolver.Resolve(ctx, params.DataSourceID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.NewValidationError("data_source_id", "unknown data source")
		}
		return nil, err
	}

	// Validate.
	if vr := enginesql.ValidateParams(params, cfg); !vr.IsValid {
		s.logRejection(log, vr.Errors)
		return nil, vr.First()
	}

	// BuildFilterList: fold measure and frequency into ordinary filters on
	// a derived copy. The caller's params are never mutated.
	mappings := s.resolver.Mappings(ctx, cfg)
	derived := params.Clone()
	if derived.Measure != "" && len(derived.MultipleSeries) == 0 {
		derived.Filters = append(derived.Filters, models.Filter{
			Field:    mappings.MeasureTypeColumn,
			Operator: models.OpEq,
			Value:    derived.Measure,
		})
		derived.Measure = ""
	}
	if derived.Frequency != "" {
		derived.Filters = append(derived.Filters, models.Filter{
			Field:    mappings.TimePeriodColumn,
			Operator: models.OpEq,
			Value:    derived.Frequency,
		})
		derived.Frequency = ""
	}

	// Sanitize. A single rejected value rejects the whole request.
	derived.Filters, err = enginesql.SanitizeFilters(derived.Filters)
	if err != nil {
		s.logRejection(log, []error{err})
		return nil, err
	}
	for _, series := range derived.MultipleSeries {
		if _, err := enginesql.SanitizeValue("multiple_series", series.Measure, models.OpEq); err != nil {
			s.logRejection(log, []error{err})
			return nil, err
		}
	}

	derived.Limit = s.clampLimit(derived.Limit)

	// Route. Priority order: multi-series, then period comparison, then
	// the plain core path.
	var result *models.QueryResult
	switch {
	case len(derived.MultipleSeries) > 0:
		result, err = s.executor.ExecuteMultipleSeries(ctx, derived, sec)
	case derived.PeriodComparison != nil && derived.PeriodComparison.Enabled:
		result, err = s.executor.ExecutePeriodComparison(ctx, derived, sec)
	default:
		result, err = s.executor.ExecuteCore(ctx, derived, sec)
	}
	if err != nil {
		return nil, err
	}

	log.Debug("Query served",
		zap.Int("row_count", result.RowCount),
		zap.Int64("query_time_ms", result.QueryTimeMs),
		zap.Bool("cache_hit", result.CacheHit))

	return result, nil
}

func (s *queryService) InvalidateDataSource(ctx context.Context, dataSourceID int64) (int, error) {
	// Resolve straight from the metadata store: the cached descriptor may
	// be what the caller is invalidating.
	cfg, err := s.repo.GetByID(ctx, dataSourceID)
	if err != nil {
		return 0, fmt.Errorf("invalidate data source %d: %w", dataSourceID, err)
	}

	deleted, err := s.cache.InvalidateDataSource(ctx, dataSourceID)
	if err != nil {
		return deleted, fmt.Errorf("invalidate results for data source %d: %w", dataSourceID, err)
	}
	if err := s.cache.InvalidateColumnMappings(ctx, cfg.SchemaName, cfg.TableName); err != nil {
		return deleted, fmt.Errorf("invalidate column mappings for data source %d: %w", dataSourceID, err)
	}

	return deleted, nil
}

func (s *queryService) clampLimit(limit int) int {
	if limit <= 0 {
		return s.defaultRows
	}
	if limit > s.maxRows {
		return s.maxRows
	}
	return limit
}

// logRejection records rejected requests without echoing caller-supplied
// values. Whitelist breaches log at warn for audit; plain validation noise
// stays at debug.
func (s *queryService) logRejection(log *zap.Logger, errs []error) {
	for _, err := range errs {
		var sv *apperrors.SecurityViolation
		if errors.As(err, &sv) {
			log.Warn("Security violation rejected",
				zap.String("field", sv.Field),
				zap.String("reason", sv.Reason))
			continue
		}
		log.Debug("Request rejected", zap.String("error", logging.SanitizeError(err)))
	}
}
