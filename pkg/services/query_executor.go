package services

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pulsedash/analytics-engine/pkg/apperrors"
	"github.com/pulsedash/analytics-engine/pkg/cache"
	"github.com/pulsedash/analytics-engine/pkg/config"
	"github.com/pulsedash/analytics-engine/pkg/logging"
	"github.com/pulsedash/analytics-engine/pkg/models"
	"github.com/pulsedash/analytics-engine/pkg/retry"
	enginesql "github.com/pulsedash/analytics-engine/pkg/sql"
)

// QueryExecutor runs validated, sanitized queries against the warehouse.
// ExecuteCore is the single leaf execution routine; the multi-series and
// period-comparison strategies are wrappers that transform the parameter
// set and call it - they never route back through the orchestrator, which
// is what keeps the execution graph recursion-free.
type QueryExecutor interface {
	ExecuteCore(ctx context.Context, params *models.QueryParams, sec *models.SecurityContext) (*models.QueryResult, error)
	ExecuteMultipleSeries(ctx context.Context, params *models.QueryParams, sec *models.SecurityContext) (*models.QueryResult, error)
	ExecutePeriodComparison(ctx context.Context, params *models.QueryParams, sec *models.SecurityContext) (*models.QueryResult, error)
}

type queryExecutor struct {
	db       AnalyticsDB
	cache    cache.QueryCache
	resolver ConfigResolver

	resultTTL    time.Duration
	writeTimeout time.Duration
	maxRetries   int

	logger *zap.Logger
}

// NewQueryExecutor creates the executor.
func NewQueryExecutor(db AnalyticsDB, qc cache.QueryCache, resolver ConfigResolver, cacheCfg *config.CacheConfig, queryCfg *config.QueryConfig, logger *zap.Logger) QueryExecutor {
	return &queryExecutor{
		db:           db,
		cache:        qc,
		resolver:     resolver,
		resultTTL:    cacheCfg.ResultTTL(),
		writeTimeout: cacheCfg.WriteTimeout(),
		maxRetries:   queryCfg.MaxRetries,
		logger:       logger.Named("query-executor"),
	}
}

var _ QueryExecutor = (*queryExecutor)(nil)

// ExecuteCore is the non-recursive leaf routine: result-cache check, column
// mapping resolution, SQL build, retried execution, optional totals, and a
// fire-and-forget cache write.
func (e *queryExecutor) ExecuteCore(ctx context.Context, params *models.QueryParams, sec *models.SecurityContext) (*models.QueryResult, error) {
	start := time.Now()

	if result, ok := e.cache.GetQueryResult(ctx, params, sec); ok {
		e.logger.Debug("Result cache hit", zap.Int64("data_source_id", params.DataSourceID))
		return result, nil
	}

	cfg, err := e.resolver.Resolve(ctx, params.DataSourceID)
	if err != nil {
		return nil, err
	}
	mappings := e.resolver.Mappings(ctx, cfg)

	filters := e.effectiveFilters(params, mappings)

	sqlText, args, err := enginesql.BuildQuery(filters, sec, mappings, cfg.SchemaName, cfg.TableName, params.Limit)
	if err != nil {
		return nil, err
	}

	rows, err := e.runQuery(ctx, sqlText, args)
	if err != nil {
		return nil, err
	}

	result := &models.QueryResult{
		Rows:     rows,
		RowCount: len(rows),
	}

	if params.IncludeTotals {
		totals, err := e.runAggregation(ctx, filters, sec, mappings, cfg)
		if err != nil {
			return nil, err
		}
		result.Totals = totals
	}

	result.QueryTimeMs = time.Since(start).Milliseconds()

	e.writeResultCache(ctx, params, sec, result, cfg)

	return result, nil
}

// ExecuteMultipleSeries consolidates all requested series into one
// statement: the per-series measure filters collapse into a single
// measure = ANY($n) predicate, and the returned rows are partitioned by
// series membership in application code. One round trip for N series.
func (e *queryExecutor) ExecuteMultipleSeries(ctx context.Context, params *models.QueryParams, sec *models.SecurityContext) (*models.QueryResult, error) {
	if len(params.MultipleSeries) == 0 {
		return nil, apperrors.NewValidationError("multiple_series", "no series requested")
	}

	cfg, err := e.resolver.Resolve(ctx, params.DataSourceID)
	if err != nil {
		return nil, err
	}
	mappings := e.resolver.Mappings(ctx, cfg)

	nameByMeasure := make(map[string]string, len(params.MultipleSeries))
	measures := make([]any, 0, len(params.MultipleSeries))
	for _, s := range params.MultipleSeries {
		if _, dup := nameByMeasure[s.Measure]; !dup {
			measures = append(measures, s.Measure)
		}
		nameByMeasure[s.Measure] = s.Name
	}

	consolidated := params.Clone()
	consolidated.Measure = ""
	consolidated.MultipleSeries = nil
	consolidated.Filters = append(consolidated.Filters, models.Filter{
		Field:    mappings.MeasureTypeColumn,
		Operator: models.OpIn,
		Value:    measures,
	})

	result, err := e.ExecuteCore(ctx, consolidated, sec)
	if err != nil {
		return nil, fmt.Errorf("multi-series query: %w", err)
	}

	series := make(map[string][]map[string]any, len(nameByMeasure))
	for _, name := range nameByMeasure {
		series[name] = []map[string]any{}
	}
	for _, row := range result.Rows {
		measure, _ := row[mappings.MeasureTypeColumn].(string)
		name, ok := nameByMeasure[measure]
		if !ok {
			continue
		}
		series[name] = append(series[name], row)
	}
	result.Series = series

	return result, nil
}

// ExecutePeriodComparison runs the query shape over the current and the
// comparison date range concurrently. The two legs share no mutable state -
// each gets its own immutable params copy - and a caller cancellation
// cancels both and fails the combined call with one error.
func (e *queryExecutor) ExecutePeriodComparison(ctx context.Context, params *models.QueryParams, sec *models.SecurityContext) (*models.QueryResult, error) {
	pc := params.PeriodComparison
	if pc == nil || !pc.Enabled {
		return nil, apperrors.NewValidationError("period_comparison", "period comparison not requested")
	}

	currentParams := params.Clone()
	currentParams.PeriodComparison = nil
	currentParams.StartDate = pc.CurrentRange.StartDate
	currentParams.EndDate = pc.CurrentRange.EndDate

	comparisonParams := params.Clone()
	comparisonParams.PeriodComparison = nil
	comparisonParams.StartDate = pc.ComparisonRange.StartDate
	comparisonParams.EndDate = pc.ComparisonRange.EndDate

	var current, comparison *models.QueryResult

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		r, err := e.ExecuteCore(gctx, currentParams, sec)
		if err != nil {
			return fmt.Errorf("current period: %w", err)
		}
		current = r
		return nil
	})
	g.Go(func() error {
		r, err := e.ExecuteCore(gctx, comparisonParams, sec)
		if err != nil {
			return fmt.Errorf("comparison period: %w", err)
		}
		comparison = r
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("period comparison: %w", err)
	}

	result := &models.QueryResult{
		Rows:        current.Rows,
		RowCount:    current.RowCount,
		QueryTimeMs: max(current.QueryTimeMs, comparison.QueryTimeMs),
		CacheHit:    current.CacheHit && comparison.CacheHit,
		Totals:      current.Totals,
		Comparison: &models.ComparisonResult{
			Rows:     comparison.Rows,
			RowCount: comparison.RowCount,
			Totals:   comparison.Totals,
		},
	}

	return result, nil
}

// effectiveFilters appends the structured date range to the sanitized user
// filters. The range dates passed validation, so they bind like any other
// parameter.
func (e *queryExecutor) effectiveFilters(params *models.QueryParams, m *models.ColumnMappings) []models.Filter {
	filters := make([]models.Filter, 0, len(params.Filters)+2)
	filters = append(filters, params.Filters...)
	if params.StartDate != "" {
		filters = append(filters, models.Filter{Field: m.DateColumn, Operator: models.OpGte, Value: params.StartDate})
	}
	if params.EndDate != "" {
		filters = append(filters, models.Filter{Field: m.DateColumn, Operator: models.OpLte, Value: params.EndDate})
	}
	return filters
}

func (e *queryExecutor) runQuery(ctx context.Context, sqlText string, args []any) ([]map[string]any, error) {
	rows, err := retry.DoWithResult(ctx, retry.WithMaxRetries(e.maxRetries), func() ([]map[string]any, error) {
		return e.db.QueryRows(ctx, sqlText, args)
	})
	if err != nil {
		e.logger.Error("Query execution failed",
			zap.String("query", logging.SanitizeQuery(sqlText)),
			zap.String("error", logging.SanitizeError(err)))
		return nil, apperrors.NewExecutionError(err, retry.IsRetryable(err))
	}
	return rows, nil
}

func (e *queryExecutor) runAggregation(ctx context.Context, filters []models.Filter, sec *models.SecurityContext, m *models.ColumnMappings, cfg *models.DataSourceConfig) (map[string]float64, error) {
	sqlText, args, err := enginesql.BuildAggregationQuery(filters, sec, m, cfg.SchemaName, cfg.TableName)
	if err != nil {
		return nil, err
	}

	rows, err := e.runQuery(ctx, sqlText, args)
	if err != nil {
		return nil, fmt.Errorf("aggregation query: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	totals := make(map[string]float64, len(rows[0]))
	for col, val := range rows[0] {
		if f, ok := toFloat64(val); ok {
			totals[col] = f
		}
	}
	return totals, nil
}

// writeResultCache stores the result without blocking the response. The
// write runs on a detached context so a caller cancel right after delivery
// cannot abort it, bounded by the configured timeout.
func (e *queryExecutor) writeResultCache(ctx context.Context, params *models.QueryParams, sec *models.SecurityContext, result *models.QueryResult, cfg *models.DataSourceConfig) {
	ttl := e.resultTTL
	if cfg.ResultTTLSeconds > 0 {
		ttl = time.Duration(cfg.ResultTTLSeconds) * time.Second
	}

	// Snapshot before handing off: the series and comparison wrappers keep
	// transforming the returned struct after ExecuteCore returns, so the
	// write goroutine must not read it.
	snapshot := *result

	detached, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.writeTimeout)
	go func() {
		defer cancel()
		e.cache.SetQueryResult(detached, params, sec, &snapshot, ttl)
	}()
}

func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case int:
		return float64(n), true
	}
	return 0, false
}
