package models

// Operator is a filter comparison operator. Only members of the fixed
// whitelist below are ever rendered into SQL.
type Operator string

const (
	OpEq      Operator = "eq"
	OpNeq     Operator = "neq"
	OpGt      Operator = "gt"
	OpGte     Operator = "gte"
	OpLt      Operator = "lt"
	OpLte     Operator = "lte"
	OpIn      Operator = "in"
	OpNotIn   Operator = "not_in"
	OpLike    Operator = "like"
	OpBetween Operator = "between"
)

// AllowedOperators is the global operator whitelist. Caller-supplied
// operator strings are never used outside this set.
var AllowedOperators = map[Operator]bool{
	OpEq:      true,
	OpNeq:     true,
	OpGt:      true,
	OpGte:     true,
	OpLt:      true,
	OpLte:     true,
	OpIn:      true,
	OpNotIn:   true,
	OpLike:    true,
	OpBetween: true,
}

// Filter is a single predicate on an allowed field. Value is a scalar for
// comparison operators, a slice for in/not_in, and a two-element slice
// [low, high] for between.
type Filter struct {
	Field    string   `json:"field"`
	Operator Operator `json:"operator"`
	Value    any      `json:"value"`
}

// SeriesSpec names one series of a multi-series request.
type SeriesSpec struct {
	Name      string `json:"name"`
	Measure   string `json:"measure"`
	Frequency string `json:"frequency,omitempty"`
}

// DateRange is an inclusive date interval in YYYY-MM-DD form.
type DateRange struct {
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

// PeriodComparison requests the same query shape over two disjoint ranges.
type PeriodComparison struct {
	Enabled         bool      `json:"enabled"`
	CurrentRange    DateRange `json:"current_range"`
	ComparisonRange DateRange `json:"comparison_range"`
}

// QueryParams is the declarative description of one analytics query.
// Params are never mutated after validation: execution strategies that need
// a transformed parameter set (period comparison, series consolidation)
// always work on a Clone.
type QueryParams struct {
	DataSourceID     int64             `json:"data_source_id"`
	Measure          string            `json:"measure,omitempty"`
	Frequency        string            `json:"frequency,omitempty"`
	StartDate        string            `json:"start_date,omitempty"`
	EndDate          string            `json:"end_date,omitempty"`
	Filters          []Filter          `json:"filters,omitempty"`
	MultipleSeries   []SeriesSpec      `json:"multiple_series,omitempty"`
	PeriodComparison *PeriodComparison `json:"period_comparison,omitempty"`
	IncludeTotals    bool              `json:"include_totals,omitempty"`
	Limit            int               `json:"limit,omitempty"`
}

// Clone returns a deep copy of the params. Filter values are copied at the
// slice level; individual values are treated as immutable once sanitized.
func (p *QueryParams) Clone() *QueryParams {
	c := *p
	if p.Filters != nil {
		c.Filters = make([]Filter, len(p.Filters))
		copy(c.Filters, p.Filters)
	}
	if p.MultipleSeries != nil {
		c.MultipleSeries = make([]SeriesSpec, len(p.MultipleSeries))
		copy(c.MultipleSeries, p.MultipleSeries)
	}
	if p.PeriodComparison != nil {
		pc := *p.PeriodComparison
		c.PeriodComparison = &pc
	}
	return &c
}

// ComparisonResult holds the second leg of a period-comparison query.
type ComparisonResult struct {
	Rows     []map[string]any   `json:"rows"`
	RowCount int                `json:"row_count"`
	Totals   map[string]float64 `json:"totals,omitempty"`
}

// QueryResult is the engine's answer to one query. Ephemeral; a copy may be
// written to the short-TTL result cache.
type QueryResult struct {
	Rows        []map[string]any            `json:"rows"`
	RowCount    int                         `json:"row_count"`
	QueryTimeMs int64                       `json:"query_time_ms"`
	CacheHit    bool                        `json:"cache_hit"`
	Totals      map[string]float64          `json:"totals,omitempty"`
	Series      map[string][]map[string]any `json:"series,omitempty"`
	Comparison  *ComparisonResult           `json:"comparison,omitempty"`
}
