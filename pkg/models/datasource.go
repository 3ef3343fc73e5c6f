package models

import "time"

// DataSourceConfig describes one queryable analytics table. Loaded from the
// engine metadata store, cached long-TTL, and treated as authoritative for
// validation: a field or table not listed here fails closed.
type DataSourceConfig struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	SchemaName string `json:"schema_name"`
	TableName  string `json:"table_name"`

	// AllowedFields is the whitelist of filterable/selectable columns.
	AllowedFields []string `json:"allowed_fields"`

	// AllowedOperatorsPerField optionally narrows the global operator
	// whitelist for specific fields. A field absent from this map accepts
	// any globally allowed operator.
	AllowedOperatorsPerField map[string][]Operator `json:"allowed_operators_per_field,omitempty"`

	// Column aliases for the generic query concepts. Empty values fall back
	// to the engine defaults when mappings are resolved.
	TenantIDColumn     string `json:"tenant_id_column,omitempty"`
	SubEntityIDColumn  string `json:"sub_entity_id_column,omitempty"`
	DateColumn         string `json:"date_column,omitempty"`
	TimePeriodColumn   string `json:"time_period_column,omitempty"`
	MeasureValueColumn string `json:"measure_value_column,omitempty"`
	MeasureTypeColumn  string `json:"measure_type_column,omitempty"`

	// ResultTTLSeconds overrides the default result-cache TTL when > 0.
	ResultTTLSeconds int `json:"result_ttl_seconds,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AllowsField reports whether the column is on the whitelist.
func (c *DataSourceConfig) AllowsField(field string) bool {
	for _, f := range c.AllowedFields {
		if f == field {
			return true
		}
	}
	return false
}

// Default column aliases used when a data source does not override them.
const (
	DefaultTenantIDColumn     = "tenant_id"
	DefaultSubEntityIDColumn  = "provider_id"
	DefaultDateColumn         = "period_date"
	DefaultTimePeriodColumn   = "time_period"
	DefaultMeasureValueColumn = "measure_value"
	DefaultMeasureTypeColumn  = "measure"
)

// ColumnMappings are the resolved table-specific aliases for the generic
// query concepts, so query-building code stays table-agnostic. Derived once
// per (schema, table) pair and cached.
type ColumnMappings struct {
	TenantIDColumn     string   `json:"tenant_id_column"`
	SubEntityIDColumn  string   `json:"sub_entity_id_column"`
	DateColumn         string   `json:"date_column"`
	TimePeriodColumn   string   `json:"time_period_column"`
	MeasureValueColumn string   `json:"measure_value_column"`
	MeasureTypeColumn  string   `json:"measure_type_column"`
	AllColumns         []string `json:"all_columns"`
}

// ResolveColumnMappings fills mappings from the config, applying engine
// defaults for any alias the config leaves empty.
func ResolveColumnMappings(cfg *DataSourceConfig) *ColumnMappings {
	pick := func(v, def string) string {
		if v != "" {
			return v
		}
		return def
	}
	all := make([]string, len(cfg.AllowedFields))
	copy(all, cfg.AllowedFields)
	return &ColumnMappings{
		TenantIDColumn:     pick(cfg.TenantIDColumn, DefaultTenantIDColumn),
		SubEntityIDColumn:  pick(cfg.SubEntityIDColumn, DefaultSubEntityIDColumn),
		DateColumn:         pick(cfg.DateColumn, DefaultDateColumn),
		TimePeriodColumn:   pick(cfg.TimePeriodColumn, DefaultTimePeriodColumn),
		MeasureValueColumn: pick(cfg.MeasureValueColumn, DefaultMeasureValueColumn),
		MeasureTypeColumn:  pick(cfg.MeasureTypeColumn, DefaultMeasureTypeColumn),
		AllColumns:         all,
	}
}
