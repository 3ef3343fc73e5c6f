package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"

	"github.com/goccy/go-json"

	"github.com/pulsedash/analytics-engine/pkg/models"
)

// Key namespaces. Result keys embed the data-source id before the hash so
// one data source can be invalidated by prefix without touching the others.
const (
	resultKeyPrefix  = "aq:result:"
	mappingKeyPrefix = "aq:mapping:"
	configKeyPrefix  = "aq:config:"
)

// resultKeyPayload is the canonical rendering hashed into a result key.
// Field order is fixed by the struct, tenant and sub-entity ids are sorted,
// so two requests with the same params and the same security context always
// hash identically - and any difference in either produces a different key.
// Binding the security context into the key is the anti-poisoning invariant
// of the whole cache: a result computed under one context must never be
// served to another.
type resultKeyPayload struct {
	DataSourceID     int64                    `json:"ds"`
	Measure          string                   `json:"measure"`
	Frequency        string                   `json:"frequency"`
	StartDate        string                   `json:"start"`
	EndDate          string                   `json:"end"`
	Filters          []models.Filter          `json:"filters"`
	MultipleSeries   []models.SeriesSpec      `json:"series"`
	PeriodComparison *models.PeriodComparison `json:"period"`
	IncludeTotals    bool                     `json:"totals"`
	Limit            int                      `json:"limit"`
	TenantIDs        []int64                  `json:"tenants"`
	SubEntityIDs     []int64                  `json:"sub_entities"`
	Scope            models.PermissionScope   `json:"scope"`
}

// ResultKey derives the deterministic result-cache key for one query under
// one security context.
func ResultKey(params *models.QueryParams, sec *models.SecurityContext) string {
	payload := resultKeyPayload{
		DataSourceID:     params.DataSourceID,
		Measure:          params.Measure,
		Frequency:        params.Frequency,
		StartDate:        params.StartDate,
		EndDate:          params.EndDate,
		Filters:          params.Filters,
		MultipleSeries:   params.MultipleSeries,
		PeriodComparison: params.PeriodComparison,
		IncludeTotals:    params.IncludeTotals,
		Limit:            params.Limit,
		TenantIDs:        sortedCopy(sec.AccessibleTenantIDs),
		SubEntityIDs:     sortedCopy(sec.AccessibleSubEntityIDs),
		Scope:            sec.Scope,
	}

	// Marshal of a fixed struct is deterministic; filter values are
	// scalars and slices, never maps.
	raw, err := json.Marshal(payload)
	if err != nil {
		// Unreachable for the types above; keep the key well-formed anyway.
		raw = []byte(fmt.Sprintf("%+v", payload))
	}

	sum := sha256.Sum256(raw)
	return fmt.Sprintf("%s%d:%s", resultKeyPrefix, params.DataSourceID, hex.EncodeToString(sum[:]))
}

// ResultPrefix is the invalidation prefix covering every cached result for
// a data source.
func ResultPrefix(dataSourceID int64) string {
	return fmt.Sprintf("%s%d:", resultKeyPrefix, dataSourceID)
}

// MappingKey is the exact key for a (schema, table) column mapping.
func MappingKey(schema, table string) string {
	return fmt.Sprintf("%s%s.%s", mappingKeyPrefix, schema, table)
}

// ConfigKey is the exact key for a cached data-source config.
func ConfigKey(dataSourceID int64) string {
	return fmt.Sprintf("%s%d", configKeyPrefix, dataSourceID)
}

func sortedCopy(ids []int64) []int64 {
	out := make([]int64, len(ids))
	copy(out, ids)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
