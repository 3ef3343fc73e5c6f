package sql

import (
	"testing"

	"github.com/pulsedash/analytics-engine/pkg/models"
)

// Classic injection payloads, all of which must be rejected before any SQL
// is assembled. Parameter binding would neutralize most of these anyway;
// the sanitizer rejects them outright so they never reach the database.
func TestSanitizeValue_InjectionPayloads(t *testing.T) {
	payloads := []struct {
		name  string
		value string
	}{
		{name: "statement termination", value: "x'); DROP TABLE revenue_daily; --"},
		{name: "classic tautology", value: "' OR '1'='1"},
		{name: "tautology without quotes", value: "1 OR 1=1"},
		{name: "union select", value: "' UNION SELECT password FROM users --"},
		{name: "stacked statements", value: "east; DELETE FROM revenue_daily"},
		{name: "comment truncation", value: "admin'--"},
		{name: "hex-encoded quote", value: "east\\x27 OR 1=1"},
		{name: "sleep probe", value: "1'; SELECT pg_sleep(10); --"},
		{name: "nested quotes", value: `east" OR ""="`},
		{name: "dollar quoting", value: "$$; DROP TABLE t; $$"},
	}

	for _, tt := range payloads {
		t.Run(tt.name, func(t *testing.T) {
			for _, op := range []models.Operator{models.OpEq, models.OpLike} {
				if _, err := SanitizeValue("region", tt.value, op); err == nil {
					t.Errorf("payload %q accepted under operator %q", tt.value, op)
				}
			}
			if _, err := SanitizeValue("region", []any{"east", tt.value}, models.OpIn); err == nil {
				t.Errorf("payload %q accepted inside array", tt.value)
			}
		})
	}
}

// Identifier positions cannot be parameterized, so anything reaching them
// must already be a plain identifier.
func TestBuildQuery_RejectsInjectedIdentifiers(t *testing.T) {
	m := models.ResolveColumnMappings(testConfig())
	sec := &models.SecurityContext{AccessibleTenantIDs: []int64{1}, Scope: models.ScopeOrganization}

	tests := []struct {
		name   string
		schema string
		table  string
	}{
		{name: "schema with semicolon", schema: "analytics; DROP TABLE t", table: "revenue_daily"},
		{name: "table with quote", schema: "analytics", table: `revenue"daily`},
		{name: "table with comment", schema: "analytics", table: "revenue_daily--"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := BuildQuery(nil, sec, m, tt.schema, tt.table, 100); err == nil {
				t.Error("injected identifier accepted")
			}
		})
	}

	t.Run("filter field with injection", func(t *testing.T) {
		filters := []models.Filter{{Field: "region = 'x' OR region", Operator: models.OpEq, Value: "east"}}
		if _, _, err := BuildQuery(filters, sec, m, "analytics", "revenue_daily", 100); err == nil {
			t.Error("injected filter field accepted")
		}
	})
}
