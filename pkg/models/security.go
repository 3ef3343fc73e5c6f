package models

// PermissionScope describes how wide a caller's visibility is within the
// tenants they can access.
type PermissionScope string

const (
	// ScopeOwn restricts results to the caller's own sub-entities
	// (e.g. an individual provider within a practice).
	ScopeOwn PermissionScope = "own"
	// ScopeOrganization grants visibility across the caller's tenants.
	ScopeOrganization PermissionScope = "organization"
	// ScopeAll is reserved for administrative callers. The tenant predicate
	// is still applied; "all" only means the resolver populated the tenant
	// list with everything the caller may see.
	ScopeAll PermissionScope = "all"
)

// Valid reports whether the scope is one of the known values.
func (s PermissionScope) Valid() bool {
	switch s {
	case ScopeOwn, ScopeOrganization, ScopeAll:
		return true
	}
	return false
}

// SecurityContext is the resolved authorization state for a single request.
// It is produced by the host's authorization layer before the engine is
// invoked, is immutable for the lifetime of the request, and is never
// persisted. An empty AccessibleTenantIDs list means the caller can see
// nothing; the engine fails closed rather than omitting the tenant predicate.
type SecurityContext struct {
	AccessibleTenantIDs    []int64
	AccessibleSubEntityIDs []int64
	Scope                  PermissionScope
}

// HasTenantAccess reports whether any tenant is visible to the caller.
func (s *SecurityContext) HasTenantAccess() bool {
	return len(s.AccessibleTenantIDs) > 0
}
