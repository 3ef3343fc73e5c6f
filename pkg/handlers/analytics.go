package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/pulsedash/analytics-engine/pkg/apperrors"
	"github.com/pulsedash/analytics-engine/pkg/logging"
	"github.com/pulsedash/analytics-engine/pkg/models"
	"github.com/pulsedash/analytics-engine/pkg/services"
)

// Headers the trusted gateway sets after resolving authorization. The
// engine consumes the resolved context; it does not verify tokens itself.
const (
	headerTenantIDs    = "X-Tenant-Ids"
	headerSubEntityIDs = "X-Sub-Entity-Ids"
	headerScope        = "X-Permission-Scope"
)

// AnalyticsHandler is the thin HTTP boundary over the query service. A
// rejected query never exposes SQL text, table names, or stack traces -
// only a generic message with the offending field name.
type AnalyticsHandler struct {
	queries services.QueryService
	logger  *zap.Logger
}

// NewAnalyticsHandler creates the analytics handler.
func NewAnalyticsHandler(queries services.QueryService, logger *zap.Logger) *AnalyticsHandler {
	return &AnalyticsHandler{queries: queries, logger: logger.Named("analytics-handler")}
}

// RegisterRoutes registers the analytics routes on the given mux.
func (h *AnalyticsHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/query", h.Query)
	mux.HandleFunc("POST /api/data-sources/{id}/invalidate", h.Invalidate)
}

// Query handles POST /api/query.
func (h *AnalyticsHandler) Query(w http.ResponseWriter, r *http.Request) {
	var params models.QueryParams
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "bad_request", "request body is not valid JSON")
		return
	}

	sec, err := securityContextFromHeaders(r)
	if err != nil {
		_ = ErrorResponse(w, http.StatusForbidden, "forbidden", "security context missing or malformed")
		return
	}

	result, err := h.queries.Query(r.Context(), &params, sec)
	if err != nil {
		h.writeQueryError(w, err)
		return
	}

	if err := WriteJSON(w, http.StatusOK, result); err != nil {
		h.logger.Error("Failed to encode query response", zap.Error(err))
	}
}

// Invalidate handles POST /api/data-sources/{id}/invalidate.
func (h *AnalyticsHandler) Invalidate(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "bad_request", "data source id must be an integer")
		return
	}

	deleted, err := h.queries.InvalidateDataSource(r.Context(), id)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			_ = ErrorResponse(w, http.StatusNotFound, "not_found", "unknown data source")
			return
		}
		h.logger.Error("Invalidation failed",
			zap.Int64("data_source_id", id),
			zap.String("error", logging.SanitizeError(err)))
		_ = ErrorResponse(w, http.StatusInternalServerError, "internal_error", "invalidation failed")
		return
	}

	if err := WriteJSON(w, http.StatusOK, map[string]int{"results_deleted": deleted}); err != nil {
		h.logger.Error("Failed to encode invalidation response", zap.Error(err))
	}
}

func (h *AnalyticsHandler) writeQueryError(w http.ResponseWriter, err error) {
	var sv *apperrors.SecurityViolation
	if errors.As(err, &sv) {
		_ = ErrorResponse(w, http.StatusForbidden, "security_violation", rejectionMessage(sv.Field))
		return
	}

	var ve *apperrors.ValidationError
	if errors.As(err, &ve) {
		_ = ErrorResponse(w, http.StatusBadRequest, "validation_failed", rejectionMessage(ve.Field))
		return
	}

	var se *apperrors.SanitizationError
	if errors.As(err, &se) {
		_ = ErrorResponse(w, http.StatusBadRequest, "validation_failed", rejectionMessage(se.Field))
		return
	}

	if errors.Is(err, apperrors.ErrNotFound) {
		_ = ErrorResponse(w, http.StatusNotFound, "not_found", "unknown data source")
		return
	}

	h.logger.Error("Query failed", zap.String("error", logging.SanitizeError(err)))
	_ = ErrorResponse(w, http.StatusInternalServerError, "internal_error", "query execution failed")
}

// rejectionMessage names the offending field and nothing else.
func rejectionMessage(field string) string {
	if field == "" {
		return "query validation failed"
	}
	return "query validation failed: " + field
}

func securityContextFromHeaders(r *http.Request) (*models.SecurityContext, error) {
	tenantIDs, err := parseIDList(r.Header.Get(headerTenantIDs))
	if err != nil {
		return nil, err
	}
	subEntityIDs, err := parseIDList(r.Header.Get(headerSubEntityIDs))
	if err != nil {
		return nil, err
	}

	scope := models.PermissionScope(r.Header.Get(headerScope))
	if scope == "" {
		scope = models.ScopeOrganization
	}
	if !scope.Valid() {
		return nil, apperrors.NewSecurityViolation("permission_scope", "unknown permission scope")
	}

	return &models.SecurityContext{
		AccessibleTenantIDs:    tenantIDs,
		AccessibleSubEntityIDs: subEntityIDs,
		Scope:                  scope,
	}, nil
}

// parseIDList parses a comma-separated id list. An empty header yields an
// empty list, which fails closed downstream.
func parseIDList(raw string) ([]int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	ids := make([]int64, 0, len(parts))
	for _, p := range parts {
		id, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64)
		if err != nil {
			return nil, apperrors.NewValidationError("security_context", "id list is malformed")
		}
		ids = append(ids, id)
	}
	return ids, nil
}
