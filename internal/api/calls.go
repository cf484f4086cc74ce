package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"
	"github.com/voxline/relay/internal/auth"
	"github.com/voxline/relay/internal/storage"
	"github.com/voxline/relay/internal/types"
)

const defaultCallLimit = 50

// CallsHandler provides REST endpoints for browsing call records
type CallsHandler struct {
	store  storage.Store
	logger zerolog.Logger
}

// NewCallsHandler creates a new CallsHandler
func NewCallsHandler(store storage.Store, logger zerolog.Logger) *CallsHandler {
	return &CallsHandler{
		store:  store,
		logger: logger.With().Str("component", "calls_handler").Logger(),
	}
}

// ListCalls returns recent call records for a tenant, newest first
// GET /ops/calls?tenant={tenantID}&limit={n}
func (h *CallsHandler) ListCalls(w http.ResponseWriter, r *http.Request) {
	tenantID := r.URL.Query().Get("tenant")
	if tenantID == "" {
		http.Error(w, "tenant query parameter is required", http.StatusBadRequest)
		return
	}

	claims, ok := auth.GetUserFromContext(r.Context())
	if !ok || !claims.TenantAllowed(tenantID) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	limit := defaultCallLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	records, err := h.store.ListCallRecords(r.Context(), tenantID, limit)
	if err != nil {
		h.logger.Error().Err(err).Str("tenant_id", tenantID).Msg("failed to list call records")
		http.Error(w, "failed to retrieve calls", http.StatusInternalServerError)
		return
	}

	if records == nil {
		records = []types.CallRecord{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(records)
}
