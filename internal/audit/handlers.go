package audit

import (
	"net/http"

	"github.com/noah-isme/backend-mentor/internal/common"
)

// Handler exposes HTTP endpoints for working with audit logs.
type Handler struct {
	Store Store
}

// List returns a paginated list of audit entries for administrators.
func (h Handler) List(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		common.JSONError(w, http.StatusInternalServerError, "AUDIT_NOT_CONFIGURED", "audit store not configured", nil)
		return
	}
	limit, offset := common.ParseLimitOffset(r, 50, 200)

	entries, err := h.Store.ListEntries(r.Context(), ListFilter{
		EntityType: r.URL.Query().Get("entityType"),
		Action:     r.URL.Query().Get("action"),
		Limit:      limit,
		Offset:     offset,
	})
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "AUDIT_QUERY_FAILED", "unable to fetch audit logs", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": entries})
}
