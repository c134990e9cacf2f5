package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/reclutas/apiserver/types"
)

// AuditRouter registers the audit log routes. Callers mount it behind
// RequireAdmin.
func AuditRouter(r chi.Router, audit Auditor) {
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		limit := 0
		if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 {
				writeError(w, http.StatusBadRequest, "invalid limit")
				return
			}
			limit = n
		}

		entries, err := audit.Recent(r.Context(), limit)
		if err != nil {
			writeServiceError(w, r, err, "failed to read audit log")
			return
		}
		if entries == nil {
			entries = []types.AuditEntry{}
		}
		writeJSON(w, http.StatusOK, ListResponse[types.AuditEntry]{Items: entries, Total: len(entries)})
	})
}
