package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/reclutas/apiserver/internal/services"
	"github.com/reclutas/apiserver/internal/store"
	"github.com/reclutas/apiserver/types"
)

const entityCandidate = "recluta"

// CandidateHandler provides HTTP handlers for candidates.
type CandidateHandler struct {
	candidates Candidates
	interviews Interviews
	audit      Auditor
}

func NewCandidateHandler(candidates Candidates, interviews Interviews, audit Auditor) *CandidateHandler {
	return &CandidateHandler{candidates: candidates, interviews: interviews, audit: audit}
}

// CandidateRouter registers candidate routes on the given router.
func CandidateRouter(r chi.Router, candidates Candidates, interviews Interviews, audit Auditor) {
	handler := NewCandidateHandler(candidates, interviews, audit)

	r.Get("/", handler.ListCandidates)
	r.Post("/", handler.CreateCandidate)
	r.Route("/{candidateID}", func(r chi.Router) {
		r.Get("/", handler.GetCandidate)
		r.Put("/", handler.UpdateCandidate)
		r.Delete("/", handler.DeleteCandidate)
		r.Get("/entrevistas", handler.ListCandidateInterviews)
	})
}

func (h *CandidateHandler) ListCandidates(w http.ResponseWriter, r *http.Request) {
	page, limit, offset, err := parsePagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	filter := store.CandidateFilter{
		Status: types.CandidateStatus(strings.TrimSpace(r.URL.Query().Get("estado"))),
		Search: strings.TrimSpace(r.URL.Query().Get("q")),
	}

	items, total, err := h.candidates.List(r.Context(), filter, offset, limit)
	if err != nil {
		writeServiceError(w, r, err, "failed to list candidates")
		return
	}
	if items == nil {
		items = []types.Candidate{}
	}
	writeJSON(w, http.StatusOK, ListResponse[types.Candidate]{Items: items, Page: page, Limit: limit, Total: total})
}

func (h *CandidateHandler) GetCandidate(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "candidateID", "candidate")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	candidate, err := h.candidates.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err, "failed to fetch candidate")
		return
	}
	writeJSON(w, http.StatusOK, candidate)
}

func (h *CandidateHandler) CreateCandidate(w http.ResponseWriter, r *http.Request) {
	var req types.Candidate
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.ID = 0

	created, err := h.candidates.Create(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err, "failed to create candidate")
		return
	}
	h.record(r, services.ActionCandidateCreated, created.ID, created.Name)
	writeJSON(w, http.StatusCreated, created)
}

func (h *CandidateHandler) UpdateCandidate(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "candidateID", "candidate")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req types.Candidate
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.ID = id

	updated, err := h.candidates.Update(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err, "failed to update candidate")
		return
	}
	h.record(r, services.ActionCandidateUpdated, id, "estado="+string(updated.Status))
	writeJSON(w, http.StatusOK, updated)
}

func (h *CandidateHandler) DeleteCandidate(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "candidateID", "candidate")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	removed, err := h.candidates.Delete(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err, "failed to delete candidate")
		return
	}
	h.record(r, services.ActionCandidateDeleted, id, fmt.Sprintf("entrevistas eliminadas=%d", removed))
	w.WriteHeader(http.StatusNoContent)
}

func (h *CandidateHandler) ListCandidateInterviews(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "candidateID", "candidate")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	items, err := h.interviews.ListByCandidate(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err, "failed to list interviews")
		return
	}
	if items == nil {
		items = []types.Interview{}
	}
	writeJSON(w, http.StatusOK, ListResponse[types.Interview]{Items: items, Total: len(items)})
}

func (h *CandidateHandler) record(r *http.Request, action string, id int, details string) {
	h.audit.Record(r.Context(), services.AuditEvent{
		AccountID:  actor(r),
		Address:    clientAddress(r),
		Action:     action,
		EntityType: entityCandidate,
		EntityID:   strconv.Itoa(id),
		Details:    details,
	})
}
