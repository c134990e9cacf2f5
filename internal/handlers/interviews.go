package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/reclutas/apiserver/internal/services"
	"github.com/reclutas/apiserver/internal/store"
	"github.com/reclutas/apiserver/types"
)

const entityInterview = "entrevista"

// InterviewHandler provides HTTP handlers for interviews.
type InterviewHandler struct {
	interviews Interviews
	audit      Auditor
}

func NewInterviewHandler(interviews Interviews, audit Auditor) *InterviewHandler {
	return &InterviewHandler{interviews: interviews, audit: audit}
}

// InterviewRouter registers interview routes on the given router.
func InterviewRouter(r chi.Router, interviews Interviews, audit Auditor) {
	handler := NewInterviewHandler(interviews, audit)

	r.Get("/", handler.ListInterviews)
	r.Post("/", handler.ScheduleInterview)
	r.Route("/{interviewID}", func(r chi.Router) {
		r.Get("/", handler.GetInterview)
		r.Put("/", handler.UpdateInterview)
		r.Delete("/", handler.DeleteInterview)
	})
}

func parseInterviewFilter(r *http.Request) (store.InterviewFilter, error) {
	query := r.URL.Query()
	var filter store.InterviewFilter
	if raw := strings.TrimSpace(query.Get("fecha")); raw != "" {
		date, err := types.ParseDate(raw)
		if err != nil {
			return filter, err
		}
		filter.Date = date
	}
	if raw := strings.TrimSpace(query.Get("recluta_id")); raw != "" {
		id, err := strconv.Atoi(raw)
		if err != nil || id < 1 {
			return filter, errInvalidCandidateID
		}
		filter.CandidateID = id
	}
	filter.Status = types.InterviewStatus(strings.TrimSpace(query.Get("estado")))
	return filter, nil
}

func (h *InterviewHandler) ListInterviews(w http.ResponseWriter, r *http.Request) {
	filter, err := parseInterviewFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	items, err := h.interviews.List(r.Context(), filter)
	if err != nil {
		writeServiceError(w, r, err, "failed to list interviews")
		return
	}
	if items == nil {
		items = []types.Interview{}
	}
	writeJSON(w, http.StatusOK, ListResponse[types.Interview]{Items: items, Total: len(items)})
}

func (h *InterviewHandler) GetInterview(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "interviewID", "interview")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	interview, err := h.interviews.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err, "failed to fetch interview")
		return
	}
	writeJSON(w, http.StatusOK, interview)
}

func (h *InterviewHandler) ScheduleInterview(w http.ResponseWriter, r *http.Request) {
	var req services.NewInterview
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	created, err := h.interviews.Schedule(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err, "failed to schedule interview")
		return
	}
	h.record(r, services.ActionInterviewCreated, created)
	writeJSON(w, http.StatusCreated, created)
}

func (h *InterviewHandler) UpdateInterview(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "interviewID", "interview")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var patch services.InterviewPatch
	if err := decodeJSON(w, r, &patch); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	updated, err := h.interviews.Update(r.Context(), id, patch)
	if err != nil {
		writeServiceError(w, r, err, "failed to update interview")
		return
	}
	h.record(r, services.ActionInterviewUpdated, updated)
	writeJSON(w, http.StatusOK, updated)
}

func (h *InterviewHandler) DeleteInterview(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "interviewID", "interview")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.interviews.Delete(r.Context(), id); err != nil {
		writeServiceError(w, r, err, "failed to delete interview")
		return
	}
	h.record(r, services.ActionInterviewDeleted, types.Interview{ID: id})
	w.WriteHeader(http.StatusNoContent)
}

func (h *InterviewHandler) record(r *http.Request, action string, interview types.Interview) {
	var details string
	if !interview.Date.IsZero() {
		details = interview.Date.String() + " " + interview.Start.String()
	}
	h.audit.Record(r.Context(), services.AuditEvent{
		AccountID:  actor(r),
		Address:    clientAddress(r),
		Action:     action,
		EntityType: entityInterview,
		EntityID:   strconv.Itoa(interview.ID),
		Details:    details,
	})
}
