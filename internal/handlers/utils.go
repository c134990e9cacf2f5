package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/reclutas/apiserver/internal/services"
	"github.com/reclutas/apiserver/types"
)

const (
	defaultPage  = 1
	defaultLimit = 20
	maxLimit     = 100
	maxBodyBytes = 1 << 20
)

var errInvalidCandidateID = errors.New("invalid recluta_id")

type contextKey string

const (
	contextSessionKey contextKey = "session"
	contextAccountKey contextKey = "account"
)

func withSession(ctx context.Context, session types.Session, account types.Account) context.Context {
	ctx = context.WithValue(ctx, contextSessionKey, session)
	return context.WithValue(ctx, contextAccountKey, account)
}

func sessionFromContext(ctx context.Context) (types.Session, bool) {
	session, ok := ctx.Value(contextSessionKey).(types.Session)
	return session, ok
}

func accountFromContext(ctx context.Context) (types.Account, bool) {
	account, ok := ctx.Value(contextAccountKey).(types.Account)
	return account, ok && account.ID > 0
}

// actor returns the authenticated account id for audit entries.
func actor(r *http.Request) *int {
	account, ok := accountFromContext(r.Context())
	if !ok {
		return nil
	}
	return services.AccountRef(account.ID)
}

// ErrorResponse is a simple error payload.
type ErrorResponse struct {
	Error string `json:"error"`
}

// ListResponse is the paginated list response payload.
type ListResponse[T any] struct {
	Items []T `json:"items"`
	Page  int `json:"page,omitempty"`
	Limit int `json:"limit,omitempty"`
	Total int `json:"total"`
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}

// writeServiceError maps service errors onto status codes. Anything it does
// not recognise is logged and reported with the generic fallback message.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	var conflict *services.ConflictError
	switch {
	case errors.Is(err, services.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, services.ErrAuthentication):
		writeError(w, http.StatusUnauthorized, services.ErrAuthentication.Error())
	case errors.Is(err, services.ErrSessionInvalid):
		writeError(w, http.StatusUnauthorized, "unauthorized")
	case errors.Is(err, services.ErrAccountLocked), errors.Is(err, services.ErrAccountDisabled):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, services.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.As(err, &conflict):
		writeError(w, http.StatusConflict, conflict.Error())
	case errors.Is(err, services.ErrDuplicate):
		writeError(w, http.StatusConflict, "already exists")
	default:
		slog.ErrorContext(r.Context(), fallback, "error", err, "path", r.URL.Path)
		writeError(w, http.StatusInternalServerError, fallback)
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return errors.New("invalid request")
	}
	return nil
}

func parsePagination(r *http.Request) (page, limit, offset int, err error) {
	page = defaultPage
	limit = defaultLimit

	if raw := strings.TrimSpace(r.URL.Query().Get("page")); raw != "" {
		page, err = strconv.Atoi(raw)
		if err != nil || page < 1 {
			return 0, 0, 0, errors.New("invalid page")
		}
	}

	rawLimit := strings.TrimSpace(r.URL.Query().Get("limit"))
	if rawLimit == "" {
		rawLimit = strings.TrimSpace(r.URL.Query().Get("per_page"))
	}
	if rawLimit != "" {
		limit, err = strconv.Atoi(rawLimit)
		if err != nil || limit < 1 {
			return 0, 0, 0, errors.New("invalid limit")
		}
	}

	if limit > maxLimit {
		limit = maxLimit
	}

	offset = (page - 1) * limit
	return page, limit, offset, nil
}

func parseID(r *http.Request, param, label string) (int, error) {
	id, err := strconv.Atoi(chi.URLParam(r, param))
	if err != nil || id < 1 {
		return 0, errors.New("invalid " + label + " id")
	}
	return id, nil
}

// clientAddress is the peer address without the port. middleware.RealIP
// has already replaced RemoteAddr when the server sits behind a proxy.
func clientAddress(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return strings.TrimSpace(r.RemoteAddr)
	}
	return host
}
