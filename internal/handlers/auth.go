package handlers

import (
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/reclutas/apiserver/internal/metrics"
	"github.com/reclutas/apiserver/internal/services"
	"github.com/reclutas/apiserver/types"
)

// AuthDeps bundles what the auth routes need.
type AuthDeps struct {
	Credentials       Credentials
	Sessions          Sessions
	Accounts          Accounts
	Audit             Auditor
	Limiter           Limiter
	Tokens            *TokenCodec
	Cookie            CookieOptions
	AllowRegistration bool
}

// AuthHandler provides login, logout and profile endpoints.
type AuthHandler struct {
	deps  AuthDeps
	guard *SessionGuard
}

func NewAuthHandler(deps AuthDeps) *AuthHandler {
	return &AuthHandler{
		deps:  deps,
		guard: NewSessionGuard(deps.Sessions, deps.Tokens, deps.Cookie.Name),
	}
}

// AuthRouter registers auth routes on the given router and returns the guard
// other routers use to require a session.
func AuthRouter(r chi.Router, deps AuthDeps) *SessionGuard {
	handler := NewAuthHandler(deps)

	r.Post("/login", handler.Login)
	r.Post("/logout", handler.Logout)
	r.Post("/register", handler.Register)
	r.Group(func(r chi.Router) {
		r.Use(handler.guard.RequireSession)
		r.Get("/me", handler.Me)
		r.Put("/me", handler.UpdateMe)
		r.Post("/me/password", handler.ChangePassword)
	})
	return handler.guard
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token     string        `json:"token"`
	ExpiresAt time.Time     `json:"expira"`
	Account   types.Account `json:"usuario"`
}

type ChangePasswordRequest struct {
	Current string `json:"password_actual"`
	New     string `json:"password_nuevo"`
}

// Login verifies credentials and opens a session.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	address := clientAddress(r)
	if allowed, wait := h.allow(r, address); !allowed {
		metrics.RateLimited.Inc()
		w.Header().Set("Retry-After", strconv.Itoa(max(1, int(math.Ceil(wait.Seconds())))))
		writeError(w, http.StatusTooManyRequests, "too many login attempts")
		return
	}

	var req LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "missing credentials")
		return
	}

	account, err := h.deps.Credentials.VerifyPassword(r.Context(), req.Email, req.Password)
	if err != nil {
		h.deps.Audit.Record(r.Context(), services.AuditEvent{
			Address: address,
			Action:  services.ActionLoginFailed,
			Details: "email=" + req.Email + " reason=" + err.Error(),
		})
		writeServiceError(w, r, err, "failed to authenticate")
		return
	}

	h.openSession(w, r, account, http.StatusOK)
	h.deps.Audit.Record(r.Context(), services.AuditEvent{
		AccountID: services.AccountRef(account.ID),
		Address:   address,
		Action:    services.ActionLogin,
	})
}

// allow fails open when the limiter backend is unreachable.
func (h *AuthHandler) allow(r *http.Request, address string) (bool, time.Duration) {
	if h.deps.Limiter == nil {
		return true, 0
	}
	allowed, wait, err := h.deps.Limiter.Allow(r.Context(), "login:"+address)
	if err != nil {
		slog.WarnContext(r.Context(), "login rate limiter unavailable", "error", err)
		return true, 0
	}
	return allowed, wait
}

func (h *AuthHandler) openSession(w http.ResponseWriter, r *http.Request, account types.Account, status int) {
	session, err := h.deps.Sessions.Create(r.Context(), account.ID, clientAddress(r), 0)
	if err != nil {
		writeServiceError(w, r, err, "failed to create session")
		return
	}
	token, err := h.deps.Tokens.Issue(session)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create token")
		return
	}
	h.deps.Cookie.set(w, token, session.ExpiresAt)
	writeJSON(w, status, LoginResponse{Token: token, ExpiresAt: session.ExpiresAt, Account: account})
}

// Logout ends the current session. It succeeds without a session too.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.deps.Cookie.clear(w)

	raw, err := requestToken(r, h.deps.Cookie.Name)
	if err != nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	token, err := h.deps.Tokens.SessionToken(raw)
	if err != nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	var accountID *int
	if _, account, err := h.deps.Sessions.Validate(r.Context(), token); err == nil {
		accountID = services.AccountRef(account.ID)
	}
	if err := h.deps.Sessions.Invalidate(r.Context(), token); err != nil {
		writeServiceError(w, r, err, "failed to end session")
		return
	}
	if accountID != nil {
		h.deps.Audit.Record(r.Context(), services.AuditEvent{
			AccountID: accountID,
			Address:   clientAddress(r),
			Action:    services.ActionLogout,
		})
	}
	w.WriteHeader(http.StatusNoContent)
}

// Register creates a non-admin account when self registration is enabled.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	if !h.deps.AllowRegistration {
		writeError(w, http.StatusForbidden, "registration disabled")
		return
	}
	var req services.NewAccount
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.Admin = false

	account, err := h.deps.Accounts.Create(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err, "failed to create account")
		return
	}
	h.deps.Audit.Record(r.Context(), services.AuditEvent{
		AccountID:  services.AccountRef(account.ID),
		Address:    clientAddress(r),
		Action:     services.ActionAccountCreated,
		EntityType: "usuario",
		EntityID:   strconv.Itoa(account.ID),
		Details:    "self registration",
	})
	writeJSON(w, http.StatusCreated, account)
}

// Me returns the current authenticated account.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	account, ok := accountFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	writeJSON(w, http.StatusOK, account)
}

func (h *AuthHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	account, ok := accountFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req services.ProfileUpdate
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	updated, err := h.deps.Accounts.UpdateProfile(r.Context(), account.ID, req)
	if err != nil {
		writeServiceError(w, r, err, "failed to update profile")
		return
	}
	h.deps.Audit.Record(r.Context(), services.AuditEvent{
		AccountID:  actor(r),
		Address:    clientAddress(r),
		Action:     services.ActionAccountUpdated,
		EntityType: "usuario",
		EntityID:   strconv.Itoa(account.ID),
	})
	writeJSON(w, http.StatusOK, updated)
}

// ChangePassword replaces the password, ends every session of the account
// and opens a fresh one for the caller.
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	account, ok := accountFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req ChangePasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Current == "" || req.New == "" {
		writeError(w, http.StatusBadRequest, "missing password")
		return
	}

	if err := h.deps.Accounts.ChangePassword(r.Context(), account.ID, req.Current, req.New); err != nil {
		writeServiceError(w, r, err, "failed to change password")
		return
	}
	h.deps.Audit.Record(r.Context(), services.AuditEvent{
		AccountID: actor(r),
		Address:   clientAddress(r),
		Action:    services.ActionPasswordChanged,
	})
	h.openSession(w, r, account, http.StatusOK)
}
