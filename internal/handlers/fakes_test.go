package handlers

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/reclutas/apiserver/internal/services"
	"github.com/reclutas/apiserver/internal/store"
	"github.com/reclutas/apiserver/types"
)

const testSecret = "test-secret"

type fakeSessions struct {
	mu       sync.Mutex
	next     int
	sessions map[string]types.Session
	accounts map[int]types.Account
}

func (f *fakeSessions) Create(_ context.Context, accountID int, address string, _ time.Duration) (types.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	now := time.Now().UTC()
	s := types.Session{
		ID:        int64(f.next),
		AccountID: accountID,
		Address:   address,
		Token:     fmt.Sprintf("tok-%d", f.next),
		CreatedAt: now,
		ExpiresAt: now.Add(30 * time.Minute),
		Valid:     true,
	}
	f.sessions[s.Token] = s
	return s, nil
}

func (f *fakeSessions) Validate(_ context.Context, token string) (types.Session, types.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[token]
	if !ok || !s.Valid {
		return types.Session{}, types.Account{}, services.ErrSessionInvalid
	}
	return s, f.accounts[s.AccountID], nil
}

func (f *fakeSessions) Invalidate(_ context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.sessions[token]; ok {
		s.Valid = false
		f.sessions[token] = s
	}
	return nil
}

func (f *fakeSessions) invalidateAccount(id int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for token, s := range f.sessions {
		if s.AccountID == id {
			s.Valid = false
			f.sessions[token] = s
		}
	}
}

type fakeCredentials struct {
	accounts  map[string]types.Account
	passwords map[string]string
	err       error
}

func (f *fakeCredentials) VerifyPassword(_ context.Context, email, plaintext string) (types.Account, error) {
	if f.err != nil {
		return types.Account{}, f.err
	}
	account, ok := f.accounts[strings.ToLower(email)]
	if !ok || f.passwords[account.Email] != plaintext {
		return types.Account{}, services.ErrAuthentication
	}
	return account, nil
}

type fakeAccounts struct {
	api     *testAPI
	created []services.NewAccount
}

func (f *fakeAccounts) Create(_ context.Context, input services.NewAccount) (types.Account, error) {
	if !strings.Contains(input.Email, "@") {
		return types.Account{}, fmt.Errorf("%w: invalid email", services.ErrValidation)
	}
	f.created = append(f.created, input)
	return types.Account{ID: 100 + len(f.created), Email: input.Email, Name: input.Name, Admin: input.Admin, Active: true}, nil
}

func (f *fakeAccounts) UpdateProfile(_ context.Context, id int, update services.ProfileUpdate) (types.Account, error) {
	account := f.api.sessions.accounts[id]
	if update.Name != nil {
		account.Name = *update.Name
	}
	f.api.sessions.accounts[id] = account
	return account, nil
}

func (f *fakeAccounts) ChangePassword(_ context.Context, id int, current, next string) error {
	account := f.api.sessions.accounts[id]
	if f.api.credentials.passwords[account.Email] != current {
		return services.ErrAuthentication
	}
	if len(next) < 8 {
		return fmt.Errorf("%w: password too short", services.ErrValidation)
	}
	f.api.credentials.passwords[account.Email] = next
	f.api.sessions.invalidateAccount(id)
	return nil
}

type fakeCandidates struct {
	items      map[int]types.Candidate
	lastFilter store.CandidateFilter
	lastOffset int
	lastLimit  int
	removed    int64
}

func (f *fakeCandidates) List(_ context.Context, filter store.CandidateFilter, offset, limit int) ([]types.Candidate, int, error) {
	f.lastFilter, f.lastOffset, f.lastLimit = filter, offset, limit
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, 0, fmt.Errorf("%w: unknown estado", services.ErrValidation)
	}
	var out []types.Candidate
	for _, c := range f.items {
		out = append(out, c)
	}
	return out, len(out), nil
}

func (f *fakeCandidates) Get(_ context.Context, id int) (types.Candidate, error) {
	c, ok := f.items[id]
	if !ok {
		return types.Candidate{}, services.ErrNotFound
	}
	return c, nil
}

func (f *fakeCandidates) Create(_ context.Context, c types.Candidate) (types.Candidate, error) {
	if strings.TrimSpace(c.Name) == "" {
		return types.Candidate{}, fmt.Errorf("%w: nombre is required", services.ErrValidation)
	}
	c.ID = len(f.items) + 1
	if c.Status == "" {
		c.Status = types.CandidateInProcess
	}
	f.items[c.ID] = c
	return c, nil
}

func (f *fakeCandidates) Update(_ context.Context, c types.Candidate) (types.Candidate, error) {
	if _, ok := f.items[c.ID]; !ok {
		return types.Candidate{}, services.ErrNotFound
	}
	f.items[c.ID] = c
	return c, nil
}

func (f *fakeCandidates) Delete(_ context.Context, id int) (int64, error) {
	if _, ok := f.items[id]; !ok {
		return 0, services.ErrNotFound
	}
	delete(f.items, id)
	return f.removed, nil
}

type fakeInterviews struct {
	items      map[int]types.Interview
	lastFilter store.InterviewFilter
	lastPatch  services.InterviewPatch
	err        error
}

func (f *fakeInterviews) List(_ context.Context, filter store.InterviewFilter) ([]types.Interview, error) {
	f.lastFilter = filter
	var out []types.Interview
	for _, i := range f.items {
		out = append(out, i)
	}
	return out, nil
}

func (f *fakeInterviews) ListByCandidate(_ context.Context, candidateID int) ([]types.Interview, error) {
	if candidateID == 404 {
		return nil, services.ErrNotFound
	}
	var out []types.Interview
	for _, i := range f.items {
		if i.CandidateID == candidateID {
			out = append(out, i)
		}
	}
	return out, nil
}

func (f *fakeInterviews) Get(_ context.Context, id int) (types.Interview, error) {
	i, ok := f.items[id]
	if !ok {
		return types.Interview{}, services.ErrNotFound
	}
	return i, nil
}

func (f *fakeInterviews) Schedule(_ context.Context, in services.NewInterview) (types.Interview, error) {
	if f.err != nil {
		return types.Interview{}, f.err
	}
	if in.Start == nil {
		return types.Interview{}, fmt.Errorf("%w: hora is required", services.ErrValidation)
	}
	i := types.Interview{
		CandidateID:     in.CandidateID,
		Date:            in.Date,
		Start:           *in.Start,
		DurationMinutes: in.DurationMinutes,
		Modality:        in.Modality,
		Location:        in.Location,
		Notes:           in.Notes,
		Status:          in.Status,
	}
	i.ID = len(f.items) + 1
	f.items[i.ID] = i
	return i, nil
}

func (f *fakeInterviews) Update(_ context.Context, id int, patch services.InterviewPatch) (types.Interview, error) {
	f.lastPatch = patch
	if f.err != nil {
		return types.Interview{}, f.err
	}
	i, ok := f.items[id]
	if !ok {
		return types.Interview{}, services.ErrNotFound
	}
	if patch.Status != nil {
		i.Status = *patch.Status
	}
	f.items[id] = i
	return i, nil
}

func (f *fakeInterviews) Delete(_ context.Context, id int) error {
	if _, ok := f.items[id]; !ok {
		return services.ErrNotFound
	}
	delete(f.items, id)
	return nil
}

type recordingAuditor struct {
	mu      sync.Mutex
	events  []services.AuditEvent
	entries []types.AuditEntry
	lastN   int
}

func (a *recordingAuditor) Record(_ context.Context, event services.AuditEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, event)
}

func (a *recordingAuditor) Recent(_ context.Context, n int) ([]types.AuditEntry, error) {
	a.lastN = n
	return a.entries, nil
}

func (a *recordingAuditor) actions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.events))
	for _, e := range a.events {
		out = append(out, e.Action)
	}
	return out
}

type fakeLimiter struct {
	allowed bool
	wait    time.Duration
	err     error
	keys    []string
}

func (l *fakeLimiter) Allow(_ context.Context, key string) (bool, time.Duration, error) {
	l.keys = append(l.keys, key)
	return l.allowed, l.wait, l.err
}

// testAPI mounts the routers the way the server does.
type testAPI struct {
	router      chi.Router
	tokens      *TokenCodec
	sessions    *fakeSessions
	credentials *fakeCredentials
	accounts    *fakeAccounts
	candidates  *fakeCandidates
	interviews  *fakeInterviews
	audit       *recordingAuditor
	limiter     *fakeLimiter
}

var (
	ana  = types.Account{ID: 1, Email: "ana@example.com", Name: "Ana", Active: true, Admin: true}
	luis = types.Account{ID: 2, Email: "luis@example.com", Name: "Luis", Active: true}
)

func newTestAPI(t *testing.T, allowRegistration bool) *testAPI {
	t.Helper()
	api := &testAPI{
		tokens: NewTokenCodec(testSecret),
		sessions: &fakeSessions{
			sessions: make(map[string]types.Session),
			accounts: map[int]types.Account{ana.ID: ana, luis.ID: luis},
		},
		credentials: &fakeCredentials{
			accounts:  map[string]types.Account{ana.Email: ana, luis.Email: luis},
			passwords: map[string]string{ana.Email: "correct-horse", luis.Email: "battery-staple"},
		},
		candidates: &fakeCandidates{items: make(map[int]types.Candidate)},
		interviews: &fakeInterviews{items: make(map[int]types.Interview)},
		audit:      &recordingAuditor{},
		limiter:    &fakeLimiter{allowed: true},
	}
	api.accounts = &fakeAccounts{api: api}

	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		var guard *SessionGuard
		r.Group(func(r chi.Router) {
			guard = AuthRouter(r, AuthDeps{
				Credentials:       api.credentials,
				Sessions:          api.sessions,
				Accounts:          api.accounts,
				Audit:             api.audit,
				Limiter:           api.limiter,
				Tokens:            api.tokens,
				Cookie:            CookieOptions{Name: "reclutas_session"},
				AllowRegistration: allowRegistration,
			})
		})
		r.Group(func(r chi.Router) {
			r.Use(guard.RequireSession)
			r.Route("/reclutas", func(r chi.Router) {
				CandidateRouter(r, api.candidates, api.interviews, api.audit)
			})
			r.Route("/entrevistas", func(r chi.Router) {
				InterviewRouter(r, api.interviews, api.audit)
			})
			r.With(RequireAdmin).Route("/logs", func(r chi.Router) {
				AuditRouter(r, api.audit)
			})
		})
	})
	api.router = r
	return api
}

// login opens a session for account and returns the signed token.
func (api *testAPI) login(t *testing.T, account types.Account) string {
	t.Helper()
	session, err := api.sessions.Create(context.Background(), account.ID, "", 0)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	token, err := api.tokens.Issue(session)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return token
}

func (api *testAPI) do(method, path, body, token string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	api.router.ServeHTTP(rec, req)
	return rec
}
