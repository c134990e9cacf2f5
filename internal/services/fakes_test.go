package services

import (
	"context"
	"database/sql"
	"errors"
	"maps"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/reclutas/apiserver/internal/db"
	"github.com/reclutas/apiserver/internal/store"
	"github.com/reclutas/apiserver/types"
)

var errNoSQL = errors.New("fake database does not run SQL")

// fakeStore keeps every table in memory. fakeDatabase.WithTx serializes
// transactions and restores the previous state when fn fails.
type fakeStore struct {
	mu         sync.Mutex
	nextID     int
	accounts   map[int]types.Account
	sessions   map[string]types.Session
	candidates map[int]types.Candidate
	interviews map[int]types.Interview
	audit      []types.AuditEntry

	auditErr    error
	lockedDates []types.Date
	accountOps  []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		accounts:   make(map[int]types.Account),
		sessions:   make(map[string]types.Session),
		candidates: make(map[int]types.Candidate),
		interviews: make(map[int]types.Interview),
	}
}

func (f *fakeStore) id() int {
	f.nextID++
	return f.nextID
}

type fakeSnapshot struct {
	nextID     int
	accounts   map[int]types.Account
	sessions   map[string]types.Session
	candidates map[int]types.Candidate
	interviews map[int]types.Interview
	audit      []types.AuditEntry
}

func (f *fakeStore) snapshot() fakeSnapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return fakeSnapshot{
		nextID:     f.nextID,
		accounts:   maps.Clone(f.accounts),
		sessions:   maps.Clone(f.sessions),
		candidates: maps.Clone(f.candidates),
		interviews: maps.Clone(f.interviews),
		audit:      slices.Clone(f.audit),
	}
}

func (f *fakeStore) restore(s fakeSnapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID = s.nextID
	f.accounts = s.accounts
	f.sessions = s.sessions
	f.candidates = s.candidates
	f.interviews = s.interviews
	f.audit = s.audit
}

type fakeDatabase struct {
	txMu  sync.Mutex
	store *fakeStore
}

func (d *fakeDatabase) ExecContext(context.Context, string, ...any) (sql.Result, error) {
	return nil, errNoSQL
}

func (d *fakeDatabase) QueryContext(context.Context, string, ...any) (*sql.Rows, error) {
	return nil, errNoSQL
}

func (d *fakeDatabase) QueryRowContext(context.Context, string, ...any) *sql.Row {
	return nil
}

func (d *fakeDatabase) WithTx(ctx context.Context, fn func(ctx context.Context, tx db.DBTX) error) error {
	d.txMu.Lock()
	defer d.txMu.Unlock()
	before := d.store.snapshot()
	if err := fn(ctx, d); err != nil {
		d.store.restore(before)
		return err
	}
	return nil
}

func fakeRepositories(f *fakeStore) Repositories {
	return Repositories{
		Accounts:   func(db.DBTX) AccountRepository { return fakeAccounts{f} },
		Sessions:   func(db.DBTX) SessionRepository { return fakeSessions{f} },
		Candidates: func(db.DBTX) CandidateRepository { return fakeCandidates{f} },
		Interviews: func(db.DBTX) InterviewRepository { return fakeInterviews{f} },
		Audit:      func(db.DBTX) AuditRepository { return fakeAudit{f} },
	}
}

type fakeAccounts struct{ f *fakeStore }

func (r fakeAccounts) GetByID(_ context.Context, id int) (types.Account, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	a, ok := r.f.accounts[id]
	if !ok {
		return types.Account{}, store.ErrNotFound
	}
	return a, nil
}

func (r fakeAccounts) GetByEmail(_ context.Context, email string) (types.Account, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	for _, a := range r.f.accounts {
		if strings.EqualFold(a.Email, strings.TrimSpace(email)) {
			return a, nil
		}
	}
	return types.Account{}, store.ErrNotFound
}

func (r fakeAccounts) GetByIDForUpdate(ctx context.Context, id int) (types.Account, error) {
	return r.GetByID(ctx, id)
}

func (r fakeAccounts) GetByEmailForUpdate(ctx context.Context, email string) (types.Account, error) {
	return r.GetByEmail(ctx, email)
}

func (r fakeAccounts) List(context.Context) ([]types.Account, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	out := slices.Collect(maps.Values(r.f.accounts))
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r fakeAccounts) Count(context.Context) (int, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	r.f.accountOps = append(r.f.accountOps, "count")
	return len(r.f.accounts), nil
}

func (r fakeAccounts) LockTable(context.Context) error {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	r.f.accountOps = append(r.f.accountOps, "lock")
	return nil
}

func (r fakeAccounts) Create(_ context.Context, a types.Account) (types.Account, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	for _, existing := range r.f.accounts {
		if strings.EqualFold(existing.Email, a.Email) {
			return types.Account{}, store.ErrDuplicate
		}
	}
	a.ID = r.f.id()
	a.CreatedAt = time.Now().UTC()
	r.f.accounts[a.ID] = a
	return a, nil
}

func (r fakeAccounts) update(id int, fn func(*types.Account)) error {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	a, ok := r.f.accounts[id]
	if !ok {
		return store.ErrNotFound
	}
	fn(&a)
	r.f.accounts[id] = a
	return nil
}

func (r fakeAccounts) UpdateProfile(_ context.Context, a types.Account) (types.Account, error) {
	err := r.update(a.ID, func(stored *types.Account) {
		stored.Name, stored.Phone, stored.PhotoURL = a.Name, a.Phone, a.PhotoURL
	})
	return a, err
}

func (r fakeAccounts) UpdatePassword(_ context.Context, id int, hash string) error {
	return r.update(id, func(a *types.Account) { a.PasswordHash = hash })
}

func (r fakeAccounts) UpdateLoginState(_ context.Context, a types.Account) error {
	return r.update(a.ID, func(stored *types.Account) {
		stored.FailedAttempts, stored.LockedUntil, stored.LastLogin = a.FailedAttempts, a.LockedUntil, a.LastLogin
	})
}

func (r fakeAccounts) SetActive(_ context.Context, id int, active bool) error {
	return r.update(id, func(a *types.Account) { a.Active = active })
}

func (r fakeAccounts) Delete(_ context.Context, id int) error {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	if _, ok := r.f.accounts[id]; !ok {
		return store.ErrNotFound
	}
	r.f.accountOps = append(r.f.accountOps, "delete")
	delete(r.f.accounts, id)
	return nil
}

type fakeSessions struct{ f *fakeStore }

func (r fakeSessions) Create(_ context.Context, s types.Session) (types.Session, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	if _, ok := r.f.sessions[s.Token]; ok {
		return types.Session{}, store.ErrDuplicate
	}
	s.ID = int64(r.f.id())
	s.Valid = true
	r.f.sessions[s.Token] = s
	return s, nil
}

func (r fakeSessions) GetByToken(_ context.Context, token string) (types.Session, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	s, ok := r.f.sessions[token]
	if !ok {
		return types.Session{}, store.ErrNotFound
	}
	return s, nil
}

func (r fakeSessions) Touch(_ context.Context, id int64, at time.Time) error {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	for token, s := range r.f.sessions {
		if s.ID == id {
			s.LastActivity = at
			r.f.sessions[token] = s
			return nil
		}
	}
	return store.ErrNotFound
}

func (r fakeSessions) Invalidate(_ context.Context, token string) (bool, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	s, ok := r.f.sessions[token]
	if !ok || !s.Valid {
		return false, nil
	}
	s.Valid = false
	r.f.sessions[token] = s
	return true, nil
}

func (r fakeSessions) InvalidateAccount(_ context.Context, accountID int) (int64, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	var n int64
	for token, s := range r.f.sessions {
		if s.AccountID == accountID && s.Valid {
			s.Valid = false
			r.f.sessions[token] = s
			n++
		}
	}
	return n, nil
}

func (r fakeSessions) PurgeExpired(_ context.Context, now time.Time) (int64, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	var n int64
	for token, s := range r.f.sessions {
		if !s.Valid || !now.Before(s.ExpiresAt) {
			delete(r.f.sessions, token)
			n++
		}
	}
	return n, nil
}

type fakeCandidates struct{ f *fakeStore }

func (r fakeCandidates) List(_ context.Context, filter store.CandidateFilter, offset, limit int) ([]types.Candidate, int, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	var matched []types.Candidate
	search := strings.ToLower(strings.TrimSpace(filter.Search))
	for _, c := range r.f.candidates {
		if filter.Status != "" && c.Status != filter.Status {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(c.Name+" "+c.Email+" "+c.Position), search) {
			continue
		}
		matched = append(matched, c)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID > matched[j].ID })
	total := len(matched)
	if offset > total {
		offset = total
	}
	end := min(offset+limit, total)
	return matched[offset:end], total, nil
}

func (r fakeCandidates) All(context.Context) ([]types.Candidate, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	out := slices.Collect(maps.Values(r.f.candidates))
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r fakeCandidates) Get(_ context.Context, id int) (types.Candidate, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	c, ok := r.f.candidates[id]
	if !ok {
		return types.Candidate{}, store.ErrNotFound
	}
	return c, nil
}

func (r fakeCandidates) Create(_ context.Context, c types.Candidate) (types.Candidate, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	c.ID = r.f.id()
	c.RegisteredAt = time.Now().UTC()
	c.UpdatedAt = c.RegisteredAt
	r.f.candidates[c.ID] = c
	return c, nil
}

func (r fakeCandidates) Update(_ context.Context, c types.Candidate) (types.Candidate, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	if _, ok := r.f.candidates[c.ID]; !ok {
		return types.Candidate{}, store.ErrNotFound
	}
	c.UpdatedAt = time.Now().UTC()
	r.f.candidates[c.ID] = c
	return c, nil
}

func (r fakeCandidates) Delete(_ context.Context, id int) error {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	if _, ok := r.f.candidates[id]; !ok {
		return store.ErrNotFound
	}
	for _, i := range r.f.interviews {
		if i.CandidateID == id {
			return errors.New("foreign key violation")
		}
	}
	delete(r.f.candidates, id)
	return nil
}

type fakeInterviews struct{ f *fakeStore }

func (r fakeInterviews) withName(i types.Interview) types.Interview {
	i.CandidateName = r.f.candidates[i.CandidateID].Name
	return i
}

func (r fakeInterviews) filter(keep func(types.Interview) bool) []types.Interview {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	out := make([]types.Interview, 0)
	for _, i := range r.f.interviews {
		if keep(i) {
			out = append(out, r.withName(i))
		}
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].Date != out[b].Date {
			return out[a].Date.Before(out[b].Date)
		}
		if out[a].Start != out[b].Start {
			return out[a].Start < out[b].Start
		}
		return out[a].ID < out[b].ID
	})
	return out
}

func (r fakeInterviews) List(_ context.Context, filter store.InterviewFilter) ([]types.Interview, error) {
	return r.filter(func(i types.Interview) bool {
		return (filter.Date.IsZero() || i.Date == filter.Date) &&
			(filter.CandidateID == 0 || i.CandidateID == filter.CandidateID) &&
			(filter.Status == "" || i.Status == filter.Status)
	}), nil
}

func (r fakeInterviews) ListByDate(_ context.Context, date types.Date) ([]types.Interview, error) {
	return r.filter(func(i types.Interview) bool { return i.Date == date }), nil
}

func (r fakeInterviews) ListByCandidate(_ context.Context, candidateID int) ([]types.Interview, error) {
	return r.filter(func(i types.Interview) bool { return i.CandidateID == candidateID }), nil
}

func (r fakeInterviews) Get(_ context.Context, id int) (types.Interview, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	i, ok := r.f.interviews[id]
	if !ok {
		return types.Interview{}, store.ErrNotFound
	}
	return r.withName(i), nil
}

func (r fakeInterviews) GetForUpdate(ctx context.Context, id int) (types.Interview, error) {
	return r.Get(ctx, id)
}

func (r fakeInterviews) LockDate(_ context.Context, date types.Date) error {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	r.f.lockedDates = append(r.f.lockedDates, date)
	return nil
}

func (r fakeInterviews) Create(_ context.Context, i types.Interview) (types.Interview, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	i.ID = r.f.id()
	i.CreatedAt = time.Now().UTC()
	i.CandidateName = ""
	r.f.interviews[i.ID] = i
	return i, nil
}

func (r fakeInterviews) Update(_ context.Context, i types.Interview) (types.Interview, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	if _, ok := r.f.interviews[i.ID]; !ok {
		return types.Interview{}, store.ErrNotFound
	}
	i.CandidateName = ""
	r.f.interviews[i.ID] = i
	return i, nil
}

func (r fakeInterviews) Delete(_ context.Context, id int) error {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	if _, ok := r.f.interviews[id]; !ok {
		return store.ErrNotFound
	}
	delete(r.f.interviews, id)
	return nil
}

func (r fakeInterviews) DeleteByCandidate(_ context.Context, candidateID int) (int64, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	var n int64
	for id, i := range r.f.interviews {
		if i.CandidateID == candidateID {
			delete(r.f.interviews, id)
			n++
		}
	}
	return n, nil
}

type fakeAudit struct{ f *fakeStore }

func (r fakeAudit) Insert(_ context.Context, e types.AuditEntry) (types.AuditEntry, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	if r.f.auditErr != nil {
		return types.AuditEntry{}, r.f.auditErr
	}
	e.ID = int64(r.f.id())
	r.f.audit = append(r.f.audit, e)
	return e, nil
}

func (r fakeAudit) Recent(_ context.Context, limit int) ([]types.AuditEntry, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	out := slices.Clone(r.f.audit)
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// harness wires every service against one fake store.
type harness struct {
	store       *fakeStore
	db          *fakeDatabase
	repos       Repositories
	credentials *CredentialService
	sessions    *SessionService
	accounts    *AccountService
	candidates  *CandidateService
	interviews  *InterviewService
	audit       *AuditService
	clock       *fakeClock
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
