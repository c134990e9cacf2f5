package services

import (
	"context"
	"time"

	"github.com/reclutas/apiserver/internal/db"
	"github.com/reclutas/apiserver/internal/store"
	"github.com/reclutas/apiserver/types"
)

// AccountRepository defines persistence operations for accounts.
type AccountRepository interface {
	GetByID(ctx context.Context, id int) (types.Account, error)
	GetByEmail(ctx context.Context, email string) (types.Account, error)
	GetByIDForUpdate(ctx context.Context, id int) (types.Account, error)
	GetByEmailForUpdate(ctx context.Context, email string) (types.Account, error)
	List(ctx context.Context) ([]types.Account, error)
	Count(ctx context.Context) (int, error)
	LockTable(ctx context.Context) error
	Create(ctx context.Context, account types.Account) (types.Account, error)
	UpdateProfile(ctx context.Context, account types.Account) (types.Account, error)
	UpdatePassword(ctx context.Context, id int, hash string) error
	UpdateLoginState(ctx context.Context, account types.Account) error
	SetActive(ctx context.Context, id int, active bool) error
	Delete(ctx context.Context, id int) error
}

// SessionRepository defines persistence operations for sessions.
type SessionRepository interface {
	Create(ctx context.Context, session types.Session) (types.Session, error)
	GetByToken(ctx context.Context, token string) (types.Session, error)
	Touch(ctx context.Context, id int64, at time.Time) error
	Invalidate(ctx context.Context, token string) (bool, error)
	InvalidateAccount(ctx context.Context, accountID int) (int64, error)
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

// CandidateRepository defines persistence operations for candidates.
type CandidateRepository interface {
	List(ctx context.Context, filter store.CandidateFilter, offset, limit int) ([]types.Candidate, int, error)
	All(ctx context.Context) ([]types.Candidate, error)
	Get(ctx context.Context, id int) (types.Candidate, error)
	Create(ctx context.Context, candidate types.Candidate) (types.Candidate, error)
	Update(ctx context.Context, candidate types.Candidate) (types.Candidate, error)
	Delete(ctx context.Context, id int) error
}

// InterviewRepository defines persistence operations for interviews.
type InterviewRepository interface {
	List(ctx context.Context, filter store.InterviewFilter) ([]types.Interview, error)
	ListByDate(ctx context.Context, date types.Date) ([]types.Interview, error)
	ListByCandidate(ctx context.Context, candidateID int) ([]types.Interview, error)
	Get(ctx context.Context, id int) (types.Interview, error)
	GetForUpdate(ctx context.Context, id int) (types.Interview, error)
	LockDate(ctx context.Context, date types.Date) error
	Create(ctx context.Context, interview types.Interview) (types.Interview, error)
	Update(ctx context.Context, interview types.Interview) (types.Interview, error)
	Delete(ctx context.Context, id int) error
	DeleteByCandidate(ctx context.Context, candidateID int) (int64, error)
}

// AuditRepository defines persistence operations for the audit log.
type AuditRepository interface {
	Insert(ctx context.Context, entry types.AuditEntry) (types.AuditEntry, error)
	Recent(ctx context.Context, limit int) ([]types.AuditEntry, error)
}

// Repositories builds repositories bound to a connection or transaction.
type Repositories struct {
	Accounts   func(q db.DBTX) AccountRepository
	Sessions   func(q db.DBTX) SessionRepository
	Candidates func(q db.DBTX) CandidateRepository
	Interviews func(q db.DBTX) InterviewRepository
	Audit      func(q db.DBTX) AuditRepository
}

// StoreRepositories returns the postgres-backed repositories.
func StoreRepositories() Repositories {
	return Repositories{
		Accounts:   func(q db.DBTX) AccountRepository { return store.NewAccountRepository(q) },
		Sessions:   func(q db.DBTX) SessionRepository { return store.NewSessionRepository(q) },
		Candidates: func(q db.DBTX) CandidateRepository { return store.NewCandidateRepository(q) },
		Interviews: func(q db.DBTX) InterviewRepository { return store.NewInterviewRepository(q) },
		Audit:      func(q db.DBTX) AuditRepository { return store.NewAuditRepository(q) },
	}
}

// Database is a connection that can also run a function in a transaction.
type Database interface {
	db.DBTX
	WithTx(ctx context.Context, fn func(ctx context.Context, tx db.DBTX) error) error
}
