package handlers

import (
	"context"
	"time"

	"github.com/reclutas/apiserver/internal/ratelimit"
	"github.com/reclutas/apiserver/internal/services"
	"github.com/reclutas/apiserver/internal/store"
	"github.com/reclutas/apiserver/types"
)

// The interfaces below are the slices of the service layer each handler
// needs. The concrete services in internal/services satisfy them.

type Credentials interface {
	VerifyPassword(ctx context.Context, email, plaintext string) (types.Account, error)
}

type Sessions interface {
	Create(ctx context.Context, accountID int, address string, ttl time.Duration) (types.Session, error)
	Validate(ctx context.Context, token string) (types.Session, types.Account, error)
	Invalidate(ctx context.Context, token string) error
}

type Accounts interface {
	Create(ctx context.Context, input services.NewAccount) (types.Account, error)
	UpdateProfile(ctx context.Context, id int, update services.ProfileUpdate) (types.Account, error)
	ChangePassword(ctx context.Context, id int, current, next string) error
}

type Candidates interface {
	List(ctx context.Context, filter store.CandidateFilter, offset, limit int) ([]types.Candidate, int, error)
	Get(ctx context.Context, id int) (types.Candidate, error)
	Create(ctx context.Context, candidate types.Candidate) (types.Candidate, error)
	Update(ctx context.Context, candidate types.Candidate) (types.Candidate, error)
	Delete(ctx context.Context, id int) (int64, error)
}

type Interviews interface {
	List(ctx context.Context, filter store.InterviewFilter) ([]types.Interview, error)
	ListByCandidate(ctx context.Context, candidateID int) ([]types.Interview, error)
	Get(ctx context.Context, id int) (types.Interview, error)
	Schedule(ctx context.Context, input services.NewInterview) (types.Interview, error)
	Update(ctx context.Context, id int, patch services.InterviewPatch) (types.Interview, error)
	Delete(ctx context.Context, id int) error
}

type Auditor interface {
	Record(ctx context.Context, event services.AuditEvent)
	Recent(ctx context.Context, n int) ([]types.AuditEntry, error)
}

// Limiter throttles requests per key.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, time.Duration, error)
}

var (
	_ Credentials = (*services.CredentialService)(nil)
	_ Sessions    = (*services.SessionService)(nil)
	_ Accounts    = (*services.AccountService)(nil)
	_ Candidates  = (*services.CandidateService)(nil)
	_ Interviews  = (*services.InterviewService)(nil)
	_ Auditor     = (*services.AuditService)(nil)
	_ Limiter     = (*ratelimit.Limiter)(nil)
)
