package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"github.com/reclutas/apiserver/internal/metrics"
	"github.com/reclutas/apiserver/types"
)

const sessionTokenBytes = 32

// SessionService issues and validates login sessions. The database is the
// only source of truth; nothing is cached in process.
type SessionService struct {
	db    Database
	repos Repositories
	ttl   time.Duration
	now   func() time.Time
}

func NewSessionService(database Database, repos Repositories, ttl time.Duration) *SessionService {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &SessionService{db: database, repos: repos, ttl: ttl, now: time.Now}
}

// TTL returns the default session lifetime.
func (s *SessionService) TTL() time.Duration {
	return s.ttl
}

// Create issues a new session for an account. A non-positive ttl uses the
// configured default.
func (s *SessionService) Create(ctx context.Context, accountID int, address string, ttl time.Duration) (types.Session, error) {
	if ttl <= 0 {
		ttl = s.ttl
	}
	token, err := newSessionToken()
	if err != nil {
		return types.Session{}, err
	}
	now := s.now().UTC()
	session, err := s.repos.Sessions(s.db).Create(ctx, types.Session{
		AccountID:    accountID,
		Address:      address,
		Token:        token,
		CreatedAt:    now,
		LastActivity: now,
		ExpiresAt:    now.Add(ttl),
		Valid:        true,
	})
	if err != nil {
		return types.Session{}, persistence(err)
	}
	metrics.SessionsCreated.Inc()
	return session, nil
}

// Validate resolves token to its session and owning account and records
// activity on it.
func (s *SessionService) Validate(ctx context.Context, token string) (types.Session, types.Account, error) {
	if token == "" {
		return types.Session{}, types.Account{}, ErrSessionInvalid
	}
	sessions := s.repos.Sessions(s.db)
	session, err := sessions.GetByToken(ctx, token)
	if errors.Is(err, ErrNotFound) {
		return types.Session{}, types.Account{}, ErrSessionInvalid
	}
	if err != nil {
		return types.Session{}, types.Account{}, persistence(err)
	}

	now := s.now()
	if !session.Usable(now) {
		return types.Session{}, types.Account{}, ErrSessionInvalid
	}

	account, err := s.repos.Accounts(s.db).GetByID(ctx, session.AccountID)
	if errors.Is(err, ErrNotFound) {
		return types.Session{}, types.Account{}, ErrSessionInvalid
	}
	if err != nil {
		return types.Session{}, types.Account{}, persistence(err)
	}
	if !account.Active {
		return types.Session{}, types.Account{}, ErrSessionInvalid
	}

	if err := sessions.Touch(ctx, session.ID, now.UTC()); err != nil && !errors.Is(err, ErrNotFound) {
		return types.Session{}, types.Account{}, persistence(err)
	}
	session.LastActivity = now.UTC()
	return session, account, nil
}

// Invalidate ends a session. Unknown or already invalid tokens are not an error.
func (s *SessionService) Invalidate(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	_, err := s.repos.Sessions(s.db).Invalidate(ctx, token)
	return persistence(err)
}

// InvalidateAccount ends every session of an account.
func (s *SessionService) InvalidateAccount(ctx context.Context, accountID int) (int64, error) {
	n, err := s.repos.Sessions(s.db).InvalidateAccount(ctx, accountID)
	return n, persistence(err)
}

// PurgeExpired removes sessions that can no longer be used.
func (s *SessionService) PurgeExpired(ctx context.Context) (int64, error) {
	n, err := s.repos.Sessions(s.db).PurgeExpired(ctx, s.now().UTC())
	if err != nil {
		return 0, persistence(err)
	}
	metrics.SessionsPurged.Add(float64(n))
	return n, nil
}

func newSessionToken() (string, error) {
	buf := make([]byte, sessionTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
