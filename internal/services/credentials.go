package services

import (
	"context"
	"crypto/rand"
	"errors"
	"math/big"
	"strings"
	"sync"
	"time"
	"unicode"

	"golang.org/x/crypto/bcrypt"

	"github.com/reclutas/apiserver/config"
	"github.com/reclutas/apiserver/internal/db"
	"github.com/reclutas/apiserver/internal/metrics"
	"github.com/reclutas/apiserver/types"
)

// PasswordPolicy describes what a plaintext password must satisfy.
type PasswordPolicy struct {
	MinLength      int
	RequireDigits  bool
	RequireSpecial bool
}

// Check returns a validation error describing the first unmet rule.
func (p PasswordPolicy) Check(plaintext string) error {
	if len([]rune(plaintext)) < p.MinLength {
		return validationf("password must be at least %d characters", p.MinLength)
	}
	if len(plaintext) > 72 {
		return validationf("password must be at most 72 bytes")
	}
	if p.RequireDigits && !strings.ContainsFunc(plaintext, unicode.IsDigit) {
		return validationf("password must contain a digit")
	}
	if p.RequireSpecial && !strings.ContainsFunc(plaintext, isSpecial) {
		return validationf("password must contain a special character")
	}
	return nil
}

func isSpecial(r rune) bool {
	return !unicode.IsLetter(r) && !unicode.IsDigit(r) && !unicode.IsSpace(r)
}

// CredentialService owns password hashing, verification and lockout.
type CredentialService struct {
	db          Database
	repos       Repositories
	policy      PasswordPolicy
	cost        int
	maxAttempts int
	lockout     time.Duration
	now         func() time.Time

	dummyOnce sync.Once
	dummyHash []byte
}

func NewCredentialService(database Database, repos Repositories, cfg config.SecurityConfig) *CredentialService {
	cost := cfg.BcryptCost
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	maxAttempts := cfg.MaxFailedAttempts
	if maxAttempts < 1 {
		maxAttempts = 5
	}
	lockout := cfg.LockoutDuration
	if lockout <= 0 {
		lockout = 15 * time.Minute
	}
	minLength := cfg.PasswordMinLength
	if minLength < 1 {
		minLength = 8
	}
	return &CredentialService{
		db:    database,
		repos: repos,
		policy: PasswordPolicy{
			MinLength:      minLength,
			RequireDigits:  cfg.PasswordRequireDigits,
			RequireSpecial: cfg.PasswordRequireSpecial,
		},
		cost:        cost,
		maxAttempts: maxAttempts,
		lockout:     lockout,
		now:         time.Now,
	}
}

// Policy returns the active password policy.
func (s *CredentialService) Policy() PasswordPolicy {
	return s.policy
}

// HashPassword validates plaintext against the policy and returns its bcrypt hash.
func (s *CredentialService) HashPassword(plaintext string) (string, error) {
	if err := s.policy.Check(plaintext); err != nil {
		return "", err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), s.cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// SetPassword replaces the stored hash of an account.
func (s *CredentialService) SetPassword(ctx context.Context, accountID int, plaintext string) error {
	hash, err := s.HashPassword(plaintext)
	if err != nil {
		return err
	}
	return persistence(s.repos.Accounts(s.db).UpdatePassword(ctx, accountID, hash))
}

// VerifyPassword checks plaintext against the account registered under
// email and maintains the failed-attempt counter. The counter update is
// committed even when verification fails.
func (s *CredentialService) VerifyPassword(ctx context.Context, email, plaintext string) (types.Account, error) {
	var verified types.Account
	var outcome error

	err := s.db.WithTx(ctx, func(ctx context.Context, tx db.DBTX) error {
		accounts := s.repos.Accounts(tx)
		account, err := accounts.GetByEmailForUpdate(ctx, email)
		if errors.Is(err, ErrNotFound) {
			s.compareDummy(plaintext)
			outcome = ErrAuthentication
			return nil
		}
		if err != nil {
			return err
		}
		if !account.Active {
			outcome = ErrAccountDisabled
			return nil
		}

		now := s.now()
		if account.LockoutElapsed(now) {
			account.LockedUntil = nil
			account.FailedAttempts = 0
		}
		if account.LockedAt(now) {
			outcome = &LockedError{Until: *account.LockedUntil}
			return nil
		}

		if bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(plaintext)) != nil {
			account.FailedAttempts++
			if account.FailedAttempts >= s.maxAttempts {
				until := now.Add(s.lockout)
				account.LockedUntil = &until
				metrics.AccountLockouts.Inc()
			}
			outcome = ErrAuthentication
			return accounts.UpdateLoginState(ctx, account)
		}

		account.FailedAttempts = 0
		account.LockedUntil = nil
		account.LastLogin = &now
		if err := accounts.UpdateLoginState(ctx, account); err != nil {
			return err
		}
		verified = account
		return nil
	})
	if err != nil {
		metrics.LoginAttempts.WithLabelValues("error").Inc()
		return types.Account{}, persistence(err)
	}
	if outcome != nil {
		metrics.LoginAttempts.WithLabelValues(loginResult(outcome)).Inc()
		return types.Account{}, outcome
	}
	metrics.LoginAttempts.WithLabelValues("success").Inc()
	return verified, nil
}

// IsLocked reports whether the account is currently locked out. An elapsed
// lockout is cleared as a side effect.
func (s *CredentialService) IsLocked(ctx context.Context, accountID int) (bool, error) {
	var locked bool
	err := s.db.WithTx(ctx, func(ctx context.Context, tx db.DBTX) error {
		accounts := s.repos.Accounts(tx)
		account, err := accounts.GetByIDForUpdate(ctx, accountID)
		if err != nil {
			return err
		}
		now := s.now()
		if account.LockoutElapsed(now) {
			account.LockedUntil = nil
			account.FailedAttempts = 0
			return accounts.UpdateLoginState(ctx, account)
		}
		locked = account.LockedAt(now)
		return nil
	})
	if err != nil {
		return false, persistence(err)
	}
	return locked, nil
}

// Matches reports whether plaintext matches hash without touching any
// lockout state.
func (s *CredentialService) Matches(hash, plaintext string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext)) == nil
}

// GeneratePassword returns a random password that satisfies the policy.
func (s *CredentialService) GeneratePassword() (string, error) {
	const (
		letters  = "abcdefghijkmnopqrstuvwxyzABCDEFGHJKLMNPQRSTUVWXYZ"
		digits   = "23456789"
		specials = "!@#$%&*?"
	)
	length := max(s.policy.MinLength, 12)

	pick := func(alphabet string) (byte, error) {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(alphabet))))
		if err != nil {
			return 0, err
		}
		return alphabet[n.Int64()], nil
	}

	out := make([]byte, 0, length)
	for _, required := range []string{digits, specials} {
		c, err := pick(required)
		if err != nil {
			return "", err
		}
		out = append(out, c)
	}
	for len(out) < length {
		c, err := pick(letters + digits)
		if err != nil {
			return "", err
		}
		out = append(out, c)
	}
	for i := len(out) - 1; i > 0; i-- {
		j, err := rand.Int(rand.Reader, big.NewInt(int64(i+1)))
		if err != nil {
			return "", err
		}
		out[i], out[j.Int64()] = out[j.Int64()], out[i]
	}
	return string(out), nil
}

func (s *CredentialService) compareDummy(plaintext string) {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = bcrypt.GenerateFromPassword([]byte("not-a-real-password"), s.cost)
	})
	_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(plaintext))
}

func loginResult(err error) string {
	switch {
	case errors.Is(err, ErrAccountLocked):
		return "locked"
	case errors.Is(err, ErrAccountDisabled):
		return "disabled"
	default:
		return "failure"
	}
}
