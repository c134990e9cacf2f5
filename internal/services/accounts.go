package services

import (
	"context"
	"strings"

	"github.com/reclutas/apiserver/internal/db"
	"github.com/reclutas/apiserver/types"
)

// NewAccount is the input for creating an account.
type NewAccount struct {
	Email    string `json:"email"`
	Name     string `json:"nombre"`
	Phone    string `json:"telefono"`
	Password string `json:"password"`
	Admin    bool   `json:"is_admin"`
}

// ProfileUpdate carries the profile fields a user may change. Nil fields
// are kept.
type ProfileUpdate struct {
	Name     *string `json:"nombre"`
	Phone    *string `json:"telefono"`
	PhotoURL *string `json:"foto_url"`
}

// AccountService manages backend accounts.
type AccountService struct {
	db          Database
	repos       Repositories
	credentials *CredentialService
	sessions    *SessionService
}

func NewAccountService(database Database, repos Repositories, credentials *CredentialService, sessions *SessionService) *AccountService {
	return &AccountService{db: database, repos: repos, credentials: credentials, sessions: sessions}
}

func (s *AccountService) Create(ctx context.Context, input NewAccount) (types.Account, error) {
	email := strings.TrimSpace(input.Email)
	if email == "" {
		return types.Account{}, validationf("email is required")
	}
	if err := checkEmail(email); err != nil {
		return types.Account{}, err
	}
	hash, err := s.credentials.HashPassword(input.Password)
	if err != nil {
		return types.Account{}, err
	}
	account, err := s.repos.Accounts(s.db).Create(ctx, types.Account{
		Email:        email,
		PasswordHash: hash,
		Name:         strings.TrimSpace(input.Name),
		Phone:        strings.TrimSpace(input.Phone),
		Active:       true,
		Admin:        input.Admin,
	})
	return account, persistence(err)
}

func (s *AccountService) Count(ctx context.Context) (int, error) {
	n, err := s.repos.Accounts(s.db).Count(ctx)
	return n, persistence(err)
}

func (s *AccountService) List(ctx context.Context) ([]types.Account, error) {
	accounts, err := s.repos.Accounts(s.db).List(ctx)
	return accounts, persistence(err)
}

func (s *AccountService) Get(ctx context.Context, id int) (types.Account, error) {
	account, err := s.repos.Accounts(s.db).GetByID(ctx, id)
	return account, persistence(err)
}

func (s *AccountService) GetByEmail(ctx context.Context, email string) (types.Account, error) {
	account, err := s.repos.Accounts(s.db).GetByEmail(ctx, email)
	return account, persistence(err)
}

func (s *AccountService) UpdateProfile(ctx context.Context, id int, update ProfileUpdate) (types.Account, error) {
	accounts := s.repos.Accounts(s.db)
	account, err := accounts.GetByID(ctx, id)
	if err != nil {
		return types.Account{}, persistence(err)
	}
	if update.Name != nil {
		account.Name = strings.TrimSpace(*update.Name)
	}
	if update.Phone != nil {
		account.Phone = strings.TrimSpace(*update.Phone)
	}
	if update.PhotoURL != nil {
		account.PhotoURL = strings.TrimSpace(*update.PhotoURL)
	}
	account, err = accounts.UpdateProfile(ctx, account)
	return account, persistence(err)
}

// SetActive enables or disables an account. Disabling ends its sessions.
func (s *AccountService) SetActive(ctx context.Context, id int, active bool) error {
	if err := s.repos.Accounts(s.db).SetActive(ctx, id, active); err != nil {
		return persistence(err)
	}
	if !active {
		if _, err := s.sessions.InvalidateAccount(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// ChangePassword replaces the password after verifying the current one.
// Every session of the account is ended.
func (s *AccountService) ChangePassword(ctx context.Context, id int, current, next string) error {
	account, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if _, err := s.credentials.VerifyPassword(ctx, account.Email, current); err != nil {
		return err
	}
	if err := s.credentials.SetPassword(ctx, id, next); err != nil {
		return err
	}
	_, err = s.sessions.InvalidateAccount(ctx, id)
	return err
}

// ResetPassword assigns a generated password, clears any lockout, and
// returns the new password. It is not stored anywhere else.
func (s *AccountService) ResetPassword(ctx context.Context, id int) (string, error) {
	password, err := s.credentials.GeneratePassword()
	if err != nil {
		return "", err
	}
	hash, err := s.credentials.HashPassword(password)
	if err != nil {
		return "", err
	}
	err = s.db.WithTx(ctx, func(ctx context.Context, tx db.DBTX) error {
		accounts := s.repos.Accounts(tx)
		account, err := accounts.GetByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := accounts.UpdatePassword(ctx, id, hash); err != nil {
			return err
		}
		account.FailedAttempts = 0
		account.LockedUntil = nil
		return accounts.UpdateLoginState(ctx, account)
	})
	if err != nil {
		return "", persistence(err)
	}
	if _, err := s.sessions.InvalidateAccount(ctx, id); err != nil {
		return "", err
	}
	return password, nil
}

// Delete removes an account. The last remaining account cannot be deleted;
// the accounts table stays locked between the count and the delete so two
// concurrent deletes cannot both pass the check.
func (s *AccountService) Delete(ctx context.Context, id int) error {
	err := s.db.WithTx(ctx, func(ctx context.Context, tx db.DBTX) error {
		accounts := s.repos.Accounts(tx)
		if err := accounts.LockTable(ctx); err != nil {
			return err
		}
		if _, err := accounts.GetByIDForUpdate(ctx, id); err != nil {
			return err
		}
		total, err := accounts.Count(ctx)
		if err != nil {
			return err
		}
		if total <= 1 {
			return validationf("cannot delete the last account")
		}
		return accounts.Delete(ctx, id)
	})
	return persistence(err)
}
