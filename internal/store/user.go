package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/reclutas/apiserver/internal/db"
	"github.com/reclutas/apiserver/types"
)

const accountColumns = `id, email, password_hash, name, phone, photo_url, created_at, last_login,
		       active, admin, failed_attempts, locked_until`

// AccountRepository handles persistence for backend accounts.
type AccountRepository struct {
	db db.DBTX
}

func NewAccountRepository(conn db.DBTX) *AccountRepository {
	return &AccountRepository{db: conn}
}

func scanAccount(row rowScanner) (types.Account, error) {
	var account types.Account
	var lastLogin, lockedUntil sql.NullTime
	if err := row.Scan(
		&account.ID,
		&account.Email,
		&account.PasswordHash,
		&account.Name,
		&account.Phone,
		&account.PhotoURL,
		&account.CreatedAt,
		&lastLogin,
		&account.Active,
		&account.Admin,
		&account.FailedAttempts,
		&lockedUntil,
	); err != nil {
		return types.Account{}, err
	}
	if lastLogin.Valid {
		t := lastLogin.Time
		account.LastLogin = &t
	}
	if lockedUntil.Valid {
		t := lockedUntil.Time
		account.LockedUntil = &t
	}
	return account, nil
}

func (r *AccountRepository) getOne(ctx context.Context, query string, arg any) (types.Account, error) {
	account, err := scanAccount(r.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Account{}, ErrNotFound
		}
		return types.Account{}, err
	}
	return account, nil
}

func (r *AccountRepository) GetByID(ctx context.Context, id int) (types.Account, error) {
	return r.getOne(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
}

func (r *AccountRepository) GetByEmail(ctx context.Context, email string) (types.Account, error) {
	return r.getOne(ctx, `SELECT `+accountColumns+` FROM accounts WHERE LOWER(email) = LOWER($1)`, strings.TrimSpace(email))
}

// GetByIDForUpdate locks the account row until the enclosing transaction ends.
func (r *AccountRepository) GetByIDForUpdate(ctx context.Context, id int) (types.Account, error) {
	return r.getOne(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1 FOR UPDATE`, id)
}

// GetByEmailForUpdate locks the account row until the enclosing transaction ends.
func (r *AccountRepository) GetByEmailForUpdate(ctx context.Context, email string) (types.Account, error) {
	return r.getOne(ctx, `SELECT `+accountColumns+` FROM accounts WHERE LOWER(email) = LOWER($1) FOR UPDATE`, strings.TrimSpace(email))
}

func (r *AccountRepository) List(ctx context.Context) ([]types.Account, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	accounts := make([]types.Account, 0)
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return accounts, nil
}

func (r *AccountRepository) Count(ctx context.Context) (int, error) {
	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM accounts`).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

// LockTable blocks concurrent writes to accounts for the rest of the
// enclosing transaction. Reads still go through.
func (r *AccountRepository) LockTable(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `LOCK TABLE accounts IN SHARE ROW EXCLUSIVE MODE`)
	return err
}

func (r *AccountRepository) Create(ctx context.Context, account types.Account) (types.Account, error) {
	account.CreatedAt = time.Now().UTC()

	const query = `
		INSERT INTO accounts (email, password_hash, name, phone, photo_url, created_at, active, admin, failed_attempts)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 0)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		account.Email,
		account.PasswordHash,
		account.Name,
		account.Phone,
		account.PhotoURL,
		account.CreatedAt,
		account.Active,
		account.Admin,
	).Scan(&account.ID); err != nil {
		return types.Account{}, translate(err)
	}
	return account, nil
}

// UpdateProfile writes the user-editable profile fields.
func (r *AccountRepository) UpdateProfile(ctx context.Context, account types.Account) (types.Account, error) {
	const query = `
		UPDATE accounts
		SET name = $1,
			phone = $2,
			photo_url = $3
		WHERE id = $4`
	return account, execOne(ctx, r.db, query, account.Name, account.Phone, account.PhotoURL, account.ID)
}

func (r *AccountRepository) UpdatePassword(ctx context.Context, id int, hash string) error {
	return execOne(ctx, r.db, `UPDATE accounts SET password_hash = $1 WHERE id = $2`, hash, id)
}

// UpdateLoginState persists the brute-force bookkeeping of an account.
func (r *AccountRepository) UpdateLoginState(ctx context.Context, account types.Account) error {
	const query = `
		UPDATE accounts
		SET failed_attempts = $1,
			locked_until = $2,
			last_login = $3
		WHERE id = $4`
	return execOne(ctx, r.db, query, account.FailedAttempts, nullTime(account.LockedUntil), nullTime(account.LastLogin), account.ID)
}

func (r *AccountRepository) SetActive(ctx context.Context, id int, active bool) error {
	return execOne(ctx, r.db, `UPDATE accounts SET active = $1 WHERE id = $2`, active, id)
}

func (r *AccountRepository) Delete(ctx context.Context, id int) error {
	return execOne(ctx, r.db, `DELETE FROM accounts WHERE id = $1`, id)
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}
