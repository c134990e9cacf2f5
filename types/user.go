package types

import "time"

// Account represents a backend user (recruiter or administrator).
// It carries identity, profile, and brute-force protection state.
type Account struct {
	// ID is the unique identifier of the account.
	ID int `json:"id" db:"id"`

	// Email is the unique login name of the account.
	Email string `json:"email" db:"email"`

	// PasswordHash stores the bcrypt hash of the account's password.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" db:"password_hash"`

	// Name is the display name.
	Name string `json:"nombre" db:"name"`

	// Phone is an optional contact number.
	Phone string `json:"telefono" db:"phone"`

	// PhotoURL references the profile picture.
	PhotoURL string `json:"foto_url" db:"photo_url"`

	// CreatedAt is the timestamp when the account was created.
	CreatedAt time.Time `json:"fecha_creacion" db:"created_at"`

	// LastLogin is the timestamp of the last successful password verification.
	LastLogin *time.Time `json:"ultimo_login" db:"last_login"`

	// Active accounts may log in. Accounts are disabled rather than deleted.
	Active bool `json:"activo" db:"active"`

	// Admin grants access to administrative endpoints.
	Admin bool `json:"is_admin" db:"admin"`

	// FailedAttempts counts consecutive failed password verifications.
	FailedAttempts int `json:"intentos_fallidos" db:"failed_attempts"`

	// LockedUntil is set while the account is locked out.
	LockedUntil *time.Time `json:"bloqueado_hasta" db:"locked_until"`
}

// LockedAt reports whether the lockout is still in effect at now.
func (a Account) LockedAt(now time.Time) bool {
	return a.LockedUntil != nil && now.Before(*a.LockedUntil)
}

// LockoutElapsed reports whether a lockout was set and has already passed at now.
func (a Account) LockoutElapsed(now time.Time) bool {
	return a.LockedUntil != nil && !now.Before(*a.LockedUntil)
}
