package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/reclutas/apiserver/internal/store"
	"github.com/reclutas/apiserver/types"
)

var (
	ErrValidation         = errors.New("validation failed")
	ErrAuthentication     = errors.New("invalid email or password")
	ErrAccountLocked      = errors.New("account locked")
	ErrAccountDisabled    = errors.New("account disabled")
	ErrSessionInvalid     = errors.New("session invalid")
	ErrSchedulingConflict = errors.New("scheduling conflict")
	ErrPersistence        = errors.New("persistence failure")

	ErrNotFound  = store.ErrNotFound
	ErrDuplicate = store.ErrDuplicate
)

func validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// persistence wraps a store failure. Not-found and duplicate errors keep
// their own identity.
func persistence(err error) error {
	if err == nil || errors.Is(err, ErrNotFound) || errors.Is(err, ErrDuplicate) {
		return err
	}
	var conflict *ConflictError
	if errors.As(err, &conflict) || errors.Is(err, ErrValidation) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrPersistence, err)
}

// LockedError is returned while an account is locked out.
type LockedError struct {
	Until time.Time
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("account locked until %s", e.Until.UTC().Format(time.RFC3339))
}

func (e *LockedError) Is(target error) bool {
	return target == ErrAccountLocked
}

// ConflictError names the interview that blocks a booking.
type ConflictError struct {
	Existing types.Interview
}

func (e *ConflictError) Error() string {
	name := e.Existing.CandidateName
	if name == "" {
		name = fmt.Sprintf("candidate %d", e.Existing.CandidateID)
	}
	return fmt.Sprintf("conflicts with interview of %s from %s to %s",
		name,
		types.FormatMinutes(e.Existing.StartMinute()),
		types.FormatMinutes(e.Existing.EndMinute()))
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrSchedulingConflict
}
