package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/reclutas/apiserver/internal/metrics"
	"github.com/reclutas/apiserver/types"
)

const (
	defaultAuditLimit = 20
	maxAuditLimit     = 500
)

// Audit actions recorded by the application.
const (
	ActionLogin            = "login"
	ActionLoginFailed      = "login_failed"
	ActionLogout           = "logout"
	ActionPasswordChanged  = "password_changed"
	ActionPasswordReset    = "password_reset"
	ActionAccountCreated   = "account_created"
	ActionAccountUpdated   = "account_updated"
	ActionAccountActivated = "account_activated"
	ActionAccountDisabled  = "account_deactivated"
	ActionAccountDeleted   = "account_deleted"
	ActionCandidateCreated = "candidate_created"
	ActionCandidateUpdated = "candidate_updated"
	ActionCandidateDeleted = "candidate_deleted"
	ActionInterviewCreated = "interview_created"
	ActionInterviewUpdated = "interview_updated"
	ActionInterviewDeleted = "interview_deleted"
	ActionBackupCreated    = "backup_created"
)

// AuditEvent describes something worth recording. Empty strings are stored
// as absent values.
type AuditEvent struct {
	AccountID  *int
	Address    string
	Action     string
	EntityType string
	EntityID   string
	Details    string
}

// AuditService appends to and reads from the audit log.
type AuditService struct {
	db     Database
	repos  Repositories
	logger *slog.Logger
	now    func() time.Time
}

func NewAuditService(database Database, repos Repositories, logger *slog.Logger) *AuditService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditService{db: database, repos: repos, logger: logger, now: time.Now}
}

// Record appends an entry. Failures are logged and never reach the caller.
func (s *AuditService) Record(ctx context.Context, event AuditEvent) {
	entry := types.AuditEntry{
		Timestamp:  s.now().UTC(),
		AccountID:  event.AccountID,
		Address:    event.Address,
		Action:     event.Action,
		EntityType: optional(event.EntityType),
		EntityID:   optional(event.EntityID),
		Details:    optional(event.Details),
	}
	if _, err := s.repos.Audit(s.db).Insert(ctx, entry); err != nil {
		metrics.AuditFailures.Inc()
		s.logger.Error("audit write failed", "action", event.Action, "address", event.Address, "error", err)
	}
}

// Recent returns up to n entries, newest first.
func (s *AuditService) Recent(ctx context.Context, n int) ([]types.AuditEntry, error) {
	if n <= 0 {
		n = defaultAuditLimit
	}
	if n > maxAuditLimit {
		n = maxAuditLimit
	}
	entries, err := s.repos.Audit(s.db).Recent(ctx, n)
	if err != nil {
		return nil, persistence(err)
	}
	return entries, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// AccountRef returns a pointer suitable for AuditEvent.AccountID.
func AccountRef(id int) *int {
	if id <= 0 {
		return nil
	}
	return &id
}
