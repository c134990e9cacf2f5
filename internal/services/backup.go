package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/reclutas/apiserver/internal/storage"
	"github.com/reclutas/apiserver/internal/store"
	"github.com/reclutas/apiserver/types"
)

const backupPrefix = "backups/"

// Backup is the exported snapshot of the database. Password hashes are
// never included.
type Backup struct {
	CreatedAt  time.Time          `json:"fecha"`
	Accounts   []types.Account    `json:"usuarios"`
	Candidates []types.Candidate  `json:"reclutas"`
	Interviews []types.Interview  `json:"entrevistas"`
	Audit      []types.AuditEntry `json:"logs"`
}

// BackupService exports the database into object storage.
type BackupService struct {
	db      Database
	repos   Repositories
	storage *storage.Storage
	now     func() time.Time
}

func NewBackupService(database Database, repos Repositories, objects *storage.Storage) *BackupService {
	return &BackupService{db: database, repos: repos, storage: objects, now: time.Now}
}

// Snapshot collects every exported record.
func (s *BackupService) Snapshot(ctx context.Context) (Backup, error) {
	accounts, err := s.repos.Accounts(s.db).List(ctx)
	if err != nil {
		return Backup{}, persistence(err)
	}
	candidates, err := s.repos.Candidates(s.db).All(ctx)
	if err != nil {
		return Backup{}, persistence(err)
	}
	interviews, err := s.repos.Interviews(s.db).List(ctx, store.InterviewFilter{})
	if err != nil {
		return Backup{}, persistence(err)
	}
	audit, err := s.repos.Audit(s.db).Recent(ctx, maxBackupAuditEntries)
	if err != nil {
		return Backup{}, persistence(err)
	}
	return Backup{
		CreatedAt:  s.now().UTC(),
		Accounts:   accounts,
		Candidates: candidates,
		Interviews: interviews,
		Audit:      audit,
	}, nil
}

const maxBackupAuditEntries = 100000

// Create uploads a snapshot and returns its object key.
func (s *BackupService) Create(ctx context.Context) (string, error) {
	backup, err := s.Snapshot(ctx)
	if err != nil {
		return "", err
	}
	data, err := json.MarshalIndent(backup, "", "  ")
	if err != nil {
		return "", err
	}
	key := backupPrefix + fmt.Sprintf("backup_%s.json", backup.CreatedAt.Format("20060102_150405"))
	if err := s.storage.EnsureBucket(ctx); err != nil {
		return "", fmt.Errorf("prepare bucket %s: %w", s.storage.Bucket(), err)
	}
	opts := storage.PutOptions{
		ContentType: "application/json",
		Labels: map[string]string{
			"usuarios":    strconv.Itoa(len(backup.Accounts)),
			"reclutas":    strconv.Itoa(len(backup.Candidates)),
			"entrevistas": strconv.Itoa(len(backup.Interviews)),
			"logs":        strconv.Itoa(len(backup.Audit)),
		},
	}
	if err := s.storage.PutBytes(ctx, key, data, opts); err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}
	return key, nil
}

// List returns the stored backups ordered by key, which is also creation order.
func (s *BackupService) List(ctx context.Context) ([]storage.ObjectInfo, error) {
	return s.storage.List(ctx, backupPrefix)
}
