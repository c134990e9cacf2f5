package services

import (
	"context"
	"net/mail"
	"strings"

	"github.com/reclutas/apiserver/internal/db"
	"github.com/reclutas/apiserver/internal/store"
	"github.com/reclutas/apiserver/types"
)

// CandidateService encapsulates candidate use-cases.
type CandidateService struct {
	db    Database
	repos Repositories
}

func NewCandidateService(database Database, repos Repositories) *CandidateService {
	return &CandidateService{db: database, repos: repos}
}

func (s *CandidateService) List(ctx context.Context, filter store.CandidateFilter, offset, limit int) ([]types.Candidate, int, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, 0, validationf("unknown estado %q", filter.Status)
	}
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	candidates, total, err := s.repos.Candidates(s.db).List(ctx, filter, offset, limit)
	if err != nil {
		return nil, 0, persistence(err)
	}
	return candidates, total, nil
}

func (s *CandidateService) Get(ctx context.Context, id int) (types.Candidate, error) {
	candidate, err := s.repos.Candidates(s.db).Get(ctx, id)
	return candidate, persistence(err)
}

func normalizeCandidate(candidate *types.Candidate) error {
	candidate.Name = strings.TrimSpace(candidate.Name)
	candidate.Email = strings.TrimSpace(candidate.Email)
	if candidate.Name == "" {
		return validationf("nombre is required")
	}
	if candidate.Email != "" {
		if err := checkEmail(candidate.Email); err != nil {
			return err
		}
	}
	if candidate.Status == "" {
		candidate.Status = types.CandidateInProcess
	}
	if !candidate.Status.Valid() {
		return validationf("unknown estado %q", candidate.Status)
	}
	return nil
}

func (s *CandidateService) Create(ctx context.Context, candidate types.Candidate) (types.Candidate, error) {
	candidate.ID = 0
	if err := normalizeCandidate(&candidate); err != nil {
		return types.Candidate{}, err
	}
	created, err := s.repos.Candidates(s.db).Create(ctx, candidate)
	return created, persistence(err)
}

func (s *CandidateService) Update(ctx context.Context, candidate types.Candidate) (types.Candidate, error) {
	if err := normalizeCandidate(&candidate); err != nil {
		return types.Candidate{}, err
	}
	existing, err := s.repos.Candidates(s.db).Get(ctx, candidate.ID)
	if err != nil {
		return types.Candidate{}, persistence(err)
	}
	candidate.RegisteredAt = existing.RegisteredAt
	updated, err := s.repos.Candidates(s.db).Update(ctx, candidate)
	return updated, persistence(err)
}

// Delete removes a candidate together with all of its interviews. It
// reports how many interviews were removed.
func (s *CandidateService) Delete(ctx context.Context, id int) (int64, error) {
	var removed int64
	err := s.db.WithTx(ctx, func(ctx context.Context, tx db.DBTX) error {
		if _, err := s.repos.Candidates(tx).Get(ctx, id); err != nil {
			return err
		}
		var err error
		removed, err = s.repos.Interviews(tx).DeleteByCandidate(ctx, id)
		if err != nil {
			return err
		}
		return s.repos.Candidates(tx).Delete(ctx, id)
	})
	if err != nil {
		return 0, persistence(err)
	}
	return removed, nil
}

func checkEmail(email string) error {
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || !strings.Contains(email[strings.LastIndex(email, "@")+1:], ".") {
		return validationf("invalid email %q", email)
	}
	return nil
}
