package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/reclutas/apiserver/internal/db"
	"github.com/reclutas/apiserver/types"
)

// CandidateFilter narrows candidate listings. Zero values match everything.
type CandidateFilter struct {
	Status types.CandidateStatus
	Search string
}

// CandidateRepository handles persistence for candidates.
type CandidateRepository struct {
	db db.DBTX
}

func NewCandidateRepository(conn db.DBTX) *CandidateRepository {
	return &CandidateRepository{db: conn}
}

const candidateColumns = `id, name, email, phone, status, position, notes, photo_url, registered_at, updated_at`

func scanCandidate(row rowScanner) (types.Candidate, error) {
	var candidate types.Candidate
	err := row.Scan(
		&candidate.ID,
		&candidate.Name,
		&candidate.Email,
		&candidate.Phone,
		&candidate.Status,
		&candidate.Position,
		&candidate.Notes,
		&candidate.PhotoURL,
		&candidate.RegisteredAt,
		&candidate.UpdatedAt,
	)
	return candidate, err
}

func (f CandidateFilter) where() (string, []any) {
	var clauses []string
	var args []any
	if f.Status != "" {
		args = append(args, string(f.Status))
		clauses = append(clauses, fmt.Sprintf("status = $%d", len(args)))
	}
	if search := strings.TrimSpace(f.Search); search != "" {
		args = append(args, "%"+strings.ToLower(search)+"%")
		n := len(args)
		clauses = append(clauses, fmt.Sprintf("(LOWER(name) LIKE $%d OR LOWER(email) LIKE $%d OR LOWER(position) LIKE $%d)", n, n, n))
	}
	if len(clauses) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// List returns one page of candidates, newest first, plus the total number
// of candidates matching the filter.
func (r *CandidateRepository) List(ctx context.Context, filter CandidateFilter, offset, limit int) ([]types.Candidate, int, error) {
	if offset < 0 {
		offset = 0
	}
	if limit < 1 {
		limit = 20
	}

	where, args := filter.where()

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM candidates`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	listQuery := fmt.Sprintf(`
		SELECT %s
		FROM candidates%s
		ORDER BY registered_at DESC, id DESC
		OFFSET $%d LIMIT $%d`, candidateColumns, where, len(args)+1, len(args)+2)
	rows, err := r.db.QueryContext(ctx, listQuery, append(args, offset, limit)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	candidates := make([]types.Candidate, 0, limit)
	for rows.Next() {
		candidate, err := scanCandidate(rows)
		if err != nil {
			return nil, 0, err
		}
		candidates = append(candidates, candidate)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	return candidates, total, nil
}

// All returns every candidate ordered by id.
func (r *CandidateRepository) All(ctx context.Context) ([]types.Candidate, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+candidateColumns+` FROM candidates ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	candidates := make([]types.Candidate, 0)
	for rows.Next() {
		candidate, err := scanCandidate(rows)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, candidate)
	}
	return candidates, rows.Err()
}

func (r *CandidateRepository) Get(ctx context.Context, id int) (types.Candidate, error) {
	candidate, err := scanCandidate(r.db.QueryRowContext(ctx, `SELECT `+candidateColumns+` FROM candidates WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Candidate{}, ErrNotFound
		}
		return types.Candidate{}, err
	}
	return candidate, nil
}

func (r *CandidateRepository) Create(ctx context.Context, candidate types.Candidate) (types.Candidate, error) {
	now := time.Now().UTC()
	candidate.RegisteredAt = now
	candidate.UpdatedAt = now

	const query = `
		INSERT INTO candidates (name, email, phone, status, position, notes, photo_url, registered_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		candidate.Name,
		candidate.Email,
		candidate.Phone,
		candidate.Status,
		candidate.Position,
		candidate.Notes,
		candidate.PhotoURL,
		candidate.RegisteredAt,
		candidate.UpdatedAt,
	).Scan(&candidate.ID); err != nil {
		return types.Candidate{}, translate(err)
	}
	return candidate, nil
}

func (r *CandidateRepository) Update(ctx context.Context, candidate types.Candidate) (types.Candidate, error) {
	candidate.UpdatedAt = time.Now().UTC()

	const query = `
		UPDATE candidates
		SET name = $1,
			email = $2,
			phone = $3,
			status = $4,
			position = $5,
			notes = $6,
			photo_url = $7,
			updated_at = $8
		WHERE id = $9`
	if err := execOne(
		ctx,
		r.db,
		query,
		candidate.Name,
		candidate.Email,
		candidate.Phone,
		candidate.Status,
		candidate.Position,
		candidate.Notes,
		candidate.PhotoURL,
		candidate.UpdatedAt,
		candidate.ID,
	); err != nil {
		return types.Candidate{}, err
	}
	return candidate, nil
}

func (r *CandidateRepository) Delete(ctx context.Context, id int) error {
	return execOne(ctx, r.db, `DELETE FROM candidates WHERE id = $1`, id)
}
