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

// InterviewFilter narrows interview listings. Zero values match everything.
type InterviewFilter struct {
	Date        types.Date
	CandidateID int
	Status      types.InterviewStatus
}

// InterviewRepository handles persistence for interviews.
type InterviewRepository struct {
	db db.DBTX
}

func NewInterviewRepository(conn db.DBTX) *InterviewRepository {
	return &InterviewRepository{db: conn}
}

const interviewSelect = `
		SELECT i.id, i.candidate_id, COALESCE(c.name, ''), i.date, i.start_time, i.duration_minutes,
		       i.modality, i.location, i.notes, i.status, i.created_at, i.access_code
		FROM interviews i
		LEFT JOIN candidates c ON c.id = i.candidate_id`

func scanInterview(row rowScanner) (types.Interview, error) {
	var interview types.Interview
	var accessCode sql.NullString
	if err := row.Scan(
		&interview.ID,
		&interview.CandidateID,
		&interview.CandidateName,
		&interview.Date,
		&interview.Start,
		&interview.DurationMinutes,
		&interview.Modality,
		&interview.Location,
		&interview.Notes,
		&interview.Status,
		&interview.CreatedAt,
		&accessCode,
	); err != nil {
		return types.Interview{}, err
	}
	interview.AccessCode = stringPtr(accessCode)
	return interview, nil
}

func (r *InterviewRepository) query(ctx context.Context, query string, args ...any) ([]types.Interview, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	interviews := make([]types.Interview, 0)
	for rows.Next() {
		interview, err := scanInterview(rows)
		if err != nil {
			return nil, err
		}
		interviews = append(interviews, interview)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return interviews, nil
}

// List returns interviews matching filter ordered by date and start time.
func (r *InterviewRepository) List(ctx context.Context, filter InterviewFilter) ([]types.Interview, error) {
	var clauses []string
	var args []any
	if !filter.Date.IsZero() {
		args = append(args, filter.Date)
		clauses = append(clauses, fmt.Sprintf("i.date = $%d", len(args)))
	}
	if filter.CandidateID > 0 {
		args = append(args, filter.CandidateID)
		clauses = append(clauses, fmt.Sprintf("i.candidate_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		clauses = append(clauses, fmt.Sprintf("i.status = $%d", len(args)))
	}

	query := interviewSelect
	if len(clauses) > 0 {
		query += "\n\t\tWHERE " + strings.Join(clauses, " AND ")
	}
	query += "\n\t\tORDER BY i.date, i.start_time, i.id"
	return r.query(ctx, query, args...)
}

// ListByDate returns every interview on date regardless of status.
func (r *InterviewRepository) ListByDate(ctx context.Context, date types.Date) ([]types.Interview, error) {
	return r.query(ctx, interviewSelect+`
		WHERE i.date = $1
		ORDER BY i.start_time, i.id`, date)
}

func (r *InterviewRepository) ListByCandidate(ctx context.Context, candidateID int) ([]types.Interview, error) {
	return r.query(ctx, interviewSelect+`
		WHERE i.candidate_id = $1
		ORDER BY i.date, i.start_time, i.id`, candidateID)
}

func (r *InterviewRepository) get(ctx context.Context, query string, id int) (types.Interview, error) {
	interview, err := scanInterview(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Interview{}, ErrNotFound
		}
		return types.Interview{}, err
	}
	return interview, nil
}

func (r *InterviewRepository) Get(ctx context.Context, id int) (types.Interview, error) {
	return r.get(ctx, interviewSelect+` WHERE i.id = $1`, id)
}

// GetForUpdate locks the interview row until the enclosing transaction ends.
func (r *InterviewRepository) GetForUpdate(ctx context.Context, id int) (types.Interview, error) {
	return r.get(ctx, interviewSelect+` WHERE i.id = $1 FOR UPDATE OF i`, id)
}

// LockDate serializes scheduling on a calendar day for the rest of the
// enclosing transaction.
func (r *InterviewRepository) LockDate(ctx context.Context, date types.Date) error {
	_, err := r.db.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, date.DayNumber())
	return err
}

func (r *InterviewRepository) Create(ctx context.Context, interview types.Interview) (types.Interview, error) {
	interview.CreatedAt = time.Now().UTC()

	const query = `
		INSERT INTO interviews (
			candidate_id, date, start_time, duration_minutes, modality,
			location, notes, status, created_at, access_code
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		interview.CandidateID,
		interview.Date,
		interview.Start,
		interview.DurationMinutes,
		interview.Modality,
		interview.Location,
		interview.Notes,
		interview.Status,
		interview.CreatedAt,
		nullString(interview.AccessCode),
	).Scan(&interview.ID); err != nil {
		return types.Interview{}, translate(err)
	}
	return interview, nil
}

func (r *InterviewRepository) Update(ctx context.Context, interview types.Interview) (types.Interview, error) {
	const query = `
		UPDATE interviews
		SET candidate_id = $1,
			date = $2,
			start_time = $3,
			duration_minutes = $4,
			modality = $5,
			location = $6,
			notes = $7,
			status = $8,
			access_code = $9
		WHERE id = $10`
	if err := execOne(
		ctx,
		r.db,
		query,
		interview.CandidateID,
		interview.Date,
		interview.Start,
		interview.DurationMinutes,
		interview.Modality,
		interview.Location,
		interview.Notes,
		interview.Status,
		nullString(interview.AccessCode),
		interview.ID,
	); err != nil {
		return types.Interview{}, err
	}
	return interview, nil
}

func (r *InterviewRepository) Delete(ctx context.Context, id int) error {
	return execOne(ctx, r.db, `DELETE FROM interviews WHERE id = $1`, id)
}

// DeleteByCandidate removes every interview of a candidate and reports how
// many were removed.
func (r *InterviewRepository) DeleteByCandidate(ctx context.Context, candidateID int) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM interviews WHERE candidate_id = $1`, candidateID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
