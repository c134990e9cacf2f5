package services

import (
	"context"
	"errors"
	"log/slog"

	"github.com/reclutas/apiserver/internal/db"
	"github.com/reclutas/apiserver/internal/events"
	"github.com/reclutas/apiserver/internal/metrics"
	"github.com/reclutas/apiserver/internal/store"
	"github.com/reclutas/apiserver/types"
)

// EventPublisher delivers interview events to interested parties.
type EventPublisher interface {
	Publish(ctx context.Context, event events.Event) error
}

// NewInterview is the input for booking an interview. Start is a pointer so
// a missing hora is told apart from midnight.
type NewInterview struct {
	CandidateID     int                   `json:"recluta_id"`
	Date            types.Date            `json:"fecha"`
	Start           *types.TimeOfDay      `json:"hora"`
	DurationMinutes int                   `json:"duracion"`
	Modality        types.Modality        `json:"modalidad"`
	Location        string                `json:"ubicacion"`
	Notes           string                `json:"notas"`
	Status          types.InterviewStatus `json:"estado"`
}

func (n NewInterview) interview() (types.Interview, error) {
	if n.Start == nil {
		return types.Interview{}, validationf("hora is required")
	}
	return types.Interview{
		CandidateID:     n.CandidateID,
		Date:            n.Date,
		Start:           *n.Start,
		DurationMinutes: n.DurationMinutes,
		Modality:        n.Modality,
		Location:        n.Location,
		Notes:           n.Notes,
		Status:          n.Status,
	}, nil
}

// InterviewPatch carries the fields an update changes. Nil fields are kept.
type InterviewPatch struct {
	CandidateID     *int                   `json:"recluta_id"`
	Date            *types.Date            `json:"fecha"`
	Start           *types.TimeOfDay       `json:"hora"`
	DurationMinutes *int                   `json:"duracion"`
	Modality        *types.Modality        `json:"modalidad"`
	Location        *string                `json:"ubicacion"`
	Notes           *string                `json:"notas"`
	Status          *types.InterviewStatus `json:"estado"`
}

func (p InterviewPatch) apply(interview types.Interview) types.Interview {
	if p.CandidateID != nil {
		interview.CandidateID = *p.CandidateID
	}
	if p.Date != nil {
		interview.Date = *p.Date
	}
	if p.Start != nil {
		interview.Start = *p.Start
	}
	if p.DurationMinutes != nil {
		interview.DurationMinutes = *p.DurationMinutes
	}
	if p.Modality != nil {
		interview.Modality = *p.Modality
	}
	if p.Location != nil {
		interview.Location = *p.Location
	}
	if p.Notes != nil {
		interview.Notes = *p.Notes
	}
	if p.Status != nil {
		interview.Status = *p.Status
	}
	return interview
}

// InterviewService books interviews without overlaps.
type InterviewService struct {
	db        Database
	repos     Repositories
	publisher EventPublisher
	logger    *slog.Logger
}

func NewInterviewService(database Database, repos Repositories, publisher EventPublisher, logger *slog.Logger) *InterviewService {
	if logger == nil {
		logger = slog.Default()
	}
	return &InterviewService{db: database, repos: repos, publisher: publisher, logger: logger}
}

func (s *InterviewService) List(ctx context.Context, filter store.InterviewFilter) ([]types.Interview, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, validationf("unknown estado %q", filter.Status)
	}
	interviews, err := s.repos.Interviews(s.db).List(ctx, filter)
	return interviews, persistence(err)
}

// ListByCandidate returns the interviews of an existing candidate.
func (s *InterviewService) ListByCandidate(ctx context.Context, candidateID int) ([]types.Interview, error) {
	if _, err := s.repos.Candidates(s.db).Get(ctx, candidateID); err != nil {
		return nil, persistence(err)
	}
	interviews, err := s.repos.Interviews(s.db).ListByCandidate(ctx, candidateID)
	return interviews, persistence(err)
}

func (s *InterviewService) Get(ctx context.Context, id int) (types.Interview, error) {
	interview, err := s.repos.Interviews(s.db).Get(ctx, id)
	return interview, persistence(err)
}

func validateInterview(interview *types.Interview) error {
	if interview.CandidateID <= 0 {
		return validationf("recluta_id is required")
	}
	if err := checkSlot(interview); err != nil {
		return err
	}
	if interview.Modality == "" {
		interview.Modality = types.ModalityInPerson
	}
	if !interview.Modality.Valid() {
		return validationf("unknown modalidad %q", interview.Modality)
	}
	if interview.Status == "" {
		interview.Status = types.InterviewPending
	}
	if !interview.Status.Valid() {
		return validationf("unknown estado %q", interview.Status)
	}
	return nil
}

// syncAccessCode keeps the access code present exactly for virtual interviews.
func syncAccessCode(interview *types.Interview) error {
	if interview.Modality != types.ModalityVirtual {
		interview.AccessCode = nil
		return nil
	}
	if interview.AccessCode != nil && *interview.AccessCode != "" {
		return nil
	}
	code, err := newAccessCode()
	if err != nil {
		return err
	}
	interview.AccessCode = &code
	return nil
}

// Schedule books a new interview. The overlap check and the insert happen
// under a per-date lock.
func (s *InterviewService) Schedule(ctx context.Context, input NewInterview) (types.Interview, error) {
	interview, err := input.interview()
	if err != nil {
		return types.Interview{}, err
	}
	if err := validateInterview(&interview); err != nil {
		return types.Interview{}, err
	}
	if err := syncAccessCode(&interview); err != nil {
		return types.Interview{}, err
	}

	var candidate types.Candidate
	err = s.db.WithTx(ctx, func(ctx context.Context, tx db.DBTX) error {
		var err error
		candidate, err = s.repos.Candidates(tx).Get(ctx, interview.CandidateID)
		if err != nil {
			return err
		}

		interviews := s.repos.Interviews(tx)
		if err := interviews.LockDate(ctx, interview.Date); err != nil {
			return err
		}
		existing, err := interviews.ListByDate(ctx, interview.Date)
		if err != nil {
			return err
		}
		if conflict, ok := FindConflict(existing, interview); ok {
			return &ConflictError{Existing: conflict}
		}

		interview, err = interviews.Create(ctx, interview)
		return err
	})
	if err != nil {
		return types.Interview{}, s.fail(err)
	}

	interview.CandidateName = candidate.Name
	s.publish(ctx, events.InterviewScheduled, interview, candidate)
	return interview, nil
}

// Update applies patch to an interview. Changes to date, start or duration
// are checked for overlaps under the locks of both the old and new date.
func (s *InterviewService) Update(ctx context.Context, id int, patch InterviewPatch) (types.Interview, error) {
	var current, next types.Interview
	var candidate types.Candidate

	err := s.db.WithTx(ctx, func(ctx context.Context, tx db.DBTX) error {
		interviews := s.repos.Interviews(tx)
		var err error
		current, err = interviews.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}

		next = patch.apply(current)
		if err := validateInterview(&next); err != nil {
			return err
		}
		if err := syncAccessCode(&next); err != nil {
			return err
		}

		candidate, err = s.repos.Candidates(tx).Get(ctx, next.CandidateID)
		if err != nil {
			return err
		}

		if slotChanged(current, next) {
			for _, date := range lockOrder(current.Date, next.Date) {
				if err := interviews.LockDate(ctx, date); err != nil {
					return err
				}
			}
			existing, err := interviews.ListByDate(ctx, next.Date)
			if err != nil {
				return err
			}
			if conflict, ok := FindConflict(existing, next); ok {
				return &ConflictError{Existing: conflict}
			}
		}

		next, err = interviews.Update(ctx, next)
		return err
	})
	if err != nil {
		return types.Interview{}, s.fail(err)
	}

	next.CandidateName = candidate.Name
	eventType := events.InterviewUpdated
	if next.Status == types.InterviewCancelled && current.Status != types.InterviewCancelled {
		eventType = events.InterviewCancelled
	}
	s.publish(ctx, eventType, next, candidate)
	return next, nil
}

// Delete removes an interview.
func (s *InterviewService) Delete(ctx context.Context, id int) error {
	var removed types.Interview
	var candidate types.Candidate
	err := s.db.WithTx(ctx, func(ctx context.Context, tx db.DBTX) error {
		interviews := s.repos.Interviews(tx)
		var err error
		removed, err = interviews.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		candidate, err = s.repos.Candidates(tx).Get(ctx, removed.CandidateID)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
		return interviews.Delete(ctx, id)
	})
	if err != nil {
		return persistence(err)
	}
	if removed.Status != types.InterviewCancelled {
		s.publish(ctx, events.InterviewCancelled, removed, candidate)
	}
	return nil
}

func (s *InterviewService) fail(err error) error {
	if errors.Is(err, ErrSchedulingConflict) {
		metrics.SchedulingConflicts.Inc()
	}
	return persistence(err)
}

func (s *InterviewService) publish(ctx context.Context, eventType string, interview types.Interview, candidate types.Candidate) {
	if s.publisher == nil {
		return
	}
	event := events.New(eventType, interview, candidate)
	if err := s.publisher.Publish(ctx, event); err != nil {
		metrics.EventPublishFailures.Inc()
		s.logger.Warn("publish interview event failed", "type", eventType, "interview_id", interview.ID, "error", err)
	}
}

func slotChanged(a, b types.Interview) bool {
	return a.Date != b.Date || a.Start != b.Start || a.DurationMinutes != b.DurationMinutes
}

// lockOrder returns the distinct dates in ascending order so concurrent
// reschedules acquire locks consistently.
func lockOrder(a, b types.Date) []types.Date {
	switch {
	case a == b:
		return []types.Date{a}
	case a.Before(b):
		return []types.Date{a, b}
	default:
		return []types.Date{b, a}
	}
}
