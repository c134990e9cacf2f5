package types

import "time"

// DefaultInterviewDuration applies when an interview is booked without a duration.
const DefaultInterviewDuration = 60

// Interview ("entrevista") is a scheduled meeting with a candidate.
// Interviews on the same date never overlap.
type Interview struct {
	// ID is the unique identifier of the interview.
	ID int `json:"id" db:"id"`

	// CandidateID identifies the candidate being interviewed.
	CandidateID int `json:"recluta_id" db:"candidate_id"`

	// CandidateName is filled when the interview is loaded together with its candidate.
	CandidateName string `json:"recluta_nombre,omitempty" db:"-"`

	// Date is the calendar day of the interview.
	Date Date `json:"fecha" db:"date"`

	// Start is the wall-clock start time.
	Start TimeOfDay `json:"hora" db:"start_time"`

	// DurationMinutes is the length of the interview.
	DurationMinutes int `json:"duracion" db:"duration_minutes"`

	// Modality is how the interview takes place.
	Modality Modality `json:"modalidad" db:"modality"`

	// Location is a physical address or a meeting link.
	Location string `json:"ubicacion" db:"location"`

	// Notes holds free-text notes.
	Notes string `json:"notas" db:"notes"`

	// Status is the lifecycle state of the interview.
	Status InterviewStatus `json:"estado" db:"status"`

	// CreatedAt is the timestamp when the interview was booked.
	CreatedAt time.Time `json:"fecha_creacion" db:"created_at"`

	// AccessCode is generated for virtual interviews only.
	AccessCode *string `json:"codigo_acceso" db:"access_code"`
}

// StartMinute returns the start as minutes since midnight.
func (i Interview) StartMinute() int {
	return i.Start.Minutes()
}

// EndMinute returns the exclusive end as minutes since midnight. It is not
// wrapped at midnight.
func (i Interview) EndMinute() int {
	return i.Start.Minutes() + i.DurationMinutes
}

// Modality describes how an interview takes place.
type Modality string

// Supported modalities.
const (
	ModalityInPerson Modality = "presencial"
	ModalityVirtual  Modality = "virtual"
	ModalityPhone    Modality = "telefonica"
)

// Valid reports whether m is a known modality.
func (m Modality) Valid() bool {
	switch m {
	case ModalityInPerson, ModalityVirtual, ModalityPhone:
		return true
	default:
		return false
	}
}

// InterviewStatus is the lifecycle state of an interview.
type InterviewStatus string

// Supported interview states.
const (
	InterviewPending   InterviewStatus = "pendiente"
	InterviewCompleted InterviewStatus = "completada"
	InterviewCancelled InterviewStatus = "cancelada"
)

// Valid reports whether s is a known state.
func (s InterviewStatus) Valid() bool {
	switch s {
	case InterviewPending, InterviewCompleted, InterviewCancelled:
		return true
	default:
		return false
	}
}
