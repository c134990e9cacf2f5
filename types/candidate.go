package types

import "time"

// Candidate ("recluta") is a person in the recruiting pipeline.
// Deleting a candidate removes its interviews.
type Candidate struct {
	// ID is the unique identifier of the candidate.
	ID int `json:"id" db:"id"`

	// Name is the candidate's full name.
	Name string `json:"nombre" db:"name"`

	// Email is the candidate's contact address.
	Email string `json:"email" db:"email"`

	// Phone is the candidate's contact number.
	Phone string `json:"telefono" db:"phone"`

	// Status is the candidate's position in the pipeline.
	Status CandidateStatus `json:"estado" db:"status"`

	// Position is the job the candidate applies for.
	Position string `json:"puesto" db:"position"`

	// Notes holds free-text recruiter notes.
	Notes string `json:"notas" db:"notes"`

	// PhotoURL references the candidate's picture.
	PhotoURL string `json:"foto_url" db:"photo_url"`

	// RegisteredAt is the timestamp when the candidate was registered.
	RegisteredAt time.Time `json:"fecha_registro" db:"registered_at"`

	// UpdatedAt is the timestamp of the most recent update.
	UpdatedAt time.Time `json:"fecha_actualizacion" db:"updated_at"`
}

// CandidateStatus is the pipeline state of a candidate.
type CandidateStatus string

// Supported candidate states.
const (
	CandidateInProcess CandidateStatus = "En proceso"
	CandidateActive    CandidateStatus = "Activo"
	CandidateRejected  CandidateStatus = "Rechazado"
	CandidateHired     CandidateStatus = "Contratado"
)

// Valid reports whether s is a known state.
func (s CandidateStatus) Valid() bool {
	switch s {
	case CandidateInProcess, CandidateActive, CandidateRejected, CandidateHired:
		return true
	default:
		return false
	}
}
