package types

import "time"

// AuditEntry is an append-only record of a security-relevant action.
type AuditEntry struct {
	ID         int64     `json:"id"`
	Timestamp  time.Time `json:"timestamp"`
	AccountID  *int      `json:"usuario_id"`
	Address    string    `json:"ip"`
	Action     string    `json:"accion"`
	EntityType *string   `json:"entidad_tipo"`
	EntityID   *string   `json:"entidad_id"`
	Details    *string   `json:"detalles"`
}
