package types

import "time"

// Session is an issued login session. The token is an opaque secret and is
// never serialized.
type Session struct {
	ID           int64     `json:"id"`
	AccountID    int       `json:"usuario_id"`
	Address      string    `json:"ip"`
	Token        string    `json:"-"`
	CreatedAt    time.Time `json:"fecha_creacion"`
	LastActivity time.Time `json:"ultima_actividad"`
	ExpiresAt    time.Time `json:"expira"`
	Valid        bool      `json:"valida"`
}

// Usable reports whether the session may authenticate a request at now.
func (s Session) Usable(now time.Time) bool {
	return s.Valid && now.Before(s.ExpiresAt)
}
