package store

import (
	"context"
	"database/sql"

	"github.com/reclutas/apiserver/internal/db"
	"github.com/reclutas/apiserver/types"
)

// AuditRepository appends to and reads from the audit log.
type AuditRepository struct {
	db db.DBTX
}

func NewAuditRepository(conn db.DBTX) *AuditRepository {
	return &AuditRepository{db: conn}
}

func (r *AuditRepository) Insert(ctx context.Context, entry types.AuditEntry) (types.AuditEntry, error) {
	var accountID sql.NullInt64
	if entry.AccountID != nil {
		accountID = sql.NullInt64{Int64: int64(*entry.AccountID), Valid: true}
	}

	const query = `
		INSERT INTO audit_log (timestamp, account_id, address, action, entity_type, entity_id, details)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		entry.Timestamp,
		accountID,
		entry.Address,
		entry.Action,
		nullString(entry.EntityType),
		nullString(entry.EntityID),
		nullString(entry.Details),
	).Scan(&entry.ID); err != nil {
		return types.AuditEntry{}, err
	}
	return entry, nil
}

// Recent returns up to limit entries, newest first. Order follows insertion
// (the id sequence), not the recorded timestamp.
func (r *AuditRepository) Recent(ctx context.Context, limit int) ([]types.AuditEntry, error) {
	if limit < 1 {
		limit = 20
	}
	const query = `
		SELECT id, timestamp, account_id, address, action, entity_type, entity_id, details
		FROM audit_log
		ORDER BY id DESC
		LIMIT $1`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]types.AuditEntry, 0, limit)
	for rows.Next() {
		var entry types.AuditEntry
		var accountID sql.NullInt64
		var entityType, entityID, details sql.NullString
		if err := rows.Scan(
			&entry.ID,
			&entry.Timestamp,
			&accountID,
			&entry.Address,
			&entry.Action,
			&entityType,
			&entityID,
			&details,
		); err != nil {
			return nil, err
		}
		if accountID.Valid {
			id := int(accountID.Int64)
			entry.AccountID = &id
		}
		entry.EntityType = stringPtr(entityType)
		entry.EntityID = stringPtr(entityID)
		entry.Details = stringPtr(details)
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}
