package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"toolshed/internal/models"
)

func (db *DB) RecordAuditEvent(ctx context.Context, event *models.AuditEvent) error {
	event.ID = uuid.NewString()
	event.CreatedAt = time.Now()

	query := `INSERT INTO audit_events (id, action, provider_id, receiver_id, resource_id, note, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err := db.db.ExecContext(ctx, query,
		event.ID, event.Action, event.ProviderID, event.ReceiverID,
		event.ResourceID, event.Note, encodeTime(event.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to record audit event: %w", err)
	}
	return nil
}

// ListAuditEvents returns the ledger newest first, capped at limit.
func (db *DB) ListAuditEvents(ctx context.Context, limit int) ([]models.AuditEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT id, action, provider_id, receiver_id, resource_id, note, created_at
        FROM audit_events ORDER BY created_at DESC LIMIT ?`
	rows, err := db.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit events: %w", err)
	}
	defer rows.Close()

	var events []models.AuditEvent
	for rows.Next() {
		var e models.AuditEvent
		var createdAt string
		if err := rows.Scan(&e.ID, &e.Action, &e.ProviderID, &e.ReceiverID, &e.ResourceID, &e.Note, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}
		if e.CreatedAt, err = decodeTime(createdAt); err != nil {
			return nil, fmt.Errorf("bad created_at: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
