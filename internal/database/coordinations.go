package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"toolshed/internal/models"
)

const coordinationColumns = `id, resource_id, provider_id, receiver_id, booking_id, status, method,
    scheduled_time, location, directions, completed_by, completed_at, created_at, updated_at`

func (db *DB) AddPickupCoordination(ctx context.Context, coordination *models.PickupCoordination) error {
	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now()
	coordination.ID = uuid.NewString()
	coordination.CreatedAt = now
	coordination.UpdatedAt = now

	query := `INSERT INTO coordinations (` + coordinationColumns + `)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = tx.ExecContext(ctx, query,
		coordination.ID, coordination.ResourceID, coordination.ProviderID, coordination.ReceiverID,
		coordination.BookingID, string(coordination.Status), string(coordination.Method),
		encodeTime(coordination.ScheduledTime), coordination.Location, coordination.Directions,
		coordination.CompletedBy, encodeTime(coordination.CompletedAt),
		encodeTime(coordination.CreatedAt), encodeTime(coordination.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to insert coordination: %w", err)
	}

	if err := insertMessages(ctx, tx, coordination.ID, coordination.Messages); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit coordination: %w", err)
	}
	return nil
}

func (db *DB) GetPickupCoordination(ctx context.Context, id string) (*models.PickupCoordination, error) {
	query := `SELECT ` + coordinationColumns + ` FROM coordinations WHERE id = ?`
	coordination, err := scanCoordination(db.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get coordination: %w", err)
	}

	if coordination.Messages, err = db.loadMessages(ctx, id); err != nil {
		return nil, err
	}
	return coordination, nil
}

func (db *DB) ListPickupCoordinations(ctx context.Context) ([]models.PickupCoordination, error) {
	query := `SELECT ` + coordinationColumns + ` FROM coordinations ORDER BY created_at`
	rows, err := db.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list coordinations: %w", err)
	}
	defer rows.Close()

	var coordinations []models.PickupCoordination
	for rows.Next() {
		coordination, err := scanCoordination(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan coordination: %w", err)
		}
		coordinations = append(coordinations, *coordination)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range coordinations {
		if coordinations[i].Messages, err = db.loadMessages(ctx, coordinations[i].ID); err != nil {
			return nil, err
		}
	}
	return coordinations, nil
}

// UpdatePickupCoordination rewrites the row and appends any messages not yet
// persisted. The message log is append-only; existing rows are never touched.
func (db *DB) UpdatePickupCoordination(ctx context.Context, coordination *models.PickupCoordination) error {
	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	coordination.UpdatedAt = time.Now()
	query := `UPDATE coordinations SET status = ?, method = ?, scheduled_time = ?, location = ?,
        directions = ?, completed_by = ?, completed_at = ?, updated_at = ? WHERE id = ?`
	_, err = tx.ExecContext(ctx, query,
		string(coordination.Status), string(coordination.Method),
		encodeTime(coordination.ScheduledTime), coordination.Location, coordination.Directions,
		coordination.CompletedBy, encodeTime(coordination.CompletedAt),
		encodeTime(coordination.UpdatedAt), coordination.ID)
	if err != nil {
		return fmt.Errorf("failed to update coordination: %w", err)
	}

	var persisted int
	err = tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM coordination_messages WHERE coordination_id = ?`,
		coordination.ID).Scan(&persisted)
	if err != nil {
		return fmt.Errorf("failed to count messages: %w", err)
	}
	if persisted < len(coordination.Messages) {
		if err := insertMessages(ctx, tx, coordination.ID, coordination.Messages[persisted:]); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit coordination update: %w", err)
	}
	return nil
}

func insertMessages(ctx context.Context, tx *sql.Tx, coordinationID string, messages []models.Message) error {
	query := `INSERT INTO coordination_messages (coordination_id, sender_id, text, system, sent_at)
        VALUES (?, ?, ?, ?, ?)`
	for _, msg := range messages {
		_, err := tx.ExecContext(ctx, query,
			coordinationID, msg.SenderID, msg.Text, boolToInt(msg.System), encodeTime(msg.SentAt))
		if err != nil {
			return fmt.Errorf("failed to insert message: %w", err)
		}
	}
	return nil
}

func (db *DB) loadMessages(ctx context.Context, coordinationID string) ([]models.Message, error) {
	query := `SELECT sender_id, text, system, sent_at FROM coordination_messages
        WHERE coordination_id = ? ORDER BY id`
	rows, err := db.db.QueryContext(ctx, query, coordinationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}
	defer rows.Close()

	var messages []models.Message
	for rows.Next() {
		var msg models.Message
		var system int
		var sentAt string
		if err := rows.Scan(&msg.SenderID, &msg.Text, &system, &sentAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		msg.System = system != 0
		if msg.SentAt, err = decodeTime(sentAt); err != nil {
			return nil, fmt.Errorf("bad sent_at: %w", err)
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

func scanCoordination(row rowScanner) (*models.PickupCoordination, error) {
	var c models.PickupCoordination
	var status, method string
	var scheduledTime, completedAt, createdAt, updatedAt string

	err := row.Scan(&c.ID, &c.ResourceID, &c.ProviderID, &c.ReceiverID, &c.BookingID,
		&status, &method, &scheduledTime, &c.Location, &c.Directions,
		&c.CompletedBy, &completedAt, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	c.Status = models.CoordinationStatus(status)
	c.Method = models.ExchangeMethod(method)
	if c.ScheduledTime, err = decodeTime(scheduledTime); err != nil {
		return nil, fmt.Errorf("bad scheduled_time: %w", err)
	}
	if c.CompletedAt, err = decodeTime(completedAt); err != nil {
		return nil, fmt.Errorf("bad completed_at: %w", err)
	}
	if c.CreatedAt, err = decodeTime(createdAt); err != nil {
		return nil, fmt.Errorf("bad created_at: %w", err)
	}
	if c.UpdatedAt, err = decodeTime(updatedAt); err != nil {
		return nil, fmt.Errorf("bad updated_at: %w", err)
	}
	return &c, nil
}
