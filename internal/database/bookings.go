package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"toolshed/internal/domain"
	"toolshed/internal/models"
)

const bookingColumns = `id, resource_id, requester_id, start_time, end_time, status,
    purpose, pickup_location, notes, return_condition, created_at, updated_at`

// AddBooking inserts a booking after re-checking the interval against the
// resource's non-cancelled bookings inside the same transaction. sqlite
// serializes writers, so a racing insert for an overlapping interval is seen
// by whichever transaction commits second.
func (db *DB) AddBooking(ctx context.Context, booking *models.Booking) error {
	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Times are stored as UTC RFC3339Nano, so string comparison follows
	// chronological order and the half-open overlap test works in SQL.
	var overlapping int
	checkQuery := `SELECT COUNT(*) FROM bookings
        WHERE resource_id = ? AND status != 'cancelled'
          AND start_time < ? AND end_time > ?`
	err = tx.QueryRowContext(ctx, checkQuery,
		booking.ResourceID, encodeTime(booking.EndTime), encodeTime(booking.StartTime)).Scan(&overlapping)
	if err != nil {
		return fmt.Errorf("failed to re-check conflicts: %w", err)
	}
	if overlapping > 0 {
		return domain.ErrBookingConflict
	}

	now := time.Now()
	booking.ID = uuid.NewString()
	booking.CreatedAt = now
	booking.UpdatedAt = now

	insertQuery := `INSERT INTO bookings (` + bookingColumns + `)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = tx.ExecContext(ctx, insertQuery,
		booking.ID, booking.ResourceID, booking.RequesterID,
		encodeTime(booking.StartTime), encodeTime(booking.EndTime), string(booking.Status),
		booking.Purpose, booking.PickupLocation, booking.Notes, booking.ReturnCondition,
		encodeTime(booking.CreatedAt), encodeTime(booking.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to insert booking: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit booking: %w", err)
	}
	return nil
}

func (db *DB) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = ?`
	booking, err := scanBooking(db.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	return booking, nil
}

func (db *DB) ListBookingsForResource(ctx context.Context, resourceID string) ([]models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE resource_id = ? ORDER BY start_time`
	return db.queryBookings(ctx, query, resourceID)
}

func (db *DB) ListBookingsForUser(ctx context.Context, userID string) ([]models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE requester_id = ? ORDER BY start_time`
	return db.queryBookings(ctx, query, userID)
}

func (db *DB) UpdateBooking(ctx context.Context, booking *models.Booking) error {
	booking.UpdatedAt = time.Now()
	query := `UPDATE bookings SET start_time = ?, end_time = ?, status = ?,
        purpose = ?, pickup_location = ?, notes = ?, return_condition = ?, updated_at = ?
        WHERE id = ?`
	_, err := db.db.ExecContext(ctx, query,
		encodeTime(booking.StartTime), encodeTime(booking.EndTime), string(booking.Status),
		booking.Purpose, booking.PickupLocation, booking.Notes, booking.ReturnCondition,
		encodeTime(booking.UpdatedAt), booking.ID)
	if err != nil {
		return fmt.Errorf("failed to update booking: %w", err)
	}
	return nil
}

// TransitionBookingWithAvailability writes the booking and flips the
// resource's availability flag in one transaction. The two columns form a
// single consistency domain.
func (db *DB) TransitionBookingWithAvailability(ctx context.Context, booking *models.Booking, available bool) error {
	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now()
	booking.UpdatedAt = now

	_, err = tx.ExecContext(ctx, `UPDATE bookings SET status = ?, notes = ?, return_condition = ?, updated_at = ? WHERE id = ?`,
		string(booking.Status), booking.Notes, booking.ReturnCondition, encodeTime(now), booking.ID)
	if err != nil {
		return fmt.Errorf("failed to transition booking: %w", err)
	}

	_, err = tx.ExecContext(ctx, `UPDATE resources SET available = ?, updated_at = ? WHERE id = ?`,
		boolToInt(available), encodeTime(now), booking.ResourceID)
	if err != nil {
		return fmt.Errorf("failed to update resource availability: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transition: %w", err)
	}
	return nil
}

func (db *DB) queryBookings(ctx context.Context, query string, args ...interface{}) ([]models.Booking, error) {
	rows, err := db.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}
	defer rows.Close()

	var bookings []models.Booking
	for rows.Next() {
		booking, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		bookings = append(bookings, *booking)
	}
	return bookings, rows.Err()
}

func scanBooking(row rowScanner) (*models.Booking, error) {
	var b models.Booking
	var status string
	var startTime, endTime, createdAt, updatedAt string

	err := row.Scan(&b.ID, &b.ResourceID, &b.RequesterID, &startTime, &endTime, &status,
		&b.Purpose, &b.PickupLocation, &b.Notes, &b.ReturnCondition, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	b.Status = models.BookingStatus(status)
	if b.StartTime, err = decodeTime(startTime); err != nil {
		return nil, fmt.Errorf("bad start_time: %w", err)
	}
	if b.EndTime, err = decodeTime(endTime); err != nil {
		return nil, fmt.Errorf("bad end_time: %w", err)
	}
	if b.CreatedAt, err = decodeTime(createdAt); err != nil {
		return nil, fmt.Errorf("bad created_at: %w", err)
	}
	if b.UpdatedAt, err = decodeTime(updatedAt); err != nil {
		return nil, fmt.Errorf("bad updated_at: %w", err)
	}
	return &b, nil
}
