package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"toolshed/internal/models"
)

// SeedResource inserts or replaces a resource row, assigning an id when
// missing. Used by the startup seeder; the engine itself never creates
// resources.
func (db *DB) SeedResource(ctx context.Context, resource *models.Resource) error {
	if resource.ID == "" {
		resource.ID = uuid.NewString()
	}
	now := time.Now()
	if resource.CreatedAt.IsZero() {
		resource.CreatedAt = now
	}
	resource.UpdatedAt = now

	query := `INSERT OR REPLACE INTO resources
        (id, owner_id, name, description, kind, share_mode, available, max_borrow_days, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := db.db.ExecContext(ctx, query,
		resource.ID, resource.OwnerID, resource.Name, resource.Description,
		string(resource.Kind), string(resource.ShareMode), boolToInt(resource.Available),
		resource.MaxBorrowDays, encodeTime(resource.CreatedAt), encodeTime(resource.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to seed resource: %w", err)
	}
	return nil
}

func (db *DB) GetResource(ctx context.Context, id string) (*models.Resource, error) {
	query := `SELECT id, owner_id, name, description, kind, share_mode, available, max_borrow_days, created_at, updated_at
        FROM resources WHERE id = ?`
	resource, err := scanResource(db.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get resource: %w", err)
	}
	return resource, nil
}

// ListResources returns every resource, owners first by insertion order.
func (db *DB) ListResources(ctx context.Context) ([]models.Resource, error) {
	query := `SELECT id, owner_id, name, description, kind, share_mode, available, max_borrow_days, created_at, updated_at
        FROM resources ORDER BY created_at`
	rows, err := db.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list resources: %w", err)
	}
	defer rows.Close()

	var resources []models.Resource
	for rows.Next() {
		resource, err := scanResource(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan resource: %w", err)
		}
		resources = append(resources, *resource)
	}
	return resources, rows.Err()
}

func (db *DB) SetResourceAvailability(ctx context.Context, id string, available bool) error {
	query := `UPDATE resources SET available = ?, updated_at = ? WHERE id = ?`
	_, err := db.db.ExecContext(ctx, query, boolToInt(available), encodeTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("failed to set resource availability: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanResource(row rowScanner) (*models.Resource, error) {
	var r models.Resource
	var kind, shareMode string
	var available int
	var createdAt, updatedAt string

	err := row.Scan(&r.ID, &r.OwnerID, &r.Name, &r.Description, &kind, &shareMode,
		&available, &r.MaxBorrowDays, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	r.Kind = models.ResourceKind(kind)
	r.ShareMode = models.ShareMode(shareMode)
	r.Available = available != 0
	if r.CreatedAt, err = decodeTime(createdAt); err != nil {
		return nil, fmt.Errorf("bad created_at: %w", err)
	}
	if r.UpdatedAt, err = decodeTime(updatedAt); err != nil {
		return nil, fmt.Errorf("bad updated_at: %w", err)
	}
	return &r, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
