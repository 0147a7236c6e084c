package models

import "time"

// Resource is a shared item owned by a community member. The booking engine
// consumes resources; it does not own their CRUD lifecycle.
type Resource struct {
	ID            string       `json:"id" yaml:"id"`
	OwnerID       string       `json:"owner_id" yaml:"owner_id"`
	Name          string       `json:"name" yaml:"name"`
	Description   string       `json:"description,omitempty" yaml:"description"`
	Kind          ResourceKind `json:"kind" yaml:"kind"`
	ShareMode     ShareMode    `json:"share_mode" yaml:"share_mode"`
	Available     bool         `json:"available" yaml:"available"`
	MaxBorrowDays int          `json:"max_borrow_days,omitempty" yaml:"max_borrow_days"`
	CreatedAt     time.Time    `json:"created_at" yaml:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at" yaml:"updated_at"`
}

// MaxBorrow returns the borrow cap as a duration, or zero when uncapped.
func (r *Resource) MaxBorrow() time.Duration {
	if r.MaxBorrowDays <= 0 {
		return 0
	}
	return time.Duration(r.MaxBorrowDays) * 24 * time.Hour
}
