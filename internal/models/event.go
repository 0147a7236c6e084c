package models

import "time"

// AuditEvent is an append-only ledger entry describing a lend, return,
// transfer or cancellation. The engine writes these and never reads them back.
type AuditEvent struct {
	ID         string    `json:"id"`
	Action     string    `json:"action"`
	ProviderID string    `json:"provider_id"`
	ReceiverID string    `json:"receiver_id"`
	ResourceID string    `json:"resource_id"`
	Note       string    `json:"note,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}
