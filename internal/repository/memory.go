package repository

import (
	"context"
	"sync"
	"time"

	"toolshed/internal/domain"
	"toolshed/internal/models"
	"toolshed/internal/schedule"

	"github.com/google/uuid"
)

// MemoryStore is a mutex-guarded in-memory implementation of domain.Store.
// It backs the service tests and the embedded single-process mode.
type MemoryStore struct {
	mu            sync.RWMutex
	resources     map[string]*models.Resource
	bookings      map[string]*models.Booking
	coordinations map[string]*models.PickupCoordination
	auditEvents   []models.AuditEvent
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		resources:     make(map[string]*models.Resource),
		bookings:      make(map[string]*models.Booking),
		coordinations: make(map[string]*models.PickupCoordination),
	}
}

// SeedResource inserts or replaces a resource, assigning an id when missing.
func (m *MemoryStore) SeedResource(resource *models.Resource) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if resource.ID == "" {
		resource.ID = uuid.NewString()
	}
	now := time.Now()
	if resource.CreatedAt.IsZero() {
		resource.CreatedAt = now
	}
	resource.UpdatedAt = now
	clone := *resource
	m.resources[resource.ID] = &clone
}

func (m *MemoryStore) GetResource(ctx context.Context, id string) (*models.Resource, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	resource, ok := m.resources[id]
	if !ok {
		return nil, nil
	}
	clone := *resource
	return &clone, nil
}

func (m *MemoryStore) SetResourceAvailability(ctx context.Context, id string, available bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	resource, ok := m.resources[id]
	if !ok {
		return nil
	}
	resource.Available = available
	resource.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryStore) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	booking, ok := m.bookings[id]
	if !ok {
		return nil, nil
	}
	clone := *booking
	return &clone, nil
}

func (m *MemoryStore) ListBookingsForResource(ctx context.Context, resourceID string) ([]models.Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []models.Booking
	for _, b := range m.bookings {
		if b.ResourceID == resourceID {
			result = append(result, *b)
		}
	}
	return result, nil
}

func (m *MemoryStore) ListBookingsForUser(ctx context.Context, userID string) ([]models.Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []models.Booking
	for _, b := range m.bookings {
		if b.RequesterID == userID {
			result = append(result, *b)
		}
	}
	return result, nil
}

// AddBooking assigns id and timestamps and re-checks conflicts under the
// write lock, so two racing inserts for overlapping intervals cannot both
// land.
func (m *MemoryStore) AddBooking(ctx context.Context, booking *models.Booking) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.bookings {
		if existing.ResourceID != booking.ResourceID || existing.Status == models.BookingCancelled {
			continue
		}
		if schedule.Overlaps(booking.StartTime, booking.EndTime, existing.StartTime, existing.EndTime) {
			return domain.ErrBookingConflict
		}
	}

	now := time.Now()
	booking.ID = uuid.NewString()
	booking.CreatedAt = now
	booking.UpdatedAt = now

	clone := *booking
	m.bookings[booking.ID] = &clone
	return nil
}

func (m *MemoryStore) UpdateBooking(ctx context.Context, booking *models.Booking) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.bookings[booking.ID]; !ok {
		return nil
	}
	booking.UpdatedAt = time.Now()
	clone := *booking
	m.bookings[booking.ID] = &clone
	return nil
}

func (m *MemoryStore) TransitionBookingWithAvailability(ctx context.Context, booking *models.Booking, available bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	booking.UpdatedAt = now
	clone := *booking
	m.bookings[booking.ID] = &clone

	if resource, ok := m.resources[booking.ResourceID]; ok {
		resource.Available = available
		resource.UpdatedAt = now
	}
	return nil
}

func (m *MemoryStore) GetPickupCoordination(ctx context.Context, id string) (*models.PickupCoordination, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	coordination, ok := m.coordinations[id]
	if !ok {
		return nil, nil
	}
	clone := *coordination
	clone.Messages = append([]models.Message(nil), coordination.Messages...)
	return &clone, nil
}

func (m *MemoryStore) ListPickupCoordinations(ctx context.Context) ([]models.PickupCoordination, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []models.PickupCoordination
	for _, c := range m.coordinations {
		clone := *c
		clone.Messages = append([]models.Message(nil), c.Messages...)
		result = append(result, clone)
	}
	return result, nil
}

func (m *MemoryStore) AddPickupCoordination(ctx context.Context, coordination *models.PickupCoordination) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	coordination.ID = uuid.NewString()
	coordination.CreatedAt = now
	coordination.UpdatedAt = now

	clone := *coordination
	clone.Messages = append([]models.Message(nil), coordination.Messages...)
	m.coordinations[coordination.ID] = &clone
	return nil
}

func (m *MemoryStore) UpdatePickupCoordination(ctx context.Context, coordination *models.PickupCoordination) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.coordinations[coordination.ID]; !ok {
		return nil
	}
	coordination.UpdatedAt = time.Now()
	clone := *coordination
	clone.Messages = append([]models.Message(nil), coordination.Messages...)
	m.coordinations[coordination.ID] = &clone
	return nil
}

func (m *MemoryStore) RecordAuditEvent(ctx context.Context, event *models.AuditEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	event.ID = uuid.NewString()
	event.CreatedAt = time.Now()
	m.auditEvents = append(m.auditEvents, *event)
	return nil
}

// AuditEvents returns a snapshot of the ledger, for tests.
func (m *MemoryStore) AuditEvents() []models.AuditEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]models.AuditEvent(nil), m.auditEvents...)
}
