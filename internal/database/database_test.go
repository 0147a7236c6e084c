package database

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"toolshed/internal/domain"
	"toolshed/internal/models"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	logger := zerolog.New(io.Discard)
	db, err := NewDB(":memory:", &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func seedTestResource(t *testing.T, db *DB) *models.Resource {
	t.Helper()
	resource := &models.Resource{
		OwnerID:       "owner-1",
		Name:          "Pressure washer",
		Kind:          models.KindTool,
		ShareMode:     models.ShareLend,
		Available:     true,
		MaxBorrowDays: 7,
	}
	require.NoError(t, db.SeedResource(context.Background(), resource))
	return resource
}

func testDay(n int) time.Time {
	base := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	return base.AddDate(0, 0, n)
}

func TestResourceRoundTrip(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	resource := seedTestResource(t, db)
	require.NotEmpty(t, resource.ID)

	got, err := db.GetResource(ctx, resource.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, resource.Name, got.Name)
	assert.Equal(t, models.KindTool, got.Kind)
	assert.Equal(t, 7, got.MaxBorrowDays)
	assert.True(t, got.Available)

	missing, err := db.GetResource(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestSetResourceAvailability(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	resource := seedTestResource(t, db)
	require.NoError(t, db.SetResourceAvailability(ctx, resource.ID, false))

	got, err := db.GetResource(ctx, resource.ID)
	require.NoError(t, err)
	assert.False(t, got.Available)
}

func TestListResources(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	seedTestResource(t, db)
	seedTestResource(t, db)

	resources, err := db.ListResources(ctx)
	require.NoError(t, err)
	assert.Len(t, resources, 2)
}

func TestAddBookingAndGet(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	resource := seedTestResource(t, db)

	booking := &models.Booking{
		ResourceID:  resource.ID,
		RequesterID: "borrower-1",
		StartTime:   testDay(1),
		EndTime:     testDay(3),
		Status:      models.BookingConfirmed,
		Purpose:     "deck cleaning",
	}
	require.NoError(t, db.AddBooking(ctx, booking))
	require.NotEmpty(t, booking.ID)

	got, err := db.GetBooking(ctx, booking.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.StartTime.Equal(testDay(1)))
	assert.True(t, got.EndTime.Equal(testDay(3)))
	assert.Equal(t, models.BookingConfirmed, got.Status)
	assert.Equal(t, "deck cleaning", got.Purpose)
}

func TestAddBookingConflictRecheck(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	resource := seedTestResource(t, db)

	first := &models.Booking{
		ResourceID:  resource.ID,
		RequesterID: "borrower-1",
		StartTime:   testDay(1),
		EndTime:     testDay(3),
		Status:      models.BookingConfirmed,
	}
	require.NoError(t, db.AddBooking(ctx, first))

	overlapping := &models.Booking{
		ResourceID:  resource.ID,
		RequesterID: "borrower-2",
		StartTime:   testDay(2),
		EndTime:     testDay(4),
		Status:      models.BookingConfirmed,
	}
	err := db.AddBooking(ctx, overlapping)
	assert.ErrorIs(t, err, domain.ErrBookingConflict)

	// half-open intervals: touching end and start is not a conflict
	backToBack := &models.Booking{
		ResourceID:  resource.ID,
		RequesterID: "borrower-2",
		StartTime:   testDay(3),
		EndTime:     testDay(5),
		Status:      models.BookingConfirmed,
	}
	assert.NoError(t, db.AddBooking(ctx, backToBack))
}

func TestAddBookingConflictRecheckSubSecond(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	resource := seedTestResource(t, db)

	// ends half a second past the hour
	first := &models.Booking{
		ResourceID:  resource.ID,
		RequesterID: "borrower-1",
		StartTime:   testDay(0),
		EndTime:     testDay(1).Add(500 * time.Millisecond),
		Status:      models.BookingConfirmed,
	}
	require.NoError(t, db.AddBooking(ctx, first))

	// whole-second bounds overlapping the fractional tail must be caught;
	// the stored strings have a fixed-width fraction so the SQL string
	// comparison orders them correctly
	overlapping := &models.Booking{
		ResourceID:  resource.ID,
		RequesterID: "borrower-2",
		StartTime:   testDay(1),
		EndTime:     testDay(2),
		Status:      models.BookingConfirmed,
	}
	err := db.AddBooking(ctx, overlapping)
	assert.ErrorIs(t, err, domain.ErrBookingConflict)

	// starting exactly at the fractional end is back-to-back, not a conflict
	adjacent := &models.Booking{
		ResourceID:  resource.ID,
		RequesterID: "borrower-2",
		StartTime:   testDay(1).Add(500 * time.Millisecond),
		EndTime:     testDay(2),
		Status:      models.BookingConfirmed,
	}
	require.NoError(t, db.AddBooking(ctx, adjacent))

	got, err := db.GetBooking(ctx, first.ID)
	require.NoError(t, err)
	assert.True(t, got.EndTime.Equal(first.EndTime))
}

func TestAddBookingIgnoresCancelled(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	resource := seedTestResource(t, db)

	cancelled := &models.Booking{
		ResourceID:  resource.ID,
		RequesterID: "borrower-1",
		StartTime:   testDay(1),
		EndTime:     testDay(3),
		Status:      models.BookingCancelled,
	}
	require.NoError(t, db.AddBooking(ctx, cancelled))

	replacement := &models.Booking{
		ResourceID:  resource.ID,
		RequesterID: "borrower-2",
		StartTime:   testDay(1),
		EndTime:     testDay(3),
		Status:      models.BookingConfirmed,
	}
	assert.NoError(t, db.AddBooking(ctx, replacement))
}

func TestListBookings(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	resource := seedTestResource(t, db)
	other := seedTestResource(t, db)

	require.NoError(t, db.AddBooking(ctx, &models.Booking{
		ResourceID: resource.ID, RequesterID: "u1",
		StartTime: testDay(5), EndTime: testDay(6), Status: models.BookingConfirmed,
	}))
	require.NoError(t, db.AddBooking(ctx, &models.Booking{
		ResourceID: resource.ID, RequesterID: "u2",
		StartTime: testDay(1), EndTime: testDay(2), Status: models.BookingConfirmed,
	}))
	require.NoError(t, db.AddBooking(ctx, &models.Booking{
		ResourceID: other.ID, RequesterID: "u1",
		StartTime: testDay(1), EndTime: testDay(2), Status: models.BookingConfirmed,
	}))

	byResource, err := db.ListBookingsForResource(ctx, resource.ID)
	require.NoError(t, err)
	require.Len(t, byResource, 2)
	// ordered by start time
	assert.True(t, byResource[0].StartTime.Before(byResource[1].StartTime))

	byUser, err := db.ListBookingsForUser(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, byUser, 2)
}

func TestUpdateBooking(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	resource := seedTestResource(t, db)

	booking := &models.Booking{
		ResourceID: resource.ID, RequesterID: "u1",
		StartTime: testDay(1), EndTime: testDay(2), Status: models.BookingConfirmed,
	}
	require.NoError(t, db.AddBooking(ctx, booking))

	booking.EndTime = testDay(3)
	booking.Notes = "extended"
	require.NoError(t, db.UpdateBooking(ctx, booking))

	got, err := db.GetBooking(ctx, booking.ID)
	require.NoError(t, err)
	assert.True(t, got.EndTime.Equal(testDay(3)))
	assert.Equal(t, "extended", got.Notes)
}

func TestTransitionBookingWithAvailability(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	resource := seedTestResource(t, db)

	booking := &models.Booking{
		ResourceID: resource.ID, RequesterID: "u1",
		StartTime: testDay(1), EndTime: testDay(2), Status: models.BookingConfirmed,
	}
	require.NoError(t, db.AddBooking(ctx, booking))

	booking.Status = models.BookingActive
	require.NoError(t, db.TransitionBookingWithAvailability(ctx, booking, false))

	gotBooking, err := db.GetBooking(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingActive, gotBooking.Status)

	gotResource, err := db.GetResource(ctx, resource.ID)
	require.NoError(t, err)
	assert.False(t, gotResource.Available)

	booking.Status = models.BookingCompleted
	booking.ReturnCondition = "good as new"
	require.NoError(t, db.TransitionBookingWithAvailability(ctx, booking, true))

	gotBooking, err = db.GetBooking(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingCompleted, gotBooking.Status)
	assert.Equal(t, "good as new", gotBooking.ReturnCondition)

	gotResource, err = db.GetResource(ctx, resource.ID)
	require.NoError(t, err)
	assert.True(t, gotResource.Available)
}

func TestCoordinationRoundTrip(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	resource := seedTestResource(t, db)

	coordination := &models.PickupCoordination{
		ResourceID: resource.ID,
		ProviderID: "owner-1",
		ReceiverID: "borrower-1",
		Status:     models.CoordinationPending,
		Method:     models.MethodPickup,
		Messages: []models.Message{
			{SenderID: "owner-1", Text: "ready after 5pm", SentAt: time.Now()},
		},
	}
	require.NoError(t, db.AddPickupCoordination(ctx, coordination))
	require.NotEmpty(t, coordination.ID)

	got, err := db.GetPickupCoordination(ctx, coordination.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, models.CoordinationPending, got.Status)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "ready after 5pm", got.Messages[0].Text)

	missing, err := db.GetPickupCoordination(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestCoordinationUpdateAppendsMessages(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	resource := seedTestResource(t, db)

	coordination := &models.PickupCoordination{
		ResourceID: resource.ID,
		ProviderID: "owner-1",
		ReceiverID: "borrower-1",
		Status:     models.CoordinationPending,
		Method:     models.MethodMeetup,
	}
	require.NoError(t, db.AddPickupCoordination(ctx, coordination))

	when := testDay(2)
	coordination.Status = models.CoordinationScheduled
	coordination.ScheduledTime = when
	coordination.Location = "library parking lot"
	coordination.Messages = append(coordination.Messages,
		models.Message{SenderID: "borrower-1", Text: "see you there", SentAt: time.Now()},
		models.Message{SenderID: "system", Text: "Handoff scheduled", System: true, SentAt: time.Now()},
	)
	require.NoError(t, db.UpdatePickupCoordination(ctx, coordination))

	got, err := db.GetPickupCoordination(ctx, coordination.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CoordinationScheduled, got.Status)
	assert.True(t, got.ScheduledTime.Equal(when))
	require.Len(t, got.Messages, 2)
	assert.True(t, got.Messages[1].System)

	// a second update with no new messages leaves the log alone
	coordination.Directions = "blue gate"
	require.NoError(t, db.UpdatePickupCoordination(ctx, coordination))
	got, err = db.GetPickupCoordination(ctx, coordination.ID)
	require.NoError(t, err)
	assert.Len(t, got.Messages, 2)
	assert.Equal(t, "blue gate", got.Directions)
}

func TestListPickupCoordinations(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	resource := seedTestResource(t, db)

	for i := 0; i < 2; i++ {
		require.NoError(t, db.AddPickupCoordination(ctx, &models.PickupCoordination{
			ResourceID: resource.ID,
			ProviderID: "owner-1",
			ReceiverID: "borrower-1",
			Status:     models.CoordinationPending,
			Method:     models.MethodPickup,
		}))
	}

	coordinations, err := db.ListPickupCoordinations(ctx)
	require.NoError(t, err)
	assert.Len(t, coordinations, 2)
}

func TestAuditEvents(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.RecordAuditEvent(ctx, &models.AuditEvent{
		Action:     "lent",
		ProviderID: "owner-1",
		ReceiverID: "borrower-1",
		ResourceID: "r-1",
	}))
	require.NoError(t, db.RecordAuditEvent(ctx, &models.AuditEvent{
		Action:     "returned",
		ProviderID: "owner-1",
		ReceiverID: "borrower-1",
		ResourceID: "r-1",
	}))

	events, err := db.ListAuditEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.NotEmpty(t, events[0].ID)
}

func TestStoreInterfaceCompliance(t *testing.T) {
	var _ domain.Store = (*DB)(nil)
}
