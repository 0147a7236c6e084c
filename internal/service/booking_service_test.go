package service

import (
	"context"
	"io"
	"testing"
	"time"

	"toolshed/internal/domain"
	"toolshed/internal/models"
	"toolshed/internal/repository"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var day = 24 * time.Hour

func futureDay(n int) time.Time {
	return time.Now().Add(time.Duration(n) * day).Truncate(time.Minute)
}

func newBookingFixture(t *testing.T) (*BookingService, *repository.MemoryStore, *models.Resource) {
	t.Helper()
	store := repository.NewMemoryStore()
	logger := zerolog.New(io.Discard)

	resource := &models.Resource{
		OwnerID:   "owner-1",
		Name:      "Table saw",
		Kind:      models.KindTool,
		ShareMode: models.ShareLend,
		Available: true,
	}
	store.SeedResource(resource)

	svc := NewBookingService(store, nil, nil, nil, 0, &logger)
	return svc, store, resource
}

func createReq(resource *models.Resource, start, end time.Time) domain.CreateBookingRequest {
	return domain.CreateBookingRequest{
		ResourceID:  resource.ID,
		RequesterID: "borrower-1",
		StartTime:   start,
		EndTime:     end,
	}
}

func TestCreateBooking_Success(t *testing.T) {
	svc, store, resource := newBookingFixture(t)
	ctx := context.Background()

	booking, err := svc.CreateBooking(ctx, createReq(resource, futureDay(1), futureDay(3)))
	require.NoError(t, err)
	require.NotNil(t, booking)

	assert.NotEmpty(t, booking.ID)
	assert.Equal(t, models.BookingConfirmed, booking.Status)

	events := store.AuditEvents()
	require.Len(t, events, 1)
	assert.Equal(t, "lend_requested", events[0].Action)
	assert.Equal(t, "owner-1", events[0].ProviderID)
	assert.Equal(t, "borrower-1", events[0].ReceiverID)
}

func TestCreateBooking_RejectsMalformedInterval(t *testing.T) {
	svc, _, resource := newBookingFixture(t)
	ctx := context.Background()

	// zero-length
	_, err := svc.CreateBooking(ctx, createReq(resource, futureDay(1), futureDay(1)))
	assert.Equal(t, KindValidation, KindOf(err))

	// inverted
	_, err = svc.CreateBooking(ctx, createReq(resource, futureDay(3), futureDay(1)))
	assert.Equal(t, KindValidation, KindOf(err))

	// past start
	_, err = svc.CreateBooking(ctx, createReq(resource, time.Now().Add(-day), futureDay(1)))
	assert.Equal(t, KindValidation, KindOf(err))
}

func TestCreateBooking_UnknownResource(t *testing.T) {
	svc, _, _ := newBookingFixture(t)

	req := domain.CreateBookingRequest{
		ResourceID:  "missing",
		RequesterID: "borrower-1",
		StartTime:   futureDay(1),
		EndTime:     futureDay(2),
	}
	_, err := svc.CreateBooking(context.Background(), req)
	assert.Equal(t, KindNotFound, KindOf(err))
}

func TestCreateBooking_NonBookableKind(t *testing.T) {
	svc, store, _ := newBookingFixture(t)

	paint := &models.Resource{OwnerID: "owner-2", Name: "Leftover paint", Kind: models.KindMaterial, Available: true}
	store.SeedResource(paint)

	_, err := svc.CreateBooking(context.Background(), createReq(paint, futureDay(1), futureDay(2)))
	assert.Equal(t, KindValidation, KindOf(err))
}

func TestCreateBooking_SelfBookingIsPolicyError(t *testing.T) {
	svc, _, resource := newBookingFixture(t)

	req := createReq(resource, futureDay(1), futureDay(2))
	req.RequesterID = resource.OwnerID
	_, err := svc.CreateBooking(context.Background(), req)
	assert.Equal(t, KindPolicy, KindOf(err))
}

func TestCreateBooking_MaxBorrowCap(t *testing.T) {
	svc, store, _ := newBookingFixture(t)

	capped := &models.Resource{OwnerID: "owner-2", Name: "Pressure washer", Kind: models.KindTool, Available: true, MaxBorrowDays: 3}
	store.SeedResource(capped)

	// five days against a three-day cap, no conflicts anywhere
	_, err := svc.CreateBooking(context.Background(), createReq(capped, futureDay(1), futureDay(6)))
	assert.Equal(t, KindPolicy, KindOf(err))
	assert.Contains(t, err.Error(), "3 days")

	// exactly at the cap is fine
	_, err = svc.CreateBooking(context.Background(), createReq(capped, futureDay(1), futureDay(4)))
	assert.NoError(t, err)
}

func TestCreateBooking_ConflictCarriesOverlap(t *testing.T) {
	svc, _, resource := newBookingFixture(t)
	ctx := context.Background()

	_, err := svc.CreateBooking(ctx, createReq(resource, futureDay(1), futureDay(3)))
	require.NoError(t, err)

	req := createReq(resource, futureDay(2), futureDay(4))
	req.RequesterID = "borrower-2"
	_, err = svc.CreateBooking(ctx, req)
	require.Equal(t, KindConflict, KindOf(err))

	conflicts := ConflictsOf(err)
	require.Len(t, conflicts, 1)
	assert.True(t, conflicts[0].OverlapStart.Equal(futureDay(2)))
	assert.True(t, conflicts[0].OverlapEnd.Equal(futureDay(3)))
}

func TestCreateBooking_BackToBackAllowed(t *testing.T) {
	svc, _, resource := newBookingFixture(t)
	ctx := context.Background()

	_, err := svc.CreateBooking(ctx, createReq(resource, futureDay(1), futureDay(3)))
	require.NoError(t, err)

	req := createReq(resource, futureDay(3), futureDay(5))
	req.RequesterID = "borrower-2"
	_, err = svc.CreateBooking(ctx, req)
	assert.NoError(t, err)
}

func TestCreateBooking_IgnoresCancelledBookings(t *testing.T) {
	svc, _, resource := newBookingFixture(t)
	ctx := context.Background()

	booking, err := svc.CreateBooking(ctx, createReq(resource, futureDay(1), futureDay(3)))
	require.NoError(t, err)
	_, err = svc.CancelBooking(ctx, booking.ID, "borrower-1", "changed plans")
	require.NoError(t, err)

	req := createReq(resource, futureDay(1), futureDay(3))
	req.RequesterID = "borrower-2"
	_, err = svc.CreateBooking(ctx, req)
	assert.NoError(t, err)
}

func TestUpdateBooking_IntervalRevalidatesExcludingSelf(t *testing.T) {
	svc, _, resource := newBookingFixture(t)
	ctx := context.Background()

	booking, err := svc.CreateBooking(ctx, createReq(resource, futureDay(1), futureDay(3)))
	require.NoError(t, err)

	// widening over its own old interval is fine
	newEnd := futureDay(4)
	updated, err := svc.UpdateBooking(ctx, booking.ID, "borrower-1", models.BookingUpdate{EndTime: &newEnd})
	require.NoError(t, err)
	assert.True(t, updated.EndTime.Equal(newEnd))

	// a second booking then blocks further widening
	req := createReq(resource, futureDay(5), futureDay(7))
	req.RequesterID = "borrower-2"
	_, err = svc.CreateBooking(ctx, req)
	require.NoError(t, err)

	blockedEnd := futureDay(6)
	_, err = svc.UpdateBooking(ctx, booking.ID, "borrower-1", models.BookingUpdate{EndTime: &blockedEnd})
	assert.Equal(t, KindConflict, KindOf(err))
}

func TestUpdateBooking_RolePermissions(t *testing.T) {
	svc, _, resource := newBookingFixture(t)
	ctx := context.Background()

	booking, err := svc.CreateBooking(ctx, createReq(resource, futureDay(1), futureDay(3)))
	require.NoError(t, err)

	// owner may annotate
	notes := "please bring gloves"
	_, err = svc.UpdateBooking(ctx, booking.ID, "owner-1", models.BookingUpdate{Notes: &notes})
	assert.NoError(t, err)

	// owner may not move the interval
	newStart := futureDay(2)
	_, err = svc.UpdateBooking(ctx, booking.ID, "owner-1", models.BookingUpdate{StartTime: &newStart})
	assert.Equal(t, KindAuthorization, KindOf(err))

	// owner may not rewrite the purpose
	purpose := "fence repair"
	_, err = svc.UpdateBooking(ctx, booking.ID, "owner-1", models.BookingUpdate{Purpose: &purpose})
	assert.Equal(t, KindAuthorization, KindOf(err))

	// strangers get nothing
	_, err = svc.UpdateBooking(ctx, booking.ID, "stranger", models.BookingUpdate{Notes: &notes})
	assert.Equal(t, KindAuthorization, KindOf(err))
}

func TestUpdateBooking_TerminalStatusRejected(t *testing.T) {
	svc, _, resource := newBookingFixture(t)
	ctx := context.Background()

	booking, err := svc.CreateBooking(ctx, createReq(resource, futureDay(1), futureDay(3)))
	require.NoError(t, err)
	_, err = svc.CancelBooking(ctx, booking.ID, "borrower-1", "")
	require.NoError(t, err)

	notes := "too late"
	_, err = svc.UpdateBooking(ctx, booking.ID, "borrower-1", models.BookingUpdate{Notes: &notes})
	assert.Equal(t, KindState, KindOf(err))
}

func TestCancelBooking(t *testing.T) {
	svc, store, resource := newBookingFixture(t)
	ctx := context.Background()

	booking, err := svc.CreateBooking(ctx, createReq(resource, futureDay(1), futureDay(3)))
	require.NoError(t, err)

	cancelled, err := svc.CancelBooking(ctx, booking.ID, "owner-1", "tool needs repair")
	require.NoError(t, err)
	assert.Equal(t, models.BookingCancelled, cancelled.Status)
	assert.Contains(t, cancelled.Notes, "tool needs repair")

	// double cancel is a state error
	_, err = svc.CancelBooking(ctx, booking.ID, "owner-1", "")
	assert.Equal(t, KindState, KindOf(err))

	events := store.AuditEvents()
	require.Len(t, events, 2)
	assert.Equal(t, "loan_cancelled", events[1].Action)
}

func TestMarkActiveAndComplete_FlipAvailability(t *testing.T) {
	svc, store, resource := newBookingFixture(t)
	ctx := context.Background()

	booking, err := svc.CreateBooking(ctx, createReq(resource, futureDay(1), futureDay(3)))
	require.NoError(t, err)

	// only the owner confirms pickup
	_, err = svc.MarkActive(ctx, booking.ID, "borrower-1")
	assert.Equal(t, KindAuthorization, KindOf(err))

	active, err := svc.MarkActive(ctx, booking.ID, "owner-1")
	require.NoError(t, err)
	assert.Equal(t, models.BookingActive, active.Status)

	res, _ := store.GetResource(ctx, resource.ID)
	assert.False(t, res.Available)

	// completing from active restores the flag
	completed, err := svc.CompleteBooking(ctx, booking.ID, "owner-1", "light wear on the blade")
	require.NoError(t, err)
	assert.Equal(t, models.BookingCompleted, completed.Status)
	assert.Equal(t, "light wear on the blade", completed.ReturnCondition)

	res, _ = store.GetResource(ctx, resource.ID)
	assert.True(t, res.Available)

	events := store.AuditEvents()
	require.Len(t, events, 3)
	assert.Equal(t, "lent", events[1].Action)
	assert.Equal(t, "returned", events[2].Action)
}

func TestMarkActive_InvalidFromTerminal(t *testing.T) {
	svc, _, resource := newBookingFixture(t)
	ctx := context.Background()

	booking, err := svc.CreateBooking(ctx, createReq(resource, futureDay(1), futureDay(3)))
	require.NoError(t, err)
	_, err = svc.CancelBooking(ctx, booking.ID, "borrower-1", "")
	require.NoError(t, err)

	_, err = svc.MarkActive(ctx, booking.ID, "owner-1")
	assert.Equal(t, KindState, KindOf(err))
}

func TestCompleteBooking_OnlyFromActive(t *testing.T) {
	svc, _, resource := newBookingFixture(t)
	ctx := context.Background()

	booking, err := svc.CreateBooking(ctx, createReq(resource, futureDay(1), futureDay(3)))
	require.NoError(t, err)

	_, err = svc.CompleteBooking(ctx, booking.ID, "owner-1", "")
	assert.Equal(t, KindState, KindOf(err))
}

func TestCancelActiveBooking_ReleasesResource(t *testing.T) {
	svc, store, resource := newBookingFixture(t)
	ctx := context.Background()

	booking, err := svc.CreateBooking(ctx, createReq(resource, futureDay(1), futureDay(3)))
	require.NoError(t, err)
	_, err = svc.MarkActive(ctx, booking.ID, "owner-1")
	require.NoError(t, err)

	_, err = svc.CancelBooking(ctx, booking.ID, "borrower-1", "returning early")
	require.NoError(t, err)

	res, _ := store.GetResource(ctx, resource.ID)
	assert.True(t, res.Available)
}

func TestGetResourceAvailability(t *testing.T) {
	svc, _, resource := newBookingFixture(t)
	ctx := context.Background()

	_, err := svc.CreateBooking(ctx, createReq(resource, futureDay(2), futureDay(4)))
	require.NoError(t, err)

	rangeStart := futureDay(1)
	rangeEnd := futureDay(6)
	slots, err := svc.GetResourceAvailability(ctx, resource.ID, rangeStart, rangeEnd, day)
	require.NoError(t, err)
	require.Len(t, slots, 5)

	assert.True(t, slots[0].Available)
	assert.False(t, slots[1].Available)
	assert.False(t, slots[2].Available)
	assert.True(t, slots[3].Available)
	assert.True(t, slots[4].Available)

	_, err = svc.GetResourceAvailability(ctx, "missing", rangeStart, rangeEnd, day)
	assert.Equal(t, KindNotFound, KindOf(err))

	_, err = svc.GetResourceAvailability(ctx, resource.ID, rangeEnd, rangeStart, day)
	assert.Equal(t, KindValidation, KindOf(err))
}

func TestFindOptimalBookingTimes(t *testing.T) {
	svc, store, resourceA := newBookingFixture(t)
	ctx := context.Background()

	resourceB := &models.Resource{OwnerID: "owner-2", Name: "Spare table saw", Kind: models.KindTool, Available: true}
	store.SeedResource(resourceB)

	// A is booked for day 1 only
	_, err := svc.CreateBooking(ctx, createReq(resourceA, futureDay(1), futureDay(2)))
	require.NoError(t, err)

	windows, err := svc.FindOptimalBookingTimes(ctx, []string{resourceA.ID, resourceB.ID}, day, futureDay(1), futureDay(7))
	require.NoError(t, err)
	require.NotEmpty(t, windows)

	assert.Equal(t, []string{resourceB.ID}, windows[0].AvailableResources)
	for _, w := range windows {
		assert.NotEmpty(t, w.AvailableResources)
	}

	_, err = svc.FindOptimalBookingTimes(ctx, nil, day, futureDay(1), futureDay(7))
	assert.Equal(t, KindValidation, KindOf(err))
}

func TestNoOverlappingNonCancelledInvariant(t *testing.T) {
	svc, store, resource := newBookingFixture(t)
	ctx := context.Background()

	reqs := [][2]int{{1, 3}, {2, 4}, {3, 5}, {4, 6}, {1, 2}}
	for i, r := range reqs {
		req := createReq(resource, futureDay(r[0]), futureDay(r[1]))
		req.RequesterID = "borrower-" + string(rune('a'+i))
		_, _ = svc.CreateBooking(ctx, req)
	}

	bookings, err := store.ListBookingsForResource(ctx, resource.ID)
	require.NoError(t, err)

	for i := range bookings {
		for j := i + 1; j < len(bookings); j++ {
			b1, b2 := bookings[i], bookings[j]
			if b1.Status == models.BookingCancelled || b2.Status == models.BookingCancelled {
				continue
			}
			assert.False(t, b1.Overlaps(b2.StartTime, b2.EndTime),
				"bookings %s and %s overlap", b1.ID, b2.ID)
		}
	}
}
