package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"toolshed/internal/domain"
	"toolshed/internal/events"
	"toolshed/internal/metrics"
	"toolshed/internal/models"
	"toolshed/internal/schedule"

	"github.com/rs/zerolog"
)

// updatable field names, used by the per-role permission table
const (
	fieldInterval       = "interval"
	fieldPurpose        = "purpose"
	fieldPickupLocation = "pickup_location"
	fieldNotes          = "notes"
)

const (
	roleRequester = "requester"
	roleOwner     = "owner"
)

// updatableFields declares which booking fields each role may change.
// The requester reshapes their own request; the owner may only annotate.
var updatableFields = map[string]map[string]bool{
	roleRequester: {
		fieldInterval:       true,
		fieldPurpose:        true,
		fieldPickupLocation: true,
		fieldNotes:          true,
	},
	roleOwner: {
		fieldPickupLocation: true,
		fieldNotes:          true,
	},
}

type BookingService struct {
	store          domain.Store
	eventBus       domain.EventPublisher
	reconciler     domain.ReconcileScheduler
	calendarCache  domain.CalendarCache
	maxAdvanceDays int
	logger         *zerolog.Logger
}

func NewBookingService(store domain.Store, eventBus domain.EventPublisher, reconciler domain.ReconcileScheduler, calendarCache domain.CalendarCache, maxAdvanceDays int, logger *zerolog.Logger) *BookingService {
	if maxAdvanceDays <= 0 {
		maxAdvanceDays = models.DefaultMaxAdvanceDays
	}
	return &BookingService{
		store:          store,
		eventBus:       eventBus,
		reconciler:     reconciler,
		calendarCache:  calendarCache,
		maxAdvanceDays: maxAdvanceDays,
		logger:         logger,
	}
}

// CreateBooking validates and persists a booking. Bookings are trust-based
// in this gift-economy design: there is no owner approval gate, so a valid
// request lands directly in confirmed.
func (s *BookingService) CreateBooking(ctx context.Context, req domain.CreateBookingRequest) (*models.Booking, error) {
	if req.ResourceID == "" || req.RequesterID == "" {
		return nil, validationErr("resource id and requester id are required")
	}
	if err := s.validateInterval(req.StartTime, req.EndTime); err != nil {
		return nil, err
	}

	resource, err := s.store.GetResource(ctx, req.ResourceID)
	if err != nil {
		return nil, fmt.Errorf("get resource: %w", err)
	}
	if resource == nil {
		return nil, notFoundErr("resource %s not found", req.ResourceID)
	}
	if !resource.Kind.Bookable() {
		return nil, validationErr("resource %s is a %s and does not support booking", resource.ID, resource.Kind)
	}
	if !resource.Available {
		return nil, stateErr("resource %s is not currently available", resource.ID)
	}
	if resource.OwnerID == req.RequesterID {
		return nil, policyErr("owners manage their own schedule directly; self-booking is not allowed")
	}
	if borrowCap := resource.MaxBorrow(); borrowCap > 0 && req.EndTime.Sub(req.StartTime) > borrowCap {
		return nil, policyErr("maximum borrow period for this tool is %d days", resource.MaxBorrowDays)
	}

	existing, err := s.store.ListBookingsForResource(ctx, req.ResourceID)
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	if conflicts := schedule.FindConflicts(existing, req.StartTime, req.EndTime, ""); len(conflicts) > 0 {
		metrics.IncBookingConflict()
		return nil, conflictErr(conflicts)
	}

	booking := &models.Booking{
		ResourceID:     req.ResourceID,
		RequesterID:    req.RequesterID,
		StartTime:      req.StartTime,
		EndTime:        req.EndTime,
		Status:         models.BookingConfirmed,
		Purpose:        req.Purpose,
		PickupLocation: req.PickupLocation,
		Notes:          req.Notes,
	}

	// The store re-checks conflicts atomically with the insert. Two racing
	// requests for overlapping intervals cannot both pass this gate.
	if err := s.store.AddBooking(ctx, booking); err != nil {
		if errors.Is(err, domain.ErrBookingConflict) {
			metrics.IncBookingConflict()
			latest, listErr := s.store.ListBookingsForResource(ctx, req.ResourceID)
			if listErr != nil {
				return nil, conflictErr(nil)
			}
			return nil, conflictErr(schedule.FindConflicts(latest, req.StartTime, req.EndTime, ""))
		}
		return nil, fmt.Errorf("add booking: %w", err)
	}

	metrics.IncBookingCreated()
	s.recordAudit(ctx, events.ActionLendRequested, resource.OwnerID, req.RequesterID, resource.ID,
		fmt.Sprintf("booking %s for %s", booking.ID, resource.Name))
	s.publishBookingEvent(events.EventBookingCreated, booking)
	s.afterWrite(ctx, req.ResourceID)

	return booking, nil
}

// UpdateBooking applies a partial update on behalf of callerID. Which fields
// the caller may touch depends on their role; an interval change re-runs
// conflict detection excluding the booking's own prior interval.
func (s *BookingService) UpdateBooking(ctx context.Context, bookingID, callerID string, update models.BookingUpdate) (*models.Booking, error) {
	booking, resource, role, err := s.loadForMutation(ctx, bookingID, callerID)
	if err != nil {
		return nil, err
	}
	if booking.Status.Terminal() {
		return nil, stateErr("booking %s is %s and can no longer change", booking.ID, booking.Status)
	}

	allowed := updatableFields[role]

	intervalChanged := update.StartTime != nil || update.EndTime != nil
	if intervalChanged {
		if !allowed[fieldInterval] {
			return nil, authorizationErr("the %s may not change the booking interval", role)
		}
		newStart, newEnd := booking.StartTime, booking.EndTime
		if update.StartTime != nil {
			newStart = *update.StartTime
		}
		if update.EndTime != nil {
			newEnd = *update.EndTime
		}
		if err := s.validateInterval(newStart, newEnd); err != nil {
			return nil, err
		}
		if borrowCap := resource.MaxBorrow(); borrowCap > 0 && newEnd.Sub(newStart) > borrowCap {
			return nil, policyErr("maximum borrow period for this tool is %d days", resource.MaxBorrowDays)
		}

		existing, err := s.store.ListBookingsForResource(ctx, booking.ResourceID)
		if err != nil {
			return nil, fmt.Errorf("list bookings: %w", err)
		}
		if conflicts := schedule.FindConflicts(existing, newStart, newEnd, booking.ID); len(conflicts) > 0 {
			metrics.IncBookingConflict()
			return nil, conflictErr(conflicts)
		}

		booking.StartTime = newStart
		booking.EndTime = newEnd
	}

	if update.Purpose != nil {
		if !allowed[fieldPurpose] {
			return nil, authorizationErr("the %s may not change the booking purpose", role)
		}
		booking.Purpose = *update.Purpose
	}
	if update.PickupLocation != nil {
		if !allowed[fieldPickupLocation] {
			return nil, authorizationErr("the %s may not change the pickup location", role)
		}
		booking.PickupLocation = *update.PickupLocation
	}
	if update.Notes != nil {
		if !allowed[fieldNotes] {
			return nil, authorizationErr("the %s may not change the notes", role)
		}
		booking.Notes = *update.Notes
	}

	if err := s.store.UpdateBooking(ctx, booking); err != nil {
		return nil, fmt.Errorf("update booking: %w", err)
	}

	if intervalChanged {
		s.afterWrite(ctx, booking.ResourceID)
	}
	return booking, nil
}

// CancelBooking transitions the booking to cancelled. Either party may do it.
func (s *BookingService) CancelBooking(ctx context.Context, bookingID, callerID, reason string) (*models.Booking, error) {
	booking, resource, _, err := s.loadForMutation(ctx, bookingID, callerID)
	if err != nil {
		return nil, err
	}
	if !booking.Status.CanTransition(models.BookingCancelled) {
		return nil, stateErr("booking %s is %s and cannot be cancelled", booking.ID, booking.Status)
	}

	wasActive := booking.Status == models.BookingActive
	booking.Status = models.BookingCancelled
	if reason != "" {
		booking.Notes = appendNote(booking.Notes, "Cancelled: "+reason)
	}

	if wasActive {
		// An active loan holds the resource; cancelling it releases the flag
		// in the same write.
		if err := s.store.TransitionBookingWithAvailability(ctx, booking, true); err != nil {
			return nil, fmt.Errorf("cancel active booking: %w", err)
		}
	} else if err := s.store.UpdateBooking(ctx, booking); err != nil {
		return nil, fmt.Errorf("cancel booking: %w", err)
	}

	metrics.IncBookingTransition(string(models.BookingCancelled))
	s.recordAudit(ctx, events.ActionLoanCancelled, resource.OwnerID, booking.RequesterID, resource.ID, reason)
	s.publishBookingEvent(events.EventBookingCancelled, booking)
	s.afterWrite(ctx, booking.ResourceID)

	return booking, nil
}

// MarkActive confirms physical pickup. Owner only. Flips the resource's
// availability flag off in the same write as the status change.
func (s *BookingService) MarkActive(ctx context.Context, bookingID, callerID string) (*models.Booking, error) {
	booking, resource, role, err := s.loadForMutation(ctx, bookingID, callerID)
	if err != nil {
		return nil, err
	}
	if role != roleOwner {
		return nil, authorizationErr("only the resource owner confirms pickup")
	}
	if !booking.Status.CanTransition(models.BookingActive) {
		return nil, stateErr("booking %s is %s and cannot become active", booking.ID, booking.Status)
	}

	booking.Status = models.BookingActive
	if err := s.store.TransitionBookingWithAvailability(ctx, booking, false); err != nil {
		return nil, fmt.Errorf("activate booking: %w", err)
	}

	metrics.IncBookingTransition(string(models.BookingActive))
	s.recordAudit(ctx, events.ActionLent, resource.OwnerID, booking.RequesterID, resource.ID,
		fmt.Sprintf("%s handed over until %s", resource.Name, booking.EndTime.Format("2006-01-02")))
	s.publishBookingEvent(events.EventBookingActivated, booking)
	s.afterWrite(ctx, booking.ResourceID)

	return booking, nil
}

// CompleteBooking records the return of the tool. Owner only. Restores the
// resource's availability flag in the same write.
func (s *BookingService) CompleteBooking(ctx context.Context, bookingID, callerID, returnCondition string) (*models.Booking, error) {
	booking, resource, role, err := s.loadForMutation(ctx, bookingID, callerID)
	if err != nil {
		return nil, err
	}
	if role != roleOwner {
		return nil, authorizationErr("only the resource owner confirms the return")
	}
	if !booking.Status.CanTransition(models.BookingCompleted) {
		return nil, stateErr("booking %s is %s and cannot be completed", booking.ID, booking.Status)
	}

	booking.Status = models.BookingCompleted
	booking.ReturnCondition = returnCondition
	if err := s.store.TransitionBookingWithAvailability(ctx, booking, true); err != nil {
		return nil, fmt.Errorf("complete booking: %w", err)
	}

	metrics.IncBookingTransition(string(models.BookingCompleted))
	s.recordAudit(ctx, events.ActionReturned, resource.OwnerID, booking.RequesterID, resource.ID, returnCondition)
	s.publishBookingEvent(events.EventBookingCompleted, booking)
	s.afterWrite(ctx, booking.ResourceID)

	return booking, nil
}

func (s *BookingService) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	booking, err := s.store.GetBooking(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get booking: %w", err)
	}
	if booking == nil {
		return nil, notFoundErr("booking %s not found", id)
	}
	return booking, nil
}

func (s *BookingService) ListUserBookings(ctx context.Context, userID string) ([]models.Booking, error) {
	if userID == "" {
		return nil, validationErr("user id is required")
	}
	bookings, err := s.store.ListBookingsForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list user bookings: %w", err)
	}
	return bookings, nil
}

// GetResourceAvailability renders the slot calendar for a resource,
// consulting the cache when one is wired.
func (s *BookingService) GetResourceAvailability(ctx context.Context, resourceID string, rangeStart, rangeEnd time.Time, slot time.Duration) ([]schedule.Slot, error) {
	if resourceID == "" {
		return nil, validationErr("resource id is required")
	}
	if !rangeEnd.After(rangeStart) {
		return nil, validationErr("range end must be after range start")
	}
	if slot <= 0 {
		slot = models.DefaultSlotDuration
	}

	if s.calendarCache != nil {
		cached, ok, err := s.calendarCache.Get(ctx, resourceID, rangeStart, rangeEnd, slot)
		if err != nil {
			s.logger.Warn().Err(err).Str("resource_id", resourceID).Msg("calendar cache read failed")
		} else if ok {
			return cached, nil
		}
	}

	resource, err := s.store.GetResource(ctx, resourceID)
	if err != nil {
		return nil, fmt.Errorf("get resource: %w", err)
	}
	if resource == nil {
		return nil, notFoundErr("resource %s not found", resourceID)
	}

	bookings, err := s.store.ListBookingsForResource(ctx, resourceID)
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}

	slots := schedule.BuildCalendar(bookings, rangeStart, rangeEnd, slot)

	if s.calendarCache != nil {
		if err := s.calendarCache.Set(ctx, resourceID, rangeStart, rangeEnd, slot, slots); err != nil {
			s.logger.Warn().Err(err).Str("resource_id", resourceID).Msg("calendar cache write failed")
		}
	}
	return slots, nil
}

// FindOptimalBookingTimes sweeps the search window at day granularity and
// returns every start where at least one of the resources is free.
func (s *BookingService) FindOptimalBookingTimes(ctx context.Context, resourceIDs []string, duration time.Duration, searchStart, searchEnd time.Time) ([]schedule.Window, error) {
	if len(resourceIDs) == 0 {
		return nil, validationErr("at least one resource id is required")
	}
	if duration <= 0 {
		return nil, validationErr("duration must be positive")
	}
	if !searchEnd.After(searchStart) {
		return nil, validationErr("search end must be after search start")
	}

	byResource := make(map[string][]models.Booking, len(resourceIDs))
	for _, id := range resourceIDs {
		bookings, err := s.store.ListBookingsForResource(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("list bookings for %s: %w", id, err)
		}
		byResource[id] = bookings
	}

	return schedule.FindOpenWindows(resourceIDs, byResource, duration, searchStart, searchEnd, models.DefaultSearchStep), nil
}

func (s *BookingService) validateInterval(start, end time.Time) error {
	if start.IsZero() || end.IsZero() {
		return validationErr("start and end times are required")
	}
	if !start.Before(end) {
		return validationErr("start time must be strictly before end time")
	}
	if start.Before(time.Now()) {
		return validationErr("start time must not be in the past")
	}
	if start.After(time.Now().AddDate(0, 0, s.maxAdvanceDays)) {
		return validationErr("start time is more than %d days ahead", s.maxAdvanceDays)
	}
	return nil
}

// loadForMutation resolves the booking, its resource and the caller's role,
// rejecting callers who are neither the requester nor the owner.
func (s *BookingService) loadForMutation(ctx context.Context, bookingID, callerID string) (*models.Booking, *models.Resource, string, error) {
	if bookingID == "" || callerID == "" {
		return nil, nil, "", validationErr("booking id and caller id are required")
	}

	booking, err := s.store.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, nil, "", fmt.Errorf("get booking: %w", err)
	}
	if booking == nil {
		return nil, nil, "", notFoundErr("booking %s not found", bookingID)
	}

	resource, err := s.store.GetResource(ctx, booking.ResourceID)
	if err != nil {
		return nil, nil, "", fmt.Errorf("get resource: %w", err)
	}
	if resource == nil {
		return nil, nil, "", notFoundErr("resource %s not found", booking.ResourceID)
	}

	switch callerID {
	case booking.RequesterID:
		return booking, resource, roleRequester, nil
	case resource.OwnerID:
		return booking, resource, roleOwner, nil
	default:
		return nil, nil, "", authorizationErr("caller %s is neither the requester nor the resource owner", callerID)
	}
}

func (s *BookingService) recordAudit(ctx context.Context, action, providerID, receiverID, resourceID, note string) {
	event := &models.AuditEvent{
		Action:     action,
		ProviderID: providerID,
		ReceiverID: receiverID,
		ResourceID: resourceID,
		Note:       note,
	}
	if err := s.store.RecordAuditEvent(ctx, event); err != nil {
		s.logger.Error().Err(err).Str("action", action).Str("resource_id", resourceID).Msg("record audit event failed")
	}
}

func (s *BookingService) publishBookingEvent(eventType string, booking *models.Booking) {
	if s.eventBus == nil {
		return
	}
	payload := events.BookingEventPayload{
		BookingID:   booking.ID,
		ResourceID:  booking.ResourceID,
		RequesterID: booking.RequesterID,
		Status:      string(booking.Status),
		StartTime:   booking.StartTime,
		EndTime:     booking.EndTime,
	}
	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Str("booking_id", booking.ID).Msg("publish event error")
	}
}

// afterWrite invalidates the calendar cache and queues a reconciliation
// pass. Both are best-effort; failures are logged, never surfaced.
func (s *BookingService) afterWrite(ctx context.Context, resourceID string) {
	if s.calendarCache != nil {
		if err := s.calendarCache.Invalidate(ctx, resourceID); err != nil {
			s.logger.Warn().Err(err).Str("resource_id", resourceID).Msg("calendar cache invalidate failed")
		}
	}
	if s.reconciler != nil {
		if err := s.reconciler.EnqueueReconcile(ctx, resourceID); err != nil {
			s.logger.Error().Err(err).Str("resource_id", resourceID).Msg("enqueue reconcile failed")
		}
	}
}

func appendNote(notes, extra string) string {
	if notes == "" {
		return extra
	}
	return notes + "\n" + extra
}
