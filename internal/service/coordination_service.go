package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"toolshed/internal/domain"
	"toolshed/internal/events"
	"toolshed/internal/metrics"
	"toolshed/internal/models"

	"github.com/rs/zerolog"
)

// CoordinationService runs the pickup handoff state machine alongside the
// booking lifecycle. The two parties arrange a time and place, talk through
// an append-only message log, and confirm the exchange happened.
type CoordinationService struct {
	store    domain.Store
	eventBus domain.EventPublisher
	logger   *zerolog.Logger
}

func NewCoordinationService(store domain.Store, eventBus domain.EventPublisher, logger *zerolog.Logger) *CoordinationService {
	return &CoordinationService{store: store, eventBus: eventBus, logger: logger}
}

// Create opens a coordination. The provider must be the resource owner and
// may not coordinate with themselves.
func (s *CoordinationService) Create(ctx context.Context, req domain.CreateCoordinationRequest) (*models.PickupCoordination, error) {
	if req.ResourceID == "" || req.ProviderID == "" || req.ReceiverID == "" {
		return nil, validationErr("resource, provider and receiver ids are required")
	}
	if req.ProviderID == req.ReceiverID {
		return nil, validationErr("provider and receiver must differ")
	}
	if !req.Method.Valid() {
		return nil, validationErr("unknown exchange method %q", req.Method)
	}

	resource, err := s.store.GetResource(ctx, req.ResourceID)
	if err != nil {
		return nil, fmt.Errorf("get resource: %w", err)
	}
	if resource == nil {
		return nil, notFoundErr("resource %s not found", req.ResourceID)
	}
	if resource.OwnerID != req.ProviderID {
		return nil, authorizationErr("provider must be the resource owner")
	}

	if req.BookingID != "" {
		booking, err := s.store.GetBooking(ctx, req.BookingID)
		if err != nil {
			return nil, fmt.Errorf("get booking: %w", err)
		}
		if booking == nil {
			return nil, notFoundErr("booking %s not found", req.BookingID)
		}
	}

	coordination := &models.PickupCoordination{
		ResourceID: req.ResourceID,
		ProviderID: req.ProviderID,
		ReceiverID: req.ReceiverID,
		BookingID:  req.BookingID,
		Status:     models.CoordinationPending,
		Method:     req.Method,
	}
	if text := strings.TrimSpace(req.SeedMessage); text != "" {
		coordination.Messages = append(coordination.Messages, models.Message{
			SenderID: req.ProviderID,
			Text:     text,
			SentAt:   time.Now(),
		})
	}

	if err := s.store.AddPickupCoordination(ctx, coordination); err != nil {
		return nil, fmt.Errorf("add coordination: %w", err)
	}

	s.publishCoordinationEvent(events.EventCoordinationOpened, coordination)
	return coordination, nil
}

// AddMessage appends to the coordination's message log. Messages are never
// edited or removed.
func (s *CoordinationService) AddMessage(ctx context.Context, coordinationID, senderID, text string) (*models.PickupCoordination, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, validationErr("message text is required")
	}

	coordination, err := s.loadOpen(ctx, coordinationID, senderID)
	if err != nil {
		return nil, err
	}

	coordination.Messages = append(coordination.Messages, models.Message{
		SenderID: senderID,
		Text:     text,
		SentAt:   time.Now(),
	})

	if err := s.store.UpdatePickupCoordination(ctx, coordination); err != nil {
		return nil, fmt.Errorf("update coordination: %w", err)
	}

	metrics.IncCoordinationMessage()
	return coordination, nil
}

// Schedule proposes or confirms a handoff time and place. Either participant
// may call it; the agreed schedule is echoed into the message log so the log
// stays the single narrative of the exchange.
func (s *CoordinationService) Schedule(ctx context.Context, coordinationID, callerID string, when time.Time, location string) (*models.PickupCoordination, error) {
	if when.IsZero() {
		return nil, validationErr("scheduled time is required")
	}
	if when.Before(time.Now()) {
		return nil, validationErr("scheduled time must be in the future")
	}

	coordination, err := s.loadOpen(ctx, coordinationID, callerID)
	if err != nil {
		return nil, err
	}
	if !coordination.Status.CanTransition(models.CoordinationScheduled) {
		return nil, stateErr("coordination %s is %s and cannot be scheduled", coordination.ID, coordination.Status)
	}

	coordination.Status = models.CoordinationScheduled
	coordination.ScheduledTime = when
	coordination.Location = location

	summary := fmt.Sprintf("Handoff scheduled for %s", when.Format("Mon, Jan 2 at 15:04"))
	if location != "" {
		summary += " at " + location
	}
	coordination.Messages = append(coordination.Messages, models.Message{
		SenderID: callerID,
		Text:     summary,
		System:   true,
		SentAt:   time.Now(),
	})

	if err := s.store.UpdatePickupCoordination(ctx, coordination); err != nil {
		return nil, fmt.Errorf("update coordination: %w", err)
	}

	s.publishCoordinationEvent(events.EventCoordinationScheduled, coordination)
	return coordination, nil
}

// MarkInProgress flags that the handoff is underway.
func (s *CoordinationService) MarkInProgress(ctx context.Context, coordinationID, callerID string) (*models.PickupCoordination, error) {
	coordination, err := s.loadOpen(ctx, coordinationID, callerID)
	if err != nil {
		return nil, err
	}
	if !coordination.Status.CanTransition(models.CoordinationInProgress) {
		return nil, stateErr("coordination %s is %s and cannot move to in-progress", coordination.ID, coordination.Status)
	}

	coordination.Status = models.CoordinationInProgress
	if err := s.store.UpdatePickupCoordination(ctx, coordination); err != nil {
		return nil, fmt.Errorf("update coordination: %w", err)
	}
	return coordination, nil
}

// Complete closes the coordination and writes the transfer to the audit
// ledger. Whether it is recorded as a gift or a loan handoff follows the
// resource's share mode.
func (s *CoordinationService) Complete(ctx context.Context, coordinationID, callerID, closingMessage string) (*models.PickupCoordination, error) {
	coordination, err := s.loadOpen(ctx, coordinationID, callerID)
	if err != nil {
		return nil, err
	}
	if !coordination.Status.CanTransition(models.CoordinationCompleted) {
		return nil, stateErr("coordination %s is %s and cannot be completed", coordination.ID, coordination.Status)
	}

	now := time.Now()
	coordination.Status = models.CoordinationCompleted
	coordination.CompletedBy = callerID
	coordination.CompletedAt = now
	if text := strings.TrimSpace(closingMessage); text != "" {
		coordination.Messages = append(coordination.Messages, models.Message{
			SenderID: callerID,
			Text:     text,
			SentAt:   now,
		})
	}

	if err := s.store.UpdatePickupCoordination(ctx, coordination); err != nil {
		return nil, fmt.Errorf("update coordination: %w", err)
	}

	action := events.ActionLent
	if resource, resErr := s.store.GetResource(ctx, coordination.ResourceID); resErr == nil && resource != nil && resource.ShareMode == models.ShareGive {
		action = events.ActionGiven
	}
	s.recordAudit(ctx, action, coordination)

	metrics.IncCoordinationCompleted()
	s.publishCoordinationEvent(events.EventCoordinationCompleted, coordination)
	return coordination, nil
}

// Cancel abandons the coordination; an optional reason lands in the log.
func (s *CoordinationService) Cancel(ctx context.Context, coordinationID, callerID, reason string) (*models.PickupCoordination, error) {
	coordination, err := s.loadOpen(ctx, coordinationID, callerID)
	if err != nil {
		return nil, err
	}
	if !coordination.Status.CanTransition(models.CoordinationCancelled) {
		return nil, stateErr("coordination %s is %s and cannot be cancelled", coordination.ID, coordination.Status)
	}

	coordination.Status = models.CoordinationCancelled
	if text := strings.TrimSpace(reason); text != "" {
		coordination.Messages = append(coordination.Messages, models.Message{
			SenderID: callerID,
			Text:     "Cancelled: " + text,
			System:   true,
			SentAt:   time.Now(),
		})
	}

	if err := s.store.UpdatePickupCoordination(ctx, coordination); err != nil {
		return nil, fmt.Errorf("update coordination: %w", err)
	}

	s.recordAudit(ctx, events.ActionHandoffCancelled, coordination)
	s.publishCoordinationEvent(events.EventCoordinationCancelled, coordination)
	return coordination, nil
}

func (s *CoordinationService) Get(ctx context.Context, id string) (*models.PickupCoordination, error) {
	coordination, err := s.store.GetPickupCoordination(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get coordination: %w", err)
	}
	if coordination == nil {
		return nil, notFoundErr("coordination %s not found", id)
	}
	return coordination, nil
}

// loadOpen resolves a coordination and gates on participant identity and
// terminal status, the two checks every mutation shares.
func (s *CoordinationService) loadOpen(ctx context.Context, coordinationID, callerID string) (*models.PickupCoordination, error) {
	if coordinationID == "" || callerID == "" {
		return nil, validationErr("coordination id and caller id are required")
	}

	coordination, err := s.store.GetPickupCoordination(ctx, coordinationID)
	if err != nil {
		return nil, fmt.Errorf("get coordination: %w", err)
	}
	if coordination == nil {
		return nil, notFoundErr("coordination %s not found", coordinationID)
	}
	if !coordination.Participant(callerID) {
		return nil, authorizationErr("caller %s is not a participant of this coordination", callerID)
	}
	if coordination.Status.Terminal() {
		return nil, stateErr("coordination %s is %s and can no longer change", coordination.ID, coordination.Status)
	}
	return coordination, nil
}

func (s *CoordinationService) recordAudit(ctx context.Context, action string, coordination *models.PickupCoordination) {
	event := &models.AuditEvent{
		Action:     action,
		ProviderID: coordination.ProviderID,
		ReceiverID: coordination.ReceiverID,
		ResourceID: coordination.ResourceID,
		Note:       fmt.Sprintf("coordination %s", coordination.ID),
	}
	if err := s.store.RecordAuditEvent(ctx, event); err != nil {
		s.logger.Error().Err(err).Str("action", action).Str("coordination_id", coordination.ID).Msg("record audit event failed")
	}
}

func (s *CoordinationService) publishCoordinationEvent(eventType string, coordination *models.PickupCoordination) {
	if s.eventBus == nil {
		return
	}
	payload := events.CoordinationEventPayload{
		CoordinationID: coordination.ID,
		ResourceID:     coordination.ResourceID,
		ProviderID:     coordination.ProviderID,
		ReceiverID:     coordination.ReceiverID,
		Status:         string(coordination.Status),
	}
	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Str("coordination_id", coordination.ID).Msg("publish event error")
	}
}
