// Package worker runs the background conflict reconciliation pass. Writes go
// through a conflict re-check inside the store, so reconciliation normally
// finds nothing; it exists to repair state merged in from outside the engine
// (restored backups, manual edits) where two confirmed bookings can overlap.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"toolshed/internal/domain"
	"toolshed/internal/events"
	"toolshed/internal/metrics"
	"toolshed/internal/models"
	"toolshed/internal/schedule"
)

const (
	reconcileQueueKey = "reconcile:queue"

	outcomeClean    = "clean"
	outcomeResolved = "resolved"
	outcomeError    = "error"
)

// reconcileTask is the queue payload. RetryCount survives requeues.
type reconcileTask struct {
	ResourceID string    `json:"resource_id"`
	RetryCount int       `json:"retry_count"`
	CreatedAt  time.Time `json:"created_at"`
}

// Reconciler consumes per-resource reconcile tasks and cancels the
// later-created side of any overlap it finds. It implements
// domain.ReconcileScheduler.
type Reconciler struct {
	store        domain.Store
	eventBus     domain.EventPublisher
	redis        *redis.Client
	retryPolicy  RetryPolicy
	queue        chan reconcileTask
	pollInterval time.Duration
	logger       *zerolog.Logger
}

// NewReconciler builds a reconciler with defaults filled in. redisClient may
// be nil; the in-memory queue then carries all tasks.
func NewReconciler(store domain.Store, eventBus domain.EventPublisher, redisClient *redis.Client, retry RetryPolicy, logger *zerolog.Logger) *Reconciler {
	if retry.MaxRetries == 0 {
		retry.MaxRetries = 5
	}
	if retry.InitialDelay == 0 {
		retry.InitialDelay = 2 * time.Second
	}
	if retry.MaxDelay == 0 {
		retry.MaxDelay = time.Minute
	}
	if retry.BackoffFactor == 0 {
		retry.BackoffFactor = 2
	}

	return &Reconciler{
		store:        store,
		eventBus:     eventBus,
		redis:        redisClient,
		retryPolicy:  retry,
		queue:        make(chan reconcileTask, models.ReconcileQueueSize),
		pollInterval: 2 * time.Second,
		logger:       logger,
	}
}

// EnqueueReconcile schedules a reconciliation pass for a resource. Duplicate
// enqueues are harmless; the pass is idempotent.
func (r *Reconciler) EnqueueReconcile(ctx context.Context, resourceID string) error {
	if resourceID == "" {
		return errors.New("resource id is required")
	}
	return r.enqueue(ctx, reconcileTask{ResourceID: resourceID, CreatedAt: time.Now()})
}

func (r *Reconciler) enqueue(ctx context.Context, task reconcileTask) error {
	if r.redis != nil {
		data, err := json.Marshal(task)
		if err != nil {
			return fmt.Errorf("encode reconcile task: %w", err)
		}
		err = r.redis.LPush(ctx, reconcileQueueKey, data).Err()
		if err == nil {
			return nil
		}
		r.logger.Warn().Err(err).Msg("redis enqueue failed, falling back to memory queue")
	}

	select {
	case r.queue <- task:
		return nil
	default:
		return errors.New("reconcile queue is full")
	}
}

// Start runs the consume loop until ctx is cancelled.
func (r *Reconciler) Start(ctx context.Context) {
	r.logger.Info().Msg("reconciler started")
	defer r.logger.Info().Msg("reconciler stopped")

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if task, ok := r.tryLocalQueue(); ok {
			r.processTask(ctx, task)
			continue
		}

		if task, ok := r.tryRedis(ctx); ok {
			r.processTask(ctx, task)
			continue
		}

		select {
		case <-ctx.Done():
			return
		case task := <-r.queue:
			r.processTask(ctx, task)
		case <-time.After(r.pollInterval):
		}
	}
}

func (r *Reconciler) tryLocalQueue() (reconcileTask, bool) {
	select {
	case task := <-r.queue:
		return task, true
	default:
		return reconcileTask{}, false
	}
}

func (r *Reconciler) tryRedis(ctx context.Context) (reconcileTask, bool) {
	if r.redis == nil {
		return reconcileTask{}, false
	}
	res, err := r.redis.BRPop(ctx, time.Second, reconcileQueueKey).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) && !errors.Is(err, context.Canceled) {
			r.logger.Warn().Err(err).Msg("redis BRPOP error")
		}
		return reconcileTask{}, false
	}
	if len(res) != 2 {
		return reconcileTask{}, false
	}
	var task reconcileTask
	if err := json.Unmarshal([]byte(res[1]), &task); err != nil {
		r.logger.Error().Err(err).Msg("failed to decode reconcile task")
		return reconcileTask{}, false
	}
	return task, true
}

func (r *Reconciler) processTask(ctx context.Context, task reconcileTask) {
	cancelled, err := r.ReconcileResource(ctx, task.ResourceID)
	if err != nil {
		r.retryOrDrop(ctx, task, err)
		return
	}
	if cancelled > 0 {
		metrics.IncReconcileRun(outcomeResolved)
		r.logger.Info().
			Str("resource_id", task.ResourceID).
			Int("cancelled", cancelled).
			Msg("reconciliation cancelled overlapping bookings")
	} else {
		metrics.IncReconcileRun(outcomeClean)
	}
}

func (r *Reconciler) retryOrDrop(ctx context.Context, task reconcileTask, cause error) {
	attempt := task.RetryCount + 1
	if attempt >= r.retryPolicy.MaxRetries {
		metrics.IncReconcileRun(outcomeError)
		r.logger.Error().Err(cause).
			Str("resource_id", task.ResourceID).
			Int("attempts", attempt).
			Msg("reconciliation gave up")
		return
	}

	task.RetryCount = attempt
	delay := r.retryPolicy.NextDelay(attempt)
	r.logger.Warn().Err(cause).
		Str("resource_id", task.ResourceID).
		Dur("retry_in", delay).
		Msg("reconciliation failed, will retry")

	time.AfterFunc(delay, func() {
		if err := r.enqueue(context.Background(), task); err != nil {
			r.logger.Error().Err(err).Str("resource_id", task.ResourceID).Msg("failed to requeue reconcile task")
		}
	})
}

// ReconcileResource runs one pass over a resource's bookings. When two
// non-cancelled bookings overlap, the earlier-created one wins and the later
// one is cancelled with an explanatory note. Returns the number of bookings
// cancelled.
func (r *Reconciler) ReconcileResource(ctx context.Context, resourceID string) (int, error) {
	bookings, err := r.store.ListBookingsForResource(ctx, resourceID)
	if err != nil {
		return 0, fmt.Errorf("list bookings: %w", err)
	}

	var live []models.Booking
	for _, b := range bookings {
		if b.Status != models.BookingCancelled && b.Status != models.BookingCompleted {
			live = append(live, b)
		}
	}
	sort.Slice(live, func(i, j int) bool {
		return live[i].CreatedAt.Before(live[j].CreatedAt)
	})

	var kept []models.Booking
	cancelled := 0
	for _, candidate := range live {
		loser := false
		for _, winner := range kept {
			if schedule.Overlaps(candidate.StartTime, candidate.EndTime, winner.StartTime, winner.EndTime) {
				if err := r.cancelLoser(ctx, candidate, winner); err != nil {
					return cancelled, err
				}
				cancelled++
				loser = true
				break
			}
		}
		if !loser {
			kept = append(kept, candidate)
		}
	}
	return cancelled, nil
}

func (r *Reconciler) cancelLoser(ctx context.Context, loser, winner models.Booking) error {
	wasActive := loser.Status == models.BookingActive
	loser.Status = models.BookingCancelled
	note := fmt.Sprintf("cancelled by reconciliation: overlaps booking %s", winner.ID)
	if loser.Notes != "" {
		loser.Notes += "; " + note
	} else {
		loser.Notes = note
	}

	// An active loser was holding the resource; release it with the same
	// write that flips the status.
	if wasActive {
		if err := r.store.TransitionBookingWithAvailability(ctx, &loser, true); err != nil {
			return fmt.Errorf("cancel active booking %s: %w", loser.ID, err)
		}
	} else {
		if err := r.store.UpdateBooking(ctx, &loser); err != nil {
			return fmt.Errorf("cancel booking %s: %w", loser.ID, err)
		}
	}

	audit := &models.AuditEvent{
		Action:     events.ActionConflictResolved,
		ReceiverID: loser.RequesterID,
		ResourceID: loser.ResourceID,
		Note:       note,
	}
	if err := r.store.RecordAuditEvent(ctx, audit); err != nil {
		r.logger.Error().Err(err).Str("booking_id", loser.ID).Msg("failed to record reconciliation audit event")
	}

	if r.eventBus != nil {
		payload := events.BookingEventPayload{
			BookingID:   loser.ID,
			ResourceID:  loser.ResourceID,
			RequesterID: loser.RequesterID,
			Status:      string(models.BookingCancelled),
			StartTime:   loser.StartTime,
			EndTime:     loser.EndTime,
		}
		if err := r.eventBus.PublishJSON(events.EventConflictResolved, payload); err != nil {
			r.logger.Error().Err(err).Str("booking_id", loser.ID).Msg("failed to publish reconciliation event")
		}
	}
	return nil
}
