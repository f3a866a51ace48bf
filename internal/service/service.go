package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"facility-service/api"
	"facility-service/internal/config"
	"facility-service/internal/engine"
	"facility-service/internal/lock"
	"facility-service/internal/models"
	"facility-service/internal/priority"
	"facility-service/pkg/response"
	"facility-service/pkg/sl"
)

// Store is the persistence port. The multi-record mutations are atomic: the
// new or updated booking and every preempted holder commit together or not
// at all.
type Store interface {
	GetResource(ctx context.Context, id string) (*models.Resource, error)
	GetRequester(ctx context.Context, id string) (*models.Requester, error)
	GetBooking(ctx context.Context, id string) (*models.Booking, error)

	// Conflict sources
	ListOpenIssues(ctx context.Context, resourceID string) ([]*models.ResourceIssue, error)
	ListTimetableEntries(ctx context.Context, resourceID string, weekday time.Weekday) ([]*models.TimetableEntry, error)
	ListActiveBookings(ctx context.Context, resourceID string, start, end time.Time, excludeBookingID *string) ([]*models.Booking, error)
	ListSharedResources(ctx context.Context, location, category, excludeResourceID string) ([]*models.Resource, error)
	ListRequesterActiveBookings(ctx context.Context, requesterID string, start, end time.Time, excludeBookingID *string) ([]*models.Booking, error)

	// Catalog / preferences
	ListAlternateResources(ctx context.Context, category, excludeResourceID string) ([]*models.Resource, error)
	CountRecentBookings(ctx context.Context, resourceID string, since time.Time) (int, error)
	GetPreferences(ctx context.Context, requesterID string) (*models.Preferences, error)

	// Atomic mutations
	CreateBooking(ctx context.Context, booking *models.Booking, preemptIDs []string, at time.Time) (string, error)
	UpdateBooking(ctx context.Context, booking *models.Booking, preemptIDs []string, at time.Time) error
	FinishBooking(ctx context.Context, bookingID string, status models.BookingStatus, reason, actorID string, at time.Time) error
	ExpireOverdue(ctx context.Context, now time.Time) ([]*models.Booking, error)
}

type Emitter interface {
	Emit(ctx context.Context, event models.Event) error
}

type Service struct {
	store     Store
	locker    lock.Locker
	detector  *engine.Detector
	suggester *engine.Suggester
	emitter   Emitter
	cfg       config.Engine
	log       *slog.Logger
	now       func() time.Time
}

func NewService(store Store, locker lock.Locker, emitter Emitter, cfg config.Engine, log *slog.Logger) *Service {
	detector := engine.NewDetector(store)
	suggester := engine.NewSuggester(detector, store, engine.SuggestConfig{
		ShiftStep:        cfg.ShiftStep,
		SearchHorizon:    cfg.SearchHorizon,
		MaxCandidates:    cfg.MaxCandidates,
		OverlapTolerance: cfg.OverlapTolerance,
		TravelBuffer:     cfg.TravelBuffer,
		UsageWindow:      cfg.UsageWindow,
	})

	return &Service{
		store:     store,
		locker:    locker,
		detector:  detector,
		suggester: suggester,
		emitter:   emitter,
		cfg:       cfg,
		log:       log,
		now:       time.Now,
	}
}

// CreateBooking runs validation, conflict detection and the preemption
// decision under a per-resource lock, commits atomically, and emits events
// only after the commit.
func (s *Service) CreateBooking(ctx context.Context, req *api.BookingRequest) (*api.BookingResult, error) {
	const op = "service.CreateBooking"

	iv, err := s.parseInterval(req.Start, req.End)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	requester, err := s.store.GetRequester(ctx, req.RequesterID)
	if err != nil {
		return nil, fmt.Errorf("%s: requester: %w", op, err)
	}

	resource, err := s.store.GetResource(ctx, req.ResourceID)
	if err != nil {
		return nil, fmt.Errorf("%s: resource: %w", op, err)
	}

	if resource.Status != models.ResourceActive {
		return nil, fmt.Errorf("%s: %w: %w", op, response.ErrValidation, response.ErrResourceInactive)
	}

	category := models.BookingCategory(req.Category)
	prio := priority.Classify(requester.Role, category)

	unlock, err := s.lockResource(ctx, resource.ID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer unlock()

	for attempt := 0; ; attempt++ {
		set, err := s.detector.Detect(ctx, resource, iv, requester.ID, nil)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		decision := engine.Resolve(prio, set, resource.Capacity)
		if decision.Outcome == engine.OutcomeDeny {
			return s.denied(ctx, requester, resource, iv, set)
		}

		booking := &models.Booking{
			ResourceID:    resource.ID,
			RequesterID:   requester.ID,
			Start:         iv.Start,
			End:           iv.End,
			Category:      category,
			Status:        initialStatus(resource),
			Priority:      prio,
			AttachmentRef: req.AttachmentRef,
		}

		id, err := s.store.CreateBooking(ctx, booking, bookingIDs(decision.Preempt), s.now())
		if err != nil {
			if errors.Is(err, response.ErrTxConflict) && attempt < s.cfg.MaxTxRetries {
				continue
			}
			return nil, fmt.Errorf("%s: commit: %w", op, err)
		}

		s.emitAllocation(ctx, id, booking, decision.Preempt)

		created, err := s.store.GetBooking(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		return &api.BookingResult{Booking: toBookingResponse(created)}, nil
	}
}

// UpdateBooking re-runs classification and conflict resolution for the new
// interval/category, excluding the booking itself from detection.
func (s *Service) UpdateBooking(ctx context.Context, bookingID string, req *api.BookingUpdateRequest) (*api.BookingResult, error) {
	const op = "service.UpdateBooking"

	booking, err := s.store.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if booking.Status.IsTerminal() {
		return nil, fmt.Errorf("%s: %w", op, response.ErrTerminalState)
	}

	startStr := booking.Start.Format(time.RFC3339)
	if req.Start != nil {
		startStr = *req.Start
	}
	endStr := booking.End.Format(time.RFC3339)
	if req.End != nil {
		endStr = *req.End
	}
	iv, err := s.parseInterval(startStr, endStr)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	category := booking.Category
	if req.Category != nil {
		category = models.BookingCategory(*req.Category)
	}

	requester, err := s.store.GetRequester(ctx, booking.RequesterID)
	if err != nil {
		return nil, fmt.Errorf("%s: requester: %w", op, err)
	}

	resource, err := s.store.GetResource(ctx, booking.ResourceID)
	if err != nil {
		return nil, fmt.Errorf("%s: resource: %w", op, err)
	}

	if resource.Status != models.ResourceActive {
		return nil, fmt.Errorf("%s: %w: %w", op, response.ErrValidation, response.ErrResourceInactive)
	}

	prio := priority.Classify(requester.Role, category)

	unlock, err := s.lockResource(ctx, resource.ID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer unlock()

	for attempt := 0; ; attempt++ {
		set, err := s.detector.Detect(ctx, resource, iv, requester.ID, &booking.ID)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		decision := engine.Resolve(prio, set, resource.Capacity)
		if decision.Outcome == engine.OutcomeDeny {
			return s.denied(ctx, requester, resource, iv, set)
		}

		updated := *booking
		updated.Start = iv.Start
		updated.End = iv.End
		updated.Category = category
		updated.Priority = prio

		err = s.store.UpdateBooking(ctx, &updated, bookingIDs(decision.Preempt), s.now())
		if err != nil {
			if errors.Is(err, response.ErrTxConflict) && attempt < s.cfg.MaxTxRetries {
				continue
			}
			return nil, fmt.Errorf("%s: commit: %w", op, err)
		}

		s.emitAllocation(ctx, booking.ID, &updated, decision.Preempt)

		fresh, err := s.store.GetBooking(ctx, booking.ID)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		return &api.BookingResult{Booking: toBookingResponse(fresh)}, nil
	}
}

// CancelBooking terminates a non-terminal booking. The status change is a
// compare-and-set in storage so it cannot race an in-flight allocation.
func (s *Service) CancelBooking(ctx context.Context, bookingID, actorID, reason string) (*api.BookingResponse, error) {
	const op = "service.CancelBooking"

	booking, err := s.store.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if booking.Status.IsTerminal() {
		return nil, fmt.Errorf("%s: %w", op, response.ErrTerminalState)
	}

	if err := s.store.FinishBooking(ctx, bookingID, models.BookingCancelled, reason, actorID, s.now()); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.emit(ctx, models.Event{
		Type:        models.EventBookingCancelled,
		BookingID:   bookingID,
		ResourceID:  booking.ResourceID,
		RequesterID: booking.RequesterID,
		Reason:      reason,
		OccurredAt:  s.now(),
	})

	fresh, err := s.store.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return toBookingResponse(fresh), nil
}

// CheckAvailability is a read-only probe: available means the interval can be
// granted without displacing anyone.
func (s *Service) CheckAvailability(ctx context.Context, resourceID string, start, end time.Time, excludeBookingID *string) (*api.AvailabilityResponse, error) {
	const op = "service.CheckAvailability"

	resource, err := s.store.GetResource(ctx, resourceID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	iv := engine.Interval{Start: start, End: end}
	if !iv.Start.Before(iv.End) {
		return nil, fmt.Errorf("%s: %w: start must precede end", op, response.ErrValidation)
	}

	set, err := s.detector.Detect(ctx, resource, iv, "", excludeBookingID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	capacity := resource.Capacity
	if capacity < 1 {
		capacity = 1
	}
	available := resource.Status == models.ResourceActive &&
		!set.HasBlocking() &&
		len(set.ExistingBookings())+1 <= capacity

	return &api.AvailabilityResponse{
		Available: available,
		Conflicts: toConflictResponses(set),
	}, nil
}

// ExpireOverdue sweeps bookings whose end passed without reaching a terminal
// status. The sweep is a guarded bulk update, so repeated calls are
// idempotent and safe on a timer.
func (s *Service) ExpireOverdue(ctx context.Context) (int, error) {
	const op = "service.ExpireOverdue"

	expired, err := s.store.ExpireOverdue(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	for _, b := range expired {
		s.emit(ctx, models.Event{
			Type:        models.EventBookingExpired,
			BookingID:   b.ID,
			ResourceID:  b.ResourceID,
			RequesterID: b.RequesterID,
			OccurredAt:  s.now(),
		})
	}

	return len(expired), nil
}

// GetBooking is a plain read-through.
func (s *Service) GetBooking(ctx context.Context, id string) (*api.BookingResponse, error) {
	const op = "service.GetBooking"

	booking, err := s.store.GetBooking(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return toBookingResponse(booking), nil
}

func (s *Service) parseInterval(startStr, endStr string) (engine.Interval, error) {
	start, err := time.Parse(time.RFC3339, startStr)
	if err != nil {
		return engine.Interval{}, fmt.Errorf("%w: invalid start: %w", response.ErrValidation, err)
	}
	end, err := time.Parse(time.RFC3339, endStr)
	if err != nil {
		return engine.Interval{}, fmt.Errorf("%w: invalid end: %w", response.ErrValidation, err)
	}
	if !start.Before(end) {
		return engine.Interval{}, fmt.Errorf("%w: start must precede end", response.ErrValidation)
	}
	if end.Sub(start) < s.cfg.MinDuration {
		return engine.Interval{}, fmt.Errorf("%w: duration below minimum %s", response.ErrValidation, s.cfg.MinDuration)
	}

	return engine.Interval{Start: start.UTC(), End: end.UTC()}, nil
}

func (s *Service) lockResource(ctx context.Context, resourceID string) (func(), error) {
	key := fmt.Sprintf("resource:%s", resourceID)

	locked, err := s.locker.Lock(ctx, key, s.cfg.LockTTL)
	if err != nil {
		return nil, fmt.Errorf("lock error: %w", err)
	}
	if !locked {
		return nil, response.ErrLocked
	}

	return func() { _ = s.locker.Unlock(ctx, key) }, nil
}

func (s *Service) denied(ctx context.Context, requester *models.Requester, resource *models.Resource, iv engine.Interval, set *engine.ConflictSet) (*api.BookingResult, error) {
	suggestions, err := s.suggester.Suggest(ctx, requester, resource, iv)
	if err != nil {
		return nil, fmt.Errorf("suggest: %w", err)
	}

	s.emit(ctx, models.Event{
		Type:        models.EventBookingRejected,
		ResourceID:  resource.ID,
		RequesterID: requester.ID,
		Reason:      "denied by conflict resolution",
		OccurredAt:  s.now(),
	})

	return &api.BookingResult{
		Denied:      true,
		Conflicts:   toConflictResponses(set),
		Suggestions: toSuggestionResponses(suggestions),
	}, nil
}

func (s *Service) emitAllocation(ctx context.Context, id string, booking *models.Booking, preempted []*models.Booking) {
	s.emit(ctx, models.Event{
		Type:        models.EventBookingCreated,
		BookingID:   id,
		ResourceID:  booking.ResourceID,
		RequesterID: booking.RequesterID,
		OccurredAt:  s.now(),
	})
	if booking.Status == models.BookingApproved {
		s.emit(ctx, models.Event{
			Type:        models.EventBookingApproved,
			BookingID:   id,
			ResourceID:  booking.ResourceID,
			RequesterID: booking.RequesterID,
			OccurredAt:  s.now(),
		})
	}
	for _, loser := range preempted {
		s.emit(ctx, models.Event{
			Type:        models.EventBookingPreempted,
			BookingID:   loser.ID,
			ResourceID:  loser.ResourceID,
			RequesterID: loser.RequesterID,
			Reason:      fmt.Sprintf("preempted by booking %s", id),
			OccurredAt:  s.now(),
		})
	}
}

// emit is fire-and-forget: a delivery failure never affects the operation.
func (s *Service) emit(ctx context.Context, event models.Event) {
	if s.emitter == nil {
		return
	}
	if err := s.emitter.Emit(ctx, event); err != nil {
		s.log.Error("Failed to emit event", slog.String("type", string(event.Type)), sl.Err(err))
	}
}

func initialStatus(resource *models.Resource) models.BookingStatus {
	if resource.SpecialApproval {
		return models.BookingPending
	}
	return models.BookingApproved
}

func bookingIDs(bookings []*models.Booking) []string {
	ids := make([]string, 0, len(bookings))
	for _, b := range bookings {
		ids = append(ids, b.ID)
	}
	return ids
}

func toBookingResponse(b *models.Booking) *api.BookingResponse {
	return &api.BookingResponse{
		ID:            b.ID,
		ResourceID:    b.ResourceID,
		RequesterID:   b.RequesterID,
		Category:      string(b.Category),
		Status:        string(b.Status),
		Start:         b.Start,
		End:           b.End,
		Priority:      b.Priority,
		AttachmentRef: b.AttachmentRef,
		EndedReason:   b.EndedReason,
		EndedBy:       b.EndedBy,
		EndedAt:       b.EndedAt,
	}
}

func toConflictResponses(set *engine.ConflictSet) []api.ConflictResponse {
	out := make([]api.ConflictResponse, 0, len(set.Records))
	for _, rec := range set.Records {
		resp := api.ConflictResponse{
			Type:     string(rec.Type),
			Severity: string(rec.Severity),
			Priority: rec.Priority,
			Hint:     rec.Hint,
		}
		if rec.Booking != nil {
			id := rec.Booking.ID
			resp.BookingID = &id
		}
		out = append(out, resp)
	}
	return out
}

func toSuggestionResponses(suggestions []engine.Suggestion) []api.SuggestionResponse {
	out := make([]api.SuggestionResponse, 0, len(suggestions))
	for _, sg := range suggestions {
		out = append(out, api.SuggestionResponse{
			Kind:       string(sg.Kind),
			ResourceID: sg.ResourceID,
			Resource:   sg.Resource,
			Start:      sg.Start,
			End:        sg.End,
			Score:      sg.Score,
			Reason:     sg.Reason,
		})
	}
	return out
}
