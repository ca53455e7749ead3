package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Shivanand-hulikatti/flock/internal/model"
	"github.com/Shivanand-hulikatti/flock/internal/repository"
)

const maxCapacity = 100_000

// EventLifecycle owns owner-authorised event creation, metadata updates and
// closing. It never writes the registration counter.
type EventLifecycle struct {
	events        EventStore
	registrations RegistrationLedger
	logger        *slog.Logger
	now           func() time.Time
}

// NewEventLifecycle constructs an EventLifecycle with its dependencies.
func NewEventLifecycle(events EventStore, registrations RegistrationLedger, logger *slog.Logger) *EventLifecycle {
	return &EventLifecycle{
		events:        events,
		registrations: registrations,
		logger:        logger,
		now:           time.Now,
	}
}

// Create validates the request and stores a new event owned by ownerID.
func (s *EventLifecycle) Create(ctx context.Context, ownerID string, req model.CreateEventRequest) (*model.Event, error) {
	if ownerID == "" {
		return nil, repository.ErrUnauthorized
	}
	event := model.Event{
		ID:                   uuid.NewString(),
		EventName:            strings.TrimSpace(req.EventName),
		Description:          req.Description,
		ImageURL:             req.ImageURL,
		Price:                req.Price,
		Venue:                req.Venue,
		Contact:              req.Contact,
		EventTime:            req.EventTime,
		Capacity:             req.Capacity,
		RegisteredCount:      0,
		RegistrationDeadline: req.RegistrationDeadline.UTC(),
		EventDate:            req.EventDate.UTC(),
		OwnerID:              ownerID,
		CustomFields:         req.CustomFields,
		CreatedAt:            s.now().UTC(),
	}
	if err := validateEvent(&event); err != nil {
		return nil, err
	}

	created, err := s.events.Create(ctx, event)
	if err != nil {
		return nil, fmt.Errorf("create event: %w", err)
	}
	s.logger.InfoContext(ctx, "event created",
		"event_id", created.ID, "owner_id", ownerID, "capacity", created.Capacity)
	return created, nil
}

// Update applies patch on behalf of ownerID. Patches that carry
// registeredCount or capacity are rejected outright.
func (s *EventLifecycle) Update(ctx context.Context, ownerID, eventID string, patch model.EventPatch) (*model.Event, error) {
	if patch.RegisteredCount != nil {
		return nil, fmt.Errorf("%w: registeredCount is managed by admission control", ErrInvalidSpec)
	}
	if patch.Capacity != nil {
		return nil, fmt.Errorf("%w: capacity cannot change after creation", ErrInvalidSpec)
	}
	if patch.EventName != nil {
		trimmed := strings.TrimSpace(*patch.EventName)
		patch.EventName = &trimmed
	}

	current, err := s.ownedEvent(ctx, ownerID, eventID)
	if err != nil {
		return nil, err
	}
	merged := patch.Apply(*current)
	if err := validateEvent(&merged); err != nil {
		return nil, err
	}

	updated, err := s.events.UpdateMetadata(ctx, ownerID, eventID, patch)
	if err != nil {
		if isDomainErr(err) {
			return nil, err
		}
		return nil, fmt.Errorf("update event: %w", err)
	}
	return updated, nil
}

// Close ends registration for an event now by pulling its deadline forward.
// Closing an already closed event is a no-op, and a deadline the owner set
// earlier is never pushed later.
func (s *EventLifecycle) Close(ctx context.Context, ownerID, eventID string) (*model.Event, error) {
	if eventID == "" {
		return nil, repository.ErrNotFound
	}
	if ownerID == "" {
		return nil, repository.ErrUnauthorized
	}

	closed, err := s.events.CloseRegistration(ctx, ownerID, eventID, s.now().UTC())
	if err != nil {
		if isDomainErr(err) {
			return nil, err
		}
		return nil, fmt.Errorf("close event: %w", err)
	}
	s.logger.InfoContext(ctx, "event registration closed",
		"event_id", eventID, "registered", closed.RegisteredCount, "capacity", closed.Capacity)
	return closed, nil
}

// Get returns a single event by ID.
func (s *EventLifecycle) Get(ctx context.Context, id string) (*model.Event, error) {
	if id == "" {
		return nil, repository.ErrNotFound
	}
	event, err := s.events.Get(ctx, id)
	if err != nil {
		if isDomainErr(err) {
			return nil, err
		}
		return nil, fmt.Errorf("get event: %w", err)
	}
	return event, nil
}

// List returns all events.
func (s *EventLifecycle) List(ctx context.Context) ([]model.Event, error) {
	return s.events.List(ctx)
}

// ListByOwner returns the events managed by ownerID.
func (s *EventLifecycle) ListByOwner(ctx context.Context, ownerID string) ([]model.Event, error) {
	return s.events.ListByOwner(ctx, ownerID)
}

// ListRegistrations returns all registrations for an event owned by ownerID.
func (s *EventLifecycle) ListRegistrations(ctx context.Context, ownerID, eventID string) ([]model.Registration, error) {
	if _, err := s.ownedEvent(ctx, ownerID, eventID); err != nil {
		return nil, err
	}
	return s.registrations.ListByEvent(ctx, eventID)
}

func (s *EventLifecycle) ownedEvent(ctx context.Context, ownerID, eventID string) (*model.Event, error) {
	event, err := s.Get(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if ownerID == "" || event.OwnerID != ownerID {
		return nil, repository.ErrUnauthorized
	}
	return event, nil
}

func validateEvent(e *model.Event) error {
	if e.EventName == "" {
		return fmt.Errorf("%w: eventName is required", ErrInvalidSpec)
	}
	if e.Capacity <= 0 {
		return fmt.Errorf("%w: capacity must be a positive integer", ErrInvalidSpec)
	}
	if e.Capacity > maxCapacity {
		return fmt.Errorf("%w: capacity cannot exceed 100,000", ErrInvalidSpec)
	}
	if e.RegistrationDeadline.IsZero() || e.EventDate.IsZero() {
		return fmt.Errorf("%w: registrationDeadline and eventDate are required", ErrInvalidSpec)
	}
	if e.RegistrationDeadline.After(e.EventDate) {
		return fmt.Errorf("%w: registrationDeadline must be on or before eventDate", ErrInvalidSpec)
	}
	if e.Price < 0 {
		return fmt.Errorf("%w: price cannot be negative", ErrInvalidSpec)
	}
	seen := make(map[string]struct{}, len(e.CustomFields))
	for _, f := range e.CustomFields {
		name := strings.TrimSpace(f.Name)
		if name == "" {
			return fmt.Errorf("%w: custom field name is required", ErrInvalidSpec)
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("%w: duplicate custom field %q", ErrInvalidSpec, name)
		}
		seen[name] = struct{}{}
	}
	return nil
}
