// Package service implements business logic, validation, and orchestration
// between HTTP handlers and the repository layer.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/Shivanand-hulikatti/flock/internal/model"
	"github.com/Shivanand-hulikatti/flock/internal/repository"
)

// EventStore is the durable record of events and their registration counters.
type EventStore interface {
	Create(ctx context.Context, e model.Event) (*model.Event, error)
	Get(ctx context.Context, id string) (*model.Event, error)
	List(ctx context.Context) ([]model.Event, error)
	ListByOwner(ctx context.Context, ownerID string) ([]model.Event, error)
	// UpdateMetadata must reject callers other than the event's owner with
	// repository.ErrUnauthorized and must never write the counter or capacity.
	UpdateMetadata(ctx context.Context, ownerID, eventID string, patch model.EventPatch) (*model.Event, error)
	// CloseRegistration moves the deadline back to at in one conditional
	// write. A deadline already on or before at is kept, and the counter is
	// untouched. Non-owners get repository.ErrUnauthorized.
	CloseRegistration(ctx context.Context, ownerID, eventID string, at time.Time) (*model.Event, error)
	// TryReserveSlot atomically increments the counter if it is below
	// capacity, else returns repository.ErrCapacityExceeded.
	TryReserveSlot(ctx context.Context, eventID string) error
}

// RegistrationLedger is the deduplicated record of registrations.
type RegistrationLedger interface {
	// TryInsert returns repository.ErrDuplicate if the event already holds a
	// registration for the same email.
	TryInsert(ctx context.Context, reg model.Registration) error
	Remove(ctx context.Context, id string) error
	ListByEvent(ctx context.Context, eventID string) ([]model.Registration, error)
}

// ErrInvalidSpec is returned for malformed requests and for patches that try
// to set fields the caller may not set.
var ErrInvalidSpec = errors.New("invalid event spec")

// ErrDeadlinePassed is returned when registering after the deadline.
var ErrDeadlinePassed = errors.New("registration deadline has passed")

// ErrInconsistent means a registration row was written but its slot could
// not be reserved and the row could not be removed. It needs manual
// reconciliation and must not be retried automatically.
var ErrInconsistent = errors.New("registration ledger and event counter are inconsistent")

// isDomainErr reports whether err is an expected outcome that should be
// passed to the caller as-is.
func isDomainErr(err error) bool {
	return errors.Is(err, repository.ErrNotFound) ||
		errors.Is(err, repository.ErrUnauthorized) ||
		errors.Is(err, repository.ErrCapacityExceeded) ||
		errors.Is(err, repository.ErrDuplicate)
}
