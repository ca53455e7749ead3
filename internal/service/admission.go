package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Shivanand-hulikatti/flock/internal/model"
	"github.com/Shivanand-hulikatti/flock/internal/repository"
)

const tracerName = "github.com/Shivanand-hulikatti/flock/internal/service"

// AdmissionController is the only path from a registration request to a
// durable state change. It enforces the deadline, per-email idempotency and
// the capacity limit.
type AdmissionController struct {
	events        EventStore
	registrations RegistrationLedger
	logger        *slog.Logger
	tracer        trace.Tracer
	now           func() time.Time
}

// NewAdmissionController constructs an AdmissionController.
func NewAdmissionController(events EventStore, registrations RegistrationLedger, logger *slog.Logger) *AdmissionController {
	return &AdmissionController{
		events:        events,
		registrations: registrations,
		logger:        logger,
		tracer:        otel.Tracer(tracerName),
		now:           time.Now,
	}
}

// Register admits req to the event or explains why not. The event lookup
// and the deadline come before field validation, so an unknown event is
// always reported as not found.
//
// The ledger insert comes before the slot reservation. A returning
// registrant is turned away by the ledger without ever holding a slot, so
// duplicates can't briefly consume capacity that a concurrent newcomer
// needed. If the reservation then fails, the fresh ledger row is removed so
// that every registration corresponds to a reserved slot.
func (c *AdmissionController) Register(ctx context.Context, eventID string, req model.RegisterRequest) (_ *model.Registration, err error) {
	ctx, span := c.tracer.Start(ctx, "AdmissionController.Register",
		trace.WithAttributes(attribute.String("event.id", eventID)))
	defer func() {
		span.SetAttributes(attribute.String("registration.outcome", Outcome(err)))
		if err != nil && !isExpected(err) {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	event, err := c.events.Get(ctx, eventID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("get event: %w", err)
	}

	now := c.now().UTC()
	if !event.RegistrationOpen(now) {
		return nil, ErrDeadlinePassed
	}

	email := strings.TrimSpace(strings.ToLower(req.RegistrantEmail))
	if email == "" {
		return nil, fmt.Errorf("%w: registrantEmail is required", ErrInvalidSpec)
	}
	if !isValidEmail(email) {
		return nil, fmt.Errorf("%w: registrantEmail is not a valid email address", ErrInvalidSpec)
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidSpec)
	}

	reg := model.Registration{
		ID:                       uuid.NewString(),
		EventID:                  eventID,
		RegistrantEmail:          email,
		Name:                     name,
		PhoneNumber:              strings.TrimSpace(req.PhoneNumber),
		TransactionScreenshotURL: req.TransactionScreenshotURL,
		SubmittedAt:              now,
		Status:                   model.StatusConfirmed,
	}
	if err := c.registrations.TryInsert(ctx, reg); err != nil {
		if isDomainErr(err) {
			return nil, err
		}
		return nil, fmt.Errorf("record registration: %w", err)
	}

	if err := c.events.TryReserveSlot(ctx, eventID); err != nil {
		return nil, c.compensate(ctx, reg, err)
	}

	c.logger.InfoContext(ctx, "registration confirmed",
		"event_id", eventID, "registration_id", reg.ID)
	return &reg, nil
}

// compensate removes reg after its slot reservation failed with cause.
// Removal runs even if the request context is already cancelled.
func (c *AdmissionController) compensate(ctx context.Context, reg model.Registration, cause error) error {
	if err := c.registrations.Remove(context.WithoutCancel(ctx), reg.ID); err != nil {
		c.logger.ErrorContext(ctx, "registration compensation failed, manual reconciliation required",
			"event_id", reg.EventID,
			"registration_id", reg.ID,
			"registrant_email", reg.RegistrantEmail,
			"reserve_error", cause,
			"error", err,
		)
		return fmt.Errorf("%w: registration %s kept after reserve failed (%v): %v",
			ErrInconsistent, reg.ID, cause, err)
	}
	if isDomainErr(cause) {
		return cause
	}
	return fmt.Errorf("reserve slot: %w", cause)
}

// Outcome names the result of a registration attempt for logs and traces.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "confirmed"
	case errors.Is(err, ErrInconsistent):
		return "inconsistent"
	case errors.Is(err, repository.ErrDuplicate):
		return "duplicate"
	case errors.Is(err, repository.ErrCapacityExceeded):
		return "capacity_exceeded"
	case errors.Is(err, ErrDeadlinePassed):
		return "deadline_passed"
	case errors.Is(err, repository.ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidSpec):
		return "invalid_spec"
	case errors.Is(err, repository.ErrStorageUnavailable):
		return "storage_unavailable"
	default:
		return "error"
	}
}

// isExpected reports steady-state rejections that are not system faults.
func isExpected(err error) bool {
	switch Outcome(err) {
	case "duplicate", "capacity_exceeded", "deadline_passed", "not_found", "invalid_spec":
		return true
	}
	return false
}

// isValidEmail does a basic structural check.
func isValidEmail(email string) bool {
	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return false
	}
	return len(parts[0]) > 0 && strings.Contains(parts[1], ".")
}
