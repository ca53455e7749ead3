package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Shivanand-hulikatti/flock/internal/model"
)

const eventColumns = `id, event_name, description, image_url, price, venue, contact, event_time,
	capacity, registered_count, registration_deadline, event_date, owner_id, custom_fields, created_at`

const registrationColumns = `id, event_id, registrant_email, name, phone_number,
	transaction_screenshot_url, submitted_at, status`

// EventRepository handles persistence for events in PostgreSQL.
type EventRepository struct {
	db *pgxpool.Pool
}

// NewEventRepository constructs an EventRepository.
func NewEventRepository(db *pgxpool.Pool) *EventRepository {
	return &EventRepository{db: db}
}

// Create inserts a fully populated event.
func (r *EventRepository) Create(ctx context.Context, e model.Event) (*model.Event, error) {
	fields, err := json.Marshal(nonNilFields(e.CustomFields))
	if err != nil {
		return nil, fmt.Errorf("encode custom fields: %w", err)
	}
	_, err = r.db.Exec(ctx,
		`INSERT INTO events (`+eventColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14::jsonb, $15)`,
		e.ID, e.EventName, e.Description, e.ImageURL, e.Price, e.Venue, e.Contact, e.EventTime,
		e.Capacity, e.RegisteredCount, e.RegistrationDeadline, e.EventDate, e.OwnerID, string(fields), e.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert event: %w", classifyPg(err))
	}
	return &e, nil
}

// List returns all events ordered by creation time descending.
func (r *EventRepository) List(ctx context.Context) ([]model.Event, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+eventColumns+` FROM events ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", classifyPg(err))
	}
	return collectEvents(rows)
}

// ListByOwner returns the events managed by ownerID, newest first.
func (r *EventRepository) ListByOwner(ctx context.Context, ownerID string) ([]model.Event, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+eventColumns+` FROM events WHERE owner_id = $1 ORDER BY created_at DESC`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("list owner events: %w", classifyPg(err))
	}
	return collectEvents(rows)
}

// Get returns a single event or ErrNotFound.
func (r *EventRepository) Get(ctx context.Context, id string) (*model.Event, error) {
	e, err := scanPgEvent(r.db.QueryRow(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id = $1`, id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get event: %w", classifyPg(err))
	}
	return e, nil
}

// UpdateMetadata applies patch to the event if ownerID owns it. The owner
// check and the write are a single statement. registered_count and
// capacity are never written here.
func (r *EventRepository) UpdateMetadata(ctx context.Context, ownerID, eventID string, patch model.EventPatch) (*model.Event, error) {
	var fields any
	if patch.CustomFields != nil {
		b, err := json.Marshal(nonNilFields(*patch.CustomFields))
		if err != nil {
			return nil, fmt.Errorf("encode custom fields: %w", err)
		}
		fields = string(b)
	}

	e, err := scanPgEvent(r.db.QueryRow(ctx,
		`UPDATE events SET
		    event_name            = COALESCE($3, event_name),
		    description           = COALESCE($4, description),
		    image_url             = COALESCE($5, image_url),
		    price                 = COALESCE($6, price),
		    venue                 = COALESCE($7, venue),
		    contact               = COALESCE($8, contact),
		    event_time            = COALESCE($9, event_time),
		    registration_deadline = COALESCE($10, registration_deadline),
		    event_date            = COALESCE($11, event_date),
		    custom_fields         = COALESCE($12::jsonb, custom_fields)
		 WHERE id = $1 AND owner_id = $2
		 RETURNING `+eventColumns,
		eventID, ownerID,
		patch.EventName, patch.Description, patch.ImageURL, patch.Price, patch.Venue,
		patch.Contact, patch.EventTime, patch.RegistrationDeadline, patch.EventDate, fields,
	))
	if err == nil {
		return e, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("update event: %w", classifyPg(err))
	}
	// Nothing matched: either the event is missing or someone else owns it.
	if _, getErr := r.Get(ctx, eventID); getErr != nil {
		return nil, getErr
	}
	return nil, ErrUnauthorized
}

// CloseRegistration moves the deadline of an event owned by ownerID back to
// at. The comparison is part of the UPDATE, so a deadline that is already
// on or before at is left alone even if it changed after the caller read it.
func (r *EventRepository) CloseRegistration(ctx context.Context, ownerID, eventID string, at time.Time) (*model.Event, error) {
	e, err := scanPgEvent(r.db.QueryRow(ctx,
		`UPDATE events SET registration_deadline = $3
		 WHERE id = $1 AND owner_id = $2 AND registration_deadline > $3
		 RETURNING `+eventColumns,
		eventID, ownerID, at,
	))
	if err == nil {
		return e, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("close registration: %w", classifyPg(err))
	}
	// Missing, owned by someone else, or already closed.
	current, err := r.Get(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if current.OwnerID != ownerID {
		return nil, ErrUnauthorized
	}
	return current, nil
}

// TryReserveSlot increments registered_count by one if capacity remains.
//
// The check and the increment are one conditional UPDATE, so PostgreSQL's
// row lock serialises concurrent callers: a second writer blocks on the
// first, then re-evaluates the WHERE clause against the committed count.
// Two callers can never both take the last slot.
func (r *EventRepository) TryReserveSlot(ctx context.Context, eventID string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE events SET registered_count = registered_count + 1
		 WHERE id = $1 AND registered_count < capacity`,
		eventID,
	)
	if err != nil {
		return fmt.Errorf("reserve slot: %w", classifyPg(err))
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	if _, err := r.Get(ctx, eventID); err != nil {
		return err
	}
	return ErrCapacityExceeded
}

// RegistrationRepository is the PostgreSQL registration ledger.
type RegistrationRepository struct {
	db *pgxpool.Pool
}

// NewRegistrationRepository constructs a RegistrationRepository.
func NewRegistrationRepository(db *pgxpool.Pool) *RegistrationRepository {
	return &RegistrationRepository{db: db}
}

// TryInsert records reg unless a registration for the same event and email
// already exists. The unique (event_id, registrant_email) constraint makes
// concurrent inserts with one key resolve to exactly one winner.
func (r *RegistrationRepository) TryInsert(ctx context.Context, reg model.Registration) error {
	tag, err := r.db.Exec(ctx,
		`INSERT INTO registrations (`+registrationColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (event_id, registrant_email) DO NOTHING`,
		reg.ID, reg.EventID, reg.RegistrantEmail, reg.Name, reg.PhoneNumber,
		reg.TransactionScreenshotURL, reg.SubmittedAt, string(reg.Status),
	)
	if err != nil {
		return fmt.Errorf("insert registration: %w", classifyPg(err))
	}
	if tag.RowsAffected() == 0 {
		return ErrDuplicate
	}
	return nil
}

// Remove deletes a registration. It exists only to compensate a failed
// slot reservation.
func (r *RegistrationRepository) Remove(ctx context.Context, id string) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM registrations WHERE id = $1`, id); err != nil {
		return fmt.Errorf("remove registration: %w", classifyPg(err))
	}
	return nil
}

// ListByEvent returns all registrations for a given event.
func (r *RegistrationRepository) ListByEvent(ctx context.Context, eventID string) ([]model.Registration, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+registrationColumns+`
		 FROM registrations
		 WHERE event_id = $1
		 ORDER BY submitted_at ASC`,
		eventID,
	)
	if err != nil {
		return nil, fmt.Errorf("list registrations: %w", classifyPg(err))
	}
	defer rows.Close()

	var regs []model.Registration
	for rows.Next() {
		var reg model.Registration
		var status string
		if err := rows.Scan(&reg.ID, &reg.EventID, &reg.RegistrantEmail, &reg.Name, &reg.PhoneNumber,
			&reg.TransactionScreenshotURL, &reg.SubmittedAt, &status); err != nil {
			return nil, fmt.Errorf("scan registration: %w", err)
		}
		reg.Status = model.RegistrationStatus(status)
		regs = append(regs, reg)
	}
	return regs, rows.Err()
}

func scanPgEvent(row pgx.Row) (*model.Event, error) {
	var e model.Event
	var fields []byte
	err := row.Scan(&e.ID, &e.EventName, &e.Description, &e.ImageURL, &e.Price, &e.Venue, &e.Contact,
		&e.EventTime, &e.Capacity, &e.RegisteredCount, &e.RegistrationDeadline, &e.EventDate,
		&e.OwnerID, &fields, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(fields, &e.CustomFields); err != nil {
		return nil, fmt.Errorf("decode custom fields: %w", err)
	}
	return &e, nil
}

func collectEvents(rows pgx.Rows) ([]model.Event, error) {
	defer rows.Close()
	var events []model.Event
	for rows.Next() {
		e, err := scanPgEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, *e)
	}
	return events, rows.Err()
}

// classifyPg maps driver errors onto the package sentinels.
func classifyPg(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23503": // foreign_key_violation
			return fmt.Errorf("%w: %w", ErrNotFound, err)
		case "40001", "40P01", "53300", "57P01", "57P03": // serialization, deadlock, too many conns, shutdown
			return fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
		}
		return err
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) || pgconn.Timeout(err) || pgconn.SafeToRetry(err) ||
		errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}
	return err
}

func nonNilFields(f []model.CustomField) []model.CustomField {
	if f == nil {
		return []model.CustomField{}
	}
	return f
}
