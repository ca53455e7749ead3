package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/Shivanand-hulikatti/flock/internal/model"
)

// SQLiteEventRepository is the event store for single-node deployments.
// Writes go through db, the single-connection write pool; queries use read
// so they never queue behind a writer.
type SQLiteEventRepository struct {
	db   *sql.DB
	read *sql.DB
}

// NewSQLiteEventRepository constructs a SQLiteEventRepository over the pools
// returned by database.OpenSQLitePair.
func NewSQLiteEventRepository(writeDB, readDB *sql.DB) *SQLiteEventRepository {
	return &SQLiteEventRepository{db: writeDB, read: readDB}
}

// Create inserts a fully populated event.
func (r *SQLiteEventRepository) Create(ctx context.Context, e model.Event) (*model.Event, error) {
	fields, err := json.Marshal(nonNilFields(e.CustomFields))
	if err != nil {
		return nil, fmt.Errorf("encode custom fields: %w", err)
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO events (`+eventColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.EventName, e.Description, e.ImageURL, e.Price, e.Venue, e.Contact, e.EventTime,
		e.Capacity, e.RegisteredCount, e.RegistrationDeadline.UTC(), e.EventDate.UTC(), e.OwnerID,
		string(fields), e.CreatedAt.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("insert event: %w", classifySQLite(err))
	}
	return &e, nil
}

// List returns all events ordered by creation time descending.
func (r *SQLiteEventRepository) List(ctx context.Context) ([]model.Event, error) {
	rows, err := r.read.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM events ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", classifySQLite(err))
	}
	return collectSQLiteEvents(rows)
}

// ListByOwner returns the events managed by ownerID, newest first.
func (r *SQLiteEventRepository) ListByOwner(ctx context.Context, ownerID string) ([]model.Event, error) {
	rows, err := r.read.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE owner_id = ? ORDER BY created_at DESC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list owner events: %w", classifySQLite(err))
	}
	return collectSQLiteEvents(rows)
}

// Get returns a single event or ErrNotFound.
func (r *SQLiteEventRepository) Get(ctx context.Context, id string) (*model.Event, error) {
	e, err := scanSQLiteEvent(r.read.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get event: %w", classifySQLite(err))
	}
	return e, nil
}

// UpdateMetadata applies patch to the event if ownerID owns it. The owner
// check is part of the UPDATE; the counter and capacity are never written.
func (r *SQLiteEventRepository) UpdateMetadata(ctx context.Context, ownerID, eventID string, patch model.EventPatch) (*model.Event, error) {
	var fields any
	if patch.CustomFields != nil {
		b, err := json.Marshal(nonNilFields(*patch.CustomFields))
		if err != nil {
			return nil, fmt.Errorf("encode custom fields: %w", err)
		}
		fields = string(b)
	}

	res, err := r.db.ExecContext(ctx,
		`UPDATE events SET
		    event_name            = COALESCE(?, event_name),
		    description           = COALESCE(?, description),
		    image_url             = COALESCE(?, image_url),
		    price                 = COALESCE(?, price),
		    venue                 = COALESCE(?, venue),
		    contact               = COALESCE(?, contact),
		    event_time            = COALESCE(?, event_time),
		    registration_deadline = COALESCE(?, registration_deadline),
		    event_date            = COALESCE(?, event_date),
		    custom_fields         = COALESCE(?, custom_fields)
		 WHERE id = ? AND owner_id = ?`,
		patch.EventName, patch.Description, patch.ImageURL, patch.Price, patch.Venue,
		patch.Contact, patch.EventTime, utcPtr(patch.RegistrationDeadline), utcPtr(patch.EventDate), fields,
		eventID, ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("update event: %w", classifySQLite(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("update event: %w", err)
	}
	e, err := r.Get(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, ErrUnauthorized
	}
	return e, nil
}

// CloseRegistration moves the deadline of an event owned by ownerID back to
// at, unless it already falls on or before at. The read and the write share
// one IMMEDIATE transaction, so no other writer can land between them.
func (r *SQLiteEventRepository) CloseRegistration(ctx context.Context, ownerID, eventID string, at time.Time) (*model.Event, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("close registration: %w", classifySQLite(err))
	}
	defer func() { _ = tx.Rollback() }()

	e, err := scanSQLiteEvent(tx.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id = ?`, eventID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("close registration: %w", classifySQLite(err))
	}
	if e.OwnerID != ownerID {
		return nil, ErrUnauthorized
	}
	at = at.UTC()
	if !e.RegistrationDeadline.After(at) {
		return e, nil
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE events SET registration_deadline = ? WHERE id = ?`, at, eventID); err != nil {
		return nil, fmt.Errorf("close registration: %w", classifySQLite(err))
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("close registration: %w", classifySQLite(err))
	}
	e.RegistrationDeadline = at
	return e, nil
}

// TryReserveSlot increments registered_count by one if capacity remains.
// The single-writer pool plus the conditional UPDATE make this atomic.
func (r *SQLiteEventRepository) TryReserveSlot(ctx context.Context, eventID string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE events SET registered_count = registered_count + 1
		 WHERE id = ? AND registered_count < capacity`, eventID)
	if err != nil {
		return fmt.Errorf("reserve slot: %w", classifySQLite(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reserve slot: %w", err)
	}
	if n == 1 {
		return nil
	}
	if _, err := r.Get(ctx, eventID); err != nil {
		return err
	}
	return ErrCapacityExceeded
}

// SQLiteRegistrationRepository is the registration ledger backed by SQLite.
type SQLiteRegistrationRepository struct {
	db   *sql.DB
	read *sql.DB
}

// NewSQLiteRegistrationRepository constructs a SQLiteRegistrationRepository
// over the pools returned by database.OpenSQLitePair.
func NewSQLiteRegistrationRepository(writeDB, readDB *sql.DB) *SQLiteRegistrationRepository {
	return &SQLiteRegistrationRepository{db: writeDB, read: readDB}
}

// TryInsert records reg unless the event already has a registration for the
// same email, in which case it returns ErrDuplicate. A missing event yields
// ErrNotFound through the foreign key.
func (r *SQLiteRegistrationRepository) TryInsert(ctx context.Context, reg model.Registration) error {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO registrations (`+registrationColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (event_id, registrant_email) DO NOTHING`,
		reg.ID, reg.EventID, reg.RegistrantEmail, reg.Name, reg.PhoneNumber,
		reg.TransactionScreenshotURL, reg.SubmittedAt.UTC(), string(reg.Status),
	)
	if err != nil {
		return fmt.Errorf("insert registration: %w", classifySQLite(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert registration: %w", err)
	}
	if n == 0 {
		return ErrDuplicate
	}
	return nil
}

// Remove deletes a registration. Removing an absent one is not an error.
func (r *SQLiteRegistrationRepository) Remove(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM registrations WHERE id = ?`, id); err != nil {
		return fmt.Errorf("remove registration: %w", classifySQLite(err))
	}
	return nil
}

// ListByEvent returns an event's registrations in submission order.
func (r *SQLiteRegistrationRepository) ListByEvent(ctx context.Context, eventID string) ([]model.Registration, error) {
	rows, err := r.read.QueryContext(ctx,
		`SELECT `+registrationColumns+`
		 FROM registrations
		 WHERE event_id = ?
		 ORDER BY submitted_at ASC, rowid ASC`, eventID)
	if err != nil {
		return nil, fmt.Errorf("list registrations: %w", classifySQLite(err))
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

type sqlScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteEvent(row sqlScanner) (*model.Event, error) {
	var e model.Event
	var fields string
	err := row.Scan(&e.ID, &e.EventName, &e.Description, &e.ImageURL, &e.Price, &e.Venue, &e.Contact,
		&e.EventTime, &e.Capacity, &e.RegisteredCount, &e.RegistrationDeadline, &e.EventDate,
		&e.OwnerID, &fields, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(fields), &e.CustomFields); err != nil {
		return nil, fmt.Errorf("decode custom fields: %w", err)
	}
	return &e, nil
}

func collectSQLiteEvents(rows *sql.Rows) ([]model.Event, error) {
	defer rows.Close()
	var events []model.Event
	for rows.Next() {
		e, err := scanSQLiteEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, *e)
	}
	return events, rows.Err()
}

// classifySQLite maps driver errors onto the package sentinels.
func classifySQLite(err error) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch {
		case sqliteErr.ExtendedCode == sqlite3.ErrConstraintForeignKey:
			return fmt.Errorf("%w: %w", ErrNotFound, err)
		case sqliteErr.Code == sqlite3.ErrBusy, sqliteErr.Code == sqlite3.ErrLocked:
			return fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
		}
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}
	return err
}

func utcPtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}
