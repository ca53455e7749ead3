// Package repository implements the event store and registration ledger
// over PostgreSQL (pgx), SQLite, and process memory.
package repository

import "errors"

// ErrNotFound is returned when a requested resource does not exist.
var ErrNotFound = errors.New("not found")

// ErrUnauthorized is returned when the caller does not own the event.
var ErrUnauthorized = errors.New("caller does not own this event")

// ErrCapacityExceeded is returned when an event has no remaining capacity.
var ErrCapacityExceeded = errors.New("event is fully booked")

// ErrDuplicate is returned when the same email registers twice for an event.
var ErrDuplicate = errors.New("email already registered for this event")

// ErrStorageUnavailable marks transient storage failures. Callers may retry
// with backoff.
var ErrStorageUnavailable = errors.New("storage unavailable")
