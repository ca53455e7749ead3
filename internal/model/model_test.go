package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEvent_Remaining(t *testing.T) {
	e := &Event{Capacity: 5, RegisteredCount: 3}
	assert.Equal(t, 2, e.Remaining())
	assert.False(t, e.IsFull())

	e.RegisteredCount = 5
	assert.Equal(t, 0, e.Remaining())
	assert.True(t, e.IsFull())
}

func TestEvent_RegistrationOpen(t *testing.T) {
	deadline := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	e := &Event{RegistrationDeadline: deadline}

	assert.True(t, e.RegistrationOpen(deadline.Add(-time.Minute)))
	assert.True(t, e.RegistrationOpen(deadline), "deadline itself is still open")
	assert.False(t, e.RegistrationOpen(deadline.Add(time.Nanosecond)))
}

func TestEventPatch_Apply(t *testing.T) {
	name := "Renamed"
	venue := "Hall B"
	fields := []CustomField{{Name: "tshirt", Type: "text", Value: "M"}}

	orig := Event{
		ID:              "e1",
		EventName:       "Original",
		Venue:           "Hall A",
		Capacity:        10,
		RegisteredCount: 4,
		OwnerID:         "owner",
	}
	got := EventPatch{EventName: &name, Venue: &venue, CustomFields: &fields}.Apply(orig)

	assert.Equal(t, "Renamed", got.EventName)
	assert.Equal(t, "Hall B", got.Venue)
	assert.Equal(t, fields, got.CustomFields)
	assert.Equal(t, 10, got.Capacity)
	assert.Equal(t, 4, got.RegisteredCount)
	assert.Equal(t, "owner", got.OwnerID)
	assert.Equal(t, "Original", orig.EventName, "original must not be mutated")

	fields[0].Value = "L"
	assert.Equal(t, "M", got.CustomFields[0].Value, "custom fields are copied")
}

func TestEventPatch_ApplyIgnoresCounterFields(t *testing.T) {
	count := 99
	capacity := 1000
	got := EventPatch{RegisteredCount: &count, Capacity: &capacity}.Apply(Event{Capacity: 3, RegisteredCount: 1})

	assert.Equal(t, 3, got.Capacity)
	assert.Equal(t, 1, got.RegisteredCount)
}

func TestPrincipal_IsManager(t *testing.T) {
	assert.True(t, Principal{ID: "m", Type: PrincipalManager}.IsManager())
	assert.False(t, Principal{ID: "a", Type: PrincipalAttendee}.IsManager())
	assert.False(t, Principal{ID: "x"}.IsManager())
}
