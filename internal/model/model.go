// Package model defines the core domain types for the event registration system.
package model

import "time"

// PrincipalType distinguishes event managers from attendees.
type PrincipalType string

const (
	PrincipalManager  PrincipalType = "manager"
	PrincipalAttendee PrincipalType = "attendee"
)

// Principal is the authenticated caller as supplied by the identity provider.
type Principal struct {
	ID   string        `json:"id"`
	Type PrincipalType `json:"type"`
}

// IsManager reports whether the principal may create and manage events.
func (p Principal) IsManager() bool {
	return p.Type == PrincipalManager
}

// CustomField is an extra named attribute attached to an event.
type CustomField struct {
	Name  string `json:"name"`
	Type  string `json:"type"`
	Value string `json:"value"`
}

// Event represents a registrable event owned by a manager.
type Event struct {
	ID                   string        `json:"id"`
	EventName            string        `json:"eventName"`
	Description          string        `json:"description"`
	ImageURL             string        `json:"imageUrl,omitempty"`
	Price                float64       `json:"price"`
	Venue                string        `json:"venue"`
	Contact              string        `json:"contact"`
	EventTime            string        `json:"eventTime"`
	Capacity             int           `json:"capacity"`
	RegisteredCount      int           `json:"registeredCount"`
	RegistrationDeadline time.Time     `json:"registrationDeadline"`
	EventDate            time.Time     `json:"eventDate"`
	OwnerID              string        `json:"ownerId"`
	CustomFields         []CustomField `json:"customFields"`
	CreatedAt            time.Time     `json:"createdAt"`
}

// Remaining returns the number of available slots.
func (e *Event) Remaining() int {
	return e.Capacity - e.RegisteredCount
}

// IsFull returns true when no slots remain.
func (e *Event) IsFull() bool {
	return e.RegisteredCount >= e.Capacity
}

// RegistrationOpen reports whether a registration submitted at t is in time.
func (e *Event) RegistrationOpen(t time.Time) bool {
	return !t.After(e.RegistrationDeadline)
}

// RegistrationStatus is the state of a registration. Only confirmed
// registrations are ever persisted.
type RegistrationStatus string

const StatusConfirmed RegistrationStatus = "confirmed"

// Registration represents an attendee's admitted registration for an event.
type Registration struct {
	ID                       string             `json:"id"`
	EventID                  string             `json:"eventId"`
	RegistrantEmail          string             `json:"registrantEmail"`
	Name                     string             `json:"name"`
	PhoneNumber              string             `json:"phoneNumber,omitempty"`
	TransactionScreenshotURL string             `json:"transactionScreenshotUrl,omitempty"`
	SubmittedAt              time.Time          `json:"submittedAt"`
	Status                   RegistrationStatus `json:"status"`
}

// CreateEventRequest is the payload for creating a new event.
type CreateEventRequest struct {
	EventName            string        `json:"eventName"`
	Description          string        `json:"description"`
	ImageURL             string        `json:"imageUrl"`
	Price                float64       `json:"price"`
	Venue                string        `json:"venue"`
	Contact              string        `json:"contact"`
	EventTime            string        `json:"eventTime"`
	Capacity             int           `json:"capacity"`
	RegistrationDeadline time.Time     `json:"registrationDeadline"`
	EventDate            time.Time     `json:"eventDate"`
	CustomFields         []CustomField `json:"customFields"`
}

// EventPatch is a partial metadata update. Nil fields are left unchanged.
//
// Capacity and RegisteredCount are decoded only so that an attempt to set
// them can be rejected explicitly instead of silently dropped.
type EventPatch struct {
	EventName            *string        `json:"eventName"`
	Description          *string        `json:"description"`
	ImageURL             *string        `json:"imageUrl"`
	Price                *float64       `json:"price"`
	Venue                *string        `json:"venue"`
	Contact              *string        `json:"contact"`
	EventTime            *string        `json:"eventTime"`
	RegistrationDeadline *time.Time     `json:"registrationDeadline"`
	EventDate            *time.Time     `json:"eventDate"`
	CustomFields         *[]CustomField `json:"customFields"`

	Capacity        *int `json:"capacity"`
	RegisteredCount *int `json:"registeredCount"`
}

// Apply returns a copy of e with the patch's metadata fields applied.
func (p EventPatch) Apply(e Event) Event {
	if p.EventName != nil {
		e.EventName = *p.EventName
	}
	if p.Description != nil {
		e.Description = *p.Description
	}
	if p.ImageURL != nil {
		e.ImageURL = *p.ImageURL
	}
	if p.Price != nil {
		e.Price = *p.Price
	}
	if p.Venue != nil {
		e.Venue = *p.Venue
	}
	if p.Contact != nil {
		e.Contact = *p.Contact
	}
	if p.EventTime != nil {
		e.EventTime = *p.EventTime
	}
	if p.RegistrationDeadline != nil {
		e.RegistrationDeadline = *p.RegistrationDeadline
	}
	if p.EventDate != nil {
		e.EventDate = *p.EventDate
	}
	if p.CustomFields != nil {
		e.CustomFields = append([]CustomField(nil), (*p.CustomFields)...)
	}
	return e
}

// RegisterRequest is the payload for registering for an event.
type RegisterRequest struct {
	RegistrantEmail          string `json:"registrantEmail"`
	Name                     string `json:"name"`
	PhoneNumber              string `json:"phoneNumber"`
	TransactionScreenshotURL string `json:"transactionScreenshotUrl"`
}

// ErrorBody describes a failed request.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Envelope is the uniform JSON response wrapper.
type Envelope struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *ErrorBody `json:"error,omitempty"`
}
