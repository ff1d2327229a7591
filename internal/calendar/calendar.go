package calendar

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a remote event or calendar no longer resolves.
	ErrNotFound = errors.New("calendar: remote resource not found")
	// ErrInvalidRemoteID is returned when a stored remote identifier cannot be parsed.
	ErrInvalidRemoteID = errors.New("calendar: invalid remote id")
)

// Calendar is a handle to a remote calendar.
type Calendar struct {
	ID    string
	Title string
}

// EventPayload is the set of event attributes pushed to the remote calendar.
// It is built from a local record on every transition and never stored.
type EventPayload struct {
	Title       string
	Description string
	Location    string
	StartsAt    time.Time
	EndsAt      time.Time
}

// CalendarClient is a generic interface for remote calendar operations.
// Both the Google Calendar and CalDAV clients implement this interface.
//
// Remote ids returned by CreateEvent are opaque to callers and carry
// everything the client needs to address the event again.
type CalendarClient interface {
	ListCalendars(ctx context.Context) ([]Calendar, error)
	CreateEvent(ctx context.Context, cal Calendar, payload EventPayload) (string, error)
	UpdateEvent(ctx context.Context, remoteID string, payload EventPayload) error
	DeleteEvent(ctx context.Context, remoteID string) error
}
