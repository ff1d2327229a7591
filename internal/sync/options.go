package sync

import (
	"context"
	"time"

	"github.com/beekhof/calendar-hooks/internal/calendar"

	"golang.org/x/exp/slog"
)

// DefaultCalendar selects the first calendar the client lists.
const DefaultCalendar = "default"

// Schedulable records can use DefaultMapping.
type Schedulable interface {
	EventTitle() string
	EventStartsAt() time.Time
	EventEndsAt() time.Time
}

// Mapping builds the remote payload for a record.
type Mapping[R any] func(R) calendar.EventPayload

// Predicate gates one kind of remote call for a record.
type Predicate[R any] func(R) bool

// Accessor reads and persists the remote id stored on a record.
// Set must write only that one field and must not re-trigger update hooks.
type Accessor[R any] struct {
	Get func(R) string
	Set func(ctx context.Context, rec R, remoteID string) error
}

// Options configures an Adapter. They are fixed for the adapter's lifetime.
type Options[R any] struct {
	// Calendar is DefaultCalendar (or empty) or the exact title of a calendar.
	Calendar string
	// Mapping defaults to DefaultMapping when R implements Schedulable.
	Mapping  Mapping[R]
	RemoteID Accessor[R]

	// Nil predicates fall back to the defaults: create and update always,
	// delete only when a remote id is stored.
	CreateEnabled Predicate[R]
	UpdateEnabled Predicate[R]
	DeleteEnabled Predicate[R]

	// Suppress turns every predicate off, e.g. when running under tests.
	Suppress bool

	Logger *slog.Logger
}

// DefaultMapping maps title, start and end straight through.
func DefaultMapping[R Schedulable](rec R) calendar.EventPayload {
	return calendar.EventPayload{
		Title:    rec.EventTitle(),
		StartsAt: rec.EventStartsAt(),
		EndsAt:   rec.EventEndsAt(),
	}
}

func always[R any](R) bool { return true }
