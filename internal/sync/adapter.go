package sync

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"github.com/beekhof/calendar-hooks/internal/calendar"

	"golang.org/x/exp/slog"
)

// Transition is a lifecycle change of a local record.
type Transition int

const (
	Created Transition = iota
	Updated
	Destroyed
)

func (t Transition) String() string {
	switch t {
	case Created:
		return "created"
	case Updated:
		return "updated"
	case Destroyed:
		return "destroyed"
	default:
		return fmt.Sprintf("Transition(%d)", int(t))
	}
}

// Decision is the remote operation chosen for a transition.
type Decision int

const (
	NoOp Decision = iota
	Create
	Update
	Delete
)

func (d Decision) String() string {
	switch d {
	case NoOp:
		return "noop"
	case Create:
		return "create"
	case Update:
		return "update"
	case Delete:
		return "delete"
	default:
		return fmt.Sprintf("Decision(%d)", int(d))
	}
}

// Adapter keeps one remote calendar event in step with each local record.
// It is stateless between calls; the only state is the remote id on the record.
type Adapter[R any] struct {
	client   calendar.CalendarClient
	selector string
	mapping  Mapping[R]
	remoteID Accessor[R]

	createEnabled Predicate[R]
	updateEnabled Predicate[R]
	deleteEnabled Predicate[R]

	log *slog.Logger
}

// New creates an Adapter. It fails if no mapping can be derived for R or the
// remote id accessor is incomplete.
func New[R any](client calendar.CalendarClient, opts Options[R]) (*Adapter[R], error) {
	if opts.RemoteID.Get == nil || opts.RemoteID.Set == nil {
		return nil, ErrNoRemoteIDAccessor
	}

	mapping := opts.Mapping
	if mapping == nil {
		if !reflect.TypeFor[R]().Implements(reflect.TypeFor[Schedulable]()) {
			return nil, fmt.Errorf("%w: %s does not implement Schedulable", ErrNoMapping, reflect.TypeFor[R]())
		}
		mapping = func(rec R) calendar.EventPayload {
			return DefaultMapping(any(rec).(Schedulable))
		}
	}

	selector := opts.Calendar
	if selector == "" {
		selector = DefaultCalendar
	}

	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	a := &Adapter[R]{
		client:   client,
		selector: selector,
		mapping:  mapping,
		remoteID: opts.RemoteID,
		log:      log.With(slog.String("component", "calendar_sync")),
	}

	a.createEnabled = gate(opts.CreateEnabled, always[R], opts.Suppress)
	a.updateEnabled = gate(opts.UpdateEnabled, always[R], opts.Suppress)
	a.deleteEnabled = gate(opts.DeleteEnabled, func(rec R) bool {
		return opts.RemoteID.Get(rec) != ""
	}, opts.Suppress)

	return a, nil
}

func gate[R any](p, fallback Predicate[R], suppress bool) Predicate[R] {
	if p == nil {
		p = fallback
	}
	if suppress {
		return func(R) bool { return false }
	}
	return p
}

// Decide returns the remote operation a transition of rec calls for.
func (a *Adapter[R]) Decide(t Transition, rec R) Decision {
	remoteID := a.remoteID.Get(rec)

	switch t {
	case Created:
		if a.createEnabled(rec) {
			return Create
		}
	case Updated:
		if a.updateEnabled(rec) {
			// An empty id means an earlier create never landed.
			if remoteID == "" {
				return Create
			}
			return Update
		}
		if remoteID != "" && a.deleteEnabled(rec) {
			return Delete
		}
	case Destroyed:
		if remoteID != "" && a.deleteEnabled(rec) {
			return Delete
		}
	}

	return NoOp
}

// OnCreate is the after-create hook.
func (a *Adapter[R]) OnCreate(ctx context.Context, rec R) error {
	return a.apply(ctx, Created, rec)
}

// OnUpdate is the after-update hook.
func (a *Adapter[R]) OnUpdate(ctx context.Context, rec R) error {
	return a.apply(ctx, Updated, rec)
}

// OnDestroy is the after-destroy hook. The record is already on its way out,
// so the remote id is not cleared.
func (a *Adapter[R]) OnDestroy(ctx context.Context, rec R) error {
	return a.apply(ctx, Destroyed, rec)
}

func (a *Adapter[R]) apply(ctx context.Context, t Transition, rec R) error {
	decision := a.Decide(t, rec)
	a.log.Debug("sync decision",
		slog.String("transition", t.String()),
		slog.String("decision", decision.String()),
		slog.String("remote_id", a.remoteID.Get(rec)),
	)

	switch decision {
	case Create:
		return a.create(ctx, rec)
	case Update:
		return a.update(ctx, rec)
	case Delete:
		if err := a.delete(ctx, rec); err != nil {
			return err
		}
		if t == Updated {
			if err := a.remoteID.Set(ctx, rec, ""); err != nil {
				return fmt.Errorf("failed to clear remote id: %w", err)
			}
		}
	}

	return nil
}

func (a *Adapter[R]) create(ctx context.Context, rec R) error {
	cal, err := a.ResolveCalendar(ctx)
	if err != nil {
		return err
	}

	remoteID, err := a.client.CreateEvent(ctx, cal, a.mapping(rec))
	if err != nil {
		return &RemoteError{Op: OpCreate, Err: err}
	}
	a.log.Info("created remote event", slog.String("calendar", cal.Title), slog.String("remote_id", remoteID))

	if err := a.remoteID.Set(ctx, rec, remoteID); err != nil {
		return fmt.Errorf("failed to store remote id %s: %w", remoteID, err)
	}
	return nil
}

func (a *Adapter[R]) update(ctx context.Context, rec R) error {
	remoteID := a.remoteID.Get(rec)
	if err := a.client.UpdateEvent(ctx, remoteID, a.mapping(rec)); err != nil {
		return &RemoteError{Op: OpUpdate, RemoteID: remoteID, Err: err}
	}
	a.log.Info("updated remote event", slog.String("remote_id", remoteID))
	return nil
}

func (a *Adapter[R]) delete(ctx context.Context, rec R) error {
	remoteID := a.remoteID.Get(rec)
	if err := a.client.DeleteEvent(ctx, remoteID); err != nil {
		return &RemoteError{Op: OpDelete, RemoteID: remoteID, Err: err}
	}
	a.log.Info("deleted remote event", slog.String("remote_id", remoteID))
	return nil
}

// ResolveCalendar looks up the configured calendar. The default selector
// takes the first calendar listed; a title takes the first exact match.
func (a *Adapter[R]) ResolveCalendar(ctx context.Context) (calendar.Calendar, error) {
	calendars, err := a.client.ListCalendars(ctx)
	if err != nil {
		return calendar.Calendar{}, &RemoteError{Op: OpListCalendars, Err: err}
	}

	if strings.EqualFold(a.selector, DefaultCalendar) {
		if len(calendars) == 0 {
			return calendar.Calendar{}, fmt.Errorf("%w: account has no calendars", ErrCalendarNotFound)
		}
		return calendars[0], nil
	}

	for _, cal := range calendars {
		if cal.Title == a.selector {
			return cal, nil
		}
	}

	return calendar.Calendar{}, fmt.Errorf("%w: %q", ErrCalendarNotFound, a.selector)
}
