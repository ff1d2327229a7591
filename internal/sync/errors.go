package sync

import (
	"errors"
	"fmt"

	"github.com/beekhof/calendar-hooks/internal/calendar"
)

var (
	ErrCalendarNotFound      = errors.New("calendar not found")
	ErrRemoteOperationFailed = errors.New("remote calendar operation failed")
	ErrStaleRemoteID         = errors.New("remote event no longer exists")
	ErrNoMapping             = errors.New("no event mapping configured")
	ErrNoRemoteIDAccessor    = errors.New("no remote id accessor configured")
)

// Op names the collaborator call behind a RemoteError.
type Op string

const (
	OpListCalendars Op = "list calendars"
	OpCreate        Op = "create"
	OpUpdate        Op = "update"
	OpDelete        Op = "delete"
)

// RemoteError wraps a failed collaborator call.
// It matches ErrRemoteOperationFailed, and ErrStaleRemoteID when the remote
// side reported the event as gone.
type RemoteError struct {
	Op       Op
	RemoteID string
	Err      error
}

func (e *RemoteError) Error() string {
	if e.RemoteID == "" {
		return fmt.Sprintf("%s: %s: %v", ErrRemoteOperationFailed, e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %s %s: %v", ErrRemoteOperationFailed, e.Op, e.RemoteID, e.Err)
}

func (e *RemoteError) Unwrap() []error {
	errs := []error{ErrRemoteOperationFailed, e.Err}
	if (e.Op == OpUpdate || e.Op == OpDelete) && errors.Is(e.Err, calendar.ErrNotFound) {
		errs = append(errs, ErrStaleRemoteID)
	}
	return errs
}
