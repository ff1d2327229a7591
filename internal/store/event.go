package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Event is a locally scheduled event.
type Event struct {
	ID          int64
	Title       string
	Description string
	Location    string
	StartsAt    time.Time
	EndsAt      time.Time
	RemoteID    string
}

func (e *Event) EventTitle() string       { return e.Title }
func (e *Event) EventStartsAt() time.Time { return e.StartsAt }
func (e *Event) EventEndsAt() time.Time   { return e.EndsAt }

func (e *Event) validate() error {
	if strings.TrimSpace(e.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidEvent)
	}
	if e.StartsAt.IsZero() || e.EndsAt.IsZero() {
		return fmt.Errorf("%w: start and end are required", ErrInvalidEvent)
	}
	if e.EndsAt.Before(e.StartsAt) {
		return fmt.Errorf("%w: ends at %s before it starts at %s", ErrInvalidEvent,
			e.EndsAt.Format(time.RFC3339), e.StartsAt.Format(time.RFC3339))
	}
	return nil
}

// Row is the event handed to hooks. It is bound to the transaction that
// triggered the hook.
type Row struct {
	*Event

	tx     *sql.Tx
	column string
}

// SetRemoteID writes only the remote id column. It does not run hooks.
func (r *Row) SetRemoteID(ctx context.Context, remoteID string) error {
	query := fmt.Sprintf(`UPDATE events SET %q = ? WHERE id = ?`, r.column)
	if _, err := r.tx.ExecContext(ctx, query, remoteID, r.ID); err != nil {
		return fmt.Errorf("failed to set remote id for event %d: %w", r.ID, err)
	}
	r.RemoteID = remoteID
	return nil
}
