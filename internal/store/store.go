// Package store persists events in SQLite and runs lifecycle hooks inside
// the transaction that changed the row.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"golang.org/x/exp/slog"
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Hook runs after a row change, before the transaction commits.
// A non-nil error rolls the change back.
type Hook func(ctx context.Context, row *Row) error

// Hooks are the lifecycle callbacks. Nil hooks are skipped.
type Hooks struct {
	AfterCreate  Hook
	AfterUpdate  Hook
	AfterDestroy Hook
}

// Store is a SQLite-backed event table.
type Store struct {
	db     *sql.DB
	column string
	hooks  Hooks
	log    *slog.Logger
}

// Open opens (and if needed creates) the database at path. column names the
// text column that holds remote ids.
func Open(ctx context.Context, path, column string, log *slog.Logger) (*Store, error) {
	if !identifierPattern.MatchString(column) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidColumn, column)
	}
	if log == nil {
		log = slog.Default()
	}

	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Store{
		db:     db,
		column: column,
		log:    log.With(slog.String("component", "store")),
	}

	if err := s.initTables(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize tables: %w", err)
	}

	return s, nil
}

func (s *Store) initTables(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			title TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			location TEXT NOT NULL DEFAULT '',
			starts_at DATETIME NOT NULL,
			ends_at DATETIME NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_events_starts_at ON events(starts_at);
	`)
	if err != nil {
		return err
	}

	exists, err := s.hasColumn(ctx, s.column)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	s.log.Info("adding remote id column", slog.String("column", s.column))
	_, err = s.db.ExecContext(ctx, fmt.Sprintf(`ALTER TABLE events ADD COLUMN %q TEXT NOT NULL DEFAULT ''`, s.column))
	return err
}

func (s *Store) hasColumn(ctx context.Context, name string) (bool, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM pragma_table_info('events')`)
	if err != nil {
		return false, err
	}
	defer rows.Close()

	for rows.Next() {
		var col string
		if err := rows.Scan(&col); err != nil {
			return false, err
		}
		if col == name {
			return true, nil
		}
	}
	return false, rows.Err()
}

// SetHooks replaces the lifecycle hooks.
func (s *Store) SetHooks(h Hooks) {
	s.hooks = h
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Create inserts ev and runs AfterCreate. On success ev.ID and ev.RemoteID
// reflect the committed row; on failure ev is left untouched.
func (s *Store) Create(ctx context.Context, ev *Event) error {
	if err := ev.validate(); err != nil {
		return err
	}

	row := *ev
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO events (title, description, location, starts_at, ends_at) VALUES (?, ?, ?, ?, ?)`,
			row.Title, row.Description, row.Location, row.StartsAt.UTC(), row.EndsAt.UTC())
		if err != nil {
			return fmt.Errorf("failed to insert event: %w", err)
		}
		if row.ID, err = res.LastInsertId(); err != nil {
			return err
		}
		row.RemoteID = ""

		s.log.Debug("event created", slog.Int64("id", row.ID))
		return s.runHook(ctx, s.hooks.AfterCreate, tx, &row)
	})
	if err != nil {
		return err
	}

	*ev = row
	return nil
}

// Update writes ev's fields and runs AfterUpdate. The stored remote id is
// loaded into ev first; Update never writes it.
func (s *Store) Update(ctx context.Context, ev *Event) error {
	if err := ev.validate(); err != nil {
		return err
	}

	row := *ev
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE events SET title = ?, description = ?, location = ?, starts_at = ?, ends_at = ? WHERE id = ?`,
			row.Title, row.Description, row.Location, row.StartsAt.UTC(), row.EndsAt.UTC(), row.ID)
		if err != nil {
			return fmt.Errorf("failed to update event %d: %w", row.ID, err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			return fmt.Errorf("%w: %d", ErrNotFound, row.ID)
		}

		stored, err := s.get(ctx, tx, row.ID)
		if err != nil {
			return err
		}
		row.RemoteID = stored.RemoteID

		s.log.Debug("event updated", slog.Int64("id", row.ID))
		return s.runHook(ctx, s.hooks.AfterUpdate, tx, &row)
	})
	if err != nil {
		return err
	}

	*ev = row
	return nil
}

// Destroy deletes the event and runs AfterDestroy with its last state.
func (s *Store) Destroy(ctx context.Context, id int64) (*Event, error) {
	var ev *Event
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		if ev, err = s.get(ctx, tx, id); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM events WHERE id = ?`, id); err != nil {
			return fmt.Errorf("failed to delete event %d: %w", id, err)
		}

		s.log.Debug("event destroyed", slog.Int64("id", id))
		return s.runHook(ctx, s.hooks.AfterDestroy, tx, ev)
	})
	if err != nil {
		return nil, err
	}
	return ev, nil
}

// Get returns one event.
func (s *Store) Get(ctx context.Context, id int64) (*Event, error) {
	return s.get(ctx, s.db, id)
}

// List returns every event ordered by start time.
func (s *Store) List(ctx context.Context) ([]*Event, error) {
	rows, err := s.db.QueryContext(ctx, s.selectQuery()+` ORDER BY starts_at, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) get(ctx context.Context, q queryer, id int64) (*Event, error) {
	ev, err := scanEvent(q.QueryRowContext(ctx, s.selectQuery()+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get event %d: %w", id, err)
	}
	return ev, nil
}

func (s *Store) selectQuery() string {
	return fmt.Sprintf(`SELECT id, title, description, location, starts_at, ends_at, %q FROM events`, s.column)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEvent(row scanner) (*Event, error) {
	var ev Event
	var startsAt, endsAt time.Time
	if err := row.Scan(&ev.ID, &ev.Title, &ev.Description, &ev.Location, &startsAt, &endsAt, &ev.RemoteID); err != nil {
		return nil, err
	}
	ev.StartsAt = startsAt.Local()
	ev.EndsAt = endsAt.Local()
	return &ev, nil
}

func (s *Store) runHook(ctx context.Context, hook Hook, tx *sql.Tx, ev *Event) error {
	if hook == nil {
		return nil
	}
	return hook(ctx, &Row{Event: ev, tx: tx, column: s.column})
}

func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.log.Warn("rollback failed", slog.String("error", rbErr.Error()))
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
