package store

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "events.db"), "google_calendar_remote_id", nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testEvent(title string) *Event {
	start := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	return &Event{Title: title, StartsAt: start, EndsAt: start.Add(time.Hour)}
}

func TestOpen_InvalidColumn(t *testing.T) {
	for _, column := range []string{"", "1abc", "remote id", `x"; DROP TABLE events; --`} {
		_, err := Open(context.Background(), filepath.Join(t.TempDir(), "events.db"), column, nil)
		assert.ErrorIs(t, err, ErrInvalidColumn, "column %q", column)
	}
}

func TestOpen_AddsColumnToExistingTable(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "events.db")

	first, err := Open(ctx, path, "google_calendar_remote_id", nil)
	require.NoError(t, err)
	ev := testEvent("Kickoff")
	require.NoError(t, first.Create(ctx, ev))
	require.NoError(t, first.Close())

	second, err := Open(ctx, path, "caldav_href", nil)
	require.NoError(t, err)
	defer second.Close()

	got, err := second.Get(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, "Kickoff", got.Title)
	assert.Empty(t, got.RemoteID)
}

func TestCreateGetList(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	later := testEvent("Later")
	later.StartsAt = later.StartsAt.Add(24 * time.Hour)
	later.EndsAt = later.EndsAt.Add(24 * time.Hour)
	earlier := testEvent("Earlier")
	earlier.Description = "notes"
	earlier.Location = "HQ"

	require.NoError(t, s.Create(ctx, later))
	require.NoError(t, s.Create(ctx, earlier))
	assert.NotZero(t, later.ID)
	assert.NotEqual(t, later.ID, earlier.ID)

	got, err := s.Get(ctx, earlier.ID)
	require.NoError(t, err)
	assert.Equal(t, "notes", got.Description)
	assert.Equal(t, "HQ", got.Location)
	assert.True(t, got.StartsAt.Equal(earlier.StartsAt))
	assert.True(t, got.EndsAt.Equal(earlier.EndsAt))

	events, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "Earlier", events[0].Title)
	assert.Equal(t, "Later", events[1].Title)
}

func TestCreate_Validation(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	blank := testEvent("  ")
	assert.ErrorIs(t, s.Create(ctx, blank), ErrInvalidEvent)

	backwards := testEvent("Backwards")
	backwards.EndsAt = backwards.StartsAt.Add(-time.Minute)
	assert.ErrorIs(t, s.Create(ctx, backwards), ErrInvalidEvent)

	instant := testEvent("Instant")
	instant.EndsAt = instant.StartsAt
	assert.NoError(t, s.Create(ctx, instant))
}

func TestGet_NotFound(t *testing.T) {
	s := openTestStore(t)
	_, err := s.Get(context.Background(), 42)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestHooks_SetRemoteIDDoesNotReenter(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	updates := 0
	s.SetHooks(Hooks{
		AfterCreate: func(ctx context.Context, row *Row) error {
			return row.SetRemoteID(ctx, "remote-1")
		},
		AfterUpdate: func(ctx context.Context, row *Row) error {
			updates++
			return nil
		},
	})

	ev := testEvent("Sync me")
	require.NoError(t, s.Create(ctx, ev))
	assert.Equal(t, "remote-1", ev.RemoteID)
	assert.Zero(t, updates)

	got, err := s.Get(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, "remote-1", got.RemoteID)
}

func TestHooks_ErrorRollsBack(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	hookErr := errors.New("remote unavailable")

	ev := testEvent("Original")
	require.NoError(t, s.Create(ctx, ev))

	s.SetHooks(Hooks{
		AfterCreate:  func(ctx context.Context, row *Row) error { return hookErr },
		AfterUpdate:  func(ctx context.Context, row *Row) error { return hookErr },
		AfterDestroy: func(ctx context.Context, row *Row) error { return hookErr },
	})

	t.Run("create", func(t *testing.T) {
		fresh := testEvent("Rejected")
		assert.ErrorIs(t, s.Create(ctx, fresh), hookErr)
		assert.Zero(t, fresh.ID)

		events, err := s.List(ctx)
		require.NoError(t, err)
		assert.Len(t, events, 1)
	})

	t.Run("update", func(t *testing.T) {
		changed := *ev
		changed.Title = "Changed"
		assert.ErrorIs(t, s.Update(ctx, &changed), hookErr)

		got, err := s.Get(ctx, ev.ID)
		require.NoError(t, err)
		assert.Equal(t, "Original", got.Title)
	})

	t.Run("destroy", func(t *testing.T) {
		_, err := s.Destroy(ctx, ev.ID)
		assert.ErrorIs(t, err, hookErr)

		_, err = s.Get(ctx, ev.ID)
		assert.NoError(t, err)
	})
}

func TestUpdate_LoadsStoredRemoteID(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	s.SetHooks(Hooks{
		AfterCreate: func(ctx context.Context, row *Row) error {
			return row.SetRemoteID(ctx, "remote-7")
		},
	})
	ev := testEvent("Weekly")
	require.NoError(t, s.Create(ctx, ev))

	var seen string
	s.SetHooks(Hooks{
		AfterUpdate: func(ctx context.Context, row *Row) error {
			seen = row.RemoteID
			return nil
		},
	})

	stale := &Event{ID: ev.ID, Title: "Weekly (moved)", StartsAt: ev.StartsAt.Add(time.Hour), EndsAt: ev.EndsAt.Add(time.Hour)}
	require.NoError(t, s.Update(ctx, stale))
	assert.Equal(t, "remote-7", seen)
	assert.Equal(t, "remote-7", stale.RemoteID)
}

func TestUpdate_NotFound(t *testing.T) {
	s := openTestStore(t)
	ev := testEvent("Ghost")
	ev.ID = 99
	assert.ErrorIs(t, s.Update(context.Background(), ev), ErrNotFound)
}

func TestDestroy(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	ev := testEvent("Bye")
	require.NoError(t, s.Create(ctx, ev))

	var destroyed *Row
	s.SetHooks(Hooks{
		AfterDestroy: func(ctx context.Context, row *Row) error {
			destroyed = row
			return nil
		},
	})

	got, err := s.Destroy(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, "Bye", got.Title)
	require.NotNil(t, destroyed)
	assert.Equal(t, ev.ID, destroyed.ID)

	_, err = s.Get(ctx, ev.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.Destroy(ctx, ev.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.False(t, errors.Is(err, sql.ErrNoRows))
}
