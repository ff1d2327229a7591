package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/beekhof/calendar-hooks/internal/calendar"
	"github.com/beekhof/calendar-hooks/internal/config"
	"github.com/beekhof/calendar-hooks/internal/store"
	"github.com/beekhof/calendar-hooks/internal/sync"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/slog"
)

type recordingClient struct {
	calendars []calendar.Calendar
	createErr error
	updateErr error

	created []calendar.EventPayload
	updated map[string]calendar.EventPayload
	deleted []string
}

func newRecordingClient() *recordingClient {
	return &recordingClient{
		calendars: []calendar.Calendar{{ID: "primary", Title: "me@example.com"}, {ID: "team", Title: "Team"}},
		updated:   make(map[string]calendar.EventPayload),
	}
}

func (c *recordingClient) ListCalendars(ctx context.Context) ([]calendar.Calendar, error) {
	return c.calendars, nil
}

func (c *recordingClient) CreateEvent(ctx context.Context, cal calendar.Calendar, payload calendar.EventPayload) (string, error) {
	if c.createErr != nil {
		return "", c.createErr
	}
	c.created = append(c.created, payload)
	return fmt.Sprintf("%s/evt-%d", cal.ID, len(c.created)), nil
}

func (c *recordingClient) UpdateEvent(ctx context.Context, remoteID string, payload calendar.EventPayload) error {
	if c.updateErr != nil {
		return c.updateErr
	}
	c.updated[remoteID] = payload
	return nil
}

func (c *recordingClient) DeleteEvent(ctx context.Context, remoteID string) error {
	c.deleted = append(c.deleted, remoteID)
	return nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Backend:      config.BackendGoogle,
		Calendar:     config.DefaultCalendar,
		Column:       config.DefaultColumn,
		DatabasePath: filepath.Join(t.TempDir(), "events.db"),
		Environment:  "development",
		SuppressIn:   []string{"test"},
		LogLevel:     "debug",
	}
}

func newTestApp(t *testing.T, cfg *config.Config, client calendar.CalendarClient) *App {
	t.Helper()
	a, err := NewWithClient(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)), client)
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return a
}

func sampleEvent() *store.Event {
	start := time.Date(2024, 6, 3, 14, 0, 0, 0, time.UTC)
	return &store.Event{
		Title:       "Design review",
		Description: "Agenda in doc",
		Location:    "Room 2",
		StartsAt:    start,
		EndsAt:      start.Add(45 * time.Minute),
	}
}

func TestApp_Lifecycle(t *testing.T) {
	ctx := context.Background()
	client := newRecordingClient()
	a := newTestApp(t, testConfig(t), client)

	ev := sampleEvent()
	require.NoError(t, a.Store.Create(ctx, ev))
	assert.Equal(t, "primary/evt-1", ev.RemoteID)

	stored, err := a.Store.Get(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, "primary/evt-1", stored.RemoteID)

	require.Len(t, client.created, 1)
	assert.Equal(t, "Design review", client.created[0].Title)
	assert.Empty(t, client.created[0].Description, "details are off by default")

	ev.Title = "Design review (moved)"
	require.NoError(t, a.Store.Update(ctx, ev))
	assert.Equal(t, "Design review (moved)", client.updated["primary/evt-1"].Title)

	_, err = a.Store.Destroy(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"primary/evt-1"}, client.deleted)
}

func TestApp_IncludeDetailsAndNamedCalendar(t *testing.T) {
	cfg := testConfig(t)
	cfg.IncludeDetails = true
	cfg.Calendar = "Team"
	client := newRecordingClient()
	a := newTestApp(t, cfg, client)

	ev := sampleEvent()
	require.NoError(t, a.Store.Create(context.Background(), ev))

	assert.Equal(t, "team/evt-1", ev.RemoteID)
	require.Len(t, client.created, 1)
	assert.Equal(t, "Agenda in doc", client.created[0].Description)
	assert.Equal(t, "Room 2", client.created[0].Location)
}

func TestApp_RemoteFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	client := newRecordingClient()
	client.createErr = errors.New("backend unavailable")
	a := newTestApp(t, testConfig(t), client)

	err := a.Store.Create(ctx, sampleEvent())
	assert.ErrorIs(t, err, sync.ErrRemoteOperationFailed)

	events, err := a.Store.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestApp_StaleRemoteIDOnUpdate(t *testing.T) {
	ctx := context.Background()
	client := newRecordingClient()
	a := newTestApp(t, testConfig(t), client)

	ev := sampleEvent()
	require.NoError(t, a.Store.Create(ctx, ev))

	client.updateErr = fmt.Errorf("%w: deleted upstream", calendar.ErrNotFound)
	ev.Title = "Renamed"
	err := a.Store.Update(ctx, ev)
	assert.ErrorIs(t, err, sync.ErrStaleRemoteID)

	stored, err := a.Store.Get(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, "Design review", stored.Title)
}

func TestApp_Suppressed(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	cfg.Environment = "test"

	// New must not build a backend client when suppressed.
	a, err := New(ctx, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)), Options{})
	require.NoError(t, err)
	defer a.Close()
	assert.Nil(t, a.Client)

	ev := sampleEvent()
	require.NoError(t, a.Store.Create(ctx, ev))
	assert.Empty(t, ev.RemoteID)
	require.NoError(t, a.Store.Update(ctx, ev))
	_, err = a.Store.Destroy(ctx, ev.ID)
	require.NoError(t, err)
}

func TestNewCalendarClient(t *testing.T) {
	ctx := context.Background()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	notTTY, err := os.Open(os.DevNull)
	require.NoError(t, err)
	defer notTTY.Close()
	opts := Options{Stdin: notTTY, Out: io.Discard}

	t.Run("caldav with password", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Backend = config.BackendCalDAV
		cfg.CalDAVServerURL = "https://caldav.example.com"
		cfg.CalDAVUsername = "me"
		cfg.CalDAVPassword = "app-password"

		client, err := NewCalendarClient(ctx, cfg, log, opts)
		require.NoError(t, err)
		assert.IsType(t, &calendar.CalDAVClient{}, client)
	})

	t.Run("caldav without password and no terminal", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Backend = config.BackendCalDAV
		cfg.CalDAVServerURL = "https://caldav.example.com"
		cfg.CalDAVUsername = "me"

		_, err := NewCalendarClient(ctx, cfg, log, opts)
		assert.ErrorIs(t, err, ErrPasswordRequired)
	})

	t.Run("google with missing credentials", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.GoogleCredentialsPath = filepath.Join(t.TempDir(), "missing.json")
		cfg.GoogleTokenPath = filepath.Join(t.TempDir(), "token.json")

		_, err := NewCalendarClient(ctx, cfg, log, opts)
		assert.Error(t, err)
	})

	t.Run("google with saved token", func(t *testing.T) {
		dir := t.TempDir()
		cfg := testConfig(t)
		cfg.GoogleCredentialsPath = filepath.Join(dir, "credentials.json")
		cfg.GoogleTokenPath = filepath.Join(dir, "token.json")
		require.NoError(t, os.WriteFile(cfg.GoogleCredentialsPath, []byte(`{"installed":{"client_id":"id","client_secret":"secret"}}`), 0600))
		require.NoError(t, os.WriteFile(cfg.GoogleTokenPath, []byte(`{"access_token":"a","token_type":"Bearer","refresh_token":"r","expiry":"2099-01-01T00:00:00Z"}`), 0600))

		client, err := NewCalendarClient(ctx, cfg, log, opts)
		require.NoError(t, err)
		assert.IsType(t, &calendar.GoogleClient{}, client)
	})
}
