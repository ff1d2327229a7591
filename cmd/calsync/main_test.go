package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTime(t *testing.T) {
	got, err := parseTime("2024-05-01T09:30:00+02:00")
	require.NoError(t, err)
	assert.True(t, got.Equal(time.Date(2024, 5, 1, 7, 30, 0, 0, time.UTC)))

	got, err = parseTime("2024-05-01 09:30")
	require.NoError(t, err)
	assert.Equal(t, time.Local, got.Location())
	assert.Equal(t, 9, got.Hour())

	_, err = parseTime("tomorrow")
	assert.Error(t, err)
}

func TestParseID(t *testing.T) {
	id, err := parseID("12")
	require.NoError(t, err)
	assert.Equal(t, int64(12), id)

	for _, arg := range []string{"0", "-1", "abc"} {
		_, err := parseID(arg)
		assert.Error(t, err, arg)
	}
}

// runCLI executes calsync in a suppressed environment so no backend is contacted.
func runCLI(t *testing.T, dbPath string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--env", "test", "--database", dbPath}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCLI_EventLifecycleSuppressed(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("CALENDAR_BACKEND", "google")
	t.Setenv("GOOGLE_CREDENTIALS_PATH", "")
	t.Setenv("GOOGLE_TOKEN_PATH", "")
	t.Setenv("APP_ENV", "")
	dbPath := filepath.Join(t.TempDir(), "events.db")

	out, err := runCLI(t, dbPath, "create", "--title", "Offsite", "--starts-at", "2024-09-10 09:00", "--ends-at", "2024-09-10 17:00")
	require.NoError(t, err)
	assert.Contains(t, out, "Created event 1")
	assert.Contains(t, out, "(not synced)")

	out, err = runCLI(t, dbPath, "update", "1", "--title", "Offsite (day 1)")
	require.NoError(t, err)
	assert.Contains(t, out, "Updated event 1")

	out, err = runCLI(t, dbPath, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Offsite (day 1)")
	assert.Contains(t, out, "2024-09-10 09:00")

	out, err = runCLI(t, dbPath, "destroy", "1")
	require.NoError(t, err)
	assert.Contains(t, out, `Destroyed event 1 "Offsite (day 1)"`)

	out, err = runCLI(t, dbPath, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No events")
}

func TestCLI_CreateValidation(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("CALENDAR_BACKEND", "google")
	t.Setenv("GOOGLE_CREDENTIALS_PATH", "")
	t.Setenv("GOOGLE_TOKEN_PATH", "")
	dbPath := filepath.Join(t.TempDir(), "events.db")

	_, err := runCLI(t, dbPath, "create", "--title", "Backwards", "--starts-at", "2024-09-10 17:00", "--ends-at", "2024-09-10 09:00")
	assert.Error(t, err)

	_, err = runCLI(t, dbPath, "update", "99", "--title", "Missing")
	assert.Error(t, err)
}
