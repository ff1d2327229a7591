// Package app wires configuration, the event store, a calendar backend and
// the sync adapter together.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/beekhof/calendar-hooks/internal/auth"
	"github.com/beekhof/calendar-hooks/internal/calendar"
	"github.com/beekhof/calendar-hooks/internal/config"
	"github.com/beekhof/calendar-hooks/internal/store"
	"github.com/beekhof/calendar-hooks/internal/sync"

	"golang.org/x/exp/slog"
	"golang.org/x/term"
)

var ErrPasswordRequired = errors.New("caldav_password must be provided via CALDAV_PASSWORD environment variable, config file, or an interactive terminal")

// Options control how the app talks to the user while connecting.
type Options struct {
	// NoBrowser reads the OAuth code from Stdin instead of a loopback callback.
	NoBrowser bool
	Stdin     *os.File
	Out       io.Writer
}

func (o Options) withDefaults() Options {
	if o.Stdin == nil {
		o.Stdin = os.Stdin
	}
	if o.Out == nil {
		o.Out = os.Stderr
	}
	return o
}

// App holds the wired components for one CLI invocation.
type App struct {
	Config  *config.Config
	Log     *slog.Logger
	Store   *store.Store
	Client  calendar.CalendarClient
	Adapter *sync.Adapter[*store.Row]
}

// New connects to the configured calendar backend and opens the store.
func New(ctx context.Context, cfg *config.Config, log *slog.Logger, opts Options) (*App, error) {
	opts = opts.withDefaults()

	var client calendar.CalendarClient
	var err error
	// A suppressed environment never calls the backend, so skip the login.
	if !cfg.Suppressed() {
		client, err = NewCalendarClient(ctx, cfg, log, opts)
		if err != nil {
			return nil, err
		}
	}

	return NewWithClient(ctx, cfg, log, client)
}

// NewWithClient is New with an already constructed calendar client.
func NewWithClient(ctx context.Context, cfg *config.Config, log *slog.Logger, client calendar.CalendarClient) (*App, error) {
	st, err := store.Open(ctx, cfg.DatabasePath, cfg.Column, log)
	if err != nil {
		return nil, err
	}

	adapter, err := sync.New(client, sync.Options[*store.Row]{
		Calendar: cfg.Calendar,
		Mapping:  EventMapping(cfg.IncludeDetails),
		RemoteID: RemoteIDAccessor(),
		Suppress: cfg.Suppressed(),
		Logger:   log,
	})
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to create sync adapter: %w", err)
	}

	st.SetHooks(store.Hooks{
		AfterCreate:  adapter.OnCreate,
		AfterUpdate:  adapter.OnUpdate,
		AfterDestroy: adapter.OnDestroy,
	})

	log.Debug("app ready",
		slog.String("backend", cfg.Backend),
		slog.String("calendar", cfg.Calendar),
		slog.String("environment", cfg.Environment),
		slog.Bool("suppressed", cfg.Suppressed()),
	)

	return &App{
		Config:  cfg,
		Log:     log,
		Store:   st,
		Client:  client,
		Adapter: adapter,
	}, nil
}

func (a *App) Close() error {
	return a.Store.Close()
}

// EventMapping maps title and times, plus description and location when
// includeDetails is set.
func EventMapping(includeDetails bool) sync.Mapping[*store.Row] {
	return func(row *store.Row) calendar.EventPayload {
		payload := sync.DefaultMapping(row)
		if includeDetails {
			payload.Description = row.Description
			payload.Location = row.Location
		}
		return payload
	}
}

// RemoteIDAccessor stores remote ids in the store's configured column.
func RemoteIDAccessor() sync.Accessor[*store.Row] {
	return sync.Accessor[*store.Row]{
		Get: func(row *store.Row) string { return row.RemoteID },
		Set: func(ctx context.Context, row *store.Row, remoteID string) error {
			return row.SetRemoteID(ctx, remoteID)
		},
	}
}

// NewCalendarClient builds the backend named by cfg.Backend.
func NewCalendarClient(ctx context.Context, cfg *config.Config, log *slog.Logger, opts Options) (calendar.CalendarClient, error) {
	opts = opts.withDefaults()

	switch cfg.Backend {
	case config.BackendGoogle:
		clientID, clientSecret, err := config.LoadGoogleCredentials(cfg.GoogleCredentialsPath)
		if err != nil {
			return nil, err
		}

		oauthConfig := auth.NewOAuthConfig(clientID, clientSecret)
		tokenStore := auth.TokenFile(cfg.GoogleTokenPath)
		authOpts := auth.Options{Out: opts.Out, Logger: log}

		var httpClient *http.Client
		if opts.NoBrowser {
			httpClient, err = auth.GetAuthenticatedClientWithReader(ctx, oauthConfig, tokenStore, opts.Stdin, authOpts)
		} else {
			httpClient, err = auth.GetAuthenticatedClient(ctx, oauthConfig, tokenStore, authOpts)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to authenticate with Google: %w", err)
		}

		client, err := calendar.NewGoogleClient(ctx, httpClient)
		if err != nil {
			return nil, err
		}
		return client, nil

	case config.BackendCalDAV:
		password := cfg.CalDAVPassword
		if password == "" {
			var err error
			if password, err = promptPassword(opts.Stdin, opts.Out, cfg.CalDAVUsername); err != nil {
				return nil, err
			}
		}
		client, err := calendar.NewCalDAVClient(ctx, cfg.CalDAVServerURL, cfg.CalDAVUsername, password)
		if err != nil {
			return nil, err
		}
		return client, nil

	default:
		return nil, fmt.Errorf("unknown calendar backend %q", cfg.Backend)
	}
}

// promptPassword reads a password without echo when in is a terminal.
func promptPassword(in *os.File, out io.Writer, username string) (string, error) {
	fd := int(in.Fd())
	if !term.IsTerminal(fd) {
		return "", ErrPasswordRequired
	}

	fmt.Fprintf(out, "CalDAV password for %s: ", username)
	password, err := term.ReadPassword(fd)
	fmt.Fprintln(out)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	if len(password) == 0 {
		return "", ErrPasswordRequired
	}
	return string(password), nil
}
