package main

import (
	"fmt"
	"io"
	"os"

	"github.com/beekhof/calendar-hooks/internal/app"
	"github.com/beekhof/calendar-hooks/internal/config"
	"github.com/beekhof/calendar-hooks/internal/logger"

	"github.com/spf13/cobra"
)

type cli struct {
	flags     config.Flags
	noBrowser bool

	app *app.App
	out io.Writer
}

func newRootCmd() *cobra.Command {
	c := &cli{out: os.Stdout}

	rootCmd := &cobra.Command{
		Use:   "calsync",
		Short: "Keep local events in step with a remote calendar",
		Long: `calsync stores events in a local SQLite database and mirrors every
create, update and delete to a Google or CalDAV calendar.

CONFIGURATION PRECEDENCE (highest to lowest):
    1. Command-line flags
    2. Environment variables (CALENDAR_BACKEND, GOOGLE_CREDENTIALS_PATH,
       GOOGLE_TOKEN_PATH, CALDAV_SERVER_URL, CALDAV_USERNAME, CALDAV_PASSWORD,
       CALENDAR_NAME, CALENDAR_COLUMN, DATABASE_PATH, APP_ENV,
       INCLUDE_DETAILS, LOG_LEVEL), including a .env file
    3. Config file (--config, .json, .toml or .yaml)
    4. Defaults

Remote calls are skipped in environments listed in suppress_in (default: test).`,
		PersistentPreRunE:  c.setup,
		PersistentPostRunE: c.teardown,
		SilenceUsage:       true,
		SilenceErrors:      true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&c.flags.ConfigFile, "config", "", "path to a JSON, TOML or YAML config file")
	flags.BoolVarP(&c.flags.Verbose, "verbose", "v", false, "enable debug logging")
	flags.StringVar(&c.flags.Environment, "env", "", "environment name (overrides APP_ENV)")
	flags.StringVar(&c.flags.Backend, "backend", "", "calendar backend: google or caldav")
	flags.StringVar(&c.flags.Calendar, "calendar", "", `calendar title, or "default" for the first calendar`)
	flags.StringVar(&c.flags.Column, "column", "", "column that stores the remote event id")
	flags.StringVar(&c.flags.DatabasePath, "database", "", "path to the SQLite database")
	flags.BoolVar(&c.noBrowser, "no-browser", false, "paste the Google authorization code instead of using a local callback")

	rootCmd.AddCommand(
		c.newCreateCmd(),
		c.newUpdateCmd(),
		c.newDestroyCmd(),
		c.newListCmd(),
		c.newCalendarsCmd(),
	)

	return rootCmd
}

func (c *cli) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadConfig(c.flags)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	log := logger.New(cfg.Environment, cfg.LogLevel)

	c.app, err = app.New(cmd.Context(), cfg, log, app.Options{
		NoBrowser: c.noBrowser,
		Out:       cmd.ErrOrStderr(),
	})
	if err != nil {
		return fmt.Errorf("failed to initialize: %w", err)
	}
	c.out = cmd.OutOrStdout()

	return nil
}

func (c *cli) teardown(_ *cobra.Command, _ []string) error {
	if c.app == nil {
		return nil
	}
	return c.app.Close()
}
