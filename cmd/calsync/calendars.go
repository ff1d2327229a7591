package main

import (
	"fmt"

	"github.com/beekhof/calendar-hooks/internal/app"
	"github.com/beekhof/calendar-hooks/internal/calendar"
	"github.com/beekhof/calendar-hooks/internal/store"
	"github.com/beekhof/calendar-hooks/internal/sync"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func (c *cli) newCalendarsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "calendars",
		Short: "List remote calendars and show which one events go to",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg := c.app.Config

			// Suppressed environments start without a backend; listing still needs one.
			client := c.app.Client
			if client == nil {
				var err error
				client, err = app.NewCalendarClient(ctx, cfg, c.app.Log, app.Options{NoBrowser: c.noBrowser, Out: cmd.ErrOrStderr()})
				if err != nil {
					return err
				}
			}

			adapter, err := sync.New(client, sync.Options[*store.Row]{
				Calendar: cfg.Calendar,
				Mapping:  app.EventMapping(cfg.IncludeDetails),
				RemoteID: app.RemoteIDAccessor(),
				Logger:   c.app.Log,
			})
			if err != nil {
				return err
			}

			calendars, err := client.ListCalendars(ctx)
			if err != nil {
				return fmt.Errorf("failed to list calendars: %w", err)
			}

			var selected calendar.Calendar
			if resolved, err := adapter.ResolveCalendar(ctx); err == nil {
				selected = resolved
			} else {
				color.New(color.FgYellow).Fprintf(cmd.ErrOrStderr(), "Warning: %v\n", err)
			}

			for _, cal := range calendars {
				if cal == selected {
					fmt.Fprintf(c.out, "%s %s  %s\n", color.GreenString("*"), color.New(color.Bold).Sprint(cal.Title), cal.ID)
					continue
				}
				fmt.Fprintf(c.out, "  %s  %s\n", cal.Title, cal.ID)
			}
			return nil
		},
	}
}
