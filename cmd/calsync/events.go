package main

import (
	"fmt"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/beekhof/calendar-hooks/internal/store"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

const localTimeLayout = "2006-01-02 15:04"

// parseTime accepts RFC3339 or "2006-01-02 15:04" in local time.
func parseTime(value string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation(localTimeLayout, value, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q (expected RFC3339 or %q)", value, localTimeLayout)
	}
	return t, nil
}

func parseID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid event id %q", arg)
	}
	return id, nil
}

type eventFlags struct {
	title       string
	description string
	location    string
	startsAt    string
	endsAt      string
}

func (f *eventFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.title, "title", "", "event title")
	cmd.Flags().StringVar(&f.description, "description", "", "event description")
	cmd.Flags().StringVar(&f.location, "location", "", "event location")
	cmd.Flags().StringVar(&f.startsAt, "starts-at", "", `start time (RFC3339 or "2006-01-02 15:04")`)
	cmd.Flags().StringVar(&f.endsAt, "ends-at", "", `end time (RFC3339 or "2006-01-02 15:04")`)
}

// apply copies the flags the user set onto ev.
func (f *eventFlags) apply(cmd *cobra.Command, ev *store.Event) error {
	changed := cmd.Flags().Changed
	if changed("title") {
		ev.Title = f.title
	}
	if changed("description") {
		ev.Description = f.description
	}
	if changed("location") {
		ev.Location = f.location
	}
	if changed("starts-at") {
		t, err := parseTime(f.startsAt)
		if err != nil {
			return err
		}
		ev.StartsAt = t
	}
	if changed("ends-at") {
		t, err := parseTime(f.endsAt)
		if err != nil {
			return err
		}
		ev.EndsAt = t
	}
	return nil
}

func (c *cli) printSynced(verb string, ev *store.Event) {
	if ev.RemoteID == "" {
		fmt.Fprintf(c.out, "%s event %d %s\n", verb, ev.ID, color.YellowString("(not synced)"))
		return
	}
	fmt.Fprintf(c.out, "%s event %d -> %s\n", verb, ev.ID, color.GreenString(ev.RemoteID))
}

func (c *cli) newCreateCmd() *cobra.Command {
	var f eventFlags
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an event and push it to the calendar",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var ev store.Event
			if err := f.apply(cmd, &ev); err != nil {
				return err
			}
			if err := c.app.Store.Create(cmd.Context(), &ev); err != nil {
				return err
			}
			c.printSynced("Created", &ev)
			return nil
		},
	}
	f.register(cmd)
	cmd.MarkFlagRequired("title")
	cmd.MarkFlagRequired("starts-at")
	cmd.MarkFlagRequired("ends-at")
	return cmd
}

func (c *cli) newUpdateCmd() *cobra.Command {
	var f eventFlags
	cmd := &cobra.Command{
		Use:   "update ID",
		Short: "Change an event and push the change to the calendar",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			ev, err := c.app.Store.Get(cmd.Context(), id)
			if err != nil {
				return err
			}
			if err := f.apply(cmd, ev); err != nil {
				return err
			}
			if err := c.app.Store.Update(cmd.Context(), ev); err != nil {
				return err
			}
			c.printSynced("Updated", ev)
			return nil
		},
	}
	f.register(cmd)
	return cmd
}

func (c *cli) newDestroyCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "destroy ID",
		Aliases: []string{"delete", "rm"},
		Short:   "Delete an event and its calendar copy",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			ev, err := c.app.Store.Destroy(cmd.Context(), id)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.out, "Destroyed event %d %q\n", ev.ID, ev.Title)
			return nil
		},
	}
}

func (c *cli) newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List local events and their remote ids",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			events, err := c.app.Store.List(cmd.Context())
			if err != nil {
				return err
			}
			if len(events) == 0 {
				fmt.Fprintln(c.out, "No events")
				return nil
			}

			w := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTITLE\tSTARTS\tENDS\tREMOTE ID")
			for _, ev := range events {
				remoteID := ev.RemoteID
				if remoteID == "" {
					remoteID = color.YellowString("-")
				}
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", ev.ID, ev.Title,
					ev.StartsAt.Format(localTimeLayout), ev.EndsAt.Format(localTimeLayout), remoteID)
			}
			return w.Flush()
		},
	}
}
