package calendar

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/emersion/go-ical"
	"github.com/emersion/go-webdav"
	"github.com/emersion/go-webdav/caldav"
	"github.com/google/uuid"
)

const productID = "-//calendar-hooks//EN"

// CalDAVClient is a client for CalDAV servers (iCloud, Fastmail, Nextcloud, ...).
// Calendars are addressed by collection path and events by object path.
type CalDAVClient struct {
	client *caldav.Client
}

// NewCalDAVClient creates a new CalDAV client.
// serverURL should be the CalDAV endpoint (e.g., "https://caldav.icloud.com" for iCloud).
// For iCloud the password should be an app-specific password.
func NewCalDAVClient(ctx context.Context, serverURL, username, password string) (*CalDAVClient, error) {
	if _, err := url.Parse(serverURL); err != nil {
		return nil, fmt.Errorf("invalid CalDAV server URL: %w", err)
	}

	var httpClient webdav.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	if username != "" {
		httpClient = webdav.HTTPClientWithBasicAuth(httpClient, username, password)
	}

	client, err := caldav.NewClient(notFoundClient{httpClient}, serverURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create CalDAV client: %w", err)
	}

	return &CalDAVClient{client: client}, nil
}

// ListCalendars discovers the calendar home set of the current user and
// returns its calendars in server order.
func (c *CalDAVClient) ListCalendars(ctx context.Context) ([]Calendar, error) {
	principal, err := c.client.FindCurrentUserPrincipal(ctx)
	if err != nil {
		return nil, fmt.Errorf("CalDAV: failed to find user principal: %w", err)
	}

	homeSet, err := c.client.FindCalendarHomeSet(ctx, principal)
	if err != nil {
		return nil, fmt.Errorf("CalDAV: failed to find calendar home set: %w", err)
	}

	found, err := c.client.FindCalendars(ctx, homeSet)
	if err != nil {
		return nil, fmt.Errorf("CalDAV: failed to list calendars: %w", err)
	}

	calendars := make([]Calendar, 0, len(found))
	for _, cal := range found {
		calendars = append(calendars, Calendar{ID: cal.Path, Title: cal.Name})
	}
	return calendars, nil
}

// CreateEvent stores a new calendar object under the calendar collection and
// returns its path.
func (c *CalDAVClient) CreateEvent(ctx context.Context, cal Calendar, payload EventPayload) (string, error) {
	uid := uuid.NewString()
	objectPath := strings.TrimSuffix(cal.ID, "/") + "/" + uid + ".ics"

	if _, err := c.client.PutCalendarObject(ctx, objectPath, buildCalendarObject(uid, payload, time.Now())); err != nil {
		return "", fmt.Errorf("failed to insert event: %w", err)
	}

	return objectPath, nil
}

// UpdateEvent rewrites the calendar object at remoteID, keeping its UID.
// A PUT would silently recreate a deleted object, so existence is checked first.
func (c *CalDAVClient) UpdateEvent(ctx context.Context, remoteID string, payload EventPayload) error {
	if !strings.HasSuffix(remoteID, ".ics") {
		return fmt.Errorf("%w: %q", ErrInvalidRemoteID, remoteID)
	}

	existing, err := c.client.GetCalendarObject(ctx, remoteID)
	if err != nil {
		return fmt.Errorf("failed to get event: %w", err)
	}

	uid := objectUID(existing.Data)
	if uid == "" {
		uid = strings.TrimSuffix(remoteID[strings.LastIndex(remoteID, "/")+1:], ".ics")
	}

	if _, err := c.client.PutCalendarObject(ctx, remoteID, buildCalendarObject(uid, payload, time.Now())); err != nil {
		return fmt.Errorf("failed to update event: %w", err)
	}

	return nil
}

// DeleteEvent removes the calendar object at remoteID.
func (c *CalDAVClient) DeleteEvent(ctx context.Context, remoteID string) error {
	if !strings.HasSuffix(remoteID, ".ics") {
		return fmt.Errorf("%w: %q", ErrInvalidRemoteID, remoteID)
	}

	if err := c.client.RemoveAll(ctx, remoteID); err != nil {
		return fmt.Errorf("failed to delete event: %w", err)
	}

	return nil
}

// buildCalendarObject converts a payload into a single-event VCALENDAR.
func buildCalendarObject(uid string, payload EventPayload, now time.Time) *ical.Calendar {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, productID)

	vevent := ical.NewEvent()
	vevent.Props.SetText(ical.PropUID, uid)
	vevent.Props.SetDateTime(ical.PropDateTimeStamp, now.UTC())
	vevent.Props.SetDateTime(ical.PropLastModified, now.UTC())
	vevent.Props.SetText(ical.PropSummary, payload.Title)
	if payload.Description != "" {
		vevent.Props.SetText(ical.PropDescription, payload.Description)
	}
	if payload.Location != "" {
		vevent.Props.SetText(ical.PropLocation, payload.Location)
	}
	vevent.Props.SetDateTime(ical.PropDateTimeStart, payload.StartsAt.UTC())
	vevent.Props.SetDateTime(ical.PropDateTimeEnd, payload.EndsAt.UTC())

	cal.Children = append(cal.Children, vevent.Component)
	return cal
}

func objectUID(cal *ical.Calendar) string {
	if cal == nil {
		return ""
	}
	for _, child := range cal.Children {
		if child.Name != ical.CompEvent {
			continue
		}
		if prop := child.Props.Get(ical.PropUID); prop != nil {
			return prop.Value
		}
	}
	return ""
}

// notFoundClient turns 404 and 410 responses into ErrNotFound before
// go-webdav sees them, so callers can match missing objects with errors.Is.
type notFoundClient struct {
	webdav.HTTPClient
}

func (c notFoundClient) Do(req *http.Request) (*http.Response, error) {
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: %s %s: %s", ErrNotFound, req.Method, req.URL.Path, resp.Status)
	}
	return resp, nil
}
