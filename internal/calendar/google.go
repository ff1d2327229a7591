package calendar

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// GoogleClient is a wrapper around the Google Calendar API service.
type GoogleClient struct {
	service *gcal.Service
}

// NewGoogleClient creates a new Google Calendar API client using the provided HTTP client.
// Extra options are appended after the HTTP client, which lets tests point the
// service at a local endpoint.
func NewGoogleClient(ctx context.Context, httpClient *http.Client, opts ...option.ClientOption) (*GoogleClient, error) {
	opts = append([]option.ClientOption{option.WithHTTPClient(httpClient)}, opts...)
	service, err := gcal.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar service: %w", err)
	}

	return &GoogleClient{service: service}, nil
}

// ListCalendars returns every calendar on the account's calendar list.
// The primary calendar is always first so that the default selector picks it.
func (c *GoogleClient) ListCalendars(ctx context.Context) ([]Calendar, error) {
	var primary, others []Calendar

	err := c.service.CalendarList.List().Pages(ctx, func(page *gcal.CalendarList) error {
		for _, entry := range page.Items {
			cal := Calendar{ID: entry.Id, Title: entry.Summary}
			if entry.Primary {
				primary = append(primary, cal)
				continue
			}
			others = append(others, cal)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("Google: failed to list calendars: %w", mapGoogleError(err))
	}

	return append(primary, others...), nil
}

// CreateEvent inserts a new event and returns its edit URL.
// Important: Sets sendUpdates="none" to prevent notifications.
func (c *GoogleClient) CreateEvent(ctx context.Context, cal Calendar, payload EventPayload) (string, error) {
	created, err := c.service.Events.Insert(cal.ID, toGoogleEvent(payload)).
		SendUpdates("none").
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("failed to insert event: %w", mapGoogleError(err))
	}

	return GoogleRemoteID(cal.ID, created.Id), nil
}

// UpdateEvent replaces the event addressed by remoteID.
func (c *GoogleClient) UpdateEvent(ctx context.Context, remoteID string, payload EventPayload) error {
	calendarID, eventID, err := ParseGoogleRemoteID(remoteID)
	if err != nil {
		return err
	}

	_, err = c.service.Events.Update(calendarID, eventID, toGoogleEvent(payload)).
		SendUpdates("none").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("failed to update event: %w", mapGoogleError(err))
	}

	return nil
}

// DeleteEvent deletes the event addressed by remoteID.
func (c *GoogleClient) DeleteEvent(ctx context.Context, remoteID string) error {
	calendarID, eventID, err := ParseGoogleRemoteID(remoteID)
	if err != nil {
		return err
	}

	err = c.service.Events.Delete(calendarID, eventID).
		SendUpdates("none").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("failed to delete event: %w", mapGoogleError(err))
	}

	return nil
}

func toGoogleEvent(payload EventPayload) *gcal.Event {
	return &gcal.Event{
		Summary:     payload.Title,
		Description: payload.Description,
		Location:    payload.Location,
		Start: &gcal.EventDateTime{
			DateTime: payload.StartsAt.Format(time.RFC3339),
		},
		End: &gcal.EventDateTime{
			DateTime: payload.EndsAt.Format(time.RFC3339),
		},
	}
}

// mapGoogleError folds 404 and 410 responses into ErrNotFound while keeping
// the original API error in the chain.
func mapGoogleError(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusNotFound, http.StatusGone:
			return fmt.Errorf("%w: %w", ErrNotFound, err)
		}
	}
	return err
}
