package calendar

import (
	"fmt"
	"net/url"
	"strings"
)

// googleEventsBase is the canonical resource prefix for Google Calendar events.
// It is independent of the endpoint the client talks to.
const googleEventsBase = "https://www.googleapis.com/calendar/v3/calendars/"

// GoogleRemoteID builds the edit URL stored on a record for a Google event.
func GoogleRemoteID(calendarID, eventID string) string {
	return googleEventsBase + url.PathEscape(calendarID) + "/events/" + url.PathEscape(eventID)
}

// ParseGoogleRemoteID splits an edit URL produced by GoogleRemoteID back into
// its calendar and event ids.
func ParseGoogleRemoteID(remoteID string) (calendarID, eventID string, err error) {
	rest, ok := strings.CutPrefix(remoteID, googleEventsBase)
	if !ok {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidRemoteID, remoteID)
	}

	rawCal, rawEvent, ok := strings.Cut(rest, "/events/")
	if !ok || rawCal == "" || rawEvent == "" || strings.Contains(rawEvent, "/") {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidRemoteID, remoteID)
	}

	if calendarID, err = url.PathUnescape(rawCal); err != nil {
		return "", "", fmt.Errorf("%w: %q: %v", ErrInvalidRemoteID, remoteID, err)
	}
	if eventID, err = url.PathUnescape(rawEvent); err != nil {
		return "", "", fmt.Errorf("%w: %q: %v", ErrInvalidRemoteID, remoteID, err)
	}

	return calendarID, eventID, nil
}
