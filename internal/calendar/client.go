package calendar

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotConfigured means the practitioner has no usable calendar
	// identity. Booking must fail entirely in that case, never proceed
	// with a record-only write.
	ErrNotConfigured = errors.New("calendar not configured for practitioner")
)

// Event mirrors the external calendar entry an appointment is backed by.
type Event struct {
	ID          string
	Summary     string
	Description string
	Start       time.Time
	End         time.Time
}

// Client is the external calendar contract. All times are in the
// practitioner's local timezone.
type Client interface {
	InsertEvent(ctx context.Context, calendarID string, ev Event) (string, error)
	PatchEvent(ctx context.Context, calendarID, eventID string, start, end time.Time) error
	DeleteEvent(ctx context.Context, calendarID, eventID string) error
	ListEventsInWindow(ctx context.Context, calendarID string, from, to time.Time) ([]Event, error)
}
