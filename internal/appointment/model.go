package appointment

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusBooked    Status = "BOOKED"
	StatusCancelled Status = "CANCELLED"
)

// Practitioner working days use the same ordinals as the onboarding data:
// 0 = Monday through 6 = Sunday.
type Practitioner struct {
	ID                   uuid.UUID
	Slug                 string
	Name                 string
	Email                string
	ClinicEmail          string
	CalendarID           string
	WorkingDays          []int
	WorkStart            string // HH:MM
	WorkEnd              string // HH:MM
	ConsultMinutes       int
	BufferMinutes        int
	Timezone             string // IANA name, e.g. Asia/Kolkata
	NotificationsEnabled bool
	IsActive             bool
	CreatedAt            time.Time
}

// Location resolves the practitioner's timezone, falling back to the given
// default when the row has no usable value.
func (p *Practitioner) Location(fallback string) *time.Location {
	for _, name := range []string{p.Timezone, fallback} {
		if name == "" {
			continue
		}
		if loc, err := time.LoadLocation(name); err == nil {
			return loc
		}
	}
	return time.UTC
}

// WorksOn reports whether the practitioner works on the given weekday.
func (p *Practitioner) WorksOn(wd time.Weekday) bool {
	// time.Weekday counts from Sunday, our ordinals from Monday
	ord := (int(wd) + 6) % 7
	for _, d := range p.WorkingDays {
		if d == ord {
			return true
		}
	}
	return false
}

// Patient rows are intentionally not unique by phone: every booking creates a
// fresh row so past appointments keep the name the caller gave at the time.
type Patient struct {
	ID          uuid.UUID
	Name        string
	Phone       string
	FirstSeenAt time.Time
	LastSeenAt  time.Time
}

type Appointment struct {
	ID              uuid.UUID
	PractitionerID  uuid.UUID
	PatientID       uuid.UUID
	Date            string // YYYY-MM-DD
	Time            string // HH:MM
	Status          Status
	CalendarEventID *string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// StartsAt combines date and time in the given location.
func (a *Appointment) StartsAt(loc *time.Location) (time.Time, error) {
	return time.ParseInLocation("2006-01-02 15:04", a.Date+" "+a.Time, loc)
}

// Summary is an appointment joined with its patient, used for the
// cancel/reschedule selection lists and the daily digest.
type Summary struct {
	Appointment
	PatientName  string
	PatientPhone string
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}
