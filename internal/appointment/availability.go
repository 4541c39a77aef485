package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrNotWorkingDay  = errors.New("practitioner does not work that day")
	ErrOutsideHours   = errors.New("time is outside working hours")
	ErrSlotTaken      = errors.New("slot already has a booked appointment")
	ErrInCutoffWindow = errors.New("appointment starts within the cutoff window")
)

// CutoffWindow blocks cancel/reschedule this close to the appointment start.
const CutoffWindow = 24 * time.Hour

// Availability decides whether a (practitioner, date, time) slot is bookable.
// Every error path is treated as "not available": a failed booking is
// preferred over a double booking.
type Availability struct {
	repo Repository
	log  *zap.Logger
}

func NewAvailability(repo Repository, log *zap.Logger) *Availability {
	if log == nil {
		log = zap.NewNop()
	}
	return &Availability{repo: repo, log: log}
}

// IsAvailable reports whether no BOOKED appointment occupies the slot.
// excludeID skips the appointment being rescheduled so it does not conflict
// with itself.
func (a *Availability) IsAvailable(ctx context.Context, practitionerID uuid.UUID, date, timeOfDay string, excludeID *uuid.UUID) bool {
	_, err := a.repo.GetBookedAppointmentForSlot(ctx, practitionerID, date, timeOfDay, excludeID)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return true
		}
		a.log.Error("availability check failed, treating slot as taken",
			zap.String("practitioner_id", practitionerID.String()),
			zap.String("date", date),
			zap.String("time", timeOfDay),
			zap.Error(err))
		return false
	}
	return false
}

// IsWorkingDay checks the date against the practitioner's weekday set.
func IsWorkingDay(p *Practitioner, date string) (bool, error) {
	d, err := time.Parse("2006-01-02", date)
	if err != nil {
		return false, fmt.Errorf("parse date %q: %w", date, err)
	}
	return p.WorksOn(d.Weekday()), nil
}

// WithinWorkingHours requires the whole consult, start through end, to fit
// inside the practitioner's window.
func WithinWorkingHours(p *Practitioner, timeOfDay string) (bool, error) {
	start, err := time.Parse("15:04", timeOfDay)
	if err != nil {
		return false, fmt.Errorf("parse time %q: %w", timeOfDay, err)
	}
	open, err := time.Parse("15:04", p.WorkStart)
	if err != nil {
		return false, fmt.Errorf("parse work start %q: %w", p.WorkStart, err)
	}
	close, err := time.Parse("15:04", p.WorkEnd)
	if err != nil {
		return false, fmt.Errorf("parse work end %q: %w", p.WorkEnd, err)
	}

	end := start.Add(time.Duration(p.ConsultMinutes) * time.Minute)
	return !start.Before(open) && !end.After(close), nil
}

// Check runs the full policy: working day, working hours, then booking
// conflict. The returned sentinel tells the dialogue layer which rejection
// message to use.
func (a *Availability) Check(ctx context.Context, p *Practitioner, date, timeOfDay string, excludeID *uuid.UUID) error {
	working, err := IsWorkingDay(p, date)
	if err != nil {
		return err
	}
	if !working {
		return ErrNotWorkingDay
	}

	inHours, err := WithinWorkingHours(p, timeOfDay)
	if err != nil {
		return err
	}
	if !inHours {
		return ErrOutsideHours
	}

	if !a.IsAvailable(ctx, p.ID, date, timeOfDay, excludeID) {
		return ErrSlotTaken
	}

	return nil
}

// WithinCutoff reports whether the appointment starts inside the cutoff
// window, computed in the practitioner's local timezone.
func WithinCutoff(p *Practitioner, appt *Appointment, now time.Time, fallbackTZ string) (bool, error) {
	loc := p.Location(fallbackTZ)
	start, err := appt.StartsAt(loc)
	if err != nil {
		return false, fmt.Errorf("parse appointment start: %w", err)
	}
	return start.Sub(now.In(loc)) < CutoffWindow, nil
}
