package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/medschedule/booking-engine/internal/calendar"
	redisclient "github.com/medschedule/booking-engine/internal/redis"
)

const (
	EventBookingCommitted   = "BOOKING_COMMITTED"
	EventBookingCancelled   = "BOOKING_CANCELLED"
	EventBookingRescheduled = "BOOKING_RESCHEDULED"
	EventCalendarDesynced   = "CALENDAR_DESYNCED"
)

var (
	ErrSlotBeingBooked   = errors.New("slot is currently being booked, please retry")
	ErrNotCancellable    = errors.New("appointment is not in a cancellable state")
	ErrWrongPractitioner = errors.New("appointment belongs to a different practitioner")
)

// Notifier delivers practitioner-facing messages. Callers treat delivery as
// fire-and-forget: a failed notification never fails the booking that
// triggered it.
type Notifier interface {
	Notify(ctx context.Context, p *Practitioner, subject, body string) error
}

// Coordinator performs the dual write between the relational store and the
// external calendar. Booking and cancel are fail-closed: no state is reported
// to the user that the calendar does not reflect. Reschedule deliberately is
// not, see Reschedule.
type Coordinator struct {
	repo      Repository
	avail     *Availability
	cal       calendar.Client
	notifier  Notifier
	locker    redisclient.Locker
	fallbackTZ string
	log       *zap.Logger
}

func NewCoordinator(repo Repository, avail *Availability, cal calendar.Client, notifier Notifier, locker redisclient.Locker, fallbackTZ string, log *zap.Logger) *Coordinator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Coordinator{
		repo:       repo,
		avail:      avail,
		cal:        cal,
		notifier:   notifier,
		locker:     locker,
		fallbackTZ: fallbackTZ,
		log:        log,
	}
}

// Book reserves the slot. Sequence: re-check availability and insert under a
// per-slot lock; create the patient row; create the calendar event (mandatory,
// booking fails without it); insert the appointment row referencing the event;
// if the insert fails, delete the calendar event before propagating so no
// orphaned entry survives. Practitioner notification is best effort.
func (c *Coordinator) Book(ctx context.Context, p *Practitioner, date, timeOfDay, patientName, patientPhone string) (*Appointment, error) {
	if c.cal == nil || p.CalendarID == "" {
		return nil, calendar.ErrNotConfigured
	}

	var booked *Appointment

	err := c.locker.WithSlotLock(ctx, p.ID, date, timeOfDay, func(lockCtx context.Context) error {
		// Re-check inside the critical section: another session may have
		// won the slot between the flow's validation and this commit.
		if !c.avail.IsAvailable(lockCtx, p.ID, date, timeOfDay, nil) {
			return ErrSlotTaken
		}

		patient, err := c.repo.CreatePatient(lockCtx, patientName, patientPhone)
		if err != nil {
			return fmt.Errorf("create patient: %w", err)
		}

		start, end, err := c.slotWindow(p, date, timeOfDay)
		if err != nil {
			return err
		}

		eventID, err := c.cal.InsertEvent(lockCtx, p.CalendarID, calendar.Event{
			Summary:     fmt.Sprintf("Appointment: %s", patientName),
			Description: fmt.Sprintf("Booked via MedSchedule (phone %s)", patientPhone),
			Start:       start,
			End:         end,
		})
		if err != nil {
			return fmt.Errorf("create calendar event: %w", err)
		}

		appt, err := c.repo.CreateAppointment(lockCtx, p.ID, patient.ID, date, timeOfDay, &eventID)
		if err != nil {
			// Compensate: the store insert failed after the calendar
			// write, so the event must go.
			if delErr := c.cal.DeleteEvent(lockCtx, p.CalendarID, eventID); delErr != nil {
				c.log.Error("compensation failed, calendar event orphaned",
					zap.String("event_id", eventID),
					zap.Error(delErr))
			}
			return fmt.Errorf("create appointment: %w", err)
		}

		booked = appt
		return nil
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrSlotBeingBooked
		}
		return nil, err
	}

	c.logEvent(ctx, booked.ID, EventBookingCommitted, map[string]any{
		"practitioner_id": p.ID.String(),
		"date":            date,
		"time":            timeOfDay,
	})
	c.notifyBestEffort(ctx, p, "New appointment booked",
		fmt.Sprintf("%s booked %s at %s (phone %s).", patientName, date, timeOfDay, patientPhone))

	return booked, nil
}

// Cancel deletes the calendar event first and only then marks the record
// CANCELLED. A calendar delete failure propagates and leaves the record
// BOOKED: the user is never told "cancelled" while the event still exists.
func (c *Coordinator) Cancel(ctx context.Context, p *Practitioner, appointmentID uuid.UUID) (*Appointment, error) {
	appt, err := c.repo.GetAppointmentByID(ctx, appointmentID)
	if err != nil {
		return nil, fmt.Errorf("load appointment: %w", err)
	}
	if appt.PractitionerID != p.ID {
		return nil, ErrWrongPractitioner
	}
	if appt.Status != StatusBooked {
		return nil, ErrNotCancellable
	}

	if appt.CalendarEventID != nil && *appt.CalendarEventID != "" {
		if c.cal == nil {
			return nil, calendar.ErrNotConfigured
		}
		if err := c.cal.DeleteEvent(ctx, p.CalendarID, *appt.CalendarEventID); err != nil {
			return nil, fmt.Errorf("delete calendar event: %w", err)
		}
	}

	cancelled, err := c.repo.UpdateAppointmentStatus(ctx, appt.ID, StatusBooked, StatusCancelled)
	if err != nil {
		return nil, fmt.Errorf("mark cancelled: %w", err)
	}

	c.logEvent(ctx, cancelled.ID, EventBookingCancelled, map[string]any{
		"date": cancelled.Date,
		"time": cancelled.Time,
	})
	c.notifyBestEffort(ctx, p, "Appointment cancelled",
		fmt.Sprintf("The appointment on %s at %s was cancelled.", cancelled.Date, cancelled.Time))

	return cancelled, nil
}

// RescheduleResult reports the mutated appointment and whether the calendar
// event could not be kept in sync with it.
type RescheduleResult struct {
	Appointment *Appointment
	Desynced    bool
}

// Reschedule patches the calendar event in place, then mutates the row.
// Unlike Book/Cancel this path is intentionally not fail-closed: when the
// patch fails the record mutation still proceeds and Desynced is set so the
// dialogue layer can tell the user the calendar is not guaranteed. The clinic
// is notified about the desync.
func (c *Coordinator) Reschedule(ctx context.Context, p *Practitioner, appointmentID uuid.UUID, newDate, newTime string) (*RescheduleResult, error) {
	appt, err := c.repo.GetAppointmentByID(ctx, appointmentID)
	if err != nil {
		return nil, fmt.Errorf("load appointment: %w", err)
	}
	if appt.PractitionerID != p.ID {
		return nil, ErrWrongPractitioner
	}
	if appt.Status != StatusBooked {
		return nil, ErrNotCancellable
	}

	var result *RescheduleResult

	err = c.locker.WithSlotLock(ctx, p.ID, newDate, newTime, func(lockCtx context.Context) error {
		exclude := appt.ID
		if !c.avail.IsAvailable(lockCtx, p.ID, newDate, newTime, &exclude) {
			return ErrSlotTaken
		}

		desynced := false
		if appt.CalendarEventID != nil && *appt.CalendarEventID != "" && c.cal != nil {
			start, end, werr := c.slotWindow(p, newDate, newTime)
			if werr != nil {
				return werr
			}
			if perr := c.cal.PatchEvent(lockCtx, p.CalendarID, *appt.CalendarEventID, start, end); perr != nil {
				desynced = true
				c.log.Warn("calendar patch failed, proceeding with record update",
					zap.String("appointment_id", appt.ID.String()),
					zap.Error(perr))
			}
		}

		updated, uerr := c.repo.RescheduleAppointment(lockCtx, appt.ID, newDate, newTime)
		if uerr != nil {
			return fmt.Errorf("update appointment: %w", uerr)
		}

		result = &RescheduleResult{Appointment: updated, Desynced: desynced}
		return nil
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrSlotBeingBooked
		}
		return nil, err
	}

	c.logEvent(ctx, result.Appointment.ID, EventBookingRescheduled, map[string]any{
		"from_date": appt.Date,
		"from_time": appt.Time,
		"to_date":   newDate,
		"to_time":   newTime,
	})
	if result.Desynced {
		c.logEvent(ctx, result.Appointment.ID, EventCalendarDesynced, map[string]any{
			"date": newDate,
			"time": newTime,
		})
		c.notifyBestEffort(ctx, p, "Calendar out of sync",
			fmt.Sprintf("Appointment moved to %s at %s in the records, but the calendar event could not be updated. Please fix the calendar manually.", newDate, newTime))
	} else {
		c.notifyBestEffort(ctx, p, "Appointment rescheduled",
			fmt.Sprintf("An appointment was moved to %s at %s.", newDate, newTime))
	}

	return result, nil
}

func (c *Coordinator) slotWindow(p *Practitioner, date, timeOfDay string) (time.Time, time.Time, error) {
	loc := p.Location(c.fallbackTZ)
	start, err := time.ParseInLocation("2006-01-02 15:04", date+" "+timeOfDay, loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("parse slot %s %s: %w", date, timeOfDay, err)
	}
	minutes := p.ConsultMinutes
	if minutes <= 0 {
		minutes = 30
	}
	return start, start.Add(time.Duration(minutes) * time.Minute), nil
}

func (c *Coordinator) notifyBestEffort(ctx context.Context, p *Practitioner, subject, body string) {
	if c.notifier == nil {
		return
	}
	if err := c.notifier.Notify(ctx, p, subject, body); err != nil {
		c.log.Warn("practitioner notification failed",
			zap.String("practitioner_id", p.ID.String()),
			zap.Error(err))
	}
}

func (c *Coordinator) logEvent(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		c.log.Warn("marshal event payload failed", zap.String("event_type", eventType), zap.Error(err))
		data = nil
	}

	apptID := appointmentID
	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     time.Now(),
	}

	if err := c.repo.InsertEvent(ctx, ev); err != nil {
		c.log.Warn("insert event log failed",
			zap.String("event_type", eventType),
			zap.String("appointment_id", appointmentID.String()),
			zap.Error(err))
	}
}
