package appointment

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrPractitionerNotFound = errors.New("practitioner not found")
	ErrPatientNotFound      = errors.New("patient not found")
	ErrAppointmentNotFound  = errors.New("appointment not found")
)

// Repository contains all DB interactions needed by the availability oracle,
// the booking coordinator and the digest worker.
type Repository interface {
	GetPractitionerByID(ctx context.Context, id uuid.UUID) (*Practitioner, error)
	GetPractitionerBySlug(ctx context.Context, slug string) (*Practitioner, error)
	ListActivePractitioners(ctx context.Context) ([]Practitioner, error)

	// Every booking creates a fresh patient row, phone is not unique.
	CreatePatient(ctx context.Context, name, phone string) (*Patient, error)

	// Conflict check; excludeID skips one appointment so a reschedule does
	// not collide with itself.
	GetBookedAppointmentForSlot(ctx context.Context, practitionerID uuid.UUID, date, timeOfDay string, excludeID *uuid.UUID) (*Appointment, error)
	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)

	CreateAppointment(ctx context.Context, practitionerID, patientID uuid.UUID, date, timeOfDay string, calendarEventID *string) (*Appointment, error)
	UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Appointment, error)
	RescheduleAppointment(ctx context.Context, id uuid.UUID, newDate, newTime string) (*Appointment, error)

	// Selection lists for cancel/reschedule, oldest first.
	ListBookedByPhone(ctx context.Context, practitionerID uuid.UUID, phone string) ([]Summary, error)

	// Daily digest.
	ListBookedForDay(ctx context.Context, practitionerID uuid.UUID, date string) ([]Summary, error)

	// Booking lifecycle event log.
	InsertEvent(ctx context.Context, ev EventLog) error
}
