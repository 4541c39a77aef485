package appointment

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type PgRepository struct {
	pool Pool
}

// Pool is the querying surface shared by *pgxpool.Pool and pgxmock.
type Pool interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func NewPgRepository(pool Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Helpers

const practitionerColumns = `
	id, slug, name, email, clinic_email, calendar_id, working_days,
	to_char(work_start, 'HH24:MI'), to_char(work_end, 'HH24:MI'),
	consult_minutes, buffer_minutes, timezone, notifications_enabled,
	is_active, created_at`

func scanPractitioner(row pgx.Row) (*Practitioner, error) {
	var p Practitioner
	var workingDays string

	err := row.Scan(
		&p.ID,
		&p.Slug,
		&p.Name,
		&p.Email,
		&p.ClinicEmail,
		&p.CalendarID,
		&workingDays,
		&p.WorkStart,
		&p.WorkEnd,
		&p.ConsultMinutes,
		&p.BufferMinutes,
		&p.Timezone,
		&p.NotificationsEnabled,
		&p.IsActive,
		&p.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPractitionerNotFound
		}
		return nil, err
	}

	p.WorkingDays = parseWorkingDays(workingDays)
	return &p, nil
}

// parseWorkingDays reads the CSV column, e.g. "0,1,2,3,4".
func parseWorkingDays(csv string) []int {
	var days []int
	for _, part := range strings.Split(csv, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if n, err := strconv.Atoi(part); err == nil {
			days = append(days, n)
		}
	}
	return days
}

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient

	err := row.Scan(
		&p.ID,
		&p.Name,
		&p.Phone,
		&p.FirstSeenAt,
		&p.LastSeenAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}

	return &p, nil
}

const appointmentColumns = `
	id, practitioner_id, patient_id,
	to_char(appointment_date, 'YYYY-MM-DD'), to_char(appointment_time, 'HH24:MI'),
	status, calendar_event_id, created_at, updated_at`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var eventID *string

	err := row.Scan(
		&a.ID,
		&a.PractitionerID,
		&a.PatientID,
		&a.Date,
		&a.Time,
		&a.Status,
		&eventID,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	a.CalendarEventID = eventID
	return &a, nil
}

func scanSummary(row pgx.Row) (*Summary, error) {
	var s Summary
	var eventID *string

	err := row.Scan(
		&s.ID,
		&s.PractitionerID,
		&s.PatientID,
		&s.Date,
		&s.Time,
		&s.Status,
		&eventID,
		&s.CreatedAt,
		&s.UpdatedAt,
		&s.PatientName,
		&s.PatientPhone,
	)
	if err != nil {
		return nil, err
	}

	s.CalendarEventID = eventID
	return &s, nil
}

// Interface methods

func (r *PgRepository) GetPractitionerByID(ctx context.Context, id uuid.UUID) (*Practitioner, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+practitionerColumns+`
		FROM practitioners
		WHERE id = $1 AND is_active = true
	`, id)
	return scanPractitioner(row)
}

func (r *PgRepository) GetPractitionerBySlug(ctx context.Context, slug string) (*Practitioner, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+practitionerColumns+`
		FROM practitioners
		WHERE slug = $1 AND is_active = true
	`, slug)
	return scanPractitioner(row)
}

func (r *PgRepository) ListActivePractitioners(ctx context.Context) ([]Practitioner, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+practitionerColumns+`
		FROM practitioners
		WHERE is_active = true
		ORDER BY slug
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Practitioner
	for rows.Next() {
		p, err := scanPractitioner(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *p)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) CreatePatient(ctx context.Context, name, phone string) (*Patient, error) {
	id := uuid.New()

	row := r.pool.QueryRow(ctx, `
		INSERT INTO patients (id, name, phone, first_seen_at, last_seen_at)
		VALUES ($1, $2, $3, now(), now())
		RETURNING id, name, phone, first_seen_at, last_seen_at
	`, id, name, phone)

	return scanPatient(row)
}

func (r *PgRepository) GetBookedAppointmentForSlot(ctx context.Context, practitionerID uuid.UUID, date, timeOfDay string, excludeID *uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE practitioner_id = $1
		  AND appointment_date = $2::date
		  AND appointment_time = $3::time
		  AND status = 'BOOKED'
		  AND ($4::uuid IS NULL OR id <> $4::uuid)
	`, practitionerID, date, timeOfDay, excludeID)
	return scanAppointment(row)
}

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) CreateAppointment(ctx context.Context, practitionerID, patientID uuid.UUID, date, timeOfDay string, calendarEventID *string) (*Appointment, error) {
	id := uuid.New()

	// The partial unique index uq_booked_slot on
	// (practitioner_id, appointment_date, appointment_time) WHERE status = 'BOOKED'
	// is the last line of defence against double booking.
	row := r.pool.QueryRow(ctx, `
		INSERT INTO appointments
			(id, practitioner_id, patient_id, appointment_date, appointment_time,
			 status, calendar_event_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4::date, $5::time, 'BOOKED', $6, now(), now())
		RETURNING `+appointmentColumns+`
	`, id, practitionerID, patientID, date, timeOfDay, calendarEventID)

	return scanAppointment(row)
}

func (r *PgRepository) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING `+appointmentColumns+`
	`, id, to, from)

	return scanAppointment(row)
}

func (r *PgRepository) RescheduleAppointment(ctx context.Context, id uuid.UUID, newDate, newTime string) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET appointment_date = $2::date,
		    appointment_time = $3::time,
		    updated_at = now()
		WHERE id = $1
		  AND status = 'BOOKED'
		RETURNING `+appointmentColumns+`
	`, id, newDate, newTime)

	return scanAppointment(row)
}

func (r *PgRepository) ListBookedByPhone(ctx context.Context, practitionerID uuid.UUID, phone string) ([]Summary, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT a.id, a.practitioner_id, a.patient_id,
		       to_char(a.appointment_date, 'YYYY-MM-DD'), to_char(a.appointment_time, 'HH24:MI'),
		       a.status, a.calendar_event_id, a.created_at, a.updated_at,
		       p.name, p.phone
		FROM appointments a
		JOIN patients p ON p.id = a.patient_id
		WHERE a.practitioner_id = $1
		  AND p.phone = $2
		  AND a.status = 'BOOKED'
		ORDER BY a.appointment_date, a.appointment_time
	`, practitionerID, phone)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectSummaries(rows)
}

func (r *PgRepository) ListBookedForDay(ctx context.Context, practitionerID uuid.UUID, date string) ([]Summary, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT a.id, a.practitioner_id, a.patient_id,
		       to_char(a.appointment_date, 'YYYY-MM-DD'), to_char(a.appointment_time, 'HH24:MI'),
		       a.status, a.calendar_event_id, a.created_at, a.updated_at,
		       p.name, p.phone
		FROM appointments a
		JOIN patients p ON p.id = a.patient_id
		WHERE a.practitioner_id = $1
		  AND a.appointment_date = $2::date
		  AND a.status = 'BOOKED'
		ORDER BY a.appointment_time
	`, practitionerID, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectSummaries(rows)
}

func collectSummaries(rows pgx.Rows) ([]Summary, error) {
	var result []Summary
	for rows.Next() {
		s, err := scanSummary(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *s)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	var appID *uuid.UUID
	if ev.AppointmentID != nil {
		appID = ev.AppointmentID
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, appID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
