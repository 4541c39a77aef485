package dialogue

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medschedule/booking-engine/internal/appointment"
	"github.com/medschedule/booking-engine/internal/calendar"
)

// fakeRepo is an in-memory Repository for flow tests.
type fakeRepo struct {
	mu            sync.Mutex
	practitioners map[uuid.UUID]*appointment.Practitioner
	patients      map[uuid.UUID]*appointment.Patient
	appointments  map[uuid.UUID]*appointment.Appointment
	events        []appointment.EventLog

	failCreateAppointment bool
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		practitioners: make(map[uuid.UUID]*appointment.Practitioner),
		patients:      make(map[uuid.UUID]*appointment.Patient),
		appointments:  make(map[uuid.UUID]*appointment.Appointment),
	}
}

func (f *fakeRepo) GetPractitionerByID(ctx context.Context, id uuid.UUID) (*appointment.Practitioner, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.practitioners[id]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, appointment.ErrPractitionerNotFound
}

func (f *fakeRepo) GetPractitionerBySlug(ctx context.Context, slug string) (*appointment.Practitioner, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.practitioners {
		if p.Slug == slug {
			cp := *p
			return &cp, nil
		}
	}
	return nil, appointment.ErrPractitionerNotFound
}

func (f *fakeRepo) ListActivePractitioners(ctx context.Context) ([]appointment.Practitioner, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []appointment.Practitioner
	for _, p := range f.practitioners {
		if p.IsActive {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (f *fakeRepo) CreatePatient(ctx context.Context, name, phone string) (*appointment.Patient, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := &appointment.Patient{ID: uuid.New(), Name: name, Phone: phone}
	f.patients[p.ID] = p
	return p, nil
}

func (f *fakeRepo) GetBookedAppointmentForSlot(ctx context.Context, practitionerID uuid.UUID, date, timeOfDay string, excludeID *uuid.UUID) (*appointment.Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.appointments {
		if excludeID != nil && a.ID == *excludeID {
			continue
		}
		if a.PractitionerID == practitionerID && a.Date == date && a.Time == timeOfDay && a.Status == appointment.StatusBooked {
			cp := *a
			return &cp, nil
		}
	}
	return nil, appointment.ErrAppointmentNotFound
}

func (f *fakeRepo) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if a, ok := f.appointments[id]; ok {
		cp := *a
		return &cp, nil
	}
	return nil, appointment.ErrAppointmentNotFound
}

func (f *fakeRepo) CreateAppointment(ctx context.Context, practitionerID, patientID uuid.UUID, date, timeOfDay string, calendarEventID *string) (*appointment.Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCreateAppointment {
		return nil, errors.New("insert failed")
	}
	a := &appointment.Appointment{
		ID:              uuid.New(),
		PractitionerID:  practitionerID,
		PatientID:       patientID,
		Date:            date,
		Time:            timeOfDay,
		Status:          appointment.StatusBooked,
		CalendarEventID: calendarEventID,
	}
	f.appointments[a.ID] = a
	cp := *a
	return &cp, nil
}

func (f *fakeRepo) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to appointment.Status) (*appointment.Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.appointments[id]
	if !ok || a.Status != from {
		return nil, appointment.ErrAppointmentNotFound
	}
	a.Status = to
	cp := *a
	return &cp, nil
}

func (f *fakeRepo) RescheduleAppointment(ctx context.Context, id uuid.UUID, newDate, newTime string) (*appointment.Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.appointments[id]
	if !ok {
		return nil, appointment.ErrAppointmentNotFound
	}
	a.Date = newDate
	a.Time = newTime
	cp := *a
	return &cp, nil
}

func (f *fakeRepo) ListBookedByPhone(ctx context.Context, practitionerID uuid.UUID, phone string) ([]appointment.Summary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []appointment.Summary
	for _, a := range f.appointments {
		if a.PractitionerID != practitionerID || a.Status != appointment.StatusBooked {
			continue
		}
		pat, ok := f.patients[a.PatientID]
		if !ok || pat.Phone != phone {
			continue
		}
		out = append(out, appointment.Summary{Appointment: *a, PatientName: pat.Name, PatientPhone: pat.Phone})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Date+out[i].Time < out[j].Date+out[j].Time
	})
	return out, nil
}

func (f *fakeRepo) ListBookedForDay(ctx context.Context, practitionerID uuid.UUID, date string) ([]appointment.Summary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []appointment.Summary
	for _, a := range f.appointments {
		if a.PractitionerID != practitionerID || a.Date != date || a.Status != appointment.StatusBooked {
			continue
		}
		pat := f.patients[a.PatientID]
		out = append(out, appointment.Summary{Appointment: *a, PatientName: pat.Name, PatientPhone: pat.Phone})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time < out[j].Time })
	return out, nil
}

func (f *fakeRepo) InsertEvent(ctx context.Context, ev appointment.EventLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return nil
}

// addBooked seeds a booked appointment with its patient.
func (f *fakeRepo) addBooked(practitionerID uuid.UUID, date, timeOfDay, name, phone, eventID string) *appointment.Appointment {
	f.mu.Lock()
	defer f.mu.Unlock()
	pat := &appointment.Patient{ID: uuid.New(), Name: name, Phone: phone}
	f.patients[pat.ID] = pat
	a := &appointment.Appointment{
		ID:             uuid.New(),
		PractitionerID: practitionerID,
		PatientID:      pat.ID,
		Date:           date,
		Time:           timeOfDay,
		Status:         appointment.StatusBooked,
	}
	if eventID != "" {
		a.CalendarEventID = &eventID
	}
	f.appointments[a.ID] = a
	return a
}

func (f *fakeRepo) bookedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, a := range f.appointments {
		if a.Status == appointment.StatusBooked {
			n++
		}
	}
	return n
}

// fakeCalendar records operations and fails on demand.
type fakeCalendar struct {
	mu         sync.Mutex
	nextID     int
	inserts    []string
	deletes    []string
	patches    []string
	failInsert bool
	failDelete bool
	failPatch  bool
}

func (f *fakeCalendar) InsertEvent(ctx context.Context, calendarID string, ev calendar.Event) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failInsert {
		return "", errors.New("calendar insert failed")
	}
	f.nextID++
	id := fmt.Sprintf("evt-%d", f.nextID)
	f.inserts = append(f.inserts, id)
	return id, nil
}

func (f *fakeCalendar) PatchEvent(ctx context.Context, calendarID, eventID string, start, end time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failPatch {
		return errors.New("calendar patch failed")
	}
	f.patches = append(f.patches, eventID)
	return nil
}

func (f *fakeCalendar) DeleteEvent(ctx context.Context, calendarID, eventID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failDelete {
		return errors.New("calendar delete failed")
	}
	f.deletes = append(f.deletes, eventID)
	return nil
}

func (f *fakeCalendar) ListEventsInWindow(ctx context.Context, calendarID string, from, to time.Time) ([]calendar.Event, error) {
	return nil, nil
}

// fakeLocker runs the critical section inline.
type fakeLocker struct{}

func (fakeLocker) WithSlotLock(ctx context.Context, practitionerID uuid.UUID, date, timeOfDay string, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type testHarness struct {
	engine *Engine
	repo   *fakeRepo
	cal    *fakeCalendar
	p      *appointment.Practitioner
}

func newTestHarness(t *testing.T) *testHarness {
	t.Helper()

	repo := newFakeRepo()
	p := &appointment.Practitioner{
		ID:             uuid.New(),
		Slug:           "dr-rao",
		Name:           "Dr. Rao",
		CalendarID:     "cal-1",
		WorkingDays:    []int{0, 1, 2, 3, 4},
		WorkStart:      "10:00",
		WorkEnd:        "18:00",
		ConsultMinutes: 30,
		BufferMinutes:  15,
		Timezone:       "UTC",
		IsActive:       true,
	}
	repo.practitioners[p.ID] = p

	cal := &fakeCalendar{}
	avail := appointment.NewAvailability(repo, nil)
	coord := appointment.NewCoordinator(repo, avail, cal, nil, fakeLocker{}, "UTC", nil)

	engine := NewEngine(EngineConfig{
		Store:      NewMemoryStore(time.Hour),
		Repo:       repo,
		Avail:      avail,
		Coord:      coord,
		Now:        func() time.Time { return refDay },
		FallbackTZ: "UTC",
	})

	return &testHarness{engine: engine, repo: repo, cal: cal, p: p}
}

func (h *testHarness) turn(t *testing.T, session, message string) string {
	t.Helper()
	reply, err := h.engine.HandleTurn(context.Background(), session, h.p.ID, "test", message)
	require.NoError(t, err)
	return reply
}

func TestBookHappyPath(t *testing.T) {
	h := newTestHarness(t)

	assert.Equal(t, msgGreeting, h.turn(t, "s1", "hi"))
	assert.Equal(t, msgAskDate, h.turn(t, "s1", "I want to book an appointment"))
	assert.Equal(t, msgAskTime, h.turn(t, "s1", "tomorrow"))
	assert.Equal(t, msgAskName, h.turn(t, "s1", "3pm"))
	assert.Equal(t, msgAskPhone, h.turn(t, "s1", "asha rao"))

	summary := h.turn(t, "s1", "9876543210")
	assert.Contains(t, summary, "2025-03-12")
	assert.Contains(t, summary, "15:00")
	assert.Contains(t, summary, "Asha Rao")

	reply := h.turn(t, "s1", "yes")
	assert.Contains(t, reply, "booked")
	assert.Equal(t, 1, h.repo.bookedCount())
	assert.Len(t, h.cal.inserts, 1)
}

func TestBookOneShotMessageFillsDateAndTime(t *testing.T) {
	h := newTestHarness(t)

	h.turn(t, "s1", "hi")
	reply := h.turn(t, "s1", "book tomorrow at 3pm")
	assert.Equal(t, msgAskName, reply)
}

func TestBookClosedDayRejectedBeforeTimePrompt(t *testing.T) {
	h := newTestHarness(t)

	h.turn(t, "s1", "hi")
	// Saturday is outside the working-day set.
	reply := h.turn(t, "s1", "book on saturday")
	assert.Equal(t, msgClosedDay, reply)
	assert.Equal(t, 0, h.repo.bookedCount())

	// The flow stays on the date question.
	assert.Equal(t, msgAskTime, h.turn(t, "s1", "tomorrow"))
}

func TestBookOutsideWorkingHours(t *testing.T) {
	h := newTestHarness(t)

	h.turn(t, "s1", "hi")
	h.turn(t, "s1", "book an appointment")
	h.turn(t, "s1", "tomorrow")
	reply := h.turn(t, "s1", "8pm")
	assert.Contains(t, reply, "outside working hours")
	assert.Equal(t, 0, h.repo.bookedCount())
}

func TestBookBareHourAsksForMeridiem(t *testing.T) {
	h := newTestHarness(t)

	h.turn(t, "s1", "hi")
	h.turn(t, "s1", "book an appointment")
	h.turn(t, "s1", "tomorrow")
	assert.Equal(t, msgAmbiguousTime, h.turn(t, "s1", "5"))
}

func TestBookSlotAlreadyTaken(t *testing.T) {
	h := newTestHarness(t)
	h.repo.addBooked(h.p.ID, "2025-03-12", "15:00", "First Patient", "9000000001", "evt-a")

	h.turn(t, "s2", "hi")
	h.turn(t, "s2", "book an appointment")
	h.turn(t, "s2", "tomorrow")
	reply := h.turn(t, "s2", "3pm")
	assert.Equal(t, msgSlotTaken, reply)
	assert.Equal(t, 1, h.repo.bookedCount())
}

func TestBookDeclineThenChangeTime(t *testing.T) {
	h := newTestHarness(t)

	h.turn(t, "s1", "hi")
	h.turn(t, "s1", "book tomorrow at 3pm")
	h.turn(t, "s1", "asha rao")
	h.turn(t, "s1", "9876543210")

	assert.Equal(t, msgChangeChoice, h.turn(t, "s1", "no"))
	assert.Equal(t, msgAskTime, h.turn(t, "s1", "2"))

	summary := h.turn(t, "s1", "4pm")
	assert.Contains(t, summary, "16:00")
}

func TestCancelWithMultipleCandidates(t *testing.T) {
	h := newTestHarness(t)
	h.repo.addBooked(h.p.ID, "2025-03-12", "11:00", "Asha Rao", "9876543210", "evt-a")
	second := h.repo.addBooked(h.p.ID, "2025-03-13", "15:00", "Asha Rao", "9876543210", "evt-b")

	h.turn(t, "s1", "hi")
	assert.Equal(t, msgAskPhoneLookup, h.turn(t, "s1", "cancel my appointment"))

	list := h.turn(t, "s1", "9876543210")
	assert.Contains(t, list, "1. 2025-03-12 at 11:00")
	assert.Contains(t, list, "2. 2025-03-13 at 15:00")

	assert.Equal(t, msgBadSelection(2), h.turn(t, "s1", "3"))

	confirm := h.turn(t, "s1", "2")
	assert.Contains(t, confirm, "2025-03-13 at 15:00")

	assert.Equal(t, msgCancelled, h.turn(t, "s1", "yes"))

	got, err := h.repo.GetAppointmentByID(context.Background(), second.ID)
	require.NoError(t, err)
	assert.Equal(t, appointment.StatusCancelled, got.Status)
	assert.Equal(t, []string{"evt-b"}, h.cal.deletes)
}

func TestCancelUnknownPhone(t *testing.T) {
	h := newTestHarness(t)

	h.turn(t, "s1", "hi")
	h.turn(t, "s1", "cancel my appointment")
	assert.Equal(t, msgNoAppointments, h.turn(t, "s1", "9999999999"))
}

func TestCancelBlockedByCutoff(t *testing.T) {
	h := newTestHarness(t)
	// Two hours from the reference time.
	seeded := h.repo.addBooked(h.p.ID, "2025-03-11", "11:30", "Asha Rao", "9876543210", "evt-a")

	h.turn(t, "s1", "hi")
	h.turn(t, "s1", "cancel my appointment")
	assert.Equal(t, msgCutoff, h.turn(t, "s1", "9876543210"))

	got, err := h.repo.GetAppointmentByID(context.Background(), seeded.ID)
	require.NoError(t, err)
	assert.Equal(t, appointment.StatusBooked, got.Status)
}

func TestCancelFailingCalendarDeleteKeepsRecordBooked(t *testing.T) {
	h := newTestHarness(t)
	seeded := h.repo.addBooked(h.p.ID, "2025-03-12", "15:00", "Asha Rao", "9876543210", "evt-a")
	h.cal.failDelete = true

	h.turn(t, "s1", "hi")
	h.turn(t, "s1", "cancel my appointment")
	h.turn(t, "s1", "9876543210")
	reply := h.turn(t, "s1", "yes")
	assert.Equal(t, msgApology, reply)

	got, err := h.repo.GetAppointmentByID(context.Background(), seeded.ID)
	require.NoError(t, err)
	assert.Equal(t, appointment.StatusBooked, got.Status)
}

func TestRescheduleHappyPath(t *testing.T) {
	h := newTestHarness(t)
	seeded := h.repo.addBooked(h.p.ID, "2025-03-12", "15:00", "Asha Rao", "9876543210", "evt-a")

	h.turn(t, "s1", "hi")
	assert.Equal(t, msgAskPhoneLookup, h.turn(t, "s1", "reschedule my appointment"))
	assert.Equal(t, msgAskNewDate, h.turn(t, "s1", "9876543210"))
	assert.Equal(t, msgAskNewTime, h.turn(t, "s1", "day after tomorrow"))

	summary := h.turn(t, "s1", "11am")
	assert.Contains(t, summary, "2025-03-13")
	assert.Contains(t, summary, "11:00")

	reply := h.turn(t, "s1", "yes")
	assert.Contains(t, reply, "rescheduled")

	got, err := h.repo.GetAppointmentByID(context.Background(), seeded.ID)
	require.NoError(t, err)
	assert.Equal(t, "2025-03-13", got.Date)
	assert.Equal(t, "11:00", got.Time)
	assert.Equal(t, []string{"evt-a"}, h.cal.patches)
}

func TestRescheduleDesyncedCalendar(t *testing.T) {
	h := newTestHarness(t)
	seeded := h.repo.addBooked(h.p.ID, "2025-03-12", "15:00", "Asha Rao", "9876543210", "evt-a")
	h.cal.failPatch = true

	h.turn(t, "s1", "hi")
	h.turn(t, "s1", "reschedule my appointment")
	h.turn(t, "s1", "9876543210")
	h.turn(t, "s1", "day after tomorrow")
	h.turn(t, "s1", "11am")

	reply := h.turn(t, "s1", "yes")
	assert.Contains(t, reply, "calendar sync is not guaranteed")

	// The record still moved.
	got, err := h.repo.GetAppointmentByID(context.Background(), seeded.ID)
	require.NoError(t, err)
	assert.Equal(t, "2025-03-13", got.Date)
}

func TestIntentSwitchNeedsConfirmation(t *testing.T) {
	h := newTestHarness(t)
	h.repo.addBooked(h.p.ID, "2025-03-13", "15:00", "Asha Rao", "9876543210", "evt-a")

	h.turn(t, "s1", "hi")
	h.turn(t, "s1", "book an appointment")
	h.turn(t, "s1", "tomorrow")

	reply := h.turn(t, "s1", "cancel my appointment")
	assert.Contains(t, reply, "Do you want to drop it")

	// Declining resumes the active flow where it left off.
	assert.Equal(t, msgAskTime, h.turn(t, "s1", "no"))

	reply = h.turn(t, "s1", "cancel my appointment")
	assert.Contains(t, reply, "Do you want to drop it")
	assert.Equal(t, msgAskPhoneLookup, h.turn(t, "s1", "yes"))
}

func TestResetPhraseMidFlow(t *testing.T) {
	h := newTestHarness(t)

	h.turn(t, "s1", "hi")
	h.turn(t, "s1", "book tomorrow at 3pm")
	assert.Equal(t, msgReset, h.turn(t, "s1", "start over"))
	assert.Equal(t, msgIdleHelp, h.turn(t, "s1", "hello"))
}

func TestCancelFastPathAfterBooking(t *testing.T) {
	h := newTestHarness(t)

	h.turn(t, "s1", "hi")
	h.turn(t, "s1", "book tomorrow at 3pm")
	h.turn(t, "s1", "asha rao")
	h.turn(t, "s1", "9876543210")
	h.turn(t, "s1", "yes")

	// Same session: no phone lookup, straight to confirmation.
	reply := h.turn(t, "s1", "cancel my appointment")
	assert.Contains(t, reply, "Do you want to cancel the appointment on 2025-03-12 at 15:00?")

	assert.Equal(t, msgCancelled, h.turn(t, "s1", "yes"))
	assert.Equal(t, 0, h.repo.bookedCount())
}

func TestSessionRebindsWhenPractitionerChanges(t *testing.T) {
	h := newTestHarness(t)
	p2 := &appointment.Practitioner{
		ID:             uuid.New(),
		Slug:           "dr-iyer",
		Name:           "Dr. Iyer",
		CalendarID:     "cal-2",
		WorkingDays:    []int{0, 1, 2, 3, 4},
		WorkStart:      "10:00",
		WorkEnd:        "18:00",
		ConsultMinutes: 30,
		Timezone:       "UTC",
		IsActive:       true,
	}
	h.repo.practitioners[p2.ID] = p2

	h.turn(t, "s1", "hi")
	h.turn(t, "s1", "book tomorrow at 3pm")
	h.turn(t, "s1", "asha rao")
	h.turn(t, "s1", "9876543210")
	h.turn(t, "s1", "yes")
	require.Equal(t, 1, h.repo.bookedCount())

	// Same session key, different practitioner: the last-booking snapshot
	// belongs to dr-rao and must not feed the fast path.
	reply, err := h.engine.HandleTurn(context.Background(), "s1", p2.ID, "test", "cancel my appointment")
	require.NoError(t, err)
	assert.Equal(t, msgAskPhoneLookup, reply)

	// Mid-flow state is dropped on rebind too.
	h.turn(t, "s2", "hi")
	h.turn(t, "s2", "book an appointment")
	h.turn(t, "s2", "tomorrow")
	reply, err = h.engine.HandleTurn(context.Background(), "s2", p2.ID, "test", "3pm")
	require.NoError(t, err)
	assert.Equal(t, msgIdleHelp, reply)
}

func TestUnknownPractitioner(t *testing.T) {
	h := newTestHarness(t)

	_, err := h.engine.HandleTurn(context.Background(), "s1", uuid.New(), "test", "hi")
	assert.ErrorIs(t, err, ErrNoPractitioner)

	_, err = h.engine.HandleTurn(context.Background(), "s1", uuid.Nil, "test", "hi")
	assert.ErrorIs(t, err, ErrNoPractitioner)
}
