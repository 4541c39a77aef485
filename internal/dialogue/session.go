package dialogue

import (
	"time"

	"github.com/google/uuid"
)

type Intent string

const (
	IntentNone       Intent = ""
	IntentBook       Intent = "BOOK"
	IntentCancel     Intent = "CANCEL"
	IntentReschedule Intent = "RESCHEDULE"
)

type Stage string

const (
	StageIdle Stage = "IDLE"

	StageBookDate    Stage = "BOOK_DATE"
	StageBookTime    Stage = "BOOK_TIME"
	StageBookName    Stage = "BOOK_NAME"
	StageBookPhone   Stage = "BOOK_PHONE"
	StageBookConfirm Stage = "BOOK_CONFIRM"

	StageCancelSelect  Stage = "CANCEL_SELECT"
	StageCancelConfirm Stage = "CANCEL_CONFIRM"

	StageRescheduleSelect  Stage = "RESCHEDULE_SELECT"
	StageRescheduleDate    Stage = "RESCHEDULE_DATE"
	StageRescheduleTime    Stage = "RESCHEDULE_TIME"
	StageRescheduleConfirm Stage = "RESCHEDULE_CONFIRM"

	// User rejected a confirmation and is picking which field to redo.
	StageChangeChoice Stage = "CHANGE_CHOICE"
)

// Candidate is one selectable appointment in a cancel/reschedule list.
type Candidate struct {
	ID   uuid.UUID `json:"id"`
	Date string    `json:"date"`
	Time string    `json:"time"`
}

// Session is the per-conversation state. One session per channel session key,
// bound to exactly one practitioner at creation.
type Session struct {
	Key            string    `json:"key"`
	PractitionerID uuid.UUID `json:"practitioner_id"`
	Greeted        bool      `json:"greeted"`

	Intent Intent `json:"intent"`
	Stage  Stage  `json:"stage"`

	// BOOK slots
	Date         string `json:"date"`
	Time         string `json:"time"`
	PatientName  string `json:"patient_name"`
	PatientPhone string `json:"patient_phone"`

	// CANCEL / RESCHEDULE working set
	Candidates     []Candidate `json:"candidates,omitempty"`
	SelectedID     *uuid.UUID  `json:"selected_id,omitempty"`
	RescheduleDate string      `json:"reschedule_date"`
	RescheduleTime string      `json:"reschedule_time"`

	// Pending cross-intent switch awaiting explicit confirmation.
	PendingIntent Intent `json:"pending_intent"`

	// Snapshot of the last committed booking so an immediate follow-up
	// cancel/reschedule can skip the phone lookup.
	LastAppointmentID *uuid.UUID `json:"last_appointment_id,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}

func NewSession(key string, practitionerID uuid.UUID) *Session {
	return &Session{
		Key:            key,
		PractitionerID: practitionerID,
		Stage:          StageIdle,
	}
}

// ResetFlow clears all flow-scoped state back to the idle shape. Practitioner
// binding, the greeted flag and the last-booking snapshot survive.
func (s *Session) ResetFlow() {
	s.Intent = IntentNone
	s.Stage = StageIdle
	s.Date = ""
	s.Time = ""
	s.PatientName = ""
	s.PatientPhone = ""
	s.Candidates = nil
	s.SelectedID = nil
	s.RescheduleDate = ""
	s.RescheduleTime = ""
	s.PendingIntent = IntentNone
}

// InFlow reports whether the session is mid-flow.
func (s *Session) InFlow() bool {
	return s.Stage != StageIdle
}
