package dialogue

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/medschedule/booking-engine/internal/appointment"
	"github.com/medschedule/booking-engine/internal/nlu"
)

// The intent-specific flows share one slot-filling mechanism: an ordered list
// of stage-gated steps. A step only advances once its slot holds a valid
// value; anything else re-prompts without moving the stage.

type assignStatus int

const (
	assignOK assignStatus = iota
	// assignNoParse: the text did not contain the slot at all.
	assignNoParse
	// assignRejected: the text parsed but a policy said no.
	assignRejected
)

type slotStep struct {
	stage  Stage
	prompt string
	filled func(s *Session) bool
	assign func(ctx context.Context, e *Engine, p *appointment.Practitioner, s *Session, text string) (assignStatus, string)
	// cascade steps may consume leftovers of a message that already
	// filled an earlier slot ("book tomorrow at 3pm"). Name and phone
	// never cascade: free text is too easy to swallow as a name.
	cascade bool
}

var digitsOnlyRe = regexp.MustCompile(`\D`)

func digitsOf(text string) string {
	return digitsOnlyRe.ReplaceAllString(text, "")
}

func bookSteps(e *Engine) []slotStep {
	return []slotStep{
		{
			stage:   StageBookDate,
			prompt:  msgAskDate,
			filled:  func(s *Session) bool { return s.Date != "" },
			cascade: true,
			assign: func(ctx context.Context, e *Engine, p *appointment.Practitioner, s *Session, text string) (assignStatus, string) {
				date, ok := NormalizeDate(text, e.now())
				if !ok {
					return assignNoParse, msgBadDate
				}
				if working, err := appointment.IsWorkingDay(p, date); err != nil || !working {
					return assignRejected, msgClosedDay
				}
				s.Date = date
				return assignOK, ""
			},
		},
		{
			stage:   StageBookTime,
			prompt:  msgAskTime,
			filled:  func(s *Session) bool { return s.Time != "" },
			cascade: true,
			assign: func(ctx context.Context, e *Engine, p *appointment.Practitioner, s *Session, text string) (assignStatus, string) {
				return assignTimeSlot(ctx, e, p, s, text, nil, func(v string) { s.Time = v })
			},
		},
		{
			stage:  StageBookName,
			prompt: msgAskName,
			filled: func(s *Session) bool { return s.PatientName != "" },
			assign: func(ctx context.Context, e *Engine, p *appointment.Practitioner, s *Session, text string) (assignStatus, string) {
				name := strings.TrimSpace(text)
				if name == "" || isControlWord(name) || len(digitsOf(name)) == len(name) {
					return assignNoParse, msgBadName
				}
				s.PatientName = titleCase(name)
				return assignOK, ""
			},
		},
		{
			stage:  StageBookPhone,
			prompt: msgAskPhone,
			filled: func(s *Session) bool { return s.PatientPhone != "" },
			assign: func(ctx context.Context, e *Engine, p *appointment.Practitioner, s *Session, text string) (assignStatus, string) {
				digits := digitsOf(text)
				if len(digits) != 10 {
					return assignNoParse, msgBadPhone
				}
				s.PatientPhone = digits
				return assignOK, ""
			},
		},
	}
}

// assignTimeSlot validates a time phrase against working hours and current
// availability; excludeID keeps a rescheduled appointment from conflicting
// with itself.
func assignTimeSlot(ctx context.Context, e *Engine, p *appointment.Practitioner, s *Session, text string, excludeID *uuid.UUID, set func(string)) (assignStatus, string) {
	value, ambiguous, ok := NormalizeTime(text)
	if ambiguous {
		return assignRejected, msgAmbiguousTime
	}
	if !ok {
		return assignNoParse, msgBadTime
	}

	inHours, err := appointment.WithinWorkingHours(p, value)
	if err != nil || !inHours {
		return assignRejected, msgOutsideHours(p.WorkStart, p.WorkEnd)
	}

	date := s.Date
	if excludeID != nil {
		date = s.RescheduleDate
	}
	if !e.avail.IsAvailable(ctx, p.ID, date, value, excludeID) {
		return assignRejected, msgSlotTaken
	}

	set(value)
	return assignOK, ""
}

// runSteps drives the shared slot-filling loop. In quiet mode (flow entry)
// an unparseable message falls back to the step's question instead of a
// parse-failure complaint; policy rejections always surface.
func (e *Engine) runSteps(ctx context.Context, p *appointment.Practitioner, s *Session, message string, steps []slotStep, quiet bool, done func() (string, error)) (string, error) {
	idx := 0
	for i, st := range steps {
		if st.stage == s.Stage {
			idx = i
			break
		}
	}

	consumed := false
	for i := idx; i < len(steps); i++ {
		st := steps[i]
		if st.filled(s) {
			continue
		}
		if consumed && !st.cascade {
			s.Stage = st.stage
			return st.prompt, nil
		}

		status, reply := st.assign(ctx, e, p, s, message)
		switch status {
		case assignOK:
			consumed = true
			continue
		case assignRejected:
			s.Stage = st.stage
			return reply, nil
		case assignNoParse:
			s.Stage = st.stage
			if quiet || consumed {
				return st.prompt, nil
			}
			return reply, nil
		}
	}

	return done()
}

func (e *Engine) runBookSteps(ctx context.Context, p *appointment.Practitioner, s *Session, message string, quiet bool) (string, error) {
	return e.runSteps(ctx, p, s, message, bookSteps(e), quiet, func() (string, error) {
		s.Stage = StageBookConfirm
		return msgBookSummary(s), nil
	})
}

// seedBookSlots quietly pre-fills slots from the entity extractor's read of
// the first message. Each seed goes through the same validators as typed
// input; anything invalid is simply dropped.
func (e *Engine) seedBookSlots(ctx context.Context, p *appointment.Practitioner, s *Session, seed nlu.Extraction) {
	steps := bookSteps(e)
	seeds := []string{seed.DateText, seed.TimeText, seed.PatientName, seed.PatientPhone}
	for i, text := range seeds {
		if text == "" || steps[i].filled(s) {
			continue
		}
		// Time cannot be validated before the date is known.
		if i == 1 && s.Date == "" {
			continue
		}
		steps[i].assign(ctx, e, p, s, text)
	}
}

func (e *Engine) handleBookConfirm(ctx context.Context, p *appointment.Practitioner, s *Session, message string) (string, error) {
	switch {
	case isAffirmative(message):
		appt, err := e.coord.Book(ctx, p, s.Date, s.Time, s.PatientName, s.PatientPhone)
		if err != nil {
			switch {
			case errors.Is(err, appointment.ErrSlotTaken):
				s.Time = ""
				s.Stage = StageBookTime
				return msgSlotTaken, nil
			case errors.Is(err, appointment.ErrSlotBeingBooked):
				s.Time = ""
				s.Stage = StageBookTime
				return msgSlotContended, nil
			default:
				return "", err
			}
		}

		date, timeOfDay := appt.Date, appt.Time
		id := appt.ID
		s.ResetFlow()
		s.LastAppointmentID = &id
		e.metrics.ObserveOutcome(string(IntentBook), "committed")
		return msgBooked(date, timeOfDay), nil

	case isNegative(message):
		s.Stage = StageChangeChoice
		return msgChangeChoice, nil

	default:
		return msgBookSummary(s), nil
	}
}

// handleChangeChoice lets the user redo date or time only; name and phone are
// not revisable mid-confirm.
func (e *Engine) handleChangeChoice(s *Session, message string) (string, error) {
	msg := strings.ToLower(strings.TrimSpace(message))

	wantsDate := msg == "1" || strings.Contains(msg, "date")
	wantsTime := msg == "2" || strings.Contains(msg, "time")

	switch {
	case wantsDate:
		if s.Intent == IntentReschedule {
			s.RescheduleDate = ""
			s.RescheduleTime = ""
			s.Stage = StageRescheduleDate
			return msgAskNewDate, nil
		}
		s.Date = ""
		s.Time = ""
		s.Stage = StageBookDate
		return msgAskDate, nil
	case wantsTime:
		if s.Intent == IntentReschedule {
			s.RescheduleTime = ""
			s.Stage = StageRescheduleTime
			return msgAskNewTime, nil
		}
		s.Time = ""
		s.Stage = StageBookTime
		return msgAskTime, nil
	default:
		return msgChangeChoice, nil
	}
}

func titleCase(s string) string {
	words := strings.Fields(strings.ToLower(s))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
