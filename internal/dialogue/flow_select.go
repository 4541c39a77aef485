package dialogue

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/medschedule/booking-engine/internal/appointment"
)

// enterSelection starts a cancel or reschedule flow. When the session still
// remembers the booking it just committed, that appointment is selected
// directly and the phone lookup is skipped.
func (e *Engine) enterSelection(ctx context.Context, p *appointment.Practitioner, s *Session, intent Intent) (string, error) {
	s.Intent = intent
	s.Stage = selectStage(intent)

	if s.LastAppointmentID != nil {
		appt, err := e.repo.GetAppointmentByID(ctx, *s.LastAppointmentID)
		if err == nil && appt.Status == appointment.StatusBooked && appt.PractitionerID == p.ID {
			c := Candidate{ID: appt.ID, Date: appt.Date, Time: appt.Time}
			s.Candidates = []Candidate{c}
			return e.selectCandidate(p, s, c, intent)
		}
		// Stale snapshot, fall back to the normal lookup.
		s.LastAppointmentID = nil
	}

	return msgAskPhoneLookup, nil
}

func selectStage(intent Intent) Stage {
	if intent == IntentReschedule {
		return StageRescheduleSelect
	}
	return StageCancelSelect
}

// handleSelect is two-phased: first turn expects the lookup phone number,
// later turns expect a 1-based index into the candidate list.
func (e *Engine) handleSelect(ctx context.Context, p *appointment.Practitioner, s *Session, message string, intent Intent) (string, error) {
	if len(s.Candidates) == 0 {
		phone := digitsOf(message)
		if len(phone) != 10 {
			return msgBadPhone, nil
		}

		booked, err := e.repo.ListBookedByPhone(ctx, p.ID, phone)
		if err != nil {
			return "", err
		}
		if len(booked) == 0 {
			s.ResetFlow()
			e.metrics.ObserveOutcome(string(intent), "not_found")
			return msgNoAppointments, nil
		}

		s.Candidates = make([]Candidate, 0, len(booked))
		for _, b := range booked {
			s.Candidates = append(s.Candidates, Candidate{ID: b.ID, Date: b.Date, Time: b.Time})
		}
		if len(s.Candidates) == 1 {
			return e.selectCandidate(p, s, s.Candidates[0], intent)
		}
		return msgCandidateList(s.Candidates, actionVerb(intent)), nil
	}

	n, err := strconv.Atoi(strings.TrimSpace(message))
	if err != nil || n < 1 || n > len(s.Candidates) {
		return msgBadSelection(len(s.Candidates)), nil
	}
	return e.selectCandidate(p, s, s.Candidates[n-1], intent)
}

// selectCandidate applies the modification cutoff before anything else:
// an appointment starting too soon cannot be touched from this channel.
func (e *Engine) selectCandidate(p *appointment.Practitioner, s *Session, c Candidate, intent Intent) (string, error) {
	within, err := appointment.WithinCutoff(p, &appointment.Appointment{Date: c.Date, Time: c.Time}, e.now(), e.fallbackTZ)
	if err != nil {
		return "", err
	}
	if within {
		s.ResetFlow()
		e.metrics.ObserveOutcome(string(intent), "cutoff")
		return msgCutoff, nil
	}

	id := c.ID
	s.SelectedID = &id

	if intent == IntentCancel {
		s.Stage = StageCancelConfirm
		return msgCancelConfirm(c), nil
	}
	s.Stage = StageRescheduleDate
	return msgAskNewDate, nil
}

func actionVerb(intent Intent) string {
	if intent == IntentReschedule {
		return "reschedule"
	}
	return "cancel"
}

func (e *Engine) handleCancelConfirm(ctx context.Context, p *appointment.Practitioner, s *Session, message string) (string, error) {
	switch {
	case isAffirmative(message):
		if s.SelectedID == nil {
			s.ResetFlow()
			return msgApology, nil
		}
		if _, err := e.coord.Cancel(ctx, p, *s.SelectedID); err != nil {
			return "", err
		}
		if s.LastAppointmentID != nil && *s.LastAppointmentID == *s.SelectedID {
			s.LastAppointmentID = nil
		}
		s.ResetFlow()
		e.metrics.ObserveOutcome(string(IntentCancel), "committed")
		return msgCancelled, nil

	case isNegative(message):
		s.ResetFlow()
		e.metrics.ObserveOutcome(string(IntentCancel), "declined")
		return msgDeclined, nil

	default:
		if c, ok := s.selectedCandidate(); ok {
			return msgCancelConfirm(c), nil
		}
		return msgApology, nil
	}
}

func rescheduleSteps(e *Engine) []slotStep {
	return []slotStep{
		{
			stage:   StageRescheduleDate,
			prompt:  msgAskNewDate,
			filled:  func(s *Session) bool { return s.RescheduleDate != "" },
			cascade: true,
			assign: func(ctx context.Context, e *Engine, p *appointment.Practitioner, s *Session, text string) (assignStatus, string) {
				date, ok := NormalizeDate(text, e.now())
				if !ok {
					return assignNoParse, msgBadDate
				}
				if working, err := appointment.IsWorkingDay(p, date); err != nil || !working {
					return assignRejected, msgClosedDay
				}
				s.RescheduleDate = date
				return assignOK, ""
			},
		},
		{
			stage:   StageRescheduleTime,
			prompt:  msgAskNewTime,
			filled:  func(s *Session) bool { return s.RescheduleTime != "" },
			cascade: true,
			assign: func(ctx context.Context, e *Engine, p *appointment.Practitioner, s *Session, text string) (assignStatus, string) {
				return assignTimeSlot(ctx, e, p, s, text, s.SelectedID, func(v string) { s.RescheduleTime = v })
			},
		},
	}
}

func (e *Engine) runRescheduleSteps(ctx context.Context, p *appointment.Practitioner, s *Session, message string, quiet bool) (string, error) {
	return e.runSteps(ctx, p, s, message, rescheduleSteps(e), quiet, func() (string, error) {
		s.Stage = StageRescheduleConfirm
		return msgRescheduleSummary(s), nil
	})
}

func (e *Engine) handleRescheduleConfirm(ctx context.Context, p *appointment.Practitioner, s *Session, message string) (string, error) {
	switch {
	case isAffirmative(message):
		if s.SelectedID == nil {
			s.ResetFlow()
			return msgApology, nil
		}
		res, err := e.coord.Reschedule(ctx, p, *s.SelectedID, s.RescheduleDate, s.RescheduleTime)
		if err != nil {
			switch {
			case errors.Is(err, appointment.ErrSlotTaken):
				s.RescheduleTime = ""
				s.Stage = StageRescheduleTime
				return msgSlotTaken, nil
			case errors.Is(err, appointment.ErrSlotBeingBooked):
				s.RescheduleTime = ""
				s.Stage = StageRescheduleTime
				return msgSlotContended, nil
			default:
				return "", err
			}
		}

		date, timeOfDay := res.Appointment.Date, res.Appointment.Time
		desynced := res.Desynced
		s.ResetFlow()
		e.metrics.ObserveOutcome(string(IntentReschedule), "committed")
		if desynced {
			return msgRescheduledDesynced(date, timeOfDay), nil
		}
		return msgRescheduled(date, timeOfDay), nil

	case isNegative(message):
		s.Stage = StageChangeChoice
		return msgChangeChoice, nil

	default:
		return msgRescheduleSummary(s), nil
	}
}
