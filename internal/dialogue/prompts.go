package dialogue

import (
	"fmt"
	"strings"
)

// All user-visible copy lives here so the flows stay readable and the
// channel adapters stay plain-text.

const (
	msgGreeting = "Hello! I can help you book, cancel or reschedule an appointment. What would you like to do?"
	msgIdleHelp = "I can help you book, cancel or reschedule an appointment. What would you like to do?"
	msgReset    = "Okay, let's start over. How can I help you?"
	msgApology  = "Something went wrong on our side. Let's start fresh - how can I help you?"
	msgDeclined = "Okay, nothing has been changed. How else can I help?"

	msgAskDate       = "What date would you like to book?"
	msgAskTime       = "What time would you prefer?"
	msgAskName       = "Please tell me the patient's name."
	msgAskPhone      = "Please share a contact phone number."
	msgAskNewDate    = "What new date would you like?"
	msgAskNewTime    = "What new time would you prefer?"
	msgBadDate       = "Sorry, I couldn't understand that date. Try something like \"tomorrow\" or \"4th Feb\"."
	msgBadTime       = "Sorry, I couldn't understand that time. Try something like \"3pm\" or \"14:30\"."
	msgAmbiguousTime = "Just to be sure - morning or evening? Please include AM or PM."
	msgBadName       = "That doesn't look like a name. Please tell me the patient's name."
	msgBadPhone      = "Please enter a valid 10-digit phone number."

	msgClosedDay     = "The clinic is closed on that day. Could you pick another date?"
	msgSlotTaken     = "That slot is not available. Could you pick another time?"
	msgSlotContended = "That slot is being booked by someone else right now. Please try another time."

	msgAskPhoneLookup = "Please share the 10-digit phone number the booking was made with."
	msgNoAppointments = "I couldn't find any upcoming appointments for that number."
	msgCutoff         = "That appointment starts within 24 hours, so I can't change it here. Please contact the clinic by phone."
	msgCancelled      = "Your appointment has been cancelled."

	msgChangeChoice = "What would you like to change?\n1. Date\n2. Time\nReply with 1 or 2."
)

func msgOutsideHours(workStart, workEnd string) string {
	return fmt.Sprintf("That time is outside working hours (%s-%s). Could you pick another time?", workStart, workEnd)
}

func msgBooked(date, timeOfDay string) string {
	return fmt.Sprintf("Your appointment is booked for %s at %s. See you then!", date, timeOfDay)
}

func msgRescheduled(date, timeOfDay string) string {
	return fmt.Sprintf("Your appointment has been rescheduled to %s at %s.", date, timeOfDay)
}

func msgRescheduledDesynced(date, timeOfDay string) string {
	return fmt.Sprintf("Your appointment has been updated to %s at %s, but the calendar sync is not guaranteed. The clinic has been notified.", date, timeOfDay)
}

func msgBookSummary(s *Session) string {
	return fmt.Sprintf("Please confirm:\nDate: %s\nTime: %s\nName: %s\nPhone: %s\n(yes / no)",
		s.Date, s.Time, s.PatientName, s.PatientPhone)
}

func msgRescheduleSummary(s *Session) string {
	return fmt.Sprintf("Please confirm the reschedule:\nNew date: %s\nNew time: %s\n(yes / no)",
		s.RescheduleDate, s.RescheduleTime)
}

func msgCancelConfirm(c Candidate) string {
	return fmt.Sprintf("Do you want to cancel the appointment on %s at %s? (yes / no)", c.Date, c.Time)
}

func msgCandidateList(candidates []Candidate, action string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You have %d upcoming appointments. Which one would you like to %s?\n", len(candidates), action)
	for i, c := range candidates {
		fmt.Fprintf(&b, "%d. %s at %s\n", i+1, c.Date, c.Time)
	}
	b.WriteString("Reply with the number.")
	return b.String()
}

func msgBadSelection(n int) string {
	return fmt.Sprintf("Please reply with a number between 1 and %d.", n)
}

func msgSwitchIntent(active, requested Intent) string {
	return fmt.Sprintf("You're in the middle of a %s flow. Do you want to drop it and %s instead? (yes / no)",
		strings.ToLower(string(active)), strings.ToLower(string(requested)))
}
