package dialogue

import "strings"

// Keyword vocabularies, checked in priority order: cancellation and
// reschedule phrasing is more specific than booking phrasing, so those win.
var (
	cancelKeywords     = []string{"cancel", "delete", "remove", "drop"}
	rescheduleKeywords = []string{"reschedule", "change", "move", "shift", "modify"}
	bookKeywords       = []string{"book", "appointment", "schedule"}
)

// Qualifier words that need temporal reasoning beyond the local rules; their
// presence is one of the triggers for consulting the entity extractor.
var qualifierWords = []string{"after", "before", "same", "next", "following", "earlier", "later"}

// ClassifyIntent runs the rule-based keyword match against the lowercased
// message. It is stateless: conversation history never influences the result.
func ClassifyIntent(message string) Intent {
	msg := strings.ToLower(message)

	for _, w := range cancelKeywords {
		if strings.Contains(msg, w) {
			return IntentCancel
		}
	}
	for _, w := range rescheduleKeywords {
		if strings.Contains(msg, w) {
			return IntentReschedule
		}
	}
	for _, w := range bookKeywords {
		if strings.Contains(msg, w) {
			return IntentBook
		}
	}
	return IntentNone
}

// HasQualifier reports whether the message contains a temporal qualifier.
func HasQualifier(message string) bool {
	msg := strings.ToLower(message)
	for _, w := range qualifierWords {
		if strings.Contains(msg, w) {
			return true
		}
	}
	return false
}

// Control words recognized case-insensitively across all confirmations.
var affirmativeWords = map[string]bool{
	"yes": true, "confirm": true, "ok": true, "okay": true,
}

func isAffirmative(message string) bool {
	return affirmativeWords[strings.ToLower(strings.TrimSpace(message))]
}

func isNegative(message string) bool {
	return strings.ToLower(strings.TrimSpace(message)) == "no"
}

// isControlWord guards the name slot against swallowing yes/no answers.
func isControlWord(message string) bool {
	m := strings.ToLower(strings.TrimSpace(message))
	return m == "no" || affirmativeWords[m]
}

// Reset phrases force the session back to idle regardless of stage.
var resetPhrases = []string{"start over", "never mind", "nevermind", "restart", "reset", "forget it"}

func isResetPhrase(message string) bool {
	msg := strings.ToLower(strings.TrimSpace(message))
	for _, p := range resetPhrases {
		if msg == p {
			return true
		}
	}
	return false
}
