package dialogue

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Pure text-to-slot normalization. Both functions are deterministic given the
// reference time and never panic on garbage input.

var monthsByPrefix = map[string]time.Month{
	"jan": time.January, "feb": time.February, "mar": time.March,
	"apr": time.April, "may": time.May, "jun": time.June,
	"jul": time.July, "aug": time.August, "sep": time.September,
	"oct": time.October, "nov": time.November, "dec": time.December,
}

var weekdaysByName = map[string]time.Weekday{
	"sunday": time.Sunday, "monday": time.Monday, "tuesday": time.Tuesday,
	"wednesday": time.Wednesday, "thursday": time.Thursday,
	"friday": time.Friday, "saturday": time.Saturday,
}

var (
	ordinalSuffixRe = regexp.MustCompile(`(?i)\b(\d{1,2})(st|nd|rd|th)\b`)
	dayMonthRe      = regexp.MustCompile(`\b(\d{1,2})\b[^0-9]*\b(jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)[a-z]*\b`)
	monthDayRe      = regexp.MustCompile(`\b(jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)[a-z]*\b[^0-9]*\b(\d{1,2})\b`)
	isoDateRe       = regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})\b`)
)

// NormalizeDate converts a loose date phrase into a canonical YYYY-MM-DD
// relative to today. It returns ("", false) when nothing parseable is found
// or the day/month combination does not exist.
func NormalizeDate(text string, today time.Time) (string, bool) {
	t := strings.ToLower(strings.TrimSpace(text))
	today = time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, today.Location())

	if m := isoDateRe.FindStringSubmatch(t); m != nil {
		year, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		day, _ := strconv.Atoi(m[3])
		return buildDate(year, time.Month(month), day)
	}

	// Order matters: "day after tomorrow" contains "tomorrow".
	switch {
	case strings.Contains(t, "day after tomorrow"):
		return today.AddDate(0, 0, 2).Format("2006-01-02"), true
	case strings.Contains(t, "tomorrow"):
		return today.AddDate(0, 0, 1).Format("2006-01-02"), true
	case strings.Contains(t, "today"):
		return today.Format("2006-01-02"), true
	}

	if d, ok := weekdayDate(t, today); ok {
		return d, true
	}

	day, month, found := dayAndMonth(t)
	if !found {
		return "", false
	}

	d, ok := buildDate(today.Year(), month, day)
	if !ok {
		return "", false
	}
	// No explicit year: a date already behind us means next year.
	if d < today.Format("2006-01-02") {
		return buildDate(today.Year()+1, month, day)
	}
	return d, true
}

// weekdayDate resolves a weekday name. A plain weekday means the next
// occurrence; naming today's weekday rolls a full week forward, with or
// without "next".
func weekdayDate(t string, today time.Time) (string, bool) {
	for name, wd := range weekdaysByName {
		if !strings.Contains(t, name) {
			continue
		}
		delta := (int(wd) - int(today.Weekday()) + 7) % 7
		if delta == 0 {
			delta = 7
		}
		return today.AddDate(0, 0, delta).Format("2006-01-02"), true
	}
	return "", false
}

// dayAndMonth accepts "4th feb" and "feb 4th" with ordinal suffixes stripped.
func dayAndMonth(t string) (int, time.Month, bool) {
	t = ordinalSuffixRe.ReplaceAllString(t, "$1")

	if m := dayMonthRe.FindStringSubmatch(t); m != nil {
		day, _ := strconv.Atoi(m[1])
		return day, monthsByPrefix[m[2]], true
	}
	if m := monthDayRe.FindStringSubmatch(t); m != nil {
		day, _ := strconv.Atoi(m[2])
		return day, monthsByPrefix[m[1]], true
	}
	return 0, 0, false
}

// buildDate validates that the combination actually exists; day 31 in a
// 30-day month fails instead of normalizing into the next month.
func buildDate(year int, month time.Month, day int) (string, bool) {
	if day < 1 || day > 31 || month < time.January || month > time.December {
		return "", false
	}
	d := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	if d.Month() != month || d.Day() != day {
		return "", false
	}
	return d.Format("2006-01-02"), true
}

var (
	meridiemTimeRe = regexp.MustCompile(`\b(\d{1,2})(?::(\d{2}))?\s*([ap])\.?m\b`)
	clockRe        = regexp.MustCompile(`\b(\d{1,2}):(\d{2})\b`)
	compactRe      = regexp.MustCompile(`\b(\d{3,4})\b`)
	bareRe         = regexp.MustCompile(`\b(\d{1,2})\b`)
)

// NormalizeTime converts a loose time phrase into canonical HH:MM. Canonical
// output fed back in comes out unchanged.
// The second return is the ambiguity signal: a bare hour with no meridiem
// information at all is flagged so the caller re-prompts instead of the
// engine guessing silently. Hours with minutes but no meridiem fall back to
// the house heuristic: 1-6 is PM, 7-11 is AM.
func NormalizeTime(text string) (value string, ambiguous bool, ok bool) {
	t := strings.ToLower(strings.TrimSpace(text))

	pm := strings.Contains(t, "pm") || strings.Contains(t, "p.m") ||
		strings.Contains(t, "afternoon") || strings.Contains(t, "evening") ||
		strings.Contains(t, "night")
	am := strings.Contains(t, "am") || strings.Contains(t, "a.m") ||
		strings.Contains(t, "morning")

	var hour, minute int
	var bareHour, already24 bool

	switch {
	case meridiemTimeRe.MatchString(t):
		// The meridiem binds to its adjacent number, so "feb 4 at 3pm"
		// reads the 3, not the 4.
		m := meridiemTimeRe.FindStringSubmatch(t)
		hour, _ = strconv.Atoi(m[1])
		if m[2] != "" {
			minute, _ = strconv.Atoi(m[2])
		}
		pm = m[3] == "p"
		am = m[3] == "a"
	case clockRe.MatchString(t):
		m := clockRe.FindStringSubmatch(t)
		hour, _ = strconv.Atoi(m[1])
		minute, _ = strconv.Atoi(m[2])
		// A zero-padded hour only comes from 24-hour notation.
		already24 = strings.HasPrefix(m[1], "0")
	case compactRe.MatchString(t):
		// 930 or 1430 style
		m := compactRe.FindStringSubmatch(t)
		n, _ := strconv.Atoi(m[1])
		hour = n / 100
		minute = n % 100
	case bareRe.MatchString(t):
		m := bareRe.FindStringSubmatch(t)
		hour, _ = strconv.Atoi(m[1])
		bareHour = true
	default:
		return "", false, false
	}

	if minute < 0 || minute > 59 {
		return "", false, false
	}

	switch {
	case pm:
		if hour < 1 || hour > 12 {
			return "", false, false
		}
		if hour != 12 {
			hour += 12
		}
	case am:
		if hour < 1 || hour > 12 {
			return "", false, false
		}
		if hour == 12 {
			hour = 0
		}
	case hour >= 13 && hour <= 23:
		// Already 24-hour, nothing to resolve.
	case already24 || hour == 0:
		// Explicit 24-hour input, including our own canonical output,
		// stays as given.
	case bareHour:
		// A lone number like "5" carries no signal at all; ask rather
		// than guess.
		return "", true, false
	case hour >= 1 && hour <= 6:
		hour += 12
	case hour >= 7 && hour <= 11:
		// Morning as given.
	case hour == 12:
		// Noon as given.
	}

	if hour < 0 || hour > 23 {
		return "", false, false
	}

	return fmt.Sprintf("%02d:%02d", hour, minute), false, true
}
