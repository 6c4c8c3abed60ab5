package plan

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	timePattern = regexp.MustCompile(`(?i)\b([01]?\d|2[0-3])(?::([0-5]\d)|h([0-5]\d)?)`)
	datePattern = regexp.MustCompile(`(?i)\b\d{4}-\d{2}-\d{2}\b|\btoday\b|\btomorrow\b|\bhoje\b|\bamanh(?:ã|a)`)
)

// NormalizeTime converts "14h", "14h30", "9:05" or "14:00" to HH:MM.
func NormalizeTime(s string) (string, bool) {
	s = strings.TrimSpace(s)
	m := timePattern.FindStringSubmatch(s)
	if m == nil || len(m[0]) != len(s) {
		return "", false
	}
	return clock(m), true
}

func clock(m []string) string {
	h, _ := strconv.Atoi(m[1])
	mins := m[2]
	if mins == "" {
		mins = m[3]
	}
	if mins == "" {
		mins = "00"
	}
	return fmt.Sprintf("%02d:%s", h, mins)
}

// normalizeDate maps a date token to today, tomorrow or YYYY-MM-DD.
func normalizeDate(tok string) string {
	switch t := strings.ToLower(tok); {
	case t == "today" || t == "hoje":
		return DateToday
	case strings.HasPrefix(t, "amanh") || t == "tomorrow":
		return DateTomorrow
	default:
		return t
	}
}

// ResolveDate turns a date token into a calendar day in now's location.
// Accepted forms: YYYY-MM-DD, today/hoje, tomorrow/amanhã.
func ResolveDate(tok string, now time.Time) (time.Time, error) {
	tok = strings.TrimSpace(tok)
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	switch normalizeDate(tok) {
	case DateToday:
		return day, nil
	case DateTomorrow:
		return day.AddDate(0, 0, 1), nil
	}
	d, err := time.ParseInLocation("2006-01-02", tok, now.Location())
	if err != nil {
		return time.Time{}, fmt.Errorf("unrecognized date %q (use YYYY-MM-DD, today or tomorrow)", tok)
	}
	return d, nil
}
