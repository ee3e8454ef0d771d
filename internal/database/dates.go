package database

import (
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// Stored date layouts. All values are local time.
const (
	DateFormat     = "2006-01-02"
	DateTimeFormat = "2006-01-02 15:04:05"
)

// GetToday returns today's date as YYYY-MM-DD.
func GetToday() string {
	return time.Now().Format(DateFormat)
}

// FormatDate formats t as a stored date.
func FormatDate(t time.Time) string {
	return t.Format(DateFormat)
}

// FormatDateTime formats t as a stored timestamp.
func FormatDateTime(t time.Time) string {
	return t.Format(DateTimeFormat)
}

// ParseTime parses a stored or user-entered date/time in local time.
// Stored layouts are tried first, then dateparse's lenient formats.
// The bool is false for empty or unparseable input.
func ParseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{DateTimeFormat, DateFormat, "2006/01/02 15:04:05", "2006/01/02 15:04", "2006/01/02"} {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, true
		}
	}
	t, err := dateparse.ParseIn(s, time.Local)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// NormalizeDate re-formats a lenient date string as YYYY-MM-DD, or returns ""
// when it cannot be parsed.
func NormalizeDate(s string) string {
	t, ok := ParseTime(s)
	if !ok {
		return ""
	}
	return FormatDate(t)
}

// StartOfDay truncates t to local midnight.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// DayWindow is an inclusive range of whole local days.
type DayWindow struct {
	Start time.Time // midnight of the first day
	End   time.Time // midnight of the last day
}

// NewDayWindow builds a window covering from's day through to's day.
func NewDayWindow(from, to time.Time) DayWindow {
	return DayWindow{Start: StartOfDay(from), End: StartOfDay(to)}
}

// Contains reports whether t falls on any day of the window.
func (w DayWindow) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End.AddDate(0, 0, 1))
}

// Days lists each day in the window, oldest first.
func (w DayWindow) Days() []time.Time {
	var days []time.Time
	for d := w.Start; !d.After(w.End); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}
