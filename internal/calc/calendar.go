// Package calc holds the pure metric calculators used by the rule jobs.
// Nothing in this package performs I/O.
package calc

import (
	"strings"
	"time"
)

// Day returns midnight UTC of the civil date t falls on in its own location.
// Date-only fields are stored in this form.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Wall returns the wall-clock reading of t on the UTC axis that calendar
// dates are stored on, so it compares directly with Day values.
func Wall(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
}

// StartOfDay returns local midnight of t.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// StartOfWeek returns the Monday of the week containing day.
func StartOfWeek(day time.Time) time.Time {
	offset := (int(day.Weekday()) + 6) % 7
	return day.AddDate(0, 0, -offset)
}

// DaysBetween returns whole days from a to b (both date values).
func DaysBetween(a, b time.Time) int {
	return int(Day(b).Sub(Day(a)).Hours() / 24)
}

// DefaultWorkingDays is the six-day week assumed when a user has none configured.
var DefaultWorkingDays = []time.Weekday{
	time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday, time.Saturday,
}

var weekdayNames = map[string]time.Weekday{
	"sunday": time.Sunday, "sun": time.Sunday,
	"monday": time.Monday, "mon": time.Monday,
	"tuesday": time.Tuesday, "tue": time.Tuesday, "tues": time.Tuesday,
	"wednesday": time.Wednesday, "wed": time.Wednesday,
	"thursday": time.Thursday, "thu": time.Thursday, "thur": time.Thursday, "thurs": time.Thursday,
	"friday": time.Friday, "fri": time.Friday,
	"saturday": time.Saturday, "sat": time.Saturday,
}

// ParseWeekdays converts full or abbreviated day names, case-insensitively.
// Unknown names are ignored; an empty result falls back to DefaultWorkingDays.
func ParseWeekdays(names []string) map[time.Weekday]bool {
	set := make(map[time.Weekday]bool, 7)
	for _, name := range names {
		if wd, ok := weekdayNames[strings.ToLower(strings.TrimSpace(name))]; ok {
			set[wd] = true
		}
	}
	if len(set) == 0 {
		for _, wd := range DefaultWorkingDays {
			set[wd] = true
		}
	}
	return set
}

// Lookback caps for WorkingDays.
const (
	ShortLookbackDays = 30
	LongLookbackDays  = 60
)

// WorkingDays walks backward from the day before today and returns up to count
// days whose weekday is in the user's working set, most recent first. The walk
// stops after lookbackCap calendar days even when fewer than count were found.
func WorkingDays(today time.Time, workingDays []string, count, lookbackCap int) []time.Time {
	set := ParseWeekdays(workingDays)
	return collectDays(Day(today), count, lookbackCap, func(d time.Time) bool {
		return set[d.Weekday()]
	})
}

// DaysExcludingSunday returns the last count days before today skipping Sundays.
func DaysExcludingSunday(today time.Time, count int) []time.Time {
	return collectDays(Day(today), count, count*2+1, func(d time.Time) bool {
		return d.Weekday() != time.Sunday
	})
}

func collectDays(today time.Time, count, lookbackCap int, keep func(time.Time) bool) []time.Time {
	days := make([]time.Time, 0, count)
	for i := 1; i <= lookbackCap && len(days) < count; i++ {
		d := today.AddDate(0, 0, -i)
		if keep(d) {
			days = append(days, d)
		}
	}
	return days
}
