package eqiva

import (
	"strings"
	"time"
)

// Day is a device weekday index or a day group.
//
// Values 0-6 follow the device numbering (0 = Saturday). The remaining
// values are groups expanded by Resolve before they reach the wire.
type Day uint8

// Device weekdays and groups.
const (
	Saturday Day = iota
	Sunday
	Monday
	Tuesday
	Wednesday
	Thursday
	Friday
	Weekend
	Workday
	Everyday
	Today
	Tomorrow
)

// daysPerWeek is the number of device weekdays.
const daysPerWeek = 7

var dayNames = [...]string{"sat", "sun", "mon", "tue", "wed", "thu", "fri", "weekend", "work", "everyday", "today", "tomorrow"}

var dayLongNames = [...]string{"Saturday", "Sunday", "Monday", "Tuesday", "Wednesday", "Thursday", "Friday"}

// ParseDay accepts the short names used by the CLI ("mon", "weekend",
// "today", ...), the long weekday names, and "workday".
func ParseDay(s string) (Day, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "workday" {
		return Workday, nil
	}
	for i, name := range dayNames {
		if s == name {
			return Day(i), nil
		}
	}
	for i, name := range dayLongNames {
		if s == strings.ToLower(name) {
			return Day(i), nil
		}
	}
	return 0, invalid("day", s, "unknown day")
}

// String returns the short name.
func (d Day) String() string {
	if int(d) < len(dayNames) {
		return dayNames[d]
	}
	return "unknown"
}

// LongName returns "Saturday".."Friday" for single days and the short name
// for groups.
func (d Day) LongName() string {
	if d.IsWeekday() {
		return dayLongNames[d]
	}
	return d.String()
}

// IsWeekday reports whether d is a single device weekday.
func (d Day) IsWeekday() bool {
	return d < daysPerWeek
}

// Weekday converts a device weekday to time.Weekday.
func (d Day) Weekday() time.Weekday {
	return time.Weekday((int(d) + 6) % daysPerWeek) //nolint:mnd // Saturday-anchored week
}

// DayOf returns the device weekday of t.
func DayOf(t time.Time) Day {
	return Day((int(t.Weekday()) + 1) % daysPerWeek)
}

// Resolve expands groups and relative days into device weekdays.
//
// Parameters:
//   - now: Reference time for Today and Tomorrow
//
// Returns:
//   - []Day: Single weekdays in ascending order
func (d Day) Resolve(now time.Time) []Day {
	switch d {
	case Weekend:
		return []Day{Saturday, Sunday}
	case Workday:
		return []Day{Monday, Tuesday, Wednesday, Thursday, Friday}
	case Everyday:
		return []Day{Saturday, Sunday, Monday, Tuesday, Wednesday, Thursday, Friday}
	case Today:
		return []Day{DayOf(now)}
	case Tomorrow:
		return []Day{DayOf(now.AddDate(0, 0, 1))}
	default:
		if d.IsWeekday() {
			return []Day{d}
		}
		return nil
	}
}
