package schedule

import (
	"strings"
	"time"
)

// Days is a set of weekdays stored as a bit mask indexed by time.Weekday.
type Days uint8

// Everyday holds all seven weekdays.
const Everyday Days = 1<<7 - 1

// Weekdays holds Monday through Friday.
const Weekdays Days = 1<<time.Monday | 1<<time.Tuesday | 1<<time.Wednesday | 1<<time.Thursday | 1<<time.Friday

// Encoding order, Monday first.
var dayOrder = []time.Weekday{
	time.Monday,
	time.Tuesday,
	time.Wednesday,
	time.Thursday,
	time.Friday,
	time.Saturday,
	time.Sunday,
}

var dayTokens = map[string]time.Weekday{
	"Mon": time.Monday,
	"Tue": time.Tuesday,
	"Wed": time.Wednesday,
	"Thu": time.Thursday,
	"Fri": time.Friday,
	"Sat": time.Saturday,
	"Sun": time.Sunday,
}

// NewDays builds a set from the given weekdays. Duplicates collapse.
// Values outside Sunday..Saturday are kept out of the mask and reported by
// New as ErrUnknownDay, so callers should prefer the time.Weekday constants.
func NewDays(days ...time.Weekday) Days {
	var d Days
	for _, day := range days {
		d = d.With(day)
	}
	return d
}

// With returns the set with day added.
func (d Days) With(day time.Weekday) Days {
	if day < time.Sunday || day > time.Saturday {
		// Marks the set invalid; see valid.
		return d | 1<<7
	}
	return d | 1<<day
}

// Contains reports whether day is in the set.
func (d Days) Contains(day time.Weekday) bool {
	if day < time.Sunday || day > time.Saturday {
		return false
	}
	return d&(1<<day) != 0
}

// Len returns the number of days in the set.
func (d Days) Len() int {
	n := 0
	for _, day := range dayOrder {
		if d.Contains(day) {
			n++
		}
	}
	return n
}

// List returns the days in the set, Monday first.
func (d Days) List() []time.Weekday {
	days := make([]time.Weekday, 0, 7)
	for _, day := range dayOrder {
		if d.Contains(day) {
			days = append(days, day)
		}
	}
	return days
}

func (d Days) valid() bool {
	return d&^Everyday == 0
}

// String encodes the set as comma separated three-letter tokens, Monday first.
func (d Days) String() string {
	tokens := make([]string, 0, 7)
	for _, day := range d.List() {
		tokens = append(tokens, day.String()[:3])
	}
	return strings.Join(tokens, ",")
}

// ParseDays decodes a comma separated list of day tokens (Mon..Sun).
func ParseDays(s string) (Days, error) {
	var d Days
	for _, token := range strings.Split(s, ",") {
		day, ok := dayTokens[token]
		if !ok {
			return 0, &ParseError{Field: "days", Value: token, Kind: ErrInvalidDay}
		}
		d = d.With(day)
	}
	return d, nil
}
