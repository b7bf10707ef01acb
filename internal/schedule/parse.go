package schedule

import (
	"strings"
	"time"
	"unicode"
)

const (
	fieldSeparator = ";"
	fieldCount     = 4
	noneToken      = "NONE"
)

// Parse decodes a START;STOP;ZONE;DAYS schedule string. Decoding failures are
// returned as *ParseError and invariant violations as *ValidationError.
func Parse(s string) (*Schedule, error) {
	compact := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)

	fields := strings.Split(compact, fieldSeparator)
	if len(fields) != fieldCount {
		return nil, &ParseError{Value: s, Kind: ErrFieldCount}
	}

	start, err := parseBoundary("start", fields[0])
	if err != nil {
		return nil, err
	}
	stop, err := parseBoundary("stop", fields[1])
	if err != nil {
		return nil, err
	}
	loc, err := parseZone(fields[2])
	if err != nil {
		return nil, err
	}
	days, err := ParseDays(fields[3])
	if err != nil {
		return nil, err
	}

	return New(start, stop, loc, days)
}

// MustParse is like Parse but panics on error.
func MustParse(s string) *Schedule {
	sched, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return sched
}

func parseBoundary(field, value string) (*TimeOfDay, error) {
	if strings.EqualFold(value, noneToken) {
		return nil, nil
	}
	t, err := ParseTimeOfDay(value)
	if err != nil {
		return nil, &ParseError{Field: field, Value: value, Kind: ErrInvalidTime}
	}
	return t, nil
}

func parseZone(name string) (*time.Location, error) {
	// LoadLocation maps "" to UTC and "Local" to the host zone; neither is an
	// IANA name.
	if name == "" || name == "Local" {
		return nil, &ParseError{Field: "zone", Value: name, Kind: ErrInvalidZone}
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, &ParseError{Field: "zone", Value: name, Kind: ErrInvalidZone}
	}
	return loc, nil
}
