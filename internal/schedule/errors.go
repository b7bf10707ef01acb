package schedule

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrFieldCount is returned when a schedule string does not have four fields
	ErrFieldCount = errors.New("schedule must have four fields")

	// ErrInvalidTime is returned when a start or stop field is not HH:MM or NONE
	ErrInvalidTime = errors.New("invalid time, expected HH:MM")

	// ErrInvalidZone is returned when a zone field is not a known IANA zone
	ErrInvalidZone = errors.New("invalid time zone")

	// ErrInvalidDay is returned when a days field contains an unknown token
	ErrInvalidDay = errors.New("invalid day")

	// ErrMissingBoundary is returned when neither start nor stop is set
	ErrMissingBoundary = errors.New("start or stop time must be set")

	// ErrInvalidOrder is returned when stop is not after start
	ErrInvalidOrder = errors.New("stop time must be after start time")

	// ErrEmptyDaySet is returned when a schedule has no active days
	ErrEmptyDaySet = errors.New("at least one day must be set")

	// ErrUnknownDay is returned when a day set holds a value outside Sunday..Saturday
	ErrUnknownDay = errors.New("unknown weekday")

	// ErrMissingZone is returned when a schedule is built without a location
	ErrMissingZone = errors.New("time zone must be set")

	// ErrZonedTimestamp is returned when Evaluate is given a timestamp carrying a zone
	ErrZonedTimestamp = errors.New("timestamp must be naive")
)

// ParseError describes a schedule string that could not be decoded.
// Kind is one of ErrFieldCount, ErrInvalidTime, ErrInvalidZone or ErrInvalidDay.
type ParseError struct {
	Field string
	Value string
	Kind  error
}

func (e *ParseError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%v: %q", e.Kind, e.Value)
	}
	return fmt.Sprintf("%s: %v: %q", e.Field, e.Kind, e.Value)
}

func (e *ParseError) Unwrap() error {
	return e.Kind
}

// ValidationError describes a schedule that violates its invariants.
type ValidationError struct {
	Kind   error
	Detail string
}

func (e *ValidationError) Error() string {
	if e.Detail == "" {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%v: %s", e.Kind, e.Detail)
}

func (e *ValidationError) Unwrap() error {
	return e.Kind
}

// PreconditionError is returned by Evaluate for a timestamp that is not naive.
type PreconditionError struct {
	Timestamp time.Time
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("%v: got location %q", ErrZonedTimestamp, e.Timestamp.Location())
}

func (e *PreconditionError) Unwrap() error {
	return ErrZonedTimestamp
}
