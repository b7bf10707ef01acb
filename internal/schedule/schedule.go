// Package schedule decides whether a resource should be powered on or off
// according to a weekly, time zone aware window.
//
// A schedule is encoded as four semicolon separated fields:
//
//	START;STOP;ZONE;DAYS
//	10:00;22:00;Europe/Paris;Mon,Tue,Wed,Thu,Fri
//
// START and STOP are HH:MM or NONE, ZONE is an IANA time zone and DAYS a
// comma separated list of Mon..Sun. Whitespace is ignored.
package schedule

import (
	"fmt"
	"strings"
	"time"
)

// Target is the verdict of a schedule for a given instant.
type Target int

const (
	// Unchanged means the schedule has no opinion at that instant
	Unchanged Target = iota
	// On means the resource should be running
	On
	// Off means the resource should be stopped
	Off
)

func (t Target) String() string {
	switch t {
	case On:
		return "on"
	case Off:
		return "off"
	default:
		return "unchanged"
	}
}

// Running reports the power state a target asks for. ok is false for Unchanged.
func (t Target) Running() (running, ok bool) {
	switch t {
	case On:
		return true, true
	case Off:
		return false, true
	default:
		return false, false
	}
}

// TimeOfDay is a wall clock time with minute precision.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// NewTimeOfDay returns a validated time of day.
func NewTimeOfDay(hour, minute int) (*TimeOfDay, error) {
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return nil, fmt.Errorf("%w: %02d:%02d", ErrInvalidTime, hour, minute)
	}
	return &TimeOfDay{Hour: hour, Minute: minute}, nil
}

// ParseTimeOfDay decodes a 24-hour HH:MM string.
func ParseTimeOfDay(s string) (*TimeOfDay, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTime, s)
	}
	return &TimeOfDay{Hour: t.Hour(), Minute: t.Minute()}, nil
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

func (t TimeOfDay) minutes() int {
	return t.Hour*60 + t.Minute
}

func (t TimeOfDay) on(year int, month time.Month, day int, loc *time.Location) time.Time {
	return localize(year, month, day, t.Hour, t.Minute, 0, 0, loc)
}

// localize returns the instant at which the wall clock in loc reads the given
// civil time. A reading repeated by a backward shift resolves to standard
// time, and a reading skipped by a forward shift is taken with the standard
// offset, so 02:30 on a spring forward day becomes 03:30 daylight time.
func localize(year int, month time.Month, day, hour, minute, sec, nsec int, loc *time.Location) time.Time {
	wall := time.Date(year, month, day, hour, minute, sec, nsec, time.UTC)

	type zone struct {
		offset int
		dst    bool
	}
	var zones []zone
	for _, probe := range []time.Time{wall.Add(-24 * time.Hour), wall.Add(24 * time.Hour)} {
		local := probe.In(loc)
		_, offset := local.Zone()
		if len(zones) == 0 || zones[0].offset != offset {
			zones = append(zones, zone{offset: offset, dst: local.IsDST()})
		}
	}

	var valid, standard []time.Time
	for _, z := range zones {
		t := wall.Add(-time.Duration(z.offset) * time.Second).In(loc)
		if _, offset := t.Zone(); offset == z.offset {
			valid = append(valid, t)
		}
		if !z.dst {
			standard = append(standard, t)
		}
	}

	switch {
	case len(valid) == 1:
		return valid[0]
	case len(valid) > 1:
		for _, t := range valid {
			if !t.IsDST() {
				return t
			}
		}
		return valid[0]
	case len(standard) > 0:
		return standard[0]
	default:
		// The zone changed twice within two days; let time.Date decide.
		return time.Date(year, month, day, hour, minute, sec, nsec, loc)
	}
}

// Schedule is an immutable weekly on/off window. Build it with New or Parse.
type Schedule struct {
	start *TimeOfDay
	stop  *TimeOfDay
	loc   *time.Location
	days  Days
}

// New validates the fields and returns a Schedule. A nil start or stop means
// the schedule has no such boundary; at least one of them must be set.
func New(start, stop *TimeOfDay, loc *time.Location, days Days) (*Schedule, error) {
	if start == nil && stop == nil {
		return nil, &ValidationError{Kind: ErrMissingBoundary}
	}
	for _, b := range []*TimeOfDay{start, stop} {
		if b == nil {
			continue
		}
		if _, err := NewTimeOfDay(b.Hour, b.Minute); err != nil {
			return nil, &ValidationError{Kind: ErrInvalidTime, Detail: b.String()}
		}
	}
	if start != nil && stop != nil && stop.minutes() <= start.minutes() {
		return nil, &ValidationError{
			Kind:   ErrInvalidOrder,
			Detail: fmt.Sprintf("start %s, stop %s", start, stop),
		}
	}
	if loc == nil {
		return nil, &ValidationError{Kind: ErrMissingZone}
	}
	if !days.valid() {
		return nil, &ValidationError{Kind: ErrUnknownDay}
	}
	if days == 0 {
		return nil, &ValidationError{Kind: ErrEmptyDaySet}
	}

	s := &Schedule{loc: loc, days: days}
	if start != nil {
		v := *start
		s.start = &v
	}
	if stop != nil {
		v := *stop
		s.stop = &v
	}
	return s, nil
}

// Start returns the start boundary and whether it is set.
func (s *Schedule) Start() (TimeOfDay, bool) {
	if s.start == nil {
		return TimeOfDay{}, false
	}
	return *s.start, true
}

// Stop returns the stop boundary and whether it is set.
func (s *Schedule) Stop() (TimeOfDay, bool) {
	if s.stop == nil {
		return TimeOfDay{}, false
	}
	return *s.stop, true
}

// Location returns the schedule time zone.
func (s *Schedule) Location() *time.Location {
	return s.loc
}

// Days returns the active days.
func (s *Schedule) Days() Days {
	return s.days
}

// Equal reports whether both schedules have the same fields.
func (s *Schedule) Equal(o *Schedule) bool {
	if s == nil || o == nil {
		return s == o
	}
	return equalBoundary(s.start, o.start) &&
		equalBoundary(s.stop, o.stop) &&
		s.loc.String() == o.loc.String() &&
		s.days == o.days
}

func equalBoundary(a, b *TimeOfDay) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// String encodes the schedule in the START;STOP;ZONE;DAYS form accepted by Parse.
func (s *Schedule) String() string {
	return strings.Join([]string{
		boundaryString(s.start),
		boundaryString(s.stop),
		s.loc.String(),
		s.days.String(),
	}, ";")
}

func boundaryString(t *TimeOfDay) string {
	if t == nil {
		return noneToken
	}
	return t.String()
}

// Evaluate returns the target for a naive timestamp, that is a wall clock
// reading with no zone of its own. Go represents it as a time.Time in
// time.UTC; the wall clock is read as civil time in the schedule zone.
// A timestamp in any other location yields a *PreconditionError.
//
// Boundaries are exclusive: a timestamp equal to start or stop has not
// passed it yet.
func (s *Schedule) Evaluate(ts time.Time) (Target, error) {
	if ts.Location() != time.UTC {
		return Unchanged, &PreconditionError{Timestamp: ts}
	}

	year, month, day := ts.Date()
	return s.evaluate(localize(year, month, day, ts.Hour(), ts.Minute(), ts.Second(), ts.Nanosecond(), s.loc)), nil
}

// EvaluateInstant returns the target for an absolute instant by reading its
// wall clock in the schedule zone.
func (s *Schedule) EvaluateInstant(t time.Time) Target {
	return s.evaluate(t.In(s.loc))
}

func (s *Schedule) evaluate(now time.Time) Target {
	if !s.days.Contains(now.Weekday()) {
		return Unchanged
	}

	// A skipped reading may land on the next civil date; anchor the
	// boundaries on the date now reads in the zone.
	year, month, day := now.Date()

	target := Unchanged
	if s.start != nil && now.After(s.start.on(year, month, day, s.loc)) {
		target = On
	}
	if s.stop != nil && now.After(s.stop.on(year, month, day, s.loc)) {
		target = Off
	}
	return target
}
