package schedule

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const defaultSchedule = "10:00;22:00;UTC;Mon,Tue,Wed,Thu,Fri,Sat,Sun"

func TestParse(t *testing.T) {
	t.Run("Default", func(t *testing.T) {
		got, err := Parse(defaultSchedule)
		require.NoError(t, err)

		want := mustNew(t, tod(10, 0), tod(22, 0), time.UTC, Everyday)
		assert.True(t, want.Equal(got), "got %s", got)
	})

	t.Run("Whitespace", func(t *testing.T) {
		got, err := Parse(" 10:00 ;\t22:00; UTC ;\nMon, Tue,Wed ,Thu,Fri,Sat,Sun \n")
		require.NoError(t, err)
		assert.Equal(t, defaultSchedule, got.String())
	})

	t.Run("None Is Case Insensitive", func(t *testing.T) {
		got, err := Parse("none;22:00;UTC;Mon")
		require.NoError(t, err)
		_, ok := got.Start()
		assert.False(t, ok)

		got, err = Parse("10:00;NoNe;UTC;Mon")
		require.NoError(t, err)
		_, ok = got.Stop()
		assert.False(t, ok)
	})

	t.Run("Duplicate Days", func(t *testing.T) {
		got, err := Parse("10:00;NONE;UTC;Mon,Mon,Fri")
		require.NoError(t, err)
		assert.Equal(t, NewDays(time.Monday, time.Friday), got.Days())
	})

	t.Run("Zone", func(t *testing.T) {
		got, err := Parse("08:00;18:00;Europe/Paris;Mon,Tue,Wed,Thu,Fri")
		require.NoError(t, err)
		assert.Equal(t, "Europe/Paris", got.Location().String())
		assert.Equal(t, Weekdays, got.Days())
	})
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  error
	}{
		{"Empty", "", ErrFieldCount},
		{"Three Fields", "10:00;22:00;UTC", ErrFieldCount},
		{"Five Fields", "10:00;22:00;UTC;Mon;Tue", ErrFieldCount},
		{"Bad Start", "10h00;22:00;UTC;Mon", ErrInvalidTime},
		{"Bad Stop", "10:00;25:00;UTC;Mon", ErrInvalidTime},
		{"Bad Minute", "10:61;NONE;UTC;Mon", ErrInvalidTime},
		{"Empty Start", ";22:00;UTC;Mon", ErrInvalidTime},
		{"Bad Zone", "10:00;22:00;Mars/Olympus;Mon", ErrInvalidZone},
		{"Empty Zone", "10:00;22:00;;Mon", ErrInvalidZone},
		{"Local Zone", "10:00;22:00;Local;Mon", ErrInvalidZone},
		{"Bad Day", "10:00;22:00;UTC;Mon,Funday", ErrInvalidDay},
		{"Lower Case Day", "10:00;22:00;UTC;mon", ErrInvalidDay},
		{"Empty Days", "10:00;22:00;UTC;", ErrInvalidDay},
		{"Trailing Comma", "10:00;22:00;UTC;Mon,", ErrInvalidDay},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := Parse(tt.input)
			require.Error(t, err)
			assert.Nil(t, s)
			assert.ErrorIs(t, err, tt.want)

			var perr *ParseError
			assert.True(t, errors.As(err, &perr))
		})
	}
}

func TestParseValidationErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  error
	}{
		{"No Boundary", "NONE;NONE;UTC;Mon", ErrMissingBoundary},
		{"Stop Before Start", "22:00;10:00;UTC;Mon", ErrInvalidOrder},
		{"Stop Equals Start", "10:00;10:00;UTC;Mon", ErrInvalidOrder},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.input)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)

			var verr *ValidationError
			assert.True(t, errors.As(err, &verr))
		})
	}
}

func TestRoundTrip(t *testing.T) {
	inputs := []string{
		defaultSchedule,
		"NONE;22:00;UTC;Sat,Sun",
		"07:15;NONE;Asia/Tokyo;Mon,Wed,Fri",
		"00:00;23:59;America/Argentina/Buenos_Aires;Sun",
		"09:00 ; 17:30 ; Europe/London ; Fri,Thu,Wed,Tue,Mon",
	}

	for _, input := range inputs {
		t.Run(input, func(t *testing.T) {
			first, err := Parse(input)
			require.NoError(t, err)

			second, err := Parse(first.String())
			require.NoError(t, err)
			assert.True(t, first.Equal(second), "%s != %s", first, second)
			assert.Equal(t, first.String(), second.String())
		})
	}
}

func TestMustParse(t *testing.T) {
	assert.NotPanics(t, func() { MustParse(defaultSchedule) })
	assert.Panics(t, func() { MustParse("garbage") })
}
