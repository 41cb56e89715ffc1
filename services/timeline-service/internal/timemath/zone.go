// Package timemath does calendar arithmetic in a single configured timezone.
// Every derived value (day keys, offsets, ranges, labels) is computed from the
// wall clock of that zone, never from the host process's local zone.
package timemath

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"
	_ "time/tzdata"
)

var (
	ErrInvalidTimeFormat = errors.New("timemath: invalid time format")
	ErrInvalidDayKey     = errors.New("timemath: invalid day key")
	ErrUnknownTimezone   = errors.New("timemath: unknown timezone")
)

const DefaultTimezone = "Asia/Jerusalem"

const dayKeyLayout = "2006-01-02"

var clockPattern = regexp.MustCompile(`^\d{1,2}:\d{2}$`)

type Zone struct {
	loc *time.Location
}

func LoadZone(name string) (*Zone, error) {
	if name == "" {
		name = DefaultTimezone
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTimezone, name)
	}
	return &Zone{loc: loc}, nil
}

func NewZone(loc *time.Location) *Zone {
	if loc == nil {
		loc = time.UTC
	}
	return &Zone{loc: loc}
}

func (z *Zone) Location() *time.Location { return z.loc }

func (z *Zone) Name() string { return z.loc.String() }

func (z *Zone) In(t time.Time) time.Time { return t.In(z.loc) }

// DayKey returns the local calendar day of t as YYYY-MM-DD.
func (z *Zone) DayKey(t time.Time) string {
	return t.In(z.loc).Format(dayKeyLayout)
}

// MinutesFromMidnight returns the wall-clock minute of the local day, in [0, 1440).
// On DST transition days the wall clock is used, so 03:00 is always 180.
func (z *Zone) MinutesFromMidnight(t time.Time) int {
	local := t.In(z.loc)
	return local.Hour()*60 + local.Minute()
}

func (z *Zone) StartOfDay(t time.Time) time.Time {
	y, m, d := t.In(z.loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, z.loc)
}

// AddDays moves t by n local calendar days, keeping the wall clock.
func (z *Zone) AddDays(t time.Time, n int) time.Time {
	local := t.In(z.loc)
	y, m, d := local.Date()
	return time.Date(y, m, d+n, local.Hour(), local.Minute(), local.Second(), local.Nanosecond(), z.loc)
}

func (z *Zone) Today(now time.Time) time.Time {
	return z.StartOfDay(now)
}

func (z *Zone) IsToday(t, now time.Time) bool {
	return z.DayKey(t) == z.DayKey(now)
}

// ParseDayKey returns local midnight of the YYYY-MM-DD day key.
func (z *Zone) ParseDayKey(key string) (time.Time, error) {
	t, err := time.ParseInLocation(dayKeyLayout, key, z.loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDayKey, key)
	}
	return t, nil
}

// ParseClock parses "H:MM" or "HH:MM" into hour and minute.
func ParseClock(hhmm string) (int, int, error) {
	if !clockPattern.MatchString(hhmm) {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidTimeFormat, hhmm)
	}
	i := len(hhmm) - 3
	hour, _ := strconv.Atoi(hhmm[:i])
	minute, _ := strconv.Atoi(hhmm[i+1:])
	if hour > 23 || minute > 59 {
		return 0, 0, fmt.Errorf("%w: %q out of range", ErrInvalidTimeFormat, hhmm)
	}
	return hour, minute, nil
}

// ParseLocalTime places the wall-clock time hhmm on the local day of baseDay.
func (z *Zone) ParseLocalTime(hhmm string, baseDay time.Time) (time.Time, error) {
	hour, minute, err := ParseClock(hhmm)
	if err != nil {
		return time.Time{}, err
	}
	y, m, d := baseDay.In(z.loc).Date()
	return time.Date(y, m, d, hour, minute, 0, 0, z.loc), nil
}

var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// ParseDateTime accepts either an offset-bearing RFC 3339 timestamp, which is
// taken as is, or a naive local timestamp, which is read as wall clock in z.
func (z *Zone) ParseDateTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, s, z.loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("timemath: parse date time %q: unrecognized layout", s)
}

func (z *Zone) FormatClock(t time.Time) string {
	return t.In(z.loc).Format("15:04")
}

func DiffMinutes(start, end time.Time) int {
	return int(end.Sub(start) / time.Minute)
}
