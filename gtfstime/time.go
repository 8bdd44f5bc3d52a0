// Package gtfstime implements the seconds-since-midnight arithmetic
// GTFS schedules are built on. Unlike time.Duration, a TimeOfDay has no
// notion of a calendar day: GTFS happily encodes an overnight trip's
// 01:30:00 departure as "25:30:00" so that it sorts after the rest of
// the service day, and this package preserves that.
package gtfstime

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// ErrInvalidTime is returned when a HH:MM:SS string cannot be parsed.
var ErrInvalidTime = errors.New("invalid time")

// TimeOfDay is a non-negative count of seconds since local midnight.
// GTFS allows values >= 24*3600 for trips that run past midnight, so
// this is not clamped to a single day.
type TimeOfDay int

// Duration is a signed span of seconds, e.g. a transfer time or the
// result of subtracting two TimeOfDay values.
type Duration int

// Parse converts a GTFS "HH:MM:SS" string (HH may exceed 23) into a
// TimeOfDay.
func Parse(s string) (TimeOfDay, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 3 {
		return 0, errors.Wrapf(ErrInvalidTime, "%q: expected HH:MM:SS", s)
	}

	h, errH := strconv.Atoi(parts[0])
	m, errM := strconv.Atoi(parts[1])
	sec, errS := strconv.Atoi(parts[2])
	if errH != nil || errM != nil || errS != nil {
		return 0, errors.Wrapf(ErrInvalidTime, "%q: non-numeric component", s)
	}
	if h < 0 || m < 0 || m > 59 || sec < 0 || sec > 59 {
		return 0, errors.Wrapf(ErrInvalidTime, "%q: component out of range", s)
	}

	return TimeOfDay(h*3600 + m*60 + sec), nil
}

// String formats a TimeOfDay back into "HH:MM:SS", where HH may exceed
// 23. Parse(t.String()) == t for any non-negative TimeOfDay.
func (t TimeOfDay) String() string {
	secs := int(t)
	h := secs / 3600
	m := (secs % 3600) / 60
	s := secs % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// Add returns t advanced by d seconds. If d is negative and would take
// t below zero, the result saturates at zero instead of wrapping.
func (t TimeOfDay) Add(d Duration) TimeOfDay {
	v := int(t) + int(d)
	if v < 0 {
		return 0
	}
	return TimeOfDay(v)
}

// Sub returns the (possibly negative) span between t and u, as t - u.
func (t TimeOfDay) Sub(u TimeOfDay) Duration {
	return Duration(int(t) - int(u))
}

// Before reports whether t is strictly earlier than u.
func (t TimeOfDay) Before(u TimeOfDay) bool {
	return t < u
}

// Seconds returns the TimeOfDay as a plain int count of seconds.
func (t TimeOfDay) Seconds() int {
	return int(t)
}

// FromSeconds builds a TimeOfDay from a raw second count.
func FromSeconds(secs int) TimeOfDay {
	if secs < 0 {
		secs = 0
	}
	return TimeOfDay(secs)
}

// Min returns the earlier of a and b.
func Min(a, b TimeOfDay) TimeOfDay {
	if a < b {
		return a
	}
	return b
}

// Max returns the later of a and b.
func Max(a, b TimeOfDay) TimeOfDay {
	if a > b {
		return a
	}
	return b
}
