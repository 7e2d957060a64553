// Package attendance records daily presence from face matches and resolves
// missing days to absent once the attendance window has closed.
package attendance

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kozaktomas/face-attendance/internal/database"
)

// ErrInvalidWindow is returned for malformed or inverted window configuration.
var ErrInvalidWindow = errors.New("invalid attendance window")

// TimeOfDay is a local wall-clock time with minute precision.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay parses "HH:MM" (24h).
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return TimeOfDay{}, fmt.Errorf("%w: time %q is not HH:MM", ErrInvalidWindow, s)
	}
	h, errH := strconv.Atoi(hh)
	m, errM := strconv.Atoi(mm)
	if errH != nil || errM != nil || h < 0 || h > 23 || m < 0 || m > 59 {
		return TimeOfDay{}, fmt.Errorf("%w: time %q is not HH:MM", ErrInvalidWindow, s)
	}
	return TimeOfDay{Hour: h, Minute: m}, nil
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// minutes since midnight
func (t TimeOfDay) minutes() int {
	return t.Hour*60 + t.Minute
}

// WindowState classifies an instant against a day's attendance window.
type WindowState string

const (
	WindowBefore WindowState = "BEFORE"
	WindowInside WindowState = "INSIDE"
	WindowAfter  WindowState = "AFTER"
)

// WindowSpec is the daily attendance window in a fixed time zone.
type WindowSpec struct {
	Start    TimeOfDay
	End      TimeOfDay
	Location *time.Location
}

// NewWindowSpec parses start and end ("HH:MM") and loads the time zone.
// End before start is rejected; windows never span midnight.
func NewWindowSpec(start, end, timezone string) (WindowSpec, error) {
	s, err := ParseTimeOfDay(start)
	if err != nil {
		return WindowSpec{}, err
	}
	e, err := ParseTimeOfDay(end)
	if err != nil {
		return WindowSpec{}, err
	}
	if e.minutes() < s.minutes() {
		return WindowSpec{}, fmt.Errorf("%w: end %s is before start %s", ErrInvalidWindow, e, s)
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return WindowSpec{}, fmt.Errorf("%w: %w", ErrInvalidWindow, err)
	}
	return WindowSpec{Start: s, End: e, Location: loc}, nil
}

func (w WindowSpec) location() *time.Location {
	if w.Location == nil {
		return time.UTC
	}
	return w.Location
}

// String renders the window for display, e.g. "09:00–17:00".
func (w WindowSpec) String() string {
	return w.Start.String() + "–" + w.End.String()
}

// Bounds returns the instants at which the window opens and closes on day.
// Every caller that needs window bounds goes through here.
func Bounds(spec WindowSpec, day database.Date) (start, end time.Time) {
	loc := spec.location()
	return day.At(spec.Start.Hour, spec.Start.Minute, loc), day.At(spec.End.Hour, spec.End.Minute, loc)
}

// Classify places now relative to the window of day. Both bounds are inside.
func Classify(now time.Time, spec WindowSpec, day database.Date) WindowState {
	start, end := Bounds(spec, day)
	switch {
	case now.Before(start):
		return WindowBefore
	case now.After(end):
		return WindowAfter
	default:
		return WindowInside
	}
}

// Today returns the calendar date of now in the window's time zone.
func Today(now time.Time, spec WindowSpec) database.Date {
	return database.DateOf(now, spec.location())
}
