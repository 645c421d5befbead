package scheduling

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Weekday numbers days Monday=0 .. Sunday=6, the way availability rows store them.
type Weekday int

const (
	Monday Weekday = iota
	Tuesday
	Wednesday
	Thursday
	Friday
	Saturday
	Sunday
)

func (d Weekday) String() string {
	if d < Monday || d > Sunday {
		return fmt.Sprintf("Weekday(%d)", int(d))
	}
	return time.Weekday((int(d) + 1) % 7).String()
}

func (d Weekday) Valid() bool { return d >= Monday && d <= Sunday }

// WeekdayOf reads the weekday of t in t's own location.
func WeekdayOf(t time.Time) Weekday {
	return Weekday((int(t.Weekday()) + 6) % 7)
}

// TimeOfDay is a wall-clock offset from local midnight.
type TimeOfDay time.Duration

func NewTimeOfDay(hour, minute int) TimeOfDay {
	return TimeOfDay(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute)
}

// ParseTimeOfDay accepts HH:MM or HH:MM:SS. 24:00 is allowed as a window end.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	s = strings.TrimSpace(s)
	if s == "24:00" || s == "24:00:00" {
		return TimeOfDay(24 * time.Hour), nil
	}
	for _, layout := range []string{"15:04", "15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return TimeOfDayOf(t), nil
		}
	}
	return 0, fmt.Errorf("%w: time %q must be HH:MM", ErrValidation, s)
}

func TimeOfDayOf(t time.Time) TimeOfDay {
	return TimeOfDay(time.Duration(t.Hour())*time.Hour +
		time.Duration(t.Minute())*time.Minute +
		time.Duration(t.Second())*time.Second +
		time.Duration(t.Nanosecond()))
}

func (t TimeOfDay) String() string {
	d := time.Duration(t)
	h := d / time.Hour
	m := (d % time.Hour) / time.Minute
	if s := (d % time.Minute) / time.Second; s != 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", h, m)
}

// Combine places a wall-clock time on the calendar day of day, in day's location.
func Combine(day time.Time, tod TimeOfDay) time.Time {
	d := time.Duration(tod)
	h := int(d / time.Hour)
	m := int((d % time.Hour) / time.Minute)
	s := int((d % time.Minute) / time.Second)
	ns := int(d % time.Second)
	return time.Date(day.Year(), day.Month(), day.Day(), h, m, s, ns, day.Location())
}

// Window is a half-open [Start, End) wall-clock interval within one day.
type Window struct {
	Start TimeOfDay
	End   TimeOfDay
}

func (w Window) Valid() bool { return w.Start < w.End }

func (w Window) Contains(tod TimeOfDay) bool { return w.Start <= tod && tod < w.End }

func (w Window) String() string { return w.Start.String() + "-" + w.End.String() }

type Interval struct {
	Start time.Time
	End   time.Time
}

// Expand turns a day's template windows into concrete intervals on day.
// Slot generation, listing and booking validation all go through here.
func Expand(windows []Window, day time.Time) []Interval {
	out := make([]Interval, 0, len(windows))
	for _, w := range windows {
		out = append(out, Interval{Start: Combine(day, w.Start), End: Combine(day, w.End)})
	}
	return out
}

// Covers reports whether instant falls inside any of the windows expanded on
// its own calendar day.
func Covers(windows []Window, instant time.Time) bool {
	for _, iv := range Expand(windows, instant) {
		if !instant.Before(iv.Start) && instant.Before(iv.End) {
			return true
		}
	}
	return false
}

type AvailabilityReader interface {
	GetWeeklyAvailability(ctx context.Context, doctorID uuid.UUID, weekday Weekday) ([]Window, error)
}

// Calendar is the read-only view of doctors' weekly templates.
type Calendar struct {
	store AvailabilityReader
}

func NewCalendar(store AvailabilityReader) *Calendar {
	return &Calendar{store: store}
}

// WindowsFor returns the doctor's windows on weekday ordered by start. No
// windows is an empty result, not an error.
func (c *Calendar) WindowsFor(ctx context.Context, doctorID uuid.UUID, weekday Weekday) ([]Window, error) {
	if !weekday.Valid() {
		return nil, fmt.Errorf("%w: weekday %d", ErrValidation, int(weekday))
	}
	windows, err := c.store.GetWeeklyAvailability(ctx, doctorID, weekday)
	if err != nil {
		return nil, storeErr("load weekly availability", err)
	}
	windows = slices.DeleteFunc(slices.Clone(windows), func(w Window) bool { return !w.Valid() })
	slices.SortStableFunc(windows, func(a, b Window) int {
		if r := cmp.Compare(a.Start, b.Start); r != 0 {
			return r
		}
		return cmp.Compare(a.End, b.End)
	})
	return windows, nil
}
