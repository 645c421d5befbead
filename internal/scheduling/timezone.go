package scheduling

import (
	"fmt"
	"strings"
	"time"
)

const (
	dateLayout     = "2006-01-02"
	instantLayout  = "2006-01-02 15:04"
	instantLayoutS = "2006-01-02 15:04:05"
)

// Normalizer turns date and time strings into instants in the one canonical
// zone the engine works in. It also owns "now", so every past/future decision
// is taken against the same zone and the same clock.
type Normalizer struct {
	loc *time.Location
	now func() time.Time
}

func NewNormalizer(tzName string) (*Normalizer, error) {
	if tzName == "" {
		tzName = "UTC"
	}
	loc, err := time.LoadLocation(tzName)
	if err != nil {
		return nil, fmt.Errorf("%w: unknown timezone %q", ErrValidation, tzName)
	}
	return &Normalizer{loc: loc, now: time.Now}, nil
}

// WithClock returns a copy whose Now reads from clock.
func (n *Normalizer) WithClock(clock func() time.Time) *Normalizer {
	return &Normalizer{loc: n.loc, now: clock}
}

func (n *Normalizer) Location() *time.Location { return n.loc }

func (n *Normalizer) Now() time.Time { return n.now().In(n.loc) }

func (n *Normalizer) In(t time.Time) time.Time { return t.In(n.loc) }

// DateOf is local midnight of the day t falls on.
func (n *Normalizer) DateOf(t time.Time) time.Time {
	t = t.In(n.loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, n.loc)
}

func (n *Normalizer) ParseDate(s string) (time.Time, error) {
	d, err := time.ParseInLocation(dateLayout, strings.TrimSpace(s), n.loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date %q must be YYYY-MM-DD", ErrValidation, s)
	}
	return d, nil
}

// Normalize combines a YYYY-MM-DD date with an HH:MM or HH:MM:SS clock time.
func (n *Normalizer) Normalize(date, clock string) (time.Time, error) {
	day, err := n.ParseDate(date)
	if err != nil {
		return time.Time{}, err
	}
	tod, err := ParseTimeOfDay(clock)
	if err != nil {
		return time.Time{}, err
	}
	return Combine(day, tod), nil
}

// Parse accepts "YYYY-MM-DD HH:MM[:SS]" read in the canonical zone, or an
// RFC 3339 instant which is converted into it.
func (n *Normalizer) Parse(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{instantLayout, instantLayoutS} {
		if t, err := time.ParseInLocation(layout, s, n.loc); err == nil {
			return t, nil
		}
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.In(n.loc), nil
	}
	return time.Time{}, fmt.Errorf("%w: instant %q must be YYYY-MM-DD HH:MM or RFC 3339", ErrValidation, s)
}
