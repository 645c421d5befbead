package scheduling

import (
	"context"
	"iter"
	"slices"
	"time"

	"github.com/google/uuid"
)

// SlotGranularity is the fixed step between candidate starts and the nominal
// length of an appointment.
const SlotGranularity = 30 * time.Minute

// Generator expands weekly windows into free, future slot starts.
type Generator struct {
	calendar *Calendar
	overlap  *OverlapIndex
	tz       *Normalizer
}

func NewGenerator(calendar *Calendar, overlap *OverlapIndex, tz *Normalizer) *Generator {
	return &Generator{calendar: calendar, overlap: overlap, tz: tz}
}

// Candidates lists every slot start the windows produce on day, in order and
// without duplicates. A candidate is kept while its start is before the
// window end, even when the slot's nominal duration runs past it.
func Candidates(windows []Window, day time.Time) []time.Time {
	var out []time.Time
	for _, iv := range Expand(windows, day) {
		for t := iv.Start; t.Before(iv.End); t = t.Add(SlotGranularity) {
			out = append(out, t)
		}
	}
	slices.SortFunc(out, func(a, b time.Time) int { return a.Compare(b) })
	return slices.CompactFunc(out, func(a, b time.Time) bool { return a.Equal(b) })
}

// ListSlots lazily yields the doctor's bookable slots for horizonDays calendar
// days starting at horizonStart's date, chronologically. Each day's data is
// read when the sequence reaches it. The sequence stops after the first error.
func (g *Generator) ListSlots(ctx context.Context, doctorID uuid.UUID, horizonStart time.Time, horizonDays int) iter.Seq2[Slot, error] {
	return func(yield func(Slot, error) bool) {
		now := g.tz.Now()
		first := g.tz.DateOf(horizonStart)

		for i := 0; i < horizonDays; i++ {
			if err := ctx.Err(); err != nil {
				yield(Slot{}, err)
				return
			}

			day := first.AddDate(0, 0, i)
			if !day.AddDate(0, 0, 1).After(now) {
				continue
			}

			slots, err := g.slotsOn(ctx, doctorID, day, now)
			if err != nil {
				yield(Slot{}, err)
				return
			}
			for _, s := range slots {
				if !yield(s, nil) {
					return
				}
			}
		}
	}
}

func (g *Generator) slotsOn(ctx context.Context, doctorID uuid.UUID, day, now time.Time) ([]Slot, error) {
	weekday := WeekdayOf(day)
	windows, err := g.calendar.WindowsFor(ctx, doctorID, weekday)
	if err != nil {
		return nil, err
	}

	candidates := slices.DeleteFunc(Candidates(windows, day), func(t time.Time) bool {
		return !t.After(now)
	})
	if len(candidates) == 0 {
		return nil, nil
	}

	busy, err := g.overlap.occupiedBetween(ctx, doctorID, candidates[0], candidates[len(candidates)-1])
	if err != nil {
		return nil, err
	}

	slots := make([]Slot, 0, len(candidates))
	for _, c := range candidates {
		if Conflicts(busy, c) {
			continue
		}
		slots = append(slots, Slot{Date: day, Weekday: weekday, Start: c})
	}
	return slots, nil
}
