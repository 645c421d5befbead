package scheduling

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ConflictBuffer is the symmetric tolerance around an occupying appointment,
// bounds included. It is one second short of SlotGranularity: appointments
// exactly one slot apart coexist, anything closer conflicts.
const ConflictBuffer = 1799 * time.Second

// Conflicts reports whether candidate lies within ConflictBuffer (inclusive)
// of any existing occupying start. Every conflict decision in the engine goes
// through this function.
func Conflicts(existing []time.Time, candidate time.Time) bool {
	for _, e := range existing {
		d := e.Sub(candidate)
		if d < 0 {
			d = -d
		}
		if d <= ConflictBuffer {
			return true
		}
	}
	return false
}

// conflictRange is the inclusive read range that can hold a conflicting
// start for any candidate in [from, to].
func conflictRange(from, to time.Time) (time.Time, time.Time) {
	return from.Add(-ConflictBuffer), to.Add(ConflictBuffer)
}

type OccupancyReader interface {
	// FindOccupyingAppointments returns start instants of pending or
	// confirmed appointments of the doctor with from <= start <= to.
	FindOccupyingAppointments(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]time.Time, error)
}

// OverlapIndex answers conflict questions against live appointment data.
// Nothing is cached, so a cancellation is visible on the next call.
type OverlapIndex struct {
	store OccupancyReader
}

func NewOverlapIndex(store OccupancyReader) *OverlapIndex {
	return &OverlapIndex{store: store}
}

func (o *OverlapIndex) Conflicts(ctx context.Context, doctorID uuid.UUID, candidate time.Time) (bool, error) {
	from, to := conflictRange(candidate, candidate)
	starts, err := o.store.FindOccupyingAppointments(ctx, doctorID, from, to)
	if err != nil {
		return false, storeErr("find occupying appointments", err)
	}
	return Conflicts(starts, candidate), nil
}

// occupiedBetween loads every occupying start that could conflict with a
// candidate in [from, to].
func (o *OverlapIndex) occupiedBetween(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]time.Time, error) {
	lo, hi := conflictRange(from, to)
	starts, err := o.store.FindOccupyingAppointments(ctx, doctorID, lo, hi)
	if err != nil {
		return nil, storeErr("find occupying appointments", err)
	}
	return starts, nil
}
