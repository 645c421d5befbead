package scheduling

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"

	redisclient "github.com/hackgods/clinic-scheduling/internal/redis"
)

func TestBookScenarios(t *testing.T) {
	f := newFixture(t)

	// A: free Monday slot.
	appt, err := f.book(t, at(5, 16, 0))
	if err != nil {
		t.Fatalf("A: %v", err)
	}
	if appt.Status != StatusPending || appt.DoctorID != f.doctor.ID {
		t.Errorf("A: unexpected appointment %+v", appt)
	}
	if appt.ClinicID == nil || *appt.ClinicID != f.clinic.ID {
		t.Errorf("A: clinic not taken from doctor: %v", appt.ClinicID)
	}

	// B: same instant again.
	if _, err := f.book(t, at(5, 16, 0)); !errors.Is(err, ErrSlotConflict) {
		t.Errorf("B: err = %v, want ErrSlotConflict", err)
	}

	// C: back to back.
	if _, err := f.book(t, at(5, 16, 30)); err != nil {
		t.Errorf("C: %v", err)
	}

	// D: 900s after A.
	if _, err := f.book(t, at(5, 16, 15)); !errors.Is(err, ErrSlotConflict) {
		t.Errorf("D: err = %v, want ErrSlotConflict", err)
	}

	// E: yesterday.
	if _, err := f.book(t, at(3, 16, 0)); !errors.Is(err, ErrPastDate) {
		t.Errorf("E: err = %v, want ErrPastDate", err)
	}

	// F: Sunday, no windows.
	if _, err := f.book(t, at(11, 10, 0)); !errors.Is(err, ErrOutsideAvailability) {
		t.Errorf("F: err = %v, want ErrOutsideAvailability", err)
	}

	if got := f.store.appointmentCount(); got != 2 {
		t.Errorf("stored %d appointments, want 2", got)
	}
	if got := f.store.eventCount(); got != 2 {
		t.Errorf("stored %d events, want 2", got)
	}
}

func TestBookConflictBoundary(t *testing.T) {
	f := newFixture(t)
	booked := at(5, 16, 0)
	if _, err := f.book(t, booked); err != nil {
		t.Fatalf("initial booking: %v", err)
	}

	tests := []struct {
		name  string
		start time.Time
		want  error
	}{
		{"1799s after", booked.Add(1799 * time.Second), ErrSlotConflict},
		{"1799s before", booked.Add(-1799 * time.Second), ErrSlotConflict},
		{"1799s after plus sub-second", booked.Add(1799*time.Second + 400*time.Nanosecond), ErrSlotConflict},
		{"1799.9s after", booked.Add(1799*time.Second + 900*time.Millisecond), ErrSlotConflict},
		{"1800s after", booked.Add(1800 * time.Second), nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.book(t, tt.start)
			if tt.want == nil && err != nil {
				t.Fatalf("err = %v, want success", err)
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}

	if got := f.store.appointmentCount(); got != 2 {
		t.Errorf("stored %d appointments, want 2", got)
	}
}

func TestBookTruncatesToWholeSeconds(t *testing.T) {
	f := newFixture(t)
	appt, err := f.book(t, at(5, 10, 0).Add(400*time.Millisecond+250*time.Nanosecond))
	if err != nil {
		t.Fatalf("Book: %v", err)
	}
	if !appt.Start.Equal(at(5, 10, 0)) {
		t.Errorf("start = %v, want %v", appt.Start, at(5, 10, 0))
	}

	f.store.mu.Lock()
	stored := f.store.appointments[0].Start
	f.store.mu.Unlock()
	if stored.Nanosecond() != 0 {
		t.Errorf("stored start %v keeps sub-second precision", stored)
	}
}

func TestBookWindowEdges(t *testing.T) {
	tests := []struct {
		name  string
		start time.Time
		want  error
	}{
		{"window start", at(5, 10, 0), nil},
		{"last slot", at(5, 17, 30), nil},
		{"off grid inside window", at(5, 17, 45), nil},
		{"window end", at(5, 18, 0), ErrOutsideAvailability},
		{"before window", at(5, 9, 30), ErrOutsideAvailability},
		{"now", time.Date(2026, 1, 4, 12, 0, 0, 0, time.UTC), ErrPastDate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.book(t, tt.start)
			if tt.want == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestBookValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name string
		req  BookingRequest
	}{
		{"missing doctor", BookingRequest{Start: at(5, 10, 0), RequesterID: "p", Patient: PatientInfo{Name: "A"}}},
		{"blank requester", BookingRequest{Doctor: "Ahmed", Start: at(5, 10, 0), RequesterID: "  ", Patient: PatientInfo{Name: "A"}}},
		{"zero start", BookingRequest{Doctor: "Ahmed", RequesterID: "p", Patient: PatientInfo{Name: "A"}}},
		{"missing patient name", BookingRequest{Doctor: "Ahmed", Start: at(5, 10, 0), RequesterID: "p"}},
		{"bad email", BookingRequest{Doctor: "Ahmed", Start: at(5, 10, 0), RequesterID: "p", Patient: PatientInfo{Name: "A", Email: "nope"}}},
		{"bad dob", BookingRequest{Doctor: "Ahmed", Start: at(5, 10, 0), RequesterID: "p", Patient: PatientInfo{Name: "A", DOB: "1990/01/01"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.svc.Book(ctx, tt.req); !errors.Is(err, ErrValidation) {
				t.Errorf("err = %v, want ErrValidation", err)
			}
		})
	}
}

func TestBookNotFound(t *testing.T) {
	f := newFixture(t)
	other := f.store.addClinic("Jeddah Family Clinic")
	ctx := context.Background()

	_, err := f.svc.Book(ctx, BookingRequest{Doctor: "Dr. Nobody", Start: at(5, 10, 0), RequesterID: "p", Patient: PatientInfo{Name: "A"}})
	if !errors.Is(err, ErrDoctorNotFound) || !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown doctor err = %v", err)
	}

	_, err = f.svc.Book(ctx, BookingRequest{Doctor: "Ahmed", Clinic: "Dammam", Start: at(5, 10, 0), RequesterID: "p", Patient: PatientInfo{Name: "A"}})
	if !errors.Is(err, ErrClinicNotFound) {
		t.Errorf("unknown clinic err = %v", err)
	}

	_, err = f.svc.Book(ctx, BookingRequest{Doctor: "Ahmed", Clinic: other.Name, Start: at(5, 10, 0), RequesterID: "p", Patient: PatientInfo{Name: "A"}})
	if !errors.Is(err, ErrDoctorNotFound) {
		t.Errorf("doctor outside named clinic err = %v", err)
	}

	// The past check runs before the doctor is looked up.
	_, err = f.svc.Book(ctx, BookingRequest{Doctor: "Dr. Nobody", Start: at(1, 10, 0), RequesterID: "p", Patient: PatientInfo{Name: "A"}})
	if !errors.Is(err, ErrPastDate) {
		t.Errorf("past + unknown doctor err = %v, want ErrPastDate", err)
	}
}

func TestBookAfterCancellation(t *testing.T) {
	f := newFixture(t)

	appt, err := f.book(t, at(5, 11, 0))
	if err != nil {
		t.Fatalf("first booking: %v", err)
	}
	if _, err := f.book(t, at(5, 11, 0)); !errors.Is(err, ErrSlotConflict) {
		t.Fatalf("second booking err = %v, want conflict", err)
	}

	f.store.setStatus(appt.ID, StatusCancelled)
	if _, err := f.book(t, at(5, 11, 0)); err != nil {
		t.Errorf("booking a cancelled instant: %v", err)
	}
}

func TestBookConcurrentSameInstant(t *testing.T) {
	f := newFixture(t)
	const attempts = 20

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.book(t, at(5, 14, 0))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, ErrSlotConflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if successes != 1 || conflicts != attempts-1 {
		t.Errorf("successes=%d conflicts=%d, want 1 and %d", successes, conflicts, attempts-1)
	}
	if got := f.store.appointmentCount(); got != 1 {
		t.Errorf("stored %d appointments, want 1", got)
	}
}

func TestBookConcurrentNearbyInstants(t *testing.T) {
	f := newFixture(t)
	starts := []time.Time{at(5, 14, 0), at(5, 14, 10), at(5, 14, 20), at(5, 14, 29)}

	var wg sync.WaitGroup
	for _, s := range starts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = f.book(t, s)
		}()
	}
	wg.Wait()

	if got := f.store.appointmentCount(); got != 1 {
		t.Errorf("stored %d appointments within one buffer, want 1", got)
	}
}

func TestBookLockerBusy(t *testing.T) {
	f := newFixture(t)
	locker := &stubLocker{err: redisclient.ErrLockNotAcquired}
	f.svc.locker = locker

	_, err := f.book(t, at(5, 10, 0))
	if !errors.Is(err, ErrSlotBeingBooked) || !errors.Is(err, ErrSlotConflict) {
		t.Fatalf("err = %v, want ErrSlotBeingBooked", err)
	}
	if f.store.appointmentCount() != 0 {
		t.Error("nothing should be stored when the guard is held")
	}
	want := "booking:" + f.doctor.ID.String() + ":"
	if len(locker.keys) != 1 || !strings.HasPrefix(locker.keys[0], want) {
		t.Errorf("guard keys = %v, want prefix %q", locker.keys, want)
	}

	locker.err = nil
	if _, err := f.book(t, at(5, 10, 0)); err != nil {
		t.Errorf("booking with free guard: %v", err)
	}
}

func TestBookStoreFailure(t *testing.T) {
	f := newFixture(t)
	f.store.failReads = errStoreDown

	_, err := f.book(t, at(5, 10, 0))
	if !errors.Is(err, ErrInfrastructure) || !errors.Is(err, errStoreDown) {
		t.Errorf("err = %v, want ErrInfrastructure wrapping the cause", err)
	}
}

func TestBookInitialStatusAndEvent(t *testing.T) {
	f := newFixture(t)
	f.svc.cfg.InitialStatus = string(StatusConfirmed)

	appt, err := f.book(t, at(5, 10, 0))
	if err != nil {
		t.Fatal(err)
	}
	if appt.Status != StatusConfirmed {
		t.Errorf("status = %s, want confirmed", appt.Status)
	}

	f.store.mu.Lock()
	ev := f.store.events[0]
	f.store.mu.Unlock()
	if ev.EventType != EventAppointmentCreated || ev.AggregateID != f.doctor.ID.String() {
		t.Errorf("event = %+v", ev)
	}
	if !ev.CreatedAt.Equal(f.now) {
		t.Errorf("event created at %v, want service clock %v", ev.CreatedAt, f.now)
	}
	var payload map[string]any
	if err := json.Unmarshal(ev.Payload, &payload); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if payload["appointment_id"] != appt.ID.String() || payload["requester_id"] != "patient-1" {
		t.Errorf("payload = %v", payload)
	}
}

func TestBookByNameInClinic(t *testing.T) {
	f := newFixture(t)
	appt, err := f.svc.Book(context.Background(), BookingRequest{
		Doctor:      "ahmed",
		Clinic:      "heart",
		Start:       at(5, 10, 30),
		RequesterID: "patient-9",
		Patient:     PatientInfo{Name: "Omar"},
	})
	if err != nil {
		t.Fatalf("Book: %v", err)
	}
	if appt.DoctorID != f.doctor.ID {
		t.Errorf("resolved doctor %v, want %v", appt.DoctorID, f.doctor.ID)
	}
}
