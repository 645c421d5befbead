package scheduling

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-scheduling/internal/config"
	redisclient "github.com/hackgods/clinic-scheduling/internal/redis"
)

// memStore is an in-memory Store. Doctor locks serialize WithDoctorLock per
// doctor; staged writes are applied only when fn returns nil.
type memStore struct {
	mu           sync.Mutex
	clinics      []Clinic
	doctors      []Doctor
	windows      map[uuid.UUID]map[Weekday][]Window
	appointments []Appointment
	events       []EventLog

	lockMu      sync.Mutex
	doctorLocks map[uuid.UUID]*sync.Mutex

	failReads error
}

func newMemStore() *memStore {
	return &memStore{
		windows:     make(map[uuid.UUID]map[Weekday][]Window),
		doctorLocks: make(map[uuid.UUID]*sync.Mutex),
	}
}

func (m *memStore) addClinic(name string) Clinic {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := Clinic{ID: uuid.New(), Name: name}
	m.clinics = append(m.clinics, c)
	return c
}

func (m *memStore) addDoctor(name, specialty string, clinic *Clinic) Doctor {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := Doctor{ID: uuid.New(), Name: name, Specialty: specialty}
	if clinic != nil {
		id := clinic.ID
		d.ClinicID = &id
		d.ClinicName = clinic.Name
	}
	m.doctors = append(m.doctors, d)
	return d
}

func (m *memStore) addWindow(doctorID uuid.UUID, day Weekday, w Window) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.windows[doctorID] == nil {
		m.windows[doctorID] = make(map[Weekday][]Window)
	}
	m.windows[doctorID][day] = append(m.windows[doctorID][day], w)
}

func (m *memStore) setStatus(id uuid.UUID, status AppointmentStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.appointments {
		if m.appointments[i].ID == id {
			m.appointments[i].Status = status
		}
	}
}

func (m *memStore) appointmentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.appointments)
}

func (m *memStore) eventCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

func (m *memStore) GetWeeklyAvailability(_ context.Context, doctorID uuid.UUID, weekday Weekday) ([]Window, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failReads != nil {
		return nil, m.failReads
	}
	return slices.Clone(m.windows[doctorID][weekday]), nil
}

func (m *memStore) FindOccupyingAppointments(_ context.Context, doctorID uuid.UUID, from, to time.Time) ([]time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failReads != nil {
		return nil, m.failReads
	}
	var out []time.Time
	for _, a := range m.appointments {
		if a.DoctorID != doctorID || !a.Status.Occupies() {
			continue
		}
		if a.Start.Before(from) || a.Start.After(to) {
			continue
		}
		out = append(out, a.Start)
	}
	return out, nil
}

func (m *memStore) ResolveClinic(_ context.Context, selector string) (*Clinic, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.clinics {
		if c.ID.String() == selector || strings.Contains(strings.ToLower(c.Name), strings.ToLower(selector)) {
			return &c, nil
		}
	}
	return nil, ErrClinicNotFound
}

func (m *memStore) ResolveDoctor(_ context.Context, selector string, clinicID *uuid.UUID) (*Doctor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.doctors {
		if clinicID != nil && (d.ClinicID == nil || *d.ClinicID != *clinicID) {
			continue
		}
		if d.ID.String() == selector || strings.Contains(strings.ToLower(d.Name), strings.ToLower(selector)) {
			return &d, nil
		}
	}
	return nil, ErrDoctorNotFound
}

func (m *memStore) ListDoctors(_ context.Context, f DoctorFilter) ([]Doctor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Doctor
	for _, d := range m.doctors {
		if f.ClinicID != nil && (d.ClinicID == nil || *d.ClinicID != *f.ClinicID) {
			continue
		}
		if f.Weekday != nil && len(m.windows[d.ID][*f.Weekday]) == 0 {
			continue
		}
		if !matchesQuery(d, f.Query) {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

func matchesQuery(d Doctor, q string) bool {
	hay := strings.ToLower(d.Name + " " + d.Specialty + " " + d.ClinicName)
	for _, w := range searchWords(q) {
		if !strings.Contains(hay, strings.ToLower(w)) {
			return false
		}
	}
	return true
}

func (m *memStore) ListClinics(context.Context) ([]Clinic, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Clinic, 0, len(m.clinics))
	for _, c := range m.clinics {
		for _, d := range m.doctors {
			if d.ClinicID != nil && *d.ClinicID == c.ID {
				c.Doctors = append(c.Doctors, d)
			}
		}
		out = append(out, c)
	}
	return out, nil
}

func (m *memStore) ListAppointmentsByRequester(_ context.Context, requesterID string, limit int) ([]Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Appointment
	for _, a := range m.appointments {
		if a.RequesterID == requesterID {
			out = append(out, a)
		}
	}
	slices.SortFunc(out, func(a, b Appointment) int { return b.Start.Compare(a.Start) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) WithDoctorLock(ctx context.Context, doctorID uuid.UUID, fn func(ctx context.Context, tx BookingTx) error) error {
	m.lockMu.Lock()
	l, ok := m.doctorLocks[doctorID]
	if !ok {
		l = &sync.Mutex{}
		m.doctorLocks[doctorID] = l
	}
	m.lockMu.Unlock()

	l.Lock()
	defer l.Unlock()

	tx := &memTx{store: m}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appointments = append(m.appointments, tx.appointments...)
	m.events = append(m.events, tx.events...)
	return nil
}

type memTx struct {
	store        *memStore
	appointments []Appointment
	events       []EventLog
}

func (t *memTx) FindOccupyingAppointments(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]time.Time, error) {
	return t.store.FindOccupyingAppointments(ctx, doctorID, from, to)
}

func (t *memTx) InsertAppointment(_ context.Context, appt *Appointment) error {
	now := time.Now()
	appt.CreatedAt, appt.UpdatedAt = now, now
	t.appointments = append(t.appointments, *appt)
	return nil
}

func (t *memTx) InsertEvent(_ context.Context, ev EventLog) error {
	t.events = append(t.events, ev)
	return nil
}

// stubLocker runs fn directly unless err is set.
type stubLocker struct {
	err  error
	keys []string
	mu   sync.Mutex
}

func (l *stubLocker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	l.mu.Lock()
	l.keys = append(l.keys, key)
	l.mu.Unlock()
	if l.err != nil {
		return l.err
	}
	return fn(ctx)
}

var _ redisclient.Locker = (*stubLocker)(nil)

var errStoreDown = errors.New("connection refused")

// fixture is one clinic with Dr. Ahmed available Monday 10:00-18:00 and a
// clock frozen at Sunday 2026-01-04 12:00 UTC.
type fixture struct {
	store  *memStore
	svc    *Service
	clinic Clinic
	doctor Doctor
	now    time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	tz, err := NewNormalizer("UTC")
	if err != nil {
		t.Fatalf("NewNormalizer: %v", err)
	}
	now := time.Date(2026, 1, 4, 12, 0, 0, 0, time.UTC)
	tz = tz.WithClock(func() time.Time { return now })

	store := newMemStore()
	clinic := store.addClinic("Riyadh Heart Center")
	doctor := store.addDoctor("Dr. Ahmed Salem", "Cardiology", &clinic)
	store.addWindow(doctor.ID, Monday, Window{Start: NewTimeOfDay(10, 0), End: NewTimeOfDay(18, 0)})

	cfg := config.Config{HorizonDays: 7, MaxHorizonDays: 31, InitialStatus: string(StatusPending)}
	svc := NewService(store, nil, tz, cfg, zerolog.Nop())
	return &fixture{store: store, svc: svc, clinic: clinic, doctor: doctor, now: now}
}

func (f *fixture) book(t *testing.T, start time.Time) (*Appointment, error) {
	t.Helper()
	return f.svc.Book(context.Background(), BookingRequest{
		Doctor:      f.doctor.ID.String(),
		Start:       start,
		RequesterID: "patient-1",
		Patient:     PatientInfo{Name: "Sara Ali", Email: "sara@example.com"},
	})
}

func at(day, hour, minute int) time.Time {
	return time.Date(2026, 1, day, hour, minute, 0, 0, time.UTC)
}
