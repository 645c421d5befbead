package scheduling

import (
	"context"

	"github.com/google/uuid"
)

// DoctorFilter narrows ListDoctors. Zero fields do not filter.
type DoctorFilter struct {
	ClinicID *uuid.UUID
	// Query is matched word by word against doctor name, specialty and clinic name.
	Query string
	// Weekday keeps only doctors with at least one window on that day.
	Weekday *Weekday
}

// Store contains all persistence the engine needs. Doctors, clinics and
// weekly templates are read-only here; appointments and events are written
// only through BookingTx.
type Store interface {
	AvailabilityReader
	OccupancyReader

	// ResolveClinic finds a clinic by id or by case-insensitive name fragment.
	ResolveClinic(ctx context.Context, selector string) (*Clinic, error)
	// ResolveDoctor finds a doctor by id or name fragment, restricted to
	// clinicID when it is set.
	ResolveDoctor(ctx context.Context, selector string, clinicID *uuid.UUID) (*Doctor, error)
	ListDoctors(ctx context.Context, filter DoctorFilter) ([]Doctor, error)
	ListClinics(ctx context.Context) ([]Clinic, error)
	ListAppointmentsByRequester(ctx context.Context, requesterID string, limit int) ([]Appointment, error)

	// WithDoctorLock runs fn in one transaction that holds the doctor's
	// exclusive booking lock. fn's writes commit only if it returns nil.
	WithDoctorLock(ctx context.Context, doctorID uuid.UUID, fn func(ctx context.Context, tx BookingTx) error) error
}

type BookingTx interface {
	OccupancyReader
	InsertAppointment(ctx context.Context, appt *Appointment) error
	InsertEvent(ctx context.Context, ev EventLog) error
}
