package scheduling

import (
	"time"

	"github.com/google/uuid"
)

type AppointmentStatus string

const (
	StatusPending   AppointmentStatus = "pending"
	StatusConfirmed AppointmentStatus = "confirmed"
	StatusCancelled AppointmentStatus = "cancelled"
)

// Occupies reports whether an appointment in this status blocks conflicting slots.
func (s AppointmentStatus) Occupies() bool {
	return s == StatusPending || s == StatusConfirmed
}

type Clinic struct {
	ID          uuid.UUID
	Name        string
	Location    string
	Description string
	Phone       string
	Doctors     []Doctor
}

type Doctor struct {
	ID         uuid.UUID
	ClinicID   *uuid.UUID
	ClinicName string
	Name       string
	Specialty  string
}

// WeeklyAvailability is one recurring window of a doctor's weekly template.
type WeeklyAvailability struct {
	DoctorID uuid.UUID
	Weekday  Weekday
	Window   Window
}

// PatientInfo is carried through to storage; the engine only validates its shape.
type PatientInfo struct {
	Name  string `json:"name" validate:"required,max=150"`
	DOB   string `json:"dob" validate:"omitempty,datetime=2006-01-02"`
	Phone string `json:"phone" validate:"max=20"`
	Email string `json:"email" validate:"omitempty,email"`
}

type Appointment struct {
	ID          uuid.UUID
	DoctorID    uuid.UUID
	ClinicID    *uuid.UUID
	RequesterID string
	Start       time.Time
	Status      AppointmentStatus
	Patient     PatientInfo
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	AggregateID   string
	Payload       []byte
	CreatedAt     time.Time
}

// Slot is one bookable candidate instant.
type Slot struct {
	Date    time.Time // local midnight of the slot's day
	Weekday Weekday
	Start   time.Time
}

// DayAvailability is one row of an availability listing: a doctor's free
// start times on one date.
type DayAvailability struct {
	Date    time.Time
	Weekday Weekday
	Doctor  Doctor
	Times   []time.Time
}
