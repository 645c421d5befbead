package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-scheduling/internal/scheduling"
)

const (
	dateLayout  = "2006-01-02"
	clockLayout = "15:04"
)

type BookAppointmentRequest struct {
	Doctor string `json:"doctor" validate:"required"`
	Clinic string `json:"clinic"`
	// Start is "YYYY-MM-DD HH:MM" in the clinic timezone, or RFC 3339.
	Start        string `json:"start" validate:"required"`
	PatientName  string `json:"patient_name" validate:"required,max=150"`
	PatientDOB   string `json:"patient_dob" validate:"omitempty,datetime=2006-01-02"`
	PatientPhone string `json:"patient_phone" validate:"max=20"`
	PatientEmail string `json:"patient_email" validate:"omitempty,email"`
}

type AppointmentResponse struct {
	ID          uuid.UUID  `json:"id"`
	DoctorID    uuid.UUID  `json:"doctor_id"`
	ClinicID    *uuid.UUID `json:"clinic_id,omitempty"`
	Start       time.Time  `json:"start"`
	Status      string     `json:"status"`
	PatientName string     `json:"patient_name"`
	CreatedAt   time.Time  `json:"created_at"`
}

type DoctorResponse struct {
	ID         uuid.UUID `json:"id"`
	Name       string    `json:"name"`
	Specialty  string    `json:"specialty"`
	ClinicName string    `json:"clinic_name,omitempty"`
}

type ClinicResponse struct {
	ID          uuid.UUID        `json:"id"`
	Name        string           `json:"name"`
	Location    string           `json:"location,omitempty"`
	Description string           `json:"description,omitempty"`
	Phone       string           `json:"phone,omitempty"`
	Doctors     []DoctorResponse `json:"doctors"`
}

// DayAvailabilityResponse is one doctor's free start times on one date.
type DayAvailabilityResponse struct {
	Date    string         `json:"date"`
	Weekday string         `json:"weekday"`
	Doctor  DoctorResponse `json:"doctor"`
	Times   []string       `json:"times"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func toAppointmentResponse(a scheduling.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:          a.ID,
		DoctorID:    a.DoctorID,
		ClinicID:    a.ClinicID,
		Start:       a.Start,
		Status:      string(a.Status),
		PatientName: a.Patient.Name,
		CreatedAt:   a.CreatedAt,
	}
}

func toDoctorResponse(d scheduling.Doctor) DoctorResponse {
	return DoctorResponse{ID: d.ID, Name: d.Name, Specialty: d.Specialty, ClinicName: d.ClinicName}
}

func toDayAvailabilityResponses(rows []scheduling.DayAvailability) []DayAvailabilityResponse {
	out := make([]DayAvailabilityResponse, 0, len(rows))
	for _, row := range rows {
		times := make([]string, 0, len(row.Times))
		for _, t := range row.Times {
			times = append(times, t.Format(clockLayout))
		}
		out = append(out, DayAvailabilityResponse{
			Date:    row.Date.Format(dateLayout),
			Weekday: row.Weekday.String(),
			Doctor:  toDoctorResponse(row.Doctor),
			Times:   times,
		})
	}
	return out
}
