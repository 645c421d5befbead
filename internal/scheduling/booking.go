package scheduling

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	redisclient "github.com/hackgods/clinic-scheduling/internal/redis"
)

type BookingRequest struct {
	// Doctor and Clinic are selectors: an id or a case-insensitive name fragment.
	Doctor      string    `validate:"required"`
	Start       time.Time `validate:"required"`
	RequesterID string    `validate:"required,max=128"`
	Clinic      string
	Patient     PatientInfo
}

// Book validates and commits one appointment. Checks run in order and the
// first failure is returned: input, future instant, doctor/clinic lookup,
// weekly availability, conflicts. The conflict check is repeated inside the
// doctor's booking lock right before the insert.
func (s *Service) Book(ctx context.Context, req BookingRequest) (*Appointment, error) {
	req.Doctor = strings.TrimSpace(req.Doctor)
	req.Clinic = strings.TrimSpace(req.Clinic)
	req.RequesterID = strings.TrimSpace(req.RequesterID)
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	// Stored timestamps have microsecond precision; booking on whole seconds
	// keeps the conflict check and the stored instant in agreement.
	start := s.tz.In(req.Start).Truncate(time.Second)
	if !start.After(s.tz.Now()) {
		return nil, ErrPastDate
	}

	doctor, clinicID, err := s.resolveBookingTarget(ctx, req.Doctor, req.Clinic)
	if err != nil {
		return nil, err
	}

	windows, err := s.calendar.WindowsFor(ctx, doctor.ID, WeekdayOf(start))
	if err != nil {
		return nil, err
	}
	if !Covers(windows, start) {
		return nil, ErrOutsideAvailability
	}

	conflict, err := s.overlap.Conflicts(ctx, doctor.ID, start)
	if err != nil {
		return nil, err
	}
	if conflict {
		return nil, ErrSlotConflict
	}

	appt := &Appointment{
		ID:          uuid.New(),
		DoctorID:    doctor.ID,
		ClinicID:    clinicID,
		RequesterID: req.RequesterID,
		Start:       start,
		Status:      s.initialStatus(),
		Patient:     req.Patient,
	}

	commit := func(ctx context.Context) error {
		return s.store.WithDoctorLock(ctx, doctor.ID, func(ctx context.Context, tx BookingTx) error {
			lo, hi := conflictRange(start, start)
			existing, err := tx.FindOccupyingAppointments(ctx, doctor.ID, lo, hi)
			if err != nil {
				return fmt.Errorf("re-check occupying appointments: %w", err)
			}
			if Conflicts(existing, start) {
				return ErrSlotConflict
			}

			if err := tx.InsertAppointment(ctx, appt); err != nil {
				return err
			}
			ev, err := s.createdEvent(appt, doctor)
			if err != nil {
				return err
			}
			return tx.InsertEvent(ctx, ev)
		})
	}

	if s.locker != nil {
		err = s.locker.WithLock(ctx, bookingGuardKey(doctor.ID, start), commit)
	} else {
		err = commit(ctx)
	}
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrSlotBeingBooked
		}
		if errors.Is(err, ErrSlotConflict) {
			s.log.Info().Str("doctor_id", doctor.ID.String()).Time("start", start).Msg("booking lost conflict re-check")
		}
		return nil, storeErr("commit booking", err)
	}

	appt.Start = s.tz.In(appt.Start)
	s.log.Info().
		Str("appointment_id", appt.ID.String()).
		Str("doctor_id", doctor.ID.String()).
		Str("requester_id", appt.RequesterID).
		Time("start", appt.Start).
		Str("status", string(appt.Status)).
		Msg("appointment booked")

	return appt, nil
}

// resolveBookingTarget looks up the doctor, inside the clinic when one is named.
func (s *Service) resolveBookingTarget(ctx context.Context, doctorSel, clinicSel string) (*Doctor, *uuid.UUID, error) {
	var clinicID *uuid.UUID
	if clinicSel != "" {
		clinic, err := s.store.ResolveClinic(ctx, clinicSel)
		if err != nil {
			return nil, nil, storeErr("resolve clinic", err)
		}
		clinicID = &clinic.ID
	}

	doctor, err := s.store.ResolveDoctor(ctx, doctorSel, clinicID)
	if err != nil {
		return nil, nil, storeErr("resolve doctor", err)
	}
	if clinicID == nil {
		clinicID = doctor.ClinicID
	}
	return doctor, clinicID, nil
}

// bookingGuardKey identifies one (doctor, instant) booking attempt. Identical
// concurrent requests collide here before reaching the database.
func bookingGuardKey(doctorID uuid.UUID, start time.Time) string {
	return fmt.Sprintf("booking:%s:%d", doctorID, start.Unix())
}

func (s *Service) createdEvent(appt *Appointment, doctor *Doctor) (EventLog, error) {
	payload := map[string]any{
		"appointment_id": appt.ID.String(),
		"doctor_id":      doctor.ID.String(),
		"doctor_name":    doctor.Name,
		"requester_id":   appt.RequesterID,
		"start":          appt.Start.Format(time.RFC3339),
		"status":         string(appt.Status),
		"patient_name":   appt.Patient.Name,
		"patient_email":  appt.Patient.Email,
	}
	if appt.ClinicID != nil {
		payload["clinic_id"] = appt.ClinicID.String()
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return EventLog{}, fmt.Errorf("encode %s payload: %w", EventAppointmentCreated, err)
	}

	id := appt.ID
	return EventLog{
		EventType:     EventAppointmentCreated,
		AppointmentID: &id,
		AggregateID:   doctor.ID.String(),
		Payload:       data,
		CreatedAt:     s.tz.Now(),
	}, nil
}
