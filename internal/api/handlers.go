package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-scheduling/internal/scheduling"
)

// RequesterHeader carries the acting requester's identity. Authentication is
// done upstream; the engine only scopes bookings and listings by it.
const RequesterHeader = "X-Requester-ID"

const maxBodyBytes = 1 << 16

// Scheduler is the engine surface the HTTP adapter needs.
type Scheduler interface {
	Book(ctx context.Context, req scheduling.BookingRequest) (*scheduling.Appointment, error)
	ListAvailableSlots(ctx context.Context, sel scheduling.Selector, horizonDays int) ([]scheduling.DayAvailability, error)
	AvailableDoctorsOn(ctx context.Context, date time.Time) ([]scheduling.DayAvailability, error)
	ListClinics(ctx context.Context) ([]scheduling.Clinic, error)
	ListRequesterAppointments(ctx context.Context, requesterID string) ([]scheduling.Appointment, error)
	Normalizer() *scheduling.Normalizer
}

var validate = validator.New()

func bookAppointmentHandler(svc Scheduler, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requesterID := strings.TrimSpace(r.Header.Get(RequesterHeader))
		if requesterID == "" {
			writeError(w, http.StatusBadRequest, "missing_requester", RequesterHeader+" header is required")
			return
		}

		var req BookAppointmentRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		if err := validate.Struct(req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}

		start, err := svc.Normalizer().Parse(req.Start)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_start", err.Error())
			return
		}

		appt, err := svc.Book(r.Context(), scheduling.BookingRequest{
			Doctor:      req.Doctor,
			Clinic:      req.Clinic,
			Start:       start,
			RequesterID: requesterID,
			Patient: scheduling.PatientInfo{
				Name:  req.PatientName,
				DOB:   req.PatientDOB,
				Phone: req.PatientPhone,
				Email: req.PatientEmail,
			},
		})
		if err != nil {
			handleSchedulingError(w, log, err)
			return
		}

		writeJSON(w, http.StatusCreated, toAppointmentResponse(*appt))
	}
}

func listAppointmentsHandler(svc Scheduler, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requesterID := strings.TrimSpace(r.Header.Get(RequesterHeader))
		if requesterID == "" {
			writeError(w, http.StatusBadRequest, "missing_requester", RequesterHeader+" header is required")
			return
		}

		appts, err := svc.ListRequesterAppointments(r.Context(), requesterID)
		if err != nil {
			handleSchedulingError(w, log, err)
			return
		}

		resp := make([]AppointmentResponse, 0, len(appts))
		for _, a := range appts {
			resp = append(resp, toAppointmentResponse(a))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func listSlotsHandler(svc Scheduler, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		days := 0
		if raw := q.Get("days"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 {
				writeError(w, http.StatusBadRequest, "invalid_days", "days must be a positive integer")
				return
			}
			days = n
		}

		rows, err := svc.ListAvailableSlots(r.Context(), scheduling.Selector{
			Doctor: q.Get("doctor"),
			Clinic: q.Get("clinic"),
			Query:  q.Get("q"),
		}, days)
		if err != nil {
			handleSchedulingError(w, log, err)
			return
		}

		writeJSON(w, http.StatusOK, toDayAvailabilityResponses(rows))
	}
}

func availabilityHandler(svc Scheduler, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		date, err := svc.Normalizer().ParseDate(r.URL.Query().Get("date"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", err.Error())
			return
		}

		rows, err := svc.AvailableDoctorsOn(r.Context(), date)
		if err != nil {
			handleSchedulingError(w, log, err)
			return
		}

		writeJSON(w, http.StatusOK, toDayAvailabilityResponses(rows))
	}
}

func listClinicsHandler(svc Scheduler, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clinics, err := svc.ListClinics(r.Context())
		if err != nil {
			handleSchedulingError(w, log, err)
			return
		}

		resp := make([]ClinicResponse, 0, len(clinics))
		for _, c := range clinics {
			doctors := make([]DoctorResponse, 0, len(c.Doctors))
			for _, d := range c.Doctors {
				doctors = append(doctors, toDoctorResponse(d))
			}
			resp = append(resp, ClinicResponse{
				ID:          c.ID,
				Name:        c.Name,
				Location:    c.Location,
				Description: c.Description,
				Phone:       c.Phone,
				Doctors:     doctors,
			})
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func handleSchedulingError(w http.ResponseWriter, log zerolog.Logger, err error) {
	switch {
	case errors.Is(err, scheduling.ErrValidation):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, scheduling.ErrDoctorNotFound):
		writeError(w, http.StatusNotFound, "doctor_not_found", err.Error())
	case errors.Is(err, scheduling.ErrClinicNotFound):
		writeError(w, http.StatusNotFound, "clinic_not_found", err.Error())
	case errors.Is(err, scheduling.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, scheduling.ErrPastDate):
		writeError(w, http.StatusUnprocessableEntity, "past_date", err.Error())
	case errors.Is(err, scheduling.ErrOutsideAvailability):
		writeError(w, http.StatusUnprocessableEntity, "outside_availability", err.Error())
	case errors.Is(err, scheduling.ErrSlotBeingBooked):
		writeError(w, http.StatusConflict, "slot_being_booked", "slot is currently being booked, please retry shortly")
	case errors.Is(err, scheduling.ErrSlotConflict):
		writeError(w, http.StatusConflict, "slot_conflict", err.Error())
	case errors.Is(err, scheduling.ErrInfrastructure):
		log.Error().Err(err).Msg("scheduling store unavailable")
		writeError(w, http.StatusServiceUnavailable, "unavailable", "scheduling is temporarily unavailable")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusServiceUnavailable, "timeout", fmt.Sprintf("request aborted: %v", err))
	default:
		log.Error().Err(err).Msg("unhandled scheduling error")
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}
