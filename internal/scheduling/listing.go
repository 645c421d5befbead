package scheduling

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

// Selector picks the doctors a listing covers. Doctor wins over Clinic, and
// Clinic over Query. Query alone searches name, specialty and clinic name.
type Selector struct {
	Doctor string
	Clinic string
	Query  string
}

// ListAvailableSlots returns one row per doctor and date with at least one
// free slot, starting today, ordered by date then doctor name. horizonDays <= 0
// selects the configured default; larger values are capped.
func (s *Service) ListAvailableSlots(ctx context.Context, sel Selector, horizonDays int) ([]DayAvailability, error) {
	doctors, err := s.selectDoctors(ctx, sel)
	if err != nil {
		return nil, err
	}
	return s.fanOut(ctx, doctors, s.tz.DateOf(s.tz.Now()), s.horizon(horizonDays))
}

// AvailableDoctorsOn lists the doctors with at least one free slot on date.
func (s *Service) AvailableDoctorsOn(ctx context.Context, date time.Time) ([]DayAvailability, error) {
	day := s.tz.DateOf(date)
	weekday := WeekdayOf(day)
	doctors, err := s.store.ListDoctors(ctx, DoctorFilter{Weekday: &weekday})
	if err != nil {
		return nil, storeErr("list doctors", err)
	}
	return s.fanOut(ctx, doctors, day, 1)
}

func (s *Service) ListClinics(ctx context.Context) ([]Clinic, error) {
	clinics, err := s.store.ListClinics(ctx)
	if err != nil {
		return nil, storeErr("list clinics", err)
	}
	return clinics, nil
}

// ListRequesterAppointments returns the requester's own appointments, latest first.
func (s *Service) ListRequesterAppointments(ctx context.Context, requesterID string) ([]Appointment, error) {
	requesterID = strings.TrimSpace(requesterID)
	if requesterID == "" {
		return nil, fmt.Errorf("%w: requester id is required", ErrValidation)
	}
	appts, err := s.store.ListAppointmentsByRequester(ctx, requesterID, requesterListLimit)
	if err != nil {
		return nil, storeErr("list requester appointments", err)
	}
	for i := range appts {
		appts[i].Start = s.tz.In(appts[i].Start)
	}
	return appts, nil
}

func (s *Service) horizon(days int) int {
	if days <= 0 {
		days = s.cfg.HorizonDays
	}
	if days <= 0 {
		days = 7
	}
	if s.cfg.MaxHorizonDays > 0 && days > s.cfg.MaxHorizonDays {
		days = s.cfg.MaxHorizonDays
	}
	return days
}

func (s *Service) selectDoctors(ctx context.Context, sel Selector) ([]Doctor, error) {
	sel.Doctor = strings.TrimSpace(sel.Doctor)
	sel.Clinic = strings.TrimSpace(sel.Clinic)
	sel.Query = strings.TrimSpace(sel.Query)

	switch {
	case sel.Doctor != "":
		doctor, _, err := s.resolveBookingTarget(ctx, sel.Doctor, sel.Clinic)
		if err != nil {
			return nil, err
		}
		return []Doctor{*doctor}, nil
	case sel.Clinic != "":
		clinic, err := s.store.ResolveClinic(ctx, sel.Clinic)
		if err != nil {
			return nil, storeErr("resolve clinic", err)
		}
		doctors, err := s.store.ListDoctors(ctx, DoctorFilter{ClinicID: &clinic.ID, Query: sel.Query})
		if err != nil {
			return nil, storeErr("list doctors", err)
		}
		return doctors, nil
	case sel.Query != "":
		doctors, err := s.store.ListDoctors(ctx, DoctorFilter{Query: sel.Query})
		if err != nil {
			return nil, storeErr("list doctors", err)
		}
		if len(doctors) == 0 {
			return nil, ErrDoctorNotFound
		}
		return doctors, nil
	default:
		return nil, fmt.Errorf("%w: a doctor, clinic or query selector is required", ErrValidation)
	}
}

// fanOut runs the per-doctor slot generator concurrently, at most
// defaultFanOut doctors at a time.
func (s *Service) fanOut(ctx context.Context, doctors []Doctor, from time.Time, days int) ([]DayAvailability, error) {
	perDoctor := make([][]DayAvailability, len(doctors))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(defaultFanOut)
	for i, d := range doctors {
		g.Go(func() error {
			rows, err := s.doctorRows(gctx, d, from, days)
			if err != nil {
				return err
			}
			perDoctor[i] = rows
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []DayAvailability
	for _, rows := range perDoctor {
		out = append(out, rows...)
	}
	slices.SortStableFunc(out, func(a, b DayAvailability) int {
		if c := a.Date.Compare(b.Date); c != 0 {
			return c
		}
		if c := strings.Compare(a.Doctor.Name, b.Doctor.Name); c != 0 {
			return c
		}
		return strings.Compare(a.Doctor.ID.String(), b.Doctor.ID.String())
	})
	return out, nil
}

func (s *Service) doctorRows(ctx context.Context, d Doctor, from time.Time, days int) ([]DayAvailability, error) {
	var rows []DayAvailability
	for slot, err := range s.slots.ListSlots(ctx, d.ID, from, days) {
		if err != nil {
			return nil, err
		}
		if n := len(rows); n > 0 && rows[n-1].Date.Equal(slot.Date) {
			rows[n-1].Times = append(rows[n-1].Times, slot.Start)
			continue
		}
		rows = append(rows, DayAvailability{
			Date:    slot.Date,
			Weekday: slot.Weekday,
			Doctor:  d,
			Times:   []time.Time{slot.Start},
		})
	}
	return rows, nil
}
