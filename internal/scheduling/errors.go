package scheduling

import (
	"errors"
	"fmt"
)

var (
	ErrValidation          = errors.New("invalid input")
	ErrNotFound            = errors.New("not found")
	ErrPastDate            = errors.New("requested time is not in the future")
	ErrOutsideAvailability = errors.New("requested time is outside the doctor's weekly availability")
	ErrSlotConflict        = errors.New("requested time overlaps an existing appointment")
	ErrInfrastructure      = errors.New("scheduling store unavailable")
)

var (
	ErrDoctorNotFound  = fmt.Errorf("doctor %w", ErrNotFound)
	ErrClinicNotFound  = fmt.Errorf("clinic %w", ErrNotFound)
	ErrSlotBeingBooked = fmt.Errorf("%w: slot is currently being booked, please retry", ErrSlotConflict)
)

// infraError marks a store failure while keeping the cause inspectable.
func infraError(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrInfrastructure, err)
}

// storeErr passes business outcomes through untouched and marks anything
// else coming out of the store as an infrastructure failure.
func storeErr(op string, err error) error {
	if isBusiness(err) {
		return err
	}
	return infraError(op, err)
}

// isBusiness reports whether err is one of the expected, caller-recoverable outcomes.
func isBusiness(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrPastDate) ||
		errors.Is(err, ErrOutsideAvailability) ||
		errors.Is(err, ErrSlotConflict)
}
