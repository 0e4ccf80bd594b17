package booking

import (
	"errors"
	"fmt"

	"clinicsched/internal/availability"
)

var (
	// ErrMissingField matches every *MissingFieldError.
	ErrMissingField = errors.New("missing required field")
	// ErrInvalidSlot means the slot is not derivable from the doctor's schedule.
	ErrInvalidSlot = errors.New("invalid slot")
	// ErrSlotConflict means another confirmed appointment holds the slot.
	// Callers should re-fetch available slots and resubmit.
	ErrSlotConflict = errors.New("slot no longer available")
	// ErrIllegalTransition means the attempt state machine refused a step.
	ErrIllegalTransition = errors.New("illegal booking state transition")
	// ErrInvalidAvailability is the availability package's sentinel, so
	// errors.Is works with either name.
	ErrInvalidAvailability = availability.ErrInvalidAvailability
)

// MissingFieldError names the absent request field.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("%s: %s", ErrMissingField, e.Field)
}

func (e *MissingFieldError) Is(target error) bool {
	return target == ErrMissingField
}

// Outcome maps a Book error to a metrics/log label.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "confirmed"
	case errors.Is(err, ErrMissingField):
		return "missing_field"
	case errors.Is(err, ErrInvalidSlot):
		return "invalid_slot"
	case errors.Is(err, ErrInvalidAvailability):
		return "invalid_availability"
	case errors.Is(err, ErrSlotConflict):
		return "slot_conflict"
	default:
		return "error"
	}
}
