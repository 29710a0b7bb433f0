package schedule

import "errors"

// Sentinel errors for the scheduling domain. Callers match them with
// errors.Is; the HTTP layer maps them to response codes.
var (
	// ErrValidation marks malformed input, e.g. a non-positive slot total.
	ErrValidation = errors.New("validation failed")

	// ErrConflict marks an attempt to create a schedule that already exists
	// for the same doctor, date and period.
	ErrConflict = errors.New("schedule already exists")

	// ErrCapacityExhausted marks a slot decrease with zero availability.
	ErrCapacityExhausted = errors.New("no available slots")

	// ErrInvalidStateTransition marks an operation the current schedule
	// status does not allow, e.g. booking a closed schedule or reopening
	// an expired one.
	ErrInvalidStateTransition = errors.New("operation not allowed in current status")

	// ErrNotFound marks an unknown schedule or appointment slot id.
	ErrNotFound = errors.New("not found")

	// ErrSlotOccupied marks an occupy call on a slot that already carries
	// an appointment.
	ErrSlotOccupied = errors.New("slot already occupied")

	// ErrNoApplicableStrategy is returned by auto-scheduling when neither a
	// named strategy nor any applicable one could be resolved.
	ErrNoApplicableStrategy = errors.New("no applicable auto-schedule strategy")
)
