package schedule

import "fmt"

// SlotCapacity tracks the total and remaining bookable slots of a schedule.
// It is immutable: every mutation returns a new value, so a capacity that
// exists always satisfies 0 <= available <= total.
type SlotCapacity struct {
	total     int
	available int
}

// NewSlotCapacity validates the counter pair.
func NewSlotCapacity(total, available int) (SlotCapacity, error) {
	if total < 0 {
		return SlotCapacity{}, fmt.Errorf("%w: total slots cannot be negative", ErrValidation)
	}
	if available < 0 {
		return SlotCapacity{}, fmt.Errorf("%w: available slots cannot be negative", ErrValidation)
	}
	if available > total {
		return SlotCapacity{}, fmt.Errorf("%w: available slots cannot exceed total", ErrValidation)
	}
	return SlotCapacity{total: total, available: available}, nil
}

// InitialCapacity returns a fully available capacity of the given size.
func InitialCapacity(total int) (SlotCapacity, error) {
	return NewSlotCapacity(total, total)
}

// Decrease consumes one slot.
func (c SlotCapacity) Decrease() (SlotCapacity, error) {
	if c.available <= 0 {
		return c, ErrCapacityExhausted
	}
	return SlotCapacity{total: c.total, available: c.available - 1}, nil
}

// Increase returns one slot, e.g. on cancellation.
func (c SlotCapacity) Increase() (SlotCapacity, error) {
	if c.available >= c.total {
		return c, fmt.Errorf("%w: available slots cannot exceed total", ErrValidation)
	}
	return SlotCapacity{total: c.total, available: c.available + 1}, nil
}

func (c SlotCapacity) Total() int     { return c.total }
func (c SlotCapacity) Available() int { return c.available }

// IsFull reports whether no slots remain.
func (c SlotCapacity) IsFull() bool { return c.available == 0 }

// HasAvailable reports whether at least one slot remains.
func (c SlotCapacity) HasAvailable() bool { return c.available > 0 }

// UsedSlots returns the number of consumed slots.
func (c SlotCapacity) UsedSlots() int { return c.total - c.available }

// UsageRate returns the consumed share as a percentage, 0 for empty capacity.
func (c SlotCapacity) UsageRate() float64 {
	if c.total == 0 {
		return 0
	}
	return float64(c.UsedSlots()) / float64(c.total) * 100
}
