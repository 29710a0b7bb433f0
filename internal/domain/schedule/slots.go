package schedule

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// SlotManager maintains the AppointmentSlot rows backing a schedule's
// capacity counters.
type SlotManager struct {
	slots SlotRepository
}

func NewSlotManager(slots SlotRepository) *SlotManager {
	return &SlotManager{slots: slots}
}

// GenerateSlotsForSchedule materializes the schedule's time slots as
// available AppointmentSlot rows, truncated to at most capacity total
// entries, and persists them in one batch.
func (m *SlotManager) GenerateSlotsForSchedule(ctx context.Context, s *DoctorSchedule) ([]*AppointmentSlot, error) {
	times := s.GenerateTimeSlots()
	if max := s.Capacity.Total(); len(times) > max {
		times = times[:max]
	}

	slots := make([]*AppointmentSlot, 0, len(times))
	for _, ts := range times {
		slots = append(slots, NewAvailableSlot(s.ID, ts))
	}
	if len(slots) == 0 {
		return nil, nil
	}
	if err := m.slots.SaveAll(ctx, slots); err != nil {
		return nil, fmt.Errorf("save slots for schedule %s: %w", s.ID, err)
	}
	return slots, nil
}

// OccupySlot binds a slot to an appointment.
func (m *SlotManager) OccupySlot(ctx context.Context, slotID, appointmentID uuid.UUID) (*AppointmentSlot, error) {
	slot, err := m.slots.FindByID(ctx, slotID)
	if err != nil {
		return nil, err
	}
	if err := slot.Occupy(appointmentID); err != nil {
		return nil, err
	}
	if err := m.slots.Save(ctx, slot); err != nil {
		return nil, fmt.Errorf("save slot %s: %w", slotID, err)
	}
	return slot, nil
}

// ReleaseSlot frees a slot. Releasing a free slot succeeds without change.
func (m *SlotManager) ReleaseSlot(ctx context.Context, slotID uuid.UUID) (*AppointmentSlot, error) {
	slot, err := m.slots.FindByID(ctx, slotID)
	if err != nil {
		return nil, err
	}
	if !slot.Occupied {
		return slot, nil
	}
	slot.Release()
	if err := m.slots.Save(ctx, slot); err != nil {
		return nil, fmt.Errorf("save slot %s: %w", slotID, err)
	}
	return slot, nil
}

// ResizeSlotsForSchedule reconciles the slot rows with an adjusted capacity
// total: newly covered time slots are appended when the total grows, and
// trailing unoccupied rows are removed when it shrinks. Occupied rows are
// never removed.
func (m *SlotManager) ResizeSlotsForSchedule(ctx context.Context, s *DoctorSchedule) error {
	existing, err := m.slots.FindBySchedule(ctx, s.ID)
	if err != nil {
		return err
	}

	want := s.GenerateTimeSlots()
	if max := s.Capacity.Total(); len(want) > max {
		want = want[:max]
	}

	covered := make(map[string]*AppointmentSlot, len(existing))
	for _, slot := range existing {
		covered[slot.Slot.String()] = slot
	}
	wanted := make(map[string]bool, len(want))
	for _, ts := range want {
		wanted[ts.String()] = true
	}

	var added []*AppointmentSlot
	for _, ts := range want {
		if _, ok := covered[ts.String()]; !ok {
			added = append(added, NewAvailableSlot(s.ID, ts))
		}
	}
	if len(added) > 0 {
		if err := m.slots.SaveAll(ctx, added); err != nil {
			return fmt.Errorf("save slots for schedule %s: %w", s.ID, err)
		}
	}

	for _, slot := range existing {
		if wanted[slot.Slot.String()] || slot.Occupied {
			continue
		}
		if err := m.slots.Delete(ctx, slot.ID); err != nil {
			return fmt.Errorf("delete slot %s: %w", slot.ID, err)
		}
	}
	return nil
}
