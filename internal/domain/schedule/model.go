package schedule

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// appointmentHorizonDays is the fixed booking window: a schedule is bookable
// only when its date lies within [today, today+7].
const appointmentHorizonDays = 7

// DoctorSchedule is the capacity-bearing aggregate: one doctor, one date, one
// time period. It owns the slot capacity, the lifecycle status and the slot
// duration. The aggregate is not safe for concurrent use; callers serialize
// mutations per schedule id through the distributed lock.
type DoctorSchedule struct {
	ID                  uuid.UUID  `json:"id"`
	DoctorID            uuid.UUID  `json:"doctor_id"`
	Date                time.Time  `json:"date"`
	Period              TimePeriod `json:"period"`
	Capacity            SlotCapacity
	Status              ScheduleStatus `json:"status"`
	SlotDurationMinutes int            `json:"slot_duration_minutes"`
	CreatedAt           time.Time      `json:"created_at"`
	UpdatedAt           time.Time      `json:"updated_at"`
}

// NewDoctorSchedule builds an OPEN schedule with full capacity and returns the
// ScheduleCreated event. The ID stays zero until the repository assigns one.
func NewDoctorSchedule(doctorID uuid.UUID, date time.Time, period TimePeriod, totalSlots, slotDurationMinutes int) (*DoctorSchedule, []Event, error) {
	if doctorID == uuid.Nil {
		return nil, nil, fmt.Errorf("%w: doctor id is required", ErrValidation)
	}
	if !period.IsValid() {
		return nil, nil, fmt.Errorf("%w: invalid time period", ErrValidation)
	}
	if totalSlots < 1 {
		return nil, nil, fmt.Errorf("%w: total slots must be at least 1", ErrValidation)
	}
	if slotDurationMinutes < 1 {
		return nil, nil, fmt.Errorf("%w: slot duration must be at least 1 minute", ErrValidation)
	}

	capacity, err := InitialCapacity(totalSlots)
	if err != nil {
		return nil, nil, err
	}

	now := time.Now()
	s := &DoctorSchedule{
		DoctorID:            doctorID,
		Date:                DateOnly(date),
		Period:              period,
		Capacity:            capacity,
		Status:              StatusOpen,
		SlotDurationMinutes: slotDurationMinutes,
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	events := []Event{ScheduleCreated{
		ScheduleID: s.ID,
		DoctorID:   s.DoctorID,
		Date:       s.Date,
		Period:     s.Period,
		OccurredOn: now,
	}}
	return s, events, nil
}

// DecreaseSlot consumes one slot for a booking. The in-aggregate checks are
// authoritative even when the persistence layer also guards the counter,
// so stale in-memory state can never oversell.
func (s *DoctorSchedule) DecreaseSlot() ([]Event, error) {
	if !s.Status.CanBook() {
		return nil, fmt.Errorf("%w: cannot book schedule in status %s", ErrInvalidStateTransition, s.Status)
	}

	capacity, err := s.Capacity.Decrease()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	s.Capacity = capacity
	s.UpdatedAt = now

	var events []Event
	if s.Capacity.IsFull() {
		s.Status = StatusFull
		events = append(events, ScheduleStatusChanged{
			ScheduleID: s.ID,
			OldStatus:  StatusOpen,
			NewStatus:  StatusFull,
			OccurredOn: now,
		})
	}
	events = append(events, ScheduleSlotDecreased{
		ScheduleID:     s.ID,
		RemainingSlots: s.Capacity.Available(),
		OccurredOn:     now,
	})
	return events, nil
}

// IncreaseSlot returns one slot after a cancellation. A FULL schedule flips
// back to OPEN when room appears again.
func (s *DoctorSchedule) IncreaseSlot() ([]Event, error) {
	if !s.Status.CanCancel() {
		return nil, fmt.Errorf("%w: cannot cancel on schedule in status %s", ErrInvalidStateTransition, s.Status)
	}

	wasFull := s.Capacity.IsFull()
	capacity, err := s.Capacity.Increase()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	s.Capacity = capacity
	s.UpdatedAt = now

	var events []Event
	if wasFull && s.Status == StatusFull {
		s.Status = StatusOpen
		events = append(events, ScheduleStatusChanged{
			ScheduleID: s.ID,
			OldStatus:  StatusFull,
			NewStatus:  StatusOpen,
			OccurredOn: now,
		})
	}
	events = append(events, ScheduleSlotIncreased{
		ScheduleID:     s.ID,
		RemainingSlots: s.Capacity.Available(),
		OccurredOn:     now,
	})
	return events, nil
}

// Close suspends the schedule (doctor leave, ward closure). Idempotent.
// The reason is recorded by the caller; it does not alter the transition.
func (s *DoctorSchedule) Close(reason string) []Event {
	if s.Status == StatusClosed {
		return nil
	}

	old := s.Status
	now := time.Now()
	s.Status = StatusClosed
	s.UpdatedAt = now

	return []Event{ScheduleStatusChanged{
		ScheduleID: s.ID,
		OldStatus:  old,
		NewStatus:  StatusClosed,
		OccurredOn: now,
	}}
}

// Open lifts a closure. The resulting status is recomputed from capacity:
// FULL when nothing remains, OPEN otherwise. Expired schedules cannot reopen.
func (s *DoctorSchedule) Open() ([]Event, error) {
	if s.Status == StatusOpen {
		return nil, nil
	}
	if s.Status == StatusExpired {
		return nil, fmt.Errorf("%w: expired schedule cannot reopen", ErrInvalidStateTransition)
	}

	old := s.Status
	now := time.Now()
	if s.Capacity.IsFull() {
		s.Status = StatusFull
	} else {
		s.Status = StatusOpen
	}
	s.UpdatedAt = now

	return []Event{ScheduleStatusChanged{
		ScheduleID: s.ID,
		OldStatus:  old,
		NewStatus:  s.Status,
		OccurredOn: now,
	}}, nil
}

// MarkExpired moves the schedule into its terminal state. Idempotent.
func (s *DoctorSchedule) MarkExpired() []Event {
	if s.Status == StatusExpired {
		return nil
	}

	old := s.Status
	now := time.Now()
	s.Status = StatusExpired
	s.UpdatedAt = now

	return []Event{ScheduleStatusChanged{
		ScheduleID: s.ID,
		OldStatus:  old,
		NewStatus:  StatusExpired,
		OccurredOn: now,
	}}
}

// AdjustTotalSlots resizes the capacity preserving the used count. Shrinking
// below the used count fails. A FULL schedule regains OPEN when the new total
// leaves room.
func (s *DoctorSchedule) AdjustTotalSlots(newTotal int) ([]Event, error) {
	used := s.Capacity.UsedSlots()
	if newTotal < used {
		return nil, fmt.Errorf("%w: new total %d is below %d already used slots", ErrValidation, newTotal, used)
	}

	capacity, err := NewSlotCapacity(newTotal, newTotal-used)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	s.Capacity = capacity
	s.UpdatedAt = now

	var events []Event
	if s.Status == StatusFull && s.Capacity.HasAvailable() {
		s.Status = StatusOpen
		events = append(events, ScheduleStatusChanged{
			ScheduleID: s.ID,
			OldStatus:  StatusFull,
			NewStatus:  StatusOpen,
			OccurredOn: now,
		})
	}
	return events, nil
}

// IsInAppointmentPeriod reports whether the schedule date falls inside the
// booking horizon [today, today+7], both ends inclusive.
func (s *DoctorSchedule) IsInAppointmentPeriod(now time.Time) bool {
	today := DateOnly(now)
	max := today.AddDate(0, 0, appointmentHorizonDays)
	return !s.Date.Before(today) && !s.Date.After(max)
}

// IsExpired reports whether the schedule date is strictly before today.
func (s *DoctorSchedule) IsExpired(now time.Time) bool {
	return s.Date.Before(DateOnly(now))
}

// GenerateTimeSlots walks the period from its start in slot-duration steps.
// A trailing remainder shorter than the slot duration is dropped.
func (s *DoctorSchedule) GenerateTimeSlots() []TimeSlot {
	var slots []TimeSlot
	current := s.Period.Start()
	end := s.Period.End()

	for {
		next := current.Add(s.SlotDurationMinutes)
		if next.After(end) {
			break
		}
		slots = append(slots, TimeSlot{Start: current, End: next})
		current = next
	}
	return slots
}

// SameSlot reports value equality on the (date, period) pair, the identity
// used for dedup filtering in auto-scheduling.
func (s *DoctorSchedule) SameSlot(other *DoctorSchedule) bool {
	return s.Date.Equal(other.Date) && s.Period == other.Period
}

// DateOnly truncates a timestamp to its calendar date in UTC.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// AppointmentSlot is one discrete bookable window within a schedule.
// AppointmentID is set exactly when the slot is occupied.
type AppointmentSlot struct {
	ID            uuid.UUID  `json:"id"`
	ScheduleID    uuid.UUID  `json:"schedule_id"`
	Slot          TimeSlot   `json:"slot"`
	Occupied      bool       `json:"occupied"`
	AppointmentID *uuid.UUID `json:"appointment_id,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// NewAvailableSlot builds a free slot bound to a schedule.
func NewAvailableSlot(scheduleID uuid.UUID, ts TimeSlot) *AppointmentSlot {
	now := time.Now()
	return &AppointmentSlot{
		ScheduleID: scheduleID,
		Slot:       ts,
		Occupied:   false,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Occupy binds the slot to an appointment. Fails when already occupied.
func (a *AppointmentSlot) Occupy(appointmentID uuid.UUID) error {
	if a.Occupied {
		return fmt.Errorf("%w: slot %s", ErrSlotOccupied, a.ID)
	}
	a.Occupied = true
	a.AppointmentID = &appointmentID
	a.UpdatedAt = time.Now()
	return nil
}

// Release frees the slot. Releasing a free slot is a no-op.
func (a *AppointmentSlot) Release() {
	if !a.Occupied {
		return
	}
	a.Occupied = false
	a.AppointmentID = nil
	a.UpdatedAt = time.Now()
}

// IsAvailable reports whether the slot can take an appointment.
func (a *AppointmentSlot) IsAvailable() bool { return !a.Occupied }
