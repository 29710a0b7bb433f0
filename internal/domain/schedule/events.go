package schedule

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Event is a domain event raised by an aggregate operation. Operations return
// the events they raise instead of buffering them inside the aggregate; the
// application service publishes them after the mutation is persisted.
type Event interface {
	EventName() string
	OccurredAt() time.Time
}

// ScheduleCreated is raised when a new schedule aggregate is built.
// ScheduleID is zero until the repository assigns an identity; the service
// stamps it before publishing (see StampScheduleID).
type ScheduleCreated struct {
	ScheduleID uuid.UUID  `json:"schedule_id"`
	DoctorID   uuid.UUID  `json:"doctor_id"`
	Date       time.Time  `json:"date"`
	Period     TimePeriod `json:"period"`
	OccurredOn time.Time  `json:"occurred_on"`
}

func (e ScheduleCreated) EventName() string     { return "schedule.created" }
func (e ScheduleCreated) OccurredAt() time.Time { return e.OccurredOn }

// ScheduleSlotDecreased is raised on every successful booking decrement.
type ScheduleSlotDecreased struct {
	ScheduleID     uuid.UUID `json:"schedule_id"`
	RemainingSlots int       `json:"remaining_slots"`
	OccurredOn     time.Time `json:"occurred_on"`
}

func (e ScheduleSlotDecreased) EventName() string     { return "schedule.slot_decreased" }
func (e ScheduleSlotDecreased) OccurredAt() time.Time { return e.OccurredOn }

// ScheduleSlotIncreased is raised on every successful cancellation increment.
type ScheduleSlotIncreased struct {
	ScheduleID     uuid.UUID `json:"schedule_id"`
	RemainingSlots int       `json:"remaining_slots"`
	OccurredOn     time.Time `json:"occurred_on"`
}

func (e ScheduleSlotIncreased) EventName() string     { return "schedule.slot_increased" }
func (e ScheduleSlotIncreased) OccurredAt() time.Time { return e.OccurredOn }

// ScheduleStatusChanged is raised on every status transition.
type ScheduleStatusChanged struct {
	ScheduleID uuid.UUID      `json:"schedule_id"`
	OldStatus  ScheduleStatus `json:"old_status"`
	NewStatus  ScheduleStatus `json:"new_status"`
	OccurredOn time.Time      `json:"occurred_on"`
}

func (e ScheduleStatusChanged) EventName() string     { return "schedule.status_changed" }
func (e ScheduleStatusChanged) OccurredAt() time.Time { return e.OccurredOn }

// StampScheduleID fills the schedule id on events emitted before the
// repository assigned one. Events that already carry an id are left as-is.
func StampScheduleID(events []Event, id uuid.UUID) []Event {
	stamped := make([]Event, len(events))
	for i, ev := range events {
		switch e := ev.(type) {
		case ScheduleCreated:
			if e.ScheduleID == uuid.Nil {
				e.ScheduleID = id
			}
			stamped[i] = e
		case ScheduleSlotDecreased:
			if e.ScheduleID == uuid.Nil {
				e.ScheduleID = id
			}
			stamped[i] = e
		case ScheduleSlotIncreased:
			if e.ScheduleID == uuid.Nil {
				e.ScheduleID = id
			}
			stamped[i] = e
		case ScheduleStatusChanged:
			if e.ScheduleID == uuid.Nil {
				e.ScheduleID = id
			}
			stamped[i] = e
		default:
			stamped[i] = ev
		}
	}
	return stamped
}

// EventPublisher delivers domain events to external consumers.
type EventPublisher interface {
	Publish(ctx context.Context, events ...Event) error
}
