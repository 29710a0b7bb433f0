package schedule

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ScheduleRepository persists DoctorSchedule aggregates. Save assigns the id
// on first insert.
type ScheduleRepository interface {
	Save(ctx context.Context, s *DoctorSchedule) error
	SaveAll(ctx context.Context, ss []*DoctorSchedule) error
	FindByID(ctx context.Context, id uuid.UUID) (*DoctorSchedule, error)
	FindByDoctorAndDateAndPeriod(ctx context.Context, doctorID uuid.UUID, date time.Time, period TimePeriod) (*DoctorSchedule, error)
	FindByDoctorAndDate(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]*DoctorSchedule, error)
	FindByDoctorAndDateRange(ctx context.Context, doctorID uuid.UUID, start, end time.Time) ([]*DoctorSchedule, error)
	FindOpenSchedulesByDateAndPeriod(ctx context.Context, date time.Time, period TimePeriod) ([]*DoctorSchedule, error)
	Exists(ctx context.Context, doctorID uuid.UUID, date time.Time, period TimePeriod) (bool, error)
	FindExpiredSchedules(ctx context.Context, beforeDate time.Time) ([]*DoctorSchedule, error)
	Remove(ctx context.Context, id uuid.UUID) error
}

// SlotRepository persists AppointmentSlot rows.
type SlotRepository interface {
	Save(ctx context.Context, s *AppointmentSlot) error
	SaveAll(ctx context.Context, ss []*AppointmentSlot) error
	FindByID(ctx context.Context, id uuid.UUID) (*AppointmentSlot, error)
	FindBySchedule(ctx context.Context, scheduleID uuid.UUID) ([]*AppointmentSlot, error)
	FindAvailableBySchedule(ctx context.Context, scheduleID uuid.UUID) ([]*AppointmentSlot, error)
	FindByScheduleAndTime(ctx context.Context, scheduleID uuid.UUID, slot TimeSlot) (*AppointmentSlot, error)
	CountAvailableBySchedule(ctx context.Context, scheduleID uuid.UUID) (int, error)
	DeleteBySchedule(ctx context.Context, scheduleID uuid.UUID) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// Locker serializes capacity mutations per schedule id. TryLock blocks up to
// wait for the lease; the returned function releases it. Key convention is
// "schedule:{id}".
type Locker interface {
	TryLock(ctx context.Context, key string, wait, lease time.Duration) (func(context.Context) error, error)
}

// Transactor runs fn inside one database transaction; the repositories pick
// the transaction up from the context.
type Transactor interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// LockKey derives the mutual-exclusion key for a schedule.
func LockKey(id uuid.UUID) string { return "schedule:" + id.String() }
