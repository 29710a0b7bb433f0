package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Service coordinates schedule lifecycle, booking and auto-scheduling.
// Capacity mutations serialize per schedule id through the distributed lock;
// batch persistence runs inside one transaction.
type Service struct {
	schedules ScheduleRepository
	slots     *SlotManager
	scheduler *AutoScheduler
	locker    Locker
	tx        Transactor
	publisher EventPublisher
	log       zerolog.Logger

	lockWait  time.Duration
	lockLease time.Duration
}

type ServiceOption func(*Service)

func WithLockTimings(wait, lease time.Duration) ServiceOption {
	return func(s *Service) {
		s.lockWait = wait
		s.lockLease = lease
	}
}

func NewService(schedules ScheduleRepository, slots *SlotManager, scheduler *AutoScheduler, locker Locker, tx Transactor, publisher EventPublisher, log zerolog.Logger, opts ...ServiceOption) *Service {
	s := &Service{
		schedules: schedules,
		slots:     slots,
		scheduler: scheduler,
		locker:    locker,
		tx:        tx,
		publisher: publisher,
		log:       log,
		lockWait:  3 * time.Second,
		lockLease: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) publish(ctx context.Context, events []Event) {
	if s.publisher == nil || len(events) == 0 {
		return
	}
	if err := s.publisher.Publish(ctx, events...); err != nil {
		s.log.Error().Err(err).Msg("publish schedule events")
	}
}

// withScheduleLock runs fn while holding the schedule's mutual-exclusion key.
func (s *Service) withScheduleLock(ctx context.Context, id uuid.UUID, fn func(ctx context.Context) error) error {
	unlock, err := s.locker.TryLock(ctx, LockKey(id), s.lockWait, s.lockLease)
	if err != nil {
		return fmt.Errorf("lock schedule %s: %w", id, err)
	}
	defer func() {
		if uerr := unlock(ctx); uerr != nil {
			s.log.Warn().Err(uerr).Str("schedule_id", id.String()).Msg("release schedule lock")
		}
	}()
	return fn(ctx)
}

// CreateSchedule creates one schedule plus its appointment slots.
func (s *Service) CreateSchedule(ctx context.Context, doctorID uuid.UUID, date time.Time, period TimePeriod, totalSlots, slotDurationMinutes int) (*DoctorSchedule, error) {
	exists, err := s.schedules.Exists(ctx, doctorID, date, period)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, fmt.Errorf("%w: schedule already exists for doctor %s on %s %s", ErrConflict, doctorID, DateOnly(date).Format("2006-01-02"), period)
	}

	sched, events, err := NewDoctorSchedule(doctorID, date, period, totalSlots, slotDurationMinutes)
	if err != nil {
		return nil, err
	}

	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.schedules.Save(ctx, sched); err != nil {
			return err
		}
		_, err := s.slots.GenerateSlotsForSchedule(ctx, sched)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, StampScheduleID(events, sched.ID))
	s.log.Info().
		Str("schedule_id", sched.ID.String()).
		Str("doctor_id", doctorID.String()).
		Str("period", period.String()).
		Int("total_slots", totalSlots).
		Msg("schedule created")
	return sched, nil
}

// AutoSchedule generates schedules over a range and persists the batch with
// its slots atomically. Already-existing (date, period) pairs are skipped.
func (s *Service) AutoSchedule(ctx context.Context, doctorID uuid.UUID, start, end time.Time, strategyName string, sc ScheduleContext) ([]*DoctorSchedule, error) {
	generated, err := s.scheduler.AutoSchedule(ctx, doctorID, start, end, strategyName, sc)
	if err != nil {
		return nil, err
	}
	if len(generated) == 0 {
		return nil, nil
	}

	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.schedules.SaveAll(ctx, generated); err != nil {
			return err
		}
		for _, sched := range generated {
			if _, err := s.slots.GenerateSlotsForSchedule(ctx, sched); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	var events []Event
	for _, sched := range generated {
		events = append(events, ScheduleCreated{
			ScheduleID: sched.ID,
			DoctorID:   sched.DoctorID,
			Date:       sched.Date,
			Period:     sched.Period,
			OccurredOn: sched.CreatedAt,
		})
	}
	s.publish(ctx, events)
	s.log.Info().
		Str("doctor_id", doctorID.String()).
		Int("generated", len(generated)).
		Msg("auto-scheduling completed")
	return generated, nil
}

// BookSlot consumes one capacity unit and, when a slot id is given, occupies
// that specific slot. Serialized per schedule.
func (s *Service) BookSlot(ctx context.Context, scheduleID uuid.UUID, slotID, appointmentID *uuid.UUID) (*DoctorSchedule, error) {
	var sched *DoctorSchedule
	err := s.withScheduleLock(ctx, scheduleID, func(ctx context.Context) error {
		var err error
		sched, err = s.schedules.FindByID(ctx, scheduleID)
		if err != nil {
			return err
		}
		if !sched.IsInAppointmentPeriod(time.Now()) {
			return fmt.Errorf("%w: schedule date outside the booking window", ErrValidation)
		}

		events, err := sched.DecreaseSlot()
		if err != nil {
			return err
		}

		err = s.tx.InTx(ctx, func(ctx context.Context) error {
			if err := s.schedules.Save(ctx, sched); err != nil {
				return err
			}
			if slotID != nil && appointmentID != nil {
				if _, err := s.slots.OccupySlot(ctx, *slotID, *appointmentID); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
		s.publish(ctx, events)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sched, nil
}

// CancelSlot returns one capacity unit and releases the named slot if given.
func (s *Service) CancelSlot(ctx context.Context, scheduleID uuid.UUID, slotID *uuid.UUID) (*DoctorSchedule, error) {
	var sched *DoctorSchedule
	err := s.withScheduleLock(ctx, scheduleID, func(ctx context.Context) error {
		var err error
		sched, err = s.schedules.FindByID(ctx, scheduleID)
		if err != nil {
			return err
		}

		events, err := sched.IncreaseSlot()
		if err != nil {
			return err
		}

		err = s.tx.InTx(ctx, func(ctx context.Context) error {
			if err := s.schedules.Save(ctx, sched); err != nil {
				return err
			}
			if slotID != nil {
				if _, err := s.slots.ReleaseSlot(ctx, *slotID); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
		s.publish(ctx, events)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sched, nil
}

// CloseSchedule suspends booking on a schedule.
func (s *Service) CloseSchedule(ctx context.Context, scheduleID uuid.UUID, reason string) (*DoctorSchedule, error) {
	var sched *DoctorSchedule
	err := s.withScheduleLock(ctx, scheduleID, func(ctx context.Context) error {
		var err error
		sched, err = s.schedules.FindByID(ctx, scheduleID)
		if err != nil {
			return err
		}
		events := sched.Close(reason)
		if len(events) == 0 {
			return nil
		}
		if err := s.schedules.Save(ctx, sched); err != nil {
			return err
		}
		s.publish(ctx, events)
		s.log.Info().Str("schedule_id", scheduleID.String()).Str("reason", reason).Msg("schedule closed")
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sched, nil
}

// OpenSchedule lifts a closure.
func (s *Service) OpenSchedule(ctx context.Context, scheduleID uuid.UUID) (*DoctorSchedule, error) {
	var sched *DoctorSchedule
	err := s.withScheduleLock(ctx, scheduleID, func(ctx context.Context) error {
		var err error
		sched, err = s.schedules.FindByID(ctx, scheduleID)
		if err != nil {
			return err
		}
		events, err := sched.Open()
		if err != nil {
			return err
		}
		if len(events) == 0 {
			return nil
		}
		if err := s.schedules.Save(ctx, sched); err != nil {
			return err
		}
		s.publish(ctx, events)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sched, nil
}

// AdjustTotalSlots resizes a schedule's capacity and reconciles its slot rows.
func (s *Service) AdjustTotalSlots(ctx context.Context, scheduleID uuid.UUID, newTotal int) (*DoctorSchedule, error) {
	var sched *DoctorSchedule
	err := s.withScheduleLock(ctx, scheduleID, func(ctx context.Context) error {
		var err error
		sched, err = s.schedules.FindByID(ctx, scheduleID)
		if err != nil {
			return err
		}
		events, err := sched.AdjustTotalSlots(newTotal)
		if err != nil {
			return err
		}

		err = s.tx.InTx(ctx, func(ctx context.Context) error {
			if err := s.schedules.Save(ctx, sched); err != nil {
				return err
			}
			return s.slots.ResizeSlotsForSchedule(ctx, sched)
		})
		if err != nil {
			return err
		}
		s.publish(ctx, events)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sched, nil
}

// MarkExpiredSchedules is the daily sweep: every schedule dated before today
// moves to its terminal state. Returns the number of schedules expired.
func (s *Service) MarkExpiredSchedules(ctx context.Context, now time.Time) (int, error) {
	expired, err := s.schedules.FindExpiredSchedules(ctx, DateOnly(now))
	if err != nil {
		return 0, err
	}

	var count int
	for _, sched := range expired {
		events := sched.MarkExpired()
		if len(events) == 0 {
			continue
		}
		if err := s.schedules.Save(ctx, sched); err != nil {
			return count, fmt.Errorf("expire schedule %s: %w", sched.ID, err)
		}
		s.publish(ctx, events)
		count++
	}
	if count > 0 {
		s.log.Info().Int("expired", count).Msg("expiry sweep completed")
	}
	return count, nil
}

// RemoveSchedule deletes a schedule and its slot rows. Administrative only.
func (s *Service) RemoveSchedule(ctx context.Context, scheduleID uuid.UUID) error {
	return s.tx.InTx(ctx, func(ctx context.Context) error {
		if _, err := s.schedules.FindByID(ctx, scheduleID); err != nil {
			return err
		}
		if err := s.slots.slots.DeleteBySchedule(ctx, scheduleID); err != nil {
			return err
		}
		return s.schedules.Remove(ctx, scheduleID)
	})
}

// GetSchedule loads one schedule.
func (s *Service) GetSchedule(ctx context.Context, scheduleID uuid.UUID) (*DoctorSchedule, error) {
	return s.schedules.FindByID(ctx, scheduleID)
}

// ListSchedules returns a doctor's schedules over a date range.
func (s *Service) ListSchedules(ctx context.Context, doctorID uuid.UUID, start, end time.Time) ([]*DoctorSchedule, error) {
	if DateOnly(end).Before(DateOnly(start)) {
		return nil, fmt.Errorf("%w: end date precedes start date", ErrValidation)
	}
	return s.schedules.FindByDoctorAndDateRange(ctx, doctorID, start, end)
}

// ListOpenSchedules returns bookable schedules for a date and period.
func (s *Service) ListOpenSchedules(ctx context.Context, date time.Time, period TimePeriod) ([]*DoctorSchedule, error) {
	return s.schedules.FindOpenSchedulesByDateAndPeriod(ctx, date, period)
}

// ListSlots returns the appointment slots of a schedule, optionally only the
// available ones.
func (s *Service) ListSlots(ctx context.Context, scheduleID uuid.UUID, availableOnly bool) ([]*AppointmentSlot, error) {
	if availableOnly {
		return s.slots.slots.FindAvailableBySchedule(ctx, scheduleID)
	}
	return s.slots.slots.FindBySchedule(ctx, scheduleID)
}

// OccupySlot binds a slot to an appointment without touching capacity.
func (s *Service) OccupySlot(ctx context.Context, slotID, appointmentID uuid.UUID) (*AppointmentSlot, error) {
	return s.slots.OccupySlot(ctx, slotID, appointmentID)
}

// ReleaseSlot frees a slot without touching capacity.
func (s *Service) ReleaseSlot(ctx context.Context, slotID uuid.UUID) (*AppointmentSlot, error) {
	return s.slots.ReleaseSlot(ctx, slotID)
}
