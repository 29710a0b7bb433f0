package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medisched/medisched/internal/platform/db"
)

type scheduleRepoPG struct {
	pool *pgxpool.Pool
}

func NewScheduleRepo(pool *pgxpool.Pool) ScheduleRepository {
	return &scheduleRepoPG{pool: pool}
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

func (r *scheduleRepoPG) conn(ctx context.Context) querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const schedCols = `id, doctor_id, schedule_date, time_period, total_slots, available_slots,
	status, slot_duration_minutes, created_at, updated_at`

func (r *scheduleRepoPG) Save(ctx context.Context, s *DoctorSchedule) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
		_, err := r.conn(ctx).Exec(ctx, `
			INSERT INTO doctor_schedule (
				id, doctor_id, schedule_date, time_period, total_slots, available_slots,
				status, slot_duration_minutes, created_at, updated_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
			s.ID, s.DoctorID, s.Date, int(s.Period), s.Capacity.Total(), s.Capacity.Available(),
			int(s.Status), s.SlotDurationMinutes, s.CreatedAt, s.UpdatedAt,
		)
		return err
	}
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE doctor_schedule SET
			total_slots=$2, available_slots=$3, status=$4, slot_duration_minutes=$5, updated_at=NOW()
		WHERE id = $1`,
		s.ID, s.Capacity.Total(), s.Capacity.Available(), int(s.Status), s.SlotDurationMinutes,
	)
	return err
}

func (r *scheduleRepoPG) SaveAll(ctx context.Context, ss []*DoctorSchedule) error {
	for _, s := range ss {
		if err := r.Save(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

func (r *scheduleRepoPG) FindByID(ctx context.Context, id uuid.UUID) (*DoctorSchedule, error) {
	return scanSchedule(r.conn(ctx).QueryRow(ctx,
		`SELECT `+schedCols+` FROM doctor_schedule WHERE id = $1`, id))
}

func (r *scheduleRepoPG) FindByDoctorAndDateAndPeriod(ctx context.Context, doctorID uuid.UUID, date time.Time, period TimePeriod) (*DoctorSchedule, error) {
	return scanSchedule(r.conn(ctx).QueryRow(ctx,
		`SELECT `+schedCols+` FROM doctor_schedule
		 WHERE doctor_id = $1 AND schedule_date = $2 AND time_period = $3`,
		doctorID, DateOnly(date), int(period)))
}

func (r *scheduleRepoPG) FindByDoctorAndDate(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]*DoctorSchedule, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+schedCols+` FROM doctor_schedule
		 WHERE doctor_id = $1 AND schedule_date = $2 ORDER BY time_period`,
		doctorID, DateOnly(date))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSchedules(rows)
}

func (r *scheduleRepoPG) FindByDoctorAndDateRange(ctx context.Context, doctorID uuid.UUID, start, end time.Time) ([]*DoctorSchedule, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+schedCols+` FROM doctor_schedule
		 WHERE doctor_id = $1 AND schedule_date BETWEEN $2 AND $3
		 ORDER BY schedule_date, time_period`,
		doctorID, DateOnly(start), DateOnly(end))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSchedules(rows)
}

func (r *scheduleRepoPG) FindOpenSchedulesByDateAndPeriod(ctx context.Context, date time.Time, period TimePeriod) ([]*DoctorSchedule, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+schedCols+` FROM doctor_schedule
		 WHERE schedule_date = $1 AND time_period = $2 AND status = $3
		 ORDER BY doctor_id`,
		DateOnly(date), int(period), int(StatusOpen))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSchedules(rows)
}

func (r *scheduleRepoPG) Exists(ctx context.Context, doctorID uuid.UUID, date time.Time, period TimePeriod) (bool, error) {
	var exists bool
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM doctor_schedule
			WHERE doctor_id = $1 AND schedule_date = $2 AND time_period = $3)`,
		doctorID, DateOnly(date), int(period)).Scan(&exists)
	return exists, err
}

func (r *scheduleRepoPG) FindExpiredSchedules(ctx context.Context, beforeDate time.Time) ([]*DoctorSchedule, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+schedCols+` FROM doctor_schedule
		 WHERE schedule_date < $1 AND status <> $2
		 ORDER BY schedule_date`,
		DateOnly(beforeDate), int(StatusExpired))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSchedules(rows)
}

func (r *scheduleRepoPG) Remove(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM doctor_schedule WHERE id = $1`, id)
	return err
}

func scanSchedule(row pgx.Row) (*DoctorSchedule, error) {
	var (
		s              DoctorSchedule
		period, status int
		total, avail   int
	)
	err := row.Scan(&s.ID, &s.DoctorID, &s.Date, &period, &total, &avail,
		&status, &s.SlotDurationMinutes, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: schedule", ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return rehydrateSchedule(&s, period, total, avail, status)
}

func collectSchedules(rows pgx.Rows) ([]*DoctorSchedule, error) {
	var out []*DoctorSchedule
	for rows.Next() {
		var (
			s              DoctorSchedule
			period, status int
			total, avail   int
		)
		if err := rows.Scan(&s.ID, &s.DoctorID, &s.Date, &period, &total, &avail,
			&status, &s.SlotDurationMinutes, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		sched, err := rehydrateSchedule(&s, period, total, avail, status)
		if err != nil {
			return nil, err
		}
		out = append(out, sched)
	}
	return out, rows.Err()
}

func rehydrateSchedule(s *DoctorSchedule, period, total, avail, status int) (*DoctorSchedule, error) {
	p, err := TimePeriodFromCode(period)
	if err != nil {
		return nil, err
	}
	st, err := StatusFromCode(status)
	if err != nil {
		return nil, err
	}
	cap, err := NewSlotCapacity(total, avail)
	if err != nil {
		return nil, err
	}
	s.Period = p
	s.Status = st
	s.Capacity = cap
	s.Date = DateOnly(s.Date)
	return s, nil
}

type slotRepoPG struct {
	pool *pgxpool.Pool
}

func NewSlotRepo(pool *pgxpool.Pool) SlotRepository {
	return &slotRepoPG{pool: pool}
}

func (r *slotRepoPG) conn(ctx context.Context) querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const slotCols = `id, schedule_id, start_time, end_time, occupied, appointment_id, created_at, updated_at`

func (r *slotRepoPG) Save(ctx context.Context, s *AppointmentSlot) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
		_, err := r.conn(ctx).Exec(ctx, `
			INSERT INTO appointment_slot (
				id, schedule_id, start_time, end_time, occupied, appointment_id, created_at, updated_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
			s.ID, s.ScheduleID, pgTime(s.Slot.Start), pgTime(s.Slot.End),
			s.Occupied, s.AppointmentID, s.CreatedAt, s.UpdatedAt,
		)
		return err
	}
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE appointment_slot SET occupied=$2, appointment_id=$3, updated_at=NOW()
		WHERE id = $1`,
		s.ID, s.Occupied, s.AppointmentID,
	)
	return err
}

func (r *slotRepoPG) SaveAll(ctx context.Context, ss []*AppointmentSlot) error {
	for _, s := range ss {
		if err := r.Save(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

func (r *slotRepoPG) FindByID(ctx context.Context, id uuid.UUID) (*AppointmentSlot, error) {
	return scanSlot(r.conn(ctx).QueryRow(ctx,
		`SELECT `+slotCols+` FROM appointment_slot WHERE id = $1`, id))
}

func (r *slotRepoPG) FindBySchedule(ctx context.Context, scheduleID uuid.UUID) ([]*AppointmentSlot, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+slotCols+` FROM appointment_slot WHERE schedule_id = $1 ORDER BY start_time`,
		scheduleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSlots(rows)
}

func (r *slotRepoPG) FindAvailableBySchedule(ctx context.Context, scheduleID uuid.UUID) ([]*AppointmentSlot, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+slotCols+` FROM appointment_slot
		 WHERE schedule_id = $1 AND NOT occupied ORDER BY start_time`,
		scheduleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSlots(rows)
}

func (r *slotRepoPG) FindByScheduleAndTime(ctx context.Context, scheduleID uuid.UUID, slot TimeSlot) (*AppointmentSlot, error) {
	return scanSlot(r.conn(ctx).QueryRow(ctx,
		`SELECT `+slotCols+` FROM appointment_slot
		 WHERE schedule_id = $1 AND start_time = $2 AND end_time = $3`,
		scheduleID, pgTime(slot.Start), pgTime(slot.End)))
}

func (r *slotRepoPG) CountAvailableBySchedule(ctx context.Context, scheduleID uuid.UUID) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM appointment_slot WHERE schedule_id = $1 AND NOT occupied`,
		scheduleID).Scan(&n)
	return n, err
}

func (r *slotRepoPG) DeleteBySchedule(ctx context.Context, scheduleID uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM appointment_slot WHERE schedule_id = $1`, scheduleID)
	return err
}

func (r *slotRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM appointment_slot WHERE id = $1`, id)
	return err
}

func scanSlot(row pgx.Row) (*AppointmentSlot, error) {
	var (
		s          AppointmentSlot
		start, end pgtype.Time
	)
	err := row.Scan(&s.ID, &s.ScheduleID, &start, &end, &s.Occupied, &s.AppointmentID,
		&s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: appointment slot", ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	s.Slot = TimeSlot{Start: timeOfDayFromPG(start), End: timeOfDayFromPG(end)}
	return &s, nil
}

func collectSlots(rows pgx.Rows) ([]*AppointmentSlot, error) {
	var out []*AppointmentSlot
	for rows.Next() {
		var (
			s          AppointmentSlot
			start, end pgtype.Time
		)
		if err := rows.Scan(&s.ID, &s.ScheduleID, &start, &end, &s.Occupied, &s.AppointmentID,
			&s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		s.Slot = TimeSlot{Start: timeOfDayFromPG(start), End: timeOfDayFromPG(end)}
		out = append(out, &s)
	}
	return out, rows.Err()
}

// TIME columns carry microseconds since midnight.
func pgTime(t TimeOfDay) pgtype.Time {
	return pgtype.Time{Microseconds: int64(t.Minutes()) * 60 * 1_000_000, Valid: true}
}

func timeOfDayFromPG(t pgtype.Time) TimeOfDay {
	mins := int(t.Microseconds / (60 * 1_000_000))
	return TimeOfDay{Hour: mins / 60, Minute: mins % 60}
}
