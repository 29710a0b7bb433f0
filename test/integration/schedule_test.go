package integration

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/medisched/medisched/internal/domain/schedule"
	"github.com/medisched/medisched/internal/platform/db"
)

func futureDate(days int) time.Time {
	return schedule.DateOnly(time.Now().UTC().AddDate(0, 0, days))
}

func TestScheduleRepo_SaveAndFind(t *testing.T) {
	ctx := context.Background()
	truncateTables(t, ctx)

	doctorID := uuid.New()
	date := futureDate(2)
	created := createTestSchedule(t, ctx, doctorID, date, schedule.PeriodMorning)
	if created.ID == uuid.Nil {
		t.Fatal("expected Save to assign an ID")
	}

	repo := schedule.NewScheduleRepo(globalDB.Pool)

	fetched, err := repo.FindByID(ctx, created.ID)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if fetched.DoctorID != doctorID {
		t.Errorf("expected doctor %s, got %s", doctorID, fetched.DoctorID)
	}
	if !fetched.Date.Equal(date) {
		t.Errorf("expected date %v, got %v", date, fetched.Date)
	}
	if fetched.Period != schedule.PeriodMorning {
		t.Errorf("expected MORNING, got %v", fetched.Period)
	}
	if fetched.Status != schedule.StatusOpen {
		t.Errorf("expected OPEN, got %v", fetched.Status)
	}
	if fetched.Capacity.Total() != 8 || fetched.Capacity.Available() != 8 {
		t.Errorf("expected capacity 8/8, got %d/%d", fetched.Capacity.Available(), fetched.Capacity.Total())
	}

	byKey, err := repo.FindByDoctorAndDateAndPeriod(ctx, doctorID, date, schedule.PeriodMorning)
	if err != nil {
		t.Fatalf("FindByDoctorAndDateAndPeriod: %v", err)
	}
	if byKey.ID != created.ID {
		t.Errorf("expected %s, got %s", created.ID, byKey.ID)
	}
}

func TestScheduleRepo_NotFound(t *testing.T) {
	ctx := context.Background()
	truncateTables(t, ctx)

	repo := schedule.NewScheduleRepo(globalDB.Pool)
	_, err := repo.FindByID(ctx, uuid.New())
	if !errors.Is(err, schedule.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestScheduleRepo_UniqueDoctorDatePeriod(t *testing.T) {
	ctx := context.Background()
	truncateTables(t, ctx)

	doctorID := uuid.New()
	date := futureDate(3)
	createTestSchedule(t, ctx, doctorID, date, schedule.PeriodAfternoon)

	dup, _, err := schedule.NewDoctorSchedule(doctorID, date, schedule.PeriodAfternoon, 4, 60)
	if err != nil {
		t.Fatalf("build duplicate: %v", err)
	}
	repo := schedule.NewScheduleRepo(globalDB.Pool)
	if err := repo.Save(ctx, dup); err == nil {
		t.Fatal("expected unique constraint violation for duplicate doctor/date/period")
	}

	exists, err := repo.Exists(ctx, doctorID, date, schedule.PeriodAfternoon)
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if !exists {
		t.Error("expected Exists to report true")
	}
}

func TestScheduleRepo_UpdatePersistsCapacityAndStatus(t *testing.T) {
	ctx := context.Background()
	truncateTables(t, ctx)

	created := createTestSchedule(t, ctx, uuid.New(), futureDate(2), schedule.PeriodEvening)
	if _, err := created.DecreaseSlot(); err != nil {
		t.Fatalf("DecreaseSlot: %v", err)
	}
	created.Close("maintenance")

	repo := schedule.NewScheduleRepo(globalDB.Pool)
	if err := repo.Save(ctx, created); err != nil {
		t.Fatalf("update: %v", err)
	}

	fetched, err := repo.FindByID(ctx, created.ID)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if fetched.Capacity.Available() != 7 {
		t.Errorf("expected 7 available, got %d", fetched.Capacity.Available())
	}
	if fetched.Status != schedule.StatusClosed {
		t.Errorf("expected CLOSED, got %v", fetched.Status)
	}
}

func TestScheduleRepo_RangeAndExpiredQueries(t *testing.T) {
	ctx := context.Background()
	truncateTables(t, ctx)

	doctorID := uuid.New()
	for i := 1; i <= 3; i++ {
		createTestSchedule(t, ctx, doctorID, futureDate(i), schedule.PeriodMorning)
	}

	repo := schedule.NewScheduleRepo(globalDB.Pool)

	inRange, err := repo.FindByDoctorAndDateRange(ctx, doctorID, futureDate(1), futureDate(2))
	if err != nil {
		t.Fatalf("FindByDoctorAndDateRange: %v", err)
	}
	if len(inRange) != 2 {
		t.Errorf("expected 2 schedules in range, got %d", len(inRange))
	}

	open, err := repo.FindOpenSchedulesByDateAndPeriod(ctx, futureDate(1), schedule.PeriodMorning)
	if err != nil {
		t.Fatalf("FindOpenSchedulesByDateAndPeriod: %v", err)
	}
	if len(open) != 1 {
		t.Errorf("expected 1 open schedule, got %d", len(open))
	}

	// Nothing is dated before tomorrow, so the expiry query comes back empty.
	expired, err := repo.FindExpiredSchedules(ctx, futureDate(1))
	if err != nil {
		t.Fatalf("FindExpiredSchedules: %v", err)
	}
	if len(expired) != 0 {
		t.Errorf("expected no expired schedules, got %d", len(expired))
	}

	expired, err = repo.FindExpiredSchedules(ctx, futureDate(3))
	if err != nil {
		t.Fatalf("FindExpiredSchedules: %v", err)
	}
	if len(expired) != 2 {
		t.Errorf("expected 2 schedules before cutoff, got %d", len(expired))
	}
}

func TestSlotRepo_LifecycleWithCascade(t *testing.T) {
	ctx := context.Background()
	truncateTables(t, ctx)

	created := createTestSchedule(t, ctx, uuid.New(), futureDate(2), schedule.PeriodMorning)

	slotRepo := schedule.NewSlotRepo(globalDB.Pool)
	manager := schedule.NewSlotManager(slotRepo)
	if _, err := manager.GenerateSlotsForSchedule(ctx, created); err != nil {
		t.Fatalf("GenerateSlotsForSchedule: %v", err)
	}

	slots, err := slotRepo.FindBySchedule(ctx, created.ID)
	if err != nil {
		t.Fatalf("FindBySchedule: %v", err)
	}
	if len(slots) != 8 {
		t.Fatalf("expected 8 slots for a 4h morning at 30min, got %d", len(slots))
	}

	// Occupy the first slot and verify availability counts.
	apptID := uuid.New()
	if err := slots[0].Occupy(apptID); err != nil {
		t.Fatalf("Occupy: %v", err)
	}
	if err := slotRepo.Save(ctx, slots[0]); err != nil {
		t.Fatalf("save occupied slot: %v", err)
	}

	available, err := slotRepo.CountAvailableBySchedule(ctx, created.ID)
	if err != nil {
		t.Fatalf("CountAvailableBySchedule: %v", err)
	}
	if available != 7 {
		t.Errorf("expected 7 available slots, got %d", available)
	}

	// Removing the schedule cascades to its slots.
	scheduleRepo := schedule.NewScheduleRepo(globalDB.Pool)
	if err := scheduleRepo.Remove(ctx, created.ID); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	slots, err = slotRepo.FindBySchedule(ctx, created.ID)
	if err != nil {
		t.Fatalf("FindBySchedule after remove: %v", err)
	}
	if len(slots) != 0 {
		t.Errorf("expected slots to cascade on schedule delete, got %d", len(slots))
	}
}

func TestTransactor_RollsBackOnError(t *testing.T) {
	ctx := context.Background()
	truncateTables(t, ctx)

	doctorID := uuid.New()
	sched, _, err := schedule.NewDoctorSchedule(doctorID, futureDate(2), schedule.PeriodMorning, 8, 30)
	if err != nil {
		t.Fatalf("build schedule: %v", err)
	}

	repo := schedule.NewScheduleRepo(globalDB.Pool)
	tx := db.NewTransactor(globalDB.Pool)

	failure := errors.New("boom")
	err = tx.InTx(ctx, func(ctx context.Context) error {
		if err := repo.Save(ctx, sched); err != nil {
			return err
		}
		return failure
	})
	if !errors.Is(err, failure) {
		t.Fatalf("expected wrapped failure, got %v", err)
	}

	exists, err := repo.Exists(ctx, doctorID, futureDate(2), schedule.PeriodMorning)
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if exists {
		t.Error("expected rollback to discard the schedule")
	}
}
