package schedule

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// -- Mocks --

type mockScheduleRepo struct {
	schedules map[uuid.UUID]*DoctorSchedule
}

func newMockScheduleRepo() *mockScheduleRepo {
	return &mockScheduleRepo{schedules: make(map[uuid.UUID]*DoctorSchedule)}
}

func (m *mockScheduleRepo) Save(_ context.Context, s *DoctorSchedule) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	m.schedules[s.ID] = s
	return nil
}

func (m *mockScheduleRepo) SaveAll(ctx context.Context, ss []*DoctorSchedule) error {
	for _, s := range ss {
		if err := m.Save(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

func (m *mockScheduleRepo) FindByID(_ context.Context, id uuid.UUID) (*DoctorSchedule, error) {
	s, ok := m.schedules[id]
	if !ok {
		return nil, fmt.Errorf("%w: schedule", ErrNotFound)
	}
	return s, nil
}

func (m *mockScheduleRepo) FindByDoctorAndDateAndPeriod(_ context.Context, doctorID uuid.UUID, date time.Time, period TimePeriod) (*DoctorSchedule, error) {
	for _, s := range m.schedules {
		if s.DoctorID == doctorID && s.Date.Equal(DateOnly(date)) && s.Period == period {
			return s, nil
		}
	}
	return nil, fmt.Errorf("%w: schedule", ErrNotFound)
}

func (m *mockScheduleRepo) FindByDoctorAndDate(_ context.Context, doctorID uuid.UUID, date time.Time) ([]*DoctorSchedule, error) {
	var out []*DoctorSchedule
	for _, s := range m.schedules {
		if s.DoctorID == doctorID && s.Date.Equal(DateOnly(date)) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *mockScheduleRepo) FindByDoctorAndDateRange(_ context.Context, doctorID uuid.UUID, start, end time.Time) ([]*DoctorSchedule, error) {
	var out []*DoctorSchedule
	for _, s := range m.schedules {
		if s.DoctorID == doctorID && !s.Date.Before(DateOnly(start)) && !s.Date.After(DateOnly(end)) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *mockScheduleRepo) FindOpenSchedulesByDateAndPeriod(_ context.Context, date time.Time, period TimePeriod) ([]*DoctorSchedule, error) {
	var out []*DoctorSchedule
	for _, s := range m.schedules {
		if s.Date.Equal(DateOnly(date)) && s.Period == period && s.Status == StatusOpen {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *mockScheduleRepo) Exists(_ context.Context, doctorID uuid.UUID, date time.Time, period TimePeriod) (bool, error) {
	for _, s := range m.schedules {
		if s.DoctorID == doctorID && s.Date.Equal(DateOnly(date)) && s.Period == period {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockScheduleRepo) FindExpiredSchedules(_ context.Context, beforeDate time.Time) ([]*DoctorSchedule, error) {
	var out []*DoctorSchedule
	for _, s := range m.schedules {
		if s.Date.Before(DateOnly(beforeDate)) && s.Status != StatusExpired {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *mockScheduleRepo) Remove(_ context.Context, id uuid.UUID) error {
	delete(m.schedules, id)
	return nil
}

type mockSlotRepo struct {
	slots map[uuid.UUID]*AppointmentSlot
}

func newMockSlotRepo() *mockSlotRepo {
	return &mockSlotRepo{slots: make(map[uuid.UUID]*AppointmentSlot)}
}

func (m *mockSlotRepo) Save(_ context.Context, s *AppointmentSlot) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	m.slots[s.ID] = s
	return nil
}

func (m *mockSlotRepo) SaveAll(ctx context.Context, ss []*AppointmentSlot) error {
	for _, s := range ss {
		if err := m.Save(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

func (m *mockSlotRepo) FindByID(_ context.Context, id uuid.UUID) (*AppointmentSlot, error) {
	s, ok := m.slots[id]
	if !ok {
		return nil, fmt.Errorf("%w: appointment slot", ErrNotFound)
	}
	return s, nil
}

func (m *mockSlotRepo) FindBySchedule(_ context.Context, scheduleID uuid.UUID) ([]*AppointmentSlot, error) {
	var out []*AppointmentSlot
	for _, s := range m.slots {
		if s.ScheduleID == scheduleID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *mockSlotRepo) FindAvailableBySchedule(_ context.Context, scheduleID uuid.UUID) ([]*AppointmentSlot, error) {
	var out []*AppointmentSlot
	for _, s := range m.slots {
		if s.ScheduleID == scheduleID && !s.Occupied {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *mockSlotRepo) FindByScheduleAndTime(_ context.Context, scheduleID uuid.UUID, slot TimeSlot) (*AppointmentSlot, error) {
	for _, s := range m.slots {
		if s.ScheduleID == scheduleID && s.Slot.Start.Equal(slot.Start) && s.Slot.End.Equal(slot.End) {
			return s, nil
		}
	}
	return nil, fmt.Errorf("%w: appointment slot", ErrNotFound)
}

func (m *mockSlotRepo) CountAvailableBySchedule(_ context.Context, scheduleID uuid.UUID) (int, error) {
	n := 0
	for _, s := range m.slots {
		if s.ScheduleID == scheduleID && !s.Occupied {
			n++
		}
	}
	return n, nil
}

func (m *mockSlotRepo) DeleteBySchedule(_ context.Context, scheduleID uuid.UUID) error {
	for id, s := range m.slots {
		if s.ScheduleID == scheduleID {
			delete(m.slots, id)
		}
	}
	return nil
}

func (m *mockSlotRepo) Delete(_ context.Context, id uuid.UUID) error {
	delete(m.slots, id)
	return nil
}

type mockLocker struct {
	acquired []string
	released int
	fail     bool
}

func (m *mockLocker) TryLock(_ context.Context, key string, _, _ time.Duration) (func(context.Context) error, error) {
	if m.fail {
		return nil, fmt.Errorf("lock wait timeout")
	}
	m.acquired = append(m.acquired, key)
	return func(context.Context) error {
		m.released++
		return nil
	}, nil
}

type mockTransactor struct{}

func (mockTransactor) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type mockPublisher struct {
	events []Event
}

func (m *mockPublisher) Publish(_ context.Context, events ...Event) error {
	m.events = append(m.events, events...)
	return nil
}

type testEnv struct {
	svc       *Service
	schedules *mockScheduleRepo
	slots     *mockSlotRepo
	locker    *mockLocker
	publisher *mockPublisher
}

func newTestEnv() *testEnv {
	schedules := newMockScheduleRepo()
	slots := newMockSlotRepo()
	locker := &mockLocker{}
	publisher := &mockPublisher{}
	mgr := NewSlotManager(slots)
	scheduler := NewAutoScheduler(DefaultStrategyRegistry(), schedules)
	svc := NewService(schedules, mgr, scheduler, locker, mockTransactor{}, publisher, zerolog.Nop())
	return &testEnv{svc: svc, schedules: schedules, slots: slots, locker: locker, publisher: publisher}
}

func futureDate() time.Time {
	return DateOnly(time.Now()).AddDate(0, 0, 2)
}

// -- Tests --

func TestService_CreateSchedule(t *testing.T) {
	env := newTestEnv()
	doctorID := uuid.New()

	sched, err := env.svc.CreateSchedule(context.Background(), doctorID, futureDate(), PeriodMorning, 8, 30)
	if err != nil {
		t.Fatalf("CreateSchedule: %v", err)
	}
	if sched.ID == uuid.Nil {
		t.Error("id should be assigned on save")
	}

	slots, _ := env.slots.FindBySchedule(context.Background(), sched.ID)
	if len(slots) != 8 {
		t.Errorf("expected 8 slot rows, got %d", len(slots))
	}

	if len(env.publisher.events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(env.publisher.events))
	}
	created, ok := env.publisher.events[0].(ScheduleCreated)
	if !ok {
		t.Fatalf("expected ScheduleCreated, got %T", env.publisher.events[0])
	}
	if created.ScheduleID != sched.ID {
		t.Error("published event should carry the persisted schedule id")
	}
}

func TestService_CreateSchedule_SlotRowsTruncatedToCapacity(t *testing.T) {
	env := newTestEnv()

	sched, err := env.svc.CreateSchedule(context.Background(), uuid.New(), futureDate(), PeriodMorning, 3, 30)
	if err != nil {
		t.Fatalf("CreateSchedule: %v", err)
	}
	slots, _ := env.slots.FindBySchedule(context.Background(), sched.ID)
	if len(slots) != 3 {
		t.Errorf("expected 3 slot rows, got %d", len(slots))
	}
}

func TestService_CreateSchedule_Conflict(t *testing.T) {
	env := newTestEnv()
	doctorID := uuid.New()
	date := futureDate()

	if _, err := env.svc.CreateSchedule(context.Background(), doctorID, date, PeriodMorning, 8, 30); err != nil {
		t.Fatalf("first create: %v", err)
	}
	if _, err := env.svc.CreateSchedule(context.Background(), doctorID, date, PeriodMorning, 8, 30); !errors.Is(err, ErrConflict) {
		t.Errorf("got %v, want ErrConflict", err)
	}
}

func TestService_BookSlot(t *testing.T) {
	env := newTestEnv()
	sched, err := env.svc.CreateSchedule(context.Background(), uuid.New(), futureDate(), PeriodMorning, 2, 30)
	if err != nil {
		t.Fatalf("CreateSchedule: %v", err)
	}
	slots, _ := env.slots.FindBySchedule(context.Background(), sched.ID)
	slotID := slots[0].ID
	apptID := uuid.New()

	booked, err := env.svc.BookSlot(context.Background(), sched.ID, &slotID, &apptID)
	if err != nil {
		t.Fatalf("BookSlot: %v", err)
	}
	if booked.Capacity.Available() != 1 {
		t.Errorf("available = %d, want 1", booked.Capacity.Available())
	}

	slot, _ := env.slots.FindByID(context.Background(), slotID)
	if !slot.Occupied || slot.AppointmentID == nil || *slot.AppointmentID != apptID {
		t.Error("slot should be occupied by the appointment")
	}

	wantKey := LockKey(sched.ID)
	if len(env.locker.acquired) == 0 || env.locker.acquired[len(env.locker.acquired)-1] != wantKey {
		t.Errorf("lock key = %v, want %s", env.locker.acquired, wantKey)
	}
	if env.locker.released != len(env.locker.acquired) {
		t.Error("every acquired lock should be released")
	}
}

func TestService_BookSlot_LockFailure(t *testing.T) {
	env := newTestEnv()
	sched, err := env.svc.CreateSchedule(context.Background(), uuid.New(), futureDate(), PeriodMorning, 2, 30)
	if err != nil {
		t.Fatalf("CreateSchedule: %v", err)
	}

	env.locker.fail = true
	if _, err := env.svc.BookSlot(context.Background(), sched.ID, nil, nil); err == nil {
		t.Error("expected error when the lock cannot be acquired")
	}
}

func TestService_BookSlot_OutsideBookingWindow(t *testing.T) {
	env := newTestEnv()
	far := DateOnly(time.Now()).AddDate(0, 0, 30)
	sched, err := env.svc.CreateSchedule(context.Background(), uuid.New(), far, PeriodMorning, 2, 30)
	if err != nil {
		t.Fatalf("CreateSchedule: %v", err)
	}

	if _, err := env.svc.BookSlot(context.Background(), sched.ID, nil, nil); !errors.Is(err, ErrValidation) {
		t.Errorf("got %v, want ErrValidation", err)
	}
}

func TestService_BookAndCancelRoundTrip(t *testing.T) {
	env := newTestEnv()
	sched, err := env.svc.CreateSchedule(context.Background(), uuid.New(), futureDate(), PeriodEvening, 2, 45)
	if err != nil {
		t.Fatalf("CreateSchedule: %v", err)
	}

	for i := 0; i < 2; i++ {
		if _, err := env.svc.BookSlot(context.Background(), sched.ID, nil, nil); err != nil {
			t.Fatalf("book %d: %v", i+1, err)
		}
	}
	got, _ := env.schedules.FindByID(context.Background(), sched.ID)
	if got.Status != StatusFull {
		t.Fatalf("status = %s, want FULL", got.Status)
	}

	if _, err := env.svc.BookSlot(context.Background(), sched.ID, nil, nil); !errors.Is(err, ErrCapacityExhausted) {
		t.Errorf("overbook: got %v, want ErrCapacityExhausted", err)
	}

	cancelled, err := env.svc.CancelSlot(context.Background(), sched.ID, nil)
	if err != nil {
		t.Fatalf("CancelSlot: %v", err)
	}
	if cancelled.Status != StatusOpen {
		t.Errorf("status after cancel = %s, want OPEN", cancelled.Status)
	}
}

func TestService_AutoSchedule(t *testing.T) {
	env := newTestEnv()
	doctorID := uuid.New()
	start := time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC) // Monday
	end := start.AddDate(0, 0, 27)

	rule, err := NewScheduleRule(doctorID, []time.Weekday{time.Monday, time.Wednesday},
		[]PeriodConfig{{Period: PeriodMorning, TotalSlots: 8, SlotDurationMinutes: 30}}, start, &end, false)
	if err != nil {
		t.Fatalf("NewScheduleRule: %v", err)
	}

	generated, err := env.svc.AutoSchedule(context.Background(), doctorID, start, end, "", ScheduleContext{Rule: rule, Holidays: NoHolidays{}})
	if err != nil {
		t.Fatalf("AutoSchedule: %v", err)
	}
	if len(generated) != 8 {
		t.Fatalf("expected 8 schedules, got %d", len(generated))
	}
	for _, s := range generated {
		if s.ID == uuid.Nil {
			t.Error("generated schedule should be persisted with an id")
		}
		slots, _ := env.slots.FindBySchedule(context.Background(), s.ID)
		if len(slots) != 8 {
			t.Errorf("schedule %s has %d slot rows, want 8", s.ID, len(slots))
		}
	}
	if len(env.publisher.events) != 8 {
		t.Errorf("expected 8 created events, got %d", len(env.publisher.events))
	}

	// a second run over the same range generates nothing new
	again, err := env.svc.AutoSchedule(context.Background(), doctorID, start, end, "", ScheduleContext{Rule: rule, Holidays: NoHolidays{}})
	if err != nil {
		t.Fatalf("second AutoSchedule: %v", err)
	}
	if len(again) != 0 {
		t.Errorf("expected 0 schedules on rerun, got %d", len(again))
	}
}

func TestService_CloseAndOpen(t *testing.T) {
	env := newTestEnv()
	sched, err := env.svc.CreateSchedule(context.Background(), uuid.New(), futureDate(), PeriodMorning, 4, 30)
	if err != nil {
		t.Fatalf("CreateSchedule: %v", err)
	}

	closed, err := env.svc.CloseSchedule(context.Background(), sched.ID, "ward maintenance")
	if err != nil {
		t.Fatalf("CloseSchedule: %v", err)
	}
	if closed.Status != StatusClosed {
		t.Errorf("status = %s, want CLOSED", closed.Status)
	}

	if _, err := env.svc.BookSlot(context.Background(), sched.ID, nil, nil); !errors.Is(err, ErrInvalidStateTransition) {
		t.Errorf("book on CLOSED: got %v, want ErrInvalidStateTransition", err)
	}

	opened, err := env.svc.OpenSchedule(context.Background(), sched.ID)
	if err != nil {
		t.Fatalf("OpenSchedule: %v", err)
	}
	if opened.Status != StatusOpen {
		t.Errorf("status = %s, want OPEN", opened.Status)
	}
}

func TestService_AdjustTotalSlots_GrowsSlotRows(t *testing.T) {
	env := newTestEnv()
	sched, err := env.svc.CreateSchedule(context.Background(), uuid.New(), futureDate(), PeriodMorning, 3, 30)
	if err != nil {
		t.Fatalf("CreateSchedule: %v", err)
	}

	adjusted, err := env.svc.AdjustTotalSlots(context.Background(), sched.ID, 6)
	if err != nil {
		t.Fatalf("AdjustTotalSlots: %v", err)
	}
	if adjusted.Capacity.Total() != 6 {
		t.Errorf("total = %d, want 6", adjusted.Capacity.Total())
	}
	slots, _ := env.slots.FindBySchedule(context.Background(), sched.ID)
	if len(slots) != 6 {
		t.Errorf("expected 6 slot rows after growth, got %d", len(slots))
	}
}

func TestService_AdjustTotalSlots_ShrinksUnoccupiedRows(t *testing.T) {
	env := newTestEnv()
	sched, err := env.svc.CreateSchedule(context.Background(), uuid.New(), futureDate(), PeriodMorning, 8, 30)
	if err != nil {
		t.Fatalf("CreateSchedule: %v", err)
	}

	if _, err := env.svc.AdjustTotalSlots(context.Background(), sched.ID, 4); err != nil {
		t.Fatalf("AdjustTotalSlots: %v", err)
	}
	slots, _ := env.slots.FindBySchedule(context.Background(), sched.ID)
	if len(slots) != 4 {
		t.Errorf("expected 4 slot rows after shrink, got %d", len(slots))
	}
}

func TestService_MarkExpiredSchedules(t *testing.T) {
	env := newTestEnv()
	doctorID := uuid.New()
	now := time.Now()

	past, _, err := NewDoctorSchedule(doctorID, DateOnly(now).AddDate(0, 0, -1), PeriodMorning, 4, 30)
	if err != nil {
		t.Fatalf("NewDoctorSchedule: %v", err)
	}
	if err := env.schedules.Save(context.Background(), past); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := env.svc.CreateSchedule(context.Background(), doctorID, futureDate(), PeriodMorning, 4, 30); err != nil {
		t.Fatalf("CreateSchedule: %v", err)
	}

	count, err := env.svc.MarkExpiredSchedules(context.Background(), now)
	if err != nil {
		t.Fatalf("MarkExpiredSchedules: %v", err)
	}
	if count != 1 {
		t.Errorf("expired %d schedules, want 1", count)
	}
	got, _ := env.schedules.FindByID(context.Background(), past.ID)
	if got.Status != StatusExpired {
		t.Errorf("status = %s, want EXPIRED", got.Status)
	}

	// second sweep finds nothing
	count, err = env.svc.MarkExpiredSchedules(context.Background(), now)
	if err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	if count != 0 {
		t.Errorf("second sweep expired %d, want 0", count)
	}
}

func TestService_RemoveSchedule(t *testing.T) {
	env := newTestEnv()
	sched, err := env.svc.CreateSchedule(context.Background(), uuid.New(), futureDate(), PeriodMorning, 4, 30)
	if err != nil {
		t.Fatalf("CreateSchedule: %v", err)
	}

	if err := env.svc.RemoveSchedule(context.Background(), sched.ID); err != nil {
		t.Fatalf("RemoveSchedule: %v", err)
	}
	if _, err := env.schedules.FindByID(context.Background(), sched.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("schedule should be gone, got %v", err)
	}
	slots, _ := env.slots.FindBySchedule(context.Background(), sched.ID)
	if len(slots) != 0 {
		t.Errorf("slot rows should be deleted, found %d", len(slots))
	}

	if err := env.svc.RemoveSchedule(context.Background(), uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Errorf("removing unknown schedule: got %v, want ErrNotFound", err)
	}
}

func TestService_OccupyAndReleaseSlot(t *testing.T) {
	env := newTestEnv()
	sched, err := env.svc.CreateSchedule(context.Background(), uuid.New(), futureDate(), PeriodMorning, 2, 30)
	if err != nil {
		t.Fatalf("CreateSchedule: %v", err)
	}
	slots, _ := env.slots.FindBySchedule(context.Background(), sched.ID)
	slotID := slots[0].ID

	occupied, err := env.svc.OccupySlot(context.Background(), slotID, uuid.New())
	if err != nil {
		t.Fatalf("OccupySlot: %v", err)
	}
	if !occupied.Occupied {
		t.Error("slot should be occupied")
	}
	if _, err := env.svc.OccupySlot(context.Background(), slotID, uuid.New()); !errors.Is(err, ErrSlotOccupied) {
		t.Errorf("double occupy: got %v, want ErrSlotOccupied", err)
	}

	released, err := env.svc.ReleaseSlot(context.Background(), slotID)
	if err != nil {
		t.Fatalf("ReleaseSlot: %v", err)
	}
	if released.Occupied {
		t.Error("slot should be free after release")
	}
	if _, err := env.svc.ReleaseSlot(context.Background(), slotID); err != nil {
		t.Errorf("release on a free slot should succeed: %v", err)
	}
}
