package schedule

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// customDateLayout keys the custom-date override map.
const customDateLayout = "2006-01-02"

// ScheduleContext carries the inputs a strategy may consult: the doctor's
// recurring rule, explicit per-date overrides, and the holiday calendar.
type ScheduleContext struct {
	Rule        *ScheduleRule
	CustomDates map[string][]PeriodConfig
	Holidays    HolidayCalendar
}

// AutoScheduleStrategy produces candidate schedules for a doctor over a
// date range. Strategies are pure computations; persistence belongs to the
// caller.
type AutoScheduleStrategy interface {
	Name() string
	IsApplicable(sc ScheduleContext) bool
	GenerateSchedules(doctorID uuid.UUID, start, end time.Time, sc ScheduleContext) ([]*DoctorSchedule, error)
}

// PeriodicStrategy materializes a recurring weekday rule: one schedule per
// effective period on every day in the range where the rule applies.
type PeriodicStrategy struct{}

func (PeriodicStrategy) Name() string { return "periodic" }

func (PeriodicStrategy) IsApplicable(sc ScheduleContext) bool {
	return sc.Rule != nil && len(sc.Rule.Weekdays) > 0
}

func (PeriodicStrategy) GenerateSchedules(doctorID uuid.UUID, start, end time.Time, sc ScheduleContext) ([]*DoctorSchedule, error) {
	if sc.Rule == nil {
		return nil, fmt.Errorf("%w: periodic strategy requires a schedule rule", ErrValidation)
	}

	var out []*DoctorSchedule
	for d := DateOnly(start); !d.After(DateOnly(end)); d = d.AddDate(0, 0, 1) {
		for _, cfg := range sc.Rule.EffectivePeriodsOn(d, sc.Holidays) {
			s, _, err := NewDoctorSchedule(doctorID, d, cfg.Period, cfg.TotalSlots, cfg.SlotDurationMinutes)
			if err != nil {
				return nil, err
			}
			out = append(out, s)
		}
	}
	return out, nil
}

// CustomDateStrategy materializes explicit per-date overrides. Dates outside
// the requested range are skipped.
type CustomDateStrategy struct{}

func (CustomDateStrategy) Name() string { return "custom_date" }

func (CustomDateStrategy) IsApplicable(sc ScheduleContext) bool {
	return len(sc.CustomDates) > 0
}

func (CustomDateStrategy) GenerateSchedules(doctorID uuid.UUID, start, end time.Time, sc ScheduleContext) ([]*DoctorSchedule, error) {
	from, to := DateOnly(start), DateOnly(end)

	dates := make([]string, 0, len(sc.CustomDates))
	for raw := range sc.CustomDates {
		dates = append(dates, raw)
	}
	sort.Strings(dates)

	var out []*DoctorSchedule
	for _, raw := range dates {
		d, err := time.ParseInLocation(customDateLayout, raw, time.UTC)
		if err != nil {
			return nil, fmt.Errorf("%w: bad custom date %q", ErrValidation, raw)
		}
		if d.Before(from) || d.After(to) {
			continue
		}
		for _, cfg := range sc.CustomDates[raw] {
			s, _, err := NewDoctorSchedule(doctorID, d, cfg.Period, cfg.TotalSlots, cfg.SlotDurationMinutes)
			if err != nil {
				return nil, err
			}
			out = append(out, s)
		}
	}
	return out, nil
}

// StrategyRegistry holds the configured strategies in priority order and by
// name. It is assembled once at startup and passed by reference.
type StrategyRegistry struct {
	ordered []AutoScheduleStrategy
	byName  map[string]AutoScheduleStrategy
}

func NewStrategyRegistry(strategies ...AutoScheduleStrategy) *StrategyRegistry {
	r := &StrategyRegistry{byName: make(map[string]AutoScheduleStrategy, len(strategies))}
	for _, s := range strategies {
		r.ordered = append(r.ordered, s)
		r.byName[s.Name()] = s
	}
	return r
}

// DefaultStrategyRegistry registers the built-in strategies, custom dates
// taking priority over the periodic rule.
func DefaultStrategyRegistry() *StrategyRegistry {
	return NewStrategyRegistry(CustomDateStrategy{}, PeriodicStrategy{})
}

// Resolve picks the strategy by name when one is given, otherwise the first
// applicable one in registration order.
func (r *StrategyRegistry) Resolve(name string, sc ScheduleContext) (AutoScheduleStrategy, error) {
	if name != "" {
		s, ok := r.byName[name]
		if !ok {
			return nil, fmt.Errorf("%w: unknown strategy %q", ErrNoApplicableStrategy, name)
		}
		return s, nil
	}
	for _, s := range r.ordered {
		if s.IsApplicable(sc) {
			return s, nil
		}
	}
	return nil, ErrNoApplicableStrategy
}

// ExistingScheduleFinder is the slice of the repository the orchestrator
// needs to dedup against persisted schedules.
type ExistingScheduleFinder interface {
	FindByDoctorAndDateRange(ctx context.Context, doctorID uuid.UUID, start, end time.Time) ([]*DoctorSchedule, error)
}

// AutoScheduler runs a strategy and filters its output against schedules
// already persisted for the same doctor and range. Filtering compares
// (date, period) by value; it is advisory and does not by itself prevent
// races between concurrent runs.
type AutoScheduler struct {
	registry *StrategyRegistry
	finder   ExistingScheduleFinder
}

func NewAutoScheduler(registry *StrategyRegistry, finder ExistingScheduleFinder) *AutoScheduler {
	return &AutoScheduler{registry: registry, finder: finder}
}

func (a *AutoScheduler) AutoSchedule(ctx context.Context, doctorID uuid.UUID, start, end time.Time, strategyName string, sc ScheduleContext) ([]*DoctorSchedule, error) {
	if doctorID == uuid.Nil {
		return nil, fmt.Errorf("%w: doctor id is required", ErrValidation)
	}
	if DateOnly(end).Before(DateOnly(start)) {
		return nil, fmt.Errorf("%w: end date precedes start date", ErrValidation)
	}

	strategy, err := a.registry.Resolve(strategyName, sc)
	if err != nil {
		return nil, err
	}

	existing, err := a.finder.FindByDoctorAndDateRange(ctx, doctorID, start, end)
	if err != nil {
		return nil, err
	}

	generated, err := strategy.GenerateSchedules(doctorID, start, end, sc)
	if err != nil {
		return nil, err
	}

	// Filter against persisted schedules and against earlier entries of the
	// same batch, so a rule or custom-date map that repeats a (date, period)
	// pair never yields two schedules for the same slot.
	var out []*DoctorSchedule
	for _, g := range generated {
		taken := false
		for _, e := range existing {
			if g.SameSlot(e) {
				taken = true
				break
			}
		}
		for _, accepted := range out {
			if taken {
				break
			}
			if g.SameSlot(accepted) {
				taken = true
			}
		}
		if !taken {
			out = append(out, g)
		}
	}
	return out, nil
}
