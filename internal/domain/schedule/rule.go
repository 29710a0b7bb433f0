package schedule

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// HolidayCalendar answers whether a calendar date is a non-working day.
// Implementations may consult a table, an external service or nothing at all.
type HolidayCalendar interface {
	IsHoliday(date time.Time) bool
}

// NoHolidays is the default calendar: every day is a working day.
type NoHolidays struct{}

func (NoHolidays) IsHoliday(time.Time) bool { return false }

// PeriodConfig pairs a time period with the capacity it should receive when a
// rule materializes into a schedule.
type PeriodConfig struct {
	Period              TimePeriod `json:"period"`
	TotalSlots          int        `json:"total_slots"`
	SlotDurationMinutes int        `json:"slot_duration_minutes"`
}

// Validate checks the config is materializable.
func (c PeriodConfig) Validate() error {
	if !c.Period.IsValid() {
		return fmt.Errorf("%w: invalid time period", ErrValidation)
	}
	if c.TotalSlots < 1 {
		return fmt.Errorf("%w: total slots must be at least 1", ErrValidation)
	}
	if c.SlotDurationMinutes < 1 {
		return fmt.Errorf("%w: slot duration must be at least 1 minute", ErrValidation)
	}
	return nil
}

// ScheduleRule is a doctor's recurring availability pattern: which weekdays
// they work, which periods on those days, and with what capacity. Rules feed
// the periodic auto-scheduling strategy.
type ScheduleRule struct {
	ID            uuid.UUID      `json:"id"`
	DoctorID      uuid.UUID      `json:"doctor_id"`
	Weekdays      []time.Weekday `json:"weekdays"`
	Periods       []PeriodConfig `json:"periods"`
	EffectiveFrom time.Time      `json:"effective_from"`
	EffectiveTo   *time.Time     `json:"effective_to,omitempty"`
	SkipHolidays  bool           `json:"skip_holidays"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// NewScheduleRule validates and builds a rule.
func NewScheduleRule(doctorID uuid.UUID, weekdays []time.Weekday, periods []PeriodConfig, effectiveFrom time.Time, effectiveTo *time.Time, skipHolidays bool) (*ScheduleRule, error) {
	if doctorID == uuid.Nil {
		return nil, fmt.Errorf("%w: doctor id is required", ErrValidation)
	}
	if len(weekdays) == 0 {
		return nil, fmt.Errorf("%w: at least one weekday is required", ErrValidation)
	}
	if len(periods) == 0 {
		return nil, fmt.Errorf("%w: at least one period config is required", ErrValidation)
	}
	seen := map[TimePeriod]bool{}
	for _, p := range periods {
		if err := p.Validate(); err != nil {
			return nil, err
		}
		if seen[p.Period] {
			return nil, fmt.Errorf("%w: duplicate period %s", ErrValidation, p.Period)
		}
		seen[p.Period] = true
	}
	if effectiveTo != nil && effectiveTo.Before(effectiveFrom) {
		return nil, fmt.Errorf("%w: effective_to precedes effective_from", ErrValidation)
	}

	now := time.Now()
	return &ScheduleRule{
		DoctorID:      doctorID,
		Weekdays:      weekdays,
		Periods:       periods,
		EffectiveFrom: DateOnly(effectiveFrom),
		EffectiveTo:   effectiveTo,
		SkipHolidays:  skipHolidays,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// IsEffectiveOn reports whether the rule applies on the given date: the date
// lies inside the effective window, its weekday matches, and, when the rule
// respects holidays, the calendar does not mark it off.
func (r *ScheduleRule) IsEffectiveOn(date time.Time, holidays HolidayCalendar) bool {
	d := DateOnly(date)
	if d.Before(r.EffectiveFrom) {
		return false
	}
	if r.EffectiveTo != nil && d.After(DateOnly(*r.EffectiveTo)) {
		return false
	}

	matched := false
	for _, wd := range r.Weekdays {
		if d.Weekday() == wd {
			matched = true
			break
		}
	}
	if !matched {
		return false
	}
	if r.SkipHolidays && holidays != nil && holidays.IsHoliday(d) {
		return false
	}
	return true
}

// EffectivePeriodsOn returns the period configs to materialize on the date,
// or nil when the rule does not apply.
func (r *ScheduleRule) EffectivePeriodsOn(date time.Time, holidays HolidayCalendar) []PeriodConfig {
	if !r.IsEffectiveOn(date, holidays) {
		return nil
	}
	return r.Periods
}
