package schedule

import (
	"fmt"
)

// TimeOfDay is a wall-clock time without a date, used for slot boundaries
// within a single schedule day.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// NewTimeOfDay validates hour/minute ranges and returns the clock time.
func NewTimeOfDay(hour, minute int) (TimeOfDay, error) {
	if hour < 0 || hour > 23 {
		return TimeOfDay{}, fmt.Errorf("%w: hour must be 0-23, got %d", ErrValidation, hour)
	}
	if minute < 0 || minute > 59 {
		return TimeOfDay{}, fmt.Errorf("%w: minute must be 0-59, got %d", ErrValidation, minute)
	}
	return TimeOfDay{Hour: hour, Minute: minute}, nil
}

// MustTimeOfDay panics on invalid input. For package-level constants only.
func MustTimeOfDay(hour, minute int) TimeOfDay {
	t, err := NewTimeOfDay(hour, minute)
	if err != nil {
		panic(err)
	}
	return t
}

// ParseTimeOfDay parses "HH:MM".
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return TimeOfDay{}, fmt.Errorf("%w: invalid clock time %q", ErrValidation, s)
	}
	return NewTimeOfDay(h, m)
}

// Minutes returns minutes since midnight.
func (t TimeOfDay) Minutes() int { return t.Hour*60 + t.Minute }

// Add returns the clock time shifted forward by the given minutes.
// The result is not wrapped at midnight; callers stay within a period.
func (t TimeOfDay) Add(minutes int) TimeOfDay {
	total := t.Minutes() + minutes
	return TimeOfDay{Hour: total / 60, Minute: total % 60}
}

func (t TimeOfDay) Before(o TimeOfDay) bool { return t.Minutes() < o.Minutes() }
func (t TimeOfDay) After(o TimeOfDay) bool  { return t.Minutes() > o.Minutes() }
func (t TimeOfDay) Equal(o TimeOfDay) bool  { return t.Minutes() == o.Minutes() }

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// TimePeriod is one of the fixed named booking windows in a schedule day.
type TimePeriod int

const (
	PeriodMorning   TimePeriod = 1
	PeriodAfternoon TimePeriod = 2
	PeriodEvening   TimePeriod = 3
)

var periodBounds = map[TimePeriod]struct{ start, end TimeOfDay }{
	PeriodMorning:   {MustTimeOfDay(8, 0), MustTimeOfDay(12, 0)},
	PeriodAfternoon: {MustTimeOfDay(14, 0), MustTimeOfDay(18, 0)},
	PeriodEvening:   {MustTimeOfDay(19, 0), MustTimeOfDay(21, 0)},
}

// TimePeriodFromCode maps a stored code back to the enum.
func TimePeriodFromCode(code int) (TimePeriod, error) {
	p := TimePeriod(code)
	if _, ok := periodBounds[p]; !ok {
		return 0, fmt.Errorf("%w: invalid time period code %d", ErrValidation, code)
	}
	return p, nil
}

// ParseTimePeriod accepts the string form used on the API ("MORNING" etc).
func ParseTimePeriod(s string) (TimePeriod, error) {
	switch s {
	case "MORNING":
		return PeriodMorning, nil
	case "AFTERNOON":
		return PeriodAfternoon, nil
	case "EVENING":
		return PeriodEvening, nil
	}
	return 0, fmt.Errorf("%w: invalid time period %q", ErrValidation, s)
}

// IsValid reports whether p is one of the declared periods.
func (p TimePeriod) IsValid() bool {
	_, ok := periodBounds[p]
	return ok
}

// Start returns the fixed opening clock time of the period.
func (p TimePeriod) Start() TimeOfDay { return periodBounds[p].start }

// End returns the fixed closing clock time of the period.
func (p TimePeriod) End() TimeOfDay { return periodBounds[p].end }

func (p TimePeriod) String() string {
	switch p {
	case PeriodMorning:
		return "MORNING"
	case PeriodAfternoon:
		return "AFTERNOON"
	case PeriodEvening:
		return "EVENING"
	}
	return fmt.Sprintf("TimePeriod(%d)", int(p))
}

// Contains reports whether the clock time falls inside the period bounds.
func (p TimePeriod) Contains(t TimeOfDay) bool {
	return !t.Before(p.Start()) && !t.After(p.End())
}

// CalculateSlotsCount returns how many whole slots of slotMinutes fit in the
// period. The trailing remainder is discarded, never rounded up.
func (p TimePeriod) CalculateSlotsCount(slotMinutes int) int {
	if slotMinutes <= 0 {
		return 0
	}
	return (p.End().Minutes() - p.Start().Minutes()) / slotMinutes
}

// TimeSlot is a half-open clock interval [Start, End) inside a period.
type TimeSlot struct {
	Start TimeOfDay
	End   TimeOfDay
}

// NewTimeSlot requires start < end.
func NewTimeSlot(start, end TimeOfDay) (TimeSlot, error) {
	if !start.Before(end) {
		return TimeSlot{}, fmt.Errorf("%w: slot start %s must be before end %s", ErrValidation, start, end)
	}
	return TimeSlot{Start: start, End: end}, nil
}

// TimeSlotOf derives the slot end from a duration.
func TimeSlotOf(start TimeOfDay, durationMinutes int) (TimeSlot, error) {
	return NewTimeSlot(start, start.Add(durationMinutes))
}

// Contains reports whether t falls inside the half-open interval.
func (s TimeSlot) Contains(t TimeOfDay) bool {
	return !t.Before(s.Start) && t.Before(s.End)
}

// Overlaps uses half-open comparison: back-to-back slots do not overlap.
func (s TimeSlot) Overlaps(o TimeSlot) bool {
	return s.Start.Before(o.End) && o.Start.Before(s.End)
}

// DurationMinutes returns the slot length in minutes.
func (s TimeSlot) DurationMinutes() int {
	return s.End.Minutes() - s.Start.Minutes()
}

func (s TimeSlot) String() string {
	return s.Start.String() + "-" + s.End.String()
}
