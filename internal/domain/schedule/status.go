package schedule

import "fmt"

// ScheduleStatus is the lifecycle state of a doctor schedule.
// EXPIRED is terminal: no operation leaves it.
type ScheduleStatus int

const (
	StatusClosed  ScheduleStatus = 0
	StatusOpen    ScheduleStatus = 1
	StatusFull    ScheduleStatus = 2
	StatusExpired ScheduleStatus = 3
)

// StatusFromCode maps a stored code back to the enum.
func StatusFromCode(code int) (ScheduleStatus, error) {
	switch s := ScheduleStatus(code); s {
	case StatusClosed, StatusOpen, StatusFull, StatusExpired:
		return s, nil
	}
	return 0, fmt.Errorf("%w: invalid schedule status code %d", ErrValidation, code)
}

// CanBook reports whether a booking may consume a slot in this status.
// FULL passes the status gate so exhaustion surfaces as a capacity error,
// not a state error.
func (s ScheduleStatus) CanBook() bool {
	switch s {
	case StatusOpen, StatusFull:
		return true
	case StatusClosed, StatusExpired:
		return false
	}
	return false
}

// CanCancel reports whether a cancellation may return a slot in this status.
func (s ScheduleStatus) CanCancel() bool {
	switch s {
	case StatusOpen, StatusFull:
		return true
	case StatusClosed, StatusExpired:
		return false
	}
	return false
}

func (s ScheduleStatus) String() string {
	switch s {
	case StatusClosed:
		return "CLOSED"
	case StatusOpen:
		return "OPEN"
	case StatusFull:
		return "FULL"
	case StatusExpired:
		return "EXPIRED"
	}
	return fmt.Sprintf("ScheduleStatus(%d)", int(s))
}
