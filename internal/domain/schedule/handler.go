package schedule

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/medisched/medisched/internal/platform/auth"
	"github.com/medisched/medisched/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	// Read endpoints – staff may browse capacity
	readGroup := api.Group("", auth.RequireRole("admin", "scheduler", "staff"))
	readGroup.GET("/schedules", h.ListSchedules)
	readGroup.GET("/schedules/open", h.ListOpenSchedules)
	readGroup.GET("/schedules/:id", h.GetSchedule)
	readGroup.GET("/schedules/:id/appointment-slots", h.ListSlots)

	// Write endpoints – admins and schedulers manage capacity
	writeGroup := api.Group("", auth.RequireRole("admin", "scheduler"))
	writeGroup.POST("/schedules", h.CreateSchedule)
	writeGroup.POST("/schedules/auto", h.AutoSchedule)
	writeGroup.POST("/schedules/:id/close", h.CloseSchedule)
	writeGroup.POST("/schedules/:id/open", h.OpenSchedule)
	writeGroup.PUT("/schedules/:id/slots", h.AdjustTotalSlots)
	writeGroup.POST("/schedules/:id/book", h.BookSlot)
	writeGroup.POST("/schedules/:id/cancel", h.CancelSlot)
	writeGroup.DELETE("/schedules/:id", h.RemoveSchedule)
	writeGroup.POST("/slots/:id/occupy", h.OccupySlot)
	writeGroup.POST("/slots/:id/release", h.ReleaseSlot)
}

const dateLayout = "2006-01-02"

type scheduleResponse struct {
	ID                  uuid.UUID `json:"id"`
	DoctorID            uuid.UUID `json:"doctor_id"`
	Date                string    `json:"date"`
	Period              string    `json:"period"`
	TotalSlots          int       `json:"total_slots"`
	AvailableSlots      int       `json:"available_slots"`
	Status              string    `json:"status"`
	SlotDurationMinutes int       `json:"slot_duration_minutes"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

func toScheduleResponse(s *DoctorSchedule) scheduleResponse {
	return scheduleResponse{
		ID:                  s.ID,
		DoctorID:            s.DoctorID,
		Date:                s.Date.Format(dateLayout),
		Period:              s.Period.String(),
		TotalSlots:          s.Capacity.Total(),
		AvailableSlots:      s.Capacity.Available(),
		Status:              s.Status.String(),
		SlotDurationMinutes: s.SlotDurationMinutes,
		CreatedAt:           s.CreatedAt,
		UpdatedAt:           s.UpdatedAt,
	}
}

func toScheduleResponses(ss []*DoctorSchedule) []scheduleResponse {
	out := make([]scheduleResponse, 0, len(ss))
	for _, s := range ss {
		out = append(out, toScheduleResponse(s))
	}
	return out
}

type slotResponse struct {
	ID            uuid.UUID  `json:"id"`
	ScheduleID    uuid.UUID  `json:"schedule_id"`
	StartTime     string     `json:"start_time"`
	EndTime       string     `json:"end_time"`
	Occupied      bool       `json:"occupied"`
	AppointmentID *uuid.UUID `json:"appointment_id,omitempty"`
}

func toSlotResponse(s *AppointmentSlot) slotResponse {
	return slotResponse{
		ID:            s.ID,
		ScheduleID:    s.ScheduleID,
		StartTime:     s.Slot.Start.String(),
		EndTime:       s.Slot.End.String(),
		Occupied:      s.Occupied,
		AppointmentID: s.AppointmentID,
	}
}

// httpError maps the domain error taxonomy onto transport status codes.
func httpError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrConflict), errors.Is(err, ErrSlotOccupied):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrCapacityExhausted), errors.Is(err, ErrInvalidStateTransition):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, ErrValidation), errors.Is(err, ErrNoApplicableStrategy):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

func parseIDParam(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

type createScheduleRequest struct {
	DoctorID            uuid.UUID `json:"doctor_id"`
	Date                string    `json:"date"`
	Period              string    `json:"period"`
	TotalSlots          int       `json:"total_slots"`
	SlotDurationMinutes int       `json:"slot_duration_minutes"`
}

func (h *Handler) CreateSchedule(c echo.Context) error {
	var req createScheduleRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	date, err := time.ParseInLocation(dateLayout, req.Date, time.UTC)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid date, expected YYYY-MM-DD")
	}
	period, err := ParseTimePeriod(req.Period)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	sched, err := h.svc.CreateSchedule(c.Request().Context(), req.DoctorID, date, period, req.TotalSlots, req.SlotDurationMinutes)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, toScheduleResponse(sched))
}

type customPeriodRequest struct {
	Period              string `json:"period"`
	TotalSlots          int    `json:"total_slots"`
	SlotDurationMinutes int    `json:"slot_duration_minutes"`
}

type autoScheduleRequest struct {
	DoctorID  uuid.UUID `json:"doctor_id"`
	StartDate string    `json:"start_date"`
	EndDate   string    `json:"end_date"`
	Strategy  string    `json:"strategy,omitempty"`

	// Periodic strategy inputs.
	Weekdays     []string              `json:"weekdays,omitempty"`
	Periods      []customPeriodRequest `json:"periods,omitempty"`
	SkipHolidays bool                  `json:"skip_holidays,omitempty"`

	// Custom-date strategy inputs, keyed YYYY-MM-DD.
	CustomDates map[string][]customPeriodRequest `json:"custom_dates,omitempty"`
}

var weekdayNames = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

func parsePeriodConfigs(in []customPeriodRequest) ([]PeriodConfig, error) {
	out := make([]PeriodConfig, 0, len(in))
	for _, p := range in {
		period, err := ParseTimePeriod(p.Period)
		if err != nil {
			return nil, err
		}
		out = append(out, PeriodConfig{
			Period:              period,
			TotalSlots:          p.TotalSlots,
			SlotDurationMinutes: p.SlotDurationMinutes,
		})
	}
	return out, nil
}

func (h *Handler) AutoSchedule(c echo.Context) error {
	var req autoScheduleRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	start, err := time.ParseInLocation(dateLayout, req.StartDate, time.UTC)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid start_date, expected YYYY-MM-DD")
	}
	end, err := time.ParseInLocation(dateLayout, req.EndDate, time.UTC)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid end_date, expected YYYY-MM-DD")
	}

	sc := ScheduleContext{Holidays: NoHolidays{}}

	if len(req.Weekdays) > 0 {
		weekdays := make([]time.Weekday, 0, len(req.Weekdays))
		for _, name := range req.Weekdays {
			wd, ok := weekdayNames[name]
			if !ok {
				return echo.NewHTTPError(http.StatusBadRequest, "invalid weekday: "+name)
			}
			weekdays = append(weekdays, wd)
		}
		periods, err := parsePeriodConfigs(req.Periods)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		rule, err := NewScheduleRule(req.DoctorID, weekdays, periods, start, &end, req.SkipHolidays)
		if err != nil {
			return httpError(err)
		}
		sc.Rule = rule
	}

	if len(req.CustomDates) > 0 {
		sc.CustomDates = make(map[string][]PeriodConfig, len(req.CustomDates))
		for date, configs := range req.CustomDates {
			parsed, err := parsePeriodConfigs(configs)
			if err != nil {
				return echo.NewHTTPError(http.StatusBadRequest, err.Error())
			}
			sc.CustomDates[date] = parsed
		}
	}

	generated, err := h.svc.AutoSchedule(c.Request().Context(), req.DoctorID, start, end, req.Strategy, sc)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, toScheduleResponses(generated))
}

func (h *Handler) GetSchedule(c echo.Context) error {
	id, err := parseIDParam(c)
	if err != nil {
		return err
	}
	sched, err := h.svc.GetSchedule(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, toScheduleResponse(sched))
}

func (h *Handler) ListSchedules(c echo.Context) error {
	doctorID, err := uuid.Parse(c.QueryParam("doctor_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid doctor_id")
	}
	start, err := time.ParseInLocation(dateLayout, c.QueryParam("start_date"), time.UTC)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid start_date, expected YYYY-MM-DD")
	}
	end, err := time.ParseInLocation(dateLayout, c.QueryParam("end_date"), time.UTC)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid end_date, expected YYYY-MM-DD")
	}

	scheds, err := h.svc.ListSchedules(c.Request().Context(), doctorID, start, end)
	if err != nil {
		return httpError(err)
	}

	pg := pagination.FromContext(c)
	items := toScheduleResponses(scheds)
	total := len(items)
	if pg.Offset < len(items) {
		endIdx := pg.Offset + pg.Limit
		if endIdx > len(items) {
			endIdx = len(items)
		}
		items = items[pg.Offset:endIdx]
	} else {
		items = nil
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) ListOpenSchedules(c echo.Context) error {
	date, err := time.ParseInLocation(dateLayout, c.QueryParam("date"), time.UTC)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid date, expected YYYY-MM-DD")
	}
	period, err := ParseTimePeriod(c.QueryParam("period"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	scheds, err := h.svc.ListOpenSchedules(c.Request().Context(), date, period)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, toScheduleResponses(scheds))
}

type closeScheduleRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) CloseSchedule(c echo.Context) error {
	id, err := parseIDParam(c)
	if err != nil {
		return err
	}
	var req closeScheduleRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	sched, err := h.svc.CloseSchedule(c.Request().Context(), id, req.Reason)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, toScheduleResponse(sched))
}

func (h *Handler) OpenSchedule(c echo.Context) error {
	id, err := parseIDParam(c)
	if err != nil {
		return err
	}
	sched, err := h.svc.OpenSchedule(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, toScheduleResponse(sched))
}

type adjustSlotsRequest struct {
	TotalSlots int `json:"total_slots"`
}

func (h *Handler) AdjustTotalSlots(c echo.Context) error {
	id, err := parseIDParam(c)
	if err != nil {
		return err
	}
	var req adjustSlotsRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	sched, err := h.svc.AdjustTotalSlots(c.Request().Context(), id, req.TotalSlots)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, toScheduleResponse(sched))
}

type bookSlotRequest struct {
	SlotID        *uuid.UUID `json:"slot_id,omitempty"`
	AppointmentID *uuid.UUID `json:"appointment_id,omitempty"`
}

func (h *Handler) BookSlot(c echo.Context) error {
	id, err := parseIDParam(c)
	if err != nil {
		return err
	}
	var req bookSlotRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	sched, err := h.svc.BookSlot(c.Request().Context(), id, req.SlotID, req.AppointmentID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, toScheduleResponse(sched))
}

type cancelSlotRequest struct {
	SlotID *uuid.UUID `json:"slot_id,omitempty"`
}

func (h *Handler) CancelSlot(c echo.Context) error {
	id, err := parseIDParam(c)
	if err != nil {
		return err
	}
	var req cancelSlotRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	sched, err := h.svc.CancelSlot(c.Request().Context(), id, req.SlotID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, toScheduleResponse(sched))
}

func (h *Handler) RemoveSchedule(c echo.Context) error {
	id, err := parseIDParam(c)
	if err != nil {
		return err
	}
	if err := h.svc.RemoveSchedule(c.Request().Context(), id); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ListSlots(c echo.Context) error {
	id, err := parseIDParam(c)
	if err != nil {
		return err
	}
	availableOnly := c.QueryParam("available") == "true"
	slots, err := h.svc.ListSlots(c.Request().Context(), id, availableOnly)
	if err != nil {
		return httpError(err)
	}
	out := make([]slotResponse, 0, len(slots))
	for _, s := range slots {
		out = append(out, toSlotResponse(s))
	}
	return c.JSON(http.StatusOK, out)
}

type occupySlotRequest struct {
	AppointmentID uuid.UUID `json:"appointment_id"`
}

func (h *Handler) OccupySlot(c echo.Context) error {
	id, err := parseIDParam(c)
	if err != nil {
		return err
	}
	var req occupySlotRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.AppointmentID == uuid.Nil {
		return echo.NewHTTPError(http.StatusBadRequest, "appointment_id is required")
	}
	slot, err := h.svc.OccupySlot(c.Request().Context(), id, req.AppointmentID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, toSlotResponse(slot))
}

func (h *Handler) ReleaseSlot(c echo.Context) error {
	id, err := parseIDParam(c)
	if err != nil {
		return err
	}
	slot, err := h.svc.ReleaseSlot(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, toSlotResponse(slot))
}
