package timesheet

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/ehr/frontdesk/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/timesheets", auth.RequireRole(auth.RoleFrontDesk, auth.RolePhysician))
	g.GET("/:employee_id", h.GetWeek)
	g.GET("/:employee_id/available", h.GetAvailable)
	g.POST("/:employee_id", h.SaveWeek)
}

type cellRequest struct {
	Date string `json:"date"`
	Time string `json:"time"`
}

type saveRequest struct {
	Date     string        `json:"date"`
	Selected []cellRequest `json:"selected"`
	Removed  []cellRequest `json:"removed"`
}

type saveResponse struct {
	SaveResult
	Grid GridView `json:"grid"`
}

func (h *Handler) GetWeek(c echo.Context) error {
	emp, date, err := h.params(c, c.QueryParam("date"))
	if err != nil {
		return err
	}
	g, err := h.svc.LoadWeek(c.Request().Context(), emp, date)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, g.View())
}

func (h *Handler) GetAvailable(c echo.Context) error {
	emp, date, err := h.params(c, c.QueryParam("date"))
	if err != nil {
		return err
	}
	times, err := h.svc.AvailableTimes(c.Request().Context(), emp, date)
	if err != nil {
		return mapError(err)
	}
	if times == nil {
		times = []string{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"employee_id": emp,
		"date":        date.Format(DateLayout),
		"times":       times,
	})
}

func (h *Handler) SaveWeek(c echo.Context) error {
	var req saveRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	emp, date, err := h.params(c, req.Date)
	if err != nil {
		return err
	}

	ctx := c.Request().Context()
	g, err := h.svc.LoadWeek(ctx, emp, date)
	if err != nil {
		return mapError(err)
	}
	for _, cell := range req.Selected {
		d, err := h.parseDate(cell.Date)
		if err != nil {
			return err
		}
		if err := g.Select(d, cell.Time); err != nil {
			return mapError(err)
		}
	}
	for _, cell := range req.Removed {
		d, err := h.parseDate(cell.Date)
		if err != nil {
			return err
		}
		if g.Classify(d, cell.Time) == StateCommitted && !g.MarkedForRemoval(d, cell.Time) {
			if err := g.Toggle(d, cell.Time); err != nil {
				return mapError(err)
			}
		}
	}

	res, err := h.svc.SaveWeek(ctx, g)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, saveResponse{SaveResult: res, Grid: g.View()})
}

// params resolves the path employee and the requested date. Physicians may
// only read and edit their own timesheet, so a physician token without an
// employee id is refused.
func (h *Handler) params(c echo.Context, rawDate string) (int64, time.Time, error) {
	emp, err := strconv.ParseInt(c.Param("employee_id"), 10, 64)
	if err != nil || emp < 0 {
		return 0, time.Time{}, echo.NewHTTPError(http.StatusBadRequest, "invalid employee_id")
	}
	ctx := c.Request().Context()
	roles := auth.RolesFromContext(ctx)
	if !auth.HasRole(roles, auth.RoleFrontDesk) {
		if own := auth.EmployeeIDFromContext(ctx); own == 0 || own != emp {
			return 0, time.Time{}, echo.NewHTTPError(http.StatusForbidden, "physicians may only manage their own timesheet")
		}
	}

	date := h.svc.Today()
	if rawDate != "" {
		if date, err = h.parseDate(rawDate); err != nil {
			return 0, time.Time{}, err
		}
	}
	return emp, date, nil
}

func (h *Handler) parseDate(raw string) (time.Time, error) {
	d, err := time.ParseInLocation(DateLayout, raw, h.svc.Location())
	if err != nil {
		return time.Time{}, echo.NewHTTPError(http.StatusBadRequest, "invalid date, expected YYYY-MM-DD")
	}
	return d, nil
}

func mapError(err error) error {
	switch {
	case errors.Is(err, ErrNoDoctorSelected),
		errors.Is(err, ErrOutsideWeek),
		errors.Is(err, ErrInvalidTimeLabel):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
}
