package visit

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/ehr/frontdesk/internal/platform/auth"
)

type Handler struct {
	machine *Machine
}

func NewHandler(machine *Machine) *Handler {
	return &Handler{machine: machine}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	read := api.Group("", auth.RequireRole(auth.RoleFrontDesk, auth.RolePhysician))
	read.GET("/visits/:record_no", h.GetVisit)
	read.GET("/queue", h.GetQueue)

	desk := api.Group("/visits/:record_no", auth.RequireRole(auth.RoleFrontDesk))
	desk.POST("/admit", h.transition((*Machine).Admit))
	desk.POST("/cancel", h.transition((*Machine).Cancel))

	consult := api.Group("/visits/:record_no", auth.RequireRole(auth.RoleFrontDesk, auth.RolePhysician))
	consult.POST("/begin", h.transition((*Machine).Begin))
	consult.POST("/complete", h.transition((*Machine).Complete))
	consult.POST("/resume", h.transition((*Machine).Resume))
}

func (h *Handler) GetVisit(c echo.Context) error {
	rec, err := h.machine.Get(c.Request().Context(), c.Param("record_no"))
	if err != nil {
		return MapError(err)
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *Handler) transition(op func(*Machine, context.Context, string) (*Record, error)) echo.HandlerFunc {
	return func(c echo.Context) error {
		rec, err := op(h.machine, c.Request().Context(), c.Param("record_no"))
		if err != nil {
			return MapError(err)
		}
		return c.JSON(http.StatusOK, rec)
	}
}

// GetQueue returns the board for ?employee_id= (omitted or 0 for the whole
// clinic) on ?date= (default today).
func (h *Handler) GetQueue(c echo.Context) error {
	scope := Scope{Date: h.machine.now().In(h.machine.loc)}
	if raw := c.QueryParam("employee_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id < 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid employee_id")
		}
		scope.EmployeeID = id
	}
	if raw := c.QueryParam("date"); raw != "" {
		d, err := time.ParseInLocation(DateLayout, raw, h.machine.loc)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid date, expected YYYY-MM-DD")
		}
		scope.Date = d
	}

	board, err := h.machine.Queue(c.Request().Context(), scope)
	if err != nil {
		return MapError(err)
	}
	return c.JSON(http.StatusOK, board)
}

// MapError converts machine errors to HTTP errors.
func MapError(err error) error {
	switch {
	case errors.Is(err, ErrRecordNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrTransitionConflict):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrInvalidTarget):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
}
