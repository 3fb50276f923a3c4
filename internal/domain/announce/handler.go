package announce

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ehr/frontdesk/internal/platform/auth"
)

type Handler struct {
	displays *Displays
}

func NewHandler(displays *Displays) *Handler {
	return &Handler{displays: displays}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/displays", auth.RequireRole(auth.RoleFrontDesk))
	g.GET("", h.List)
	g.POST("", h.Open)
	g.DELETE("/:id", h.Close)
}

type openRequest struct {
	EmployeeID int64 `json:"employee_id"`
	Announce   *bool `json:"announce"`
}

func (h *Handler) Open(c echo.Context) error {
	var req openRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.EmployeeID < 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid employee_id")
	}
	announce := req.Announce == nil || *req.Announce
	info, err := h.displays.Open(req.EmployeeID, announce)
	if err != nil {
		if errors.Is(err, ErrDisplaysClosed) {
			return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusCreated, info)
}

func (h *Handler) List(c echo.Context) error {
	return c.JSON(http.StatusOK, h.displays.List())
}

func (h *Handler) Close(c echo.Context) error {
	if err := h.displays.Close(c.Param("id")); err != nil {
		if errors.Is(err, ErrDisplayNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}
