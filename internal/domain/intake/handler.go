package intake

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ehr/frontdesk/internal/domain/visit"
	"github.com/ehr/frontdesk/internal/platform/auth"
)

type Handler struct {
	registry *Registry
}

func NewHandler(registry *Registry) *Handler {
	return &Handler{registry: registry}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/stations", auth.RequireRole(auth.RoleFrontDesk))
	g.POST("", h.Open)
	g.GET("/:id", h.Get)
	g.POST("/:id/scan", h.Scan)
	g.POST("/:id/keystrokes", h.Keystroke)
	g.POST("/:id/submit", h.Submit)
	g.POST("/:id/dismiss", h.Dismiss)
	g.DELETE("/:id", h.Close)
}

type openRequest struct {
	Target visit.Status `json:"target"`
}

type inputRequest struct {
	Code string `json:"code"`
	Text string `json:"text"`
}

type inputResponse struct {
	Accepted bool     `json:"accepted"`
	State    Snapshot `json:"state"`
}

func (h *Handler) Open(c echo.Context) error {
	var req openRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	st, err := h.registry.Create(req.Target)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusCreated, st.State())
}

func (h *Handler) Get(c echo.Context) error {
	st, err := h.registry.Get(c.Param("id"))
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, st.State())
}

func (h *Handler) Scan(c echo.Context) error {
	st, req, err := h.input(c)
	if err != nil {
		return err
	}
	ok, err := st.Scan(req.Code)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, inputResponse{Accepted: ok, State: st.State()})
}

func (h *Handler) Keystroke(c echo.Context) error {
	st, req, err := h.input(c)
	if err != nil {
		return err
	}
	if err := st.Keystroke(req.Text); err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusAccepted, st.State())
}

func (h *Handler) Submit(c echo.Context) error {
	st, err := h.registry.Get(c.Param("id"))
	if err != nil {
		return mapError(err)
	}
	ok, err := st.Submit()
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, inputResponse{Accepted: ok, State: st.State()})
}

func (h *Handler) Dismiss(c echo.Context) error {
	st, err := h.registry.Get(c.Param("id"))
	if err != nil {
		return mapError(err)
	}
	if err := st.Dismiss(); err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, st.State())
}

func (h *Handler) Close(c echo.Context) error {
	if err := h.registry.Close(c.Param("id")); err != nil {
		return mapError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) input(c echo.Context) (*Station, inputRequest, error) {
	var req inputRequest
	st, err := h.registry.Get(c.Param("id"))
	if err != nil {
		return nil, req, mapError(err)
	}
	if err := c.Bind(&req); err != nil {
		return nil, req, echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return st, req, nil
}

func mapError(err error) error {
	switch {
	case errors.Is(err, ErrStationNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrStationClosed):
		return echo.NewHTTPError(http.StatusGone, err.Error())
	case errors.Is(err, ErrRegistryClosed):
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, visit.ErrInvalidTarget):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
