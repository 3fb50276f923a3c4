package admission

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ehr/frontdesk/internal/domain/visit"
	"github.com/ehr/frontdesk/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/admissions", auth.RequireRole(auth.RoleFrontDesk))
	g.POST("/check", h.Check)
}

type checkRequest struct {
	Code   string       `json:"code"`
	Target visit.Status `json:"target"`
}

type checkResponse struct {
	*Outcome
	Error string `json:"error,omitempty"`
}

// Check answers 200 for every classified decision, rejections included. A
// transition refused by the visit machine answers with its status code and
// still carries the outcome.
func (h *Handler) Check(c echo.Context) error {
	var req checkRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	out, err := h.svc.Check(c.Request().Context(), req.Code, req.Target)
	if err != nil {
		mapped := MapError(err)
		if out == nil {
			return mapped
		}
		code := http.StatusBadGateway
		var httpErr *echo.HTTPError
		if errors.As(mapped, &httpErr) {
			code = httpErr.Code
		}
		return c.JSON(code, checkResponse{Outcome: out, Error: err.Error()})
	}
	return c.JSON(http.StatusOK, checkResponse{Outcome: out})
}

func MapError(err error) error {
	switch {
	case errors.Is(err, ErrEmptyCode), errors.Is(err, visit.ErrInvalidTarget):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		return visit.MapError(err)
	}
}
