package patient

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/caseload/caseload/internal/platform/apperr"
	"github.com/caseload/caseload/internal/platform/auth"
	"github.com/caseload/caseload/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/patients", h.CreatePatient)
	api.GET("/patients", h.ListPatients)
	api.GET("/patients/:id", h.GetPatient)
	api.PUT("/patients/:id", h.UpdatePatient)
	api.DELETE("/patients/:id", h.DeletePatient)
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, apperr.ToHTTP(apperr.Validation("id", "must be a UUID"))
	}
	return id, nil
}

func (h *Handler) CreatePatient(c echo.Context) error {
	owner, err := auth.OwnerID(c)
	if err != nil {
		return err
	}
	var in Input
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	p, err := h.svc.CreatePatient(c.Request().Context(), owner, in)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) GetPatient(c echo.Context) error {
	owner, err := auth.OwnerID(c)
	if err != nil {
		return err
	}
	id, err := parseID(c)
	if err != nil {
		return err
	}
	p, err := h.svc.GetPatient(c.Request().Context(), owner, id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) ListPatients(c echo.Context) error {
	owner, err := auth.OwnerID(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, err := h.svc.ListPatients(c.Request().Context(), owner)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(pagination.Page(items, pg), len(items), pg.Limit, pg.Offset))
}

func (h *Handler) UpdatePatient(c echo.Context) error {
	owner, err := auth.OwnerID(c)
	if err != nil {
		return err
	}
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var in Input
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	p, err := h.svc.UpdatePatient(c.Request().Context(), owner, id, in)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) DeletePatient(c echo.Context) error {
	owner, err := auth.OwnerID(c)
	if err != nil {
		return err
	}
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if _, err := h.svc.DeletePatient(c.Request().Context(), owner, id); err != nil {
		return apperr.ToHTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}
