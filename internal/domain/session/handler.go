package session

import (
	"net/http"
	"strconv"

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
	api.POST("/sessions", h.CreateSession)
	api.GET("/sessions", h.ListSessions)
	api.GET("/sessions/today", h.ListToday)
	api.GET("/sessions/upcoming", h.ListUpcoming)
	api.GET("/sessions/past", h.ListPast)
	api.GET("/sessions/:id", h.GetSession)
	api.PATCH("/sessions/:id", h.UpdateSession)
	api.DELETE("/sessions/:id", h.DeleteSession)
	api.POST("/sessions/:id/complete", h.CompleteSession)
	api.POST("/sessions/:id/reopen", h.ReopenSession)
	api.GET("/sessions/:id/reminder", h.GetReminder)
	api.GET("/patients/:id/sessions", h.ListByPatient)
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, apperr.ToHTTP(apperr.Validation("id", "must be a UUID"))
	}
	return id, nil
}

// parseFilter reads patient_id, start_date, end_date and completed from the
// query string. Absent parameters leave the criterion unset.
func parseFilter(c echo.Context) (Filter, error) {
	var f Filter
	if v := c.QueryParam("patient_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return f, apperr.Validation("patient_id", "must be a UUID")
		}
		f.PatientID = &id
	}
	if v := c.QueryParam("start_date"); v != "" {
		f.StartDate = &v
	}
	if v := c.QueryParam("end_date"); v != "" {
		f.EndDate = &v
	}
	if v := c.QueryParam("completed"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return f, apperr.Validation("completed", "must be true or false")
		}
		f.Completed = &b
	}
	return f, nil
}

func respondList(c echo.Context, items []*Session) error {
	pg := pagination.FromContext(c)
	resp := pagination.NewResponse(pagination.Page(items, pg), len(items), pg.Limit, pg.Offset)
	return c.JSON(http.StatusOK, resp.WithLinks(c.Request().URL.Path))
}

func (h *Handler) CreateSession(c echo.Context) error {
	owner, err := auth.OwnerID(c)
	if err != nil {
		return err
	}
	var req CreateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	s, err := h.svc.CreateSession(c.Request().Context(), owner, req)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, s)
}

func (h *Handler) GetSession(c echo.Context) error {
	owner, err := auth.OwnerID(c)
	if err != nil {
		return err
	}
	id, err := parseID(c)
	if err != nil {
		return err
	}
	s, err := h.svc.GetSession(c.Request().Context(), owner, id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, s)
}

func (h *Handler) ListSessions(c echo.Context) error {
	owner, err := auth.OwnerID(c)
	if err != nil {
		return err
	}
	f, err := parseFilter(c)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	items, err := h.svc.ListSessions(c.Request().Context(), owner, f)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return respondList(c, items)
}

func (h *Handler) ListToday(c echo.Context) error {
	owner, err := auth.OwnerID(c)
	if err != nil {
		return err
	}
	items, err := h.svc.ListToday(c.Request().Context(), owner)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return respondList(c, items)
}

func (h *Handler) ListUpcoming(c echo.Context) error {
	owner, err := auth.OwnerID(c)
	if err != nil {
		return err
	}
	items, err := h.svc.ListUpcoming(c.Request().Context(), owner)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return respondList(c, items)
}

func (h *Handler) ListPast(c echo.Context) error {
	owner, err := auth.OwnerID(c)
	if err != nil {
		return err
	}
	items, err := h.svc.ListPast(c.Request().Context(), owner)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return respondList(c, items)
}

func (h *Handler) ListByPatient(c echo.Context) error {
	owner, err := auth.OwnerID(c)
	if err != nil {
		return err
	}
	patientID, err := parseID(c)
	if err != nil {
		return err
	}
	view, err := ParseView(c.QueryParam("view"))
	if err != nil {
		return apperr.ToHTTP(err)
	}
	items, err := h.svc.ListByPatient(c.Request().Context(), owner, patientID, view)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return respondList(c, items)
}

func (h *Handler) UpdateSession(c echo.Context) error {
	owner, err := auth.OwnerID(c)
	if err != nil {
		return err
	}
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var p Patch
	if err := c.Bind(&p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	s, err := h.svc.UpdateSession(c.Request().Context(), owner, id, p)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, s)
}

func (h *Handler) DeleteSession(c echo.Context) error {
	owner, err := auth.OwnerID(c)
	if err != nil {
		return err
	}
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteSession(c.Request().Context(), owner, id); err != nil {
		return apperr.ToHTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) CompleteSession(c echo.Context) error {
	owner, err := auth.OwnerID(c)
	if err != nil {
		return err
	}
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req CompleteRequest
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&req); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
		}
	}
	s, err := h.svc.CompleteSession(c.Request().Context(), owner, id, req)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, s)
}

func (h *Handler) ReopenSession(c echo.Context) error {
	owner, err := auth.OwnerID(c)
	if err != nil {
		return err
	}
	id, err := parseID(c)
	if err != nil {
		return err
	}
	s, err := h.svc.ReopenSession(c.Request().Context(), owner, id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, s)
}

func (h *Handler) GetReminder(c echo.Context) error {
	owner, err := auth.OwnerID(c)
	if err != nil {
		return err
	}
	id, err := parseID(c)
	if err != nil {
		return err
	}
	r, err := h.svc.Reminder(c.Request().Context(), owner, id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	if r == nil {
		return c.JSON(http.StatusOK, map[string]interface{}{"scheduled": false})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"scheduled": true, "reminder": r})
}
