package diary

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/teresarei/uro-insights-66-sub000/internal/platform/auth"
	"github.com/teresarei/uro-insights-66-sub000/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/patients/:patient_id/events", auth.RequireRole(auth.AllRoles...))
	g.GET("", h.ListEvents)
	g.POST("", h.CreateEvent)
	g.POST("/batch", h.CreateEvents)
	g.GET("/:id", h.GetEvent)
	g.PUT("/:id", h.UpdateEvent)
	g.DELETE("/:id", h.DeleteEvent)
}

// HTTPError maps diary and session errors onto HTTP status codes.
func HTTPError(err error) error {
	switch {
	case errors.Is(err, auth.ErrForbidden):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, ErrInvalidEvent):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "event not found")
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

// PatientParam parses the :patient_id path parameter.
func PatientParam(c echo.Context) (uuid.UUID, error) {
	pid, err := uuid.Parse(c.Param("patient_id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid patient_id")
	}
	return pid, nil
}

func requestScope(c echo.Context) (auth.Session, uuid.UUID, error) {
	sess, err := auth.SessionFromEcho(c)
	if err != nil {
		return auth.Session{}, uuid.Nil, err
	}
	pid, err := PatientParam(c)
	if err != nil {
		return auth.Session{}, uuid.Nil, err
	}
	return sess, pid, nil
}

func (h *Handler) CreateEvent(c echo.Context) error {
	sess, pid, err := requestScope(c)
	if err != nil {
		return err
	}
	var e Event
	if err := c.Bind(&e); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	e.ID = uuid.Nil
	if err := h.svc.Create(c.Request().Context(), sess, pid, &e); err != nil {
		return HTTPError(err)
	}
	return c.JSON(http.StatusCreated, e)
}

type batchRequest struct {
	Events []*Event `json:"events"`
}

func (h *Handler) CreateEvents(c echo.Context) error {
	sess, pid, err := requestScope(c)
	if err != nil {
		return err
	}
	var req batchRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if len(req.Events) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "events is required")
	}
	if err := h.svc.CreateMany(c.Request().Context(), sess, pid, req.Events); err != nil {
		return HTTPError(err)
	}
	return c.JSON(http.StatusCreated, req)
}

func (h *Handler) GetEvent(c echo.Context) error {
	sess, pid, err := requestScope(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	e, err := h.svc.Get(c.Request().Context(), sess, pid, id)
	if err != nil {
		return HTTPError(err)
	}
	return c.JSON(http.StatusOK, e)
}

func (h *Handler) ListEvents(c echo.Context) error {
	sess, pid, err := requestScope(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	f := Filter{
		From: c.QueryParam("from"),
		To:   c.QueryParam("to"),
		Kind: Kind(c.QueryParam("kind")),
	}
	items, total, err := h.svc.List(c.Request().Context(), sess, pid, f, pg.Limit, pg.Offset)
	if err != nil {
		return HTTPError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

func (h *Handler) UpdateEvent(c echo.Context) error {
	sess, pid, err := requestScope(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var e Event
	if err := c.Bind(&e); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	e.ID = id
	if err := h.svc.Update(c.Request().Context(), sess, pid, &e); err != nil {
		return HTTPError(err)
	}
	return c.JSON(http.StatusOK, e)
}

func (h *Handler) DeleteEvent(c echo.Context) error {
	sess, pid, err := requestScope(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.svc.Delete(c.Request().Context(), sess, pid, id); err != nil {
		return HTTPError(err)
	}
	return c.NoContent(http.StatusNoContent)
}
