package analysis

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/teresarei/uro-insights-66-sub000/internal/domain/diary"
	"github.com/teresarei/uro-insights-66-sub000/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/patients/:patient_id", auth.RequireRole(auth.AllRoles...))
	g.GET("/analysis", h.GetAnalysis)
	g.GET("/profile", h.GetProfile)
	g.PUT("/profile", h.PutProfile)
}

func (h *Handler) GetAnalysis(c echo.Context) error {
	sess, err := auth.SessionFromEcho(c)
	if err != nil {
		return err
	}
	pid, err := diary.PatientParam(c)
	if err != nil {
		return err
	}
	audience, err := ParseAudience(c.QueryParam("audience"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	res, err := h.svc.Analyze(c.Request().Context(), sess, pid, Options{
		From:     c.QueryParam("from"),
		To:       c.QueryParam("to"),
		Audience: audience,
	})
	if err != nil {
		return diary.HTTPError(err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) GetProfile(c echo.Context) error {
	sess, err := auth.SessionFromEcho(c)
	if err != nil {
		return err
	}
	pid, err := diary.PatientParam(c)
	if err != nil {
		return err
	}
	p, err := h.svc.GetProfile(c.Request().Context(), sess, pid)
	if errors.Is(err, ErrProfileNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "profile not found")
	}
	if err != nil {
		return diary.HTTPError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) PutProfile(c echo.Context) error {
	sess, err := auth.SessionFromEcho(c)
	if err != nil {
		return err
	}
	pid, err := diary.PatientParam(c)
	if err != nil {
		return err
	}
	var p Profile
	if err := c.Bind(&p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p.PatientID = pid
	if err := h.svc.SaveProfile(c.Request().Context(), sess, &p); err != nil {
		if errors.Is(err, ErrInvalidProfile) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return diary.HTTPError(err)
	}
	return c.JSON(http.StatusOK, p)
}
