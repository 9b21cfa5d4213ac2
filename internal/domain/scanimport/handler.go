package scanimport

import (
	"errors"
	"io"
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
	g := api.Group("/patients/:patient_id/scan-imports", auth.RequireRole(auth.AllRoles...))
	g.POST("/extract", h.Extract)
	g.POST("/accept", h.Accept)
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrInvalidUpload):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrUnavailable):
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	default:
		return diary.HTTPError(err)
	}
}

func readImages(c echo.Context) ([]Image, error) {
	form, err := c.MultipartForm()
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "expected multipart form with images")
	}
	files := form.File["images"]
	images := make([]Image, 0, len(files))
	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			return nil, echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		data, err := io.ReadAll(io.LimitReader(f, MaxImageBytes+1))
		f.Close()
		if err != nil {
			return nil, echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		images = append(images, Image{
			Filename:    fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Data:        data,
		})
	}
	return images, nil
}

func (h *Handler) Extract(c echo.Context) error {
	sess, err := auth.SessionFromEcho(c)
	if err != nil {
		return err
	}
	pid, err := diary.PatientParam(c)
	if err != nil {
		return err
	}
	images, err := readImages(c)
	if err != nil {
		return err
	}
	candidates, err := h.svc.Extract(c.Request().Context(), sess, pid, images)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"patient_id": pid,
		"entries":    candidates,
	})
}

type acceptRequest struct {
	Entries []Candidate `json:"entries"`
}

func (h *Handler) Accept(c echo.Context) error {
	sess, err := auth.SessionFromEcho(c)
	if err != nil {
		return err
	}
	pid, err := diary.PatientParam(c)
	if err != nil {
		return err
	}
	var req acceptRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	events, err := h.svc.Accept(c.Request().Context(), sess, pid, req.Entries)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, map[string]interface{}{
		"patient_id": pid,
		"events":     events,
		"total":      len(events),
	})
}
