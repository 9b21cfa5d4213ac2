package blocks

import (
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
	g := api.Group("/patients/:patient_id/blocks", auth.RequireRole(auth.AllRoles...))
	g.GET("", h.ListBlocks)
	g.POST("/segment", h.SegmentBlocks)
}

// ListBlocks segments lazily so the response always reflects the current
// diary. refresh=false returns the stored blocks as they are.
func (h *Handler) ListBlocks(c echo.Context) error {
	if c.QueryParam("refresh") == "false" {
		return h.respond(c, false)
	}
	return h.respond(c, true)
}

func (h *Handler) SegmentBlocks(c echo.Context) error {
	return h.respond(c, true)
}

func (h *Handler) respond(c echo.Context, segment bool) error {
	sess, err := auth.SessionFromEcho(c)
	if err != nil {
		return err
	}
	pid, err := diary.PatientParam(c)
	if err != nil {
		return err
	}
	var items []*RecordingBlock
	if segment {
		items, err = h.svc.Segment(c.Request().Context(), sess, pid)
	} else {
		items, err = h.svc.List(c.Request().Context(), sess, pid)
	}
	if err != nil {
		return diary.HTTPError(err)
	}
	if items == nil {
		items = []*RecordingBlock{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"patient_id": pid,
		"blocks":     items,
	})
}
