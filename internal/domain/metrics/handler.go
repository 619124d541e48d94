package metrics

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

type Handler struct {
	recorder *Recorder
}

func NewHandler(recorder *Recorder) *Handler {
	return &Handler{recorder: recorder}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/metrics/summary", h.Summarize)
	api.POST("/metrics/reset", h.Reset)
}

func (h *Handler) Summarize(c echo.Context) error {
	return c.JSON(http.StatusOK, h.recorder.Summarize())
}

func (h *Handler) Reset(c echo.Context) error {
	h.recorder.Reset()
	return c.NoContent(http.StatusNoContent)
}
