package resolution

import (
	"bytes"
	"encoding/base64"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/formfill/formfill/internal/domain/mapping"
)

type Handler struct {
	engine *Engine
}

func NewHandler(engine *Engine) *Handler {
	return &Handler{engine: engine}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/resolve", h.Resolve)
}

type resolveRequest struct {
	TemplateID              string                 `json:"template_id"`
	InputFacts              map[string]interface{} `json:"input_facts"`
	AllowAIEnhancement      bool                   `json:"allow_ai_enhancement"`
	AllowOCREnhancement     bool                   `json:"allow_ocr_enhancement"`
	MinAcceptableConfidence *float64               `json:"min_acceptable_confidence"`
	// Rendered document, base64-encoded; required only for OCR enhancement.
	DocumentBase64 string `json:"document_base64,omitempty"`
}

func (h *Handler) Resolve(c echo.Context) error {
	var req resolveRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.TemplateID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "template_id is required")
	}

	opts := Options{
		AllowAIEnhancement:      req.AllowAIEnhancement,
		AllowOCREnhancement:     req.AllowOCREnhancement,
		MinAcceptableConfidence: req.MinAcceptableConfidence,
	}
	if req.DocumentBase64 != "" {
		doc, err := base64.StdEncoding.DecodeString(req.DocumentBase64)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "document_base64 is not valid base64")
		}
		opts.DocumentSource = bytes.NewReader(doc)
	}

	rec, err := h.engine.Resolve(c.Request().Context(), req.TemplateID, req.InputFacts, opts)
	if err != nil {
		switch {
		case errors.Is(err, mapping.ErrTemplateNotFound):
			return echo.NewHTTPError(http.StatusNotFound, "template not found")
		case errors.Is(err, ErrInvalidOptions):
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		default:
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
	}
	return c.JSON(http.StatusOK, rec)
}
