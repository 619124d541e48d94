package mapping

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/formfill/formfill/internal/platform/templatemeta"
	"github.com/formfill/formfill/pkg/pagination"
)

type Handler struct {
	svc     *Service
	fetcher *templatemeta.Fetcher // optional; nil disables live validation
}

func NewHandler(svc *Service, fetcher *templatemeta.Fetcher) *Handler {
	return &Handler{svc: svc, fetcher: fetcher}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/templates", h.ListTemplates)
	api.POST("/templates", h.RegisterTemplate)
	api.GET("/templates/:id/mappings", h.GetMappings)
	api.PUT("/templates/:id/mappings/:field", h.UpsertMapping)
	api.DELETE("/templates/:id/mappings/:field", h.DeleteMapping)
	api.GET("/templates/:id/overrides", h.ListOverrides)
	api.POST("/templates/:id/validate", h.Validate)
}

func (h *Handler) ListTemplates(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListTemplates(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) RegisterTemplate(c echo.Context) error {
	var t Template
	if err := c.Bind(&t); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.RegisterTemplate(c.Request().Context(), &t); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, t)
}

func (h *Handler) GetMappings(c echo.Context) error {
	items, err := h.svc.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrTemplateNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "template not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, items)
}

// UpsertMapping accepts either the structured mapping object or the legacy
// bare-string form as its body; both normalize to the same stored shape.
func (h *Handler) UpsertMapping(c echo.Context) error {
	var entry MappingEntry
	if err := c.Bind(&entry); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	m := entry.Normalize()
	force := c.QueryParam("force") == "true"

	err := h.svc.Upsert(c.Request().Context(), c.Param("id"), c.Param("field"),
		m.SystemFieldName, m.Source, m.Confidence, force)
	if err != nil {
		switch {
		case errors.Is(err, ErrTemplateNotFound):
			return echo.NewHTTPError(http.StatusNotFound, "template not found")
		case errors.Is(err, ErrLowerPrecedence):
			return echo.NewHTTPError(http.StatusConflict, err.Error())
		default:
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
	}
	stored, err := h.svc.GetMapping(c.Request().Context(), c.Param("id"), c.Param("field"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, stored)
}

func (h *Handler) DeleteMapping(c echo.Context) error {
	err := h.svc.Delete(c.Request().Context(), c.Param("id"), c.Param("field"))
	if err != nil {
		if errors.Is(err, ErrMappingNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "mapping not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ListOverrides(c echo.Context) error {
	items, err := h.svc.Overrides(c.Request().Context(), c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, items)
}

type validateRequest struct {
	FieldNames []string `json:"field_names"`
}

// Validate diffs stored mappings against template fields. The caller may
// supply the live field names directly; otherwise they are fetched from the
// template-metadata API.
func (h *Handler) Validate(c echo.Context) error {
	templateID := c.Param("id")
	var req validateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	live := req.FieldNames
	if len(live) == 0 {
		if h.fetcher == nil {
			return echo.NewHTTPError(http.StatusBadRequest,
				"field_names required: no template-metadata service configured")
		}
		fields, err := h.fetcher.FetchFields(c.Request().Context(), templateID)
		if err != nil {
			if errors.Is(err, templatemeta.ErrUpstreamUnavailable) {
				return echo.NewHTTPError(http.StatusBadGateway, "template-metadata service unavailable")
			}
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		for _, f := range fields {
			live = append(live, f.Name)
		}
	}

	diff, err := h.svc.ValidateAgainstInventory(c.Request().Context(), templateID, live)
	if err != nil {
		if errors.Is(err, ErrTemplateNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "template not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, diff)
}
