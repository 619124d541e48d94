package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// AuditEntry describes one mutation of curated mapping state: who changed
// which template's mappings, when, from where.
type AuditEntry struct {
	Curator    string
	TemplateID string
	Field      string
	Action     string // create, update, delete
	IPAddress  string
	UserAgent  string
	Path       string
	Method     string
	Forced     bool
	Timestamp  time.Time
	RequestID  string
	StatusCode int
}

// AuditRecorder persists audit entries. The middleware falls back to
// structured logging alone when no recorder is provided, so tests and small
// deployments need no persistence wiring.
type AuditRecorder interface {
	RecordChange(entry AuditEntry) error
}

// AuditRecorderFunc is a function adapter for AuditRecorder.
type AuditRecorderFunc func(entry AuditEntry) error

func (f AuditRecorderFunc) RecordChange(entry AuditEntry) error {
	return f(entry)
}

// Audit returns middleware that logs every mutation of template and mapping
// state. Reads are not audited; the interesting trail is who curated what.
// The curator identity comes from the X-Curator header when the deployment
// fronts this API with an authenticating proxy.
func Audit(logger zerolog.Logger, recorders ...AuditRecorder) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			path := req.URL.Path

			if !isAuditableRequest(req.Method, path) {
				return next(c)
			}

			// Execute the handler first so the entry captures the response
			// status.
			err := next(c)

			entry := AuditEntry{
				Timestamp:  time.Now().UTC(),
				Path:       path,
				Method:     req.Method,
				IPAddress:  c.RealIP(),
				UserAgent:  req.UserAgent(),
				StatusCode: c.Response().Status,
				Curator:    req.Header.Get("X-Curator"),
				Forced:     c.QueryParam("force") == "true",
				Action:     httpMethodToAction(req.Method),
				TemplateID: c.Param("id"),
				Field:      c.Param("field"),
			}
			if rid, ok := c.Get("request_id").(string); ok {
				entry.RequestID = rid
			}

			if len(recorders) > 0 && recorders[0] != nil {
				if recErr := recorders[0].RecordChange(entry); recErr != nil {
					logger.Error().Err(recErr).
						Str("request_id", entry.RequestID).
						Msg("failed to record audit entry")
				}
			}

			// Always emit a structured log for the audit trail.
			evt := logger.Info()
			if entry.Forced {
				evt = logger.Warn()
			}
			evt.
				Str("type", "curation_audit").
				Str("request_id", entry.RequestID).
				Str("curator", entry.Curator).
				Str("template_id", entry.TemplateID).
				Str("field", entry.Field).
				Str("action", entry.Action).
				Str("method", entry.Method).
				Str("path", entry.Path).
				Str("remote_ip", entry.IPAddress).
				Int("status", entry.StatusCode).
				Bool("forced", entry.Forced).
				Msg("mapping_change")

			return err
		}
	}
}

// isAuditableRequest reports whether the request mutates curated state:
// template registration and mapping upserts/deletes under /api/templates.
func isAuditableRequest(method, path string) bool {
	if !strings.HasPrefix(path, "/api/templates") {
		return false
	}
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodDelete:
		// Validation POSTs are reads in disguise.
		return !strings.HasSuffix(path, "/validate")
	default:
		return false
	}
}

func httpMethodToAction(method string) string {
	switch method {
	case http.MethodPost:
		return "create"
	case http.MethodPut:
		return "update"
	case http.MethodDelete:
		return "delete"
	default:
		return "read"
	}
}
