package resolution

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/formfill/formfill/internal/domain/mapping"
)

func TestHandler_Resolve(t *testing.T) {
	eng, svc, _ := newTestEngine(t)
	svc.Upsert(context.Background(), testTemplate, "Patient Name", "patient_name", mapping.SourceManual, 1.0, false)
	h := NewHandler(eng)
	e := echo.New()

	body := `{"template_id":"` + testTemplate + `","input_facts":{"patient_name":"Jane Doe"}}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if err := h.Resolve(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	var out Record
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	f, ok := out.ResolvedFields["Patient Name"]
	if !ok || f.Value != "Jane Doe" || f.Source != mapping.SourceManual {
		t.Errorf("unexpected record: %+v", out)
	}
}

func TestHandler_Resolve_MissingTemplateID(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	h := NewHandler(eng)
	e := echo.New()

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"input_facts":{}}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	err := h.Resolve(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %v", err)
	}
}

func TestHandler_Resolve_TemplateNotFound(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	h := NewHandler(eng)
	e := echo.New()

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"template_id":"nope"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	err := h.Resolve(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %v", err)
	}
}

func TestHandler_Resolve_BadBase64(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	h := NewHandler(eng)
	e := echo.New()

	body := `{"template_id":"` + testTemplate + `","allow_ocr_enhancement":true,"document_base64":"%%%"}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	err := h.Resolve(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %v", err)
	}
}

func TestHandler_Resolve_OCRWithoutDocument(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	h := NewHandler(eng)
	e := echo.New()

	body := `{"template_id":"` + testTemplate + `","allow_ocr_enhancement":true}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	err := h.Resolve(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %v", err)
	}
}
