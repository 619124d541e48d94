// Package ocr consumes an external OCR field-label extraction service. Only
// the adapter contract lives here; the extraction itself is not owned by this
// system.
package ocr

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

// ErrServiceUnavailable is returned when the OCR service cannot be reached or
// times out. Resolution treats it as degrading: the OCR pass is skipped.
var ErrServiceUnavailable = errors.New("ocr service unavailable")

// DetectedField is one candidate field label found in a rendered document.
type DetectedField struct {
	Label                string  `json:"label"`
	Type                 string  `json:"type"`
	Confidence           float64 `json:"confidence"`
	SuggestedSystemField string  `json:"suggested_system_field,omitempty"`
}

// Detector extracts candidate field labels from a rendered document.
type Detector interface {
	ExtractFieldLabels(ctx context.Context, doc io.Reader) ([]DetectedField, error)
}

// HTTPDetector calls an OCR extraction service over HTTP.
type HTTPDetector struct {
	client *resty.Client
	logger zerolog.Logger
}

// NewHTTPDetector creates a detector against baseURL with the given call
// timeout.
func NewHTTPDetector(baseURL string, timeout time.Duration, logger zerolog.Logger) *HTTPDetector {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
	return &HTTPDetector{client: client, logger: logger}
}

type extractResponse struct {
	Fields []DetectedField `json:"fields"`
}

// ExtractFieldLabels posts the document and returns the detected labels. The
// caller's context bounds and cancels the call.
func (d *HTTPDetector) ExtractFieldLabels(ctx context.Context, doc io.Reader) ([]DetectedField, error) {
	var body extractResponse
	resp, err := d.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/pdf").
		SetBody(doc).
		SetResult(&body).
		Post("/extract")
	if err != nil {
		d.logger.Warn().Err(err).Msg("ocr extraction call failed")
		return nil, fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
	if resp.IsError() {
		d.logger.Warn().Int("status", resp.StatusCode()).Msg("ocr extraction returned error status")
		return nil, fmt.Errorf("%w: status %d", ErrServiceUnavailable, resp.StatusCode())
	}
	return body.Fields, nil
}
