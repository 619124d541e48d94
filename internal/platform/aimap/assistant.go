// Package aimap consumes an external AI-assisted mapping service that
// proposes external-field to system-field mappings with per-field confidence.
// Only the adapter contract lives here.
package aimap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

// ErrServiceUnavailable is returned when the AI mapper cannot be reached or
// the call exceeds its deadline. A timeout is indistinguishable from the
// service being down, by contract.
var ErrServiceUnavailable = errors.New("ai mapping service unavailable")

// DefaultTimeout bounds a proposal call; the mapper is a network service with
// real inference latency.
const DefaultTimeout = 20 * time.Second

// Proposal is the mapper's suggestion for a single external field.
type Proposal struct {
	SystemFieldName string  `json:"system_field_name"`
	Confidence      float64 `json:"confidence"`
}

// Assistant proposes mappings for a template's unmapped external fields.
type Assistant interface {
	ProposeMappings(ctx context.Context, templateID string, externalFieldNames []string, sampleFacts map[string]interface{}) (map[string]Proposal, error)
}

// HTTPAssistant calls the AI mapping service over HTTP.
type HTTPAssistant struct {
	client  *resty.Client
	logger  zerolog.Logger
	timeout time.Duration
}

// NewHTTPAssistant creates an assistant against baseURL. A non-positive
// timeout falls back to DefaultTimeout.
func NewHTTPAssistant(baseURL string, timeout time.Duration, logger zerolog.Logger) *HTTPAssistant {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	return &HTTPAssistant{client: client, logger: logger, timeout: timeout}
}

type proposeRequest struct {
	TemplateID  string                 `json:"template_id"`
	FieldNames  []string               `json:"field_names"`
	SampleFacts map[string]interface{} `json:"sample_facts,omitempty"`
}

type proposeResponse struct {
	Mappings map[string]Proposal `json:"mappings"`
}

// ProposeMappings requests proposals for the given external fields only. The
// caller's context deadline propagates into the HTTP call; cancellation
// aborts it.
func (a *HTTPAssistant) ProposeMappings(ctx context.Context, templateID string, externalFieldNames []string, sampleFacts map[string]interface{}) (map[string]Proposal, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	var body proposeResponse
	resp, err := a.client.R().
		SetContext(ctx).
		SetBody(proposeRequest{TemplateID: templateID, FieldNames: externalFieldNames, SampleFacts: sampleFacts}).
		SetResult(&body).
		Post("/propose")
	if err != nil {
		a.logger.Warn().Err(err).Str("template_id", templateID).Msg("ai mapping call failed")
		return nil, fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
	if resp.IsError() {
		a.logger.Warn().Int("status", resp.StatusCode()).Str("template_id", templateID).
			Msg("ai mapping call returned error status")
		return nil, fmt.Errorf("%w: status %d", ErrServiceUnavailable, resp.StatusCode())
	}
	return body.Mappings, nil
}
