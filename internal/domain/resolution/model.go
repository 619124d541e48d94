package resolution

import (
	"errors"
	"fmt"
	"io"

	"github.com/formfill/formfill/internal/domain/mapping"
)

// ErrInvalidOptions is returned when the resolve options are inconsistent,
// e.g. OCR enhancement requested without a document source. Fatal to the
// call; no partial record is produced.
var ErrInvalidOptions = errors.New("invalid resolve options")

// DefaultMinConfidence is the floor below which AI/OCR proposals are ignored.
const DefaultMinConfidence = 0.5

// Options control a single resolution call. Behavior is a pure function of
// (templateID, inputFacts, options); nothing is read from ambient
// configuration.
type Options struct {
	AllowAIEnhancement      bool
	AllowOCREnhancement     bool
	MinAcceptableConfidence *float64  // nil means DefaultMinConfidence; 0 accepts everything
	DocumentSource          io.Reader // required iff OCR enhancement requested
}

func (o Options) minConfidence() float64 {
	if o.MinAcceptableConfidence == nil {
		return DefaultMinConfidence
	}
	return *o.MinAcceptableConfidence
}

// ResolvedField is the final assignment for one external field.
type ResolvedField struct {
	Value           interface{}    `json:"value"`
	SystemFieldName string         `json:"system_field_name"`
	Confidence      float64        `json:"confidence"`
	Source          mapping.Source `json:"source"`
}

// Record is the outcome of one resolution call. It is built up during the
// call, returned to the caller, and then discarded; nothing here is shared
// across calls.
type Record struct {
	TemplateID       string                   `json:"template_id"`
	InputFacts       map[string]interface{}   `json:"input_facts"`
	ResolvedFields   map[string]ResolvedField `json:"resolved_fields"`
	UnresolvedFields []string                 `json:"unresolved_fields"`
	Warnings         []string                 `json:"warnings"`
}

func newRecord(templateID string, facts map[string]interface{}) *Record {
	return &Record{
		TemplateID:       templateID,
		InputFacts:       facts,
		ResolvedFields:   make(map[string]ResolvedField),
		UnresolvedFields: []string{},
		Warnings:         []string{},
	}
}

func (r *Record) warnf(format string, args ...interface{}) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// Completeness returns the percentage of known external fields that resolved
// to a value.
func (r *Record) Completeness() float64 {
	total := len(r.ResolvedFields) + len(r.UnresolvedFields)
	if total == 0 {
		return 0
	}
	return float64(len(r.ResolvedFields)) / float64(total) * 100
}

// AggregateConfidence returns the mean confidence across resolved fields.
func (r *Record) AggregateConfidence() float64 {
	if len(r.ResolvedFields) == 0 {
		return 0
	}
	var sum float64
	for _, f := range r.ResolvedFields {
		sum += f.Confidence
	}
	return sum / float64(len(r.ResolvedFields))
}
