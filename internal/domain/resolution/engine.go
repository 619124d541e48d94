package resolution

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/formfill/formfill/internal/domain/catalog"
	"github.com/formfill/formfill/internal/domain/mapping"
	"github.com/formfill/formfill/internal/domain/metrics"
	"github.com/formfill/formfill/internal/platform/aimap"
	"github.com/formfill/formfill/internal/platform/ocr"
	"github.com/formfill/formfill/internal/platform/templatemeta"
)

// Engine resolves a template's external fields to values using the layered
// source chain: stored mappings first, then AI proposals, then OCR-detected
// labels, each gated by the caller's options. The engine holds no per-call
// state; its only cross-call effects are accepted-proposal persistence into
// the mapping store and metric samples.
type Engine struct {
	mappings  *mapping.Service
	catalog   *catalog.Catalog
	assistant aimap.Assistant       // nil: AI pass reported unavailable
	detector  ocr.Detector          // nil: OCR pass reported unavailable
	inventory *templatemeta.Fetcher // nil: drift check skipped
	recorder  *metrics.Recorder     // nil: attempts not measured
	logger    zerolog.Logger
}

func NewEngine(mappings *mapping.Service, cat *catalog.Catalog, logger zerolog.Logger) *Engine {
	return &Engine{mappings: mappings, catalog: cat, logger: logger}
}

func (e *Engine) SetAssistant(a aimap.Assistant) { e.assistant = a }

func (e *Engine) SetDetector(d ocr.Detector) { e.detector = d }

func (e *Engine) SetInventoryFetcher(f *templatemeta.Fetcher) { e.inventory = f }

func (e *Engine) SetRecorder(r *metrics.Recorder) { e.recorder = r }

// Resolve produces a field assignment for every external field the template
// declares, with per-field confidence and provenance. Only the template
// lookup and option validation are fatal; every upstream degradation becomes
// a warning on the record.
func (e *Engine) Resolve(ctx context.Context, templateID string, inputFacts map[string]interface{}, opts Options) (*Record, error) {
	start := time.Now()

	if opts.AllowOCREnhancement && opts.DocumentSource == nil {
		e.record(start, metrics.OutcomeFailure, nil)
		return nil, fmt.Errorf("%w: OCR enhancement requested without a document source", ErrInvalidOptions)
	}
	if mac := opts.MinAcceptableConfidence; mac != nil && (*mac < 0 || *mac > 1) {
		e.record(start, metrics.OutcomeFailure, nil)
		return nil, fmt.Errorf("%w: min acceptable confidence %v out of range", ErrInvalidOptions, *mac)
	}

	stored, err := e.mappings.Get(ctx, templateID)
	if err != nil {
		if errors.Is(err, mapping.ErrTemplateNotFound) {
			e.record(start, metrics.OutcomeFailure, nil)
			return nil, err
		}
		e.record(start, metrics.OutcomeFailure, nil)
		return nil, fmt.Errorf("load mappings for %s: %w", templateID, err)
	}

	rec := newRecord(templateID, inputFacts)

	factNames := make([]string, 0, len(inputFacts))
	for name := range inputFacts {
		factNames = append(factNames, name)
	}
	for _, unknown := range e.catalog.UnknownNames(factNames) {
		rec.warnf("input fact %q is not a known system field; the field catalog may be out of date", unknown)
	}

	// Pass 1: stored mappings (manual curation plus previously persisted
	// AI/OCR acceptances). These are immutable within the call.
	assigned := make(map[string]*mapping.TemplateMapping)
	var unmapped []string
	for _, m := range stored {
		if m.SystemFieldName != "" {
			assigned[m.ExternalFieldName] = m
		} else {
			unmapped = append(unmapped, m.ExternalFieldName)
		}
	}

	// Live inventory widens the field universe: the external template may
	// declare fields that no stored mapping row mentions yet.
	unmapped = append(unmapped, e.driftCheck(ctx, templateID, rec, stored)...)
	sort.Strings(unmapped)

	// Pass 2: AI proposals for the unmapped subset only.
	aiAccepted := e.aiPass(ctx, templateID, rec, &unmapped, inputFacts, opts)

	// Pass 3: OCR label detection for whatever is still unmapped.
	ocrAccepted := e.ocrPass(ctx, templateID, rec, &unmapped, aiAccepted, opts)

	// Re-read only what the enhancement passes persisted this call.
	for field := range aiAccepted {
		if m, err := e.mappings.GetMapping(ctx, templateID, field); err == nil {
			assigned[field] = m
		}
	}
	for _, field := range ocrAccepted {
		if m, err := e.mappings.GetMapping(ctx, templateID, field); err == nil {
			assigned[field] = m
		}
	}

	// Value resolution: mapped fields pull their value from the caller's
	// facts; the two miss cases stay distinguishable.
	for field, m := range assigned {
		value, present := inputFacts[m.SystemFieldName]
		if !present {
			rec.UnresolvedFields = append(rec.UnresolvedFields, field)
			rec.warnf("field %q is mapped to %q but no data was supplied", field, m.SystemFieldName)
			continue
		}
		rec.ResolvedFields[field] = ResolvedField{
			Value:           value,
			SystemFieldName: m.SystemFieldName,
			Confidence:      m.Confidence,
			Source:          m.Source,
		}
	}
	for _, field := range unmapped {
		rec.UnresolvedFields = append(rec.UnresolvedFields, field)
		rec.warnf("no mapping exists for external field %q", field)
	}
	sort.Strings(rec.UnresolvedFields)

	outcome := metrics.OutcomeSuccess
	switch {
	case len(rec.UnresolvedFields) > 0:
		outcome = metrics.OutcomePartial
	case len(aiAccepted) > 0 || len(ocrAccepted) > 0:
		outcome = metrics.OutcomeFallback
	}
	e.record(start, outcome, rec)

	return rec, nil
}

// driftCheck compares stored mappings against the live template inventory
// and returns declared fields that have no stored mapping row at all.
// Upstream unavailability skips the check with a warning; it never means
// "the template has zero fields".
func (e *Engine) driftCheck(ctx context.Context, templateID string, rec *Record, stored []*mapping.TemplateMapping) []string {
	if e.inventory == nil {
		return nil
	}
	live, err := e.inventory.FetchFields(ctx, templateID)
	if err != nil {
		rec.warnf("inventory validation skipped: %v", err)
		return nil
	}

	known := make(map[string]bool, len(stored))
	for _, m := range stored {
		known[m.ExternalFieldName] = true
	}
	var missing []string
	for _, f := range live {
		if !known[f.Name] {
			rec.warnf("template declares field %q with no mapping", f.Name)
			missing = append(missing, f.Name)
		}
	}
	liveNames := make(map[string]bool, len(live))
	for _, f := range live {
		liveNames[f.Name] = true
	}
	for _, m := range stored {
		if !liveNames[m.ExternalFieldName] {
			rec.warnf("mapping for %q no longer appears in the live template", m.ExternalFieldName)
		}
	}
	return missing
}

// aiPass requests proposals for the unmapped subset, applies those that
// clear the confidence floor, and persists acceptances so later calls
// resolve them without AI. Returns the externally-named fields accepted this
// call. Unavailability degrades to a warning.
func (e *Engine) aiPass(ctx context.Context, templateID string, rec *Record, unmapped *[]string, facts map[string]interface{}, opts Options) map[string]aimap.Proposal {
	accepted := make(map[string]aimap.Proposal)
	if !opts.AllowAIEnhancement || len(*unmapped) == 0 {
		return accepted
	}
	if e.assistant == nil {
		rec.warnf("AI enhancement skipped: no AI mapping service configured")
		return accepted
	}

	proposals, err := e.assistant.ProposeMappings(ctx, templateID, *unmapped, facts)
	if err != nil {
		rec.warnf("AI enhancement skipped: %v", err)
		return accepted
	}

	var remaining []string
	for _, field := range *unmapped {
		p, ok := proposals[field]
		if !ok {
			remaining = append(remaining, field)
			continue
		}
		if p.Confidence < opts.minConfidence() {
			rec.warnf("AI proposal for %q rejected: confidence %.2f below threshold %.2f",
				field, p.Confidence, opts.minConfidence())
			remaining = append(remaining, field)
			continue
		}
		if !e.catalog.Has(p.SystemFieldName) {
			rec.warnf("AI proposal for %q rejected: %q is not a known system field", field, p.SystemFieldName)
			remaining = append(remaining, field)
			continue
		}
		if err := e.mappings.Upsert(ctx, templateID, field, p.SystemFieldName, mapping.SourceAI, p.Confidence, false); err != nil {
			rec.warnf("AI proposal for %q accepted but could not be persisted: %v", field, err)
			e.logger.Warn().Err(err).Str("template_id", templateID).Str("field", field).
				Msg("persisting accepted AI proposal failed")
			remaining = append(remaining, field)
			continue
		}
		accepted[field] = p
	}
	*unmapped = remaining
	return accepted
}

// ocrPass runs label detection over the supplied document and matches
// detected labels to the still-unmapped external fields. A detected label
// that targets a field the AI pass already took is retained as provenance
// only; AI outranks OCR within a call.
func (e *Engine) ocrPass(ctx context.Context, templateID string, rec *Record, unmapped *[]string, aiAccepted map[string]aimap.Proposal, opts Options) []string {
	if !opts.AllowOCREnhancement {
		return nil
	}
	if e.detector == nil {
		rec.warnf("OCR enhancement skipped: no OCR service configured")
		return nil
	}
	if len(*unmapped) == 0 && len(aiAccepted) == 0 {
		return nil
	}

	detected, err := e.detector.ExtractFieldLabels(ctx, opts.DocumentSource)
	if err != nil {
		rec.warnf("OCR enhancement skipped: %v", err)
		return nil
	}

	var accepted []string
	var remaining []string
	for _, field := range *unmapped {
		d, ok := bestDetection(field, detected)
		if !ok {
			remaining = append(remaining, field)
			continue
		}
		if d.Confidence < opts.minConfidence() {
			rec.warnf("OCR detection for %q rejected: confidence %.2f below threshold %.2f",
				field, d.Confidence, opts.minConfidence())
			remaining = append(remaining, field)
			continue
		}
		systemField := e.systemFieldForDetection(d)
		if systemField == "" {
			rec.warnf("OCR detection for %q matched no known system field", field)
			remaining = append(remaining, field)
			continue
		}
		if err := e.mappings.Upsert(ctx, templateID, field, systemField, mapping.SourceOCR, d.Confidence, false); err != nil {
			rec.warnf("OCR detection for %q accepted but could not be persisted: %v", field, err)
			e.logger.Warn().Err(err).Str("template_id", templateID).Str("field", field).
				Msg("persisting accepted OCR detection failed")
			remaining = append(remaining, field)
			continue
		}
		accepted = append(accepted, field)
	}
	*unmapped = remaining

	// Detections that lost to an AI acceptance this call stay visible to
	// reviewers as provenance.
	for field := range aiAccepted {
		if d, ok := bestDetection(field, detected); ok {
			systemField := e.systemFieldForDetection(d)
			if systemField == "" {
				continue
			}
			e.mappings.RecordOverriddenProposal(ctx, templateID, field, systemField,
				mapping.SourceOCR, d.Confidence, mapping.SourceAI)
		}
	}
	return accepted
}

// bestDetection finds the detected label matching an external field name:
// normalized exact match first, then containment.
func bestDetection(externalField string, detected []ocr.DetectedField) (ocr.DetectedField, bool) {
	n := NormalizeLabel(externalField)
	for _, d := range detected {
		if NormalizeLabel(d.Label) == n {
			return d, true
		}
	}
	for _, d := range detected {
		if LabelsMatch(externalField, d.Label) {
			return d, true
		}
	}
	return ocr.DetectedField{}, false
}

// systemFieldForDetection resolves a detection to a catalog field: the
// detector's own suggestion when it names a known field, otherwise a
// normalized-label match against catalog labels and names.
func (e *Engine) systemFieldForDetection(d ocr.DetectedField) string {
	if d.SuggestedSystemField != "" && e.catalog.Has(d.SuggestedSystemField) {
		return d.SuggestedSystemField
	}
	if name, ok := MatchLabel(d.Label, e.catalog.Names()); ok {
		return name
	}
	return ""
}

func (e *Engine) record(start time.Time, outcome metrics.Outcome, rec *Record) {
	if e.recorder == nil {
		return
	}
	sample := metrics.Sample{
		Timestamp: time.Now(),
		Outcome:   outcome,
		LatencyMs: float64(time.Since(start).Microseconds()) / 1000,
	}
	if rec != nil {
		sample.Confidence = rec.AggregateConfidence()
		sample.CompletenessPct = rec.Completeness()
	}
	e.recorder.Record(sample)
}
