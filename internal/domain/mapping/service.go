package mapping

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// ErrLowerPrecedence is returned when an upsert from a lower-precedence
// source would replace a trusted higher-precedence mapping and the caller
// did not force the override.
var ErrLowerPrecedence = errors.New("existing mapping has higher precedence")

// DefaultTrustedConfidence is the confidence above which a stored mapping is
// protected from lower-precedence overwrites.
const DefaultTrustedConfidence = 0.85

type Service struct {
	repo    Repository
	trusted float64

	// per-template write serialization: two concurrent proposal upserts for
	// the same template must not interleave into a lost update
	lockMu sync.Mutex
	locks  map[string]*sync.Mutex
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, trusted: DefaultTrustedConfidence, locks: make(map[string]*sync.Mutex)}
}

// SetTrustedConfidence overrides the trusted-confidence threshold.
func (s *Service) SetTrustedConfidence(v float64) { s.trusted = v }

func (s *Service) templateLock(templateID string) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	l, ok := s.locks[templateID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[templateID] = l
	}
	return l
}

// RegisterTemplate registers a template in the store.
func (s *Service) RegisterTemplate(ctx context.Context, t *Template) error {
	if t.ID == "" {
		return fmt.Errorf("template id is required")
	}
	if t.Manufacturer == "" || t.DocumentType == "" {
		return fmt.Errorf("manufacturer and document type are required")
	}
	return s.repo.CreateTemplate(ctx, t)
}

// GetTemplate looks up a registered template.
func (s *Service) GetTemplate(ctx context.Context, templateID string) (*Template, error) {
	return s.repo.GetTemplate(ctx, templateID)
}

// ListTemplates lists registered templates.
func (s *Service) ListTemplates(ctx context.Context, limit, offset int) ([]*Template, int, error) {
	return s.repo.ListTemplates(ctx, limit, offset)
}

// Get returns the ordered mappings for a template. Legacy entries are already
// upgraded by the repository layer.
func (s *Service) Get(ctx context.Context, templateID string) ([]*TemplateMapping, error) {
	return s.repo.GetMappings(ctx, templateID)
}

// Upsert replaces the mapping for (templateID, externalField). Precedence is
// manual > ai > ocr. A lower-precedence source cannot replace an existing
// mapping whose confidence is at or above the trusted threshold unless force
// is set; the rejected or replaced proposal is retained as provenance either
// way. A manual upsert always wins: a human action is never blocked by a
// machine-derived mapping, whatever its stored confidence. Unresolved
// placeholder rows (empty system field) are never protected, even though
// legacy rows surface as manual/1.0 after upgrade.
func (s *Service) Upsert(ctx context.Context, templateID, externalField, systemField string, source Source, confidence float64, force bool) error {
	if externalField == "" {
		return fmt.Errorf("external field name is required")
	}
	if !source.Valid() {
		return fmt.Errorf("invalid mapping source: %s", source)
	}
	if confidence < 0 || confidence > 1 {
		return fmt.Errorf("confidence must be between 0.0 and 1.0, got %v", confidence)
	}
	if source == SourceManual {
		confidence = 1.0
	}
	if _, err := s.repo.GetTemplate(ctx, templateID); err != nil {
		return err
	}

	lock := s.templateLock(templateID)
	lock.Lock()
	defer lock.Unlock()

	existing, err := s.repo.GetMapping(ctx, templateID, externalField)
	if err != nil && !errors.Is(err, ErrMappingNotFound) {
		return err
	}

	if existing != nil && existing.SystemFieldName != "" &&
		source.Rank() < existing.Source.Rank() &&
		existing.Confidence >= s.trusted && !force {
		// The incoming proposal loses; keep it visible to reviewers.
		_ = s.repo.RecordOverride(ctx, &OverriddenMapping{
			TemplateID:        templateID,
			ExternalFieldName: externalField,
			SystemFieldName:   systemField,
			Source:            source,
			Confidence:        confidence,
			OverriddenBy:      existing.Source,
		})
		return fmt.Errorf("%w: %s mapping for %q is trusted (confidence %.2f)",
			ErrLowerPrecedence, existing.Source, externalField, existing.Confidence)
	}

	m := &TemplateMapping{
		TemplateID:        templateID,
		ExternalFieldName: externalField,
		SystemFieldName:   systemField,
		Source:            source,
		Confidence:        confidence,
	}
	if source != SourceManual {
		now := time.Now()
		m.DetectedAt = &now
	}
	if err := s.repo.UpsertMapping(ctx, m); err != nil {
		return err
	}

	// The replaced machine-derived mapping becomes provenance. Unresolved
	// placeholder rows carry no target and leave no trail.
	if existing != nil && existing.SystemFieldName != "" &&
		existing.Source != SourceManual && existing.SystemFieldName != m.SystemFieldName {
		_ = s.repo.RecordOverride(ctx, &OverriddenMapping{
			TemplateID:        templateID,
			ExternalFieldName: externalField,
			SystemFieldName:   existing.SystemFieldName,
			Source:            existing.Source,
			Confidence:        existing.Confidence,
			OverriddenBy:      source,
		})
	}
	return nil
}

// GetMapping returns the single mapping for (templateID, externalField).
func (s *Service) GetMapping(ctx context.Context, templateID, externalField string) (*TemplateMapping, error) {
	return s.repo.GetMapping(ctx, templateID, externalField)
}

// RecordOverriddenProposal retains a proposal that lost to a
// higher-precedence source within a single resolution call. Best-effort:
// provenance failures are not worth failing a resolution over.
func (s *Service) RecordOverriddenProposal(ctx context.Context, templateID, externalField, systemField string, source Source, confidence float64, overriddenBy Source) {
	_ = s.repo.RecordOverride(ctx, &OverriddenMapping{
		TemplateID:        templateID,
		ExternalFieldName: externalField,
		SystemFieldName:   systemField,
		Source:            source,
		Confidence:        confidence,
		OverriddenBy:      overriddenBy,
	})
}

// Delete removes the mapping for (templateID, externalField).
func (s *Service) Delete(ctx context.Context, templateID, externalField string) error {
	lock := s.templateLock(templateID)
	lock.Lock()
	defer lock.Unlock()
	return s.repo.DeleteMapping(ctx, templateID, externalField)
}

// Overrides returns the provenance trail for a template.
func (s *Service) Overrides(ctx context.Context, templateID string) ([]*OverriddenMapping, error) {
	return s.repo.ListOverrides(ctx, templateID)
}

// ValidateAgainstInventory diffs the stored mappings against the live field
// names declared by the external template. It reads the store but never
// mutates it.
func (s *Service) ValidateAgainstInventory(ctx context.Context, templateID string, liveFieldNames []string) (*InventoryDiff, error) {
	mappings, err := s.repo.GetMappings(ctx, templateID)
	if err != nil {
		return nil, err
	}
	mapped := make([]string, 0, len(mappings))
	for _, m := range mappings {
		mapped = append(mapped, m.ExternalFieldName)
	}
	return Diff(mapped, liveFieldNames), nil
}

// Diff compares the set of mapped external field names against the live
// field names declared by the template. Pure function: identical inputs
// always yield identical output.
func Diff(mappedFields, liveFields []string) *InventoryDiff {
	mapped := make(map[string]bool, len(mappedFields))
	for _, f := range mappedFields {
		mapped[f] = true
	}
	live := make(map[string]bool, len(liveFields))
	for _, f := range liveFields {
		live[f] = true
	}

	d := &InventoryDiff{
		MissingInMapping:  []string{},
		MissingInTemplate: []string{},
	}
	for f := range live {
		if !mapped[f] {
			d.MissingInMapping = append(d.MissingInMapping, f)
		}
	}
	for f := range mapped {
		if !live[f] {
			d.MissingInTemplate = append(d.MissingInTemplate, f)
		}
	}
	sort.Strings(d.MissingInMapping)
	sort.Strings(d.MissingInTemplate)
	return d
}
