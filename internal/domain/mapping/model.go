package mapping

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Source identifies where a mapping came from.
type Source string

const (
	SourceManual Source = "manual"
	SourceAI     Source = "ai"
	SourceOCR    Source = "ocr"
)

// Rank returns the precedence of a source. Manual curation always outranks
// machine-derived mappings; AI outranks OCR.
func (s Source) Rank() int {
	switch s {
	case SourceManual:
		return 3
	case SourceAI:
		return 2
	case SourceOCR:
		return 1
	default:
		return 0
	}
}

// Valid reports whether s is a known source tag.
func (s Source) Valid() bool {
	return s == SourceManual || s == SourceAI || s == SourceOCR
}

// Template maps to the templates table: one row per registered e-form,
// keyed by manufacturer and document type.
type Template struct {
	ID           string    `db:"id" json:"id"`
	Manufacturer string    `db:"manufacturer" json:"manufacturer"`
	DocumentType string    `db:"document_type" json:"document_type"`
	Title        *string   `db:"title" json:"title,omitempty"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// TemplateMapping maps to the template_mappings table: one row per
// (template_id, external_field_name). SystemFieldName is empty while the
// external field is still unresolved.
type TemplateMapping struct {
	ID                uuid.UUID  `db:"id" json:"id"`
	TemplateID        string     `db:"template_id" json:"template_id"`
	ExternalFieldName string     `db:"external_field_name" json:"external_field_name"`
	SystemFieldName   string     `db:"system_field_name" json:"system_field_name"`
	Label             *string    `db:"label" json:"label,omitempty"`
	Source            Source     `db:"source" json:"source"`
	Confidence        float64    `db:"confidence" json:"confidence"`
	DetectedAt        *time.Time `db:"detected_at" json:"detected_at,omitempty"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at" json:"updated_at"`
}

// OverriddenMapping is a provenance row: a proposal that lost to a
// higher-precedence mapping, retained so a reviewer can see what was
// overridden.
type OverriddenMapping struct {
	ID                uuid.UUID `db:"id" json:"id"`
	TemplateID        string    `db:"template_id" json:"template_id"`
	ExternalFieldName string    `db:"external_field_name" json:"external_field_name"`
	SystemFieldName   string    `db:"system_field_name" json:"system_field_name"`
	Source            Source    `db:"source" json:"source"`
	Confidence        float64   `db:"confidence" json:"confidence"`
	OverriddenBy      Source    `db:"overridden_by" json:"overridden_by"`
	RecordedAt        time.Time `db:"recorded_at" json:"recorded_at"`
}

// InventoryDiff is the result of comparing stored mappings against the live
// field set the external template declares.
type InventoryDiff struct {
	MissingInMapping  []string `json:"missing_in_mapping"`
	MissingInTemplate []string `json:"missing_in_template"`
}

// MappingEntry is the wire-format variant for one mapping value. Curated
// mapping files and older API clients send a bare system field name
// ("legacy format"); current clients send the structured form. The entry is
// normalized to the structured form immediately on read so nothing downstream
// branches on representation.
type MappingEntry struct {
	legacy     string
	structured *TemplateMapping
}

// LegacyEntry wraps a bare system field name.
func LegacyEntry(systemField string) MappingEntry {
	return MappingEntry{legacy: systemField}
}

// StructuredEntry wraps a full mapping record.
func StructuredEntry(m *TemplateMapping) MappingEntry {
	return MappingEntry{structured: m}
}

// IsLegacy reports whether the entry arrived as a bare string.
func (e MappingEntry) IsLegacy() bool { return e.structured == nil }

// Normalize returns the structured form of the entry. A legacy entry upgrades
// to source=manual, confidence=1.0 by convention, preserving the original
// string value as the system field name.
func (e MappingEntry) Normalize() *TemplateMapping {
	if e.structured != nil {
		return e.structured
	}
	return &TemplateMapping{
		SystemFieldName: e.legacy,
		Source:          SourceManual,
		Confidence:      1.0,
	}
}

func (e *MappingEntry) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*e = LegacyEntry(s)
		return nil
	}
	var m TemplateMapping
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("mapping entry must be a string or a mapping object: %w", err)
	}
	*e = StructuredEntry(&m)
	return nil
}

func (e MappingEntry) MarshalJSON() ([]byte, error) {
	if e.structured == nil {
		return json.Marshal(e.legacy)
	}
	return json.Marshal(e.structured)
}
