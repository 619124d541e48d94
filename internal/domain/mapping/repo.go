package mapping

import (
	"context"
	"errors"
)

// ErrTemplateNotFound is returned when a template id is not registered.
var ErrTemplateNotFound = errors.New("template not found")

// ErrMappingNotFound is returned when no mapping exists for an external field.
var ErrMappingNotFound = errors.New("mapping not found")

type Repository interface {
	CreateTemplate(ctx context.Context, t *Template) error
	GetTemplate(ctx context.Context, templateID string) (*Template, error)
	ListTemplates(ctx context.Context, limit, offset int) ([]*Template, int, error)

	GetMappings(ctx context.Context, templateID string) ([]*TemplateMapping, error)
	GetMapping(ctx context.Context, templateID, externalField string) (*TemplateMapping, error)
	UpsertMapping(ctx context.Context, m *TemplateMapping) error
	DeleteMapping(ctx context.Context, templateID, externalField string) error

	RecordOverride(ctx context.Context, o *OverriddenMapping) error
	ListOverrides(ctx context.Context, templateID string) ([]*OverriddenMapping, error)
}
