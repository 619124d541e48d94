package mapping

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryRepo is a thread-safe, in-memory Repository. It backs unit tests
// and the development seed mode; production deployments use NewRepoPG.
type InMemoryRepo struct {
	mu        sync.RWMutex
	templates map[string]*Template
	mappings  map[string]map[string]*TemplateMapping // templateID -> externalField -> row
	overrides map[string][]*OverriddenMapping
	// insertion order of external fields per template, for deterministic reads
	fieldOrder map[string][]string
	tmplOrder  []string
}

// NewInMemoryRepo creates a new empty in-memory repository.
func NewInMemoryRepo() *InMemoryRepo {
	return &InMemoryRepo{
		templates:  make(map[string]*Template),
		mappings:   make(map[string]map[string]*TemplateMapping),
		overrides:  make(map[string][]*OverriddenMapping),
		fieldOrder: make(map[string][]string),
	}
}

func (r *InMemoryRepo) CreateTemplate(_ context.Context, t *Template) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.templates[t.ID]; !exists {
		r.tmplOrder = append(r.tmplOrder, t.ID)
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	cp := *t
	r.templates[t.ID] = &cp
	return nil
}

func (r *InMemoryRepo) GetTemplate(_ context.Context, templateID string) (*Template, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.templates[templateID]
	if !ok {
		return nil, ErrTemplateNotFound
	}
	cp := *t
	return &cp, nil
}

func (r *InMemoryRepo) ListTemplates(_ context.Context, limit, offset int) ([]*Template, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	total := len(r.tmplOrder)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if limit <= 0 || end > total {
		end = total
	}
	var items []*Template
	for _, id := range r.tmplOrder[offset:end] {
		cp := *r.templates[id]
		items = append(items, &cp)
	}
	return items, total, nil
}

func (r *InMemoryRepo) GetMappings(_ context.Context, templateID string) ([]*TemplateMapping, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.templates[templateID]; !ok {
		return nil, ErrTemplateNotFound
	}
	var items []*TemplateMapping
	for _, field := range r.fieldOrder[templateID] {
		cp := *r.mappings[templateID][field]
		items = append(items, &cp)
	}
	return items, nil
}

func (r *InMemoryRepo) GetMapping(_ context.Context, templateID, externalField string) (*TemplateMapping, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.mappings[templateID][externalField]
	if !ok {
		return nil, ErrMappingNotFound
	}
	cp := *m
	return &cp, nil
}

func (r *InMemoryRepo) UpsertMapping(_ context.Context, m *TemplateMapping) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	now := time.Now()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	m.UpdatedAt = now
	if r.mappings[m.TemplateID] == nil {
		r.mappings[m.TemplateID] = make(map[string]*TemplateMapping)
	}
	if existing, ok := r.mappings[m.TemplateID][m.ExternalFieldName]; ok {
		m.ID = existing.ID
		m.CreatedAt = existing.CreatedAt
	} else {
		r.fieldOrder[m.TemplateID] = append(r.fieldOrder[m.TemplateID], m.ExternalFieldName)
	}
	cp := *m
	r.mappings[m.TemplateID][m.ExternalFieldName] = &cp
	return nil
}

func (r *InMemoryRepo) DeleteMapping(_ context.Context, templateID, externalField string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.mappings[templateID][externalField]; !ok {
		return ErrMappingNotFound
	}
	delete(r.mappings[templateID], externalField)
	order := r.fieldOrder[templateID]
	for i, f := range order {
		if f == externalField {
			r.fieldOrder[templateID] = append(order[:i], order[i+1:]...)
			break
		}
	}
	return nil
}

func (r *InMemoryRepo) RecordOverride(_ context.Context, o *OverriddenMapping) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	if o.RecordedAt.IsZero() {
		o.RecordedAt = time.Now()
	}
	cp := *o
	r.overrides[o.TemplateID] = append(r.overrides[o.TemplateID], &cp)
	return nil
}

func (r *InMemoryRepo) ListOverrides(_ context.Context, templateID string) ([]*OverriddenMapping, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var items []*OverriddenMapping
	for _, o := range r.overrides[templateID] {
		cp := *o
		items = append(items, &cp)
	}
	return items, nil
}
