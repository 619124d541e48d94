package mapping

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) CreateTemplate(ctx context.Context, t *Template) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO templates (id, manufacturer, document_type, title)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (id) DO UPDATE SET manufacturer=$2, document_type=$3, title=$4`,
		t.ID, t.Manufacturer, t.DocumentType, t.Title)
	return err
}

func (r *repoPG) GetTemplate(ctx context.Context, templateID string) (*Template, error) {
	var t Template
	err := r.pool.QueryRow(ctx, `
		SELECT id, manufacturer, document_type, title, created_at
		FROM templates WHERE id = $1`, templateID).
		Scan(&t.ID, &t.Manufacturer, &t.DocumentType, &t.Title, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrTemplateNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *repoPG) ListTemplates(ctx context.Context, limit, offset int) ([]*Template, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM templates`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, manufacturer, document_type, title, created_at
		FROM templates ORDER BY manufacturer, document_type LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Template
	for rows.Next() {
		var t Template
		if err := rows.Scan(&t.ID, &t.Manufacturer, &t.DocumentType, &t.Title, &t.CreatedAt); err != nil {
			return nil, 0, err
		}
		items = append(items, &t)
	}
	return items, total, rows.Err()
}

const tmCols = `id, template_id, external_field_name, system_field_name, label,
	source, confidence, detected_at, created_at, updated_at`

// scanMapping reads one template_mappings row. Rows imported from legacy
// mapping files carry NULL source/confidence; they surface as manual entries
// with confidence 1.0, the stored system field name untouched.
func scanMapping(row pgx.Row) (*TemplateMapping, error) {
	var m TemplateMapping
	var source *string
	var confidence *float64
	err := row.Scan(&m.ID, &m.TemplateID, &m.ExternalFieldName, &m.SystemFieldName,
		&m.Label, &source, &confidence, &m.DetectedAt, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if source == nil {
		m.Source = SourceManual
	} else {
		m.Source = Source(*source)
	}
	if confidence == nil {
		m.Confidence = 1.0
	} else {
		m.Confidence = *confidence
	}
	return &m, nil
}

func (r *repoPG) GetMappings(ctx context.Context, templateID string) ([]*TemplateMapping, error) {
	if _, err := r.GetTemplate(ctx, templateID); err != nil {
		return nil, err
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+tmCols+` FROM template_mappings
		WHERE template_id = $1
		ORDER BY created_at, external_field_name`, templateID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*TemplateMapping
	for rows.Next() {
		m, err := scanMapping(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, m)
	}
	return items, rows.Err()
}

func (r *repoPG) GetMapping(ctx context.Context, templateID, externalField string) (*TemplateMapping, error) {
	m, err := scanMapping(r.pool.QueryRow(ctx, `
		SELECT `+tmCols+` FROM template_mappings
		WHERE template_id = $1 AND external_field_name = $2`, templateID, externalField))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrMappingNotFound
	}
	return m, err
}

func (r *repoPG) UpsertMapping(ctx context.Context, m *TemplateMapping) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO template_mappings
			(id, template_id, external_field_name, system_field_name, label, source, confidence, detected_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (template_id, external_field_name) DO UPDATE SET
			system_field_name=$4, label=$5, source=$6, confidence=$7, detected_at=$8, updated_at=NOW()`,
		m.ID, m.TemplateID, m.ExternalFieldName, m.SystemFieldName,
		m.Label, string(m.Source), m.Confidence, m.DetectedAt)
	return err
}

func (r *repoPG) DeleteMapping(ctx context.Context, templateID, externalField string) error {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM template_mappings
		WHERE template_id = $1 AND external_field_name = $2`, templateID, externalField)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrMappingNotFound
	}
	return nil
}

func (r *repoPG) RecordOverride(ctx context.Context, o *OverriddenMapping) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO overridden_mappings
			(id, template_id, external_field_name, system_field_name, source, confidence, overridden_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		o.ID, o.TemplateID, o.ExternalFieldName, o.SystemFieldName,
		string(o.Source), o.Confidence, string(o.OverriddenBy))
	return err
}

func (r *repoPG) ListOverrides(ctx context.Context, templateID string) ([]*OverriddenMapping, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, template_id, external_field_name, system_field_name, source, confidence, overridden_by, recorded_at
		FROM overridden_mappings WHERE template_id = $1 ORDER BY recorded_at`, templateID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*OverriddenMapping
	for rows.Next() {
		var o OverriddenMapping
		var src, by string
		if err := rows.Scan(&o.ID, &o.TemplateID, &o.ExternalFieldName, &o.SystemFieldName,
			&src, &o.Confidence, &by, &o.RecordedAt); err != nil {
			return nil, err
		}
		o.Source = Source(src)
		o.OverriddenBy = Source(by)
		items = append(items, &o)
	}
	return items, rows.Err()
}
