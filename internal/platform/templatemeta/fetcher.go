// Package templatemeta fetches the live field inventory a template declares
// from the external template-metadata API. Reads are cached with a short TTL
// so resolution calls do not hammer the upstream; the cache is invalidated
// explicitly by an operator or expires naturally.
package templatemeta

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

// ErrUpstreamUnavailable is returned when the template-metadata API cannot be
// reached. Callers must treat it as "skip validation", never as "template has
// zero fields".
var ErrUpstreamUnavailable = errors.New("template-metadata service unavailable")

// DefaultTTL is the cache lifetime for a template's field inventory.
const DefaultTTL = 10 * time.Minute

// TemplateField is one field declared by the live template.
type TemplateField struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Required bool   `json:"required"`
}

type cacheEntry struct {
	fields    []TemplateField
	expiresAt time.Time
}

// Fetcher retrieves template field inventories with a TTL cache keyed by
// template id.
type Fetcher struct {
	client *resty.Client
	logger zerolog.Logger
	ttl    time.Duration

	mu    sync.RWMutex
	cache map[string]*cacheEntry
}

// New creates a Fetcher against baseURL.
func New(baseURL string, ttl time.Duration, logger zerolog.Logger) *Fetcher {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(15 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond).
		SetHeader("Accept", "application/json")

	return &Fetcher{
		client: client,
		logger: logger,
		ttl:    ttl,
		cache:  make(map[string]*cacheEntry),
	}
}

type fieldsResponse struct {
	TemplateID string          `json:"template_id"`
	Fields     []TemplateField `json:"fields"`
}

// FetchFields returns the ordered field inventory for templateID, served from
// cache when fresh.
func (f *Fetcher) FetchFields(ctx context.Context, templateID string) ([]TemplateField, error) {
	f.mu.RLock()
	entry, ok := f.cache[templateID]
	f.mu.RUnlock()
	if ok && time.Now().Before(entry.expiresAt) {
		return entry.fields, nil
	}

	var body fieldsResponse
	resp, err := f.client.R().
		SetContext(ctx).
		SetResult(&body).
		Get(fmt.Sprintf("/templates/%s/fields", templateID))
	if err != nil {
		f.logger.Warn().Err(err).Str("template_id", templateID).Msg("template-metadata fetch failed")
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	if resp.IsError() {
		f.logger.Warn().Int("status", resp.StatusCode()).Str("template_id", templateID).
			Msg("template-metadata fetch returned error status")
		return nil, fmt.Errorf("%w: status %d", ErrUpstreamUnavailable, resp.StatusCode())
	}

	f.mu.Lock()
	f.cache[templateID] = &cacheEntry{fields: body.Fields, expiresAt: time.Now().Add(f.ttl)}
	f.mu.Unlock()

	return body.Fields, nil
}

// Invalidate drops the cached inventory for templateID.
func (f *Fetcher) Invalidate(templateID string) {
	f.mu.Lock()
	delete(f.cache, templateID)
	f.mu.Unlock()
}

// InvalidateAll drops every cached inventory.
func (f *Fetcher) InvalidateAll() {
	f.mu.Lock()
	f.cache = make(map[string]*cacheEntry)
	f.mu.Unlock()
}
