package services

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/DanielTromp/atlas/internal/core/domain"
	"github.com/DanielTromp/atlas/internal/core/ports/driven"
	"github.com/DanielTromp/atlas/internal/core/ports/driving"
)

// Ensure SettingsService implements the interface.
var _ driving.SettingsService = (*SettingsService)(nil)

// settingKey binds a dot key to the Settings field it fills.
type settingKey struct {
	key    string
	secret bool
	field  func(*domain.Settings) any
}

// settingKeys lists every recognised key in display order.
//
//nolint:gosec // G101: These are config key names, not actual credentials.
var settingKeys = []settingKey{
	{key: "confluence.base_url", field: func(s *domain.Settings) any { return &s.Confluence.BaseURL }},
	{key: "confluence.username", field: func(s *domain.Settings) any { return &s.Confluence.Username }},
	{key: "confluence.token", secret: true, field: func(s *domain.Settings) any { return &s.Confluence.Token }},
	{key: "confluence.spaces", field: func(s *domain.Settings) any { return &s.Confluence.Spaces }},
	{key: "confluence.labels", field: func(s *domain.Settings) any { return &s.Confluence.Labels }},
	{key: "confluence.ancestor_id", field: func(s *domain.Settings) any { return &s.Confluence.AncestorID }},
	{key: "confluence.page_size", field: func(s *domain.Settings) any { return &s.Confluence.PageSize }},
	{key: "confluence.requests_per_second", field: func(s *domain.Settings) any { return &s.Confluence.RequestsPerSecond }},
	{key: "confluence.timeout", field: func(s *domain.Settings) any { return &s.Confluence.Timeout }},

	{key: "embedding.provider", field: func(s *domain.Settings) any { return &s.Embedding.Provider }},
	{key: "embedding.model", field: func(s *domain.Settings) any { return &s.Embedding.Model }},
	{key: "embedding.base_url", field: func(s *domain.Settings) any { return &s.Embedding.BaseURL }},
	{key: "embedding.api_key", secret: true, field: func(s *domain.Settings) any { return &s.Embedding.APIKey }},
	{key: "embedding.dimensions", field: func(s *domain.Settings) any { return &s.Embedding.Dimensions }},
	{key: "embedding.batch_size", field: func(s *domain.Settings) any { return &s.Embedding.BatchSize }},
	{key: "embedding.timeout", field: func(s *domain.Settings) any { return &s.Embedding.Timeout }},

	{key: "chunking.max_tokens", field: func(s *domain.Settings) any { return &s.Chunking.MaxTokens }},
	{key: "chunking.overlap_tokens", field: func(s *domain.Settings) any { return &s.Chunking.OverlapTokens }},
	{key: "chunking.sentence_boundary", field: func(s *domain.Settings) any { return &s.Chunking.SentenceBoundary }},

	{key: "search.top_k", field: func(s *domain.Settings) any { return &s.Search.TopK }},
	{key: "search.semantic_weight", field: func(s *domain.Settings) any { return &s.Search.SemanticWeight }},
	{key: "search.keyword_weight", field: func(s *domain.Settings) any { return &s.Search.KeywordWeight }},
	{key: "search.min_relevance_score", field: func(s *domain.Settings) any { return &s.Search.MinRelevanceScore }},
	{key: "search.max_citations_per_result", field: func(s *domain.Settings) any { return &s.Search.MaxCitationsPerResult }},
	{key: "search.cache_ttl", field: func(s *domain.Settings) any { return &s.Search.CacheTTL }},
	{key: "search.cache_size", field: func(s *domain.Settings) any { return &s.Search.CacheSize }},

	{key: "sync.concurrency", field: func(s *domain.Settings) any { return &s.Sync.Concurrency }},
	{key: "sync.export_timeout", field: func(s *domain.Settings) any { return &s.Sync.ExportTimeout }},
	{key: "sync.embed_timeout", field: func(s *domain.Settings) any { return &s.Sync.EmbedTimeout }},

	{key: "storage.backend", field: func(s *domain.Settings) any { return &s.Storage.Backend }},
	{key: "storage.path", field: func(s *domain.Settings) any { return &s.Storage.Path }},
	{key: "storage.qdrant_url", field: func(s *domain.Settings) any { return &s.Storage.QdrantURL }},
	{key: "storage.qdrant_collection", field: func(s *domain.Settings) any { return &s.Storage.QdrantCollection }},
	{key: "storage.qdrant_api_key", secret: true, field: func(s *domain.Settings) any { return &s.Storage.QdrantAPIKey }},

	{key: "server.addr", field: func(s *domain.Settings) any { return &s.Server.Addr }},

	{key: "schedule.enabled", field: func(s *domain.Settings) any { return &s.Schedule.Enabled }},
	{key: "schedule.cron", field: func(s *domain.Settings) any { return &s.Schedule.Cron }},
}

func lookupKey(key string) (settingKey, bool) {
	for _, k := range settingKeys {
		if k.key == key {
			return k, true
		}
	}
	return settingKey{}, false
}

// IsSecretKey reports whether a key holds a credential that should be masked.
func IsSecretKey(key string) bool {
	k, ok := lookupKey(key)
	return ok && k.secret
}

// SettingsService manages application settings.
type SettingsService struct {
	configStore driven.ConfigStore
}

// NewSettingsService creates a new settings service.
func NewSettingsService(configStore driven.ConfigStore) *SettingsService {
	return &SettingsService{configStore: configStore}
}

// Get retrieves current application settings, defaults filled in.
// Unparseable values keep their default.
func (s *SettingsService) Get() (*domain.Settings, error) {
	settings := domain.DefaultSettings()
	for _, k := range settingKeys {
		if _, exists := s.configStore.Get(k.key); !exists {
			continue
		}
		s.load(k, k.field(&settings))
	}

	// Known models imply their dimension unless it is set explicitly.
	if _, exists := s.configStore.Get("embedding.dimensions"); !exists {
		if dims, ok := domain.EmbeddingDimensions()[settings.Embedding.Model]; ok {
			settings.Embedding.Dimensions = dims
		}
	}

	return &settings, nil
}

func (s *SettingsService) load(k settingKey, field any) {
	switch f := field.(type) {
	case *string:
		*f = s.configStore.GetString(k.key)
	case *int:
		*f = s.configStore.GetInt(k.key)
	case *float64:
		*f = s.configStore.GetFloat(k.key)
	case *bool:
		*f = s.configStore.GetBool(k.key)
	case *time.Duration:
		if d, err := time.ParseDuration(s.configStore.GetString(k.key)); err == nil {
			*f = d
		}
	case *[]string:
		if list := s.configStore.GetStringSlice(k.key); list != nil {
			*f = list
		} else if str := s.configStore.GetString(k.key); str != "" {
			*f = splitList(str)
		}
	case *domain.EmbeddingProvider:
		if p := domain.EmbeddingProvider(s.configStore.GetString(k.key)); p.IsValid() {
			*f = p
		}
	case *domain.StorageBackend:
		if b := domain.StorageBackend(s.configStore.GetString(k.key)); b.IsValid() {
			*f = b
		}
	}
}

// Set parses value for key, validates the resulting settings and persists it.
func (s *SettingsService) Set(key, value string) error {
	k, ok := lookupKey(key)
	if !ok {
		return fmt.Errorf("%w: unknown setting %q", domain.ErrInvalidInput, key)
	}

	current, err := s.Get()
	if err != nil {
		return err
	}
	stored, err := assign(k.field(current), strings.TrimSpace(value))
	if err != nil {
		return fmt.Errorf("%w: %s: %v", domain.ErrInvalidInput, key, err)
	}
	if err := current.Validate(); err != nil {
		return err
	}

	if err := s.configStore.Set(key, stored); err != nil {
		return fmt.Errorf("saving %s: %w", key, err)
	}
	return nil
}

// assign parses value into field and returns what should be persisted.
func assign(field any, value string) (any, error) {
	switch f := field.(type) {
	case *string:
		*f = value
		return value, nil
	case *int:
		n, err := strconv.Atoi(value)
		if err != nil {
			return nil, fmt.Errorf("not an integer: %q", value)
		}
		*f = n
		return n, nil
	case *float64:
		n, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return nil, fmt.Errorf("not a number: %q", value)
		}
		*f = n
		return n, nil
	case *bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return nil, fmt.Errorf("not a boolean: %q", value)
		}
		*f = b
		return b, nil
	case *time.Duration:
		d, err := time.ParseDuration(value)
		if err != nil {
			return nil, fmt.Errorf("not a duration: %q", value)
		}
		*f = d
		return d.String(), nil
	case *[]string:
		list := splitList(value)
		*f = list
		return list, nil
	case *domain.EmbeddingProvider:
		p := domain.EmbeddingProvider(value)
		if !p.IsValid() {
			return nil, fmt.Errorf("unknown provider %q", value)
		}
		*f = p
		return value, nil
	case *domain.StorageBackend:
		b := domain.StorageBackend(value)
		if !b.IsValid() {
			return nil, fmt.Errorf("unknown backend %q", value)
		}
		*f = b
		return value, nil
	}
	return nil, fmt.Errorf("unsupported field type %T", field)
}

// Keys lists the recognised setting keys.
func (s *SettingsService) Keys() []string {
	keys := make([]string, len(settingKeys))
	for i, k := range settingKeys {
		keys[i] = k.key
	}
	return keys
}

// Display renders the effective value of a key, masking credentials.
func (s *SettingsService) Display(settings *domain.Settings, key string) string {
	k, ok := lookupKey(key)
	if !ok {
		return ""
	}
	var out string
	switch f := k.field(settings).(type) {
	case *string:
		out = *f
	case *[]string:
		out = strings.Join(*f, ",")
	default:
		out = fmt.Sprint(derefValue(f))
	}
	if k.secret && out != "" {
		return "********"
	}
	return out
}

func derefValue(field any) any {
	switch f := field.(type) {
	case *int:
		return *f
	case *float64:
		return *f
	case *bool:
		return *f
	case *time.Duration:
		return *f
	case *domain.EmbeddingProvider:
		return *f
	case *domain.StorageBackend:
		return *f
	}
	return field
}

// GetDefaults returns default settings.
func (s *SettingsService) GetDefaults() domain.Settings {
	return domain.DefaultSettings()
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
