package domain

import (
	"fmt"
	"strings"
	"time"
)

const unknownDescription = "Unknown"

// EmbeddingProvider identifies an embedding service.
type EmbeddingProvider string

// Available embedding providers.
const (
	// EmbeddingProviderNone disables dense retrieval; search runs keyword-only.
	EmbeddingProviderNone EmbeddingProvider = "none"

	// EmbeddingProviderOllama is a local Ollama instance.
	EmbeddingProviderOllama EmbeddingProvider = "ollama"

	// EmbeddingProviderOpenAI is the OpenAI API or a compatible endpoint.
	EmbeddingProviderOpenAI EmbeddingProvider = "openai"
)

// IsValid returns true if the provider is recognised.
func (p EmbeddingProvider) IsValid() bool {
	switch p {
	case EmbeddingProviderNone, EmbeddingProviderOllama, EmbeddingProviderOpenAI:
		return true
	default:
		return false
	}
}

// Description returns a human-readable description of the provider.
func (p EmbeddingProvider) Description() string {
	switch p {
	case EmbeddingProviderNone:
		return "None (keyword search only)"
	case EmbeddingProviderOllama:
		return "Ollama (local)"
	case EmbeddingProviderOpenAI:
		return "OpenAI (cloud)"
	default:
		return unknownDescription
	}
}

// StorageBackend selects the index store implementation.
type StorageBackend string

// Available storage backends.
const (
	// StorageSQLite is the embedded store with FTS5 and vector blobs.
	StorageSQLite StorageBackend = "sqlite"

	// StorageQdrant is a dedicated Qdrant vector database.
	StorageQdrant StorageBackend = "qdrant"

	// StorageMemory keeps everything in process; nothing survives a restart.
	StorageMemory StorageBackend = "memory"
)

// IsValid returns true if the backend is recognised.
func (b StorageBackend) IsValid() bool {
	switch b {
	case StorageSQLite, StorageQdrant, StorageMemory:
		return true
	default:
		return false
	}
}

// ConfluenceSettings holds corpus source configuration.
type ConfluenceSettings struct {
	// BaseURL is the wiki root, e.g. https://example.atlassian.net/wiki.
	BaseURL string

	// Username enables basic auth with Token as the API token.
	// When empty, Token is sent as a bearer personal access token.
	Username string

	Token string

	// Spaces are the space keys synced by default.
	Spaces []string

	// Labels restrict sync to pages carrying any of these labels.
	Labels []string

	// AncestorID restricts sync to descendants of this page.
	AncestorID string

	PageSize          int
	RequestsPerSecond float64
	Timeout           time.Duration
}

// IsConfigured returns true if the connector can reach a wiki.
func (c ConfluenceSettings) IsConfigured() bool {
	return c.BaseURL != ""
}

// EmbeddingSettings holds embedding provider configuration.
type EmbeddingSettings struct {
	Provider EmbeddingProvider
	Model    string

	// BaseURL is the API endpoint.
	BaseURL string

	// APIKey is the API key (for OpenAI).
	APIKey string

	// Dimensions is the expected vector length; every vector is checked against it.
	Dimensions int

	BatchSize int
	Timeout   time.Duration
}

// IsConfigured returns true if dense retrieval is available.
func (e EmbeddingSettings) IsConfigured() bool {
	switch e.Provider {
	case EmbeddingProviderOllama:
		return true
	case EmbeddingProviderOpenAI:
		return e.APIKey != ""
	default:
		return false
	}
}

// ChunkingSettings configures the chunker.
type ChunkingSettings struct {
	MaxTokens     int
	OverlapTokens int

	// SentenceBoundary is a regular expression matching the gap after a sentence.
	// Empty uses the chunker default.
	SentenceBoundary string
}

// SearchSettings configures default search behaviour.
type SearchSettings struct {
	TopK                  int
	SemanticWeight        float64
	KeywordWeight         float64
	MinRelevanceScore     float64
	MaxCitationsPerResult int
	CacheTTL              time.Duration
	CacheSize             int
}

// Options converts the settings into per-query defaults.
func (s SearchSettings) Options() SearchOptions {
	opts := DefaultSearchOptions()
	opts.TopK = s.TopK
	opts.SemanticWeight = s.SemanticWeight
	opts.KeywordWeight = s.KeywordWeight
	opts.MinRelevanceScore = s.MinRelevanceScore
	opts.MaxCitationsPerResult = s.MaxCitationsPerResult
	opts.UseCache = s.CacheTTL > 0
	return opts
}

// SyncSettings configures the sync engine.
type SyncSettings struct {
	// Concurrency bounds how many spaces sync in parallel.
	Concurrency int

	ExportTimeout time.Duration
	EmbedTimeout  time.Duration
}

// StorageSettings configures the index store.
type StorageSettings struct {
	Backend StorageBackend

	// Path is the SQLite database file.
	Path string

	QdrantURL        string
	QdrantCollection string
	QdrantAPIKey     string
}

// ServerSettings configures the HTTP surface.
type ServerSettings struct {
	Addr string
}

// ScheduleSettings configures periodic incremental sync.
type ScheduleSettings struct {
	Enabled bool

	// Cron is a standard five-field cron expression.
	Cron string
}

// Settings holds all application settings.
type Settings struct {
	Confluence ConfluenceSettings
	Embedding  EmbeddingSettings
	Chunking   ChunkingSettings
	Search     SearchSettings
	Sync       SyncSettings
	Storage    StorageSettings
	Server     ServerSettings
	Schedule   ScheduleSettings
}

// DefaultSettings returns settings with sensible defaults.
// The embedding provider is left unconfigured; search falls back to keywords.
func DefaultSettings() Settings {
	return Settings{
		Confluence: ConfluenceSettings{
			PageSize:          50,
			RequestsPerSecond: 5,
			Timeout:           30 * time.Second,
		},
		Embedding: EmbeddingSettings{
			Provider:   EmbeddingProviderNone,
			Dimensions: 768, // nomic-embed-text default
			BatchSize:  32,
			Timeout:    60 * time.Second,
		},
		Chunking: ChunkingSettings{
			MaxTokens:     512,
			OverlapTokens: 50,
		},
		Search: SearchSettings{
			TopK:                  DefaultTopK,
			SemanticWeight:        DefaultSemanticWeight,
			KeywordWeight:         DefaultKeywordWeight,
			MaxCitationsPerResult: DefaultMaxCitationsPerResult,
			CacheTTL:              5 * time.Minute,
			CacheSize:             256,
		},
		Sync: SyncSettings{
			Concurrency:   2,
			ExportTimeout: 30 * time.Second,
			EmbedTimeout:  60 * time.Second,
		},
		Storage: StorageSettings{
			Backend:          StorageSQLite,
			QdrantURL:        "http://localhost:6333",
			QdrantCollection: "atlas_chunks",
		},
		Server: ServerSettings{
			Addr: "127.0.0.1:8080",
		},
		Schedule: ScheduleSettings{
			Cron: "*/30 * * * *",
		},
	}
}

// Validate checks cross-field constraints.
func (s Settings) Validate() error {
	var problems []string
	if !s.Embedding.Provider.IsValid() {
		problems = append(problems, fmt.Sprintf("unknown embedding provider %q", s.Embedding.Provider))
	}
	if s.Embedding.IsConfigured() && s.Embedding.Dimensions <= 0 {
		problems = append(problems, "embedding dimensions must be positive")
	}
	if !s.Storage.Backend.IsValid() {
		problems = append(problems, fmt.Sprintf("unknown storage backend %q", s.Storage.Backend))
	}
	if s.Chunking.MaxTokens <= 0 {
		problems = append(problems, "chunking max tokens must be positive")
	}
	if s.Chunking.OverlapTokens < 0 {
		problems = append(problems, "chunking overlap must not be negative")
	}
	if s.Sync.Concurrency <= 0 {
		problems = append(problems, "sync concurrency must be positive")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidInput, strings.Join(problems, "; "))
	}
	return nil
}

// EmbeddingDimensions returns the vector dimensions for known models.
func EmbeddingDimensions() map[string]int {
	return map[string]int{
		// Ollama models
		"nomic-embed-text":  768,
		"mxbai-embed-large": 1024,
		"all-minilm":        384,
		// OpenAI models
		"text-embedding-3-small": 1536,
		"text-embedding-3-large": 3072,
		"text-embedding-ada-002": 1536,
	}
}
