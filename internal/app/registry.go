// Package app wires configuration, adapters and core services together.
package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"

	"github.com/DanielTromp/atlas/internal/adapters/driven/config/file"
	"github.com/DanielTromp/atlas/internal/adapters/driven/embedding"
	"github.com/DanielTromp/atlas/internal/adapters/driven/storage/memory"
	"github.com/DanielTromp/atlas/internal/adapters/driven/storage/qdrant"
	"github.com/DanielTromp/atlas/internal/adapters/driven/storage/sqlite"
	"github.com/DanielTromp/atlas/internal/adapters/driving/cli"
	"github.com/DanielTromp/atlas/internal/chunker"
	"github.com/DanielTromp/atlas/internal/connectors/confluence"
	"github.com/DanielTromp/atlas/internal/core/domain"
	"github.com/DanielTromp/atlas/internal/core/ports/driven"
	"github.com/DanielTromp/atlas/internal/core/services"
	"github.com/DanielTromp/atlas/internal/logger"
)

// Options configures New.
type Options struct {
	// ConfigDir overrides the atlas home directory.
	ConfigDir string
}

// Registry holds every wired component.
// Components that could not be built are nil and listed in Warnings, so
// commands that do not need them (settings, version) keep working.
type Registry struct {
	ConfigDir string
	Settings  domain.Settings

	ConfigStore     *file.ConfigStore
	SettingsService *services.SettingsService

	Store      driven.IndexStore
	Embedding  driven.EmbeddingService
	Confluence *confluence.Client

	Sync      *services.SyncEngine
	Search    *services.SearchService
	Index     *services.IndexService
	Scheduler *services.Scheduler

	// Warnings are non-fatal problems met while wiring.
	Warnings []string
}

// New loads settings and builds the component graph.
// Only a broken configuration directory is fatal.
func New(ctx context.Context, opts Options) (*Registry, error) {
	dir := opts.ConfigDir
	if dir == "" {
		d, err := file.DefaultDir()
		if err != nil {
			return nil, err
		}
		dir = d
	}

	configStore, err := file.NewConfigStore(dir)
	if err != nil {
		return nil, fmt.Errorf("opening config: %w", err)
	}
	settingsService := services.NewSettingsService(configStore)
	settings, err := settingsService.Get()
	if err != nil {
		return nil, fmt.Errorf("loading settings: %w", err)
	}

	r := &Registry{
		ConfigDir:       dir,
		Settings:        *settings,
		ConfigStore:     configStore,
		SettingsService: settingsService,
	}
	if err := settings.Validate(); err != nil {
		r.warn("invalid settings: %v", err)
		return r, nil
	}

	r.build(ctx)
	return r, nil
}

func (r *Registry) warn(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	r.Warnings = append(r.Warnings, msg)
	logger.Debug("Wiring: %s", msg)
}

// build assembles store, providers and services. Failures degrade:
// no store means no services, no embedding provider means keyword-only
// search, no Confluence means sync reports it is not configured.
func (r *Registry) build(ctx context.Context) {
	s := r.Settings
	logger.Section("Wiring")

	store, err := r.openStore(ctx)
	if err != nil {
		r.warn("index store unavailable: %v", err)
		return
	}
	r.Store = store
	logger.Debug("Store: %s", s.Storage.Backend)

	provider, err := embedding.NewService(&s.Embedding)
	if err != nil {
		r.warn("embedding provider unavailable, using keyword search only: %v", err)
	}
	r.Embedding = provider
	if provider != nil {
		logger.Debug("Embedding: %s (%d dims)", provider.ModelName(), provider.Dimensions())
	}
	embedder := services.NewEmbedder(provider, s.Embedding.BatchSize, s.Embedding.Dimensions)

	var corpus driven.CorpusSource = unconfiguredCorpus{}
	if s.Confluence.IsConfigured() {
		client, err := confluence.NewClient(ctx, confluence.ConfigFromSettings(s.Confluence))
		if err != nil {
			r.warn("confluence unavailable: %v", err)
		} else {
			r.Confluence = client
			corpus = client
		}
	}

	chunk, err := newChunker(s.Chunking)
	if err != nil {
		r.warn("chunker: %v", err)
		chunk = chunker.New()
	}

	var cache *services.ResultCache
	if s.Search.CacheTTL > 0 {
		cache = services.NewResultCache(s.Search.CacheSize, s.Search.CacheTTL)
	}

	r.Sync = services.NewSyncEngine(corpus, chunk, embedder, store, services.SyncConfigFromSettings(s))
	if cache != nil {
		r.Sync.OnIndexChanged(cache.Purge)
	}
	r.Search = services.NewSearchService(store, embedder, services.NewCitationExtractor(0), cache)
	r.Index = services.NewIndexService(store, r.Sync)

	if s.Schedule.Cron != "" {
		sched, err := services.NewScheduler(s.Schedule.Cron, s.Confluence.Spaces, r.Sync)
		if err != nil {
			r.warn("scheduler: %v", err)
		} else {
			r.Scheduler = sched
		}
	}
}

// openStore opens the configured index backend.
func (r *Registry) openStore(ctx context.Context) (driven.IndexStore, error) {
	s := r.Settings
	dims := s.Embedding.Dimensions

	switch s.Storage.Backend {
	case domain.StorageMemory:
		return memory.NewIndexStore(dims), nil
	case domain.StorageQdrant:
		store, err := qdrant.NewStore(ctx, qdrant.Config{
			URL:        s.Storage.QdrantURL,
			APIKey:     s.Storage.QdrantAPIKey,
			Collection: s.Storage.QdrantCollection,
			Dimensions: dims,
		})
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		path := s.Storage.Path
		if path == "" {
			path = filepath.Join(r.ConfigDir, "data", "index.db")
		}
		store, err := sqlite.NewStore(path, dims)
		if err != nil {
			return nil, err
		}
		return store, nil
	}
}

func newChunker(s domain.ChunkingSettings) (*chunker.Chunker, error) {
	opts := []chunker.Option{
		chunker.WithMaxTokens(s.MaxTokens),
		chunker.WithOverlap(s.OverlapTokens),
	}
	if s.SentenceBoundary != "" {
		re, err := regexp.Compile(s.SentenceBoundary)
		if err != nil {
			return nil, fmt.Errorf("%w: sentence boundary: %v", domain.ErrInvalidInput, err)
		}
		opts = append(opts, chunker.WithSentenceBoundary(re))
	}
	return chunker.New(opts...), nil
}

// CLIServices exposes the registry to the command line.
func (r *Registry) CLIServices() cli.Services {
	svc := cli.Services{
		Settings:       r.SettingsService,
		SearchDefaults: r.Settings.Search.Options(),
		Checks:         r.checks(),
	}
	// Typed nils must not leak into the interfaces.
	if r.Search != nil {
		svc.Search = r.Search
	}
	if r.Index != nil {
		svc.Index = r.Index
	}
	if r.Sync != nil {
		svc.Sync = r.Sync
	}
	if r.Scheduler != nil {
		svc.Scheduler = r.Scheduler
	}
	return svc
}

func (r *Registry) checks() []cli.Check {
	var checks []cli.Check
	if r.Confluence != nil {
		checks = append(checks, cli.Check{Name: "confluence", Run: r.Confluence.ValidateCredentials})
	}
	if r.Embedding != nil {
		settings := r.Settings.Embedding
		checks = append(checks, cli.Check{Name: "embedding", Run: func(ctx context.Context) error {
			return embedding.Validate(ctx, &settings)
		}})
	}
	if r.Store != nil {
		checks = append(checks, cli.Check{Name: "index", Run: func(ctx context.Context) error {
			_, err := r.Store.Stats(ctx)
			return err
		}})
	}
	return checks
}

// Close stops background work and releases the store.
func (r *Registry) Close() error {
	var errs []error
	if r.Scheduler != nil {
		errs = append(errs, r.Scheduler.Stop())
	}
	if r.Sync != nil {
		errs = append(errs, r.Sync.Close())
	}
	if r.Embedding != nil {
		errs = append(errs, r.Embedding.Close())
	}
	if r.Store != nil {
		errs = append(errs, r.Store.Close())
	}
	return errors.Join(errs...)
}

// unconfiguredCorpus stands in for Confluence until a base URL is set.
type unconfiguredCorpus struct{}

func (unconfiguredCorpus) ListPages(context.Context, driven.PageQuery, string) (*driven.PageBatch, error) {
	return nil, fmt.Errorf("%w: %w", domain.ErrCorpus, confluence.ErrNotConfigured)
}

func (unconfiguredCorpus) ExportContent(context.Context, string) (string, error) {
	return "", fmt.Errorf("%w: %w", domain.ErrCorpus, confluence.ErrNotConfigured)
}

func (unconfiguredCorpus) BaseURL() string { return "" }
