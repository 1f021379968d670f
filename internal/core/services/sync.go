package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/DanielTromp/atlas/internal/core/domain"
	"github.com/DanielTromp/atlas/internal/core/ports/driven"
	"github.com/DanielTromp/atlas/internal/core/ports/driving"
	"github.com/DanielTromp/atlas/internal/logger"
)

// Ensure SyncEngine implements the interface.
var _ driving.SyncEngine = (*SyncEngine)(nil)

// SyncConfig controls what a sync covers and how hard it pushes.
type SyncConfig struct {
	// Spaces are synced when a caller names none.
	Spaces     []string
	Labels     []string
	AncestorID string

	// Concurrency bounds how many spaces sync at once.
	Concurrency int

	// ExportTimeout and EmbedTimeout bound each network call.
	ExportTimeout time.Duration
	EmbedTimeout  time.Duration
}

// SyncConfigFromSettings builds a SyncConfig from settings.
func SyncConfigFromSettings(s domain.Settings) SyncConfig {
	return SyncConfig{
		Spaces:        s.Confluence.Spaces,
		Labels:        s.Confluence.Labels,
		AncestorID:    s.Confluence.AncestorID,
		Concurrency:   s.Sync.Concurrency,
		ExportTimeout: s.Sync.ExportTimeout,
		EmbedTimeout:  s.Sync.EmbedTimeout,
	}
}

// pageOutcome is the per-page result of the pipeline.
type pageOutcome int

const (
	pageProcessed pageOutcome = iota
	pageSkipped
	pageFailed
)

// SyncEngine pulls pages from the corpus, chunks and embeds them and
// replaces them in the index. Spaces sync in parallel up to the
// configured concurrency; a space never syncs twice at once.
type SyncEngine struct {
	corpus   driven.CorpusSource
	chunker  driven.Chunker
	embedder *Embedder
	store    driven.IndexStore
	config   SyncConfig
	now      func() time.Time

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex

	hooksMu        sync.RWMutex
	onIndexChanged []func()

	// Status tracking
	mu          sync.RWMutex
	activeSyncs map[string]*domain.SyncProgress

	// Background runs started by Start.
	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewSyncEngine creates a sync engine.
func NewSyncEngine(
	corpus driven.CorpusSource,
	chunker driven.Chunker,
	embedder *Embedder,
	store driven.IndexStore,
	config SyncConfig,
) *SyncEngine {
	if config.Concurrency <= 0 {
		config.Concurrency = 1
	}
	if config.ExportTimeout <= 0 {
		config.ExportTimeout = 30 * time.Second
	}
	if config.EmbedTimeout <= 0 {
		config.EmbedTimeout = 60 * time.Second
	}
	if embedder == nil {
		embedder = NewEmbedder(nil, 0, 0)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &SyncEngine{
		corpus:      corpus,
		chunker:     chunker,
		embedder:    embedder,
		store:       store,
		config:      config,
		now:         time.Now,
		locks:       make(map[string]*sync.Mutex),
		activeSyncs: make(map[string]*domain.SyncProgress),
		baseCtx:     ctx,
		cancel:      cancel,
	}
}

// FullSync reprocesses every page of the given spaces regardless of version.
func (e *SyncEngine) FullSync(ctx context.Context, spaces []string) ([]domain.SyncStats, error) {
	return e.run(ctx, spaces, domain.SyncModeFull, nil)
}

// IncrementalSync processes pages updated after since. A nil since is
// resolved per space from the index's last indexed time.
func (e *SyncEngine) IncrementalSync(ctx context.Context, spaces []string, since *time.Time) ([]domain.SyncStats, error) {
	return e.run(ctx, spaces, domain.SyncModeIncremental, since)
}

// Start launches a sync in the background and returns immediately.
func (e *SyncEngine) Start(spaces []string, full bool) error {
	spaces = e.resolveSpaces(spaces)
	if len(spaces) == 0 {
		return fmt.Errorf("%w: no spaces to sync", domain.ErrInvalidInput)
	}

	busy := 0
	for _, sp := range spaces {
		if e.isActive(sp) {
			busy++
		}
	}
	if busy == len(spaces) {
		return fmt.Errorf("%w: %s", domain.ErrSyncInProgress, strings.Join(spaces, ", "))
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		var err error
		if full {
			_, err = e.FullSync(e.baseCtx, spaces)
		} else {
			_, err = e.IncrementalSync(e.baseCtx, spaces, nil)
		}
		if err != nil {
			logger.Warn("Background sync finished with errors: %v", err)
		}
	}()
	return nil
}

// OnIndexChanged registers fn to run after a space sync that replaced at
// least one page. Caches built on the index use it to drop stale results.
func (e *SyncEngine) OnIndexChanged(fn func()) {
	e.hooksMu.Lock()
	defer e.hooksMu.Unlock()
	e.onIndexChanged = append(e.onIndexChanged, fn)
}

func (e *SyncEngine) indexChanged() {
	e.hooksMu.RLock()
	defer e.hooksMu.RUnlock()
	for _, fn := range e.onIndexChanged {
		fn()
	}
}

// Status returns progress for runs in flight, ordered by space.
func (e *SyncEngine) Status() []domain.SyncProgress {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]domain.SyncProgress, 0, len(e.activeSyncs))
	for _, p := range e.activeSyncs {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SpaceKey < out[j].SpaceKey })
	return out
}

// Close cancels background runs and waits for them to stop.
func (e *SyncEngine) Close() error {
	e.cancel()
	e.wg.Wait()
	return nil
}

// run fans the spaces out over an errgroup. Failures stay per space: the
// returned error joins them, and every space still gets its stats.
func (e *SyncEngine) run(ctx context.Context, spaces []string, mode domain.SyncMode, since *time.Time) ([]domain.SyncStats, error) {
	spaces = e.resolveSpaces(spaces)
	if len(spaces) == 0 {
		return nil, fmt.Errorf("%w: no spaces to sync", domain.ErrInvalidInput)
	}

	logger.Section("Sync")
	logger.Debug("Mode: %s, spaces: %v, concurrency: %d", mode, spaces, e.config.Concurrency)

	results := make([]domain.SyncStats, len(spaces))
	var g errgroup.Group
	g.SetLimit(e.config.Concurrency)
	for i, space := range spaces {
		g.Go(func() error {
			results[i] = e.syncSpace(ctx, space, mode, since)
			return nil
		})
	}
	_ = g.Wait()

	var errs []error
	for _, st := range results {
		if st.Err != nil {
			errs = append(errs, fmt.Errorf("space %s: %w", st.SpaceKey, st.Err))
		}
	}
	return results, errors.Join(errs...)
}

func (e *SyncEngine) resolveSpaces(spaces []string) []string {
	if len(spaces) == 0 {
		spaces = e.config.Spaces
	}
	seen := make(map[string]bool, len(spaces))
	out := make([]string, 0, len(spaces))
	for _, sp := range spaces {
		sp = strings.TrimSpace(sp)
		if sp == "" || seen[sp] {
			continue
		}
		seen[sp] = true
		out = append(out, sp)
	}
	return out
}

func (e *SyncEngine) spaceLock(space string) *sync.Mutex {
	e.locksMu.Lock()
	defer e.locksMu.Unlock()

	l, ok := e.locks[space]
	if !ok {
		l = &sync.Mutex{}
		e.locks[space] = l
	}
	return l
}

// syncSpace runs the whole pipeline for one space and records its state.
func (e *SyncEngine) syncSpace(ctx context.Context, space string, mode domain.SyncMode, since *time.Time) domain.SyncStats {
	lock := e.spaceLock(space)
	if !lock.TryLock() {
		logger.Warn("Sync for space %s already running, skipping", space)
		return domain.SyncStats{
			SpaceKey: space,
			Mode:     mode,
			Err:      fmt.Errorf("%w: space %s", domain.ErrSyncInProgress, space),
		}
	}
	defer lock.Unlock()

	start := e.now().UTC()
	stats := domain.SyncStats{SpaceKey: space, Mode: mode, StartTime: start}
	e.setStatus(space, &domain.SyncProgress{SpaceKey: space, Mode: mode, StartedAt: start})
	defer e.clearStatus(space)

	logger.Info("Starting %s sync for space %s", mode, space)

	prev, err := e.store.GetSyncState(ctx, space)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		logger.Warn("Reading sync state for %s: %v", space, err)
	}

	retryFrom, err := e.walkSpace(ctx, space, mode, since, &stats)
	stats.EndTime = e.now().UTC()
	if stats.PagesProcessed > 0 {
		e.indexChanged()
	}

	state := domain.SpaceSyncState{
		SpaceKey:       space,
		LastPageCount:  stats.PagesProcessed,
		LastChunkCount: stats.ChunksCreated,
		Status:         domain.SyncStatusCompleted,
	}
	if prev != nil {
		state.LastSyncAt = prev.LastSyncAt
	}
	if err != nil {
		stats.Err = err
		state.Status = domain.SyncStatusFailed
		state.ErrorMessage = err.Error()
		logger.Error("Sync for space %s failed: %v", space, err)
	} else {
		state.LastSyncAt = advanceWatermark(state.LastSyncAt, start, retryFrom)
	}

	// The state write must land even if the caller gave up.
	if saveErr := e.store.SaveSyncState(context.WithoutCancel(ctx), state); saveErr != nil {
		logger.Error("Saving sync state for %s: %v", space, saveErr)
		if stats.Err == nil {
			stats.Err = fmt.Errorf("saving sync state: %w", saveErr)
		}
	}

	logger.Info("Sync for space %s: %d processed, %d skipped, %d failed, %d chunks in %s",
		space, stats.PagesProcessed, stats.PagesSkipped, stats.PagesFailed, stats.ChunksCreated,
		stats.Duration().Round(time.Millisecond))
	return stats
}

// advanceWatermark moves the last sync time forward to start, but stops
// short of retryFrom so pages that failed are listed again by the next
// incremental run. It never moves backwards.
func advanceWatermark(prev *time.Time, start time.Time, retryFrom *time.Time) *time.Time {
	next := start
	if retryFrom != nil && retryFrom.Before(next) {
		next = *retryFrom
	}
	if next.IsZero() || (prev != nil && !next.After(*prev)) {
		return prev
	}
	return &next
}

// walkSpace pages through the listing and processes each page once.
// Only listing failures and cancellation abort the space. It returns the
// point just before the earliest modification time among failed pages,
// or nil when no page failed.
func (e *SyncEngine) walkSpace(
	ctx context.Context, space string, mode domain.SyncMode, since *time.Time, stats *domain.SyncStats,
) (*time.Time, error) {
	var retryFrom *time.Time

	q := driven.PageQuery{
		SpaceKey:   space,
		Labels:     e.config.Labels,
		AncestorID: e.config.AncestorID,
	}
	if mode == domain.SyncModeIncremental {
		if since == nil {
			last, err := e.store.GetLastIndexedTime(ctx, space)
			if err != nil {
				return nil, fmt.Errorf("reading last indexed time: %w", err)
			}
			since = last
		}
		q.UpdatedAfter = since
		if since != nil {
			logger.Debug("Space %s: pages updated after %s", space, since.Format(time.RFC3339))
		}
	}

	seen := make(map[string]bool)
	cursor := ""
	for {
		if err := ctx.Err(); err != nil {
			return retryFrom, err
		}

		batch, err := e.corpus.ListPages(ctx, q, cursor)
		if err != nil {
			return retryFrom, fmt.Errorf("listing pages: %w", err)
		}

		for _, rec := range batch.Records {
			if seen[rec.ID] {
				continue
			}
			seen[rec.ID] = true

			if err := ctx.Err(); err != nil {
				return retryFrom, err
			}

			outcome, chunks := e.processPage(ctx, space, mode, rec)
			switch outcome {
			case pageProcessed:
				stats.PagesProcessed++
				stats.ChunksCreated += chunks
			case pageSkipped:
				stats.PagesSkipped++
			case pageFailed:
				stats.PagesFailed++
				// Broken records carry no modification time; the watermark holds.
				at := time.Time{}
				if !rec.Version.When.IsZero() {
					at = rec.Version.When.UTC().Add(-time.Second)
				}
				if retryFrom == nil || at.Before(*retryFrom) {
					retryFrom = &at
				}
			}
			e.updateStatus(space, *stats)
		}

		if batch.NextCursor == "" || batch.NextCursor == cursor {
			return retryFrom, nil
		}
		cursor = batch.NextCursor
	}
}

// processPage runs one page through export, chunk, embed and replace.
// Every error is contained here.
func (e *SyncEngine) processPage(
	ctx context.Context, space string, mode domain.SyncMode, rec domain.PageRecord,
) (pageOutcome, int) {
	page, err := domain.ParsePage(rec, space, e.corpus.BaseURL())
	if err != nil {
		logger.Warn("Page %q: %v", rec.ID, err)
		return pageFailed, 0
	}

	if mode == domain.SyncModeIncremental {
		stored, err := e.store.GetPageVersion(ctx, page.ID)
		switch {
		case err == nil && stored >= page.Version:
			logger.Debug("Page %s unchanged at version %d", page.ID, stored)
			return pageSkipped, 0
		case err != nil && !errors.Is(err, domain.ErrNotFound):
			logger.Warn("Page %s: reading stored version: %v", page.ID, err)
			return pageFailed, 0
		}
	}

	exportCtx, cancel := context.WithTimeout(ctx, e.config.ExportTimeout)
	raw, err := e.corpus.ExportContent(exportCtx, page.ID)
	cancel()
	if err != nil {
		logger.Warn("Page %s: export: %v", page.ID, err)
		return pageFailed, 0
	}
	if strings.TrimSpace(raw) == "" {
		logger.Debug("Page %s has no content", page.ID)
		return pageSkipped, 0
	}

	chunks, err := e.chunker.Chunk(page, raw)
	if err != nil {
		logger.Warn("Page %s: chunking: %v", page.ID, err)
		return pageFailed, 0
	}
	if len(chunks) == 0 {
		logger.Debug("Page %s produced no chunks", page.ID)
		return pageSkipped, 0
	}

	embedCtx, cancel := context.WithTimeout(ctx, e.config.EmbedTimeout)
	indexed, err := e.embedder.EmbedChunks(embedCtx, chunks)
	cancel()
	if err != nil {
		logger.Warn("Page %s: %v", page.ID, err)
		return pageFailed, 0
	}

	// A started replace always completes, so cancellation never leaves
	// a page half written.
	if err := e.store.ReplacePage(context.WithoutCancel(ctx), page, indexed); err != nil {
		logger.Warn("Page %s: replace: %v", page.ID, err)
		return pageFailed, 0
	}

	logger.Debug("Page %s (%s) v%d: %d chunks", page.ID, page.Title, page.Version, len(chunks))
	return pageProcessed, len(chunks)
}

// ==================== Status Tracking ====================

func (e *SyncEngine) setStatus(space string, p *domain.SyncProgress) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.activeSyncs[space] = p
}

func (e *SyncEngine) updateStatus(space string, stats domain.SyncStats) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if p, ok := e.activeSyncs[space]; ok {
		p.PagesProcessed = stats.PagesProcessed
		p.PagesSkipped = stats.PagesSkipped
		p.PagesFailed = stats.PagesFailed
	}
}

func (e *SyncEngine) clearStatus(space string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.activeSyncs, space)
}

func (e *SyncEngine) isActive(space string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.activeSyncs[space]
	return ok
}
