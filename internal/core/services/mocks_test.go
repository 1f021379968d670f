package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/DanielTromp/atlas/internal/core/domain"
	"github.com/DanielTromp/atlas/internal/core/ports/driven"
)

// --- Mock implementations shared by the service tests ---

// mockPage is one page held by mockCorpus.
type mockPage struct {
	record  domain.PageRecord
	content string
}

// mockCorpus implements driven.CorpusSource over an in-memory set of pages.
// Listings are served in batches of batchSize with numeric cursors.
type mockCorpus struct {
	mu        sync.Mutex
	spaces    map[string][]mockPage
	batchSize int

	listErrs   map[string]error
	exportErrs map[string]error
	exports    map[string]int
	queries    []driven.PageQuery

	// blockList, when set, is closed by the test to release ListPages.
	blockList chan struct{}
}

func newMockCorpus() *mockCorpus {
	return &mockCorpus{
		spaces:     make(map[string][]mockPage),
		batchSize:  2,
		listErrs:   make(map[string]error),
		exportErrs: make(map[string]error),
		exports:    make(map[string]int),
	}
}

// put adds or replaces a page.
func (m *mockCorpus) put(space, id, title string, version int, when time.Time, content string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p := mockPage{
		record: domain.PageRecord{
			ID:       id,
			Title:    title,
			SpaceKey: space,
			Version:  domain.PageVersion{Number: version, When: when, By: "alice"},
			WebUI:    "/spaces/" + space + "/pages/" + id,
		},
		content: content,
	}
	for i, existing := range m.spaces[space] {
		if existing.record.ID == id {
			m.spaces[space][i] = p
			return
		}
	}
	m.spaces[space] = append(m.spaces[space], p)
}

// label sets the labels of a page already put.
func (m *mockCorpus) label(space, id string, labels ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, p := range m.spaces[space] {
		if p.record.ID == id {
			m.spaces[space][i].record.Labels = labels
		}
	}
}

func (m *mockCorpus) ListPages(ctx context.Context, q driven.PageQuery, cursor string) (*driven.PageBatch, error) {
	if m.blockList != nil {
		select {
		case <-m.blockList:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.queries = append(m.queries, q)
	if err := m.listErrs[q.SpaceKey]; err != nil {
		return nil, err
	}

	var matching []domain.PageRecord
	for _, p := range m.spaces[q.SpaceKey] {
		if q.UpdatedAfter != nil && !p.record.Version.When.After(*q.UpdatedAfter) {
			continue
		}
		matching = append(matching, p.record)
	}

	offset := 0
	if cursor != "" {
		n, err := strconv.Atoi(cursor)
		if err != nil {
			return nil, fmt.Errorf("bad cursor %q", cursor)
		}
		offset = n
	}
	end := min(offset+m.batchSize, len(matching))
	batch := &driven.PageBatch{Records: matching[min(offset, end):end]}
	if end < len(matching) {
		batch.NextCursor = strconv.Itoa(end)
	}
	return batch, nil
}

func (m *mockCorpus) ExportContent(_ context.Context, pageID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exports[pageID]++
	if err := m.exportErrs[pageID]; err != nil {
		return "", err
	}
	for _, pages := range m.spaces {
		for _, p := range pages {
			if p.record.ID == pageID {
				return p.content, nil
			}
		}
	}
	return "", fmt.Errorf("%w: page %s", domain.ErrNotFound, pageID)
}

func (m *mockCorpus) BaseURL() string {
	return "https://wiki.example.com/wiki"
}

func (m *mockCorpus) exportCount(pageID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.exports[pageID]
}

// mockVocabulary drives mockEmbedder: one dimension per word.
var mockVocabulary = []string{"vpn", "certificate", "deploy"}

// mockEmbedder implements driven.EmbeddingService with bag-of-words vectors
// over mockVocabulary, so texts about the same topic point the same way.
type mockEmbedder struct {
	mu       sync.Mutex
	dims     int
	err      error
	queryErr error
	batches  int
}

func newMockEmbedder() *mockEmbedder {
	return &mockEmbedder{dims: len(mockVocabulary)}
}

func (m *mockEmbedder) vector(text string) []float32 {
	lower := strings.ToLower(text)
	vec := make([]float32, m.dims)
	for i := 0; i < m.dims && i < len(mockVocabulary); i++ {
		vec[i] = float32(strings.Count(lower, mockVocabulary[i]))
	}
	// Keep vectors non-zero so cosine stays defined.
	vec[m.dims-1] += 0.01
	return vec
}

func (m *mockEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.queryErr != nil {
		return nil, m.queryErr
	}
	return m.vector(text), nil
}

func (m *mockEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batches++
	if m.err != nil {
		return nil, m.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = m.vector(t)
	}
	return out, nil
}

func (m *mockEmbedder) Dimensions() int            { return m.dims }
func (m *mockEmbedder) ModelName() string          { return "mock-embed-v1" }
func (m *mockEmbedder) Ping(context.Context) error { return nil }
func (m *mockEmbedder) Close() error               { return nil }

// mockConfigStore implements driven.ConfigStore over a map.
type mockConfigStore struct {
	values  map[string]any
	setErr  error
	setKeys []string
}

func newMockConfigStore() *mockConfigStore {
	return &mockConfigStore{values: make(map[string]any)}
}

func (m *mockConfigStore) Get(key string) (any, bool) {
	v, ok := m.values[key]
	return v, ok
}

func (m *mockConfigStore) GetString(key string) string {
	switch v := m.values[key].(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	}
	return ""
}

func (m *mockConfigStore) GetInt(key string) int {
	switch v := m.values[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	}
	return 0
}

func (m *mockConfigStore) GetFloat(key string) float64 {
	switch v := m.values[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return 0
}

func (m *mockConfigStore) GetBool(key string) bool {
	b, _ := m.values[key].(bool)
	return b
}

func (m *mockConfigStore) GetStringSlice(key string) []string {
	s, _ := m.values[key].([]string)
	return s
}

func (m *mockConfigStore) Set(key string, value any) error {
	if m.setErr != nil {
		return m.setErr
	}
	m.values[key] = value
	m.setKeys = append(m.setKeys, key)
	return nil
}

func (m *mockConfigStore) Save() error  { return nil }
func (m *mockConfigStore) Load() error  { return nil }
func (m *mockConfigStore) Path() string { return "/tmp/atlas/config.toml" }

// failingStore wraps an IndexStore and fails selected operations.
type failingStore struct {
	driven.IndexStore
	replaceErr map[string]error
	denseErr   error
	sparseErr  error

	mu       sync.Mutex
	replaces map[string]int
}

func (f *failingStore) ReplacePage(ctx context.Context, page domain.Page, chunks []domain.IndexedChunk) error {
	f.mu.Lock()
	if f.replaces == nil {
		f.replaces = make(map[string]int)
	}
	f.replaces[page.ID]++
	f.mu.Unlock()

	if err := f.replaceErr[page.ID]; err != nil {
		return err
	}
	return f.IndexStore.ReplacePage(ctx, page, chunks)
}

func (f *failingStore) replaceCount(pageID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.replaces[pageID]
}

func (f *failingStore) QueryDense(ctx context.Context, vector []float32, limit int, spaces []string) ([]domain.ScoredChunk, error) {
	if f.denseErr != nil {
		return nil, f.denseErr
	}
	return f.IndexStore.QueryDense(ctx, vector, limit, spaces)
}

func (f *failingStore) QuerySparse(ctx context.Context, text string, limit int, spaces []string) ([]domain.ScoredChunk, error) {
	if f.sparseErr != nil {
		return nil, f.sparseErr
	}
	return f.IndexStore.QuerySparse(ctx, text, limit, spaces)
}

var errBoom = errors.New("boom")
