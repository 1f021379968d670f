package cli

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/DanielTromp/atlas/internal/core/domain"
	"github.com/DanielTromp/atlas/internal/core/ports/driving"
)

// mockSearchService is a mock implementation of driving.SearchService.
type mockSearchService struct {
	response *domain.SearchResponse
	err      error
	query    string
	opts     domain.SearchOptions
}

func (m *mockSearchService) Search(_ context.Context, query string, opts domain.SearchOptions) (*domain.SearchResponse, error) {
	m.query, m.opts = query, opts
	if m.err != nil {
		return nil, m.err
	}
	if m.response != nil {
		return m.response, nil
	}
	return &domain.SearchResponse{
		Query: query,
		Results: []domain.SearchResult{{
			ChunkID:        "c1",
			Content:        "Renew the VPN certificate before it expires.",
			RelevanceScore: 0.0164,
			ContextPath:    []string{"OPS", "VPN Setup", "Renewal"},
			Page: domain.Page{
				ID:       "p1",
				Title:    "VPN Setup",
				URL:      "https://wiki.example.com/wiki/spaces/OPS/pages/p1",
				SpaceKey: "OPS",
			},
			Citations: []domain.Citation{{
				Quote:           "Renew the VPN certificate before it expires.",
				Section:         "Renewal",
				PageURL:         "https://wiki.example.com/wiki/spaces/OPS/pages/p1",
				ConfidenceScore: 0.8,
			}},
		}},
		TotalResults: 1,
		SearchTime:   3 * time.Millisecond,
	}, nil
}

// mockIndexService is a mock implementation of driving.IndexService.
type mockIndexService struct {
	report *driving.IndexReport
	spaces []domain.SpaceStats
	page   *domain.Page
	chunks []domain.Chunk
	err    error
}

func (m *mockIndexService) Stats(_ context.Context) (*driving.IndexReport, error) {
	if m.err != nil {
		return nil, m.err
	}
	if m.report == nil {
		return &driving.IndexReport{}, nil
	}
	return m.report, nil
}

func (m *mockIndexService) ListSpaces(_ context.Context) ([]domain.SpaceStats, error) {
	return m.spaces, m.err
}

func (m *mockIndexService) GetPage(_ context.Context, id string) (*domain.Page, []domain.Chunk, error) {
	if m.err != nil {
		return nil, nil, m.err
	}
	if m.page == nil || m.page.ID != id {
		return nil, nil, fmt.Errorf("%w: page %s", domain.ErrNotFound, id)
	}
	return m.page, m.chunks, nil
}

// mockSyncEngine is a mock implementation of driving.SyncEngine.
type mockSyncEngine struct {
	mu       sync.Mutex
	calls    []string
	spaces   []string
	since    *time.Time
	stats    []domain.SyncStats
	err      error
	delay    time.Duration
	progress []domain.SyncProgress
}

func (m *mockSyncEngine) record(call string, spaces []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, call)
	m.spaces = spaces
}

func (m *mockSyncEngine) FullSync(_ context.Context, spaces []string) ([]domain.SyncStats, error) {
	m.record("full", spaces)
	time.Sleep(m.delay)
	return m.stats, m.err
}

func (m *mockSyncEngine) IncrementalSync(_ context.Context, spaces []string, since *time.Time) ([]domain.SyncStats, error) {
	m.record("incremental", spaces)
	m.mu.Lock()
	m.since = since
	m.mu.Unlock()
	time.Sleep(m.delay)
	return m.stats, m.err
}

func (m *mockSyncEngine) Start(spaces []string, full bool) error {
	m.record(fmt.Sprintf("start full=%v", full), spaces)
	return m.err
}

func (m *mockSyncEngine) Status() []domain.SyncProgress {
	return m.progress
}

// mockSettingsService is a mock implementation of driving.SettingsService.
type mockSettingsService struct {
	settings domain.Settings
	values   map[string]string
	setErr   error
}

func newMockSettingsService() *mockSettingsService {
	return &mockSettingsService{
		settings: domain.DefaultSettings(),
		values: map[string]string{
			"confluence.base_url": "https://wiki.example.com/wiki",
			"confluence.token":    "****abcd",
			"search.top_k":        "10",
			"server.addr":         "127.0.0.1:0",
		},
	}
}

func (m *mockSettingsService) Get() (*domain.Settings, error) {
	s := m.settings
	return &s, nil
}

func (m *mockSettingsService) Set(key, value string) error {
	if m.setErr != nil {
		return m.setErr
	}
	m.values[key] = value
	return nil
}

func (m *mockSettingsService) Keys() []string {
	return []string{"confluence.base_url", "confluence.token", "search.top_k", "server.addr"}
}

func (m *mockSettingsService) Display(_ *domain.Settings, key string) string {
	return m.values[key]
}

func (m *mockSettingsService) GetDefaults() domain.Settings {
	return domain.DefaultSettings()
}

// mockScheduler is a mock implementation of driving.Scheduler.
type mockScheduler struct {
	started bool
	err     error
}

func (m *mockScheduler) Start(_ context.Context) error {
	m.started = true
	return m.err
}

func (m *mockScheduler) Stop() error { return nil }

// testServices holds the mocks installed by setupTestServices.
type testServices struct {
	search    *mockSearchService
	index     *mockIndexService
	sync      *mockSyncEngine
	settings  *mockSettingsService
	scheduler *mockScheduler
}

// setupTestServices installs mocks for every port and returns them with a
// cleanup function restoring the previous services and flag values.
func setupTestServices() (*testServices, func()) {
	prev := Services{
		Search:         searchService,
		Index:          indexService,
		Sync:           syncEngine,
		Settings:       settingsService,
		Scheduler:      scheduler,
		SearchDefaults: searchDefaults,
		Checks:         checks,
	}

	ts := &testServices{
		search:    &mockSearchService{},
		index:     &mockIndexService{},
		sync:      &mockSyncEngine{},
		settings:  newMockSettingsService(),
		scheduler: &mockScheduler{},
	}
	Configure(Services{
		Search:    ts.search,
		Index:     ts.index,
		Sync:      ts.sync,
		Settings:  ts.settings,
		Scheduler: ts.scheduler,
	})

	return ts, func() {
		Configure(prev)
		resetFlags()
	}
}

// resetFlags restores flag variables; cobra keeps them between executions.
func resetFlags() {
	searchTopK = 0
	searchSpaces = nil
	searchNoCitations = false
	searchNoCache = false
	searchMinScore = -1
	searchJSON = false
	syncFull = false
	syncSince = ""
	serveAddr = ""
	serveSchedule = false
	verbose = false
	jsonLogs = false
}

// runCommand executes the root command with args and returns its output.
func runCommand(args ...string) (string, error) {
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	defer rootCmd.SetArgs(nil)

	err := rootCmd.Execute()
	return buf.String(), err
}
