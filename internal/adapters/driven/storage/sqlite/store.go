package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/DanielTromp/atlas/internal/adapters/driven/storage/sqlite/migrations"
	"github.com/DanielTromp/atlas/internal/core/domain"
	"github.com/DanielTromp/atlas/internal/core/ports/driven"
	"github.com/DanielTromp/atlas/internal/textindex"
)

// Ensure Store implements the interface.
var _ driven.IndexStore = (*Store)(nil)

// timeLayout is how timestamps are written to TEXT columns.
const timeLayout = time.RFC3339Nano

// Store is the SQLite-backed index.
type Store struct {
	db         *sql.DB
	path       string
	dimensions int
}

// DefaultPath returns ~/.atlas/data/index.db.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(home, ".atlas", "data", "index.db"), nil
}

// NewStore opens (or creates) the index database at path.
// If path is empty, DefaultPath is used. dimensions > 0 enforces vector length.
func NewStore(path string, dimensions int) (*Store, error) {
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	// WAL lets readers keep their snapshot while a replace commits.
	// foreign_keys is a per-connection pragma, so it goes in the DSN.
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{
		db:         db,
		path:       path,
		dimensions: dimensions,
	}

	// Run migrations
	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// migrate runs all pending migrations, each in its own transaction.
func (s *Store) migrate(fsys embed.FS) error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var currentVersion int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	var upFiles []string
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasSuffix(name, ".up.sql") {
			upFiles = append(upFiles, name)
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		// "001_initial.up.sql" -> 1
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}
		if version <= currentVersion {
			continue
		}

		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning migration %s: %w", name, err)
		}
		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %s: %w", name, err)
		}
	}

	return nil
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// ==================== Writes ====================

func (s *Store) validate(page domain.Page, chunks []domain.IndexedChunk) error {
	for _, ic := range chunks {
		if ic.Chunk.PageID != page.ID {
			return fmt.Errorf("%w: chunk %s belongs to page %s, not %s",
				domain.ErrInvalidInput, ic.Chunk.ID, ic.Chunk.PageID, page.ID)
		}
		if ic.Embedding != nil && s.dimensions > 0 && len(ic.Embedding.Vector) != s.dimensions {
			return fmt.Errorf("%w: chunk %s has %d dimensions, want %d",
				domain.ErrDimensionMismatch, ic.Chunk.ID, len(ic.Embedding.Vector), s.dimensions)
		}
	}
	return nil
}

// UpsertChunks inserts or overwrites chunks and the page row in one transaction.
func (s *Store) UpsertChunks(ctx context.Context, page domain.Page, chunks []domain.IndexedChunk) (int, error) {
	if err := s.validate(page, chunks); err != nil {
		return 0, err
	}

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if err := putPage(ctx, tx, page); err != nil {
			return err
		}
		for _, ic := range chunks {
			if err := putChunk(ctx, tx, ic); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(chunks), nil
}

// ReplacePage deletes the page's chunks and writes the new set in one
// transaction. Readers see either the old set or the new one.
func (s *Store) ReplacePage(ctx context.Context, page domain.Page, chunks []domain.IndexedChunk) error {
	if err := s.validate(page, chunks); err != nil {
		return err
	}

	return s.inTx(ctx, func(tx *sql.Tx) error {
		if err := deleteChunks(ctx, tx, page.ID); err != nil {
			return err
		}
		if err := putPage(ctx, tx, page); err != nil {
			return err
		}
		for _, ic := range chunks {
			if err := putChunk(ctx, tx, ic); err != nil {
				return err
			}
		}
		return nil
	})
}

// DeletePage removes a page; chunks and embeddings cascade.
func (s *Store) DeletePage(ctx context.Context, pageID string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if err := deleteChunks(ctx, tx, pageID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM pages WHERE page_id = ?", pageID); err != nil {
			return fmt.Errorf("%w: deleting page: %v", domain.ErrStore, err)
		}
		return nil
	})
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: beginning transaction: %v", domain.ErrStore, err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: committing: %v", domain.ErrStore, err)
	}
	return nil
}

func putPage(ctx context.Context, db execer, page domain.Page) error {
	labels, err := json.Marshal(page.Labels)
	if err != nil {
		return fmt.Errorf("marshalling labels: %w", err)
	}
	ancestors, err := json.Marshal(page.Ancestors)
	if err != nil {
		return fmt.Errorf("marshalling ancestors: %w", err)
	}

	// An upsert keeps the row; INSERT OR REPLACE would cascade to the chunks.
	_, err = db.ExecContext(ctx, `
		INSERT INTO pages (page_id, space_key, title, url, labels, version,
			updated_at, updated_by, parent_id, ancestors, indexed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(page_id) DO UPDATE SET
			space_key = excluded.space_key,
			title = excluded.title,
			url = excluded.url,
			labels = excluded.labels,
			version = excluded.version,
			updated_at = excluded.updated_at,
			updated_by = excluded.updated_by,
			parent_id = excluded.parent_id,
			ancestors = excluded.ancestors,
			indexed_at = excluded.indexed_at
	`, page.ID, page.SpaceKey, page.Title, page.URL, string(labels), page.Version,
		formatTime(page.UpdatedAt), page.UpdatedBy, page.ParentID, string(ancestors),
		formatTime(time.Now().UTC()))
	if err != nil {
		return fmt.Errorf("%w: saving page %s: %v", domain.ErrStore, page.ID, err)
	}
	return nil
}

func putChunk(ctx context.Context, db execer, ic domain.IndexedChunk) error {
	c := ic.Chunk
	contextPath, err := json.Marshal(c.ContextPath)
	if err != nil {
		return fmt.Errorf("marshalling context path: %w", err)
	}
	spans, err := json.Marshal(c.Spans)
	if err != nil {
		return fmt.Errorf("marshalling spans: %w", err)
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO chunks (chunk_id, page_id, content, original_content, context_path,
			chunk_type, token_count, position, text_spans, heading_context)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(chunk_id) DO UPDATE SET
			page_id = excluded.page_id,
			content = excluded.content,
			original_content = excluded.original_content,
			context_path = excluded.context_path,
			chunk_type = excluded.chunk_type,
			token_count = excluded.token_count,
			position = excluded.position,
			text_spans = excluded.text_spans,
			heading_context = excluded.heading_context
	`, c.ID, c.PageID, c.Content, c.OriginalContent, string(contextPath),
		string(c.Type), c.TokenCount, c.Position, string(spans), c.HeadingContext)
	if err != nil {
		return fmt.Errorf("%w: saving chunk %s: %v", domain.ErrStore, c.ID, err)
	}

	if ic.Embedding == nil || len(ic.Embedding.Vector) == 0 {
		_, err = db.ExecContext(ctx, "DELETE FROM chunk_embeddings WHERE chunk_id = ?", c.ID)
		if err != nil {
			return fmt.Errorf("%w: clearing embedding %s: %v", domain.ErrStore, c.ID, err)
		}
		return nil
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO chunk_embeddings (chunk_id, vector, dimensions, model_version)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(chunk_id) DO UPDATE SET
			vector = excluded.vector,
			dimensions = excluded.dimensions,
			model_version = excluded.model_version
	`, c.ID, float32SliceToBytes(ic.Embedding.Vector), len(ic.Embedding.Vector), ic.Embedding.ModelVersion)
	if err != nil {
		return fmt.Errorf("%w: saving embedding %s: %v", domain.ErrStore, c.ID, err)
	}
	return nil
}

func deleteChunks(ctx context.Context, db execer, pageID string) error {
	_, err := db.ExecContext(ctx, `
		DELETE FROM chunk_embeddings
		WHERE chunk_id IN (SELECT chunk_id FROM chunks WHERE page_id = ?)
	`, pageID)
	if err != nil {
		return fmt.Errorf("%w: deleting embeddings: %v", domain.ErrStore, err)
	}
	if _, err := db.ExecContext(ctx, "DELETE FROM chunks WHERE page_id = ?", pageID); err != nil {
		return fmt.Errorf("%w: deleting chunks: %v", domain.ErrStore, err)
	}
	return nil
}

// ==================== Page Queries ====================

// GetPageVersion returns the stored version of a page.
func (s *Store) GetPageVersion(ctx context.Context, pageID string) (int, error) {
	var version int
	err := s.db.QueryRowContext(ctx, "SELECT version FROM pages WHERE page_id = ?", pageID).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, domain.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("%w: reading version: %v", domain.ErrStore, err)
	}
	return version, nil
}

// GetLastIndexedTime prefers the recorded sync time and falls back to
// the newest page write in the space.
func (s *Store) GetLastIndexedTime(ctx context.Context, spaceKey string) (*time.Time, error) {
	state, err := s.GetSyncState(ctx, spaceKey)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	if state != nil && state.LastSyncAt != nil {
		return state.LastSyncAt, nil
	}

	var latest sql.NullString
	err = s.db.QueryRowContext(ctx,
		"SELECT MAX(indexed_at) FROM pages WHERE space_key = ?", spaceKey).Scan(&latest)
	if err != nil {
		return nil, fmt.Errorf("%w: reading last indexed time: %v", domain.ErrStore, err)
	}
	if !latest.Valid || latest.String == "" {
		return nil, nil
	}
	t, err := parseTime(latest.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// GetPage returns a stored page.
func (s *Store) GetPage(ctx context.Context, pageID string) (*domain.Page, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT page_id, space_key, title, url, labels, version, updated_at,
			updated_by, parent_id, ancestors
		FROM pages WHERE page_id = ?
	`, pageID)

	var page domain.Page
	var labels, ancestors, updatedAt string
	err := row.Scan(&page.ID, &page.SpaceKey, &page.Title, &page.URL, &labels, &page.Version,
		&updatedAt, &page.UpdatedBy, &page.ParentID, &ancestors)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: reading page: %v", domain.ErrStore, err)
	}

	if err := json.Unmarshal([]byte(labels), &page.Labels); err != nil {
		return nil, fmt.Errorf("unmarshalling labels: %w", err)
	}
	if err := json.Unmarshal([]byte(ancestors), &page.Ancestors); err != nil {
		return nil, fmt.Errorf("unmarshalling ancestors: %w", err)
	}
	if page.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &page, nil
}

// ==================== Chunk Queries ====================

const chunkColumns = `c.chunk_id, c.page_id, c.content, c.original_content, c.context_path,
	c.chunk_type, c.token_count, c.position, c.text_spans, c.heading_context`

// GetChunks returns known chunks among ids, in the order of ids.
func (s *Store) GetChunks(ctx context.Context, ids []string) ([]domain.Chunk, error) {
	if len(ids) == 0 {
		return []domain.Chunk{}, nil
	}

	query := "SELECT " + chunkColumns + " FROM chunks c WHERE c.chunk_id IN (" + placeholders(len(ids)) + ")"
	rows, err := s.db.QueryContext(ctx, query, stringArgs(ids)...)
	if err != nil {
		return nil, fmt.Errorf("%w: querying chunks: %v", domain.ErrStore, err)
	}
	defer rows.Close()

	found, err := scanChunks(rows)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]domain.Chunk, len(found))
	for _, c := range found {
		byID[c.ID] = c
	}
	out := make([]domain.Chunk, 0, len(found))
	for _, id := range ids {
		if c, ok := byID[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

// GetPageChunks returns a page's chunks ordered by position.
func (s *Store) GetPageChunks(ctx context.Context, pageID string) ([]domain.Chunk, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+chunkColumns+" FROM chunks c WHERE c.page_id = ? ORDER BY c.position", pageID)
	if err != nil {
		return nil, fmt.Errorf("%w: querying page chunks: %v", domain.ErrStore, err)
	}
	defer rows.Close()

	return scanChunks(rows)
}

func scanChunks(rows *sql.Rows) ([]domain.Chunk, error) {
	out := []domain.Chunk{}
	for rows.Next() {
		var c domain.Chunk
		var contextPath, chunkType, spans string
		if err := rows.Scan(&c.ID, &c.PageID, &c.Content, &c.OriginalContent, &contextPath,
			&chunkType, &c.TokenCount, &c.Position, &spans, &c.HeadingContext); err != nil {
			return nil, fmt.Errorf("%w: scanning chunk: %v", domain.ErrStore, err)
		}
		c.Type = domain.ChunkType(chunkType)
		if err := json.Unmarshal([]byte(contextPath), &c.ContextPath); err != nil {
			return nil, fmt.Errorf("unmarshalling context path: %w", err)
		}
		if err := json.Unmarshal([]byte(spans), &c.Spans); err != nil {
			return nil, fmt.Errorf("unmarshalling spans: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ==================== Retrieval ====================

// QueryDense ranks embedded chunks by cosine similarity. Vectors are
// scanned in full; the filter narrows the scan to the requested spaces.
func (s *Store) QueryDense(ctx context.Context, vector []float32, limit int, spaces []string) ([]domain.ScoredChunk, error) {
	query := `
		SELECT e.chunk_id, e.vector FROM chunk_embeddings e
		JOIN chunks c ON c.chunk_id = e.chunk_id
		JOIN pages p ON p.page_id = c.page_id`
	var args []any
	if len(spaces) > 0 {
		query += " WHERE p.space_key IN (" + placeholders(len(spaces)) + ")"
		args = stringArgs(spaces)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: querying embeddings: %v", domain.ErrStore, err)
	}
	defer rows.Close()

	var scored []textindex.Scored
	for rows.Next() {
		var id string
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			return nil, fmt.Errorf("%w: scanning embedding: %v", domain.ErrStore, err)
		}
		scored = append(scored, textindex.Scored{
			ID:    id,
			Score: textindex.CosineSimilarity(vector, bytesToFloat32Slice(blob)),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating embeddings: %v", domain.ErrStore, err)
	}

	textindex.SortScored(scored)
	if limit > 0 && len(scored) > limit {
		scored = scored[:limit]
	}
	out := make([]domain.ScoredChunk, len(scored))
	for i, sc := range scored {
		out[i] = domain.ScoredChunk{ChunkID: sc.ID, Score: sc.Score}
	}
	return out, nil
}

// QuerySparse ranks chunks with the FTS5 bm25 function. bm25 is lower-is-better,
// so scores are negated before returning.
func (s *Store) QuerySparse(ctx context.Context, text string, limit int, spaces []string) ([]domain.ScoredChunk, error) {
	match := textindex.FTSQuery(text)
	if match == "" {
		return []domain.ScoredChunk{}, nil
	}

	query := `
		SELECT c.chunk_id, bm25(chunks_fts) AS rank FROM chunks_fts
		JOIN chunks c ON c.id = chunks_fts.rowid
		JOIN pages p ON p.page_id = c.page_id
		WHERE chunks_fts MATCH ?`
	args := []any{match}
	if len(spaces) > 0 {
		query += " AND p.space_key IN (" + placeholders(len(spaces)) + ")"
		args = append(args, stringArgs(spaces)...)
	}
	query += " ORDER BY rank, c.chunk_id"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		if strings.Contains(err.Error(), "no such table") {
			return []domain.ScoredChunk{}, nil
		}
		return nil, fmt.Errorf("%w: full-text query: %v", domain.ErrStore, err)
	}
	defer rows.Close()

	out := []domain.ScoredChunk{}
	for rows.Next() {
		var id string
		var rank float64
		if err := rows.Scan(&id, &rank); err != nil {
			return nil, fmt.Errorf("%w: scanning match: %v", domain.ErrStore, err)
		}
		out = append(out, domain.ScoredChunk{ChunkID: id, Score: -rank})
	}
	return out, rows.Err()
}

// ==================== Spaces and Stats ====================

// ListSpaces returns page and chunk counts per space, ordered by key.
func (s *Store) ListSpaces(ctx context.Context) ([]domain.SpaceStats, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.space_key, COUNT(DISTINCT p.page_id), COUNT(c.id)
		FROM pages p LEFT JOIN chunks c ON c.page_id = p.page_id
		GROUP BY p.space_key
		ORDER BY p.space_key
	`)
	if err != nil {
		return nil, fmt.Errorf("%w: listing spaces: %v", domain.ErrStore, err)
	}
	defer rows.Close()

	out := []domain.SpaceStats{}
	for rows.Next() {
		var st domain.SpaceStats
		if err := rows.Scan(&st.SpaceKey, &st.PageCount, &st.ChunkCount); err != nil {
			return nil, fmt.Errorf("%w: scanning space: %v", domain.ErrStore, err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// Stats summarises the index.
func (s *Store) Stats(ctx context.Context) (*domain.IndexStats, error) {
	var stats domain.IndexStats
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM pages),
			(SELECT COUNT(*) FROM chunks),
			(SELECT COUNT(*) FROM chunk_embeddings)
	`).Scan(&stats.TotalPages, &stats.TotalChunks, &stats.TotalEmbeddings)
	if err != nil {
		return nil, fmt.Errorf("%w: counting: %v", domain.ErrStore, err)
	}

	spaces, err := s.ListSpaces(ctx)
	if err != nil {
		return nil, err
	}
	stats.Spaces = spaces
	return &stats, nil
}

// ==================== Sync State ====================

// SaveSyncState records a space's sync bookkeeping.
func (s *Store) SaveSyncState(ctx context.Context, state domain.SpaceSyncState) error {
	var lastSync sql.NullString
	if state.LastSyncAt != nil {
		lastSync = sql.NullString{String: formatTime(*state.LastSyncAt), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO space_sync_state (space_key, last_sync_at, last_page_count,
			last_chunk_count, status, error_message)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(space_key) DO UPDATE SET
			last_sync_at = excluded.last_sync_at,
			last_page_count = excluded.last_page_count,
			last_chunk_count = excluded.last_chunk_count,
			status = excluded.status,
			error_message = excluded.error_message
	`, state.SpaceKey, lastSync, state.LastPageCount, state.LastChunkCount,
		string(state.Status), state.ErrorMessage)
	if err != nil {
		return fmt.Errorf("%w: saving sync state: %v", domain.ErrStore, err)
	}
	return nil
}

// GetSyncState returns a space's sync bookkeeping.
func (s *Store) GetSyncState(ctx context.Context, spaceKey string) (*domain.SpaceSyncState, error) {
	rows, err := s.db.QueryContext(ctx, syncStateQuery+" WHERE space_key = ?", spaceKey)
	if err != nil {
		return nil, fmt.Errorf("%w: reading sync state: %v", domain.ErrStore, err)
	}
	defer rows.Close()

	states, err := scanSyncStates(rows)
	if err != nil {
		return nil, err
	}
	if len(states) == 0 {
		return nil, domain.ErrNotFound
	}
	return &states[0], nil
}

// ListSyncStates returns bookkeeping for every synced space.
func (s *Store) ListSyncStates(ctx context.Context) ([]domain.SpaceSyncState, error) {
	rows, err := s.db.QueryContext(ctx, syncStateQuery+" ORDER BY space_key")
	if err != nil {
		return nil, fmt.Errorf("%w: listing sync states: %v", domain.ErrStore, err)
	}
	defer rows.Close()

	return scanSyncStates(rows)
}

const syncStateQuery = `SELECT space_key, last_sync_at, last_page_count, last_chunk_count,
	status, error_message FROM space_sync_state`

func scanSyncStates(rows *sql.Rows) ([]domain.SpaceSyncState, error) {
	out := []domain.SpaceSyncState{}
	for rows.Next() {
		var st domain.SpaceSyncState
		var lastSync sql.NullString
		var status string
		if err := rows.Scan(&st.SpaceKey, &lastSync, &st.LastPageCount, &st.LastChunkCount,
			&status, &st.ErrorMessage); err != nil {
			return nil, fmt.Errorf("%w: scanning sync state: %v", domain.ErrStore, err)
		}
		st.Status = domain.SyncStatus(status)
		if lastSync.Valid && lastSync.String != "" {
			t, err := parseTime(lastSync.String)
			if err != nil {
				return nil, err
			}
			st.LastSyncAt = &t
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// ==================== Helper Functions ====================

// float32SliceToBytes converts a []float32 to a byte slice for storage.
func float32SliceToBytes(floats []float32) []byte {
	if len(floats) == 0 {
		return nil
	}
	buf := make([]byte, len(floats)*4)
	for i, f := range floats {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// bytesToFloat32Slice converts a byte slice back to []float32.
func bytesToFloat32Slice(data []byte) []float32 {
	if len(data) == 0 {
		return nil
	}
	floats := make([]float32, len(data)/4)
	for i := range floats {
		floats[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return floats
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing time %q: %w", s, err)
	}
	return t, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func stringArgs(values []string) []any {
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	return args
}
