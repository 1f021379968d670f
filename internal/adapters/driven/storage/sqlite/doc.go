// Package sqlite provides the embedded driven.IndexStore backend.
//
// This adapter uses modernc.org/sqlite, a pure Go SQLite implementation that requires
// no CGO, enabling easy cross-compilation. One database file holds:
//
//   - pages: Page metadata and the stored version
//   - chunks: Chunk text, spans and breadcrumb
//   - chunk_embeddings: Little-endian float32 vectors
//   - chunks_fts: FTS5 index over chunk content, kept in sync by triggers
//   - space_sync_state: Per-space sync bookkeeping
//
// # Schema
//
// The schema is managed through versioned NNN_name.up.sql migrations embedded
// from the migrations/ directory and recorded in schema_migrations.
//
// # Atomicity
//
// A page replace runs in one transaction. In WAL mode readers keep their
// snapshot until the commit, so they see the old or the new chunk set.
//
// # Data Location
//
// By default, the database is stored at ~/.atlas/data/index.db
package sqlite
