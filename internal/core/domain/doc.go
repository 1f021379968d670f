// Package domain defines the core business entities for Atlas.
//
// This package is part of the hexagonal architecture's innermost layer.
// It has NO external dependencies and defines the fundamental types:
//
//   - Page: A Confluence page with its version and breadcrumb
//   - Chunk: A typed, positioned unit of a page's content
//   - ChunkEmbedding: The dense vector for a chunk
//   - SearchResult and Citation: Read models assembled per query
//   - SyncStats and SpaceSyncState: Sync bookkeeping
//
// # Architectural Position
//
// Domain is at the centre of the hexagon. It may only import
// the Go standard library. All other packages depend on domain,
// never the reverse.
//
// # Import Rules
//
//   - Can Import: Standard library only
//   - Cannot Import: Any internal/ package, any external dependency
package domain
