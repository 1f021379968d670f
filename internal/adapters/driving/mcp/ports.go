package mcp

import (
	"github.com/DanielTromp/atlas/internal/core/domain"
	"github.com/DanielTromp/atlas/internal/core/ports/driving"
)

// Ports aggregates all driving port interfaces required by the MCP server.
// This provides a single injection point for dependency injection.
type Ports struct {
	// Search provides hybrid search.
	Search driving.SearchService

	// Index exposes spaces and pages.
	Index driving.IndexService

	// Sync triggers background syncs. Optional; without it the sync tool
	// reports that syncing is unavailable.
	Sync driving.SyncEngine

	// SearchDefaults fill in tool arguments the caller omits.
	SearchDefaults domain.SearchOptions
}

// Validate ensures all required ports are set.
// Returns an error if any required port is nil.
func (p *Ports) Validate() error {
	if p.Search == nil {
		return ErrMissingSearchService
	}
	if p.Index == nil {
		return ErrMissingIndexService
	}
	return nil
}
