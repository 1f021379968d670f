// Package mcp provides an MCP (Model Context Protocol) server adapter for Atlas.
// It lets assistants search the indexed wiki, read pages and trigger syncs.
package mcp

import "errors"

// Errors returned by NewServer.
var (
	// ErrMissingSearchService is returned when the search service is not provided.
	ErrMissingSearchService = errors.New("mcp: search service is required")

	// ErrMissingIndexService is returned when the index service is not provided.
	ErrMissingIndexService = errors.New("mcp: index service is required")
)
