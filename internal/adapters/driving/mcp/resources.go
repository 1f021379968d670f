package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/DanielTromp/atlas/internal/core/domain"
)

const (
	// uriScheme is the custom URI scheme for Atlas resources.
	uriScheme = "atlas://"
)

// registerResources registers all resource handlers with the MCP server.
func (s *Server) registerResources() {
	// Static resource for listing spaces.
	s.server.AddResource(&mcp.Resource{
		URI:         uriScheme + "spaces",
		Name:        "spaces",
		Description: "Indexed Confluence spaces with page and chunk counts",
		MIMEType:    "application/json",
	}, s.handleSpacesResource)

	// Template for page text.
	s.server.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: uriScheme + "pages/{pageId}",
		Name:        "page-content",
		Description: "Indexed text of a Confluence page",
		MIMEType:    "text/plain",
	}, s.handlePageResource)
}

// handleSpacesResource returns the indexed spaces.
func (s *Server) handleSpacesResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	spaces, err := s.ports.Index.ListSpaces(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing spaces: %w", err)
	}

	type spaceInfo struct {
		Key    string `json:"key"`
		Pages  int    `json:"pages"`
		Chunks int    `json:"chunks"`
	}

	infos := make([]spaceInfo, len(spaces))
	for i, sp := range spaces {
		infos[i] = spaceInfo{Key: sp.SpaceKey, Pages: sp.PageCount, Chunks: sp.ChunkCount}
	}

	data, err := json.MarshalIndent(infos, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshalling spaces: %w", err)
	}

	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		}},
	}, nil
}

// handlePageResource returns the page title followed by its chunks.
func (s *Server) handlePageResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	// Extract pageId from URI: atlas://pages/{pageId}
	pageID := extractPageID(req.Params.URI)
	if pageID == "" {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	page, chunks, err := s.ports.Index.GetPage(ctx, pageID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}
	if err != nil {
		return nil, fmt.Errorf("getting page: %w", err)
	}

	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      req.Params.URI,
			MIMEType: "text/plain",
			Text:     renderPage(page, chunks),
		}},
	}, nil
}

// renderPage lays a page out as plain text.
func renderPage(page *domain.Page, chunks []domain.Chunk) string {
	var b strings.Builder
	b.WriteString(page.Title)
	b.WriteString("\n")
	if page.URL != "" {
		b.WriteString(page.URL)
		b.WriteString("\n")
	}
	for _, c := range chunks {
		b.WriteString("\n")
		b.WriteString(c.Content)
		b.WriteString("\n")
	}
	return b.String()
}

// extractPageID extracts the page ID from a URI like atlas://pages/{pageId}.
func extractPageID(uri string) string {
	const prefix = uriScheme + "pages/"

	if !strings.HasPrefix(uri, prefix) {
		return ""
	}

	id := strings.TrimPrefix(uri, prefix)
	if strings.Contains(id, "/") {
		return ""
	}
	return id
}
