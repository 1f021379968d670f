package mcp

import (
	"context"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/DanielTromp/atlas/internal/core/domain"
)

// ErrSyncUnavailable is returned by the sync tool when no engine is wired.
var ErrSyncUnavailable = errors.New("mcp: sync is not available")

// SearchInput is the input schema for the search tool.
type SearchInput struct {
	Query            string   `json:"query" jsonschema:"the question or keywords to search the wiki for"`
	TopK             int      `json:"top_k,omitempty" jsonschema:"maximum number of results to return (default 10)"`
	Spaces           []string `json:"spaces,omitempty" jsonschema:"restrict results to these Confluence space keys"`
	IncludeCitations *bool    `json:"include_citations,omitempty" jsonschema:"attach exact quotes to each result (default true)"`
}

// SearchOutput is the output schema for the search tool.
type SearchOutput struct {
	Results []SearchResultOutput `json:"results"`
	Count   int                  `json:"count"`
	Cached  bool                 `json:"cached"`
}

// SearchResultOutput represents a single search result.
type SearchResultOutput struct {
	ChunkID    string           `json:"chunk_id"`
	PageID     string           `json:"page_id"`
	Title      string           `json:"title"`
	URL        string           `json:"url"`
	SpaceKey   string           `json:"space_key"`
	Breadcrumb string           `json:"breadcrumb,omitempty"`
	Score      float64          `json:"score"`
	Content    string           `json:"content"`
	Citations  []CitationOutput `json:"citations,omitempty"`
}

// CitationOutput is an attributable quote.
type CitationOutput struct {
	Quote      string  `json:"quote"`
	Section    string  `json:"section,omitempty"`
	Confidence float64 `json:"confidence"`
}

// SyncInput is the input schema for the sync tool.
type SyncInput struct {
	Spaces []string `json:"spaces,omitempty" jsonschema:"space keys to sync (default: configured spaces)"`
	Full   bool     `json:"full,omitempty" jsonschema:"reprocess every page instead of only changed ones"`
}

// SyncOutput is the output schema for the sync tool.
type SyncOutput struct {
	Started bool   `json:"started"`
	Mode    string `json:"mode"`
}

// ListSpacesInput is the (empty) input schema for the list_spaces tool.
type ListSpacesInput struct{}

// ListSpacesOutput is the output schema for the list_spaces tool.
type ListSpacesOutput struct {
	Spaces []SpaceOutput `json:"spaces"`
}

// SpaceOutput holds per-space counts.
type SpaceOutput struct {
	SpaceKey   string `json:"space_key"`
	PageCount  int    `json:"page_count"`
	ChunkCount int    `json:"chunk_count"`
}

// GetPageInput is the input schema for the get_page tool.
type GetPageInput struct {
	PageID string `json:"page_id" jsonschema:"the Confluence page id"`
}

// GetPageOutput is the output schema for the get_page tool.
type GetPageOutput struct {
	PageID   string   `json:"page_id"`
	Title    string   `json:"title"`
	URL      string   `json:"url"`
	SpaceKey string   `json:"space_key"`
	Version  int      `json:"version"`
	Labels   []string `json:"labels,omitempty"`
	Chunks   []string `json:"chunks"`
}

// registerTools registers all tool handlers with the MCP server.
func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "search",
		Description: "Search the indexed Confluence pages with hybrid keyword and semantic ranking",
	}, s.handleSearch)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "sync",
		Description: "Start a background sync of Confluence spaces into the index",
	}, s.handleSync)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "list_spaces",
		Description: "List indexed Confluence spaces with page and chunk counts",
	}, s.handleListSpaces)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "get_page",
		Description: "Get an indexed page and its chunks by page id",
	}, s.handleGetPage)
}

// handleSearch handles the search tool invocation.
func (s *Server) handleSearch(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input SearchInput,
) (*mcp.CallToolResult, SearchOutput, error) {
	opts := s.ports.SearchDefaults
	if input.TopK > 0 {
		opts.TopK = input.TopK
	}
	if len(input.Spaces) > 0 {
		opts.SpaceKeys = input.Spaces
	}
	if input.IncludeCitations != nil {
		opts.IncludeCitations = *input.IncludeCitations
	}

	resp, err := s.ports.Search.Search(ctx, input.Query, opts)
	if err != nil {
		return nil, SearchOutput{}, err
	}

	output := SearchOutput{
		Results: make([]SearchResultOutput, len(resp.Results)),
		Count:   len(resp.Results),
		Cached:  resp.Cached,
	}

	for i := range resp.Results {
		r := &resp.Results[i]
		out := SearchResultOutput{
			ChunkID:    r.ChunkID,
			PageID:     r.Page.ID,
			Title:      r.Page.Title,
			URL:        r.Page.URL,
			SpaceKey:   r.Page.SpaceKey,
			Breadcrumb: r.Breadcrumb(),
			Score:      r.RelevanceScore,
			Content:    r.Content,
		}
		for _, c := range r.Citations {
			out.Citations = append(out.Citations, CitationOutput{
				Quote:      c.Quote,
				Section:    c.Section,
				Confidence: c.ConfidenceScore,
			})
		}
		output.Results[i] = out
	}

	return nil, output, nil
}

// handleSync starts a detached sync.
func (s *Server) handleSync(
	_ context.Context,
	_ *mcp.CallToolRequest,
	input SyncInput,
) (*mcp.CallToolResult, SyncOutput, error) {
	if s.ports.Sync == nil {
		return nil, SyncOutput{}, ErrSyncUnavailable
	}
	if err := s.ports.Sync.Start(input.Spaces, input.Full); err != nil {
		return nil, SyncOutput{}, err
	}

	mode := domain.SyncModeIncremental
	if input.Full {
		mode = domain.SyncModeFull
	}
	return nil, SyncOutput{Started: true, Mode: string(mode)}, nil
}

// handleListSpaces lists indexed spaces.
func (s *Server) handleListSpaces(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	_ ListSpacesInput,
) (*mcp.CallToolResult, ListSpacesOutput, error) {
	spaces, err := s.ports.Index.ListSpaces(ctx)
	if err != nil {
		return nil, ListSpacesOutput{}, err
	}

	output := ListSpacesOutput{Spaces: make([]SpaceOutput, len(spaces))}
	for i, sp := range spaces {
		output.Spaces[i] = SpaceOutput{SpaceKey: sp.SpaceKey, PageCount: sp.PageCount, ChunkCount: sp.ChunkCount}
	}
	return nil, output, nil
}

// handleGetPage returns a page with its chunk texts in order.
func (s *Server) handleGetPage(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input GetPageInput,
) (*mcp.CallToolResult, GetPageOutput, error) {
	if input.PageID == "" {
		return nil, GetPageOutput{}, fmt.Errorf("%w: page_id is required", domain.ErrInvalidInput)
	}

	page, chunks, err := s.ports.Index.GetPage(ctx, input.PageID)
	if err != nil {
		return nil, GetPageOutput{}, err
	}

	output := GetPageOutput{
		PageID:   page.ID,
		Title:    page.Title,
		URL:      page.URL,
		SpaceKey: page.SpaceKey,
		Version:  page.Version,
		Labels:   page.Labels,
		Chunks:   make([]string, len(chunks)),
	}
	for i, c := range chunks {
		output.Chunks[i] = c.Content
	}
	return nil, output, nil
}
