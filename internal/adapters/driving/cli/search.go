package cli

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/DanielTromp/atlas/internal/core/domain"
)

var (
	searchTopK        int
	searchSpaces      []string
	searchNoCitations bool
	searchNoCache     bool
	searchMinScore    float64
	searchJSON        bool
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search indexed Confluence pages",
	Long: `Performs hybrid search across the indexed spaces.
Combines keyword (BM25) and semantic (vector) rankings with reciprocal rank
fusion and attaches citations quoting the passages that match.`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().IntVarP(&searchTopK, "top-k", "n", 0, "maximum number of results (0 = configured default)")
	searchCmd.Flags().StringSliceVarP(&searchSpaces, "spaces", "s", nil, "restrict to these space keys")
	searchCmd.Flags().BoolVar(&searchNoCitations, "no-citations", false, "skip citation extraction")
	searchCmd.Flags().BoolVar(&searchNoCache, "no-cache", false, "bypass the result cache")
	searchCmd.Flags().Float64Var(&searchMinScore, "min-score", -1, "minimum fused score (-1 = configured default)")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "output results as JSON")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	if searchService == nil {
		return errSearchUnavailable
	}

	opts := searchDefaults
	if searchTopK > 0 {
		opts.TopK = searchTopK
	}
	if searchMinScore >= 0 {
		opts.MinRelevanceScore = searchMinScore
	}
	opts.SpaceKeys = searchSpaces
	opts.IncludeCitations = !searchNoCitations
	if searchNoCache {
		opts.UseCache = false
	}

	resp, err := searchService.Search(commandContext(cmd), args[0], opts)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if searchJSON {
		return outputSearchJSON(cmd, resp)
	}
	outputSearchText(cmd, resp)
	return nil
}

type searchResultJSON struct {
	ChunkID   string         `json:"chunk_id"`
	Score     float64        `json:"score"`
	Title     string         `json:"title"`
	URL       string         `json:"url"`
	Space     string         `json:"space"`
	Path      []string       `json:"path"`
	Content   string         `json:"content"`
	Citations []citationJSON `json:"citations,omitempty"`
}

type citationJSON struct {
	Quote      string  `json:"quote"`
	Section    string  `json:"section,omitempty"`
	URL        string  `json:"url"`
	Confidence float64 `json:"confidence"`
}

func outputSearchJSON(cmd *cobra.Command, resp *domain.SearchResponse) error {
	out := struct {
		Query   string             `json:"query"`
		Total   int                `json:"total"`
		Cached  bool               `json:"cached"`
		TookMS  int64              `json:"took_ms"`
		Results []searchResultJSON `json:"results"`
	}{
		Query:   resp.Query,
		Total:   resp.TotalResults,
		Cached:  resp.Cached,
		TookMS:  resp.SearchTime.Milliseconds(),
		Results: make([]searchResultJSON, 0, len(resp.Results)),
	}
	for i := range resp.Results {
		r := &resp.Results[i]
		res := searchResultJSON{
			ChunkID: r.ChunkID,
			Score:   r.RelevanceScore,
			Title:   r.Page.Title,
			URL:     r.Page.URL,
			Space:   r.Page.SpaceKey,
			Path:    r.ContextPath,
			Content: r.Content,
		}
		for _, c := range r.Citations {
			res.Citations = append(res.Citations, citationJSON{
				Quote:      c.Quote,
				Section:    c.Section,
				URL:        c.PageURL,
				Confidence: c.ConfidenceScore,
			})
		}
		out.Results = append(out.Results, res)
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}

func outputSearchText(cmd *cobra.Command, resp *domain.SearchResponse) {
	if len(resp.Results) == 0 {
		cmd.Println("No results found.")
		return
	}

	cmd.Println("Results:")
	cmd.Println()
	for i := range resp.Results {
		r := &resp.Results[i]
		title := r.Page.Title
		if title == "" {
			title = r.Page.ID
		}

		cmd.Printf("  [%d] %s (%.4f)\n", i+1, title, r.RelevanceScore)
		if len(r.ContextPath) > 0 {
			cmd.Printf("      %s\n", strings.Join(r.ContextPath, " > "))
		}
		if r.Page.URL != "" {
			cmd.Printf("      %s\n", r.Page.URL)
		}
		for _, c := range r.Citations {
			cmd.Printf("      > %s\n", c.Quote)
		}
		cmd.Println()
	}

	suffix := ""
	if resp.Cached {
		suffix = ", cached"
	}
	cmd.Printf("%d result(s) in %s%s\n", len(resp.Results), resp.SearchTime.Round(time.Microsecond), suffix)
}
