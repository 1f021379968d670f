package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show index statistics",
	Long:  `Shows page, chunk and embedding counts together with the sync state of each space.`,
	RunE:  runStats,
}

var spacesCmd = &cobra.Command{
	Use:   "spaces",
	Short: "List indexed spaces",
	RunE:  runSpaces,
}

var pageCmd = &cobra.Command{
	Use:   "page [page-id]",
	Short: "Show an indexed page and its chunks",
	Args:  cobra.ExactArgs(1),
	RunE:  runPage,
}

func init() {
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(spacesCmd)
	rootCmd.AddCommand(pageCmd)
}

func runStats(cmd *cobra.Command, _ []string) error {
	if indexService == nil {
		return errIndexUnavailable
	}

	report, err := indexService.Stats(commandContext(cmd))
	if err != nil {
		return fmt.Errorf("failed to get stats: %w", err)
	}

	cmd.Println("Index")
	cmd.Println("=====")
	cmd.Printf("  Pages:      %d\n", report.Index.TotalPages)
	cmd.Printf("  Chunks:     %d\n", report.Index.TotalChunks)
	cmd.Printf("  Embeddings: %d\n", report.Index.TotalEmbeddings)

	if len(report.SyncStates) > 0 {
		cmd.Println()
		cmd.Println("Sync state")
		cmd.Println("==========")
		for _, st := range report.SyncStates {
			last := "never"
			if st.LastSyncAt != nil {
				last = st.LastSyncAt.Format(time.RFC3339)
			}
			cmd.Printf("  %-12s %-10s last sync %s (%d pages, %d chunks)\n",
				st.SpaceKey, st.Status, last, st.LastPageCount, st.LastChunkCount)
			if st.ErrorMessage != "" {
				cmd.Printf("               error: %s\n", st.ErrorMessage)
			}
		}
	}

	if len(report.ActiveSyncs) > 0 {
		cmd.Println()
		cmd.Println("Running")
		cmd.Println("=======")
		for _, p := range report.ActiveSyncs {
			cmd.Printf("  %-12s %s since %s: %d processed, %d skipped, %d failed\n",
				p.SpaceKey, p.Mode, p.StartedAt.Format(time.RFC3339),
				p.PagesProcessed, p.PagesSkipped, p.PagesFailed)
		}
	}
	return nil
}

func runSpaces(cmd *cobra.Command, _ []string) error {
	if indexService == nil {
		return errIndexUnavailable
	}

	spaces, err := indexService.ListSpaces(commandContext(cmd))
	if err != nil {
		return fmt.Errorf("failed to list spaces: %w", err)
	}
	if len(spaces) == 0 {
		cmd.Println("No spaces indexed. Run 'atlas sync' first.")
		return nil
	}

	cmd.Printf("%-12s %8s %8s\n", "SPACE", "PAGES", "CHUNKS")
	for _, sp := range spaces {
		cmd.Printf("%-12s %8d %8d\n", sp.SpaceKey, sp.PageCount, sp.ChunkCount)
	}
	return nil
}

func runPage(cmd *cobra.Command, args []string) error {
	if indexService == nil {
		return errIndexUnavailable
	}

	page, chunks, err := indexService.GetPage(commandContext(cmd), args[0])
	if err != nil {
		return fmt.Errorf("failed to get page: %w", err)
	}

	cmd.Printf("%s (v%d)\n", page.Title, page.Version)
	cmd.Printf("  ID:      %s\n", page.ID)
	cmd.Printf("  Space:   %s\n", page.SpaceKey)
	if page.URL != "" {
		cmd.Printf("  URL:     %s\n", page.URL)
	}
	if !page.UpdatedAt.IsZero() {
		cmd.Printf("  Updated: %s by %s\n", page.UpdatedAt.Format(time.RFC3339), page.UpdatedBy)
	}
	if len(page.Labels) > 0 {
		cmd.Printf("  Labels:  %s\n", strings.Join(page.Labels, ", "))
	}
	cmd.Println()

	for _, c := range chunks {
		cmd.Printf("--- chunk %d (%s) ---\n", c.Position, c.Type)
		cmd.Println(c.Content)
	}
	return nil
}
