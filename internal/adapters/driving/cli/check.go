package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check connectivity to Confluence, the embedding provider and the index",
	Long: `Contacts every configured dependency once and reports which are reachable.
Exits with an error when any check fails.`,
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, _ []string) error {
	if len(checks) == 0 {
		cmd.Println("Nothing configured to check.")
		return nil
	}

	ctx := commandContext(cmd)
	failed := 0
	for _, c := range checks {
		if err := c.Run(ctx); err != nil {
			failed++
			cmd.Printf("  %-12s FAIL  %v\n", c.Name, err)
			continue
		}
		cmd.Printf("  %-12s ok\n", c.Name)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d checks failed", failed, len(checks))
	}
	return nil
}
