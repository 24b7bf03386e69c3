package commands

import (
	"errors"
	"fmt"
	"time"

	"contentvault/pkg/workspace"

	"github.com/spf13/cobra"
)

var commitMsg string

var commitCmd = &cobra.Command{
	Use:   "commit",
	Short: "Record changes to the repository",
	Long:  `Upload tracked changes, rebuild the tree and move the current branch. Pending merges become additional parents.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if commitMsg == "" {
			return fmt.Errorf("commit message cannot be empty (use -m)")
		}
		start := time.Now()
		c, err := WS.Commit(cmd.Context(), commitMsg)
		if errors.Is(err, workspace.ErrNothingToCommit) {
			fmt.Println(err)
			return nil
		}
		if err != nil {
			return err
		}
		fmt.Printf("[%s] %s\n", short(c.ID.String()), c.Message)
		fmt.Printf("   %d change(s) | %s\n", len(c.Changes), time.Since(start).Round(time.Millisecond))
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the workspace status",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := WS.Status(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("On branch %s at %s\n", st.Branch, short(st.Commit.String()))
		if st.Behind {
			fmt.Println("Branch has new commits, run 'cv sync'")
		}
		for _, m := range st.PendingMerges {
			fmt.Printf("Merging %s (%s)\n", m.Branch, short(m.Head))
		}
		if len(st.PendingResolves) > 0 {
			fmt.Println("\nUnresolved conflicts:")
			for _, r := range st.PendingResolves {
				fmt.Printf("    both modified: %s\n", r.Path)
			}
		}
		if len(st.Changes) == 0 {
			fmt.Println("nothing to commit, working tree clean")
			return nil
		}
		fmt.Println("\nChanges to be committed:")
		for _, e := range st.Changes {
			fmt.Printf("    %-7s %s\n", e.Type, e.Path)
		}
		return nil
	},
}

func init() {
	commitCmd.Flags().StringVarP(&commitMsg, "message", "m", "", "commit message")
	rootCmd.AddCommand(commitCmd, statusCmd)
}
