package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var initBranch string

var initCmd = &cobra.Command{
	Use:   "init [dir]",
	Short: "Initialize a workspace",
	Long:  `Create a workspace in the given directory (default: current) and check out a branch. The branch is created with an empty root commit if the repository does not have it yet.`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := "."
		if len(args) > 0 {
			dir = args[0]
		}
		w, err := CV.InitWorkspace(cmd.Context(), dir, initBranch)
		if err != nil {
			return err
		}
		defer w.Close()

		st, err := w.Status(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("Initialized workspace %s in %s (branch %s at %s)\n", w.Spec().ID, w.Root(), st.Branch, short(st.Commit.String()))
		return nil
	},
}

func init() {
	initCmd.Flags().StringVarP(&initBranch, "branch", "b", "", "branch to check out (default main)")
	rootCmd.AddCommand(initCmd)
}

func short(s string) string {
	if len(s) > 8 {
		return s[:8]
	}
	return s
}
