package commands

import (
	"errors"
	"fmt"

	"contentvault/pkg/merge"

	"github.com/spf13/cobra"
)

var branchCmd = &cobra.Command{
	Use:   "branch [name]",
	Short: "List branches, or create one from the current branch",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if len(args) == 1 {
			b, err := WS.CreateBranch(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Printf("Created branch %s at %s\n", b.Name, short(b.Head.String()))
			return nil
		}

		st, err := WS.Status(ctx)
		if err != nil {
			return err
		}
		branches, err := WS.Branches(ctx)
		if err != nil {
			return err
		}
		for _, b := range branches {
			mark := " "
			if b.Name == st.Branch {
				mark = "*"
			}
			fmt.Printf("%s %-20s %s\n", mark, b.Name, short(b.Head.String()))
		}
		return nil
	},
}

var switchCmd = &cobra.Command{
	Use:   "switch <branch>",
	Short: "Switch the workspace to another branch",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := WS.SwitchBranch(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Println("Switched to branch", args[0])
		return nil
	},
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Update the workspace to the latest commit of its branch",
	RunE: func(cmd *cobra.Command, args []string) error {
		head, err := WS.Sync(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Println("Synced to", short(head.String()))
		return nil
	},
}

var mergeAbort bool

var mergeCmd = &cobra.Command{
	Use:   "merge <branch>",
	Short: "Merge another branch into the current one",
	Long:  `Fast-forwards when possible. Otherwise incoming changes are applied to the workspace, conflicting paths are left untouched for 'cv resolve', and the merge is completed by the next commit.`,
	Args: func(cmd *cobra.Command, args []string) error {
		if mergeAbort {
			return cobra.NoArgs(cmd, args)
		}
		return cobra.ExactArgs(1)(cmd, args)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if mergeAbort {
			return WS.AbortMerge(ctx)
		}

		res, err := WS.Merge(ctx, args[0])
		var incomplete *merge.IncompleteError
		if err != nil && (res == nil || !errors.As(err, &incomplete)) {
			return err
		}
		switch {
		case res.UpToDate:
			fmt.Println("Already up to date.")
		case res.FastForward:
			fmt.Printf("Fast-forward to %s\n", short(res.Head.String()))
		default:
			for _, a := range res.Applied {
				fmt.Printf("    %-7s %s\n", a.Change.Type, a.Change.Path)
			}
			for _, c := range res.Conflicts {
				fmt.Printf("    CONFLICT %s\n", c.Path)
			}
			if incomplete != nil {
				fmt.Println("Fix conflicts, run 'cv resolve <path>' and then commit.")
				return err
			}
			fmt.Println("Merge staged, commit to complete it.")
		}
		return nil
	},
}

var resolveCmd = &cobra.Command{
	Use:   "resolve <path>...",
	Short: "Mark conflicting paths as resolved using their current content",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, p := range args {
			if err := WS.Resolve(cmd.Context(), p); err != nil {
				return err
			}
		}
		return nil
	},
}

func init() {
	mergeCmd.Flags().BoolVar(&mergeAbort, "abort", false, "abort the merge in progress")
	rootCmd.AddCommand(branchCmd, switchCmd, syncCmd, mergeCmd, resolveCmd)
}
