package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var addCmd = &cobra.Command{
	Use:   "add <path>...",
	Short: "Track new or changed files",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		added, err := WS.AddFiles(cmd.Context(), args...)
		if err != nil {
			return err
		}
		for _, p := range added {
			fmt.Println("tracked", p)
		}
		return nil
	},
}

var editCmd = &cobra.Command{
	Use:   "edit <path>...",
	Short: "Make committed files writable and track them as edited",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return WS.EditFiles(cmd.Context(), args...)
	},
}

var rmCmd = &cobra.Command{
	Use:   "rm <path>...",
	Short: "Remove files from the workspace and the next commit",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return WS.DeleteFiles(cmd.Context(), args...)
	},
}

var revertCmd = &cobra.Command{
	Use:   "revert <path>...",
	Short: "Discard local changes to files",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return WS.RevertFiles(cmd.Context(), args...)
	},
}

var lockCmd = &cobra.Command{
	Use:   "lock [path]...",
	Short: "Lock files so other workspaces cannot edit them, or list locks",
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) > 0 {
			return WS.Lock(cmd.Context(), args...)
		}
		locks, err := WS.Locks(cmd.Context())
		if err != nil {
			return err
		}
		for _, l := range locks {
			fmt.Printf("%s\t%s\n", l.Path, l.Owner)
		}
		return nil
	},
}

var unlockCmd = &cobra.Command{
	Use:   "unlock <path>...",
	Short: "Release file locks held by this workspace",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return WS.Unlock(cmd.Context(), args...)
	},
}

func init() {
	rootCmd.AddCommand(addCmd, editCmd, rmCmd, revertCmd, lockCmd, unlockCmd)
}
