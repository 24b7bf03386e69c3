package commands

import (
	"os"

	"contentvault/pkg/exporter"

	"github.com/spf13/cobra"
)

var logDepth int

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "Show commit logs of the current branch",
	RunE: func(cmd *cobra.Command, args []string) error {
		commits, err := WS.Log(cmd.Context(), logDepth)
		if err != nil {
			return err
		}
		for _, c := range commits {
			exporter.PrintCommit(c, os.Stdout)
		}
		return nil
	},
}

var catCmd = &cobra.Command{
	Use:   "cat <path>",
	Short: "Print the committed content of a file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return WS.Cat(cmd.Context(), args[0], os.Stdout)
	},
}

var lsCmd = &cobra.Command{
	Use:   "ls [dir]",
	Short: "List a committed directory",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := "."
		if len(args) > 0 {
			dir = args[0]
		}
		tree, err := WS.Tree(cmd.Context(), dir)
		if err != nil {
			return err
		}
		exporter.PrintTree(tree, os.Stdout)
		return nil
	},
}

func init() {
	logCmd.Flags().IntVarP(&logDepth, "max-count", "n", 0, "limit the number of commits (0 = all)")
	rootCmd.AddCommand(logCmd, catCmd, lsCmd)
}
