package exporter

import (
	"fmt"
	"io"
	"slices"
	"text/tabwriter"
	"time"

	"contentvault/pkg/core"
	"contentvault/pkg/types"
)

// PrintCommit 以类似 git log 的格式输出
func PrintCommit(c *core.Commit, w io.Writer) {
	fmt.Fprintf(w, "commit %s\n", c.ID)
	for _, p := range c.Parents {
		fmt.Fprintf(w, "Parent:  %s\n", p)
	}
	fmt.Fprintf(w, "Owner:   %s\n", c.Owner)
	fmt.Fprintf(w, "Date:    %s\n", time.Unix(0, c.Timestamp).Format(time.RFC3339))
	fmt.Fprintf(w, "Tree:    %s\n", c.RootHash)
	fmt.Fprintf(w, "\n    %s\n\n", c.Message)

	if len(c.Changes) == 0 {
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
	for _, ch := range c.Changes {
		fmt.Fprintf(tw, "    %s\t%s\n", ch.Type, ch.Path)
	}
	tw.Flush()
	fmt.Fprintln(w)
}

// PrintTree 像 git ls-tree 一样对齐输出
func PrintTree(t *core.Tree, w io.Writer) {
	tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
	for _, n := range t.DirectoryNodes {
		fmt.Fprintf(tw, "tree\t%s\t%s/\n", short(n.Hash), n.Name)
	}
	for _, n := range t.FileNodes {
		size := "-"
		if id, err := types.ParseIdentifier(n.Hash); err == nil {
			size = fmtSize(id.Size())
		}
		fmt.Fprintf(tw, "blob\t%s\t%s\t%s\n", short(n.Hash), size, n.Name)
	}
	tw.Flush()
}

func short(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}

func fmtSize(s uint64) string {
	switch {
	case s < 1024:
		return fmt.Sprintf("%dB", s)
	case s < 1024*1024:
		return fmt.Sprintf("%.1fKB", float64(s)/1024)
	default:
		return fmt.Sprintf("%.2fMB", float64(s)/1024/1024)
	}
}

func sortPaths(paths []types.CanonicalPath) {
	slices.Sort(paths)
}
