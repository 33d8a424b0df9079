package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"pkt.systems/mounttab/core"
	"pkt.systems/mounttab/internal/fstree"
	"pkt.systems/mounttab/internal/textdiff"
	"pkt.systems/mounttab/schema"
)

func newDiffCmd() *cobra.Command {
	var lines bool
	cmd := &cobra.Command{
		Use:   "diff FROM TO",
		Short: "Print the actions that turn FROM into TO",
		Long: "Print the actions that turn FROM into TO, one JSON action per line.\n" +
			"FROM and TO are JSON state files or workspace directories.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			from, err := loadWorkspace(args[0])
			if err != nil {
				return err
			}
			to, err := loadWorkspace(args[1])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if lines {
				return textdiff.Write(out, textdiff.Workspaces(from, to))
			}
			for _, action := range core.ActionsFromDiff(from, to) {
				data, err := json.Marshal(action)
				if err != nil {
					return err
				}
				if _, err := fmt.Fprintln(out, string(data)); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&lines, "lines", false, "print a line diff of the sorted url lists instead")
	return cmd
}

// loadWorkspace reads a state file, or the open tabs of a workspace directory.
func loadWorkspace(path string) (schema.Workspace, error) {
	info, err := os.Stat(path)
	if err != nil {
		return schema.Workspace{}, err
	}
	if !info.IsDir() {
		return readStateFile(path)
	}
	tree, err := fstree.Open(path)
	if err != nil {
		return schema.Workspace{}, err
	}
	set, err := tree.Read()
	if err != nil {
		return schema.Workspace{}, err
	}
	return set.Projection(), nil
}
