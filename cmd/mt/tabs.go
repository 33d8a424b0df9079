package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"pkt.systems/mounttab/internal/appconfig"
	"pkt.systems/mounttab/internal/persist"
	"pkt.systems/mounttab/schema"
)

func newTabsCmd() *cobra.Command {
	var cfgPath string
	var stateFile string
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "tabs",
		Short: "Print the persisted workspace",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := stateFile
			if path == "" {
				cfg, err := appconfig.Load(cfgPath)
				if err != nil {
					return err
				}
				path = cfg.StateFile
			}
			ws, err := readStateFile(path)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(ws)
			}
			for _, url := range ws.Tabs {
				if _, err := fmt.Fprintln(out, url); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "path to config file")
	cmd.Flags().StringVar(&stateFile, "state-file", "", "JSON state file (overrides the config)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the state document")
	return cmd
}

// readStateFile reads a state file without creating it. A missing file is an
// empty workspace.
func readStateFile(path string) (schema.Workspace, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return schema.NewWorkspace(), nil
		}
		return schema.Workspace{}, err
	}
	ws, err := persist.Decode(data)
	if err != nil {
		return schema.Workspace{}, fmt.Errorf("%s: %w", path, err)
	}
	return ws, nil
}
