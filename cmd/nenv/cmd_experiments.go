package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nvandessel/nenv/internal/experiment"
)

func newExperimentsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "experiments",
		Short: "List the registered stimulus protocols",
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			all := experiment.All()

			if jsonOut {
				type jsonEntry struct {
					Name        string            `json:"name"`
					Description string            `json:"description"`
					Defaults    experiment.Params `json:"defaults"`
				}
				entries := make([]jsonEntry, 0, len(all))
				for _, exp := range all {
					entries = append(entries, jsonEntry{exp.Name, exp.Description, exp.Defaults})
				}
				return writeJSON(cmd, map[string]any{
					"experiments": entries,
					"count":       len(entries),
				})
			}

			w := cmd.OutOrStdout()
			for _, exp := range all {
				target := "none"
				if exp.Defaults.Target >= 0 {
					target = fmt.Sprint(exp.Defaults.Target)
				}
				fmt.Fprintf(w, "%-15s %s\n", exp.Name, exp.Description)
				fmt.Fprintf(w, "%-15s steps=%d target=%s amplitude=%.1f\n", "", exp.Defaults.Steps, target, exp.Defaults.Amplitude)
			}
			return nil
		},
	}
}
