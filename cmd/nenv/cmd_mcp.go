package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/nvandessel/nenv/internal/config"
	"github.com/nvandessel/nenv/internal/mcp"
)

func newMCPServerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp-server",
		Short: "Serve nenv tools over the Model Context Protocol (stdio)",
		Long: `Start an MCP server on stdin/stdout exposing experiment runs and
run history as tools:

  nenv_list_experiments  registered stimulus protocols
  nenv_run_experiment    run a protocol and record it
  nenv_list_runs         recorded runs, newest first
  nenv_get_steps         a run's per-step time series
  nenv_get_weights       a run's weight snapshots

Runs can save their final state to, or resume from, checkpoints in
~/.nenv/checkpoints. Tool calls are audited to ~/.nenv/audit.jsonl.
Logs go to stderr.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			noAudit, _ := cmd.Flags().GetBool("no-audit")

			settings, err := loadSettings(cmd)
			if err != nil {
				return err
			}

			auditDir := ""
			if !noAudit {
				dir, err := config.Dir()
				if err != nil {
					return err
				}
				auditDir = filepath.Clean(dir)
			}

			server, err := mcp.NewServer(&mcp.Config{
				Name:     "nenv",
				Version:  version,
				Settings: settings,
				Logger:   newLogger(settings, cmd.ErrOrStderr()),
				AuditDir: auditDir,
			})
			if err != nil {
				return fmt.Errorf("failed to start MCP server: %w", err)
			}
			defer server.Close()

			return server.Run(cmd.Context())
		},
	}

	cmd.Flags().Bool("no-audit", false, "Do not write the tool audit log")
	return cmd
}
