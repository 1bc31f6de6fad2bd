package main

import (
	"fmt"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/nvandessel/nenv/internal/checkpoint"
)

func newCheckpointCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "checkpoint",
		Short: "Manage saved network checkpoints",
		Long: `Inspect, verify and prune checkpoints of complete network state.

Checkpoints are written by 'nenv run --checkpoint' and resumed with
'nenv run --resume <path>'.

Examples:
  nenv checkpoint list
  nenv checkpoint info <path>
  nenv checkpoint verify <path>
  nenv checkpoint prune --keep 5
  nenv checkpoint prune --max-age 30d --max-size 500MB`,
	}
	cmd.PersistentFlags().String("dir", "", "Checkpoint directory (default ~/.nenv/checkpoints)")

	cmd.AddCommand(
		newCheckpointListCmd(),
		newCheckpointInfoCmd(),
		newCheckpointVerifyCmd(),
		newCheckpointPruneCmd(),
	)
	return cmd
}

func checkpointDir(cmd *cobra.Command) (string, error) {
	if dir, _ := cmd.Flags().GetString("dir"); dir != "" {
		return dir, nil
	}
	dir, err := checkpoint.DefaultDir()
	if err != nil {
		return "", fmt.Errorf("failed to get checkpoint directory: %w", err)
	}
	return dir, nil
}

func newCheckpointListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List checkpoints, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			dir, err := checkpointDir(cmd)
			if err != nil {
				return err
			}
			infos, err := checkpoint.List(dir)
			if err != nil {
				return fmt.Errorf("failed to list checkpoints: %w", err)
			}

			if jsonOut {
				if infos == nil {
					infos = []checkpoint.Info{}
				}
				return writeJSON(cmd, map[string]any{
					"checkpoints": infos,
					"total_count": len(infos),
					"directory":   dir,
				})
			}

			w := cmd.OutOrStdout()
			if len(infos) == 0 {
				fmt.Fprintf(w, "No checkpoints found in %s\n", dir)
				return nil
			}
			fmt.Fprintf(w, "Checkpoints in %s:\n", dir)
			var total int64
			for _, info := range infos {
				total += info.Size
				fmt.Fprintf(w, "  %s  t=%-7d  %8s  %s\n",
					info.CreatedAt.Local().Format("2006-01-02 15:04"),
					info.TimeStep,
					humanize.Bytes(uint64(info.Size)),
					filepath.Base(info.Path))
			}
			fmt.Fprintf(w, "Total: %d checkpoints, %s\n", len(infos), humanize.Bytes(uint64(total)))
			return nil
		},
	}
}

func newCheckpointInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info <path>",
		Short: "Show a checkpoint's header",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			header, err := checkpoint.ReadHeader(args[0])
			if err != nil {
				return err
			}
			if jsonOut {
				return writeJSON(cmd, header)
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Checkpoint %s\n", filepath.Base(args[0]))
			fmt.Fprintf(w, "  version:       %d\n", header.Version)
			fmt.Fprintf(w, "  created:       %s (%s)\n", header.CreatedAt.Local().Format("2006-01-02 15:04:05"), humanize.Time(header.CreatedAt))
			fmt.Fprintf(w, "  time step:     %d\n", header.TimeStep)
			fmt.Fprintf(w, "  units:         %d\n", header.NumNeurons)
			fmt.Fprintf(w, "  alert level:   %.3f\n", header.AlertLevel)
			fmt.Fprintf(w, "  checksum:      %s\n", header.Checksum)
			for k, v := range header.Metadata {
				fmt.Fprintf(w, "  %-14s %s\n", k+":", v)
			}
			return nil
		},
	}
}

func newCheckpointVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify <path>",
		Short: "Verify a checkpoint's checksum and that it restores",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			path := args[0]

			err := checkpoint.Verify(path)
			if err == nil {
				_, _, err = checkpoint.Load(path)
			}

			if jsonOut {
				result := map[string]any{"path": path, "valid": err == nil}
				if err != nil {
					result["error"] = err.Error()
				}
				if encErr := writeJSON(cmd, result); encErr != nil {
					return encErr
				}
				return err
			}
			if err != nil {
				return fmt.Errorf("checkpoint %s is invalid: %w", filepath.Base(path), err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Checkpoint %s is valid\n", filepath.Base(path))
			return nil
		},
	}
}

func newCheckpointPruneCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete old checkpoints",
		Long: `Delete checkpoints not kept by the retention flags. When several
flags are given a checkpoint survives if any of them keeps it.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			keep, _ := cmd.Flags().GetInt("keep")
			maxAge, _ := cmd.Flags().GetString("max-age")
			maxSize, _ := cmd.Flags().GetString("max-size")

			var policies []checkpoint.RetentionPolicy
			if keep > 0 {
				policies = append(policies, &checkpoint.CountPolicy{MaxCount: keep})
			}
			if maxAge != "" {
				d, err := checkpoint.ParseDuration(maxAge)
				if err != nil {
					return err
				}
				policies = append(policies, &checkpoint.AgePolicy{MaxAge: d})
			}
			if maxSize != "" {
				n, err := checkpoint.ParseSize(maxSize)
				if err != nil {
					return err
				}
				policies = append(policies, &checkpoint.SizePolicy{MaxTotalBytes: n})
			}
			if len(policies) == 0 {
				return fmt.Errorf("at least one of --keep, --max-age or --max-size is required")
			}

			dir, err := checkpointDir(cmd)
			if err != nil {
				return err
			}
			deleted, err := checkpoint.Prune(dir, &checkpoint.CompositePolicy{Policies: policies})
			if err != nil {
				return fmt.Errorf("failed to prune checkpoints: %w", err)
			}

			if jsonOut {
				if deleted == nil {
					deleted = []string{}
				}
				return writeJSON(cmd, map[string]any{"deleted": deleted, "count": len(deleted)})
			}
			w := cmd.OutOrStdout()
			for _, path := range deleted {
				fmt.Fprintf(w, "Deleted %s\n", filepath.Base(path))
			}
			fmt.Fprintf(w, "Pruned %d checkpoints\n", len(deleted))
			return nil
		},
	}

	cmd.Flags().Int("keep", 0, "Keep the N most recent checkpoints")
	cmd.Flags().String("max-age", "", "Keep checkpoints newer than this (e.g. 30d, 2w, 72h)")
	cmd.Flags().String("max-size", "", "Keep the newest checkpoints within this total size (e.g. 500MB)")
	return cmd
}
