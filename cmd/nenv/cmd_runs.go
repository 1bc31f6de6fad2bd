package main

import (
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/nvandessel/nenv/internal/store"
	"github.com/nvandessel/nenv/internal/visualization"
)

func newRunsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect recorded runs",
		Long: `List, inspect, export and delete runs recorded in the run store
(~/.nenv/runs.db unless store.path is set).

Examples:
  nenv runs list
  nenv runs list --experiment urgent --status completed
  nenv runs show <run-id>
  nenv runs export <run-id> --output steps.jsonl
  nenv runs delete <run-id>`,
	}

	cmd.AddCommand(
		newRunsListCmd(),
		newRunsShowCmd(),
		newRunsExportCmd(),
		newRunsDeleteCmd(),
	)
	return cmd
}

func newRunsListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded runs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			experimentName, _ := cmd.Flags().GetString("experiment")
			status, _ := cmd.Flags().GetString("status")
			limit, _ := cmd.Flags().GetInt("limit")

			filter := store.RunFilter{Experiment: experimentName, Status: store.RunStatus(status), Limit: limit}
			if filter.Status != "" && !filter.Status.Valid() {
				return fmt.Errorf("unknown status %q (valid: running, completed, cancelled, failed)", status)
			}

			settings, err := loadSettings(cmd)
			if err != nil {
				return err
			}
			runStore, err := openStore(settings)
			if err != nil {
				return err
			}
			defer runStore.Close()

			runs, err := runStore.ListRuns(cmd.Context(), filter)
			if err != nil {
				return fmt.Errorf("failed to list runs: %w", err)
			}

			if jsonOut {
				if runs == nil {
					runs = []store.Run{}
				}
				return writeJSON(cmd, map[string]any{"runs": runs, "count": len(runs)})
			}

			w := cmd.OutOrStdout()
			if len(runs) == 0 {
				fmt.Fprintln(w, "No runs recorded.")
				return nil
			}
			fmt.Fprintf(w, "%-36s  %-14s  %-9s  %7s  %6s  %5s  %s\n", "ID", "EXPERIMENT", "STATUS", "STEPS", "SPIKES", "ALERT", "STARTED")
			for _, run := range runs {
				fmt.Fprintf(w, "%-36s  %-14s  %-9s  %7s  %6d  %.3f  %s\n",
					run.ID, run.Experiment, run.Status,
					humanize.Comma(int64(run.Summary.StepsCompleted)),
					run.Summary.TotalSpikes, run.Summary.PeakAlert,
					humanize.Time(run.StartedAt))
			}
			return nil
		},
	}

	cmd.Flags().String("experiment", "", "Only runs of this experiment")
	cmd.Flags().String("status", "", "Only runs with this status")
	cmd.Flags().Int("limit", 20, "Maximum number of runs (0 for all)")
	return cmd
}

func newRunsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show a run's summary and traces",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			ctx := cmd.Context()

			settings, err := loadSettings(cmd)
			if err != nil {
				return err
			}
			runStore, err := openStore(settings)
			if err != nil {
				return err
			}
			defer runStore.Close()

			run, err := runStore.GetRun(ctx, args[0])
			if err != nil {
				return fmt.Errorf("failed to get run: %w", err)
			}
			if run == nil {
				return fmt.Errorf("run not found: %s", args[0])
			}
			steps, err := runStore.GetSteps(ctx, run.ID, store.AllSteps)
			if err != nil {
				return fmt.Errorf("failed to get steps: %w", err)
			}
			snaps, err := runStore.GetWeights(ctx, run.ID)
			if err != nil {
				return fmt.Errorf("failed to get weights: %w", err)
			}

			if jsonOut {
				times := make([]int, 0, len(snaps))
				for _, snap := range snaps {
					times = append(times, snap.Time)
				}
				return writeJSON(cmd, map[string]any{
					"run":            run,
					"step_count":     len(steps),
					"snapshot_times": times,
				})
			}

			printRun(cmd.OutOrStdout(), run, steps, len(snaps))
			return nil
		},
	}
}

func printRun(w io.Writer, run *store.Run, steps []store.Step, snapshots int) {
	fmt.Fprintf(w, "Run %s\n", run.ID)
	fmt.Fprintf(w, "  experiment:    %s\n", run.Experiment)
	fmt.Fprintf(w, "  status:        %s\n", run.Status)
	fmt.Fprintf(w, "  started:       %s (%s)\n", run.StartedAt.Format("2006-01-02 15:04:05"), humanize.Time(run.StartedAt))
	if run.FinishedAt != nil {
		fmt.Fprintf(w, "  took:          %s\n", run.FinishedAt.Sub(run.StartedAt))
	}
	fmt.Fprintf(w, "  network:       %d units, %s, %s stimulus, seed %d\n",
		run.Config.NumNeurons, run.Config.Connectivity, run.Config.StimulusMode, run.Config.Seed)
	fmt.Fprintf(w, "  steps:         %s of %s\n",
		humanize.Comma(int64(run.Summary.StepsCompleted)), humanize.Comma(int64(run.Steps)))
	if run.Target >= 0 {
		fmt.Fprintf(w, "  target %-6d  %d spikes\n", run.Target, run.Summary.TargetSpikes)
	}
	fmt.Fprintf(w, "  total spikes:  %s\n", humanize.Comma(int64(run.Summary.TotalSpikes)))
	fmt.Fprintf(w, "  peak alert:    %.3f (final %.3f)\n", run.Summary.PeakAlert, run.Summary.FinalAlert)
	fmt.Fprintf(w, "  snapshots:     %d\n", snapshots)

	if len(steps) == 0 {
		return
	}
	alert := make([]float64, len(steps))
	novelty := make([]float64, len(steps))
	energy := make([]float64, len(steps))
	firing := make([]float64, len(steps))
	for i, st := range steps {
		alert[i] = st.AlertLevel
		novelty[i] = st.AvgNovelty
		energy[i] = st.AvgEnergy
		firing[i] = float64(st.TotalFiring)
	}
	fmt.Fprintf(w, "  alert          %s\n", visualization.Sparkline(visualization.Downsample(alert, traceWidth), 0, 1))
	fmt.Fprintf(w, "  novelty        %s\n", visualization.Sparkline(visualization.Downsample(novelty, traceWidth), 0, 1))
	fmt.Fprintf(w, "  energy         %s\n", visualization.Sparkline(visualization.Downsample(energy, traceWidth), 0, 0))
	fmt.Fprintf(w, "  firing         %s\n", visualization.Sparkline(visualization.Downsample(firing, traceWidth), 0, 0))
}

func newRunsExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export <run-id>",
		Short: "Export a run's steps as JSONL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output, _ := cmd.Flags().GetString("output")

			settings, err := loadSettings(cmd)
			if err != nil {
				return err
			}
			runStore, err := openStore(settings)
			if err != nil {
				return err
			}
			defer runStore.Close()

			run, err := runStore.GetRun(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("failed to get run: %w", err)
			}
			if run == nil {
				return fmt.Errorf("run not found: %s", args[0])
			}

			w := cmd.OutOrStdout()
			if output != "" {
				f, err := os.OpenFile(output, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
				if err != nil {
					return fmt.Errorf("failed to create output file: %w", err)
				}
				defer f.Close()
				w = f
			}

			n, err := store.ExportStepsJSONL(cmd.Context(), runStore, run.ID, w)
			if err != nil {
				return fmt.Errorf("failed to export steps: %w", err)
			}
			if output != "" {
				fmt.Fprintf(cmd.ErrOrStderr(), "Exported %s steps to %s\n", humanize.Comma(int64(n)), output)
			}
			return nil
		},
	}

	cmd.Flags().StringP("output", "o", "", "Output file (default stdout)")
	return cmd
}

func newRunsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <run-id>",
		Short: "Delete a run with its steps and weight snapshots",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			settings, err := loadSettings(cmd)
			if err != nil {
				return err
			}
			runStore, err := openStore(settings)
			if err != nil {
				return err
			}
			defer runStore.Close()

			run, err := runStore.GetRun(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("failed to get run: %w", err)
			}
			if run == nil {
				return fmt.Errorf("run not found: %s", args[0])
			}
			if err := runStore.DeleteRun(cmd.Context(), run.ID); err != nil {
				return fmt.Errorf("failed to delete run: %w", err)
			}

			if jsonOut {
				return writeJSON(cmd, map[string]string{"status": "deleted", "id": run.ID})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted run %s\n", run.ID)
			return nil
		},
	}
}
