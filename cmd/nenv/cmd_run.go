package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/nvandessel/nenv/internal/checkpoint"
	"github.com/nvandessel/nenv/internal/config"
	"github.com/nvandessel/nenv/internal/constants"
	"github.com/nvandessel/nenv/internal/experiment"
	"github.com/nvandessel/nenv/internal/logging"
	"github.com/nvandessel/nenv/internal/network"
	"github.com/nvandessel/nenv/internal/visualization"
)

// rasterUnits is how many units a default raster shows.
const rasterUnits = 10

// traceWidth is the number of characters in a summary sparkline.
const traceWidth = 60

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <experiment>",
		Short: "Run a stimulus protocol on a fresh or restored network",
		Long: `Run a named experiment and print its summary.

Each step's target firing, energy, priority, network firing count,
average energy, alert level and average novelty are recorded to the
run store (unless --no-store) and optionally to CSV.

Examples:
  nenv run habituation
  nenv run novelty --csv novelty.csv
  nenv run urgent --neurons 400 --target 210 --seed 7
  nenv run pattern-switch --raster
  nenv run habituation --checkpoint              # save the final state
  nenv run urgent --resume ~/.nenv/checkpoints/nenv-checkpoint-...ckpt`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			steps, _ := cmd.Flags().GetInt("steps")
			target, _ := cmd.Flags().GetInt("target")
			amplitude, _ := cmd.Flags().GetFloat64("amplitude")
			interval, _ := cmd.Flags().GetInt("snapshot-interval")
			neurons, _ := cmd.Flags().GetInt("neurons")
			seed, _ := cmd.Flags().GetUint64("seed")
			csvPath, _ := cmd.Flags().GetString("csv")
			noStore, _ := cmd.Flags().GetBool("no-store")
			raster, _ := cmd.Flags().GetBool("raster")
			rasterIDs, _ := cmd.Flags().GetIntSlice("raster-units")
			saveCheckpoint, _ := cmd.Flags().GetBool("checkpoint")
			checkpointDir, _ := cmd.Flags().GetString("checkpoint-dir")
			resume, _ := cmd.Flags().GetString("resume")

			settings, err := loadSettings(cmd)
			if err != nil {
				return err
			}
			logger := newLogger(settings, cmd.ErrOrStderr())

			exp, err := experiment.Lookup(args[0])
			if err != nil {
				return err
			}

			var net *network.Network
			if resume != "" {
				restored, header, err := checkpoint.Load(resume)
				if err != nil {
					return fmt.Errorf("failed to load checkpoint: %w", err)
				}
				logger.Info("resuming from checkpoint", "path", resume, "time_step", header.TimeStep)
				net = restored
			} else {
				cfg, err := settings.NetworkConfig()
				if err != nil {
					return fmt.Errorf("invalid network settings: %w", err)
				}
				if neurons > 0 {
					cfg.NumNeurons = neurons
				}
				if cmd.Flags().Changed("seed") {
					cfg.Seed = seed
				}
				net, err = network.New(cfg)
				if err != nil {
					return err
				}
			}

			defaults := settings.Experiment
			p := exp.Defaults.
				Scale(constants.DefaultNumNeurons, net.NumNeurons()).
				Override(defaults.Steps, defaults.Target, defaults.Amplitude, defaults.SnapshotInterval).
				Override(steps, target, amplitude, interval)

			// Recorders
			var recorders []experiment.Recorder
			mem := experiment.NewMemoryRecorder()
			recorders = append(recorders, mem)

			if csvPath == "" && defaults.OutputDir != "" {
				csvPath = filepath.Join(defaults.OutputDir, exp.Name+".csv")
			}
			if csvPath != "" {
				csvRec, err := experiment.NewCSVFileRecorder(csvPath)
				if err != nil {
					return err
				}
				recorders = append(recorders, csvRec)
			}

			if settings.Store.Enabled && !noStore {
				runStore, err := openStore(settings)
				if err != nil {
					return err
				}
				defer runStore.Close()
				recorders = append(recorders, experiment.NewStoreRecorder(runStore))
			}

			if dir, err := config.Dir(); err == nil {
				stepLog := logging.NewStepLogger(dir, settings.Logging.Level, "")
				defer stepLog.Close()
				recorders = append(recorders, experiment.NewStepLogRecorder(stepLog))
			}

			runner := &experiment.Runner{
				Logger:    logger,
				Recorders: recorders,
			}

			var frames [][]bool
			if raster {
				runner.OnStep = func(t int, n *network.Network) {
					frames = append(frames, n.FiringStates())
				}
			}

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			summary, runErr := runner.Continue(ctx, exp, p, net)
			if summary == nil {
				return runErr
			}

			var checkpointPath string
			if saveCheckpoint && summary.StepsCompleted > 0 {
				if checkpointDir == "" {
					checkpointDir, err = checkpoint.DefaultDir()
					if err != nil {
						return err
					}
				}
				checkpointPath, _, err = checkpoint.Save(checkpointDir, summary.Network, summary.FinishedAt, map[string]string{
					"experiment": exp.Name,
					"run_id":     summary.RunID,
				})
				if err != nil {
					return errors.Join(runErr, fmt.Errorf("failed to save checkpoint: %w", err))
				}
			}

			if jsonOut {
				out := map[string]any{
					"summary": summary,
					"csv":     csvPath,
				}
				if checkpointPath != "" {
					out["checkpoint"] = checkpointPath
				}
				if err := writeJSON(cmd, out); err != nil {
					return err
				}
				return runErr
			}

			w := cmd.OutOrStdout()
			printSummary(w, summary, mem.Steps())
			if csvPath != "" {
				fmt.Fprintf(w, "  csv:           %s\n", csvPath)
			}
			if checkpointPath != "" {
				fmt.Fprintf(w, "  checkpoint:    %s\n", checkpointPath)
			}
			if raster && len(frames) > 0 {
				units := rasterIDs
				if len(units) == 0 {
					units = defaultRasterUnits(summary.Network, p.Target)
				}
				fmt.Fprintln(w)
				fmt.Fprint(w, visualization.Raster(frames, units, mem.Steps()[0].Time))
			}
			return runErr
		},
	}

	cmd.Flags().Int("steps", 0, "Number of steps (default: the experiment's)")
	cmd.Flags().Int("target", -1, "Tracked unit id (default: the experiment's)")
	cmd.Flags().Float64("amplitude", 0, "Stimulus amplitude (default: the experiment's)")
	cmd.Flags().Int("snapshot-interval", 0, "Weight snapshot interval in steps (default: config)")
	cmd.Flags().Int("neurons", 0, "Network size (default: config)")
	cmd.Flags().Uint64("seed", 0, "Random seed for weight initialization (default: config)")
	cmd.Flags().String("csv", "", "Write the step time series to this CSV file")
	cmd.Flags().Bool("no-store", false, "Do not record the run to the run store")
	cmd.Flags().Bool("raster", false, "Print a spike raster after the run")
	cmd.Flags().IntSlice("raster-units", nil, "Units shown in the raster (default: the target and its neighbors)")
	cmd.Flags().Bool("checkpoint", false, "Save the final network state as a checkpoint")
	cmd.Flags().String("checkpoint-dir", "", "Checkpoint directory (default ~/.nenv/checkpoints)")
	cmd.Flags().String("resume", "", "Continue from this checkpoint instead of building a new network")

	return cmd
}

// printSummary writes a human-readable run summary with alert and energy traces.
func printSummary(w io.Writer, s *experiment.Summary, steps []experiment.StepRecord) {
	fmt.Fprintf(w, "Run %s (%s): %s\n", s.RunID, s.Experiment, s.Status)
	fmt.Fprintf(w, "  steps:         %s of %s\n", humanize.Comma(int64(s.StepsCompleted)), humanize.Comma(int64(s.Params.Steps)))
	if s.Params.Target >= 0 {
		fmt.Fprintf(w, "  target %-6d  %d spikes%s\n", s.Params.Target, s.TargetSpikes, spikeWindow(s.TargetSpikeTimes))
	}
	fmt.Fprintf(w, "  total spikes:  %s\n", humanize.Comma(int64(s.TotalSpikes)))
	fmt.Fprintf(w, "  peak alert:    %.3f (final %.3f)\n", s.PeakAlert, s.FinalAlert)
	fmt.Fprintf(w, "  avg energy:    %.2f\n", s.FinalAvgEnergy)
	fmt.Fprintf(w, "  duration:      %s\n", s.Duration.Round(time.Millisecond))

	if len(steps) == 0 {
		return
	}
	alert := make([]float64, len(steps))
	novelty := make([]float64, len(steps))
	energy := make([]float64, len(steps))
	for i, st := range steps {
		alert[i] = st.AlertLevel
		novelty[i] = st.AvgNovelty
		energy[i] = st.AvgEnergy
	}
	fmt.Fprintf(w, "  alert          %s\n", visualization.Sparkline(visualization.Downsample(alert, traceWidth), 0, 1))
	fmt.Fprintf(w, "  novelty        %s\n", visualization.Sparkline(visualization.Downsample(novelty, traceWidth), 0, 1))
	fmt.Fprintf(w, "  energy         %s\n", visualization.Sparkline(visualization.Downsample(energy, traceWidth), 0, 0))
}

func spikeWindow(times []int) string {
	if len(times) == 0 {
		return ""
	}
	return fmt.Sprintf(" (t=%d..%d)", times[0], times[len(times)-1])
}

// defaultRasterUnits picks the target and its first neighbors, or the first
// units when there is no target.
func defaultRasterUnits(net *network.Network, target int) []int {
	if target < 0 {
		ids := make([]int, min(rasterUnits, net.NumNeurons()))
		for i := range ids {
			ids[i] = i
		}
		return ids
	}
	ids := []int{target}
	for _, j := range net.Connections(target) {
		if len(ids) == rasterUnits {
			break
		}
		ids = append(ids, j)
	}
	return ids
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	sigChan := make(chan os.Signal, 1)
	notifySignals(sigChan)
	go func() {
		defer signal.Stop(sigChan)
		select {
		case <-sigChan:
			fmt.Fprintln(os.Stderr, "interrupted, finishing the current step")
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// parseUnits parses a comma-separated list of unit ids.
func parseUnits(s string) ([]int, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var ids []int
	for _, part := range strings.Split(s, ",") {
		var id int
		if _, err := fmt.Sscanf(strings.TrimSpace(part), "%d", &id); err != nil {
			return nil, fmt.Errorf("invalid unit id %q", part)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
