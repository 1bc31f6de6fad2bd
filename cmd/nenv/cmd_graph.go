package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nvandessel/nenv/internal/checkpoint"
	"github.com/nvandessel/nenv/internal/constants"
	"github.com/nvandessel/nenv/internal/experiment"
	"github.com/nvandessel/nenv/internal/network"
	"github.com/nvandessel/nenv/internal/visualization"
)

func newGraphCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Render network connectivity and state",
		Long: `Render the network as Graphviz DOT, JSON or an ASCII grid.

The network is built from the configuration, or loaded from a
checkpoint, and can first be driven through an experiment so that the
rendered weights and firing reflect learning.

Examples:
  nenv graph --neurons 25 | neato -n -Tsvg > net.svg
  nenv graph --format ascii --experiment habituation --steps 50
  nenv graph --checkpoint net.ckpt --min-weight 0.8 --format json
  nenv graph --units 0,1,2,10,11,12`,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			formatStr, _ := cmd.Flags().GetString("format")
			neurons, _ := cmd.Flags().GetInt("neurons")
			from, _ := cmd.Flags().GetString("checkpoint")
			expName, _ := cmd.Flags().GetString("experiment")
			steps, _ := cmd.Flags().GetInt("steps")
			minWeight, _ := cmd.Flags().GetFloat64("min-weight")
			unitsStr, _ := cmd.Flags().GetString("units")

			if jsonOut {
				formatStr = string(visualization.FormatJSON)
			}
			format, err := visualization.ParseFormat(formatStr)
			if err != nil {
				return err
			}
			units, err := parseUnits(unitsStr)
			if err != nil {
				return err
			}

			settings, err := loadSettings(cmd)
			if err != nil {
				return err
			}

			var net *network.Network
			if from != "" {
				net, _, err = checkpoint.Load(from)
				if err != nil {
					return fmt.Errorf("failed to load checkpoint: %w", err)
				}
			} else {
				cfg, err := settings.NetworkConfig()
				if err != nil {
					return fmt.Errorf("invalid network settings: %w", err)
				}
				if neurons > 0 {
					cfg.NumNeurons = neurons
				}
				net, err = network.New(cfg)
				if err != nil {
					return err
				}
			}
			for _, id := range units {
				if id < 0 || id >= net.NumNeurons() {
					return fmt.Errorf("unit %d out of range [0, %d)", id, net.NumNeurons())
				}
			}

			if expName != "" {
				exp, err := experiment.Lookup(expName)
				if err != nil {
					return err
				}
				p := exp.Defaults.Scale(constants.DefaultNumNeurons, net.NumNeurons()).Override(steps, -1, 0, 0)
				p.SnapshotInterval = 0
				runner := &experiment.Runner{Logger: newLogger(settings, cmd.ErrOrStderr())}
				if _, err := runner.Continue(cmd.Context(), exp, p, net); err != nil {
					return err
				}
			}

			opts := visualization.Options{MinWeight: minWeight, Units: units}
			w := cmd.OutOrStdout()
			switch format {
			case visualization.FormatJSON:
				return writeJSON(cmd, visualization.RenderJSON(net, opts))
			case visualization.FormatASCII:
				fmt.Fprintf(w, "t=%d  firing=%d  alert=%.3f  avg energy=%.2f\n",
					net.TimeStep(), net.NumFiring(), net.AlertLevel(), net.AverageEnergy())
				fmt.Fprint(w, visualization.RenderGrid(net))
			default:
				fmt.Fprint(w, visualization.RenderDOT(net, opts))
			}
			return nil
		},
	}

	cmd.Flags().String("format", "dot", "Output format: dot, json, ascii")
	cmd.Flags().Int("neurons", 0, "Network size (default: config)")
	cmd.Flags().String("checkpoint", "", "Render the network stored in this checkpoint")
	cmd.Flags().String("experiment", "", "Drive the network through this experiment first")
	cmd.Flags().Int("steps", 0, "Steps of the experiment to run first (default: the experiment's)")
	cmd.Flags().Float64("min-weight", 0, "Hide connections with a weight below this")
	cmd.Flags().String("units", "", "Comma-separated unit ids to render (default: all)")
	return cmd
}
