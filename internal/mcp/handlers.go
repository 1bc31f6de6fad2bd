package mcp

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/nvandessel/nenv/internal/checkpoint"
	"github.com/nvandessel/nenv/internal/constants"
	"github.com/nvandessel/nenv/internal/experiment"
	"github.com/nvandessel/nenv/internal/network"
	"github.com/nvandessel/nenv/internal/ratelimit"
	"github.com/nvandessel/nenv/internal/store"
	"github.com/nvandessel/nenv/internal/visualization"
)

const (
	toolListExperiments = "nenv_list_experiments"
	toolRunExperiment   = "nenv_run_experiment"
	toolListRuns        = "nenv_list_runs"
	toolGetSteps        = "nenv_get_steps"
	toolGetWeights      = "nenv_get_weights"
)

const (
	// MaxToolSteps caps the length of a run started over MCP.
	MaxToolSteps = 10000

	defaultRunLimit = 20
	maxRunLimit     = 200

	recentRunsURI   = "nenv://runs/recent"
	runResourceBase = "nenv://runs/"
)

// registerTools registers all nenv tools with the MCP server.
func (s *Server) registerTools() error {
	sdk.AddTool(s.server, &sdk.Tool{
		Name:        toolListExperiments,
		Description: "List the registered stimulus protocols and their default parameters",
	}, s.handleListExperiments)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        toolRunExperiment,
		Description: "Run an experiment on a fresh or checkpointed network, record it to the run store and return its summary",
	}, s.handleRunExperiment)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        toolListRuns,
		Description: "List recorded runs, newest first, optionally filtered by experiment or status",
	}, s.handleListRuns)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        toolGetSteps,
		Description: "Get the per-step time series (target firing, energy, alert, novelty) of a recorded run",
	}, s.handleGetSteps)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        toolGetWeights,
		Description: "Get the weight snapshots of a recorded run, optionally for a single step or unit",
	}, s.handleGetWeights)

	return nil
}

// registerResources registers MCP resources for auto-loading into context.
func (s *Server) registerResources() error {
	s.server.AddResource(&sdk.Resource{
		URI:         recentRunsURI,
		Name:        "nenv-recent-runs",
		Description: "The most recent simulation runs with their outcome.",
		MIMEType:    "text/markdown",
	}, s.handleRecentRunsResource)

	s.server.AddResourceTemplate(&sdk.ResourceTemplate{
		URITemplate: runResourceBase + "{id}",
		Name:        "nenv-run",
		Description: "Details of one recorded run, including alert and energy traces.",
		MIMEType:    "text/markdown",
	}, s.handleRunResource)

	return nil
}

func (s *Server) handleListExperiments(ctx context.Context, req *sdk.CallToolRequest, args ListExperimentsInput) (_ *sdk.CallToolResult, _ ListExperimentsOutput, retErr error) {
	start := s.now()
	defer func() {
		s.auditTool(toolListExperiments, "", start, retErr, sanitizeToolParams(map[string]any{}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, toolListExperiments); err != nil {
		return nil, ListExperimentsOutput{}, err
	}

	all := experiment.All()
	infos := make([]ExperimentInfo, 0, len(all))
	for _, exp := range all {
		infos = append(infos, ExperimentInfo{
			Name:             exp.Name,
			Description:      exp.Description,
			Steps:            exp.Defaults.Steps,
			Target:           exp.Defaults.Target,
			Amplitude:        exp.Defaults.Amplitude,
			SnapshotInterval: exp.Defaults.SnapshotInterval,
		})
	}
	return nil, ListExperimentsOutput{Experiments: infos, Count: len(infos)}, nil
}

func (s *Server) handleRunExperiment(ctx context.Context, req *sdk.CallToolRequest, args RunExperimentInput) (_ *sdk.CallToolResult, _ RunExperimentOutput, retErr error) {
	start := s.now()
	runID := ""
	defer func() {
		params := map[string]any{
			"experiment": args.Experiment, "steps": args.Steps, "target": args.Target,
			"amplitude": args.Amplitude, "snapshot_interval": args.SnapshotInterval,
			"seed": args.Seed, "num_neurons": args.NumNeurons, "include_steps": args.IncludeSteps,
			"checkpoint": args.Checkpoint,
		}
		if args.Resume != "" {
			params["resume"] = args.Resume
		}
		s.auditTool(toolRunExperiment, runID, start, retErr, sanitizeToolParams(params))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, toolRunExperiment); err != nil {
		return nil, RunExperimentOutput{}, err
	}

	exp, err := experiment.Lookup(args.Experiment)
	if err != nil {
		return nil, RunExperimentOutput{}, err
	}
	if args.Steps < 0 || args.NumNeurons < 0 || args.SnapshotInterval < 0 || args.Amplitude < 0 {
		return nil, RunExperimentOutput{}, fmt.Errorf("steps, num_neurons, snapshot_interval and amplitude must be non-negative")
	}
	target := experiment.NoTarget
	if args.Target != nil {
		if *args.Target < 0 {
			return nil, RunExperimentOutput{}, fmt.Errorf("target must be a unit id, got %d", *args.Target)
		}
		target = *args.Target
	}

	net, err := s.startingNetwork(args)
	if err != nil {
		return nil, RunExperimentOutput{}, err
	}

	defaults := s.settings.Experiment
	p := exp.Defaults.
		Scale(constants.DefaultNumNeurons, net.NumNeurons()).
		Override(defaults.Steps, defaults.Target, defaults.Amplitude, defaults.SnapshotInterval).
		Override(args.Steps, target, args.Amplitude, args.SnapshotInterval)
	if p.Steps > MaxToolSteps {
		return nil, RunExperimentOutput{}, fmt.Errorf("steps must be at most %d over MCP, got %d", MaxToolSteps, p.Steps)
	}

	recorders := []experiment.Recorder{experiment.NewStoreRecorder(s.store)}
	var mem *experiment.MemoryRecorder
	if args.IncludeSteps {
		mem = experiment.NewMemoryRecorder()
		recorders = append(recorders, mem)
	}
	runner := &experiment.Runner{
		Logger:    s.logger,
		Recorders: recorders,
		Now:       s.now,
	}

	summary, err := runner.Continue(ctx, exp, p, net)
	if summary != nil {
		runID = summary.RunID
	}
	if err != nil {
		return nil, RunExperimentOutput{}, fmt.Errorf("run %s: %w", exp.Name, err)
	}

	out := RunExperimentOutput{
		RunID:            summary.RunID,
		Experiment:       summary.Experiment,
		Status:           string(summary.Status),
		StepsCompleted:   summary.StepsCompleted,
		TargetSpikes:     summary.TargetSpikes,
		TargetSpikeTimes: summary.TargetSpikeTimes,
		TotalSpikes:      summary.TotalSpikes,
		PeakAlert:        summary.PeakAlert,
		FinalAlert:       summary.FinalAlert,
		FinalAvgEnergy:   summary.FinalAvgEnergy,
		DurationMs:       summary.Duration.Milliseconds(),
		Message: fmt.Sprintf("%s: %d steps on %d units, %d spikes, peak alert %.3f",
			exp.Name, summary.StepsCompleted, net.NumNeurons(), summary.TotalSpikes, summary.PeakAlert),
	}
	if mem != nil {
		out.Steps = mem.Steps()
	}
	if args.Checkpoint {
		path, _, err := checkpoint.Save(s.checkpoints, net, s.now(), map[string]string{
			"experiment": exp.Name,
			"run_id":     summary.RunID,
		})
		if err != nil {
			return nil, RunExperimentOutput{}, fmt.Errorf("run %s recorded but checkpoint failed: %w", summary.RunID, err)
		}
		out.Checkpoint = filepath.Base(path)
		out.Message += ", saved " + out.Checkpoint
	}
	return nil, out, nil
}

// startingNetwork restores the requested checkpoint or builds a fresh
// network from the settings and tool overrides.
func (s *Server) startingNetwork(args RunExperimentInput) (*network.Network, error) {
	if args.Resume != "" {
		path, err := checkpoint.Resolve(s.checkpoints, args.Resume)
		if err != nil {
			return nil, err
		}
		net, _, err := checkpoint.Load(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load checkpoint: %w", err)
		}
		return net, nil
	}

	cfg, err := s.settings.NetworkConfig()
	if err != nil {
		return nil, fmt.Errorf("invalid network settings: %w", err)
	}
	if args.NumNeurons > 0 {
		cfg.NumNeurons = args.NumNeurons
	}
	if args.Seed != nil {
		cfg.Seed = *args.Seed
	}
	return network.New(cfg)
}

func (s *Server) handleListRuns(ctx context.Context, req *sdk.CallToolRequest, args ListRunsInput) (_ *sdk.CallToolResult, _ ListRunsOutput, retErr error) {
	start := s.now()
	defer func() {
		s.auditTool(toolListRuns, "", start, retErr, sanitizeToolParams(map[string]any{
			"experiment": args.Experiment, "status": args.Status, "limit": args.Limit,
		}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, toolListRuns); err != nil {
		return nil, ListRunsOutput{}, err
	}

	filter := store.RunFilter{
		Experiment: strings.ToLower(args.Experiment),
		Status:     store.RunStatus(args.Status),
		Limit:      args.Limit,
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, ListRunsOutput{}, fmt.Errorf("unknown status %q", args.Status)
	}
	switch {
	case filter.Limit <= 0:
		filter.Limit = defaultRunLimit
	case filter.Limit > maxRunLimit:
		filter.Limit = maxRunLimit
	}

	runs, err := s.store.ListRuns(ctx, filter)
	if err != nil {
		return nil, ListRunsOutput{}, fmt.Errorf("failed to list runs: %w", err)
	}

	items := make([]RunListItem, 0, len(runs))
	for _, run := range runs {
		items = append(items, RunListItem{
			ID:           run.ID,
			Experiment:   run.Experiment,
			Status:       string(run.Status),
			Steps:        run.Summary.StepsCompleted,
			NumNeurons:   run.Config.NumNeurons,
			Seed:         run.Config.Seed,
			TargetSpikes: run.Summary.TargetSpikes,
			PeakAlert:    run.Summary.PeakAlert,
			StartedAt:    run.StartedAt,
			FinishedAt:   run.FinishedAt,
		})
	}
	return nil, ListRunsOutput{Runs: items, Count: len(items)}, nil
}

func (s *Server) handleGetSteps(ctx context.Context, req *sdk.CallToolRequest, args GetStepsInput) (_ *sdk.CallToolResult, _ GetStepsOutput, retErr error) {
	start := s.now()
	defer func() {
		s.auditTool(toolGetSteps, args.RunID, start, retErr, sanitizeToolParams(map[string]any{
			"run_id": args.RunID, "from": args.From, "to": args.To,
		}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, toolGetSteps); err != nil {
		return nil, GetStepsOutput{}, err
	}

	if _, err := s.requireRun(ctx, args.RunID); err != nil {
		return nil, GetStepsOutput{}, err
	}
	r := store.StepRange{From: args.From, To: -1}
	if args.From < 0 {
		return nil, GetStepsOutput{}, fmt.Errorf("from must be non-negative, got %d", args.From)
	}
	if args.To != nil {
		if *args.To < args.From {
			return nil, GetStepsOutput{}, fmt.Errorf("to (%d) must not be before from (%d)", *args.To, args.From)
		}
		r.To = *args.To + 1
	}

	steps, err := s.store.GetSteps(ctx, args.RunID, r)
	if err != nil {
		return nil, GetStepsOutput{}, fmt.Errorf("failed to get steps: %w", err)
	}
	if steps == nil {
		steps = []store.Step{}
	}
	return nil, GetStepsOutput{RunID: args.RunID, Steps: steps, Count: len(steps)}, nil
}

func (s *Server) handleGetWeights(ctx context.Context, req *sdk.CallToolRequest, args GetWeightsInput) (_ *sdk.CallToolResult, _ GetWeightsOutput, retErr error) {
	start := s.now()
	defer func() {
		s.auditTool(toolGetWeights, args.RunID, start, retErr, sanitizeToolParams(map[string]any{
			"run_id": args.RunID, "time": args.Time, "unit": args.Unit,
		}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, toolGetWeights); err != nil {
		return nil, GetWeightsOutput{}, err
	}

	run, err := s.requireRun(ctx, args.RunID)
	if err != nil {
		return nil, GetWeightsOutput{}, err
	}
	if args.Unit != nil && (*args.Unit < 0 || *args.Unit >= run.Config.NumNeurons) {
		return nil, GetWeightsOutput{}, fmt.Errorf("unit must be below %d, got %d", run.Config.NumNeurons, *args.Unit)
	}

	snaps, err := s.store.GetWeights(ctx, args.RunID)
	if err != nil {
		return nil, GetWeightsOutput{}, fmt.Errorf("failed to get weights: %w", err)
	}

	out := GetWeightsOutput{RunID: args.RunID, Snapshots: []WeightSnapshot{}}
	for _, snap := range snaps {
		if args.Time != nil && snap.Time != *args.Time {
			continue
		}
		ws := WeightSnapshot{Time: snap.Time, Weights: snap.Weights}
		if args.Unit != nil {
			ws.Unit = args.Unit
			ws.Weights = [][]float64{snap.Weights[*args.Unit]}
		}
		out.Snapshots = append(out.Snapshots, ws)
	}
	if args.Time != nil && len(out.Snapshots) == 0 {
		return nil, GetWeightsOutput{}, fmt.Errorf("no weight snapshot at step %d", *args.Time)
	}
	out.Count = len(out.Snapshots)
	return nil, out, nil
}

// requireRun loads a run, turning a missing id into an error.
func (s *Server) requireRun(ctx context.Context, id string) (*store.Run, error) {
	if id == "" {
		return nil, errors.New("run_id is required")
	}
	run, err := s.store.GetRun(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	if run == nil {
		return nil, fmt.Errorf("run not found: %s", id)
	}
	return run, nil
}

// handleRecentRunsResource lists the latest runs as a markdown table.
func (s *Server) handleRecentRunsResource(ctx context.Context, req *sdk.ReadResourceRequest) (*sdk.ReadResourceResult, error) {
	runs, err := s.store.ListRuns(ctx, store.RunFilter{Limit: 10})
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}

	var sb strings.Builder
	sb.WriteString("# Recent nenv runs\n\n")
	if len(runs) == 0 {
		sb.WriteString("No runs recorded yet. Use `nenv_run_experiment` to start one.\n")
	} else {
		sb.WriteString("| Run | Experiment | Status | Steps | Spikes | Peak alert |\n")
		sb.WriteString("|-----|------------|--------|-------|--------|------------|\n")
		for _, run := range runs {
			fmt.Fprintf(&sb, "| `%s` | %s | %s | %d | %d | %.3f |\n",
				run.ID, run.Experiment, run.Status, run.Summary.StepsCompleted,
				run.Summary.TotalSpikes, run.Summary.PeakAlert)
		}
	}

	return &sdk.ReadResourceResult{
		Contents: []*sdk.ResourceContents{
			{
				URI:      recentRunsURI,
				MIMEType: "text/markdown",
				Text:     sb.String(),
			},
		},
	}, nil
}

// handleRunResource renders one run's summary and traces.
// URI format: nenv://runs/{id}
func (s *Server) handleRunResource(ctx context.Context, req *sdk.ReadResourceRequest) (*sdk.ReadResourceResult, error) {
	uri := req.Params.URI
	if !strings.HasPrefix(uri, runResourceBase) {
		return nil, fmt.Errorf("invalid URI format: %s", uri)
	}
	runID := strings.TrimPrefix(uri, runResourceBase)
	if runID == "" || runID == "recent" {
		return nil, fmt.Errorf("run ID is required")
	}
	run, err := s.requireRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	steps, err := s.store.GetSteps(ctx, runID, store.AllSteps)
	if err != nil {
		return nil, fmt.Errorf("failed to get steps: %w", err)
	}

	return &sdk.ReadResourceResult{
		Contents: []*sdk.ResourceContents{
			{
				URI:      uri,
				MIMEType: "text/markdown",
				Text:     formatRun(run, steps),
			},
		},
	}, nil
}

// traceWidth is the number of characters in a rendered trace.
const traceWidth = 60

func formatRun(run *store.Run, steps []store.Step) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# Run %s\n\n", run.ID)
	fmt.Fprintf(&sb, "- **Experiment:** %s\n", run.Experiment)
	fmt.Fprintf(&sb, "- **Status:** %s\n", run.Status)
	fmt.Fprintf(&sb, "- **Network:** %d units, %s, seed %d\n",
		run.Config.NumNeurons, run.Config.Connectivity, run.Config.Seed)
	if run.Target >= 0 {
		fmt.Fprintf(&sb, "- **Target:** unit %d, %d spikes\n", run.Target, run.Summary.TargetSpikes)
	}
	fmt.Fprintf(&sb, "- **Steps:** %d of %d\n", run.Summary.StepsCompleted, run.Steps)
	fmt.Fprintf(&sb, "- **Spikes:** %d\n", run.Summary.TotalSpikes)
	fmt.Fprintf(&sb, "- **Alert:** peak %.3f, final %.3f\n", run.Summary.PeakAlert, run.Summary.FinalAlert)

	if len(steps) == 0 {
		return sb.String()
	}
	alert := make([]float64, len(steps))
	energy := make([]float64, len(steps))
	novelty := make([]float64, len(steps))
	for i, st := range steps {
		alert[i] = st.AlertLevel
		energy[i] = st.AvgEnergy
		novelty[i] = st.AvgNovelty
	}
	sb.WriteString("\n## Traces\n\n```\n")
	fmt.Fprintf(&sb, "alert   %s\n", visualization.Sparkline(visualization.Downsample(alert, traceWidth), 0, 1))
	fmt.Fprintf(&sb, "novelty %s\n", visualization.Sparkline(visualization.Downsample(novelty, traceWidth), 0, 1))
	fmt.Fprintf(&sb, "energy  %s\n", visualization.Sparkline(visualization.Downsample(energy, traceWidth), 0, 0))
	sb.WriteString("```\n")
	return sb.String()
}
