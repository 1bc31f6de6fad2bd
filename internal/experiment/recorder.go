package experiment

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/nvandessel/nenv/internal/logging"
	"github.com/nvandessel/nenv/internal/network"
	"github.com/nvandessel/nenv/internal/store"
)

// StepRecord is one observation of a run, taken after each update.
type StepRecord = store.Step

// RunInfo describes a run as it starts.
type RunInfo struct {
	ID         string         `json:"id"`
	Experiment string         `json:"experiment"`
	Params     Params         `json:"params"`
	Config     network.Config `json:"config"`
	StartedAt  time.Time      `json:"started_at"`
}

// Recorder receives the output of a run. Begin is called once, then
// RecordStep for every completed step in order, RecordWeights at snapshot
// steps, and End exactly once, even when Begin or the run fails or the run
// is cancelled.
type Recorder interface {
	Begin(ctx context.Context, info RunInfo) error
	RecordStep(ctx context.Context, rec StepRecord) error
	RecordWeights(ctx context.Context, t int, weights [][]float64) error
	End(ctx context.Context, summary *Summary) error
}

// multiRecorder fans out to several recorders.
type multiRecorder []Recorder

// Multi combines recorders. Nil entries are skipped.
func Multi(recorders ...Recorder) Recorder {
	var m multiRecorder
	for _, r := range recorders {
		if r != nil {
			m = append(m, r)
		}
	}
	return m
}

func (m multiRecorder) Begin(ctx context.Context, info RunInfo) error {
	for _, r := range m {
		if err := r.Begin(ctx, info); err != nil {
			return err
		}
	}
	return nil
}

func (m multiRecorder) RecordStep(ctx context.Context, rec StepRecord) error {
	for _, r := range m {
		if err := r.RecordStep(ctx, rec); err != nil {
			return err
		}
	}
	return nil
}

func (m multiRecorder) RecordWeights(ctx context.Context, t int, weights [][]float64) error {
	for _, r := range m {
		if err := r.RecordWeights(ctx, t, weights); err != nil {
			return err
		}
	}
	return nil
}

// End is delivered to every recorder; errors are joined.
func (m multiRecorder) End(ctx context.Context, summary *Summary) error {
	var errs []error
	for _, r := range m {
		errs = append(errs, r.End(ctx, summary))
	}
	return errors.Join(errs...)
}

// CSVHeader is the column layout written by CSVRecorder.
var CSVHeader = []string{
	"time", "target_firing", "target_energy", "target_priority",
	"total_firing", "avg_energy", "alert_level", "avg_novelty",
}

// CSVRecorder writes the step time series as CSV.
type CSVRecorder struct {
	w      *csv.Writer
	closer io.Closer
}

// NewCSVRecorder writes to w. The caller owns w.
func NewCSVRecorder(w io.Writer) *CSVRecorder {
	return &CSVRecorder{w: csv.NewWriter(w)}
}

// NewCSVFileRecorder creates path (and its directory) and writes to it.
// The file is closed by End.
func NewCSVFileRecorder(path string) (*CSVRecorder, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create csv file: %w", err)
	}
	return &CSVRecorder{w: csv.NewWriter(f), closer: f}, nil
}

func (c *CSVRecorder) Begin(ctx context.Context, info RunInfo) error {
	if err := c.w.Write(CSVHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	return nil
}

func (c *CSVRecorder) RecordStep(ctx context.Context, rec StepRecord) error {
	firing := "0"
	if rec.TargetFiring {
		firing = "1"
	}
	row := []string{
		strconv.Itoa(rec.Time),
		firing,
		strconv.FormatFloat(rec.TargetEnergy, 'f', 2, 64),
		strconv.FormatFloat(rec.TargetPriority, 'f', 3, 64),
		strconv.Itoa(rec.TotalFiring),
		strconv.FormatFloat(rec.AvgEnergy, 'f', 2, 64),
		strconv.FormatFloat(rec.AlertLevel, 'f', 3, 64),
		strconv.FormatFloat(rec.AvgNovelty, 'f', 3, 64),
	}
	if err := c.w.Write(row); err != nil {
		return fmt.Errorf("write csv row %d: %w", rec.Time, err)
	}
	return nil
}

func (c *CSVRecorder) RecordWeights(ctx context.Context, t int, weights [][]float64) error {
	return nil
}

func (c *CSVRecorder) End(ctx context.Context, summary *Summary) error {
	c.w.Flush()
	err := c.w.Error()
	if c.closer != nil {
		if cerr := c.closer.Close(); err == nil {
			err = cerr
		}
		c.closer = nil
	}
	if err != nil {
		return fmt.Errorf("finish csv: %w", err)
	}
	return nil
}

// DefaultStoreBatch is how many steps StoreRecorder buffers per write.
const DefaultStoreBatch = 100

// StoreRecorder persists a run to a RunStore.
type StoreRecorder struct {
	store store.RunStore
	batch int
	runID string
	buf   []store.Step
}

// NewStoreRecorder writes to s, flushing steps in batches.
func NewStoreRecorder(s store.RunStore) *StoreRecorder {
	return &StoreRecorder{store: s, batch: DefaultStoreBatch}
}

func (r *StoreRecorder) Begin(ctx context.Context, info RunInfo) error {
	r.runID = info.ID
	r.buf = r.buf[:0]
	run := store.Run{
		ID:         info.ID,
		Experiment: info.Experiment,
		Config:     info.Config,
		Target:     info.Params.Target,
		Steps:      info.Params.Steps,
		Status:     store.StatusRunning,
		StartedAt:  info.StartedAt,
	}
	if err := r.store.CreateRun(ctx, run); err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	return nil
}

func (r *StoreRecorder) RecordStep(ctx context.Context, rec StepRecord) error {
	r.buf = append(r.buf, rec)
	if len(r.buf) >= r.batch {
		return r.flush(ctx)
	}
	return nil
}

func (r *StoreRecorder) flush(ctx context.Context) error {
	if len(r.buf) == 0 {
		return nil
	}
	if err := r.store.AppendSteps(ctx, r.runID, r.buf); err != nil {
		return fmt.Errorf("record steps: %w", err)
	}
	r.buf = r.buf[:0]
	return nil
}

func (r *StoreRecorder) RecordWeights(ctx context.Context, t int, weights [][]float64) error {
	if err := r.store.SaveWeights(ctx, store.WeightSnapshot{RunID: r.runID, Time: t, Weights: weights}); err != nil {
		return fmt.Errorf("record weights: %w", err)
	}
	return nil
}

func (r *StoreRecorder) End(ctx context.Context, summary *Summary) error {
	flushErr := r.flush(ctx)
	finishErr := r.store.FinishRun(ctx, r.runID, summary.Status, summary.RunSummary(), summary.FinishedAt)
	if finishErr != nil {
		finishErr = fmt.Errorf("finish run: %w", finishErr)
	}
	return errors.Join(flushErr, finishErr)
}

// StepLogRecorder mirrors steps into a JSONL step trace. A nil logger
// makes every method a no-op.
type StepLogRecorder struct {
	log *logging.StepLogger
}

// NewStepLogRecorder wraps l.
func NewStepLogRecorder(l *logging.StepLogger) *StepLogRecorder {
	return &StepLogRecorder{log: l}
}

func (r *StepLogRecorder) Begin(ctx context.Context, info RunInfo) error {
	r.log.Log(map[string]any{
		"event":      "run_started",
		"experiment": info.Experiment,
		"steps":      info.Params.Steps,
		"target":     info.Params.Target,
		"seed":       info.Config.Seed,
	})
	return nil
}

func (r *StepLogRecorder) RecordStep(ctx context.Context, rec StepRecord) error {
	r.log.Log(map[string]any{
		"event":           "step",
		"step":            rec.Time,
		"target_firing":   rec.TargetFiring,
		"target_energy":   rec.TargetEnergy,
		"target_priority": rec.TargetPriority,
		"num_firing":      rec.TotalFiring,
		"avg_energy":      rec.AvgEnergy,
		"alert_level":     rec.AlertLevel,
		"avg_novelty":     rec.AvgNovelty,
	})
	return nil
}

func (r *StepLogRecorder) RecordWeights(ctx context.Context, t int, weights [][]float64) error {
	r.log.Log(map[string]any{"event": "weights", "step": t, "units": len(weights)})
	return nil
}

func (r *StepLogRecorder) End(ctx context.Context, summary *Summary) error {
	r.log.Log(map[string]any{
		"event":         "run_finished",
		"status":        string(summary.Status),
		"steps":         summary.StepsCompleted,
		"target_spikes": summary.TargetSpikes,
		"total_spikes":  summary.TotalSpikes,
		"peak_alert":    summary.PeakAlert,
	})
	return nil
}

// MemoryRecorder keeps everything in memory. It is safe for concurrent reads
// while a run is in progress.
type MemoryRecorder struct {
	mu      sync.Mutex
	info    RunInfo
	steps   []StepRecord
	weights []store.WeightSnapshot
	summary *Summary
}

// NewMemoryRecorder creates an empty MemoryRecorder.
func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{}
}

func (m *MemoryRecorder) Begin(ctx context.Context, info RunInfo) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.info = info
	m.steps = nil
	m.weights = nil
	m.summary = nil
	return nil
}

func (m *MemoryRecorder) RecordStep(ctx context.Context, rec StepRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.steps = append(m.steps, rec)
	return nil
}

func (m *MemoryRecorder) RecordWeights(ctx context.Context, t int, weights [][]float64) error {
	cp := make([][]float64, len(weights))
	for i, row := range weights {
		cp[i] = append([]float64(nil), row...)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.weights = append(m.weights, store.WeightSnapshot{RunID: m.info.ID, Time: t, Weights: cp})
	return nil
}

func (m *MemoryRecorder) End(ctx context.Context, summary *Summary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.summary = summary
	return nil
}

// Info returns the RunInfo passed to Begin.
func (m *MemoryRecorder) Info() RunInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.info
}

// Steps returns a copy of the recorded steps.
func (m *MemoryRecorder) Steps() []StepRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]StepRecord(nil), m.steps...)
}

// Weights returns the recorded weight snapshots.
func (m *MemoryRecorder) Weights() []store.WeightSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]store.WeightSnapshot(nil), m.weights...)
}

// Summary returns the summary passed to End, or nil.
func (m *MemoryRecorder) Summary() *Summary {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.summary
}
