package store

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
)

// ExportStepsJSONL writes a run's steps to w, one JSON object per line,
// and returns the number written.
func ExportStepsJSONL(ctx context.Context, s RunStore, runID string, w io.Writer) (int, error) {
	steps, err := s.GetSteps(ctx, runID, AllSteps)
	if err != nil {
		return 0, err
	}

	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	for i, st := range steps {
		if err := enc.Encode(st); err != nil {
			return i, fmt.Errorf("encode step %d: %w", st.Time, err)
		}
	}
	if err := bw.Flush(); err != nil {
		return len(steps), fmt.Errorf("flush steps: %w", err)
	}
	return len(steps), nil
}

// ImportStepsJSONL reads JSONL steps from r and appends them to runID.
// Blank lines are skipped; a malformed line aborts the import.
func ImportStepsJSONL(ctx context.Context, s RunStore, runID string, r io.Reader) (int, error) {
	scanner := bufio.NewScanner(r)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)

	var steps []Step
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var st Step
		if err := json.Unmarshal(line, &st); err != nil {
			return 0, fmt.Errorf("parse line %d: %w", lineNum, err)
		}
		steps = append(steps, st)
	}
	if err := scanner.Err(); err != nil {
		return 0, fmt.Errorf("scanner error: %w", err)
	}

	if err := s.AppendSteps(ctx, runID, steps); err != nil {
		return 0, err
	}
	return len(steps), nil
}
