package trace

import (
	"context"
	"time"
)

// TraceSummary aggregates statistics from a Store.
type TraceSummary struct {
	Cycles        int
	SlowCycles    int
	MeanDuration  time.Duration
	MaxDuration   time.Duration
	LogLines      int
	Faults        int
	FaultsByRobot map[string]int
}

// Summarize computes aggregate statistics. Safe for a nil store (returns
// zero-value fields).
func Summarize(ctx context.Context, store Store) (*TraceSummary, error) {
	summary := &TraceSummary{FaultsByRobot: make(map[string]int)}
	if store == nil {
		return summary, nil
	}

	cycles, err := store.Cycles(ctx)
	if err != nil {
		return nil, err
	}
	summary.Cycles = len(cycles)
	var total int64
	for _, c := range cycles {
		total += c.DurationMicros
		if d := time.Duration(c.DurationMicros) * time.Microsecond; d > summary.MaxDuration {
			summary.MaxDuration = d
		}
		if c.Slow() {
			summary.SlowCycles++
		}
	}
	if len(cycles) > 0 {
		summary.MeanDuration = time.Duration(total/int64(len(cycles))) * time.Microsecond
	}

	logs, err := store.Logs(ctx)
	if err != nil {
		return nil, err
	}
	summary.LogLines = len(logs)

	faults, err := store.Faults(ctx)
	if err != nil {
		return nil, err
	}
	summary.Faults = len(faults)
	for _, f := range faults {
		summary.FaultsByRobot[f.Robot]++
	}
	return summary, nil
}
