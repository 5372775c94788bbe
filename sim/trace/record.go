// Package trace records what happened during a run: scheduler cycles,
// robot log lines and faults. It has no dependencies on sim/; it stores
// pure data types.
package trace

// CycleRecord captures one scheduler cycle.
type CycleRecord struct {
	Tick           int64 `csv:"tick"`
	Writes         int   `csv:"writes"`
	Published      int   `csv:"published"`
	DurationMicros int64 `csv:"duration_us"`
	BudgetMicros   int64 `csv:"budget_us"`
}

// Slow reports a cycle that took longer than its real-time budget.
func (r CycleRecord) Slow() bool {
	return r.BudgetMicros > 0 && r.DurationMicros > r.BudgetMicros
}

// LogRecord captures one robot log line.
type LogRecord struct {
	Tick    int64  `csv:"tick"`
	Robot   string `csv:"robot"`
	Message string `csv:"message"`
}

// FaultRecord captures a robot-level failure: a program error, a stalled
// heartbeat, or a rejected write.
type FaultRecord struct {
	Tick    int64  `csv:"tick"`
	Robot   string `csv:"robot"`
	Kind    string `csv:"kind"`
	Message string `csv:"message"`
}

// Fault kinds.
const (
	FaultProgram   = "program"
	FaultHeartbeat = "heartbeat"
	FaultWrite     = "write"
)
